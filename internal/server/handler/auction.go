package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/auctionkiosk/internal/domain"
)

// AuctionHandler serves auction-level endpoints that are not tied to a
// single kiosk session.
type AuctionHandler struct {
	svc    KioskService
	logger *slog.Logger
}

// NewAuctionHandler creates an AuctionHandler.
func NewAuctionHandler(svc KioskService, logger *slog.Logger) *AuctionHandler {
	return &AuctionHandler{svc: svc, logger: logHandler(logger, "auction")}
}

type bidderDetailsRequest struct {
	AuctionID  string `json:"auction_id"`
	Identifier string `json:"identifier"`
}

// SendBidderDetails asks the auction house to send a bidder their number
// and PIN by email or text.
// POST /api/bidder-details
func (h *AuctionHandler) SendBidderDetails(w http.ResponseWriter, r *http.Request) {
	var req bidderDetailsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.svc.RetrieveBidderDetails(r.Context(), req.AuctionID, req.Identifier); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}

// ListRuns lists recorded runs for an auction, newest first.
// GET /api/auctions/{id}/runs?limit=&offset=
func (h *AuctionHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.svc.AuctionRuns(r.Context(), pathParam(r, "id"), parseListOpts(r))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	if runs == nil {
		runs = []domain.FulfillmentRecord{}
	}
	writeJSON(w, http.StatusOK, runs)
}
