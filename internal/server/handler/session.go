package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/auctionkiosk/internal/domain"
	"github.com/alanyoungcy/auctionkiosk/internal/service"
)

// KioskService is the part of the kiosk service the HTTP API drives.
type KioskService interface {
	Begin(ctx context.Context, auctionID, saleArtworkID string) (service.Snapshot, error)
	Snapshot(ctx context.Context, id string) (service.Snapshot, error)
	UpdateDetails(ctx context.Context, id string, d service.DetailsUpdate) (service.Snapshot, error)
	SetBidAmount(ctx context.Context, id string, cents int64) (service.Snapshot, error)
	Fulfill(ctx context.Context, id string, placingBid bool) (service.Snapshot, error)
	RaiseBid(ctx context.Context, id string, cents int64) (service.Snapshot, error)
	Cancel(ctx context.Context, id string) error
	ConfirmPIN(ctx context.Context, id, pin string) (service.Snapshot, error)
	End(ctx context.Context, id string) error
	Events(ctx context.Context, id, after string, limit int) ([]service.EventEntry, error)
	Runs(ctx context.Context, id string) ([]domain.FulfillmentRecord, error)
	AuctionRuns(ctx context.Context, auctionID string, opts domain.ListOpts) ([]domain.FulfillmentRecord, error)
	Receipt(ctx context.Context, id string) (*domain.Receipt, error)
	RetrieveBidderDetails(ctx context.Context, auctionID, identifier string) error
	ActiveSessions() int
}

var _ KioskService = (*service.KioskService)(nil)

// SessionHandler serves the kiosk session endpoints.
type SessionHandler struct {
	svc    KioskService
	logger *slog.Logger
}

// NewSessionHandler creates a SessionHandler.
func NewSessionHandler(svc KioskService, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{svc: svc, logger: logHandler(logger, "session")}
}

type beginRequest struct {
	AuctionID     string `json:"auction_id"`
	SaleArtworkID string `json:"sale_artwork_id"`
}

// bidRequest accepts either minor units or a dollar amount.
type bidRequest struct {
	AmountCents int64            `json:"amount_cents"`
	Amount      *decimal.Decimal `json:"amount"`
}

func (b bidRequest) cents() (int64, error) {
	if b.Amount != nil {
		return domain.DecimalToCents(*b.Amount)
	}
	return b.AmountCents, nil
}

type fulfillRequest struct {
	PlacingBid bool `json:"placing_bid"`
}

type pinRequest struct {
	PIN string `json:"pin"`
}

// Begin starts a kiosk session.
// POST /api/sessions
func (h *SessionHandler) Begin(w http.ResponseWriter, r *http.Request) {
	var req beginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	snap, err := h.svc.Begin(r.Context(), req.AuctionID, req.SaleArtworkID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

// Get returns the current view of a session.
// GET /api/sessions/{id}
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.Snapshot(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// UpdateDetails merges bidder details into the session.
// PUT /api/sessions/{id}/details
func (h *SessionHandler) UpdateDetails(w http.ResponseWriter, r *http.Request) {
	var req service.DetailsUpdate
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	snap, err := h.svc.UpdateDetails(r.Context(), pathParam(r, "id"), req)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// SetBid sets the maximum bid for the next placement.
// PUT /api/sessions/{id}/bid
func (h *SessionHandler) SetBid(w http.ResponseWriter, r *http.Request) {
	var req bidRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	cents, err := req.cents()
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	snap, err := h.svc.SetBidAmount(r.Context(), pathParam(r, "id"), cents)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// Fulfill starts a registration or bid run. The run continues in the
// background; the response reports the session as busy.
// POST /api/sessions/{id}/fulfill
func (h *SessionHandler) Fulfill(w http.ResponseWriter, r *http.Request) {
	var req fulfillRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	snap, err := h.svc.Fulfill(r.Context(), pathParam(r, "id"), req.PlacingBid)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusAccepted, snap)
}

// Raise sets a higher bid and places it.
// POST /api/sessions/{id}/raise
func (h *SessionHandler) Raise(w http.ResponseWriter, r *http.Request) {
	var req bidRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	cents, err := req.cents()
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	snap, err := h.svc.RaiseBid(r.Context(), pathParam(r, "id"), cents)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusAccepted, snap)
}

// Cancel stops the session's run and waits for it to wind down.
// POST /api/sessions/{id}/cancel
func (h *SessionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if err := h.svc.Cancel(r.Context(), id); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	snap, err := h.svc.Snapshot(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// ConfirmPIN logs a returning bidder in with their PIN.
// POST /api/sessions/{id}/pin
func (h *SessionHandler) ConfirmPIN(w http.ResponseWriter, r *http.Request) {
	var req pinRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	snap, err := h.svc.ConfirmPIN(r.Context(), pathParam(r, "id"), req.PIN)
	if err != nil {
		if errors.Is(err, domain.ErrAuthentication) {
			writeError(w, http.StatusUnauthorized, "Wrong PIN")
			return
		}
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// End closes the session.
// DELETE /api/sessions/{id}
func (h *SessionHandler) End(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.End(r.Context(), pathParam(r, "id")); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Events returns the session's recorded events after the given stream id.
// GET /api/sessions/{id}/events?after=&limit=
func (h *SessionHandler) Events(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	events, err := h.svc.Events(r.Context(), pathParam(r, "id"), q.Get("after"), limit)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	if events == nil {
		events = []service.EventEntry{}
	}
	writeJSON(w, http.StatusOK, events)
}

// Runs lists the session's recorded runs.
// GET /api/sessions/{id}/runs
func (h *SessionHandler) Runs(w http.ResponseWriter, r *http.Request) {
	runs, err := h.svc.Runs(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	if runs == nil {
		runs = []domain.FulfillmentRecord{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// Receipt returns the receipt of the session's latest run.
// GET /api/sessions/{id}/receipt
func (h *SessionHandler) Receipt(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.Receipt(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
