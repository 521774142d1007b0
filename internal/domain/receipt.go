package domain

import (
	"context"
	"time"
)

// Receipt is the customer-facing record of one finished fulfillment run,
// archived to object storage so staff can look it up after the kiosk
// session is gone.
type Receipt struct {
	SessionID      string     `json:"session_id"`
	AuctionID      string     `json:"auction_id"`
	SaleArtworkID  string     `json:"sale_artwork_id,omitempty"`
	BidderID       string     `json:"bidder_id,omitempty"`
	PaddleNumber   string     `json:"paddle_number,omitempty"`
	PlacingBid     bool       `json:"placing_bid"`
	BidAmountCents int64      `json:"bid_amount_cents,omitempty"`
	BidAmount      string     `json:"bid_amount,omitempty"`
	Outcome        string     `json:"outcome"`
	Title          string     `json:"title"`
	Message        string     `json:"message,omitempty"`
	Resolution     Resolution `json:"resolution"`
	IssuedAt       time.Time  `json:"issued_at"`
}

// ReceiptArchive stores and retrieves receipts.
type ReceiptArchive interface {
	Archive(ctx context.Context, r Receipt) (string, error)
	Load(ctx context.Context, path string) (*Receipt, error)
}
