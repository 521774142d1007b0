package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}

// FulfillmentRecord is the persisted summary of one finished run.
type FulfillmentRecord struct {
	ID             int64      `json:"id"`
	SessionID      string     `json:"session_id"`
	AuctionID      string     `json:"auction_id"`
	SaleArtworkID  string     `json:"sale_artwork_id"`
	BidderID       string     `json:"bidder_id,omitempty"`
	PaddleNumber   string     `json:"paddle_number,omitempty"`
	PlacingBid     bool       `json:"placing_bid"`
	BidAmountCents int64      `json:"bid_amount_cents"`
	Outcome        string     `json:"outcome"`
	FailedStep     string     `json:"failed_step,omitempty"`
	Error          string     `json:"error,omitempty"`
	Resolution     Resolution `json:"resolution"`
	CreatedAt      time.Time  `json:"created_at"`
}

// FulfillmentStore persists finished runs for reporting.
type FulfillmentStore interface {
	Insert(ctx context.Context, rec FulfillmentRecord) error
	ListBySession(ctx context.Context, sessionID string) ([]FulfillmentRecord, error)
	ListByAuction(ctx context.Context, auctionID string, opts ListOpts) ([]FulfillmentRecord, error)
}
