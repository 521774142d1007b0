package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/auctionkiosk/internal/domain"
)

// FulfillmentStore implements domain.FulfillmentStore using PostgreSQL.
type FulfillmentStore struct {
	pool *pgxpool.Pool
}

// NewFulfillmentStore creates a new FulfillmentStore backed by the given
// connection pool.
func NewFulfillmentStore(pool *pgxpool.Pool) *FulfillmentStore {
	return &FulfillmentStore{pool: pool}
}

const fulfillmentSelectCols = `id, session_id, auction_id, sale_artwork_id,
	bidder_id, paddle_number, placing_bid, bid_amount_cents,
	outcome, failed_step, error,
	reserve_not_met, is_highest_bidder, bid_is_resolved, created_new_bidder,
	created_at`

func scanFulfillmentRows(rows pgx.Rows) ([]domain.FulfillmentRecord, error) {
	var recs []domain.FulfillmentRecord
	for rows.Next() {
		var r domain.FulfillmentRecord
		if err := rows.Scan(
			&r.ID, &r.SessionID, &r.AuctionID, &r.SaleArtworkID,
			&r.BidderID, &r.PaddleNumber, &r.PlacingBid, &r.BidAmountCents,
			&r.Outcome, &r.FailedStep, &r.Error,
			&r.Resolution.ReserveNotMet, &r.Resolution.IsHighestBidder,
			&r.Resolution.BidIsResolved, &r.Resolution.CreatedNewBidder,
			&r.CreatedAt,
		); err != nil {
			return nil, err
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

// Insert records one finished run.
func (s *FulfillmentStore) Insert(ctx context.Context, rec domain.FulfillmentRecord) error {
	const query = `
		INSERT INTO fulfillment_runs (
			session_id, auction_id, sale_artwork_id,
			bidder_id, paddle_number, placing_bid, bid_amount_cents,
			outcome, failed_step, error,
			reserve_not_met, is_highest_bidder, bid_is_resolved, created_new_bidder
		) VALUES (
			$1, $2, $3,
			$4, $5, $6, $7,
			$8, $9, $10,
			$11, $12, $13, $14
		)`

	_, err := s.pool.Exec(ctx, query,
		rec.SessionID, rec.AuctionID, rec.SaleArtworkID,
		rec.BidderID, rec.PaddleNumber, rec.PlacingBid, rec.BidAmountCents,
		rec.Outcome, rec.FailedStep, rec.Error,
		rec.Resolution.ReserveNotMet, rec.Resolution.IsHighestBidder,
		rec.Resolution.BidIsResolved, rec.Resolution.CreatedNewBidder,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert fulfillment run for session %s: %w", rec.SessionID, err)
	}
	return nil
}

// ListBySession returns every run of a session, oldest first.
func (s *FulfillmentStore) ListBySession(ctx context.Context, sessionID string) ([]domain.FulfillmentRecord, error) {
	query := `SELECT ` + fulfillmentSelectCols + ` FROM fulfillment_runs
		WHERE session_id = $1 ORDER BY created_at ASC`

	rows, err := s.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list runs for session %s: %w", sessionID, err)
	}
	defer rows.Close()

	recs, err := scanFulfillmentRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan runs for session %s: %w", sessionID, err)
	}
	return recs, nil
}

// ListByAuction returns an auction's runs newest first.
func (s *FulfillmentStore) ListByAuction(ctx context.Context, auctionID string, opts domain.ListOpts) ([]domain.FulfillmentRecord, error) {
	query, args := listQuery(
		`SELECT `+fulfillmentSelectCols+` FROM fulfillment_runs WHERE auction_id = $1`,
		[]any{auctionID}, opts, "DESC",
	)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list runs for auction %s: %w", auctionID, err)
	}
	defer rows.Close()

	recs, err := scanFulfillmentRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan runs for auction %s: %w", auctionID, err)
	}
	return recs, nil
}

// Compile-time interface check.
var _ domain.FulfillmentStore = (*FulfillmentStore)(nil)
