package domain

// Bidder is a per-auction registration record, distinct from the user
// account behind it.
type Bidder struct {
	ID  string `json:"id"`
	PIN string `json:"pin"`
}

// User is the authenticated user's profile as far as the kiosk cares.
type User struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	Name         string `json:"name"`
	PaddleNumber string `json:"paddle_number"`
}

// Card is a payment card on file.
type Card struct {
	ID       string `json:"id"`
	Brand    string `json:"brand"`
	LastFour string `json:"last_digits"`
}

// Bid identifies a bid on a lot.
type Bid struct {
	ID          string `json:"id"`
	AmountCents int64  `json:"amount_cents"`
}

// BidderPosition is a standing maximum bid placed by a bidder. ProcessedAt
// stays empty until the auction engine has evaluated it.
type BidderPosition struct {
	ID                string `json:"id"`
	MaxBidAmountCents int64  `json:"max_bid_amount_cents"`
	ProcessedAt       string `json:"processed_at"`
	Active            bool   `json:"active"`
	HighestBid        *Bid   `json:"highest_bid"`
}

// Processed reports whether the position has been evaluated.
func (p BidderPosition) Processed() bool {
	return p.ProcessedAt != ""
}

// Reserve statuses reported on a sale artwork.
const (
	ReserveStatusNoReserve = "no_reserve"
	ReserveStatusNotMet    = "reserve_not_met"
	ReserveStatusMet       = "reserve_met"
)

// SaleArtwork is a lot in an auction.
type SaleArtwork struct {
	ID            string `json:"id"`
	ReserveStatus string `json:"reserve_status"`
	HighestBid    *Bid   `json:"highest_bid"`
}

// ReserveNotMet reports whether the current high bid is below reserve.
func (sa SaleArtwork) ReserveNotMet() bool {
	return sa.ReserveStatus == ReserveStatusNotMet
}
