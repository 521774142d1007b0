package domain

import "time"

// NewUser holds the details a bidder types (or swipes) at the kiosk. Empty
// strings mean the field was not collected.
type NewUser struct {
	Email    string `json:"email"`
	Password string `json:"-"` // never persisted outside process memory
	Phone    string `json:"phone"`
	PostCode string `json:"post_code"`
	Name     string `json:"name"`

	// CreditCardToken is a pending card token awaiting attachment. It is
	// cleared as soon as the attach call succeeds so it is never replayed.
	CreditCardToken  string `json:"-"`
	SwipedCreditCard bool   `json:"swiped_credit_card"`

	// HasBeenRegistered becomes true only after a new bidder record is
	// created for the auction, not after user creation.
	HasBeenRegistered bool `json:"has_been_registered"`
}

// HasPendingCard reports whether a card token still needs attaching.
func (u NewUser) HasPendingCard() bool {
	return u.CreditCardToken != ""
}

// Resolution is the outcome of bid placement and polling.
type Resolution struct {
	ReserveNotMet    bool `json:"reserve_not_met"`
	IsHighestBidder  bool `json:"is_highest_bidder"`
	BidIsResolved    bool `json:"bid_is_resolved"`
	CreatedNewBidder bool `json:"created_new_bidder"`
}

// PINLogin are the credentials used by a returning bidder who identifies
// with phone number and bidder PIN instead of a password.
type PINLogin struct {
	PIN    string `json:"-"`
	Number string `json:"-"`
	SaleID string `json:"-"`
}

// Credentials select how an API call authenticates. The zero value is
// unauthenticated (app-level token only).
type Credentials struct {
	AccessToken string
	PIN         *PINLogin
}

// Authenticated reports whether the credentials identify a user.
func (c Credentials) Authenticated() bool {
	return c.AccessToken != "" || c.PIN != nil
}

// Session is the state accumulated across one kiosk transaction. It is owned
// by exactly one transaction and must not be shared between orchestrator runs
// that are in flight at the same time.
type Session struct {
	ID            string    `json:"id"`
	AuctionID     string    `json:"auction_id"`
	SaleArtworkID string    `json:"sale_artwork_id"`
	CreatedAt     time.Time `json:"created_at"`

	NewUser NewUser `json:"new_user"`

	BidderID     string `json:"bidder_id"`
	BidderPIN    string `json:"-"`
	PaddleNumber string `json:"paddle_number"`

	AccessToken string    `json:"-"`
	PINLogin    *PINLogin `json:"-"`

	BidAmountCents int64 `json:"bid_amount_cents"`

	Resolution Resolution `json:"resolution"`
}

// NewSession starts an empty session for the given auction and lot.
func NewSession(id, auctionID, saleArtworkID string, now time.Time) *Session {
	return &Session{
		ID:            id,
		AuctionID:     auctionID,
		SaleArtworkID: saleArtworkID,
		CreatedAt:     now,
	}
}

// Credentials returns the credentials later calls should use. An access
// token wins over a PIN login.
func (s *Session) Credentials() Credentials {
	if s.AccessToken != "" {
		return Credentials{AccessToken: s.AccessToken}
	}
	if s.PINLogin != nil {
		pin := *s.PINLogin
		return Credentials{PIN: &pin}
	}
	return Credentials{}
}

// CreatedNewUser mirrors NewUser.HasBeenRegistered; callers use it to tell a
// fresh registration from a returning bidder.
func (s *Session) CreatedNewUser() bool {
	return s.NewUser.HasBeenRegistered
}

// SetBidderID records the bidder id. Once set it is never cleared.
func (s *Session) SetBidderID(id string) {
	if id != "" {
		s.BidderID = id
	}
}

// SetBidderPIN records the bidder PIN. Once set it is never cleared.
func (s *Session) SetBidderPIN(pin string) {
	if pin != "" {
		s.BidderPIN = pin
	}
}

// RaiseBid prepares the session for another placement in the same
// transaction. Identity and bidder fields are kept.
func (s *Session) RaiseBid(cents int64) {
	s.BidAmountCents = cents
	created := s.Resolution.CreatedNewBidder
	s.Resolution = Resolution{CreatedNewBidder: created}
}

// Clone returns a deep copy suitable for running an orchestrator on without
// racing readers of the original.
func (s *Session) Clone() *Session {
	out := *s
	if s.PINLogin != nil {
		pin := *s.PINLogin
		out.PINLogin = &pin
	}
	return &out
}
