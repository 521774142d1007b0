package auctionapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/alanyoungcy/auctionkiosk/internal/domain"
)

// StubResponse is a canned reply for one endpoint.
type StubResponse struct {
	Status int
	Body   any
}

// Stub answers every endpoint with canned JSON. It backs the "stub" mode so
// the kiosk can be demonstrated without a live auction API.
type Stub struct {
	mu        sync.RWMutex
	responses map[string]StubResponse
}

// NewStub returns a Stub preloaded with a happy-path conversation: the email
// is unknown, the user has no bidder yet, and a placed bid immediately wins
// with no reserve.
func NewStub() *Stub {
	return &Stub{responses: DefaultStubResponses()}
}

// DefaultStubResponses returns the canned happy-path replies keyed by
// endpoint name.
func DefaultStubResponses() map[string]StubResponse {
	highest := map[string]any{"id": "stub-bid", "amount_cents": 500}
	return map[string]StubResponse{
		NameXApp:                          {http.StatusOK, map[string]string{"xapp_token": "stub-xapp-token", "expires_in": "2099-01-01T00:00:00Z"}},
		NameXAuth:                         {http.StatusOK, map[string]string{"access_token": "stub-access-token"}},
		NameFindExistingEmailRegistration: {http.StatusNotFound, nil},
		NameCreateUser:                    {http.StatusCreated, map[string]string{"id": "stub-user"}},
		NameUpdateMe:                      {http.StatusOK, map[string]string{"id": "stub-user"}},
		NameRegisterCard:                  {http.StatusCreated, map[string]string{"id": "stub-card"}},
		NameMyCreditCards:                 {http.StatusOK, []any{}},
		NameMyBiddersForAuction:           {http.StatusOK, []any{}},
		NameRegisterToBid:                 {http.StatusCreated, map[string]string{"id": "stub-bidder"}},
		NameCreatePINForBidder:            {http.StatusCreated, map[string]string{"pin": "1234"}},
		NameMe:                            {http.StatusOK, map[string]string{"id": "stub-user", "paddle_number": "100"}},
		NameBidderDetailsNotification:     {http.StatusCreated, map[string]string{"status": "sent"}},
		NamePlaceABid:                     {http.StatusCreated, map[string]any{"id": "stub-position", "max_bid_amount_cents": 500}},
		NameMyBidPosition: {http.StatusOK, map[string]any{
			"id":           "stub-position",
			"processed_at": "2026-01-01T00:00:00Z",
			"active":       true,
			"highest_bid":  highest,
		}},
		NameSaleArtwork: {http.StatusOK, map[string]any{
			"id":             "stub-sale-artwork",
			"reserve_status": domain.ReserveStatusNoReserve,
			"highest_bid":    highest,
		}},
	}
}

// Set replaces the canned reply for an endpoint.
func (s *Stub) Set(name string, status int, body any) {
	s.mu.Lock()
	s.responses[name] = StubResponse{Status: status, Body: body}
	s.mu.Unlock()
}

// Request returns the canned reply for ep.
func (s *Stub) Request(ctx context.Context, ep Endpoint, creds domain.Credentials) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if ep.Auth == AuthUser && !creds.Authenticated() {
		return nil, fmt.Errorf("auctionapi: %s: %w", ep.Name, domain.ErrNotAuthenticated)
	}

	s.mu.RLock()
	canned, ok := s.responses[ep.Name]
	s.mu.RUnlock()
	if !ok {
		return &Response{StatusCode: http.StatusNotFound, Body: []byte(`{"message":"not stubbed"}`)}, nil
	}

	var body []byte
	if canned.Body != nil {
		var err error
		body, err = json.Marshal(canned.Body)
		if err != nil {
			return nil, fmt.Errorf("auctionapi: stub %s: %w", ep.Name, err)
		}
	}
	return &Response{StatusCode: canned.Status, Body: body}, nil
}
