package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/auctionkiosk/internal/domain"
	"github.com/alanyoungcy/auctionkiosk/internal/identity"
	"github.com/alanyoungcy/auctionkiosk/internal/service"
	"github.com/alanyoungcy/auctionkiosk/internal/testutil"
)

var testTime = time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

// fakeKiosk implements the methods the tests exercise; the embedded nil
// interface panics on anything else.
type fakeKiosk struct {
	KioskService

	beginAuction string
	bidCents     int64
	placingBid   bool
	pin          string
	listOpts     domain.ListOpts
	err          error
}

func (f *fakeKiosk) snap(id string) service.Snapshot {
	return service.Snapshot{Session: domain.NewSession(id, "auction-1", "lot-1", testTime), State: domain.SessionStateCollecting}
}

func (f *fakeKiosk) Begin(_ context.Context, auctionID, _ string) (service.Snapshot, error) {
	f.beginAuction = auctionID
	return f.snap("sess-1"), f.err
}

func (f *fakeKiosk) Snapshot(_ context.Context, id string) (service.Snapshot, error) {
	if f.err != nil {
		return service.Snapshot{}, f.err
	}
	return f.snap(id), nil
}

func (f *fakeKiosk) SetBidAmount(_ context.Context, id string, cents int64) (service.Snapshot, error) {
	f.bidCents = cents
	if cents <= 0 {
		return service.Snapshot{}, fmt.Errorf("kiosk_service: set bid: %w", domain.ErrInvalidBid)
	}
	return f.snap(id), nil
}

func (f *fakeKiosk) Fulfill(_ context.Context, id string, placingBid bool) (service.Snapshot, error) {
	f.placingBid = placingBid
	if f.err != nil {
		return service.Snapshot{}, f.err
	}
	snap := f.snap(id)
	snap.Busy = true
	return snap, nil
}

func (f *fakeKiosk) ConfirmPIN(_ context.Context, id, pin string) (service.Snapshot, error) {
	f.pin = pin
	if f.err != nil {
		return service.Snapshot{}, f.err
	}
	return f.snap(id), nil
}

func (f *fakeKiosk) End(context.Context, string) error { return f.err }

func (f *fakeKiosk) Events(context.Context, string, string, int) ([]service.EventEntry, error) {
	return nil, f.err
}

func (f *fakeKiosk) AuctionRuns(_ context.Context, _ string, opts domain.ListOpts) ([]domain.FulfillmentRecord, error) {
	f.listOpts = opts
	return []domain.FulfillmentRecord{{SessionID: "sess-1", Outcome: "highest_bidder"}}, f.err
}

func (f *fakeKiosk) RetrieveBidderDetails(context.Context, string, string) error { return f.err }

func newMux(f *fakeKiosk) *http.ServeMux {
	sh := NewSessionHandler(f, testutil.NopLogger())
	ah := NewAuctionHandler(f, testutil.NopLogger())
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/sessions", sh.Begin)
	mux.HandleFunc("GET /api/sessions/{id}", sh.Get)
	mux.HandleFunc("DELETE /api/sessions/{id}", sh.End)
	mux.HandleFunc("PUT /api/sessions/{id}/bid", sh.SetBid)
	mux.HandleFunc("POST /api/sessions/{id}/fulfill", sh.Fulfill)
	mux.HandleFunc("POST /api/sessions/{id}/pin", sh.ConfirmPIN)
	mux.HandleFunc("GET /api/sessions/{id}/events", sh.Events)
	mux.HandleFunc("POST /api/bidder-details", ah.SendBidderDetails)
	mux.HandleFunc("GET /api/auctions/{id}/runs", ah.ListRuns)
	return mux
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestBeginWithEmptyBody(t *testing.T) {
	f := &fakeKiosk{}
	rec := do(t, newMux(f), http.MethodPost, "/api/sessions", "")

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Empty(t, f.beginAuction)
	body := decode(t, rec)
	assert.Equal(t, "collecting", body["state"])
}

func TestBeginRejectsUnknownFields(t *testing.T) {
	rec := do(t, newMux(&fakeKiosk{}), http.MethodPost, "/api/sessions", `{"auction":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSetBidAcceptsDollarAmount(t *testing.T) {
	f := &fakeKiosk{}
	rec := do(t, newMux(f), http.MethodPut, "/api/sessions/sess-1/bid", `{"amount":"1250.50"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(125050), f.bidCents)

	rec = do(t, newMux(f), http.MethodPut, "/api/sessions/sess-1/bid", `{"amount_cents":900}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(900), f.bidCents)
}

func TestSetBidRejectsOversizedAmount(t *testing.T) {
	f := &fakeKiosk{}
	rec := do(t, newMux(f), http.MethodPut, "/api/sessions/sess-1/bid", `{"amount":"184467440737095516.21"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode(t, rec)["error"], "out of range")
	assert.Zero(t, f.bidCents)
}

func TestSetBidRejectsZero(t *testing.T) {
	rec := do(t, newMux(&fakeKiosk{}), http.MethodPut, "/api/sessions/sess-1/bid", `{"amount_cents":0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode(t, rec)["error"], "bid amount must be positive")
}

func TestFulfillAccepted(t *testing.T) {
	f := &fakeKiosk{}
	rec := do(t, newMux(f), http.MethodPost, "/api/sessions/sess-1/fulfill", `{"placing_bid":true}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.True(t, f.placingBid)
	assert.Equal(t, true, decode(t, rec)["busy"])
}

func TestServiceErrorStatuses(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"not found", domain.ErrSessionNotFound, http.StatusNotFound},
		{"busy", domain.ErrSessionBusy, http.StatusConflict},
		{"cancelled before start", fmt.Errorf("fulfill: %w", domain.ErrRunCancelled), http.StatusConflict},
		{"missing field", fmt.Errorf("x: %w: phone", domain.ErrMissingField), http.StatusBadRequest},
		{"too many attempts", domain.ErrTooManyAttempts, http.StatusTooManyRequests},
		{"step failure", &domain.StepError{Step: identity.StepRegister, Err: domain.ErrNetwork}, http.StatusBadGateway},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, newMux(&fakeKiosk{err: tc.err}), http.MethodPost, "/api/sessions/sess-1/fulfill", "")
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestStepFailureBody(t *testing.T) {
	err := &domain.StepError{Step: identity.StepRegister, Err: fmt.Errorf("dial: %w", domain.ErrNetwork)}
	rec := do(t, newMux(&fakeKiosk{err: err}), http.MethodPost, "/api/sessions/sess-1/fulfill", "")

	body := decode(t, rec)
	assert.Equal(t, identity.StepRegister, body["step"])
	assert.Equal(t, true, body["retryable"])
	assert.True(t, strings.HasPrefix(body["error"].(string), "Registering for Auction Failed."))
}

func TestWrongPIN(t *testing.T) {
	f := &fakeKiosk{err: &domain.StepError{
		Step: identity.StepVerifyPIN,
		Err:  &domain.RejectionError{Status: http.StatusUnauthorized},
	}}
	rec := do(t, newMux(f), http.MethodPost, "/api/sessions/sess-1/pin", `{"pin":"0000"}`)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Wrong PIN", decode(t, rec)["error"])
	assert.Equal(t, "0000", f.pin)
}

func TestEndNoContent(t *testing.T) {
	rec := do(t, newMux(&fakeKiosk{}), http.MethodDelete, "/api/sessions/sess-1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestEventsEmptyList(t *testing.T) {
	rec := do(t, newMux(&fakeKiosk{}), http.MethodGet, "/api/sessions/sess-1/events?after=0", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestBidderDetails(t *testing.T) {
	rec := do(t, newMux(&fakeKiosk{}), http.MethodPost, "/api/bidder-details", `{"identifier":"5551234"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = do(t, newMux(&fakeKiosk{err: domain.ErrTooManyAttempts}), http.MethodPost, "/api/bidder-details", `{"identifier":"5551234"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestAuctionRunsPagination(t *testing.T) {
	f := &fakeKiosk{}
	rec := do(t, newMux(f), http.MethodGet, "/api/auctions/auction-1/runs?limit=900&offset=10", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.ListOpts{Limit: 500, Offset: 10}, f.listOpts)

	var runs []domain.FulfillmentRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, "highest_bidder", runs[0].Outcome)
}

type pingFunc func(context.Context) error

func (p pingFunc) Ping(ctx context.Context) error { return p(ctx) }

func TestHealthCheck(t *testing.T) {
	ok := pingFunc(func(context.Context) error { return nil })
	down := pingFunc(func(context.Context) error { return errors.New("refused") })

	h := NewHealthHandler(func() int { return 3 }, map[string]Pinger{"redis": ok}, testutil.NopLogger())
	rec := httptest.NewRecorder()
	h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(3), body["active_sessions"])

	h = NewHealthHandler(nil, map[string]Pinger{"redis": ok, "postgres": down}, testutil.NopLogger())
	rec = httptest.NewRecorder()
	h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body = decode(t, rec)
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, map[string]any{"redis": "ok", "postgres": "down"}, body["dependencies"])
}
