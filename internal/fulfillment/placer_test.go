package fulfillment

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/alanyoungcy/auctionkiosk/internal/clock"
	"github.com/alanyoungcy/auctionkiosk/internal/domain"
	"github.com/alanyoungcy/auctionkiosk/internal/identity"
	"github.com/alanyoungcy/auctionkiosk/internal/platform/auctionapi"
	"github.com/alanyoungcy/auctionkiosk/internal/testutil"
)

type PlacerSuite struct {
	suite.Suite
	api    *testutil.FakeAPI
	clock  *clock.Manual
	placer *Placer
	sess   *domain.Session
	ctx    context.Context
}

func TestPlacerSuite(t *testing.T) {
	suite.Run(t, new(PlacerSuite))
}

func (s *PlacerSuite) SetupTest() {
	s.api = testutil.NewFakeAPI()
	s.clock = clock.NewManual(time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC))
	id := identity.New(s.api, testutil.NopLogger())
	s.placer = NewPlacer(
		NewRegistrar(id, testutil.NopLogger()),
		id,
		s.clock,
		PlacerConfig{PollInterval: time.Second, MaxPollAttempts: 5},
		testutil.NopLogger(),
	)
	s.sess = newTestSession()
	s.sess.BidAmountCents = 500
	s.ctx = context.Background()
}

func pending() testutil.Reply {
	return testutil.Reply{Status: http.StatusOK, Body: map[string]any{"id": "pos-1", "active": true}}
}

func processed(active bool, bidID string) testutil.Reply {
	return testutil.Reply{Status: http.StatusOK, Body: map[string]any{
		"id":           "pos-1",
		"active":       active,
		"processed_at": "2026-03-01T18:00:02Z",
		"highest_bid":  map[string]any{"id": bidID},
	}}
}

func lot(reserve, highestBidID string) testutil.Reply {
	return testutil.Reply{Status: http.StatusOK, Body: map[string]any{
		"id":             "lot-1",
		"reserve_status": reserve,
		"highest_bid":    map[string]any{"id": highestBidID},
	}}
}

func (s *PlacerSuite) TestNewBidderHighestBid() {
	s.api.On(auctionapi.NameMyBidPosition, processed(true, "bid-1"))
	s.api.On(auctionapi.NameSaleArtwork, lot(domain.ReserveStatusNoReserve, "bid-1"))

	res, err := s.placer.PerformActions(s.ctx, s.sess, true)
	s.Require().NoError(err)

	s.Equal(domain.Resolution{
		CreatedNewBidder: true,
		BidIsResolved:    true,
		IsHighestBidder:  true,
	}, res)
	s.Equal(res, s.sess.Resolution)
	s.Equal(HighestBidder, Classify(true, res))

	calls := s.api.Calls()
	var placed auctionapi.Endpoint
	for _, c := range calls {
		if c.Endpoint.Name == auctionapi.NamePlaceABid {
			placed = c.Endpoint
		}
	}
	body, ok := placed.Body.(map[string]any)
	s.Require().True(ok)
	s.Equal(int64(500), body["max_bid_amount_cents"])
	s.Equal("stub-bidder", s.sess.BidderID)
}

func (s *PlacerSuite) TestExistingBidderRegistrationOnly() {
	s.api.On(auctionapi.NameFindExistingEmailRegistration, testutil.Reply{Status: http.StatusOK})
	s.api.On(auctionapi.NameMyBiddersForAuction, testutil.Reply{
		Status: http.StatusOK,
		Body:   []map[string]string{{"id": "bidder-7", "pin": "9876"}},
	})

	res, err := s.placer.PerformActions(s.ctx, s.sess, false)
	s.Require().NoError(err)
	s.Equal(domain.Resolution{}, res)
	s.Equal(Updated, Classify(false, res))
	s.Zero(s.api.Count(auctionapi.NamePlaceABid))
}

func (s *PlacerSuite) TestPollsUntilProcessed() {
	s.api.On(auctionapi.NameMyBidPosition, pending(), pending(), processed(false, "bid-1"))
	s.api.On(auctionapi.NameSaleArtwork, lot(domain.ReserveStatusMet, "bid-2"))

	res, err := s.placer.PerformActions(s.ctx, s.sess, true)
	s.Require().NoError(err)
	s.True(res.BidIsResolved)
	s.False(res.IsHighestBidder)
	s.Equal(OutbidAfterPlacement, Classify(true, res))
	s.Equal(3, s.api.Count(auctionapi.NameMyBidPosition))
	s.Equal([]time.Duration{time.Second, time.Second, time.Second}, s.clock.Sleeps())
}

func (s *PlacerSuite) TestReserveNotMet() {
	s.api.On(auctionapi.NameMyBidPosition, processed(true, "bid-1"))
	s.api.On(auctionapi.NameSaleArtwork, lot(domain.ReserveStatusNotMet, "bid-1"))

	res, err := s.placer.PerformActions(s.ctx, s.sess, true)
	s.Require().NoError(err)
	s.True(res.ReserveNotMet)
	s.True(res.IsHighestBidder)
	s.Equal(ReserveNotMet, Classify(true, res))
}

func (s *PlacerSuite) TestPollBoundLeavesBidUnresolved() {
	s.api.On(auctionapi.NameMyBidPosition, pending())

	res, err := s.placer.PerformActions(s.ctx, s.sess, true)
	s.Require().NoError(err)
	s.False(res.BidIsResolved)
	s.Equal(BidSubmittedUnresolved, Classify(true, res))
	s.Equal(5, s.api.Count(auctionapi.NameMyBidPosition))
	s.Zero(s.api.Count(auctionapi.NameSaleArtwork))
}

func (s *PlacerSuite) TestOutbidRejectionIsNotAFailure() {
	s.api.On(auctionapi.NamePlaceABid, testutil.Reply{
		Status: http.StatusBadRequest,
		Body:   map[string]string{"type": "outbid", "message": "Please place a higher bid."},
	})

	res, err := s.placer.PerformActions(s.ctx, s.sess, true)
	s.Require().NoError(err)
	s.True(res.BidIsResolved)
	s.Equal(OutbidAfterPlacement, Classify(true, res))
	s.Zero(s.api.Count(auctionapi.NameMyBidPosition))
}

func (s *PlacerSuite) TestPlacementFailure() {
	s.api.On(auctionapi.NamePlaceABid, testutil.Reply{
		Status: http.StatusInternalServerError,
		Body:   map[string]string{"message": "oops"},
	})

	_, err := s.placer.PerformActions(s.ctx, s.sess, true)
	s.Require().Error(err)

	var stepErr *domain.StepError
	s.Require().True(errors.As(err, &stepErr))
	s.Equal(identity.StepPlaceBid, stepErr.Step)
	s.Equal(BidFailed, ClassifyFailure(true, err))
	s.Equal(domain.Resolution{}, s.sess.Resolution)
}

func (s *PlacerSuite) TestCancelMidPollStopsWithinOneTick() {
	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	cancelled := false
	s.api.On(auctionapi.NameMyBidPosition,
		pending(),
		testutil.Reply{
			Status: http.StatusOK,
			Body:   map[string]any{"id": "pos-1"},
			Before: func() {
				cancelled = true
				cancel()
			},
		},
		processed(true, "bid-1"),
	)

	res, err := s.placer.PerformActions(ctx, s.sess, true)
	s.ErrorIs(err, context.Canceled)
	s.True(cancelled)
	s.Equal(domain.Resolution{}, res)
	s.Equal(2, s.api.Count(auctionapi.NameMyBidPosition))
	s.Zero(s.api.Count(auctionapi.NameSaleArtwork))
	s.Equal(domain.Resolution{}, s.sess.Resolution)
	// Registration that completed before the cancel is kept.
	s.Equal("stub-bidder", s.sess.BidderID)
}

func (s *PlacerSuite) TestRaiseBidKeepsBidderAndDoesNotReplayCard() {
	s.sess.NewUser.CreditCardToken = "card-tok"
	s.api.On(auctionapi.NameMyBidPosition, processed(false, "bid-1"))
	s.api.On(auctionapi.NameSaleArtwork, lot(domain.ReserveStatusNoReserve, "bid-2"))

	res, err := s.placer.PerformActions(s.ctx, s.sess, true)
	s.Require().NoError(err)
	s.Equal(OutbidAfterPlacement, Classify(true, res))

	s.sess.RaiseBid(900)
	s.Equal(domain.Resolution{CreatedNewBidder: true}, s.sess.Resolution)

	// The account and bidder now exist server side.
	s.api.Set(auctionapi.NameFindExistingEmailRegistration, testutil.Reply{Status: http.StatusOK})
	s.api.Set(auctionapi.NameMyBiddersForAuction, testutil.Reply{
		Status: http.StatusOK,
		Body:   []map[string]string{{"id": s.sess.BidderID, "pin": s.sess.BidderPIN}},
	})
	s.api.Set(auctionapi.NameMyBidPosition, processed(true, "bid-3"))
	s.api.Set(auctionapi.NameSaleArtwork, lot(domain.ReserveStatusNoReserve, "bid-3"))

	res, err = s.placer.PerformActions(s.ctx, s.sess, true)
	s.Require().NoError(err)
	s.Equal(HighestBidder, Classify(true, res))
	s.True(res.CreatedNewBidder)
	s.Equal(1, s.api.Count(auctionapi.NameRegisterCard))
	s.Equal(1, s.api.Count(auctionapi.NameCreateUser))
	s.Equal(1, s.api.Count(auctionapi.NameRegisterToBid))
	s.Equal(2, s.api.Count(auctionapi.NamePlaceABid))
}
