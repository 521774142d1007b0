package fulfillment

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/auctionkiosk/internal/domain"
)

func TestClassifyUnresolvedIgnoresOtherFlags(t *testing.T) {
	for _, reserve := range []bool{false, true} {
		for _, highest := range []bool{false, true} {
			for _, created := range []bool{false, true} {
				res := domain.Resolution{ReserveNotMet: reserve, IsHighestBidder: highest, CreatedNewBidder: created}
				assert.Equal(t, BidSubmittedUnresolved, Classify(true, res))
			}
		}
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		placingBid bool
		res        domain.Resolution
		want       Outcome
	}{
		{"reserve wins over highest", true, domain.Resolution{BidIsResolved: true, ReserveNotMet: true, IsHighestBidder: true}, ReserveNotMet},
		{"highest", true, domain.Resolution{BidIsResolved: true, IsHighestBidder: true}, HighestBidder},
		{"outbid", true, domain.Resolution{BidIsResolved: true}, OutbidAfterPlacement},
		{"registered", false, domain.Resolution{CreatedNewBidder: true}, Registered},
		{"updated", false, domain.Resolution{}, Updated},
		{"registration ignores bid flags", false, domain.Resolution{BidIsResolved: true, IsHighestBidder: true}, Updated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.placingBid, tt.res))
		})
	}
}

func TestClassifyFailure(t *testing.T) {
	rejection := &domain.StepError{Step: "Placing bid failed.", Err: &domain.RejectionError{Status: 400, Type: "outbid"}}
	network := fmt.Errorf("x: %w", domain.ErrNetwork)

	assert.Equal(t, RegistrationFailed, ClassifyFailure(false, network))
	assert.Equal(t, RegistrationFailed, ClassifyFailure(false, rejection))
	assert.Equal(t, BidFailed, ClassifyFailure(true, network))
	assert.Equal(t, BidFailed, ClassifyFailure(true, errors.New("anything")))
	assert.Equal(t, OutbidAfterPlacement, ClassifyFailure(true, rejection))
	assert.True(t, BidFailed.Failed())
	assert.False(t, OutbidAfterPlacement.Failed())
}

func TestPresent(t *testing.T) {
	highest := domain.Resolution{BidIsResolved: true, IsHighestBidder: true}
	p := Present(HighestBidder, true, highest)
	assert.Equal(t, "High Bid!", p.Title)
	assert.False(t, p.ShowPlaceHigherBid)
	assert.True(t, p.ShowBackToAuction)
	assert.Equal(t, "BACK TO AUCTION", p.BackTitle)

	reserve := domain.Resolution{BidIsResolved: true, IsHighestBidder: true, ReserveNotMet: true}
	p = Present(ReserveNotMet, true, reserve)
	assert.True(t, p.ShowPlaceHigherBid)
	assert.Equal(t, "NO, THANKS", p.BackTitle)

	p = Present(Registered, false, domain.Resolution{CreatedNewBidder: true})
	assert.False(t, p.ShowPlaceHigherBid)
	assert.False(t, p.ShowBackToAuction)
	assert.Equal(t, "CONTINUE", p.BackTitle)

	p = Present(Updated, false, domain.Resolution{})
	assert.True(t, p.ShowBackToAuction)

	p = Present(BidFailed, true, domain.Resolution{})
	assert.Equal(t, "Bid Failed", p.Title)
	assert.True(t, p.ShowBackToAuction)
	assert.False(t, p.ShowPlaceHigherBid)
}

func TestOutcomeJSON(t *testing.T) {
	b, err := json.Marshal(map[string]Outcome{"outcome": OutbidAfterPlacement})
	require.NoError(t, err)
	assert.JSONEq(t, `{"outcome":"outbid_after_placement"}`, string(b))
}
