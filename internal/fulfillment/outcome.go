package fulfillment

import (
	"errors"

	"github.com/alanyoungcy/auctionkiosk/internal/domain"
)

// Outcome is the presentation-neutral result of a fulfillment run.
type Outcome int

const (
	Registered Outcome = iota + 1
	Updated
	BidSubmittedUnresolved
	ReserveNotMet
	HighestBidder
	OutbidAfterPlacement
	RegistrationFailed
	BidFailed
)

var outcomeNames = map[Outcome]string{
	Registered:             "registered",
	Updated:                "updated",
	BidSubmittedUnresolved: "bid_submitted_unresolved",
	ReserveNotMet:          "reserve_not_met",
	HighestBidder:          "highest_bidder",
	OutbidAfterPlacement:   "outbid_after_placement",
	RegistrationFailed:     "registration_failed",
	BidFailed:              "bid_failed",
}

func (o Outcome) String() string {
	if s, ok := outcomeNames[o]; ok {
		return s
	}
	return "unknown"
}

// MarshalText renders the outcome by name in JSON.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// Failed reports whether the outcome is a failure.
func (o Outcome) Failed() bool {
	return o == RegistrationFailed || o == BidFailed
}

// Classify maps a finished run onto an Outcome. The reserve check wins over
// the highest-bidder check.
func Classify(placingBid bool, res domain.Resolution) Outcome {
	if placingBid {
		switch {
		case !res.BidIsResolved:
			return BidSubmittedUnresolved
		case res.ReserveNotMet:
			return ReserveNotMet
		case res.IsHighestBidder:
			return HighestBidder
		default:
			return OutbidAfterPlacement
		}
	}
	if res.CreatedNewBidder {
		return Registered
	}
	return Updated
}

// ClassifyFailure maps a failed run onto an Outcome. Any failure while
// placing a bid is a bid failure, even if registration was what broke, with
// the exception of an outbid rejection.
func ClassifyFailure(placingBid bool, err error) Outcome {
	if !placingBid {
		return RegistrationFailed
	}
	if errors.Is(err, domain.ErrOutbid) {
		return OutbidAfterPlacement
	}
	return BidFailed
}

// Presentation carries the copy and buttons a kiosk screen shows for an
// outcome.
type Presentation struct {
	Title              string `json:"title"`
	Message            string `json:"message,omitempty"`
	ShowPlaceHigherBid bool   `json:"show_place_higher_bid"`
	ShowBackToAuction  bool   `json:"show_back_to_auction"`
	BackTitle          string `json:"back_title"`
}

// Present derives the screen for an outcome from the run's resolution.
func Present(o Outcome, placingBid bool, res domain.Resolution) Presentation {
	p := Presentation{}
	switch o {
	case Registered:
		p.Title = "Registration Complete"
	case Updated:
		p.Title = "Updated your Information"
	case BidSubmittedUnresolved:
		p.Title = "Bid Submitted"
	case ReserveNotMet:
		p.Title = "Reserve Not Met"
		p.Message = "Your bid is still below this lot's reserve. Please place a higher bid."
	case HighestBidder:
		p.Title = "High Bid!"
		p.Message = "You are the high bidder for this lot."
	case OutbidAfterPlacement:
		p.Title = "Higher bid needed"
		p.Message = "Another bidder has placed a higher maximum bid. Place a higher bid to secure the lot."
	case RegistrationFailed:
		return Presentation{
			Title:             "Registration Failed",
			Message:           "There was a problem registering for the auction. Please speak to a representative.",
			ShowBackToAuction: true,
			BackTitle:         "BACK TO AUCTION",
		}
	case BidFailed:
		return Presentation{
			Title:             "Bid Failed",
			Message:           "There was a problem placing your bid. Please speak to a representative.",
			ShowBackToAuction: true,
			BackTitle:         "BACK TO AUCTION",
		}
	}

	p.ShowPlaceHigherBid = placingBid && (!res.IsHighestBidder || res.ReserveNotMet)
	if o == OutbidAfterPlacement {
		p.ShowPlaceHigherBid = true
	}
	p.ShowBackToAuction = p.ShowPlaceHigherBid || res.IsHighestBidder || (!placingBid && !res.CreatedNewBidder)

	switch {
	case res.ReserveNotMet:
		p.BackTitle = "NO, THANKS"
	case res.CreatedNewBidder:
		p.BackTitle = "CONTINUE"
	default:
		p.BackTitle = "BACK TO AUCTION"
	}
	return p
}
