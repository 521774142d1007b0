package fulfillment

import (
	"context"
	"errors"
	"log/slog"

	"github.com/alanyoungcy/auctionkiosk/internal/domain"
)

// CardStatus tells the kiosk whether a returning bidder must add a card
// before bidding.
type CardStatus int

const (
	CardOnFile CardStatus = iota + 1
	CardNeeded
)

func (c CardStatus) String() string {
	switch c {
	case CardOnFile:
		return "card_on_file"
	case CardNeeded:
		return "card_needed"
	}
	return "unknown"
}

func (c CardStatus) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// PINConfirmer logs a returning bidder in with their phone number and PIN.
type PINConfirmer struct {
	identity Identity
	logger   *slog.Logger
}

// NewPINConfirmer creates a PINConfirmer.
func NewPINConfirmer(identity Identity, logger *slog.Logger) *PINConfirmer {
	return &PINConfirmer{
		identity: identity,
		logger:   logger.With(slog.String("component", "pin")),
	}
}

// ConfirmPIN verifies pin against the session's phone number and auction.
// On success the session adopts the PIN credentials, collected details are
// pushed to the account, and the cards on file decide the CardStatus.
//
// A wrong PIN returns an error matching domain.ErrAuthentication. Only the
// entered PIN is discarded; a login confirmed earlier stays on the session.
func (c *PINConfirmer) ConfirmPIN(ctx context.Context, sess *domain.Session, pin string) (CardStatus, error) {
	if _, err := c.identity.VerifyPIN(ctx, sess, pin); err != nil {
		if errors.Is(err, domain.ErrAuthentication) {
			c.logger.InfoContext(ctx, "wrong pin", slog.String("session_id", sess.ID))
		}
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	if hasDetails(sess.NewUser) {
		if err := c.identity.UpdateUser(ctx, sess); err != nil {
			return 0, err
		}
		if err := ctx.Err(); err != nil {
			return 0, err
		}
	}

	cards, err := c.identity.CreditCards(ctx, sess)
	if err != nil {
		return 0, err
	}
	if len(cards) == 0 {
		return CardNeeded, nil
	}
	return CardOnFile, nil
}

// RetrieveBidderDetails asks the API to send a bidder their number and PIN.
// identifier is an email address or phone number.
func (c *PINConfirmer) RetrieveBidderDetails(ctx context.Context, auctionID, identifier string) error {
	if err := c.identity.SendBidderDetails(ctx, auctionID, identifier); err != nil {
		return err
	}
	c.logger.InfoContext(ctx, "sent bidder details", slog.String("auction_id", auctionID))
	return nil
}

func hasDetails(u domain.NewUser) bool {
	return u.Email != "" || u.Name != "" || u.PostCode != ""
}
