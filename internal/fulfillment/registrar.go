// Package fulfillment sequences the identity calls that turn a person at the
// kiosk into a provisioned bidder, places their bid and resolves it.
package fulfillment

import (
	"context"
	"log/slog"

	"github.com/alanyoungcy/auctionkiosk/internal/domain"
)

// Identity is the set of identity operations the orchestrators drive.
type Identity interface {
	EmailExists(ctx context.Context, email string) (bool, error)
	CreateUser(ctx context.Context, sess *domain.Session) error
	UpdateUser(ctx context.Context, sess *domain.Session) error
	AttachCard(ctx context.Context, sess *domain.Session) error
	FetchBiddersForAuction(ctx context.Context, sess *domain.Session) ([]domain.Bidder, error)
	RegisterToAuction(ctx context.Context, sess *domain.Session) (domain.Bidder, error)
	CreatePIN(ctx context.Context, sess *domain.Session) (string, error)
	FetchPaddleNumber(ctx context.Context, sess *domain.Session) (string, error)
	PlaceBid(ctx context.Context, sess *domain.Session) (domain.BidderPosition, error)
	BidPosition(ctx context.Context, sess *domain.Session, positionID string) (domain.BidderPosition, error)
	SaleArtwork(ctx context.Context, sess *domain.Session) (domain.SaleArtwork, error)
	VerifyPIN(ctx context.Context, sess *domain.Session, pin string) (domain.User, error)
	CreditCards(ctx context.Context, sess *domain.Session) ([]domain.Card, error)
	SendBidderDetails(ctx context.Context, auctionID, identifier string) error
}

// Registrar provisions a bidder for a session: the user exists and is up to
// date, a pending card is attached, a bidder record and PIN exist and the
// paddle number is known.
type Registrar struct {
	identity Identity
	logger   *slog.Logger
}

// NewRegistrar creates a Registrar.
func NewRegistrar(identity Identity, logger *slog.Logger) *Registrar {
	return &Registrar{
		identity: identity,
		logger:   logger.With(slog.String("component", "registrar")),
	}
}

// CreateOrGetBidder runs the provisioning sequence against sess. The first
// failing step aborts the rest; its *domain.StepError is returned as is.
// Fields already written to sess guard against duplicate side effects when
// the sequence is re-run.
func (r *Registrar) CreateOrGetBidder(ctx context.Context, sess *domain.Session) error {
	log := r.logger.With(slog.String("session_id", sess.ID), slog.String("auction_id", sess.AuctionID))

	if err := r.createOrUpdateUser(ctx, sess); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := r.identity.AttachCard(ctx, sess); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := r.createOrGetBidderRecord(ctx, sess); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := r.identity.FetchPaddleNumber(ctx, sess); err != nil {
		return err
	}

	log.InfoContext(ctx, "bidder provisioned",
		slog.String("bidder_id", sess.BidderID),
		slog.String("paddle_number", sess.PaddleNumber),
		slog.Bool("created_new_user", sess.CreatedNewUser()),
	)
	return nil
}

// CreatedNewUser reports whether this session registered a new bidder, as
// opposed to finding a returning one.
func (r *Registrar) CreatedNewUser(sess *domain.Session) bool {
	return sess.CreatedNewUser()
}

func (r *Registrar) createOrUpdateUser(ctx context.Context, sess *domain.Session) error {
	// A bidder who logged in with phone and PIN may not have given an email;
	// there is no account to look up or create.
	if sess.NewUser.Email == "" && sess.Credentials().Authenticated() {
		return nil
	}

	exists, err := r.identity.EmailExists(ctx, sess.NewUser.Email)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if exists {
		return r.identity.UpdateUser(ctx, sess)
	}
	return r.identity.CreateUser(ctx, sess)
}

func (r *Registrar) createOrGetBidderRecord(ctx context.Context, sess *domain.Session) error {
	bidders, err := r.identity.FetchBiddersForAuction(ctx, sess)
	if err != nil {
		return err
	}
	if len(bidders) > 0 {
		sess.SetBidderID(bidders[0].ID)
		sess.SetBidderPIN(bidders[0].PIN)
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if _, err := r.identity.RegisterToAuction(ctx, sess); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if sess.BidderPIN == "" {
		if _, err := r.identity.CreatePIN(ctx, sess); err != nil {
			return err
		}
	}
	return nil
}
