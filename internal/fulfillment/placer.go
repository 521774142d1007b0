package fulfillment

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/alanyoungcy/auctionkiosk/internal/clock"
	"github.com/alanyoungcy/auctionkiosk/internal/domain"
)

const (
	DefaultPollInterval    = time.Second
	DefaultMaxPollAttempts = 20
)

// PlacerConfig bounds the resolution polling loop.
type PlacerConfig struct {
	PollInterval    time.Duration
	MaxPollAttempts int
}

// Placer provisions the bidder, optionally places a bid and polls until the
// bid is resolved or the attempt bound is reached.
type Placer struct {
	registrar *Registrar
	identity  Identity
	clock     clock.Clock
	cfg       PlacerConfig
	logger    *slog.Logger
}

// NewPlacer creates a Placer. Zero config values fall back to the defaults.
func NewPlacer(registrar *Registrar, identity Identity, clk clock.Clock, cfg PlacerConfig, logger *slog.Logger) *Placer {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.MaxPollAttempts <= 0 {
		cfg.MaxPollAttempts = DefaultMaxPollAttempts
	}
	return &Placer{
		registrar: registrar,
		identity:  identity,
		clock:     clk,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "placer")),
	}
}

// PerformActions runs the registration sequence and, when placingBid is set,
// places the session's bid and polls for its resolution. The resolution is
// also written to sess.Resolution.
//
// A server rejection of type "outbid" during placement is a bidding outcome:
// it resolves the bid as not highest and is returned with a nil error.
//
// When ctx is cancelled no further requests are issued and ctx.Err() is
// returned; sess keeps only what completed steps wrote.
func (p *Placer) PerformActions(ctx context.Context, sess *domain.Session, placingBid bool) (domain.Resolution, error) {
	if err := p.registrar.CreateOrGetBidder(ctx, sess); err != nil {
		return domain.Resolution{}, err
	}
	if err := ctx.Err(); err != nil {
		return domain.Resolution{}, err
	}

	res := domain.Resolution{CreatedNewBidder: sess.CreatedNewUser()}
	if !placingBid {
		sess.Resolution = res
		return res, nil
	}

	position, err := p.identity.PlaceBid(ctx, sess)
	if errors.Is(err, domain.ErrOutbid) {
		res.BidIsResolved = true
		sess.Resolution = res
		p.logger.InfoContext(ctx, "bid rejected as outbid",
			slog.String("session_id", sess.ID),
			slog.String("amount", domain.FormatCents(sess.BidAmountCents)),
		)
		return res, nil
	}
	if err != nil {
		return domain.Resolution{}, err
	}

	res, err = p.poll(ctx, sess, position, res)
	if err != nil {
		return domain.Resolution{}, err
	}
	sess.Resolution = res

	p.logger.InfoContext(ctx, "bid placement finished",
		slog.String("session_id", sess.ID),
		slog.String("amount", domain.FormatCents(sess.BidAmountCents)),
		slog.Bool("bid_is_resolved", res.BidIsResolved),
		slog.Bool("is_highest_bidder", res.IsHighestBidder),
		slog.Bool("reserve_not_met", res.ReserveNotMet),
	)
	return res, nil
}

// poll checks the placed position until it has been processed, then reads
// the lot to decide reserve and highest-bidder status. Exhausting the
// attempt bound leaves the bid unresolved.
func (p *Placer) poll(ctx context.Context, sess *domain.Session, position domain.BidderPosition, res domain.Resolution) (domain.Resolution, error) {
	for attempt := 1; attempt <= p.cfg.MaxPollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return domain.Resolution{}, ctx.Err()
		case <-p.clock.After(p.cfg.PollInterval):
		}
		if err := ctx.Err(); err != nil {
			return domain.Resolution{}, err
		}

		current, err := p.identity.BidPosition(ctx, sess, position.ID)
		if err != nil {
			return domain.Resolution{}, err
		}
		if !current.Processed() {
			p.logger.DebugContext(ctx, "bid position not processed yet",
				slog.String("session_id", sess.ID),
				slog.Int("attempt", attempt),
			)
			continue
		}

		lot, err := p.identity.SaleArtwork(ctx, sess)
		if err != nil {
			return domain.Resolution{}, err
		}
		res.BidIsResolved = true
		res.ReserveNotMet = lot.ReserveNotMet()
		res.IsHighestBidder = current.Active &&
			current.HighestBid != nil && lot.HighestBid != nil &&
			current.HighestBid.ID == lot.HighestBid.ID
		return res, nil
	}

	p.logger.WarnContext(ctx, "bid not resolved within poll bound",
		slog.String("session_id", sess.ID),
		slog.Int("attempts", p.cfg.MaxPollAttempts),
	)
	return res, nil
}
