// Package notify alerts auction staff when a kiosk run needs a human: a
// failed registration or bid, or a bidder locked out after too many wrong
// PINs. Alerts fan out to every configured sender (Telegram, Discord) and
// can be filtered by event kind.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/auctionkiosk/internal/domain"
)

// Sender is the interface that each notification channel must implement.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns a human-readable identifier for the sender (e.g. "telegram").
	Name() string
}

// Notifier dispatches notifications to one or more Senders. Notify only
// forwards events whose kind is in the allowed set; NotifyAll bypasses it.
type Notifier struct {
	senders []Sender
	events  map[string]bool // allowed event kinds
	logger  *slog.Logger
}

// NewNotifier creates a Notifier that will deliver to the given senders. If
// events is empty, all event kinds are allowed.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether any sender is configured.
func (n *Notifier) Enabled() bool {
	return len(n.senders) > 0
}

// Notify sends a notification to all senders if event passes the filter.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out",
			slog.String("event", event),
		)
		return nil
	}

	return n.dispatch(ctx, title, message)
}

// NotifyAll sends a notification to all senders regardless of event kind.
func (n *Notifier) NotifyAll(ctx context.Context, title, message string) error {
	return n.dispatch(ctx, title, message)
}

// RunAlert describes a kiosk run that staff should follow up on.
type RunAlert struct {
	Event          string
	KioskID        string
	SessionID      string
	AuctionID      string
	SaleArtworkID  string
	PaddleNumber   string
	PlacingBid     bool
	BidAmountCents int64
	Outcome        string
	Step           string
	Err            error
}

// Alert formats a RunAlert and sends it through Notify.
func (n *Notifier) Alert(ctx context.Context, a RunAlert) error {
	title, message := FormatAlert(a)
	return n.Notify(ctx, a.Event, title, message)
}

// FormatAlert renders a RunAlert as a title and a multi-line message. The
// message never contains credentials; only identifiers staff can act on.
func FormatAlert(a RunAlert) (string, string) {
	title := "Kiosk needs attention"
	switch a.Event {
	case domain.EventRunFailed:
		if a.PlacingBid {
			title = "Kiosk bid failed"
		} else {
			title = "Kiosk registration failed"
		}
	case EventPINLocked:
		title = "Kiosk PIN attempts exhausted"
	}

	var b strings.Builder
	line := func(k, v string) {
		if v != "" {
			fmt.Fprintf(&b, "%s: %s\n", k, v)
		}
	}
	line("Kiosk", a.KioskID)
	line("Session", a.SessionID)
	line("Auction", a.AuctionID)
	line("Lot", a.SaleArtworkID)
	line("Paddle", a.PaddleNumber)
	if a.PlacingBid && a.BidAmountCents > 0 {
		line("Bid", domain.FormatCents(a.BidAmountCents))
	}
	line("Outcome", a.Outcome)
	line("Step", a.Step)
	if a.Err != nil {
		line("Error", a.Err.Error())
	}
	return title, strings.TrimRight(b.String(), "\n")
}

// EventPINLocked is the alert kind for a session that hit the PIN attempt
// limit.
const EventPINLocked = "pin.locked"

// dispatch sends to every sender; one failing sender does not stop delivery
// to the rest.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	if len(n.senders) == 0 {
		return nil
	}

	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		} else {
			n.logger.DebugContext(ctx, "notification sent",
				slog.String("sender", s.Name()),
				slog.String("title", title),
			)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}
