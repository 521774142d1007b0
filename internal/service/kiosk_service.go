package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/auctionkiosk/internal/clock"
	"github.com/alanyoungcy/auctionkiosk/internal/domain"
	"github.com/alanyoungcy/auctionkiosk/internal/fulfillment"
	"github.com/alanyoungcy/auctionkiosk/internal/notify"
)

// sideEffectTimeout bounds the publish and persist work done after a run.
const sideEffectTimeout = 10 * time.Second

// Orchestrator runs the registration and bid placement sequence on a
// session. *fulfillment.Placer satisfies it.
type Orchestrator interface {
	PerformActions(ctx context.Context, sess *domain.Session, placingBid bool) (domain.Resolution, error)
}

// PINFlow handles returning bidders. *fulfillment.PINConfirmer satisfies it.
type PINFlow interface {
	ConfirmPIN(ctx context.Context, sess *domain.Session, pin string) (fulfillment.CardStatus, error)
	RetrieveBidderDetails(ctx context.Context, auctionID, identifier string) error
}

// Alerter notifies staff. *notify.Notifier satisfies it.
type Alerter interface {
	Alert(ctx context.Context, a notify.RunAlert) error
}

// KioskConfig holds the service's tunables.
type KioskConfig struct {
	KioskID          string
	DefaultAuctionID string

	RunTimeout time.Duration
	LockTTL    time.Duration
	SessionTTL time.Duration

	PINAttempts int
	PINWindow   time.Duration
}

func (c *KioskConfig) applyDefaults() {
	if c.RunTimeout <= 0 {
		c.RunTimeout = 2 * time.Minute
	}
	if c.LockTTL <= 0 {
		c.LockTTL = c.RunTimeout + 30*time.Second
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = time.Hour
	}
	if c.PINAttempts <= 0 {
		c.PINAttempts = 5
	}
	if c.PINWindow <= 0 {
		c.PINWindow = 15 * time.Minute
	}
}

// KioskDeps are the collaborators of a KioskService. Placer and PIN are
// required; every other field may be nil, which switches that concern off.
type KioskDeps struct {
	Placer   Orchestrator
	PIN      PINFlow
	Locks    domain.LockManager
	Limiter  domain.RateLimiter
	Bus      domain.SignalBus
	Drafts   domain.DraftStore
	Audit    domain.AuditStore
	Runs     domain.FulfillmentStore
	Receipts domain.ReceiptArchive
	Alerts   Alerter
	Clock    clock.Clock
	NewID    func() string
}

// DetailsUpdate carries the fields a bidder typed or swiped at the kiosk.
// Empty fields leave the session's value unchanged.
type DetailsUpdate struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	Phone           string `json:"phone"`
	PostCode        string `json:"post_code"`
	Name            string `json:"name"`
	CreditCardToken string `json:"credit_card_token"`
	Swiped          bool   `json:"swiped"`
}

// Snapshot is a read-only view of a kiosk transaction.
type Snapshot struct {
	Session      *domain.Session           `json:"session"`
	State        domain.SessionState       `json:"state"`
	Busy         bool                      `json:"busy"`
	PlacingBid   bool                      `json:"placing_bid"`
	BidAmount    string                    `json:"bid_amount,omitempty"`
	Outcome      string                    `json:"outcome,omitempty"`
	Presentation *fulfillment.Presentation `json:"presentation,omitempty"`
	Error        string                    `json:"error,omitempty"`
	FailedStep   string                    `json:"failed_step,omitempty"`
	Retryable    bool                      `json:"retryable,omitempty"`
	CardStatus   string                    `json:"card_status,omitempty"`
	ReceiptPath  string                    `json:"receipt_path,omitempty"`
}

// EventEntry is one event from a session's history.
type EventEntry struct {
	ID    string              `json:"id"`
	Event domain.SessionEvent `json:"event"`
}

type transaction struct {
	sess       *domain.Session
	state      domain.SessionState
	placingBid bool
	outcome    fulfillment.Outcome
	failure    error
	cardStatus fulfillment.CardStatus
	receipt    string
	updatedAt  time.Time

	claimed bool // a PIN check or lock acquisition is in flight
	// starting is set while Fulfill acquires the session lock; a Cancel in
	// that window sets cancelPending and the run is never launched.
	starting      bool
	cancelPending bool
	cancel        context.CancelFunc
	done          chan struct{}
}

func (t *transaction) busy() bool {
	return t.cancel != nil || t.claimed
}

func (t *transaction) resetResult() {
	t.state = domain.SessionStateCollecting
	t.outcome = 0
	t.failure = nil
}

func (t *transaction) snapshot() Snapshot {
	snap := Snapshot{
		Session:     t.sess.Clone(),
		State:       t.state,
		Busy:        t.busy(),
		PlacingBid:  t.placingBid,
		ReceiptPath: t.receipt,
	}
	if t.sess.BidAmountCents > 0 {
		snap.BidAmount = domain.FormatCents(t.sess.BidAmountCents)
	}
	if t.outcome != 0 {
		snap.Outcome = t.outcome.String()
		p := fulfillment.Present(t.outcome, t.placingBid, t.sess.Resolution)
		snap.Presentation = &p
	}
	if t.failure != nil {
		snap.Error = t.failure.Error()
		snap.FailedStep = stepOf(t.failure)
		snap.Retryable = domain.Retryable(t.failure)
	}
	if t.cardStatus != 0 {
		snap.CardStatus = t.cardStatus.String()
	}
	return snap
}

// KioskService owns the kiosk transactions of this node. Each transaction
// holds exactly one session. Runs work on a private clone that replaces the
// transaction's session when the run ends.
type KioskService struct {
	cfg      KioskConfig
	placer   Orchestrator
	pin      PINFlow
	locks    domain.LockManager
	limiter  domain.RateLimiter
	bus      domain.SignalBus
	drafts   domain.DraftStore
	audit    domain.AuditStore
	runs     domain.FulfillmentStore
	receipts domain.ReceiptArchive
	alerts   Alerter
	clock    clock.Clock
	newID    func() string
	logger   *slog.Logger

	root context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	mu       sync.Mutex
	sessions map[string]*transaction
}

// NewKioskService creates a KioskService.
func NewKioskService(cfg KioskConfig, deps KioskDeps, logger *slog.Logger) *KioskService {
	cfg.applyDefaults()
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}
	root, stop := context.WithCancel(context.Background())
	return &KioskService{
		cfg:      cfg,
		placer:   deps.Placer,
		pin:      deps.PIN,
		locks:    deps.Locks,
		limiter:  deps.Limiter,
		bus:      deps.Bus,
		drafts:   deps.Drafts,
		audit:    deps.Audit,
		runs:     deps.Runs,
		receipts: deps.Receipts,
		alerts:   deps.Alerts,
		clock:    deps.Clock,
		newID:    deps.NewID,
		logger:   logger.With(slog.String("component", "kiosk_service")),
		root:     root,
		stop:     stop,
		sessions: make(map[string]*transaction),
	}
}

// Begin starts a transaction for a bidder at the kiosk. An empty auctionID
// falls back to the configured default auction.
func (s *KioskService) Begin(ctx context.Context, auctionID, saleArtworkID string) (Snapshot, error) {
	if auctionID == "" {
		auctionID = s.cfg.DefaultAuctionID
	}
	if auctionID == "" {
		return Snapshot{}, fmt.Errorf("kiosk_service: begin: %w: auction_id", domain.ErrMissingField)
	}

	now := s.clock.Now()
	tx := &transaction{
		sess:      domain.NewSession(s.newID(), auctionID, saleArtworkID, now),
		state:     domain.SessionStateCollecting,
		updatedAt: now,
	}

	s.mu.Lock()
	s.sessions[tx.sess.ID] = tx
	snap := tx.snapshot()
	s.mu.Unlock()

	s.saveDraft(ctx, snap.Session)
	s.emit(ctx, snap.Session.ID, domain.SessionEvent{Kind: domain.EventSessionStarted, State: snap.State})
	s.auditLog(ctx, domain.EventSessionStarted, snap.Session, nil)

	s.logger.InfoContext(ctx, "session started",
		slog.String("session_id", snap.Session.ID),
		slog.String("auction_id", auctionID),
	)
	return snap, nil
}

// UpdateDetails merges collected bidder details into the session.
func (s *KioskService) UpdateDetails(ctx context.Context, id string, d DetailsUpdate) (Snapshot, error) {
	snap, err := s.mutate(ctx, id, func(tx *transaction) error {
		u := &tx.sess.NewUser
		setIf(&u.Email, d.Email)
		setIf(&u.Password, d.Password)
		setIf(&u.Phone, d.Phone)
		setIf(&u.PostCode, d.PostCode)
		setIf(&u.Name, d.Name)
		if d.CreditCardToken != "" {
			u.CreditCardToken = d.CreditCardToken
			u.SwipedCreditCard = d.Swiped
		}
		tx.resetResult()
		return nil
	})
	if err != nil {
		return Snapshot{}, err
	}

	s.saveDraft(ctx, snap.Session)
	s.emit(ctx, id, domain.SessionEvent{Kind: domain.EventDetailsUpdated, State: snap.State})
	return snap, nil
}

// SetBidAmount sets the maximum bid for the next placement. After a bid has
// been placed this prepares a higher bid: resolution flags are reset while
// the bidder, PIN and paddle number are kept.
func (s *KioskService) SetBidAmount(ctx context.Context, id string, cents int64) (Snapshot, error) {
	if cents <= 0 {
		return Snapshot{}, fmt.Errorf("kiosk_service: set bid: %w", domain.ErrInvalidBid)
	}
	snap, err := s.mutate(ctx, id, func(tx *transaction) error {
		tx.sess.RaiseBid(cents)
		tx.resetResult()
		return nil
	})
	if err != nil {
		return Snapshot{}, err
	}
	s.saveDraft(ctx, snap.Session)
	return snap, nil
}

// Fulfill starts an orchestrator run in the background and returns at once.
// Progress and the terminal result are published as session events and are
// visible through Snapshot. A session runs at most once at a time, here and
// on any other node sharing the lock manager.
func (s *KioskService) Fulfill(ctx context.Context, id string, placingBid bool) (Snapshot, error) {
	tx, err := s.lookup(ctx, id)
	if err != nil {
		return Snapshot{}, err
	}

	s.mu.Lock()
	if tx.busy() {
		s.mu.Unlock()
		return Snapshot{}, domain.ErrSessionBusy
	}
	if placingBid && tx.sess.BidAmountCents <= 0 {
		s.mu.Unlock()
		return Snapshot{}, fmt.Errorf("kiosk_service: fulfill %s: %w", id, domain.ErrInvalidBid)
	}
	tx.claimed = true
	tx.starting = true
	tx.cancelPending = false
	s.mu.Unlock()

	unlock := func() {}
	if s.locks != nil {
		u, err := s.locks.Acquire(ctx, "session:"+id, s.cfg.LockTTL)
		if err != nil {
			s.mu.Lock()
			tx.claimed = false
			tx.starting = false
			tx.cancelPending = false
			s.mu.Unlock()
			if errors.Is(err, domain.ErrLockHeld) {
				return Snapshot{}, domain.ErrSessionBusy
			}
			return Snapshot{}, fmt.Errorf("kiosk_service: fulfill %s: %w", id, err)
		}
		unlock = u
	}

	s.mu.Lock()
	if tx.cancelPending {
		tx.claimed = false
		tx.starting = false
		tx.cancelPending = false
		tx.state = domain.SessionStateCancelled
		tx.updatedAt = s.clock.Now()
		s.mu.Unlock()
		unlock()
		return Snapshot{}, fmt.Errorf("kiosk_service: fulfill %s: %w", id, domain.ErrRunCancelled)
	}
	runCtx, cancel := context.WithTimeout(s.root, s.cfg.RunTimeout)
	done := make(chan struct{})
	tx.claimed = false
	tx.starting = false
	tx.cancel = cancel
	tx.done = done
	tx.placingBid = placingBid
	tx.state = domain.SessionStateRunning
	tx.outcome = 0
	tx.failure = nil
	tx.updatedAt = s.clock.Now()
	work := tx.sess.Clone()
	snap := tx.snapshot()
	s.mu.Unlock()

	s.emit(ctx, id, domain.SessionEvent{Kind: domain.EventRunStarted, State: domain.SessionStateRunning})
	s.logger.InfoContext(ctx, "run started",
		slog.String("session_id", id),
		slog.Bool("placing_bid", placingBid),
	)

	s.wg.Add(1)
	go s.run(runCtx, cancel, tx, work, placingBid, unlock, done)
	return snap, nil
}

func (s *KioskService) run(
	ctx context.Context,
	cancel context.CancelFunc,
	tx *transaction,
	work *domain.Session,
	placingBid bool,
	unlock func(),
	done chan struct{},
) {
	defer s.wg.Done()
	defer close(done)

	res, err := s.placer.PerformActions(ctx, work, placingBid)
	cancelled := errors.Is(err, context.Canceled)
	cancel()
	unlock()

	s.mu.Lock()
	tx.sess = work
	tx.cancel = nil
	tx.updatedAt = s.clock.Now()
	switch {
	case cancelled:
		tx.state = domain.SessionStateCancelled
	case err != nil:
		tx.state = domain.SessionStateFailed
		tx.outcome = fulfillment.ClassifyFailure(placingBid, err)
		tx.failure = err
	default:
		tx.state = domain.SessionStateFinished
		tx.outcome = fulfillment.Classify(placingBid, res)
	}
	outcome := tx.outcome
	snap := tx.snapshot()
	s.mu.Unlock()

	sctx, scancel := context.WithTimeout(context.Background(), sideEffectTimeout)
	defer scancel()

	s.saveDraft(sctx, snap.Session)
	if cancelled {
		s.logger.InfoContext(sctx, "run cancelled", slog.String("session_id", work.ID))
		return
	}

	ev := domain.SessionEvent{State: snap.State, Outcome: outcome.String()}
	if err != nil {
		ev.Kind = domain.EventRunFailed
		ev.Step = snap.FailedStep
		ev.Message = err.Error()
	} else {
		ev.Kind = domain.EventRunFinished
		ev.Message = snap.Presentation.Title
	}
	s.emit(sctx, work.ID, ev)

	s.recordRun(sctx, work, placingBid, outcome, err)
	if path := s.archiveReceipt(sctx, work, placingBid, outcome); path != "" {
		s.mu.Lock()
		tx.receipt = path
		s.mu.Unlock()
	}
	s.auditLog(sctx, ev.Kind, work, map[string]any{
		"placing_bid": placingBid,
		"outcome":     outcome.String(),
		"step":        ev.Step,
	})

	if err != nil {
		s.logger.WarnContext(sctx, "run failed",
			slog.String("session_id", work.ID),
			slog.String("outcome", outcome.String()),
			slog.String("step", ev.Step),
			slog.Bool("retryable", domain.Retryable(err)),
			slog.String("error", err.Error()),
		)
		s.alert(sctx, notify.RunAlert{
			Event:          domain.EventRunFailed,
			KioskID:        s.cfg.KioskID,
			SessionID:      work.ID,
			AuctionID:      work.AuctionID,
			SaleArtworkID:  work.SaleArtworkID,
			PaddleNumber:   work.PaddleNumber,
			PlacingBid:     placingBid,
			BidAmountCents: work.BidAmountCents,
			Outcome:        outcome.String(),
			Step:           ev.Step,
			Err:            err,
		})
		return
	}
	s.logger.InfoContext(sctx, "run finished",
		slog.String("session_id", work.ID),
		slog.String("outcome", outcome.String()),
	)
}

// Cancel stops the session's run, if any, and waits for it to wind down. No
// terminal result is produced; the session keeps what completed steps wrote.
// A run that is still acquiring its lock is stopped before it starts.
func (s *KioskService) Cancel(ctx context.Context, id string) error {
	s.mu.Lock()
	tx, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return domain.ErrSessionNotFound
	}
	cancel, done := tx.cancel, tx.done
	pending := cancel == nil && tx.starting
	if pending {
		tx.cancelPending = true
	}
	s.mu.Unlock()

	switch {
	case pending:
	case cancel == nil:
		return nil
	default:
		cancel()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	s.emit(ctx, id, domain.SessionEvent{Kind: domain.EventRunCancelled, State: domain.SessionStateCancelled})
	s.auditLog(ctx, domain.EventRunCancelled, nil, map[string]any{"session_id": id})
	return nil
}

// ConfirmPIN logs a returning bidder in with the phone number on the session
// and pin. Attempts are limited per session; a wrong PIN returns an error
// matching domain.ErrAuthentication and leaves the session otherwise intact.
func (s *KioskService) ConfirmPIN(ctx context.Context, id, pin string) (Snapshot, error) {
	if pin == "" {
		return Snapshot{}, fmt.Errorf("kiosk_service: confirm pin: %w: pin", domain.ErrMissingField)
	}
	tx, err := s.lookup(ctx, id)
	if err != nil {
		return Snapshot{}, err
	}

	s.mu.Lock()
	if tx.busy() {
		s.mu.Unlock()
		return Snapshot{}, domain.ErrSessionBusy
	}
	if tx.sess.NewUser.Phone == "" {
		s.mu.Unlock()
		return Snapshot{}, fmt.Errorf("kiosk_service: confirm pin: %w: phone", domain.ErrMissingField)
	}
	tx.claimed = true
	work := tx.sess.Clone()
	s.mu.Unlock()

	if s.limiter != nil {
		ok, err := s.limiter.Allow(ctx, "pin:"+id, s.cfg.PINAttempts, s.cfg.PINWindow)
		if err != nil {
			s.logger.WarnContext(ctx, "pin rate limit check failed",
				slog.String("session_id", id),
				slog.String("error", err.Error()),
			)
		} else if !ok {
			s.mu.Lock()
			tx.claimed = false
			s.mu.Unlock()
			s.alert(ctx, notify.RunAlert{
				Event:     notify.EventPINLocked,
				KioskID:   s.cfg.KioskID,
				SessionID: id,
				AuctionID: work.AuctionID,
			})
			return Snapshot{}, domain.ErrTooManyAttempts
		}
	}

	status, err := s.pin.ConfirmPIN(ctx, work, pin)

	s.mu.Lock()
	tx.claimed = false
	tx.sess = work
	tx.updatedAt = s.clock.Now()
	if err == nil {
		tx.cardStatus = status
	}
	snap := tx.snapshot()
	s.mu.Unlock()

	s.saveDraft(ctx, snap.Session)
	if err != nil {
		if errors.Is(err, domain.ErrAuthentication) {
			s.emit(ctx, id, domain.SessionEvent{Kind: domain.EventPINRejected, State: snap.State, Message: "Wrong PIN"})
			s.auditLog(ctx, domain.EventPINRejected, work, nil)
		}
		return snap, err
	}

	s.emit(ctx, id, domain.SessionEvent{Kind: domain.EventPINConfirmed, State: snap.State, Message: status.String()})
	s.auditLog(ctx, domain.EventPINConfirmed, work, map[string]any{"card_status": status.String()})
	return snap, nil
}

// RetrieveBidderDetails asks the auction house to send a bidder their
// number and PIN. identifier is an email address or phone number.
func (s *KioskService) RetrieveBidderDetails(ctx context.Context, auctionID, identifier string) error {
	if identifier == "" {
		return fmt.Errorf("kiosk_service: bidder details: %w: identifier", domain.ErrMissingField)
	}
	if auctionID == "" {
		auctionID = s.cfg.DefaultAuctionID
	}
	if auctionID == "" {
		return fmt.Errorf("kiosk_service: bidder details: %w: auction_id", domain.ErrMissingField)
	}

	if s.limiter != nil {
		ok, err := s.limiter.Allow(ctx, "details:"+identifier, s.cfg.PINAttempts, s.cfg.PINWindow)
		if err == nil && !ok {
			return domain.ErrTooManyAttempts
		}
	}

	if err := s.pin.RetrieveBidderDetails(ctx, auctionID, identifier); err != nil {
		return err
	}
	s.auditLog(ctx, "bidder_details.sent", nil, map[string]any{"auction_id": auctionID})
	return nil
}

// RaiseBid sets a higher amount and places it in one step.
func (s *KioskService) RaiseBid(ctx context.Context, id string, cents int64) (Snapshot, error) {
	if _, err := s.SetBidAmount(ctx, id, cents); err != nil {
		return Snapshot{}, err
	}
	return s.Fulfill(ctx, id, true)
}

// Snapshot returns the current view of a session.
func (s *KioskService) Snapshot(ctx context.Context, id string) (Snapshot, error) {
	tx, err := s.lookup(ctx, id)
	if err != nil {
		return Snapshot{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return tx.snapshot(), nil
}

// End closes a transaction: any run is cancelled and awaited, and the
// session and its draft are discarded.
func (s *KioskService) End(ctx context.Context, id string) error {
	s.mu.Lock()
	tx, ok := s.sessions[id]
	var cancel context.CancelFunc
	var done chan struct{}
	if ok {
		cancel, done = tx.cancel, tx.done
		if cancel == nil && tx.starting {
			tx.cancelPending = true
		}
	}
	s.mu.Unlock()

	if !ok {
		if s.drafts == nil {
			return domain.ErrSessionNotFound
		}
		if _, err := s.drafts.Load(ctx, id); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.ErrSessionNotFound
			}
			return fmt.Errorf("kiosk_service: end %s: %w", id, err)
		}
	}

	if cancel != nil {
		cancel()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()

	if s.drafts != nil {
		if err := s.drafts.Delete(ctx, id); err != nil {
			s.logger.WarnContext(ctx, "delete draft failed",
				slog.String("session_id", id),
				slog.String("error", err.Error()),
			)
		}
	}
	s.emit(ctx, id, domain.SessionEvent{Kind: domain.EventSessionEnded})
	s.auditLog(ctx, domain.EventSessionEnded, nil, map[string]any{"session_id": id})
	return nil
}

// Events returns up to limit events of a session recorded after the stream
// id after ("0" or empty for the beginning).
func (s *KioskService) Events(ctx context.Context, id, after string, limit int) ([]EventEntry, error) {
	if s.bus == nil {
		return nil, nil
	}
	if after == "" {
		after = "0"
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	msgs, err := s.bus.StreamRead(ctx, domain.SessionStream(id), after, limit)
	if err != nil {
		return nil, fmt.Errorf("kiosk_service: events %s: %w", id, err)
	}

	out := make([]EventEntry, 0, len(msgs))
	for _, m := range msgs {
		var ev domain.SessionEvent
		if err := json.Unmarshal(m.Payload, &ev); err != nil {
			s.logger.WarnContext(ctx, "skipping malformed event",
				slog.String("session_id", id),
				slog.String("stream_id", m.ID),
			)
			continue
		}
		out = append(out, EventEntry{ID: m.ID, Event: ev})
	}
	return out, nil
}

// Runs lists the recorded runs of a session, oldest first.
func (s *KioskService) Runs(ctx context.Context, id string) ([]domain.FulfillmentRecord, error) {
	if s.runs == nil {
		return nil, nil
	}
	recs, err := s.runs.ListBySession(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("kiosk_service: runs %s: %w", id, err)
	}
	return recs, nil
}

// AuctionRuns lists recorded runs for an auction, newest first.
func (s *KioskService) AuctionRuns(ctx context.Context, auctionID string, opts domain.ListOpts) ([]domain.FulfillmentRecord, error) {
	if s.runs == nil {
		return nil, nil
	}
	recs, err := s.runs.ListByAuction(ctx, auctionID, opts)
	if err != nil {
		return nil, fmt.Errorf("kiosk_service: auction runs %s: %w", auctionID, err)
	}
	return recs, nil
}

// Receipt loads the receipt of the session's latest run.
func (s *KioskService) Receipt(ctx context.Context, id string) (*domain.Receipt, error) {
	tx, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	path := tx.receipt
	s.mu.Unlock()

	if s.receipts == nil || path == "" {
		return nil, domain.ErrNotFound
	}
	return s.receipts.Load(ctx, path)
}

// Sweep drops idle transactions not touched within the session TTL from
// memory. Their drafts expire from the draft store on their own.
func (s *KioskService) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, tx := range s.sessions {
		if tx.busy() || now.Sub(tx.updatedAt) < s.cfg.SessionTTL {
			continue
		}
		delete(s.sessions, id)
		n++
	}
	return n
}

// ActiveSessions returns the number of transactions held in memory.
func (s *KioskService) ActiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Shutdown cancels all runs and waits for them to finish or ctx to end.
func (s *KioskService) Shutdown(ctx context.Context) error {
	s.stop()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// mutate applies fn to an idle transaction and returns the new snapshot.
func (s *KioskService) mutate(ctx context.Context, id string, fn func(tx *transaction) error) (Snapshot, error) {
	tx, err := s.lookup(ctx, id)
	if err != nil {
		return Snapshot{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if tx.busy() {
		return Snapshot{}, domain.ErrSessionBusy
	}
	if err := fn(tx); err != nil {
		return Snapshot{}, err
	}
	tx.updatedAt = s.clock.Now()
	return tx.snapshot(), nil
}

// lookup finds a transaction in memory, falling back to its draft.
func (s *KioskService) lookup(ctx context.Context, id string) (*transaction, error) {
	s.mu.Lock()
	tx, ok := s.sessions[id]
	s.mu.Unlock()
	if ok {
		return tx, nil
	}
	if s.drafts == nil {
		return nil, domain.ErrSessionNotFound
	}

	sess, err := s.drafts.Load(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("kiosk_service: load draft %s: %w", id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.sessions[id]; ok {
		return existing, nil
	}
	tx = &transaction{
		sess:      sess,
		state:     domain.SessionStateCollecting,
		updatedAt: s.clock.Now(),
	}
	s.sessions[id] = tx
	s.logger.InfoContext(ctx, "session resumed from draft", slog.String("session_id", id))
	return tx, nil
}

func (s *KioskService) saveDraft(ctx context.Context, sess *domain.Session) {
	if s.drafts == nil {
		return
	}
	if err := s.drafts.Save(ctx, sess, s.cfg.SessionTTL); err != nil {
		s.logger.WarnContext(ctx, "save draft failed",
			slog.String("session_id", sess.ID),
			slog.String("error", err.Error()),
		)
	}
}

// emit publishes ev live and appends it to the session's history.
func (s *KioskService) emit(ctx context.Context, id string, ev domain.SessionEvent) {
	if s.bus == nil {
		return
	}
	ev.SessionID = id
	ev.At = s.clock.Now()
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, domain.SessionChannel(id), payload); err != nil {
		s.logger.WarnContext(ctx, "publish event failed",
			slog.String("session_id", id),
			slog.String("kind", ev.Kind),
			slog.String("error", err.Error()),
		)
	}
	if err := s.bus.StreamAppend(ctx, domain.SessionStream(id), payload, s.cfg.SessionTTL); err != nil {
		s.logger.WarnContext(ctx, "append event failed",
			slog.String("session_id", id),
			slog.String("kind", ev.Kind),
			slog.String("error", err.Error()),
		)
	}
}

func (s *KioskService) auditLog(ctx context.Context, event string, sess *domain.Session, extra map[string]any) {
	if s.audit == nil {
		return
	}
	detail := map[string]any{"kiosk_id": s.cfg.KioskID}
	if sess != nil {
		detail["session_id"] = sess.ID
		detail["auction_id"] = sess.AuctionID
		if sess.BidderID != "" {
			detail["bidder_id"] = sess.BidderID
		}
	}
	for k, v := range extra {
		detail[k] = v
	}
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func (s *KioskService) recordRun(ctx context.Context, sess *domain.Session, placingBid bool, outcome fulfillment.Outcome, runErr error) {
	if s.runs == nil {
		return
	}
	rec := domain.FulfillmentRecord{
		SessionID:      sess.ID,
		AuctionID:      sess.AuctionID,
		SaleArtworkID:  sess.SaleArtworkID,
		BidderID:       sess.BidderID,
		PaddleNumber:   sess.PaddleNumber,
		PlacingBid:     placingBid,
		BidAmountCents: sess.BidAmountCents,
		Outcome:        outcome.String(),
		Resolution:     sess.Resolution,
	}
	if runErr != nil {
		rec.FailedStep = stepOf(runErr)
		rec.Error = runErr.Error()
	}
	if err := s.runs.Insert(ctx, rec); err != nil {
		s.logger.WarnContext(ctx, "record run failed",
			slog.String("session_id", sess.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *KioskService) archiveReceipt(ctx context.Context, sess *domain.Session, placingBid bool, outcome fulfillment.Outcome) string {
	if s.receipts == nil {
		return ""
	}
	p := fulfillment.Present(outcome, placingBid, sess.Resolution)
	r := domain.Receipt{
		SessionID:     sess.ID,
		AuctionID:     sess.AuctionID,
		SaleArtworkID: sess.SaleArtworkID,
		BidderID:      sess.BidderID,
		PaddleNumber:  sess.PaddleNumber,
		PlacingBid:    placingBid,
		Outcome:       outcome.String(),
		Title:         p.Title,
		Message:       p.Message,
		Resolution:    sess.Resolution,
		IssuedAt:      s.clock.Now(),
	}
	if placingBid {
		r.BidAmountCents = sess.BidAmountCents
		r.BidAmount = domain.FormatCents(sess.BidAmountCents)
	}
	path, err := s.receipts.Archive(ctx, r)
	if err != nil {
		s.logger.WarnContext(ctx, "archive receipt failed",
			slog.String("session_id", sess.ID),
			slog.String("error", err.Error()),
		)
		return ""
	}
	return path
}

func (s *KioskService) alert(ctx context.Context, a notify.RunAlert) {
	if s.alerts == nil {
		return
	}
	if err := s.alerts.Alert(ctx, a); err != nil {
		s.logger.WarnContext(ctx, "staff alert failed",
			slog.String("session_id", a.SessionID),
			slog.String("error", err.Error()),
		)
	}
}

func stepOf(err error) string {
	var stepErr *domain.StepError
	if errors.As(err, &stepErr) {
		return stepErr.Step
	}
	return ""
}

func setIf(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
