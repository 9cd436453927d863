package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/txrelay/internal/peer"
	"github.com/roach88/txrelay/internal/store"
	"github.com/roach88/txrelay/internal/tx"
)

// Store is the subset of *store.Store the pipeline uses.
type Store interface {
	NextReadyIn(ctx context.Context, statuses []tx.Status) (*tx.Record, error)
	ClaimIn(ctx context.Context, statuses []tx.Status, worker string, lease time.Duration) (*tx.Record, error)
	UpdateFrom(ctx context.Context, rec tx.Record, expected tx.Status) error
	FailFrom(ctx context.Context, rec tx.Record, expected tx.Status) ([]string, error)
}

var _ Store = (*store.Store)(nil)

// Defaults for Config fields left at zero.
const (
	DefaultPollInterval = time.Second
	DefaultRetryBudget  = 5
	DefaultClaimLease   = 30 * time.Second
	DefaultAttemptTTL   = time.Hour
)

// persistTimeout bounds the status write that records a known broadcast
// outcome after shutdown has begun.
const persistTimeout = 5 * time.Second

// Config controls the dispatch loop.
type Config struct {
	// PollInterval is how long an idle worker waits before polling again.
	PollInterval time.Duration

	// RetryBudget is the number of transient broadcast failures after which
	// a transaction is marked failed.
	RetryBudget int

	// Workers is the number of concurrent workers. Above one, selection uses
	// Store.Claim.
	Workers int

	// ClaimLease is how long a claimed record is reserved for its worker.
	ClaimLease time.Duration

	// AttemptTTL is how long a transient failure count is remembered.
	AttemptTTL time.Duration
}

func (c *Config) withDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.RetryBudget <= 0 {
		c.RetryBudget = DefaultRetryBudget
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.ClaimLease <= 0 {
		c.ClaimLease = DefaultClaimLease
	}
	if c.AttemptTTL <= 0 {
		c.AttemptTTL = DefaultAttemptTTL
	}
}

// Outcome describes what a single Step did.
type Outcome int

const (
	// Idle means nothing was ready.
	Idle Outcome = iota
	// Progressed means a record changed status (or another worker moved it).
	Progressed
	// Backoff means work was attempted and should be retried after a wait:
	// a transient broadcast failure or a store error.
	Backoff
)

// String implements fmt.Stringer.
func (o Outcome) String() string {
	switch o {
	case Idle:
		return "idle"
	case Progressed:
		return "progressed"
	case Backoff:
		return "backoff"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Pipeline drives ready transactions through validation and propagation.
type Pipeline struct {
	store       Store
	broadcaster peer.Broadcaster
	validator   Validator
	cfg         Config
	attempts    *attempts
	wake        chan struct{} // buffered, size 1
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithValidator sets the payload validator. Default: NonEmpty.
func WithValidator(v Validator) Option {
	return func(p *Pipeline) {
		p.validator = v
	}
}

// New creates a Pipeline. Zero Config fields take their defaults.
func New(s Store, b peer.Broadcaster, cfg Config, opts ...Option) *Pipeline {
	cfg.withDefaults()

	p := &Pipeline{
		store:       s,
		broadcaster: b,
		validator:   NonEmpty,
		cfg:         cfg,
		attempts:    newAttempts(cfg.AttemptTTL),
		wake:        make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Config returns the effective configuration.
func (p *Pipeline) Config() Config {
	return p.cfg
}

// Notify wakes an idle worker early. Safe from any goroutine; never blocks.
// Multiple notifications before a worker wakes coalesce into one.
func (p *Pipeline) Notify() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Run starts the workers and blocks until ctx is cancelled, returning
// ctx.Err(), or until a worker hits an invariant violation, returning it.
func (p *Pipeline) Run(ctx context.Context) error {
	slog.Info("pipeline starting",
		"workers", p.cfg.Workers,
		"poll_interval", p.cfg.PollInterval,
		"retry_budget", p.cfg.RetryBudget,
	)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < p.cfg.Workers; i++ {
		worker := fmt.Sprintf("worker-%d", i)
		g.Go(func() error {
			return p.work(gctx, worker)
		})
	}

	err := g.Wait()
	if ctx.Err() != nil {
		slog.Info("pipeline stopping: context cancelled")
		return ctx.Err()
	}
	return err
}

func (p *Pipeline) work(ctx context.Context, worker string) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		outcome, err := p.Step(ctx, worker)
		if err != nil {
			slog.Error("pipeline worker failed", "worker", worker, "error", err)
			return err
		}
		if outcome == Progressed {
			continue
		}

		timer := time.NewTimer(p.cfg.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		case <-p.wake:
			timer.Stop()
		}
	}
}

// workable lists the statuses a worker picks from. One dispatch order ranks
// them together, so a validated record being retried never jumps ahead of a
// better-ranked pending one.
var workable = []tx.Status{tx.StatusPending, tx.StatusValidated}

// Step performs at most one unit of work for worker: it takes the
// best-ranked ready record and validates it if pending or broadcasts it if
// validated.
//
// A non-nil error is an invariant violation (a selected record vanished)
// and should stop the pipeline. Store outages are logged and reported as
// Backoff.
func (p *Pipeline) Step(ctx context.Context, worker string) (Outcome, error) {
	rec, err := p.next(ctx, worker)
	if err != nil {
		return p.storeFailure(ctx, "select", "", err)
	}
	if rec == nil {
		return Idle, nil
	}

	switch rec.Status {
	case tx.StatusPending:
		return p.validate(ctx, *rec)
	case tx.StatusValidated:
		return p.propagate(ctx, *rec)
	}
	return Idle, fmt.Errorf("select: invariant violated: %s selected in status %s", rec.ID, rec.Status)
}

func (p *Pipeline) next(ctx context.Context, worker string) (*tx.Record, error) {
	if p.cfg.Workers > 1 {
		return p.store.ClaimIn(ctx, workable, worker, p.cfg.ClaimLease)
	}
	return p.store.NextReadyIn(ctx, workable)
}

func (p *Pipeline) validate(ctx context.Context, rec tx.Record) (Outcome, error) {
	if err := p.validator.Validate(ctx, rec.Raw); err != nil {
		if ctx.Err() != nil {
			return Idle, nil
		}
		slog.Warn("transaction failed validation", "id", rec.ID, "error", err)
		return p.fail(ctx, rec, err)
	}

	return p.transition(ctx, rec, tx.StatusValidated)
}

func (p *Pipeline) propagate(ctx context.Context, rec tx.Record) (Outcome, error) {
	err := p.broadcaster.Broadcast(ctx, rec.Raw)

	if err == nil {
		p.attempts.reset(rec.ID)
		// The broadcast happened; record it even if shutdown has begun.
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
		defer cancel()
		outcome, terr := p.transition(wctx, rec, tx.StatusPropagated)
		if terr == nil && outcome == Progressed {
			slog.Info("transaction propagated", "id", rec.ID, "priority", rec.Priority)
		}
		return outcome, terr
	}

	if ctx.Err() != nil {
		// Outcome unknown: leave the record for the next start.
		slog.Info("broadcast abandoned at shutdown", "id", rec.ID, "error", err)
		return Idle, nil
	}

	if peer.IsPermanent(err) {
		slog.Warn("broadcast rejected", "id", rec.ID, "error", err)
		p.attempts.reset(rec.ID)
		return p.fail(ctx, rec, err)
	}

	n := p.attempts.record(rec.ID)
	if n >= p.cfg.RetryBudget {
		slog.Warn("retry budget exhausted",
			"id", rec.ID,
			"attempts", n,
			"error", err,
		)
		p.attempts.reset(rec.ID)
		return p.fail(ctx, rec, err)
	}

	slog.Debug("broadcast failed, will retry",
		"id", rec.ID,
		"attempt", n,
		"budget", p.cfg.RetryBudget,
		"error", err,
	)
	return Backoff, nil
}

// fail moves rec to failed, together with everything that depends on it.
func (p *Pipeline) fail(ctx context.Context, rec tx.Record, cause error) (Outcome, error) {
	dependents, err := p.store.FailFrom(ctx, rec, rec.Status)
	switch {
	case err == nil:
	case store.IsStatusConflict(err):
		slog.Debug("transaction moved by another worker", "id", rec.ID, "error", err)
		return Progressed, nil
	default:
		return p.storeFailure(ctx, "fail", rec.ID, err)
	}

	slog.Info("transaction failed", "id", rec.ID, "cause", cause)
	if len(dependents) > 0 {
		slog.Info("dependents failed", "id", rec.ID, "dependents", dependents)
	}
	return Progressed, nil
}

// transition writes rec with status to, guarded on its selected status.
func (p *Pipeline) transition(ctx context.Context, rec tx.Record, to tx.Status) (Outcome, error) {
	from := rec.Status
	rec.Status = to

	err := p.store.UpdateFrom(ctx, rec, from)
	switch {
	case err == nil:
		slog.Debug("transaction status changed", "id", rec.ID, "from", from, "to", to)
		return Progressed, nil
	case store.IsStatusConflict(err):
		slog.Debug("transaction moved by another worker", "id", rec.ID, "error", err)
		return Progressed, nil
	default:
		return p.storeFailure(ctx, "update status", rec.ID, err)
	}
}

// storeFailure decides whether a store error is fatal.
func (p *Pipeline) storeFailure(ctx context.Context, op, id string, err error) (Outcome, error) {
	if store.IsNotFound(err) || store.IsInvalidTransition(err) {
		return Idle, fmt.Errorf("%s: invariant violated: %w", op, err)
	}
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return Idle, nil
	}
	slog.Warn("store unavailable, retrying next cycle", "op", op, "id", id, "error", err)
	return Backoff, nil
}
