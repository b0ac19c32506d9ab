package dedup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// FailurePolicy decides the outcome when the store cannot be reached.
type FailurePolicy string

const (
	// FailOpen processes the message anyway, risking a duplicate reply.
	FailOpen FailurePolicy = "fail_open"
	// FailClosed drops the message, risking a missed reply.
	FailClosed FailurePolicy = "fail_closed"
)

// ParseFailurePolicy accepts "fail_open" and "fail_closed".
func ParseFailurePolicy(raw string) (FailurePolicy, error) {
	switch p := FailurePolicy(strings.ToLower(strings.TrimSpace(raw))); p {
	case FailOpen, FailClosed:
		return p, nil
	case "":
		return FailOpen, nil
	default:
		return "", fmt.Errorf("unknown dedup failure policy: %s", raw)
	}
}

// ErrEmptyID is returned for a blank message id.
var ErrEmptyID = errors.New("message id is required")

// Deduplicator gates processing on the first sighting of a message id.
type Deduplicator struct {
	logger *slog.Logger
	store  Store
	window time.Duration
	policy FailurePolicy
	now    func() time.Time
}

// Options configures a Deduplicator.
type Options struct {
	Window time.Duration
	Policy FailurePolicy
	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

func New(log *slog.Logger, store Store, opts Options) *Deduplicator {
	if log == nil {
		log = slog.Default()
	}
	if opts.Window <= 0 {
		opts.Window = time.Hour
	}
	if opts.Policy == "" {
		opts.Policy = FailOpen
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Deduplicator{
		logger: log.With(slog.String("component", "dedup")),
		store:  store,
		window: opts.Window,
		policy: opts.Policy,
		now:    opts.Now,
	}
}

// Window returns the retention window.
func (d *Deduplicator) Window() time.Duration { return d.window }

// Policy returns the store failure policy.
func (d *Deduplicator) Policy() FailurePolicy { return d.policy }

// ShouldProcess records id as seen and reports whether this caller owns its
// processing. Concurrent calls for one id return true for exactly one
// caller. On a store failure the configured policy decides the result and
// the wrapped ErrStoreUnavailable is returned alongside it.
func (d *Deduplicator) ShouldProcess(ctx context.Context, id string) (bool, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return false, ErrEmptyID
	}
	fresh, err := d.store.Insert(ctx, id, d.now(), d.window)
	if err != nil {
		allow := d.policy == FailOpen
		d.logger.Warn("dedup store failed",
			slog.String("message_id", id),
			slog.String("policy", string(d.policy)),
			slog.Bool("process", allow),
			slog.Any("error", err))
		return allow, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return fresh, nil
}

// Release forgets id so a redelivery is processed again. It is used when a
// message passed the gate but could not be handed off.
func (d *Deduplicator) Release(ctx context.Context, id string) error {
	if err := d.store.Delete(ctx, strings.TrimSpace(id)); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return nil
}

// Sweep purges records older than the window.
func (d *Deduplicator) Sweep(ctx context.Context) (int64, error) {
	n, err := d.store.Purge(ctx, d.now().Add(-d.window))
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return n, nil
}

// Ping checks the backing store.
func (d *Deduplicator) Ping(ctx context.Context) error {
	return d.store.Ping(ctx)
}
