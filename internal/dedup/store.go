// Package dedup enforces at-most-once processing of inbound provider
// messages within a retention window.
package dedup

import (
	"context"
	"errors"
	"time"
)

// ErrStoreUnavailable wraps any failure of the backing store.
var ErrStoreUnavailable = errors.New("dedup store unavailable")

// Store records message ids. Insert must be a single atomic
// check-and-record: it reports true only when id was unseen, or when its
// record is older than window, and in both cases stamps it with now.
type Store interface {
	Insert(ctx context.Context, id string, now time.Time, window time.Duration) (bool, error)
	// Delete drops the record for id.
	Delete(ctx context.Context, id string) error
	// Purge removes records seen before the cutoff and returns how many.
	Purge(ctx context.Context, before time.Time) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}
