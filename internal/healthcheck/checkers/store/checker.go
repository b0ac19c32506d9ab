package storechecker

import (
	"context"
	"log/slog"
	"time"

	"github.com/loubnaelmalali29-code/chip/internal/healthcheck"
)

const (
	checkTypeDedupStore = "dedup.store"
	defaultCheckTimeout = 3 * time.Second
)

// Pinger checks a backing store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Checker pings the dedup store.
type Checker struct {
	logger  *slog.Logger
	store   Pinger
	driver  string
	timeout time.Duration
}

// NewChecker creates a dedup store health checker.
func NewChecker(log *slog.Logger, store Pinger, driver string) *Checker {
	if log == nil {
		log = slog.Default()
	}
	return &Checker{
		logger:  log.With(slog.String("checker", "healthcheck_store")),
		store:   store,
		driver:  driver,
		timeout: defaultCheckTimeout,
	}
}

// ListChecks pings the store within the check timeout.
func (c *Checker) ListChecks(ctx context.Context) []healthcheck.CheckResult {
	if ctx == nil {
		ctx = context.Background()
	}
	item := healthcheck.CheckResult{
		ID:       checkTypeDedupStore + "." + c.driver,
		Type:     checkTypeDedupStore,
		Status:   healthcheck.StatusOK,
		Summary:  "Dedup store is reachable.",
		Metadata: map[string]any{"driver": c.driver},
	}
	if c.store == nil {
		item.Status = healthcheck.StatusError
		item.Summary = "Dedup store is not configured."
		return []healthcheck.CheckResult{item}
	}

	checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	start := time.Now()
	err := c.store.Ping(checkCtx)
	item.Metadata["latency_ms"] = time.Since(start).Milliseconds()
	if err != nil {
		c.logger.Warn("dedup store ping failed", slog.String("driver", c.driver), slog.Any("error", err))
		item.Status = healthcheck.StatusError
		item.Summary = "Dedup store is unreachable."
		item.Detail = err.Error()
	}
	return []healthcheck.CheckResult{item}
}
