package dedup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweeper runs Deduplicator.Sweep on a cron schedule.
type Sweeper struct {
	logger *slog.Logger
	cron   *cron.Cron
	dedup  *Deduplicator
}

// NewSweeper parses schedule (standard cron or "@every <duration>").
func NewSweeper(log *slog.Logger, d *Deduplicator, schedule string) (*Sweeper, error) {
	if log == nil {
		log = slog.Default()
	}
	s := &Sweeper{
		logger: log.With(slog.String("component", "dedup_sweeper")),
		cron:   cron.New(),
		dedup:  d,
	}
	if _, err := s.cron.AddFunc(schedule, s.run); err != nil {
		return nil, fmt.Errorf("dedup sweep schedule %q: %w", schedule, err)
	}
	return s, nil
}

func (s *Sweeper) run() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	n, err := s.dedup.Sweep(ctx)
	if err != nil {
		s.logger.Error("dedup sweep failed", slog.Any("error", err))
		return
	}
	if n > 0 {
		s.logger.Debug("dedup sweep", slog.Int64("purged", n))
	}
}

func (s *Sweeper) Start() {
	s.cron.Start()
}

// Stop halts the schedule and waits for a running sweep or ctx.
func (s *Sweeper) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
