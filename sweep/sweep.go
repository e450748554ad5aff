// Package sweep runs the liveness sweep on a cron schedule.
package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Cleaner evicts connections idle for longer than timeout and reports how many it removed.
type Cleaner interface {
	CleanupInactive(timeout time.Duration) int
}

type Sweeper struct {
	cleaner  Cleaner
	schedule string
	timeout  time.Duration
	logger   *slog.Logger
}

func New(c Cleaner, schedule string, timeout time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		cleaner:  c,
		schedule: schedule,
		timeout:  timeout,
		logger:   logger.With("component", "sweep"),
	}
}

// Run sweeps on schedule until ctx is cancelled, then waits for an in-flight sweep to finish.
func (s *Sweeper) Run(ctx context.Context) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(s.schedule, s.sweep); err != nil {
		return fmt.Errorf("schedule %q: %w", s.schedule, err)
	}

	s.logger.Info("liveness sweep scheduled", "schedule", s.schedule, "timeout", s.timeout)
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

func (s *Sweeper) sweep() {
	if n := s.cleaner.CleanupInactive(s.timeout); n > 0 {
		s.logger.Info("evicted inactive connections", "count", n)
		return
	}
	s.logger.Debug("no inactive connections")
}
