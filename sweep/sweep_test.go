package sweep

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingCleaner struct {
	calls   atomic.Int32
	timeout atomic.Int64
}

func (c *countingCleaner) CleanupInactive(timeout time.Duration) int {
	c.calls.Add(1)
	c.timeout.Store(int64(timeout))
	return 1
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestSweeper_RunsOnScheduleUntilCancelled(t *testing.T) {
	cleaner := &countingCleaner{}
	s := New(cleaner, "@every 1s", 30*time.Minute, discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	assert.Eventually(t, func() bool { return cleaner.calls.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)
	assert.Equal(t, int64(30*time.Minute), cleaner.timeout.Load())

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestSweeper_RejectsBadSchedule(t *testing.T) {
	s := New(&countingCleaner{}, "every now and then", time.Minute, discard())
	err := s.Run(context.Background())
	assert.ErrorContains(t, err, "every now and then")
}
