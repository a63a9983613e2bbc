package autosync_test

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ganot/dayloop/internal/autosync"
)

type countingSyncer struct {
	calls atomic.Int32
}

func (c *countingSyncer) SyncNow(ctx context.Context, now time.Time) error {
	c.calls.Add(1)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWorker_TriggersSync(t *testing.T) {
	syncer := &countingSyncer{}
	worker := autosync.New(syncer, 10*time.Millisecond, testLogger())

	worker.Start(context.Background())
	defer worker.Stop()

	require.Eventually(t, func() bool {
		return syncer.calls.Load() >= 2
	}, 2*time.Second, 5*time.Millisecond)
}

func TestWorker_StopHaltsLoop(t *testing.T) {
	syncer := &countingSyncer{}
	worker := autosync.New(syncer, 5*time.Millisecond, testLogger())

	worker.Start(context.Background())
	require.Eventually(t, func() bool {
		return syncer.calls.Load() >= 1
	}, 2*time.Second, time.Millisecond)

	worker.Stop()
	worker.Stop() // idempotent

	settled := syncer.calls.Load()
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, settled, syncer.calls.Load())
}

func TestWorker_ContextCancelHaltsLoop(t *testing.T) {
	syncer := &countingSyncer{}
	worker := autosync.New(syncer, 5*time.Millisecond, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	worker.Start(ctx)
	defer worker.Stop()

	cancel()
	time.Sleep(20 * time.Millisecond)
	settled := syncer.calls.Load()
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, settled, syncer.calls.Load())
}
