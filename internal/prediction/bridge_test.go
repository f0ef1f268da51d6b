package prediction

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"parkir-status-backend/config"
	"parkir-status-backend/internal/metrics"
	"parkir-status-backend/internal/model"
)

type fakeScorer struct {
	class   int
	err     error
	release chan struct{}

	calls    atomic.Int32
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (f *fakeScorer) Score(ctx context.Context, hour, day int) (int, error) {
	f.calls.Add(1)
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		seen := f.maxSeen.Load()
		if n <= seen || f.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}

	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	return f.class, f.err
}

func newTestBridge(t *testing.T, scorer Scorer, cfg config.PredictionConfig) *Bridge {
	t.Helper()
	b := NewBridge(scorer, cfg, zap.NewNop(), metrics.New())
	b.now = func() time.Time { return time.Date(2026, 10, 16, 1, 0, 0, 0, time.UTC) }

	ctx, cancel := context.WithCancel(context.Background())
	b.Start(ctx)
	t.Cleanup(func() {
		cancel()
		b.Wait()
	})
	return b
}

func defaultConfig() config.PredictionConfig {
	return config.PredictionConfig{
		Workers:      2,
		QueueSize:    4,
		Timeout:      time.Second,
		QueueTimeout: time.Second,
	}
}

func TestBridge_Predict(t *testing.T) {
	testCases := []struct {
		name       string
		scorer     *fakeScorer
		expected   model.Status
		expectFail bool
	}{
		{name: "Class 0 maps to kosong", scorer: &fakeScorer{class: 0}, expected: model.StatusEmpty},
		{name: "Class 1 maps to ramai", scorer: &fakeScorer{class: 1}, expected: model.StatusBusy},
		{name: "Class 2 maps to penuh", scorer: &fakeScorer{class: 2}, expected: model.StatusFull},
		{name: "Out of range class fails", scorer: &fakeScorer{class: 3}, expectFail: true},
		{name: "Scorer error fails", scorer: &fakeScorer{err: errors.New("Traceback: model.pkl missing")}, expectFail: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			b := newTestBridge(t, tc.scorer, defaultConfig())

			res, err := b.Predict(context.Background(), Request{LocationID: 5, Hour: 8, Day: 1})
			if tc.expectFail {
				assert.ErrorIs(t, err, ErrPredictionFailed)
				assert.NotContains(t, err.Error(), "Traceback")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, res.Status)
			assert.Equal(t, 8, res.Hour)
			assert.Equal(t, 1, res.Day)
			assert.Equal(t, "Senin", res.DayName)
			assert.Equal(t, int32(1), tc.scorer.calls.Load())
		})
	}
}

func TestBridge_TimeoutFails(t *testing.T) {
	scorer := &fakeScorer{release: make(chan struct{})}
	cfg := defaultConfig()
	cfg.Timeout = 50 * time.Millisecond
	b := newTestBridge(t, scorer, cfg)

	start := time.Now()
	_, err := b.Predict(context.Background(), Request{Hour: 1, Day: 1})
	assert.ErrorIs(t, err, ErrPredictionFailed)
	assert.Less(t, time.Since(start), time.Second)
}

func TestBridge_CapsConcurrentScorers(t *testing.T) {
	scorer := &fakeScorer{class: 1, release: make(chan struct{})}
	cfg := config.PredictionConfig{
		Workers:      2,
		QueueSize:    0,
		Timeout:      5 * time.Second,
		QueueTimeout: 50 * time.Millisecond,
	}
	b := newTestBridge(t, scorer, cfg)

	const requests = 5
	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		failures  atomic.Int32
	)
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := b.Predict(context.Background(), Request{Hour: 10, Day: 3})
			if err != nil {
				assert.ErrorIs(t, err, ErrPredictionFailed)
				failures.Add(1)
				return
			}
			successes.Add(1)
		}()
	}

	require.Eventually(t, func() bool { return scorer.inFlight.Load() == 2 }, time.Second, 5*time.Millisecond)
	// Give the queued callers time to hit the queue timeout.
	time.Sleep(200 * time.Millisecond)
	close(scorer.release)
	wg.Wait()

	assert.Equal(t, int32(2), scorer.maxSeen.Load())
	assert.Equal(t, int32(2), successes.Load())
	assert.Equal(t, int32(3), failures.Load())
	assert.Equal(t, int32(2), scorer.calls.Load())
}

func TestBridge_CancelledCallerSkipsScorer(t *testing.T) {
	scorer := &fakeScorer{class: 1}
	b := newTestBridge(t, scorer, defaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := b.Predict(ctx, Request{Hour: 10, Day: 3})
	assert.ErrorIs(t, err, ErrPredictionFailed)
	assert.Equal(t, int32(0), scorer.calls.Load())
}

func TestBridge_PredictAfterShutdownFails(t *testing.T) {
	scorer := &fakeScorer{class: 1}
	cfg := defaultConfig()
	cfg.QueueTimeout = 0
	b := NewBridge(scorer, cfg, zap.NewNop(), metrics.New())

	ctx, cancel := context.WithCancel(context.Background())
	b.Start(ctx)
	cancel()
	b.Wait()

	errs := make(chan error, 1)
	go func() {
		_, err := b.Predict(context.Background(), Request{Hour: 10, Day: 3})
		errs <- err
	}()

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, ErrPredictionFailed)
	case <-time.After(time.Second):
		t.Fatal("Predict blocked after the workers exited")
	}
	assert.Equal(t, int32(0), scorer.calls.Load())
}
