package prediction

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"parkir-status-backend/config"
	"parkir-status-backend/internal/metrics"
	"parkir-status-backend/internal/model"
)

var errBridgeStopped = errors.New("prediction workers have stopped")

type job struct {
	ctx    context.Context
	req    Request
	result chan outcome
}

type outcome struct {
	status model.Status
	err    error
}

// Bridge caps the number of concurrently running scorer invocations with a
// fixed set of workers reading from a bounded queue.
type Bridge struct {
	scorer       Scorer
	workers      int
	queue        chan job
	timeout      time.Duration
	queueTimeout time.Duration
	log          *zap.Logger
	metrics      *metrics.Metrics
	now          func() time.Time
	wg           sync.WaitGroup
	stopped      chan struct{}
}

// NewBridge creates a bridge sized from cfg. Workers must be started with Start.
func NewBridge(scorer Scorer, cfg config.PredictionConfig, log *zap.Logger, m *metrics.Metrics) *Bridge {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	return &Bridge{
		scorer:       scorer,
		workers:      workers,
		queue:        make(chan job, cfg.QueueSize),
		timeout:      cfg.Timeout,
		queueTimeout: cfg.QueueTimeout,
		log:          log,
		metrics:      m,
		now:          time.Now,
		stopped:      make(chan struct{}),
	}
}

// Start launches the worker goroutines. They exit when ctx is done, after
// which Predict fails immediately. Start must be called at most once.
func (b *Bridge) Start(ctx context.Context) {
	for i := 0; i < b.workers; i++ {
		b.wg.Add(1)
		go b.worker(ctx, i)
	}
	go func() {
		b.wg.Wait()
		close(b.stopped)
	}()
}

// Wait blocks until every worker has exited.
func (b *Bridge) Wait() {
	b.wg.Wait()
}

func (b *Bridge) worker(ctx context.Context, id int) {
	defer b.wg.Done()
	b.log.Debug("prediction worker started", zap.Int("worker", id))
	for {
		select {
		case j := <-b.queue:
			j.result <- b.run(j)
		case <-ctx.Done():
			b.log.Debug("prediction worker shutting down", zap.Int("worker", id))
			return
		}
	}
}

func (b *Bridge) run(j job) outcome {
	if err := j.ctx.Err(); err != nil {
		return outcome{err: err}
	}

	ctx := j.ctx
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	start := time.Now()
	class, err := b.scorer.Score(ctx, j.req.Hour, j.req.Day)
	b.metrics.PredictionDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return outcome{err: err}
	}

	status, ok := model.StatusFromClass(class)
	if !ok {
		return outcome{err: fmt.Errorf("scorer returned out-of-range class %d", class)}
	}
	return outcome{status: status}
}

// Predict queues req and waits for a worker to score it. If no queue slot
// frees up within the queue timeout the request fails without spawning a
// process. Every failure is reported as ErrPredictionFailed.
func (b *Bridge) Predict(ctx context.Context, req Request) (Result, error) {
	j := job{ctx: ctx, req: req, result: make(chan outcome, 1)}

	var wait <-chan time.Time
	if b.queueTimeout > 0 {
		timer := time.NewTimer(b.queueTimeout)
		defer timer.Stop()
		wait = timer.C
	}

	select {
	case <-b.stopped:
		return Result{}, b.fail(req, "shutdown", errBridgeStopped)
	default:
	}

	select {
	case b.queue <- j:
	case <-b.stopped:
		return Result{}, b.fail(req, "shutdown", errBridgeStopped)
	case <-wait:
		return Result{}, b.fail(req, "queue_timeout", fmt.Errorf("no worker available within %s", b.queueTimeout))
	case <-ctx.Done():
		return Result{}, b.fail(req, "cancelled", ctx.Err())
	}

	var out outcome
	select {
	case out = <-j.result:
	case <-b.stopped:
		// A worker may have answered just before exiting.
		select {
		case out = <-j.result:
		default:
			return Result{}, b.fail(req, "shutdown", errBridgeStopped)
		}
	case <-ctx.Done():
		return Result{}, b.fail(req, "cancelled", ctx.Err())
	}
	if out.err != nil {
		return Result{}, b.fail(req, "failed", out.err)
	}

	b.metrics.PredictionsTotal.WithLabelValues("success").Inc()
	return Result{
		Status:    out.status,
		Hour:      req.Hour,
		Day:       req.Day,
		DayName:   DayName(req.Day),
		Timestamp: b.now().UTC(),
	}, nil
}

func (b *Bridge) fail(req Request, reason string, cause error) error {
	b.metrics.PredictionsTotal.WithLabelValues(reason).Inc()
	b.log.Error("prediction failed",
		zap.String("outcome", reason),
		zap.Int64("location_id", req.LocationID),
		zap.Int("hour", req.Hour),
		zap.Int("day", req.Day),
		zap.Error(cause),
	)
	return ErrPredictionFailed
}
