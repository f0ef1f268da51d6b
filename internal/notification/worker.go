package notification

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"parkir-status-backend/internal/model"
)

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// SubscriptionStore is the subset of the store the workers need.
type SubscriptionStore interface {
	SubscriptionsForLocation(ctx context.Context, locationID int64) ([]model.PushSubscription, error)
	DeleteSubscription(ctx context.Context, endpoint string) error
}

// Job announces a committed status change for one location.
type Job struct {
	LocationID int64
	Name       string
	Status     model.Status
}

// WorkerPool manages a pool of workers for sending notifications.
type WorkerPool struct {
	size    int
	jobs    chan Job
	store   SubscriptionStore
	webpush *webpush.Options
	sender  NotificationSender
	limiter *rate.Limiter
	log     *zap.Logger
	wg      sync.WaitGroup
}

// Option configures a WorkerPool.
type Option func(*WorkerPool)

// WithSendRate throttles sends across all workers to r per second with the
// given burst.
func WithSendRate(r rate.Limit, burst int) Option {
	return func(wp *WorkerPool) { wp.limiter = rate.NewLimiter(r, burst) }
}

// NewWorkerPool creates a new worker pool. Sends are unthrottled unless
// WithSendRate is given.
func NewWorkerPool(size int, store SubscriptionStore, webpushOptions *webpush.Options, log *zap.Logger, opts ...Option) *WorkerPool {
	wp := &WorkerPool{
		size:    size,
		jobs:    make(chan Job, size*8),
		store:   store,
		webpush: webpushOptions,
		sender:  &WebPushSender{}, // Use the real sender by default
		limiter: rate.NewLimiter(rate.Inf, 1),
		log:     log,
	}
	for _, opt := range opts {
		opt(wp)
	}
	return wp
}

// Start launches the worker goroutines. They exit when ctx is done; queued
// jobs are dropped.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		wp.wg.Add(1)
		go wp.worker(ctx, i)
	}
}

// Wait blocks until every worker has exited.
func (wp *WorkerPool) Wait() {
	wp.wg.Wait()
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	defer wp.wg.Done()
	wp.log.Debug("notification worker started", zap.Int("worker", id))
	for {
		select {
		case job := <-wp.jobs:
			wp.sendNotificationsForLocation(ctx, job)
		case <-ctx.Done():
			wp.log.Debug("notification worker shutting down", zap.Int("worker", id))
			return
		}
	}
}

// Dispatch queues a job without blocking. It reports false when the queue is
// full and the job was dropped.
func (wp *WorkerPool) Dispatch(job Job) bool {
	select {
	case wp.jobs <- job:
		return true
	default:
		wp.log.Warn("notification queue full, dropping job", zap.Int64("location_id", job.LocationID))
		return false
	}
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan Job {
	return wp.jobs
}

func (wp *WorkerPool) sendNotificationsForLocation(ctx context.Context, job Job) {
	subscriptions, err := wp.store.SubscriptionsForLocation(ctx, job.LocationID)
	if err != nil {
		wp.log.Error("failed to fetch subscriptions", zap.Int64("location_id", job.LocationID), zap.Error(err))
		return
	}
	if len(subscriptions) == 0 {
		return
	}

	label := job.Name
	if label == "" {
		label = fmt.Sprintf("%d", job.LocationID)
	}
	message := fmt.Sprintf("Lokasi %s sekarang %s", label, job.Status)

	wp.log.Info("sending push notifications",
		zap.Int64("location_id", job.LocationID),
		zap.Int("subscriptions", len(subscriptions)),
	)
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, []byte(message))
	}
}

func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	if err := wp.limiter.Wait(ctx); err != nil {
		wp.log.Debug("notification send abandoned", zap.String("endpoint", sub.Endpoint), zap.Error(err))
		return
	}
	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		wp.log.Warn("failed to send notification", zap.String("endpoint", sub.Endpoint), zap.Error(err))
		return
	}
	defer resp.Body.Close()

	// Handle expired subscriptions
	if resp.StatusCode == http.StatusGone {
		wp.log.Info("subscription expired, deleting", zap.String("endpoint", sub.Endpoint))
		if err := wp.store.DeleteSubscription(ctx, sub.Endpoint); err != nil {
			wp.log.Warn("failed to delete expired subscription", zap.String("endpoint", sub.Endpoint), zap.Error(err))
		}
	}
}
