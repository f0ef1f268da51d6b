package report

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"parkir-status-backend/internal/broadcast"
	"parkir-status-backend/internal/metrics"
	"parkir-status-backend/internal/model"
	"parkir-status-backend/internal/notification"
	"parkir-status-backend/internal/store"
)

// Store is the subset of store.Store used to apply reports.
type Store interface {
	Get(ctx context.Context, id int64) (*model.Location, error)
	ApplyReport(ctx context.Context, id int64, status model.Status, at time.Time) (*model.Location, error)
}

// Invalidator drops cached reads after a commit.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Publisher announces the new listing to live subscribers.
type Publisher interface {
	PublishListing(ctx context.Context) broadcast.Kind
}

// Notifier queues push notifications for followers of a location.
type Notifier interface {
	Dispatch(job notification.Job) bool
}

// Input is a decoded report body. A zero LocationID means the field was absent.
type Input struct {
	LocationID int64  `json:"lokasiId"`
	Status     string `json:"status"`
}

// Service applies crowd-sourced reports and fans out the result.
type Service struct {
	store     Store
	cache     Invalidator
	publisher Publisher
	notifier  Notifier
	log       *zap.Logger
	metrics   *metrics.Metrics
	locks     *keyedMutex
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithNotifier enables push notifications for committed reports.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithClock overrides the time source used for updated_at.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(st Store, cache Invalidator, publisher Publisher, log *zap.Logger, m *metrics.Metrics, opts ...Option) *Service {
	s := &Service{
		store:     st,
		cache:     cache,
		publisher: publisher,
		log:       log,
		metrics:   m,
		locks:     newKeyedMutex(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit validates in, then updates the location status and appends the
// report in one transaction. Cache invalidation, broadcast and push
// notifications run after the commit and never change the result.
func (s *Service) Submit(ctx context.Context, in Input) (*model.Location, error) {
	if in.LocationID == 0 || in.Status == "" {
		s.metrics.ReportsTotal.WithLabelValues("invalid").Inc()
		return nil, missingFields()
	}
	status, err := model.ParseStatus(in.Status)
	if err != nil {
		s.metrics.ReportsTotal.WithLabelValues("invalid").Inc()
		return nil, invalidStatus()
	}

	if _, err := s.store.Get(ctx, in.LocationID); err != nil {
		return nil, s.storeError(in.LocationID, err)
	}

	unlock := s.locks.Lock(in.LocationID)
	defer unlock()

	loc, err := s.store.ApplyReport(ctx, in.LocationID, status, s.now().UTC())
	if err != nil {
		return nil, s.storeError(in.LocationID, err)
	}
	s.metrics.ReportsTotal.WithLabelValues("success").Inc()
	s.log.Info("report applied",
		zap.Int64("location_id", loc.ID),
		zap.String("status", string(loc.Status)),
	)

	// The caller may disconnect once the commit is done; fan-out still runs.
	s.afterCommit(context.WithoutCancel(ctx), loc)
	return loc, nil
}

func (s *Service) storeError(id int64, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		s.metrics.ReportsTotal.WithLabelValues("not_found").Inc()
		return err
	}
	s.metrics.ReportsTotal.WithLabelValues("failed").Inc()
	s.log.Error("report transaction failed", zap.Int64("location_id", id), zap.Error(err))
	return fmt.Errorf("%w: %w", ErrUpstream, err)
}

func (s *Service) afterCommit(ctx context.Context, loc *model.Location) {
	if err := s.cache.Invalidate(ctx); err != nil {
		s.log.Warn("failed to invalidate cache after report", zap.Int64("location_id", loc.ID), zap.Error(err))
	}

	if kind := s.publisher.PublishListing(ctx); kind == broadcast.KindError {
		s.log.Warn("broadcast after report carried an error event", zap.Int64("location_id", loc.ID))
	}

	if s.notifier != nil {
		s.notifier.Dispatch(notification.Job{LocationID: loc.ID, Name: loc.Name, Status: loc.Status})
	}
}
