package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"parkir-status-backend/internal/model"
)

var (
	// ErrNotFound is returned when a location id does not exist.
	ErrNotFound = errors.New("location not found")
	// ErrSubscriptionNotFound is returned when no push subscription has the endpoint.
	ErrSubscriptionNotFound = errors.New("subscription not found")
)

// StatusCount is one row of the per-status aggregate.
type StatusCount struct {
	Status model.Status `json:"status"`
	Total  int64        `json:"total"`
}

// Store defines the interface for all database operations.
type Store interface {
	Get(ctx context.Context, id int64) (*model.Location, error)
	List(ctx context.Context) ([]model.Location, error)
	ListFiltered(ctx context.Context, q Query) ([]model.Location, error)
	ApplyReport(ctx context.Context, id int64, status model.Status, at time.Time) (*model.Location, error)
	CountByStatus(ctx context.Context) ([]StatusCount, error)
	SubscriptionsForLocation(ctx context.Context, locationID int64) ([]model.PushSubscription, error)
	GetSubscription(ctx context.Context, endpoint string) (*model.PushSubscription, error)
	SaveSubscription(ctx context.Context, sub *model.PushSubscription, locationIDs []int64) error
	DeleteSubscription(ctx context.Context, endpoint string) error
	Ping(ctx context.Context) error
	DB() *gorm.DB
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db      *gorm.DB
	timeout time.Duration
}

// NewGormStore creates a new GORM-backed store. Every operation is bounded by
// timeout so that an exhausted connection pool fails instead of blocking.
func NewGormStore(db *gorm.DB, timeout time.Duration) Store {
	return &gormStore{db: db, timeout: timeout}
}

func (s *gormStore) DB() *gorm.DB { return s.db }

func (s *gormStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// Get returns a single location by id.
func (s *gormStore) Get(ctx context.Context, id int64) (*model.Location, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var loc model.Location
	if err := s.db.WithContext(ctx).First(&loc, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get location %d: %w", id, err)
	}
	return &loc, nil
}

// List returns every location ordered by id.
func (s *gormStore) List(ctx context.Context) ([]model.Location, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	locations := make([]model.Location, 0)
	if err := s.db.WithContext(ctx).Order("id").Find(&locations).Error; err != nil {
		return nil, fmt.Errorf("failed to list locations: %w", err)
	}
	return locations, nil
}

// ListFiltered returns the locations matching a validated Query.
func (s *gormStore) ListFiltered(ctx context.Context, q Query) ([]model.Location, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	locations := make([]model.Location, 0)
	if err := q.apply(s.db.WithContext(ctx)).Find(&locations).Error; err != nil {
		return nil, fmt.Errorf("failed to list filtered locations: %w", err)
	}
	return locations, nil
}

// ApplyReport updates the location status and appends the report row in one
// transaction. Either both writes commit or neither is visible.
func (s *gormStore) ApplyReport(ctx context.Context, id int64, status model.Status, at time.Time) (*model.Location, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var updated model.Location
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Location{}).
			Where("id = ?", id).
			Updates(map[string]any{"status": status, "updated_at": at})
		if res.Error != nil {
			return fmt.Errorf("failed to update status for location %d: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}

		report := model.Report{LocationID: id, Density: status, CreatedAt: at}
		if err := tx.Omit(clause.Associations).Create(&report).Error; err != nil {
			return fmt.Errorf("failed to append report for location %d: %w", id, err)
		}

		if err := tx.First(&updated, id).Error; err != nil {
			return fmt.Errorf("failed to reload location %d: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// CountByStatus aggregates the number of locations per status.
func (s *gormStore) CountByStatus(ctx context.Context) ([]StatusCount, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows := make([]StatusCount, 0)
	if err := s.db.WithContext(ctx).
		Model(&model.Location{}).
		Select("status, COUNT(*) AS total").
		Group("status").
		Order("status").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to aggregate statuses: %w", err)
	}
	return rows, nil
}

// SubscriptionsForLocation returns the push subscriptions that follow a location.
func (s *gormStore) SubscriptionsForLocation(ctx context.Context, locationID int64) ([]model.PushSubscription, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var subscriptions []model.PushSubscription
	err := s.db.WithContext(ctx).
		Joins("JOIN subscription_location_mapping slm ON slm.push_subscription_endpoint = push_subscriptions.endpoint").
		Where("slm.location_id = ?", locationID).
		Find(&subscriptions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch subscriptions for location %d: %w", locationID, err)
	}
	return subscriptions, nil
}

// GetSubscription loads a subscription together with the locations it follows.
func (s *gormStore) GetSubscription(ctx context.Context, endpoint string) (*model.PushSubscription, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var sub model.PushSubscription
	if err := s.db.WithContext(ctx).Preload("Locations").First(&sub, "endpoint = ?", endpoint).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return &sub, nil
}

// SaveSubscription upserts sub and replaces the set of locations it follows.
// Unknown location ids are ignored.
func (s *gormStore) SaveSubscription(ctx context.Context, sub *model.PushSubscription, locationIDs []int64) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "endpoint"}},
			DoUpdates: clause.AssignmentColumns([]string{"p256dh", "auth"}),
		}).Create(sub).Error; err != nil {
			return fmt.Errorf("failed to save subscription: %w", err)
		}

		locations := make([]*model.Location, 0, len(locationIDs))
		if len(locationIDs) > 0 {
			if err := tx.Find(&locations, locationIDs).Error; err != nil {
				return fmt.Errorf("failed to resolve subscribed locations: %w", err)
			}
		}

		if err := tx.Model(sub).Association("Locations").Replace(locations); err != nil {
			return fmt.Errorf("failed to replace subscribed locations: %w", err)
		}
		return nil
	})
}

// DeleteSubscription removes a subscription and its location mappings.
func (s *gormStore) DeleteSubscription(ctx context.Context, endpoint string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sub := model.PushSubscription{Endpoint: endpoint}
		if err := tx.Model(&sub).Association("Locations").Clear(); err != nil {
			return fmt.Errorf("failed to clear subscribed locations: %w", err)
		}
		if err := tx.Delete(&sub).Error; err != nil {
			return fmt.Errorf("failed to delete subscription: %w", err)
		}
		return nil
	})
}

// Ping checks that a pooled connection can be acquired and used.
func (s *gormStore) Ping(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
