package api

import (
	"context"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"

	"parkir-status-backend/internal/cache"
	"parkir-status-backend/internal/model"
	"parkir-status-backend/internal/prediction"
	"parkir-status-backend/internal/report"
	"parkir-status-backend/internal/store"
)

// Predictor scores prediction requests.
type Predictor interface {
	Predict(ctx context.Context, req prediction.Request) (prediction.Result, error)
}

// Reporter applies status reports.
type Reporter interface {
	Submit(ctx context.Context, in report.Input) (*model.Location, error)
}

// Dependencies are the collaborators shared by the API handlers.
type Dependencies struct {
	Store     store.Store
	Listing   *cache.Listing
	Reports   Reporter
	Predictor Predictor
	WebPush   *webpush.Options
	Policy    ErrorPolicy
	Location  *time.Location
	Log       *zap.Logger
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store     store.Store
	listing   *cache.Listing
	reports   Reporter
	predictor Predictor
	webpush   *webpush.Options
	policy    ErrorPolicy
	loc       *time.Location
	log       *zap.Logger
	now       func() time.Time
}

// NewHandler creates a new API handler.
func NewHandler(d Dependencies) *Handler {
	loc := d.Location
	if loc == nil {
		loc = time.UTC
	}
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		store:     d.Store,
		listing:   d.Listing,
		reports:   d.Reports,
		predictor: d.Predictor,
		webpush:   d.WebPush,
		policy:    d.Policy,
		loc:       loc,
		log:       log,
		now:       time.Now,
	}
}
