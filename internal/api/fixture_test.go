package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"parkir-status-backend/config"
	"parkir-status-backend/internal/broadcast"
	"parkir-status-backend/internal/cache"
	"parkir-status-backend/internal/db"
	"parkir-status-backend/internal/metrics"
	"parkir-status-backend/internal/model"
	"parkir-status-backend/internal/mw"
	"parkir-status-backend/internal/prediction"
	"parkir-status-backend/internal/report"
	"parkir-status-backend/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakePredictor struct {
	calls  atomic.Int32
	status model.Status
	err    error
}

func (f *fakePredictor) Predict(_ context.Context, req prediction.Request) (prediction.Result, error) {
	f.calls.Add(1)
	if f.err != nil {
		return prediction.Result{}, f.err
	}
	return prediction.Result{
		Status:    f.status,
		Hour:      req.Hour,
		Day:       req.Day,
		DayName:   prediction.DayName(req.Day),
		Timestamp: time.Date(2026, 10, 16, 2, 0, 0, 0, time.UTC),
	}, nil
}

type testServer struct {
	router    *gin.Engine
	db        *gorm.DB
	store     store.Store
	backend   cache.Backend
	hub       *broadcast.Hub
	predictor *fakePredictor
	metrics   *metrics.Metrics
}

type serverOption func(*serverSettings)

type serverSettings struct {
	production  bool
	maxRequests int
	reporter    Reporter
	backend     cache.Backend
	webpush     *webpush.Options
}

func withProduction() serverOption { return func(s *serverSettings) { s.production = true } }

func withMaxRequests(n int) serverOption { return func(s *serverSettings) { s.maxRequests = n } }

func withReporter(r Reporter) serverOption { return func(s *serverSettings) { s.reporter = r } }

func withBackend(b cache.Backend) serverOption { return func(s *serverSettings) { s.backend = b } }

func withWebPush(o *webpush.Options) serverOption { return func(s *serverSettings) { s.webpush = o } }

func newSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	gormDB, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gormDB))

	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return gormDB
}

func seedLocations(t *testing.T, gormDB *gorm.DB) []model.Location {
	t.Helper()
	now := time.Now().UTC()
	locations := []model.Location{
		{Name: "Parkir Teknik", Capacity: 50, Status: model.StatusEmpty, UpdatedAt: now},
		{Name: "Parkir Ekonomi", Capacity: 120, Status: model.StatusEmpty, UpdatedAt: now},
		{Name: "Parkir Hukum", Capacity: 80, Status: model.StatusFull, UpdatedAt: now},
	}
	require.NoError(t, gormDB.Create(&locations).Error)
	return locations
}

func newTestServer(t *testing.T, opts ...serverOption) *testServer {
	t.Helper()
	settings := serverSettings{maxRequests: 1000}
	for _, opt := range opts {
		opt(&settings)
	}

	log := zap.NewNop()
	m := metrics.New()
	gormDB := newSQLiteDB(t)
	st := store.NewGormStore(gormDB, time.Second)

	backend := settings.backend
	if backend == nil {
		backend = cache.NewMemoryBackend(time.Minute)
	}
	listing := cache.NewListing(backend, st, time.Minute, log, m, cache.WithDependentKeys(mw.CacheKey(StatisticsPath)))
	hub := broadcast.NewHub(st, 8, log, m)
	t.Cleanup(hub.Close)

	reporter := settings.reporter
	if reporter == nil {
		reporter = report.NewService(st, listing, hub, log, m)
	}
	predictor := &fakePredictor{status: model.StatusBusy}

	h := NewHandler(Dependencies{
		Store:     st,
		Listing:   listing,
		Reports:   reporter,
		Predictor: predictor,
		WebPush:   settings.webpush,
		Policy:    ErrorPolicy{Production: settings.production},
		Log:       log,
	})
	router := NewRouter(h, RouterConfig{
		RateLimit: config.RateLimitConfig{Window: time.Minute, MaxRequests: settings.maxRequests},
		CacheTTL:  time.Minute,
		Backend:   backend,
		Hub:       hub,
		Metrics:   m,
		Log:       log,
	})

	return &testServer{
		router:    router,
		db:        gormDB,
		store:     st,
		backend:   backend,
		hub:       hub,
		predictor: predictor,
		metrics:   m,
	}
}

func (s *testServer) do(method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, _ := json.Marshal(b)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return serve(s, req)
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func decodeLocations(t *testing.T, w *httptest.ResponseRecorder) []model.Location {
	t.Helper()
	var out []model.Location
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func locationNames(locations []model.Location) []string {
	out := make([]string, len(locations))
	for i, l := range locations {
		out[i] = l.Name
	}
	return out
}

func newRequest(method, path string) *http.Request {
	return httptest.NewRequest(method, path, nil)
}

func serve(s *testServer, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}
