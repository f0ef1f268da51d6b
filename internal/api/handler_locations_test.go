package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parkir-status-backend/internal/model"
	"parkir-status-backend/internal/report"
)

func TestGetLocations_CachedUntilReport(t *testing.T) {
	s := newTestServer(t)
	locations := seedLocations(t, s.db)

	first := s.do(http.MethodGet, "/api/lokasi-parkir", nil)
	require.Equal(t, http.StatusOK, first.Code)
	assert.Len(t, decodeLocations(t, first), 3)

	// A write that bypasses the report path is not visible until the entry expires.
	require.NoError(t, s.db.Model(&model.Location{}).Where("id = ?", locations[0].ID).Update("nama", "Renamed").Error)
	second := s.do(http.MethodGet, "/api/lokasi-parkir", nil)
	assert.Equal(t, first.Body.Bytes(), second.Body.Bytes())

	// A committed report drops the cached listing.
	w := s.do(http.MethodPost, "/api/lapor", map[string]any{"lokasiId": locations[1].ID, "status": "ramai"})
	require.Equal(t, http.StatusOK, w.Code)

	third := decodeLocations(t, s.do(http.MethodGet, "/api/lokasi-parkir", nil))
	assert.Contains(t, locationNames(third), "Renamed")
	for _, loc := range third {
		if loc.ID == locations[1].ID {
			assert.Equal(t, model.StatusBusy, loc.Status)
		}
	}
}

func TestFilterLocations(t *testing.T) {
	s := newTestServer(t)
	seedLocations(t, s.db)

	testCases := []struct {
		name          string
		query         string
		expectedCode  int
		expectedNames []string
		errorContains string
	}{
		{name: "Default sort by name", query: "", expectedCode: http.StatusOK, expectedNames: []string{"Parkir Ekonomi", "Parkir Hukum", "Parkir Teknik"}},
		{name: "Status filter", query: "?status=kosong", expectedCode: http.StatusOK, expectedNames: []string{"Parkir Ekonomi", "Parkir Teknik"}},
		{name: "Capacity range descending", query: "?minKapasitas=60&sortBy=kapasitas&order=desc", expectedCode: http.StatusOK, expectedNames: []string{"Parkir Ekonomi", "Parkir Hukum"}},
		{name: "No match", query: "?status=ramai", expectedCode: http.StatusOK, expectedNames: []string{}},
		{name: "Unknown sort column", query: "?sortBy=unknown", expectedCode: http.StatusBadRequest, errorContains: "invalid sort column"},
		{name: "Unknown order", query: "?order=sideways", expectedCode: http.StatusBadRequest, errorContains: "invalid sort order"},
		{name: "Injection in sort column", query: "?sortBy=nama;DROP%20TABLE%20lokasi_parkir", expectedCode: http.StatusBadRequest, errorContains: "invalid sort column"},
		{name: "Negative capacity", query: "?minKapasitas=-5", expectedCode: http.StatusBadRequest, errorContains: "minKapasitas"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := s.do(http.MethodGet, "/api/lokasi-parkir/filter"+tc.query, nil)
			require.Equal(t, tc.expectedCode, w.Code, w.Body.String())

			if tc.errorContains != "" {
				assert.Contains(t, decode(t, w)["error"], tc.errorContains)
				return
			}
			assert.Equal(t, tc.expectedNames, locationNames(decodeLocations(t, w)))
		})
	}

	// The table survived the injection attempt.
	var count int64
	require.NoError(t, s.db.Model(&model.Location{}).Count(&count).Error)
	assert.Equal(t, int64(3), count)
}

func TestPostReport(t *testing.T) {
	s := newTestServer(t)
	locations := seedLocations(t, s.db)
	target := locations[0]

	sub := s.hub.Subscribe()
	defer s.hub.Unsubscribe(sub)

	w := s.do(http.MethodPost, "/api/lapor", map[string]any{"lokasiId": target.ID, "status": "penuh"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Status parkir diperbarui", body["message"])
	data := body["data"].(map[string]any)
	assert.Equal(t, "penuh", data["status"])

	select {
	case msg := <-sub.Messages():
		var ev struct {
			Event string `json:"event"`
			Data  struct {
				Status string           `json:"status"`
				Data   []model.Location `json:"data"`
			} `json:"data"`
		}
		require.NoError(t, json.Unmarshal(msg, &ev))
		assert.Equal(t, "parkir-update", ev.Event)
		assert.Equal(t, "success", ev.Data.Status)
		assert.Len(t, ev.Data.Data, 3)
	case <-time.After(time.Second):
		t.Fatal("expected a parkir-update broadcast")
	}
	select {
	case <-sub.Messages():
		t.Fatal("expected exactly one broadcast")
	default:
	}

	var reports []model.Report
	require.NoError(t, s.db.Where("lokasi_id = ?", target.ID).Find(&reports).Error)
	require.Len(t, reports, 1)
	assert.Equal(t, model.StatusFull, reports[0].Density)

	var stored model.Location
	require.NoError(t, s.db.First(&stored, target.ID).Error)
	assert.Equal(t, model.StatusFull, stored.Status)
}

func TestPostReport_Rejections(t *testing.T) {
	s := newTestServer(t)
	locations := seedLocations(t, s.db)

	testCases := []struct {
		name         string
		body         any
		expectedCode int
		expectedKey  string
		expectedVal  any
	}{
		{
			name:         "Unknown status",
			body:         map[string]any{"lokasiId": locations[0].ID, "status": "macet"},
			expectedCode: http.StatusBadRequest,
			expectedKey:  "allowed_status",
			expectedVal:  []any{"kosong", "ramai", "penuh"},
		},
		{
			name:         "Missing status",
			body:         map[string]any{"lokasiId": locations[0].ID},
			expectedCode: http.StatusBadRequest,
			expectedKey:  "required_fields",
			expectedVal:  []any{"lokasiId", "status"},
		},
		{
			name:         "Malformed body",
			body:         `{"lokasiId":`,
			expectedCode: http.StatusBadRequest,
			expectedKey:  "required_fields",
			expectedVal:  []any{"lokasiId", "status"},
		},
		{
			name:         "Unknown location",
			body:         map[string]any{"lokasiId": 9999, "status": "penuh"},
			expectedCode: http.StatusNotFound,
			expectedKey:  "available_locations",
			expectedVal:  "/api/lokasi-parkir",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := s.do(http.MethodPost, "/api/lapor", tc.body)
			require.Equal(t, tc.expectedCode, w.Code, w.Body.String())
			assert.Equal(t, tc.expectedVal, decode(t, w)[tc.expectedKey])
		})
	}

	var reports int64
	require.NoError(t, s.db.Model(&model.Report{}).Count(&reports).Error)
	assert.Zero(t, reports)
}

type failingReporter struct{ err error }

func (f failingReporter) Submit(context.Context, report.Input) (*model.Location, error) {
	return nil, f.err
}

func TestPostReport_UpstreamDetailFollowsPolicy(t *testing.T) {
	upstream := fmt.Errorf("%w: %w", report.ErrUpstream, errors.New("pq: deadlock detected"))

	t.Run("development shows detail", func(t *testing.T) {
		s := newTestServer(t, withReporter(failingReporter{err: upstream}))
		w := s.do(http.MethodPost, "/api/lapor", map[string]any{"lokasiId": 1, "status": "penuh"})
		require.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Contains(t, decode(t, w)["detail"], "deadlock detected")
	})

	t.Run("production hides detail", func(t *testing.T) {
		s := newTestServer(t, withProduction(), withReporter(failingReporter{err: upstream}))
		w := s.do(http.MethodPost, "/api/lapor", map[string]any{"lokasiId": 1, "status": "penuh"})
		require.Equal(t, http.StatusInternalServerError, w.Code)
		body := decode(t, w)
		assert.Equal(t, "Silakan coba lagi nanti", body["detail"])
		assert.NotContains(t, w.Body.String(), "deadlock")
	})
}

func TestGetStatistics_InvalidatedByReport(t *testing.T) {
	s := newTestServer(t)
	locations := seedLocations(t, s.db)

	totals := func(path string) map[string]float64 {
		w := s.do(http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, w.Code)
		var rows []map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rows))
		out := map[string]float64{}
		for _, row := range rows {
			out[row["status"].(string)] = row["total"].(float64)
		}
		return out
	}

	assert.Equal(t, map[string]float64{"kosong": 2, "penuh": 1}, totals("/api/statistik"))
	assert.Equal(t, map[string]float64{"kosong": 2, "penuh": 1}, totals("/api/statistik?t=1"))

	w := s.do(http.MethodPost, "/api/lapor", map[string]any{"lokasiId": locations[0].ID, "status": "penuh"})
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, map[string]float64{"kosong": 1, "penuh": 2}, totals("/api/statistik"))
	assert.Equal(t, map[string]float64{"kosong": 1, "penuh": 2}, totals("/api/statistik?t=1"))
}
