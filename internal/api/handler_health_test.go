package api

import (
	"net/http"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parkir-status-backend/internal/cache"
)

func TestHealth(t *testing.T) {
	t.Run("memory cache", func(t *testing.T) {
		s := newTestServer(t)

		w := s.do(http.MethodGet, "/api/health", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"status":"OK","database":"CONNECTED","redis":"NOT_CONFIGURED","cache":"memory"}`, w.Body.String())
	})

	t.Run("redis up", func(t *testing.T) {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { client.Close() })
		s := newTestServer(t, withBackend(cache.NewRedisBackend(client)))

		w := s.do(http.MethodGet, "/api/health", nil)
		assert.JSONEq(t, `{"status":"OK","database":"CONNECTED","redis":"CONNECTED","cache":"redis"}`, w.Body.String())
	})

	t.Run("redis down degrades to warning", func(t *testing.T) {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
		t.Cleanup(func() { client.Close() })
		s := newTestServer(t, withBackend(cache.NewRedisBackend(client)))
		mr.Close()

		w := s.do(http.MethodGet, "/api/health", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"status":"WARNING","database":"CONNECTED","redis":"DISCONNECTED","cache":"redis"}`, w.Body.String())
	})

	t.Run("database down degrades to warning", func(t *testing.T) {
		s := newTestServer(t)
		sqlDB, err := s.db.DB()
		require.NoError(t, err)
		require.NoError(t, sqlDB.Close())

		w := s.do(http.MethodGet, "/api/health", nil)
		require.Equal(t, http.StatusOK, w.Code)
		body := decode(t, w)
		assert.Equal(t, "WARNING", body["status"])
		assert.Equal(t, "DISCONNECTED", body["database"])
	})
}
