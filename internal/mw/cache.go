package mw

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"parkir-status-backend/internal/cache"
)

type cachedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

type bodyCacheWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w bodyCacheWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w bodyCacheWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// CacheKey returns the backend key under which the response for path is stored.
func CacheKey(path string) string {
	return "http:" + path
}

// Cache is a middleware that caches successful GET responses in backend. The
// key is the request path, so it must only guard routes whose response does
// not depend on the query string.
func Cache(backend cache.Backend, duration time.Duration, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		key := CacheKey(c.Request.URL.Path)
		raw, err := backend.Get(c.Request.Context(), key)
		switch {
		case err == nil:
			var cached cachedResponse
			if err := json.Unmarshal(raw, &cached); err == nil {
				c.Header("X-Cache", "HIT")
				c.Data(cached.Status, cached.ContentType, cached.Body)
				c.Abort()
				return
			}
			log.Warn("discarding undecodable cached response", zap.String("key", key))
		case !errors.Is(err, cache.ErrMiss):
			log.Warn("response cache read failed", zap.String("key", key), zap.Error(err))
		}

		blw := &bodyCacheWriter{body: bytes.NewBuffer(nil), ResponseWriter: c.Writer}
		c.Writer = blw

		c.Next()

		// Only cache successful responses
		if blw.Status() >= 200 && blw.Status() < 300 {
			payload, err := json.Marshal(cachedResponse{
				Status:      blw.Status(),
				ContentType: blw.Header().Get("Content-Type"),
				Body:        blw.body.Bytes(),
			})
			if err != nil {
				return
			}
			if err := backend.Set(c.Request.Context(), key, payload, duration); err != nil {
				log.Warn("response cache write failed", zap.String("key", key), zap.Error(err))
			}
		}
	}
}
