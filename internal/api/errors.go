package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"parkir-status-backend/internal/prediction"
	"parkir-status-backend/internal/report"
	"parkir-status-backend/internal/store"
)

// ErrorPolicy decides how much of an internal error reaches the client.
type ErrorPolicy struct {
	Production bool
}

func (p ErrorPolicy) detail(err error) string {
	if p.Production {
		return "Silakan coba lagi nanti"
	}
	return err.Error()
}

// respondError maps a service error onto a status code and JSON body.
func (h *Handler) respondError(c *gin.Context, err error) {
	var inputErr *report.InputError
	var queryErr *store.QueryError

	switch {
	case errors.As(err, &inputErr):
		body := gin.H{"error": inputErr.Message}
		if len(inputErr.RequiredFields) > 0 {
			body["required_fields"] = inputErr.RequiredFields
		}
		if len(inputErr.AllowedStatus) > 0 {
			body["allowed_status"] = inputErr.AllowedStatus
		}
		c.AbortWithStatusJSON(http.StatusBadRequest, body)

	case errors.As(err, &queryErr):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": queryErr.Reason, "field": queryErr.Field})

	case errors.Is(err, store.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{
			"error":               "Lokasi tidak ditemukan",
			"available_locations": "/api/lokasi-parkir",
		})

	case errors.Is(err, prediction.ErrInvalidParameters):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error":  "Invalid parameters",
			"detail": prediction.ParamsDetail,
		})

	case errors.Is(err, prediction.ErrPredictionFailed):
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":  "Prediction failed",
			"detail": "AI model processing error",
		})

	default:
		h.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":  "Kesalahan sistem",
			"detail": h.policy.detail(err),
		})
	}
}
