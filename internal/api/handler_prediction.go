package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"parkir-status-backend/internal/prediction"
)

// GetPrediction handles GET /api/prediksi/:lokasiId.
func (h *Handler) GetPrediction(c *gin.Context) {
	locationID, err := strconv.ParseInt(c.Param("lokasiId"), 10, 64)
	if err != nil {
		h.respondError(c, prediction.ErrInvalidParameters)
		return
	}

	req, err := prediction.ParseParams(locationID, c.Query("jam"), c.Query("hari"), h.now().In(h.loc))
	if err != nil {
		h.respondError(c, err)
		return
	}

	res, err := h.predictor.Predict(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"prediksi":  res.Status,
		"jam":       res.Hour,
		"hari":      res.DayName,
		"timestamp": res.Timestamp.Format(time.RFC3339Nano),
	})
}
