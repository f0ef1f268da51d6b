package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"parkir-status-backend/internal/report"
	"parkir-status-backend/internal/store"
)

// GetLocations handles GET /api/lokasi-parkir through the listing cache.
func (h *Handler) GetLocations(c *gin.Context) {
	payload, err := h.listing.Get(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", payload)
}

// FilterLocations handles GET /api/lokasi-parkir/filter.
func (h *Handler) FilterLocations(c *gin.Context) {
	q, err := store.BuildQuery(store.FilterParams{
		Status:      c.Query("status"),
		MinCapacity: c.Query("minKapasitas"),
		MaxCapacity: c.Query("maxKapasitas"),
		SortBy:      c.Query("sortBy"),
		Order:       c.Query("order"),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	locations, err := h.store.ListFiltered(c.Request.Context(), q)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, locations)
}

// PostReport handles POST /api/lapor.
func (h *Handler) PostReport(c *gin.Context) {
	var in report.Input
	// A body that does not decode is treated like one with missing fields.
	_ = c.ShouldBindJSON(&in)

	loc, err := h.reports.Submit(c.Request.Context(), in)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    loc,
		"message": "Status parkir diperbarui",
	})
}

// GetStatistics handles GET /api/statistik.
func (h *Handler) GetStatistics(c *gin.Context) {
	counts, err := h.store.CountByStatus(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, counts)
}
