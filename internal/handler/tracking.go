package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"cafetrack/internal/geo"
	"cafetrack/internal/repository"
	"cafetrack/internal/tracking"
)

// TrackingHandler handles HTTP requests for order tracking.
type TrackingHandler struct {
	manager     *tracking.Manager
	breadcrumbs repository.BreadcrumbRepository
}

// NewTrackingHandler creates a new TrackingHandler.
func NewTrackingHandler(manager *tracking.Manager, breadcrumbs repository.BreadcrumbRepository) *TrackingHandler {
	return &TrackingHandler{manager: manager, breadcrumbs: breadcrumbs}
}

// StartTrackingRequest is the HTTP request body for starting a session.
// Either the customer's free-text address or an explicit pin may be given;
// the pin wins when both are present.
type StartTrackingRequest struct {
	Address string     `json:"address"`
	Pin     *geo.Point `json:"pin"`
}

// BreadcrumbResponse is one history entry.
type BreadcrumbResponse struct {
	Lat            float64   `json:"lat"`
	Lng            float64   `json:"lng"`
	HeadingDegrees float64   `json:"heading_degrees"`
	RecordedAt     time.Time `json:"recorded_at"`
}

// Start handles POST /v1/track/:orderID/start
func (h *TrackingHandler) Start(c *gin.Context) {
	var req StartTrackingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	sess, err := h.manager.Start(c.Request.Context(), c.Param("orderID"), req.Address, req.Pin)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, sess.Snapshot())
}

// Get handles GET /v1/track/:orderID
func (h *TrackingHandler) Get(c *gin.Context) {
	sess, err := h.manager.Get(c.Param("orderID"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, sess.Snapshot())
}

// Stop handles POST /v1/track/:orderID/stop
func (h *TrackingHandler) Stop(c *gin.Context) {
	if err := h.manager.Stop(c.Param("orderID")); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"stopped": true})
}

// History handles GET /v1/track/:orderID/history
func (h *TrackingHandler) History(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid limit"})
			return
		}
		limit = parsed
	}

	crumbs, err := h.breadcrumbs.ListByOrder(c.Request.Context(), c.Param("orderID"), limit)
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]BreadcrumbResponse, 0, len(crumbs))
	for _, crumb := range crumbs {
		out = append(out, BreadcrumbResponse{
			Lat:            crumb.Lat,
			Lng:            crumb.Lng,
			HeadingDegrees: crumb.HeadingDegrees,
			RecordedAt:     crumb.RecordedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{"order_id": c.Param("orderID"), "breadcrumbs": out})
}
