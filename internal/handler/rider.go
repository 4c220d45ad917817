package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"cafetrack/internal/domain"
	"cafetrack/internal/geo"
	redisstore "cafetrack/internal/redis"
	"cafetrack/internal/repository"
)

// RiderHandler handles HTTP requests from the rider console.
type RiderHandler struct {
	locations   redisstore.LocationStoreInterface
	riders      repository.RiderRepository
	breadcrumbs repository.BreadcrumbRepository
}

// NewRiderHandler creates a new RiderHandler.
func NewRiderHandler(
	locations redisstore.LocationStoreInterface,
	riders repository.RiderRepository,
	breadcrumbs repository.BreadcrumbRepository,
) *RiderHandler {
	return &RiderHandler{locations: locations, riders: riders, breadcrumbs: breadcrumbs}
}

// RegisterRiderRequest is the HTTP request body for rider registration.
type RegisterRiderRequest struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// UpdateLocationRequest is the HTTP request body for a rider position report.
type UpdateLocationRequest struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	OrderID string  `json:"order_id"`
}

// Register handles POST /v1/riders/register
func (h *RiderHandler) Register(c *gin.Context) {
	var req RegisterRiderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	if req.Name == "" || req.Phone == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "name and phone are required"})
		return
	}

	rider := &domain.Rider{
		ID:     req.ID,
		Name:   req.Name,
		Phone:  req.Phone,
		Status: domain.RiderStatusOffline,
	}
	if rider.ID == "" {
		rider.ID = uuid.NewString()
	}

	if err := h.riders.Upsert(c.Request.Context(), rider); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":     rider.ID,
		"name":   rider.Name,
		"phone":  rider.Phone,
		"status": rider.Status,
	})
}

// UpdateLocation handles POST /v1/riders/:id/location
//
// The position goes to the Redis geo index (the first resolver source) and
// is appended to the breadcrumb trail with a heading derived from the
// previous report.
func (h *RiderHandler) UpdateLocation(c *gin.Context) {
	riderID := c.Param("id")

	var req UpdateLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	pt := geo.Point{Lat: req.Lat, Lng: req.Lng}
	if !pt.Valid() {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid coordinates"})
		return
	}

	ctx := c.Request.Context()

	heading := 0.0
	if prev, ok, err := h.locations.GetLocation(ctx, riderID); err == nil && ok {
		heading = geo.Heading(prev, pt)
	}

	if err := h.locations.UpdateLocation(ctx, riderID, pt.Lat, pt.Lng); err != nil {
		respondError(c, err)
		return
	}

	status := domain.RiderStatusOnline
	if req.OrderID != "" {
		status = domain.RiderStatusDelivering
	}
	if err := h.riders.UpdateStatus(ctx, riderID, status); err != nil && !errors.Is(err, repository.ErrNotFound) {
		respondError(c, err)
		return
	}

	crumb := &domain.Breadcrumb{
		ID:             uuid.NewString(),
		RiderID:        riderID,
		OrderID:        req.OrderID,
		Lat:            pt.Lat,
		Lng:            pt.Lng,
		HeadingDegrees: heading,
		RecordedAt:     time.Now().UTC(),
	}
	if err := h.breadcrumbs.Record(ctx, crumb); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"heading_degrees": heading})
}

// Offline handles POST /v1/riders/:id/offline
func (h *RiderHandler) Offline(c *gin.Context) {
	riderID := c.Param("id")
	ctx := c.Request.Context()

	if err := h.locations.RemoveLocation(ctx, riderID); err != nil {
		respondError(c, err)
		return
	}
	if err := h.riders.UpdateStatus(ctx, riderID, domain.RiderStatusOffline); err != nil && !errors.Is(err, repository.ErrNotFound) {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": domain.RiderStatusOffline})
}
