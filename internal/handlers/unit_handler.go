package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	apierrors "github.com/kmoreland/leasepulse/internal/errors"
	"github.com/kmoreland/leasepulse/internal/middleware"
	"github.com/kmoreland/leasepulse/internal/models"
	"github.com/kmoreland/leasepulse/internal/repository"
	"github.com/kmoreland/leasepulse/internal/services"
)

// UnitHandler handles unit-related HTTP requests.
type UnitHandler struct {
	service services.UnitService
}

// NewUnitHandler creates a new UnitHandler instance.
func NewUnitHandler(service services.UnitService) *UnitHandler {
	return &UnitHandler{
		service: service,
	}
}

// ListUnitsRequest represents the query parameters for the list endpoint.
type ListUnitsRequest struct {
	Skip     int     `form:"skip" binding:"omitempty,min=0"`
	Limit    int     `form:"limit" binding:"omitempty,min=1,max=1000"`
	Status   string  `form:"status" binding:"omitempty,oneof=available pending leased"`
	Bedrooms *int    `form:"bedrooms" binding:"omitempty,min=0,max=10"`
	PriceMin *int    `form:"price_min" binding:"omitempty,min=0"`
	PriceMax *int    `form:"price_max" binding:"omitempty,min=0"`
	City     *string `form:"city"`
}

// LocationPayload represents the structured address of a unit.
type LocationPayload struct {
	Address string  `json:"address"`
	City    string  `json:"city" binding:"required"`
	State   string  `json:"state"`
	Zip     string  `json:"zip" binding:"required"`
	Lat     float64 `json:"lat" binding:"omitempty,min=-90,max=90"`
	Lng     float64 `json:"lng" binding:"omitempty,min=-180,max=180"`
}

// CreateUnitRequest represents the payload for creating a unit.
type CreateUnitRequest struct {
	PropertyName string          `json:"property_name" binding:"required"`
	UnitNumber   string          `json:"unit_number" binding:"required"`
	Bedrooms     int             `json:"bedrooms" binding:"min=0,max=10"`
	Bathrooms    float64         `json:"bathrooms" binding:"min=0"`
	SquareFeet   int             `json:"square_feet" binding:"required,gt=0"`
	Price        int             `json:"price" binding:"min=0"`
	Status       string          `json:"status" binding:"omitempty,oneof=available pending leased"`
	Amenities    []string        `json:"amenities"`
	Location     LocationPayload `json:"location" binding:"required"`
	Images       []string        `json:"images"`
	Description  string          `json:"description"`
}

// UpdateUnitRequest represents a partial update payload. Absent fields are
// left unchanged.
type UpdateUnitRequest struct {
	PropertyName *string          `json:"property_name" binding:"omitempty,min=1"`
	UnitNumber   *string          `json:"unit_number" binding:"omitempty,min=1"`
	Bedrooms     *int             `json:"bedrooms" binding:"omitempty,min=0,max=10"`
	Bathrooms    *float64         `json:"bathrooms" binding:"omitempty,min=0"`
	SquareFeet   *int             `json:"square_feet" binding:"omitempty,gt=0"`
	Price        *int             `json:"price" binding:"omitempty,min=0"`
	Status       *string          `json:"status" binding:"omitempty,oneof=available pending leased"`
	Amenities    *[]string        `json:"amenities"`
	Location     *LocationPayload `json:"location"`
	Images       *[]string        `json:"images"`
	Description  *string          `json:"description"`
}

// UnitListResponse is the pagination envelope for unit listings.
type UnitListResponse struct {
	Units    []models.Unit `json:"units"`
	Total    int           `json:"total"`
	Page     int           `json:"page"`
	PageSize int           `json:"page_size"`
}

// List handles GET /api/v1/units.
// It returns units matching the optional filters, ordered by lead score
// descending, with a pagination envelope.
func (h *UnitHandler) List(c *gin.Context) {
	var req ListUnitsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			apierrors.ValidationError(c, validationErrors)
			return
		}
		apierrors.BadRequest(c, "Invalid query parameters", nil)
		return
	}

	const defaultLimit = 100
	if req.Limit == 0 {
		req.Limit = defaultLimit
	}

	filters := repository.ListFilters{
		Bedrooms: req.Bedrooms,
		PriceMin: req.PriceMin,
		PriceMax: req.PriceMax,
		City:     req.City,
		Offset:   req.Skip,
		Limit:    req.Limit,
	}
	if req.Status != "" {
		status := models.UnitStatus(req.Status)
		filters.Status = &status
	}

	units, total, err := h.service.ListUnits(c.Request.Context(), filters)
	if err != nil {
		apierrors.InternalServerError(c, "Failed to list units", err)
		return
	}

	c.JSON(http.StatusOK, UnitListResponse{
		Units:    units,
		Total:    total,
		Page:     req.Skip/req.Limit + 1,
		PageSize: req.Limit,
	})
}

// Get handles GET /api/v1/units/:id.
func (h *UnitHandler) Get(c *gin.Context) {
	unit, err := h.service.GetUnit(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, services.ErrUnitNotFound) {
			apierrors.NotFound(c, "Unit not found")
			return
		}
		apierrors.InternalServerError(c, "Failed to query unit", err)
		return
	}

	c.JSON(http.StatusOK, unit)
}

// Create handles POST /api/v1/units.
// The created unit is scored against the current market and broadcast to
// all connected observers before the response returns.
func (h *UnitHandler) Create(c *gin.Context) {
	var req CreateUnitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			apierrors.ValidationError(c, validationErrors)
			return
		}
		apierrors.BadRequest(c, "Invalid request body", nil)
		return
	}

	if log := middleware.GetLogger(c); log != nil {
		log.Info("Processing unit creation", map[string]interface{}{
			"property": req.PropertyName,
			"unit":     req.UnitNumber,
		})
	}

	unit, err := h.service.CreateUnit(c.Request.Context(), services.CreateUnitInput{
		PropertyName: req.PropertyName,
		UnitNumber:   req.UnitNumber,
		Bedrooms:     req.Bedrooms,
		Bathrooms:    req.Bathrooms,
		SquareFeet:   req.SquareFeet,
		Price:        req.Price,
		Status:       models.UnitStatus(req.Status),
		Amenities:    req.Amenities,
		Location:     mapLocation(req.Location),
		Images:       req.Images,
		Description:  req.Description,
	})
	if err != nil {
		if errors.Is(err, services.ErrInvalidStatus) {
			apierrors.BadRequest(c, err.Error(), nil)
			return
		}
		apierrors.InternalServerError(c, "Failed to create unit", err)
		return
	}

	c.JSON(http.StatusCreated, unit)
}

// Update handles PATCH /api/v1/units/:id.
// This is the key operation for the leasing workflow (status changes,
// price edits); all connected observers are notified instantly.
func (h *UnitHandler) Update(c *gin.Context) {
	var req UpdateUnitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			apierrors.ValidationError(c, validationErrors)
			return
		}
		apierrors.BadRequest(c, "Invalid request body", nil)
		return
	}

	input := services.UpdateUnitInput{
		PropertyName: req.PropertyName,
		UnitNumber:   req.UnitNumber,
		Bedrooms:     req.Bedrooms,
		Bathrooms:    req.Bathrooms,
		SquareFeet:   req.SquareFeet,
		Price:        req.Price,
		Amenities:    req.Amenities,
		Images:       req.Images,
		Description:  req.Description,
	}
	if req.Status != nil {
		status := models.UnitStatus(*req.Status)
		input.Status = &status
	}
	if req.Location != nil {
		location := mapLocation(*req.Location)
		input.Location = &location
	}

	unit, err := h.service.UpdateUnit(c.Request.Context(), c.Param("id"), input)
	if err != nil {
		if errors.Is(err, services.ErrUnitNotFound) {
			apierrors.NotFound(c, "Unit not found")
			return
		}
		if errors.Is(err, services.ErrInvalidStatus) {
			apierrors.BadRequest(c, err.Error(), nil)
			return
		}
		apierrors.InternalServerError(c, "Failed to update unit", err)
		return
	}

	c.JSON(http.StatusOK, unit)
}

// Delete handles DELETE /api/v1/units/:id.
func (h *UnitHandler) Delete(c *gin.Context) {
	err := h.service.DeleteUnit(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, services.ErrUnitNotFound) {
			apierrors.NotFound(c, "Unit not found")
			return
		}
		apierrors.InternalServerError(c, "Failed to delete unit", err)
		return
	}

	c.Status(http.StatusNoContent)
}

// mapLocation converts a request payload to the domain location type.
func mapLocation(payload LocationPayload) models.Location {
	return models.Location{
		Address: payload.Address,
		City:    payload.City,
		State:   payload.State,
		Zip:     payload.Zip,
		Lat:     payload.Lat,
		Lng:     payload.Lng,
	}
}
