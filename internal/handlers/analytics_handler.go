package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	apierrors "github.com/kmoreland/leasepulse/internal/errors"
	"github.com/kmoreland/leasepulse/internal/services"
)

// AnalyticsHandler handles dashboard analytics HTTP requests.
type AnalyticsHandler struct {
	service services.AnalyticsService
}

// NewAnalyticsHandler creates a new AnalyticsHandler instance.
func NewAnalyticsHandler(service services.AnalyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{
		service: service,
	}
}

// TrendsRequest represents the query parameters for the trends endpoint.
type TrendsRequest struct {
	Days int `form:"days" binding:"omitempty,min=1,max=365"`
}

// TrendsResponse wraps the price trend series.
type TrendsResponse struct {
	Trends interface{} `json:"trends"`
}

// Dashboard handles GET /api/v1/analytics.
// It returns the full dashboard metric set: status counts, average days to
// lease, conversion rate, average price, popular features, price trends.
func (h *AnalyticsHandler) Dashboard(c *gin.Context) {
	dashboard, err := h.service.Dashboard(c.Request.Context())
	if err != nil {
		apierrors.InternalServerError(c, "Failed to compute analytics", err)
		return
	}

	c.JSON(http.StatusOK, dashboard)
}

// Trends handles GET /api/v1/analytics/trends.
func (h *AnalyticsHandler) Trends(c *gin.Context) {
	var req TrendsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			apierrors.ValidationError(c, validationErrors)
			return
		}
		apierrors.BadRequest(c, "Invalid query parameters", nil)
		return
	}

	trends, err := h.service.Trends(c.Request.Context(), req.Days)
	if err != nil {
		apierrors.InternalServerError(c, "Failed to compute price trends", err)
		return
	}

	c.JSON(http.StatusOK, TrendsResponse{Trends: trends})
}

// Distribution handles GET /api/v1/analytics/distribution.
func (h *AnalyticsHandler) Distribution(c *gin.Context) {
	distributions, err := h.service.Distributions(c.Request.Context())
	if err != nil {
		apierrors.InternalServerError(c, "Failed to compute distributions", err)
		return
	}

	c.JSON(http.StatusOK, distributions)
}

// Performance handles GET /api/v1/analytics/performance.
func (h *AnalyticsHandler) Performance(c *gin.Context) {
	metrics, err := h.service.Performance(c.Request.Context())
	if err != nil {
		apierrors.InternalServerError(c, "Failed to compute performance metrics", err)
		return
	}

	c.JSON(http.StatusOK, metrics)
}
