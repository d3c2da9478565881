package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	apierrors "github.com/kmoreland/leasepulse/internal/errors"
	"github.com/kmoreland/leasepulse/internal/models"
	"github.com/kmoreland/leasepulse/internal/scoring"
	"github.com/kmoreland/leasepulse/internal/services"
)

// LeadsHandler handles lead scoring HTTP requests.
type LeadsHandler struct {
	service services.UnitService
}

// NewLeadsHandler creates a new LeadsHandler instance.
func NewLeadsHandler(service services.UnitService) *LeadsHandler {
	return &LeadsHandler{
		service: service,
	}
}

// LeadScoreResponse carries a unit's score with its breakdown.
type LeadScoreResponse struct {
	UnitID         string             `json:"unit_id"`
	LeadScore      float64            `json:"lead_score"`
	ScoreBreakdown *scoring.Breakdown `json:"score_breakdown"`
}

// PrioritizedRequest represents the query parameters for the prioritized
// units endpoint.
type PrioritizedRequest struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=1000"`
}

// RecalculateResponse reports the outcome of a bulk score refresh.
type RecalculateResponse struct {
	Message      string `json:"message"`
	UpdatedCount int    `json:"updated_count"`
}

// Score handles GET /api/v1/leads/score/:id.
// It computes the unit's score against a fresh market snapshot and returns
// the explainable component breakdown.
func (h *LeadsHandler) Score(c *gin.Context) {
	id := c.Param("id")

	breakdown, err := h.service.ScoreBreakdown(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, services.ErrUnitNotFound) {
			apierrors.NotFound(c, "Unit not found")
			return
		}
		apierrors.InternalServerError(c, "Failed to compute lead score", err)
		return
	}

	c.JSON(http.StatusOK, LeadScoreResponse{
		UnitID:         id,
		LeadScore:      breakdown.TotalScore,
		ScoreBreakdown: breakdown,
	})
}

// Prioritized handles GET /api/v1/leads/prioritized.
// It returns available units ordered by lead score, highest priority first.
func (h *LeadsHandler) Prioritized(c *gin.Context) {
	var req PrioritizedRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			apierrors.ValidationError(c, validationErrors)
			return
		}
		apierrors.BadRequest(c, "Invalid query parameters", nil)
		return
	}

	const defaultLimit = 50
	if req.Limit == 0 {
		req.Limit = defaultLimit
	}

	units, err := h.service.PrioritizedUnits(c.Request.Context(), req.Limit)
	if err != nil {
		apierrors.InternalServerError(c, "Failed to list prioritized units", err)
		return
	}

	if units == nil {
		units = []models.Unit{}
	}
	c.JSON(http.StatusOK, units)
}

// Recalculate handles POST /api/v1/leads/recalculate.
// Intended to run periodically as market conditions change.
func (h *LeadsHandler) Recalculate(c *gin.Context) {
	updated, err := h.service.RecalculateScores(c.Request.Context())
	if err != nil {
		apierrors.InternalServerError(c, "Failed to recalculate lead scores", err)
		return
	}

	c.JSON(http.StatusOK, RecalculateResponse{
		Message:      "Lead scores recalculated successfully",
		UpdatedCount: updated,
	})
}
