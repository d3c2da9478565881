package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kmoreland/leasepulse/internal/broadcast"
	"github.com/kmoreland/leasepulse/internal/logger"
	"github.com/kmoreland/leasepulse/internal/models"
	"github.com/kmoreland/leasepulse/internal/repository"
	"github.com/kmoreland/leasepulse/internal/scoring"
)

// Service-level errors
var (
	ErrUnitNotFound  = errors.New("unit not found")
	ErrInvalidStatus = errors.New("invalid unit status")
)

// CreateUnitInput carries the validated fields for a new unit.
type CreateUnitInput struct {
	PropertyName string
	UnitNumber   string
	Bedrooms     int
	Bathrooms    float64
	SquareFeet   int
	Price        int
	Status       models.UnitStatus
	Amenities    []string
	Location     models.Location
	Images       []string
	Description  string
}

// UpdateUnitInput carries a partial update; nil fields are left unchanged.
type UpdateUnitInput struct {
	PropertyName *string
	UnitNumber   *string
	Bedrooms     *int
	Bathrooms    *float64
	SquareFeet   *int
	Price        *int
	Status       *models.UnitStatus
	Amenities    *[]string
	Location     *models.Location
	Images       *[]string
	Description  *string
}

// UnitService defines the business logic for unit lifecycle operations.
// Every committed mutation refreshes the affected unit's lead score before
// the record is fanned out to observers, so observers never see a stale
// score for a change they are being notified about.
type UnitService interface {
	// CreateUnit persists a new unit, scores it against the current
	// market, and broadcasts the created record.
	CreateUnit(ctx context.Context, input CreateUnitInput) (*models.Unit, error)

	// UpdateUnit applies a partial update, handles the leased-at
	// transition rule, re-scores the unit while it remains available,
	// and broadcasts the updated record.
	// Returns ErrUnitNotFound if the unit does not exist.
	UpdateUnit(ctx context.Context, id string, input UpdateUnitInput) (*models.Unit, error)

	// DeleteUnit removes a unit permanently and broadcasts the deletion.
	// Returns ErrUnitNotFound if the unit does not exist.
	DeleteUnit(ctx context.Context, id string) error

	// GetUnit retrieves a unit by ID.
	// Returns ErrUnitNotFound if the unit does not exist.
	GetUnit(ctx context.Context, id string) (*models.Unit, error)

	// ListUnits returns units matching the filters plus the total count
	// for pagination.
	ListUnits(ctx context.Context, filters repository.ListFilters) ([]models.Unit, int, error)

	// PrioritizedUnits returns available units ordered by lead score
	// descending.
	PrioritizedUnits(ctx context.Context, limit int) ([]models.Unit, error)

	// ScoreBreakdown computes the current score and component breakdown
	// for a unit against a fresh market snapshot.
	// Returns ErrUnitNotFound if the unit does not exist.
	ScoreBreakdown(ctx context.Context, id string) (*scoring.Breakdown, error)

	// RecalculateScores re-scores every available unit against a fresh
	// market snapshot, persisting only changed scores. Returns the
	// number of units updated.
	RecalculateScores(ctx context.Context) (int, error)
}

// unitService is the concrete implementation of UnitService.
type unitService struct {
	repo   repository.UnitRepository
	engine *scoring.Engine
	hub    *broadcast.Hub
	log    *logger.Logger
	now    func() time.Time
}

// NewUnitService creates a new instance of UnitService.
func NewUnitService(repo repository.UnitRepository, engine *scoring.Engine, hub *broadcast.Hub, log *logger.Logger) UnitService {
	return &unitService{
		repo:   repo,
		engine: engine,
		hub:    hub,
		log:    log,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// CreateUnit persists, scores, and broadcasts a new unit.
func (s *unitService) CreateUnit(ctx context.Context, input CreateUnitInput) (*models.Unit, error) {
	status := input.Status
	if status == "" {
		status = models.StatusAvailable
	}
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, input.Status)
	}

	now := s.now()
	unit := &models.Unit{
		ID:           uuid.NewString(),
		PropertyName: input.PropertyName,
		UnitNumber:   input.UnitNumber,
		Bedrooms:     input.Bedrooms,
		Bathrooms:    input.Bathrooms,
		SquareFeet:   input.SquareFeet,
		Price:        input.Price,
		Amenities:    input.Amenities,
		Location:     input.Location,
		Images:       input.Images,
		Description:  input.Description,
		ListedAt:     now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	unit.ApplyStatus(status, now)
	unit.Location.StampGeohash()

	if err := s.repo.Create(ctx, unit); err != nil {
		s.log.Error("Failed to create unit", err, map[string]interface{}{
			"property": input.PropertyName,
			"unit":     input.UnitNumber,
		})
		return nil, fmt.Errorf("failed to create unit: %w", err)
	}

	if err := s.refreshScore(ctx, unit); err != nil {
		return nil, err
	}

	s.hub.Broadcast(ctx, broadcast.UnitUpdate(*unit))

	s.log.Info("Unit created", map[string]interface{}{
		"unit_id":    unit.ID,
		"status":     unit.Status,
		"lead_score": unit.LeadScore,
	})

	return unit, nil
}

// UpdateUnit applies a partial update and broadcasts the result.
func (s *unitService) UpdateUnit(ctx context.Context, id string, input UpdateUnitInput) (*models.Unit, error) {
	unit, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query unit: %w", err)
	}
	if unit == nil {
		return nil, ErrUnitNotFound
	}

	now := s.now()

	if input.PropertyName != nil {
		unit.PropertyName = *input.PropertyName
	}
	if input.UnitNumber != nil {
		unit.UnitNumber = *input.UnitNumber
	}
	if input.Bedrooms != nil {
		unit.Bedrooms = *input.Bedrooms
	}
	if input.Bathrooms != nil {
		unit.Bathrooms = *input.Bathrooms
	}
	if input.SquareFeet != nil {
		unit.SquareFeet = *input.SquareFeet
	}
	if input.Price != nil {
		unit.Price = *input.Price
	}
	if input.Amenities != nil {
		unit.Amenities = *input.Amenities
	}
	if input.Images != nil {
		unit.Images = *input.Images
	}
	if input.Description != nil {
		unit.Description = *input.Description
	}
	if input.Location != nil {
		unit.Location = *input.Location
		unit.Location.StampGeohash()
	}
	if input.Status != nil {
		if !input.Status.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, *input.Status)
		}
		unit.ApplyStatus(*input.Status, now)
	}
	unit.UpdatedAt = now

	found, err := s.repo.Update(ctx, unit)
	if err != nil {
		s.log.Error("Failed to update unit", err, map[string]interface{}{
			"unit_id": id,
		})
		return nil, fmt.Errorf("failed to update unit: %w", err)
	}
	if !found {
		return nil, ErrUnitNotFound
	}

	// Leased units are terminal for scoring and drop out of the market
	// snapshot; only still-available units get a fresh score.
	if unit.Status == models.StatusAvailable {
		if err := s.refreshScore(ctx, unit); err != nil {
			return nil, err
		}
	}

	s.hub.Broadcast(ctx, broadcast.UnitUpdate(*unit))

	s.log.Info("Unit updated", map[string]interface{}{
		"unit_id":    unit.ID,
		"status":     unit.Status,
		"lead_score": unit.LeadScore,
	})

	return unit, nil
}

// DeleteUnit removes a unit and broadcasts the deletion.
func (s *unitService) DeleteUnit(ctx context.Context, id string) error {
	found, err := s.repo.Delete(ctx, id)
	if err != nil {
		s.log.Error("Failed to delete unit", err, map[string]interface{}{
			"unit_id": id,
		})
		return fmt.Errorf("failed to delete unit: %w", err)
	}
	if !found {
		return ErrUnitNotFound
	}

	s.hub.Broadcast(ctx, broadcast.UnitDeleted(id))

	s.log.Info("Unit deleted", map[string]interface{}{
		"unit_id": id,
	})

	return nil
}

// GetUnit retrieves a single unit by ID.
func (s *unitService) GetUnit(ctx context.Context, id string) (*models.Unit, error) {
	unit, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query unit: %w", err)
	}
	if unit == nil {
		return nil, ErrUnitNotFound
	}
	return unit, nil
}

// ListUnits returns units matching the filters plus the unpaginated total.
func (s *unitService) ListUnits(ctx context.Context, filters repository.ListFilters) ([]models.Unit, int, error) {
	units, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list units: %w", err)
	}

	total, err := s.repo.Count(ctx, filters)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count units: %w", err)
	}

	return units, total, nil
}

// PrioritizedUnits returns the highest-scored available units.
func (s *unitService) PrioritizedUnits(ctx context.Context, limit int) ([]models.Unit, error) {
	status := models.StatusAvailable
	units, err := s.repo.List(ctx, repository.ListFilters{
		Status: &status,
		Limit:  limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list prioritized units: %w", err)
	}
	return units, nil
}

// ScoreBreakdown computes the score breakdown for one unit against a fresh
// market snapshot.
func (s *unitService) ScoreBreakdown(ctx context.Context, id string) (*scoring.Breakdown, error) {
	unit, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query unit: %w", err)
	}
	if unit == nil {
		return nil, ErrUnitNotFound
	}

	snapshot, err := s.marketSnapshot(ctx)
	if err != nil {
		return nil, err
	}

	_, breakdown := s.engine.Score(*unit, snapshot, s.now())
	return &breakdown, nil
}

// RecalculateScores re-scores all available units, persisting changes only.
func (s *unitService) RecalculateScores(ctx context.Context) (int, error) {
	available, err := s.repo.FetchAvailable(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch available units: %w", err)
	}

	snapshot := scoring.BuildSnapshot(available)
	now := s.now()

	updated := 0
	for _, unit := range available {
		score, _ := s.engine.Score(unit, snapshot, now)
		if score == unit.LeadScore {
			continue
		}
		if err := s.repo.UpdateLeadScore(ctx, unit.ID, score); err != nil {
			return updated, fmt.Errorf("failed to persist score for unit %s: %w", unit.ID, err)
		}
		updated++
	}

	s.log.Info("Lead scores recalculated", map[string]interface{}{
		"available": len(available),
		"updated":   updated,
	})

	return updated, nil
}

// refreshScore recomputes and persists the unit's lead score against a
// fresh market snapshot, mutating the passed record so the caller
// broadcasts the new score.
func (s *unitService) refreshScore(ctx context.Context, unit *models.Unit) error {
	snapshot, err := s.marketSnapshot(ctx)
	if err != nil {
		return err
	}

	score, _ := s.engine.Score(*unit, snapshot, s.now())
	if err := s.repo.UpdateLeadScore(ctx, unit.ID, score); err != nil {
		return fmt.Errorf("failed to persist lead score: %w", err)
	}
	unit.LeadScore = score

	return nil
}

// marketSnapshot builds the current market snapshot from available units.
func (s *unitService) marketSnapshot(ctx context.Context) (scoring.MarketSnapshot, error) {
	available, err := s.repo.FetchAvailable(ctx)
	if err != nil {
		return scoring.MarketSnapshot{}, fmt.Errorf("failed to fetch available units: %w", err)
	}
	return scoring.BuildSnapshot(available), nil
}
