package services

import (
	"context"
	"fmt"
	"time"

	"github.com/kmoreland/leasepulse/internal/analytics"
	"github.com/kmoreland/leasepulse/internal/logger"
	"github.com/kmoreland/leasepulse/internal/repository"
)

// Distributions bundles the group-by metric families.
type Distributions struct {
	BedroomDistribution []analytics.BedroomBucket `json:"bedroom_distribution"`
	StatusDistribution  map[string]int            `json:"status_distribution"`
	CityDistribution    []analytics.CityBucket    `json:"city_distribution"`
}

// AnalyticsService exposes pull-based aggregate metrics over the unit
// population. Each call reads a point-in-time snapshot of the population;
// computations are pure and never fail on degenerate inputs.
type AnalyticsService interface {
	Dashboard(ctx context.Context) (*analytics.Dashboard, error)
	Trends(ctx context.Context, days int) ([]analytics.PricePoint, error)
	Distributions(ctx context.Context) (*Distributions, error)
	Performance(ctx context.Context) (*analytics.Performance, error)
}

// analyticsService is the concrete implementation of AnalyticsService.
type analyticsService struct {
	repo repository.UnitRepository
	log  *logger.Logger
	now  func() time.Time
}

// NewAnalyticsService creates a new instance of AnalyticsService.
func NewAnalyticsService(repo repository.UnitRepository, log *logger.Logger) AnalyticsService {
	return &analyticsService{
		repo: repo,
		log:  log,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Dashboard computes the headline dashboard metrics.
func (s *analyticsService) Dashboard(ctx context.Context) (*analytics.Dashboard, error) {
	units, err := s.repo.FetchAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch units for analytics: %w", err)
	}

	dashboard := analytics.BuildDashboard(units, s.now())

	s.log.Debug("Dashboard analytics computed", map[string]interface{}{
		"total_units": dashboard.TotalUnits,
	})

	return &dashboard, nil
}

// Trends computes price trends over the given trailing window in days.
func (s *analyticsService) Trends(ctx context.Context, days int) ([]analytics.PricePoint, error) {
	if days <= 0 {
		days = analytics.DefaultTrendDays
	}

	units, err := s.repo.FetchAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch units for analytics: %w", err)
	}

	return analytics.PriceTrends(units, days, s.now()), nil
}

// Distributions computes the bedroom, status, and city distributions.
func (s *analyticsService) Distributions(ctx context.Context) (*Distributions, error) {
	units, err := s.repo.FetchAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch units for analytics: %w", err)
	}

	return &Distributions{
		BedroomDistribution: analytics.BedroomDistribution(units),
		StatusDistribution:  analytics.StatusDistribution(units),
		CityDistribution:    analytics.CityDistribution(units),
	}, nil
}

// Performance computes the KPI metric family.
func (s *analyticsService) Performance(ctx context.Context) (*analytics.Performance, error) {
	units, err := s.repo.FetchAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch units for analytics: %w", err)
	}

	metrics := analytics.PerformanceMetrics(units, s.now())
	return &metrics, nil
}
