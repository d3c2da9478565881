package scoring

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/kmoreland/leasepulse/internal/models"
)

// Component names used as keys in a score breakdown.
const (
	ComponentPrice     = "price_competitiveness"
	ComponentFreshness = "listing_freshness"
	ComponentFeatures  = "desirable_features"
	ComponentSize      = "unit_size_appeal"
	ComponentLocation  = "location_desirability"
)

const baseScore = 50.0

// amenityWeights assigns points to high-value amenity tags. Tags not listed
// here are worth 1 point each. The feature component is capped at 20.
var amenityWeights = map[string]float64{
	"parking":        7,
	"washer_dryer":   6,
	"pet_friendly":   5,
	"balcony":        4,
	"fitness_center": 4,
	"pool":           4,
	"dishwasher":     3,
	"ac":             3,
}

const maxFeaturePoints = 20

// LocationRules configures the location desirability component.
type LocationRules struct {
	// PrimeZips earn +10 points.
	PrimeZips []string
	// TargetCity earns +5 points when the city name contains this
	// substring (case-insensitive).
	TargetCity string
}

// DefaultLocationRules returns the built-in Louisville market rules.
func DefaultLocationRules() LocationRules {
	return LocationRules{
		PrimeZips:  []string{"40202", "40204", "40206", "40207", "40222"},
		TargetCity: "louisville",
	}
}

// Breakdown explains how a score was assembled: the signed contribution of
// every component plus human-readable notes for components that fired.
type Breakdown struct {
	TotalScore  float64            `json:"total_score"`
	Components  map[string]float64 `json:"components"`
	Explanation []string           `json:"explanation"`
}

// Engine computes lead scores for units. It is stateless apart from its
// location rules and safe for concurrent use.
type Engine struct {
	rules LocationRules
}

// NewEngine creates a scoring engine with the given location rules.
func NewEngine(rules LocationRules) *Engine {
	return &Engine{rules: rules}
}

// Score computes the lead score (0-100) for a unit against a market
// snapshot, along with the component breakdown. It is pure and
// deterministic: identical inputs always produce identical results. The
// caller must supply a well-formed unit (positive square feet) and a
// snapshot with non-zero averages (BuildSnapshot guarantees this via its
// sentinel defaults).
func (e *Engine) Score(unit models.Unit, market MarketSnapshot, now time.Time) (float64, Breakdown) {
	breakdown := Breakdown{
		Components:  make(map[string]float64, 5),
		Explanation: []string{},
	}

	score := baseScore
	apply := func(component string, points float64, note string) {
		breakdown.Components[component] = points
		if note != "" {
			breakdown.Explanation = append(breakdown.Explanation, note)
		}
		score += points
	}

	points, note := priceCompetitiveness(unit.Price, market.AveragePrice)
	apply(ComponentPrice, points, note)

	days := wholeDaysSince(unit.ListedAt, now)
	points, note = listingFreshness(days)
	apply(ComponentFreshness, points, note)

	points, note = desirableFeatures(unit.Amenities)
	apply(ComponentFeatures, points, note)

	points, note = unitSizeAppeal(unit, market)
	apply(ComponentSize, points, note)

	points, note = e.locationDesirability(unit.Location)
	apply(ComponentLocation, points, note)

	total := round2(math.Max(0, math.Min(100, score)))
	breakdown.TotalScore = total

	return total, breakdown
}

// priceCompetitiveness compares the asking price to the market average.
// Range -15..+20.
func priceCompetitiveness(price int, marketAvg float64) (float64, string) {
	ratio := float64(price) / marketAvg

	switch {
	case ratio < 0.85:
		return 20, "Excellent pricing (well below market)"
	case ratio < 0.95:
		return 10, "Good value pricing"
	case ratio > 1.15:
		return -15, "Overpriced (above market)"
	case ratio > 1.05:
		return -5, "Slightly above market pricing"
	}
	return 0, ""
}

// listingFreshness rewards new listings and penalizes stale ones.
// Range -15..+15.
func listingFreshness(days int) (float64, string) {
	switch {
	case days < 3:
		return 15, fmt.Sprintf("Brand new listing (%d days)", days)
	case days < 7:
		return 10, fmt.Sprintf("Recent listing (%d days)", days)
	case days < 14:
		return 5, fmt.Sprintf("Fresh listing (%d days)", days)
	case days > 45:
		return -15, fmt.Sprintf("Stale listing (%d days)", days)
	case days > 30:
		return -10, fmt.Sprintf("Listing getting stale (%d days)", days)
	}
	return 0, ""
}

// desirableFeatures sums amenity weights, capped at 20. Range 0..+20.
func desirableFeatures(amenities []string) (float64, string) {
	var points float64
	for _, amenity := range amenities {
		weight, ok := amenityWeights[models.NormalizeTag(amenity)]
		if !ok {
			weight = 1
		}
		points += weight
	}
	if points > maxFeaturePoints {
		points = maxFeaturePoints
	}
	if points == 0 {
		return 0, ""
	}
	return points, fmt.Sprintf("Desirable amenities (+%g points)", points)
}

// unitSizeAppeal scores bedroom and bathroom counts plus space value
// against the market price per square foot. Range 0..+15.
func unitSizeAppeal(unit models.Unit, market MarketSnapshot) (float64, string) {
	var points float64

	switch {
	case unit.Bedrooms >= 3:
		points += 10
	case unit.Bedrooms == 2:
		points += 7
	case unit.Bedrooms == 1:
		points += 3
	}

	switch {
	case unit.Bathrooms >= 2.0:
		points += 5
	case unit.Bathrooms >= 1.5:
		points += 3
	}

	goodSpaceValue := false
	if unit.SquareFeet > 0 {
		pricePerSqft := float64(unit.Price) / float64(unit.SquareFeet)
		if pricePerSqft < market.AveragePricePerSqft*0.9 {
			points += 5
			goodSpaceValue = true
		}
	}

	if points == 0 {
		return 0, ""
	}
	if goodSpaceValue {
		return points, "Strong size appeal with great space value"
	}
	return points, "Strong size appeal"
}

// locationDesirability rewards prime zip codes and the target city.
// Range 0..+15.
func (e *Engine) locationDesirability(loc models.Location) (float64, string) {
	var points float64
	var notes []string

	for _, zip := range e.rules.PrimeZips {
		if loc.Zip == zip {
			points += 10
			notes = append(notes, "Prime zip code")
			break
		}
	}

	if e.rules.TargetCity != "" && containsFold(loc.City, e.rules.TargetCity) {
		points += 5
		notes = append(notes, "Target city")
	}

	if points == 0 {
		return 0, ""
	}
	if len(notes) == 2 {
		return points, notes[0] + ", " + notes[1]
	}
	return points, notes[0]
}

// wholeDaysSince returns the number of whole days elapsed from listed to
// now, never negative.
func wholeDaysSince(listed, now time.Time) int {
	days := int(now.Sub(listed).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
