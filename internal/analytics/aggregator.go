// Package analytics computes read-only dashboard aggregations over the unit
// population. Every function is total: degenerate inputs (empty populations,
// zero denominators) produce zeroed results, never errors. Percentages and
// ratios are rounded at this boundary only, not in intermediate steps.
package analytics

import (
	"math"
	"sort"
	"time"

	"github.com/kmoreland/leasepulse/internal/models"
)

// DefaultFeatureLimit caps the feature popularity list.
const DefaultFeatureLimit = 10

// DefaultTrendDays is the trailing window for price trends.
const DefaultTrendDays = 30

// Dashboard bundles the headline metrics for the leasing dashboard.
type Dashboard struct {
	TotalUnits          int            `json:"total_units"`
	AvailableUnits      int            `json:"available_units"`
	LeasedUnits         int            `json:"leased_units"`
	PendingUnits        int            `json:"pending_units"`
	AverageDaysToLease  float64        `json:"average_days_to_lease"`
	LeaseConversionRate float64        `json:"lease_conversion_rate"`
	AveragePrice        float64        `json:"average_price"`
	MostPopularFeatures []FeatureScore `json:"most_popular_features"`
	PriceTrends         []PricePoint   `json:"price_trends"`
}

// FeatureScore reports how often an amenity appears in leased versus
// available units. A higher ratio means the feature converts better.
type FeatureScore struct {
	Feature         string  `json:"feature"`
	LeasedCount     int     `json:"leased_count"`
	AvailableCount  int     `json:"available_count"`
	TotalCount      int     `json:"total_count"`
	PopularityRatio float64 `json:"popularity_ratio"`
}

// PricePoint is the mean asking price of units listed on a calendar date.
type PricePoint struct {
	Date         string  `json:"date"`
	AveragePrice float64 `json:"average_price"`
	UnitCount    int     `json:"unit_count"`
}

// BedroomBucket counts units with a given bedroom count.
type BedroomBucket struct {
	Bedrooms int `json:"bedrooms"`
	Count    int `json:"count"`
}

// CityBucket counts units in a given city.
type CityBucket struct {
	City  string `json:"city"`
	Count int    `json:"count"`
}

// Performance holds the key performance indicators.
type Performance struct {
	OccupancyRate    float64 `json:"occupancy_rate"`
	AverageLeadScore float64 `json:"average_lead_score"`
	RecentLeases30d  int     `json:"recent_leases_30d"`
	TotalUnits       int     `json:"total_units"`
	AvailableUnits   int     `json:"available_units"`
}

// BuildDashboard computes the full dashboard over the given population.
func BuildDashboard(units []models.Unit, now time.Time) Dashboard {
	counts := statusCounts(units)

	var totalPrice int
	for _, u := range units {
		totalPrice += u.Price
	}
	avgPrice := 0.0
	if len(units) > 0 {
		avgPrice = float64(totalPrice) / float64(len(units))
	}

	return Dashboard{
		TotalUnits:          len(units),
		AvailableUnits:      counts[models.StatusAvailable],
		LeasedUnits:         counts[models.StatusLeased],
		PendingUnits:        counts[models.StatusPending],
		AverageDaysToLease:  round1(AverageDaysToLease(units)),
		LeaseConversionRate: round2(ConversionRate(counts[models.StatusLeased], counts[models.StatusLeased]+counts[models.StatusAvailable])),
		AveragePrice:        round2(avgPrice),
		MostPopularFeatures: FeaturePopularity(units, DefaultFeatureLimit),
		PriceTrends:         PriceTrends(units, DefaultTrendDays, now),
	}
}

// AverageDaysToLease returns the mean whole days between listing and lease
// over leased units with a lease timestamp, or 0.0 when there are none.
func AverageDaysToLease(units []models.Unit) float64 {
	var totalDays, count int
	for _, u := range units {
		if u.Status != models.StatusLeased || u.LeasedAt == nil {
			continue
		}
		totalDays += int(u.LeasedAt.Sub(u.ListedAt).Hours() / 24)
		count++
	}
	if count == 0 {
		return 0.0
	}
	return float64(totalDays) / float64(count)
}

// ConversionRate returns leased/total as a percentage, or 0.0 when the
// denominator is zero.
func ConversionRate(leased, total int) float64 {
	if total == 0 {
		return 0.0
	}
	return float64(leased) / float64(total) * 100
}

// FeaturePopularity ranks amenity tags by the share of units carrying them
// that leased, truncated to limit entries. Ties sort by feature name for a
// stable order.
func FeaturePopularity(units []models.Unit, limit int) []FeatureScore {
	leased := make(map[string]int)
	available := make(map[string]int)

	for _, u := range units {
		var counter map[string]int
		switch u.Status {
		case models.StatusLeased:
			counter = leased
		case models.StatusAvailable:
			counter = available
		default:
			continue
		}
		for _, amenity := range u.Amenities {
			counter[amenity]++
		}
	}

	scores := make([]FeatureScore, 0, len(leased)+len(available))
	seen := make(map[string]bool)
	for _, counter := range []map[string]int{leased, available} {
		for amenity := range counter {
			if seen[amenity] {
				continue
			}
			seen[amenity] = true

			leasedCount := leased[amenity]
			availableCount := available[amenity]
			total := leasedCount + availableCount

			ratio := 0.0
			if total > 0 {
				ratio = float64(leasedCount) / float64(total)
			}

			scores = append(scores, FeatureScore{
				Feature:         amenity,
				LeasedCount:     leasedCount,
				AvailableCount:  availableCount,
				TotalCount:      total,
				PopularityRatio: round3(ratio),
			})
		}
	}

	sort.Slice(scores, func(i, j int) bool {
		if scores[i].PopularityRatio != scores[j].PopularityRatio {
			return scores[i].PopularityRatio > scores[j].PopularityRatio
		}
		return scores[i].Feature < scores[j].Feature
	})

	if len(scores) > limit {
		scores = scores[:limit]
	}
	return scores
}

// PriceTrends groups units listed within the trailing window by the calendar
// date they were listed, reporting per-date mean price and count, ascending
// by date.
func PriceTrends(units []models.Unit, days int, now time.Time) []PricePoint {
	cutoff := now.AddDate(0, 0, -days)

	type bucket struct {
		totalPrice int
		count      int
	}
	byDate := make(map[string]*bucket)
	for _, u := range units {
		if u.ListedAt.Before(cutoff) {
			continue
		}
		key := u.ListedAt.Format("2006-01-02")
		b, ok := byDate[key]
		if !ok {
			b = &bucket{}
			byDate[key] = b
		}
		b.totalPrice += u.Price
		b.count++
	}

	trends := make([]PricePoint, 0, len(byDate))
	for date, b := range byDate {
		trends = append(trends, PricePoint{
			Date:         date,
			AveragePrice: round2(float64(b.totalPrice) / float64(b.count)),
			UnitCount:    b.count,
		})
	}
	sort.Slice(trends, func(i, j int) bool { return trends[i].Date < trends[j].Date })

	return trends
}

// BedroomDistribution counts units per bedroom count, ascending by bedrooms.
func BedroomDistribution(units []models.Unit) []BedroomBucket {
	counts := make(map[int]int)
	for _, u := range units {
		counts[u.Bedrooms]++
	}

	buckets := make([]BedroomBucket, 0, len(counts))
	for bedrooms, count := range counts {
		buckets = append(buckets, BedroomBucket{Bedrooms: bedrooms, Count: count})
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Bedrooms < buckets[j].Bedrooms })

	return buckets
}

// StatusDistribution counts units per status value.
func StatusDistribution(units []models.Unit) map[string]int {
	counts := make(map[string]int)
	for _, u := range units {
		counts[string(u.Status)]++
	}
	return counts
}

// CityDistribution counts units per city, limited to the top 10 by count.
// Units without a city fall under "Unknown".
func CityDistribution(units []models.Unit) []CityBucket {
	counts := make(map[string]int)
	for _, u := range units {
		city := u.Location.City
		if city == "" {
			city = "Unknown"
		}
		counts[city]++
	}

	buckets := make([]CityBucket, 0, len(counts))
	for city, count := range counts {
		buckets = append(buckets, CityBucket{City: city, Count: count})
	}
	sort.Slice(buckets, func(i, j int) bool {
		if buckets[i].Count != buckets[j].Count {
			return buckets[i].Count > buckets[j].Count
		}
		return buckets[i].City < buckets[j].City
	})

	const limit = 10
	if len(buckets) > limit {
		buckets = buckets[:limit]
	}
	return buckets
}

// PerformanceMetrics computes the KPI set: occupancy, mean lead score of
// available units, and lease volume over the trailing 30 days.
func PerformanceMetrics(units []models.Unit, now time.Time) Performance {
	counts := statusCounts(units)
	total := len(units)

	occupancy := 0.0
	if total > 0 {
		occupancy = float64(counts[models.StatusLeased]) / float64(total) * 100
	}

	var scoreSum float64
	for _, u := range units {
		if u.Status == models.StatusAvailable {
			scoreSum += u.LeadScore
		}
	}
	avgScore := 0.0
	if counts[models.StatusAvailable] > 0 {
		avgScore = scoreSum / float64(counts[models.StatusAvailable])
	}

	cutoff := now.AddDate(0, 0, -30)
	recent := 0
	for _, u := range units {
		if u.Status == models.StatusLeased && u.LeasedAt != nil && !u.LeasedAt.Before(cutoff) {
			recent++
		}
	}

	return Performance{
		OccupancyRate:    round2(occupancy),
		AverageLeadScore: round2(avgScore),
		RecentLeases30d:  recent,
		TotalUnits:       total,
		AvailableUnits:   counts[models.StatusAvailable],
	}
}

func statusCounts(units []models.Unit) map[models.UnitStatus]int {
	counts := make(map[models.UnitStatus]int, 3)
	for _, u := range units {
		counts[u.Status]++
	}
	return counts
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
