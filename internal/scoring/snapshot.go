package scoring

import (
	"github.com/kmoreland/leasepulse/internal/models"
)

// Sentinel market defaults used when no units are available, so that
// scoring never divides by zero.
const (
	SentinelAveragePrice        = 1500.0
	SentinelAveragePricePerSqft = 1.5
)

// MarketSnapshot holds summary statistics over the currently available
// population. It is derived on demand and never persisted.
type MarketSnapshot struct {
	AveragePrice        float64 `json:"average_price"`
	AveragePricePerSqft float64 `json:"average_price_per_sqft"`
	TotalUnits          int     `json:"total_units"`
}

// BuildSnapshot computes market statistics over the available subset of the
// given units. Units in any other status are ignored. An empty available
// population yields the sentinel defaults.
func BuildSnapshot(units []models.Unit) MarketSnapshot {
	var totalPrice, totalSqft, count int
	for _, u := range units {
		if u.Status != models.StatusAvailable {
			continue
		}
		totalPrice += u.Price
		totalSqft += u.SquareFeet
		count++
	}

	if count == 0 {
		return MarketSnapshot{
			AveragePrice:        SentinelAveragePrice,
			AveragePricePerSqft: SentinelAveragePricePerSqft,
			TotalUnits:          0,
		}
	}

	return MarketSnapshot{
		AveragePrice:        float64(totalPrice) / float64(count),
		AveragePricePerSqft: float64(totalPrice) / float64(totalSqft),
		TotalUnits:          count,
	}
}
