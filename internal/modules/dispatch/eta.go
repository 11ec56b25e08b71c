package dispatch

import "math"

const (
	averageSpeedKmh    = 30.0
	etaOverheadMinutes = 2
)

// ETAMinutes estimates travel time at urban speed plus a fixed overhead for
// getting moving. Never below one minute.
func ETAMinutes(distanceKm float64) int {
	return max(1, int(math.Round(distanceKm/averageSpeedKmh*60))+etaOverheadMinutes)
}
