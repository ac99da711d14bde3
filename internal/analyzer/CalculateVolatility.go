package analyzer

import (
	"errors"
	"math"
	"sort"

	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/types"
)

// ErrInsufficientData indicates that not enough data points were provided
// to calculate volatility (need at least 2 points for 1 return).
var ErrInsufficientData = errors.New("insufficient data points to calculate volatility")

const millisPerYear = float64(DAYS_PER_YEAR * 24 * 60 * 60 * 1000)

// CalculateVolatility calculates the annualized historical volatility of a price series.
// It uses logarithmic returns and the population standard deviation, annualized by the
// median spacing of the samples. The input is not modified.
func CalculateVolatility(prices []types.PricePoint) (float64, error) {
	n := len(prices)
	if n < 2 {
		return 0, ErrInsufficientData
	}

	sorted := append([]types.PricePoint(nil), prices...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp < sorted[j].Timestamp
	})

	logReturns := make([]float64, 0, n-1)
	intervals := make([]int64, 0, n-1)
	for i := 1; i < n; i++ {
		currentPrice := sorted[i].Price
		previousPrice := sorted[i-1].Price
		interval := sorted[i].Timestamp - sorted[i-1].Timestamp

		// Non-positive prices break math.Log; duplicate timestamps carry no return.
		if previousPrice <= 0 || currentPrice <= 0 || interval <= 0 {
			continue
		}

		logReturns = append(logReturns, math.Log(currentPrice/previousPrice))
		intervals = append(intervals, interval)
	}

	numReturns := len(logReturns)
	if numReturns == 0 {
		return 0, ErrInsufficientData
	}

	var sum float64
	for _, r := range logReturns {
		sum += r
	}
	mean := sum / float64(numReturns)

	var sumSqDiff float64
	for _, r := range logReturns {
		sumSqDiff += math.Pow(r-mean, 2)
	}
	stdDev := math.Sqrt(sumSqDiff / float64(numReturns))

	return stdDev * math.Sqrt(periodsPerYear(intervals)), nil
}

// periodsPerYear is the number of median-spaced samples in a year.
func periodsPerYear(intervals []int64) float64 {
	sort.Slice(intervals, func(i, j int) bool { return intervals[i] < intervals[j] })
	median := intervals[len(intervals)/2]
	return millisPerYear / float64(median)
}
