package pricing

import (
	"sort"
	"time"

	"github.com/sig-0/p2panel/market"
)

const (
	// DefaultMinMonthOrders is the default advertiser order-count threshold
	DefaultMinMonthOrders = 50

	// DefaultMinFinishRate is the default advertiser completion-rate
	// threshold, in percent
	DefaultMinFinishRate = 95.0

	// DefaultSampleCap bounds the number of prices fed to the median
	DefaultSampleCap = 5
)

// Aggregator derives a single reference price from a sanitized
// advertisement sample
type Aggregator struct {
	minMonthOrders int
	minFinishRate  float64
	sampleCap      int
}

// NewAggregator creates a new Aggregator instance
func NewAggregator(opts ...Option) *Aggregator {
	a := &Aggregator{
		minMonthOrders: DefaultMinMonthOrders,
		minFinishRate:  DefaultMinFinishRate,
		sampleCap:      DefaultSampleCap,
	}

	// Apply the options
	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Aggregate computes the reference price for the given advertisement sample.
// The result is deterministic and independent of input ordering
func (a *Aggregator) Aggregate(ads []market.Advertisement) (*market.ReferencePrice, error) {
	if len(ads) == 0 {
		return nil, market.ErrNoValidPrices
	}

	// Quality filter on advertiser metrics
	filtered := FilterAds(ads, a.minMonthOrders, a.minFinishRate)

	var prices []float64

	if len(filtered) == 0 {
		// An overly strict filter should not deny an answer,
		// fall back to the unfiltered set
		prices = collectPrices(ads)
	} else {
		prices = collectPrices(filtered)
	}

	if len(prices) == 0 {
		return nil, market.ErrNoValidPrices
	}

	// Trim a single outlier off each end
	trimmed := RemoveOutliers(prices)
	if len(trimmed) == 0 {
		trimmed = prices
	}

	// Bound the sample fed to the median
	if len(trimmed) > a.sampleCap {
		trimmed = trimmed[:a.sampleCap]
	}

	price := Median(trimmed)
	if !market.ValidPrice(price) {
		return nil, market.ErrAggregation
	}

	samples := make([]float64, len(trimmed))
	copy(samples, trimmed)

	return &market.ReferencePrice{
		Price:      price,
		Samples:    samples,
		ComputedAt: time.Now().UTC(),
	}, nil
}

// Fallback reports whether the given sample would trigger the
// unfiltered fallback policy
func (a *Aggregator) Fallback(ads []market.Advertisement) bool {
	return len(ads) > 0 && len(FilterAds(ads, a.minMonthOrders, a.minFinishRate)) == 0
}

// FilterAds retains advertisements meeting the quality thresholds
func FilterAds(
	ads []market.Advertisement,
	minMonthOrders int,
	minFinishRate float64,
) []market.Advertisement {
	filtered := make([]market.Advertisement, 0, len(ads))

	for _, ad := range ads {
		if ad.MonthOrderCount < minMonthOrders {
			continue
		}

		if ad.MonthFinishRate < minFinishRate {
			continue
		}

		filtered = append(filtered, ad)
	}

	return filtered
}

// RemoveOutliers sorts the prices ascending and drops the single
// minimum and maximum. Samples of 2 or fewer are returned as-is
func RemoveOutliers(prices []float64) []float64 {
	if len(prices) == 0 {
		return nil
	}

	sorted := make([]float64, len(prices))
	copy(sorted, prices)
	sort.Float64s(sorted)

	if len(sorted) <= 2 {
		return sorted
	}

	return sorted[1 : len(sorted)-1]
}

// Median calculates the median of a slice of float64 values
func Median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	n := len(sorted)
	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2
	}

	return sorted[n/2]
}

// collectPrices extracts the usable prices from the given advertisements
func collectPrices(ads []market.Advertisement) []float64 {
	prices := make([]float64, 0, len(ads))

	for _, ad := range ads {
		if !market.ValidPrice(ad.Price) {
			continue
		}

		prices = append(prices, ad.Price)
	}

	return prices
}
