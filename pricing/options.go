package pricing

type Option func(a *Aggregator)

// WithMinMonthOrders specifies the advertiser order-count threshold
func WithMinMonthOrders(n int) Option {
	return func(a *Aggregator) {
		a.minMonthOrders = n
	}
}

// WithMinFinishRate specifies the advertiser completion-rate threshold,
// in percent
func WithMinFinishRate(rate float64) Option {
	return func(a *Aggregator) {
		a.minFinishRate = rate
	}
}

// WithSampleCap specifies the maximum number of prices fed to the median
func WithSampleCap(cap int) Option {
	return func(a *Aggregator) {
		if cap > 0 {
			a.sampleCap = cap
		}
	}
}
