package market

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrInvalidAsset signals an asset outside the relay allow-list
	ErrInvalidAsset = errors.New("invalid asset")

	// ErrInvalidFiat signals a fiat outside the supported set
	ErrInvalidFiat = errors.New("invalid fiat currency")

	// ErrInvalidTradeType signals an unknown quote side
	ErrInvalidTradeType = errors.New("invalid trade type")

	// ErrUpstream signals a non-OK status or malformed payload
	// from the quote source
	ErrUpstream = errors.New("upstream quote source error")

	// ErrNoValidPrices signals that no advertisement survived sanitization
	ErrNoValidPrices = errors.New("no valid prices found")

	// ErrAggregation signals that the sample could not produce a usable price
	ErrAggregation = errors.New("unable to aggregate reference price")

	// ErrRefreshInProgress signals an overlapping refresh attempt
	ErrRefreshInProgress = errors.New("refresh already in progress")

	// ErrFetchNotArmed signals a network attempt outside a
	// user-triggered refresh cycle
	ErrFetchNotArmed = errors.New("fetch not allowed")

	// ErrNoData signals an incomplete or missing price snapshot
	ErrNoData = errors.New("prices not available")

	// ErrInvalidResult signals a computed value that failed a sanity check
	ErrInvalidResult = errors.New("invalid calculation result")

	// ErrInvalidAmount signals a conversion amount outside the accepted range
	ErrInvalidAmount = errors.New("invalid amount")
)

// RateLimitError is returned when the refresh cooldown window is still open
type RateLimitError struct {
	Remaining time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf(
		"rate limit: please wait %d seconds before refreshing again",
		e.RemainingSeconds(),
	)
}

// RemainingSeconds returns the remaining cooldown, rounded up
// for user display
func (e *RateLimitError) RemainingSeconds() int {
	return int(math.Ceil(e.Remaining.Seconds()))
}

// ValidPrice reports if the value is a usable positive finite price
func ValidPrice(value float64) bool {
	return !math.IsNaN(value) && !math.IsInf(value, 0) && value > 0
}
