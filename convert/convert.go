// Package convert implements the pure conversion calculator on top
// of a complete price snapshot. Money math uses decimals end to end,
// the float reference prices are only lifted once at the boundary
package convert

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/sig-0/p2panel/market"
)

// MaxAmount is the hard amount ceiling, an abuse guard
var MaxAmount = decimal.New(1, 12) // 1e12

// Convert maps the amount across the USDT legs of the snapshot.
//
// ARS -> BOB: usdt = amount / arsBuy;  result = usdt * bobSell
// BOB -> ARS: usdt = amount / bobBuy;  result = usdt * arsSell
func Convert(
	amount decimal.Decimal,
	direction market.Direction,
	snapshot *market.PriceSnapshot,
) (decimal.Decimal, error) {
	if !direction.Valid() {
		return decimal.Zero, market.ErrInvalidResult
	}

	if amount.Sign() <= 0 || amount.GreaterThan(MaxAmount) {
		return decimal.Zero, market.ErrInvalidAmount
	}

	if !snapshot.Complete() {
		return decimal.Zero, market.ErrNoData
	}

	var divisor, multiplier float64

	switch direction {
	case market.DirectionARSToBOB:
		divisor = snapshot.Rate(market.Pair{Fiat: market.FiatARS, TradeType: market.TradeTypeBUY}).Price
		multiplier = snapshot.Rate(market.Pair{Fiat: market.FiatBOB, TradeType: market.TradeTypeSELL}).Price
	case market.DirectionBOBToARS:
		divisor = snapshot.Rate(market.Pair{Fiat: market.FiatBOB, TradeType: market.TradeTypeBUY}).Price
		multiplier = snapshot.Rate(market.Pair{Fiat: market.FiatARS, TradeType: market.TradeTypeSELL}).Price
	}

	result := amount.
		Div(decimal.NewFromFloat(divisor)).
		Mul(decimal.NewFromFloat(multiplier))

	if result.Sign() <= 0 {
		return decimal.Zero, market.ErrInvalidResult
	}

	return result, nil
}

// Spread returns the buy/sell spread as a percentage of the buy price
func Spread(buy, sell float64) float64 {
	if buy <= 0 || sell <= 0 {
		return 0
	}

	return (sell - buy) / buy * 100
}

// PercentageDiff returns how far the best price sits from the median,
// as a percentage of the median
func PercentageDiff(best, median float64) float64 {
	if best <= 0 || median <= 0 {
		return 0
	}

	return (best - median) / median * 100
}

// BestPrice returns the lowest price in the sample
func BestPrice(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}

	best := samples[0]
	for _, s := range samples[1:] {
		if s < best {
			best = s
		}
	}

	return best
}

// ParseAmount normalizes a human-formatted amount string.
// Dots are thousands separators, the comma is the decimal separator:
// "10.000,50" -> 10000.50
func ParseAmount(input string) (decimal.Decimal, error) {
	cleaned := strings.TrimSpace(input)
	if cleaned == "" {
		return decimal.Zero, market.ErrInvalidAmount
	}

	cleaned = strings.ReplaceAll(cleaned, ".", "")
	cleaned = strings.ReplaceAll(cleaned, ",", ".")

	amount, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, market.ErrInvalidAmount
	}

	if amount.Sign() < 0 {
		return decimal.Zero, market.ErrInvalidAmount
	}

	return amount, nil
}
