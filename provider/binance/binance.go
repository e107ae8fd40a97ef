// Package binance fetches and sanitizes USDT advertisement quotes
// from the Binance P2P market, through the proxy relay client.
//
// Advertisements with an unusable price are dropped outright, never
// defaulted: a zero price entering the median would corrupt the
// derived reference price. Advertiser metrics outside their sane
// ranges are zeroed instead, which simply excludes the ad from the
// quality filter downstream.
package binance

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"

	"github.com/sig-0/p2panel/market"
	"github.com/sig-0/p2panel/relay"
)

const (
	// Price sanity band, values outside it are treated as manipulation
	maxSanePrice = 1e9
	minSanePrice = 1e-6

	// maxMonthOrders caps the advertiser order count
	maxMonthOrders = 1_000_000
)

var noopLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// Quoter relays a validated quote search upstream
type Quoter interface {
	Search(ctx context.Context, q *market.QuoteRequest) (*relay.SearchResponse, error)
}

// Fetcher retrieves sanitized advertisements for a single (fiat, side) pair
type Fetcher struct {
	quoter Quoter
	gate   *Gate
	logger *slog.Logger
	rows   int
}

// NewFetcher creates a new quote fetcher
func NewFetcher(quoter Quoter, gate *Gate, opts ...Option) *Fetcher {
	f := &Fetcher{
		quoter: quoter,
		gate:   gate,
		logger: noopLogger,
		rows:   market.DefaultRows,
	}

	// Apply the options
	for _, opt := range opts {
		opt(f)
	}

	return f
}

// FetchAdvertisements fetches and sanitizes the advertisement sample
// for the given pair. The fetch-permission gate must be armed
func (f *Fetcher) FetchAdvertisements(
	ctx context.Context,
	fiat market.Fiat,
	tradeType market.TradeType,
) ([]market.Advertisement, error) {
	if !f.gate.Allowed() {
		return nil, market.ErrFetchNotArmed
	}

	q, err := market.NewQuoteRequest(market.AssetUSDT, fiat, tradeType, f.rows)
	if err != nil {
		return nil, err
	}

	resp, err := f.quoter.Search(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("unable to fetch %s %s quotes: %w", fiat, tradeType, err)
	}

	ads := make([]market.Advertisement, 0, len(resp.Data))

	for _, offer := range resp.Data {
		price, ok := sanitizePrice(offer.Adv.Price)
		if !ok {
			// Dropped, never defaulted
			continue
		}

		orders, finishRate := sanitizeAdvertiser(offer.Advertiser)

		ads = append(ads, market.Advertisement{
			Price:           price,
			MonthOrderCount: orders,
			MonthFinishRate: finishRate,
		})
	}

	if len(ads) == 0 {
		return nil, fmt.Errorf("%w for %s %s", market.ErrNoValidPrices, fiat, tradeType)
	}

	f.logger.Debug(
		"fetched advertisement sample",
		"fiat", fiat,
		"trade_type", tradeType,
		"received", len(resp.Data),
		"survived", len(ads),
	)

	return ads, nil
}

// sanitizePrice parses and validates an advertisement price
func sanitizePrice(value string) (float64, bool) {
	if value == "" {
		return 0, false
	}

	price, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, false
	}

	if math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
		return 0, false
	}

	if price > maxSanePrice || price < minSanePrice {
		return 0, false
	}

	return price, true
}

// sanitizeAdvertiser validates the advertiser quality metrics.
// Invalid or out-of-range metrics zero the pair, excluding the
// advertisement from the quality filter
func sanitizeAdvertiser(a relay.Advertiser) (int, float64) {
	orders, err := strconv.Atoi(a.MonthOrderCount.String())
	if err != nil {
		orders = 0
	}

	finishRate, err := strconv.ParseFloat(a.MonthFinishRate.String(), 64)
	if err != nil || math.IsNaN(finishRate) || math.IsInf(finishRate, 0) {
		finishRate = 0
	}

	if orders < 0 || orders > maxMonthOrders {
		return 0, 0
	}

	if finishRate < 0 || finishRate > 100 {
		return 0, 0
	}

	return orders, finishRate
}
