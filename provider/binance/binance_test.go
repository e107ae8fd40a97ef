package binance

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sig-0/p2panel/market"
	"github.com/sig-0/p2panel/relay"
)

type mockQuoter struct {
	searchFn func(context.Context, *market.QuoteRequest) (*relay.SearchResponse, error)
}

func (m *mockQuoter) Search(
	ctx context.Context,
	q *market.QuoteRequest,
) (*relay.SearchResponse, error) {
	if m.searchFn != nil {
		return m.searchFn(ctx, q)
	}

	return &relay.SearchResponse{}, nil
}

// armedGate returns a gate armed for the duration of the test
func armedGate(t *testing.T) *Gate {
	t.Helper()

	g := NewGate()
	g.Arm()

	t.Cleanup(g.Disarm)

	return g
}

func offer(price string, orders, finishRate json.Number) relay.Offer {
	return relay.Offer{
		Adv: relay.Adv{
			Price: price,
		},
		Advertiser: relay.Advertiser{
			MonthOrderCount: orders,
			MonthFinishRate: finishRate,
		},
	}
}

func TestGate(t *testing.T) {
	t.Parallel()

	g := NewGate()

	assert.False(t, g.Allowed())

	g.Arm()
	assert.True(t, g.Allowed())

	g.Disarm()
	assert.False(t, g.Allowed())
}

func TestFetcher_GateBlocksNetwork(t *testing.T) {
	t.Parallel()

	var called bool

	quoter := &mockQuoter{
		searchFn: func(_ context.Context, _ *market.QuoteRequest) (*relay.SearchResponse, error) {
			called = true

			return &relay.SearchResponse{}, nil
		},
	}

	f := NewFetcher(quoter, NewGate())

	_, err := f.FetchAdvertisements(context.Background(), market.FiatARS, market.TradeTypeBUY)

	assert.ErrorIs(t, err, market.ErrFetchNotArmed)
	assert.False(t, called)
}

func TestFetcher_InvalidPair(t *testing.T) {
	t.Parallel()

	f := NewFetcher(&mockQuoter{}, armedGate(t))

	_, err := f.FetchAdvertisements(context.Background(), "USD", market.TradeTypeBUY)
	assert.ErrorIs(t, err, market.ErrInvalidFiat)

	_, err = f.FetchAdvertisements(context.Background(), market.FiatARS, "HOLD")
	assert.ErrorIs(t, err, market.ErrInvalidTradeType)
}

func TestFetcher_RequestShape(t *testing.T) {
	t.Parallel()

	var captured *market.QuoteRequest

	quoter := &mockQuoter{
		searchFn: func(_ context.Context, q *market.QuoteRequest) (*relay.SearchResponse, error) {
			captured = q

			return &relay.SearchResponse{
				Data: []relay.Offer{
					offer("1000", "100", "99"),
				},
			}, nil
		},
	}

	f := NewFetcher(quoter, armedGate(t), WithRows(50))

	_, err := f.FetchAdvertisements(context.Background(), market.FiatBOB, market.TradeTypeSELL)
	require.NoError(t, err)

	require.NotNil(t, captured)
	assert.Equal(t, market.AssetUSDT, captured.Asset)
	assert.Equal(t, market.FiatBOB, captured.Fiat)
	assert.Equal(t, market.TradeTypeSELL, captured.TradeType)
	assert.Equal(t, market.MaxRows, captured.Rows) // clamped
}

func TestFetcher_Sanitization(t *testing.T) {
	t.Parallel()

	quoter := &mockQuoter{
		searchFn: func(_ context.Context, _ *market.QuoteRequest) (*relay.SearchResponse, error) {
			return &relay.SearchResponse{
				Data: []relay.Offer{
					offer("1050.50", "120", "98.5"), // valid
					offer("-5", "120", "98.5"),      // negative price
					offer("NaN", "120", "98.5"),     // not a number
					offer("Inf", "120", "98.5"),     // not finite
					offer("2e10", "120", "98.5"),    // above sanity band
					offer("1e-9", "120", "98.5"),    // below sanity band
					offer("", "120", "98.5"),        // empty price
					offer("abc", "120", "98.5"),     // unparsable
					offer("1060", "-3", "98.5"),     // negative order count, metrics zeroed
					offer("1070", "120", "150"),     // finish rate out of range, metrics zeroed
					offer("1080", "junk", "junk"),   // unparsable metrics
				},
			}, nil
		},
	}

	f := NewFetcher(quoter, armedGate(t))

	ads, err := f.FetchAdvertisements(context.Background(), market.FiatARS, market.TradeTypeBUY)
	require.NoError(t, err)

	// Bad prices are dropped, bad advertiser metrics only zero the metrics
	require.Len(t, ads, 4)

	assert.Equal(
		t,
		market.Advertisement{Price: 1050.50, MonthOrderCount: 120, MonthFinishRate: 98.5},
		ads[0],
	)
	assert.Equal(
		t,
		market.Advertisement{Price: 1060, MonthOrderCount: 0, MonthFinishRate: 0},
		ads[1],
	)
	assert.Equal(
		t,
		market.Advertisement{Price: 1070, MonthOrderCount: 0, MonthFinishRate: 0},
		ads[2],
	)
	assert.Equal(
		t,
		market.Advertisement{Price: 1080, MonthOrderCount: 0, MonthFinishRate: 0},
		ads[3],
	)
}

func TestFetcher_NoSurvivors(t *testing.T) {
	t.Parallel()

	quoter := &mockQuoter{
		searchFn: func(_ context.Context, _ *market.QuoteRequest) (*relay.SearchResponse, error) {
			return &relay.SearchResponse{
				Data: []relay.Offer{
					offer("-5", "120", "98.5"),
					offer("0", "120", "98.5"),
				},
			}, nil
		},
	}

	f := NewFetcher(quoter, armedGate(t))

	_, err := f.FetchAdvertisements(context.Background(), market.FiatARS, market.TradeTypeBUY)
	assert.ErrorIs(t, err, market.ErrNoValidPrices)
}

func TestFetcher_UpstreamError(t *testing.T) {
	t.Parallel()

	quoter := &mockQuoter{
		searchFn: func(_ context.Context, _ *market.QuoteRequest) (*relay.SearchResponse, error) {
			return nil, &relay.UpstreamError{StatusCode: 503}
		},
	}

	f := NewFetcher(quoter, armedGate(t))

	_, err := f.FetchAdvertisements(context.Background(), market.FiatARS, market.TradeTypeBUY)
	assert.ErrorIs(t, err, market.ErrUpstream)
}
