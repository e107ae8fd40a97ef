package refresh

import (
	"context"
	"sync"

	"github.com/sig-0/p2panel/market"
)

type (
	fetchDelegate     func(context.Context, market.Fiat, market.TradeType) ([]market.Advertisement, error)
	aggregateDelegate func([]market.Advertisement) (*market.ReferencePrice, error)
)

type mockFetcher struct {
	fetchFn fetchDelegate
}

func (m *mockFetcher) FetchAdvertisements(
	ctx context.Context,
	fiat market.Fiat,
	tradeType market.TradeType,
) ([]market.Advertisement, error) {
	if m.fetchFn != nil {
		return m.fetchFn(ctx, fiat, tradeType)
	}

	return nil, nil
}

type mockAggregator struct {
	aggregateFn aggregateDelegate
}

func (m *mockAggregator) Aggregate(ads []market.Advertisement) (*market.ReferencePrice, error) {
	if m.aggregateFn != nil {
		return m.aggregateFn(ads)
	}

	return nil, nil
}

// mockGate records arming state transitions
type mockGate struct {
	mu      sync.Mutex
	armed   bool
	arms    int
	disarms int
}

func (m *mockGate) Arm() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.armed = true
	m.arms++
}

func (m *mockGate) Disarm() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.armed = false
	m.disarms++
}

func (m *mockGate) isArmed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.armed
}
