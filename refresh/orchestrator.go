// Package refresh implements the acquisition orchestrator: the single
// entry point through which the four (fiat, side) reference prices are
// fetched, aggregated and published as one atomic snapshot.
//
// A refresh cycle only ever starts from an explicit user action. The
// orchestrator owns the fetch-permission gate, the single-flight lock
// and the cooldown window; all three are enforced here and nowhere else
package refresh

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/rs/xid"
	"golang.org/x/sync/errgroup"

	"github.com/sig-0/p2panel/cache"
	"github.com/sig-0/p2panel/market"
	"github.com/sig-0/p2panel/storage"
)

// DefaultMinInterval is the minimum interval between successful
// refresh cycles
const DefaultMinInterval = time.Minute

// persistTimeout bounds the best-effort persistence calls
const persistTimeout = time.Second * 10

var noopLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// Fetcher retrieves the sanitized advertisement sample for a single pair
type Fetcher interface {
	FetchAdvertisements(
		ctx context.Context,
		fiat market.Fiat,
		tradeType market.TradeType,
	) ([]market.Advertisement, error)
}

// Aggregator derives a reference price from an advertisement sample
type Aggregator interface {
	Aggregate(ads []market.Advertisement) (*market.ReferencePrice, error)
}

// Gate is the fetch-permission gate, armed only for the duration
// of a refresh cycle
type Gate interface {
	Arm()
	Disarm()
}

// Orchestrator runs the full acquisition cycle for all four pairs
type Orchestrator struct {
	fetcher    Fetcher
	aggregator Aggregator
	gate       Gate
	cache      *cache.Cache
	storage    storage.Storage
	logger     *slog.Logger

	minInterval time.Duration
	now         func() time.Time

	// refreshMu is the single-flight lock, held for the whole cycle
	refreshMu sync.Mutex

	// stateMu guards the cooldown anchor
	stateMu     sync.Mutex
	lastSuccess time.Time
}

// New creates a new Orchestrator instance
func New(
	fetcher Fetcher,
	aggregator Aggregator,
	gate Gate,
	priceCache *cache.Cache,
	store storage.Storage,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		fetcher:     fetcher,
		aggregator:  aggregator,
		gate:        gate,
		cache:       priceCache,
		storage:     store,
		logger:      noopLogger,
		minInterval: DefaultMinInterval,
		now:         time.Now,
	}

	// Apply the options
	for _, opt := range opts {
		opt(o)
	}

	return o
}

// Restore loads the persisted panel state after a restart: the
// cooldown anchor, so a restart does not reopen a window that is
// still running, and the last-good snapshot back into the cache,
// when it is complete and still within the cache TTL. It never fetches
func (o *Orchestrator) Restore(ctx context.Context) error {
	anchor, err := o.storage.CooldownAnchor(ctx)

	switch {
	case err == nil:
		o.stateMu.Lock()
		o.lastSuccess = anchor
		o.stateMu.Unlock()

		o.logger.Info(
			"cooldown anchor restored",
			"anchor", anchor.String(),
		)
	case errors.Is(err, storage.ErrNotFound):
	default:
		return fmt.Errorf("unable to restore cooldown anchor: %w", err)
	}

	snapshot, err := o.storage.LastSnapshot(ctx)

	switch {
	case err == nil:
	case errors.Is(err, storage.ErrNotFound):
		return nil
	default:
		return fmt.Errorf("unable to restore last snapshot: %w", err)
	}

	if !snapshot.Complete() {
		return nil
	}

	// A snapshot past the cache TTL is no fresher than no snapshot
	if o.now().Sub(snapshot.CreatedAt) >= o.cache.TTL() {
		return nil
	}

	o.cache.SetSnapshot(snapshot)

	o.logger.Info(
		"snapshot restored",
		"snapshot", snapshot.ID,
		"created_at", snapshot.CreatedAt.String(),
	)

	return nil
}

// Cooldown returns the remaining cooldown window, zero when closed
func (o *Orchestrator) Cooldown() time.Duration {
	o.stateMu.Lock()
	defer o.stateMu.Unlock()

	return o.cooldownLocked()
}

func (o *Orchestrator) cooldownLocked() time.Duration {
	if o.lastSuccess.IsZero() {
		return 0
	}

	remaining := o.minInterval - o.now().Sub(o.lastSuccess)
	if remaining < 0 {
		return 0
	}

	return remaining
}

// RefreshAll runs a single user-triggered acquisition cycle: it fetches
// and aggregates all four pairs concurrently, and atomically publishes
// the resulting snapshot to the cache.
//
// A failed cycle publishes nothing. The previously persisted last-good
// snapshot, if any, is restored into the cache instead, and the cooldown
// window is NOT started, so the user may retry once the lock is released
func (o *Orchestrator) RefreshAll(ctx context.Context) (*market.PriceSnapshot, error) {
	if !o.refreshMu.TryLock() {
		return nil, market.ErrRefreshInProgress
	}
	defer o.refreshMu.Unlock()

	o.stateMu.Lock()
	remaining := o.cooldownLocked()
	o.stateMu.Unlock()

	if remaining > 0 {
		return nil, &market.RateLimitError{Remaining: remaining}
	}

	cycleID := xid.New()

	o.logger.Info(
		"refresh cycle started",
		"cycle", cycleID.String(),
	)

	// Arm the fetch-permission gate for this cycle only.
	// The gate is disarmed on every exit path
	o.gate.Arm()
	defer o.gate.Disarm()

	// Drop the cached snapshot up front, stale data must not be
	// served as fresh while the refresh is underway
	o.cache.Clear()

	// A started cycle always runs to completion: the caller dropping
	// the connection must not abort in-flight fetches
	cycleCtx := context.WithoutCancel(ctx)

	snapshot, err := o.runCycle(cycleCtx, cycleID)
	if err != nil {
		o.logger.Error(
			"refresh cycle failed",
			"cycle", cycleID.String(),
			"err", err,
		)

		o.restoreLastGood(ctx)

		return nil, err
	}

	// Publish atomically, then anchor the cooldown
	o.cache.SetSnapshot(snapshot)

	o.stateMu.Lock()
	o.lastSuccess = o.now()
	o.stateMu.Unlock()

	o.persist(ctx, snapshot)

	o.logger.Info(
		"refresh cycle complete",
		"cycle", cycleID.String(),
		"created_at", snapshot.CreatedAt.String(),
	)

	return snapshot, nil
}

// runCycle fetches and aggregates all four pairs concurrently
func (o *Orchestrator) runCycle(
	ctx context.Context,
	cycleID xid.ID,
) (*market.PriceSnapshot, error) {
	var (
		pairs   = market.Pairs()
		results = make([]*market.ReferencePrice, len(pairs))
	)

	group, gCtx := errgroup.WithContext(ctx)

	for i, pair := range pairs {
		i, pair := i, pair

		group.Go(func() error {
			ads, err := o.fetcher.FetchAdvertisements(gCtx, pair.Fiat, pair.TradeType)
			if err != nil {
				return fmt.Errorf("unable to fetch %s: %w", pair, err)
			}

			rp, err := o.aggregator.Aggregate(ads)
			if err != nil {
				return fmt.Errorf("unable to aggregate %s: %w", pair, err)
			}

			results[i] = rp

			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	rates := make(map[market.Pair]*market.ReferencePrice, len(pairs))
	for i, pair := range pairs {
		rates[pair] = results[i]
	}

	snapshot := &market.PriceSnapshot{
		ID:        cycleID.String(),
		Rates:     rates,
		CreatedAt: o.now().UTC(),
	}

	// Post-validation: every derived price must be positive and finite
	if err := snapshot.Validate(); err != nil {
		return nil, fmt.Errorf("%w: snapshot validation failed", err)
	}

	return snapshot, nil
}

// restoreLastGood loads the last persisted snapshot back into the cache,
// best effort. Stale data is preferable to no data after a failed cycle
func (o *Orchestrator) restoreLastGood(ctx context.Context) {
	restoreCtx, cancelFn := context.WithTimeout(
		context.WithoutCancel(ctx),
		persistTimeout,
	)
	defer cancelFn()

	snapshot, err := o.storage.LastSnapshot(restoreCtx)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			o.logger.Warn(
				"unable to restore last-good snapshot",
				"err", err,
			)
		}

		return
	}

	if !snapshot.Complete() {
		return
	}

	o.cache.SetSnapshot(snapshot)

	o.logger.Info(
		"restored last-good snapshot",
		"snapshot", snapshot.ID,
	)
}

// persist saves the snapshot and cooldown anchor, best effort.
// Persistence failures never fail a completed cycle
func (o *Orchestrator) persist(ctx context.Context, snapshot *market.PriceSnapshot) {
	persistCtx, cancelFn := context.WithTimeout(
		context.WithoutCancel(ctx),
		persistTimeout,
	)
	defer cancelFn()

	if err := o.storage.SaveSnapshot(persistCtx, snapshot); err != nil {
		o.logger.Warn(
			"unable to persist snapshot",
			"err", err,
		)
	}

	if err := o.storage.SaveCooldownAnchor(persistCtx, o.now()); err != nil {
		o.logger.Warn(
			"unable to persist cooldown anchor",
			"err", err,
		)
	}
}
