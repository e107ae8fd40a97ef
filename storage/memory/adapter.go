package memory

import (
	"context"
	"sync"
	"time"

	"github.com/sig-0/p2panel/market"
	"github.com/sig-0/p2panel/storage"
)

// Storage is the in-memory persistence adapter.
// State does not survive restarts; intended for development and tests
type Storage struct {
	snapshot *market.PriceSnapshot
	inputs   *market.Inputs
	anchor   time.Time

	mu sync.RWMutex
}

func NewStorage() *Storage {
	return &Storage{}
}

func (s *Storage) SaveSnapshot(_ context.Context, snapshot *market.PriceSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshot = snapshot

	return nil
}

func (s *Storage) LastSnapshot(_ context.Context) (*market.PriceSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.snapshot == nil {
		return nil, storage.ErrNotFound
	}

	return s.snapshot, nil
}

func (s *Storage) SaveInputs(_ context.Context, inputs *market.Inputs) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.inputs = inputs

	return nil
}

func (s *Storage) Inputs(_ context.Context) (*market.Inputs, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.inputs == nil {
		return nil, storage.ErrNotFound
	}

	return s.inputs, nil
}

func (s *Storage) SaveCooldownAnchor(_ context.Context, anchor time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.anchor = anchor.UTC()

	return nil
}

func (s *Storage) CooldownAnchor(_ context.Context) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.anchor.IsZero() {
		return time.Time{}, storage.ErrNotFound
	}

	return s.anchor, nil
}
