package mock

import (
	"context"
	"time"

	"github.com/sig-0/p2panel/market"
	"github.com/sig-0/p2panel/storage"
)

type (
	SaveSnapshotDelegate       func(context.Context, *market.PriceSnapshot) error
	LastSnapshotDelegate       func(context.Context) (*market.PriceSnapshot, error)
	SaveInputsDelegate         func(context.Context, *market.Inputs) error
	InputsDelegate             func(context.Context) (*market.Inputs, error)
	SaveCooldownAnchorDelegate func(context.Context, time.Time) error
	CooldownAnchorDelegate     func(context.Context) (time.Time, error)
)

type Storage struct {
	SaveSnapshotFn       SaveSnapshotDelegate
	LastSnapshotFn       LastSnapshotDelegate
	SaveInputsFn         SaveInputsDelegate
	InputsFn             InputsDelegate
	SaveCooldownAnchorFn SaveCooldownAnchorDelegate
	CooldownAnchorFn     CooldownAnchorDelegate
}

func (m *Storage) SaveSnapshot(ctx context.Context, snapshot *market.PriceSnapshot) error {
	if m.SaveSnapshotFn != nil {
		return m.SaveSnapshotFn(ctx, snapshot)
	}

	return nil
}

func (m *Storage) LastSnapshot(ctx context.Context) (*market.PriceSnapshot, error) {
	if m.LastSnapshotFn != nil {
		return m.LastSnapshotFn(ctx)
	}

	return nil, storage.ErrNotFound
}

func (m *Storage) SaveInputs(ctx context.Context, inputs *market.Inputs) error {
	if m.SaveInputsFn != nil {
		return m.SaveInputsFn(ctx, inputs)
	}

	return nil
}

func (m *Storage) Inputs(ctx context.Context) (*market.Inputs, error) {
	if m.InputsFn != nil {
		return m.InputsFn(ctx)
	}

	return nil, storage.ErrNotFound
}

func (m *Storage) SaveCooldownAnchor(ctx context.Context, anchor time.Time) error {
	if m.SaveCooldownAnchorFn != nil {
		return m.SaveCooldownAnchorFn(ctx, anchor)
	}

	return nil
}

func (m *Storage) CooldownAnchor(ctx context.Context) (time.Time, error) {
	if m.CooldownAnchorFn != nil {
		return m.CooldownAnchorFn(ctx)
	}

	return time.Time{}, storage.ErrNotFound
}
