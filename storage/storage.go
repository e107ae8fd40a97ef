package storage

import (
	"context"
	"errors"
	"time"

	"github.com/sig-0/p2panel/market"
)

// ErrNotFound signals that the requested state was never persisted
var ErrNotFound = errors.New("not found in storage")

// Storage is the durable persistence port: best-effort storage of the
// last-good snapshot (samples ride inside its reference prices), the
// user's conversion inputs, and the refresh cooldown anchor
type Storage interface {
	// SaveSnapshot persists the last-known-good price snapshot
	SaveSnapshot(context.Context, *market.PriceSnapshot) error

	// LastSnapshot fetches the last persisted snapshot
	LastSnapshot(context.Context) (*market.PriceSnapshot, error)

	// SaveInputs persists the user's conversion inputs
	SaveInputs(context.Context, *market.Inputs) error

	// Inputs fetches the persisted conversion inputs
	Inputs(context.Context) (*market.Inputs, error)

	// SaveCooldownAnchor persists the last successful fetch time,
	// so the cooldown window survives restarts
	SaveCooldownAnchor(context.Context, time.Time) error

	// CooldownAnchor fetches the persisted cooldown anchor
	CooldownAnchor(context.Context) (time.Time, error)
}
