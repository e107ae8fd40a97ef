package binance

import "sync/atomic"

// Gate is the fetch-permission gate. Both flags must be set for any
// network call to proceed, and they are only set for the duration of
// a user-triggered refresh cycle
type Gate struct {
	userTriggered atomic.Bool
	fetchAllowed  atomic.Bool
}

// NewGate creates a new, disarmed gate
func NewGate() *Gate {
	return &Gate{}
}

// Arm enables fetching for a user-initiated action
func (g *Gate) Arm() {
	g.userTriggered.Store(true)
	g.fetchAllowed.Store(true)
}

// Disarm unconditionally disables fetching after the cycle completes
func (g *Gate) Disarm() {
	g.userTriggered.Store(false)
	g.fetchAllowed.Store(false)
}

// Allowed reports if a network call may proceed
func (g *Gate) Allowed() bool {
	return g.userTriggered.Load() && g.fetchAllowed.Load()
}
