package binance

import (
	"log/slog"

	"github.com/sig-0/p2panel/market"
)

type Option func(f *Fetcher)

// WithLogger specifies the logger for the fetcher
func WithLogger(l *slog.Logger) Option {
	return func(f *Fetcher) {
		f.logger = l
	}
}

// WithRows specifies the upstream row count, clamped to the relay bounds
func WithRows(rows int) Option {
	return func(f *Fetcher) {
		f.rows = market.ClampRows(rows)
	}
}
