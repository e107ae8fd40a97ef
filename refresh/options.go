package refresh

import (
	"log/slog"
	"time"
)

type Option func(o *Orchestrator)

// WithLogger specifies the logger for the orchestrator
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = l
	}
}

// WithMinInterval specifies the minimum interval between successful
// refresh cycles. Defaults to 1m
func WithMinInterval(interval time.Duration) Option {
	return func(o *Orchestrator) {
		if interval > 0 {
			o.minInterval = interval
		}
	}
}
