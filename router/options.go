package router

import (
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/ukhas/habitat-sub001/health"
	"github.com/ukhas/habitat-sub001/loader"
	"github.com/ukhas/habitat-sub001/metric"
)

// Option configures a Router
type Option func(*Router)

// WithLogger sets the router logger; sinks inherit it
func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics records router metrics in registry and passes it to factories
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(r *Router) {
		r.metricsRegistry = registry
	}
}

// WithHealth shares a health monitor with the caller
func WithHealth(monitor *health.Monitor) Option {
	return func(r *Router) {
		if monitor != nil {
			r.health = monitor
		}
	}
}

// WithDependencies sets the resources handed to every sink factory. Settings
// in deps are ignored; per-sink settings come from SetSettings.
func WithDependencies(deps loader.Dependencies) Option {
	return func(r *Router) {
		r.deps = deps
	}
}

// WithErrorLogRate limits delivery failure log lines to one per interval,
// with bursts of up to burst lines. Suppressed failures are still counted.
func WithErrorLogRate(interval time.Duration, burst int) Option {
	return func(r *Router) {
		if interval <= 0 {
			r.errLimiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		r.errLimiter = rate.NewLimiter(rate.Every(interval), max(burst, 1))
	}
}
