// Package health reports whether the record store and its supporting
// dependencies answer within a bounded time.
package health

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultTimeout bounds each probe.
const DefaultTimeout = 2 * time.Second

type Status string

const (
	StatusUp   Status = "up"
	StatusDown Status = "down"
)

// Overall service states reported alongside the per-probe results.
const (
	OverallHealthy   = "healthy"
	OverallDegraded  = "degraded"
	OverallUnhealthy = "unhealthy"
)

// Probe performs a trivial liveness check. It should honour ctx, but the
// reporter does not rely on it to return.
type Probe func(ctx context.Context) error

// Report is the result of one Check.
type Report struct {
	Status       string            `json:"status"`
	Store        Status            `json:"store"`
	Dependencies map[string]Status `json:"dependencies"`
}

// StoreUp reports whether the record store answered.
func (r Report) StoreUp() bool {
	return r.Store == StatusUp
}

// Reporter runs the store probe and any dependency probes concurrently.
type Reporter struct {
	store   Probe
	deps    map[string]Probe
	timeout time.Duration
	logger  *slog.Logger
}

type Option func(*Reporter)

func WithTimeout(d time.Duration) Option {
	return func(r *Reporter) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithDependency adds a named probe reported under dependencies.
func WithDependency(name string, p Probe) Option {
	return func(r *Reporter) {
		if p != nil {
			r.deps[name] = p
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Reporter) {
		r.logger = logger
	}
}

func NewReporter(store Probe, opts ...Option) *Reporter {
	r := &Reporter{
		store:   store,
		deps:    map[string]Probe{},
		timeout: DefaultTimeout,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Check runs every probe and returns within roughly one probe timeout, even
// when a probe never returns.
func (r *Reporter) Check(ctx context.Context) Report {
	names := make([]string, 0, len(r.deps))
	for name := range r.deps {
		names = append(names, name)
	}
	sort.Strings(names)

	statuses := make([]Status, len(names))
	var storeStatus Status

	var g errgroup.Group
	g.Go(func() error {
		storeStatus = r.run(ctx, "store", r.store)
		return nil
	})
	for i, name := range names {
		g.Go(func() error {
			statuses[i] = r.run(ctx, name, r.deps[name])
			return nil
		})
	}
	_ = g.Wait()

	report := Report{
		Store:        storeStatus,
		Dependencies: make(map[string]Status, len(names)),
	}
	degraded := false
	for i, name := range names {
		report.Dependencies[name] = statuses[i]
		if statuses[i] != StatusUp {
			degraded = true
		}
	}
	switch {
	case storeStatus != StatusUp:
		report.Status = OverallUnhealthy
	case degraded:
		report.Status = OverallDegraded
	default:
		report.Status = OverallHealthy
	}
	return report
}

// run executes p in its own goroutine so a probe that ignores cancellation
// cannot hold up the report. The goroutine exits whenever p does.
func (r *Reporter) run(ctx context.Context, name string, p Probe) Status {
	if p == nil {
		return StatusDown
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- p(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			r.logger.WarnContext(ctx, "health probe failed", "probe", name, "error", err)
			return StatusDown
		}
		return StatusUp
	case <-ctx.Done():
		r.logger.WarnContext(ctx, "health probe timed out", "probe", name, "timeout", r.timeout)
		return StatusDown
	}
}
