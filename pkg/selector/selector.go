// Package selector runs the periodic probing loop and publishes the
// lowest-scoring target as the active route.
package selector

import (
	"context"
	"sync"
	"time"

	"optipath/config"
	"optipath/logger"
	"optipath/pkg/metrics"
	"optipath/pkg/prober"
)

// probeFunc runs a full probe round against one resolved address.
type probeFunc func(ctx context.Context, addr string) []prober.Sample

// resolveFunc turns a configured address into a dialable one.
type resolveFunc func(addr string) (string, error)

// TargetScore is one target's outcome in the most recent completed cycle,
// as exposed to the admin API.
type TargetScore struct {
	Name     string       `json:"name"`
	Addr     string       `json:"addr"`
	Score    prober.Score `json:"score"`
	Selected bool         `json:"selected"`
	Error    string       `json:"error,omitempty"`
}

// Selector drives the probe cycles for a fixed set of targets.
type Selector struct {
	targets  []config.TargetConfig
	interval time.Duration
	state    *State

	probe   probeFunc
	resolve resolveFunc

	generation uint64

	mu        sync.Mutex
	lastCycle []TargetScore
	lastAt    time.Time
}

// SelectorOptions configures a Selector.
type SelectorOptions struct {
	Targets  []config.TargetConfig
	Interval time.Duration
	State    *State
}

func New(opts SelectorOptions) *Selector {
	return &Selector{
		targets:  opts.Targets,
		interval: opts.Interval,
		state:    opts.State,
		probe:    prober.Run,
		resolve:  prober.ResolveAddr,
	}
}

// Start runs the selection loop until ctx is cancelled. The first cycle
// begins immediately; subsequent cycles start on every tick, each in its
// own goroutine so a slow cycle never delays the next one. Stale results
// are discarded by the generation guard on publish.
func (s *Selector) Start(ctx context.Context) {
	logger.Info("selector started", "targets", len(s.targets), "interval", s.interval)

	s.launchCycle(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("selector stopped")
			return
		case <-ticker.C:
			s.launchCycle(ctx)
		}
	}
}

func (s *Selector) launchCycle(ctx context.Context) {
	s.generation++
	gen := s.generation
	go s.runCycle(ctx, gen)
}

// runCycle probes every target concurrently, scores the rounds, and
// publishes the winner. Ties go to the target listed first in the
// configuration, so results are deterministic across runs.
func (s *Selector) runCycle(ctx context.Context, gen uint64) {
	start := time.Now()
	results := make([]TargetScore, len(s.targets))

	var wg sync.WaitGroup
	for i, target := range s.targets {
		wg.Add(1)
		go func(i int, target config.TargetConfig) {
			defer wg.Done()
			results[i] = s.probeTarget(ctx, target)
		}(i, target)
	}
	wg.Wait()

	winner := -1
	for i := range results {
		if winner == -1 || results[i].Score.Value < results[winner].Score.Value {
			winner = i
		}
	}
	if winner == -1 {
		return
	}
	results[winner].Selected = true

	cycleDuration := time.Since(start)
	metrics.ProbeCyclesTotal.Inc()
	metrics.ProbeCycleDuration.Observe(cycleDuration.Seconds())

	for _, r := range results {
		metrics.TargetScore.WithLabelValues(r.Name).Set(float64(r.Score.Value.Milliseconds()))
		metrics.TargetFailures.WithLabelValues(r.Name).Set(float64(r.Score.Failures))
		logger.Debug("target scored",
			"target", r.Name,
			"addr", r.Addr,
			"score", r.Score.Value,
			"failures", r.Score.Failures,
			"min", r.Score.Min,
			"max", r.Score.Max,
			"avg", r.Score.Avg)
	}

	route := &Route{
		Name:       results[winner].Name,
		Addr:       results[winner].Addr,
		Score:      results[winner].Score,
		Generation: gen,
		DecidedAt:  time.Now(),
	}

	prev := s.state.Current()
	if !s.state.Publish(route) {
		metrics.StalePublishesSkipped.Inc()
		logger.Debug("stale cycle discarded", "generation", gen)
		return
	}

	s.mu.Lock()
	s.lastCycle = results
	s.lastAt = route.DecidedAt
	s.mu.Unlock()

	switch {
	case prev == nil:
		logger.Info("route selected",
			"target", route.Name,
			"addr", route.Addr,
			"score", route.Score.Value,
			"cycle_duration", cycleDuration)
	case prev.Addr != route.Addr:
		metrics.RouteSwitchesTotal.Inc()
		logger.Info("route switched",
			"from", prev.Name,
			"to", route.Name,
			"addr", route.Addr,
			"score", route.Score.Value,
			"previous_score", prev.Score.Value)
	default:
		logger.Debug("route unchanged",
			"target", route.Name,
			"score", route.Score.Value)
	}
}

// probeTarget resolves and probes one target. A resolution failure counts
// as a full round of failed probes so the target stays comparable.
func (s *Selector) probeTarget(ctx context.Context, target config.TargetConfig) TargetScore {
	name := target.TargetName()
	result := TargetScore{Name: name, Addr: target.Addr}

	resolved, err := s.resolve(target.Addr)
	if err != nil {
		logger.Warn("target resolution failed", "target", name, "addr", target.Addr, "error", err)
		result.Error = err.Error()
		result.Score = prober.Reduce(make([]prober.Sample, prober.ProbeCount))
		metrics.ProbeAttemptsTotal.WithLabelValues(name, "resolve_error").Add(float64(prober.ProbeCount))
		return result
	}
	result.Addr = resolved

	samples := s.probe(ctx, resolved)
	result.Score = prober.Reduce(samples)

	for _, sample := range samples {
		if sample.Success {
			metrics.ProbeAttemptsTotal.WithLabelValues(name, "success").Inc()
			metrics.ProbeLatency.WithLabelValues(name).Observe(sample.Latency.Seconds())
		} else {
			metrics.ProbeAttemptsTotal.WithLabelValues(name, "failure").Inc()
		}
	}
	return result
}

// LastCycle returns the per-target outcome of the most recent published
// cycle and its completion time.
func (s *Selector) LastCycle() ([]TargetScore, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TargetScore, len(s.lastCycle))
	copy(out, s.lastCycle)
	return out, s.lastAt
}
