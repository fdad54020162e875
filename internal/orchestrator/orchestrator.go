// Package orchestrator composes collectors and audits into one scored run.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgnsrekt/ecoaudit/internal/audit"
	"github.com/dgnsrekt/ecoaudit/internal/config"
	"github.com/dgnsrekt/ecoaudit/internal/telemetry"
	"github.com/dgnsrekt/ecoaudit/internal/trace"
)

// ErrNoCollectorData is returned when every collector failed, so there is
// nothing to audit.
var ErrNoCollectorData = errors.New("no collector produced data")

const (
	defaultCollectorTimeout = 90 * time.Second
	defaultDrainGrace       = 2 * time.Second
)

// Target is the page a run audits and how the session is emulated.
type Target struct {
	URL      string            `json:"url"`
	Settings config.Connection `json:"settings"`
}

// Collector produces one snapshot block. A nil block or an error both leave
// the block absent.
type Collector interface {
	ID() trace.CollectorID
	Collect(ctx context.Context, t Target) (trace.Block, error)
}

// TimeoutCollector overrides the runner's default collector deadline.
type TimeoutCollector interface {
	Collector
	Timeout() time.Duration
}

type Options struct {
	// Profile defaults to config.DefaultProfile.
	Profile    *config.Profile
	Collectors []Collector
	// Audits defaults to the profile's registry.
	Audits           *audit.Registry
	CollectorTimeout time.Duration
	// DrainGrace is how long a collector may keep running after its
	// deadline to hand back what it gathered. Defaults to 2s.
	DrainGrace time.Duration
	Metrics    *telemetry.Metrics
	// OnTransition is called on every state change of every run.
	OnTransition func(runID string, from, to State)
}

// Runner executes audit runs. It is safe for concurrent use; each Run has
// its own state machine.
type Runner struct {
	profile      *config.Profile
	env          audit.Env
	audits       []audit.Audit
	collectors   []Collector
	timeout      time.Duration
	grace        time.Duration
	metrics      *telemetry.Metrics
	onTransition func(runID string, from, to State)
}

// New validates opts and builds a runner. It fails when an audit depends on
// a collector that is not configured, when an audit's category has no
// weight, or when two collectors share an id.
func New(opts Options) (*Runner, error) {
	profile := opts.Profile
	if profile == nil {
		profile = config.DefaultProfile()
	}
	if err := profile.Validate(); err != nil {
		return nil, err
	}

	registry := opts.Audits
	if registry == nil {
		registry = profile.Registry()
	}

	configured := make(map[trace.CollectorID]bool, len(opts.Collectors))
	for _, c := range opts.Collectors {
		if c == nil {
			return nil, fmt.Errorf("nil collector")
		}
		if configured[c.ID()] {
			return nil, fmt.Errorf("collector %q configured twice", c.ID())
		}
		configured[c.ID()] = true
	}
	if len(configured) == 0 {
		return nil, fmt.Errorf("no collectors configured")
	}

	audits := registry.All()
	for _, a := range audits {
		meta := a.Meta()
		for _, id := range meta.Collectors {
			if !configured[id] {
				return nil, fmt.Errorf("audit %q requires collector %q which is not configured", meta.ID, id)
			}
		}
		if _, ok := profile.Categories[meta.Category]; !ok {
			return nil, fmt.Errorf("audit %q has category %q with no weight", meta.ID, meta.Category)
		}
	}

	timeout := opts.CollectorTimeout
	if timeout <= 0 {
		timeout = defaultCollectorTimeout
	}
	grace := opts.DrainGrace
	if grace <= 0 {
		grace = defaultDrainGrace
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = telemetry.NewMetrics()
	}

	return &Runner{
		profile:      profile,
		env:          profile.Env(),
		audits:       audits,
		collectors:   append([]Collector(nil), opts.Collectors...),
		timeout:      timeout,
		grace:        grace,
		metrics:      metrics,
		onTransition: opts.OnTransition,
	}, nil
}

// Profile returns the immutable profile the runner scores with.
func (r *Runner) Profile() *config.Profile { return r.profile }

// Metrics returns the runner's metric set.
func (r *Runner) Metrics() *telemetry.Metrics { return r.metrics }
