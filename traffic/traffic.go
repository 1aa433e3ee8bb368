// Package traffic implements the Traffic Sampler engine (spec §3 Traffic
// registry, §4.6): a hash-indexed per-interface counter sampler that
// computes overflow-safe per-second rates from paired snapshots taken on a
// periodic tick.
//
// The shape is grounded on xtop's collector/network.go (which reads
// /proc/net/dev into a flat slice every collection) generalized into a
// registry of named entries with paired current/previous snapshots, the
// way spec §3's Interface Entry requires; the overflow-safe rate formulas
// replace xtop's util.Rate/util.Delta, which silently return 0 on any
// counter regression instead of handling a genuine wrap (see SPEC_FULL.md).
package traffic

import (
	"fmt"
	"log"
	"sync"

	"github.com/ftahirops/statwatch/clock"
	"github.com/ftahirops/statwatch/errs"
	"github.com/ftahirops/statwatch/internal/sched"
)

// DefaultSamplePeriodMS is the tick cadence (spec §6 TRAFFIC_SAMPLE_PERIOD_MS).
const DefaultSamplePeriodMS = 100

// IfNameMax is the maximum interface name length (spec §3 Interface Entry
// "name (<= IFNAMELEN)").
const IfNameMax = 15

// Counters is one paired snapshot of an interface's counters (spec §3
// Interface Entry).
type Counters struct {
	TxPackets uint64
	TxBytes   uint64
	RxPackets uint64
	RxBytes   uint64
}

// Rates is the per-second rate of each counter (spec §4.6 delta_single /
// delta_all result shape).
type Rates struct {
	TxPacketsPerSec uint64
	TxBytesPerSec   uint64
	RxPacketsPerSec uint64
	RxBytesPerSec   uint64
}

// Add sums two Rates elementwise (spec §4.6 delta_all aggregation, §8 P10).
func (r Rates) Add(o Rates) Rates {
	return Rates{
		TxPacketsPerSec: r.TxPacketsPerSec + o.TxPacketsPerSec,
		TxBytesPerSec:   r.TxBytesPerSec + o.TxBytesPerSec,
		RxPacketsPerSec: r.RxPacketsPerSec + o.RxPacketsPerSec,
		RxBytesPerSec:   r.RxBytesPerSec + o.RxBytesPerSec,
	}
}

// DeviceStats is the external device-stats adaptor (spec §6): reads the
// current counters for a named device. The procnet subpackage supplies a
// real /proc/net/dev-backed implementation.
type DeviceStats interface {
	ReadStats(name string) (Counters, error)
}

// DeviceEvents is the external device-event subscription adaptor (spec §6,
// §4.6): Subscribe delivers up/going-down/unregister notifications until
// the returned cancel func is called.
type DeviceEvents interface {
	Subscribe(handler func(event DeviceEvent, name string)) (cancel func())
}

// DeviceEvent enumerates the event kinds spec §6 lists for the device
// collaborator.
type DeviceEvent int

const (
	EventUp DeviceEvent = iota
	EventGoingDown
	EventUnregister
)

// Targets is the configured set of target device names consulted by the
// event handler (spec §6 "Configured set of target device names").
type Targets interface {
	IsTarget(name string) bool
}

// StaticTargets is the trivial Targets adaptor: a fixed, finite name set.
type StaticTargets map[string]struct{}

// NewStaticTargets builds a StaticTargets set from a name list.
func NewStaticTargets(names []string) StaticTargets {
	s := make(StaticTargets, len(names))
	for _, n := range names {
		s[n] = struct{}{}
	}
	return s
}

// IsTarget implements Targets.
func (s StaticTargets) IsTarget(name string) bool {
	_, ok := s[name]
	return ok
}

// entry is an Interface Entry (spec §3): paired counter snapshots and
// paired timestamps.
type entry struct {
	name string

	current    Counters
	previous   Counters
	currentTS  uint64
	previousTS uint64

	hasSnapshot bool
}

// Registry is the per-process Traffic Registry (spec §3).
type Registry struct {
	clock   clock.Source
	logger  *log.Logger
	stats   DeviceStats
	events  DeviceEvents
	targets Targets

	samplePeriodMS uint64
	cancelEvents   func()

	// mu is the reader/writer lock spec §5 requires: delta_single/
	// delta_all take the read side, register/unregister/tick take the
	// write side.
	mu          sync.RWMutex
	entries     map[string]*entry
	activeCount int
	stopping    bool

	task *sched.Task
}

// Option configures a Registry at construction time.
type Option func(*Registry)

// WithClock injects a clock.Source; defaults to clock.NewSystem().
func WithClock(c clock.Source) Option {
	return func(r *Registry) { r.clock = c }
}

// WithLogger injects a *log.Logger; defaults to log.Default(). Messages are
// prefixed "traffic: ".
func WithLogger(l *log.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithSamplePeriodMS overrides DefaultSamplePeriodMS.
func WithSamplePeriodMS(ms uint64) Option {
	return func(r *Registry) { r.samplePeriodMS = ms }
}

// New constructs a Registry. stats is the device-stats adaptor; events and
// targets may be nil if the host drives registration manually via
// Register/Unregister instead of device-up/down notifications.
func New(stats DeviceStats, events DeviceEvents, targets Targets, opts ...Option) *Registry {
	r := &Registry{
		clock:          clock.NewSystem(),
		logger:         log.Default(),
		stats:          stats,
		events:         events,
		targets:        targets,
		samplePeriodMS: DefaultSamplePeriodMS,
		entries:        make(map[string]*entry),
		task:           sched.New(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Init prepares the registry and installs the device-event subscription
// (spec §4.6 init).
func (r *Registry) Init() {
	r.mu.Lock()
	r.stopping = false
	r.mu.Unlock()

	if r.events != nil {
		r.cancelEvents = r.events.Subscribe(r.handleDeviceEvent)
	}
}

// Cleanup sets the stopping barrier, unsubscribes, cancels the tick, and
// drops all entries (spec §4.6 cleanup).
func (r *Registry) Cleanup() {
	r.mu.Lock()
	r.stopping = true
	r.mu.Unlock()

	if r.cancelEvents != nil {
		r.cancelEvents()
		r.cancelEvents = nil
	}

	r.task.CancelSync()

	r.mu.Lock()
	r.entries = make(map[string]*entry)
	r.activeCount = 0
	r.mu.Unlock()
}

// RegisterOutcome distinguishes the three outcomes spec §4.6/§7 name for
// register.
type RegisterOutcome int

const (
	RegisterAdded RegisterOutcome = iota
	RegisterExists
	RegisterNotFound
)

// Register implements spec §4.6's internal register operation: if name is
// known to the device collaborator and not already present, allocate an
// entry, insert it, and increment active_count.
func (r *Registry) Register(name string) (RegisterOutcome, error) {
	if len(name) > IfNameMax {
		name = name[:IfNameMax]
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[name]; ok {
		return RegisterExists, nil
	}

	if _, err := r.stats.ReadStats(name); err != nil {
		return RegisterNotFound, fmt.Errorf("traffic: register %q: %w", name, errs.ErrNotFound)
	}

	r.entries[name] = &entry{name: name}
	r.activeCount++
	r.ensureTickLocked()
	return RegisterAdded, nil
}

// Unregister detaches and frees an entry. Duplicate unregister is a no-op
// success (spec §4.6/§7).
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[name]; !ok {
		return
	}
	delete(r.entries, name)
	r.activeCount--
}

// DeltaSingle returns the per-second rate snapshot for one interface (spec
// §4.6 delta_single). A zero snapshot is returned, and the miss is logged,
// for an interface that is not registered — "not found" is not an error to
// the caller (spec §7).
func (r *Registry) DeltaSingle(name string) Rates {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		r.logger.Printf("traffic: delta_single(%q): not registered", name)
		return Rates{}
	}
	return rateFor(e)
}

// DeltaAll returns the elementwise sum of per-second rates across all
// registered entries (spec §4.6 delta_all, §8 P10).
func (r *Registry) DeltaAll() Rates {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var total Rates
	for _, e := range r.entries {
		total = total.Add(rateFor(e))
	}
	return total
}

// rateFor computes the overflow-safe per-second rate for one entry (spec
// §4.6). Caller must hold at least the read lock.
func rateFor(e *entry) Rates {
	if !e.hasSnapshot {
		return Rates{}
	}
	dt := TimeDelta(e.currentTS, e.previousTS)
	return Rates{
		TxPacketsPerSec: PerSecond(Delta(e.current.TxPackets, e.previous.TxPackets), dt),
		TxBytesPerSec:   PerSecond(Delta(e.current.TxBytes, e.previous.TxBytes), dt),
		RxPacketsPerSec: PerSecond(Delta(e.current.RxPackets, e.previous.RxPackets), dt),
		RxBytesPerSec:   PerSecond(Delta(e.current.RxBytes, e.previous.RxBytes), dt),
	}
}

// ensureTickLocked arms the periodic tick if it is not already scheduled.
// Caller must hold r.mu (write side).
func (r *Registry) ensureTickLocked() {
	if r.task.IsScheduled() {
		return
	}
	r.task.Schedule(clock.Duration(r.samplePeriodMS), r.tick)
}

// tick implements spec §4.6's internal tick: for each entry,
// previous:=current; current:=device_read_stats(); current_ts_ms:=now.
// Reschedules at now+SAMPLE_PERIOD_MS if active_count>0 and not stopping,
// otherwise stops (spec §4.6).
func (r *Registry) tick() {
	r.mu.Lock()
	if r.stopping {
		r.mu.Unlock()
		return
	}
	now := r.clock.NowMS()
	for _, e := range r.entries {
		stats, err := r.stats.ReadStats(e.name)
		if err != nil {
			r.logger.Printf("traffic: tick: read_stats(%q): %v", e.name, err)
			continue
		}
		e.previous = e.current
		e.previousTS = e.currentTS
		e.current = stats
		e.currentTS = now
		e.hasSnapshot = true
	}
	active := r.activeCount > 0 && !r.stopping
	r.mu.Unlock()

	if active {
		r.task.Schedule(clock.Duration(r.samplePeriodMS), r.tick)
	}
}

// handleDeviceEvent is the device-event handler spec §4.6 describes: up
// for a targeted name registers (and ensures the tick is scheduled);
// going-down unregisters; unregister unregisters idempotently as backup
// cleanup.
func (r *Registry) handleDeviceEvent(event DeviceEvent, name string) {
	r.mu.RLock()
	stopping := r.stopping
	r.mu.RUnlock()
	if stopping {
		return
	}

	switch event {
	case EventUp:
		if r.targets == nil || !r.targets.IsTarget(name) {
			return
		}
		if _, err := r.Register(name); err != nil {
			r.logger.Printf("traffic: device up %q: %v", name, err)
		}
	case EventGoingDown:
		r.Unregister(name)
	case EventUnregister:
		r.Unregister(name)
	}
}
