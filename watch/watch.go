// Package watch implements the State Watcher engine (spec §3 "Watch
// engine", §4.2, §4.3, §4.4): a multi-item sampling engine with per-item
// interval scheduling, hysteresis-based change detection, and temporary
// state override.
//
// The shape follows xtop's engine.Engine (registry + per-tick
// collect-then-dispatch) generalized from "collectors that fill a
// snapshot" to "samplers that produce a single integer state per item".
package watch

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ftahirops/statwatch/clock"
	"github.com/ftahirops/statwatch/errs"
	"github.com/ftahirops/statwatch/internal/sched"
)

// DefaultBasePeriodMS is used when Init/New is given a zero base period
// (spec §6).
const DefaultBasePeriodMS = 200

// ItemNameMax is the maximum display-name length; longer names are
// truncated (spec §6).
const ItemNameMax = 31

// Sampler produces an integer state from opaque, caller-owned context.
// Required on every item (spec §3 Watch Item).
type Sampler func(ctx any) int

// Action consumes the previous and new action state for an item. Optional;
// items with no Action never fire (spec §3 Watch Item).
type Action func(prevActionState, newState int, ctx any)

// runState is the watcher's lifecycle flag (spec §3 Watcher: running).
type runState int32

const (
	stateStopped runState = iota
	stateRunning
)

// Watcher is a process-wide or per-instance container of Watch Items
// (spec §3 Watcher).
type Watcher struct {
	basePeriodMS uint64
	clock        clock.Source
	logger       *log.Logger
	task         *sched.Task

	mu            sync.Mutex
	running       runState
	items         []*item // insertion order preserved (spec §3 Watcher.items)
	byHandle      map[uuid.UUID]*item
	totalSamples  uint64
	totalActions  uint64
}

// Option configures a Watcher at construction time.
type Option func(*Watcher)

// WithClock injects a clock.Source; defaults to clock.NewSystem().
func WithClock(c clock.Source) Option {
	return func(w *Watcher) { w.clock = c }
}

// WithLogger injects a *log.Logger; defaults to log.Default(). Messages are
// prefixed "watch: ", matching xtop's component-prefixed log.Printf style.
func WithLogger(l *log.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// New creates a Watcher in the Stopped state with no items (spec §4.2
// init). basePeriodMS of 0 resolves to DefaultBasePeriodMS.
func New(basePeriodMS uint64, opts ...Option) *Watcher {
	if basePeriodMS == 0 {
		basePeriodMS = DefaultBasePeriodMS
	}
	w := &Watcher{
		basePeriodMS: basePeriodMS,
		clock:        clock.NewSystem(),
		logger:       log.Default(),
		task:         sched.New(),
		byHandle:     make(map[uuid.UUID]*item),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// item is a monitored signal (spec §3 Watch Item).
type item struct {
	handle uuid.UUID
	name   string

	periodMS   uint64
	hysteresis int
	sampler    Sampler
	action     Action
	ctx        any

	currentState    int
	lastActionState int
	lastSampleTime  uint64

	candidateState    int
	consecutiveCount  int

	isForced         bool
	forcedState      int
	forcedExpiryTime uint64

	sampleCount uint64
	actionCount uint64
}

// ItemConfig describes a new Watch Item (spec §3 Watch Item "Config").
type ItemConfig struct {
	// Name is a short display name (<= ItemNameMax chars; truncated if
	// longer, auto-generated from the handle if empty).
	Name string
	// PeriodMS must be a positive multiple of the watcher's base period;
	// 0 resolves to the base period.
	PeriodMS uint64
	// Hysteresis is the number of consecutive non-baseline samples
	// required before Action fires; 0 disables filtering.
	Hysteresis int
	// Sampler is required.
	Sampler Sampler
	// Action is optional.
	Action Action
	// Ctx is opaque, caller-owned context passed to Sampler and Action.
	// The watcher never frees it.
	Ctx any
}

// Cleanup stops the watcher (idempotently) and drops all items, returning
// it to an item-less Stopped state (spec §4.2 cleanup).
func (w *Watcher) Cleanup() {
	w.Stop()
	w.mu.Lock()
	defer w.mu.Unlock()
	w.items = nil
	w.byHandle = make(map[uuid.UUID]*item)
	w.totalSamples = 0
	w.totalActions = 0
}

// Start transitions Stopped->Running and schedules the first tick (spec
// §4.2 start). Calling Start while already Running is a non-fatal
// duplicate, reported via the returned Outcome.
func (w *Watcher) Start() errs.Outcome {
	w.mu.Lock()
	if w.running == stateRunning {
		w.mu.Unlock()
		return errs.OutcomeAlreadyRunning
	}
	w.running = stateRunning
	w.mu.Unlock()

	w.task.Schedule(clock.Duration(w.basePeriodMS), w.tick)
	return errs.OutcomeOK
}

// Stop transitions Running->Stopped and blocks until any in-flight tick
// completes (spec §4.2 stop, spec §5 cancellation ordering: the running
// flag flips before CancelSync is invoked).
func (w *Watcher) Stop() errs.Outcome {
	w.mu.Lock()
	if w.running == stateStopped {
		w.mu.Unlock()
		return errs.OutcomeAlreadyStopped
	}
	w.running = stateStopped
	w.mu.Unlock()

	w.task.CancelSync()
	return errs.OutcomeOK
}

// AddItem registers a new Watch Item and returns its stable handle (spec
// §4.2 add_item).
func (w *Watcher) AddItem(cfg ItemConfig) (uuid.UUID, error) {
	if cfg.Sampler == nil {
		return uuid.Nil, fmt.Errorf("watch: sampler required: %w", errs.ErrInvalidArgument)
	}
	period := cfg.PeriodMS
	if period == 0 {
		period = w.basePeriodMS
	}
	if period%w.basePeriodMS != 0 || period < w.basePeriodMS {
		return uuid.Nil, fmt.Errorf("watch: period %dms is not a positive multiple of base period %dms: %w",
			period, w.basePeriodMS, errs.ErrInvalidArgument)
	}

	handle := uuid.New()
	name := cfg.Name
	if name == "" {
		name = fmt.Sprintf("item-%s", handle.String()[:8])
	}
	if len(name) > ItemNameMax {
		name = name[:ItemNameMax]
	}

	it := &item{
		handle:     handle,
		name:       name,
		periodMS:   period,
		hysteresis: cfg.Hysteresis,
		sampler:    cfg.Sampler,
		action:     cfg.Action,
		ctx:        cfg.Ctx,
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.items = append(w.items, it)
	w.byHandle[handle] = it
	return handle, nil
}

// RemoveItem detaches and destroys an item (spec §4.2 remove_item).
func (w *Watcher) RemoveItem(handle uuid.UUID) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	it, ok := w.byHandle[handle]
	if !ok {
		return fmt.Errorf("watch: item %s: %w", handle, errs.ErrNotFound)
	}
	delete(w.byHandle, handle)
	for i, cand := range w.items {
		if cand == it {
			w.items = append(w.items[:i], w.items[i+1:]...)
			break
		}
	}
	return nil
}

// GetItemState returns the item's last computed state (spec §4.2
// get_item_state).
func (w *Watcher) GetItemState(handle uuid.UUID) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	it, ok := w.byHandle[handle]
	if !ok {
		return 0, fmt.Errorf("watch: item %s: %w", handle, errs.ErrNotFound)
	}
	return it.currentState, nil
}

// ItemStats is the (sample_count, action_count) pair for one item.
type ItemStats struct {
	SampleCount uint64
	ActionCount uint64
}

// GetItemStats returns per-item counters (spec §4.2 get_item_stats).
func (w *Watcher) GetItemStats(handle uuid.UUID) (ItemStats, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	it, ok := w.byHandle[handle]
	if !ok {
		return ItemStats{}, fmt.Errorf("watch: item %s: %w", handle, errs.ErrNotFound)
	}
	return ItemStats{SampleCount: it.sampleCount, ActionCount: it.actionCount}, nil
}

// Stats is the watcher-wide aggregate returned by GetStats.
type Stats struct {
	TotalSamples uint64
	TotalActions uint64
	ActiveCount  int
}

// GetStats returns aggregate counters (spec §4.2 get_stats).
func (w *Watcher) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Stats{
		TotalSamples: w.totalSamples,
		TotalActions: w.totalActions,
		ActiveCount:  len(w.items),
	}
}

// ForceState sets a time-bounded override active until now+duration (spec
// §4.2/§4.4 force_state). Re-arming overwrites the previous override.
func (w *Watcher) ForceState(handle uuid.UUID, value int, duration time.Duration) error {
	if duration <= 0 {
		return fmt.Errorf("watch: force_state duration must be positive: %w", errs.ErrInvalidArgument)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	it, ok := w.byHandle[handle]
	if !ok {
		return fmt.Errorf("watch: item %s: %w", handle, errs.ErrNotFound)
	}
	it.forcedState = value
	it.forcedExpiryTime = w.clock.NowMS() + clock.MS(duration)
	it.isForced = true
	return nil
}

// ClearForcedState deactivates an override (spec §4.2 clear_forced_state).
func (w *Watcher) ClearForcedState(handle uuid.UUID) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	it, ok := w.byHandle[handle]
	if !ok {
		return fmt.Errorf("watch: item %s: %w", handle, errs.ErrNotFound)
	}
	it.isForced = false
	return nil
}

// ForcedStatus is the (active, remaining) result of IsStateForced.
type ForcedStatus struct {
	Active      bool
	RemainingMS uint64
}

// IsStateForced reports whether an override is active, self-clearing it if
// the deadline has passed (spec §4.2/§4.4 is_state_forced).
func (w *Watcher) IsStateForced(handle uuid.UUID) (ForcedStatus, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	it, ok := w.byHandle[handle]
	if !ok {
		return ForcedStatus{}, fmt.Errorf("watch: item %s: %w", handle, errs.ErrNotFound)
	}
	now := w.clock.NowMS()
	if it.isForced && now > it.forcedExpiryTime {
		it.isForced = false
	}
	if !it.isForced {
		return ForcedStatus{}, nil
	}
	remaining := uint64(0)
	if it.forcedExpiryTime > now {
		remaining = it.forcedExpiryTime - now
	}
	return ForcedStatus{Active: true, RemainingMS: remaining}, nil
}

// ItemSnapshot is a read-only view of one item, returned by Snapshot.
// Supplemental to the distilled spec (see SPEC_FULL.md watch module notes):
// it lets a host render status or a test assert drain behavior without
// reaching into engine internals.
type ItemSnapshot struct {
	Handle      uuid.UUID
	Name        string
	State       int
	SampleCount uint64
	ActionCount uint64
	Forced      bool
}

// Snapshot returns a point-in-time view of every registered item, in
// insertion order.
func (w *Watcher) Snapshot() []ItemSnapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]ItemSnapshot, len(w.items))
	for i, it := range w.items {
		out[i] = ItemSnapshot{
			Handle:      it.handle,
			Name:        it.name,
			State:       it.currentState,
			SampleCount: it.sampleCount,
			ActionCount: it.actionCount,
			Forced:      it.isForced,
		}
	}
	return out
}

// tick is the scheduler-invoked task body implementing spec §4.2's
// "Scheduler tick algorithm". It is the sole suspension point for the
// registry lock: the lock is dropped around every Action invocation (spec
// §5) and reacquired before the next item or the final reschedule.
func (w *Watcher) tick() {
	w.mu.Lock()
	if w.running != stateRunning {
		w.mu.Unlock()
		return
	}
	now := w.clock.NowMS()

	for _, it := range w.items {
		if now < it.lastSampleTime+it.periodMS {
			continue
		}
		if it.isForced && now > it.forcedExpiryTime {
			it.isForced = false
		}
		if it.sampler == nil {
			continue
		}

		raw := callSampler(w.logger, it.name, it.sampler, it.ctx)
		it.sampleCount++
		w.totalSamples++

		newState := raw
		var fire bool
		if it.isForced {
			newState = it.forcedState
			fire = newState != it.lastActionState
		} else {
			fire = hysteresisFire(it, newState)
		}

		if fire && it.action != nil {
			action := it.action
			prevState := it.lastActionState
			ctx := it.ctx
			w.mu.Unlock()
			callAction(w.logger, it.name, action, prevState, newState, ctx)
			w.mu.Lock()
			if w.running != stateRunning {
				w.mu.Unlock()
				return
			}
			// action_count is incremented even if the action panicked:
			// it was dispatched (spec §7 "advisory" callback-failure rule).
			it.lastActionState = newState
			it.actionCount++
			w.totalActions++
		}

		it.currentState = newState
		it.lastSampleTime = now
	}

	if w.running == stateRunning {
		w.task.Schedule(clock.Duration(w.basePeriodMS), w.tick)
	}
	w.mu.Unlock()
}

// callSampler invokes a Sampler, recovering a panic as an advisory failure
// (spec §7): the item stays registered and the tick continues, using a
// zero state for this round.
func callSampler(logger *log.Logger, name string, sampler Sampler, ctx any) (state int) {
	defer func() {
		if r := recover(); r != nil {
			logger.Printf("watch: item %q: sampler panicked: %v", name, r)
			state = 0
		}
	}()
	return sampler(ctx)
}

// callAction invokes an Action, recovering a panic as an advisory failure
// (spec §7): action_count is still incremented by the caller and iteration
// continues with the next item.
func callAction(logger *log.Logger, name string, action Action, prevState, newState int, ctx any) {
	defer func() {
		if r := recover(); r != nil {
			logger.Printf("watch: item %q: action panicked: %v", name, r)
		}
	}()
	action(prevState, newState, ctx)
}

// hysteresisFire runs the change-detector comparator of spec §4.3 against
// newState, mutating the item's hysteresis scratch in place, and returns
// whether the action should fire.
func hysteresisFire(it *item, newState int) bool {
	if it.hysteresis == 0 {
		return newState != it.lastActionState
	}
	switch {
	case newState == it.lastActionState:
		it.consecutiveCount = 0
		it.candidateState = newState
		return false
	case newState == it.candidateState:
		it.consecutiveCount++
		if it.consecutiveCount >= it.hysteresis {
			it.consecutiveCount = 0
			return true
		}
		return false
	default:
		it.candidateState = newState
		it.consecutiveCount = 1
		return false
	}
}
