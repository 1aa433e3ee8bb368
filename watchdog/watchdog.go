// Package watchdog implements the Adaptive Watchdog engine (spec §3
// Watchdog engine, §4.5): a lock-free, on-demand timeout supervisor whose
// sampling period auto-adjusts to the shortest active timeout and whose
// idle cost is zero.
//
// active/valid/start_time are atomics (go.uber.org/atomic) rather than
// plain sync/atomic calls, so the release/acquire pairing spec §4.5 and §9
// require is visible at the call site instead of scattered across raw
// LoadUint32/StoreUint32 calls.
package watchdog

import (
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/atomic"

	"github.com/ftahirops/statwatch/clock"
	"github.com/ftahirops/statwatch/errs"
	"github.com/ftahirops/statwatch/internal/sched"
)

// MinTimeoutMS is the minimum accepted timeout; Add aborts the process
// (spec §9 "programmer error") if given a smaller value (spec §6).
const MinTimeoutMS = 200

// MaxWorkPeriodMS is the floor below which the adaptive tick period is
// never allowed to shrink (spec §6: MIN_TIMEOUT_MS/2).
const MaxWorkPeriodMS = MinTimeoutMS / 2

// Recovery is invoked on and after timeout, repeatedly, until Cancel or
// Remove (spec §3 Watchdog Item, glossary "Recovery").
type Recovery func(ctx any)

// Watchdog is the singleton-per-process timeout supervisor (spec §3
// Watchdog Context). Nothing prevents constructing more than one instance;
// Init enforces the single-initialization contract spec §4.5 describes.
type Watchdog struct {
	clock  clock.Source
	logger *log.Logger
	task   *sched.Task

	mu          sync.Mutex
	initialized bool
	items       []*Item
	byHandle    map[uuid.UUID]*Item
	periodMS    uint64
	workActive  bool
}

// Item is a watchdog entry (spec §3 Watchdog Item).
type Item struct {
	handle    uuid.UUID
	timeoutMS uint64
	recovery  Recovery
	ctx       any

	// startTime and active form the release/acquire pair spec §4.5
	// requires: Start publishes startTime with a Store before publishing
	// active=true, and the tick Loads active before Loading startTime.
	startTime atomic.Int64
	active    atomic.Bool
	valid     atomic.Bool
}

// Option configures a Watchdog at construction time.
type Option func(*Watchdog)

// WithClock injects a clock.Source; defaults to clock.NewSystem().
func WithClock(c clock.Source) Option {
	return func(w *Watchdog) { w.clock = c }
}

// WithLogger injects a *log.Logger; defaults to log.Default(). Messages are
// prefixed "watchdog: ".
func WithLogger(l *log.Logger) Option {
	return func(w *Watchdog) { w.logger = l }
}

// New constructs an uninitialized Watchdog.
func New(opts ...Option) *Watchdog {
	w := &Watchdog{
		clock:    clock.NewSystem(),
		logger:   log.Default(),
		task:     sched.New(),
		byHandle: make(map[uuid.UUID]*Item),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Init marks the watchdog initialized (spec §4.5 init). A second call
// fails with errs.ErrAlreadyInitialized.
func (w *Watchdog) Init() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.initialized {
		return fmt.Errorf("watchdog: %w", errs.ErrAlreadyInitialized)
	}
	w.initialized = true
	return nil
}

// Deinit marks all items valid=false, drops them, and cancels the tick
// (spec §4.5 deinit).
func (w *Watchdog) Deinit() {
	w.mu.Lock()
	for _, it := range w.items {
		it.valid.Store(false)
	}
	w.items = nil
	w.byHandle = make(map[uuid.UUID]*Item)
	w.initialized = false
	w.periodMS = 0
	w.workActive = false
	w.mu.Unlock()

	w.task.CancelSync()
}

// Add registers a new watchdog item in the Inactive state and recomputes
// the adaptive period (spec §4.5 add). Add panics with errs.ProgrammerError
// if timeoutMS < MinTimeoutMS: this is a programmer error, not a
// recoverable error kind (spec §6, §7, §9).
func (w *Watchdog) Add(timeoutMS uint64, recovery Recovery, ctx any) *Item {
	if timeoutMS < MinTimeoutMS {
		errs.Abort(fmt.Sprintf("watchdog: timeout %dms is below the minimum %dms", timeoutMS, MinTimeoutMS))
	}

	it := &Item{
		handle:    uuid.New(),
		timeoutMS: timeoutMS,
		recovery:  recovery,
		ctx:       ctx,
	}
	it.valid.Store(true)

	w.mu.Lock()
	w.items = append(w.items, it)
	w.byHandle[it.handle] = it
	w.recomputePeriodLocked()
	w.mu.Unlock()

	return it
}

// Remove marks the item invalid, detaches it, and recomputes the period;
// if the registry empties, the tick is cancelled (spec §4.5 remove).
func (w *Watchdog) Remove(it *Item) error {
	w.mu.Lock()
	if _, ok := w.byHandle[it.handle]; !ok {
		w.mu.Unlock()
		return fmt.Errorf("watchdog: item %s: %w", it.handle, errs.ErrNotFound)
	}
	// valid is cleared before the item is unlinked (spec §4.5 safety &
	// ordering: "removal sets valid := false before unlinking").
	it.valid.Store(false)
	delete(w.byHandle, it.handle)
	for i, cand := range w.items {
		if cand == it {
			w.items = append(w.items[:i], w.items[i+1:]...)
			break
		}
	}
	cancel := w.recomputePeriodLocked()
	w.mu.Unlock()

	if cancel {
		w.task.CancelSync()
	}
	return nil
}

// Start is "start-once": if the item is not active, it publishes
// start_time then sets active=true with release ordering (spec §4.5
// start). Already-active items are a no-op, and start_time does not
// change — this is P5.
func (it *Item) Start(now uint64) {
	if it.active.Load() {
		return
	}
	it.startTime.Store(int64(now))
	it.active.Store(true)
}

// Cancel sets active=false (relaxed store; spec §4.5 cancel).
func (it *Item) Cancel() {
	it.active.Store(false)
}

// Handle returns the item's stable identity.
func (it *Item) Handle() uuid.UUID { return it.handle }

// recomputePeriodLocked implements spec §4.5's adaptive period
// recomputation. Caller must hold w.mu. Returns true if the caller should
// CancelSync the tick after releasing the lock (registry emptied).
func (w *Watchdog) recomputePeriodLocked() bool {
	var minTimeout uint64
	found := false
	for _, it := range w.items {
		if !it.valid.Load() {
			continue
		}
		if !found || it.timeoutMS < minTimeout {
			minTimeout = it.timeoutMS
			found = true
		}
	}

	if !found {
		emptied := w.workActive
		w.workActive = false
		w.periodMS = 0
		return emptied
	}

	newPeriod := minTimeout / 2
	if newPeriod < MaxWorkPeriodMS {
		newPeriod = MaxWorkPeriodMS
	}

	wasIdle := !w.workActive
	changed := newPeriod != w.periodMS
	w.periodMS = newPeriod
	w.workActive = true

	if wasIdle || changed {
		w.task.Schedule(clock.Duration(newPeriod), w.tick)
	}
	return false
}

// PeriodMS returns the watchdog's current adaptive tick period (spec §8
// P7). Zero means the engine is idle.
func (w *Watchdog) PeriodMS() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.periodMS
}

// WorkActive reports whether a tick is currently scheduled (spec §3
// Watchdog Context invariant).
func (w *Watchdog) WorkActive() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.workActive
}

// tick implements spec §4.5's tick algorithm: every valid+active item past
// its timeout gets its Recovery invoked, every tick, until Cancel/Remove —
// "repeated recovery", not one-shot.
func (w *Watchdog) tick() {
	w.mu.Lock()
	if !w.initialized {
		w.mu.Unlock()
		return
	}
	now := w.clock.NowMS()

	items := make([]*Item, len(w.items))
	copy(items, w.items)
	w.mu.Unlock()

	for _, it := range items {
		if !it.valid.Load() {
			continue
		}
		// active read (acquire) before start_time read: with
		// go.uber.org/atomic both are sequentially consistent, which is
		// at least as strong as the acquire/release spec §4.5 demands.
		if !it.active.Load() {
			continue
		}
		start := uint64(it.startTime.Load())
		if now < start {
			continue
		}
		elapsed := now - start
		if elapsed >= it.timeoutMS && it.recovery != nil {
			callRecovery(w.logger, it.handle, it.recovery, it.ctx)
		}
		// active stays true unconditionally: repeated recovery every
		// tick after timeout, until Cancel or Remove (spec §4.5 step 3).
	}

	w.mu.Lock()
	if w.initialized && w.workActive {
		w.task.Schedule(clock.Duration(w.periodMS), w.tick)
	}
	w.mu.Unlock()
}

// callRecovery invokes Recovery, recovering a panic as advisory (spec §7).
func callRecovery(logger *log.Logger, handle uuid.UUID, recovery Recovery, ctx any) {
	defer func() {
		if r := recover(); r != nil {
			logger.Printf("watchdog: item %s: recovery panicked: %v", handle, r)
		}
	}()
	recovery(ctx)
}

// Now is a convenience wrapper so hosts can pass the watchdog's own clock
// to Start without reaching into the struct.
func (w *Watchdog) Now() uint64 { return w.clock.NowMS() }
