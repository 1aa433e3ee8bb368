package watch

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ftahirops/statwatch/clock"
)

// actionPair records one (prevActionState, newState) firing, in order.
type actionPair struct {
	prev, new int
}

func TestHysteresisStaircase(t *testing.T) {
	// spec §8 scenario 1: base=100, period=100, hysteresis=3, sampler
	// replays [5,5,5,5,5, 8,8, 5, 8,8,8, 8] at 100ms cadence.
	samples := []int{5, 5, 5, 5, 5, 8, 8, 5, 8, 8, 8, 8}
	idx := 0

	var fired []actionPair
	fake := clock.NewFake(0)
	w := New(100, WithClock(fake))

	handle, err := w.AddItem(ItemConfig{
		Name:       "staircase",
		PeriodMS:   100,
		Hysteresis: 3,
		Sampler: func(ctx any) int {
			v := samples[idx]
			idx++
			return v
		},
		Action: func(prev, new int, ctx any) {
			fired = append(fired, actionPair{prev, new})
		},
	})
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	_ = handle

	for range samples {
		fake.Advance(100)
		w.tick()
	}

	want := []actionPair{{0, 5}, {5, 8}}
	if len(fired) != len(want) {
		t.Fatalf("fired = %+v, want %+v", fired, want)
	}
	for i := range want {
		if fired[i] != want[i] {
			t.Fatalf("fired[%d] = %+v, want %+v", i, fired[i], want[i])
		}
	}
}

func TestForcedOverrideBypass(t *testing.T) {
	// spec §8 scenario 2: constant sampler=5, hysteresis=3; force_state(9,
	// 1000ms) at t=250ms.
	var fired []actionPair
	fake := clock.NewFake(0)
	w := New(100, WithClock(fake))

	handle, _ := w.AddItem(ItemConfig{
		PeriodMS:   100,
		Hysteresis: 3,
		Sampler:    func(ctx any) int { return 5 },
		Action: func(prev, new int, ctx any) {
			fired = append(fired, actionPair{prev, new})
		},
	})

	// Drive to t=250ms (three due ticks at 100/200/300 won't all fire;
	// advance in 100ms steps and force the override once we cross 250ms).
	fake.Advance(100)
	w.tick() // t=100: (0,5),(0,5) path, first 5 -> candidate
	fake.Advance(100)
	w.tick() // t=200: second 5
	fake.Set(250)
	if err := w.ForceState(handle, 9, 1000*time.Millisecond); err != nil {
		t.Fatalf("ForceState: %v", err)
	}
	fake.Advance(50) // t=300: next due sample
	w.tick()

	if len(fired) != 1 || fired[0] != (actionPair{0, 9}) {
		t.Fatalf("after override engage, fired = %+v, want [{0 9}]", fired)
	}

	// No further firing while forced: the sampler's raw output is ignored
	// and the overridden value (9) is unchanged, so it stays equal to
	// last_action_state=9 on every due sample up to t=1200 (expiry 1250).
	for i := 0; i < 9; i++ {
		fake.Advance(100)
		w.tick()
	}
	if len(fired) != 1 {
		t.Fatalf("fired during override window = %+v, want no additional firings", fired)
	}

	status, err := w.IsStateForced(handle)
	if err != nil {
		t.Fatalf("IsStateForced: %v", err)
	}
	if !status.Active {
		t.Fatalf("override should still be active at t=1200 (expires at 1250), got %+v", status)
	}

	// Cross the expiry deadline. Spec §4.4 is explicit that clearing an
	// override does NOT reset the hysteresis scratch (candidate_state,
	// consecutive_count survive). Before the override engaged, two
	// consecutive raw 5s had already advanced consecutive_count to 2 with
	// candidate_state=5 (see TestHysteresisStaircase for the same scratch
	// mechanics). So the very first post-expiry sample — raw output 5,
	// matching the stale candidate — completes the count to hysteresis (3)
	// and fires immediately, without waiting for 3 fresh samples.
	fake.Advance(100) // t=1300: now > forced_expiry_time(1250) -> auto-clears
	w.tick()

	if len(fired) != 2 || fired[1] != (actionPair{9, 5}) {
		t.Fatalf("post-expiry comparator handoff: fired = %+v, want second entry {9 5}", fired)
	}
}

func TestIntervalRespected(t *testing.T) {
	// spec §8 P1: consecutive sampler invocations are separated by at
	// least period_ms.
	var calls int
	fake := clock.NewFake(0)
	w := New(100, WithClock(fake))
	w.AddItem(ItemConfig{
		PeriodMS: 300,
		Sampler:  func(ctx any) int { calls++; return 1 },
	})

	for i := 0; i < 10; i++ {
		fake.Advance(100)
		w.tick()
	}
	// 1000ms elapsed at period 300ms due at t=300,600,900 -> 3 calls.
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestStartStopIdempotent(t *testing.T) {
	w := New(50)
	if out := w.Start(); out != 0 {
		t.Fatalf("first Start outcome = %v, want OK", out)
	}
	if out := w.Start(); out == 0 {
		t.Fatalf("second Start should report AlreadyRunning")
	}
	if out := w.Stop(); out != 0 {
		t.Fatalf("first Stop outcome = %v, want OK", out)
	}
	if out := w.Stop(); out == 0 {
		t.Fatalf("second Stop should report AlreadyStopped")
	}
}

func TestStopDrainsNoFurtherSamples(t *testing.T) {
	// spec §8 P11: after stop returns, no sampler is ever invoked again.
	var calls int
	w := New(20)
	w.AddItem(ItemConfig{
		PeriodMS: 20,
		Sampler:  func(ctx any) int { calls++; return calls },
	})
	w.Start()
	time.Sleep(120 * time.Millisecond)
	w.Stop()
	after := calls
	time.Sleep(100 * time.Millisecond)
	if calls != after {
		t.Fatalf("sampler invoked after Stop: before=%d after=%d", after, calls)
	}
}

func TestRemoveDuringDispatchSafe(t *testing.T) {
	// spec §8 P12 / §9 re-entrancy contract: an action may call RemoveItem
	// on its own item, from within the callback, without deadlocking or
	// leaving the engine touching the removed item afterward.
	fake := clock.NewFake(0)
	w := New(100, WithClock(fake))

	var h uuid.UUID
	var removeErr error
	h, err := w.AddItem(ItemConfig{
		PeriodMS: 100,
		Sampler:  func(ctx any) int { return 1 },
		Action: func(prev, new int, ctx any) {
			removeErr = w.RemoveItem(h)
		},
	})
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}

	fake.Advance(100)
	w.tick()
	if removeErr != nil {
		t.Fatalf("RemoveItem from within Action: %v", removeErr)
	}

	fake.Advance(100)
	w.tick() // must not touch the removed item

	if _, err := w.GetItemState(h); err == nil {
		t.Fatalf("GetItemState on removed handle should fail")
	}
}
