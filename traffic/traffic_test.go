package traffic

import (
	"fmt"
	"sync"
	"testing"

	"github.com/ftahirops/statwatch/clock"
	"github.com/ftahirops/statwatch/errs"
)

// fakeStats is an in-memory DeviceStats for these tests. procnet.Fake cannot
// be used here: procnet imports traffic, so importing it from an in-package
// test would form an import cycle.
type fakeStats struct {
	mu    sync.Mutex
	stats map[string]Counters
}

func newFakeStats() *fakeStats {
	return &fakeStats{stats: make(map[string]Counters)}
}

func (f *fakeStats) Set(name string, c Counters) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stats[name] = c
}

func (f *fakeStats) ReadStats(name string) (Counters, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.stats[name]
	if !ok {
		return Counters{}, fmt.Errorf("fake interface %q: %w", name, errs.ErrNotFound)
	}
	return c, nil
}

func TestDeltaSingleNotFoundReturnsZero(t *testing.T) {
	// spec §4.6: "not found" during delta_single is logged, not an error
	// to the caller -- a zero snapshot is returned.
	stats := newFakeStats()
	r := New(stats, nil, nil)
	got := r.DeltaSingle("eth0")
	if got != (Rates{}) {
		t.Fatalf("DeltaSingle(unregistered) = %+v, want zero value", got)
	}
}

func TestRegisterThenSampleProducesRate(t *testing.T) {
	fake := clock.NewFake(1000)
	stats := newFakeStats()
	stats.Set("eth0", Counters{TxPackets: 100, TxBytes: 2000, RxPackets: 50, RxBytes: 1000})

	r := New(stats, nil, nil, WithClock(fake), WithSamplePeriodMS(100))
	r.Init()
	defer r.Cleanup()

	outcome, err := r.Register("eth0")
	if err != nil || outcome != RegisterAdded {
		t.Fatalf("Register = (%v, %v), want (RegisterAdded, nil)", outcome, err)
	}

	// Drive the tick logic directly so the test does not depend on real
	// wall-clock timing.
	r.tick()

	fake.Set(1500)
	stats.Set("eth0", Counters{TxPackets: 110, TxBytes: 2800, RxPackets: 55, RxBytes: 1100})
	r.tick()

	got := r.DeltaSingle("eth0")
	want := Rates{TxPacketsPerSec: 20, TxBytesPerSec: 1600, RxPacketsPerSec: 10, RxBytesPerSec: 200}
	if got != want {
		t.Fatalf("DeltaSingle after two ticks = %+v, want %+v", got, want)
	}
}

func TestDeltaAllIsSumOfSingles(t *testing.T) {
	// spec §8 P10.
	fake := clock.NewFake(0)
	stats := newFakeStats()
	stats.Set("eth0", Counters{TxPackets: 10, TxBytes: 100, RxPackets: 5, RxBytes: 50})
	stats.Set("eth1", Counters{TxPackets: 20, TxBytes: 200, RxPackets: 15, RxBytes: 150})

	r := New(stats, nil, nil, WithClock(fake), WithSamplePeriodMS(100))
	r.Init()
	defer r.Cleanup()
	r.Register("eth0")
	r.Register("eth1")
	r.tick()

	fake.Set(1000)
	stats.Set("eth0", Counters{TxPackets: 30, TxBytes: 300, RxPackets: 25, RxBytes: 250})
	stats.Set("eth1", Counters{TxPackets: 70, TxBytes: 700, RxPackets: 65, RxBytes: 650})
	r.tick()

	want := r.DeltaSingle("eth0").Add(r.DeltaSingle("eth1"))
	got := r.DeltaAll()
	if got != want {
		t.Fatalf("DeltaAll = %+v, want sum of singles %+v", got, want)
	}
}

func TestUnregisterIdempotent(t *testing.T) {
	stats := newFakeStats()
	stats.Set("eth0", Counters{})
	r := New(stats, nil, nil)
	r.Init()
	defer r.Cleanup()
	r.Register("eth0")
	r.Unregister("eth0")
	r.Unregister("eth0") // duplicate unregister must be a no-op success
}

func TestDeviceEventRegistersTargetedUpName(t *testing.T) {
	stats := newFakeStats()
	stats.Set("wlan0", Counters{TxPackets: 1})
	targets := NewStaticTargets([]string{"wlan0"})
	r := New(stats, nil, targets)
	r.Init()
	defer r.Cleanup()

	r.handleDeviceEvent(EventUp, "wlan0")
	if _, ok := r.entries["wlan0"]; !ok {
		t.Fatalf("device-up for a targeted name should register it")
	}

	r.handleDeviceEvent(EventUp, "docker0")
	if _, ok := r.entries["docker0"]; ok {
		t.Fatalf("device-up for a non-targeted name should not register it")
	}

	r.handleDeviceEvent(EventGoingDown, "wlan0")
	if _, ok := r.entries["wlan0"]; ok {
		t.Fatalf("device-going-down should unregister")
	}
}
