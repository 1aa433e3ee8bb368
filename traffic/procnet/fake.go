package procnet

import (
	"fmt"
	"sync"

	"github.com/ftahirops/statwatch/errs"
	"github.com/ftahirops/statwatch/traffic"
)

// Fake is an in-memory traffic.DeviceStats implementation for host unit
// tests that cannot assume a Linux /proc filesystem (spec §6 device-stats
// adaptor; see SPEC_FULL.md traffic module notes).
type Fake struct {
	mu    sync.Mutex
	stats map[string]traffic.Counters
}

// NewFake returns an empty Fake; use Set to seed interfaces.
func NewFake() *Fake {
	return &Fake{stats: make(map[string]traffic.Counters)}
}

// Set installs (or replaces) the counters reported for name.
func (f *Fake) Set(name string, c traffic.Counters) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stats[name] = c
}

// Remove makes name no longer known to the fake adaptor.
func (f *Fake) Remove(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.stats, name)
}

// ReadStats implements traffic.DeviceStats.
func (f *Fake) ReadStats(name string) (traffic.Counters, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.stats[name]
	if !ok {
		return traffic.Counters{}, fmt.Errorf("procnet: fake interface %q: %w", name, errs.ErrNotFound)
	}
	return c, nil
}
