// Package procnet is the real device-stats adaptor for the traffic sampler
// engine (spec §6): it reads /proc/net/dev, grounded line-for-line on
// xtop's collector/network.go:parseNetDevLine and util/parse.go:ParseUint64.
package procnet

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ftahirops/statwatch/errs"
	"github.com/ftahirops/statwatch/traffic"
)

// Reader implements traffic.DeviceStats by reading /proc/net/dev on every
// call.
type Reader struct {
	path string // overridable for tests; defaults to /proc/net/dev
}

// New returns a Reader over the real /proc/net/dev.
func New() *Reader {
	return &Reader{path: "/proc/net/dev"}
}

// NewAt returns a Reader over an arbitrary path, for tests that supply a
// fixture file in place of /proc/net/dev.
func NewAt(path string) *Reader {
	return &Reader{path: path}
}

// ReadStats implements traffic.DeviceStats.
func (r *Reader) ReadStats(name string) (traffic.Counters, error) {
	f, err := os.Open(r.path)
	if err != nil {
		return traffic.Counters{}, fmt.Errorf("procnet: open %s: %w", r.path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.Contains(line, "|") || strings.TrimSpace(line) == "" {
			continue
		}
		ifaceName, counters, ok := parseNetDevLine(line)
		if !ok || ifaceName != name {
			continue
		}
		return counters, nil
	}
	if err := scanner.Err(); err != nil {
		return traffic.Counters{}, fmt.Errorf("procnet: scan %s: %w", r.path, err)
	}
	return traffic.Counters{}, fmt.Errorf("procnet: interface %q: %w", name, errs.ErrNotFound)
}

// parseNetDevLine parses one "<iface>: <16 fields>" line of /proc/net/dev,
// in the column order the kernel documents (rx bytes/packets/errs/drop/
// fifo/frame/compressed/multicast, then the matching tx columns).
func parseNetDevLine(line string) (string, traffic.Counters, bool) {
	parts := strings.SplitN(line, ":", 2)
	if len(parts) != 2 {
		return "", traffic.Counters{}, false
	}
	name := strings.TrimSpace(parts[0])
	fields := strings.Fields(parts[1])
	if len(fields) < 16 {
		return "", traffic.Counters{}, false
	}
	return name, traffic.Counters{
		RxBytes:   parseUint64(fields[0]),
		RxPackets: parseUint64(fields[1]),
		TxBytes:   parseUint64(fields[8]),
		TxPackets: parseUint64(fields[9]),
	}, true
}

func parseUint64(s string) uint64 {
	v, _ := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	return v
}
