package procnet

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ftahirops/statwatch/traffic"
)

const fixture = `Inter-|   Receive                                                |  Transmit
 face |bytes    packets errs drop fifo frame compressed multicast|bytes    packets errs drop fifo colls carrier compressed
    lo:  123456     200    0    0    0     0          0         0   123456     200    0    0    0     0       0          0
  eth0: 2800000     500    0    0    0     0          0         0    90000     300    0    0    0     0       0          0
`

func writeFixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "net_dev")
	if err := os.WriteFile(path, []byte(fixture), 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func TestReadStatsParsesLine(t *testing.T) {
	r := NewAt(writeFixture(t))
	got, err := r.ReadStats("eth0")
	if err != nil {
		t.Fatalf("ReadStats: %v", err)
	}
	want := traffic.Counters{
		RxBytes:   2800000,
		RxPackets: 500,
		TxBytes:   90000,
		TxPackets: 300,
	}
	if got != want {
		t.Fatalf("ReadStats(eth0) = %+v, want %+v", got, want)
	}
}

func TestReadStatsNotFound(t *testing.T) {
	r := NewAt(writeFixture(t))
	if _, err := r.ReadStats("wlan9"); err == nil {
		t.Fatalf("ReadStats(unknown) should return an error")
	}
}

func TestReadStatsSkipsHeaderLines(t *testing.T) {
	r := NewAt(writeFixture(t))
	if _, err := r.ReadStats("lo"); err != nil {
		t.Fatalf("ReadStats(lo): %v", err)
	}
}
