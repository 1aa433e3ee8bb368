package traffic

import "testing"

func TestDeltaOverflowSafe(t *testing.T) {
	// spec §8 P8: for any c, p in the unsigned range, delta == (c-p) mod 2^64.
	cases := []struct {
		name       string
		curr, prev uint64
		want       uint64
	}{
		{"no_wrap", 110, 100, 10},
		{"equal", 100, 100, 0},
		{"single_wrap", 900, maxCounter - 100, 100 + 900 + 1},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := Delta(c.curr, c.prev); got != c.want {
				t.Fatalf("Delta(%d, %d) = %d, want %d", c.curr, c.prev, got, c.want)
			}
		})
	}
}

func TestPerSecondZeroInterval(t *testing.T) {
	// spec §8 P9: rate is zero on a zero interval, no division performed.
	if got := PerSecond(12345, 0); got != 0 {
		t.Fatalf("PerSecond(12345, 0) = %d, want 0", got)
	}
}

func TestPerSecondNormalization(t *testing.T) {
	// spec §8 scenario 5: tx_p 100->110 over 500ms -> 20/s.
	if got := PerSecond(Delta(110, 100), 500); got != 20 {
		t.Fatalf("PerSecond(Delta(110,100), 500) = %d, want 20", got)
	}
}

func TestWrapRateScenario(t *testing.T) {
	// spec §8 scenario 6: tx_b MAX-100 -> 900 across 1000ms -> rate 1001.
	delta := Delta(900, maxCounter-100)
	if got := PerSecond(delta, 1000); got != 1001 {
		t.Fatalf("rate = %d, want 1001", got)
	}
}

func TestRatesAdd(t *testing.T) {
	a := Rates{TxPacketsPerSec: 1, TxBytesPerSec: 2, RxPacketsPerSec: 3, RxBytesPerSec: 4}
	b := Rates{TxPacketsPerSec: 10, TxBytesPerSec: 20, RxPacketsPerSec: 30, RxBytesPerSec: 40}
	got := a.Add(b)
	want := Rates{TxPacketsPerSec: 11, TxBytesPerSec: 22, RxPacketsPerSec: 33, RxBytesPerSec: 44}
	if got != want {
		t.Fatalf("Add = %+v, want %+v", got, want)
	}
}
