// Command statwatchctl is a demo host that wires the three engines
// together against real interfaces and prints an auto-refreshing,
// ANSI-colored terminal table, in the no-TUI-framework style of xtop's
// -watch mode (cmd/watch.go).
package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/ftahirops/statwatch/clock"
	"github.com/ftahirops/statwatch/config"
	"github.com/ftahirops/statwatch/traffic"
	"github.com/ftahirops/statwatch/traffic/procnet"
	"github.com/ftahirops/statwatch/watch"
	"github.com/ftahirops/statwatch/watchdog"
)

// Version is set at build time via ldflags.
var Version = "0.1.0"

const (
	reset = "\033[0m"
	bold  = "\033[1m"
	dim   = "\033[2m"
	fRed  = "\033[31m"
	fGrn  = "\033[32m"
	fYel  = "\033[33m"
	fCyn  = "\033[36m"
	fBRed = "\033[91m"
	fBGrn = "\033[92m"
	fBYel = "\033[93m"
)

func printUsage() {
	fmt.Fprintf(os.Stderr, `statwatchctl v%s — periodic-observation demo host

Usage:
  statwatchctl [OPTIONS]

Options:
  -interval SECONDS   Refresh interval for the terminal table (default: 1)
  -count N            Number of refreshes before exit (0 = infinite, default: 0)
  -iface NAMES        Comma-separated interface names to sample (default: config or autodetect)
  -version            Print version and exit

Examples:
  statwatchctl
  statwatchctl -iface eth0,wlan0 -interval 2
  statwatchctl -count 5
`, Version)
}

func main() {
	var intervalSec int
	var count int
	var ifaceList string
	var showVersion bool

	cfg := config.Load()

	flag.IntVar(&intervalSec, "interval", 1, "Refresh interval in seconds")
	flag.IntVar(&count, "count", 0, "Number of refreshes (0=infinite)")
	flag.StringVar(&ifaceList, "iface", strings.Join(cfg.Traffic.TargetInterfaces, ","), "Comma-separated interface names to sample")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.Usage = printUsage
	flag.Parse()

	if showVersion {
		fmt.Printf("statwatchctl v%s\n", Version)
		return
	}

	names := splitNames(ifaceList)
	if len(names) == 0 {
		names = autodetectUpInterfaces()
	}

	sys := clock.NewSystem()

	reg := traffic.New(procnet.New(), nil, nil, traffic.WithSamplePeriodMS(cfg.Traffic.SamplePeriodMS))
	reg.Init()
	defer reg.Cleanup()
	for _, n := range names {
		if _, err := reg.Register(n); err != nil {
			fmt.Fprintf(os.Stderr, "statwatchctl: register %q: %v\n", n, err)
		}
	}

	w := watch.New(cfg.Watch.BasePeriodMS)
	w.Start()
	defer w.Stop()

	if _, err := w.AddItem(watch.ItemConfig{
		Name:       "link-activity",
		Hysteresis: cfg.Watch.DefaultHysteresis,
		Sampler: func(ctx any) int {
			r := ctx.(*traffic.Registry)
			rates := r.DeltaAll()
			if rates.TxBytesPerSec+rates.RxBytesPerSec > 0 {
				return 1
			}
			return 0
		},
		Ctx: reg,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "statwatchctl: add watch item: %v\n", err)
	}

	wd := watchdog.New(watchdog.WithClock(sys))
	wd.Init()
	defer wd.Deinit()
	heartbeatTimeout := cfg.Watchdog.MinTimeoutMS * 4
	heartbeat := wd.Add(heartbeatTimeout, func(ctx any) {
		fmt.Fprintf(os.Stderr, "%sstatwatchctl: heartbeat stalled (no refresh in %dms)%s\n", fBRed, heartbeatTimeout, reset)
	}, nil)
	heartbeat.Start(wd.Now())

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(time.Duration(intervalSec) * time.Second)
	defer ticker.Stop()

	iterations := 0
	for {
		render(reg, w, wd, names)
		iterations++
		if count > 0 && iterations >= count {
			return
		}

		select {
		case <-sigc:
			return
		case <-ticker.C:
			// a completed render is the heartbeat; Start is start-once, so
			// Cancel first to restart the timeout from now
			heartbeat.Cancel()
			heartbeat.Start(wd.Now())
		}
	}
}

func splitNames(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func autodetectUpInterfaces() []string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil
	}
	var out []string
	for _, ifi := range ifaces {
		if ifi.Flags&net.FlagUp != 0 && ifi.Flags&net.FlagLoopback == 0 {
			out = append(out, ifi.Name)
		}
	}
	sort.Strings(out)
	return out
}

func render(reg *traffic.Registry, w *watch.Watcher, wd *watchdog.Watchdog, names []string) {
	fmt.Print("\033[H\033[2J") // home + clear, matching xtop's watch-mode refresh
	fmt.Println(titleLine("statwatch"))

	fmt.Printf("%swatchdog period:%s %dms  %sactive:%s %v\n",
		dim, reset, wd.PeriodMS(), dim, reset, wd.WorkActive())

	for _, snap := range w.Snapshot() {
		fmt.Printf("%s%-20s%s state=%s samples=%d actions=%d\n",
			bold, snap.Name, reset, colorState(snap.State), snap.SampleCount, snap.ActionCount)
	}

	fmt.Println(hr())
	fmt.Printf("%-15s %12s %12s %12s %12s\n", "IFACE", "RX/s", "TX/s", "RX pkt/s", "TX pkt/s")
	for _, n := range names {
		rates := reg.DeltaSingle(n)
		fmt.Printf("%-15s %12s %12s %12d %12d\n",
			n,
			humanize.Bytes(rates.RxBytesPerSec)+"/s",
			humanize.Bytes(rates.TxBytesPerSec)+"/s",
			rates.RxPacketsPerSec,
			rates.TxPacketsPerSec)
	}
	total := reg.DeltaAll()
	fmt.Printf("%-15s %12s %12s %12d %12d\n",
		fmt.Sprintf("%sTOTAL%s", bold, reset),
		humanize.Bytes(total.RxBytesPerSec)+"/s",
		humanize.Bytes(total.TxBytesPerSec)+"/s",
		total.RxPacketsPerSec,
		total.TxPacketsPerSec)
}

func colorState(s int) string {
	if s == 0 {
		return fmt.Sprintf("%s%d%s", fYel, s, reset)
	}
	return fmt.Sprintf("%s%d%s", fGrn, s, reset)
}

func titleLine(t string) string {
	pad := 60 - len(t) - 2
	if pad < 0 {
		pad = 0
	}
	return fmt.Sprintf("%s%s== %s %s%s", bold, fCyn, t, strings.Repeat("=", pad), reset)
}

func hr() string {
	return fmt.Sprintf("%s%s%s", dim, strings.Repeat("-", 60), reset)
}
