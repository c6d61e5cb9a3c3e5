//go:build !rp2040

// simulate exercises the full uplink lifecycle against the in-memory
// radio stub and a scripted transducer, printing the telemetry stream.
// No hardware needed; handy for eyeballing scheduler behavior.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/glenmo/lorawan-water-tank-monitor/bus"
	"github.com/glenmo/lorawan-water-tank-monitor/config"
	"github.com/glenmo/lorawan-water-tank-monitor/drivers/tanklevel"
	"github.com/glenmo/lorawan-water-tank-monitor/radio/stub"
	"github.com/glenmo/lorawan-water-tank-monitor/services/node"
	"github.com/glenmo/lorawan-water-tank-monitor/services/telemetry"
)

func main() {
	interval := flag.Duration("interval", 2*time.Second, "send interval")
	levels := flag.String("levels", "1023,800,600,400,155,93", "comma-separated raw ADC readings, one per uplink")
	failJoins := flag.Int("fail-joins", 1, "join attempts that fail before accept")
	ack := flag.Bool("ack", true, "acknowledge uplinks")
	flag.Parse()

	raws, err := parseLevels(*levels)
	if err != nil {
		fmt.Fprintln(os.Stderr, "simulate:", err)
		os.Exit(1)
	}

	m := stub.New()
	m.JoinDelay = 300 * time.Millisecond
	m.JoinFails = *failJoins
	m.JoinRetry = time.Second
	m.TxDelay = 200 * time.Millisecond
	m.Ack = *ack
	m.Downlinks = [][]byte{{0x01, 0x0a}} // arrives with the first uplink

	cal := config.Default().Calibration()
	cal.Samples = 1
	reader := tanklevel.New(&scriptADC{raws: raws}, cal)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b := bus.NewBus(32)
	go telemetry.New(b.NewConnection("telemetry"), os.Stdout).Run(ctx)

	node.New(b.NewConnection("node"), m, reader, node.Config{
		SendInterval: *interval,
		FPort:        2,
	}).Run(ctx)
}

func parseLevels(s string) ([]uint16, error) {
	var out []uint16
	for _, f := range strings.Split(s, ",") {
		n, err := strconv.ParseUint(strings.TrimSpace(f), 10, 16)
		if err != nil {
			return nil, fmt.Errorf("levels: %w", err)
		}
		out = append(out, uint16(n))
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("levels: empty")
	}
	return out, nil
}

// scriptADC replays a fixed sequence of raw readings, holding the last one.
type scriptADC struct {
	mu   sync.Mutex
	raws []uint16
	i    int
}

func (a *scriptADC) ReadRaw() uint16 {
	a.mu.Lock()
	defer a.mu.Unlock()
	r := a.raws[a.i]
	if a.i < len(a.raws)-1 {
		a.i++
	}
	return r
}
