//go:build !rp2040

// tankmon runs the tank node on a host against a USB-attached LoRaWAN
// modem, printing the telemetry stream to stdout.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/glenmo/lorawan-water-tank-monitor/bus"
	"github.com/glenmo/lorawan-water-tank-monitor/config"
	"github.com/glenmo/lorawan-water-tank-monitor/drivers/tanklevel"
	"github.com/glenmo/lorawan-water-tank-monitor/platform"
	"github.com/glenmo/lorawan-water-tank-monitor/radio/atmodem"
	"github.com/glenmo/lorawan-water-tank-monitor/services/node"
	"github.com/glenmo/lorawan-water-tank-monitor/services/telemetry"
)

func main() {
	cfgPath := flag.String("config", "", "YAML config path (defaults apply if empty)")
	flag.Parse()

	cfg := config.Default()
	if *cfgPath != "" {
		var err error
		if cfg, err = config.Load(*cfgPath); err != nil {
			log.Fatalln("tankmon:", err)
		}
	}

	port, err := platform.OpenModemPort(cfg.Serial)
	if err != nil {
		log.Fatalln("tankmon: open modem port:", err)
	}
	modem := atmodem.Open(port, atmodem.Config{
		DevEUI:  cfg.Radio.DevEUI,
		JoinEUI: cfg.Radio.JoinEUI,
		AppKey:  cfg.Radio.AppKey,
	})
	defer modem.Close()

	adc, err := platform.NewADC(cfg.Sensor)
	if err != nil {
		log.Fatalln("tankmon: adc:", err)
	}
	reader := tanklevel.New(adc, cfg.Calibration())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b := bus.NewBus(32)
	go telemetry.New(b.NewConnection("telemetry"), os.Stdout).Run(ctx)

	node.New(b.NewConnection("node"), modem, reader, node.Config{
		SendInterval: cfg.Node.SendInterval.D(),
		FPort:        cfg.Node.FPort,
		Params:       cfg.Params(),
	}).Run(ctx)
}
