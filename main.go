// Firmware entry point for the tank node. Builds for the Pico (modem on
// UART0, transducer on ADC0) and, with the host platform factories, as a
// plain binary for bench runs against a USB-attached modem.
package main

import (
	"context"
	"os"
	"time"

	"github.com/glenmo/lorawan-water-tank-monitor/bus"
	"github.com/glenmo/lorawan-water-tank-monitor/config"
	"github.com/glenmo/lorawan-water-tank-monitor/drivers/tanklevel"
	"github.com/glenmo/lorawan-water-tank-monitor/platform"
	"github.com/glenmo/lorawan-water-tank-monitor/radio/atmodem"
	"github.com/glenmo/lorawan-water-tank-monitor/services/node"
	"github.com/glenmo/lorawan-water-tank-monitor/services/telemetry"
)

func main() {
	// Allow USB CDC to enumerate before we print.
	time.Sleep(2 * time.Second)
	println("boot")

	cfg := config.Default()
	cfg.Sensor = platform.AdjustSensor(cfg.Sensor)

	port, err := platform.OpenModemPort(cfg.Serial)
	if err != nil {
		println("modem port:", err.Error())
		return
	}
	modem := atmodem.Open(port, atmodem.Config{
		DevEUI:  cfg.Radio.DevEUI,
		JoinEUI: cfg.Radio.JoinEUI,
		AppKey:  cfg.Radio.AppKey,
	})
	defer modem.Close()

	adc, err := platform.NewADC(cfg.Sensor)
	if err != nil {
		println("adc:", err.Error())
		return
	}
	reader := tanklevel.New(adc, cfg.Calibration())

	b := bus.NewBus(16)
	ctx := context.Background()

	go telemetry.New(b.NewConnection("telemetry"), os.Stdout).Run(ctx)

	node.New(b.NewConnection("node"), modem, reader, node.Config{
		SendInterval: cfg.Node.SendInterval.D(),
		FPort:        cfg.Node.FPort,
		Params:       cfg.Params(),
	}).Run(ctx)
}
