//go:build rp2040

// Pico platform: the modem sits on UART0 and the transducer on ADC0.
//
// The rp2040 ADC reads are left-aligned 16-bit values, so the sensor
// raw_max must be 65535 here, not the 10-bit 1023 used in the reference
// calibration.
package platform

import (
	"context"
	"errors"
	"machine"
	"time"

	uartx "github.com/jangala-dev/tinygo-uartx/uartx"

	"github.com/glenmo/lorawan-water-tank-monitor/config"
	"github.com/glenmo/lorawan-water-tank-monitor/drivers/tanklevel"
	"github.com/glenmo/lorawan-water-tank-monitor/radio/atmodem"
)

// OpenModemPort configures UART0 for the modem. cfg.Device is ignored on
// this platform.
func OpenModemPort(cfg config.Serial) (atmodem.Port, error) {
	hw := uartx.UART0
	if err := hw.Configure(uartx.UARTConfig{
		BaudRate: uint32(cfg.Baud),
		TX:       machine.UART0_TX_PIN,
		RX:       machine.UART0_RX_PIN,
	}); err != nil {
		return nil, err
	}
	return &uartPort{u: hw}, nil
}

// uartPort adapts uartx to the modem's polled byte transport.
type uartPort struct{ u *uartx.UART }

func (p *uartPort) Write(b []byte) (int, error) { return p.u.Write(b) }

func (p *uartPort) Read(b []byte) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	n, err := p.u.RecvSomeContext(ctx, b)
	if errors.Is(err, context.DeadlineExceeded) {
		return 0, nil
	}
	return n, err
}

// AdjustSensor rescales the calibration for this platform's left-aligned
// 16-bit ADC reads.
func AdjustSensor(cfg config.Sensor) config.Sensor {
	cfg.RawMax = 0xffff
	return cfg
}

// NewADC claims ADC0 (GPIO26) for the tank-level transducer.
func NewADC(cfg config.Sensor) (tanklevel.ADC, error) {
	machine.InitADC()
	adc := machine.ADC{Pin: machine.ADC0}
	adc.Configure(machine.ADCConfig{})
	return &picoADC{adc: adc}, nil
}

type picoADC struct{ adc machine.ADC }

func (a *picoADC) ReadRaw() uint16 { return a.adc.Get() }
