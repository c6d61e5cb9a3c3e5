//go:build !rp2040

// Host platform: the modem hangs off a USB serial adapter and there is no
// ADC, so the sensor is simulated.
package platform

import (
	"time"

	"github.com/tarm/serial"

	"github.com/glenmo/lorawan-water-tank-monitor/config"
	"github.com/glenmo/lorawan-water-tank-monitor/drivers/tanklevel"
	"github.com/glenmo/lorawan-water-tank-monitor/radio/atmodem"
)

// OpenModemPort opens the configured serial device. The read timeout keeps
// the modem's line reader polling instead of blocking forever.
func OpenModemPort(cfg config.Serial) (atmodem.Port, error) {
	return serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: 50 * time.Millisecond,
	})
}

// AdjustSensor returns the sensor section unchanged; the reference
// calibration already assumes a 10-bit host-side capture.
func AdjustSensor(cfg config.Sensor) config.Sensor { return cfg }

// NewADC returns a simulated transducer that drains from full to empty and
// refills, cycling once per hour. Useful for soak-testing a host build
// against a real modem.
func NewADC(cfg config.Sensor) (tanklevel.ADC, error) {
	return &rampADC{
		start: time.Now(),
		cal:   cfg,
	}, nil
}

type rampADC struct {
	start time.Time
	cal   config.Sensor
}

func (a *rampADC) ReadRaw() uint16 {
	const period = time.Hour
	phase := float64(time.Since(a.start)%period) / float64(period)
	// Triangle wave over the transducer's span.
	frac := 2 * phase
	if frac > 1 {
		frac = 2 - frac
	}
	volts := a.cal.VMin + frac*(a.cal.VMax-a.cal.VMin)
	return uint16(volts / a.cal.VRef * float64(a.cal.RawMax))
}
