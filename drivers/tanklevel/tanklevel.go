// Package tanklevel reads a pressure-based tank level transducer through an
// ADC capability and reports a calibrated fill percentage.
package tanklevel

import (
	"time"

	"github.com/glenmo/lorawan-water-tank-monitor/x/mathx"
)

// ADC is the analog capability the reader samples. Implementations are
// expected to be cheap and non-blocking; platform packages supply the
// hardware version, tests a deterministic fake.
type ADC interface {
	ReadRaw() uint16
}

// Calibration maps raw ADC counts to a fill percentage. RawMax/VRef define
// the converter, VMin/VMax the transducer's calibrated output range.
type Calibration struct {
	RawMax      uint16        // full-scale ADC count (1023, 4095, 65535...)
	VRef        float64       // converter reference voltage
	VMin        float64       // transducer output at empty tank
	VMax        float64       // transducer output at full tank
	Samples     int           // readings averaged per Sample call
	SampleDelay time.Duration // inter-reading settle delay
}

// Defaults for the deployed node: 10-bit ADC at 3.3 V, 0.5-1.44 V sensor.
func (c Calibration) withDefaults() Calibration {
	if c.RawMax == 0 {
		c.RawMax = 1023
	}
	if c.VRef == 0 {
		c.VRef = 3.3
	}
	if c.VMin == 0 && c.VMax == 0 {
		c.VMin, c.VMax = 0.5, 1.44
	}
	if c.Samples <= 0 {
		c.Samples = 10
	}
	if c.SampleDelay < 0 {
		c.SampleDelay = 0
	}
	return c
}

// VoltsFromRaw converts an averaged raw count to the measured voltage.
func (c Calibration) VoltsFromRaw(avg float64) float64 {
	return mathx.MapRange(avg, 0, float64(c.RawMax), 0, c.VRef)
}

// PercentFromVolts rescales [VMin,VMax] to [0,100], clamped. Out-of-range
// voltage is a valid clamped reading, not a failure.
func (c Calibration) PercentFromVolts(v float64) float64 {
	pct := mathx.MapRange(v, c.VMin, c.VMax, 0, 100)
	return mathx.Clamp(pct, 0, 100)
}

// Reader owns one transducer.
type Reader struct {
	adc ADC
	cal Calibration
}

func New(adc ADC, cal Calibration) *Reader {
	return &Reader{adc: adc, cal: cal.withDefaults()}
}

// Calibration returns the effective (defaulted) calibration.
func (r *Reader) Calibration() Calibration { return r.cal }

// Sample takes the configured number of raw readings with a fixed settle
// delay between them, averages, and converts to a percentage in [0,100].
// It blocks for at most Samples*SampleDelay.
func (r *Reader) Sample() float64 {
	sum := 0
	for i := 0; i < r.cal.Samples; i++ {
		sum += int(r.adc.ReadRaw())
		if r.cal.SampleDelay > 0 && i < r.cal.Samples-1 {
			time.Sleep(r.cal.SampleDelay)
		}
	}
	avg := float64(sum) / float64(r.cal.Samples)
	return r.cal.PercentFromVolts(r.cal.VoltsFromRaw(avg))
}
