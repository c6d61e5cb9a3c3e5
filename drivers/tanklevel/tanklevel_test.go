package tanklevel

import (
	"math"
	"testing"
)

// fakeADC replays a fixed sequence of raw readings.
type fakeADC struct {
	raws []uint16
	i    int
}

func (f *fakeADC) ReadRaw() uint16 {
	if len(f.raws) == 0 {
		return 0
	}
	v := f.raws[f.i%len(f.raws)]
	f.i++
	return v
}

func testCal() Calibration {
	return Calibration{RawMax: 1023, VRef: 3.3, VMin: 0.5, VMax: 1.44, Samples: 10}
}

func TestPercentFromVolts_CalibratedRange(t *testing.T) {
	cal := testCal()
	cases := []struct {
		volts float64
		want  float64
	}{
		{1.44, 100.0}, // full tank
		{0.5, 0.0},    // empty tank
		{0.97, 50.0},  // midpoint
		{0.3, 0.0},    // below range clamps
		{0.0, 0.0},
		{2.0, 100.0}, // above range clamps
		{3.3, 100.0},
	}
	for _, c := range cases {
		got := cal.PercentFromVolts(c.volts)
		if math.Abs(got-c.want) > 1e-9 {
			t.Errorf("PercentFromVolts(%v) = %v, want %v", c.volts, got, c.want)
		}
	}
}

func TestSample_AlwaysInBounds(t *testing.T) {
	cal := testCal()
	// Sweep the whole raw range; every average must land in [0,100].
	for raw := 0; raw <= int(cal.RawMax); raw += 7 {
		r := New(&fakeADC{raws: []uint16{uint16(raw)}}, cal)
		pct := r.Sample()
		if pct < 0 || pct > 100 {
			t.Fatalf("raw %d gave out-of-bounds percent %v", raw, pct)
		}
	}
}

func TestSample_AveragesReadings(t *testing.T) {
	cal := testCal()
	cal.Samples = 4
	// Average of 150 and 160 is 155 counts = 0.5 V exactly = 0 %.
	r := New(&fakeADC{raws: []uint16{150, 160, 150, 160}}, cal)
	if got := r.Sample(); math.Abs(got-0) > 1e-9 {
		t.Errorf("Sample() = %v, want 0", got)
	}
}

func TestSample_KnownVoltages(t *testing.T) {
	cal := testCal()
	cases := []struct {
		raw  uint16
		want float64
	}{
		{155, 0.0},   // 155/1023*3.3 = 0.5 V
		{93, 0.0},    // 0.3 V, clamped
		{0, 0.0},     // floor
		{1023, 100.0}, // 3.3 V, clamped
	}
	for _, c := range cases {
		r := New(&fakeADC{raws: []uint16{c.raw}}, cal)
		if got := r.Sample(); math.Abs(got-c.want) > 1e-9 {
			t.Errorf("raw %d: Sample() = %v, want %v", c.raw, got, c.want)
		}
	}
}

func TestDefaults(t *testing.T) {
	r := New(&fakeADC{}, Calibration{})
	cal := r.Calibration()
	if cal.RawMax != 1023 || cal.VRef != 3.3 || cal.VMin != 0.5 || cal.VMax != 1.44 || cal.Samples != 10 {
		t.Fatalf("unexpected defaults: %+v", cal)
	}
}
