// Package config loads the node's YAML configuration. The configuration is
// immutable for the process lifetime: it is loaded once at startup,
// validated, and handed to the services.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/glenmo/lorawan-water-tank-monitor/drivers/tanklevel"
	"github.com/glenmo/lorawan-water-tank-monitor/protocol"
	"github.com/glenmo/lorawan-water-tank-monitor/radio"
	"github.com/glenmo/lorawan-water-tank-monitor/x/mathx"
)

// Duration is a time.Duration that unmarshals from YAML strings in
// time.ParseDuration form ("10m", "250ms").
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("config: duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) D() time.Duration { return time.Duration(d) }

type Config struct {
	Node   Node   `yaml:"node"`
	Sensor Sensor `yaml:"sensor"`
	Radio  Radio  `yaml:"radio"`
	Serial Serial `yaml:"serial"`
}

// Node times the uplink schedule.
type Node struct {
	SendInterval Duration `yaml:"send_interval"`
	FPort        uint8    `yaml:"fport"`
}

// Sensor calibrates the tank-level transducer.
type Sensor struct {
	RawMax      uint16   `yaml:"raw_max"`
	VRef        float64  `yaml:"vref"`
	VMin        float64  `yaml:"vmin"`
	VMax        float64  `yaml:"vmax"`
	Samples     int      `yaml:"samples"`
	SampleDelay Duration `yaml:"sample_delay"`
}

// Radio fixes the modem's behavioral parameters and OTAA identity.
type Radio struct {
	DataRate       int    `yaml:"data_rate"`
	TxPower        int    `yaml:"tx_power"`
	ClockTolerance int    `yaml:"clock_tolerance"`
	DevEUI         string `yaml:"dev_eui"`
	JoinEUI        string `yaml:"join_eui"`
	AppKey         string `yaml:"app_key"`
}

// Serial locates the modem UART on the host.
type Serial struct {
	Device string `yaml:"device"`
	Baud   int    `yaml:"baud"`
}

// Default returns the deployed node's configuration: 10-bit ADC at 3.3 V,
// 0.5-1.44 V transducer, one uplink every 10 minutes.
func Default() Config {
	return Config{
		Node: Node{
			SendInterval: Duration(10 * time.Minute),
			FPort:        protocol.FPort,
		},
		Sensor: Sensor{
			RawMax:      1023,
			VRef:        3.3,
			VMin:        0.5,
			VMax:        1.44,
			Samples:     10,
			SampleDelay: Duration(10 * time.Millisecond),
		},
		Radio: Radio{
			DataRate:       3,
			TxPower:        14,
			ClockTolerance: 5,
		},
		Serial: Serial{
			Device: "/dev/ttyUSB0",
			Baud:   115200,
		},
	}
}

// Load reads path, layering the file over Default.
func Load(path string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Node.SendInterval.D() < time.Second {
		return fmt.Errorf("config: send_interval %v below 1s", c.Node.SendInterval.D())
	}
	if !mathx.Between(int(c.Node.FPort), 1, 223) {
		return fmt.Errorf("config: fport must be 1..223")
	}
	if c.Sensor.RawMax == 0 {
		return fmt.Errorf("config: sensor raw_max must be > 0")
	}
	if c.Sensor.VRef <= 0 {
		return fmt.Errorf("config: sensor vref must be > 0")
	}
	if c.Sensor.VMax <= c.Sensor.VMin {
		return fmt.Errorf("config: sensor vmax %v not above vmin %v", c.Sensor.VMax, c.Sensor.VMin)
	}
	if c.Sensor.Samples <= 0 {
		return fmt.Errorf("config: sensor samples must be > 0")
	}
	if c.Serial.Baud <= 0 {
		return fmt.Errorf("config: serial baud must be > 0")
	}
	return nil
}

// Calibration converts the sensor section for the tank-level reader.
func (c Config) Calibration() tanklevel.Calibration {
	return tanklevel.Calibration{
		RawMax:      c.Sensor.RawMax,
		VRef:        c.Sensor.VRef,
		VMin:        c.Sensor.VMin,
		VMax:        c.Sensor.VMax,
		Samples:     c.Sensor.Samples,
		SampleDelay: c.Sensor.SampleDelay.D(),
	}
}

// Params converts the radio section for the modem.
func (c Config) Params() radio.Params {
	return radio.Params{
		DataRate:       c.Radio.DataRate,
		TxPower:        c.Radio.TxPower,
		ClockTolerance: c.Radio.ClockTolerance,
	}
}
