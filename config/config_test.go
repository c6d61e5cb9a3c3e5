package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "node.yaml")
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoad_OverlaysDefaults(t *testing.T) {
	p := writeTemp(t, `
node:
  send_interval: 5m
sensor:
  vmin: 0.4
radio:
  data_rate: 5
  dev_eui: a84041d111896c86
serial:
  device: /dev/ttyACM0
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Node.SendInterval.D() != 5*time.Minute {
		t.Errorf("send_interval = %v", cfg.Node.SendInterval.D())
	}
	if cfg.Sensor.VMin != 0.4 || cfg.Sensor.VMax != 1.44 {
		t.Errorf("calibration = %+v", cfg.Sensor)
	}
	if cfg.Radio.DataRate != 5 || cfg.Radio.TxPower != 14 {
		t.Errorf("radio = %+v", cfg.Radio)
	}
	if cfg.Radio.DevEUI != "a84041d111896c86" {
		t.Errorf("dev_eui = %q", cfg.Radio.DevEUI)
	}
	if cfg.Serial.Device != "/dev/ttyACM0" || cfg.Serial.Baud != 115200 {
		t.Errorf("serial = %+v", cfg.Serial)
	}
}

func TestLoad_RejectsBadValues(t *testing.T) {
	cases := []string{
		"node:\n  send_interval: 10ms\n",
		"node:\n  send_interval: soon\n",
		"node:\n  fport: 250\n",
		"sensor:\n  vmin: 2.0\n  vmax: 1.0\n",
		"sensor:\n  samples: -1\n",
		"serial:\n  baud: -9600\n",
	}
	for _, c := range cases {
		if _, err := Load(writeTemp(t, c)); err == nil {
			t.Errorf("expected validation error for %q", c)
		}
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}
