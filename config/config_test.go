package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/satlab/bluebox/bluebox"
	"github.com/satlab/bluebox/pkg"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bluebox.hcl")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	s, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if s != Default() {
		t.Errorf("Load(\"\") = %+v, want defaults", s)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, `
radio {
  freq      = 145800000
  csma_rssi = -80
  sw        = 0xABCDEF
}

dispatch {
  strict_length = true
  report_errors = true
}

bus {
  dir           = "/run/bluebox"
  poll_interval = "20ms"
}

mqtt {
  broker = "tcp://broker:1883"
  qos    = 1
}

log {
  level  = "debug"
  format = "json"
}
`)

	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	want := Default()
	want.Radio.Freq = 145800000
	want.Radio.CSMARSSI = -80
	want.Radio.SyncWord = 0xABCDEF
	want.Dispatch = DispatchConf{StrictLength: true, ReportErrors: true}
	want.Bus.Dir = "/run/bluebox"
	want.Bus.PollInterval = 20 * time.Millisecond
	want.MQTT.Broker = "tcp://broker:1883"
	want.MQTT.QoS = 1
	want.Log = LogConf{Level: "debug", Format: "json"}

	if s != want {
		t.Errorf("Load() =\n%+v\nwant\n%+v", s, want)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeFile(t, `radio { freq = 145800000 }`)
	t.Setenv("BLUEBOX_RADIO_FREQ", "437500000")
	t.Setenv("BLUEBOX_RADIO_PA_SETTING", "33")
	t.Setenv("BLUEBOX_SPI_CE_PIN", "GPIO25")
	t.Setenv("BLUEBOX_DISPATCH_STRICT_LENGTH", "true")

	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if s.Radio.Freq != 437500000 {
		t.Errorf("Radio.Freq = %d, want env override", s.Radio.Freq)
	}
	if s.Radio.PASetting != 33 {
		t.Errorf("Radio.PASetting = %d, want 33", s.Radio.PASetting)
	}
	if s.SPI.CEPin != "GPIO25" {
		t.Errorf("SPI.CEPin = %q", s.SPI.CEPin)
	}
	if !s.Dispatch.StrictLength {
		t.Error("Dispatch.StrictLength = false")
	}
	if s.Radio.CSMARSSI != bluebox.DefaultCSMARSSI {
		t.Errorf("Radio.CSMARSSI = %d, want default", s.Radio.CSMARSSI)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.hcl")); err == nil {
		t.Error("Load() error = nil for missing file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Settings)
	}{
		{"empty bus dir", func(s *Settings) { s.Bus.Dir = "" }},
		{"zero poll interval", func(s *Settings) { s.Bus.PollInterval = 0 }},
		{"qos", func(s *Settings) { s.MQTT.QoS = 3 }},
		{"log level", func(s *Settings) { s.Log.Level = "loud" }},
		{"log format", func(s *Settings) { s.Log.Format = "xml" }},
	}

	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() error = %v", err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Default()
			tt.modify(&s)
			if err := s.Validate(); !errors.Is(err, pkg.ErrInvalidParameter) {
				t.Errorf("Validate() error = %v, want ErrInvalidParameter", err)
			}
		})
	}
}

func TestDispatchOptions(t *testing.T) {
	s := Default()
	if opts := s.DispatchOptions(); opts.Length != bluebox.LengthLenient || opts.ReportErrors {
		t.Errorf("default DispatchOptions() = %+v", opts)
	}
	s.Dispatch = DispatchConf{StrictLength: true, ReportErrors: true}
	if opts := s.DispatchOptions(); opts.Length != bluebox.LengthStrict || !opts.ReportErrors {
		t.Errorf("DispatchOptions() = %+v", opts)
	}
}

func TestSlogLevel(t *testing.T) {
	level, err := LogConf{Level: "debug"}.SlogLevel()
	if err != nil || level.String() != "DEBUG" {
		t.Errorf("SlogLevel() = %v, %v", level, err)
	}
}

func TestFind(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bluebox.hcl")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	saved := SearchPaths
	t.Cleanup(func() { SearchPaths = saved })

	SearchPaths = []string{filepath.Join(dir, "missing.hcl"), path}
	if got := Find(); got != path {
		t.Errorf("Find() = %q, want %q", got, path)
	}
	SearchPaths = []string{filepath.Join(dir, "missing.hcl")}
	if got := Find(); got != "" {
		t.Errorf("Find() = %q, want empty", got)
	}
}
