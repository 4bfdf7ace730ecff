package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/hcl"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/satlab/bluebox/bluebox"
	"github.com/satlab/bluebox/pkg"
)

// EnvPrefix starts every environment override, e.g. BLUEBOX_RADIO_FREQ.
const EnvPrefix = "BLUEBOX_"

// SearchPaths are tried in order by Find.
var SearchPaths = []string{
	"/etc/bluebox/bluebox.hcl",
	"~/.config/bluebox/bluebox.hcl",
	"./bluebox.hcl",
}

type DispatchConf struct {
	StrictLength bool `koanf:"strict_length" yaml:"strict_length"`
	ReportErrors bool `koanf:"report_errors" yaml:"report_errors"`
}

type BusConf struct {
	Dir          string        `koanf:"dir" yaml:"dir"`
	PollInterval time.Duration `koanf:"poll_interval" yaml:"poll_interval"`
	Relay        bool          `koanf:"relay" yaml:"relay"`
}

type SPIConf struct {
	Port     string `koanf:"port" yaml:"port"`
	SpeedHz  int64  `koanf:"speed_hz" yaml:"speed_hz"`
	XtalHz   uint32 `koanf:"xtal_hz" yaml:"xtal_hz"`
	CEPin    string `koanf:"ce_pin" yaml:"ce_pin"`
	Simulate bool   `koanf:"simulate" yaml:"simulate"`
}

type MetricsConf struct {
	Listen string `koanf:"listen" yaml:"listen"`
	Pprof  bool   `koanf:"pprof" yaml:"pprof"` // serve /debug/pprof/ next to /metrics
}

type MQTTConf struct {
	Broker   string `koanf:"broker" yaml:"broker"`
	Topic    string `koanf:"topic" yaml:"topic"`
	ClientID string `koanf:"client_id" yaml:"client_id"`
	QoS      byte   `koanf:"qos" yaml:"qos"`
	Retain   bool   `koanf:"retain" yaml:"retain"`
}

type LogConf struct {
	Level  string `koanf:"level" yaml:"level"`
	Format string `koanf:"format" yaml:"format"`
}

// Settings is the daemon configuration.
type Settings struct {
	Radio    bluebox.Config `koanf:"radio" yaml:"radio"`
	Dispatch DispatchConf   `koanf:"dispatch" yaml:"dispatch"`
	Bus      BusConf        `koanf:"bus" yaml:"bus"`
	SPI      SPIConf        `koanf:"spi" yaml:"spi"`
	Metrics  MetricsConf    `koanf:"metrics" yaml:"metrics"`
	MQTT     MQTTConf       `koanf:"mqtt" yaml:"mqtt"`
	Log      LogConf        `koanf:"log" yaml:"log"`
}

// Default returns the built-in settings: compiled-in radio defaults, a
// simulated transceiver on the FIFO bus, and no metrics or MQTT.
func Default() Settings {
	return Settings{
		Radio: bluebox.DefaultConfig(),
		Bus: BusConf{
			Dir:          filepath.Join(os.TempDir(), "bluebox-bus"),
			PollInterval: 10 * time.Millisecond,
			Relay:        true,
		},
		SPI: SPIConf{
			SpeedHz:  1000000,
			XtalHz:   19200000,
			Simulate: true,
		},
		MQTT: MQTTConf{
			Topic:    "bluebox/config",
			ClientID: "bluebox",
		},
		Log: LogConf{
			Level:  "warn",
			Format: "text",
		},
	}
}

// Find returns the first existing file in SearchPaths, or "" if none.
func Find() string {
	for _, path := range SearchPaths {
		path = expandHome(path)
		if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
			pkg.LogInfo(pkg.ComponentConfig, "found config file", "path", path)
			return path
		}
	}
	pkg.LogDebug(pkg.ComponentConfig, "no config file found")
	return ""
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

// Load reads settings from the HCL file at path (skipped when empty) and
// then from BLUEBOX_ environment variables. Keys that are not set keep
// their defaults.
func Load(path string) (Settings, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(expandHome(path)), hcl.Parser(true)); err != nil {
			return Settings{}, fmt.Errorf("read %s: %w", path, err)
		}
	}

	err := k.Load(env.Provider(".", env.Opt{
		Prefix: EnvPrefix,
		TransformFunc: func(name, value string) (string, any) {
			key := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
			key = strings.Replace(key, "_", ".", 1)
			pkg.LogDebug(pkg.ComponentConfig, "env override", "key", key)
			return key, value
		},
	}), nil)
	if err != nil {
		return Settings{}, fmt.Errorf("read environment: %w", err)
	}

	s := Default()
	if err := k.UnmarshalWithConf("", &s, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Settings{}, fmt.Errorf("decode settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate checks settings that have no safe fallback.
func (s Settings) Validate() error {
	if s.Bus.Dir == "" {
		return fmt.Errorf("bus.dir: %w", pkg.ErrInvalidParameter)
	}
	if s.Bus.PollInterval <= 0 {
		return fmt.Errorf("bus.poll_interval %s: %w", s.Bus.PollInterval, pkg.ErrInvalidParameter)
	}
	if s.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos %d: %w", s.MQTT.QoS, pkg.ErrInvalidParameter)
	}
	if _, err := s.Log.SlogLevel(); err != nil {
		return err
	}
	switch s.Log.Format {
	case "text", "json", "logfmt":
	default:
		return fmt.Errorf("log.format %q: %w", s.Log.Format, pkg.ErrInvalidParameter)
	}
	return nil
}

// SlogLevel parses the configured log level.
func (l LogConf) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log.level %q: %w", l.Level, pkg.ErrInvalidParameter)
	}
	return level, nil
}

// DispatchOptions converts the dispatch section.
func (s Settings) DispatchOptions() bluebox.Options {
	opts := bluebox.Options{ReportErrors: s.Dispatch.ReportErrors}
	if s.Dispatch.StrictLength {
		opts.Length = bluebox.LengthStrict
	}
	return opts
}
