// Package config loads service settings from defaults, an optional YAML file
// and the environment, in increasing order of precedence.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"opdo-sim/internal/optics"
)

// ConfigPathEnvVar names an optional YAML config file.
const ConfigPathEnvVar = "CONFIG_PATH"

type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Log        LogConfig        `koanf:"log"`
	OTel       OTelConfig       `koanf:"otel"`
	RateLimit  RateLimitConfig  `koanf:"rate_limit"`
	Simulation SimulationConfig `koanf:"simulation"`
}

type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              int           `koanf:"port" validate:"min=1,max=65535"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout" validate:"min=0"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout" validate:"min=0"`
}

type LogConfig struct {
	Level string `koanf:"level" validate:"omitempty,oneof=debug info warn error"`
}

type OTelConfig struct {
	Enabled     bool    `koanf:"enabled"`
	LogsEnabled bool    `koanf:"logs_enabled"`
	SampleRatio float64 `koanf:"sample_ratio" validate:"gte=0,lte=1"`
}

// RateLimitConfig limits POST /simulate per client IP. Zero requests
// disables the limiter.
type RateLimitConfig struct {
	Requests int           `koanf:"requests" validate:"min=0"`
	Window   time.Duration `koanf:"window" validate:"min=0"`
}

// SimulationConfig holds the render settings and the fixed optical system
// applied to every lens. Clients cannot override these.
type SimulationConfig struct {
	DPI           float64       `koanf:"dpi" validate:"gt=0,lte=1200"`
	NumRays       int           `koanf:"num_rays" validate:"min=1,max=100"`
	MaxBodyBytes  int64         `koanf:"max_body_bytes" validate:"gt=0"`
	RenderTimeout time.Duration `koanf:"render_timeout" validate:"min=0"`
	EPD           float64       `koanf:"epd" validate:"gt=0"`
	Fields        []float64     `koanf:"fields" validate:"min=1,dive,gt=-90,lt=90"`
	Wavelength    float64       `koanf:"wavelength" validate:"gt=0"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              5000,
			ReadHeaderTimeout: 10 * time.Second,
			ShutdownTimeout:   5 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
		OTel: OTelConfig{
			Enabled:     true,
			LogsEnabled: false,
			SampleRatio: 1,
		},
		RateLimit: RateLimitConfig{
			Requests: 0,
			Window:   time.Minute,
		},
		Simulation: SimulationConfig{
			DPI:           300,
			NumRays:       10,
			MaxBodyBytes:  1 << 20,
			RenderTimeout: time.Minute,
			EPD:           10,
			Fields:        []float64{0, 5},
			Wavelength:    0.55,
		},
	}
}

// envKeys maps the environment variables we read to config paths. Anything
// else in the environment is ignored.
var envKeys = map[string]string{
	"HOST":                      "server.host",
	"PORT":                      "server.port",
	"READ_HEADER_TIMEOUT":       "server.read_header_timeout",
	"SHUTDOWN_TIMEOUT":          "server.shutdown_timeout",
	"LOG_LEVEL":                 "log.level",
	"OTEL_ENABLED":              "otel.enabled",
	"OTEL_LOGS_ENABLED":         "otel.logs_enabled",
	"OTEL_SAMPLE_RATIO":         "otel.sample_ratio",
	"RATE_LIMIT_REQUESTS":       "rate_limit.requests",
	"RATE_LIMIT_WINDOW":         "rate_limit.window",
	"SIMULATION_DPI":            "simulation.dpi",
	"SIMULATION_NUM_RAYS":       "simulation.num_rays",
	"SIMULATION_MAX_BODY_BYTES": "simulation.max_body_bytes",
	"SIMULATION_RENDER_TIMEOUT": "simulation.render_timeout",
	"SIMULATION_EPD":            "simulation.epd",
	"SIMULATION_FIELDS":         "simulation.fields",
	"SIMULATION_WAVELENGTH":     "simulation.wavelength",
}

func envTransformFunc(key string) string {
	return envKeys[key]
}

// Load builds the configuration: defaults, then the YAML file named by
// CONFIG_PATH if set, then environment variables.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := os.Getenv(ConfigPathEnvVar); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	if err := parseFloatList(k, "simulation.fields"); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// parseFloatList turns a comma-separated env value such as "0,5" into a
// float slice. Values already loaded as lists are left alone.
func parseFloatList(k *koanf.Koanf, path string) error {
	s, ok := k.Get(path).(string)
	if !ok {
		return nil
	}

	var out []float64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		out = append(out, v)
	}
	return k.Set(path, out)
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	return validator.New(validator.WithRequiredStructEnabled()).Struct(c)
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// System is the optical setup applied to every simulated lens.
func (s SimulationConfig) System() optics.System {
	return optics.System{
		ApertureType:  optics.ApertureEPD,
		ApertureValue: s.EPD,
		FieldType:     optics.FieldAngle,
		Fields:        append([]float64(nil), s.Fields...),
		Wavelengths:   []float64{s.Wavelength},
	}
}
