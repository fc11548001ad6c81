package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"

	"github.com/wesleywu/routesock/routing"
)

// Config represents the configuration for routesock handles and the CLI
type Config struct {
	LogLevel  string `toml:"log_level" validate:"oneof=debug info warn error"`
	LogFormat string `toml:"log_format" validate:"oneof=json text"`

	// Socket configuration
	ReadBuffer        int    `toml:"read_buffer" validate:"min=4096"`
	SocketBuffer      int    `toml:"socket_buffer" validate:"min=0"`
	Sequence          uint32 `toml:"sequence"`
	MonotonicSequence bool   `toml:"monotonic_sequence"`

	// Batch and lookup configuration
	Concurrency       int      `toml:"concurrency" validate:"min=1,max=1024"`
	InterfaceCacheTTL Duration `toml:"interface_cache_ttl"`

	MetricsListen string   `toml:"metrics_listen" validate:"omitempty,hostname_port"`
	Groups        []string `toml:"groups" validate:"dive,oneof=ipv4-route ipv6-route mpls-route"`
}

// Duration is a time.Duration written as a string ("30s") in the file.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// NewConfig creates a new config with default values
func NewConfig() *Config {
	return &Config{
		LogLevel:          "info",
		LogFormat:         "json",
		ReadBuffer:        routing.DefaultBufferSize,
		Sequence:          1,
		Concurrency:       8,
		InterfaceCacheTTL: Duration{30 * time.Second},
		Groups:            []string{routing.GroupIPv4Route.String(), routing.GroupIPv6Route.String()},
	}
}

// LoadConfig reads a TOML file over the defaults. An empty path or a missing
// file yields the defaults.
func LoadConfig(file string) (*Config, error) {
	cfg := NewConfig()
	if file == "" {
		return cfg, nil
	}

	content, err := os.ReadFile(file)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", file, err)
	}

	if err := toml.Unmarshal(content, cfg); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return nil, fmt.Errorf("failed to parse config file %s at line %d, column %d: %w", file, row, col, err)
		}
		return nil, fmt.Errorf("failed to parse config file %s: %w", file, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", file, err)
	}
	return cfg, nil
}

// Validate checks field ranges and reports every violation at once.
func (c *Config) Validate() error {
	var msgs []string
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, e := range verrs {
			msgs = append(msgs, fmt.Sprintf("%s: %s", e.Namespace(), validationMessage(e)))
		}
	}
	if c.InterfaceCacheTTL.Duration < 0 {
		msgs = append(msgs, "Config.InterfaceCacheTTL: must be >= 0")
	}
	if len(msgs) > 0 {
		return errors.New(strings.Join(msgs, "; "))
	}
	return nil
}

func validationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "min":
		return fmt.Sprintf("must be >= %s", e.Param())
	case "max":
		return fmt.Sprintf("must be <= %s", e.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", e.Param())
	case "hostname_port":
		return "must be in format 'host:port'"
	default:
		return fmt.Sprintf("validation failed: %s", e.Tag())
	}
}

// ToOptions maps the socket settings onto handle options.
func (c *Config) ToOptions() []routing.Option {
	opts := []routing.Option{
		routing.WithBufferSize(c.ReadBuffer),
		routing.WithSequence(c.Sequence),
		routing.WithMonotonicSequence(c.MonotonicSequence),
	}
	if c.SocketBuffer > 0 {
		opts = append(opts, routing.WithSocketBuffer(c.SocketBuffer))
	}
	return opts
}

// MonitorGroups resolves the configured group names.
func (c *Config) MonitorGroups() ([]routing.Group, error) {
	groups := make([]routing.Group, 0, len(c.Groups))
	for _, name := range c.Groups {
		g, err := routing.ParseGroup(name)
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, nil
}
