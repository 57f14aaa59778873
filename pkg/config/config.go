// Package config loads ddlguard settings from a YAML file, DDLGUARD_*
// environment variables and command-line flags, in increasing precedence.
package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/nsxbet/ddlguard/pkg/probe"
)

// EnvPrefix prefixes every environment variable, e.g. DDLGUARD_PROBE_ON_FAILURE.
const EnvPrefix = "DDLGUARD"

// Config represents the configuration for ddlguard.
type Config struct {
	// DSN is the connection string of the guarded database. Empty means
	// offline: no statement is executed and the probe uses Schema.
	DSN      string `yaml:"dsn" mapstructure:"dsn"`
	Driver   string `yaml:"driver" mapstructure:"driver" validate:"required,oneof=postgres sqlite"`
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`
	Output   string `yaml:"output" mapstructure:"output" validate:"required,oneof=text json yaml"`
	// Schema is a JSON or YAML snapshot used to answer table probes offline.
	Schema    string      `yaml:"schema" mapstructure:"schema"`
	CacheSize int         `yaml:"cache_size" mapstructure:"cache_size" validate:"gte=0"`
	Probe     ProbeConfig `yaml:"probe" mapstructure:"probe"`
	// Metrics prints the policy counters after a run.
	Metrics bool `yaml:"metrics" mapstructure:"metrics"`
}

// ProbeConfig configures the table probe used by CREATE INDEX.
type ProbeConfig struct {
	// OnFailure is "allow" (treat the table as empty) or "deny".
	OnFailure string `yaml:"on_failure" mapstructure:"on_failure" validate:"omitempty,oneof=allow deny"`
}

// FailurePolicy returns the parsed probe failure policy.
func (c *Config) FailurePolicy() probe.FailurePolicy {
	// Validate has already rejected unknown values.
	policy, _ := probe.ParseFailurePolicy(c.Probe.OnFailure)
	return policy
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("dsn", "")
	v.SetDefault("driver", "postgres")
	v.SetDefault("log_level", "info")
	v.SetDefault("output", "text")
	v.SetDefault("schema", "")
	v.SetDefault("cache_size", 256)
	v.SetDefault("probe.on_failure", "allow")
	v.SetDefault("metrics", false)
}

// InitViper points v at configFile, when set, and enables environment
// variable overrides.
func InitViper(v *viper.Viper, configFile string) {
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(".ddlguard")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	// Nested keys are not seen by AutomaticEnv during Unmarshal.
	_ = v.BindEnv("probe.on_failure")

	SetDefaults(v)
}

// Load reads the config file, if any, and returns the validated settings.
// A missing config file is not an error when none was named explicitly.
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "failed to read config file")
		}
		slog.Debug("No config file found, using defaults and environment")
	} else {
		slog.Debug("Using config file", "file", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromFile loads configuration from a YAML file, applying defaults and
// environment overrides.
func LoadFromFile(filename string) (*Config, error) {
	v := viper.New()
	InitViper(v, filename)
	return Load(v)
}

// Validate validates the Config using struct tags.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}
	return nil
}

func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}
	messages := make([]string, 0, len(validationErrors))
	for _, e := range validationErrors {
		messages = append(messages, formatSingleValidationError(e))
	}
	return errors.New("invalid config: " + strings.Join(messages, "; "))
}

func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", field, e.Tag())
	}
}
