package config

import (
	"fmt"

	"github.com/rs/zerolog"
)

type ObservabilityConfig struct {
	ServiceName string         `koanf:"service_name"`
	Environment string         `koanf:"environment"`
	Logging     LoggingConfig  `koanf:"logging"`
	NewRelic    NewRelicConfig `koanf:"new_relic"`
}

type LoggingConfig struct {
	Level string `koanf:"level"`
}

type NewRelicConfig struct {
	LicenseKey string `koanf:"license_key"`
	AppName    string `koanf:"app_name"`
}

func DefaultObservabilityConfig() *ObservabilityConfig {
	return &ObservabilityConfig{
		ServiceName: "promptlog",
		Logging:     LoggingConfig{Level: "info"},
		NewRelic:    NewRelicConfig{AppName: "promptlog"},
	}
}

// Validate fills blank fields with defaults and rejects unknown log levels.
func (o *ObservabilityConfig) Validate() error {
	if o.ServiceName == "" {
		o.ServiceName = "promptlog"
	}
	if o.Logging.Level == "" {
		o.Logging.Level = "info"
	}
	if o.NewRelic.AppName == "" {
		o.NewRelic.AppName = o.ServiceName
	}
	if _, err := zerolog.ParseLevel(o.Logging.Level); err != nil {
		return fmt.Errorf("logging level %q: %w", o.Logging.Level, err)
	}
	return nil
}

// NewRelicEnabled reports whether a license key was configured.
func (o *ObservabilityConfig) NewRelicEnabled() bool {
	return o != nil && o.NewRelic.LicenseKey != ""
}
