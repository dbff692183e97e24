package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of every environment variable read by LoadConfig.
// Nested keys are separated by a double underscore: PROMPTLOG_SERVER__PORT -> server.port.
const EnvPrefix = "PROMPTLOG_"

type Config struct {
	Primary       Primary              `koanf:"primary" validate:"required"`
	Server        ServerConfig         `koanf:"server" validate:"required"`
	Auth          AuthConfig           `koanf:"auth" validate:"required"`
	Database      DatabaseConfig       `koanf:"database" validate:"required"`
	Storage       *StorageConfig       `koanf:"storage"`
	Archive       ArchiveConfig        `koanf:"archive" validate:"required"`
	Observability *ObservabilityConfig `koanf:"observability"`
}

type Primary struct {
	Env string `koanf:"env" validate:"required"`
}

type ServerConfig struct {
	Port               string   `koanf:"port" validate:"required"`
	ReadTimeout        int      `koanf:"read_timeout" validate:"required"`
	WriteTimeout       int      `koanf:"write_timeout" validate:"required"`
	IdleTimeout        int      `koanf:"idle_timeout" validate:"required"`
	BodyLimit          string   `koanf:"body_limit" validate:"required"`
	CORSAllowedOrigins []string `koanf:"cors_allowed_origins" validate:"required"`
}

// AuthConfig holds the static credentials checked by the HTTP middleware.
// Token guards ingestion; the basic-auth pair guards stats and archive reads.
type AuthConfig struct {
	Token             string `koanf:"token" validate:"required"`
	BasicUser         string `koanf:"basic_user"`
	BasicPasswordHash string `koanf:"basic_password_hash" validate:"required_with=BasicUser"`
}

type DatabaseConfig struct {
	URL          string `koanf:"url" validate:"required"`
	MaxConns     int32  `koanf:"max_conns" validate:"required,min=1"`
	MinConns     int32  `koanf:"min_conns" validate:"min=0"`
	WriteTimeout int    `koanf:"write_timeout" validate:"required,min=1"`
}

type StorageConfig struct {
	O3 *O3Config `koanf:"o3"`
}

// O3Config points at an S3-compatible endpoint (Akave O3, DigitalOcean Spaces, MinIO).
type O3Config struct {
	Endpoint  string `koanf:"endpoint"`
	Bucket    string `koanf:"bucket"`
	Region    string `koanf:"region"`
	AccessKey string `koanf:"access_key"`
	SecretKey string `koanf:"secret_key"`
	Prefix    string `koanf:"prefix"`
}

// Enabled reports whether enough of the config is present to build a client.
func (c *O3Config) Enabled() bool {
	return c != nil && c.Endpoint != "" && c.Bucket != ""
}

type ArchiveConfig struct {
	MaxBatchSize  int           `koanf:"max_batch_size" validate:"required,min=1"`
	FlushInterval time.Duration `koanf:"flush_interval" validate:"required"`
	QueueSize     int           `koanf:"queue_size" validate:"required,min=1"`
}

func defaults() map[string]any {
	return map[string]any{
		"primary.env":                 "development",
		"server.port":                 "50000",
		"server.read_timeout":         15,
		"server.write_timeout":        15,
		"server.idle_timeout":         60,
		"server.body_limit":           "2M",
		"server.cors_allowed_origins": []string{"*"},
		"database.max_conns":          10,
		"database.min_conns":          0,
		"database.write_timeout":      10,
		"storage.o3.region":           "us-east-1",
		"storage.o3.prefix":           "prompt-logs",
		"archive.max_batch_size":      100,
		"archive.flush_interval":      "30s",
		"archive.queue_size":          1000,
	}
}

// LoadConfig loads the configuration from environment variables using koanf.
// A .env file in the working directory is read first when present.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	for key, val := range defaults() {
		if err := k.Set(key, val); err != nil {
			return nil, fmt.Errorf("could not set default %s: %w", key, err)
		}
	}

	err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(s, "__", ".")
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("could not load env variables: %w", err)
	}

	mainConfig := &Config{}
	if err := k.Unmarshal("", mainConfig); err != nil {
		return nil, fmt.Errorf("could not unmarshal config: %w", err)
	}

	if err := validator.New().Struct(mainConfig); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	// in config struct we set Observability as pointer type to check whether it is nil or not
	if mainConfig.Observability == nil {
		mainConfig.Observability = DefaultObservabilityConfig()
	}
	mainConfig.Observability.Environment = mainConfig.Primary.Env
	if err := mainConfig.Observability.Validate(); err != nil {
		return nil, fmt.Errorf("invalid observability config: %w", err)
	}

	return mainConfig, nil
}

// IsProduction reports whether the process runs with primary.env=production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Primary.Env, "production")
}
