// Package config provides application configuration with layered overrides
// and the declarative pipeline document schema.
// App config load order: defaults -> YAML file -> environment variables.
package config

import (
	"os"

	configloader "github.com/GabrielNunesIT/go-libs/config-loader"
)

// Config is the root application configuration.
type Config struct {
	LogLevel  string    `koanf:"loglevel" yaml:"log_level" json:"log_level"`
	Pipelines []string  `koanf:"pipelines"`
	Watch     bool      `koanf:"watch"`
	API       APIConfig `koanf:"api"`
}

// APIConfig controls the HTTP management surface.
type APIConfig struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr"`
}

// defaults returns the default application configuration values.
func defaults() Config {
	return Config{
		LogLevel: "info",
		Watch:    true,
		API: APIConfig{
			Enabled: false,
			Addr:    ":8080",
		},
	}
}

// Load reads application configuration from all sources with proper override
// order. Order: defaults -> config file -> environment variables.
func Load(configPath string) (*Config, error) {
	opts := []configloader.Option[Config]{
		configloader.WithDefaults[Config](defaults()),
	}

	if configPath != "" {
		opts = append(opts, configloader.WithFile[Config](configPath))
	} else {
		for _, path := range []string{"./logflow.yaml", "/etc/logflow/logflow.yaml"} {
			if _, err := os.Stat(path); err == nil {
				opts = append(opts, configloader.WithFile[Config](path))
				break
			}
		}
	}

	opts = append(opts, configloader.WithEnv[Config]("LOGFLOW_"))

	loader := configloader.NewConfigLoader[Config](opts...)
	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}
