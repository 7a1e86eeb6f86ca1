package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	envPrefix            = "INCOGNITO"
	envConfigDefaultPath = "INCOGNITO_CONFIG_DEFAULT_PATH"
	defaultConfigName    = "incognito.yaml"
)

// Load builds configuration from defaults, an optional config file and env
// vars, and returns the resolved path.
// Precedence: defaults < config file < env vars < caller overrides.
//
// A missing file is not an error. When the caller named the file explicitly
// it is created with the defaults so it can be edited afterwards.
func Load(logger *zerolog.Logger, explicitPath string) (Config, string, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	for key, value := range defaults(cfg) {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	configPath := resolveConfigPath(explicitPath)
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return cfg, configPath, fmt.Errorf("read config: %w", err)
		}
		if explicitPath != "" {
			if writeErr := WriteDefault(configPath); writeErr != nil {
				logger.Warn().Err(writeErr).Str("path", configPath).Msg("failed to write default config")
			} else {
				logger.Info().Str("path", configPath).Msg("created default config")
			}
		} else {
			logger.Debug().Str("path", configPath).Msg("no config file, using defaults")
		}
	} else {
		logger.Debug().Str("path", configPath).Msg("config file loaded")
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, configPath, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, configPath, err
	}
	return cfg, configPath, nil
}

// Validate rejects values the relay can not run with.
func (c Config) Validate() error {
	if c.Addr == "" {
		return errors.New("config: addr must not be empty")
	}
	if c.MaxMessageSize <= 0 {
		return fmt.Errorf("config: max_message_size must be positive, got %d", c.MaxMessageSize)
	}
	return nil
}

// WriteDefault stores the default configuration as yaml at path.
func WriteDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(Default())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func defaults(cfg Config) map[string]any {
	return map[string]any{
		"addr":                cfg.Addr,
		"http_addr":           cfg.HTTPAddr,
		"log_level":           cfg.LogLevel,
		"max_message_size":    cfg.MaxMessageSize,
		"download_dir":        cfg.DownloadDir,
		"read_header_timeout": cfg.ReadHeaderTimeout,
		"shutdown_timeout":    cfg.ShutdownTimeout,
	}
}

func resolveConfigPath(explicitPath string) string {
	if explicitPath != "" {
		return explicitPath
	}

	if base := os.Getenv(envConfigDefaultPath); base != "" {
		return filepath.Join(base, defaultConfigName)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return defaultConfigName
	}
	return filepath.Join(cwd, defaultConfigName)
}
