package internal

import (
	"fmt"

	"github.com/hbomb79/Siphon/internal/api"
	"github.com/hbomb79/Siphon/internal/ytdlp"
	"github.com/ilyakaznacheev/cleanenv"
)

// Config is the struct used to contain the various user config
// supplied by file and/or environment. It is constructed once when
// Siphon starts and passed down to each service explicitly.
type Config struct {
	RestConfig api.RestConfig `yaml:"api"`
	Engine     ytdlp.Config   `yaml:"engine"`
	StorageDir string         `yaml:"storage_dir" env:"STORAGE_DIR" env-default:"downloads"`
}

// LoadConfig reads the YAML configuration file at the path provided (if any),
// applying environment variable overrides and defaults on top.
func LoadConfig(configPath string) (*Config, error) {
	config := &Config{}
	if configPath == "" {
		if err := cleanenv.ReadEnv(config); err != nil {
			return nil, fmt.Errorf("failed to load configuration from environment - %w", err)
		}
		return config, nil
	}

	if err := cleanenv.ReadConfig(configPath, config); err != nil {
		return nil, fmt.Errorf("failed to load configuration from %s - %w", configPath, err)
	}

	return config, nil
}
