package main

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/always-cache/shellcache"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

//go:embed shellcache.yaml
var defaultConfig []byte

// Config is read from the embedded defaults, the --config file and the
// SHELLCACHE_* environment variables, in that order.
type Config struct {
	Origin            string        `yaml:"origin" env:"SHELLCACHE_ORIGIN"`
	Version           string        `yaml:"version" env:"SHELLCACHE_VERSION"`
	Prefix            string        `yaml:"prefix" env:"SHELLCACHE_PREFIX"`
	ShellPath         string        `yaml:"shellPath" env:"SHELLCACHE_SHELL_PATH"`
	ShellAssets       []string      `yaml:"shellAssets" env:"SHELLCACHE_SHELL_ASSETS"`
	BackendHost       string        `yaml:"backendHost" env:"SHELLCACHE_BACKEND_HOST"`
	OfflineMessage    string        `yaml:"offlineMessage" env:"SHELLCACHE_OFFLINE_MESSAGE"`
	SyncTag           string        `yaml:"syncTag" env:"SHELLCACHE_SYNC_TAG"`
	NavigationPreload bool          `yaml:"navigationPreload" env:"SHELLCACHE_NAVIGATION_PRELOAD"`
	NetworkTimeout    time.Duration `yaml:"networkTimeout" env:"SHELLCACHE_NETWORK_TIMEOUT"`
}

func getConfig(filename string) (Config, error) {
	var config Config
	if err := yaml.Unmarshal(defaultConfig, &config); err != nil {
		return config, fmt.Errorf("invalid default config: %w", err)
	}
	if filename != "" {
		configBytes, err := os.ReadFile(filename)
		if err != nil {
			return config, err
		}
		if err := yaml.Unmarshal(configBytes, &config); err != nil {
			return config, fmt.Errorf("invalid config %s: %w", filename, err)
		}
	}
	if err := env.Parse(&config); err != nil {
		return config, fmt.Errorf("parse env: %w", err)
	}
	return config, nil
}

// engineConfig converts the file configuration to the engine configuration.
func (c Config) engineConfig(logger zerolog.Logger) shellcache.Config {
	return shellcache.Config{
		Origin:            c.Origin,
		Version:           c.Version,
		Prefix:            c.Prefix,
		ShellPath:         c.ShellPath,
		ShellAssets:       c.ShellAssets,
		BackendHost:       c.BackendHost,
		OfflineMessage:    c.OfflineMessage,
		SyncTag:           c.SyncTag,
		NavigationPreload: c.NavigationPreload,
		NetworkTimeout:    c.NetworkTimeout,
		Logger:            &logger,
	}
}
