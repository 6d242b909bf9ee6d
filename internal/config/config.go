package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/danmuck/isoctl/internal/identity"
)

type ServiceConfig struct {
	Name            string          `toml:"name"`
	Addr            string          `toml:"addr"`
	CorsOrigins     []string        `toml:"cors_origins"`
	RingCapacity    int             `toml:"ring_capacity"`
	IDPolicy        string          `toml:"id_policy"`
	EventQueueDepth int             `toml:"event_queue_depth"`
	Isolates        []IsolateConfig `toml:"isolates"`
}

type IsolateConfig struct {
	ID             string `toml:"id"`
	Name           string `toml:"name"`
	RingCapacity   int    `toml:"ring_capacity"`
	CollectEveryMS int    `toml:"collect_every_ms"`
}

func LoadServiceConfig(path string) (ServiceConfig, error) {
	var cfg ServiceConfig
	if err := loadToml(path, &cfg); err != nil {
		return ServiceConfig{}, err
	}
	applyDefaults(&cfg)
	if err := ValidateServiceConfig(cfg); err != nil {
		return ServiceConfig{}, err
	}
	return cfg, nil
}

// Default returns the config used when no file is given.
func Default() ServiceConfig {
	cfg := ServiceConfig{}
	applyDefaults(&cfg)
	return cfg
}

func applyDefaults(cfg *ServiceConfig) {
	if cfg.Name == "" {
		cfg.Name = "isoctl"
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9500"
	}
	if cfg.RingCapacity == 0 {
		cfg.RingCapacity = identity.DefaultCapacity
	}
	if cfg.EventQueueDepth == 0 {
		cfg.EventQueueDepth = 64
	}
	for i := range cfg.Isolates {
		if cfg.Isolates[i].RingCapacity == 0 {
			cfg.Isolates[i].RingCapacity = cfg.RingCapacity
		}
	}
}

// Policy resolves the configured id policy string.
func (c ServiceConfig) Policy() (identity.Policy, error) {
	return identity.ParsePolicy(c.IDPolicy)
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ValidateServiceConfig(cfg ServiceConfig) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return fmt.Errorf("service config missing name")
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		return fmt.Errorf("service config missing addr")
	}
	if cfg.RingCapacity < 0 {
		return fmt.Errorf("ring_capacity must be positive")
	}
	if cfg.EventQueueDepth < 0 {
		return fmt.Errorf("event_queue_depth must be positive")
	}
	if _, err := cfg.Policy(); err != nil {
		return fmt.Errorf("id_policy invalid: %w", err)
	}
	for i, iso := range cfg.Isolates {
		if err := ValidateIsolateEntry(iso); err != nil {
			return fmt.Errorf("isolate[%d] invalid: %w", i, err)
		}
	}
	return nil
}

func ValidateIsolateEntry(cfg IsolateConfig) error {
	if strings.TrimSpace(cfg.ID) == "" {
		return fmt.Errorf("id is required")
	}
	if cfg.RingCapacity < 0 {
		return fmt.Errorf("ring_capacity must be positive")
	}
	if cfg.CollectEveryMS < 0 {
		return fmt.Errorf("collect_every_ms must be positive")
	}
	return nil
}
