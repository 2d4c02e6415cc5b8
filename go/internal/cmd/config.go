package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mcdev12/livepoll/go/internal/realtime"
)

// Config holds serve settings. Yaml values win; unset fields fall back to
// environment variables, then defaults.
type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	NATS struct {
		URL           string `yaml:"url"`
		SubjectPrefix string `yaml:"subject_prefix"`
	} `yaml:"nats"`
}

func loadConfig(path string) (*Config, error) {
	var config Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if config.Server.Port == "" {
		config.Server.Port = getEnv("PORT", "8080")
	}
	if config.NATS.URL == "" {
		config.NATS.URL = os.Getenv("NATS_URL")
	}

	return &config, nil
}

func natsConfig(config *Config) realtime.NATSConfig {
	cfg := realtime.DefaultNATSConfig()
	if config.NATS.URL != "" {
		cfg.URL = config.NATS.URL
	}
	if config.NATS.SubjectPrefix != "" {
		cfg.SubjectPrefix = config.NATS.SubjectPrefix
	}
	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
