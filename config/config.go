// Copyright (C) 2025 sage-x-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

// Package config loads and validates the settings that drive a zajel
// node: which signaling server to dial, how long meeting points live,
// and how the ambient logging/metrics/health surfaces behave.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for a zajel node.
type Config struct {
	Environment string            `yaml:"environment" json:"environment"`
	Signaling   *SignalingConfig  `yaml:"signaling" json:"signaling"`
	Rendezvous  *RendezvousConfig `yaml:"rendezvous" json:"rendezvous"`
	Link        *LinkConfig       `yaml:"link" json:"link"`
	Storage     *StorageConfig    `yaml:"storage" json:"storage"`
	Testing     *TestingConfig    `yaml:"testing" json:"testing"`
	Logging     *LoggingConfig    `yaml:"logging" json:"logging"`
	Metrics     *MetricsConfig    `yaml:"metrics" json:"metrics"`
	Health      *HealthConfig     `yaml:"health" json:"health"`
}

// StorageConfig selects and configures the backing store for trusted
// peers, messages, and linked devices. Backend "memory" needs no
// further fields; backend "postgres" is the jackc/pgx/v5-backed
// storage/postgres adapter.
type StorageConfig struct {
	Backend  string `yaml:"backend" json:"backend"`
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	User     string `yaml:"user" json:"user"`
	Password string `yaml:"password" json:"password"`
	Database string `yaml:"database" json:"database"`
	SSLMode  string `yaml:"ssl_mode" json:"ssl_mode"`
}

// SignalingConfig configures the dispatcher's connection to the
// signaling server.
type SignalingConfig struct {
	ServerURL                 string        `yaml:"server_url" json:"server_url"`
	FederatedRedirectAllowlist []string     `yaml:"federated_redirect_allowlist" json:"federated_redirect_allowlist"`
	HeartbeatInterval         time.Duration `yaml:"heartbeat_interval" json:"heartbeat_interval"`
	DialTimeout               time.Duration `yaml:"dial_timeout" json:"dial_timeout"`
}

// RendezvousConfig configures the meeting-point coordinator.
type RendezvousConfig struct {
	ResendDelay time.Duration `yaml:"resend_delay" json:"resend_delay"`
}

// LinkConfig configures the linked-device proxy.
type LinkConfig struct {
	SessionTTL time.Duration `yaml:"session_ttl" json:"session_ttl"`
}

// TestingConfig carries the is_e2e_test auto-accept escape hatch used
// by automated pairing scenarios (§4.6 responder admission order).
type TestingConfig struct {
	IsE2ETest bool `yaml:"is_e2e_test" json:"is_e2e_test"`
}

// LoggingConfig represents logging configuration.
type LoggingConfig struct {
	Level    string `yaml:"level" json:"level"`
	Format   string `yaml:"format" json:"format"`
	Output   string `yaml:"output" json:"output"`
	FilePath string `yaml:"file_path" json:"file_path"`
}

// MetricsConfig represents metrics configuration.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Port    int    `yaml:"port" json:"port"`
	Path    string `yaml:"path" json:"path"`
}

// HealthConfig represents health check configuration.
type HealthConfig struct {
	Enabled bool     `yaml:"enabled" json:"enabled"`
	Port    int      `yaml:"port" json:"port"`
	Path    string   `yaml:"path" json:"path"`
	Checks  []string `yaml:"checks" json:"checks"`
}

// LoadFromFile loads configuration from a YAML (or JSON) file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file (tried YAML and JSON): %w", err)
		}
	}

	setDefaults(cfg)

	return cfg, nil
}

// SaveToFile saves configuration to a file, choosing the format by extension.
func SaveToFile(cfg *Config, path string) error {
	var data []byte
	var err error

	if len(path) > 5 && path[len(path)-5:] == ".json" {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setDefaults fills in zero-value fields with the node's defaults.
func setDefaults(cfg *Config) {
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}

	if cfg.Signaling == nil {
		cfg.Signaling = &SignalingConfig{}
	}
	if cfg.Signaling.ServerURL == "" {
		cfg.Signaling.ServerURL = "ws://localhost:8080/ws"
	}
	if cfg.Signaling.HeartbeatInterval == 0 {
		cfg.Signaling.HeartbeatInterval = 30 * time.Second
	}
	if cfg.Signaling.DialTimeout == 0 {
		cfg.Signaling.DialTimeout = 10 * time.Second
	}

	if cfg.Rendezvous == nil {
		cfg.Rendezvous = &RendezvousConfig{}
	}
	if cfg.Rendezvous.ResendDelay == 0 {
		cfg.Rendezvous.ResendDelay = 5 * time.Second
	}

	if cfg.Link == nil {
		cfg.Link = &LinkConfig{}
	}
	if cfg.Link.SessionTTL == 0 {
		cfg.Link.SessionTTL = 5 * time.Minute
	}

	if cfg.Storage == nil {
		cfg.Storage = &StorageConfig{}
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "memory"
	}
	if cfg.Storage.Port == 0 {
		cfg.Storage.Port = 5432
	}
	if cfg.Storage.SSLMode == "" {
		cfg.Storage.SSLMode = "disable"
	}

	if cfg.Testing == nil {
		cfg.Testing = &TestingConfig{}
	}

	if cfg.Logging == nil {
		cfg.Logging = &LoggingConfig{}
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	if cfg.Metrics == nil {
		cfg.Metrics = &MetricsConfig{}
	}
	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 9090
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	if cfg.Health == nil {
		cfg.Health = &HealthConfig{}
	}
	if cfg.Health.Port == 0 {
		cfg.Health.Port = 8090
	}
	if cfg.Health.Path == "" {
		cfg.Health.Path = "/health"
	}
}
