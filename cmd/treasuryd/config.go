// config.go - Configuration management for the treasury daemon.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config represents the daemon configuration.
type Config struct {
	// Protocol settings
	TreeDepth int `json:"tree_depth"`
	MaxBatch  int `json:"max_batch"`

	// File paths
	EventLogPath     string `json:"event_log_path"`
	LedgerSnapshot   string `json:"ledger_snapshot"`
	VerifyingKeyPath string `json:"verifying_key_path"`

	// Server
	ListenAddr string `json:"listen_addr"`

	// Logging
	LogLevel string `json:"log_level"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		TreeDepth:      32,
		MaxBatch:       5,
		EventLogPath:   "treasury-events",
		LedgerSnapshot: "ledger.json",
		ListenAddr:     ":8545",
		LogLevel:       "info",
	}
}

// LoadConfig loads configuration from file, creating and saving the default
// configuration on first run.
func LoadConfig(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); err == nil {
		file, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer file.Close()

		var config Config
		if err := json.NewDecoder(file).Decode(&config); err != nil {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}
		return &config, nil
	}

	config := DefaultConfig()
	if err := SaveConfig(config, configPath); err != nil {
		return nil, fmt.Errorf("failed to save default config: %w", err)
	}
	return config, nil
}

// SaveConfig writes the configuration to file.
func SaveConfig(config *Config, configPath string) error {
	if dir := filepath.Dir(configPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	file, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	return enc.Encode(config)
}
