// config.go - Configuration management for the floating-point protocol daemon
package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"fpp/internal/protocol"
)

// Config represents the daemon configuration
type Config struct {
	// Network
	ListenAddr string `json:"listen_addr"`

	// Protocol settings
	Authority        string `json:"authority"`
	Treasury         string `json:"treasury"`
	AssetID          string `json:"asset_id"`
	DepositFeeBps    uint16 `json:"deposit_fee_bps"`
	WithdrawalFeeBps uint16 `json:"withdrawal_fee_bps"`

	// File paths
	DataDir string `json:"data_dir"`
	KeyDir  string `json:"key_dir"`

	// Logging
	LogLevel string `json:"log_level"`
	LogFile  string `json:"log_file"`

	// Abuse guard
	GuardMaxRequests     int   `json:"guard_max_requests"`
	GuardRefillSeconds   int64 `json:"guard_refill_seconds"`
	GuardFlashLoanWindow int64 `json:"guard_flash_loan_window"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:           ":8080",
		Authority:            hex.EncodeToString(make([]byte, 32)),
		Treasury:             hex.EncodeToString(make([]byte, 32)),
		AssetID:              hex.EncodeToString(make([]byte, 32)),
		DepositFeeBps:        100,
		WithdrawalFeeBps:     50,
		DataDir:              "data",
		KeyDir:               "keys",
		LogLevel:             "info",
		LogFile:              "fppd.log",
		GuardMaxRequests:     5,
		GuardRefillSeconds:   60,
		GuardFlashLoanWindow: 600,
	}
}

// LoadConfig loads configuration from file or creates default
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

// SaveConfig saves configuration to file
func SaveConfig(config *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr must be set")
	}
	if c.DepositFeeBps > protocol.MaxFeeRateBps {
		return fmt.Errorf("deposit_fee_bps above %d", protocol.MaxFeeRateBps)
	}
	if c.WithdrawalFeeBps > protocol.MaxFeeRateBps {
		return fmt.Errorf("withdrawal_fee_bps above %d", protocol.MaxFeeRateBps)
	}
	if _, err := parseAddress(c.Authority); err != nil {
		return fmt.Errorf("authority: %w", err)
	}
	if _, err := parseAddress(c.Treasury); err != nil {
		return fmt.Errorf("treasury: %w", err)
	}
	if _, err := parseAddress(c.AssetID); err != nil {
		return fmt.Errorf("asset_id: %w", err)
	}
	if c.GuardMaxRequests <= 0 {
		return fmt.Errorf("guard_max_requests must be positive")
	}
	if c.GuardRefillSeconds <= 0 {
		return fmt.Errorf("guard_refill_seconds must be positive")
	}
	return nil
}

// parseAddress decodes a 32-byte hex identity
func parseAddress(s string) (protocol.Address, error) {
	var a protocol.Address
	b, err := hex.DecodeString(s)
	if err != nil {
		return a, fmt.Errorf("invalid hex: %w", err)
	}
	if len(b) != len(a) {
		return a, fmt.Errorf("expected %d bytes, got %d", len(a), len(b))
	}
	copy(a[:], b)
	return a, nil
}

// parseHash decodes a 32-byte hex record id
func parseHash(s string) (protocol.Hash, error) {
	var h protocol.Hash
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("invalid hex: %w", err)
	}
	if len(b) != len(h) {
		return h, fmt.Errorf("expected %d bytes, got %d", len(h), len(b))
	}
	copy(h[:], b)
	return h, nil
}
