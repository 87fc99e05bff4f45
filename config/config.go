package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete simulation configuration
type Config struct {
	Run     RunConfig     `json:"run" yaml:"run"`
	Tokens  []TokenConfig `json:"tokens" yaml:"tokens"`
	Option  *OptionConfig `json:"option,omitempty" yaml:"option,omitempty"`
	Vault   *VaultConfig  `json:"vault,omitempty" yaml:"vault,omitempty"`
	Journal JournalConfig `json:"journal" yaml:"journal"`
}

// RunConfig contains the run window and ledger parameters
type RunConfig struct {
	Start                string `json:"start" yaml:"start"` // YYYY-MM-DD
	End                  string `json:"end" yaml:"end"`     // YYYY-MM-DD, inclusive
	DataPath             string `json:"data_path" yaml:"data_path"`
	AllowNegativeBalance bool   `json:"allow_negative_balance" yaml:"allow_negative_balance"`
}

// TokenConfig declares one ledger token and its starting balance
type TokenConfig struct {
	Name     string  `json:"name" yaml:"name"`
	Decimals int32   `json:"decimals" yaml:"decimals"`
	Balance  float64 `json:"balance" yaml:"balance"`
}

// OptionConfig configures an option venue
type OptionConfig struct {
	Name   string `json:"name" yaml:"name"`
	Token  string `json:"token" yaml:"token"`   // settlement token, must be declared in tokens
	Preset string `json:"preset" yaml:"preset"` // "eth" or "btc" fee schedule
}

// VaultConfig configures a collateralized issuance venue
type VaultConfig struct {
	Name  string `json:"name" yaml:"name"`
	Base  string `json:"base" yaml:"base"`
	Synth string `json:"synth" yaml:"synth"`
}

// JournalConfig contains journaling parameters
type JournalConfig struct {
	Type        string `json:"type" yaml:"type"` // "csv" or "sqlite"
	ActionsFile string `json:"actions_file,omitempty" yaml:"actions_file,omitempty"`
	StatusFile  string `json:"status_file,omitempty" yaml:"status_file,omitempty"`
	DBPath      string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
}

// Window parses the run's start and end days.
func (r RunConfig) Window() (start, end time.Time, err error) {
	start, err = time.Parse(time.DateOnly, r.Start)
	if err != nil {
		return start, end, fmt.Errorf("bad run.start %q: %w", r.Start, err)
	}
	end, err = time.Parse(time.DateOnly, r.End)
	if err != nil {
		return start, end, fmt.Errorf("bad run.end %q: %w", r.End, err)
	}
	return start, end, nil
}

// LoadFromFile loads configuration from a file (JSON or YAML based on extension)
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}

	// Try YAML first, fall back to JSON
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		err = json.Unmarshal(data, cfg)
		if err != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SaveToFile saves configuration to a file (JSON or YAML based on extension)
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	// Determine format by extension
	if (len(path) > 5 && path[len(path)-5:] == ".yaml") || (len(path) > 4 && path[len(path)-4:] == ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}

	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	start, end, err := c.Run.Window()
	if err != nil {
		return err
	}
	if end.Before(start) {
		return fmt.Errorf("run.end %s is before run.start %s", c.Run.End, c.Run.Start)
	}
	if c.Run.DataPath == "" {
		return fmt.Errorf("run.data_path is required")
	}
	if len(c.Tokens) == 0 {
		return fmt.Errorf("at least one token is required")
	}
	declared := make(map[string]bool, len(c.Tokens))
	for _, t := range c.Tokens {
		if t.Name == "" {
			return fmt.Errorf("token name is required")
		}
		if declared[t.Name] {
			return fmt.Errorf("duplicate token %s", t.Name)
		}
		declared[t.Name] = true
	}
	if c.Option == nil && c.Vault == nil {
		return fmt.Errorf("at least one market (option or vault) is required")
	}
	if c.Option != nil {
		if c.Option.Name == "" {
			return fmt.Errorf("option.name is required")
		}
		if !declared[c.Option.Token] {
			return fmt.Errorf("option.token %q is not a declared token", c.Option.Token)
		}
		if c.Option.Preset != "eth" && c.Option.Preset != "btc" {
			return fmt.Errorf("option.preset must be 'eth' or 'btc'")
		}
	}
	if c.Vault != nil {
		if c.Vault.Name == "" {
			return fmt.Errorf("vault.name is required")
		}
		if !declared[c.Vault.Base] {
			return fmt.Errorf("vault.base %q is not a declared token", c.Vault.Base)
		}
		if !declared[c.Vault.Synth] {
			return fmt.Errorf("vault.synth %q is not a declared token", c.Vault.Synth)
		}
	}
	if c.Journal.Type != "csv" && c.Journal.Type != "sqlite" {
		return fmt.Errorf("journal.type must be 'csv' or 'sqlite'")
	}
	if c.Journal.Type == "csv" && (c.Journal.ActionsFile == "" || c.Journal.StatusFile == "") {
		return fmt.Errorf("journal actions_file and status_file required for CSV type")
	}
	if c.Journal.Type == "sqlite" && c.Journal.DBPath == "" {
		return fmt.Errorf("journal db_path required for SQLite type")
	}
	return nil
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Run: RunConfig{
			Start:    "2023-02-01",
			End:      "2023-02-01",
			DataPath: "./data",
		},
		Tokens: []TokenConfig{
			{Name: "eth", Decimals: 18, Balance: 10},
		},
		Option: &OptionConfig{
			Name:   "deribit",
			Token:  "eth",
			Preset: "eth",
		},
		Journal: JournalConfig{
			Type:        "csv",
			ActionsFile: "./actions.csv",
			StatusFile:  "./status.csv",
		},
	}
}
