// Package config centralizes runtime configuration for the pubreg node. It
// loads a JSON configuration file, fills unset fields with defaults and then
// applies PUBREG_* environment overrides. Development builds run on defaults
// when no file is present.
package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix prefixes every environment override, e.g. PUBREG_PORT.
const EnvPrefix = "PUBREG_"

// Config holds configurable options for the pubreg node.
type Config struct {
	KeyFile        string  `json:"key_file" env:"KEY_FILE"`
	DBFile         string  `json:"db_file" env:"DB_FILE"`
	MaxBackups     int     `json:"max_backups" env:"MAX_BACKUPS"`
	BackupMinutes  int     `json:"backup_minutes" env:"BACKUP_MINUTES"`
	Port           int     `json:"port" env:"PORT"`
	ABCIAddress    string  `json:"abci_address" env:"ABCI_ADDRESS"`
	RPCAddress     string  `json:"rpc_address" env:"RPC_ADDRESS"`
	TendermintHome string  `json:"tendermint_home" env:"TENDERMINT_HOME"`
	RunTendermint  bool    `json:"run_tendermint" env:"RUN_TENDERMINT"`
	LogBufferSize  int     `json:"log_buffer_size" env:"LOG_BUFFER_SIZE"`
	EventHistory   int     `json:"event_history" env:"EVENT_HISTORY"`
	RateLimit      float64 `json:"rate_limit" env:"RATE_LIMIT"`
	RateBurst      int     `json:"rate_burst" env:"RATE_BURST"`
	TrustProxy     bool    `json:"trust_proxy" env:"TRUST_PROXY"`
	DocsDir        string  `json:"docs_dir" env:"DOCS_DIR"`
}

var cfg *Config

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		KeyFile:        "pubreg_key.pem",
		DBFile:         "pubreg.db",
		MaxBackups:     20,
		BackupMinutes:  60,
		Port:           8080,
		ABCIAddress:    "unix://pubreg.sock",
		RPCAddress:     "http://localhost:26657",
		TendermintHome: "",
		RunTendermint:  false,
		LogBufferSize:  200,
		EventHistory:   50,
		RateLimit:      20,
		RateBurst:      40,
		DocsDir:        "docs",
	}
}

// LoadConfig reads a JSON file at path. A missing or unparsable file yields
// defaults so the node can run in development with minimal friction.
// Environment overrides are applied last; a malformed override is an error.
func LoadConfig(path string) (*Config, error) {
	def := Defaults()
	c := fileConfig(path, def)

	// merge defaults for any zero-value fields
	if c.KeyFile == "" {
		c.KeyFile = def.KeyFile
	}
	if c.DBFile == "" {
		c.DBFile = def.DBFile
	}
	if c.MaxBackups == 0 {
		c.MaxBackups = def.MaxBackups
	}
	if c.BackupMinutes == 0 {
		c.BackupMinutes = def.BackupMinutes
	}
	if c.Port == 0 {
		c.Port = def.Port
	}
	if c.ABCIAddress == "" {
		c.ABCIAddress = def.ABCIAddress
	}
	if c.RPCAddress == "" {
		c.RPCAddress = def.RPCAddress
	}
	if c.LogBufferSize == 0 {
		c.LogBufferSize = def.LogBufferSize
	}
	if c.EventHistory == 0 {
		c.EventHistory = def.EventHistory
	}
	if c.RateLimit == 0 {
		c.RateLimit = def.RateLimit
	}
	if c.RateBurst == 0 {
		c.RateBurst = def.RateBurst
	}
	if c.DocsDir == "" {
		c.DocsDir = def.DocsDir
	}

	if err := env.ParseWithOptions(c, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("apply environment overrides: %w", err)
	}

	cfg = c
	return cfg, nil
}

func fileConfig(path string, def *Config) *Config {
	if path == "" {
		return def
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return def
	}
	var c Config
	if err := json.Unmarshal(b, &c); err != nil {
		log.Printf("WARN: Ignoring unparsable config %s: %v", path, err)
		return def
	}
	return &c
}

// Get returns the loaded configuration. If LoadConfig hasn't been called
// yet, it returns defaults.
func Get() *Config {
	if cfg == nil {
		if _, err := LoadConfig(""); err != nil {
			cfg = Defaults()
		}
	}
	return cfg
}
