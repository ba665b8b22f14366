// Package config holds the environment-based configuration.
package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all environment-based configuration for indigo-sync.
type Config struct {
	// Cloud backend. RemoteURL is the project base URL; AnonKey the
	// public API key; AccessToken the user's bearer token. AccessToken
	// may be empty when a previously used token is cached in the local
	// state store.
	RemoteURL   string `env:"INDIGO_REMOTE_URL"`
	AnonKey     string `env:"INDIGO_ANON_KEY"`
	AccessToken string `env:"INDIGO_ACCESS_TOKEN"`

	// Passphrase encrypts all synced data. It never leaves this
	// machine: the backend only ever sees ciphertext.
	Passphrase string `env:"INDIGO_PASSPHRASE"`

	// DataDir holds the local app data files. Defaults to
	// ~/.indigo-sync/data when empty.
	DataDir string `env:"INDIGO_DATA_DIR"`

	// DeviceName this client identifies as in logs. Defaults to the
	// system hostname.
	DeviceName string `env:"DEVICE_NAME"`

	// Environment controls log format.
	Environment string `env:"ENVIRONMENT" envDefault:"development"`

	// Auto-sync daemon settings.
	AutoSync         bool          `env:"AUTO_SYNC" envDefault:"true"`
	AutoSyncInterval time.Duration `env:"AUTO_SYNC_INTERVAL" envDefault:"5m"`

	// SyncTimeout bounds the handling of each data category during a
	// sync run.
	SyncTimeout time.Duration `env:"SYNC_TIMEOUT" envDefault:"60s"`

	// Realtime toggles the websocket subscription that nudges the
	// daemon when another device pushes.
	Realtime bool `env:"INDIGO_REALTIME" envDefault:"true"`

	// MCP server settings.
	EnableMCP     bool   `env:"ENABLE_MCP" envDefault:"false"`
	MCPListenAddr string `env:"MCP_LISTEN_ADDR" envDefault:":8090"`
	MCPAPIKeys    string `env:"MCP_API_KEYS"`
}

// warnInsecureEnvFile checks whether the .env file (if present) has
// overly permissive permissions. On Unix systems, group or world
// readable files risk exposing credentials to other users.
func warnInsecureEnvFile() {
	if runtime.GOOS == "windows" {
		return
	}

	info, err := os.Stat(".env")
	if err != nil {
		return // file does not exist, nothing to check
	}

	mode := info.Mode().Perm()
	if mode&0o077 != 0 {
		log.Printf("WARNING: .env file has insecure permissions %04o; recommended 0600", mode)
	}
}

// Load reads configuration from environment variables. It first
// attempts to load a .env file if present, then parses env vars.
func Load() (*Config, error) {
	_ = godotenv.Load()

	warnInsecureEnvFile()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.DeviceName == "" {
		hostname, err := os.Hostname()
		if err != nil || hostname == "" {
			hostname = "indigo-sync"
		}

		cfg.DeviceName = hostname
	}

	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("determining home directory: %w", err)
		}

		cfg.DataDir = filepath.Join(home, ".indigo-sync", "data")
	}

	// Downstream path handling relies on an absolute data dir.
	absDir, err := filepath.Abs(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("resolving data dir to absolute path: %w", err)
	}

	cfg.DataDir = absDir

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.RemoteURL == "" {
		return fmt.Errorf("INDIGO_REMOTE_URL is required")
	}

	if !strings.HasPrefix(c.RemoteURL, "http://") && !strings.HasPrefix(c.RemoteURL, "https://") {
		return fmt.Errorf("INDIGO_REMOTE_URL must be an http(s) URL")
	}

	if c.AnonKey == "" {
		return fmt.Errorf("INDIGO_ANON_KEY is required")
	}

	if c.Passphrase == "" {
		return fmt.Errorf("INDIGO_PASSPHRASE is required")
	}

	if c.SyncTimeout <= 0 {
		return fmt.Errorf("SYNC_TIMEOUT must be positive")
	}

	if c.AutoSync && c.AutoSyncInterval <= 0 {
		return fmt.Errorf("AUTO_SYNC_INTERVAL must be positive when AUTO_SYNC is enabled")
	}

	if c.EnableMCP && c.MCPAPIKeys == "" {
		return fmt.Errorf("MCP_API_KEYS is required when MCP is enabled")
	}

	return nil
}

// ParseMCPAPIKeys splits the comma-separated MCP_API_KEYS value,
// dropping empty entries.
func (c *Config) ParseMCPAPIKeys() []string {
	var keys []string

	for _, key := range strings.Split(c.MCPAPIKeys, ",") {
		key = strings.TrimSpace(key)
		if key != "" {
			keys = append(keys, key)
		}
	}

	return keys
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
