package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/kelseyhightower/envconfig"
)

// envOverrides are the fields operators usually inject through the
// environment (CI secrets) rather than the config file.
type envOverrides struct {
	BotToken    string `envconfig:"BOT_TOKEN"`
	ChannelID   int64  `envconfig:"CHANNEL_ID"`
	OwnerID     int64  `envconfig:"OWNER_ID"`
	CatalogPath string `envconfig:"CATALOG_PATH"`
	LedgerPath  string `envconfig:"LEDGER_PATH"`
}

// Load reads and validates the config file at path, then applies
// AVTOPOST_* environment overrides.
func Load(path string) (*Config, error) {
	cfg, err := Parse(path)
	if err != nil {
		return nil, err
	}

	var env envOverrides
	if err := envconfig.Process("avtopost", &env); err != nil {
		return nil, fmt.Errorf("env overrides: %w", err)
	}
	if env.BotToken != "" {
		cfg.Telegram.Token = env.BotToken
	}
	if env.ChannelID != 0 {
		cfg.Telegram.ChannelID = env.ChannelID
	}
	if env.OwnerID != 0 {
		cfg.Telegram.OwnerID = env.OwnerID
	}
	if env.CatalogPath != "" {
		cfg.Catalog.Path = env.CatalogPath
	}
	if env.LedgerPath != "" {
		cfg.Ledger.Path = env.LedgerPath
	}

	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes the file strictly: unknown keys and trailing data are errors,
// for both YAML and JSON.
func Parse(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	jb, _, err := coerceToJSONBytes(path, b)
	if err != nil {
		return nil, err
	}

	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}
	// reject trailing tokens (e.g. concatenated JSON)
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return nil, fmt.Errorf("invalid config: trailing data")
		}
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Catalog.Path == "" {
		cfg.Catalog.Path = "./avtopost.csv"
	}
	if cfg.Ledger.Driver == "" {
		cfg.Ledger.Driver = "file"
	}
	if cfg.Ledger.Path == "" {
		cfg.Ledger.Path = "./sent.json"
	}
	if cfg.Notify.Mode == "" {
		cfg.Notify.Mode = "post_only"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}
