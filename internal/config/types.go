// Package config loads the poster configuration from a YAML or JSON file,
// with environment overrides for the secret-ish fields.
package config

import (
	"errors"
	"fmt"
	"time"

	"avtopost/internal/poster"
)

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Catalog  CatalogConfig  `json:"catalog"`
	Ledger   LedgerConfig   `json:"ledger"`

	// Policy controls the scheduling window and throttles.
	// All durations are Go duration strings (e.g. "10m", "600ms").
	Policy PolicyConfig `json:"policy"`

	Notify  NotifyConfig  `json:"notify,omitempty"`
	Logging LoggingConfig `json:"logging,omitempty"`

	// Timezone interprets catalog timestamps (IANA name, e.g.
	// "Europe/Moscow"). Empty means the process-local zone.
	Timezone string `json:"timezone,omitempty"`
}

type TelegramConfig struct {
	Token     string `json:"token"`
	ChannelID int64  `json:"channel_id"`
	// OwnerID receives notifications. 0 disables them.
	OwnerID int64 `json:"owner_id,omitempty"`
}

type CatalogConfig struct {
	Path string `json:"path"`
}

// LedgerConfig controls the publication history store.
//
// Example:
//
//	"ledger": { "driver": "file", "path": "./sent.json" }
type LedgerConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// PolicyConfig mirrors poster.Policy with file-friendly field types.
// Omitted fields fall back to the defaults in poster.Default().
type PolicyConfig struct {
	Lookback              string `json:"lookback,omitempty"`
	Lookahead             string `json:"lookahead,omitempty"`
	MaxPerRun             *int   `json:"max_per_run,omitempty"`
	AntiDuplicateInterval string `json:"anti_duplicate_interval,omitempty"`
	PublishPause          string `json:"publish_pause,omitempty"`
	ReportHour            *int   `json:"report_hour,omitempty"`
}

type NotifyConfig struct {
	// Mode: "post_only" (default), "all" or "silent".
	Mode string `json:"mode,omitempty"`
}

type LoggingConfig struct {
	Level string `json:"level,omitempty"`
}

func (c *Config) Validate() error {
	if c.Telegram.Token == "" {
		return errors.New("telegram.token is required (or AVTOPOST_BOT_TOKEN)")
	}
	if c.Telegram.ChannelID == 0 {
		return errors.New("telegram.channel_id is required (or AVTOPOST_CHANNEL_ID)")
	}
	if c.Catalog.Path == "" {
		return errors.New("catalog.path is required")
	}
	if c.Ledger.Path == "" {
		return errors.New("ledger.path is required")
	}
	if h := c.Policy.ReportHour; h != nil && (*h < 0 || *h > 23) {
		return fmt.Errorf("policy.report_hour: must be 0..23, got %d", *h)
	}
	if n := c.Policy.MaxPerRun; n != nil && *n < 0 {
		return errors.New("policy.max_per_run: must be >= 0")
	}
	return nil
}

// PosterPolicy resolves the policy section into poster.Policy.
func (c *Config) PosterPolicy() (poster.Policy, error) {
	pol := poster.Default()

	var err error
	if pol.Lookback, err = ParseDurationOrDefault("policy.lookback", c.Policy.Lookback, pol.Lookback); err != nil {
		return pol, err
	}
	if pol.Lookahead, err = ParseDurationOrDefault("policy.lookahead", c.Policy.Lookahead, pol.Lookahead); err != nil {
		return pol, err
	}
	if pol.AntiDuplicateInterval, err = ParseDurationOrDefault("policy.anti_duplicate_interval", c.Policy.AntiDuplicateInterval, pol.AntiDuplicateInterval); err != nil {
		return pol, err
	}
	if pol.PublishPause, err = ParseDurationOrDefault("policy.publish_pause", c.Policy.PublishPause, pol.PublishPause); err != nil {
		return pol, err
	}
	if c.Policy.MaxPerRun != nil {
		pol.MaxPerRun = *c.Policy.MaxPerRun
	}
	if c.Policy.ReportHour != nil {
		pol.ReportHour = *c.Policy.ReportHour
	}

	if c.Timezone != "" {
		loc, err := time.LoadLocation(c.Timezone)
		if err != nil {
			return pol, fmt.Errorf("timezone: %w", err)
		}
		pol.Location = loc
	}
	return pol, nil
}
