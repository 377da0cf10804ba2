// Package config handles configuration for the safebox binary, including
// defaults, JSON overlay, and command-line flags.
package config

import (
	"fmt"
	"time"

	"github.com/dmitrijs2005/safebox/internal/cryptox"
	"github.com/dmitrijs2005/safebox/internal/safebox/janitor"
)

// Config holds runtime settings.
//
// Fields:
//   - DatabasePath: SQLite file, created on first open.
//   - Argon2*: parameters for newly written hashes. Existing hashes carry
//     their own parameters and keep verifying after a change.
//   - TokenMaxAge: age after which the sweep removes a session token.
//   - SweepSchedule: cron spec for the sweep, "" disables it.
//   - RequireCurrentPassword: plain update/delete are refused.
//   - RehashOnVerify: upgrade stale hashes after a successful verify.
//   - LogLevel: debug, info, warn or error.
type Config struct {
	DatabasePath           string
	Argon2Memory           uint32
	Argon2Time             uint32
	Argon2Threads          uint8
	Argon2KeyLen           uint32
	Argon2SaltLen          uint32
	TokenMaxAge            time.Duration
	SweepSchedule          string
	RequireCurrentPassword bool
	RehashOnVerify         bool
	LogLevel               string
}

// LoadDefaults populates Config with defaults suitable for a single host.
func (c *Config) LoadDefaults() {
	p := cryptox.DefaultParams()

	c.DatabasePath = "safebox.db"
	c.Argon2Memory = p.Memory
	c.Argon2Time = p.Time
	c.Argon2Threads = p.Threads
	c.Argon2KeyLen = p.KeyLen
	c.Argon2SaltLen = p.SaltLen
	c.TokenMaxAge = 1 * time.Hour
	c.SweepSchedule = "@every 5m"
	c.RequireCurrentPassword = false
	c.RehashOnVerify = false
	c.LogLevel = "info"
}

// HasherParams returns the Argon2 settings as cryptox parameters.
func (c *Config) HasherParams() cryptox.Params {
	return cryptox.Params{
		Memory:  c.Argon2Memory,
		Time:    c.Argon2Time,
		Threads: c.Argon2Threads,
		KeyLen:  c.Argon2KeyLen,
		SaltLen: c.Argon2SaltLen,
	}
}

// Validate checks the values that cannot be corrected later: hashing
// parameters, the token age and the sweep schedule.
func (c *Config) Validate() error {
	if err := c.HasherParams().Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.TokenMaxAge <= 0 {
		return fmt.Errorf("invalid config: token max age must be positive, got %s", c.TokenMaxAge)
	}
	if c.SweepSchedule != "" {
		if err := janitor.ParseSchedule(c.SweepSchedule); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
	}
	return nil
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file and finally from command-line flags.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseJson(cfg); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
