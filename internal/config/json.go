package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/safebox/internal/flagx"
	"github.com/dmitrijs2005/safebox/internal/timex"
)

// JsonConfig is the on-disk form of Config. Durations use timex.Duration so
// both "90s" and integer nanoseconds are accepted.
type JsonConfig struct {
	DatabasePath           string         `json:"database_path"`
	Argon2Memory           uint32         `json:"argon2_memory"`
	Argon2Time             uint32         `json:"argon2_time"`
	Argon2Threads          uint8          `json:"argon2_threads"`
	Argon2KeyLen           uint32         `json:"argon2_key_len"`
	Argon2SaltLen          uint32         `json:"argon2_salt_len"`
	TokenMaxAge            timex.Duration `json:"token_max_age"`
	SweepSchedule          string         `json:"sweep_schedule"`
	RequireCurrentPassword bool           `json:"require_current_password"`
	RehashOnVerify         bool           `json:"rehash_on_verify"`
	LogLevel               string         `json:"log_level"`
}

func toJson(config *Config) *JsonConfig {
	return &JsonConfig{
		DatabasePath:           config.DatabasePath,
		Argon2Memory:           config.Argon2Memory,
		Argon2Time:             config.Argon2Time,
		Argon2Threads:          config.Argon2Threads,
		Argon2KeyLen:           config.Argon2KeyLen,
		Argon2SaltLen:          config.Argon2SaltLen,
		TokenMaxAge:            timex.Duration{Duration: config.TokenMaxAge},
		SweepSchedule:          config.SweepSchedule,
		RequireCurrentPassword: config.RequireCurrentPassword,
		RehashOnVerify:         config.RehashOnVerify,
		LogLevel:               config.LogLevel,
	}
}

// MarshalJSON writes Config in the same shape parseJson reads.
func (c *Config) MarshalJSON() ([]byte, error) {
	return json.Marshal(toJson(c))
}

// parseJson overlays the file named by -c / -config onto config. Keys missing
// from the file keep their current values. Without the flag nothing is read.
func parseJson(config *Config) error {
	jsonConfigFile := flagx.ConfigFileFlag()

	// nothing to load
	if jsonConfigFile == "" {
		return nil
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	c := toJson(config)

	if err := json.Unmarshal(file, c); err != nil {
		return fmt.Errorf("error parsing config file %s: %w", jsonConfigFile, err)
	}

	config.DatabasePath = c.DatabasePath
	config.Argon2Memory = c.Argon2Memory
	config.Argon2Time = c.Argon2Time
	config.Argon2Threads = c.Argon2Threads
	config.Argon2KeyLen = c.Argon2KeyLen
	config.Argon2SaltLen = c.Argon2SaltLen
	config.TokenMaxAge = c.TokenMaxAge.Duration
	config.SweepSchedule = c.SweepSchedule
	config.RequireCurrentPassword = c.RequireCurrentPassword
	config.RehashOnVerify = c.RehashOnVerify
	config.LogLevel = c.LogLevel
	return nil
}
