package config

import (
	"flag"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/dmitrijs2005/safebox/internal/flagx"
)

var (
	settingFlags = []string{"-d", "-m", "-t", "-p", "-k", "-s", "-x", "-w", "-l"}
	boolFlags    = []string{"-r", "-u"}
)

// ValueFlags are the flags of this package that take an argument, plus the
// config file flags. Callers use it to find positional arguments.
var ValueFlags = append([]string{"-c", "-config"}, settingFlags...)

// parseFlags populates Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-d string    database file
//	-m uint      argon2 memory, KiB
//	-t uint      argon2 passes
//	-p uint      argon2 threads (1-255)
//	-k uint      argon2 key length
//	-s uint      salt length
//	-x duration  token max age (e.g. "30m")
//	-w string    sweep cron schedule
//	-r           require the current password for update/delete
//	-u           rehash stale hashes on verify
//	-l string    log level
func parseFlags(config *Config) error {
	args := flagx.FilterArgs(os.Args[1:], settingFlags, boolFlags...)

	fs := flag.NewFlagSet("main", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&config.DatabasePath, "d", config.DatabasePath, "database file")

	memory := fs.Uint("m", uint(config.Argon2Memory), "argon2 memory (KiB)")
	passes := fs.Uint("t", uint(config.Argon2Time), "argon2 time")
	threads := fs.Uint("p", uint(config.Argon2Threads), "argon2 threads")
	keyLen := fs.Uint("k", uint(config.Argon2KeyLen), "argon2 key length")
	saltLen := fs.Uint("s", uint(config.Argon2SaltLen), "salt length")

	fs.DurationVar(&config.TokenMaxAge, "x", config.TokenMaxAge, "token max age")
	fs.StringVar(&config.SweepSchedule, "w", config.SweepSchedule, "sweep schedule")
	fs.BoolVar(&config.RequireCurrentPassword, "r", config.RequireCurrentPassword, "require current password")
	fs.BoolVar(&config.RehashOnVerify, "u", config.RehashOnVerify, "rehash on verify")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("error parsing flags: %w", err)
	}

	if *threads > math.MaxUint8 {
		return fmt.Errorf("argon2 threads must be <= %d, got %d", math.MaxUint8, *threads)
	}
	for _, v := range []uint{*memory, *passes, *keyLen, *saltLen} {
		if v > math.MaxUint32 {
			return fmt.Errorf("argon2 parameter out of range: %d", v)
		}
	}

	config.Argon2Memory = uint32(*memory)
	config.Argon2Time = uint32(*passes)
	config.Argon2Threads = uint8(*threads)
	config.Argon2KeyLen = uint32(*keyLen)
	config.Argon2SaltLen = uint32(*saltLen)
	return nil
}
