// Package config resolves runtime settings from defaults, an optional .env
// file and VERSUS_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every tunable of the overlay service.
type Config struct {
	SpreadsheetID   string
	Range           string
	SeedsRange      string
	CredentialsPath string
	TokenPath       string
	ServiceAccount  bool

	PollInterval time.Duration
	Addr         string
	StatePath    string
	DBPath       string
	LogLevel     string
	LegacyStats  bool
}

// Default returns the settings used when nothing else is configured.
func Default() Config {
	return Config{
		Range:           "Data!A1:R",
		CredentialsPath: "credentials.json",
		TokenPath:       "token.json",
		PollInterval:    20 * time.Second,
		Addr:            ":9090",
		StatePath:       "OnevsOneState.json",
		DBPath:          "versus.db",
		LogLevel:        "info",
	}
}

// envPaths is the .env search order, first hit wins.
var envPaths = []string{".env", "../.env"}

// LoadEnvFile loads the first .env file found, or path when non-empty.
// It returns the file loaded, or "" when none was found.
func LoadEnvFile(path string) (string, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			return "", fmt.Errorf("load env file %s: %w", path, err)
		}
		return path, nil
	}
	for _, p := range envPaths {
		if err := godotenv.Load(p); err == nil {
			return p, nil
		}
	}
	return "", nil
}

// FromEnv overlays VERSUS_* environment variables onto base.
func FromEnv(base Config) (Config, error) {
	c := base
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	str("VERSUS_SPREADSHEET_ID", &c.SpreadsheetID)
	str("VERSUS_RANGE", &c.Range)
	str("VERSUS_SEEDS_RANGE", &c.SeedsRange)
	str("VERSUS_CREDENTIALS", &c.CredentialsPath)
	str("VERSUS_TOKEN", &c.TokenPath)
	str("VERSUS_ADDR", &c.Addr)
	str("VERSUS_STATE", &c.StatePath)
	str("VERSUS_DB", &c.DBPath)
	str("VERSUS_LOG_LEVEL", &c.LogLevel)

	if v, ok := os.LookupEnv("VERSUS_POLL_INTERVAL"); ok {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return c, fmt.Errorf("VERSUS_POLL_INTERVAL: %w", err)
		}
		c.PollInterval = d
	}
	for key, dst := range map[string]*bool{
		"VERSUS_SERVICE_ACCOUNT": &c.ServiceAccount,
		"VERSUS_LEGACY_STATS":    &c.LegacyStats,
	} {
		v, ok := os.LookupEnv(key)
		if !ok {
			continue
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return c, fmt.Errorf("%s: %w", key, err)
		}
		*dst = b
	}
	return c, nil
}

var validLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate checks the settings needed by the long-running service.
func (c Config) Validate() error {
	var errs []error
	if c.PollInterval < time.Second {
		errs = append(errs, fmt.Errorf("poll interval %s is below 1s", c.PollInterval))
	}
	if c.Range == "" {
		errs = append(errs, errors.New("sheet range is empty"))
	}
	if c.StatePath == "" {
		errs = append(errs, errors.New("state path is empty"))
	}
	if !validLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Errorf("unknown log level %q", c.LogLevel))
	}
	return errors.Join(errs...)
}

// HasSheet reports whether a spreadsheet is configured for ingestion.
func (c Config) HasSheet() bool { return c.SpreadsheetID != "" }
