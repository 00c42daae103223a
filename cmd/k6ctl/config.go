package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the resolved k6ctl configuration: defaults, overlaid by the TOML
// config file, overlaid by command-line flags.
type Config struct {
	Port string
	Baud int

	Power int
	Depth int

	ChunkRetryLimit int
	IdleTimeout     time.Duration
	MaxWait         time.Duration

	CSVLog   string
	ByteDump string
	Verbose  bool
}

func defaultConfig() Config {
	return Config{
		Port:            "/dev/ttyUSB0",
		Baud:            115200,
		Power:           1000,
		Depth:           100,
		ChunkRetryLimit: 3,
		IdleTimeout:     90 * time.Second,
		MaxWait:         10 * time.Minute,
	}
}

// fileConfig mirrors the TOML file layout. Durations are strings in Go
// duration syntax ("90s", "10m").
type fileConfig struct {
	Port        string `toml:"port"`
	Baud        int    `toml:"baud"`
	Power       int    `toml:"power"`
	Depth       int    `toml:"depth"`
	RetryLimit  int    `toml:"retry_limit"`
	IdleTimeout string `toml:"idle_timeout"`
	MaxWait     string `toml:"max_wait"`
	CSVLog      string `toml:"csv_log"`
	ByteDump    string `toml:"byte_dump"`
	Verbose     bool   `toml:"verbose"`
}

// loadConfig overlays the TOML file at path onto the defaults. Only keys
// present in the file override; absent keys keep their defaults.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load k6ctl config: %w", err)
	}

	if meta.IsDefined("port") {
		cfg.Port = strings.TrimSpace(raw.Port)
	}
	if meta.IsDefined("baud") {
		cfg.Baud = raw.Baud
	}
	if meta.IsDefined("power") {
		cfg.Power = raw.Power
	}
	if meta.IsDefined("depth") {
		cfg.Depth = raw.Depth
	}
	if meta.IsDefined("retry_limit") {
		cfg.ChunkRetryLimit = raw.RetryLimit
	}
	if meta.IsDefined("idle_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.IdleTimeout))
		if err != nil {
			return Config{}, fmt.Errorf("load k6ctl config: idle_timeout: %w", err)
		}
		cfg.IdleTimeout = d
	}
	if meta.IsDefined("max_wait") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.MaxWait))
		if err != nil {
			return Config{}, fmt.Errorf("load k6ctl config: max_wait: %w", err)
		}
		cfg.MaxWait = d
	}
	if meta.IsDefined("csv_log") {
		cfg.CSVLog = strings.TrimSpace(raw.CSVLog)
	}
	if meta.IsDefined("byte_dump") {
		cfg.ByteDump = strings.TrimSpace(raw.ByteDump)
	}
	if meta.IsDefined("verbose") {
		cfg.Verbose = raw.Verbose
	}

	if cfg.Port == "" {
		return Config{}, fmt.Errorf("load k6ctl config: port must not be empty")
	}
	if cfg.Baud <= 0 {
		return Config{}, fmt.Errorf("load k6ctl config: baud %d out of range", cfg.Baud)
	}

	return cfg, nil
}
