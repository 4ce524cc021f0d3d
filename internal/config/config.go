package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

type AppConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	StatusAddr string `yaml:"status_addr"`

	RedisURL    string `yaml:"redis_url"`
	DatabaseURL string `yaml:"database_url"`

	MinTimeControlSec  int `yaml:"min_time_control_sec"`
	WagerTolerance     int `yaml:"wager_tolerance"`
	MatchAcceptSec     int `yaml:"match_accept_sec"`
	QueueSweepSec      int `yaml:"queue_sweep_sec"`
	QueueStaleSec      int `yaml:"queue_stale_sec"`
	MinMoveIntervalMs  int `yaml:"min_move_interval_ms"`
	MoveRateCap        int `yaml:"move_rate_cap"`
	MoveRateWindowMs   int `yaml:"move_rate_window_ms"`
	ClockTickMs        int `yaml:"clock_tick_ms"`
	DefaultRating      int `yaml:"default_rating"`
	MaxConcurrentGames int `yaml:"max_concurrent_games"`
}

func defaults() *AppConfig {
	return &AppConfig{
		ListenAddr:         ":8080",
		StatusAddr:         ":9091",
		MinTimeControlSec:  60,
		WagerTolerance:     10,
		MatchAcceptSec:     30,
		QueueSweepSec:      60,
		QueueStaleSec:      600,
		MinMoveIntervalMs:  200,
		MoveRateCap:        5,
		MoveRateWindowMs:   1000,
		ClockTickMs:        1000,
		DefaultRating:      1000,
		MaxConcurrentGames: 200,
	}
}

// Default returns the built-in defaults without touching the environment.
func Default() *AppConfig { return defaults() }

// Load builds the configuration from an optional YAML overlay file
// (ARENA_CONFIG_FILE) followed by environment variables; env wins.
func Load() (*AppConfig, error) {
	cfg := defaults()

	if path := strings.TrimSpace(os.Getenv("ARENA_CONFIG_FILE")); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if v := strings.TrimSpace(os.Getenv("ARENA_LISTEN_ADDR")); v != "" {
		cfg.ListenAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("ARENA_STATUS_ADDR")); v != "" {
		cfg.StatusAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("REDIS_URL")); v != "" {
		cfg.RedisURL = v
	}
	if v := strings.TrimSpace(os.Getenv("DATABASE_URL")); v != "" {
		cfg.DatabaseURL = v
	}

	intEnv := func(name string, dst *int) {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				*dst = n
			}
		}
	}
	intEnv("ARENA_MIN_TIME_CONTROL", &cfg.MinTimeControlSec)
	intEnv("ARENA_WAGER_TOLERANCE", &cfg.WagerTolerance)
	intEnv("ARENA_MATCH_ACCEPT_SEC", &cfg.MatchAcceptSec)
	intEnv("ARENA_QUEUE_SWEEP_SEC", &cfg.QueueSweepSec)
	intEnv("ARENA_QUEUE_STALE_SEC", &cfg.QueueStaleSec)
	intEnv("ARENA_MIN_MOVE_INTERVAL_MS", &cfg.MinMoveIntervalMs)
	intEnv("ARENA_MOVE_RATE_CAP", &cfg.MoveRateCap)
	intEnv("ARENA_MOVE_RATE_WINDOW_MS", &cfg.MoveRateWindowMs)
	intEnv("ARENA_CLOCK_TICK_MS", &cfg.ClockTickMs)
	intEnv("ARENA_DEFAULT_RATING", &cfg.DefaultRating)
	intEnv("ARENA_MAX_CONCURRENT_GAMES", &cfg.MaxConcurrentGames)

	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}

	return cfg, nil
}

func (c *AppConfig) MinTimeControl() time.Duration {
	return time.Duration(c.MinTimeControlSec) * time.Second
}

func (c *AppConfig) MatchAcceptTimeout() time.Duration {
	return time.Duration(c.MatchAcceptSec) * time.Second
}

func (c *AppConfig) QueueSweepInterval() time.Duration {
	return time.Duration(c.QueueSweepSec) * time.Second
}

func (c *AppConfig) QueueStaleHorizon() time.Duration {
	return time.Duration(c.QueueStaleSec) * time.Second
}

func (c *AppConfig) MinMoveInterval() time.Duration {
	return time.Duration(c.MinMoveIntervalMs) * time.Millisecond
}

func (c *AppConfig) MoveRateWindow() time.Duration {
	return time.Duration(c.MoveRateWindowMs) * time.Millisecond
}

func (c *AppConfig) ClockTick() time.Duration {
	return time.Duration(c.ClockTickMs) * time.Millisecond
}
