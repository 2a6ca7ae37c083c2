package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// AppConfig holds every runtime knob of the arena server. Values come from
// the environment; an optional YAML file named by ARENA_CONFIG is applied
// first and the environment wins on conflict.
type AppConfig struct {
	ListenAddr string

	DatabaseURL string
	RedisURL    string

	MaxConcurrentMatches int
	MatchQueueSize       int
	MoveCeiling          int

	BotConnectTimeout time.Duration
	BotReadTimeout    time.Duration
}

type fileConfig struct {
	ListenAddr           string `yaml:"listen_addr"`
	DatabaseURL          string `yaml:"database_url"`
	RedisURL             string `yaml:"redis_url"`
	MaxConcurrentMatches int    `yaml:"max_concurrent_matches"`
	MatchQueueSize       int    `yaml:"match_queue_size"`
	MoveCeiling          int    `yaml:"move_ceiling"`
	BotConnectTimeoutMS  int    `yaml:"bot_connect_timeout_ms"`
	BotReadTimeoutMS     int    `yaml:"bot_read_timeout_ms"`
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		ListenAddr:           ":8080",
		MaxConcurrentMatches: 8,
		MatchQueueSize:       64,
		MoveCeiling:          500,
		BotConnectTimeout:    5 * time.Second,
		BotReadTimeout:       10 * time.Second,
	}

	if path := strings.TrimSpace(os.Getenv("ARENA_CONFIG")); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	if v := strings.TrimSpace(os.Getenv("LISTEN_ADDR")); v != "" {
		cfg.ListenAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("DATABASE_URL")); v != "" {
		cfg.DatabaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("REDIS_URL")); v != "" {
		cfg.RedisURL = v
	}
	if n, ok := envInt("MAX_CONCURRENT_MATCHES"); ok && n > 0 {
		cfg.MaxConcurrentMatches = n
	}
	if n, ok := envInt("MATCH_QUEUE_SIZE"); ok && n > 0 {
		cfg.MatchQueueSize = n
	}
	if n, ok := envInt("MOVE_CEILING"); ok && n > 0 {
		cfg.MoveCeiling = n
	}
	if n, ok := envInt("BOT_CONNECT_TIMEOUT_MS"); ok && n > 0 {
		cfg.BotConnectTimeout = time.Duration(n) * time.Millisecond
	}
	if n, ok := envInt("BOT_READ_TIMEOUT_MS"); ok && n > 0 {
		cfg.BotReadTimeout = time.Duration(n) * time.Millisecond
	}

	return cfg, nil
}

func (c *AppConfig) applyFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	if strings.TrimSpace(fc.ListenAddr) != "" {
		c.ListenAddr = strings.TrimSpace(fc.ListenAddr)
	}
	if strings.TrimSpace(fc.DatabaseURL) != "" {
		c.DatabaseURL = strings.TrimSpace(fc.DatabaseURL)
	}
	if strings.TrimSpace(fc.RedisURL) != "" {
		c.RedisURL = strings.TrimSpace(fc.RedisURL)
	}
	if fc.MaxConcurrentMatches > 0 {
		c.MaxConcurrentMatches = fc.MaxConcurrentMatches
	}
	if fc.MatchQueueSize > 0 {
		c.MatchQueueSize = fc.MatchQueueSize
	}
	if fc.MoveCeiling > 0 {
		c.MoveCeiling = fc.MoveCeiling
	}
	if fc.BotConnectTimeoutMS > 0 {
		c.BotConnectTimeout = time.Duration(fc.BotConnectTimeoutMS) * time.Millisecond
	}
	if fc.BotReadTimeoutMS > 0 {
		c.BotReadTimeout = time.Duration(fc.BotReadTimeoutMS) * time.Millisecond
	}
	return nil
}

func envInt(key string) (int, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}
