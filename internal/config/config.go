package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
)

// Config is the top-level configuration structure.
type Config struct {
	Server     ServerConfig    `json:"server"`
	Filter     FilterConfig    `json:"filter"`
	Scheduler  SchedulerConfig `json:"scheduler"`
	Pipeline   PipelineConfig  `json:"pipeline"`
	Activities []Activity      `json:"activities,omitempty"`
	Database   DatabaseConfig  `json:"database"`
	Notify     NotifyConfig    `json:"notify"`
}

type ServerConfig struct {
	Port     int    `json:"port"`
	LogLevel string `json:"log_level"`
}

// FilterConfig tunes the habituation filter. Zero values fall back to
// the filter defaults.
type FilterConfig struct {
	CooldownSeconds int     `json:"cooldown_seconds"`
	WindowSeconds   int     `json:"window_seconds"`
	HabituateCount  int     `json:"habituate_count"`
	HabituatedMult  float64 `json:"habituated_mult"`
	OrientingMult   float64 `json:"orienting_mult"`
	BaseThreshold   float64 `json:"base_threshold"`
}

type SchedulerConfig struct {
	StateKey               string `json:"state_key"`
	CircadianCheckSeconds  int    `json:"circadian_check_seconds"`
	SummaryIntervalSeconds int    `json:"summary_interval_seconds"`
}

type PipelineConfig struct {
	TickSeconds int    `json:"tick_seconds"`
	StateDir    string `json:"state_dir"`
}

// Activity is one weighted idle-time behavior.
type Activity struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Weight      float64 `json:"weight"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `json:"postgres"`
	Redis    RedisConfig    `json:"redis"`
}

type PostgresConfig struct {
	DSN string `json:"dsn"`
}

type RedisConfig struct {
	URL string `json:"url"`
}

type NotifyConfig struct {
	MaxQueue int               `json:"max_queue"`
	Slack    SlackSinkConfig   `json:"slack"`
	Discord  DiscordSinkConfig `json:"discord"`
}

type SlackSinkConfig struct {
	Enabled   bool   `json:"enabled"`
	BotToken  string `json:"bot_token"`
	ChannelID string `json:"channel_id"`
}

type DiscordSinkConfig struct {
	Enabled   bool   `json:"enabled"`
	BotToken  string `json:"bot_token"`
	ChannelID string `json:"channel_id"`
}

// envVarRe matches ${VAR} and ${VAR:default} patterns.
var envVarRe = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

// Load reads a JSON config file and substitutes environment variable references.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	// Substitute ${VAR} and ${VAR:default} with environment values.
	resolved := envVarRe.ReplaceAllStringFunc(string(data), func(match string) string {
		parts := envVarRe.FindStringSubmatch(match)
		name := parts[1]
		defaultVal := parts[2]
		if v := os.Getenv(name); v != "" {
			return v
		}
		return defaultVal
	})

	var cfg Config
	if err := json.Unmarshal([]byte(resolved), &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}
