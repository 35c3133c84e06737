package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Config is the main configuration struct.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Logging  LoggingConfig  `yaml:"logging"`
	Store    StoreConfig    `yaml:"store"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Backfill BackfillConfig `yaml:"backfill"`
	Command  CommandConfig  `yaml:"command"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Platform PlatformConfig `yaml:"platform"`
	Digest   DigestConfig   `yaml:"digest"`
	Capture  CaptureConfig  `yaml:"capture"`
}

// ServerConfig holds the http listener settings.
type ServerConfig struct {
	Address      string    `yaml:"address"`
	Port         int       `yaml:"port"`
	DBPath       string    `yaml:"db_path"`
	ReadTimeout  Duration  `yaml:"read_timeout"`
	WriteTimeout Duration  `yaml:"write_timeout"`
	MaxBodySize  SizeBytes `yaml:"max_body_size"`
	// AdminToken guards /admin and /v1 routes when set.
	AdminToken string `yaml:"admin_token"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	// Sink is "stdout" or "file:<path>".
	Sink string `yaml:"sink"`
}

type StoreConfig struct {
	Engine     string `yaml:"engine"` // "pebble" or "sqlite"
	DisableWAL bool   `yaml:"disable_wal"`
}

// IngestConfig controls batching of ledger writes.
type IngestConfig struct {
	FlushInterval Duration `yaml:"flush_interval"`
	FlushAttempts int      `yaml:"flush_attempts"`
	RetryBackoff  Duration `yaml:"retry_backoff"`
}

// BackfillConfig controls history imports.
type BackfillConfig struct {
	PageSize      int      `yaml:"page_size"`
	FetchAttempts int      `yaml:"fetch_attempts"`
	RetryBackoff  Duration `yaml:"retry_backoff"`
	RateLimit     float64  `yaml:"rate_limit"` // pages per second
	Burst         int      `yaml:"burst"`
	WaitTimeout   Duration `yaml:"wait_timeout"`
}

type CommandConfig struct {
	Trigger   string `yaml:"trigger"`
	RateLimit struct {
		RPS   float64 `yaml:"rps"`
		Burst int     `yaml:"burst"`
	} `yaml:"rate_limit"`
}

type DispatchConfig struct {
	Workers       int `yaml:"workers"`
	QueueCapacity int `yaml:"queue_capacity"`
	LabelWorkers  int `yaml:"label_workers"`
}

// PlatformConfig points at the chat platform bridge.
type PlatformConfig struct {
	BaseURL string   `yaml:"base_url"`
	Token   string   `yaml:"token"`
	Timeout Duration `yaml:"timeout"`
}

// DigestConfig schedules ranking reports posted without a command.
type DigestConfig struct {
	Enabled bool           `yaml:"enabled"`
	Cron    string         `yaml:"cron"`
	Targets []DigestTarget `yaml:"targets"`
}

type DigestTarget struct {
	CommunityID string `yaml:"community_id"`
	RoomID      string `yaml:"room_id"`
	// Flags uses the command syntax, e.g. "-week -guild".
	Flags string `yaml:"flags"`
}

// CaptureConfig enables the CSV capture of observed messages.
type CaptureConfig struct {
	Enabled bool      `yaml:"enabled"`
	MaxSize SizeBytes `yaml:"max_size"`
}

// SizeBytes represents a number of bytes, unmarshaled from human-friendly strings like "64MB" or plain integers.
type SizeBytes int64

func (s *SizeBytes) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*s = 0
		return nil
	}
	v, err := parseSizeBytes(node.Value)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func (s SizeBytes) Int64() int64 { return int64(s) }

func (s SizeBytes) String() string { return humanize.IBytes(uint64(s)) }

func parseSizeBytes(v string) (SizeBytes, error) {
	raw := strings.TrimSpace(v)
	if raw == "" {
		return 0, nil
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return SizeBytes(i), nil
	}
	if u, err := humanize.ParseBytes(raw); err == nil {
		return SizeBytes(u), nil
	}
	return 0, fmt.Errorf("invalid size value: %q", v)
}

// Duration is a wrapper around time.Duration that supports YAML parsing from strings like "100ms" or plain numbers (interpreted as seconds).
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*d = 0
		return nil
	}
	v, err := parseDuration(node.Value)
	if err != nil {
		return err
	}
	*d = v
	return nil
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func parseDuration(v string) (Duration, error) {
	raw := strings.TrimSpace(v)
	if raw == "" {
		return 0, nil
	}
	if td, err := time.ParseDuration(raw); err == nil {
		return Duration(td), nil
	}
	// allow numeric seconds
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return Duration(time.Duration(f * float64(time.Second))), nil
	}
	return 0, fmt.Errorf("invalid duration value: %q", v)
}
