package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	EnvPrefix = "CHATKAT_"

	defaultPort          = 8080
	defaultDBPath        = "./.chatkat"
	defaultReadTimeout   = 10 * time.Second
	defaultWriteTimeout  = 10 * time.Second
	defaultMaxBodySize   = 1 << 20 // 1 MiB
	defaultLogLevel      = "info"
	defaultEngine        = "pebble"
	defaultFlushInterval = 5 * time.Second
	defaultFlushAttempts = 3
	defaultRetryBackoff  = 200 * time.Millisecond
	defaultPageSize      = 100
	defaultFetchAttempts = 3
	defaultBackfillRate  = 5 // pages per second
	defaultBackfillWait  = 30 * time.Second
	defaultTrigger       = "&kat"
	defaultCommandRPS    = 0.2
	defaultCommandBurst  = 3
	defaultWorkers       = 8
	defaultQueueCapacity = 4096
	defaultLabelWorkers  = 8
	defaultPlatformTO    = 10 * time.Second
	defaultDigestCron    = "0 9 * * 1" // Mondays at 09:00
	defaultCaptureMax    = 64 << 20    // 64 MiB
)

// Addr returns the HTTP server address as host:port.
func (c *Config) Addr() string {
	addr := c.Server.Address
	if addr == "" {
		addr = "0.0.0.0"
	}
	port := c.Server.Port
	if port == 0 {
		port = defaultPort
	}
	return fmt.Sprintf("%s:%d", addr, port)
}

// LoadConfigFile reads and parses a config file.
func LoadConfigFile(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &cfg, nil
}

// ResolveConfigPath returns the config file path, preferring flag, then env.
func ResolveConfigPath(flagPath string, flagSet bool) string {
	if flagSet {
		return flagPath
	}
	if p := os.Getenv(EnvPrefix + "CONFIG"); p != "" {
		return p
	}
	return flagPath
}

// ApplyDefaults fills every unset value.
func (c *Config) ApplyDefaults() {
	if c.Server.DBPath == "" {
		c.Server.DBPath = defaultDBPath
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = Duration(defaultReadTimeout)
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = Duration(defaultWriteTimeout)
	}
	if c.Server.MaxBodySize == 0 {
		c.Server.MaxBodySize = SizeBytes(defaultMaxBodySize)
	}

	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Store.Engine == "" {
		c.Store.Engine = defaultEngine
	}

	if c.Ingest.FlushInterval == 0 {
		c.Ingest.FlushInterval = Duration(defaultFlushInterval)
	}
	if c.Ingest.FlushAttempts <= 0 {
		c.Ingest.FlushAttempts = defaultFlushAttempts
	}
	if c.Ingest.RetryBackoff == 0 {
		c.Ingest.RetryBackoff = Duration(defaultRetryBackoff)
	}

	bf := &c.Backfill
	if bf.PageSize <= 0 {
		bf.PageSize = defaultPageSize
	}
	if bf.FetchAttempts <= 0 {
		bf.FetchAttempts = defaultFetchAttempts
	}
	if bf.RetryBackoff == 0 {
		bf.RetryBackoff = Duration(defaultRetryBackoff)
	}
	if bf.RateLimit == 0 {
		bf.RateLimit = defaultBackfillRate
	}
	if bf.Burst <= 0 {
		bf.Burst = 1
	}
	if bf.WaitTimeout == 0 {
		bf.WaitTimeout = Duration(defaultBackfillWait)
	}

	if c.Command.Trigger == "" {
		c.Command.Trigger = defaultTrigger
	}
	if c.Command.RateLimit.RPS == 0 {
		c.Command.RateLimit.RPS = defaultCommandRPS
	}
	if c.Command.RateLimit.Burst <= 0 {
		c.Command.RateLimit.Burst = defaultCommandBurst
	}

	if c.Dispatch.Workers <= 0 {
		c.Dispatch.Workers = defaultWorkers
	}
	if c.Dispatch.QueueCapacity <= 0 {
		c.Dispatch.QueueCapacity = defaultQueueCapacity
	}
	if c.Dispatch.LabelWorkers <= 0 {
		c.Dispatch.LabelWorkers = defaultLabelWorkers
	}

	if c.Platform.Timeout == 0 {
		c.Platform.Timeout = Duration(defaultPlatformTO)
	}
	if c.Digest.Cron == "" {
		c.Digest.Cron = defaultDigestCron
	}
	if c.Capture.MaxSize == 0 {
		c.Capture.MaxSize = SizeBytes(defaultCaptureMax)
	}
}

// Summary lists the settings worth printing at startup.
func (c *Config) Summary() []string {
	return []string{
		fmt.Sprintf("addr: %s", c.Addr()),
		fmt.Sprintf("db_path: %s", c.Server.DBPath),
		fmt.Sprintf("store_engine: %s", c.Store.Engine),
		fmt.Sprintf("flush_interval: %s", c.Ingest.FlushInterval),
		fmt.Sprintf("flush_attempts: %d", c.Ingest.FlushAttempts),
		fmt.Sprintf("backfill_page_size: %d", c.Backfill.PageSize),
		fmt.Sprintf("backfill_rate_limit: %g/s", c.Backfill.RateLimit),
		fmt.Sprintf("command_trigger: %s", c.Command.Trigger),
		fmt.Sprintf("dispatch_workers: %d", c.Dispatch.Workers),
		fmt.Sprintf("platform: %s", c.Platform.BaseURL),
		fmt.Sprintf("digest: %t (%s)", c.Digest.Enabled, c.Digest.Cron),
		fmt.Sprintf("capture: %t (max %s)", c.Capture.Enabled, c.Capture.MaxSize),
	}
}
