package config

import (
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
)

// holds parsed command-line flag values and which were set
type Flags struct {
	Addr   string
	DB     string
	Config string
	Set    map[string]bool
}

// holds the results of applying environment overrides
type EnvResult struct {
	EnvUsed bool
}

// holds the result of LoadEffectiveConfig
type EffectiveConfigResult struct {
	Config *Config
	Addr   string
	DBPath string
	Source string // "flags", "config", "env", or "defaults"
}

// parses command-line flags; only the listen address, db path and config path are accepted
func ParseConfigFlags(args []string) (Flags, error) {
	fs := flag.NewFlagSet("chatkat", flag.ContinueOnError)
	addrPtr := fs.String("addr", ":8080", "HTTP listen address")
	dbPtr := fs.String("db", defaultDBPath, "ledger path")
	cfgPtr := fs.String("config", "./config.yaml", "Path to config file")
	if err := fs.Parse(args); err != nil {
		return Flags{}, err
	}

	setFlags := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })

	return Flags{Addr: *addrPtr, DB: *dbPtr, Config: *cfgPtr, Set: setFlags}, nil
}

// loads config from file, returns config, found bool, and error
func ParseConfigFile(flags Flags) (*Config, bool, error) {
	cfgPath := ResolveConfigPath(flags.Config, flags.Set["config"])
	cfg, err := LoadConfigFile(cfgPath)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, false, nil
		}
		return nil, false, err
	}
	return cfg, true, nil
}

// loads CHATKAT_* environment variables into a new Config
func ParseConfigEnvs() (*Config, EnvResult) {
	names := []string{
		"ADDR", "SERVER_ADDRESS", "SERVER_PORT", "DB_PATH", "ADMIN_TOKEN", "MAX_BODY_SIZE",
		"LOG_LEVEL", "LOG_SINK",
		"STORE_ENGINE", "STORE_DISABLE_WAL",
		"FLUSH_INTERVAL", "FLUSH_ATTEMPTS", "FLUSH_RETRY_BACKOFF",
		"BACKFILL_PAGE_SIZE", "BACKFILL_FETCH_ATTEMPTS", "BACKFILL_RATE_LIMIT", "BACKFILL_BURST", "BACKFILL_WAIT_TIMEOUT",
		"COMMAND_TRIGGER", "COMMAND_RPS", "COMMAND_BURST",
		"DISPATCH_WORKERS", "DISPATCH_QUEUE_CAPACITY",
		"PLATFORM_URL", "PLATFORM_TOKEN", "PLATFORM_TIMEOUT",
		"DIGEST_ENABLED", "DIGEST_CRON",
		"DEBUG", "CAPTURE_MAX_SIZE",
	}
	envs := make(map[string]string, len(names))
	envUsed := false
	for _, n := range names {
		v := strings.TrimSpace(os.Getenv(EnvPrefix + n))
		envs[n] = v
		if v != "" {
			envUsed = true
		}
	}
	envCfg := &Config{}

	parseBool := func(v string) bool {
		switch strings.ToLower(v) {
		case "1", "true", "yes":
			return true
		default:
			return false
		}
	}
	parseInt := func(v string, dst *int) {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
	parseFloat := func(v string, dst *float64) {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
	parseDur := func(v string, dst *Duration) {
		if d, err := parseDuration(v); err == nil {
			*dst = d
		}
	}

	if v := envs["ADDR"]; v != "" {
		if h, p, err := net.SplitHostPort(v); err == nil {
			envCfg.Server.Address = h
			parseInt(p, &envCfg.Server.Port)
		} else {
			envCfg.Server.Address = v
		}
	} else {
		envCfg.Server.Address = envs["SERVER_ADDRESS"]
		if v := envs["SERVER_PORT"]; v != "" {
			parseInt(v, &envCfg.Server.Port)
		}
	}
	envCfg.Server.DBPath = envs["DB_PATH"]
	envCfg.Server.AdminToken = envs["ADMIN_TOKEN"]
	if v := envs["MAX_BODY_SIZE"]; v != "" {
		if s, err := parseSizeBytes(v); err == nil {
			envCfg.Server.MaxBodySize = s
		}
	}

	envCfg.Logging.Level = envs["LOG_LEVEL"]
	envCfg.Logging.Sink = envs["LOG_SINK"]

	envCfg.Store.Engine = strings.ToLower(envs["STORE_ENGINE"])
	envCfg.Store.DisableWAL = parseBool(envs["STORE_DISABLE_WAL"])

	if v := envs["FLUSH_INTERVAL"]; v != "" {
		parseDur(v, &envCfg.Ingest.FlushInterval)
	}
	if v := envs["FLUSH_ATTEMPTS"]; v != "" {
		parseInt(v, &envCfg.Ingest.FlushAttempts)
	}
	if v := envs["FLUSH_RETRY_BACKOFF"]; v != "" {
		parseDur(v, &envCfg.Ingest.RetryBackoff)
	}

	if v := envs["BACKFILL_PAGE_SIZE"]; v != "" {
		parseInt(v, &envCfg.Backfill.PageSize)
	}
	if v := envs["BACKFILL_FETCH_ATTEMPTS"]; v != "" {
		parseInt(v, &envCfg.Backfill.FetchAttempts)
	}
	if v := envs["BACKFILL_RATE_LIMIT"]; v != "" {
		parseFloat(v, &envCfg.Backfill.RateLimit)
	}
	if v := envs["BACKFILL_BURST"]; v != "" {
		parseInt(v, &envCfg.Backfill.Burst)
	}
	if v := envs["BACKFILL_WAIT_TIMEOUT"]; v != "" {
		parseDur(v, &envCfg.Backfill.WaitTimeout)
	}

	envCfg.Command.Trigger = envs["COMMAND_TRIGGER"]
	if v := envs["COMMAND_RPS"]; v != "" {
		parseFloat(v, &envCfg.Command.RateLimit.RPS)
	}
	if v := envs["COMMAND_BURST"]; v != "" {
		parseInt(v, &envCfg.Command.RateLimit.Burst)
	}

	if v := envs["DISPATCH_WORKERS"]; v != "" {
		parseInt(v, &envCfg.Dispatch.Workers)
	}
	if v := envs["DISPATCH_QUEUE_CAPACITY"]; v != "" {
		parseInt(v, &envCfg.Dispatch.QueueCapacity)
	}

	envCfg.Platform.BaseURL = envs["PLATFORM_URL"]
	envCfg.Platform.Token = envs["PLATFORM_TOKEN"]
	if v := envs["PLATFORM_TIMEOUT"]; v != "" {
		parseDur(v, &envCfg.Platform.Timeout)
	}

	envCfg.Digest.Enabled = parseBool(envs["DIGEST_ENABLED"])
	envCfg.Digest.Cron = envs["DIGEST_CRON"]

	// DEBUG turns on the message capture
	envCfg.Capture.Enabled = parseBool(envs["DEBUG"])
	if v := envs["CAPTURE_MAX_SIZE"]; v != "" {
		if s, err := parseSizeBytes(v); err == nil {
			envCfg.Capture.MaxSize = s
		}
	}

	return envCfg, EnvResult{EnvUsed: envUsed}
}

// decides which single source to use and returns the effective config plus resolved addr and dbPath.
// if --config is set, only the config file is used; otherwise flags override the file (or env when
// no file exists); else the config file if present; else env
func LoadEffectiveConfig(flags Flags, fileCfg *Config, fileExists bool, envCfg *Config, envRes EnvResult) (EffectiveConfigResult, error) {
	var res EffectiveConfigResult
	if fileCfg == nil {
		fileCfg = &Config{}
	}
	if envCfg == nil {
		envCfg = &Config{}
	}

	if flags.Set["config"] {
		if !fileExists {
			return res, fmt.Errorf("config file %s not found", flags.Config)
		}
		res.Config = fileCfg
		res.Addr = fileCfg.Addr()
		res.DBPath = fileCfg.Server.DBPath
		res.Source = "config"
		return res, nil
	}

	base := envCfg
	if fileExists {
		base = fileCfg
	}

	if flags.Set["addr"] || flags.Set["db"] {
		out := *base
		addr := base.Addr()
		if flags.Set["addr"] {
			addr = flags.Addr
			host, _, err := net.SplitHostPort(addr)
			if err != nil {
				return res, fmt.Errorf("invalid --addr %q: %w", addr, err)
			}
			out.Server.Address = host
			out.Server.Port = parsePortFromAddr(addr)
		}
		dbPath := base.Server.DBPath
		if flags.Set["db"] {
			dbPath = flags.DB
		}
		out.Server.DBPath = dbPath
		res.Config = &out
		res.Addr = addr
		res.DBPath = dbPath
		res.Source = "flags"
		return res, nil
	}

	res.Config = base
	res.Addr = base.Addr()
	res.DBPath = base.Server.DBPath
	res.Source = "config"
	if !fileExists {
		res.Source = "env"
		if !envRes.EnvUsed {
			res.Source = "defaults"
		}
	}
	return res, nil
}

// extracts port integer from host:port string
func parsePortFromAddr(a string) int {
	if a == "" {
		return 0
	}
	if _, p, err := net.SplitHostPort(a); err == nil {
		if pi, err := strconv.Atoi(p); err == nil {
			return pi
		}
	}
	return 0
}
