package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
server:
  address: 127.0.0.1
  port: 9090
  db_path: /var/lib/chatkat
  max_body_size: 2MiB
ingest:
  flush_interval: 2s
  flush_attempts: 5
backfill:
  page_size: 50
  wait_timeout: 45
platform:
  base_url: http://bridge:7000
digest:
  enabled: true
  cron: "0 9 * * 1"
  targets:
    - community_id: g1
      room_id: r1
      flags: "-week -guild"
capture:
  enabled: true
  max_size: 10MB
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoadConfigFile(t *testing.T) {
	cfg, err := LoadConfigFile(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9090", cfg.Addr())
	assert.Equal(t, int64(2<<20), cfg.Server.MaxBodySize.Int64())
	assert.Equal(t, 2*time.Second, cfg.Ingest.FlushInterval.Duration())
	assert.Equal(t, 45*time.Second, cfg.Backfill.WaitTimeout.Duration())
	assert.Equal(t, int64(10_000_000), cfg.Capture.MaxSize.Int64())
	require.Len(t, cfg.Digest.Targets, 1)
	assert.Equal(t, "-week -guild", cfg.Digest.Targets[0].Flags)
}

func TestLoadConfigFileRejectsBadDuration(t *testing.T) {
	_, err := LoadConfigFile(writeConfig(t, "ingest:\n  flush_interval: soon\n"))
	assert.Error(t, err)
}

func TestParseConfigFlags(t *testing.T) {
	f, err := ParseConfigFlags([]string{"-addr", "127.0.0.1:7000"})
	require.NoError(t, err)
	assert.True(t, f.Set["addr"])
	assert.False(t, f.Set["db"])
	assert.Equal(t, defaultDBPath, f.DB)

	_, err = ParseConfigFlags([]string{"-nope"})
	assert.Error(t, err)
}

func TestParseConfigFileMissing(t *testing.T) {
	cfg, found, err := ParseConfigFile(Flags{Config: filepath.Join(t.TempDir(), "absent.yaml"), Set: map[string]bool{}})
	require.NoError(t, err)
	assert.False(t, found)
	assert.NotNil(t, cfg)
}

func TestResolveConfigPathPrefersFlag(t *testing.T) {
	t.Setenv("CHATKAT_CONFIG", "/from/env.yaml")
	assert.Equal(t, "/from/flag.yaml", ResolveConfigPath("/from/flag.yaml", true))
	assert.Equal(t, "/from/env.yaml", ResolveConfigPath("./config.yaml", false))
}

func TestParseConfigEnvs(t *testing.T) {
	t.Setenv("CHATKAT_ADDR", "10.0.0.1:8181")
	t.Setenv("CHATKAT_STORE_ENGINE", "SQLITE")
	t.Setenv("CHATKAT_FLUSH_INTERVAL", "750ms")
	t.Setenv("CHATKAT_COMMAND_RPS", "0.5")
	t.Setenv("CHATKAT_DEBUG", "true")
	t.Setenv("CHATKAT_CAPTURE_MAX_SIZE", "1KiB")

	cfg, res := ParseConfigEnvs()
	assert.True(t, res.EnvUsed)
	assert.Equal(t, "10.0.0.1:8181", cfg.Addr())
	assert.Equal(t, "sqlite", cfg.Store.Engine)
	assert.Equal(t, 750*time.Millisecond, cfg.Ingest.FlushInterval.Duration())
	assert.InDelta(t, 0.5, cfg.Command.RateLimit.RPS, 1e-9)
	assert.True(t, cfg.Capture.Enabled)
	assert.Equal(t, int64(1024), cfg.Capture.MaxSize.Int64())
}

func TestLoadEffectiveConfigPrecedence(t *testing.T) {
	fileCfg := &Config{}
	fileCfg.Server.Port = 9090
	fileCfg.Server.DBPath = "/file/db"
	fileCfg.Platform.BaseURL = "http://file"
	envCfg := &Config{}
	envCfg.Server.DBPath = "/env/db"
	envRes := EnvResult{EnvUsed: true}

	t.Run("explicit config wins", func(t *testing.T) {
		flags := Flags{Addr: ":1", DB: "/flag/db", Set: map[string]bool{"config": true, "db": true}}
		res, err := LoadEffectiveConfig(flags, fileCfg, true, envCfg, envRes)
		require.NoError(t, err)
		assert.Equal(t, "config", res.Source)
		assert.Equal(t, "/file/db", res.DBPath)
	})

	t.Run("explicit config missing", func(t *testing.T) {
		flags := Flags{Config: "x.yaml", Set: map[string]bool{"config": true}}
		_, err := LoadEffectiveConfig(flags, fileCfg, false, envCfg, envRes)
		assert.Error(t, err)
	})

	t.Run("flags override file", func(t *testing.T) {
		flags := Flags{DB: "/flag/db", Set: map[string]bool{"db": true}}
		res, err := LoadEffectiveConfig(flags, fileCfg, true, envCfg, envRes)
		require.NoError(t, err)
		assert.Equal(t, "flags", res.Source)
		assert.Equal(t, "/flag/db", res.DBPath)
		assert.Equal(t, "0.0.0.0:9090", res.Addr)
		assert.Equal(t, "http://file", res.Config.Platform.BaseURL)
		assert.Equal(t, "/file/db", fileCfg.Server.DBPath, "file config must not be mutated")
	})

	t.Run("flags addr", func(t *testing.T) {
		flags := Flags{Addr: "127.0.0.1:7000", Set: map[string]bool{"addr": true}}
		res, err := LoadEffectiveConfig(flags, fileCfg, false, envCfg, envRes)
		require.NoError(t, err)
		assert.Equal(t, "127.0.0.1:7000", res.Config.Addr())
		assert.Equal(t, "/env/db", res.DBPath)
	})

	t.Run("file before env", func(t *testing.T) {
		res, err := LoadEffectiveConfig(Flags{Set: map[string]bool{}}, fileCfg, true, envCfg, envRes)
		require.NoError(t, err)
		assert.Equal(t, "config", res.Source)
	})

	t.Run("env fallback", func(t *testing.T) {
		res, err := LoadEffectiveConfig(Flags{Set: map[string]bool{}}, fileCfg, false, envCfg, envRes)
		require.NoError(t, err)
		assert.Equal(t, "env", res.Source)
		assert.Equal(t, "/env/db", res.DBPath)
	})
}

func TestValidateConfigDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.Platform.BaseURL = "http://bridge:7000"
	require.NoError(t, ValidateConfig(EffectiveConfigResult{Config: cfg}))

	assert.Equal(t, defaultDBPath, cfg.Server.DBPath)
	assert.Equal(t, "pebble", cfg.Store.Engine)
	assert.Equal(t, "&kat", cfg.Command.Trigger)
	assert.Equal(t, defaultWorkers, cfg.Dispatch.Workers)
	assert.Equal(t, defaultFlushInterval, cfg.Ingest.FlushInterval.Duration())
	assert.Equal(t, "0.0.0.0:8080", cfg.Addr())
}

func TestValidateConfigErrors(t *testing.T) {
	base := func() *Config {
		c := &Config{}
		c.Platform.BaseURL = "http://bridge"
		return c
	}
	cases := map[string]func(*Config){
		"engine":      func(c *Config) { c.Store.Engine = "bolt" },
		"level":       func(c *Config) { c.Logging.Level = "loud" },
		"no platform": func(c *Config) { c.Platform.BaseURL = "" },
		"bad scheme":  func(c *Config) { c.Platform.BaseURL = "ftp://bridge" },
		"trigger":     func(c *Config) { c.Command.Trigger = "& kat" },
		"cron": func(c *Config) {
			c.Digest.Enabled = true
			c.Digest.Cron = "every monday"
			c.Digest.Targets = []DigestTarget{{CommunityID: "g", RoomID: "r"}}
		},
		"no targets": func(c *Config) { c.Digest.Enabled = true },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := base()
			mutate(c)
			assert.Error(t, ValidateConfig(EffectiveConfigResult{Config: c}))
		})
	}
	assert.Error(t, ValidateConfig(EffectiveConfigResult{}))
}
