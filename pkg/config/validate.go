package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/adhocore/gronx"
)

// set defaults, fail fast on critical errors
func ValidateConfig(eff EffectiveConfigResult) error {
	cfg := eff.Config
	if cfg == nil {
		return fmt.Errorf("effective config is nil")
	}
	if p := strings.TrimSpace(eff.DBPath); p != "" {
		cfg.Server.DBPath = p
	}
	cfg.ApplyDefaults()

	switch cfg.Store.Engine {
	case "pebble", "sqlite":
	default:
		return fmt.Errorf("invalid store.engine %q: want pebble or sqlite", cfg.Store.Engine)
	}

	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid logging.level %q", cfg.Logging.Level)
	}

	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", cfg.Server.Port)
	}

	if strings.ContainsAny(cfg.Command.Trigger, " \t\n") {
		return fmt.Errorf("command.trigger must be a single word, got %q", cfg.Command.Trigger)
	}
	if cfg.Backfill.RateLimit < 0 {
		return fmt.Errorf("backfill.rate_limit must not be negative")
	}

	// the bridge is the only way to reach the platform
	raw := strings.TrimSpace(cfg.Platform.BaseURL)
	if raw == "" {
		return fmt.Errorf("platform.base_url is empty: set it in config or CHATKAT_PLATFORM_URL")
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid platform.base_url %q", raw)
	}

	if cfg.Digest.Enabled {
		if !gronx.New().IsValid(cfg.Digest.Cron) {
			return fmt.Errorf("invalid digest.cron: not a valid cron expression")
		}
		if len(cfg.Digest.Targets) == 0 {
			return fmt.Errorf("digest enabled but no digest.targets configured")
		}
		for i, t := range cfg.Digest.Targets {
			if t.CommunityID == "" || t.RoomID == "" {
				return fmt.Errorf("digest.targets[%d]: community_id and room_id are required", i)
			}
		}
	}

	return nil
}
