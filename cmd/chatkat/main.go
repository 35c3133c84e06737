package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"chatkat/internal/app"
	"chatkat/pkg/config"
	"chatkat/pkg/state"
	"chatkat/pkg/state/logger"
	"chatkat/pkg/state/shutdown"
)

// set build metadata
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	// load .env file if present
	_ = godotenv.Load(".env")

	flags, err := config.ParseConfigFlags(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		os.Exit(2)
	}

	fileCfg, fileExists, err := config.ParseConfigFile(flags)
	if err != nil {
		shutdown.Abort("failed to load config file", err, flags.DB)
	}

	envCfg, envRes := config.ParseConfigEnvs()

	eff, err := config.LoadEffectiveConfig(flags, fileCfg, fileExists, envCfg, envRes)
	if err != nil {
		shutdown.Abort("failed to build effective config", err, flags.DB)
	}

	if err := config.ValidateConfig(eff); err != nil {
		shutdown.Abort("invalid configuration", err, eff.DBPath)
	}
	dbPath := eff.Config.Server.DBPath

	// initialize logger after config is fully loaded
	logger.Init(eff.Config.Logging.Level, eff.Config.Logging.Sink)
	defer logger.Sync()

	logger.Info("effective_config_loaded", "source", eff.Source, "addr", eff.Config.Addr(), "db_path", dbPath)
	logger.Info("build_info", "version", version, "commit", commit, "build_date", buildDate)

	if err := state.Init(dbPath); err != nil {
		fmt.Fprintf(os.Stderr, "state_dirs_setup_failed: %v\n", err)
		shutdown.Abort(fmt.Sprintf("failed to ensure state directories under %s", dbPath), err, dbPath)
	}

	a, err := app.New(eff, version)
	if err != nil {
		shutdown.Abort("failed to initialize app", err, dbPath)
	}

	ctx, cancel := shutdown.SetupSignalHandler(context.Background())
	defer cancel()

	runErr := a.Run(ctx)
	cancel()

	// bounded so teardown cannot hang forever
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer shutdownCancel()
	if err := a.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown_incomplete", "error", err)
	}
	if runErr != nil {
		shutdown.Abort("app run failed", runErr, dbPath)
	}
}
