// Package app wires the ledger components into a running daemon.
package app

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/valyala/fasthttp"

	"chatkat/internal/digest"
	"chatkat/pkg/backfill"
	"chatkat/pkg/capture"
	"chatkat/pkg/command"
	"chatkat/pkg/config"
	"chatkat/pkg/dispatch"
	"chatkat/pkg/ingest"
	"chatkat/pkg/limiter"
	"chatkat/pkg/platform"
	"chatkat/pkg/platform/bridge"
	"chatkat/pkg/ranking"
	"chatkat/pkg/retract"
	"chatkat/pkg/state"
	"chatkat/pkg/state/logger"
	"chatkat/pkg/store"
	"chatkat/pkg/store/engine"
)

// App groups server state and components.
type App struct {
	cfg     *config.Config
	source  string
	version string
	state   atomic.Value // lifecycle phase, read by /admin/health

	store      store.Store
	platform   platform.Client
	coord      *ingest.Coordinator
	tracker    *backfill.Tracker
	backfiller *backfill.Backfiller
	engine     *ranking.Engine
	parser     *command.Parser
	limiter    *limiter.Pool
	capture    *capture.Writer
	dispatcher *dispatch.Dispatcher
	digest     *digest.Scheduler

	ln      net.Listener
	srvFast *fasthttp.Server
}

type Option func(*App)

// State reports the lifecycle phase: starting, running, shutting_down or stopped.
func (a *App) State() string {
	v, _ := a.state.Load().(string)
	return v
}

// WithPlatform replaces the bridge client.
func WithPlatform(c platform.Client) Option {
	return func(a *App) { a.platform = c }
}

// WithListener serves on ln instead of binding the configured address.
func WithListener(ln net.Listener) Option {
	return func(a *App) { a.ln = ln }
}

// New opens the store and builds every component. Nothing runs until Run.
func New(eff config.EffectiveConfigResult, version string, opts ...Option) (*App, error) {
	cfg := eff.Config
	if cfg == nil {
		return nil, fmt.Errorf("effective config is nil")
	}
	a := &App{cfg: cfg, source: eff.Source, version: version}
	a.state.Store("starting")
	for _, o := range opts {
		o(a)
	}

	paths := state.PathsFor(cfg.Server.DBPath)
	s, err := engine.Open(engine.Options{
		Engine:     cfg.Store.Engine,
		Path:       paths.Store,
		DisableWAL: cfg.Store.DisableWAL,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s store at %s: %w", cfg.Store.Engine, paths.Store, err)
	}
	a.store = s

	if a.platform == nil {
		a.platform = bridge.New(bridge.Config{
			BaseURL: cfg.Platform.BaseURL,
			Token:   cfg.Platform.Token,
			Timeout: cfg.Platform.Timeout.Duration(),
		})
	}

	a.coord = ingest.NewCoordinator(s, ingest.Config{
		FlushInterval: cfg.Ingest.FlushInterval.Duration(),
		FlushAttempts: cfg.Ingest.FlushAttempts,
		RetryBackoff:  cfg.Ingest.RetryBackoff.Duration(),
	})
	a.tracker = backfill.NewTracker()
	a.backfiller = backfill.New(a.tracker, a.coord, a.platform, s, backfill.Config{
		PageSize:      cfg.Backfill.PageSize,
		FetchAttempts: cfg.Backfill.FetchAttempts,
		RetryBackoff:  cfg.Backfill.RetryBackoff.Duration(),
		RateLimit:     cfg.Backfill.RateLimit,
		Burst:         cfg.Backfill.Burst,
	})
	a.parser = command.NewParser(cfg.Command.Trigger)
	a.engine = ranking.New(a.tracker, a.coord, s, a.platform, cfg.Dispatch.LabelWorkers)
	a.limiter = limiter.New(limiter.Config{RPS: cfg.Command.RateLimit.RPS, Burst: cfg.Command.RateLimit.Burst})

	if cfg.Capture.Enabled {
		w, err := capture.Open(paths.Capture, cfg.Capture.MaxSize.Int64(), time.Now())
		if err != nil {
			// capture is a debugging aid; run without it
			logger.Warn("capture_open_failed", "dir", paths.Capture, "error", err)
		} else {
			a.capture = w
		}
	}

	a.dispatcher = dispatch.New(dispatch.Config{
		Workers:       cfg.Dispatch.Workers,
		QueueCapacity: cfg.Dispatch.QueueCapacity,
	}, dispatch.Deps{
		Coordinator: a.coord,
		Retractor:   retract.New(a.coord, s),
		Backfiller:  a.backfiller,
		Parser:      a.parser,
		Engine:      a.engine,
		Responder:   a.platform,
		Limiter:     a.limiter,
		Capture:     a.capture,
	})

	if cfg.Digest.Enabled {
		targets := make([]digest.Target, len(cfg.Digest.Targets))
		for i, t := range cfg.Digest.Targets {
			targets[i] = digest.Target{CommunityID: t.CommunityID, RoomID: t.RoomID, Flags: t.Flags}
		}
		d, err := digest.New(digest.Config{Cron: cfg.Digest.Cron, Targets: targets}, a.parser, a.engine, a.platform)
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		a.digest = d
	}

	return a, nil
}

// Run starts the workers and the http server and blocks until ctx is done
// or the server fails.
func (a *App) Run(ctx context.Context) error {
	a.printSummary()

	a.coord.Start()
	a.dispatcher.Start(ctx)
	if a.digest != nil {
		a.digest.Start(ctx)
	}

	errCh, err := a.startHTTP()
	if err != nil {
		return err
	}
	a.state.Store("running")
	logger.Info("app_running", "addr", a.Addr(), "version", a.version)

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Addr is the bound listen address once Run has started the server.
func (a *App) Addr() string {
	if a.ln == nil {
		return a.cfg.Addr()
	}
	return a.ln.Addr().String()
}

// Dispatcher exposes the event loop, e.g. for in-process intake.
func (a *App) Dispatcher() *dispatch.Dispatcher { return a.dispatcher }

func (a *App) printSummary() {
	items := append(a.cfg.Summary(),
		fmt.Sprintf("config_source: %s", a.source),
		fmt.Sprintf("queue_capacity: %s", humanize.Comma(int64(a.cfg.Dispatch.QueueCapacity))),
	)
	if a.capture != nil {
		items = append(items, fmt.Sprintf("capture_file: %s", a.capture.Path()))
	}
	logger.LogConfigSummary("config_summary", items)
}
