// Package dispatch runs the event loop: a bounded queue drained by a pool of
// workers that route platform events to the ledger and answer commands.
package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"chatkat/pkg/backfill"
	"chatkat/pkg/capture"
	"chatkat/pkg/command"
	"chatkat/pkg/ingest"
	"chatkat/pkg/limiter"
	"chatkat/pkg/metrics"
	"chatkat/pkg/models"
	"chatkat/pkg/platform"
	"chatkat/pkg/ranking"
	"chatkat/pkg/retract"
	"chatkat/pkg/state/logger"
)

var ErrStopped = errors.New("dispatcher stopped")

type Config struct {
	Workers       int
	QueueCapacity int
}

// Responder is what the dispatcher needs to answer a command.
type Responder interface {
	platform.Sender
	platform.Permissions
}

type Deps struct {
	Coordinator *ingest.Coordinator
	Retractor   *retract.Handler
	Backfiller  *backfill.Backfiller
	Parser      *command.Parser
	Engine      *ranking.Engine
	Responder   Responder
	Limiter     *limiter.Pool
	// Capture is optional; it is closed on the first command.
	Capture *capture.Writer
}

type Dispatcher struct {
	cfg   Config
	deps  Deps
	queue chan platform.Event

	done        chan struct{}
	stopOnce    sync.Once
	running     atomic.Bool
	wg          sync.WaitGroup
	captureOnce sync.Once

	handled atomic.Uint64
}

func New(cfg Config, deps Deps) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 1024
	}
	return &Dispatcher{
		cfg:   cfg,
		deps:  deps,
		queue: make(chan platform.Event, cfg.QueueCapacity),
		done:  make(chan struct{}),
	}
}

// Enqueue validates ev and queues it, blocking while the queue is full.
func (d *Dispatcher) Enqueue(ctx context.Context, ev platform.Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	select {
	case <-d.done:
		return ErrStopped
	default:
	}
	select {
	case d.queue <- ev:
		metrics.DispatchQueueDepth.Set(float64(len(d.queue)))
		return nil
	case <-d.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start launches the workers; handlers run with ctx.
func (d *Dispatcher) Start(ctx context.Context) {
	if !d.running.CompareAndSwap(false, true) {
		return
	}
	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.workerLoop(ctx)
		}()
	}
	logger.Info("dispatcher_started", "workers", d.cfg.Workers, "queue_capacity", d.cfg.QueueCapacity)
}

func (d *Dispatcher) workerLoop(ctx context.Context) {
	for {
		select {
		case ev := <-d.queue:
			d.Handle(ctx, ev)
		case <-d.done:
			// drain what was accepted before stop
			for {
				select {
				case ev := <-d.queue:
					d.Handle(ctx, ev)
				default:
					return
				}
			}
		}
	}
}

// Stop refuses new events, lets workers drain the queue and waits for them
// or for ctx.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.stopOnce.Do(func() { close(d.done) })
	finished := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		logger.Info("dispatcher_stopped", "handled", d.handled.Load())
		return nil
	case <-ctx.Done():
		logger.Warn("dispatcher_stop_timeout", "queued", len(d.queue))
		return ctx.Err()
	}
}

func (d *Dispatcher) QueueLen() int { return len(d.queue) }

// Handle processes one event synchronously.
func (d *Dispatcher) Handle(ctx context.Context, ev platform.Event) {
	defer d.handled.Add(1)
	metrics.DispatchQueueDepth.Set(float64(len(d.queue)))
	switch ev.Kind {
	case platform.KindRoomDiscovered:
		d.deps.Backfiller.Start(ctx, ev.Room.CommunityID, ev.Room.RoomID)
	case platform.KindMessageCreated:
		d.handleMessage(ctx, *ev.Message)
	case platform.KindMessageDeleted:
		d.deps.Retractor.Retract(ctx, *ev.Delete)
	default:
		logger.Warn("dispatch_unknown_event", "kind", string(ev.Kind))
	}
}

func (d *Dispatcher) handleMessage(ctx context.Context, m platform.MessageEvent) {
	// schedule the room before recording so the resume point predates live writes
	d.deps.Backfiller.Start(ctx, m.CommunityID, m.RoomID)
	d.deps.Capture.Add(m)
	d.deps.Coordinator.Record(m)

	if m.Bot || !m.HasContent || !d.deps.Parser.IsCommand(m.Content) {
		return
	}
	d.handleCommand(ctx, m)
}

func (d *Dispatcher) handleCommand(ctx context.Context, m platform.MessageEvent) {
	d.captureOnce.Do(func() {
		if err := d.deps.Capture.Close(); err != nil {
			logger.Warn("capture_close_failed", "error", err)
		}
	})
	if !d.deps.Limiter.Allow(m.CommunityID + ":" + m.AuthorID) {
		metrics.Queries.WithLabelValues("rate_limited").Inc()
		logger.Info("command_rate_limited", "community", m.CommunityID, "author", m.AuthorID)
		return
	}
	ok, err := d.deps.Responder.CanSend(ctx, m.CommunityID, m.RoomID)
	if err != nil || !ok {
		metrics.Queries.WithLabelValues("no_permission").Inc()
		logger.Debug("command_abandoned_no_permission", "community", m.CommunityID, "room", m.RoomID, "error", err)
		return
	}

	spec := d.deps.Parser.Parse(m.Content, models.ParseAuthority(m.Authority))
	spec.CommunityID, spec.RoomID = m.CommunityID, m.RoomID
	text := d.deps.Engine.Answer(ctx, spec)
	if text == "" {
		logger.Debug("command_empty_report", "community", m.CommunityID, "room", m.RoomID)
		return
	}
	if err := d.deps.Responder.Send(ctx, m.RoomID, text); err != nil {
		logger.Error("report_send_failed", "community", m.CommunityID, "room", m.RoomID, "error", err)
	}
}
