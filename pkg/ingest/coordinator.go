// Package ingest turns chat events into ledger entries and batches their
// writes to the store.
package ingest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"chatkat/pkg/metrics"
	"chatkat/pkg/models"
	"chatkat/pkg/platform"
	"chatkat/pkg/state/logger"
	"chatkat/pkg/store"
	"chatkat/pkg/store/keys"
)

// Target addresses a batch: the live batch, or one room's backfill batch.
type Target struct {
	backfill    bool
	CommunityID string
	RoomID      string
}

var Live = Target{}

func Backfill(communityID, roomID string) Target {
	return Target{backfill: true, CommunityID: communityID, RoomID: roomID}
}

func (t Target) IsBackfill() bool { return t.backfill }

func (t Target) String() string {
	if !t.backfill {
		return "live"
	}
	return "backfill:" + t.CommunityID + ":" + t.RoomID
}

func (t Target) metricLabel() string {
	if t.backfill {
		return "backfill"
	}
	return "live"
}

type Config struct {
	FlushInterval time.Duration
	FlushAttempts int
	RetryBackoff  time.Duration
}

type roomKey struct{ community, room string }

type Stats struct {
	LivePending     int    `json:"live_pending"`
	BackfillBatches int    `json:"backfill_batches"`
	BackfillPending int    `json:"backfill_pending"`
	Flushes         uint64 `json:"flushes"`
	FlushFailures   uint64 `json:"flush_failures"`
}

// Coordinator owns the live batch and the per-room backfill batches.
type Coordinator struct {
	store store.Store
	cfg   Config
	live  *Batch

	mu    sync.Mutex
	rooms map[roomKey]*Batch

	flushes  atomic.Uint64
	failures atomic.Uint64

	running atomic.Bool
	stop    chan struct{}
	wg      sync.WaitGroup
}

func NewCoordinator(s store.Store, cfg Config) *Coordinator {
	if cfg.FlushAttempts <= 0 {
		cfg.FlushAttempts = 1
	}
	return &Coordinator{
		store: s,
		cfg:   cfg,
		live:  NewBatch(),
		rooms: make(map[roomKey]*Batch),
		stop:  make(chan struct{}),
	}
}

// Record submits a live message.
func (c *Coordinator) Record(ev platform.MessageEvent) bool {
	return c.RecordTo(Live, ev)
}

// RecordTo builds the entry of ev and submits it to target. Messages from
// automated accounts, without an author or with ids that cannot form a
// ledger key are dropped.
func (c *Coordinator) RecordTo(target Target, ev platform.MessageEvent) bool {
	if ev.Bot {
		metrics.EntriesDropped.WithLabelValues("bot").Inc()
		return false
	}
	if ev.AuthorID == "" {
		metrics.EntriesDropped.WithLabelValues("no_author").Inc()
		logger.Debug("entry_dropped_no_author", "community", ev.CommunityID, "room", ev.RoomID, "ts", ev.TS)
		return false
	}
	valid := 0
	if ev.HasContent {
		valid = 1
	}
	e := models.Entry{
		CommunityID: ev.CommunityID,
		RoomID:      ev.RoomID,
		AuthorID:    ev.AuthorID,
		TS:          ev.TS,
		Valid:       valid,
	}
	if _, err := keys.GenEntryKey(e); err != nil {
		metrics.EntriesDropped.WithLabelValues("invalid_id").Inc()
		logger.Warn("entry_dropped_invalid_id", "target", target.String(), "error", err)
		return false
	}
	c.Submit(target, e)
	return true
}

// Submit queues e on target. A live write of an identity still held by its
// room's backfill batch goes to that batch, so the room flush cannot
// overwrite it with an older value.
func (c *Coordinator) Submit(target Target, e models.Entry) {
	if !target.backfill && c.putIfRoomHolds(e) {
		metrics.EntriesRecorded.WithLabelValues("backfill").Inc()
		return
	}
	c.batch(target).Put(e)
	metrics.EntriesRecorded.WithLabelValues(target.metricLabel()).Inc()
	if !target.backfill {
		metrics.PendingEntries.Set(float64(c.live.Len()))
	}
}

// putIfRoomHolds runs under c.mu so FlushRoom cannot retire the batch
// between the check and the write.
func (c *Coordinator) putIfRoomHolds(e models.Entry) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.rooms[roomKey{e.CommunityID, e.RoomID}]
	if !ok {
		return false
	}
	return b.putIfHeld(e)
}

func (c *Coordinator) batch(target Target) *Batch {
	if !target.backfill {
		return c.live
	}
	k := roomKey{target.CommunityID, target.RoomID}
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.rooms[k]
	if !ok {
		b = NewBatch()
		c.rooms[k] = b
	}
	return b
}

// Pending finds an unflushed entry at (community, room, ts) in the live
// batch or the room's backfill batch.
func (c *Coordinator) Pending(communityID, roomID string, ts int64) (models.Entry, bool) {
	if e, ok := c.live.find(communityID, roomID, ts); ok {
		return e, true
	}
	c.mu.Lock()
	b, ok := c.rooms[roomKey{communityID, roomID}]
	c.mu.Unlock()
	if !ok {
		return models.Entry{}, false
	}
	return b.find(communityID, roomID, ts)
}

// Flush writes the live batch. When it returns nil, everything submitted
// before the call is in the store.
func (c *Coordinator) Flush(ctx context.Context) error {
	err := c.flush(ctx, Live, c.live)
	metrics.PendingEntries.Set(float64(c.live.Len()))
	return err
}

// FlushRoom commits a room's backfill batch and retires it; the caller has
// stopped submitting to the room. Entries that still fail after the retries
// move to the live batch so the periodic flush keeps trying.
func (c *Coordinator) FlushRoom(ctx context.Context, communityID, roomID string) error {
	target := Backfill(communityID, roomID)
	k := roomKey{communityID, roomID}
	c.mu.Lock()
	b, ok := c.rooms[k]
	c.mu.Unlock()
	if !ok {
		return nil
	}
	err := c.flush(ctx, target, b)

	c.mu.Lock()
	delete(c.rooms, k)
	c.mu.Unlock()
	if left := b.take(); len(left) > 0 {
		c.live.mergeBack(left)
		logger.Warn("backfill_batch_handed_to_live", "community", communityID, "room", roomID, "entries", len(left))
	}
	return err
}

func (c *Coordinator) flush(ctx context.Context, target Target, b *Batch) error {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	entries := b.takeInFlight()
	defer b.clearInFlight()
	entries = c.setAsideInvalid(target, entries)
	if len(entries) == 0 {
		return nil
	}
	var err error
	for attempt := 1; attempt <= c.cfg.FlushAttempts; attempt++ {
		if err = c.store.Upsert(ctx, entries); err == nil {
			c.flushes.Add(1)
			metrics.Flushes.WithLabelValues(target.metricLabel(), metrics.ResultOK).Inc()
			metrics.FlushedEntries.Add(float64(len(entries)))
			logger.Debug("batch_flushed", "target", target.String(), "entries", len(entries), "attempt", attempt)
			return nil
		}
		logger.Warn("batch_flush_failed", "target", target.String(), "attempt", attempt, "error", err)
		if attempt == c.cfg.FlushAttempts || !sleepCtx(ctx, c.cfg.RetryBackoff*time.Duration(attempt)) {
			break
		}
	}
	c.failures.Add(1)
	metrics.Flushes.WithLabelValues(target.metricLabel(), metrics.ResultError).Inc()
	b.mergeBack(entries)
	logger.Error("batch_flush_gave_up", "target", target.String(), "entries", len(entries), "error", err)
	return fmt.Errorf("flush %s: %w", target, err)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// setAsideInvalid drops entries that can never be stored so they do not
// fail every later flush of the batch.
func (c *Coordinator) setAsideInvalid(target Target, entries []models.Entry) []models.Entry {
	out := entries[:0]
	for _, e := range entries {
		if _, err := keys.GenEntryKey(e); err != nil {
			metrics.EntriesDropped.WithLabelValues("invalid_id").Inc()
			logger.Error("entry_set_aside_invalid_id", "target", target.String(), "error", err)
			continue
		}
		out = append(out, e)
	}
	return out
}

func (c *Coordinator) Stats() Stats {
	s := Stats{
		LivePending:   c.live.Len(),
		Flushes:       c.flushes.Load(),
		FlushFailures: c.failures.Load(),
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	s.BackfillBatches = len(c.rooms)
	for _, b := range c.rooms {
		s.BackfillPending += b.Len()
	}
	return s
}

// Start runs the periodic live flush until Stop.
func (c *Coordinator) Start() {
	if c.cfg.FlushInterval <= 0 || !c.running.CompareAndSwap(false, true) {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.cfg.FlushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				_ = c.Flush(context.Background())
			case <-c.stop:
				return
			}
		}
	}()
	logger.Info("ingest_flush_loop_started", "interval", c.cfg.FlushInterval)
}

// Stop ends the periodic flush and writes whatever is pending.
func (c *Coordinator) Stop(ctx context.Context) error {
	if c.running.CompareAndSwap(true, false) {
		close(c.stop)
		c.wg.Wait()
	}
	err := c.Flush(ctx)
	if err != nil {
		logger.Error("ingest_final_flush_failed", "pending", c.live.Len(), "error", err)
	}
	return err
}
