package backfill

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"chatkat/pkg/ingest"
	"chatkat/pkg/metrics"
	"chatkat/pkg/platform"
	"chatkat/pkg/state/logger"
	"chatkat/pkg/store"
)

type Config struct {
	PageSize      int
	FetchAttempts int
	RetryBackoff  time.Duration
	// RateLimit caps history page fetches per second across all rooms;
	// zero means unlimited.
	RateLimit float64
	Burst     int
}

// Backfiller imports the history of newly discovered rooms into their
// backfill batches.
type Backfiller struct {
	tracker *Tracker
	coord   *ingest.Coordinator
	history platform.History
	store   store.Store
	cfg     Config
	limiter *rate.Limiter

	resumeMu sync.Mutex
	resume   map[string]int64

	wg sync.WaitGroup
}

func New(t *Tracker, c *ingest.Coordinator, h platform.History, s store.Store, cfg Config) *Backfiller {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	if cfg.FetchAttempts <= 0 {
		cfg.FetchAttempts = 1
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	lim := rate.NewLimiter(rate.Inf, cfg.Burst)
	if cfg.RateLimit > 0 {
		lim = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst)
	}
	return &Backfiller{
		tracker: t,
		coord:   c,
		history: h,
		store:   s,
		cfg:     cfg,
		limiter: lim,
		resume:  make(map[string]int64),
	}
}

func (b *Backfiller) Tracker() *Tracker { return b.tracker }

// ResumePoint returns the newest ts stored for a community, read once per
// process so that live writes cannot move it. Zero means full history.
func (b *Backfiller) ResumePoint(ctx context.Context, communityID string) int64 {
	b.resumeMu.Lock()
	defer b.resumeMu.Unlock()
	if ts, ok := b.resume[communityID]; ok {
		return ts
	}
	ts, ok, err := b.store.Latest(ctx, communityID)
	switch {
	case err != nil:
		logger.Warn("backfill_resume_lookup_failed", "community", communityID, "error", err)
		ts = 0
	case !ok:
		ts = 0
	default:
		logger.Info("backfill_resume_point", "community", communityID, "ts", ts)
	}
	b.resume[communityID] = ts
	return ts
}

// Start schedules the import of a room. It returns false if the room was
// already scheduled. The import is not cancelled with ctx.
func (b *Backfiller) Start(ctx context.Context, communityID, roomID string) bool {
	b.tracker.Discover(communityID, roomID)
	after := b.ResumePoint(ctx, communityID)
	if !b.tracker.Begin(communityID, roomID) {
		return false
	}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.run(context.WithoutCancel(ctx), communityID, roomID, after)
	}()
	return true
}

func (b *Backfiller) run(ctx context.Context, communityID, roomID string, after int64) {
	started := time.Now()
	target := ingest.Backfill(communityID, roomID)
	// same-millisecond messages of the resume point are re-read; upsert is idempotent
	cursor := after
	if cursor > 0 {
		cursor--
	}
	imported := 0
	logger.Info("backfill_started", "community", communityID, "room", roomID, "after", cursor)

	for {
		page, err := b.fetch(ctx, communityID, roomID, cursor)
		if err != nil {
			logger.Error("backfill_fetch_exhausted", "community", communityID, "room", roomID, "after", cursor, "error", err)
			break
		}
		next := cursor
		for _, m := range page {
			if m.CommunityID == "" {
				m.CommunityID = communityID
			}
			if m.RoomID == "" {
				m.RoomID = roomID
			}
			if b.coord.RecordTo(target, m) {
				imported++
				metrics.BackfillMessages.Inc()
			}
			if m.TS > next {
				next = m.TS
			}
		}
		if len(page) < b.cfg.PageSize || next <= cursor {
			break
		}
		cursor = next
	}

	if err := b.coord.FlushRoom(ctx, communityID, roomID); err != nil {
		logger.Error("backfill_flush_failed", "community", communityID, "room", roomID, "error", err)
	}
	b.tracker.Complete(communityID, roomID)
	logger.Info("backfill_completed", "community", communityID, "room", roomID, "imported", imported, "took", time.Since(started))
}

func (b *Backfiller) fetch(ctx context.Context, communityID, roomID string, after int64) ([]platform.MessageEvent, error) {
	var err error
	for attempt := 1; attempt <= b.cfg.FetchAttempts; attempt++ {
		if werr := b.limiter.Wait(ctx); werr != nil {
			return nil, werr
		}
		var page []platform.MessageEvent
		page, err = b.history.MessagesAfter(ctx, communityID, roomID, after, b.cfg.PageSize)
		if err == nil {
			return page, nil
		}
		logger.Warn("backfill_fetch_failed", "community", communityID, "room", roomID, "attempt", attempt, "error", err)
		if attempt < b.cfg.FetchAttempts && b.cfg.RetryBackoff > 0 {
			time.Sleep(b.cfg.RetryBackoff * time.Duration(attempt))
		}
	}
	return nil, fmt.Errorf("after %d attempts: %w", b.cfg.FetchAttempts, err)
}

// Wait blocks until every started import finished or ctx is done.
func (b *Backfiller) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
