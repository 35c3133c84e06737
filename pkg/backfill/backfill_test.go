package backfill

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatkat/pkg/ingest"
	"chatkat/pkg/models"
	"chatkat/pkg/platform"
	"chatkat/pkg/store"
	"chatkat/pkg/store/storetest"
)

type fakeHistory struct {
	mu    sync.Mutex
	msgs  map[string][]platform.MessageEvent // room -> oldest first
	calls []int64                            // after values seen
	fail  int
	gate  chan struct{}
}

func (h *fakeHistory) MessagesAfter(ctx context.Context, communityID, roomID string, after int64, limit int) ([]platform.MessageEvent, error) {
	if h.gate != nil {
		<-h.gate
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, after)
	if h.fail > 0 {
		h.fail--
		return nil, errors.New("history unavailable")
	}
	var out []platform.MessageEvent
	for _, m := range h.msgs[roomID] {
		if m.TS > after && len(out) < limit {
			out = append(out, m)
		}
	}
	return out, nil
}

func history(room string, authorTS ...any) []platform.MessageEvent {
	var out []platform.MessageEvent
	for i := 0; i < len(authorTS); i += 2 {
		out = append(out, platform.MessageEvent{
			CommunityID: "g", RoomID: room, AuthorID: authorTS[i].(string), TS: int64(authorTS[i+1].(int)), HasContent: true,
		})
	}
	return out
}

func setup(t *testing.T, h platform.History, s store.Store, cfg Config) (*Backfiller, *ingest.Coordinator) {
	t.Helper()
	c := ingest.NewCoordinator(s, ingest.Config{FlushAttempts: 1})
	return New(NewTracker(), c, h, s, cfg), c
}

func wait(t *testing.T, b *Backfiller) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, b.Wait(ctx))
}

func aggregate(t *testing.T, s store.Store, room string) []models.AuthorCount {
	t.Helper()
	got, err := s.Aggregate(context.Background(), models.AggregateQuery{CommunityID: "g", RoomID: room})
	require.NoError(t, err)
	return got
}

func TestBackfillImportsAllPages(t *testing.T) {
	s := storetest.NewMem(t)
	h := &fakeHistory{msgs: map[string][]platform.MessageEvent{
		"r": history("r", "a", 1, "b", 2, "a", 3, "a", 4, "b", 5),
	}}
	b, _ := setup(t, h, s, Config{PageSize: 2})

	assert.True(t, b.Start(context.Background(), "g", "r"))
	wait(t, b)

	assert.True(t, b.Tracker().IsReady("g", "r"))
	assert.Equal(t, []models.AuthorCount{{AuthorID: "a", Count: 3}, {AuthorID: "b", Count: 2}}, aggregate(t, s, "r"))
	assert.Equal(t, []int64{0, 2, 4}, h.calls)
}

func TestBackfillResumesAfterLatestPoint(t *testing.T) {
	s := storetest.NewMem(t)
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, []models.Entry{
		{CommunityID: "g", RoomID: "r", AuthorID: "a", TS: 10, Valid: 1},
		{CommunityID: "g", RoomID: "r", AuthorID: "b", TS: 30, Valid: 1},
	}))
	h := &fakeHistory{msgs: map[string][]platform.MessageEvent{
		"r": history("r", "a", 10, "b", 30, "a", 40, "b", 50),
	}}
	b, _ := setup(t, h, s, Config{PageSize: 10})

	b.Start(ctx, "g", "r")
	wait(t, b)

	require.NotEmpty(t, h.calls)
	assert.Equal(t, int64(29), h.calls[0])
	assert.Equal(t, []models.AuthorCount{{AuthorID: "a", Count: 2}, {AuthorID: "b", Count: 2}}, aggregate(t, s, "r"))
}

func TestResumePointIsSnapshottedOnce(t *testing.T) {
	s := storetest.NewMem(t)
	ctx := context.Background()
	b, _ := setup(t, &fakeHistory{}, s, Config{})

	assert.Equal(t, int64(0), b.ResumePoint(ctx, "g"))
	require.NoError(t, s.Upsert(ctx, []models.Entry{{CommunityID: "g", RoomID: "r", AuthorID: "a", TS: 99, Valid: 1}}))
	assert.Equal(t, int64(0), b.ResumePoint(ctx, "g"))
}

func TestRoomNotReadyUntilImportCompletes(t *testing.T) {
	s := storetest.NewMem(t)
	h := &fakeHistory{gate: make(chan struct{}), msgs: map[string][]platform.MessageEvent{"r": history("r", "a", 1)}}
	b, _ := setup(t, h, s, Config{PageSize: 10})

	b.Start(context.Background(), "g", "r")
	assert.Equal(t, InProgress, b.Tracker().State("g", "r"))
	assert.False(t, b.Tracker().IsReady("g", "r"))
	assert.False(t, b.Tracker().IsCommunityReady("g"))

	close(h.gate)
	wait(t, b)
	assert.True(t, b.Tracker().IsReady("g", "r"))
	assert.True(t, b.Tracker().IsCommunityReady("g"))
}

func TestSecondStartIsNoop(t *testing.T) {
	h := &fakeHistory{}
	b, _ := setup(t, h, storetest.NewMem(t), Config{})
	assert.True(t, b.Start(context.Background(), "g", "r"))
	assert.False(t, b.Start(context.Background(), "g", "r"))
	wait(t, b)
	assert.Len(t, h.calls, 1)
}

func TestFetchExhaustionStillCompletes(t *testing.T) {
	h := &fakeHistory{fail: 10}
	b, _ := setup(t, h, storetest.NewMem(t), Config{FetchAttempts: 3})
	b.Start(context.Background(), "g", "r")
	wait(t, b)
	assert.Len(t, h.calls, 3)
	assert.True(t, b.Tracker().IsReady("g", "r"))
}

func TestStartSurvivesCancelledContext(t *testing.T) {
	s := storetest.NewMem(t)
	h := &fakeHistory{gate: make(chan struct{}), msgs: map[string][]platform.MessageEvent{"r": history("r", "a", 1)}}
	b, _ := setup(t, h, s, Config{PageSize: 10})

	ctx, cancel := context.WithCancel(context.Background())
	b.Start(ctx, "g", "r")
	cancel()
	close(h.gate)
	wait(t, b)
	assert.Equal(t, []models.AuthorCount{{AuthorID: "a", Count: 1}}, aggregate(t, s, "r"))
}

func TestTrackerCommunityReadiness(t *testing.T) {
	tr := NewTracker()
	assert.False(t, tr.IsCommunityReady("g"))

	tr.Discover("g", "r1")
	tr.Discover("g", "r2")
	assert.True(t, tr.Begin("g", "r1"))
	assert.False(t, tr.Begin("g", "r1"))
	tr.Complete("g", "r1")
	assert.False(t, tr.IsCommunityReady("g"))

	tr.Begin("g", "r2")
	tr.Complete("g", "r2")
	assert.True(t, tr.IsCommunityReady("g"))

	// states never regress
	assert.False(t, tr.Begin("g", "r2"))
	assert.False(t, tr.Discover("g", "r2"))
	assert.Equal(t, Complete, tr.State("g", "r2"))

	snap := tr.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "r1", snap[0].RoomID)
	assert.Equal(t, Complete, snap[0].State)
}
