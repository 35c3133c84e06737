package ingest

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatkat/pkg/models"
	"chatkat/pkg/platform"
	"chatkat/pkg/store/storetest"
)

func msg(room, author string, ts int64) platform.MessageEvent {
	return platform.MessageEvent{CommunityID: "g", RoomID: room, AuthorID: author, TS: ts, HasContent: true}
}

func count(t *testing.T, c *Coordinator, room string) []models.AuthorCount {
	t.Helper()
	got, err := c.store.Aggregate(context.Background(), models.AggregateQuery{CommunityID: "g", RoomID: room})
	require.NoError(t, err)
	return got
}

func TestRecordDropsBotsAndAnonymous(t *testing.T) {
	c := NewCoordinator(storetest.NewMem(t), Config{})

	bot := msg("r", "b", 1)
	bot.Bot = true
	assert.False(t, c.Record(bot))
	assert.False(t, c.Record(msg("r", "", 2)))
	assert.True(t, c.Record(msg("r", "a", 3)))
	assert.Equal(t, 1, c.Stats().LivePending)
}

func TestRecordWithoutContentIsInvalid(t *testing.T) {
	c := NewCoordinator(storetest.NewMem(t), Config{})
	ev := msg("r", "a", 1)
	ev.HasContent = false
	c.Record(ev)
	require.NoError(t, c.Flush(context.Background()))
	assert.Equal(t, []models.AuthorCount{{AuthorID: "a", Count: 0}}, count(t, c, "r"))
}

func TestBatchCoalescesSameIdentity(t *testing.T) {
	flaky := storetest.NewFlaky(storetest.NewMem(t))
	c := NewCoordinator(flaky, Config{})

	c.Record(msg("r", "a", 1))
	c.Record(msg("r", "a", 1))
	c.Submit(Live, models.Entry{CommunityID: "g", RoomID: "r", AuthorID: "a", TS: 1, Valid: 0})
	assert.Equal(t, 1, c.Stats().LivePending)

	require.NoError(t, c.Flush(context.Background()))
	assert.Equal(t, 1, flaky.Upserts())
	assert.Equal(t, []models.AuthorCount{{AuthorID: "a", Count: 0}}, count(t, c, "r"))
}

func TestBackfillAndLiveDoNotDoubleCount(t *testing.T) {
	c := NewCoordinator(storetest.NewMem(t), Config{})
	ctx := context.Background()

	c.RecordTo(Backfill("g", "r"), msg("r", "a", 10))
	c.Record(msg("r", "a", 10))
	c.Record(msg("r", "a", 11))
	require.NoError(t, c.Flush(ctx))
	require.NoError(t, c.FlushRoom(ctx, "g", "r"))

	assert.Equal(t, []models.AuthorCount{{AuthorID: "a", Count: 2}}, count(t, c, "r"))
	assert.Equal(t, 0, c.Stats().BackfillBatches)
}

func TestFlushRetriesThenMergesBack(t *testing.T) {
	flaky := storetest.NewFlaky(storetest.NewMem(t))
	c := NewCoordinator(flaky, Config{FlushAttempts: 2})
	ctx := context.Background()

	c.Record(msg("r", "a", 1))
	flaky.FailUpserts(2)
	require.Error(t, c.Flush(ctx))
	assert.Equal(t, 2, flaky.Upserts())
	assert.Equal(t, 1, c.Stats().LivePending)

	// a newer write of the same identity survives the merge back
	c.Submit(Live, models.Entry{CommunityID: "g", RoomID: "r", AuthorID: "a", TS: 1, Valid: 0})
	require.NoError(t, c.Flush(ctx))
	assert.Equal(t, []models.AuthorCount{{AuthorID: "a", Count: 0}}, count(t, c, "r"))
}

func TestMergeBackKeepsNewerWrites(t *testing.T) {
	b := NewBatch()
	b.Put(models.Entry{CommunityID: "g", RoomID: "r", AuthorID: "a", TS: 1, Valid: 1})
	taken := b.take()
	b.Put(models.Entry{CommunityID: "g", RoomID: "r", AuthorID: "a", TS: 1, Valid: 0})
	b.mergeBack(taken)

	got := b.take()
	require.Len(t, got, 1)
	assert.Equal(t, 0, got[0].Valid)
}

func TestFailedRoomFlushMovesToLive(t *testing.T) {
	flaky := storetest.NewFlaky(storetest.NewMem(t))
	c := NewCoordinator(flaky, Config{FlushAttempts: 1})
	ctx := context.Background()

	c.RecordTo(Backfill("g", "r"), msg("r", "a", 5))
	flaky.FailUpserts(1)
	require.Error(t, c.FlushRoom(ctx, "g", "r"))

	s := c.Stats()
	assert.Equal(t, 0, s.BackfillBatches)
	assert.Equal(t, 1, s.LivePending)
	assert.Equal(t, uint64(1), s.FlushFailures)

	require.NoError(t, c.Flush(ctx))
	assert.Equal(t, []models.AuthorCount{{AuthorID: "a", Count: 1}}, count(t, c, "r"))
}

func TestPendingSeesUnflushedEntries(t *testing.T) {
	c := NewCoordinator(storetest.NewMem(t), Config{})
	c.Record(msg("r", "alice", 7))
	c.RecordTo(Backfill("g", "r2"), msg("r2", "bob", 8))

	e, ok := c.Pending("g", "r", 7)
	require.True(t, ok)
	assert.Equal(t, "alice", e.AuthorID)

	e, ok = c.Pending("g", "r2", 8)
	require.True(t, ok)
	assert.Equal(t, "bob", e.AuthorID)

	_, ok = c.Pending("g", "r", 8)
	assert.False(t, ok)
}

func TestConcurrentRecordAndFlush(t *testing.T) {
	c := NewCoordinator(storetest.NewMem(t), Config{})
	ctx := context.Background()

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				c.Record(msg("r", "a", int64(w*1000+i)))
				if i%10 == 0 {
					_ = c.Flush(ctx)
				}
			}
		}(w)
	}
	wg.Wait()
	require.NoError(t, c.Flush(ctx))
	assert.Equal(t, []models.AuthorCount{{AuthorID: "a", Count: 200}}, count(t, c, "r"))
}

func TestStopFlushesPending(t *testing.T) {
	c := NewCoordinator(storetest.NewMem(t), Config{FlushInterval: 1e9})
	c.Start()
	c.Record(msg("r", "a", 1))
	require.NoError(t, c.Stop(context.Background()))
	assert.Equal(t, 0, c.Stats().LivePending)
	assert.Equal(t, []models.AuthorCount{{AuthorID: "a", Count: 1}}, count(t, c, "r"))
}

func TestInvalidIDsDoNotBlockFlush(t *testing.T) {
	c := NewCoordinator(storetest.NewMem(t), Config{FlushAttempts: 2})
	ctx := context.Background()

	assert.False(t, c.Record(msg("r", "bad author", 1)))
	assert.False(t, c.Record(platform.MessageEvent{CommunityID: "", RoomID: "r", AuthorID: "a", TS: 2}))
	assert.False(t, c.RecordTo(Backfill("g", "r"), msg("r:x", "a", 3)))
	assert.False(t, c.Record(msg("r", "a", -4)))
	assert.True(t, c.Record(msg("r", "a", 10)))

	// entries submitted directly are screened at flush time
	c.Submit(Live, models.Entry{CommunityID: "g", RoomID: "r", AuthorID: "x y", TS: 11, Valid: 1})
	assert.Equal(t, 2, c.Stats().LivePending)

	require.NoError(t, c.Flush(ctx))
	assert.Equal(t, 0, c.Stats().LivePending)
	assert.Equal(t, []models.AuthorCount{{AuthorID: "a", Count: 1}}, count(t, c, "r"))

	c.Record(msg("r", "a", 12))
	require.NoError(t, c.Flush(ctx))
	assert.Equal(t, []models.AuthorCount{{AuthorID: "a", Count: 2}}, count(t, c, "r"))
}

func TestLiveWriteOfBackfilledIdentityJoinsRoomBatch(t *testing.T) {
	c := NewCoordinator(storetest.NewMem(t), Config{})
	ctx := context.Background()

	c.RecordTo(Backfill("g", "r"), msg("r", "a", 7))
	c.Submit(Live, models.Entry{CommunityID: "g", RoomID: "r", AuthorID: "a", TS: 7, Valid: 0})
	s := c.Stats()
	assert.Equal(t, 0, s.LivePending)
	assert.Equal(t, 1, s.BackfillPending)

	require.NoError(t, c.Flush(ctx))
	require.NoError(t, c.FlushRoom(ctx, "g", "r"))
	assert.Equal(t, []models.AuthorCount{{AuthorID: "a", Count: 0}}, count(t, c, "r"))
}

func TestBatchHoldsIdentitiesWhileFlushing(t *testing.T) {
	b := NewBatch()
	e := models.Entry{CommunityID: "g", RoomID: "r", AuthorID: "a", TS: 7, Valid: 1}
	b.Put(e)

	taken := b.takeInFlight()
	require.Len(t, taken, 1)
	tomb := e
	tomb.Valid = 0
	assert.True(t, b.putIfHeld(tomb))
	assert.Equal(t, 1, b.Len())

	b.clearInFlight()
	other := e
	other.TS = 8
	assert.False(t, b.putIfHeld(other))

	left := b.take()
	require.Len(t, left, 1)
	assert.Equal(t, 0, left[0].Valid)
}
