package ingest

import (
	"sort"
	"sync"

	"chatkat/pkg/models"
)

// Batch coalesces entries by identity until flushed; the last write of an
// identity wins.
type Batch struct {
	mu      sync.Mutex
	pending map[models.Identity]models.Entry
	// identities taken by the flush in progress
	inFlight map[models.Identity]struct{}

	// one flush in flight per batch
	flushMu sync.Mutex
}

func NewBatch() *Batch {
	return &Batch{pending: make(map[models.Identity]models.Entry)}
}

func (b *Batch) Put(e models.Entry) {
	b.mu.Lock()
	b.pending[e.Identity()] = e
	b.mu.Unlock()
}

func (b *Batch) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// take swaps out the pending entries, sorted by identity.
func (b *Batch) take() []models.Entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.takeLocked()
}

func (b *Batch) takeLocked() []models.Entry {
	if len(b.pending) == 0 {
		return nil
	}
	out := make([]models.Entry, 0, len(b.pending))
	for _, e := range b.pending {
		out = append(out, e)
	}
	b.pending = make(map[models.Identity]models.Entry)
	sort.Slice(out, func(i, j int) bool { return lessIdentity(out[i], out[j]) })
	return out
}

// takeInFlight is take, remembering the identities until clearInFlight.
func (b *Batch) takeInFlight() []models.Entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.takeLocked()
	if len(out) == 0 {
		return out
	}
	b.inFlight = make(map[models.Identity]struct{}, len(out))
	for _, e := range out {
		b.inFlight[e.Identity()] = struct{}{}
	}
	return out
}

func (b *Batch) clearInFlight() {
	b.mu.Lock()
	b.inFlight = nil
	b.mu.Unlock()
}

// putIfHeld stores e only when its identity is pending or being flushed.
func (b *Batch) putIfHeld(e models.Entry) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := e.Identity()
	_, pending := b.pending[id]
	_, flying := b.inFlight[id]
	if !pending && !flying {
		return false
	}
	b.pending[id] = e
	return true
}

// mergeBack returns unflushed entries to the batch. Entries written since
// they were taken are newer and stay.
func (b *Batch) mergeBack(entries []models.Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, e := range entries {
		id := e.Identity()
		if _, ok := b.pending[id]; ok {
			continue
		}
		b.pending[id] = e
	}
}

// find returns a pending entry at (community, room, ts) regardless of author.
func (b *Batch) find(communityID, roomID string, ts int64) (models.Entry, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, e := range b.pending {
		if id.TS == ts && id.RoomID == roomID && id.CommunityID == communityID {
			return e, true
		}
	}
	return models.Entry{}, false
}

func lessIdentity(a, b models.Entry) bool {
	if a.CommunityID != b.CommunityID {
		return a.CommunityID < b.CommunityID
	}
	if a.RoomID != b.RoomID {
		return a.RoomID < b.RoomID
	}
	if a.TS != b.TS {
		return a.TS < b.TS
	}
	return a.AuthorID < b.AuthorID
}
