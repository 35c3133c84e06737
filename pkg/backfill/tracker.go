// Package backfill imports room history and tracks which rooms are ready
// to be queried.
package backfill

import (
	"sort"
	"sync"

	"chatkat/pkg/metrics"
)

type State int

const (
	Unseen State = iota
	InProgress
	Complete
)

func (s State) String() string {
	switch s {
	case InProgress:
		return "in_progress"
	case Complete:
		return "complete"
	default:
		return "unseen"
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

type roomState struct {
	mu    sync.Mutex
	state State
}

// Tracker holds the readiness of every known room. States only move
// forward and live for the process lifetime.
type Tracker struct {
	mu          sync.RWMutex
	communities map[string]map[string]*roomState
}

func NewTracker() *Tracker {
	return &Tracker{communities: make(map[string]map[string]*roomState)}
}

func (t *Tracker) get(communityID, roomID string) *roomState {
	t.mu.RLock()
	rs := t.communities[communityID][roomID]
	t.mu.RUnlock()
	return rs
}

// Discover registers a room as unseen. Returns true if it was not known.
func (t *Tracker) Discover(communityID, roomID string) bool {
	if t.get(communityID, roomID) != nil {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	rooms, ok := t.communities[communityID]
	if !ok {
		rooms = make(map[string]*roomState)
		t.communities[communityID] = rooms
	}
	if _, ok := rooms[roomID]; ok {
		return false
	}
	rooms[roomID] = &roomState{}
	metrics.BackfillRooms.WithLabelValues(Unseen.String()).Inc()
	return true
}

// advance moves a room to state to, only from a state before it and, when
// from is not to, only from from.
func (t *Tracker) advance(communityID, roomID string, from, to State) bool {
	t.Discover(communityID, roomID)
	rs := t.get(communityID, roomID)
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.state >= to || (from != to && rs.state != from) {
		return false
	}
	metrics.BackfillRooms.WithLabelValues(rs.state.String()).Dec()
	metrics.BackfillRooms.WithLabelValues(to.String()).Inc()
	rs.state = to
	return true
}

// Begin moves a room from unseen to in_progress. It returns false when the
// room was already scheduled.
func (t *Tracker) Begin(communityID, roomID string) bool {
	return t.advance(communityID, roomID, Unseen, InProgress)
}

// Complete marks a room complete from any earlier state.
func (t *Tracker) Complete(communityID, roomID string) {
	t.advance(communityID, roomID, Complete, Complete)
}

func (t *Tracker) State(communityID, roomID string) State {
	rs := t.get(communityID, roomID)
	if rs == nil {
		return Unseen
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.state
}

func (t *Tracker) IsReady(communityID, roomID string) bool {
	return t.State(communityID, roomID) == Complete
}

// IsCommunityReady reports whether every known room of the community is
// complete. A community without known rooms is not ready.
func (t *Tracker) IsCommunityReady(communityID string) bool {
	t.mu.RLock()
	rooms := make([]*roomState, 0, len(t.communities[communityID]))
	for _, rs := range t.communities[communityID] {
		rooms = append(rooms, rs)
	}
	t.mu.RUnlock()
	if len(rooms) == 0 {
		return false
	}
	for _, rs := range rooms {
		rs.mu.Lock()
		st := rs.state
		rs.mu.Unlock()
		if st != Complete {
			return false
		}
	}
	return true
}

type RoomStatus struct {
	CommunityID string `json:"community_id"`
	RoomID      string `json:"room_id"`
	State       State  `json:"state"`
}

// Snapshot lists every known room, sorted.
func (t *Tracker) Snapshot() []RoomStatus {
	t.mu.RLock()
	out := make([]RoomStatus, 0)
	refs := make([]*roomState, 0)
	for c, rooms := range t.communities {
		for r, rs := range rooms {
			out = append(out, RoomStatus{CommunityID: c, RoomID: r})
			refs = append(refs, rs)
		}
	}
	t.mu.RUnlock()
	for i, rs := range refs {
		rs.mu.Lock()
		out[i].State = rs.state
		rs.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CommunityID != out[j].CommunityID {
			return out[i].CommunityID < out[j].CommunityID
		}
		return out[i].RoomID < out[j].RoomID
	})
	return out
}
