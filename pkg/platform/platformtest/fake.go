// Package platformtest provides an in-memory chat platform for tests.
package platformtest

import (
	"context"
	"errors"
	"sort"
	"sync"

	"chatkat/pkg/platform"
)

type Sent struct {
	RoomID string
	Text   string
}

// Fake implements platform.Client over in-memory rooms.
type Fake struct {
	mu       sync.Mutex
	history  map[string][]platform.MessageEvent // room -> messages
	members  map[string]string                  // author -> display name
	users    map[string]string                  // author -> username
	denied   map[string]bool                    // rooms without send permission
	sent     []Sent
	sentCh   chan Sent
	FailSend bool
}

var _ platform.Client = (*Fake)(nil)

func New() *Fake {
	return &Fake{
		history: make(map[string][]platform.MessageEvent),
		members: make(map[string]string),
		users:   make(map[string]string),
		denied:  make(map[string]bool),
		sentCh:  make(chan Sent, 64),
	}
}

func (f *Fake) AddHistory(msgs ...platform.MessageEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range msgs {
		f.history[m.RoomID] = append(f.history[m.RoomID], m)
	}
	for room := range f.history {
		h := f.history[room]
		sort.SliceStable(h, func(i, j int) bool { return h[i].TS < h[j].TS })
	}
}

func (f *Fake) AddMember(authorID, displayName string) {
	f.mu.Lock()
	f.members[authorID] = displayName
	f.mu.Unlock()
}

func (f *Fake) AddUser(authorID, username string) {
	f.mu.Lock()
	f.users[authorID] = username
	f.mu.Unlock()
}

func (f *Fake) Deny(roomID string) {
	f.mu.Lock()
	f.denied[roomID] = true
	f.mu.Unlock()
}

func (f *Fake) Sent() []Sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Sent(nil), f.sent...)
}

// SentCh delivers every sent message.
func (f *Fake) SentCh() <-chan Sent { return f.sentCh }

func (f *Fake) Send(_ context.Context, roomID, text string) error {
	f.mu.Lock()
	if f.FailSend {
		f.mu.Unlock()
		return errors.New("send failed")
	}
	s := Sent{RoomID: roomID, Text: text}
	f.sent = append(f.sent, s)
	f.mu.Unlock()
	select {
	case f.sentCh <- s:
	default:
	}
	return nil
}

func (f *Fake) MessagesAfter(_ context.Context, _, roomID string, after int64, limit int) ([]platform.MessageEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []platform.MessageEvent
	for _, m := range f.history[roomID] {
		if m.TS > after && (limit <= 0 || len(out) < limit) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *Fake) Mention(authorID string) string { return platform.Mention(authorID) }

func (f *Fake) DisplayName(_ context.Context, _, authorID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n, ok := f.members[authorID]; ok {
		return n, nil
	}
	return "", platform.ErrNotMember
}

func (f *Fake) Username(_ context.Context, authorID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n, ok := f.users[authorID]; ok {
		return n, nil
	}
	return "", errors.New("unknown user")
}

func (f *Fake) CanSend(_ context.Context, _, roomID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.denied[roomID], nil
}
