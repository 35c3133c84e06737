// Package storetest provides stores for tests of packages built on the ledger.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/cockroachdb/pebble/vfs"

	"chatkat/pkg/models"
	"chatkat/pkg/store"
	"chatkat/pkg/store/pebbledb"
)

var ErrInjected = errors.New("injected store failure")

// NewMem opens a pebble ledger on an in-memory filesystem.
func NewMem(t testing.TB) *pebbledb.DB {
	t.Helper()
	db, err := pebbledb.Open("ledger", pebbledb.Options{FS: vfs.NewMem()})
	if err != nil {
		t.Fatalf("open mem ledger: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// Flaky wraps a store and fails chosen operations on demand.
type Flaky struct {
	store.Store

	mu            sync.Mutex
	failUpserts   int // remaining failures; negative fails forever
	failAggregate bool
	failLookup    bool
	upserts       int
}

func NewFlaky(s store.Store) *Flaky { return &Flaky{Store: s} }

func (f *Flaky) FailUpserts(n int) {
	f.mu.Lock()
	f.failUpserts = n
	f.mu.Unlock()
}

func (f *Flaky) FailAggregate(v bool) {
	f.mu.Lock()
	f.failAggregate = v
	f.mu.Unlock()
}

func (f *Flaky) FailLookup(v bool) {
	f.mu.Lock()
	f.failLookup = v
	f.mu.Unlock()
}

// Upserts counts upsert calls, failed or not.
func (f *Flaky) Upserts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.upserts
}

func (f *Flaky) Upsert(ctx context.Context, entries []models.Entry) error {
	f.mu.Lock()
	f.upserts++
	fail := f.failUpserts != 0
	if f.failUpserts > 0 {
		f.failUpserts--
	}
	f.mu.Unlock()
	if fail {
		return ErrInjected
	}
	return f.Store.Upsert(ctx, entries)
}

func (f *Flaky) Aggregate(ctx context.Context, q models.AggregateQuery) ([]models.AuthorCount, error) {
	f.mu.Lock()
	fail := f.failAggregate
	f.mu.Unlock()
	if fail {
		return nil, ErrInjected
	}
	return f.Store.Aggregate(ctx, q)
}

func (f *Flaky) Lookup(ctx context.Context, communityID, roomID string, ts int64) (models.Entry, error) {
	f.mu.Lock()
	fail := f.failLookup
	f.mu.Unlock()
	if fail {
		return models.Entry{}, ErrInjected
	}
	return f.Store.Lookup(ctx, communityID, roomID, ts)
}
