// Package store defines the ledger storage contract shared by the engines.
package store

import (
	"context"
	"errors"

	"chatkat/pkg/models"
)

var ErrNotFound = errors.New("not found")
var ErrClosed = errors.New("store closed")

// Store is the time-indexed ledger. Upsert is idempotent per entry identity;
// nothing is ever deleted.
type Store interface {
	Upsert(ctx context.Context, entries []models.Entry) error
	// Aggregate sums Valid per author, in the order authors are first met.
	Aggregate(ctx context.Context, q models.AggregateQuery) ([]models.AuthorCount, error)
	// Latest returns the newest stored ts of a community.
	Latest(ctx context.Context, communityID string) (int64, bool, error)
	// Lookup finds the entry stored at (community, room, ts); ErrNotFound if none.
	Lookup(ctx context.Context, communityID, roomID string, ts int64) (models.Entry, error)
	// Entries lists raw entries oldest-first; limit <= 0 means no limit.
	Entries(ctx context.Context, q models.AggregateQuery, limit int) ([]models.Entry, error)
	Close() error
}

// Engine names accepted by store.engine.
const (
	EnginePebble = "pebble"
	EngineSqlite = "sqlite"
)
