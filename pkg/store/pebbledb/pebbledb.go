// Package pebbledb stores the ledger in a pebble LSM.
package pebbledb

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"

	"chatkat/pkg/models"
	"chatkat/pkg/state/logger"
	"chatkat/pkg/store"
	"chatkat/pkg/store/keys"
)

type Options struct {
	// FS overrides the filesystem; nil uses the OS.
	FS         vfs.FS
	DisableWAL bool
	ReadOnly   bool
}

type DB struct {
	client      *pebble.DB
	path        string
	walDisabled bool

	// serializes upserts so the lc index never moves backwards
	writeMu sync.Mutex
}

var _ store.Store = (*DB)(nil)

// opens/creates pebble DB with WAL settings
func Open(path string, o Options) (*DB, error) {
	opts := &pebble.Options{
		DisableWAL: o.DisableWAL,
		ReadOnly:   o.ReadOnly,
	}
	if o.FS != nil {
		opts.FS = o.FS
	}
	if o.DisableWAL {
		logger.Warn("durability_disabled", "durability", "pebble WAL disabled")
	}
	client, err := pebble.Open(path, opts)
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "error", err)
		return nil, err
	}
	return &DB{client: client, path: path, walDisabled: o.DisableWAL}, nil
}

func (d *DB) writeOpt() *pebble.WriteOptions {
	if d.walDisabled {
		return pebble.NoSync
	}
	return pebble.Sync
}

func (d *DB) Close() error {
	if d.client == nil {
		return nil
	}
	if err := d.client.Close(); err != nil {
		return err
	}
	d.client = nil
	return nil
}

func (d *DB) Upsert(ctx context.Context, entries []models.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if d.client == nil {
		return store.ErrClosed
	}
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	batch := d.client.NewBatch()
	defer batch.Close()

	newest := make(map[string]int64)
	for _, e := range entries {
		k, err := keys.GenEntryKey(e)
		if err != nil {
			return err
		}
		if err := batch.Set([]byte(k), keys.EncodeValid(e.Valid), nil); err != nil {
			return fmt.Errorf("batch set: %w", err)
		}
		if cur, ok := newest[e.CommunityID]; !ok || e.TS > cur {
			newest[e.CommunityID] = e.TS
		}
	}
	for community, ts := range newest {
		prev, ok, err := d.latest(community)
		if err != nil {
			return err
		}
		if ok && prev >= ts {
			continue
		}
		if err := batch.Set([]byte(keys.GenCommunityLC(community)), []byte(keys.PadTS(ts)), nil); err != nil {
			return fmt.Errorf("batch set lc: %w", err)
		}
	}
	if err := d.client.Apply(batch, d.writeOpt()); err != nil {
		logger.Error("pebble_apply_batch_failed", "error", err)
		return err
	}
	return nil
}

func (d *DB) Latest(ctx context.Context, communityID string) (int64, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	if d.client == nil {
		return 0, false, store.ErrClosed
	}
	return d.latest(communityID)
}

func (d *DB) latest(communityID string) (int64, bool, error) {
	v, closer, err := d.client.Get([]byte(keys.GenCommunityLC(communityID)))
	if errors.Is(err, pebble.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	defer closer.Close()
	ts, err := keys.ParseTS(v)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt lc index for %s: %w", communityID, err)
	}
	return ts, true, nil
}

func (d *DB) Lookup(ctx context.Context, communityID, roomID string, ts int64) (models.Entry, error) {
	if err := ctx.Err(); err != nil {
		return models.Entry{}, err
	}
	if d.client == nil {
		return models.Entry{}, store.ErrClosed
	}
	prefix := []byte(keys.GenRoomTSPrefix(communityID, roomID, ts))
	iter, err := d.client.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: keys.PrefixUpperBound(string(prefix))})
	if err != nil {
		return models.Entry{}, err
	}
	defer iter.Close()
	if !iter.First() {
		if err := iter.Error(); err != nil {
			return models.Entry{}, err
		}
		return models.Entry{}, store.ErrNotFound
	}
	return keys.ParseEntry(iter.Key(), iter.Value())
}

func (d *DB) Aggregate(ctx context.Context, q models.AggregateQuery) ([]models.AuthorCount, error) {
	var out []models.AuthorCount
	pos := make(map[string]int)
	err := d.scan(ctx, q, func(e models.Entry) bool {
		i, ok := pos[e.AuthorID]
		if !ok {
			i = len(out)
			pos[e.AuthorID] = i
			out = append(out, models.AuthorCount{AuthorID: e.AuthorID})
		}
		out[i].Count += int64(e.Valid)
		return true
	})
	return out, err
}

func (d *DB) Entries(ctx context.Context, q models.AggregateQuery, limit int) ([]models.Entry, error) {
	var out []models.Entry
	err := d.scan(ctx, q, func(e models.Entry) bool {
		out = append(out, e)
		return limit <= 0 || len(out) < limit
	})
	return out, err
}

// scan walks every entry matching q, room by room, skipping points older
// than q.SinceMs with a seek. fn returns false to stop.
func (d *DB) scan(ctx context.Context, q models.AggregateQuery, fn func(models.Entry) bool) error {
	if d.client == nil {
		return store.ErrClosed
	}
	var prefix string
	if q.RoomID != "" {
		prefix = keys.GenRoomPrefix(q.CommunityID, q.RoomID)
	} else {
		prefix = keys.GenCommunityPrefix(q.CommunityID)
	}
	iter, err := d.client.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefix),
		UpperBound: keys.PrefixUpperBound(prefix),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	n := 0
	for valid := iter.First(); valid; {
		if n++; n%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		e, perr := keys.ParseEntry(iter.Key(), iter.Value())
		if perr != nil {
			logger.Warn("ledger_key_skipped", "key", string(iter.Key()), "error", perr)
			valid = iter.Next()
			continue
		}
		if e.TS < q.SinceMs {
			seek := []byte(keys.GenRoomTSPrefix(e.CommunityID, e.RoomID, q.SinceMs))
			if bytes.Compare(seek, iter.Key()) > 0 {
				valid = iter.SeekGE(seek)
				continue
			}
		}
		if !fn(e) {
			break
		}
		valid = iter.Next()
	}
	return iter.Error()
}
