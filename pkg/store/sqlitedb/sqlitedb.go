// Package sqlitedb stores the ledger in a sqlite table.
package sqlitedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"chatkat/pkg/models"
	"chatkat/pkg/store"
	"chatkat/pkg/store/keys"
	"chatkat/pkg/store/sqlitedb/migrations"
)

type DB struct {
	db *sql.DB
}

var _ store.Store = (*DB)(nil)

// Open opens (creating if needed) the database file and applies migrations.
// ":memory:" opens a private in-memory database.
func Open(path string) (*DB, error) {
	var dsn string
	if path == ":memory:" {
		dsn = "file::memory:"
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve database path: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", filepath.ToSlash(abs))
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one writer; in-memory databases are per connection
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &DB{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to initialise migrate driver: %w", err)
	}
	src, err := iofs.New(migrations.Files, ".")
	if err != nil {
		return fmt.Errorf("failed to load embedded migrations: %w", err)
	}
	defer func() { _ = src.Close() }()

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

func (d *DB) Close() error {
	if d.db == nil {
		return nil
	}
	err := d.db.Close()
	d.db = nil
	return err
}

const upsertSQL = `INSERT INTO ledger (community_id, room_id, ts, author_id, valid)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (community_id, room_id, ts, author_id) DO UPDATE SET valid = excluded.valid`

func (d *DB) Upsert(ctx context.Context, entries []models.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	if d.db == nil {
		return store.ErrClosed
	}
	for _, e := range entries {
		if _, err := keys.GenEntryKey(e); err != nil {
			return err
		}
	}
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, upsertSQL)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()
	for _, e := range entries {
		valid := 0
		if e.Valid != 0 {
			valid = 1
		}
		if _, err := stmt.ExecContext(ctx, e.CommunityID, e.RoomID, e.TS, e.AuthorID, valid); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				return fmt.Errorf("failed to upsert entry: %w (rollback error: %w)", err, rbErr)
			}
			return fmt.Errorf("failed to upsert entry: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit upsert: %w", err)
	}
	return nil
}

func (d *DB) Latest(ctx context.Context, communityID string) (int64, bool, error) {
	if d.db == nil {
		return 0, false, store.ErrClosed
	}
	var ts sql.NullInt64
	err := d.db.QueryRowContext(ctx, `SELECT MAX(ts) FROM ledger WHERE community_id = ?`, communityID).Scan(&ts)
	if err != nil {
		return 0, false, fmt.Errorf("failed to query latest: %w", err)
	}
	return ts.Int64, ts.Valid, nil
}

func (d *DB) Lookup(ctx context.Context, communityID, roomID string, ts int64) (models.Entry, error) {
	if d.db == nil {
		return models.Entry{}, store.ErrClosed
	}
	e := models.Entry{CommunityID: communityID, RoomID: roomID, TS: ts}
	err := d.db.QueryRowContext(ctx,
		`SELECT author_id, valid FROM ledger WHERE community_id = ? AND room_id = ? AND ts = ? ORDER BY author_id LIMIT 1`,
		communityID, roomID, ts).Scan(&e.AuthorID, &e.Valid)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Entry{}, store.ErrNotFound
	}
	if err != nil {
		return models.Entry{}, fmt.Errorf("failed to look up entry: %w", err)
	}
	return e, nil
}

func where(q models.AggregateQuery) (string, []any) {
	clauses := []string{"community_id = ?", "ts >= ?"}
	args := []any{q.CommunityID, q.SinceMs}
	if q.RoomID != "" {
		clauses = append(clauses, "room_id = ?")
		args = append(args, q.RoomID)
	}
	return strings.Join(clauses, " AND "), args
}

// Aggregate orders groups by the first (room, ts) an author appears at, the
// same order the pebble engine meets them in.
func (d *DB) Aggregate(ctx context.Context, q models.AggregateQuery) ([]models.AuthorCount, error) {
	if d.db == nil {
		return nil, store.ErrClosed
	}
	cond, args := where(q)
	query := `SELECT author_id, SUM(valid), MIN(room_id || ':' || printf('%020d', ts)) AS first_seen
FROM ledger WHERE ` + cond + `
GROUP BY author_id ORDER BY first_seen, author_id`
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate: %w", err)
	}
	defer rows.Close()

	var out []models.AuthorCount
	for rows.Next() {
		var ac models.AuthorCount
		var first string
		if err := rows.Scan(&ac.AuthorID, &ac.Count, &first); err != nil {
			return nil, fmt.Errorf("failed to scan aggregate: %w", err)
		}
		out = append(out, ac)
	}
	return out, rows.Err()
}

func (d *DB) Entries(ctx context.Context, q models.AggregateQuery, limit int) ([]models.Entry, error) {
	if d.db == nil {
		return nil, store.ErrClosed
	}
	cond, args := where(q)
	query := `SELECT community_id, room_id, author_id, ts, valid FROM ledger WHERE ` + cond + ` ORDER BY room_id, ts, author_id`
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	defer rows.Close()

	var out []models.Entry
	for rows.Next() {
		var e models.Entry
		if err := rows.Scan(&e.CommunityID, &e.RoomID, &e.AuthorID, &e.TS, &e.Valid); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
