// Package engine opens the configured ledger store.
package engine

import (
	"fmt"
	"path/filepath"

	"chatkat/pkg/state/logger"
	"chatkat/pkg/store"
	"chatkat/pkg/store/pebbledb"
	"chatkat/pkg/store/sqlitedb"
)

type Options struct {
	Engine     string
	Path       string // directory holding the engine's files
	DisableWAL bool
	ReadOnly   bool
}

func Open(o Options) (store.Store, error) {
	switch o.Engine {
	case "", store.EnginePebble:
		logger.Info("store_open", "engine", store.EnginePebble, "path", o.Path)
		return pebbledb.Open(o.Path, pebbledb.Options{DisableWAL: o.DisableWAL, ReadOnly: o.ReadOnly})
	case store.EngineSqlite:
		p := filepath.Join(o.Path, "ledger.db")
		logger.Info("store_open", "engine", store.EngineSqlite, "path", p)
		return sqlitedb.Open(p)
	default:
		return nil, fmt.Errorf("unknown store engine %q", o.Engine)
	}
}
