package state

import "path/filepath"

type Paths struct {
	DB      string
	Store   string // ledger engine files (pebble dir or sqlite file parent)
	State   string
	Capture string // csv captures of observed messages
	Crash   string
}

func PathsFor(dbPath string) Paths {
	statePath := filepath.Join(dbPath, "state")
	return Paths{
		DB:    dbPath,
		Store: filepath.Join(dbPath, "store"),

		State:   statePath,
		Capture: filepath.Join(statePath, "capture"),
		Crash:   filepath.Join(statePath, "crash"),
	}
}

func StorePath(dbPath string) string   { return PathsFor(dbPath).Store }
func CapturePath(dbPath string) string { return PathsFor(dbPath).Capture }
func CrashPath(dbPath string) string   { return PathsFor(dbPath).Crash }
