package capture

import (
	"encoding/csv"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatkat/pkg/platform"
)

func readRows(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestCaptureWritesRowsUntilClosed(t *testing.T) {
	w, err := Open(t.TempDir(), 0, time.Unix(1700000000, 0))
	require.NoError(t, err)

	w.Add(platform.MessageEvent{CommunityID: "g", RoomID: "r", AuthorID: "a", TS: 1, HasContent: true, Content: "hello, \"world\"\nbye"})
	w.Add(platform.MessageEvent{CommunityID: "g", RoomID: "r", AuthorID: "a", TS: 2})
	require.NoError(t, w.Close())
	w.Add(platform.MessageEvent{CommunityID: "g", RoomID: "r", AuthorID: "a", TS: 3, HasContent: true})
	require.NoError(t, w.Close())

	rows := readRows(t, w.Path())
	require.Len(t, rows, 2)
	assert.Equal(t, header, rows[0])
	assert.Equal(t, "hello, \"world\"\nbye", rows[1][9])
	assert.Contains(t, w.Path(), "1700000000_capture.csv")
}

func TestCaptureSizeLimit(t *testing.T) {
	w, err := Open(t.TempDir(), 1, time.Now())
	require.NoError(t, err)
	w.Add(platform.MessageEvent{CommunityID: "g", RoomID: "r", AuthorID: "a", TS: 1, HasContent: true})
	require.NoError(t, w.Close())
	assert.Len(t, readRows(t, w.Path()), 1)
}

func TestNilWriterIsSafe(t *testing.T) {
	var w *Writer
	w.Add(platform.MessageEvent{HasContent: true})
	assert.NoError(t, w.Close())
}
