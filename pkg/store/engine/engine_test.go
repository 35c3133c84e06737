package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatkat/pkg/models"
	"chatkat/pkg/store"
)

func TestOpenEngines(t *testing.T) {
	for _, name := range []string{store.EnginePebble, store.EngineSqlite} {
		t.Run(name, func(t *testing.T) {
			s, err := Open(Options{Engine: name, Path: t.TempDir()})
			require.NoError(t, err)
			defer s.Close()

			ctx := context.Background()
			require.NoError(t, s.Upsert(ctx, []models.Entry{{CommunityID: "g", RoomID: "r", AuthorID: "a", TS: 7, Valid: 1}}))
			ts, ok, err := s.Latest(ctx, "g")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, int64(7), ts)
		})
	}
}

func TestOpenUnknownEngine(t *testing.T) {
	_, err := Open(Options{Engine: "influx", Path: t.TempDir()})
	assert.Error(t, err)
}
