package keys

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatkat/pkg/models"
)

func TestEntryKeyRoundTrip(t *testing.T) {
	cases := []models.Entry{
		{CommunityID: "g1", RoomID: "c1", AuthorID: "a1", TS: 0, Valid: 1},
		{CommunityID: "410234", RoomID: "98765", AuthorID: "u_x-9.z", TS: 1700000000123, Valid: 0},
	}
	for _, c := range cases {
		k, err := GenEntryKey(c)
		require.NoError(t, err)

		got, err := ParseEntry([]byte(k), EncodeValid(c.Valid))
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}
}

func TestGenEntryKeyRejectsSeparators(t *testing.T) {
	_, err := GenEntryKey(models.Entry{CommunityID: "g", RoomID: "a:b", AuthorID: "x", TS: 1})
	assert.True(t, errors.Is(err, ErrInvalidID))

	_, err = GenEntryKey(models.Entry{CommunityID: "g", RoomID: "r", AuthorID: "", TS: 1})
	assert.Error(t, err)

	_, err = GenEntryKey(models.Entry{CommunityID: "g", RoomID: "r", AuthorID: "a", TS: -5})
	assert.Error(t, err)
}

func TestKeysSortByTime(t *testing.T) {
	early, _ := GenEntryKey(models.Entry{CommunityID: "g", RoomID: "r", AuthorID: "z", TS: 9})
	late, _ := GenEntryKey(models.Entry{CommunityID: "g", RoomID: "r", AuthorID: "a", TS: 10})
	assert.Less(t, early, late)
	assert.Less(t, GenRoomTSPrefix("g", "r", 10), late)
}

func TestPrefixUpperBound(t *testing.T) {
	assert.Equal(t, []byte("l:g;"), PrefixUpperBound("l:g:"))
	assert.Equal(t, []byte{0x01}, PrefixUpperBound(string([]byte{0x00, 0xff})))
	assert.Nil(t, PrefixUpperBound(string([]byte{0xff})))
}
