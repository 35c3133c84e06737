package platform

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeleteTimestampFromSnowflake(t *testing.T) {
	ts, err := DeleteEvent{MessageID: "175928847299117063"}.Timestamp()
	require.NoError(t, err)
	assert.Equal(t, int64(1462015105796), ts)

	ts, err = DeleteEvent{MessageID: "175928847299117063", TS: 42}.Timestamp()
	require.NoError(t, err)
	assert.Equal(t, int64(42), ts)

	_, err = DeleteEvent{}.Timestamp()
	assert.True(t, errors.Is(err, ErrMalformedEvent))
}

func TestEventDecodeAndValidate(t *testing.T) {
	var ev Event
	raw := `{"kind":"message_created","message":{"community_id":"g","room_id":"r","author_id":"a","ts":5,"has_content":true}}`
	require.NoError(t, json.Unmarshal([]byte(raw), &ev))
	require.NoError(t, ev.Validate())
	assert.Equal(t, "a", ev.Message.AuthorID)

	assert.Error(t, Event{Kind: KindMessageDeleted}.Validate())
	assert.Error(t, Event{Kind: "typing"}.Validate())
}

func TestValidateRejectsUnstorableIDs(t *testing.T) {
	bad := []Event{
		{Kind: KindMessageCreated, Message: &MessageEvent{CommunityID: "g", RoomID: "r", AuthorID: "bad author", TS: 1}},
		{Kind: KindMessageCreated, Message: &MessageEvent{CommunityID: "", RoomID: "r", AuthorID: "a", TS: 1}},
		{Kind: KindMessageCreated, Message: &MessageEvent{CommunityID: "g", RoomID: "r:1", AuthorID: "a", TS: 1}},
		{Kind: KindMessageCreated, Message: &MessageEvent{CommunityID: "g", RoomID: "r", AuthorID: "a", TS: -1}},
		{Kind: KindMessageDeleted, Delete: &DeleteEvent{CommunityID: "g:x", RoomID: "r", TS: 1}},
		{Kind: KindRoomDiscovered, Room: &RoomEvent{CommunityID: "g", RoomID: ""}},
	}
	for _, ev := range bad {
		err := ev.Validate()
		assert.True(t, errors.Is(err, ErrMalformedEvent), "%+v: %v", ev, err)
	}

	// an empty author is dropped later, not rejected
	ok := Event{Kind: KindMessageCreated, Message: &MessageEvent{CommunityID: "g", RoomID: "r", TS: 1}}
	assert.NoError(t, ok.Validate())
}
