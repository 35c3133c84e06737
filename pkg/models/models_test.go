package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnowflakeTime(t *testing.T) {
	// 175928847299117063 is the documented example snowflake for 2016-04-30T11:18:25.796Z
	ts, err := SnowflakeTime("175928847299117063")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2016, 4, 30, 11, 18, 25, 796_000_000, time.UTC), ts)

	_, err = SnowflakeTime("not-a-number")
	assert.Error(t, err)
}

func TestEntryIdentityIgnoresValidity(t *testing.T) {
	a := Entry{CommunityID: "g", RoomID: "r", AuthorID: "a", TS: 10, Valid: 1}
	b := a
	b.Valid = 0
	assert.Equal(t, a.Identity(), b.Identity())
}

func TestParseAuthority(t *testing.T) {
	assert.Equal(t, AuthorityOwner, ParseAuthority("owner"))
	assert.Equal(t, AuthorityMember, ParseAuthority(""))
	assert.Equal(t, AuthorityMember, ParseAuthority("admin"))
}
