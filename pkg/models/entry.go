package models

import "time"

// Entry is one ledger point: a message by AuthorID in RoomID at TS.
// Valid is 1 while the message exists and 0 once it has been retracted.
type Entry struct {
	CommunityID string `json:"community_id"`
	RoomID      string `json:"room_id"`
	AuthorID    string `json:"author_id"`
	TS          int64  `json:"ts"` // unix milliseconds
	Valid       int    `json:"valid"`
}

// Identity is the upsert key of an entry.
type Identity struct {
	CommunityID string
	RoomID      string
	AuthorID    string
	TS          int64
}

func (e Entry) Identity() Identity {
	return Identity{CommunityID: e.CommunityID, RoomID: e.RoomID, AuthorID: e.AuthorID, TS: e.TS}
}

func (e Entry) Time() time.Time { return time.UnixMilli(e.TS).UTC() }

// AuthorCount is one group of an aggregate query.
type AuthorCount struct {
	AuthorID string `json:"author_id"`
	Count    int64  `json:"count"`
}

// AggregateQuery selects the entries summed by Store.Aggregate. An empty
// RoomID aggregates the whole community.
type AggregateQuery struct {
	CommunityID string
	RoomID      string
	SinceMs     int64
}
