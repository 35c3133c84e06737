package models

import "time"

type Scope int

const (
	ScopeRoom Scope = iota
	ScopeCommunity
)

func (s Scope) String() string {
	if s == ScopeCommunity {
		return "community"
	}
	return "room"
}

// Authority is the requester's privilege inside the community.
type Authority int

const (
	AuthorityMember Authority = iota
	AuthorityOwner
)

func ParseAuthority(s string) Authority {
	if s == "owner" {
		return AuthorityOwner
	}
	return AuthorityMember
}

// Epoch is the default lower bound of a query: all recorded history.
var Epoch = time.UnixMilli(0).UTC()

// QuerySpec is a parsed ranking request.
type QuerySpec struct {
	CommunityID      string
	RoomID           string
	Scope            Scope
	Since            time.Time
	RevealIdentities bool
	HelpOnly         bool
}
