package platform

import (
	"context"
	"errors"
)

// ErrNotMember is returned by Directory.DisplayName for authors that have
// left the community.
var ErrNotMember = errors.New("not a community member")

type Sender interface {
	Send(ctx context.Context, roomID, text string) error
}

type History interface {
	// MessagesAfter returns up to limit messages of a room strictly newer
	// than after (unix ms), oldest first.
	MessagesAfter(ctx context.Context, communityID, roomID string, after int64, limit int) ([]MessageEvent, error)
}

type Directory interface {
	Mention(authorID string) string
	DisplayName(ctx context.Context, communityID, authorID string) (string, error)
	Username(ctx context.Context, authorID string) (string, error)
}

type Permissions interface {
	CanSend(ctx context.Context, communityID, roomID string) (bool, error)
}

// Client bundles every capability; the bridge implements all of them.
type Client interface {
	Sender
	History
	Directory
	Permissions
}

// Mention formats the platform's direct mention of an author.
func Mention(authorID string) string {
	return "<@" + authorID + ">"
}
