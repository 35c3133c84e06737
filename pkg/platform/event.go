// Package platform describes what the ledger needs from the chat platform.
package platform

import (
	"errors"
	"fmt"

	"chatkat/pkg/models"
	"chatkat/pkg/store/keys"
)

type EventKind string

const (
	KindMessageCreated EventKind = "message_created"
	KindMessageDeleted EventKind = "message_deleted"
	KindRoomDiscovered EventKind = "room_discovered"
)

// Event is one notification from the platform. Exactly one payload is set,
// matching Kind.
type Event struct {
	Kind    EventKind     `json:"kind"`
	Message *MessageEvent `json:"message,omitempty"`
	Delete  *DeleteEvent  `json:"delete,omitempty"`
	Room    *RoomEvent    `json:"room,omitempty"`
}

var ErrMalformedEvent = errors.New("malformed event")

func (e Event) Validate() error {
	switch e.Kind {
	case KindMessageCreated:
		if e.Message == nil {
			return fmt.Errorf("%w: %s without message", ErrMalformedEvent, e.Kind)
		}
		return e.Message.validate()
	case KindMessageDeleted:
		if e.Delete == nil {
			return fmt.Errorf("%w: %s without delete", ErrMalformedEvent, e.Kind)
		}
		return e.Delete.validate()
	case KindRoomDiscovered:
		if e.Room == nil {
			return fmt.Errorf("%w: %s without room", ErrMalformedEvent, e.Kind)
		}
		return validateRoom(e.Room.CommunityID, e.Room.RoomID)
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrMalformedEvent, e.Kind)
	}
}

func validateRoom(communityID, roomID string) error {
	if err := keys.ValidateID("community", communityID); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}
	if err := keys.ValidateID("room", roomID); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}
	return nil
}

// validate checks the ledger identity of m. An empty author is left to the
// coordinator, which drops it.
func (m *MessageEvent) validate() error {
	if err := validateRoom(m.CommunityID, m.RoomID); err != nil {
		return err
	}
	if m.AuthorID != "" {
		if err := keys.ValidateID("author", m.AuthorID); err != nil {
			return fmt.Errorf("%w: %w", ErrMalformedEvent, err)
		}
	}
	if err := keys.ValidateTS(m.TS); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}
	return nil
}

func (d *DeleteEvent) validate() error {
	if err := validateRoom(d.CommunityID, d.RoomID); err != nil {
		return err
	}
	if err := keys.ValidateTS(d.TS); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}
	return nil
}

// MessageEvent is a posted message. Content is only kept for command
// parsing and capture; the ledger stores HasContent.
type MessageEvent struct {
	CommunityID string `json:"community_id"`
	RoomID      string `json:"room_id"`
	MessageID   string `json:"message_id,omitempty"`
	AuthorID    string `json:"author_id"`
	AuthorName  string `json:"author_name,omitempty"`
	Bot         bool   `json:"bot,omitempty"`
	TS          int64  `json:"ts"` // unix milliseconds
	HasContent  bool   `json:"has_content"`
	Content     string `json:"content,omitempty"`
	// Authority is the author's privilege in the community ("owner" or "member").
	Authority string `json:"authority,omitempty"`
}

// DeleteEvent is a deletion notice. The platform does not say who wrote the
// message; TS may be omitted when MessageID is a snowflake.
type DeleteEvent struct {
	CommunityID string `json:"community_id"`
	RoomID      string `json:"room_id"`
	MessageID   string `json:"message_id,omitempty"`
	TS          int64  `json:"ts,omitempty"`
}

// Timestamp returns TS, deriving it from the snowflake message id when unset.
func (d DeleteEvent) Timestamp() (int64, error) {
	if d.TS > 0 {
		return d.TS, nil
	}
	if d.MessageID == "" {
		return 0, fmt.Errorf("%w: deletion without ts or message id", ErrMalformedEvent)
	}
	t, err := models.SnowflakeTime(d.MessageID)
	if err != nil {
		return 0, err
	}
	return t.UnixMilli(), nil
}

type RoomEvent struct {
	CommunityID string `json:"community_id"`
	RoomID      string `json:"room_id"`
}
