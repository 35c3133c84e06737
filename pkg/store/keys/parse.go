package keys

import (
	"fmt"
	"strconv"
	"strings"

	"chatkat/pkg/models"
)

type EntryKeyParts struct {
	CommunityID string
	RoomID      string
	TS          int64
	AuthorID    string
}

// ParseEntryKey splits l:<community>:<room>:<ts>:<author>.
func ParseEntryKey(key string) (EntryKeyParts, error) {
	parts := strings.Split(key, ":")
	if len(parts) != 5 || parts[0] != "l" {
		return EntryKeyParts{}, fmt.Errorf("invalid entry key: %q", key)
	}
	ts, err := parsePaddedInt(parts[3], TSPadWidth)
	if err != nil {
		return EntryKeyParts{}, fmt.Errorf("invalid entry key ts %q: %w", key, err)
	}
	return EntryKeyParts{CommunityID: parts[1], RoomID: parts[2], TS: ts, AuthorID: parts[4]}, nil
}

// ParseEntry rebuilds an entry from a stored key/value pair.
func ParseEntry(key, value []byte) (models.Entry, error) {
	p, err := ParseEntryKey(string(key))
	if err != nil {
		return models.Entry{}, err
	}
	return models.Entry{
		CommunityID: p.CommunityID,
		RoomID:      p.RoomID,
		AuthorID:    p.AuthorID,
		TS:          p.TS,
		Valid:       ParseValid(value),
	}, nil
}

func ParseValid(v []byte) int {
	if string(v) == ValidValue {
		return 1
	}
	return 0
}

func EncodeValid(valid int) []byte {
	if valid != 0 {
		return []byte(ValidValue)
	}
	return []byte(InvalidValue)
}

func ParseTS(v []byte) (int64, error) {
	return parsePaddedInt(string(v), TSPadWidth)
}

func parsePaddedInt(s string, width int) (int64, error) {
	if len(s) == 0 || len(s) > width {
		return 0, fmt.Errorf("length invalid: %s", s)
	}
	trimmed := strings.TrimLeft(s, "0")
	if trimmed == "" {
		return 0, nil
	}
	return strconv.ParseInt(trimmed, 10, 64)
}
