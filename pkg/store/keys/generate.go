package keys

import (
	"fmt"

	"chatkat/pkg/models"
)

func PadTS(ts int64) string {
	return fmt.Sprintf("%0*d", TSPadWidth, ts)
}

// GenEntryKey builds the storage key of e, validating every segment.
func GenEntryKey(e models.Entry) (string, error) {
	if err := ValidateID("community", e.CommunityID); err != nil {
		return "", err
	}
	if err := ValidateID("room", e.RoomID); err != nil {
		return "", err
	}
	if err := ValidateID("author", e.AuthorID); err != nil {
		return "", err
	}
	if err := ValidateTS(e.TS); err != nil {
		return "", err
	}
	return fmt.Sprintf(EntryKey, e.CommunityID, e.RoomID, PadTS(e.TS), e.AuthorID), nil
}

func GenCommunityPrefix(communityID string) string {
	return fmt.Sprintf(CommunityPrefix, communityID)
}

func GenRoomPrefix(communityID, roomID string) string {
	return fmt.Sprintf(RoomPrefix, communityID, roomID)
}

func GenRoomTSPrefix(communityID, roomID string, ts int64) string {
	return fmt.Sprintf(RoomTSPrefix, communityID, roomID, PadTS(ts))
}

func GenCommunityLC(communityID string) string {
	return fmt.Sprintf(CommunityLC, communityID)
}

// PrefixUpperBound returns the smallest key greater than every key with prefix p.
func PrefixUpperBound(p string) []byte {
	b := []byte(p)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 0xff {
			out := append([]byte(nil), b[:i+1]...)
			out[i]++
			return out
		}
	}
	return nil
}
