package keys

import (
	"errors"
	"fmt"
	"regexp"
)

var ErrInvalidID = errors.New("invalid id")

// letters, digits, dot, underscore, dash; no ":" so key segments stay unambiguous
var idRegexp = regexp.MustCompile(`^[A-Za-z0-9._-]{1,256}$`)

func ValidateID(kind, id string) error {
	if !idRegexp.MatchString(id) {
		return fmt.Errorf("%w: %s %q", ErrInvalidID, kind, id)
	}
	return nil
}

func ValidateTS(ts int64) error {
	if ts < 0 {
		return fmt.Errorf("negative timestamp: %d", ts)
	}
	return nil
}
