package models

import (
	"fmt"
	"strconv"
	"time"
)

// SnowflakeEpochMs is the platform epoch (2015-01-01T00:00:00Z) used by
// snowflake identifiers.
const SnowflakeEpochMs int64 = 1420070400000

// SnowflakeTime returns the creation time encoded in a snowflake id.
func SnowflakeTime(id string) (time.Time, error) {
	n, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid snowflake %q: %w", id, err)
	}
	return time.UnixMilli(int64(n>>22) + SnowflakeEpochMs).UTC(), nil
}
