package utils

import (
	"time"
)

// UnixTimeToTime converts a Unix timestamp to UTC.
func UnixTimeToTime(unixTime int64) time.Time {
	return time.Unix(unixTime, 0).UTC()
}

// RemainingSeconds rounds a countdown up so clients never show 0 early.
func RemainingSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64((d + time.Second - 1) / time.Second)
}
