package attribution

import (
	"time"
)

// Layout is the only accepted timestamp pattern: date and time with second
// precision and no offset. All events share one implicit zone, parsed as UTC.
const Layout = "2006-01-02T15:04:05"

// ParseTimestamp parses s with Layout.
func ParseTimestamp(s string) (time.Time, error) {
	return time.ParseInLocation(Layout, s, time.UTC)
}

// parseAll parses every raw timestamp of one event kind, failing on the first
// record that does not parse.
func parseAll(kind string, raw []string) ([]time.Time, error) {
	out := make([]time.Time, len(raw))
	for i, s := range raw {
		t, err := ParseTimestamp(s)
		if err != nil {
			return nil, &InvalidInputError{Kind: kind, Index: i, Value: s, Err: err}
		}
		out[i] = t
	}
	return out, nil
}

// MinutesBetween returns the whole minutes from a to b, truncated toward zero.
// The result is negative when b precedes a.
func MinutesBetween(a, b time.Time) int64 {
	return int64(b.Sub(a) / time.Minute)
}
