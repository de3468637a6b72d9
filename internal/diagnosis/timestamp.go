package diagnosis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Timestamp is a point in time carried on the wire as epoch milliseconds.
// Decoding also accepts RFC3339 strings and null.
type Timestamp struct {
	time.Time
}

// NewTimestamp wraps t.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t}
}

// FromEpochMillis converts epoch milliseconds, possibly fractional, to a Timestamp.
func FromEpochMillis(ms float64) Timestamp {
	sec, frac := math.Modf(ms / 1000)
	return Timestamp{Time: time.Unix(int64(sec), int64(math.Round(frac*1e9))).UTC()}
}

// EpochMillis returns the timestamp as epoch milliseconds.
func (ts Timestamp) EpochMillis() int64 {
	return ts.UnixMilli()
}

// MarshalJSON writes epoch milliseconds, or null for the zero time.
func (ts Timestamp) MarshalJSON() ([]byte, error) {
	if ts.IsZero() {
		return []byte("null"), nil
	}
	return []byte(fmt.Sprintf("%d", ts.EpochMillis())), nil
}

// UnmarshalJSON reads epoch milliseconds or an RFC3339 string.
func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		ts.Time = time.Time{}
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("decode timestamp string: %w", err)
		}
		if s == "" {
			ts.Time = time.Time{}
			return nil
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("decode timestamp %q: %w", s, err)
		}
		ts.Time = t
		return nil
	}

	var ms float64
	if err := json.Unmarshal(data, &ms); err != nil {
		return fmt.Errorf("decode timestamp number: %w", err)
	}
	*ts = FromEpochMillis(ms)
	return nil
}
