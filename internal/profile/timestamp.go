package profile

import (
	"encoding/json"
	"math"
	"time"
)

// canonicalLayout is the single canonical representation for stored
// timestamps: RFC3339 UTC with millisecond precision.
const canonicalLayout = "2006-01-02T15:04:05.000Z"

// Timestamp is a profile timestamp tolerant of the shapes found in stored
// documents: an RFC3339/ISO string, an epoch-seconds number, or a structured
// {"seconds": N, "nanoseconds": M} object. It always marshals to the
// canonical string form, so every write normalizes the document.
type Timestamp struct {
	t     time.Time
	valid bool
}

// NewTimestamp wraps a time.Time. A zero time yields an invalid Timestamp.
func NewTimestamp(t time.Time) Timestamp {
	if t.IsZero() {
		return Timestamp{}
	}
	return Timestamp{t: t.UTC(), valid: true}
}

// Time returns the underlying instant, zero when invalid.
func (ts Timestamp) Time() time.Time {
	if !ts.valid {
		return time.Time{}
	}
	return ts.t
}

// IsZero reports whether the timestamp is missing or was unparseable.
func (ts Timestamp) IsZero() bool { return !ts.valid }

// Or returns the timestamp itself when valid, or a Timestamp of the fallback
// otherwise.
func (ts Timestamp) Or(fallback time.Time) Timestamp {
	if ts.valid {
		return ts
	}
	return NewTimestamp(fallback)
}

// Equal reports whether two timestamps denote the same canonical instant.
func (ts Timestamp) Equal(other Timestamp) bool {
	return ts.String() == other.String()
}

// String returns the canonical string form, or "" when invalid.
func (ts Timestamp) String() string {
	if !ts.valid {
		return ""
	}
	return Canonical(ts.t)
}

// Canonical formats an instant in the canonical stored representation.
func Canonical(t time.Time) string {
	return t.UTC().Truncate(time.Millisecond).Format(canonicalLayout)
}

// MarshalJSON writes the canonical string form, or null when invalid.
func (ts Timestamp) MarshalJSON() ([]byte, error) {
	if !ts.valid {
		return []byte("null"), nil
	}
	return json.Marshal(ts.String())
}

// UnmarshalJSON accepts every shape stored documents arrive in. Unparseable
// values decode to an invalid Timestamp rather than failing the document,
// letting reconciliation substitute its fallback.
func (ts *Timestamp) UnmarshalJSON(b []byte) error {
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		*ts = Timestamp{}
		return nil
	}
	*ts = NewTimestamp(Normalize(raw, time.Time{}))
	return nil
}

// Normalize converts a raw stored timestamp value to a time.Time. Recognized
// shapes: RFC3339/ISO strings (with or without fractional seconds), epoch
// seconds as a number, and {"seconds": N, "nanoseconds": M} objects (with or
// without underscore-prefixed keys). Anything else yields the fallback.
func Normalize(raw any, fallback time.Time) time.Time {
	switch v := raw.(type) {
	case nil:
		return fallback
	case time.Time:
		if v.IsZero() {
			return fallback
		}
		return v.UTC()
	case string:
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, v); err == nil {
				return t.UTC()
			}
		}
		return fallback
	case float64:
		return epochSeconds(v)
	case int64:
		return epochSeconds(float64(v))
	case int:
		return epochSeconds(float64(v))
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return fallback
		}
		return epochSeconds(f)
	case map[string]any:
		secs, ok := structuredField(v, "seconds")
		if !ok {
			return fallback
		}
		nanos, _ := structuredField(v, "nanoseconds")
		return time.Unix(int64(secs), int64(nanos)).UTC()
	default:
		return fallback
	}
}

// structuredField reads a numeric field from a structured timestamp object,
// accepting both "seconds" and "_seconds" spellings.
func structuredField(m map[string]any, name string) (float64, bool) {
	for _, key := range []string{name, "_" + name} {
		if raw, ok := m[key]; ok {
			switch n := raw.(type) {
			case float64:
				return n, true
			case json.Number:
				if f, err := n.Float64(); err == nil {
					return f, true
				}
			}
		}
	}
	return 0, false
}

func epochSeconds(secs float64) time.Time {
	whole, frac := math.Modf(secs)
	return time.Unix(int64(whole), int64(frac*float64(time.Second))).UTC()
}
