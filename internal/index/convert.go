package index

import (
	"encoding/json"
	"time"
)

// Timestamps are stored as unix seconds, zero meaning absent. File
// modification times keep full nanosecond precision because the sync
// drift check compares them for equality.

func timeToUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}

	return t.Unix()
}

func unixToTime(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}

	return time.Unix(v, 0).UTC()
}

// String slices and the exif map are stored as JSON text. The index is
// rebuildable, so a damaged blob decodes to nil instead of failing a
// read.

func encodeStrings(v []string) string {
	if len(v) == 0 {
		return "[]"
	}

	out, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}

	return string(out)
}

func decodeStrings(raw string) []string {
	if raw == "" || raw == "[]" {
		return nil
	}

	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}

	return out
}

func encodeStringMap(v map[string]string) string {
	if len(v) == 0 {
		return "{}"
	}

	out, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}

	return string(out)
}

func decodeStringMap(raw string) map[string]string {
	if raw == "" || raw == "{}" {
		return nil
	}

	var out map[string]string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}

	return out
}
