// Package fieldcodec encodes and decodes the oplog wire values for the
// array- and object-shaped task fields (blocked_by, labels, metadata, and
// the create entry's initial-value payload), applying the tolerant
// parsing rules spec.md section 4.E requires of the replay engine:
// non-strings are filtered out of arrays silently, and a value that isn't
// shaped like the expected JSON kind is rejected rather than causing a
// hard failure.
package fieldcodec

import "encoding/json"

// EncodeStringArray JSON-encodes a string slice, the wire shape for
// blocked_by and labels oplog values.
func EncodeStringArray(values []string) string {
	if values == nil {
		values = []string{}
	}
	b, err := json.Marshal(values)
	if err != nil {
		// values is always []string; Marshal cannot fail on it.
		return "[]"
	}
	return string(b)
}

// DecodeStringArray parses s as a JSON array, silently dropping any
// element that isn't a string. ok is false when s isn't a JSON array at
// all (replay treats that as a failed parse: the entry is retained but
// has no effect).
func DecodeStringArray(s string) (values []string, ok bool) {
	var raw []any
	if err := json.Unmarshal([]byte(s), &raw); err != nil || raw == nil {
		return nil, false
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if str, isStr := v.(string); isStr {
			out = append(out, str)
		}
	}
	return out, true
}

// EncodeMetadata JSON-encodes a metadata map, the wire shape for the
// metadata oplog value.
func EncodeMetadata(m map[string]any) string {
	if m == nil {
		m = map[string]any{}
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// DecodeMetadata parses s as a JSON object. ok is false when s isn't a
// JSON object (replay rejects the entry; see spec.md section 4.E).
func DecodeMetadata(s string) (m map[string]any, ok bool) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(s), &raw); err != nil || raw == nil {
		return nil, false
	}
	return raw, true
}

// CreatePayload is the JSON object shape of a create oplog entry's value:
// the initial field values for a new task.
type CreatePayload struct {
	Title      any `json:"title,omitempty"`
	Status     any `json:"status,omitempty"`
	Priority   any `json:"priority,omitempty"`
	Owner      any `json:"owner,omitempty"`
	DueAt      any `json:"due_at,omitempty"`
	Recurrence any `json:"recurrence,omitempty"`
	BlockedBy  any `json:"blocked_by,omitempty"`
	Labels     any `json:"labels,omitempty"`
	Notes      any `json:"notes,omitempty"`
	Metadata   any `json:"metadata,omitempty"`
}

// EncodeCreate JSON-encodes a create payload built field-by-field by the
// task service (see internal/service).
func EncodeCreate(p CreatePayload) string {
	b, err := json.Marshal(p)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// DecodeCreate parses s as a generic JSON object, returning nil if s isn't
// valid JSON or isn't an object. Callers (the replay engine) apply their
// own per-field defaulting on top of the returned map, since a malformed
// or missing individual field must fall back to its default rather than
// aborting the whole create.
func DecodeCreate(s string) map[string]any {
	var raw map[string]any
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil
	}
	return raw
}
