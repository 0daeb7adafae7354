// Package validate holds the pure validation and sanitization primitives
// used by the task service and its callers: title sanitization, bounded
// length checks, and IANA timezone validity.
//
// Grounded on the teacher's internal/validation/bead.go and issue.go
// (ParsePriority/ValidatePrefix-style bounded parsing, generalized from
// beads' numeric 0-4 priority to this spec's four-value status/priority
// enums) and, for timezone validity, on the standard library's
// time.LoadLocation the way steveyegge-beads' internal/timeparsing package
// defers to the platform timezone database rather than hand-rolling one.
package validate

import (
	"fmt"
	"strings"
	"time"
)

// Limits mirrors the bounds in spec.md section 3.
const (
	MaxTitleLen   = 1000
	MaxNotes      = 1000
	MaxNoteLen    = 10000
	MaxLabels     = 100
	MaxLabelLen   = 200
	MaxMetadataKV = 50
	MaxMetaKeyLen = 100
	MaxMetaValLen = 5000
	MaxBlockedBy  = 1000
)

// SanitizeTitle strips CR/LF (replacing them with a single space) and trims
// the result, the way spec.md section 3 requires for task titles.
func SanitizeTitle(title string) string {
	title = strings.ReplaceAll(title, "\r\n", " ")
	title = strings.ReplaceAll(title, "\r", " ")
	title = strings.ReplaceAll(title, "\n", " ")
	return strings.TrimSpace(title)
}

// Field names a size limit is reported against, for structured Validation
// errors (spec.md section 9, TooLong{field, limit}).
type Field string

const (
	FieldTitle    Field = "title"
	FieldNote     Field = "note"
	FieldLabel    Field = "label"
	FieldMetaKey  Field = "metadata_key"
	FieldMetaVal  Field = "metadata_value"
	FieldLabels   Field = "labels"
	FieldNotes    Field = "notes"
	FieldMetadata Field = "metadata"
	FieldBlockers Field = "blocked_by"
)

// TooLongError reports a bounded-size violation.
type TooLongError struct {
	Field Field
	Limit int
	Got   int
}

func (e *TooLongError) Error() string {
	return fmt.Sprintf("%s exceeds limit of %d (got %d)", e.Field, e.Limit, e.Got)
}

// Title validates a sanitized title: 1..1000 chars.
func Title(title string) error {
	if title == "" {
		return &TooLongError{Field: FieldTitle, Limit: MaxTitleLen, Got: 0}
	}
	if n := len([]rune(title)); n > MaxTitleLen {
		return &TooLongError{Field: FieldTitle, Limit: MaxTitleLen, Got: n}
	}
	return nil
}

// Note validates a single trimmed note body.
func Note(note string) error {
	if n := len([]rune(note)); n > MaxNoteLen {
		return &TooLongError{Field: FieldNote, Limit: MaxNoteLen, Got: n}
	}
	return nil
}

// NoteCount validates the total number of notes on a task.
func NoteCount(n int) error {
	if n > MaxNotes {
		return &TooLongError{Field: FieldNotes, Limit: MaxNotes, Got: n}
	}
	return nil
}

// Label validates a single label string.
func Label(label string) error {
	if n := len([]rune(label)); n > MaxLabelLen {
		return &TooLongError{Field: FieldLabel, Limit: MaxLabelLen, Got: n}
	}
	return nil
}

// LabelCount validates the total number of labels on a task.
func LabelCount(n int) error {
	if n > MaxLabels {
		return &TooLongError{Field: FieldLabels, Limit: MaxLabels, Got: n}
	}
	return nil
}

// MetadataKey validates a single metadata key.
func MetadataKey(key string) error {
	if n := len([]rune(key)); n > MaxMetaKeyLen {
		return &TooLongError{Field: FieldMetaKey, Limit: MaxMetaKeyLen, Got: n}
	}
	return nil
}

// MetadataValue validates a single metadata string value. Non-string
// values are not subject to this length check (see spec.md section 3:
// metadata is "arbitrary JSON-shaped value").
func MetadataValue(value string) error {
	if n := len([]rune(value)); n > MaxMetaValLen {
		return &TooLongError{Field: FieldMetaVal, Limit: MaxMetaValLen, Got: n}
	}
	return nil
}

// MetadataKeyCount validates the total number of metadata keys.
func MetadataKeyCount(n int) error {
	if n > MaxMetadataKV {
		return &TooLongError{Field: FieldMetadata, Limit: MaxMetadataKV, Got: n}
	}
	return nil
}

// BlockedByCount validates the total number of blockers.
func BlockedByCount(n int) error {
	if n > MaxBlockedBy {
		return &TooLongError{Field: FieldBlockers, Limit: MaxBlockedBy, Got: n}
	}
	return nil
}

// Timezone validates an IANA timezone name via the platform's localization
// facility, the way the corpus defers timezone validity to the standard
// library rather than hand-rolling a zone table.
func Timezone(name string) error {
	if name == "" {
		return nil
	}
	if _, err := time.LoadLocation(name); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", name, err)
	}
	return nil
}

// localDateLayouts are the accepted shapes for due_at: no timezone suffix,
// interpreted as local time (spec.md section 3).
var localDateLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// Date validates a local-time timestamp of the shape
// "YYYY-MM-DDTHH:MM[:SS]" with no timezone suffix.
func Date(s string) error {
	if s == "" {
		return nil
	}
	for _, layout := range localDateLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return nil
		}
	}
	return fmt.Errorf("invalid date %q (expected YYYY-MM-DDTHH:MM[:SS])", s)
}
