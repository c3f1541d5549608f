package validator

import (
	"errors"
	"fmt"
)

// Reasons a payload is dropped. Validate never surfaces them; Check returns
// them wrapped in a *DropError.
var (
	ErrInvalidEncoding = errors.New("payload is not valid UTF-8")
	ErrMalformedJSON   = errors.New("payload is not valid JSON")
	ErrNotObject       = errors.New("payload is not a JSON object")
	ErrMissingField    = errors.New("required field missing")
	ErrBadType         = errors.New("field has wrong type")
	ErrOutOfRange      = errors.New("field out of range")
)

var reasonLabels = map[error]string{
	ErrInvalidEncoding: "invalid_encoding",
	ErrMalformedJSON:   "malformed_json",
	ErrNotObject:       "not_object",
	ErrMissingField:    "missing_field",
	ErrBadType:         "bad_type",
	ErrOutOfRange:      "out_of_range",
}

// DropError describes why a payload produced no record
type DropError struct {
	Reason error
	Field  string // empty for payload-level failures
}

func (e *DropError) Error() string {
	if e.Field == "" {
		return e.Reason.Error()
	}
	return fmt.Sprintf("%s: %s", e.Reason.Error(), e.Field)
}

func (e *DropError) Unwrap() error {
	return e.Reason
}

// Label is a short metric-friendly name for the reason, e.g. "out_of_range"
func (e *DropError) Label() string {
	if label, ok := reasonLabels[e.Reason]; ok {
		return label
	}
	return "unknown"
}

// Labels lists every reason label
func Labels() []string {
	return []string{
		"invalid_encoding",
		"malformed_json",
		"not_object",
		"missing_field",
		"bad_type",
		"out_of_range",
	}
}

// ReasonLabel returns the label for any error produced by Check
func ReasonLabel(err error) string {
	var dropErr *DropError
	if errors.As(err, &dropErr) {
		return dropErr.Label()
	}
	return "unknown"
}
