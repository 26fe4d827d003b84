package records

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

var (
	ErrMissingLevel = errors.New("records: level discriminator is missing")
	ErrUnknownLevel = errors.New("records: unknown level")
	ErrMalformed    = errors.New("records: payload is not a structured document")
	ErrUnsupported  = errors.New("records: unsupported record type")

	// ErrMissingCreatedAt reports a payload that arrived without a creation
	// time. The consumer checks it before any receipt-time restamp.
	ErrMissingCreatedAt = errors.New("records: createdAt is missing")
)

// rule describes one field constraint. A zero max leaves the field
// unbounded.
type rule struct {
	field    string
	value    string
	max      int
	required bool
	missing  bool
}

// Violation is one failed field constraint.
type Violation struct {
	Field  string
	Reason string
}

// ValidationError lists every constraint a record breaks.
type ValidationError struct {
	Level      Level
	ID         string
	Violations []Violation
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.Field + " " + v.Reason
	}
	id := e.ID
	if id == "" {
		id = "<no id>"
	}
	return fmt.Sprintf("records: invalid %s record %s: %s", e.Level, id, strings.Join(parts, "; "))
}

// Has reports whether field is among the violations.
func (e *ValidationError) Has(field string) bool {
	for _, v := range e.Violations {
		if v.Field == field {
			return true
		}
	}
	return false
}

// Validate checks required fields and length bounds. The publish adapter
// calls it before a record leaves the process and the persistence services
// call it again before insert, so corruption in transit is caught on the
// consuming side as well.
func Validate(r Record) error {
	if r == nil {
		return ErrUnsupported
	}
	hdr := r.Header()
	verr := &ValidationError{Level: r.Level(), ID: hdr.ID}
	for _, rl := range r.rules() {
		switch {
		case rl.missing:
			verr.Violations = append(verr.Violations, Violation{Field: rl.field, Reason: "is required"})
		case rl.required && strings.TrimSpace(rl.value) == "":
			verr.Violations = append(verr.Violations, Violation{Field: rl.field, Reason: "is required"})
		case rl.max > 0 && utf8.RuneCountInString(rl.value) > rl.max:
			verr.Violations = append(verr.Violations, Violation{
				Field:  rl.field,
				Reason: fmt.Sprintf("exceeds %d characters", rl.max),
			})
		}
	}
	if len(verr.Violations) > 0 {
		return verr
	}
	return nil
}

// Clip shortens s to at most max characters without splitting a rune.
func Clip(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}
