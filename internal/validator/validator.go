// Package validator validates mutation envelopes and mutations.
package validator

import (
	"fmt"

	"github.com/jittakal/poolstore/internal/errors"
	"github.com/jittakal/poolstore/pkg/mutation"
)

// DefaultMaxMutationBytes bounds one encoded mutation.
const DefaultMaxMutationBytes = 1 << 20

// EnvelopeValidator validates CloudEvents envelopes.
type EnvelopeValidator struct{}

// NewEnvelopeValidator creates a new envelope validator.
func NewEnvelopeValidator() *EnvelopeValidator {
	return &EnvelopeValidator{}
}

// Validate validates an envelope.
func (v *EnvelopeValidator) Validate(e *mutation.Envelope) error {
	required := []struct {
		field string
		value string
	}{
		{"id", e.ID},
		{"source", e.Source},
		{"specversion", e.SpecVersion},
		{"type", e.Type},
	}
	for _, r := range required {
		if r.value == "" {
			return &errors.ValidationError{
				Target: e.ID,
				Field:  r.field,
				Reason: "required field is missing",
			}
		}
	}

	// Normalize spec version (0.1 -> 1.0)
	if e.SpecVersion == "0.1" {
		e.SpecVersion = "1.0"
	}

	if e.SpecVersion != "1.0" {
		return &errors.ValidationError{
			Target: e.ID,
			Field:  "specversion",
			Reason: fmt.Sprintf("unsupported version: %s (supported: 1.0)", e.SpecVersion),
		}
	}

	if e.Type != mutation.EventType {
		return &errors.ValidationError{
			Target: e.ID,
			Field:  "type",
			Reason: fmt.Sprintf("unexpected type %q (want %q)", e.Type, mutation.EventType),
		}
	}

	if len(e.Data) == 0 {
		return &errors.ValidationError{
			Target: e.ID,
			Field:  "data",
			Reason: "required field is missing",
		}
	}

	return nil
}

// MutationValidator validates mutations before they are buffered.
type MutationValidator struct {
	maxBytes int
}

// NewMutationValidator creates a validator. A non-positive maxBytes uses
// DefaultMaxMutationBytes.
func NewMutationValidator(maxBytes int) *MutationValidator {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxMutationBytes
	}
	return &MutationValidator{maxBytes: maxBytes}
}

// Validate validates a mutation.
func (v *MutationValidator) Validate(m *mutation.Mutation) error {
	if m == nil {
		return &errors.ValidationError{Field: "mutation", Reason: "nil mutation"}
	}
	target := m.Target()

	structured := len(m.Columns) > 0 || len(m.Values) > 0
	switch {
	case structured && m.IsRaw():
		return &errors.ValidationError{Target: target, Field: "statement", Reason: "both columns and a raw statement are set"}
	case !structured && !m.IsRaw():
		return &errors.ValidationError{Target: target, Field: "columns", Reason: "neither columns nor a raw statement are set"}
	}

	if !m.IsRaw() {
		if m.Table == "" && (m.Keyword == "" || m.UID == "") {
			return &errors.ValidationError{Target: target, Field: "table", Reason: "no table and no keyword/uid"}
		}
		if len(m.Columns) != len(m.Values) {
			return &errors.ValidationError{
				Target: target,
				Field:  "values",
				Reason: fmt.Sprintf("%d columns but %d values", len(m.Columns), len(m.Values)),
			}
		}
		for _, field := range []struct{ name, value string }{
			{"table", m.Table}, {"keyword", m.Keyword}, {"uid", m.UID},
		} {
			if !validIdentifier(field.value, true) {
				return &errors.ValidationError{Target: target, Field: field.name, Reason: "invalid identifier characters"}
			}
		}
		for _, c := range m.Columns {
			if c == "" || !validIdentifier(c, false) {
				return &errors.ValidationError{Target: target, Field: "columns", Reason: fmt.Sprintf("invalid column name %q", c)}
			}
		}
	}

	data, err := mutation.Encode(m)
	if err != nil {
		return &errors.ValidationError{Target: target, Field: "values", Reason: err.Error()}
	}
	if len(data) > v.maxBytes {
		return &errors.ValidationError{
			Target: target,
			Field:  "mutation",
			Reason: fmt.Sprintf("encoded size %d exceeds %d bytes", len(data), v.maxBytes),
		}
	}

	return nil
}

// validIdentifier accepts [A-Za-z0-9_], plus '#' and '-' in table names.
func validIdentifier(s string, table bool) bool {
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
		case table && (r == '#' || r == '-'):
		default:
			return false
		}
	}
	return true
}
