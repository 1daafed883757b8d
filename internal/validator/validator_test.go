package validator

import (
	stderrors "errors"
	"strings"
	"testing"

	"github.com/jittakal/poolstore/internal/errors"
	"github.com/jittakal/poolstore/pkg/mutation"
)

func TestNewEnvelopeValidator(t *testing.T) {
	validator := NewEnvelopeValidator()
	if validator == nil {
		t.Fatal("expected non-nil validator")
	}
}

func validEnvelope() *mutation.Envelope {
	return &mutation.Envelope{
		ID:          "test-id",
		Source:      "test-source",
		SpecVersion: "1.0",
		Type:        mutation.EventType,
		Data:        []byte(`{"table":"t","columns":["a"],"values":[1]}`),
	}
}

func TestEnvelopeValidator_ValidateSuccess(t *testing.T) {
	if err := NewEnvelopeValidator().Validate(validEnvelope()); err != nil {
		t.Errorf("Validate() error = %v, want nil", err)
	}
}

func TestEnvelopeValidator_ValidateSpecVersion01(t *testing.T) {
	env := validEnvelope()
	env.SpecVersion = "0.1"

	if err := NewEnvelopeValidator().Validate(env); err != nil {
		t.Errorf("Validate() error = %v, want nil", err)
	}
	if env.SpecVersion != "1.0" {
		t.Errorf("SpecVersion = %v, want 1.0 (normalized)", env.SpecVersion)
	}
}

func TestEnvelopeValidator_ValidateErrors(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(e *mutation.Envelope)
		wantField string
	}{
		{"missing id", func(e *mutation.Envelope) { e.ID = "" }, "id"},
		{"missing source", func(e *mutation.Envelope) { e.Source = "" }, "source"},
		{"missing specversion", func(e *mutation.Envelope) { e.SpecVersion = "" }, "specversion"},
		{"missing type", func(e *mutation.Envelope) { e.Type = "" }, "type"},
		{"unsupported version", func(e *mutation.Envelope) { e.SpecVersion = "2.0" }, "specversion"},
		{"wrong type", func(e *mutation.Envelope) { e.Type = "order.created" }, "type"},
		{"missing data", func(e *mutation.Envelope) { e.Data = nil }, "data"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := validEnvelope()
			tt.mutate(env)

			err := NewEnvelopeValidator().Validate(env)
			var vErr *errors.ValidationError
			if !stderrors.As(err, &vErr) {
				t.Fatalf("Validate() error = %v, want ValidationError", err)
			}
			if vErr.Field != tt.wantField {
				t.Errorf("Field = %v, want %v", vErr.Field, tt.wantField)
			}
		})
	}
}

func TestMutationValidator_Valid(t *testing.T) {
	tests := []struct {
		name string
		m    *mutation.Mutation
	}{
		{"table insert", &mutation.Mutation{Table: "orders-u1-20250101", Columns: []string{"id"}, Values: []any{1}}},
		{"partitioned insert", &mutation.Mutation{Keyword: "orders", UID: "u-1", Columns: []string{"id"}, Values: []any{1}}},
		{"pool-like table name", &mutation.Mutation{Table: "Pool#1", Columns: []string{"id"}, Values: []any{1}}},
		{"raw statement", &mutation.Mutation{Statement: "DELETE FROM t WHERE id = ?", Args: []any{1}}},
	}

	v := NewMutationValidator(0)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := v.Validate(tt.m); err != nil {
				t.Errorf("Validate() error = %v, want nil", err)
			}
		})
	}
}

func TestMutationValidator_Invalid(t *testing.T) {
	tests := []struct {
		name      string
		m         *mutation.Mutation
		wantField string
	}{
		{"nil", nil, "mutation"},
		{"empty target", &mutation.Mutation{Columns: []string{"id"}, Values: []any{1}}, "table"},
		{"keyword without uid", &mutation.Mutation{Keyword: "orders", Columns: []string{"id"}, Values: []any{1}}, "table"},
		{"both forms", &mutation.Mutation{Table: "t", Columns: []string{"id"}, Values: []any{1}, Statement: "SELECT 1"}, "statement"},
		{"neither form", &mutation.Mutation{Table: "t"}, "columns"},
		{"count mismatch", &mutation.Mutation{Table: "t", Columns: []string{"a", "b"}, Values: []any{1}}, "values"},
		{"bad table", &mutation.Mutation{Table: "t; DROP", Columns: []string{"a"}, Values: []any{1}}, "table"},
		{"bad uid", &mutation.Mutation{Keyword: "k", UID: "u 1", Columns: []string{"a"}, Values: []any{1}}, "uid"},
		{"bad column", &mutation.Mutation{Table: "t", Columns: []string{"a-b"}, Values: []any{1}}, "columns"},
		{"empty column", &mutation.Mutation{Table: "t", Columns: []string{""}, Values: []any{1}}, "columns"},
	}

	v := NewMutationValidator(0)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.m)
			var vErr *errors.ValidationError
			if !stderrors.As(err, &vErr) {
				t.Fatalf("Validate() error = %v, want ValidationError", err)
			}
			if vErr.Field != tt.wantField {
				t.Errorf("Field = %v, want %v", vErr.Field, tt.wantField)
			}
		})
	}
}

func TestMutationValidator_MaxBytes(t *testing.T) {
	v := NewMutationValidator(64)
	m := &mutation.Mutation{Table: "t", Columns: []string{"blob"}, Values: []any{strings.Repeat("x", 100)}}

	err := v.Validate(m)
	if err == nil {
		t.Fatal("Validate() should reject oversized mutations")
	}
	if !strings.Contains(err.Error(), "exceeds 64 bytes") {
		t.Errorf("Validate() error = %v", err)
	}
}
