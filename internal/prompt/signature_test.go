package prompt

import (
	"errors"
	"testing"

	"github.com/longregen/promptc/internal/domain"
)

func TestParseSignature(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{
			name:    "simple signature",
			input:   "question -> answer",
			wantErr: false,
		},
		{
			name:    "multiple inputs and outputs",
			input:   "context, question, history -> answer, reasoning",
			wantErr: false,
		},
		{
			name:    "with descriptions",
			input:   "question: the user question -> answer: a short reply",
			wantErr: false,
		},
		{
			name:    "no inputs",
			input:   " -> answer",
			wantErr: false,
		},
		{
			name:    "missing arrow",
			input:   "question",
			wantErr: true,
		},
		{
			name:    "no outputs",
			input:   "question -> ",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig, err := ParseSignature(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseSignature() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && sig.Name() == "" {
				t.Errorf("ParseSignature() returned signature with empty name")
			}
		})
	}
}

func TestParseSignatureFieldDescriptions(t *testing.T) {
	sig, err := ParseSignature("question: the user question -> answer: a short reply")
	if err != nil {
		t.Fatalf("ParseSignature() error = %v", err)
	}
	if sig.Inputs[0].Name != "question" || sig.Inputs[0].Description != "the user question" {
		t.Errorf("unexpected input field: %+v", sig.Inputs[0])
	}
	if sig.Outputs[0].Name != "answer" || sig.Outputs[0].Description != "a short reply" {
		t.Errorf("unexpected output field: %+v", sig.Outputs[0])
	}
}

func TestNewSignatureValidation(t *testing.T) {
	tests := []struct {
		name    string
		inputs  []Field
		outputs []Field
	}{
		{
			name:    "no outputs",
			inputs:  []Field{NewField("question")},
			outputs: nil,
		},
		{
			name:    "duplicate input",
			inputs:  []Field{NewField("question"), NewField("question")},
			outputs: []Field{NewField("answer")},
		},
		{
			name:    "duplicate output",
			inputs:  []Field{NewField("question")},
			outputs: []Field{NewField("answer"), NewField("answer")},
		},
		{
			name:    "input output collision",
			inputs:  []Field{NewField("text")},
			outputs: []Field{NewField("text")},
		},
		{
			name:    "empty field name",
			inputs:  []Field{{Name: ""}},
			outputs: []Field{NewField("answer")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSignature(tt.inputs, tt.outputs, "")
			if !errors.Is(err, domain.ErrSchema) {
				t.Errorf("NewSignature() error = %v, want ErrSchema", err)
			}
		})
	}
}

func TestMustParseSignature(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Errorf("MustParseSignature() panicked on valid signature: %v", r)
		}
	}()

	sig := MustParseSignature("question -> answer")
	if sig.Name() != "question_to_answer" {
		t.Errorf("unexpected signature name %q", sig.Name())
	}
}

func TestMustParseSignaturePanic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Errorf("MustParseSignature() did not panic on invalid signature")
		}
	}()

	_ = MustParseSignature("invalid")
}

func TestSignatureFieldNames(t *testing.T) {
	sig := MustParseSignature("context, question -> answer")

	in := sig.InputNames()
	if len(in) != 2 || in[0] != "context" || in[1] != "question" {
		t.Errorf("unexpected input names %v", in)
	}
	out := sig.OutputNames()
	if len(out) != 1 || out[0] != "answer" {
		t.Errorf("unexpected output names %v", out)
	}
}
