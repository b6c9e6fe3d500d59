package prompt

import (
	"fmt"
	"strings"

	"github.com/longregen/promptc/internal/domain"
)

// Field is one named slot in a signature.
type Field struct {
	Name        string `json:"name" msgpack:"name"`
	Description string `json:"description,omitempty" msgpack:"description,omitempty"`
}

// NewField creates a field with no description.
func NewField(name string) Field {
	return Field{Name: name}
}

// Signature is the typed input/output contract of one generation step.
// Immutable once constructed; identity is its field structure.
type Signature struct {
	Inputs      []Field `json:"inputs" msgpack:"inputs"`
	Outputs     []Field `json:"outputs" msgpack:"outputs"`
	Description string  `json:"description,omitempty" msgpack:"description,omitempty"`
}

// NewSignature validates and constructs a signature. The output set must be
// non-empty, names must be unique within each side, and the input and output
// name spaces must not overlap.
func NewSignature(inputs, outputs []Field, description string) (Signature, error) {
	if len(outputs) == 0 {
		return Signature{}, domain.NewDomainError(domain.ErrSchema, "signature requires at least one output field")
	}

	seen := make(map[string]struct{}, len(inputs)+len(outputs))
	for _, f := range inputs {
		if f.Name == "" {
			return Signature{}, domain.NewDomainError(domain.ErrSchema, "input field name cannot be empty")
		}
		if _, dup := seen[f.Name]; dup {
			return Signature{}, domain.NewDomainError(domain.ErrSchema, fmt.Sprintf("duplicate input field %q", f.Name))
		}
		seen[f.Name] = struct{}{}
	}
	outSeen := make(map[string]struct{}, len(outputs))
	for _, f := range outputs {
		if f.Name == "" {
			return Signature{}, domain.NewDomainError(domain.ErrSchema, "output field name cannot be empty")
		}
		if _, dup := outSeen[f.Name]; dup {
			return Signature{}, domain.NewDomainError(domain.ErrSchema, fmt.Sprintf("duplicate output field %q", f.Name))
		}
		if _, collides := seen[f.Name]; collides {
			return Signature{}, domain.NewDomainError(domain.ErrSchema, fmt.Sprintf("field %q appears in both inputs and outputs", f.Name))
		}
		outSeen[f.Name] = struct{}{}
	}

	return Signature{
		Inputs:      append([]Field(nil), inputs...),
		Outputs:     append([]Field(nil), outputs...),
		Description: description,
	}, nil
}

// MustParseSignature creates a signature from a string or panics.
func MustParseSignature(sig string) Signature {
	s, err := ParseSignature(sig)
	if err != nil {
		panic(fmt.Sprintf("failed to parse signature: %v", err))
	}
	return s
}

// ParseSignature creates a signature from a string like
// "input1, input2 -> output1, output2". A field may carry a description
// after a colon: "question: the user question -> answer".
func ParseSignature(sig string) (Signature, error) {
	parts := strings.Split(sig, "->")
	if len(parts) != 2 {
		return Signature{}, domain.NewDomainError(domain.ErrSchema, fmt.Sprintf("invalid signature format: %s", sig))
	}

	inputs := parseFields(strings.TrimSpace(parts[0]))
	outputs := parseFields(strings.TrimSpace(parts[1]))

	return NewSignature(inputs, outputs, "")
}

// parseFields converts comma-separated field definitions into Field slices.
func parseFields(fieldStr string) []Field {
	if fieldStr == "" {
		return nil
	}

	parts := strings.Split(fieldStr, ",")
	fields := make([]Field, 0, len(parts))

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		f := Field{Name: part}
		if strings.Contains(part, ":") {
			fieldParts := strings.SplitN(part, ":", 2)
			f.Name = strings.TrimSpace(fieldParts[0])
			f.Description = strings.TrimSpace(fieldParts[1])
		}

		fields = append(fields, f)
	}

	return fields
}

// Name derives a stable identifier from the field structure.
func (s Signature) Name() string {
	var b strings.Builder
	for i, f := range s.Inputs {
		if i > 0 {
			b.WriteByte('_')
		}
		b.WriteString(f.Name)
	}
	b.WriteString("_to_")
	for i, f := range s.Outputs {
		if i > 0 {
			b.WriteByte('_')
		}
		b.WriteString(f.Name)
	}
	return b.String()
}

// InputNames returns the ordered input field names.
func (s Signature) InputNames() []string {
	names := make([]string, len(s.Inputs))
	for i, f := range s.Inputs {
		names[i] = f.Name
	}
	return names
}

// OutputNames returns the ordered output field names.
func (s Signature) OutputNames() []string {
	names := make([]string, len(s.Outputs))
	for i, f := range s.Outputs {
		names[i] = f.Name
	}
	return names
}
