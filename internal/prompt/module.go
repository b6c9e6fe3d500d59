package prompt

import (
	"fmt"

	"github.com/longregen/promptc/internal/domain"
)

// Demonstration is a worked (inputs, outputs) example attached to a module as
// in-context guidance. Immutable once stored.
type Demonstration struct {
	Inputs    Values `json:"inputs" msgpack:"inputs"`
	Outputs   Values `json:"outputs" msgpack:"outputs"`
	Rationale string `json:"rationale,omitempty" msgpack:"rationale,omitempty"`
}

func cloneDemos(demos []Demonstration) []Demonstration {
	if demos == nil {
		return nil
	}
	out := make([]Demonstration, len(demos))
	for i, d := range demos {
		out[i] = Demonstration{
			Inputs:    d.Inputs.Clone(),
			Outputs:   d.Outputs.Clone(),
			Rationale: d.Rationale,
		}
	}
	return out
}

// Module is one generation step: a signature, an instruction, and a bounded
// ordered set of demonstrations. A module may own child modules; children
// execute before the parent's own generation.
type Module struct {
	Name        string
	Signature   Signature
	Instruction string
	Demos       []Demonstration
	Children    []*Module
}

// NewModule constructs a leaf module. The signature must already be valid
// (constructed via NewSignature or ParseSignature).
func NewModule(name string, sig Signature, instruction string) (*Module, error) {
	if name == "" {
		return nil, domain.NewDomainError(domain.ErrSchema, "module name cannot be empty")
	}
	if len(sig.Outputs) == 0 {
		return nil, domain.NewDomainError(domain.ErrSchema, fmt.Sprintf("module %q has a signature with no outputs", name))
	}
	return &Module{
		Name:        name,
		Signature:   sig,
		Instruction: instruction,
	}, nil
}

// NewCompositeModule constructs a module with nested children. The parent
// still generates its own outputs after its children have run.
func NewCompositeModule(name string, sig Signature, instruction string, children ...*Module) (*Module, error) {
	m, err := NewModule(name, sig, instruction)
	if err != nil {
		return nil, err
	}
	for _, c := range children {
		if c == nil {
			return nil, domain.NewDomainError(domain.ErrSchema, fmt.Sprintf("module %q has a nil child", name))
		}
	}
	m.Children = append([]*Module(nil), children...)
	return m, nil
}

// Leaf reports whether the module has no children.
func (m *Module) Leaf() bool {
	return len(m.Children) == 0
}

func (m *Module) clone() *Module {
	c := &Module{
		Name:        m.Name,
		Signature:   m.Signature,
		Instruction: m.Instruction,
		Demos:       cloneDemos(m.Demos),
	}
	if len(m.Children) > 0 {
		c.Children = make([]*Module, len(m.Children))
		for i, child := range m.Children {
			c.Children[i] = child.clone()
		}
	}
	return c
}
