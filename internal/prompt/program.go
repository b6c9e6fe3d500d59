package prompt

import (
	"context"
	"fmt"

	"github.com/longregen/promptc/internal/domain"
)

// Program is a directed composition of modules. Top-level modules execute in
// order over a shared value environment: each module reads its inputs from
// the environment and contributes its outputs back to it.
type Program struct {
	modules []*Module
	index   map[string]*Module
}

// NewProgram validates and constructs a program. Module names must be unique
// across the whole tree and the composition must be acyclic.
func NewProgram(modules ...*Module) (*Program, error) {
	if len(modules) == 0 {
		return nil, domain.NewDomainError(domain.ErrSchema, "program requires at least one module")
	}

	p := &Program{
		modules: append([]*Module(nil), modules...),
		index:   make(map[string]*Module),
	}

	visiting := make(map[*Module]bool)
	var walk func(m *Module) error
	walk = func(m *Module) error {
		if m == nil {
			return domain.NewDomainError(domain.ErrSchema, "program contains a nil module")
		}
		if visiting[m] {
			return domain.NewDomainError(domain.ErrSchema, fmt.Sprintf("module %q participates in a cycle", m.Name))
		}
		if _, dup := p.index[m.Name]; dup {
			return domain.NewDomainError(domain.ErrSchema, fmt.Sprintf("duplicate module name %q", m.Name))
		}
		p.index[m.Name] = m

		visiting[m] = true
		for _, child := range m.Children {
			if err := walk(child); err != nil {
				return err
			}
		}
		visiting[m] = false
		return nil
	}

	for _, m := range p.modules {
		if err := walk(m); err != nil {
			return nil, err
		}
	}

	return p, nil
}

// Modules returns every module in the program in deterministic pre-order.
func (p *Program) Modules() []*Module {
	var out []*Module
	var walk func(m *Module)
	walk = func(m *Module) {
		out = append(out, m)
		for _, child := range m.Children {
			walk(child)
		}
	}
	for _, m := range p.modules {
		walk(m)
	}
	return out
}

// Module looks up a module by name anywhere in the tree.
func (p *Program) Module(name string) (*Module, bool) {
	m, ok := p.index[name]
	return m, ok
}

func (p *Program) clone() *Program {
	clones := make([]*Module, len(p.modules))
	for i, m := range p.modules {
		clones[i] = m.clone()
	}
	cp, err := NewProgram(clones...)
	if err != nil {
		// A validated program stays valid under deep copy.
		panic(fmt.Sprintf("program clone failed validation: %v", err))
	}
	return cp
}

// withCandidate returns a deep copy of the program with the candidate's
// instruction and demonstrations applied to its module.
func (p *Program) withCandidate(c *Candidate) *Program {
	cp := p.clone()
	if m, ok := cp.Module(c.ModuleName); ok {
		m.Instruction = c.Instruction
		m.Demos = cloneDemos(c.Demos)
	}
	return cp
}

type executeOptions struct {
	trace *Trace
}

// ExecuteOption configures one program execution.
type ExecuteOption func(*executeOptions)

// WithRecorder attaches a trace handle; every module execution in this run
// appends one entry to it. Instrumentation is opt-in per call.
func WithRecorder(tr *Trace) ExecuteOption {
	return func(o *executeOptions) {
		o.trace = tr
	}
}

// Execute runs the program against the given inputs using the generation
// collaborator. It returns the accumulated environment restricted to the
// union of all module outputs plus the original inputs.
func (p *Program) Execute(ctx context.Context, gen Generator, inputs Values, opts ...ExecuteOption) (Values, error) {
	var o executeOptions
	for _, opt := range opts {
		opt(&o)
	}

	env := inputs.Clone()
	if env == nil {
		env = Values{}
	}

	for _, m := range p.modules {
		if err := p.executeModule(ctx, gen, m, env, o.trace); err != nil {
			return nil, err
		}
	}

	return env, nil
}

func (p *Program) executeModule(ctx context.Context, gen Generator, m *Module, env Values, tr *Trace) error {
	for _, child := range m.Children {
		if err := p.executeModule(ctx, gen, child, env, tr); err != nil {
			return err
		}
	}

	bound := make(Values, len(m.Signature.Inputs))
	for _, f := range m.Signature.Inputs {
		if !env.Has(f.Name) {
			return domain.NewDomainError(domain.ErrUnboundInput,
				fmt.Sprintf("module %q requires input %q", m.Name, f.Name))
		}
		bound[f.Name] = env[f.Name]
	}

	outputs, err := gen.Generate(ctx, GenerateRequest{
		ModuleName:  m.Name,
		Signature:   m.Signature,
		Instruction: m.Instruction,
		Demos:       cloneDemos(m.Demos),
		Inputs:      bound.Clone(),
	})
	if err != nil {
		return domain.NewDomainError(domain.ErrGenerationFailed,
			fmt.Sprintf("module %q: %v", m.Name, err))
	}

	produced := make(Values, len(m.Signature.Outputs))
	for _, f := range m.Signature.Outputs {
		if !outputs.Has(f.Name) {
			return domain.NewDomainError(domain.ErrIncompleteGeneration,
				fmt.Sprintf("module %q produced no value for output %q", m.Name, f.Name))
		}
		produced[f.Name] = outputs[f.Name]
	}

	for k, v := range produced {
		env[k] = v
	}

	if tr != nil {
		tr.add(TraceEntry{
			ModuleName: m.Name,
			Inputs:     bound.Clone(),
			Outputs:    produced.Clone(),
		})
	}

	return nil
}
