package prompt

import (
	"context"
	"encoding/json"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/longregen/promptc/internal/domain"
)

// CompiledProgram is a frozen program: every module carries its winning
// instruction and demonstrations, and nothing can mutate them afterwards.
// It executes exactly like a program but exposes no optimization surface.
type CompiledProgram struct {
	program *Program
}

// Execute runs the frozen program. The compiled artifact stays immutable;
// each call executes a private deep copy.
func (cp *CompiledProgram) Execute(ctx context.Context, gen Generator, inputs Values, opts ...ExecuteOption) (Values, error) {
	return cp.program.clone().Execute(ctx, gen, inputs, opts...)
}

// Modules returns deep copies of the frozen modules in pre-order, so callers
// can inspect the winning instructions and demonstrations without being able
// to reach into the artifact.
func (cp *CompiledProgram) Modules() []*Module {
	frozen := cp.program.clone()
	return frozen.Modules()
}

// moduleManifest is the serialized form of one frozen module.
type moduleManifest struct {
	Name        string           `json:"name" msgpack:"name"`
	Signature   Signature        `json:"signature" msgpack:"signature"`
	Instruction string           `json:"instruction" msgpack:"instruction"`
	Demos       []Demonstration  `json:"demos,omitempty" msgpack:"demos,omitempty"`
	Children    []moduleManifest `json:"children,omitempty" msgpack:"children,omitempty"`
}

// programManifest versions the compiled artifact wire format.
type programManifest struct {
	Version int              `json:"version" msgpack:"version"`
	Modules []moduleManifest `json:"modules" msgpack:"modules"`
}

const manifestVersion = 1

func (cp *CompiledProgram) manifest() programManifest {
	manifests := make([]moduleManifest, len(cp.program.modules))
	for i, m := range cp.program.modules {
		manifests[i] = moduleToManifest(m)
	}
	return programManifest{Version: manifestVersion, Modules: manifests}
}

func moduleToManifest(m *Module) moduleManifest {
	mm := moduleManifest{
		Name:        m.Name,
		Signature:   m.Signature,
		Instruction: m.Instruction,
		Demos:       cloneDemos(m.Demos),
	}
	for _, child := range m.Children {
		mm.Children = append(mm.Children, moduleToManifest(child))
	}
	return mm
}

// Encode serializes the compiled program as msgpack, the compact format used
// for storage.
func (cp *CompiledProgram) Encode() ([]byte, error) {
	return msgpack.Marshal(cp.manifest())
}

// EncodeJSON serializes the compiled program as indented JSON, for the API
// surface and human inspection.
func (cp *CompiledProgram) EncodeJSON() ([]byte, error) {
	return json.MarshalIndent(cp.manifest(), "", "  ")
}

// DecodeCompiledProgram rebuilds a compiled program from its msgpack
// encoding, re-running full structural validation.
func DecodeCompiledProgram(data []byte) (*CompiledProgram, error) {
	var manifest programManifest
	if err := msgpack.Unmarshal(data, &manifest); err != nil {
		return nil, domain.NewDomainError(domain.ErrSchema, "compiled program payload is not valid msgpack: "+err.Error())
	}
	return manifestToProgram(manifest)
}

// DecodeCompiledProgramJSON rebuilds a compiled program from its JSON
// encoding.
func DecodeCompiledProgramJSON(data []byte) (*CompiledProgram, error) {
	var manifest programManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, domain.NewDomainError(domain.ErrSchema, "compiled program payload is not valid JSON: "+err.Error())
	}
	return manifestToProgram(manifest)
}

func manifestToProgram(manifest programManifest) (*CompiledProgram, error) {
	if manifest.Version != manifestVersion {
		return nil, domain.NewDomainError(domain.ErrSchema, "unsupported compiled program version")
	}

	modules := make([]*Module, len(manifest.Modules))
	for i, mm := range manifest.Modules {
		m, err := manifestToModule(mm)
		if err != nil {
			return nil, err
		}
		modules[i] = m
	}

	p, err := NewProgram(modules...)
	if err != nil {
		return nil, err
	}
	return &CompiledProgram{program: p}, nil
}

func manifestToModule(mm moduleManifest) (*Module, error) {
	children := make([]*Module, len(mm.Children))
	for i, cm := range mm.Children {
		child, err := manifestToModule(cm)
		if err != nil {
			return nil, err
		}
		children[i] = child
	}

	var m *Module
	var err error
	if len(children) > 0 {
		m, err = NewCompositeModule(mm.Name, mm.Signature, mm.Instruction, children...)
	} else {
		m, err = NewModule(mm.Name, mm.Signature, mm.Instruction)
	}
	if err != nil {
		return nil, err
	}
	m.Demos = cloneDemos(mm.Demos)
	return m, nil
}
