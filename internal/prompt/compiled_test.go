package prompt

import (
	"context"
	"errors"
	"testing"

	"github.com/longregen/promptc/internal/domain"
)

func frozenProgram(t *testing.T) *CompiledProgram {
	t.Helper()
	child := mustModule(t, "retrieve", "question -> passage", "find a relevant passage")
	child.Demos = []Demonstration{
		{Inputs: Values{"question": "q"}, Outputs: Values{"passage": "p"}, Rationale: "seed"},
	}
	parent, err := NewCompositeModule("qa", MustParseSignature("question, passage -> answer"), "answer from the passage", child)
	if err != nil {
		t.Fatalf("NewCompositeModule() error = %v", err)
	}
	p, err := NewProgram(parent)
	if err != nil {
		t.Fatalf("NewProgram() error = %v", err)
	}
	return &CompiledProgram{program: p}
}

func assertSameFrozen(t *testing.T, got *CompiledProgram) {
	t.Helper()
	mods := got.Modules()
	if len(mods) != 2 {
		t.Fatalf("got %d modules, want 2", len(mods))
	}
	if mods[0].Name != "qa" || mods[0].Instruction != "answer from the passage" {
		t.Errorf("parent not preserved: %+v", mods[0])
	}
	if mods[1].Name != "retrieve" || mods[1].Instruction != "find a relevant passage" {
		t.Errorf("child not preserved: %+v", mods[1])
	}
	if len(mods[1].Demos) != 1 || mods[1].Demos[0].Rationale != "seed" {
		t.Errorf("child demonstrations not preserved: %+v", mods[1].Demos)
	}
}

func TestCompiledProgramRoundTrip(t *testing.T) {
	cp := frozenProgram(t)

	data, err := cp.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	decoded, err := DecodeCompiledProgram(data)
	if err != nil {
		t.Fatalf("DecodeCompiledProgram() error = %v", err)
	}
	assertSameFrozen(t, decoded)

	out, err := decoded.Execute(context.Background(), echoGenerator(), Values{"question": "why"})
	if err != nil {
		t.Fatalf("decoded Execute() error = %v", err)
	}
	if !out.Has("answer") {
		t.Error("decoded program produced no answer")
	}
}

func TestCompiledProgramJSONRoundTrip(t *testing.T) {
	cp := frozenProgram(t)

	data, err := cp.EncodeJSON()
	if err != nil {
		t.Fatalf("EncodeJSON() error = %v", err)
	}
	decoded, err := DecodeCompiledProgramJSON(data)
	if err != nil {
		t.Fatalf("DecodeCompiledProgramJSON() error = %v", err)
	}
	assertSameFrozen(t, decoded)
}

func TestDecodeCompiledProgramRejectsGarbage(t *testing.T) {
	if _, err := DecodeCompiledProgram([]byte("not msgpack")); !errors.Is(err, domain.ErrSchema) {
		t.Errorf("garbage msgpack error = %v, want ErrSchema", err)
	}
	if _, err := DecodeCompiledProgramJSON([]byte("{")); !errors.Is(err, domain.ErrSchema) {
		t.Errorf("garbage JSON error = %v, want ErrSchema", err)
	}
}

func TestDecodeCompiledProgramRejectsUnknownVersion(t *testing.T) {
	tampered := []byte(`{"version": 99, "modules": []}`)
	if _, err := DecodeCompiledProgramJSON(tampered); !errors.Is(err, domain.ErrSchema) {
		t.Errorf("unknown version error = %v, want ErrSchema", err)
	}
}

func TestCompiledProgramImmutableAcrossExecutions(t *testing.T) {
	cp := frozenProgram(t)

	// A generator that mutates the request demos must not leak into the
	// frozen artifact.
	gen := GeneratorFunc(func(ctx context.Context, req GenerateRequest) (Values, error) {
		for i := range req.Demos {
			req.Demos[i].Rationale = "tainted"
		}
		return echoGenerator().Generate(ctx, req)
	})

	if _, err := cp.Execute(context.Background(), gen, Values{"question": "why"}); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	assertSameFrozen(t, cp)
}
