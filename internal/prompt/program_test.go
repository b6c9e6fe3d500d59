package prompt

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/longregen/promptc/internal/domain"
)

// echoGenerator answers every output field with "<field>:<joined inputs>".
func echoGenerator() Generator {
	return GeneratorFunc(func(ctx context.Context, req GenerateRequest) (Values, error) {
		var parts []string
		for _, name := range req.Signature.InputNames() {
			parts = append(parts, req.Inputs.String(name))
		}
		out := Values{}
		for _, name := range req.Signature.OutputNames() {
			out[name] = name + ":" + strings.Join(parts, "+")
		}
		return out, nil
	})
}

func mustModule(t *testing.T, name, sig, instruction string) *Module {
	t.Helper()
	m, err := NewModule(name, MustParseSignature(sig), instruction)
	if err != nil {
		t.Fatalf("NewModule(%q) error = %v", name, err)
	}
	return m
}

func TestProgramExecute(t *testing.T) {
	p, err := NewProgram(mustModule(t, "qa", "question -> answer", "answer the question"))
	if err != nil {
		t.Fatalf("NewProgram() error = %v", err)
	}

	out, err := p.Execute(context.Background(), echoGenerator(), Values{"question": "why"})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if out.String("answer") != "answer:why" {
		t.Errorf("unexpected answer %q", out.String("answer"))
	}
	if out.String("question") != "why" {
		t.Errorf("inputs should remain in the environment, got %q", out.String("question"))
	}
}

func TestProgramExecutePipeline(t *testing.T) {
	p, err := NewProgram(
		mustModule(t, "draft", "question -> sketch", "draft a sketch"),
		mustModule(t, "polish", "sketch -> answer", "polish the sketch"),
	)
	if err != nil {
		t.Fatalf("NewProgram() error = %v", err)
	}

	out, err := p.Execute(context.Background(), echoGenerator(), Values{"question": "why"})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if out.String("answer") != "answer:sketch:why" {
		t.Errorf("second module did not see the first module's output: %q", out.String("answer"))
	}
}

func TestProgramExecuteUnboundInput(t *testing.T) {
	p, err := NewProgram(mustModule(t, "qa", "question -> answer", ""))
	if err != nil {
		t.Fatalf("NewProgram() error = %v", err)
	}

	_, err = p.Execute(context.Background(), echoGenerator(), Values{})
	if !errors.Is(err, domain.ErrUnboundInput) {
		t.Errorf("Execute() error = %v, want ErrUnboundInput", err)
	}
}

func TestProgramExecuteIncompleteGeneration(t *testing.T) {
	p, err := NewProgram(mustModule(t, "qa", "question -> answer", ""))
	if err != nil {
		t.Fatalf("NewProgram() error = %v", err)
	}

	gen := GeneratorFunc(func(ctx context.Context, req GenerateRequest) (Values, error) {
		return Values{}, nil
	})
	_, err = p.Execute(context.Background(), gen, Values{"question": "why"})
	if !errors.Is(err, domain.ErrIncompleteGeneration) {
		t.Errorf("Execute() error = %v, want ErrIncompleteGeneration", err)
	}
}

func TestProgramExecuteGenerationFailure(t *testing.T) {
	p, err := NewProgram(mustModule(t, "qa", "question -> answer", ""))
	if err != nil {
		t.Fatalf("NewProgram() error = %v", err)
	}

	gen := GeneratorFunc(func(ctx context.Context, req GenerateRequest) (Values, error) {
		return nil, errors.New("model unavailable")
	})
	_, err = p.Execute(context.Background(), gen, Values{"question": "why"})
	if !errors.Is(err, domain.ErrGenerationFailed) {
		t.Errorf("Execute() error = %v, want ErrGenerationFailed", err)
	}
}

func TestCompositeModuleChildrenRunFirst(t *testing.T) {
	child := mustModule(t, "retrieve", "question -> passage", "")
	parent, err := NewCompositeModule("qa", MustParseSignature("question, passage -> answer"), "", child)
	if err != nil {
		t.Fatalf("NewCompositeModule() error = %v", err)
	}
	p, err := NewProgram(parent)
	if err != nil {
		t.Fatalf("NewProgram() error = %v", err)
	}

	var mu sync.Mutex
	var order []string
	gen := GeneratorFunc(func(ctx context.Context, req GenerateRequest) (Values, error) {
		mu.Lock()
		order = append(order, req.ModuleName)
		mu.Unlock()
		return echoGenerator().Generate(ctx, req)
	})

	out, err := p.Execute(context.Background(), gen, Values{"question": "why"})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(order) != 2 || order[0] != "retrieve" || order[1] != "qa" {
		t.Errorf("unexpected execution order %v", order)
	}
	if !out.Has("answer") {
		t.Error("parent output missing from environment")
	}
}

func TestNewProgramRejectsDuplicateNames(t *testing.T) {
	_, err := NewProgram(
		mustModule(t, "qa", "question -> answer", ""),
		mustModule(t, "qa", "answer -> verdict", ""),
	)
	if !errors.Is(err, domain.ErrSchema) {
		t.Errorf("NewProgram() error = %v, want ErrSchema", err)
	}
}

func TestNewProgramRejectsCycle(t *testing.T) {
	m := mustModule(t, "loop", "question -> answer", "")
	m.Children = append(m.Children, m)

	_, err := NewProgram(m)
	if !errors.Is(err, domain.ErrSchema) {
		t.Errorf("NewProgram() error = %v, want ErrSchema", err)
	}
}

func TestProgramModulesPreOrder(t *testing.T) {
	child := mustModule(t, "retrieve", "question -> passage", "")
	parent, err := NewCompositeModule("qa", MustParseSignature("question, passage -> answer"), "", child)
	if err != nil {
		t.Fatalf("NewCompositeModule() error = %v", err)
	}
	p, err := NewProgram(parent, mustModule(t, "judge", "answer -> verdict", ""))
	if err != nil {
		t.Fatalf("NewProgram() error = %v", err)
	}

	var names []string
	for _, m := range p.Modules() {
		names = append(names, m.Name)
	}
	want := []string{"qa", "retrieve", "judge"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("unexpected module order %v, want %v", names, want)
		}
	}
}

func TestWithCandidateDoesNotMutateOriginal(t *testing.T) {
	m := mustModule(t, "qa", "question -> answer", "original")
	p, err := NewProgram(m)
	if err != nil {
		t.Fatalf("NewProgram() error = %v", err)
	}

	cand := NewCandidate("qa", "rewritten", []Demonstration{
		{Inputs: Values{"question": "q"}, Outputs: Values{"answer": "a"}},
	}, StrategyRewrite, 1)

	cp := p.withCandidate(cand)
	got, _ := cp.Module("qa")
	if got.Instruction != "rewritten" || len(got.Demos) != 1 {
		t.Errorf("candidate not applied: %+v", got)
	}
	if m.Instruction != "original" || len(m.Demos) != 0 {
		t.Errorf("original program mutated: %+v", m)
	}
}
