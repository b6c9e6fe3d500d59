package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/longregen/promptc/internal/domain"
	"github.com/longregen/promptc/internal/domain/models"
	"github.com/longregen/promptc/internal/ports"
	"github.com/longregen/promptc/internal/prompt"
)

// fakeOptimizationRepo is an in-memory ports.OptimizationRepository
type fakeOptimizationRepo struct {
	mu         sync.Mutex
	runs       map[string]*models.OptimizationRun
	candidates map[string]*models.CandidateRecord
	evals      []*models.EvaluationRecord
}

func newFakeOptimizationRepo() *fakeOptimizationRepo {
	return &fakeOptimizationRepo{
		runs:       make(map[string]*models.OptimizationRun),
		candidates: make(map[string]*models.CandidateRecord),
	}
}

func (f *fakeOptimizationRepo) CreateRun(ctx context.Context, run *models.OptimizationRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *run
	f.runs[run.ID] = &copied
	return nil
}

func (f *fakeOptimizationRepo) GetRun(ctx context.Context, id string) (*models.OptimizationRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[id]
	if !ok {
		return nil, domain.NewDomainError(domain.ErrRunNotFound, "run not found")
	}
	copied := *run
	return &copied, nil
}

func (f *fakeOptimizationRepo) UpdateRun(ctx context.Context, run *models.OptimizationRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.runs[run.ID]; !ok {
		return domain.NewDomainError(domain.ErrRunNotFound, "run not found")
	}
	copied := *run
	f.runs[run.ID] = &copied
	return nil
}

func (f *fakeOptimizationRepo) ListRuns(ctx context.Context, opts ports.ListOptimizationRunsOptions) ([]*models.OptimizationRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.OptimizationRun, 0, len(f.runs))
	for _, run := range f.runs {
		if opts.Status != "" && run.Status != opts.Status {
			continue
		}
		copied := *run
		out = append(out, &copied)
	}
	return out, nil
}

func (f *fakeOptimizationRepo) SaveCandidate(ctx context.Context, candidate *models.CandidateRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *candidate
	f.candidates[candidate.ID] = &copied
	return nil
}

func (f *fakeOptimizationRepo) GetCandidates(ctx context.Context, runID string) ([]*models.CandidateRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.CandidateRecord, 0)
	for _, c := range f.candidates {
		if c.RunID == runID {
			copied := *c
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakeOptimizationRepo) GetBestCandidate(ctx context.Context, runID, moduleName string) (*models.CandidateRecord, error) {
	return nil, domain.NewDomainError(domain.ErrNoCandidates, "not implemented")
}

func (f *fakeOptimizationRepo) SaveEvaluation(ctx context.Context, eval *models.EvaluationRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evals = append(f.evals, eval)
	return nil
}

func (f *fakeOptimizationRepo) GetEvaluations(ctx context.Context, candidateID string) ([]*models.EvaluationRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.EvaluationRecord, 0)
	for _, e := range f.evals {
		if e.CandidateID == candidateID {
			out = append(out, e)
		}
	}
	return out, nil
}

// fakeArtifactRepo is an in-memory ports.CompiledProgramRepository
type fakeArtifactRepo struct {
	mu        sync.Mutex
	artifacts map[string]*models.CompiledArtifact
}

func newFakeArtifactRepo() *fakeArtifactRepo {
	return &fakeArtifactRepo{artifacts: make(map[string]*models.CompiledArtifact)}
}

func (f *fakeArtifactRepo) SaveArtifact(ctx context.Context, artifact *models.CompiledArtifact) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.artifacts[artifact.ID] = artifact
	return nil
}

func (f *fakeArtifactRepo) GetArtifact(ctx context.Context, id string) (*models.CompiledArtifact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	artifact, ok := f.artifacts[id]
	if !ok {
		return nil, domain.NewDomainError(domain.ErrProgramNotFound, "artifact not found")
	}
	return artifact, nil
}

func (f *fakeArtifactRepo) GetArtifactByRun(ctx context.Context, runID string) (*models.CompiledArtifact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, artifact := range f.artifacts {
		if artifact.RunID == runID {
			return artifact, nil
		}
	}
	return nil, domain.NewDomainError(domain.ErrProgramNotFound, "artifact not found")
}

func (f *fakeArtifactRepo) ListArtifacts(ctx context.Context, limit, offset int) ([]*models.CompiledArtifact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.CompiledArtifact, 0, len(f.artifacts))
	for _, artifact := range f.artifacts {
		out = append(out, artifact)
	}
	return out, nil
}

func qaTarget(t *testing.T) CompileTarget {
	t.Helper()
	m, err := prompt.NewModule("qa", prompt.MustParseSignature("question -> answer"), "answer the question")
	if err != nil {
		t.Fatal(err)
	}
	p, err := prompt.NewProgram(m)
	if err != nil {
		t.Fatal(err)
	}

	examples := []prompt.Example{
		prompt.NewExample(prompt.Values{"question": "q1"}, prompt.Values{"answer": "a1"}),
		prompt.NewExample(prompt.Values{"question": "q2"}, prompt.Values{"answer": "a2"}),
		prompt.NewExample(prompt.Values{"question": "q3"}, prompt.Values{"answer": "a3"}),
		prompt.NewExample(prompt.Values{"question": "q4"}, prompt.Values{"answer": "a4"}),
	}

	return CompileTarget{Program: p, Examples: examples, Metric: prompt.ExactMatch("answer")}
}

func echoAnswers() prompt.Generator {
	table := map[string]string{"q1": "a1", "q2": "a2", "q3": "a3", "q4": "a4"}
	return prompt.GeneratorFunc(func(ctx context.Context, req prompt.GenerateRequest) (prompt.Values, error) {
		a, ok := table[req.Inputs.String("question")]
		if !ok {
			return nil, errors.New("unknown question")
		}
		return prompt.Values{"answer": a}, nil
	})
}

func serviceConfig() prompt.OptimizerConfig {
	cfg := prompt.DefaultOptimizerConfig()
	cfg.RetryDelay = 0
	cfg.Concurrency = 1
	return cfg
}

func drainUntilClosed(t *testing.T, ch <-chan ports.ProgressEvent) []ports.ProgressEvent {
	t.Helper()
	var events []ports.ProgressEvent
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatal("timed out waiting for progress channel to close")
		}
	}
}

func TestCompileServiceHappyPath(t *testing.T) {
	repo := newFakeOptimizationRepo()
	artifacts := newFakeArtifactRepo()

	svc := NewCompileService(repo, artifacts, echoAnswers(), serviceConfig())
	if err := svc.RegisterTarget("qa_pipeline", qaTarget(t)); err != nil {
		t.Fatalf("RegisterTarget() error = %v", err)
	}

	result, err := svc.Compile(context.Background(), &ports.CompileRequest{ProgramName: "qa_pipeline"})
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	events := drainUntilClosed(t, result.ProgressChannel)
	if len(events) == 0 {
		t.Fatal("no progress events received")
	}
	last := events[len(events)-1]
	if last.Type != "completed" {
		t.Fatalf("last event type = %q, want completed (events: %+v)", last.Type, events)
	}

	run, err := svc.GetRun(context.Background(), result.Run.ID)
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if run.Status != models.OptimizationStatusCompleted {
		t.Errorf("run status = %q, want completed", run.Status)
	}

	artifact, err := svc.GetArtifact(context.Background(), result.Run.ID)
	if err != nil {
		t.Fatalf("GetArtifact() error = %v", err)
	}
	if len(artifact.Payload) == 0 {
		t.Error("artifact payload is empty")
	}

	// The frozen payload decodes back into an executable program.
	decoded, err := prompt.DecodeCompiledProgram(artifact.Payload)
	if err != nil {
		t.Fatalf("DecodeCompiledProgram() error = %v", err)
	}
	out, err := decoded.Execute(context.Background(), echoAnswers(), prompt.Values{"question": "q1"})
	if err != nil {
		t.Fatalf("decoded Execute() error = %v", err)
	}
	if out.String("answer") != "a1" {
		t.Errorf("decoded program answered %q, want a1", out.String("answer"))
	}

	cands, err := svc.GetCandidates(context.Background(), result.Run.ID)
	if err != nil {
		t.Fatalf("GetCandidates() error = %v", err)
	}
	if len(cands) == 0 {
		t.Error("no candidate records persisted")
	}
}

// fakeTxManager is an in-memory ports.TransactionManager that just runs the
// function and counts invocations.
type fakeTxManager struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return fn(ctx)
}

func (f *fakeTxManager) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestCompileServiceCompletesInsideTransaction(t *testing.T) {
	repo := newFakeOptimizationRepo()
	artifacts := newFakeArtifactRepo()
	tx := &fakeTxManager{}

	svc := NewCompileService(repo, artifacts, echoAnswers(), serviceConfig()).
		WithTransactionManager(tx)
	if err := svc.RegisterTarget("qa_pipeline", qaTarget(t)); err != nil {
		t.Fatalf("RegisterTarget() error = %v", err)
	}

	result, err := svc.Compile(context.Background(), &ports.CompileRequest{ProgramName: "qa_pipeline"})
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	events := drainUntilClosed(t, result.ProgressChannel)
	last := events[len(events)-1]
	if last.Type != "completed" {
		t.Fatalf("last event type = %q, want completed", last.Type)
	}

	if got := tx.callCount(); got != 1 {
		t.Errorf("WithTransaction call count = %d, want 1", got)
	}

	// Artifact and terminal run state were both written through the transaction.
	run, err := svc.GetRun(context.Background(), result.Run.ID)
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if run.Status != models.OptimizationStatusCompleted {
		t.Errorf("run status = %q, want completed", run.Status)
	}
	if _, err := svc.GetArtifact(context.Background(), result.Run.ID); err != nil {
		t.Fatalf("GetArtifact() error = %v", err)
	}
}

func TestCompileServiceFailsOnStalledRun(t *testing.T) {
	repo := newFakeOptimizationRepo()
	artifacts := newFakeArtifactRepo()

	gen := prompt.GeneratorFunc(func(ctx context.Context, req prompt.GenerateRequest) (prompt.Values, error) {
		return nil, errors.New("model down")
	})

	cfg := serviceConfig()
	cfg.RetryLimit = 0

	svc := NewCompileService(repo, artifacts, gen, cfg)
	if err := svc.RegisterTarget("qa_pipeline", qaTarget(t)); err != nil {
		t.Fatalf("RegisterTarget() error = %v", err)
	}

	result, err := svc.Compile(context.Background(), &ports.CompileRequest{ProgramName: "qa_pipeline"})
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	events := drainUntilClosed(t, result.ProgressChannel)
	last := events[len(events)-1]
	if last.Type != "failed" {
		t.Fatalf("last event type = %q, want failed", last.Type)
	}

	run, err := svc.GetRun(context.Background(), result.Run.ID)
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if run.Status != models.OptimizationStatusFailed {
		t.Errorf("run status = %q, want failed", run.Status)
	}
	if run.Error == "" {
		t.Error("failed run should carry the error message")
	}
}

func TestCompileServiceInlineProgram(t *testing.T) {
	repo := newFakeOptimizationRepo()
	artifacts := newFakeArtifactRepo()
	svc := NewCompileService(repo, artifacts, echoAnswers(), serviceConfig())

	result, err := svc.Compile(context.Background(), &ports.CompileRequest{
		ProgramName: "inline_qa",
		Modules: []ports.ModuleSpec{
			{Name: "qa", Signature: "question -> answer", Instruction: "answer the question"},
		},
		Examples: []ports.ExampleSpec{
			{Inputs: map[string]any{"question": "q1"}, Expected: map[string]any{"answer": "a1"}},
			{Inputs: map[string]any{"question": "q2"}, Expected: map[string]any{"answer": "a2"}},
			{Inputs: map[string]any{"question": "q3"}, Expected: map[string]any{"answer": "a3"}},
			{Inputs: map[string]any{"question": "q4"}, Expected: map[string]any{"answer": "a4"}},
		},
	})
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	events := drainUntilClosed(t, result.ProgressChannel)
	last := events[len(events)-1]
	if last.Type != "completed" {
		t.Fatalf("last event type = %q, want completed", last.Type)
	}

	if _, err := svc.GetArtifact(context.Background(), result.Run.ID); err != nil {
		t.Fatalf("GetArtifact() error = %v", err)
	}
}

func TestTargetFromSpecRejectsBadSignature(t *testing.T) {
	_, err := TargetFromSpec(
		[]ports.ModuleSpec{{Name: "qa", Signature: "question ->", Instruction: "x"}},
		nil, nil,
	)
	if !errors.Is(err, domain.ErrSchema) {
		t.Errorf("TargetFromSpec() error = %v, want ErrSchema", err)
	}
}

func TestCompileServiceUnknownProgram(t *testing.T) {
	svc := NewCompileService(newFakeOptimizationRepo(), newFakeArtifactRepo(), echoAnswers(), serviceConfig())

	_, err := svc.Compile(context.Background(), &ports.CompileRequest{ProgramName: "nope"})
	if !errors.Is(err, domain.ErrProgramNotFound) {
		t.Errorf("Compile() error = %v, want ErrProgramNotFound", err)
	}
}

func TestCompileServiceRegisterTargetValidation(t *testing.T) {
	svc := NewCompileService(newFakeOptimizationRepo(), newFakeArtifactRepo(), echoAnswers(), serviceConfig())

	if err := svc.RegisterTarget("", qaTarget(t)); !errors.Is(err, domain.ErrEmptyContent) {
		t.Errorf("empty name error = %v, want ErrEmptyContent", err)
	}
	if err := svc.RegisterTarget("x", CompileTarget{}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("empty target error = %v, want ErrInvalidInput", err)
	}
}

func TestProgressPublisherDropsWhenBufferFull(t *testing.T) {
	pub := NewProgressPublisher()
	ch := pub.Subscribe("run_1")

	// Fill the buffer past capacity; publishing must never block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 250; i++ {
			pub.PublishProgress(ports.ProgressEvent{RunID: "run_1", Trial: i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher blocked on a slow subscriber")
	}

	pub.Close("run_1")
	var received int
	for range ch {
		received++
	}
	if received == 0 || received > 100 {
		t.Errorf("received %d events, want between 1 and the buffer size", received)
	}
}

func TestProgressPublisherUnsubscribe(t *testing.T) {
	pub := NewProgressPublisher()
	ch := pub.Subscribe("run_1")

	if n := pub.SubscriberCount("run_1"); n != 1 {
		t.Fatalf("subscriber count = %d, want 1", n)
	}

	pub.Unsubscribe("run_1", ch)
	if n := pub.SubscriberCount("run_1"); n != 0 {
		t.Errorf("subscriber count after unsubscribe = %d, want 0", n)
	}

	// Channel is closed; reading must not block.
	if _, ok := <-ch; ok {
		t.Error("expected closed channel after unsubscribe")
	}
}
