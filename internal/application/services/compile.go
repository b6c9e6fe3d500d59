package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/longregen/promptc/internal/adapters/metrics"
	"github.com/longregen/promptc/internal/domain"
	"github.com/longregen/promptc/internal/domain/models"
	"github.com/longregen/promptc/internal/ports"
	"github.com/longregen/promptc/internal/prompt"
	"github.com/longregen/promptc/shared/id"
)

// CompileTarget bundles everything needed to compile one named program: the
// program itself, its labeled dataset, and the metric that judges outputs.
type CompileTarget struct {
	Program  *prompt.Program
	Examples []prompt.Example
	Metric   prompt.Metric
}

// CompileService orchestrates optimization runs: it owns the registry of
// compilable programs, launches optimizers asynchronously, persists their
// progress, and publishes events to subscribers.
type CompileService struct {
	repo      ports.OptimizationRepository
	artifacts ports.CompiledProgramRepository
	gen       prompt.Generator
	proposer  prompt.Proposer
	publisher ports.ProgressPublisher
	tx        ports.TransactionManager
	cfg       prompt.OptimizerConfig

	mu      sync.RWMutex
	targets map[string]CompileTarget
	active  map[string]*prompt.Optimizer
}

// Compile-time interface check
var _ ports.CompileUseCase = (*CompileService)(nil)

// NewCompileService creates a compile service with defaults
func NewCompileService(
	repo ports.OptimizationRepository,
	artifacts ports.CompiledProgramRepository,
	gen prompt.Generator,
	cfg prompt.OptimizerConfig,
) *CompileService {
	return &CompileService{
		repo:      repo,
		artifacts: artifacts,
		gen:       gen,
		cfg:       cfg,
		publisher: NewProgressPublisher(),
		targets:   make(map[string]CompileTarget),
		active:    make(map[string]*prompt.Optimizer),
	}
}

// WithProposer sets the instruction proposal collaborator, required for the
// rewrite strategy and recommended for joint search.
func (s *CompileService) WithProposer(p prompt.Proposer) *CompileService {
	s.proposer = p
	return s
}

// WithProgressPublisher sets a custom progress publisher
func (s *CompileService) WithProgressPublisher(publisher ports.ProgressPublisher) *CompileService {
	s.publisher = publisher
	return s
}

// WithTransactionManager makes artifact and run-state writes atomic. Without
// it the two writes happen sequentially.
func (s *CompileService) WithTransactionManager(tx ports.TransactionManager) *CompileService {
	s.tx = tx
	return s
}

// TargetFromSpec builds a compile target from a wire-level program
// definition. Modules run in order; when metricFields is empty the final
// module's outputs are compared.
func TargetFromSpec(moduleSpecs []ports.ModuleSpec, metricFields []string, exampleSpecs []ports.ExampleSpec) (CompileTarget, error) {
	if len(moduleSpecs) == 0 {
		return CompileTarget{}, domain.NewDomainError(domain.ErrInvalidInput, "at least one module is required")
	}

	modules := make([]*prompt.Module, 0, len(moduleSpecs))
	for _, ms := range moduleSpecs {
		sig, err := prompt.ParseSignature(ms.Signature)
		if err != nil {
			return CompileTarget{}, err
		}
		m, err := prompt.NewModule(ms.Name, sig, ms.Instruction)
		if err != nil {
			return CompileTarget{}, err
		}
		modules = append(modules, m)
	}

	program, err := prompt.NewProgram(modules...)
	if err != nil {
		return CompileTarget{}, err
	}

	if len(metricFields) == 0 {
		metricFields = modules[len(modules)-1].Signature.OutputNames()
	}

	examples := make([]prompt.Example, 0, len(exampleSpecs))
	for _, ex := range exampleSpecs {
		examples = append(examples, prompt.NewExample(prompt.Values(ex.Inputs), prompt.Values(ex.Expected)))
	}

	return CompileTarget{
		Program:  program,
		Examples: examples,
		Metric:   prompt.ExactMatch(metricFields...),
	}, nil
}

// RegisterTarget makes a program compilable under the given name
func (s *CompileService) RegisterTarget(name string, target CompileTarget) error {
	if name == "" {
		return domain.NewDomainError(domain.ErrEmptyContent, "target name cannot be empty")
	}
	if target.Program == nil || target.Metric == nil {
		return domain.NewDomainError(domain.ErrInvalidInput, "target requires a program and a metric")
	}
	if len(target.Examples) < 2 {
		return domain.NewDomainError(domain.ErrInvalidInput, "target requires at least two examples")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.targets[name] = target
	return nil
}

// Compile starts an optimization run for a registered program. It returns
// immediately; the run executes in a background goroutine and reports via
// the progress channel.
func (s *CompileService) Compile(ctx context.Context, req *ports.CompileRequest) (*ports.CompileResult, error) {
	if req == nil || req.ProgramName == "" {
		return nil, domain.NewDomainError(domain.ErrEmptyContent, "program name cannot be empty")
	}

	s.mu.RLock()
	target, ok := s.targets[req.ProgramName]
	s.mu.RUnlock()
	if !ok {
		if len(req.Modules) == 0 {
			return nil, domain.NewDomainError(domain.ErrProgramNotFound,
				fmt.Sprintf("no registered program named %q", req.ProgramName))
		}
		var err error
		target, err = TargetFromSpec(req.Modules, req.MetricFields, req.Examples)
		if err != nil {
			return nil, err
		}
		if len(target.Examples) < 2 {
			return nil, domain.NewDomainError(domain.ErrInvalidInput, "inline programs require at least two examples")
		}
	}

	cfg := s.cfg
	if req.Strategy != "" {
		cfg.Strategy = prompt.Strategy(req.Strategy)
	}
	if req.MaxTrials > 0 {
		cfg.MaxTrials = req.MaxTrials
	}
	if req.MaxDemonstrations > 0 {
		cfg.MaxDemonstrations = req.MaxDemonstrations
	}
	if req.ValidationFraction > 0 {
		cfg.ValidationFraction = req.ValidationFraction
	}

	opts := []prompt.OptimizerOption{}
	if s.proposer != nil {
		opts = append(opts, prompt.WithProposer(s.proposer))
	}

	run := models.NewOptimizationRun(id.NewRun(), req.ProgramName, string(cfg.Strategy), cfg.MaxTrials)
	run.Config = map[string]any{
		"max_demonstrations":  cfg.MaxDemonstrations,
		"validation_fraction": cfg.ValidationFraction,
		"minibatch_size":      cfg.MinibatchSize,
	}

	observer := newRunObserver(run, s.repo, s.publisher)
	opts = append(opts, prompt.WithObserver(observer))

	optimizer, err := prompt.NewOptimizer(target.Program, s.gen, target.Metric, cfg, opts...)
	if err != nil {
		return nil, err
	}

	trainset, valset, err := prompt.Partition(target.Examples, cfg.ValidationFraction)
	if err != nil {
		return nil, err
	}

	if err := s.repo.CreateRun(ctx, run); err != nil {
		return nil, domain.NewDomainError(err, "failed to create optimization run")
	}

	s.mu.Lock()
	s.active[run.ID] = optimizer
	s.mu.Unlock()

	progress := s.publisher.Subscribe(run.ID)
	s.publisher.PublishProgress(ports.ProgressEvent{
		Type:      "started",
		RunID:     run.ID,
		MaxTrials: cfg.MaxTrials,
		Status:    models.OptimizationStatusRunning,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})

	go s.executeRun(run, optimizer, trainset, valset)

	return &ports.CompileResult{Run: run, ProgressChannel: progress}, nil
}

// executeRun drives one optimization to completion in the background
func (s *CompileService) executeRun(run *models.OptimizationRun, optimizer *prompt.Optimizer, trainset, valset []prompt.Example) {
	metrics.RunsActive.Inc()
	start := time.Now()
	defer func() {
		metrics.RunsActive.Dec()
		metrics.RunDuration.Observe(time.Since(start).Seconds())
		s.mu.Lock()
		delete(s.active, run.ID)
		s.mu.Unlock()
		s.publisher.Close(run.ID)
	}()

	ctx := context.Background()

	if err := optimizer.Run(ctx, trainset, valset); err != nil {
		s.failRun(ctx, run, err)
		return
	}

	compiled, err := optimizer.Compile()
	if err != nil {
		s.failRun(ctx, run, err)
		return
	}

	payload, err := compiled.Encode()
	if err != nil {
		s.failRun(ctx, run, err)
		return
	}

	bestScore := bestOverallScore(optimizer.Store())
	artifact := models.NewCompiledArtifact(id.NewProgram(), run.ID, run.ProgramName, payload, bestScore)
	run.MarkCompleted(bestScore)

	if err := s.persistCompletion(ctx, run, artifact); err != nil {
		s.failRun(ctx, run, err)
		return
	}

	s.publisher.PublishProgress(ports.ProgressEvent{
		Type:      "completed",
		RunID:     run.ID,
		BestScore: bestScore,
		Status:    models.OptimizationStatusCompleted,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	slog.Info("optimization run completed", "run_id", run.ID, "program", run.ProgramName, "best_score", bestScore)
}

// persistCompletion stores the artifact and the terminal run state. With a
// transaction manager both land in one transaction, so a run is never marked
// completed without its artifact.
func (s *CompileService) persistCompletion(ctx context.Context, run *models.OptimizationRun, artifact *models.CompiledArtifact) error {
	save := func(ctx context.Context) error {
		if err := s.artifacts.SaveArtifact(ctx, artifact); err != nil {
			return err
		}
		return s.repo.UpdateRun(ctx, run)
	}
	if s.tx == nil {
		return save(ctx)
	}
	return s.tx.WithTransaction(ctx, save)
}

func (s *CompileService) failRun(ctx context.Context, run *models.OptimizationRun, cause error) {
	run.MarkFailed(cause.Error())
	if err := s.repo.UpdateRun(ctx, run); err != nil {
		slog.Error("failed to persist failed run", "run_id", run.ID, "error", err)
	}

	status := models.OptimizationStatusFailed
	message := cause.Error()
	if errors.Is(cause, domain.ErrOptimizationStalled) {
		message = "optimization stalled: " + message
	}

	s.publisher.PublishProgress(ports.ProgressEvent{
		Type:      "failed",
		RunID:     run.ID,
		Status:    status,
		Message:   message,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	slog.Warn("optimization run failed", "run_id", run.ID, "program", run.ProgramName, "error", cause)
}

// bestOverallScore returns the highest validation mean across all modules
func bestOverallScore(store *prompt.CandidateStore) float64 {
	var best float64
	for _, moduleName := range store.ModuleNames() {
		cand, err := store.Best(moduleName)
		if err != nil {
			continue
		}
		if mean, n := store.ValidationAggregate(moduleName, cand.ID); n > 0 && mean > best {
			best = mean
		}
	}
	return best
}

// GetProgress returns the progress channel for an active run, or nil when
// the run is unknown or already finished.
func (s *CompileService) GetProgress(runID string) <-chan ports.ProgressEvent {
	s.mu.RLock()
	_, running := s.active[runID]
	s.mu.RUnlock()
	if !running {
		return nil
	}
	return s.publisher.Subscribe(runID)
}

// UnsubscribeProgress releases a progress subscription obtained from
// GetProgress or Compile.
func (s *CompileService) UnsubscribeProgress(runID string, ch <-chan ports.ProgressEvent) {
	s.publisher.Unsubscribe(runID, ch)
}

// Abort stops an active run. The best candidates found so far remain
// selectable; the run still finishes its in-flight evaluations.
func (s *CompileService) Abort(runID string) error {
	s.mu.RLock()
	optimizer, ok := s.active[runID]
	s.mu.RUnlock()
	if !ok {
		return domain.NewDomainError(domain.ErrRunNotFound, fmt.Sprintf("no active run %q", runID))
	}
	optimizer.Abort()
	return nil
}

// GetRun retrieves a run by ID
func (s *CompileService) GetRun(ctx context.Context, runID string) (*models.OptimizationRun, error) {
	if runID == "" {
		return nil, domain.NewDomainError(domain.ErrEmptyContent, "run ID cannot be empty")
	}
	return s.repo.GetRun(ctx, runID)
}

// ListRuns retrieves runs with filtering and pagination
func (s *CompileService) ListRuns(ctx context.Context, status string, limit, offset int) ([]*models.OptimizationRun, error) {
	return s.repo.ListRuns(ctx, ports.ListOptimizationRunsOptions{
		Status: status,
		Limit:  limit,
		Offset: offset,
	})
}

// GetCandidates retrieves the persisted candidates of a run
func (s *CompileService) GetCandidates(ctx context.Context, runID string) ([]*models.CandidateRecord, error) {
	return s.repo.GetCandidates(ctx, runID)
}

// GetArtifact retrieves the compiled artifact produced by a run
func (s *CompileService) GetArtifact(ctx context.Context, runID string) (*models.CompiledArtifact, error) {
	return s.artifacts.GetArtifactByRun(ctx, runID)
}
