package prompt

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/longregen/promptc/internal/domain"
	"github.com/longregen/promptc/shared/backoff"
)

// Strategy selects how the optimizer proposes candidates.
type Strategy string

const (
	// StrategyBootstrap bootstraps few-shot demonstrations from successful
	// traces, leaving instructions unchanged.
	StrategyBootstrap Strategy = "bootstrap"
	// StrategyRewrite searches instruction texts per module, coordinate
	// style, with demonstrations held fixed.
	StrategyRewrite Strategy = "rewrite"
	// StrategyJoint searches instructions and demonstration subsets jointly
	// under a UCB1 acquisition rule.
	StrategyJoint Strategy = "joint"
)

// State is the optimizer lifecycle state.
type State string

const (
	StateUncompiled State = "uncompiled"
	StateProposing  State = "proposing"
	StateEvaluating State = "evaluating"
	StateSelecting  State = "selecting"
	StateCompiled   State = "compiled"
)

// OptimizerConfig configures one optimization run.
type OptimizerConfig struct {
	// MaxTrials bounds the number of proposal/evaluation rounds.
	MaxTrials int

	// Strategy selects the proposal strategy.
	Strategy Strategy

	// MaxDemonstrations caps the demonstrations attached to any one module.
	MaxDemonstrations int

	// ValidationFraction is used by Partition when the caller does not
	// provide an explicit split.
	ValidationFraction float64

	// Concurrency bounds parallel (candidate, example) evaluations.
	Concurrency int

	// RetryLimit bounds retries of a failed collaborator call within one
	// trial before the trial is skipped.
	RetryLimit int

	// RetryDelay is the fixed delay between retries.
	RetryDelay time.Duration

	// PatienceWindow halts the joint strategy after this many trials
	// without improvement.
	PatienceWindow int

	// MinibatchSize bounds the validation examples scored per trial in the
	// rewrite and joint strategies.
	MinibatchSize int

	// BootstrapThreshold is the minimum metric score for a trace to seed
	// demonstrations.
	BootstrapThreshold float64

	// Seed makes demonstration subset sampling reproducible.
	Seed int64
}

// DefaultOptimizerConfig returns sensible defaults.
func DefaultOptimizerConfig() OptimizerConfig {
	return OptimizerConfig{
		MaxTrials:          20,
		Strategy:           StrategyBootstrap,
		MaxDemonstrations:  4,
		ValidationFraction: 0.3,
		Concurrency:        3,
		RetryLimit:         2,
		RetryDelay:         500 * time.Millisecond,
		PatienceWindow:     5,
		MinibatchSize:      8,
		BootstrapThreshold: 1.0,
		Seed:               1,
	}
}

// Validate checks the configuration surface.
func (c OptimizerConfig) Validate() error {
	if c.MaxTrials < 1 {
		return domain.NewDomainError(domain.ErrInvalidInput, "maxTrials must be positive")
	}
	switch c.Strategy {
	case StrategyBootstrap, StrategyRewrite, StrategyJoint:
	default:
		return domain.NewDomainError(domain.ErrInvalidInput, fmt.Sprintf("unknown proposal strategy %q", c.Strategy))
	}
	if c.MaxDemonstrations < 0 {
		return domain.NewDomainError(domain.ErrInvalidInput, "maxDemonstrationsPerModule cannot be negative")
	}
	if c.ValidationFraction <= 0 || c.ValidationFraction >= 1 {
		return domain.NewDomainError(domain.ErrInvalidInput, "validationFraction must be in (0, 1)")
	}
	if c.Concurrency < 1 {
		return domain.NewDomainError(domain.ErrInvalidInput, "concurrencyLimit must be positive")
	}
	if c.RetryLimit < 0 {
		return domain.NewDomainError(domain.ErrInvalidInput, "retryLimit cannot be negative")
	}
	if c.Strategy == StrategyJoint && c.PatienceWindow < 1 {
		return domain.NewDomainError(domain.ErrInvalidInput, "patienceWindow must be positive for the joint strategy")
	}
	if c.MinibatchSize < 1 {
		return domain.NewDomainError(domain.ErrInvalidInput, "minibatchSize must be positive")
	}
	return nil
}

// Observer receives optimizer lifecycle callbacks. Implementations must be
// safe for concurrent use; evaluation callbacks arrive from worker
// goroutines.
type Observer interface {
	OnStateChange(state State)
	OnCandidate(c *Candidate)
	OnEvaluation(c *Candidate, exampleID string, split Split, score float64)
	OnTrial(trial int, moduleName string, bestScore float64)
	OnCollaboratorFailure(moduleName string, err error)
}

// NoopObserver ignores all callbacks.
type NoopObserver struct{}

func (NoopObserver) OnStateChange(State)                               {}
func (NoopObserver) OnCandidate(*Candidate)                            {}
func (NoopObserver) OnEvaluation(*Candidate, string, Split, float64)   {}
func (NoopObserver) OnTrial(int, string, float64)                      {}
func (NoopObserver) OnCollaboratorFailure(string, error)               {}

// Optimizer compiles one program against one example split, metric, and
// trial budget. It cannot be reused for a different program.
type Optimizer struct {
	cfg      OptimizerConfig
	program  *Program
	gen      Generator
	proposer Proposer
	metric   Metric
	store    *CandidateStore
	recorder *Recorder
	observer Observer
	rng      *rand.Rand

	mu       sync.Mutex
	state    State
	baseline *Candidate
	aborted  atomic.Bool
}

// OptimizerOption configures optional collaborators.
type OptimizerOption func(*Optimizer)

// WithProposer attaches the instruction proposal collaborator.
func WithProposer(p Proposer) OptimizerOption {
	return func(o *Optimizer) { o.proposer = p }
}

// WithObserver attaches a lifecycle observer.
func WithObserver(obs Observer) OptimizerOption {
	return func(o *Optimizer) { o.observer = obs }
}

// NewOptimizer validates the configuration and binds the optimizer to one
// program, generator, and metric.
func NewOptimizer(program *Program, gen Generator, metric Metric, cfg OptimizerConfig, opts ...OptimizerOption) (*Optimizer, error) {
	if program == nil {
		return nil, domain.NewDomainError(domain.ErrInvalidInput, "program is required")
	}
	if gen == nil {
		return nil, domain.NewDomainError(domain.ErrInvalidInput, "generator is required")
	}
	if metric == nil {
		return nil, domain.NewDomainError(domain.ErrInvalidInput, "metric is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &Optimizer{
		cfg:      cfg,
		program:  program,
		gen:      gen,
		metric:   metric,
		store:    NewCandidateStore(),
		recorder: NewRecorder(),
		observer: NoopObserver{},
		rng:      rand.New(rand.NewSource(cfg.Seed)),
		state:    StateUncompiled,
	}
	for _, opt := range opts {
		opt(o)
	}

	if cfg.Strategy == StrategyRewrite && o.proposer == nil {
		return nil, domain.NewDomainError(domain.ErrInvalidInput, "rewrite strategy requires a proposer")
	}

	return o, nil
}

// State returns the current lifecycle state.
func (o *Optimizer) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Store exposes the candidate store, including after a stalled run, so the
// last-known-good candidates remain available for diagnostics.
func (o *Optimizer) Store() *CandidateStore {
	return o.store
}

// Abort stops the optimizer from issuing new trials. In-flight evaluations
// drain; the best candidates found so far remain selectable.
func (o *Optimizer) Abort() {
	o.aborted.Store(true)
}

func (o *Optimizer) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
	o.observer.OnStateChange(s)
}

// Run executes the configured proposal strategy over the training and
// validation subsets. It may be called exactly once.
func (o *Optimizer) Run(ctx context.Context, trainset, valset []Example) error {
	o.mu.Lock()
	if o.state != StateUncompiled {
		o.mu.Unlock()
		return domain.NewDomainError(domain.ErrInvalidState, fmt.Sprintf("cannot run in state %q", o.state))
	}
	o.state = StateProposing
	o.mu.Unlock()
	o.observer.OnStateChange(StateProposing)

	if len(trainset) == 0 {
		return domain.NewDomainError(domain.ErrEmptyContent, "training set cannot be empty")
	}
	if len(valset) == 0 {
		return domain.NewDomainError(domain.ErrEmptyContent, "validation set cannot be empty")
	}

	var err error
	switch o.cfg.Strategy {
	case StrategyBootstrap:
		err = o.runBootstrap(ctx, trainset, valset)
	case StrategyRewrite:
		err = o.runRewrite(ctx, valset)
	case StrategyJoint:
		err = o.runJoint(ctx, trainset, valset)
	}
	if err != nil {
		return err
	}

	o.setState(StateSelecting)
	return nil
}

// Compile freezes every module in the program to its winning candidate and
// returns the immutable compiled program. A second call fails with
// ErrAlreadyCompiled.
func (o *Optimizer) Compile() (*CompiledProgram, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch o.state {
	case StateCompiled:
		return nil, domain.NewDomainError(domain.ErrAlreadyCompiled, "compile called twice on the same optimizer")
	case StateSelecting:
	default:
		return nil, domain.NewDomainError(domain.ErrInvalidState, fmt.Sprintf("cannot compile in state %q", o.state))
	}

	frozen := o.program.clone()
	for _, m := range frozen.Modules() {
		best, err := o.store.Best(m.Name)
		if err != nil {
			return nil, domain.NewDomainError(domain.ErrIncompleteCompilation,
				fmt.Sprintf("module %q was never exercised by a scored candidate", m.Name))
		}
		m.Instruction = best.Instruction
		m.Demos = cloneDemos(best.Demos)
	}

	o.state = StateCompiled
	return &CompiledProgram{program: frozen}, nil
}

// retry runs fn with the configured bounded retry budget. RetryLimit 0 means
// a single attempt.
func (o *Optimizer) retry(ctx context.Context, fn func(ctx context.Context) error) error {
	strategy := backoff.Fixed(o.cfg.RetryLimit+1, o.cfg.RetryDelay)
	return backoff.Retry(ctx, strategy, func(ctx context.Context, attempt int) error {
		return fn(ctx)
	})
}
