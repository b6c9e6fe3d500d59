package ports

import (
	"context"

	"github.com/longregen/promptc/internal/domain/models"
)

// ProgressEvent represents a progress update during an optimization run.
// This is the canonical event type for pub/sub progress notifications.
type ProgressEvent struct {
	Type       string  `json:"type"` // "started", "state", "trial", "completed", "failed"
	RunID      string  `json:"run_id"`
	State      string  `json:"state,omitempty"`
	Trial      int     `json:"trial,omitempty"`
	MaxTrials  int     `json:"max_trials,omitempty"`
	ModuleName string  `json:"module_name,omitempty"`
	BestScore  float64 `json:"best_score"`
	Status     string  `json:"status"` // running, completed, failed
	Message    string  `json:"message,omitempty"`
	Timestamp  string  `json:"timestamp"`
}

// ProgressPublisher defines the interface for pub/sub progress notifications.
// Implementations can use SSE, WebSocket, or other transport mechanisms.
type ProgressPublisher interface {
	// Subscribe creates a subscription for progress events for a specific run.
	// Returns a channel that will receive ProgressEvent updates.
	Subscribe(runID string) <-chan ProgressEvent

	// Unsubscribe removes a subscription for a specific run.
	// The channel should be the same one returned by Subscribe.
	Unsubscribe(runID string, ch <-chan ProgressEvent)

	// PublishProgress broadcasts a progress event to all subscribers of the run.
	PublishProgress(event ProgressEvent)

	// Close closes all channels for a run (called when the run finishes).
	Close(runID string)
}

// ModuleSpec is the wire form of one pipeline stage in an inline program
// definition.
type ModuleSpec struct {
	Name        string `json:"name"`
	Signature   string `json:"signature"`
	Instruction string `json:"instruction"`
}

// ExampleSpec is the wire form of one labeled example.
type ExampleSpec struct {
	Inputs   map[string]any `json:"inputs"`
	Expected map[string]any `json:"expected"`
}

// CompileRequest contains the parameters for starting an optimization run.
// The program is either referenced by registered name or defined inline via
// Modules and Examples.
type CompileRequest struct {
	// ProgramName is a human-readable identifier for the program being compiled
	ProgramName string `json:"program_name"`

	// Modules defines the program inline when it is not pre-registered
	Modules []ModuleSpec `json:"modules,omitempty"`

	// Examples is the labeled dataset for an inline program
	Examples []ExampleSpec `json:"examples,omitempty"`

	// MetricFields selects the output fields compared by the exact-match
	// metric for an inline program; defaults to the final module's outputs
	MetricFields []string `json:"metric_fields,omitempty"`

	// Strategy selects the proposal strategy: bootstrap, rewrite, or joint
	Strategy string `json:"strategy"`

	// MaxTrials bounds the number of proposal/evaluation rounds
	MaxTrials int `json:"max_trials,omitempty"`

	// MaxDemonstrations caps demonstrations per module
	MaxDemonstrations int `json:"max_demonstrations,omitempty"`

	// ValidationFraction sets the train/validation split
	ValidationFraction float64 `json:"validation_fraction,omitempty"`
}

// CompileResult contains the outcome of starting an optimization run
type CompileResult struct {
	// Run is the created optimization run
	Run *models.OptimizationRun `json:"run"`

	// ProgressChannel provides real-time progress updates.
	// Consumers should read from this channel until it closes.
	ProgressChannel <-chan ProgressEvent `json:"-"`
}

// CompileUseCase is the main entry point for compiling prompt programs.
type CompileUseCase interface {
	// Compile starts an optimization run and returns immediately with a
	// progress channel. The run executes asynchronously.
	Compile(ctx context.Context, req *CompileRequest) (*CompileResult, error)

	// GetProgress returns a channel for receiving progress updates for an
	// existing run. Returns nil if the run is unknown or already finished.
	GetProgress(runID string) <-chan ProgressEvent
}
