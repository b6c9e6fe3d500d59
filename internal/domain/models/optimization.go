package models

import (
	"time"
)

// OptimizationRun represents one compilation of a program against a dataset
type OptimizationRun struct {
	ID            string         `json:"id"`
	ProgramName   string         `json:"program_name"`
	Strategy      string         `json:"strategy"`
	Status        string         `json:"status"` // "running", "completed", "failed"
	BaselineScore float64        `json:"baseline_score,omitempty"`
	BestScore     float64        `json:"best_score,omitempty"`
	Trials        int            `json:"trials"`
	MaxTrials     int            `json:"max_trials"`
	Config        map[string]any `json:"config,omitempty"`
	Error         string         `json:"error,omitempty"`
	StartedAt     time.Time      `json:"started_at"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// OptimizationRun status values
const (
	OptimizationStatusRunning   = "running"
	OptimizationStatusCompleted = "completed"
	OptimizationStatusFailed    = "failed"
)

func NewOptimizationRun(id, programName, strategy string, maxTrials int) *OptimizationRun {
	now := time.Now().UTC()
	return &OptimizationRun{
		ID:          id,
		ProgramName: programName,
		Strategy:    strategy,
		Status:      OptimizationStatusRunning,
		MaxTrials:   maxTrials,
		Config:      make(map[string]any),
		StartedAt:   now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (r *OptimizationRun) MarkCompleted(bestScore float64) {
	now := time.Now().UTC()
	r.Status = OptimizationStatusCompleted
	r.BestScore = bestScore
	r.CompletedAt = &now
	r.UpdatedAt = now
}

func (r *OptimizationRun) MarkFailed(errMsg string) {
	now := time.Now().UTC()
	r.Status = OptimizationStatusFailed
	r.Error = errMsg
	r.CompletedAt = &now
	r.UpdatedAt = now
}

// CandidateRecord is the persisted form of one explored candidate
type CandidateRecord struct {
	ID          string         `json:"id"`
	RunID       string         `json:"run_id"`
	ModuleName  string         `json:"module_name"`
	Instruction string         `json:"instruction"`
	Demos       []any          `json:"demos,omitempty"`
	Strategy    string         `json:"strategy"`
	Trial       int            `json:"trial"`
	Score       float64        `json:"score"`
	SampleCount int            `json:"sample_count"`
	Meta        map[string]any `json:"meta,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

func NewCandidateRecord(id, runID, moduleName, instruction, strategy string, trial int) *CandidateRecord {
	now := time.Now().UTC()
	return &CandidateRecord{
		ID:          id,
		RunID:       runID,
		ModuleName:  moduleName,
		Instruction: instruction,
		Strategy:    strategy,
		Trial:       trial,
		Meta:        make(map[string]any),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// RecordScore folds one evaluation into the running mean
func (c *CandidateRecord) RecordScore(score float64) {
	c.SampleCount++
	c.Score = ((c.Score * float64(c.SampleCount-1)) + score) / float64(c.SampleCount)
	c.UpdatedAt = time.Now().UTC()
}

// EvaluationRecord is one scored (candidate, example) pair
type EvaluationRecord struct {
	ID          string    `json:"id"`
	CandidateID string    `json:"candidate_id"`
	RunID       string    `json:"run_id"`
	ExampleID   string    `json:"example_id"`
	Split       string    `json:"split"`
	Score       float64   `json:"score"`
	LatencyMs   int64     `json:"latency_ms"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func NewEvaluationRecord(id, candidateID, runID, exampleID, split string, score float64, latencyMs int64) *EvaluationRecord {
	return &EvaluationRecord{
		ID:          id,
		CandidateID: candidateID,
		RunID:       runID,
		ExampleID:   exampleID,
		Split:       split,
		Score:       score,
		LatencyMs:   latencyMs,
		CreatedAt:   time.Now().UTC(),
	}
}

// CompiledArtifact is the persisted frozen program produced by a run
type CompiledArtifact struct {
	ID        string    `json:"id"`
	RunID     string    `json:"run_id"`
	Name      string    `json:"name"`
	Payload   []byte    `json:"-"`
	BestScore float64   `json:"best_score"`
	CreatedAt time.Time `json:"created_at"`
}

func NewCompiledArtifact(id, runID, name string, payload []byte, bestScore float64) *CompiledArtifact {
	return &CompiledArtifact{
		ID:        id,
		RunID:     runID,
		Name:      name,
		Payload:   payload,
		BestScore: bestScore,
		CreatedAt: time.Now().UTC(),
	}
}
