package ports

import (
	"context"

	"github.com/longregen/promptc/internal/domain/models"
)

// ListOptimizationRunsOptions filters and paginates run listings
type ListOptimizationRunsOptions struct {
	Status string
	Limit  int
	Offset int
}

// OptimizationRepository persists runs, candidates, and evaluations
type OptimizationRepository interface {
	CreateRun(ctx context.Context, run *models.OptimizationRun) error
	GetRun(ctx context.Context, id string) (*models.OptimizationRun, error)
	UpdateRun(ctx context.Context, run *models.OptimizationRun) error
	ListRuns(ctx context.Context, opts ListOptimizationRunsOptions) ([]*models.OptimizationRun, error)

	SaveCandidate(ctx context.Context, candidate *models.CandidateRecord) error
	GetCandidates(ctx context.Context, runID string) ([]*models.CandidateRecord, error)
	GetBestCandidate(ctx context.Context, runID, moduleName string) (*models.CandidateRecord, error)

	SaveEvaluation(ctx context.Context, eval *models.EvaluationRecord) error
	GetEvaluations(ctx context.Context, candidateID string) ([]*models.EvaluationRecord, error)
}

// CompiledProgramRepository persists frozen program artifacts
type CompiledProgramRepository interface {
	SaveArtifact(ctx context.Context, artifact *models.CompiledArtifact) error
	GetArtifact(ctx context.Context, id string) (*models.CompiledArtifact, error)
	GetArtifactByRun(ctx context.Context, runID string) (*models.CompiledArtifact, error)
	ListArtifacts(ctx context.Context, limit, offset int) ([]*models.CompiledArtifact, error)
}

// TransactionManager runs a function inside a database transaction
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
