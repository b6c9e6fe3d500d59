package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/longregen/promptc/internal/domain"
	"github.com/longregen/promptc/internal/domain/models"
	"github.com/longregen/promptc/internal/ports"
)

// OptimizationRepository implements ports.OptimizationRepository
type OptimizationRepository struct {
	BaseRepository
}

// NewOptimizationRepository creates a new optimization repository
func NewOptimizationRepository(pool *pgxpool.Pool) *OptimizationRepository {
	return &OptimizationRepository{
		BaseRepository: NewBaseRepository(pool),
	}
}

// CreateRun creates a new optimization run
func (r *OptimizationRepository) CreateRun(ctx context.Context, run *models.OptimizationRun) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	config, err := json.Marshal(run.Config)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO optimization_runs (
			id, program_name, strategy, status, config, baseline_score, best_score,
			trials, max_trials, error, started_at, completed_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14
		)`

	_, err = r.conn(ctx).Exec(ctx, query,
		run.ID,
		run.ProgramName,
		run.Strategy,
		run.Status,
		config,
		run.BaselineScore,
		run.BestScore,
		run.Trials,
		run.MaxTrials,
		nullString(run.Error),
		run.StartedAt,
		nullTime(run.CompletedAt),
		run.CreatedAt,
		run.UpdatedAt,
	)

	return err
}

// GetRun retrieves an optimization run by ID
func (r *OptimizationRepository) GetRun(ctx context.Context, id string) (*models.OptimizationRun, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `
		SELECT id, program_name, strategy, status, config, baseline_score, best_score,
		       trials, max_trials, error, started_at, completed_at, created_at, updated_at
		FROM optimization_runs
		WHERE id = $1 AND deleted_at IS NULL`

	return r.scanRun(r.conn(ctx).QueryRow(ctx, query, id))
}

// UpdateRun updates an existing optimization run
func (r *OptimizationRepository) UpdateRun(ctx context.Context, run *models.OptimizationRun) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	config, err := json.Marshal(run.Config)
	if err != nil {
		return err
	}

	query := `
		UPDATE optimization_runs
		SET status = $1, config = $2, baseline_score = $3, best_score = $4,
		    trials = $5, error = $6, completed_at = $7, updated_at = $8
		WHERE id = $9 AND deleted_at IS NULL`

	result, err := r.conn(ctx).Exec(ctx, query,
		run.Status,
		config,
		run.BaselineScore,
		run.BestScore,
		run.Trials,
		nullString(run.Error),
		nullTime(run.CompletedAt),
		run.UpdatedAt,
		run.ID,
	)
	if err != nil {
		return err
	}

	if result.RowsAffected() == 0 {
		return domain.NewDomainError(domain.ErrRunNotFound, fmt.Sprintf("optimization run %s not found", run.ID))
	}

	return nil
}

// ListRuns retrieves optimization runs with optional filtering and pagination
func (r *OptimizationRepository) ListRuns(ctx context.Context, opts ports.ListOptimizationRunsOptions) ([]*models.OptimizationRun, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}

	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT id, program_name, strategy, status, config, baseline_score, best_score,
		       trials, max_trials, error, started_at, completed_at, created_at, updated_at
		FROM optimization_runs
		WHERE deleted_at IS NULL`

	args := []any{}
	argPos := 1

	if opts.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argPos)
		args = append(args, opts.Status)
		argPos++
	}

	query += " ORDER BY created_at DESC"
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := make([]*models.OptimizationRun, 0)
	for rows.Next() {
		run, err := r.scanRunFields(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

func (r *OptimizationRepository) scanRun(row pgx.Row) (*models.OptimizationRun, error) {
	run, err := r.scanRunFields(row)
	if err != nil {
		if checkNoRows(err) {
			return nil, domain.NewDomainError(domain.ErrRunNotFound, "optimization run not found")
		}
		return nil, err
	}
	return run, nil
}

func (r *OptimizationRepository) scanRunFields(row pgx.Row) (*models.OptimizationRun, error) {
	var run models.OptimizationRun
	var config []byte
	var errMsg sql.NullString
	var completedAt sql.NullTime

	err := row.Scan(
		&run.ID,
		&run.ProgramName,
		&run.Strategy,
		&run.Status,
		&config,
		&run.BaselineScore,
		&run.BestScore,
		&run.Trials,
		&run.MaxTrials,
		&errMsg,
		&run.StartedAt,
		&completedAt,
		&run.CreatedAt,
		&run.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(config) > 0 {
		if err := json.Unmarshal(config, &run.Config); err != nil {
			run.Config = make(map[string]any)
		}
	} else {
		run.Config = make(map[string]any)
	}

	run.Error = getString(errMsg)
	run.CompletedAt = getTimePtr(completedAt)

	return &run, nil
}

// SaveCandidate inserts or refreshes a candidate record
func (r *OptimizationRepository) SaveCandidate(ctx context.Context, candidate *models.CandidateRecord) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	demos, err := json.Marshal(candidate.Demos)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO optimization_candidates (
			id, run_id, module_name, instruction, demos, strategy, trial,
			score, sample_count, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
		)
		ON CONFLICT (id) DO UPDATE SET
			score = EXCLUDED.score,
			sample_count = EXCLUDED.sample_count,
			updated_at = EXCLUDED.updated_at`

	_, err = r.conn(ctx).Exec(ctx, query,
		candidate.ID,
		candidate.RunID,
		candidate.ModuleName,
		candidate.Instruction,
		demos,
		candidate.Strategy,
		candidate.Trial,
		candidate.Score,
		candidate.SampleCount,
		candidate.CreatedAt,
		candidate.UpdatedAt,
	)

	return err
}

// GetCandidates retrieves all candidates for a run
func (r *OptimizationRepository) GetCandidates(ctx context.Context, runID string) ([]*models.CandidateRecord, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `
		SELECT id, run_id, module_name, instruction, demos, strategy, trial,
		       score, sample_count, created_at, updated_at
		FROM optimization_candidates
		WHERE run_id = $1 AND deleted_at IS NULL
		ORDER BY trial ASC, created_at ASC`

	rows, err := r.conn(ctx).Query(ctx, query, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	candidates := make([]*models.CandidateRecord, 0)
	for rows.Next() {
		candidate, err := r.scanCandidateFields(rows)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, candidate)
	}

	return candidates, rows.Err()
}

// GetBestCandidate retrieves the highest-scoring candidate for one module of a run
func (r *OptimizationRepository) GetBestCandidate(ctx context.Context, runID, moduleName string) (*models.CandidateRecord, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `
		SELECT id, run_id, module_name, instruction, demos, strategy, trial,
		       score, sample_count, created_at, updated_at
		FROM optimization_candidates
		WHERE run_id = $1 AND module_name = $2 AND sample_count > 0 AND deleted_at IS NULL
		ORDER BY score DESC, trial ASC, created_at ASC
		LIMIT 1`

	candidate, err := r.scanCandidateFields(r.conn(ctx).QueryRow(ctx, query, runID, moduleName))
	if err != nil {
		if checkNoRows(err) {
			return nil, domain.NewDomainError(domain.ErrNoCandidates,
				fmt.Sprintf("no scored candidates for module %s in run %s", moduleName, runID))
		}
		return nil, err
	}
	return candidate, nil
}

func (r *OptimizationRepository) scanCandidateFields(row pgx.Row) (*models.CandidateRecord, error) {
	var candidate models.CandidateRecord
	var demos []byte

	err := row.Scan(
		&candidate.ID,
		&candidate.RunID,
		&candidate.ModuleName,
		&candidate.Instruction,
		&demos,
		&candidate.Strategy,
		&candidate.Trial,
		&candidate.Score,
		&candidate.SampleCount,
		&candidate.CreatedAt,
		&candidate.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(demos) > 0 {
		if err := json.Unmarshal(demos, &candidate.Demos); err != nil {
			candidate.Demos = nil
		}
	}
	candidate.Meta = make(map[string]any)

	return &candidate, nil
}

// SaveEvaluation inserts one evaluation record
func (r *OptimizationRepository) SaveEvaluation(ctx context.Context, eval *models.EvaluationRecord) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `
		INSERT INTO optimization_evaluations (
			id, candidate_id, run_id, example_id, split, score, latency_ms, error, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		)`

	_, err := r.conn(ctx).Exec(ctx, query,
		eval.ID,
		eval.CandidateID,
		eval.RunID,
		eval.ExampleID,
		eval.Split,
		eval.Score,
		eval.LatencyMs,
		nullString(eval.Error),
		eval.CreatedAt,
	)

	return err
}

// GetEvaluations retrieves all evaluations for a candidate
func (r *OptimizationRepository) GetEvaluations(ctx context.Context, candidateID string) ([]*models.EvaluationRecord, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `
		SELECT id, candidate_id, run_id, example_id, split, score, latency_ms, error, created_at
		FROM optimization_evaluations
		WHERE candidate_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC`

	rows, err := r.conn(ctx).Query(ctx, query, candidateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	evaluations := make([]*models.EvaluationRecord, 0)
	for rows.Next() {
		var eval models.EvaluationRecord
		var errMsg sql.NullString

		err := rows.Scan(
			&eval.ID,
			&eval.CandidateID,
			&eval.RunID,
			&eval.ExampleID,
			&eval.Split,
			&eval.Score,
			&eval.LatencyMs,
			&errMsg,
			&eval.CreatedAt,
		)
		if err != nil {
			return nil, err
		}

		eval.Error = getString(errMsg)
		evaluations = append(evaluations, &eval)
	}

	return evaluations, rows.Err()
}
