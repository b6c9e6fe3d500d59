package postgres

import (
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"

	"github.com/longregen/promptc/internal/domain"
	"github.com/longregen/promptc/internal/domain/models"
	"github.com/longregen/promptc/internal/ports"
)

func TestOptimizationRepository_CreateRun(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	repo := &OptimizationRepository{
		BaseRepository: BaseRepository{pool: nil},
	}

	run := models.NewOptimizationRun("run_1", "qa_pipeline", "bootstrap", 20)
	run.Config["max_demonstrations"] = float64(4)

	mock.ExpectExec("INSERT INTO optimization_runs").
		WithArgs(
			run.ID, run.ProgramName, run.Strategy, run.Status, pgxmock.AnyArg(),
			run.BaselineScore, run.BestScore, run.Trials, run.MaxTrials,
			nullString(run.Error), run.StartedAt, nullTime(run.CompletedAt),
			run.CreatedAt, run.UpdatedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	ctx := setupMockContext(mock)
	if err := repo.CreateRun(ctx, run); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestOptimizationRepository_GetRun(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	repo := &OptimizationRepository{
		BaseRepository: BaseRepository{pool: nil},
	}

	runID := "run_1"
	now := time.Now()
	configJSON, _ := json.Marshal(map[string]any{"max_demonstrations": float64(4)})

	rows := pgxmock.NewRows([]string{
		"id", "program_name", "strategy", "status", "config", "baseline_score", "best_score",
		"trials", "max_trials", "error", "started_at", "completed_at", "created_at", "updated_at",
	}).AddRow(
		runID, "qa_pipeline", "joint", models.OptimizationStatusCompleted, configJSON,
		0.4, 0.95, 12, 20, sql.NullString{}, now,
		sql.NullTime{Time: now, Valid: true}, now, now,
	)

	mock.ExpectQuery("SELECT (.+) FROM optimization_runs").
		WithArgs(runID).
		WillReturnRows(rows)

	ctx := setupMockContext(mock)
	run, err := repo.GetRun(ctx, runID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if run.ID != runID {
		t.Errorf("expected ID %s, got %s", runID, run.ID)
	}
	if run.Strategy != "joint" {
		t.Errorf("expected strategy joint, got %s", run.Strategy)
	}
	if run.BestScore != 0.95 {
		t.Errorf("expected best score 0.95, got %f", run.BestScore)
	}
	if run.Trials != 12 {
		t.Errorf("expected 12 trials, got %d", run.Trials)
	}
	if run.CompletedAt == nil {
		t.Error("expected CompletedAt to be set")
	}
	if run.Config["max_demonstrations"] != float64(4) {
		t.Errorf("config not round-tripped: %v", run.Config)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestOptimizationRepository_GetRunNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	repo := &OptimizationRepository{
		BaseRepository: BaseRepository{pool: nil},
	}

	mock.ExpectQuery("SELECT (.+) FROM optimization_runs").
		WithArgs("run_missing").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "program_name", "strategy", "status", "config", "baseline_score", "best_score",
			"trials", "max_trials", "error", "started_at", "completed_at", "created_at", "updated_at",
		}))

	ctx := setupMockContext(mock)
	_, err = repo.GetRun(ctx, "run_missing")
	if !errors.Is(err, domain.ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}
}

func TestOptimizationRepository_UpdateRunNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	repo := &OptimizationRepository{
		BaseRepository: BaseRepository{pool: nil},
	}

	run := models.NewOptimizationRun("run_missing", "qa_pipeline", "rewrite", 10)

	mock.ExpectExec("UPDATE optimization_runs").
		WithArgs(
			run.Status, pgxmock.AnyArg(), run.BaselineScore, run.BestScore,
			run.Trials, nullString(run.Error), nullTime(run.CompletedAt),
			run.UpdatedAt, run.ID,
		).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	ctx := setupMockContext(mock)
	if err := repo.UpdateRun(ctx, run); !errors.Is(err, domain.ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}
}

func TestOptimizationRepository_ListRunsWithStatusFilter(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	repo := &OptimizationRepository{
		BaseRepository: BaseRepository{pool: nil},
	}

	now := time.Now()
	rows := pgxmock.NewRows([]string{
		"id", "program_name", "strategy", "status", "config", "baseline_score", "best_score",
		"trials", "max_trials", "error", "started_at", "completed_at", "created_at", "updated_at",
	}).AddRow(
		"run_1", "qa_pipeline", "bootstrap", models.OptimizationStatusRunning, []byte(nil),
		0.0, 0.0, 3, 20, sql.NullString{}, now, sql.NullTime{}, now, now,
	)

	mock.ExpectQuery("SELECT (.+) FROM optimization_runs").
		WithArgs(models.OptimizationStatusRunning, 50, 0).
		WillReturnRows(rows)

	ctx := setupMockContext(mock)
	runs, err := repo.ListRuns(ctx, ports.ListOptimizationRunsOptions{Status: models.OptimizationStatusRunning})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	if runs[0].Config == nil {
		t.Error("expected Config to be initialized for empty column")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestOptimizationRepository_SaveCandidate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	repo := &OptimizationRepository{
		BaseRepository: BaseRepository{pool: nil},
	}

	candidate := models.NewCandidateRecord("cand_1", "run_1", "qa", "answer concisely", "rewrite", 3)
	candidate.RecordScore(0.8)

	mock.ExpectExec("INSERT INTO optimization_candidates").
		WithArgs(
			candidate.ID, candidate.RunID, candidate.ModuleName, candidate.Instruction,
			pgxmock.AnyArg(), candidate.Strategy, candidate.Trial,
			candidate.Score, candidate.SampleCount, candidate.CreatedAt, candidate.UpdatedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	ctx := setupMockContext(mock)
	if err := repo.SaveCandidate(ctx, candidate); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestOptimizationRepository_GetBestCandidateNone(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	repo := &OptimizationRepository{
		BaseRepository: BaseRepository{pool: nil},
	}

	mock.ExpectQuery("SELECT (.+) FROM optimization_candidates").
		WithArgs("run_1", "qa").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "run_id", "module_name", "instruction", "demos", "strategy", "trial",
			"score", "sample_count", "created_at", "updated_at",
		}))

	ctx := setupMockContext(mock)
	_, err = repo.GetBestCandidate(ctx, "run_1", "qa")
	if !errors.Is(err, domain.ErrNoCandidates) {
		t.Errorf("expected ErrNoCandidates, got %v", err)
	}
}

func TestOptimizationRepository_SaveEvaluation(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	repo := &OptimizationRepository{
		BaseRepository: BaseRepository{pool: nil},
	}

	eval := models.NewEvaluationRecord("ev_1", "cand_1", "run_1", "ex_1", "validation", 1.0, 42)

	mock.ExpectExec("INSERT INTO optimization_evaluations").
		WithArgs(
			eval.ID, eval.CandidateID, eval.RunID, eval.ExampleID, eval.Split,
			eval.Score, eval.LatencyMs, nullString(eval.Error), eval.CreatedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	ctx := setupMockContext(mock)
	if err := repo.SaveEvaluation(ctx, eval); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestOptimizationRepository_GetEvaluations(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	repo := &OptimizationRepository{
		BaseRepository: BaseRepository{pool: nil},
	}

	now := time.Now()
	rows := pgxmock.NewRows([]string{
		"id", "candidate_id", "run_id", "example_id", "split", "score", "latency_ms", "error", "created_at",
	}).AddRow(
		"ev_1", "cand_1", "run_1", "ex_1", "validation", 1.0, int64(42), sql.NullString{}, now,
	)

	mock.ExpectQuery("SELECT (.+) FROM optimization_evaluations").
		WithArgs("cand_1").
		WillReturnRows(rows)

	ctx := setupMockContext(mock)
	evals, err := repo.GetEvaluations(ctx, "cand_1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(evals) != 1 {
		t.Fatalf("expected 1 evaluation, got %d", len(evals))
	}
	if evals[0].Split != "validation" {
		t.Errorf("expected validation split, got %s", evals[0].Split)
	}
}
