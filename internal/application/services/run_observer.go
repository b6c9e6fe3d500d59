package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/longregen/promptc/internal/adapters/metrics"
	"github.com/longregen/promptc/internal/domain/models"
	"github.com/longregen/promptc/internal/ports"
	"github.com/longregen/promptc/internal/prompt"
	"github.com/longregen/promptc/shared/id"
)

const persistTimeout = 10 * time.Second

// runObserver receives optimizer callbacks for one run and fans them out to
// persistence, metrics, and the progress publisher. Persistence failures are
// logged, never propagated: losing a record must not kill the run.
type runObserver struct {
	run       *models.OptimizationRun
	repo      ports.OptimizationRepository
	publisher ports.ProgressPublisher

	mu         sync.Mutex
	candidates map[string]*models.CandidateRecord
}

var _ prompt.Observer = (*runObserver)(nil)

func newRunObserver(run *models.OptimizationRun, repo ports.OptimizationRepository, publisher ports.ProgressPublisher) *runObserver {
	return &runObserver{
		run:        run,
		repo:       repo,
		publisher:  publisher,
		candidates: make(map[string]*models.CandidateRecord),
	}
}

func (o *runObserver) OnStateChange(state prompt.State) {
	o.publisher.PublishProgress(ports.ProgressEvent{
		Type:      "state",
		RunID:     o.run.ID,
		State:     string(state),
		Status:    models.OptimizationStatusRunning,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (o *runObserver) OnCandidate(c *prompt.Candidate) {
	record := models.NewCandidateRecord(c.ID, o.run.ID, c.ModuleName, c.Instruction, string(c.Strategy), c.Trial)
	for _, d := range c.Demos {
		record.Demos = append(record.Demos, d)
	}

	o.mu.Lock()
	o.candidates[c.ID] = record
	o.mu.Unlock()

	o.persist(func(ctx context.Context) error {
		return o.repo.SaveCandidate(ctx, record)
	})
}

func (o *runObserver) OnEvaluation(c *prompt.Candidate, exampleID string, split prompt.Split, score float64) {
	metrics.EvaluationsTotal.WithLabelValues(string(split), "scored").Inc()

	eval := models.NewEvaluationRecord(id.NewEvaluation(), c.ID, o.run.ID, exampleID, string(split), score, 0)
	o.persist(func(ctx context.Context) error {
		return o.repo.SaveEvaluation(ctx, eval)
	})

	// Snapshot under the lock: evaluations arrive from worker goroutines.
	o.mu.Lock()
	record, ok := o.candidates[c.ID]
	var snapshot models.CandidateRecord
	if ok {
		record.RecordScore(score)
		snapshot = *record
	}
	o.mu.Unlock()

	if ok {
		o.persist(func(ctx context.Context) error {
			return o.repo.SaveCandidate(ctx, &snapshot)
		})
	}
}

func (o *runObserver) OnTrial(trial int, moduleName string, bestScore float64) {
	metrics.TrialsTotal.WithLabelValues(o.run.Strategy).Inc()

	o.mu.Lock()
	o.run.Trials = trial
	if bestScore > o.run.BestScore {
		o.run.BestScore = bestScore
	}
	o.run.UpdatedAt = time.Now().UTC()
	snapshot := *o.run
	o.mu.Unlock()

	o.persist(func(ctx context.Context) error {
		return o.repo.UpdateRun(ctx, &snapshot)
	})

	o.publisher.PublishProgress(ports.ProgressEvent{
		Type:       "trial",
		RunID:      o.run.ID,
		Trial:      trial,
		MaxTrials:  o.run.MaxTrials,
		ModuleName: moduleName,
		BestScore:  bestScore,
		Status:     models.OptimizationStatusRunning,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	})
}

func (o *runObserver) OnCollaboratorFailure(moduleName string, err error) {
	metrics.CollaboratorFailuresTotal.Inc()
	metrics.EvaluationsTotal.WithLabelValues("", "failed").Inc()
	slog.Debug("collaborator failure", "run_id", o.run.ID, "module", moduleName, "error", err)
}

func (o *runObserver) persist(fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		slog.Error("failed to persist optimization progress", "run_id", o.run.ID, "error", err)
	}
}
