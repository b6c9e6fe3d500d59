package prompt

import (
	"context"
	"log/slog"
	"sync"
)

// evaluateCandidate scores one candidate against a set of examples,
// fanning out up to cfg.Concurrency parallel evaluations. Each evaluation
// owns its own trace handle. Failed evaluations are discarded, never
// recorded as zero scores. Returns the number of successfully scored
// examples.
func (o *Optimizer) evaluateCandidate(ctx context.Context, cand *Candidate, examples []Example, split Split) int {
	prog := o.program.withCandidate(cand)

	sem := make(chan struct{}, o.cfg.Concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0

	for _, ex := range examples {
		if o.aborted.Load() || ctx.Err() != nil {
			// Abort stops scheduling; in-flight evaluations drain below.
			break
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(ex Example) {
			defer wg.Done()
			defer func() { <-sem }()

			score, ok := o.evaluateOne(ctx, prog, cand, ex)
			if !ok {
				return
			}

			o.store.Record(cand, ex.ID, split, score)
			o.observer.OnEvaluation(cand, ex.ID, split, score)

			mu.Lock()
			successes++
			mu.Unlock()
		}(ex)
	}

	wg.Wait()
	return successes
}

// evaluateOne runs the program for one example with its own trace and
// applies the metric. Generation failures are retried within the configured
// budget before the evaluation is dropped.
func (o *Optimizer) evaluateOne(ctx context.Context, prog *Program, cand *Candidate, ex Example) (float64, bool) {
	var outputs Values
	var tr *Trace

	err := o.retry(ctx, func(ctx context.Context) error {
		tr = o.recorder.Start()
		var execErr error
		outputs, execErr = prog.Execute(ctx, o.gen, ex.Inputs, WithRecorder(tr))
		o.recorder.Stop(tr)
		return execErr
	})
	if err != nil {
		o.observer.OnCollaboratorFailure(cand.ModuleName, err)
		slog.Debug("evaluation dropped", "module", cand.ModuleName, "example", ex.ID, "error", err)
		return 0, false
	}

	score, err := o.metric(ctx, ex.Expected, outputs, tr)
	if err != nil {
		slog.Debug("metric failed", "module", cand.ModuleName, "example", ex.ID, "error", err)
		return 0, false
	}
	return score, true
}

// minibatch returns a deterministic sample of at most cfg.MinibatchSize
// validation examples for one trial.
func (o *Optimizer) minibatch(valset []Example) []Example {
	if len(valset) <= o.cfg.MinibatchSize {
		return valset
	}
	picks := o.rng.Perm(len(valset))[:o.cfg.MinibatchSize]
	batch := make([]Example, 0, len(picks))
	for _, i := range picks {
		batch = append(batch, valset[i])
	}
	return batch
}
