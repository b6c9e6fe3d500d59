package prompt

import (
	"context"
	"log/slog"
	"sort"

	"github.com/longregen/promptc/internal/domain"
)

// scoredDemo is a demonstration together with the metric score of the trace
// it was synthesized from and its insertion order, used for cap enforcement.
type scoredDemo struct {
	demo  Demonstration
	score float64
	order int
}

// runBootstrap implements the demonstration-selection strategy: execute the
// current program over the training set with tracing, and for every example
// whose output meets the acceptance threshold, synthesize demonstrations
// from the trace for every module involved. Instructions are left unchanged.
func (o *Optimizer) runBootstrap(ctx context.Context, trainset, valset []Example) error {
	pool, err := o.collectDemonstrations(ctx, trainset)
	if err != nil {
		return err
	}

	o.setState(StateEvaluating)

	for _, m := range o.program.Modules() {
		demos, ok := pool[m.Name]
		if !ok {
			// Module never appeared in an accepted trace; it will surface
			// as IncompleteCompilation if still unscored at compile time.
			slog.Warn("no demonstrations bootstrapped for module", "module", m.Name)
			continue
		}

		cand := NewCandidate(m.Name, m.Instruction, capDemonstrations(demos, o.cfg.MaxDemonstrations), StrategyBootstrap, 0)
		o.store.Register(cand)
		o.observer.OnCandidate(cand)

		n := o.evaluateCandidate(ctx, cand, valset, SplitValidation)
		o.observer.OnTrial(0, m.Name, meanOrZero(o.store.ValidationAggregate(m.Name, cand.ID)))
		if n == 0 && !o.aborted.Load() {
			return domain.NewDomainError(domain.ErrOptimizationStalled,
				"no validation example could be evaluated for module "+m.Name)
		}
	}

	return nil
}

// collectDemonstrations runs every training example under tracing and pools
// per-module demonstrations from the traces that meet the acceptance
// threshold. Demonstrations from a composite module's trace stay local to
// the module that produced each entry; nothing is shared between parent and
// child pools.
func (o *Optimizer) collectDemonstrations(ctx context.Context, trainset []Example) (map[string][]scoredDemo, error) {
	pool := make(map[string][]scoredDemo)
	order := 0
	executed := 0

	for _, ex := range trainset {
		if o.aborted.Load() || ctx.Err() != nil {
			break
		}

		var outputs Values
		var tr *Trace
		err := o.retry(ctx, func(ctx context.Context) error {
			tr = o.recorder.Start()
			var execErr error
			outputs, execErr = o.program.Execute(ctx, o.gen, ex.Inputs, WithRecorder(tr))
			o.recorder.Stop(tr)
			return execErr
		})
		if err != nil {
			o.observer.OnCollaboratorFailure("", err)
			continue
		}
		executed++

		score, err := o.metric(ctx, ex.Expected, outputs, tr)
		if err != nil {
			slog.Debug("metric failed during bootstrap", "example", ex.ID, "error", err)
			continue
		}
		o.store.Record(o.baselineMarker(), ex.ID, SplitTrain, score)
		if score < o.cfg.BootstrapThreshold {
			continue
		}

		for _, entry := range tr.Entries() {
			pool[entry.ModuleName] = append(pool[entry.ModuleName], scoredDemo{
				demo: Demonstration{
					Inputs:  entry.Inputs,
					Outputs: entry.Outputs,
				},
				score: score,
				order: order,
			})
			order++
		}
	}

	if executed == 0 && len(trainset) > 0 && !o.aborted.Load() {
		return nil, domain.NewDomainError(domain.ErrOptimizationStalled,
			"every training example failed at the generation collaborator")
	}

	return pool, nil
}

// baselineMarker is the bookkeeping candidate under which raw training-set
// scores of the unmodified program are recorded. It never gains validation
// samples, so Best can never select it.
func (o *Optimizer) baselineMarker() *Candidate {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.baseline == nil {
		first := o.program.Modules()[0]
		o.baseline = NewCandidate(first.Name, first.Instruction, nil, o.cfg.Strategy, 0)
	}
	return o.baseline
}

// capDemonstrations enforces the per-module cap, preferring demonstrations
// from higher-scoring traces and breaking ties by insertion order.
func capDemonstrations(demos []scoredDemo, limit int) []Demonstration {
	sorted := make([]scoredDemo, len(demos))
	copy(sorted, demos)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].score != sorted[j].score {
			return sorted[i].score > sorted[j].score
		}
		return sorted[i].order < sorted[j].order
	})

	if len(sorted) > limit {
		sorted = sorted[:limit]
	}

	out := make([]Demonstration, len(sorted))
	for i, d := range sorted {
		out[i] = d.demo
	}
	return out
}

func meanOrZero(mean float64, n int) float64 {
	if n == 0 {
		return 0
	}
	return mean
}
