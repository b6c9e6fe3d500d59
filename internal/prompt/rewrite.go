package prompt

import (
	"context"
	"log/slog"
	"sort"

	"github.com/longregen/promptc/internal/domain"
)

// runRewrite implements the instruction-rewrite strategy: a coordinate-style
// search over instruction texts, run independently per module, with
// demonstrations held fixed. Each trial asks the proposer for a new
// instruction conditioned on the current best and a small set of past
// low/high scorers, evaluates it on a validation minibatch, records the
// candidate regardless of outcome, and advances the current-best pointer
// only on improvement.
func (o *Optimizer) runRewrite(ctx context.Context, valset []Example) error {
	for _, m := range o.program.Modules() {
		if o.aborted.Load() || ctx.Err() != nil {
			break
		}
		if err := o.rewriteModule(ctx, m, valset); err != nil {
			return err
		}
	}
	return nil
}

func (o *Optimizer) rewriteModule(ctx context.Context, m *Module, valset []Example) error {
	// Baseline: the module's authored instruction, scored first so every
	// proposal has something to improve on.
	current := NewCandidate(m.Name, m.Instruction, m.Demos, StrategyRewrite, 0)
	o.store.Register(current)
	o.observer.OnCandidate(current)

	o.setState(StateEvaluating)
	if n := o.evaluateCandidate(ctx, current, o.minibatch(valset), SplitValidation); n == 0 {
		if o.aborted.Load() {
			return nil
		}
		return domain.NewDomainError(domain.ErrOptimizationStalled,
			"baseline instruction for module "+m.Name+" could not be evaluated")
	}
	bestScore, _ := o.store.ValidationAggregate(m.Name, current.ID)

	proposed := false
	for trial := 1; trial <= o.cfg.MaxTrials; trial++ {
		if o.aborted.Load() || ctx.Err() != nil {
			break
		}

		o.setState(StateProposing)
		var instruction string
		err := o.retry(ctx, func(ctx context.Context) error {
			var proposeErr error
			instruction, proposeErr = o.proposer.ProposeInstruction(ctx, ProposalRequest{
				ModuleName: m.Name,
				Signature:  m.Signature,
				Current:    current.Instruction,
				History:    o.instructionHistory(m.Name),
			})
			return proposeErr
		})
		if err != nil {
			o.observer.OnCollaboratorFailure(m.Name, err)
			if !proposed {
				// No trial in this proposal step has succeeded yet: the
				// collaborator is systematically failing.
				return domain.NewDomainError(domain.ErrOptimizationStalled,
					"instruction proposal failed for module "+m.Name+" with no prior successful trial")
			}
			slog.Warn("skipping trial after exhausted retries", "module", m.Name, "trial", trial)
			continue
		}
		proposed = true

		cand := NewCandidate(m.Name, instruction, m.Demos, StrategyRewrite, trial)
		o.store.Register(cand)
		o.observer.OnCandidate(cand)

		o.setState(StateEvaluating)
		if n := o.evaluateCandidate(ctx, cand, o.minibatch(valset), SplitValidation); n == 0 {
			// Discarded, not scored as zero; the candidate stays recorded
			// but without samples it can never win selection.
			continue
		}

		score, _ := o.store.ValidationAggregate(m.Name, cand.ID)
		if improvesOver(cand, current, score, bestScore) {
			current = cand
			bestScore = score
		}
		o.observer.OnTrial(trial, m.Name, bestScore)
	}

	return nil
}

// improvesOver applies the selection ordering to decide whether to advance
// the current-best pointer: higher validation mean wins; ties prefer fewer
// demonstrations, then the earlier trial, which keeps the pointer in place.
func improvesOver(cand, current *Candidate, score, bestScore float64) bool {
	if score != bestScore {
		return score > bestScore
	}
	if len(cand.Demos) != len(current.Demos) {
		return len(cand.Demos) < len(current.Demos)
	}
	return false
}

// instructionHistory returns up to two lowest- and two highest-scoring past
// instructions for the module, to condition the next proposal.
func (o *Optimizer) instructionHistory(moduleName string) []ScoredInstruction {
	cands := o.store.Candidates(moduleName)
	scored := make([]ScoredInstruction, 0, len(cands))
	for _, c := range cands {
		mean, n := o.store.ValidationAggregate(moduleName, c.ID)
		if n == 0 {
			continue
		}
		scored = append(scored, ScoredInstruction{Instruction: c.Instruction, Score: mean})
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score < scored[j].Score })

	if len(scored) <= 4 {
		return scored
	}
	history := make([]ScoredInstruction, 0, 4)
	history = append(history, scored[0], scored[1])
	history = append(history, scored[len(scored)-2], scored[len(scored)-1])
	return history
}
