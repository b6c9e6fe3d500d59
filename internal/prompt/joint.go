package prompt

import (
	"context"
	"log/slog"
	"math"

	"github.com/longregen/promptc/internal/domain"
)

// jointArm is one (instruction, demonstration subset) pairing in the joint
// search space, with its pull count for the acquisition rule. The arm's mean
// is the candidate's running validation aggregate in the store.
type jointArm struct {
	candidate *Candidate
	pulls     int
	created   int // trial index at creation, first deterministic tie-break
}

// runJoint implements the joint instruction-and-demonstration search. Each
// trial touches one module (round-robin) and either creates a new arm or
// re-pulls an existing one, scoring a validation minibatch per pull.
//
// Acquisition rule (UCB1, deterministic): if any arm has zero pulls, pull
// the earliest-created such arm. On every odd trial, create a new arm by
// mutating the incumbent best: a fresh instruction proposal when a proposer
// is configured, otherwise a resampled demonstration subset from the
// bootstrap pool. Otherwise pull the arm maximizing mean + sqrt(2 ln N / n),
// breaking ties toward the earliest-created arm. The run halts early once
// no trial has improved the best observed aggregate for PatienceWindow
// consecutive trials.
func (o *Optimizer) runJoint(ctx context.Context, trainset, valset []Example) error {
	pool, err := o.collectDemonstrations(ctx, trainset)
	if err != nil {
		return err
	}

	modules := o.program.Modules()
	arms := make(map[string][]*jointArm)

	bestOverall := math.Inf(-1)
	noImprove := 0
	anySuccess := false

	for trial := 1; trial <= o.cfg.MaxTrials; trial++ {
		if o.aborted.Load() || ctx.Err() != nil {
			break
		}

		m := modules[(trial-1)%len(modules)]

		arm, err := o.pickArm(ctx, arms, m, pool[m.Name], trial)
		if err != nil {
			o.observer.OnCollaboratorFailure(m.Name, err)
			if !anySuccess {
				return domain.NewDomainError(domain.ErrOptimizationStalled,
					"joint proposal failed for module "+m.Name+" with no prior successful trial")
			}
			slog.Warn("skipping joint trial after exhausted retries", "module", m.Name, "trial", trial)
			continue
		}

		o.setState(StateEvaluating)
		n := o.evaluateCandidate(ctx, arm.candidate, o.minibatch(valset), SplitValidation)
		if n == 0 {
			if o.aborted.Load() {
				break
			}
			if !anySuccess {
				return domain.NewDomainError(domain.ErrOptimizationStalled,
					"no joint trial evaluation succeeded for module "+m.Name)
			}
			noImprove++
			if noImprove >= o.cfg.PatienceWindow {
				break
			}
			continue
		}
		anySuccess = true
		arm.pulls++

		score, _ := o.store.ValidationAggregate(m.Name, arm.candidate.ID)
		if score > bestOverall {
			bestOverall = score
			noImprove = 0
		} else {
			noImprove++
		}
		o.observer.OnTrial(trial, m.Name, bestOverall)

		if noImprove >= o.cfg.PatienceWindow {
			slog.Info("joint search halted by patience window",
				"trial", trial, "patience", o.cfg.PatienceWindow, "best", bestOverall)
			break
		}
	}

	return nil
}

// pickArm applies the acquisition rule for one trial, creating a new arm
// when the rule calls for exploration.
func (o *Optimizer) pickArm(ctx context.Context, arms map[string][]*jointArm, m *Module, pool []scoredDemo, trial int) (*jointArm, error) {
	existing := arms[m.Name]

	// Unpulled arms first, earliest created.
	for _, a := range existing {
		if a.pulls == 0 {
			return a, nil
		}
	}

	if len(existing) == 0 || trial%2 == 1 {
		o.setState(StateProposing)
		arm, err := o.newArm(ctx, existing, m, pool, trial)
		if err != nil {
			return nil, err
		}
		arms[m.Name] = append(existing, arm)
		return arm, nil
	}

	var total int
	for _, a := range existing {
		total += a.pulls
	}

	var best *jointArm
	bestValue := math.Inf(-1)
	for _, a := range existing {
		mean, _ := o.store.ValidationAggregate(m.Name, a.candidate.ID)
		value := mean + math.Sqrt(2*math.Log(float64(total))/float64(a.pulls))
		if value > bestValue || (value == bestValue && best != nil && a.created < best.created) {
			best = a
			bestValue = value
		}
	}
	return best, nil
}

// newArm mutates the incumbent best arm into a fresh (instruction, demo
// subset) pairing.
func (o *Optimizer) newArm(ctx context.Context, existing []*jointArm, m *Module, pool []scoredDemo, trial int) (*jointArm, error) {
	instruction := m.Instruction
	if incumbent := bestArm(o.store, m.Name, existing); incumbent != nil {
		instruction = incumbent.candidate.Instruction
	}

	if o.proposer != nil {
		err := o.retry(ctx, func(ctx context.Context) error {
			proposedText, proposeErr := o.proposer.ProposeInstruction(ctx, ProposalRequest{
				ModuleName: m.Name,
				Signature:  m.Signature,
				Current:    instruction,
				History:    o.instructionHistory(m.Name),
			})
			if proposeErr != nil {
				return proposeErr
			}
			instruction = proposedText
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	cand := NewCandidate(m.Name, instruction, o.sampleDemoSubset(pool), StrategyJoint, trial)
	o.store.Register(cand)
	o.observer.OnCandidate(cand)

	return &jointArm{candidate: cand, created: trial}, nil
}

// bestArm returns the pulled arm with the highest validation aggregate,
// ties toward the earliest created.
func bestArm(store *CandidateStore, moduleName string, arms []*jointArm) *jointArm {
	var best *jointArm
	bestMean := math.Inf(-1)
	for _, a := range arms {
		if a.pulls == 0 {
			continue
		}
		mean, n := store.ValidationAggregate(moduleName, a.candidate.ID)
		if n == 0 {
			continue
		}
		if mean > bestMean || (mean == bestMean && best != nil && a.created < best.created) {
			best = a
			bestMean = mean
		}
	}
	return best
}

// sampleDemoSubset draws a seeded random subset of at most
// MaxDemonstrations pool entries, preserving pool order within the subset.
func (o *Optimizer) sampleDemoSubset(pool []scoredDemo) []Demonstration {
	if len(pool) == 0 || o.cfg.MaxDemonstrations == 0 {
		return nil
	}
	k := o.cfg.MaxDemonstrations
	if k > len(pool) {
		k = len(pool)
	}

	picks := o.rng.Perm(len(pool))[:k]
	chosen := make(map[int]bool, k)
	for _, i := range picks {
		chosen[i] = true
	}

	out := make([]Demonstration, 0, k)
	for i, d := range pool {
		if chosen[i] {
			out = append(out, d.demo)
		}
	}
	return out
}
