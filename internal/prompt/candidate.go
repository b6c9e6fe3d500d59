package prompt

import "github.com/longregen/promptc/shared/id"

// Candidate is one scored (instruction, demonstrations) proposal for a
// module, tagged with its provenance: which strategy generated it and at
// which trial index. Candidates are never mutated after scoring; a changed
// instruction or demo set is a new candidate.
type Candidate struct {
	ID          string
	ModuleName  string
	Instruction string
	Demos       []Demonstration
	Strategy    Strategy
	Trial       int
}

// NewCandidate builds a candidate with a generated ID and its own copy of
// the demonstration set.
func NewCandidate(moduleName, instruction string, demos []Demonstration, strategy Strategy, trial int) *Candidate {
	return &Candidate{
		ID:          id.NewCandidate(),
		ModuleName:  moduleName,
		Instruction: instruction,
		Demos:       cloneDemos(demos),
		Strategy:    strategy,
		Trial:       trial,
	}
}
