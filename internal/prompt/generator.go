package prompt

import "context"

// GenerateRequest is the prompt material handed to the generation
// collaborator for one module execution: the signature's field contract, the
// current instruction, any bound demonstrations, and the input values.
type GenerateRequest struct {
	ModuleName  string
	Signature   Signature
	Instruction string
	Demos       []Demonstration
	Inputs      Values
}

// Generator is the external model collaborator. It is treated as opaque,
// potentially slow, and potentially failing; it must return values for the
// declared output fields.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (Values, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, req GenerateRequest) (Values, error)

func (f GeneratorFunc) Generate(ctx context.Context, req GenerateRequest) (Values, error) {
	return f(ctx, req)
}

// ScoredInstruction pairs a previously tried instruction with its aggregate
// validation score, used to condition new proposals.
type ScoredInstruction struct {
	Instruction string
	Score       float64
}

// ProposalRequest asks the collaborator for a new candidate instruction,
// conditioned on the current one and a small set of past low/high scorers.
type ProposalRequest struct {
	ModuleName string
	Signature  Signature
	Current    string
	History    []ScoredInstruction
}

// Proposer generates candidate instruction texts. Required by the rewrite
// strategy; optional for the joint strategy (without it only the
// demonstration axis varies).
type Proposer interface {
	ProposeInstruction(ctx context.Context, req ProposalRequest) (string, error)
}

// ProposerFunc adapts a function to the Proposer interface.
type ProposerFunc func(ctx context.Context, req ProposalRequest) (string, error)

func (f ProposerFunc) ProposeInstruction(ctx context.Context, req ProposalRequest) (string, error) {
	return f(ctx, req)
}
