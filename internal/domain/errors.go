package domain

import "errors"

// Common domain errors
var (
	// Program definition errors
	ErrSchema = errors.New("invalid signature or module wiring")

	// Execution errors
	ErrUnboundInput         = errors.New("input field not bound")
	ErrIncompleteGeneration = errors.New("generation missing declared output fields")

	// Optimizer lifecycle errors
	ErrNoCandidates          = errors.New("no scored candidates for module")
	ErrIncompleteCompilation = errors.New("module has no winning candidate")
	ErrAlreadyCompiled       = errors.New("optimizer already compiled")
	ErrOptimizationStalled   = errors.New("generation collaborator is systematically failing")

	// Collaborator errors
	ErrGenerationFailed = errors.New("generation request failed")
	ErrProposalFailed   = errors.New("instruction proposal failed")

	// Run management errors
	ErrRunNotFound     = errors.New("optimization run not found")
	ErrProgramNotFound = errors.New("compiled program not found")
	ErrInvalidState    = errors.New("invalid state transition")
	ErrEmptyContent    = errors.New("content cannot be empty")
	ErrInvalidInput    = errors.New("invalid input")
)

// DomainError wraps a domain error with additional context
type DomainError struct {
	Err     error
	Message string
	Code    string
}

func (e *DomainError) Error() string {
	if e.Message != "" {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Err.Error()
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

func NewDomainError(err error, message string) *DomainError {
	return &DomainError{
		Err:     err,
		Message: message,
	}
}

func NewDomainErrorWithCode(err error, message, code string) *DomainError {
	return &DomainError{
		Err:     err,
		Message: message,
		Code:    code,
	}
}
