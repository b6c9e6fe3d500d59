package prompt

import (
	"context"
	"strings"

	"github.com/longregen/promptc/internal/domain"
	"github.com/longregen/promptc/shared/id"
)

// Metric scores a predicted output against a reference. It must be pure:
// no mutation of its arguments and identical results for identical inputs,
// so scores are comparable across candidates. The trace may be nil.
type Metric func(ctx context.Context, expected, predicted Values, tr *Trace) (float64, error)

// BoolMetric lifts a boolean judgment into a Metric, mapping true/false to
// 1.0/0.0 for aggregation.
func BoolMetric(fn func(expected, predicted Values) bool) Metric {
	return func(ctx context.Context, expected, predicted Values, tr *Trace) (float64, error) {
		if fn(expected, predicted) {
			return 1.0, nil
		}
		return 0.0, nil
	}
}

// ExactMatch scores 1.0 when every named field matches between expected and
// predicted after whitespace trimming, 0.0 otherwise. With no fields given it
// compares every expected field.
func ExactMatch(fields ...string) Metric {
	return BoolMetric(func(expected, predicted Values) bool {
		names := fields
		if len(names) == 0 {
			for name := range expected {
				names = append(names, name)
			}
		}
		for _, name := range names {
			if strings.TrimSpace(expected.String(name)) != strings.TrimSpace(predicted.String(name)) {
				return false
			}
		}
		return true
	})
}

// Example is one labeled (inputs, expected outputs) pair.
type Example struct {
	ID       string `json:"id"`
	Inputs   Values `json:"inputs"`
	Expected Values `json:"expected"`
}

// NewExample builds an example with a generated ID.
func NewExample(inputs, expected Values) Example {
	return Example{
		ID:       id.NewExample(),
		Inputs:   inputs,
		Expected: expected,
	}
}

// Partition splits examples into a training subset (source of
// demonstrations) and a validation subset (source of selection scores). The
// split is deterministic and order-preserving: the validation subset is the
// tail. Requires 0 < validationFraction < 1 and at least two examples.
func Partition(examples []Example, validationFraction float64) (trainset, valset []Example, err error) {
	if validationFraction <= 0 || validationFraction >= 1 {
		return nil, nil, domain.NewDomainError(domain.ErrInvalidInput, "validation fraction must be in (0, 1)")
	}
	if len(examples) < 2 {
		return nil, nil, domain.NewDomainError(domain.ErrInvalidInput, "partitioning requires at least two examples")
	}

	n := int(float64(len(examples)) * (1 - validationFraction))
	if n < 1 {
		n = 1
	}
	if n >= len(examples) {
		n = len(examples) - 1
	}

	return examples[:n], examples[n:], nil
}
