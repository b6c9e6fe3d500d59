package prompt

import (
	"context"
	"errors"
	"testing"

	"github.com/longregen/promptc/internal/domain"
)

func TestExactMatch(t *testing.T) {
	metric := ExactMatch("answer")

	score, err := metric(context.Background(), Values{"answer": "Paris"}, Values{"answer": " Paris "}, nil)
	if err != nil {
		t.Fatalf("metric error = %v", err)
	}
	if score != 1.0 {
		t.Errorf("whitespace-trimmed match scored %v, want 1.0", score)
	}

	score, err = metric(context.Background(), Values{"answer": "Paris"}, Values{"answer": "London"}, nil)
	if err != nil {
		t.Fatalf("metric error = %v", err)
	}
	if score != 0.0 {
		t.Errorf("mismatch scored %v, want 0.0", score)
	}
}

func TestExactMatchAllExpectedFields(t *testing.T) {
	metric := ExactMatch()

	score, _ := metric(context.Background(),
		Values{"answer": "Paris", "confidence": "high"},
		Values{"answer": "Paris", "confidence": "low"}, nil)
	if score != 0.0 {
		t.Errorf("partial match scored %v, want 0.0", score)
	}
}

func TestPartition(t *testing.T) {
	examples := make([]Example, 10)
	for i := range examples {
		examples[i] = NewExample(Values{"question": "q"}, Values{"answer": "a"})
	}

	train, val, err := Partition(examples, 0.3)
	if err != nil {
		t.Fatalf("Partition() error = %v", err)
	}
	if len(train) != 7 || len(val) != 3 {
		t.Errorf("unexpected split sizes %d/%d, want 7/3", len(train), len(val))
	}
	// Order-preserving tail split: the validation subset is the last three.
	if val[0].ID != examples[7].ID {
		t.Error("validation subset is not the tail of the input")
	}
}

func TestPartitionEdges(t *testing.T) {
	two := []Example{
		NewExample(Values{"q": "1"}, Values{"a": "1"}),
		NewExample(Values{"q": "2"}, Values{"a": "2"}),
	}

	train, val, err := Partition(two, 0.01)
	if err != nil {
		t.Fatalf("Partition() error = %v", err)
	}
	if len(train) != 1 || len(val) != 1 {
		t.Errorf("tiny fraction must still leave one validation example, got %d/%d", len(train), len(val))
	}

	if _, _, err := Partition(two, 0); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("fraction 0 error = %v, want ErrInvalidInput", err)
	}
	if _, _, err := Partition(two, 1); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("fraction 1 error = %v, want ErrInvalidInput", err)
	}
	if _, _, err := Partition(two[:1], 0.5); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("single example error = %v, want ErrInvalidInput", err)
	}
}
