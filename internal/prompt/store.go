package prompt

import (
	"fmt"
	"sort"
	"sync"

	"github.com/longregen/promptc/internal/domain"
)

// Split tags a score sample with the example subset it came from. Training
// samples may be recorded for bookkeeping but are excluded from selection.
type Split string

const (
	SplitTrain      Split = "train"
	SplitValidation Split = "validation"
)

type scoreSample struct {
	exampleID string
	split     Split
	score     float64
}

type candidateBucket struct {
	candidate *Candidate
	samples   []scoreSample
	order     int // registration order, final deterministic tie-break
}

func (b *candidateBucket) mean(split Split, any bool) (float64, int) {
	var sum float64
	var n int
	for _, s := range b.samples {
		if any || s.split == split {
			sum += s.score
			n++
		}
	}
	if n == 0 {
		return 0, 0
	}
	return sum / float64(n), n
}

// CandidateStore accumulates explored candidates per module together with
// their per-example score samples. Record is append-only and safe under
// concurrent writers; each (module, candidate) bucket is its own critical
// section guarded by the store mutex.
type CandidateStore struct {
	mu      sync.RWMutex
	modules map[string]map[string]*candidateBucket
	nextOrd int
}

// NewCandidateStore creates an empty store.
func NewCandidateStore() *CandidateStore {
	return &CandidateStore{
		modules: make(map[string]map[string]*candidateBucket),
	}
}

// Register makes the candidate known to the store without recording a score.
// Recording implies registration; Register exists so unscored candidates can
// still be listed for diagnostics.
func (s *CandidateStore) Register(c *Candidate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bucketLocked(c)
}

func (s *CandidateStore) bucketLocked(c *Candidate) *candidateBucket {
	byID, ok := s.modules[c.ModuleName]
	if !ok {
		byID = make(map[string]*candidateBucket)
		s.modules[c.ModuleName] = byID
	}
	b, ok := byID[c.ID]
	if !ok {
		b = &candidateBucket{candidate: c, order: s.nextOrd}
		s.nextOrd++
		byID[c.ID] = b
	}
	return b
}

// Record appends one score sample for the candidate.
func (s *CandidateStore) Record(c *Candidate, exampleID string, split Split, score float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.bucketLocked(c)
	b.samples = append(b.samples, scoreSample{exampleID: exampleID, split: split, score: score})
}

// Aggregate returns the mean over all recorded samples for the candidate,
// regardless of split, and the sample count.
func (s *CandidateStore) Aggregate(moduleName, candidateID string) (float64, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if b, ok := s.modules[moduleName][candidateID]; ok {
		return b.mean("", true)
	}
	return 0, 0
}

// ValidationAggregate returns the mean over validation samples only.
func (s *CandidateStore) ValidationAggregate(moduleName, candidateID string) (float64, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if b, ok := s.modules[moduleName][candidateID]; ok {
		return b.mean(SplitValidation, false)
	}
	return 0, 0
}

// Best returns the candidate with the highest aggregate score over the
// validation subset. Ties prefer fewer demonstrations, then the earlier
// provenance trial index, then registration order. Candidates with no
// validation samples are not eligible.
func (s *CandidateStore) Best(moduleName string) (*Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *candidateBucket
	var bestMean float64
	for _, b := range s.modules[moduleName] {
		mean, n := b.mean(SplitValidation, false)
		if n == 0 {
			continue
		}
		if best == nil || betterBucket(mean, b, bestMean, best) {
			best = b
			bestMean = mean
		}
	}

	if best == nil {
		return nil, domain.NewDomainError(domain.ErrNoCandidates,
			fmt.Sprintf("module %q has no validation-scored candidates", moduleName))
	}
	return best.candidate, nil
}

// betterBucket reports whether candidate a (with validation mean meanA)
// should be preferred over the current best b.
func betterBucket(meanA float64, a *candidateBucket, meanB float64, b *candidateBucket) bool {
	if meanA != meanB {
		return meanA > meanB
	}
	if len(a.candidate.Demos) != len(b.candidate.Demos) {
		return len(a.candidate.Demos) < len(b.candidate.Demos)
	}
	if a.candidate.Trial != b.candidate.Trial {
		return a.candidate.Trial < b.candidate.Trial
	}
	return a.order < b.order
}

// Candidates returns the registered candidates for a module in registration
// order.
func (s *CandidateStore) Candidates(moduleName string) []*Candidate {
	s.mu.RLock()
	defer s.mu.RUnlock()

	buckets := make([]*candidateBucket, 0, len(s.modules[moduleName]))
	for _, b := range s.modules[moduleName] {
		buckets = append(buckets, b)
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].order < buckets[j].order })

	out := make([]*Candidate, len(buckets))
	for i, b := range buckets {
		out[i] = b.candidate
	}
	return out
}

// ModuleNames returns the modules with at least one registered candidate,
// sorted for determinism.
func (s *CandidateStore) ModuleNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.modules))
	for name := range s.modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SampleCount returns the total number of recorded samples, for diagnostics.
func (s *CandidateStore) SampleCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	for _, byID := range s.modules {
		for _, b := range byID {
			n += len(b.samples)
		}
	}
	return n
}
