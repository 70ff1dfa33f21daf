// Package scoring accumulates scam evidence across one call session.
//
// The score model is additive-with-floor: the first detected factor seeds the
// score at a 0.5 baseline, every newly detected factor adds its catalog
// weight, and the result is capped at 0.95. Scores are merged max-wins so the
// session score never regresses, regardless of the order local and external
// updates arrive in.
package scoring

import (
	"sync"

	"github.com/callshield/callshield/pkg/catalog"
	"github.com/callshield/callshield/pkg/classify"
)

const (
	// Baseline is seeded once any factor is detected: the presence of any
	// indicator already signals material suspicion; weights tune severity
	// above the floor.
	Baseline = 0.5
	// MaxScore caps the session score below absolute certainty.
	MaxScore = 0.95
)

// DetectedFactor records the first utterance at which a factor fired.
// A factor is recorded at most once per session.
type DetectedFactor struct {
	ID          catalog.FactorID
	Label       string
	Weight      float64
	FirstSeenAt int
}

// Delta is the outcome of recording one utterance.
type Delta struct {
	NewFactors []DetectedFactor
	Score      float64
}

// Snapshot is an immutable copy of accumulator state, in detection order.
type Snapshot struct {
	Score      float64
	Detected   []DetectedFactor
	Utterances int
}

// Accumulator keeps the running score and detected-factor set for one
// session. Safe for concurrent use; each method observes the max-wins rule.
type Accumulator struct {
	mu         sync.Mutex
	catalog    *catalog.Catalog
	score      float64
	detected   []DetectedFactor
	byID       map[catalog.FactorID]bool
	utterances int
}

func NewAccumulator(c *catalog.Catalog) *Accumulator {
	if c == nil {
		c = catalog.Default()
	}
	return &Accumulator{
		catalog: c,
		byID:    make(map[catalog.FactorID]bool),
	}
}

// RecordUtterance classifies text and folds newly detected factors into the
// session score. Repeated matches of an already-detected factor change
// nothing.
func (a *Accumulator) RecordUtterance(text string) Delta {
	matched := classify.Classify(text, a.catalog)

	a.mu.Lock()
	defer a.mu.Unlock()
	index := a.utterances
	a.utterances++

	var fresh []DetectedFactor
	weightSum := 0.0
	for _, f := range matched {
		if a.byID[f.ID] {
			continue
		}
		a.byID[f.ID] = true
		df := DetectedFactor{
			ID:          f.ID,
			Label:       f.Label,
			Weight:      f.Weight,
			FirstSeenAt: index,
		}
		a.detected = append(a.detected, df)
		fresh = append(fresh, df)
		weightSum += f.Weight
	}

	if len(fresh) > 0 {
		candidate := a.score
		if candidate < Baseline {
			candidate = Baseline
		}
		candidate += weightSum
		if candidate > MaxScore {
			candidate = MaxScore
		}
		if candidate > a.score {
			a.score = candidate
		}
	}
	return Delta{NewFactors: fresh, Score: a.score}
}

// ObserveExternal merges an externally reported score under the max-wins
// rule. Values outside [0,1] are ignored; values above the cap clamp to it.
func (a *Accumulator) ObserveExternal(score float64) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if score < 0 || score > 1 {
		return a.score
	}
	if score > MaxScore {
		score = MaxScore
	}
	if score > a.score {
		a.score = score
	}
	return a.score
}

// Score returns the current session score.
func (a *Accumulator) Score() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.score
}

// Snapshot copies the current state. The returned value never aliases
// accumulator internals.
func (a *Accumulator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	detected := make([]DetectedFactor, len(a.detected))
	copy(detected, a.detected)
	return Snapshot{
		Score:      a.score,
		Detected:   detected,
		Utterances: a.utterances,
	}
}
