// Package history persists finished-call records and the caller block list.
package history

import (
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrNoEntry is returned by Update for an unknown call id.
var ErrNoEntry = errors.New("history: no such call")

// Entry is one finished call.
type Entry struct {
	CallID       string    `json:"call_id"`
	FromNumber   string    `json:"from_number"`
	StartedAt    time.Time `json:"started_at"`
	EndedAt      time.Time `json:"ended_at"`
	EndReason    string    `json:"end_reason"`
	Verdict      string    `json:"verdict"`
	RiskTier     string    `json:"risk_tier"`
	Score        float64   `json:"score"`
	FactorLabels []string  `json:"factor_labels,omitempty"`
	TurnCount    int       `json:"turn_count"`
	Degraded     bool      `json:"degraded,omitempty"`
}

// EntryPatch mutates select fields of a stored entry. Nil fields are left
// untouched; a non-nil FactorLabels replaces the whole slice.
type EntryPatch struct {
	Verdict      *string
	RiskTier     *string
	Score        *float64
	FactorLabels []string
}

func (p EntryPatch) apply(e *Entry) {
	if p.Verdict != nil {
		e.Verdict = *p.Verdict
	}
	if p.RiskTier != nil {
		e.RiskTier = *p.RiskTier
	}
	if p.Score != nil {
		e.Score = *p.Score
	}
	if p.FactorLabels != nil {
		e.FactorLabels = p.FactorLabels
	}
}

// Store keeps finished-call entries, newest first on List.
type Store interface {
	Append(e Entry) error
	List() ([]Entry, error)
	ByNumber(number string) ([]Entry, error)
	Update(callID string, patch EntryPatch) error
	Remove(callID string) error
}

// BlockList tracks numbers whose calls are auto-rejected.
type BlockList interface {
	Add(number string) error
	Remove(number string) error
	Contains(number string) bool
	Numbers() []string
}

// MemoryStore is an in-memory Store for tests and single-process runs.
type MemoryStore struct {
	mu      sync.Mutex
	entries []Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return nil
}

func (s *MemoryStore) List() ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].EndedAt.After(out[j].EndedAt)
	})
	return out, nil
}

func (s *MemoryStore) ByNumber(number string) ([]Entry, error) {
	all, _ := s.List()
	var out []Entry
	for _, e := range all {
		if e.FromNumber == number {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *MemoryStore) Update(callID string, patch EntryPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.entries {
		if s.entries[i].CallID == callID {
			patch.apply(&s.entries[i])
			return nil
		}
	}
	return ErrNoEntry
}

func (s *MemoryStore) Remove(callID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.entries {
		if e.CallID == callID {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			return nil
		}
	}
	return nil
}

// MemoryBlockList is an in-memory BlockList.
type MemoryBlockList struct {
	mu      sync.Mutex
	numbers map[string]bool
}

func NewMemoryBlockList() *MemoryBlockList {
	return &MemoryBlockList{numbers: make(map[string]bool)}
}

func (b *MemoryBlockList) Add(number string) error {
	if number == "" {
		return nil
	}
	b.mu.Lock()
	b.numbers[number] = true
	b.mu.Unlock()
	return nil
}

func (b *MemoryBlockList) Remove(number string) error {
	b.mu.Lock()
	delete(b.numbers, number)
	b.mu.Unlock()
	return nil
}

func (b *MemoryBlockList) Contains(number string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.numbers[number]
}

func (b *MemoryBlockList) Numbers() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.numbers))
	for n := range b.numbers {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

var (
	_ Store     = (*MemoryStore)(nil)
	_ BlockList = (*MemoryBlockList)(nil)
)
