// Package transcript keeps the ordered record of what was said during one
// call. Entries are append-only; a snapshot never changes after the call
// ends.
package transcript

import (
	"sync"
	"time"
)

// Speaker identifies who produced an utterance.
type Speaker string

const (
	// SpeakerRemote is the far end of the call, the party being screened.
	SpeakerRemote Speaker = "remote"
	// SpeakerAgent is the assistant's own synthesized reply.
	SpeakerAgent Speaker = "agent"
)

// Utterance is one finalized line of the conversation.
type Utterance struct {
	Seq     int       `json:"seq"`
	Speaker Speaker   `json:"speaker"`
	Text    string    `json:"text"`
	At      time.Time `json:"at"`
}

// Transcript is an append-only utterance log, safe for concurrent use.
type Transcript struct {
	mu      sync.Mutex
	entries []Utterance
}

func New() *Transcript {
	return &Transcript{}
}

// Append records one utterance and returns its sequence number. Empty text
// is dropped and reported as -1.
func (t *Transcript) Append(speaker Speaker, text string, at time.Time) int {
	if text == "" {
		return -1
	}
	if at.IsZero() {
		at = time.Now()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	seq := len(t.entries)
	t.entries = append(t.entries, Utterance{
		Seq:     seq,
		Speaker: speaker,
		Text:    text,
		At:      at,
	})
	return seq
}

// Len returns the number of recorded utterances.
func (t *Transcript) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Snapshot copies the log in append order.
func (t *Transcript) Snapshot() []Utterance {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Utterance, len(t.entries))
	copy(out, t.entries)
	return out
}

// BySpeaker returns the utterances attributed to one speaker, in order.
func (t *Transcript) BySpeaker(s Speaker) []Utterance {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []Utterance
	for _, u := range t.entries {
		if u.Speaker == s {
			out = append(out, u)
		}
	}
	return out
}
