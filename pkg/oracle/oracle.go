// Package oracle talks to the analysis backend that co-scores utterances and
// drafts the assistant's spoken replies. The conversation engine treats the
// oracle as advisory: local scoring continues when it is unreachable.
package oracle

import "context"

// Role selects the conversation stance the assistant takes. When screening a
// suspected scammer the assistant plays a plausible victim; in training mode
// the roles flip.
type Role string

const (
	RoleScammer Role = "scammer"
	RoleVictim  Role = "victim"
)

// HistoryEntry is one prior line of the conversation, oldest first.
type HistoryEntry struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// StartResult is the backend's acknowledgement of a new call.
type StartResult struct {
	CallID      string `json:"call_id"`
	Status      string `json:"status"`
	MaxDuration int    `json:"max_duration"`
	Message     string `json:"message"`
}

// TurnRequest carries one finalized far-end utterance for analysis.
type TurnRequest struct {
	CallID  string
	Text    string
	Role    Role
	History []HistoryEntry
}

// TurnResult is the backend's verdict on one utterance: a suggested spoken
// reply and its own scam score for the text.
type TurnResult struct {
	Reply string
	Score float64
}

// EndResult carries the backend's whole-conversation score, merged max-wins
// into the local accumulator before the final report is built.
type EndResult struct {
	Score float64
}

// Oracle is the analysis backend contract.
type Oracle interface {
	// Name returns the oracle name for logging/metrics.
	Name() string
	// StartCall registers a call with the backend.
	StartCall(ctx context.Context, callerNumber, userID string) (StartResult, error)
	// ProcessUtterance analyzes one utterance and drafts a reply.
	ProcessUtterance(ctx context.Context, req TurnRequest) (TurnResult, error)
	// EndCall closes the call and returns the backend's final score.
	EndCall(ctx context.Context, callID string, history []HistoryEntry) (EndResult, error)
}
