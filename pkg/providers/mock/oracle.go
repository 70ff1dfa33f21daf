package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/callshield/callshield/pkg/oracle"
)

// OracleConfig configures the mock analysis backend.
type OracleConfig struct {
	// Reply drafts the response for one utterance. Nil echoes a fixed line.
	Reply func(req oracle.TurnRequest) oracle.TurnResult
	// FinalScore is returned by EndCall.
	FinalScore float64
	// FailTurns makes every ProcessUtterance call fail.
	FailTurns bool
	// FailEnd makes EndCall fail.
	FailEnd bool
}

// Oracle is a scripted analysis backend for tests and the local example.
type Oracle struct {
	cfg OracleConfig

	mu    sync.Mutex
	turns []oracle.TurnRequest
	ended bool
}

func NewOracle(cfg OracleConfig) *Oracle {
	return &Oracle{cfg: cfg}
}

func (o *Oracle) Name() string { return "mock_oracle" }

func (o *Oracle) StartCall(ctx context.Context, callerNumber, userID string) (oracle.StartResult, error) {
	return oracle.StartResult{CallID: "mock-" + callerNumber, Status: "started", MaxDuration: 300}, nil
}

func (o *Oracle) ProcessUtterance(ctx context.Context, req oracle.TurnRequest) (oracle.TurnResult, error) {
	o.mu.Lock()
	o.turns = append(o.turns, req)
	o.mu.Unlock()
	if o.cfg.FailTurns {
		return oracle.TurnResult{}, errors.New("mock oracle down")
	}
	if o.cfg.Reply != nil {
		return o.cfg.Reply(req), nil
	}
	return oracle.TurnResult{Reply: "네, 알겠습니다."}, nil
}

func (o *Oracle) EndCall(ctx context.Context, callID string, history []oracle.HistoryEntry) (oracle.EndResult, error) {
	o.mu.Lock()
	o.ended = true
	o.mu.Unlock()
	if o.cfg.FailEnd {
		return oracle.EndResult{}, errors.New("mock oracle down")
	}
	return oracle.EndResult{Score: o.cfg.FinalScore}, nil
}

// Turns returns every analyzed utterance request, in order.
func (o *Oracle) Turns() []oracle.TurnRequest {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]oracle.TurnRequest, len(o.turns))
	copy(out, o.turns)
	return out
}

// Ended reports whether EndCall was invoked.
func (o *Oracle) Ended() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.ended
}

var _ oracle.Oracle = (*Oracle)(nil)
