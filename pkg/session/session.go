// Package session owns the lifecycle of one screened call: the ringing to
// ended state machine, the per-call score accumulator and transcript, and the
// final report. A session ends exactly once, whatever combination of hangup,
// timeout, and error races to end it.
package session

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/callshield/callshield/pkg/catalog"
	"github.com/callshield/callshield/pkg/report"
	"github.com/callshield/callshield/pkg/scoring"
	"github.com/callshield/callshield/pkg/transcript"
)

// DefaultMaxDuration bounds a screened call. The session force-ends when it
// elapses.
const DefaultMaxDuration = 300 * time.Second

// End reasons recorded on the session and surfaced in logs.
const (
	EndReasonRemoteHangup = "remote_hangup"
	EndReasonRejected     = "rejected"
	EndReasonMaxDuration  = "max_duration"
	EndReasonError        = "error"
	EndReasonCompleted    = "completed"
)

var (
	ErrNotActive = errors.New("session is not active")
	ErrNotEnded  = errors.New("session has not ended")
)

// Options configures a call session. Zero values pick defaults.
type Options struct {
	ID          string
	FromNumber  string
	Catalog     *catalog.Catalog
	MaxDuration time.Duration
	Logger      *slog.Logger

	// OnEnd runs exactly once, after the final report is built.
	OnEnd func(s *CallSession)
}

// CallSession aggregates everything known about one call.
type CallSession struct {
	id         string
	fromNumber string
	fsm        *stateMachine
	acc        *scoring.Accumulator
	trans      *transcript.Transcript
	logger     *slog.Logger

	maxDuration time.Duration
	timer       *time.Timer

	endOnce sync.Once
	onEnd   func(s *CallSession)

	mu           sync.Mutex
	startedAt    time.Time
	endedAt      time.Time
	endReason    string
	degraded     bool
	beforeReport func(s *CallSession)
	rpt          *report.Report
}

func New(opts Options) *CallSession {
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = DefaultMaxDuration
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &CallSession{
		id:          opts.ID,
		fromNumber:  opts.FromNumber,
		fsm:         newStateMachine(),
		acc:         scoring.NewAccumulator(opts.Catalog),
		trans:       transcript.New(),
		logger:      opts.Logger.With("call_id", opts.ID),
		maxDuration: opts.MaxDuration,
		onEnd:       opts.OnEnd,
	}
}

func (s *CallSession) ID() string         { return s.id }
func (s *CallSession) FromNumber() string { return s.fromNumber }
func (s *CallSession) State() State       { return s.fsm.State() }

// AddListener registers a listener for call state changes.
func (s *CallSession) AddListener(l StateListener) { s.fsm.AddListener(l) }

// SetBeforeReport installs a hook that End runs exactly once, after the end
// reason is fixed but before the final report is built. Late external scores
// merged inside the hook still reach the report, whichever side ends the
// call.
func (s *CallSession) SetBeforeReport(fn func(s *CallSession)) {
	s.mu.Lock()
	s.beforeReport = fn
	s.mu.Unlock()
}

// Ring announces an incoming call.
func (s *CallSession) Ring() error {
	if err := s.fsm.Transition(StateRinging, "incoming call"); err != nil {
		return err
	}
	s.logger.Info("call_ringing", "from_number", s.fromNumber)
	return nil
}

// Answer activates the session and arms the max-duration timer.
func (s *CallSession) Answer() error {
	if err := s.fsm.Transition(StateActive, "answered"); err != nil {
		return err
	}
	s.mu.Lock()
	s.startedAt = time.Now()
	s.timer = time.AfterFunc(s.maxDuration, func() {
		s.End(EndReasonMaxDuration)
	})
	s.mu.Unlock()
	s.logger.Info("call_answered", "max_duration", s.maxDuration.String())
	return nil
}

// Reject ends a ringing call without answering it.
func (s *CallSession) Reject(reason string) error {
	if s.fsm.State() != StateRinging {
		return &InvalidTransitionError{From: s.fsm.State(), To: StateEnded}
	}
	if reason == "" {
		reason = EndReasonRejected
	}
	s.End(reason)
	return nil
}

// End terminates the session. It is idempotent: the first caller wins and
// later calls, including the max-duration timer firing after a hangup, are
// no-ops.
func (s *CallSession) End(reason string) {
	s.endOnce.Do(func() {
		if reason == "" {
			reason = EndReasonCompleted
		}
		s.mu.Lock()
		if s.timer != nil {
			s.timer.Stop()
		}
		s.endedAt = time.Now()
		s.endReason = reason
		degraded := s.degraded
		hook := s.beforeReport
		s.mu.Unlock()

		if hook != nil {
			hook(s)
		}

		snap := s.acc.Snapshot()
		var rpt report.Report
		if degraded {
			rpt = report.BuildDegraded(snap, snap.Utterances)
		} else {
			rpt = report.Build(snap, snap.Utterances)
		}
		s.mu.Lock()
		s.rpt = &rpt
		s.mu.Unlock()

		// Listeners fire after the report exists, so anyone woken by the
		// Ended transition can read it immediately.
		_ = s.fsm.Transition(StateEnded, reason)

		s.logger.Info("call_ended",
			"reason", reason,
			"verdict", rpt.Verdict.String(),
			"risk_tier", rpt.RiskTier.String(),
			"score", rpt.Score,
			"turns", rpt.TurnCount,
		)
		if s.onEnd != nil {
			s.onEnd(s)
		}
	})
}

// RecordRemoteUtterance scores one finalized far-end utterance and records
// it in the transcript. Only active sessions accept utterances.
func (s *CallSession) RecordRemoteUtterance(text string) (scoring.Delta, error) {
	if s.fsm.State() != StateActive {
		return scoring.Delta{}, ErrNotActive
	}
	s.trans.Append(transcript.SpeakerRemote, text, time.Now())
	delta := s.acc.RecordUtterance(text)
	if len(delta.NewFactors) > 0 {
		ids := make([]string, len(delta.NewFactors))
		for i, f := range delta.NewFactors {
			ids[i] = string(f.ID)
		}
		s.logger.Info("scam_factors_detected", "factors", ids, "score", delta.Score)
	}
	return delta, nil
}

// RecordAgentUtterance records the assistant's own reply.
func (s *CallSession) RecordAgentUtterance(text string) error {
	if s.fsm.State() != StateActive {
		return ErrNotActive
	}
	s.trans.Append(transcript.SpeakerAgent, text, time.Now())
	return nil
}

// ObserveExternalScore merges a score reported by the analysis backend.
func (s *CallSession) ObserveExternalScore(score float64) float64 {
	return s.acc.ObserveExternal(score)
}

// MarkDegraded flags the session so its report is built in degraded mode.
// It has no effect once the session has ended.
func (s *CallSession) MarkDegraded(reason string) {
	s.mu.Lock()
	already := s.degraded
	s.degraded = true
	s.mu.Unlock()
	if !already {
		s.logger.Warn("call_degraded", "reason", reason)
	}
}

// Score returns the current session score.
func (s *CallSession) Score() float64 { return s.acc.Score() }

// ScoringSnapshot copies the current scoring state.
func (s *CallSession) ScoringSnapshot() scoring.Snapshot { return s.acc.Snapshot() }

// Transcript returns the session transcript.
func (s *CallSession) Transcript() *transcript.Transcript { return s.trans }

// StartedAt reports when the call was answered. Zero if never answered.
func (s *CallSession) StartedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startedAt
}

// EndedAt reports when the call ended. Zero while the call is live.
func (s *CallSession) EndedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endedAt
}

// EndReason reports why the call ended.
func (s *CallSession) EndReason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endReason
}

// Report returns the final report. It is only available after the session
// has ended; the same report is returned on every call.
func (s *CallSession) Report() (report.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rpt == nil {
		return report.Report{}, ErrNotEnded
	}
	return *s.rpt, nil
}
