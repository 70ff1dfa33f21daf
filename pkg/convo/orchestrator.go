// Package convo drives the turn-taking conversation for one screened call:
// finalized far-end utterances flow in from speech recognition, each turn is
// scored locally and sent to the analysis oracle, and the assistant's reply
// is spoken back through speech synthesis.
//
// The oracle is advisory. When it is unreachable the orchestrator keeps
// scoring locally and answers with canned fallback replies, so a dead
// backend never silences the assistant or loses the call verdict.
package convo

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/callshield/callshield/pkg/errorsx"
	"github.com/callshield/callshield/pkg/frames"
	"github.com/callshield/callshield/pkg/logging"
	"github.com/callshield/callshield/pkg/metrics"
	"github.com/callshield/callshield/pkg/oracle"
	"github.com/callshield/callshield/pkg/session"
	"github.com/callshield/callshield/pkg/speech"
	"github.com/callshield/callshield/pkg/transcript"
)

// Options wires one orchestrator. Session and Input are required; a nil
// Oracle runs the call on local scoring and fallback replies alone.
type Options struct {
	Session *session.CallSession
	Input   speech.Input
	Output  speech.Output
	Oracle  oracle.Oracle
	Role    oracle.Role

	OracleTimeout time.Duration
	Logger        *slog.Logger
	Metrics       metrics.Observer
}

// Orchestrator runs the conversation loop for a single call.
type Orchestrator struct {
	sess   *session.CallSession
	input  speech.Input
	output speech.Output
	oracle oracle.Oracle
	role   oracle.Role

	oracleTimeout time.Duration
	logger        *slog.Logger
	metrics       metrics.Observer

	permissionRetried bool
	sessionEnded      chan struct{}
}

func New(opts Options) *Orchestrator {
	if opts.Role == "" {
		opts.Role = oracle.RoleScammer
	}
	if opts.OracleTimeout <= 0 {
		opts.OracleTimeout = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NoopObserver{}
	}
	o := &Orchestrator{
		sess:          opts.Session,
		input:         opts.Input,
		output:        opts.Output,
		oracle:        opts.Oracle,
		role:          opts.Role,
		oracleTimeout: opts.OracleTimeout,
		logger:        logging.NewComponentLogger(opts.Logger, "convo").With("call_id", opts.Session.ID()),
		metrics:       opts.Metrics,
		sessionEnded:  make(chan struct{}),
	}
	// The max-duration timer or the engine may end the session from outside
	// the loop; the listener unblocks the select below when that happens.
	var once sync.Once
	opts.Session.AddListener(session.StateListenerFunc(func(ev session.StateChange) {
		if ev.ToState == session.StateEnded {
			once.Do(func() { close(o.sessionEnded) })
		}
	}))
	// End runs this before the report is built, so the backend's final score
	// is merged even when the timer or the engine forces the end.
	opts.Session.SetBeforeReport(o.mergeFinalScore)
	return o
}

// Run blocks until the call ends. It returns the error that terminated the
// conversation, or nil for a normal hangup or timeout.
func (o *Orchestrator) Run(ctx context.Context) error {
	if o.output != nil {
		if err := o.output.Start(ctx); err != nil {
			o.logger.Error("speech_output_start_failed", "error", err.Error())
			// The call proceeds without a voice; analysis still runs.
			o.output = nil
		}
	}
	if err := o.startInput(ctx); err != nil {
		o.sess.MarkDegraded("speech input unavailable")
		o.finish(session.EndReasonError)
		return err
	}
	defer func() {
		_ = o.input.Close()
		if o.output != nil {
			_ = o.output.Close()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			o.finish(session.EndReasonError)
			return ctx.Err()
		case <-o.sessionEnded:
			return nil
		case f, ok := <-o.input.Results():
			if !ok {
				o.finish(session.EndReasonRemoteHangup)
				return nil
			}
			if done, err := o.handleFrame(ctx, f); done {
				return err
			}
		}
	}
}

// startInput starts speech recognition, retrying exactly once when the
// failure is a microphone permission error.
func (o *Orchestrator) startInput(ctx context.Context) error {
	err := o.input.Start(ctx)
	if err == nil {
		return nil
	}
	if !errorsx.HasReason(err, errorsx.ReasonSpeechPermission) {
		return err
	}
	o.permissionRetried = true
	o.logger.Warn("speech_permission_denied_retrying", "error", err.Error())
	return o.input.Start(ctx)
}

func (o *Orchestrator) handleFrame(ctx context.Context, f frames.Frame) (bool, error) {
	switch fr := f.(type) {
	case frames.TextFrame:
		if fr.Meta()[frames.MetaIsFinal] != "true" {
			return false, nil
		}
		o.handleTurn(ctx, fr.Text())
	case frames.ControlFrame:
		if fr.Code() == frames.ControlNoSpeech {
			// Silence is not an error. Keep listening.
			o.logger.Debug("no_speech_detected")
		}
	case frames.SystemFrame:
		switch fr.Name() {
		case frames.SystemCallEnd:
			o.finish(session.EndReasonRemoteHangup)
			return true, nil
		case frames.SystemError:
			return o.handleInputError(ctx, fr)
		}
	}
	return false, nil
}

func (o *Orchestrator) handleInputError(ctx context.Context, f frames.SystemFrame) (bool, error) {
	code := errorsx.ReasonCode(f.Meta()[frames.MetaErrorCode])
	if code == errorsx.ReasonSpeechPermission && !o.permissionRetried {
		o.permissionRetried = true
		o.logger.Warn("speech_permission_denied_retrying")
		_ = o.input.Close()
		if err := o.input.Start(ctx); err == nil {
			return false, nil
		}
	}
	o.logger.Error("speech_input_error", "error_code", string(code))
	o.sess.MarkDegraded("speech input error: " + string(code))
	o.finish(session.EndReasonError)
	return true, errorsx.Wrap(errFromCode(code), code)
}

func (o *Orchestrator) handleTurn(ctx context.Context, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	delta, err := o.sess.RecordRemoteUtterance(text)
	if err != nil {
		return
	}

	reply := o.consultOracle(ctx, text, delta.Score)
	o.speak(reply)

	o.metrics.RecordEvent(metrics.MetricsEvent{
		Name:  "turn_completed",
		Time:  time.Now(),
		Value: o.sess.Score(),
		Tags:  map[string]string{"call_id": o.sess.ID()},
	})
}

// consultOracle asks the backend for a reply and merges its score. Any
// failure falls back to a canned reply driven by local scoring.
func (o *Orchestrator) consultOracle(ctx context.Context, text string, localScore float64) string {
	if o.oracle == nil {
		return fallbackReply(text, localScore, o.role)
	}
	tctx, cancel := context.WithTimeout(ctx, o.oracleTimeout)
	defer cancel()
	res, err := o.oracle.ProcessUtterance(tctx, oracle.TurnRequest{
		CallID:  o.sess.ID(),
		Text:    text,
		Role:    o.role,
		History: o.history(),
	})
	if err != nil {
		o.logger.Warn("oracle_turn_failed", "error", err.Error())
		o.metrics.RecordEvent(metrics.MetricsEvent{
			Name: "oracle_fallback",
			Time: time.Now(),
			Tags: map[string]string{"call_id": o.sess.ID()},
		})
		return fallbackReply(text, localScore, o.role)
	}
	o.sess.ObserveExternalScore(res.Score)
	if res.Reply == "" {
		return fallbackReply(text, localScore, o.role)
	}
	return res.Reply
}

func (o *Orchestrator) speak(reply string) {
	if reply == "" {
		return
	}
	_ = o.sess.RecordAgentUtterance(reply)
	if o.output == nil {
		return
	}
	if err := o.output.SendText(reply); err != nil {
		o.logger.Warn("speech_output_failed", "error", err.Error())
	}
}

// finish closes out the call. End is idempotent and runs mergeFinalScore
// through the pre-report hook, so calling it here races safely with the
// timer and the engine.
func (o *Orchestrator) finish(reason string) {
	o.sess.End(reason)
}

// mergeFinalScore asks the backend for its whole-conversation score and
// merges it. The session runs it exactly once, right before report
// construction, regardless of which side ended the call.
func (o *Orchestrator) mergeFinalScore(s *session.CallSession) {
	if o.oracle == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), o.oracleTimeout)
	defer cancel()
	res, err := o.oracle.EndCall(ctx, s.ID(), o.history())
	if err != nil {
		o.logger.Warn("oracle_end_failed", "error", err.Error())
		return
	}
	s.ObserveExternalScore(res.Score)
}

func (o *Orchestrator) history() []oracle.HistoryEntry {
	utterances := o.sess.Transcript().Snapshot()
	out := make([]oracle.HistoryEntry, 0, len(utterances))
	for _, u := range utterances {
		role := "user"
		if u.Speaker == transcript.SpeakerAgent {
			role = "assistant"
		}
		out = append(out, oracle.HistoryEntry{Role: role, Text: u.Text})
	}
	return out
}

func errFromCode(code errorsx.ReasonCode) error {
	return &inputError{code: code}
}

type inputError struct {
	code errorsx.ReasonCode
}

func (e *inputError) Error() string { return "speech input failed: " + string(e.code) }
