// Package shield assembles the screening engine: configuration, provider
// registries, and the per-call wiring between the telephony transport, the
// conversation orchestrator, and the call history store.
package shield

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/callshield/callshield/pkg/catalog"
	"github.com/callshield/callshield/pkg/convo"
	"github.com/callshield/callshield/pkg/frames"
	"github.com/callshield/callshield/pkg/history"
	"github.com/callshield/callshield/pkg/logging"
	"github.com/callshield/callshield/pkg/metrics"
	"github.com/callshield/callshield/pkg/observers"
	"github.com/callshield/callshield/pkg/oracle"
	"github.com/callshield/callshield/pkg/redact"
	"github.com/callshield/callshield/pkg/session"
	"github.com/callshield/callshield/pkg/speech"
	"github.com/callshield/callshield/pkg/transports"
)

// Options wires one engine. Config and Transport are required.
type Options struct {
	Config    Config
	Transport transports.Transport

	// Providers defaults to DefaultRegistry.
	Providers *ProviderRegistry
	// Store defaults to the backend named by Config.History.
	Store history.Store
	// BlockList defaults to the backend named by Config.History.
	BlockList history.BlockList
	Metrics   metrics.Observer
	Logger    *slog.Logger
}

// Engine routes transport frames to per-call conversation orchestrators and
// persists the resulting reports.
type Engine struct {
	cfg       Config
	transport transports.Transport
	registry  *session.Registry
	store     history.Store
	blocklist history.BlockList
	metrics   metrics.Observer
	cat       *catalog.Catalog
	oracle    oracle.Oracle
	logger    *slog.Logger

	listenFactory func(callID, streamID string) speech.Input
	speakFactory  func(callID, streamID string) speech.Output

	mu    sync.Mutex
	calls map[string]*activeCall
	wg    sync.WaitGroup

	metricsFile *os.File
	async       *metrics.AsyncObserver
	timeline    *observers.TimelineObserver
}

type activeCall struct {
	sess   *session.CallSession
	input  *inputRelay
	cancel context.CancelFunc
}

func NewEngine(opts Options) (*Engine, error) {
	if opts.Transport == nil {
		return nil, fmt.Errorf("missing transport")
	}
	if opts.Providers == nil {
		opts.Providers = DefaultRegistry()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	cfg := opts.Config

	e := &Engine{
		cfg:       cfg,
		transport: opts.Transport,
		registry:  session.NewRegistry(),
		store:     opts.Store,
		blocklist: opts.BlockList,
		metrics:   opts.Metrics,
		cat:       cfg.Catalog(),
		logger:    logging.NewComponentLogger(opts.Logger, "engine"),
		calls:     make(map[string]*activeCall),
	}

	if err := e.initHistory(); err != nil {
		return nil, err
	}
	if err := e.initMetrics(); err != nil {
		return nil, err
	}

	listenFactory, err := opts.Providers.BuildListenFactory(cfg.Vendors.Listen.Provider, cfg, "")
	if err != nil {
		return nil, fmt.Errorf("build listen factory: %w", err)
	}
	speakFactory, err := opts.Providers.BuildSpeakFactory(cfg.Vendors.Speak.Provider, cfg)
	if err != nil {
		return nil, fmt.Errorf("build speak factory: %w", err)
	}
	orc, err := opts.Providers.BuildOracle(cfg.Oracle.Provider, cfg)
	if err != nil {
		return nil, fmt.Errorf("build oracle: %w", err)
	}
	e.listenFactory = listenFactory
	e.speakFactory = speakFactory
	e.oracle = orc

	redact.SetEnabled(cfg.Privacy.RedactPII)

	if e.blocklist != nil {
		if rc, ok := e.transport.(transports.RejectConfigurer); ok {
			rc.SetRejectChecker(e.blocklist.Contains)
		}
	}

	return e, nil
}

func (e *Engine) initHistory() error {
	cfg := e.cfg.History
	if e.store == nil {
		switch cfg.Backend {
		case "file":
			e.store = history.NewFileStore(cfg.Path)
		default:
			e.store = history.NewMemoryStore()
		}
	}
	if e.blocklist == nil {
		if cfg.BlocklistPath != "" {
			bl, err := history.NewFileBlockList(cfg.BlocklistPath)
			if err != nil {
				return fmt.Errorf("load blocklist: %w", err)
			}
			e.blocklist = bl
		} else {
			e.blocklist = history.NewMemoryBlockList()
		}
	}
	for _, n := range cfg.Blocked {
		if err := e.blocklist.Add(n); err != nil {
			return fmt.Errorf("seed blocklist: %w", err)
		}
	}
	return nil
}

func (e *Engine) initMetrics() error {
	if e.metrics != nil {
		return nil
	}
	var list []metrics.Observer
	if path := e.cfg.Observability.MetricsFile; path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open metrics file: %w", err)
		}
		e.metricsFile = f
		e.async = metrics.NewAsyncObserver(metrics.NewJSONLObserver(f), 256)
		list = append(list, e.async)
	}
	if dir := e.cfg.Observability.ArtifactsDir; dir != "" {
		e.timeline = observers.NewTimelineObserver(dir)
		list = append(list, e.timeline, observers.NewUsageObserver(dir))
	}
	switch len(list) {
	case 0:
		e.metrics = metrics.NoopObserver{}
	case 1:
		e.metrics = list[0]
	default:
		e.metrics = observers.NewMultiObserver(list...)
	}
	return nil
}

// Run starts the transport and routes its frames until the context is
// canceled or the transport shuts down.
func (e *Engine) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	e.purgeArtifacts()

	if err := e.transport.Start(ctx); err != nil {
		return fmt.Errorf("start transport: %w", err)
	}
	fields := []any{"transport", e.transport.Name()}
	if rr, ok := e.transport.(transports.ReadyReporter); ok {
		for k, v := range rr.ReadyFields() {
			fields = append(fields, k, v)
		}
	}
	e.logger.Info("engine_started", fields...)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f, ok := <-e.transport.Recv():
			if !ok {
				return nil
			}
			e.route(ctx, f)
		}
	}
}

func (e *Engine) route(ctx context.Context, f frames.Frame) {
	meta := f.Meta()
	streamID := meta[frames.MetaStreamID]
	switch fr := f.(type) {
	case frames.SystemFrame:
		switch fr.Name() {
		case frames.SystemCallStart:
			e.handleCallStart(ctx, streamID, meta)
		case frames.SystemCallEnd:
			e.handleCallEnd(streamID, fr)
		}
	case frames.AudioFrame:
		e.mu.Lock()
		ac := e.calls[streamID]
		e.mu.Unlock()
		if ac != nil {
			_ = ac.input.SendAudio(fr)
		}
	}
}

func (e *Engine) handleCallStart(ctx context.Context, streamID string, meta map[string]string) {
	callID := meta[frames.MetaCallID]
	from := meta[frames.MetaFromNumber]

	if from != "" && e.blocklist.Contains(from) {
		e.rejectBlocked(callID, from)
		return
	}

	sess := session.New(session.Options{
		ID:          callID,
		FromNumber:  from,
		Catalog:     e.cat,
		MaxDuration: e.cfg.Call.MaxDuration(),
		Logger:      e.logger,
		OnEnd:       e.onSessionEnd,
	})
	if err := sess.Ring(); err != nil {
		e.logger.Error("call_setup_failed", "call_id", sess.ID(), "error", err.Error())
		return
	}
	e.registry.Put(sess)

	relay := newInputRelay(e.listenFactory(sess.ID(), streamID))
	output := e.speakFactory(sess.ID(), streamID)

	orch := convo.New(convo.Options{
		Session:       sess,
		Input:         relay,
		Output:        output,
		Oracle:        e.oracle,
		Role:          oracle.Role(e.cfg.Call.Role),
		OracleTimeout: e.cfg.Call.OracleTimeout(),
		Logger:        e.logger,
		Metrics:       e.metrics,
	})

	callCtx, cancel := context.WithCancel(ctx)
	ac := &activeCall{sess: sess, input: relay, cancel: cancel}
	e.mu.Lock()
	e.calls[streamID] = ac
	e.mu.Unlock()

	if err := sess.Answer(); err != nil {
		e.logger.Error("call_setup_failed", "call_id", sess.ID(), "error", err.Error())
		e.dropCall(streamID, sess.ID())
		cancel()
		return
	}
	e.metrics.RecordEvent(metrics.MetricsEvent{
		Name: "call_started",
		Time: time.Now(),
		Tags: map[string]string{"call_id": sess.ID()},
	})
	if e.oracle != nil {
		go e.announceCall(callCtx, sess.ID(), from)
	}

	e.wg.Add(2)
	go func() {
		defer e.wg.Done()
		for f := range output.Results() {
			_ = e.transport.Send(f)
		}
	}()
	go func() {
		defer e.wg.Done()
		defer cancel()
		if err := orch.Run(callCtx); err != nil {
			e.logger.Error("call_failed", "call_id", sess.ID(), "error", err.Error())
		}
		e.dropCall(streamID, sess.ID())
	}()
}

// announceCall tells the analysis backend about the new call. The result is
// advisory; a failure never blocks screening.
func (e *Engine) announceCall(ctx context.Context, callID, from string) {
	tctx, cancel := context.WithTimeout(ctx, e.cfg.Call.OracleTimeout())
	defer cancel()
	if _, err := e.oracle.StartCall(tctx, from, ""); err != nil {
		e.logger.Warn("oracle_start_failed", "call_id", callID, "error", err.Error())
	}
}

func (e *Engine) rejectBlocked(callID, from string) {
	e.logger.Info("call_blocked", "from_number", redact.Text(from))
	sess := session.New(session.Options{
		ID:         callID,
		FromNumber: from,
		Catalog:    e.cat,
		Logger:     e.logger,
		OnEnd:      e.onSessionEnd,
	})
	if err := sess.Ring(); err != nil {
		return
	}
	_ = sess.Reject(session.EndReasonRejected)
	e.metrics.RecordEvent(metrics.MetricsEvent{
		Name: "call_blocked",
		Time: time.Now(),
		Tags: map[string]string{"call_id": sess.ID()},
	})
}

func (e *Engine) handleCallEnd(streamID string, f frames.SystemFrame) {
	e.mu.Lock()
	ac := e.calls[streamID]
	e.mu.Unlock()
	if ac == nil {
		return
	}
	// The orchestrator owns the shutdown sequence; hand it the hangup.
	ac.input.Inject(f)
}

func (e *Engine) dropCall(streamID, callID string) {
	e.mu.Lock()
	delete(e.calls, streamID)
	e.mu.Unlock()
	e.registry.Remove(callID)
}

func (e *Engine) onSessionEnd(s *session.CallSession) {
	rpt, err := s.Report()
	if err != nil {
		return
	}
	e.hangupRemote(s)
	e.metrics.RecordEvent(metrics.MetricsEvent{
		Name:  "call_ended",
		Time:  time.Now(),
		Value: rpt.Score,
		Tags: map[string]string{
			"call_id": s.ID(),
			"verdict": rpt.Verdict.String(),
			"reason":  s.EndReason(),
		},
	})
	entry := history.Entry{
		CallID:       s.ID(),
		FromNumber:   s.FromNumber(),
		StartedAt:    s.StartedAt(),
		EndedAt:      s.EndedAt(),
		EndReason:    s.EndReason(),
		Verdict:      rpt.Verdict.String(),
		RiskTier:     rpt.RiskTier.String(),
		Score:        rpt.Score,
		FactorLabels: rpt.FactorLabels,
		TurnCount:    rpt.TurnCount,
		Degraded:     rpt.Degraded,
	}
	if err := e.store.Append(entry); err != nil {
		e.logger.Error("history_append_failed", "call_id", s.ID(), "error", err.Error())
	}
}

// hangupRemote tears down the network leg for calls that ended on our side.
// Hangups and webhook-time rejections are already terminated by the network.
func (e *Engine) hangupRemote(s *session.CallSession) {
	h, ok := e.transport.(transports.Hanguper)
	if !ok {
		return
	}
	switch s.EndReason() {
	case session.EndReasonRemoteHangup, session.EndReasonRejected:
		return
	}
	callID := s.ID()
	go func() {
		if err := h.Hangup(callID); err != nil {
			e.logger.Warn("hangup_failed", "call_id", callID, "error", err.Error())
		}
	}()
}

func (e *Engine) purgeArtifacts() {
	obs := e.cfg.Observability
	if obs.ArtifactsDir == "" || obs.RetentionDays <= 0 {
		return
	}
	maxAge := time.Duration(obs.RetentionDays) * 24 * time.Hour
	n, err := observers.PurgeArtifacts(obs.ArtifactsDir, maxAge)
	if err != nil {
		e.logger.Warn("artifact_purge_failed", "error", err.Error())
		return
	}
	if n > 0 {
		e.logger.Info("artifacts_purged", "removed", n)
	}
}

// Registry exposes the live-session registry.
func (e *Engine) Registry() *session.Registry { return e.registry }

// History exposes the finished-call store.
func (e *Engine) History() history.Store { return e.store }

// BlockList exposes the caller block list.
func (e *Engine) BlockList() history.BlockList { return e.blocklist }

// Drain force-ends every live call, waits for their orchestrators, and stops
// the transport. It satisfies the runner's Drainer contract.
func (e *Engine) Drain() error {
	e.registry.EndAll(session.EndReasonCompleted)

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		e.logger.Warn("drain_timeout")
	}

	err := e.transport.Stop()
	if e.async != nil {
		e.async.Close()
	} else if fl, ok := e.metrics.(metrics.Flusher); ok {
		_ = fl.Flush()
	}
	if e.timeline != nil {
		_ = e.timeline.Close()
	}
	if e.metricsFile != nil {
		_ = e.metricsFile.Close()
	}
	return err
}
