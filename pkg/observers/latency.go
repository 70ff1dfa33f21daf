package observers

import (
	"log/slog"
	"sync"
	"time"

	"github.com/callshield/callshield/pkg/metrics"
)

// LatencyObserver logs per-call screening latency: the delay from answering
// a call to its first scored turn, and the total call duration.
type LatencyObserver struct {
	mu    sync.Mutex
	calls map[string]*callTiming
	log   *slog.Logger
}

type callTiming struct {
	started   time.Time
	firstTurn time.Time
}

func NewLatencyObserver(log *slog.Logger) *LatencyObserver {
	if log == nil {
		log = slog.Default()
	}
	return &LatencyObserver{
		calls: make(map[string]*callTiming),
		log:   log,
	}
}

func (o *LatencyObserver) RecordEvent(ev metrics.MetricsEvent) {
	callID := ""
	if ev.Tags != nil {
		callID = ev.Tags["call_id"]
	}
	if callID == "" {
		return
	}
	o.mu.Lock()
	t := o.calls[callID]
	if t == nil {
		t = &callTiming{}
		o.calls[callID] = t
	}
	switch ev.Name {
	case "call_started":
		if t.started.IsZero() {
			t.started = ev.Time
		}
	case "turn_completed":
		if t.firstTurn.IsZero() {
			t.firstTurn = ev.Time
		}
	case "call_ended":
		delete(o.calls, callID)
		o.mu.Unlock()
		o.log.Info("latency",
			"call_id", callID,
			"first_turn_ms", durationMs(t.started, t.firstTurn),
			"call_ms", durationMs(t.started, ev.Time),
		)
		return
	}
	o.mu.Unlock()
}

func durationMs(a, b time.Time) int64 {
	if a.IsZero() || b.IsZero() {
		return -1
	}
	return b.Sub(a).Milliseconds()
}

var _ metrics.Observer = (*LatencyObserver)(nil)
