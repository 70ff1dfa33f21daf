package observers

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/callshield/callshield/pkg/metrics"
)

// UsageSummary is the per-call usage record persisted when a call ends.
type UsageSummary struct {
	CallID          string  `json:"call_id"`
	Turns           int     `json:"turns"`
	OracleFallbacks int     `json:"oracle_fallbacks"`
	FinalScore      float64 `json:"final_score"`
	Verdict         string  `json:"verdict,omitempty"`
	EndReason       string  `json:"end_reason,omitempty"`
	DurationMS      int64   `json:"duration_ms"`
	RecordedAtUTC   string  `json:"recorded_at_utc"`
}

// UsageObserver accumulates per-call counters from engine events and writes
// one usage JSON file per finished call.
type UsageObserver struct {
	dir   string
	mu    sync.Mutex
	stats map[string]*usageState
}

type usageState struct {
	startedAt time.Time
	summary   UsageSummary
}

func NewUsageObserver(dir string) *UsageObserver {
	return &UsageObserver{dir: dir, stats: make(map[string]*usageState)}
}

func (o *UsageObserver) RecordEvent(ev metrics.MetricsEvent) {
	if strings.TrimSpace(o.dir) == "" || ev.Tags == nil {
		return
	}
	callID := ev.Tags["call_id"]
	if callID == "" {
		return
	}

	o.mu.Lock()
	st := o.stats[callID]
	if st == nil {
		st = &usageState{summary: UsageSummary{CallID: callID}}
		o.stats[callID] = st
	}
	switch ev.Name {
	case "call_started":
		st.startedAt = ev.Time
	case "turn_completed":
		st.summary.Turns++
		st.summary.FinalScore = ev.Value
	case "oracle_fallback":
		st.summary.OracleFallbacks++
	case "call_ended":
		st.summary.FinalScore = ev.Value
		st.summary.Verdict = ev.Tags["verdict"]
		st.summary.EndReason = ev.Tags["reason"]
		if !st.startedAt.IsZero() {
			st.summary.DurationMS = ev.Time.Sub(st.startedAt).Milliseconds()
		}
		delete(o.stats, callID)
		o.mu.Unlock()
		o.write(st.summary)
		return
	}
	o.mu.Unlock()
}

func (o *UsageObserver) write(s UsageSummary) {
	if err := os.MkdirAll(o.dir, 0o755); err != nil {
		return
	}
	s.RecordedAtUTC = time.Now().UTC().Format(time.RFC3339)
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return
	}
	path := filepath.Join(o.dir, sanitizeID(s.CallID)+".usage.json")
	_ = os.WriteFile(path, b, 0o644)
}

var _ metrics.Observer = (*UsageObserver)(nil)
