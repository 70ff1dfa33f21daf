package observers

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/callshield/callshield/pkg/metrics"
)

func TestTimelineObserverWritesJSONL(t *testing.T) {
	dir := t.TempDir()
	obs := NewTimelineObserver(dir)

	obs.RecordEvent(metrics.MetricsEvent{
		Name:  "turn_completed",
		Time:  time.Now(),
		Value: 0.65,
		Tags:  map[string]string{"call_id": "call-1"},
	})
	_ = obs.Close()

	b, err := os.ReadFile(filepath.Join(dir, "call-1.jsonl"))
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if !strings.Contains(string(b), "turn_completed") {
		t.Fatalf("expected turn_completed event in file, got %q", string(b))
	}
}

func TestTimelineObserverIgnoresEventsWithoutCallID(t *testing.T) {
	dir := t.TempDir()
	obs := NewTimelineObserver(dir)
	obs.RecordEvent(metrics.MetricsEvent{Name: "turn_completed", Time: time.Now()})
	_ = obs.Close()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no files, got %d", len(entries))
	}
}

func TestUsageObserverWritesSummaryOnCallEnd(t *testing.T) {
	dir := t.TempDir()
	obs := NewUsageObserver(dir)
	start := time.Now()

	obs.RecordEvent(metrics.MetricsEvent{
		Name: "call_started", Time: start,
		Tags: map[string]string{"call_id": "call-1"},
	})
	obs.RecordEvent(metrics.MetricsEvent{
		Name: "turn_completed", Time: start.Add(time.Second), Value: 0.5,
		Tags: map[string]string{"call_id": "call-1"},
	})
	obs.RecordEvent(metrics.MetricsEvent{
		Name: "oracle_fallback", Time: start.Add(time.Second),
		Tags: map[string]string{"call_id": "call-1"},
	})
	obs.RecordEvent(metrics.MetricsEvent{
		Name: "call_ended", Time: start.Add(2 * time.Second), Value: 0.85,
		Tags: map[string]string{"call_id": "call-1", "verdict": "confirmed_phishing", "reason": "remote_hangup"},
	})

	b, err := os.ReadFile(filepath.Join(dir, "call-1.usage.json"))
	if err != nil {
		t.Fatalf("read summary: %v", err)
	}
	var s UsageSummary
	if err := json.Unmarshal(b, &s); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if s.Turns != 1 {
		t.Fatalf("expected 1 turn, got %d", s.Turns)
	}
	if s.OracleFallbacks != 1 {
		t.Fatalf("expected 1 fallback, got %d", s.OracleFallbacks)
	}
	if s.FinalScore != 0.85 {
		t.Fatalf("expected final score 0.85, got %v", s.FinalScore)
	}
	if s.Verdict != "confirmed_phishing" {
		t.Fatalf("expected verdict tag carried over, got %q", s.Verdict)
	}
	if s.DurationMS != 2000 {
		t.Fatalf("expected 2000ms duration, got %d", s.DurationMS)
	}
}

func TestPurgeArtifactsRemovesOldFiles(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "old.jsonl")
	fresh := filepath.Join(dir, "fresh.jsonl")
	if err := os.WriteFile(old, []byte("{}\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(fresh, []byte("{}\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	past := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(old, past, past); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	removed, err := PurgeArtifacts(dir, 24*time.Hour)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Fatalf("fresh file should survive: %v", err)
	}
}
