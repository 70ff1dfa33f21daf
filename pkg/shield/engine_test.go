package shield

import (
	"context"
	"testing"
	"time"

	"github.com/callshield/callshield/pkg/frames"
	"github.com/callshield/callshield/pkg/history"
	"github.com/callshield/callshield/pkg/session"
	transportmock "github.com/callshield/callshield/pkg/transports/mock"
)

func mockConfig(script []string) Config {
	return Config{
		Call: CallConfig{MaxDurationS: 300, Role: "scammer"},
		Vendors: VendorsConfig{
			Listen: VendorConfig{
				Provider: "mock",
				Settings: map[string]any{
					"script":             script,
					"script_interval_ms": 5,
				},
			},
			Speak: VendorConfig{Provider: "mock"},
		},
		Transports: TransportsConfig{Provider: "mock"},
	}
}

func startEngine(t *testing.T, cfg Config) (*Engine, *transportmock.Transport, context.CancelFunc) {
	t.Helper()
	tr := transportmock.New()
	eng, err := NewEngine(Options{Config: cfg, Transport: tr})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = eng.Run(ctx) }()
	return eng, tr, cancel
}

func waitHistory(t *testing.T, store history.Store, want int) []history.Entry {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		entries, err := store.List()
		if err != nil {
			t.Fatalf("list history: %v", err)
		}
		if len(entries) >= want {
			return entries
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("history never reached %d entries", want)
	return nil
}

func TestEngineScreensScamCall(t *testing.T) {
	cfg := mockConfig([]string{
		"금융감독원 직원입니다",
		"지금 당장 계좌번호를 알려주세요",
		"안전조치를 위해 송금이 필요합니다",
	})
	eng, tr, cancel := startEngine(t, cfg)
	defer cancel()
	defer eng.Drain()

	tr.PushCallStart("stream-1", "call-1", "+821012345678")

	deadline := time.Now().Add(3 * time.Second)
	for {
		if s, ok := eng.Registry().Get("call-1"); ok && s.Transcript().Len() >= 6 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("conversation never completed")
		}
		time.Sleep(5 * time.Millisecond)
	}
	tr.PushCallEnd("stream-1", "call-1", "completed")

	entries := waitHistory(t, eng.History(), 1)
	e := entries[0]
	if e.CallID != "call-1" {
		t.Fatalf("expected call-1, got %q", e.CallID)
	}
	if e.Verdict != "confirmed_phishing" {
		t.Fatalf("expected confirmed_phishing, got %q", e.Verdict)
	}
	if e.TurnCount != 3 {
		t.Fatalf("expected 3 scored turns, got %d", e.TurnCount)
	}
	if e.EndReason != session.EndReasonRemoteHangup {
		t.Fatalf("expected remote_hangup, got %q", e.EndReason)
	}
	if _, ok := eng.Registry().Get("call-1"); ok {
		t.Fatalf("expected session removed from registry")
	}
}

func TestEngineForwardsSynthesizedAudio(t *testing.T) {
	cfg := mockConfig([]string{"여보세요"})
	eng, tr, cancel := startEngine(t, cfg)
	defer cancel()
	defer eng.Drain()

	tr.PushCallStart("stream-1", "call-1", "+821000000000")

	select {
	case f := <-tr.Sent():
		if f.Kind() != frames.KindAudio {
			t.Fatalf("expected audio frame, got %s", f.Kind())
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("expected synthesized audio on the transport")
	}
}

func TestEngineRejectsBlockedCaller(t *testing.T) {
	cfg := mockConfig([]string{"여보세요"})
	cfg.History.Blocked = []string{"+82999"}
	eng, tr, cancel := startEngine(t, cfg)
	defer cancel()
	defer eng.Drain()

	tr.PushCallStart("stream-1", "call-blocked", "+82999")

	entries := waitHistory(t, eng.History(), 1)
	e := entries[0]
	if e.EndReason != session.EndReasonRejected {
		t.Fatalf("expected rejected, got %q", e.EndReason)
	}
	if e.Verdict != "normal" {
		t.Fatalf("expected normal verdict for a never-answered call, got %q", e.Verdict)
	}
	if e.TurnCount != 0 {
		t.Fatalf("expected no turns, got %d", e.TurnCount)
	}
	if _, ok := eng.Registry().Get("call-blocked"); ok {
		t.Fatalf("blocked call must not stay registered")
	}
}

func TestEngineMergesOracleFinalScore(t *testing.T) {
	cfg := mockConfig([]string{"여보세요"})
	cfg.Oracle = VendorConfig{
		Provider: "mock",
		Settings: map[string]any{"final_score": 0.9},
	}
	eng, tr, cancel := startEngine(t, cfg)
	defer cancel()
	defer eng.Drain()

	tr.PushCallStart("stream-1", "call-1", "+821011112222")

	deadline := time.Now().Add(3 * time.Second)
	for {
		if s, ok := eng.Registry().Get("call-1"); ok && s.Transcript().Len() >= 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("conversation never completed")
		}
		time.Sleep(5 * time.Millisecond)
	}
	tr.PushCallEnd("stream-1", "call-1", "completed")

	entries := waitHistory(t, eng.History(), 1)
	if entries[0].Verdict != "confirmed_phishing" {
		t.Fatalf("expected backend score to force confirmed_phishing, got %q", entries[0].Verdict)
	}
}

func TestEngineDrainEndsLiveCalls(t *testing.T) {
	cfg := mockConfig(nil)
	eng, tr, cancel := startEngine(t, cfg)
	defer cancel()

	tr.PushCallStart("stream-1", "call-1", "+821033334444")

	deadline := time.Now().Add(3 * time.Second)
	for {
		if _, ok := eng.Registry().Get("call-1"); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("call never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := eng.Drain(); err != nil {
		t.Fatalf("drain: %v", err)
	}

	entries := waitHistory(t, eng.History(), 1)
	if entries[0].EndReason != session.EndReasonCompleted {
		t.Fatalf("expected completed, got %q", entries[0].EndReason)
	}
}
