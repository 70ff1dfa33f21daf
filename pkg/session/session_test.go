package session

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/callshield/callshield/pkg/report"
)

func TestLifecycleHappyPath(t *testing.T) {
	s := New(Options{FromNumber: "+821012345678"})
	if s.State() != StateIdle {
		t.Fatalf("new session state %s", s.State())
	}
	if err := s.Ring(); err != nil {
		t.Fatalf("ring: %v", err)
	}
	if err := s.Answer(); err != nil {
		t.Fatalf("answer: %v", err)
	}
	if s.State() != StateActive {
		t.Fatalf("state after answer %s", s.State())
	}
	s.End(EndReasonRemoteHangup)
	if s.State() != StateEnded {
		t.Fatalf("state after end %s", s.State())
	}
	if s.EndReason() != EndReasonRemoteHangup {
		t.Fatalf("end reason %q", s.EndReason())
	}
}

func TestInvalidTransitions(t *testing.T) {
	s := New(Options{})
	if err := s.Answer(); err == nil {
		t.Fatal("answer from idle must fail")
	}
	var ite *InvalidTransitionError
	if err := s.Answer(); !errors.As(err, &ite) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
	if err := s.Ring(); err != nil {
		t.Fatalf("ring: %v", err)
	}
	if err := s.Ring(); err == nil {
		t.Fatal("double ring must fail")
	}
}

func TestEndIsIdempotent(t *testing.T) {
	var ends int
	var mu sync.Mutex
	s := New(Options{OnEnd: func(*CallSession) {
		mu.Lock()
		ends++
		mu.Unlock()
	}})
	_ = s.Ring()
	_ = s.Answer()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.End(EndReasonRemoteHangup)
		}()
	}
	wg.Wait()
	s.End(EndReasonError)

	mu.Lock()
	defer mu.Unlock()
	if ends != 1 {
		t.Fatalf("OnEnd ran %d times", ends)
	}
	if s.EndReason() != EndReasonRemoteHangup {
		t.Fatalf("later End overwrote reason: %q", s.EndReason())
	}
}

func TestMaxDurationForcesEnd(t *testing.T) {
	s := New(Options{MaxDuration: 20 * time.Millisecond})
	_ = s.Ring()
	_ = s.Answer()

	deadline := time.After(2 * time.Second)
	for s.State() != StateEnded {
		select {
		case <-deadline:
			t.Fatal("session not ended by max-duration timer")
		case <-time.After(5 * time.Millisecond):
		}
	}
	if s.EndReason() != EndReasonMaxDuration {
		t.Fatalf("end reason %q", s.EndReason())
	}
}

func TestRejectEndsRingingCall(t *testing.T) {
	s := New(Options{})
	_ = s.Ring()
	if err := s.Reject(""); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if s.State() != StateEnded || s.EndReason() != EndReasonRejected {
		t.Fatalf("reject outcome: state=%s reason=%q", s.State(), s.EndReason())
	}
	// Reject is only valid while ringing.
	s2 := New(Options{})
	if err := s2.Reject(""); err == nil {
		t.Fatal("reject from idle must fail")
	}
}

func TestUtterancesOnlyWhileActive(t *testing.T) {
	s := New(Options{})
	if _, err := s.RecordRemoteUtterance("계좌번호를 알려주세요"); !errors.Is(err, ErrNotActive) {
		t.Fatalf("expected ErrNotActive, got %v", err)
	}
	_ = s.Ring()
	_ = s.Answer()
	d, err := s.RecordRemoteUtterance("계좌번호를 알려주세요")
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if len(d.NewFactors) != 1 {
		t.Fatalf("expected one detection, got %+v", d)
	}
	s.End(EndReasonRemoteHangup)
	if _, err := s.RecordRemoteUtterance("비밀번호도요"); !errors.Is(err, ErrNotActive) {
		t.Fatalf("ended session accepted utterance: %v", err)
	}
}

func TestReportOnlyAfterEnd(t *testing.T) {
	s := New(Options{})
	_ = s.Ring()
	_ = s.Answer()
	if _, err := s.Report(); !errors.Is(err, ErrNotEnded) {
		t.Fatalf("expected ErrNotEnded, got %v", err)
	}
	_, _ = s.RecordRemoteUtterance("검찰입니다. 지금 당장 송금하세요")
	s.End(EndReasonRemoteHangup)

	rpt, err := s.Report()
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if rpt.Verdict == report.VerdictNormal {
		t.Fatalf("scam factors present but verdict normal: %+v", rpt)
	}
	again, _ := s.Report()
	if again.Score != rpt.Score || again.Verdict != rpt.Verdict {
		t.Fatal("report changed between reads")
	}
}

func TestDegradedSessionReport(t *testing.T) {
	s := New(Options{})
	_ = s.Ring()
	_ = s.Answer()
	s.MarkDegraded("speech input failed")
	s.End(EndReasonError)
	rpt, err := s.Report()
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if !rpt.Degraded || rpt.Verdict != report.VerdictSuspicious {
		t.Fatalf("degraded report wrong: %+v", rpt)
	}
}

func TestBeforeReportHookRunsBeforeBuild(t *testing.T) {
	s := New(Options{})
	var calls int
	var mu sync.Mutex
	s.SetBeforeReport(func(s *CallSession) {
		mu.Lock()
		calls++
		mu.Unlock()
		s.ObserveExternalScore(0.9)
	})
	_ = s.Ring()
	_ = s.Answer()
	s.End(EndReasonMaxDuration)
	s.End(EndReasonRemoteHangup)

	mu.Lock()
	if calls != 1 {
		t.Fatalf("hook ran %d times", calls)
	}
	mu.Unlock()
	rpt, err := s.Report()
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if rpt.Verdict != report.VerdictConfirmedPhishing || rpt.Score < 0.9 {
		t.Fatalf("hook score missing from report: %+v", rpt)
	}
}

func TestExternalScoreMergedIntoReport(t *testing.T) {
	s := New(Options{})
	_ = s.Ring()
	_ = s.Answer()
	s.ObserveExternalScore(0.85)
	s.End(EndReasonRemoteHangup)
	rpt, _ := s.Report()
	if rpt.Verdict != report.VerdictConfirmedPhishing {
		t.Fatalf("external score not merged: %+v", rpt)
	}
}

func TestStateListenerObservesTransitions(t *testing.T) {
	s := New(Options{})
	var mu sync.Mutex
	var seen []State
	s.AddListener(StateListenerFunc(func(ev StateChange) {
		mu.Lock()
		seen = append(seen, ev.ToState)
		mu.Unlock()
	}))
	_ = s.Ring()
	_ = s.Answer()
	s.End(EndReasonRemoteHangup)

	mu.Lock()
	defer mu.Unlock()
	want := []State{StateRinging, StateActive, StateEnded}
	if len(seen) != len(want) {
		t.Fatalf("transitions %v", seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("transition %d = %s, want %s", i, seen[i], want[i])
		}
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	a := New(Options{})
	b := New(Options{})
	r.Put(a)
	r.Put(b)
	if r.Len() != 2 {
		t.Fatalf("len %d", r.Len())
	}
	got, ok := r.Get(a.ID())
	if !ok || got != a {
		t.Fatal("lookup failed")
	}
	r.Remove(a.ID())
	if _, ok := r.Get(a.ID()); ok {
		t.Fatal("removed session still present")
	}
	_ = b.Ring()
	_ = b.Answer()
	r.EndAll(EndReasonError)
	if b.State() != StateEnded {
		t.Fatal("EndAll did not end session")
	}
}
