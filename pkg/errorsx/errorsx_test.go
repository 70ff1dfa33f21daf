package errorsx

import "testing"

func TestWrapAndReason(t *testing.T) {
	err := Wrap(assertErr{}, ReasonOracleRequest)
	if Reason(err) != ReasonOracleRequest {
		t.Fatalf("expected reason %s, got %s", ReasonOracleRequest, Reason(err))
	}
	if !HasReason(err, ReasonOracleRequest) {
		t.Fatalf("expected HasReason true")
	}
}

func TestWrapPreservesExistingReason(t *testing.T) {
	first := Wrap(assertErr{}, ReasonSpeechSend)
	second := Wrap(first, ReasonOracleRequest)
	if Reason(second) != ReasonSpeechSend {
		t.Fatalf("expected reason preserved, got %s", Reason(second))
	}
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }
