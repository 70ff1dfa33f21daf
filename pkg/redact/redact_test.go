package redact

import (
	"strings"
	"testing"
)

func TestRedactDisabled(t *testing.T) {
	SetEnabled(false)
	in := "email a@b.com and phone +62 812 3456 7890"
	if got := Text(in); got != in {
		t.Fatalf("expected no redaction, got %q", got)
	}
}

func TestRedactEnabled(t *testing.T) {
	SetEnabled(true)
	in := "email a@b.com and phone +62 812 3456 7890"
	got := Text(in)
	if got == in {
		t.Fatalf("expected redaction")
	}
	if want := "[REDACTED_EMAIL]"; !strings.Contains(got, want) {
		t.Fatalf("expected %q in output", want)
	}
	if want := "[REDACTED_PHONE]"; !strings.Contains(got, want) {
		t.Fatalf("expected %q in output", want)
	}
}

func TestRedactKoreanIdentifiers(t *testing.T) {
	SetEnabled(true)
	defer SetEnabled(false)

	got := Text("주민등록번호는 900101-1234567 입니다")
	if !strings.Contains(got, "[REDACTED_RRN]") {
		t.Fatalf("expected RRN redaction, got %q", got)
	}

	got = Text("카드번호 1234-5678-9012-3456 으로 결제")
	if !strings.Contains(got, "[REDACTED_CARD]") {
		t.Fatalf("expected card redaction, got %q", got)
	}
}
