package classify

import (
	"testing"

	"github.com/callshield/callshield/pkg/catalog"
)

func TestClassifySingleFactor(t *testing.T) {
	c := catalog.Default()
	got := Classify("계좌번호를 알려주세요", c)
	if len(got) != 1 {
		t.Fatalf("expected 1 factor, got %d", len(got))
	}
	if got[0].ID != catalog.PersonalInfoRequest {
		t.Fatalf("expected personal_info_request, got %s", got[0].ID)
	}
}

func TestClassifyMultipleFactors(t *testing.T) {
	c := catalog.Default()
	got := Classify("검찰입니다. 지금 당장 계좌가 동결됩니다", c)
	ids := map[catalog.FactorID]bool{}
	for _, f := range got {
		ids[f.ID] = true
	}
	for _, want := range []catalog.FactorID{
		catalog.AuthorityImpersonation,
		catalog.UrgencyPressure,
		catalog.LegalThreat,
	} {
		if !ids[want] {
			t.Fatalf("missing factor %s in %v", want, got)
		}
	}
}

func TestClassifyNoMatch(t *testing.T) {
	c := catalog.Default()
	if got := Classify("안녕하세요 잘 지내시죠", c); len(got) != 0 {
		t.Fatalf("expected no factors, got %v", got)
	}
	if got := Classify("", c); got != nil {
		t.Fatalf("expected nil for empty text")
	}
}

func TestClassifyCaseSensitive(t *testing.T) {
	c := catalog.Default()
	// The OTP keyword is stored upper-case; a lower-case mention must not
	// match.
	if got := Classify("otp 번호 주세요", c); len(got) != 0 {
		t.Fatalf("substring match must be case-sensitive, got %v", got)
	}
	if got := Classify("OTP 번호 주세요", c); len(got) != 1 {
		t.Fatalf("expected OTP keyword hit, got %v", got)
	}
}

func TestClassifyFactorFiresOncePerUtterance(t *testing.T) {
	c := catalog.Default()
	got := Classify("계좌번호, 비밀번호, 인증번호 전부 알려주세요", c)
	count := 0
	for _, f := range got {
		if f.ID == catalog.PersonalInfoRequest {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("factor must match at most once per utterance, got %d", count)
	}
}
