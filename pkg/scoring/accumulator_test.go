package scoring

import (
	"math"
	"testing"

	"github.com/callshield/callshield/pkg/catalog"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestBaselineSeedOnFirstDetection(t *testing.T) {
	acc := NewAccumulator(catalog.Default())
	d := acc.RecordUtterance("계좌번호를 알려주세요")
	if len(d.NewFactors) != 1 || d.NewFactors[0].ID != catalog.PersonalInfoRequest {
		t.Fatalf("unexpected delta: %+v", d)
	}
	if !almostEqual(d.Score, 0.70) {
		t.Fatalf("expected 0.5 + 0.20 = 0.70, got %v", d.Score)
	}
}

func TestDuplicateDetectionIsIdempotent(t *testing.T) {
	acc := NewAccumulator(catalog.Default())
	acc.RecordUtterance("계좌번호를 알려주세요")
	before := acc.Score()
	d := acc.RecordUtterance("계좌번호 빨리요, 계좌번호!")
	if len(d.NewFactors) != 0 {
		t.Fatalf("repeated factor must not be re-detected: %+v", d.NewFactors)
	}
	if d.Score != before {
		t.Fatalf("score changed on duplicate detection: %v -> %v", before, d.Score)
	}
}

func TestScoreCapAndDetectionOrder(t *testing.T) {
	acc := NewAccumulator(catalog.Default())
	for _, text := range []string{
		"여기는 검찰입니다",
		"비밀번호를 불러주세요",
		"지금 당장 하셔야 합니다",
		"계좌가 동결됩니다",
	} {
		acc.RecordUtterance(text)
	}
	s := acc.Snapshot()
	// 0.5 + 0.15 + 0.20 + 0.12 + 0.18 = 1.15, capped at 0.95.
	if !almostEqual(s.Score, MaxScore) {
		t.Fatalf("expected cap %v, got %v", MaxScore, s.Score)
	}
	want := []catalog.FactorID{
		catalog.AuthorityImpersonation,
		catalog.PersonalInfoRequest,
		catalog.UrgencyPressure,
		catalog.LegalThreat,
	}
	if len(s.Detected) != len(want) {
		t.Fatalf("expected %d factors, got %d", len(want), len(s.Detected))
	}
	for i, id := range want {
		if s.Detected[i].ID != id {
			t.Fatalf("detection order wrong at %d: got %s want %s", i, s.Detected[i].ID, id)
		}
		if s.Detected[i].FirstSeenAt != i {
			t.Fatalf("first-seen index wrong for %s: %d", id, s.Detected[i].FirstSeenAt)
		}
	}
}

func TestMonotonicity(t *testing.T) {
	acc := NewAccumulator(catalog.Default())
	prev := acc.Score()
	for _, text := range []string{
		"송금해 주세요",
		"안녕하세요",
		"송금 다시 말씀드립니다",
		"특별 절차가 있습니다",
		"날씨가 좋네요",
	} {
		d := acc.RecordUtterance(text)
		if d.Score < prev {
			t.Fatalf("score regressed: %v -> %v", prev, d.Score)
		}
		prev = d.Score
	}
}

func TestObserveExternalMaxWins(t *testing.T) {
	acc := NewAccumulator(catalog.Default())
	acc.RecordUtterance("계좌번호를 알려주세요") // 0.70

	if got := acc.ObserveExternal(0.55); !almostEqual(got, 0.70) {
		t.Fatalf("lower external score must not win: %v", got)
	}
	if got := acc.ObserveExternal(0.85); !almostEqual(got, 0.85) {
		t.Fatalf("higher external score must win: %v", got)
	}
	// A later local detection may not regress the merged value.
	d := acc.RecordUtterance("지금 당장 하세요")
	if d.Score < 0.85 {
		t.Fatalf("local update regressed merged score: %v", d.Score)
	}
}

func TestObserveExternalClampsAndRejects(t *testing.T) {
	acc := NewAccumulator(catalog.Default())
	if got := acc.ObserveExternal(1.0); !almostEqual(got, MaxScore) {
		t.Fatalf("external 1.0 should clamp to cap, got %v", got)
	}
	if got := acc.ObserveExternal(-0.2); !almostEqual(got, MaxScore) {
		t.Fatalf("invalid external score must be ignored, got %v", got)
	}
	if got := acc.ObserveExternal(1.7); !almostEqual(got, MaxScore) {
		t.Fatalf("out-of-range external score must be ignored, got %v", got)
	}
}

func TestNoDetectionKeepsZeroScore(t *testing.T) {
	acc := NewAccumulator(catalog.Default())
	d := acc.RecordUtterance("여보세요")
	if d.Score != 0 || len(d.NewFactors) != 0 {
		t.Fatalf("clean utterance must not move the score: %+v", d)
	}
	s := acc.Snapshot()
	if s.Utterances != 1 {
		t.Fatalf("utterance count not tracked: %d", s.Utterances)
	}
}
