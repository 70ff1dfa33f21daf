// Package report turns accumulated scoring state into the user-facing call
// report. Build is pure: the same snapshot always yields the same report.
package report

import (
	"github.com/callshield/callshield/pkg/catalog"
	"github.com/callshield/callshield/pkg/scoring"
)

type Verdict int

const (
	VerdictNormal Verdict = iota
	VerdictSuspicious
	VerdictConfirmedPhishing
)

func (v Verdict) String() string {
	switch v {
	case VerdictNormal:
		return "normal"
	case VerdictSuspicious:
		return "suspicious"
	case VerdictConfirmedPhishing:
		return "confirmed_phishing"
	default:
		return "unknown"
	}
}

// Label returns the user-facing verdict text.
func (v Verdict) Label() string {
	switch v {
	case VerdictConfirmedPhishing:
		return "피싱 확정"
	case VerdictSuspicious:
		return "의심"
	default:
		return "정상"
	}
}

type RiskTier int

const (
	RiskLow RiskTier = iota
	RiskMedium
	RiskHigh
)

func (r RiskTier) String() string {
	switch r {
	case RiskHigh:
		return "high"
	case RiskMedium:
		return "medium"
	default:
		return "low"
	}
}

// Verdict and risk-tier thresholds. Comparisons are strict: a score of
// exactly 0.8 stays suspicious.
const (
	PhishingThreshold   = 0.8
	SuspiciousThreshold = 0.6
	RiskHighThreshold   = 0.7
	RiskMediumThreshold = 0.5
)

// Report is the immutable end-of-call summary.
type Report struct {
	Verdict      Verdict  `json:"verdict"`
	RiskTier     RiskTier `json:"risk_tier"`
	Score        float64  `json:"score"`
	FactorLabels []string `json:"factor_labels"`
	Evidence     []string `json:"evidence"`
	ActionGuide  []string `json:"action_guide"`
	TurnCount    int      `json:"turn_count"`
	Degraded     bool     `json:"degraded,omitempty"`
}

var evidenceByFactor = map[catalog.FactorID]string{
	catalog.AuthorityImpersonation: "공공기관을 사칭하는 표현이 사용되었습니다.",
	catalog.PersonalInfoRequest:    "계좌번호, 비밀번호 등 민감한 개인정보를 요구하는 내용이 포함되어 있습니다.",
	catalog.UrgencyPressure:        "긴급성을 조성하는 표현이 반복적으로 사용되었습니다.",
	catalog.LegalThreat:            "법적 책임, 계좌 동결 등 위협적인 표현을 사용하여 심리적 압박을 시도했습니다.",
	catalog.TransferRequest:        "송금 또는 이체를 요구하는 내용이 포함되어 있습니다.",
	catalog.SuspiciousApproach:     "비정상적인 접근 방식이 감지되었습니다.",
}

const (
	evidenceGenericSuspicious = "통화 내용을 분석한 결과 의심스러운 패턴이 발견되었습니다."
	evidenceClean             = "통화 내용을 분석한 결과 특별한 문제가 발견되지 않았습니다."
	evidenceDegraded          = "통화 분석 중 오류가 발생하여 일부 내용만 분석되었습니다."
	labelDegraded             = "분석 불가"
)

var actionGuidePhishing = []string{
	"즉시 통화를 차단하세요.",
	"다시 전화하지 마세요.",
	"공식 기관 번호(금융감독원: 1332, 경찰청: 112)로 직접 확인하세요.",
	"절대 계좌번호, 비밀번호, 인증번호를 알려주지 마세요.",
	"의심스러운 통화는 녹음하고 신고하세요.",
}

var actionGuideSuspicious = []string{
	"의심스러운 통화입니다.",
	"다시 전화하지 마세요.",
	"공식 기관 번호(금융감독원: 1332, 경찰청: 112)로 직접 확인하세요.",
	"절대 계좌번호, 비밀번호, 인증번호를 알려주지 마세요.",
	"의심스러운 통화는 녹음하고 신고하세요.",
}

var actionGuideNormal = []string{
	"정상적인 통화로 보입니다.",
	"필요시 공식 채널로 재확인하세요.",
}

// Build constructs a report from a scoring snapshot. Factor labels and
// evidence follow detection order, not catalog order. A single detected
// factor forces at least a suspicious verdict even when the numeric score
// stays low.
func Build(s scoring.Snapshot, turnCount int) Report {
	return build(s, turnCount, false)
}

// BuildDegraded constructs the fallback report for calls terminated by an
// unrecoverable error. The verdict is floored at suspicious: under
// uncertainty the call is never reported as clean.
func BuildDegraded(s scoring.Snapshot, turnCount int) Report {
	return build(s, turnCount, true)
}

func build(s scoring.Snapshot, turnCount int, degraded bool) Report {
	score := s.Score
	if degraded && score < scoring.Baseline {
		score = scoring.Baseline
	}
	hasFactors := len(s.Detected) > 0

	verdict := VerdictNormal
	switch {
	case score > PhishingThreshold:
		verdict = VerdictConfirmedPhishing
	case score > SuspiciousThreshold || hasFactors:
		verdict = VerdictSuspicious
	}
	if degraded && verdict == VerdictNormal {
		verdict = VerdictSuspicious
	}

	tier := RiskLow
	switch {
	case score > RiskHighThreshold:
		tier = RiskHigh
	case score > RiskMediumThreshold:
		tier = RiskMedium
	}
	if degraded && tier == RiskLow {
		tier = RiskMedium
	}

	labels := make([]string, 0, len(s.Detected))
	evidence := make([]string, 0, len(s.Detected)+1)
	for _, df := range s.Detected {
		labels = append(labels, df.Label)
		if line, ok := evidenceByFactor[df.ID]; ok {
			evidence = append(evidence, line)
		}
	}
	if len(evidence) == 0 {
		if hasFactors {
			evidence = append(evidence, evidenceGenericSuspicious)
		} else if !degraded {
			evidence = append(evidence, evidenceClean)
		}
	}
	if degraded {
		evidence = append(evidence, evidenceDegraded)
		if len(labels) == 0 {
			labels = append(labels, labelDegraded)
		}
	}

	var guide []string
	switch verdict {
	case VerdictConfirmedPhishing:
		guide = actionGuidePhishing
	case VerdictSuspicious:
		guide = actionGuideSuspicious
	default:
		guide = actionGuideNormal
	}

	return Report{
		Verdict:      verdict,
		RiskTier:     tier,
		Score:        score,
		FactorLabels: labels,
		Evidence:     evidence,
		ActionGuide:  append([]string(nil), guide...),
		TurnCount:    turnCount,
		Degraded:     degraded,
	}
}
