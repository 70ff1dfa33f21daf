package catalog

// FactorID names a scam-indicator category.
type FactorID string

const (
	AuthorityImpersonation FactorID = "authority_impersonation"
	UrgencyPressure        FactorID = "urgency_pressure"
	PersonalInfoRequest    FactorID = "personal_info_request"
	LegalThreat            FactorID = "legal_threat"
	TransferRequest        FactorID = "transfer_request"
	SuspiciousApproach     FactorID = "suspicious_approach"
)

// Factor is one scam-indicator entry: a keyword set, a severity weight in
// (0,1], and a human-readable description. Weights are tuned independently;
// their sum may exceed 1.0 because session scores are capped, not normalized.
type Factor struct {
	ID          FactorID
	Keywords    []string
	Weight      float64
	Description string
	Label       string
}

// Override adjusts a factor from configuration. Empty fields keep the
// default.
type Override struct {
	Keywords []string
	Weight   float64
}

var defaults = []Factor{
	{
		ID:          AuthorityImpersonation,
		Keywords:    []string{"금융감독원", "검찰", "경찰", "국세청", "법원", "공공기관"},
		Weight:      0.15,
		Description: "공공기관을 사칭하는 표현",
		Label:       "기관 사칭",
	},
	{
		ID:          UrgencyPressure,
		Keywords:    []string{"지금 당장", "서두르", "시간이 없", "안전조치", "즉시", "지금 바로", "급합니다"},
		Weight:      0.12,
		Description: "긴급성을 조성하는 표현",
		Label:       "긴급성 압박",
	},
	{
		ID:          PersonalInfoRequest,
		Keywords:    []string{"계좌번호", "비밀번호", "개인정보", "주민등록번호", "카드번호", "OTP", "인증번호"},
		Weight:      0.20,
		Description: "민감한 개인정보 요구",
		Label:       "개인정보 요구",
	},
	{
		ID:          LegalThreat,
		Keywords:    []string{"법적 책임", "동결", "책임 못", "소송", "고발", "수사", "압수수색"},
		Weight:      0.18,
		Description: "법적 위협을 통한 압박",
		Label:       "법적 위협",
	},
	{
		ID:          TransferRequest,
		Keywords:    []string{"송금", "이체", "보내", "입금", "계좌로", "돈을"},
		Weight:      0.22,
		Description: "송금 또는 이체 요구",
		Label:       "송금 요구",
	},
	{
		ID:          SuspiciousApproach,
		Keywords:    []string{"특별 절차", "비공개", "비밀", "내부", "긴급상황", "특별"},
		Weight:      0.10,
		Description: "비정상적인 접근 방식",
		Label:       "비정상 접근",
	},
}

// Catalog is a read-only table of scam factors.
type Catalog struct {
	factors []Factor
	byID    map[FactorID]int
}

// Default returns the built-in six-factor catalog.
func Default() *Catalog {
	return New(defaults)
}

// New builds a catalog from an explicit factor list. The slice is copied.
func New(factors []Factor) *Catalog {
	c := &Catalog{
		factors: make([]Factor, len(factors)),
		byID:    make(map[FactorID]int, len(factors)),
	}
	for i, f := range factors {
		f.Keywords = append([]string(nil), f.Keywords...)
		c.factors[i] = f
		c.byID[f.ID] = i
	}
	return c
}

// WithOverrides returns a copy of the catalog with configuration overrides
// applied. Unknown factor ids are ignored.
func (c *Catalog) WithOverrides(overrides map[FactorID]Override) *Catalog {
	if len(overrides) == 0 {
		return c
	}
	factors := make([]Factor, len(c.factors))
	copy(factors, c.factors)
	for i, f := range factors {
		ov, ok := overrides[f.ID]
		if !ok {
			continue
		}
		if len(ov.Keywords) > 0 {
			factors[i].Keywords = append([]string(nil), ov.Keywords...)
		}
		if ov.Weight > 0 && ov.Weight <= 1 {
			factors[i].Weight = ov.Weight
		}
	}
	return New(factors)
}

// Lookup returns the factor for id.
func (c *Catalog) Lookup(id FactorID) (Factor, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Factor{}, false
	}
	return c.factors[i], true
}

// All enumerates every factor in catalog order.
func (c *Catalog) All() []Factor {
	out := make([]Factor, len(c.factors))
	copy(out, c.factors)
	return out
}

// Len returns the number of factors.
func (c *Catalog) Len() int { return len(c.factors) }
