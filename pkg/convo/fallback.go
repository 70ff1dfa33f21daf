package convo

import (
	"strings"

	"github.com/callshield/callshield/pkg/oracle"
)

// fallbackReply picks a canned response when the analysis backend cannot
// draft one. Replies stay short and noncommittal; a high local score steers
// toward disengaging.
func fallbackReply(text string, score float64, role oracle.Role) string {
	if role == oracle.RoleVictim {
		// Training mode: the assistant plays the scammer so users can
		// practice refusing.
		switch {
		case strings.Contains(text, "계좌") || strings.Contains(text, "비밀번호"):
			return "네, 지금 당장 계좌번호와 비밀번호를 알려주시면 안전하게 보호해드리겠습니다."
		case strings.Contains(text, "확인") || strings.Contains(text, "의심"):
			return "지금은 시간이 없습니다. 지금 당장 처리하지 않으면 계좌가 동결될 수 있습니다."
		default:
			return "안녕하세요, 금융감독원입니다. 귀하의 계좌에서 의심스러운 거래가 감지되었습니다."
		}
	}

	switch {
	case score > 0.7:
		return "네, 확인해보고 다시 연락드리겠습니다."
	case strings.Contains(text, "계좌") || strings.Contains(text, "송금"):
		return "죄송하지만 개인정보는 제공할 수 없습니다."
	default:
		return "네, 알겠습니다. 확인해보겠습니다."
	}
}
