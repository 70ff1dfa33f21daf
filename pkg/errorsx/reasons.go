package errorsx

// ReasonCode is a short machine-readable error reason.
type ReasonCode string

const (
	ReasonUnknown ReasonCode = "unknown"

	ReasonSpeechConnect     ReasonCode = "speech_connect"
	ReasonSpeechSend        ReasonCode = "speech_send"
	ReasonSpeechRetry       ReasonCode = "speech_retry"
	ReasonSpeechPermission  ReasonCode = "speech_permission"
	ReasonSpeechDevice      ReasonCode = "speech_device"
	ReasonSpeechRateLimit   ReasonCode = "speech_rate_limit"
	ReasonSpeechCircuitOpen ReasonCode = "speech_circuit_open"

	ReasonSynthConnect     ReasonCode = "synth_connect"
	ReasonSynthSend        ReasonCode = "synth_send"
	ReasonSynthRetry       ReasonCode = "synth_retry"
	ReasonSynthRateLimit   ReasonCode = "synth_rate_limit"
	ReasonSynthCircuitOpen ReasonCode = "synth_circuit_open"

	ReasonOracleRequest     ReasonCode = "oracle_request"
	ReasonOracleStatus      ReasonCode = "oracle_status"
	ReasonOracleDecode      ReasonCode = "oracle_decode"
	ReasonOracleUnavailable ReasonCode = "oracle_unavailable"

	ReasonSessionEnded    ReasonCode = "session_ended"
	ReasonSessionNotFound ReasonCode = "session_not_found"

	ReasonTransportInvalidSignature ReasonCode = "webhook_invalid_signature"
	ReasonTransportSend             ReasonCode = "transport_send"
)
