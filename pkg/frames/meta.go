package frames

// Meta keys shared across frame producers and consumers.
const (
	MetaStreamID   = "stream_id"
	MetaCallID     = "call_id"
	MetaTraceID    = "trace_id"
	MetaSource     = "source"
	MetaReason     = "reason"
	MetaIsFinal    = "is_final"
	MetaSpeaker    = "speaker"
	MetaFromNumber = "from_number"
	MetaScore      = "score"
	MetaErrorCode  = "error_code"
	MetaEncoding   = "encoding"
	MetaCodec      = "codec"
	MetaEndReason  = "end_reason"
)

// System frame names emitted by transports and the engine.
const (
	SystemCallStart = "call_start"
	SystemCallEnd   = "call_end"
	SystemError     = "input_error"
)
