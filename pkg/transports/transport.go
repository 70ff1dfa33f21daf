// Package transports defines the vendor-agnostic boundary between the
// telephony network and the screening engine.
package transports

import (
	"context"

	"github.com/callshield/callshield/pkg/frames"
)

// Transport defines a vendor-agnostic I/O boundary for audio/text/control frames.
// Implementations are responsible for their own network lifecycle.
type Transport interface {
	Name() string
	Start(ctx context.Context) error
	Stop() error
	// Recv streams inbound frames: call_start and call_end system frames
	// plus far-end audio.
	Recv() <-chan frames.Frame
	// Send delivers assistant audio and control frames to the far end.
	Send(frames.Frame) error
}

// ReadyReporter allows transports to expose readiness metadata (e.g., webhook URLs).
// Implementations are optional and used for informational logging only.
type ReadyReporter interface {
	ReadyFields() map[string]any
}

// RejectChecker decides at call-setup time whether a caller is answered at
// all. Blocked numbers never reach the engine as live calls.
type RejectChecker func(fromNumber string) bool

// RejectConfigurer is implemented by transports that can refuse a call at
// the network edge, before any media flows.
type RejectConfigurer interface {
	SetRejectChecker(RejectChecker)
}

// Hanguper is implemented by transports that can terminate the network call
// for a given call id, so an engine-side session end hangs the phone up too.
type Hanguper interface {
	Hangup(callID string) error
}
