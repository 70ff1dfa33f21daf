// Package speech defines the vendor-agnostic contracts for streaming speech
// recognition and synthesis during a screened call.
package speech

import (
	"context"

	"github.com/callshield/callshield/pkg/frames"
)

// Input defines the contract for any speech-recognition vendor
// implementation. Implementations stream the far end's audio in and emit
// transcription and control frames on Results.
type Input interface {
	// Name returns adapter name for logging/metrics.
	Name() string
	// Start initializes the recognition connection.
	Start(ctx context.Context) error
	// Close shuts down the recognition connection.
	Close() error
	// SendAudio forwards far-end audio to the recognizer.
	SendAudio(frame frames.AudioFrame) error
	// Results returns a channel of transcription/control frames. The
	// channel closes when the input shuts down.
	Results() <-chan frames.Frame
}

// Output defines the contract for any speech-synthesis vendor
// implementation.
type Output interface {
	// Name returns adapter name for logging/metrics.
	Name() string
	// Start initializes the synthesis connection.
	Start(ctx context.Context) error
	// Close shuts down the synthesis connection.
	Close() error
	// SendText sends text to be synthesized.
	SendText(text string) error
	// Flush stops current synthesis and clears buffers.
	Flush()
	// Results returns a channel of audio/control frames.
	Results() <-chan frames.Frame
}

// InputConfig contains vendor-agnostic recognition configuration.
type InputConfig struct {
	StreamID   string
	CallID     string
	TraceID    string
	SampleRate int
	Language   string
}

// OutputConfig contains vendor-agnostic synthesis configuration.
type OutputConfig struct {
	StreamID   string
	CallID     string
	SampleRate int
	Channels   int
}
