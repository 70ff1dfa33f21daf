package shield

import (
	"context"
	"sync"

	"github.com/callshield/callshield/pkg/frames"
	"github.com/callshield/callshield/pkg/speech"
)

// inputRelay merges a recognizer's frames with engine-injected system frames
// on one channel, so the orchestrator sees transport hangups and recognizer
// output through the same speech.Input it already owns.
type inputRelay struct {
	inner speech.Input
	out   chan frames.Frame
	done  chan struct{}

	closeOnce sync.Once
}

func newInputRelay(inner speech.Input) *inputRelay {
	return &inputRelay{
		inner: inner,
		out:   make(chan frames.Frame, 256),
		done:  make(chan struct{}),
	}
}

func (r *inputRelay) Name() string { return r.inner.Name() }

func (r *inputRelay) Start(ctx context.Context) error {
	if err := r.inner.Start(ctx); err != nil {
		return err
	}
	go r.pipe(r.inner.Results())
	return nil
}

// pipe copies recognizer frames out. A recognizer that closes its channel
// ends the call the same way a hangup does.
func (r *inputRelay) pipe(in <-chan frames.Frame) {
	for f := range in {
		r.emit(f)
	}
	r.emit(frames.NewSystemFrame("", 0, frames.SystemCallEnd, map[string]string{
		frames.MetaSource: "listen",
	}))
}

// Inject delivers an engine-side frame to the conversation loop.
func (r *inputRelay) Inject(f frames.Frame) {
	r.emit(f)
}

// emit forwards one frame. Text and control frames may be dropped under
// backpressure; system frames carry hangups and errors, so they block until
// the loop takes them or the relay is closed.
func (r *inputRelay) emit(f frames.Frame) {
	if _, system := f.(frames.SystemFrame); system {
		select {
		case r.out <- f:
		case <-r.done:
		}
		return
	}
	select {
	case r.out <- f:
	default:
	}
}

func (r *inputRelay) SendAudio(f frames.AudioFrame) error {
	return r.inner.SendAudio(f)
}

func (r *inputRelay) Results() <-chan frames.Frame { return r.out }

// Close stops the inner recognizer and releases blocked emitters. The out
// channel is never closed: the call-end frame, not a channel close, ends the
// loop, and an in-flight emit must not race a close.
func (r *inputRelay) Close() error {
	err := r.inner.Close()
	r.closeOnce.Do(func() { close(r.done) })
	return err
}

var _ speech.Input = (*inputRelay)(nil)
