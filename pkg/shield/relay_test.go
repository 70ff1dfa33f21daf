package shield

import (
	"sync"
	"testing"
	"time"

	"github.com/callshield/callshield/pkg/frames"
	"github.com/callshield/callshield/pkg/providers/mock"
)

func textFrame(text string) frames.Frame {
	return frames.NewTextFrame("s1", time.Now().UnixNano(), text, map[string]string{
		frames.MetaIsFinal: "true",
	})
}

func TestRelayDeliversCallEndThroughFullBuffer(t *testing.T) {
	r := &inputRelay{
		inner: mock.NewListen(mock.ListenConfig{}),
		out:   make(chan frames.Frame, 1),
		done:  make(chan struct{}),
	}
	r.emit(textFrame("여보세요"))

	delivered := make(chan struct{})
	go func() {
		r.Inject(frames.NewSystemFrame("s1", time.Now().UnixNano(), frames.SystemCallEnd, nil))
		close(delivered)
	}()

	// The hangup must wait for the consumer, not vanish.
	select {
	case <-delivered:
		t.Fatal("call end frame bypassed a full buffer")
	case <-time.After(20 * time.Millisecond):
	}

	<-r.Results()
	select {
	case <-delivered:
	case <-time.After(2 * time.Second):
		t.Fatal("call end frame never delivered")
	}
	f := <-r.Results()
	sf, ok := f.(frames.SystemFrame)
	if !ok || sf.Name() != frames.SystemCallEnd {
		t.Fatalf("expected call end frame, got %#v", f)
	}
}

func TestRelayDropsTextUnderBackpressure(t *testing.T) {
	r := &inputRelay{
		inner: mock.NewListen(mock.ListenConfig{}),
		out:   make(chan frames.Frame, 1),
		done:  make(chan struct{}),
	}
	r.emit(textFrame("하나"))
	r.emit(textFrame("둘"))

	f := <-r.Results()
	tf, ok := f.(frames.TextFrame)
	if !ok || tf.Text() != "하나" {
		t.Fatalf("expected first frame, got %#v", f)
	}
	select {
	case f := <-r.Results():
		t.Fatalf("overflow frame kept: %#v", f)
	default:
	}
}

func TestRelayCloseReleasesBlockedEmit(t *testing.T) {
	r := &inputRelay{
		inner: mock.NewListen(mock.ListenConfig{}),
		out:   make(chan frames.Frame),
		done:  make(chan struct{}),
	}
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.Inject(frames.NewSystemFrame("s1", 0, frames.SystemCallEnd, nil))
	}()
	time.Sleep(10 * time.Millisecond)
	if err := r.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	wg.Wait()
	if err := r.Close(); err != nil {
		t.Fatalf("double close: %v", err)
	}
	// Post-close injects return immediately.
	r.Inject(frames.NewSystemFrame("s1", 0, frames.SystemCallEnd, nil))
}
