package mock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/callshield/callshield/pkg/frames"
	"github.com/callshield/callshield/pkg/speech"
)

// ListenConfig scripts a mock recognizer. Script lines are emitted as final
// transcripts in order after Start, one every ScriptInterval. StartErrs are
// returned by successive Start calls before the mock comes up, which lets
// tests exercise the permission retry path.
type ListenConfig struct {
	StreamID       string
	CallID         string
	TraceID        string
	Script         []string
	ScriptInterval time.Duration
	EmitCallEnd    bool
	StartErrs      []error
}

// Listen is a scripted speech.Input for tests and the local example.
type Listen struct {
	cfg    ListenConfig
	out    chan frames.Frame
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	started bool
	starts  int
	closed  bool
}

func NewListen(cfg ListenConfig) *Listen {
	if cfg.ScriptInterval <= 0 {
		cfg.ScriptInterval = 10 * time.Millisecond
	}
	return &Listen{cfg: cfg, out: make(chan frames.Frame, 64)}
}

func (l *Listen) Name() string { return "mock_listen" }

func (l *Listen) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	l.mu.Lock()
	attempt := l.starts
	l.starts++
	if attempt < len(l.cfg.StartErrs) && l.cfg.StartErrs[attempt] != nil {
		l.mu.Unlock()
		return l.cfg.StartErrs[attempt]
	}
	l.started = true
	l.mu.Unlock()

	l.ctx, l.cancel = context.WithCancel(ctx)
	if len(l.cfg.Script) > 0 || l.cfg.EmitCallEnd {
		go l.play()
	}
	return nil
}

func (l *Listen) play() {
	for _, line := range l.cfg.Script {
		select {
		case <-l.ctx.Done():
			return
		case <-time.After(l.cfg.ScriptInterval):
		}
		l.Push(frames.NewTextFrame(l.cfg.StreamID, time.Now().UnixNano(), line, map[string]string{
			frames.MetaCallID:  l.cfg.CallID,
			frames.MetaSource:  "listen",
			frames.MetaIsFinal: "true",
		}))
	}
	if l.cfg.EmitCallEnd {
		select {
		case <-l.ctx.Done():
			return
		case <-time.After(l.cfg.ScriptInterval):
		}
		l.Push(frames.NewSystemFrame(l.cfg.StreamID, time.Now().UnixNano(), frames.SystemCallEnd, map[string]string{
			frames.MetaCallID: l.cfg.CallID,
			frames.MetaReason: "script_complete",
		}))
	}
}

// Push injects a frame directly, bypassing the script.
func (l *Listen) Push(f frames.Frame) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	select {
	case l.out <- f:
	default:
	}
}

func (l *Listen) SendAudio(frames.AudioFrame) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.started {
		return errors.New("not started")
	}
	return nil
}

func (l *Listen) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		l.cancel()
	}
	if !l.closed {
		close(l.out)
		l.closed = true
	}
	l.started = false
	return nil
}

func (l *Listen) Results() <-chan frames.Frame { return l.out }

// StartCount reports how many times Start was called.
func (l *Listen) StartCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.starts
}

var _ speech.Input = (*Listen)(nil)
