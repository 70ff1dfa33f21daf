package mock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/callshield/callshield/pkg/frames"
	"github.com/callshield/callshield/pkg/speech"
)

// SpeakConfig configures the mock synthesizer.
type SpeakConfig struct {
	StreamID       string
	CallID         string
	SampleRate     int
	Channels       int
	EmitAudioReady bool
}

// Speak is a speech.Output that records every synthesized line and emits a
// deterministic silent audio frame per line.
type Speak struct {
	cfg SpeakConfig
	out chan frames.Frame

	mu      sync.Mutex
	started bool
	closed  bool
	spoken  []string
}

func NewSpeak(cfg SpeakConfig) *Speak {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels == 0 {
		cfg.Channels = 1
	}
	return &Speak{cfg: cfg, out: make(chan frames.Frame, 64)}
}

func (s *Speak) Name() string { return "mock_speak" }

func (s *Speak) Start(ctx context.Context) error {
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	return nil
}

func (s *Speak) SendText(text string) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return errors.New("not started")
	}
	s.spoken = append(s.spoken, text)
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil
	}

	pcm := make([]byte, 320)
	meta := map[string]string{
		frames.MetaCallID: s.cfg.CallID,
		frames.MetaSource: "speak",
	}
	f := frames.NewAudioFrame(s.cfg.StreamID, time.Now().UnixNano(), pcm, s.cfg.SampleRate, s.cfg.Channels, meta)
	select {
	case s.out <- f:
	default:
	}
	if s.cfg.EmitAudioReady {
		ready := frames.NewControlFrame(s.cfg.StreamID, time.Now().UnixNano(), frames.ControlAudioReady, map[string]string{
			frames.MetaSource: "speak",
		})
		select {
		case s.out <- ready:
		default:
		}
	}
	return nil
}

func (s *Speak) Flush() {}

func (s *Speak) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		close(s.out)
		s.closed = true
	}
	s.started = false
	return nil
}

func (s *Speak) Results() <-chan frames.Frame { return s.out }

// Spoken returns every line sent for synthesis, in order.
func (s *Speak) Spoken() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.spoken))
	copy(out, s.spoken)
	return out
}

var _ speech.Output = (*Speak)(nil)
