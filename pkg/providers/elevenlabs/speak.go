// Package elevenlabs synthesizes the assistant's replies over the
// ElevenLabs streaming websocket API.
package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/callshield/callshield/pkg/errorsx"
	"github.com/callshield/callshield/pkg/frames"
	"github.com/callshield/callshield/pkg/logging"
	"github.com/callshield/callshield/pkg/resilience"
	"github.com/callshield/callshield/pkg/speech"
)

type Config struct {
	APIKey       string
	VoiceID      string
	ModelID      string
	OutputFormat string
	SampleRate   int
	StreamID     string
	CallID       string
}

// Speak is the ElevenLabs-backed speech.Output.
type Speak struct {
	cfg     Config
	conn    *websocket.Conn
	out     chan frames.Frame
	writeCh chan speakMessage
	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex
	logger  *slog.Logger
}

type speakMessage struct {
	text  string
	flush bool
}

func New(cfg Config) *Speak {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 44100
	}
	return &Speak{
		cfg:     cfg,
		out:     make(chan frames.Frame, 256),
		writeCh: make(chan speakMessage, 256),
		logger:  logging.NewComponentLogger(slog.Default(), "elevenlabs_speak"),
	}
}

func (s *Speak) Name() string { return "elevenlabs_speak" }

func (s *Speak) Start(ctx context.Context) error {
	if s.cfg.APIKey == "" || s.cfg.VoiceID == "" {
		return errorsx.Wrap(errors.New("missing elevenlabs config"), errorsx.ReasonSynthConnect)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	u := s.buildURL()

	s.logger.Debug("elevenlabs_connecting",
		slog.String("stream_id", s.cfg.StreamID),
		slog.String("output_format", s.cfg.OutputFormat))

	dialer := websocket.Dialer{Proxy: http.ProxyFromEnvironment}
	conn, resp, err := dialer.Dial(u, http.Header{
		"xi-api-key": []string{s.cfg.APIKey},
	})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
			s.logger.Error("elevenlabs_rate_limited",
				slog.String("stream_id", s.cfg.StreamID),
				slog.String("status", resp.Status))
			return resilience.RateLimitError{Provider: "elevenlabs", Message: resp.Status}
		}
		s.logger.Error("elevenlabs_connect_failed",
			slog.String("stream_id", s.cfg.StreamID),
			slog.String("error", err.Error()))
		return errorsx.Wrap(err, errorsx.ReasonSynthConnect)
	}

	s.conn = conn
	s.logger.Info("elevenlabs_connected",
		slog.String("stream_id", s.cfg.StreamID),
		slog.String("output_format", s.cfg.OutputFormat))

	_ = s.send(map[string]any{
		"text":                   " ",
		"try_trigger_generation": true,
		"voice_settings": map[string]any{
			"stability":        0.5,
			"similarity_boost": 0.8,
		},
		"generation_config": map[string]any{
			"chunk_length_schedule": []int{120, 160, 250, 290},
		},
	})
	go s.readLoop()
	go s.writeLoop()
	return nil
}

func (s *Speak) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger.Info("elevenlabs_close", slog.String("stream_id", s.cfg.StreamID))
	if s.cancel != nil {
		s.cancel()
	}
	if s.conn != nil {
		_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		return s.conn.Close()
	}
	return nil
}

func (s *Speak) SendText(text string) error {
	if s.conn == nil {
		return errorsx.Wrap(errors.New("not connected"), errorsx.ReasonSynthSend)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if !strings.HasSuffix(text, " ") {
		text += " "
	}
	select {
	case s.writeCh <- speakMessage{text: text}:
	default:
	}
	return nil
}

// Flush stops generation and drops any buffered audio so stale frames never
// play after an interruption.
func (s *Speak) Flush() {
	_ = s.send(map[string]any{"text": " ", "flush": true})
drainLoop:
	for {
		select {
		case <-s.out:
		default:
			break drainLoop
		}
	}
	s.logger.Info("elevenlabs_buffer_purged", slog.String("stream_id", s.cfg.StreamID))
}

func (s *Speak) Results() <-chan frames.Frame { return s.out }

func (s *Speak) buildURL() string {
	base := "wss://api.elevenlabs.io/v1/text-to-speech/" + s.cfg.VoiceID + "/stream-input"
	q := url.Values{}
	if s.cfg.ModelID != "" {
		q.Set("model_id", s.cfg.ModelID)
	}
	if s.cfg.OutputFormat != "" {
		q.Set("output_format", s.cfg.OutputFormat)
	}
	q.Set("optimize_streaming_latency", "4")
	return base + "?" + q.Encode()
}

func (s *Speak) writeLoop() {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case msg := <-s.writeCh:
			payload := map[string]any{"text": msg.text}
			if msg.flush {
				payload["flush"] = true
			}
			_ = s.send(payload)
		case <-ticker.C:
			// Keep-alive against the 20s idle timeout.
			_ = s.send(map[string]any{"text": " "})
		}
	}
}

func (s *Speak) readLoop() {
	for {
		select {
		case <-s.ctx.Done():
			return
		default:
			_, data, err := s.conn.ReadMessage()
			if err != nil {
				if s.ctx.Err() == nil {
					s.logger.Error("elevenlabs_read_error",
						slog.String("stream_id", s.cfg.StreamID),
						slog.String("error", err.Error()))
				}
				return
			}
			s.handleMessage(data)
		}
	}
}

func (s *Speak) handleMessage(data []byte) {
	var msg map[string]any
	if err := json.Unmarshal(data, &msg); err != nil {
		s.logger.Warn("elevenlabs_raw_message", "data", string(data))
		return
	}
	audio, ok := msg["audio"].(string)
	if !ok {
		if a, ok := msg["audio_base_64"].(string); ok {
			audio = a
		} else if a, ok := msg["audio_base64"].(string); ok {
			audio = a
		} else {
			if _, isAlign := msg["alignment"]; !isAlign {
				s.logger.Debug("elevenlabs_event", "payload", msg)
			}
			return
		}
	}
	raw, err := base64.StdEncoding.DecodeString(audio)
	if err != nil {
		s.logger.Error("elevenlabs_audio_decode_error", "error", err)
		return
	}

	meta := map[string]string{
		frames.MetaStreamID: s.cfg.StreamID,
		frames.MetaCallID:   s.cfg.CallID,
		frames.MetaSource:   "speak",
	}
	if strings.Contains(s.cfg.OutputFormat, "ulaw") {
		meta[frames.MetaEncoding] = "mulaw"
		meta[frames.MetaCodec] = "ulaw"
		meta["sample_rate"] = "8000"
		meta["channels"] = "1"
	}

	f := frames.NewAudioFrame(s.cfg.StreamID, time.Now().UnixNano(), raw, s.cfg.SampleRate, 1, meta)
	select {
	case s.out <- f:
	default:
		s.logger.Warn("elevenlabs_output_buffer_full",
			slog.String("stream_id", s.cfg.StreamID))
	}
}

func (s *Speak) send(payload map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, b)
}

var _ speech.Output = (*Speak)(nil)
