// Package deepgram streams the far end's audio to Deepgram and emits
// finalized transcripts as text frames.
package deepgram

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/callshield/callshield/pkg/errorsx"
	"github.com/callshield/callshield/pkg/frames"
	"github.com/callshield/callshield/pkg/logging"
	"github.com/callshield/callshield/pkg/speech"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	client "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
)

type Config struct {
	APIKey         string
	Model          string
	Language       string
	SampleRate     int
	Encoding       string
	Interim        bool
	VADEvents      bool
	UtteranceEndMS int
	StreamID       string
	CallID         string
	TraceID        string
}

// Listen is the Deepgram-backed speech.Input.
type Listen struct {
	cfg        Config
	dgClient   *client.WSCallback
	out        chan frames.Frame
	ctx        context.Context
	cancel     context.CancelFunc
	pipeReader *io.PipeReader
	pipeWriter *io.PipeWriter
	metaLogged bool
	logger     *slog.Logger

	mu sync.Mutex
	// Set when a transcript arrived since the last utterance-end event, so
	// silence can be distinguished from a finished utterance.
	heardSpeech bool
}

func New(cfg Config) *Listen {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Language == "" {
		cfg.Language = "ko"
	}
	return &Listen{
		cfg:    cfg,
		out:    make(chan frames.Frame, 256),
		logger: logging.NewComponentLogger(slog.Default(), "deepgram_listen"),
	}
}

func (l *Listen) Name() string { return "deepgram_listen" }

func (l *Listen) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	l.ctx, l.cancel = context.WithCancel(ctx)

	l.pipeReader, l.pipeWriter = io.Pipe()

	clientOptions := &interfaces.ClientOptions{
		EnableKeepAlive: true,
	}

	transcriptOptions := &interfaces.LiveTranscriptionOptions{
		Model:          l.cfg.Model,
		Language:       l.cfg.Language,
		Encoding:       l.cfg.Encoding,
		SampleRate:     l.cfg.SampleRate,
		InterimResults: l.cfg.Interim,
		VadEvents:      l.cfg.VADEvents,
		SmartFormat:    true,
	}
	if l.cfg.UtteranceEndMS > 0 {
		transcriptOptions.UtteranceEndMs = fmt.Sprintf("%d", l.cfg.UtteranceEndMS)
	}

	l.logger.Info("deepgram_connecting",
		slog.String("stream_id", l.cfg.StreamID),
		slog.String("call_id", l.cfg.CallID),
		slog.String("model", l.cfg.Model),
		slog.String("language", l.cfg.Language),
		slog.Int("sample_rate", l.cfg.SampleRate))

	cb := &callback{parent: l}
	dgClient, err := client.NewWSUsingCallback(l.ctx, l.cfg.APIKey, clientOptions, transcriptOptions, cb)
	if err != nil {
		l.logger.Error("deepgram_client_create_error",
			slog.String("error", err.Error()),
			slog.String("stream_id", l.cfg.StreamID))
		return errorsx.Wrap(err, errorsx.ReasonSpeechConnect)
	}
	l.dgClient = dgClient

	if connected := l.dgClient.Connect(); !connected {
		l.logger.Error("deepgram_connect_failed",
			slog.String("stream_id", l.cfg.StreamID))
		return errorsx.Wrap(fmt.Errorf("deepgram connection failed"), errorsx.ReasonSpeechConnect)
	}

	l.logger.Info("deepgram_connected",
		slog.String("stream_id", l.cfg.StreamID),
		slog.String("call_id", l.cfg.CallID))

	go func() {
		if err := l.dgClient.Stream(l.pipeReader); err != nil && l.ctx.Err() == nil {
			l.logger.Error("deepgram_stream_error",
				slog.String("error", err.Error()),
				slog.String("stream_id", l.cfg.StreamID))
		}
	}()
	return nil
}

func (l *Listen) Close() error {
	l.logger.Info("deepgram_closing", slog.String("stream_id", l.cfg.StreamID))
	if l.cancel != nil {
		l.cancel()
	}
	if l.pipeWriter != nil {
		_ = l.pipeWriter.Close()
	}
	if l.dgClient != nil {
		l.dgClient.Stop()
	}
	return nil
}

func (l *Listen) SendAudio(frame frames.AudioFrame) error {
	if l.pipeWriter == nil {
		return errorsx.Wrap(fmt.Errorf("not started"), errorsx.ReasonSpeechSend)
	}
	_, err := l.pipeWriter.Write(frame.RawPayload())
	if err != nil {
		l.logger.Error("deepgram_send_error",
			slog.String("error", err.Error()),
			slog.String("stream_id", l.cfg.StreamID))
		return errorsx.Wrap(err, errorsx.ReasonSpeechSend)
	}
	return nil
}

func (l *Listen) Results() <-chan frames.Frame { return l.out }

func (l *Listen) baseMeta() map[string]string {
	meta := map[string]string{
		frames.MetaStreamID: l.cfg.StreamID,
		frames.MetaCallID:   l.cfg.CallID,
		frames.MetaSource:   "listen",
	}
	if l.cfg.TraceID != "" {
		meta[frames.MetaTraceID] = l.cfg.TraceID
	}
	return meta
}

func (l *Listen) emit(f frames.Frame) {
	select {
	case l.out <- f:
	default:
		l.logger.Warn("deepgram_out_channel_full",
			slog.String("stream_id", l.cfg.StreamID))
	}
}

// --- Callback Implementation ---

type callback struct {
	parent *Listen
}

func (c *callback) Open(or *msginterfaces.OpenResponse) error {
	c.parent.logger.Info("deepgram_connection_opened",
		slog.String("stream_id", c.parent.cfg.StreamID))
	return nil
}

func (c *callback) Message(mr *msginterfaces.MessageResponse) error {
	if len(mr.Channel.Alternatives) == 0 {
		return nil
	}
	text := mr.Channel.Alternatives[0].Transcript
	if text == "" {
		return nil
	}
	isFinal := mr.IsFinal || mr.SpeechFinal

	c.parent.mu.Lock()
	c.parent.heardSpeech = true
	c.parent.mu.Unlock()

	meta := c.parent.baseMeta()
	if isFinal {
		meta[frames.MetaIsFinal] = "true"
	} else {
		meta[frames.MetaIsFinal] = "false"
	}

	c.parent.logger.Debug("transcript_received",
		slog.String("stream_id", c.parent.cfg.StreamID),
		slog.Bool("is_final", isFinal))

	c.parent.emit(frames.NewTextFrame(c.parent.cfg.StreamID, time.Now().UnixNano(), text, meta))
	return nil
}

func (c *callback) Metadata(md *msginterfaces.MetadataResponse) error {
	if !c.parent.metaLogged {
		c.parent.metaLogged = true
		c.parent.logger.Info("deepgram_metadata_received",
			slog.String("stream_id", c.parent.cfg.StreamID),
			slog.String("request_id", md.RequestID))
	}
	return nil
}

func (c *callback) SpeechStarted(ssr *msginterfaces.SpeechStartedResponse) error {
	c.parent.logger.Debug("speech_started_event",
		slog.String("stream_id", c.parent.cfg.StreamID))
	return nil
}

// UtteranceEnd that follows no transcript means the recognizer heard only
// silence; surface that as a non-fatal no-speech control frame.
func (c *callback) UtteranceEnd(ur *msginterfaces.UtteranceEndResponse) error {
	c.parent.mu.Lock()
	heard := c.parent.heardSpeech
	c.parent.heardSpeech = false
	c.parent.mu.Unlock()
	if heard {
		return nil
	}
	meta := c.parent.baseMeta()
	meta[frames.MetaReason] = "utterance_end_without_speech"
	c.parent.logger.Debug("no_speech_detected",
		slog.String("stream_id", c.parent.cfg.StreamID))
	c.parent.emit(frames.NewControlFrame(c.parent.cfg.StreamID, time.Now().UnixNano(), frames.ControlNoSpeech, meta))
	return nil
}

func (c *callback) Close(cr *msginterfaces.CloseResponse) error {
	c.parent.logger.Info("deepgram_connection_closed",
		slog.String("stream_id", c.parent.cfg.StreamID))
	return nil
}

func (c *callback) Error(er *msginterfaces.ErrorResponse) error {
	c.parent.logger.Error("deepgram_error",
		slog.String("stream_id", c.parent.cfg.StreamID),
		slog.String("error_code", er.ErrCode),
		slog.String("error_message", er.ErrMsg))
	meta := c.parent.baseMeta()
	meta[frames.MetaErrorCode] = string(errorsx.ReasonSpeechConnect)
	meta[frames.MetaReason] = er.ErrMsg
	c.parent.emit(frames.NewSystemFrame(c.parent.cfg.StreamID, time.Now().UnixNano(), frames.SystemError, meta))
	return nil
}

func (c *callback) UnhandledEvent(byData []byte) error {
	c.parent.logger.Debug("deepgram_unhandled_event",
		slog.String("stream_id", c.parent.cfg.StreamID))
	return nil
}

var _ speech.Input = (*Listen)(nil)
