package shield

import (
	"fmt"
	"time"

	"github.com/callshield/callshield/pkg/configutil"
	"github.com/callshield/callshield/pkg/oracle"
	"github.com/callshield/callshield/pkg/providers/deepgram"
	"github.com/callshield/callshield/pkg/providers/elevenlabs"
	"github.com/callshield/callshield/pkg/providers/mock"
	"github.com/callshield/callshield/pkg/speech"
)

// DefaultRegistry returns a registry with every built-in provider installed:
// deepgram and mock recognition, elevenlabs and mock synthesis, http and
// mock analysis backends.
func DefaultRegistry() *ProviderRegistry {
	r := NewProviderRegistry()
	r.RegisterListen("deepgram", buildDeepgramListen)
	r.RegisterListen("mock", buildMockListen)
	r.RegisterSpeak("elevenlabs", buildElevenLabsSpeak)
	r.RegisterSpeak("mock", buildMockSpeak)
	r.RegisterOracle("http", buildHTTPOracle)
	r.RegisterOracle("mock", buildMockOracle)
	return r
}

type deepgramSettings struct {
	APIKey         string `mapstructure:"api_key"`
	Model          string `mapstructure:"model"`
	Language       string `mapstructure:"language"`
	SampleRate     int    `mapstructure:"sample_rate"`
	Encoding       string `mapstructure:"encoding"`
	Interim        bool   `mapstructure:"interim"`
	VADEvents      bool   `mapstructure:"vad_events"`
	UtteranceEndMS int    `mapstructure:"utterance_end_ms"`
}

func buildDeepgramListen(cfg Config, traceID string) (func(callID, streamID string) speech.Input, error) {
	err := configutil.ValidateSettings(cfg.Vendors.Listen.Settings, configutil.Schema{
		Required: []string{"api_key"},
		Optional: []string{"model", "language", "sample_rate", "encoding", "interim", "vad_events", "utterance_end_ms"},
	})
	if err != nil {
		return nil, fmt.Errorf("vendors.listen.settings: %w", err)
	}
	var s deepgramSettings
	if err := configutil.DecodeSettings(cfg.Vendors.Listen.Settings, &s); err != nil {
		return nil, err
	}
	return func(callID, streamID string) speech.Input {
		return deepgram.New(deepgram.Config{
			APIKey:         s.APIKey,
			Model:          s.Model,
			Language:       s.Language,
			SampleRate:     s.SampleRate,
			Encoding:       s.Encoding,
			Interim:        s.Interim,
			VADEvents:      s.VADEvents,
			UtteranceEndMS: s.UtteranceEndMS,
			StreamID:       streamID,
			CallID:         callID,
			TraceID:        traceID,
		})
	}, nil
}

type mockListenSettings struct {
	Script           []string `mapstructure:"script"`
	ScriptIntervalMS int      `mapstructure:"script_interval_ms"`
	EmitCallEnd      bool     `mapstructure:"emit_call_end"`
}

func buildMockListen(cfg Config, traceID string) (func(callID, streamID string) speech.Input, error) {
	var s mockListenSettings
	if err := configutil.DecodeSettings(cfg.Vendors.Listen.Settings, &s); err != nil {
		return nil, err
	}
	return func(callID, streamID string) speech.Input {
		return mock.NewListen(mock.ListenConfig{
			StreamID:       streamID,
			CallID:         callID,
			TraceID:        traceID,
			Script:         s.Script,
			ScriptInterval: time.Duration(s.ScriptIntervalMS) * time.Millisecond,
			EmitCallEnd:    s.EmitCallEnd,
		})
	}, nil
}

type elevenLabsSettings struct {
	APIKey       string `mapstructure:"api_key"`
	VoiceID      string `mapstructure:"voice_id"`
	ModelID      string `mapstructure:"model_id"`
	OutputFormat string `mapstructure:"output_format"`
	SampleRate   int    `mapstructure:"sample_rate"`
}

func buildElevenLabsSpeak(cfg Config) (func(callID, streamID string) speech.Output, error) {
	err := configutil.ValidateSettings(cfg.Vendors.Speak.Settings, configutil.Schema{
		Required: []string{"api_key", "voice_id"},
		Optional: []string{"model_id", "output_format", "sample_rate"},
	})
	if err != nil {
		return nil, fmt.Errorf("vendors.speak.settings: %w", err)
	}
	var s elevenLabsSettings
	if err := configutil.DecodeSettings(cfg.Vendors.Speak.Settings, &s); err != nil {
		return nil, err
	}
	return func(callID, streamID string) speech.Output {
		return elevenlabs.New(elevenlabs.Config{
			APIKey:       s.APIKey,
			VoiceID:      s.VoiceID,
			ModelID:      s.ModelID,
			OutputFormat: s.OutputFormat,
			SampleRate:   s.SampleRate,
			StreamID:     streamID,
			CallID:       callID,
		})
	}, nil
}

type mockSpeakSettings struct {
	SampleRate     int  `mapstructure:"sample_rate"`
	EmitAudioReady bool `mapstructure:"emit_audio_ready"`
}

func buildMockSpeak(cfg Config) (func(callID, streamID string) speech.Output, error) {
	var s mockSpeakSettings
	if err := configutil.DecodeSettings(cfg.Vendors.Speak.Settings, &s); err != nil {
		return nil, err
	}
	return func(callID, streamID string) speech.Output {
		return mock.NewSpeak(mock.SpeakConfig{
			StreamID:       streamID,
			CallID:         callID,
			SampleRate:     s.SampleRate,
			EmitAudioReady: s.EmitAudioReady,
		})
	}, nil
}

type httpOracleSettings struct {
	BaseURL           string `mapstructure:"base_url"`
	UserID            string `mapstructure:"user_id"`
	TimeoutMS         int    `mapstructure:"timeout_ms"`
	MaxRetries        int    `mapstructure:"max_retries"`
	BackoffMS         int    `mapstructure:"backoff_ms"`
	BreakerThreshold  int    `mapstructure:"breaker_threshold"`
	BreakerCooldownMS int    `mapstructure:"breaker_cooldown_ms"`
}

func buildHTTPOracle(cfg Config) (oracle.Oracle, error) {
	err := configutil.ValidateSettings(cfg.Oracle.Settings, configutil.Schema{
		Required: []string{"base_url"},
		Optional: []string{"user_id", "timeout_ms", "max_retries", "backoff_ms", "breaker_threshold", "breaker_cooldown_ms"},
	})
	if err != nil {
		return nil, fmt.Errorf("oracle.settings: %w", err)
	}
	var s httpOracleSettings
	if err := configutil.DecodeSettings(cfg.Oracle.Settings, &s); err != nil {
		return nil, err
	}
	return oracle.NewHTTPClient(oracle.HTTPConfig{
		BaseURL:          s.BaseURL,
		UserID:           s.UserID,
		Timeout:          time.Duration(s.TimeoutMS) * time.Millisecond,
		MaxRetries:       s.MaxRetries,
		Backoff:          time.Duration(s.BackoffMS) * time.Millisecond,
		BreakerThreshold: s.BreakerThreshold,
		BreakerCooldown:  time.Duration(s.BreakerCooldownMS) * time.Millisecond,
	}), nil
}

type mockOracleSettings struct {
	Reply      string  `mapstructure:"reply"`
	FinalScore float64 `mapstructure:"final_score"`
}

func buildMockOracle(cfg Config) (oracle.Oracle, error) {
	var s mockOracleSettings
	if err := configutil.DecodeSettings(cfg.Oracle.Settings, &s); err != nil {
		return nil, err
	}
	mc := mock.OracleConfig{FinalScore: s.FinalScore}
	if s.Reply != "" {
		reply := s.Reply
		mc.Reply = func(oracle.TurnRequest) oracle.TurnResult {
			return oracle.TurnResult{Reply: reply}
		}
	}
	return mock.NewOracle(mc), nil
}
