package shield

import (
	"fmt"
	"strings"

	"github.com/callshield/callshield/pkg/oracle"
	"github.com/callshield/callshield/pkg/speech"
)

// ListenFactoryBuilder validates vendor settings once and returns a per-call
// factory for speech inputs.
type ListenFactoryBuilder func(cfg Config, traceID string) (func(callID, streamID string) speech.Input, error)

// SpeakFactoryBuilder validates vendor settings once and returns a per-call
// factory for speech outputs.
type SpeakFactoryBuilder func(cfg Config) (func(callID, streamID string) speech.Output, error)

// OracleFactory builds the shared analysis-backend client.
type OracleFactory func(cfg Config) (oracle.Oracle, error)

type ProviderRegistry struct {
	listen map[string]ListenFactoryBuilder
	speak  map[string]SpeakFactoryBuilder
	oracle map[string]OracleFactory
}

func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{
		listen: make(map[string]ListenFactoryBuilder),
		speak:  make(map[string]SpeakFactoryBuilder),
		oracle: make(map[string]OracleFactory),
	}
}

func (r *ProviderRegistry) RegisterListen(name string, factory ListenFactoryBuilder) {
	r.listen[strings.ToLower(strings.TrimSpace(name))] = factory
}

func (r *ProviderRegistry) RegisterSpeak(name string, factory SpeakFactoryBuilder) {
	r.speak[strings.ToLower(strings.TrimSpace(name))] = factory
}

func (r *ProviderRegistry) RegisterOracle(name string, factory OracleFactory) {
	r.oracle[strings.ToLower(strings.TrimSpace(name))] = factory
}

func (r *ProviderRegistry) BuildListenFactory(provider string, cfg Config, traceID string) (func(callID, streamID string) speech.Input, error) {
	fn := r.listen[strings.ToLower(strings.TrimSpace(provider))]
	if fn == nil {
		return nil, fmt.Errorf("listen provider not registered: %s", provider)
	}
	return fn(cfg, traceID)
}

func (r *ProviderRegistry) BuildSpeakFactory(provider string, cfg Config) (func(callID, streamID string) speech.Output, error) {
	fn := r.speak[strings.ToLower(strings.TrimSpace(provider))]
	if fn == nil {
		return nil, fmt.Errorf("speak provider not registered: %s", provider)
	}
	return fn(cfg)
}

// BuildOracle constructs the analysis backend. An empty provider name means
// the engine runs on local scoring alone.
func (r *ProviderRegistry) BuildOracle(provider string, cfg Config) (oracle.Oracle, error) {
	if strings.TrimSpace(provider) == "" {
		return nil, nil
	}
	fn := r.oracle[strings.ToLower(strings.TrimSpace(provider))]
	if fn == nil {
		return nil, fmt.Errorf("oracle provider not registered: %s", provider)
	}
	return fn(cfg)
}
