package shield

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/callshield/callshield/pkg/catalog"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, `
transports:
  provider: mock
vendors:
  listen:
    provider: mock
  speak:
    provider: mock
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Call.MaxDurationS != 300 {
		t.Fatalf("expected default max duration 300, got %d", cfg.Call.MaxDurationS)
	}
	if cfg.Call.Role != "scammer" {
		t.Fatalf("expected default role scammer, got %q", cfg.Call.Role)
	}
	if cfg.History.Backend != "memory" {
		t.Fatalf("expected default history backend memory, got %q", cfg.History.Backend)
	}
	if !cfg.Privacy.RedactPII {
		t.Fatalf("expected redact_pii default true")
	}
}

func TestLoadConfigExpandsEnv(t *testing.T) {
	t.Setenv("TEST_DG_KEY", "secret-key")
	path := writeConfig(t, `
transports:
  provider: mock
vendors:
  listen:
    provider: deepgram
    settings:
      api_key: ${TEST_DG_KEY}
  speak:
    provider: mock
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if got := cfg.Vendors.Listen.Settings["api_key"]; got != "secret-key" {
		t.Fatalf("expected env expansion, got %v", got)
	}
}

func TestLoadConfigRequiresProviders(t *testing.T) {
	path := writeConfig(t, `
transports:
  provider: mock
vendors:
  speak:
    provider: mock
`)
	if _, err := LoadConfig(path); err == nil {
		t.Fatalf("expected error for missing listen provider")
	}
}

func TestLoadConfigRejectsBadRole(t *testing.T) {
	path := writeConfig(t, `
transports:
  provider: mock
call:
  role: operator
vendors:
  listen:
    provider: mock
  speak:
    provider: mock
`)
	if _, err := LoadConfig(path); err == nil {
		t.Fatalf("expected error for invalid role")
	}
}

func TestLoadConfigFileBackendRequiresPath(t *testing.T) {
	path := writeConfig(t, `
transports:
  provider: mock
history:
  backend: file
vendors:
  listen:
    provider: mock
  speak:
    provider: mock
`)
	if _, err := LoadConfig(path); err == nil {
		t.Fatalf("expected error for file backend without path")
	}
}

func TestConfigCatalogOverrides(t *testing.T) {
	cfg := Config{
		Factors: map[string]FactorOverride{
			"transfer_request": {Weight: 0.5, Keywords: []string{"이체해"}},
		},
	}
	c := cfg.Catalog()
	f, ok := c.Lookup(catalog.TransferRequest)
	if !ok {
		t.Fatalf("transfer_request missing from catalog")
	}
	if f.Weight != 0.5 {
		t.Fatalf("expected overridden weight 0.5, got %v", f.Weight)
	}
	if len(f.Keywords) != 1 || f.Keywords[0] != "이체해" {
		t.Fatalf("expected overridden keywords, got %v", f.Keywords)
	}
}

func TestBuildDeepgramRequiresAPIKey(t *testing.T) {
	cfg := Config{
		Vendors: VendorsConfig{
			Listen: VendorConfig{
				Provider: "deepgram",
				Settings: map[string]any{"model": "nova-2"},
			},
		},
	}
	if _, err := DefaultRegistry().BuildListenFactory("deepgram", cfg, ""); err == nil {
		t.Fatalf("expected error for missing api_key")
	}
}

func TestBuildDeepgramRejectsUnknownSetting(t *testing.T) {
	cfg := Config{
		Vendors: VendorsConfig{
			Listen: VendorConfig{
				Provider: "deepgram",
				Settings: map[string]any{"api_key": "k", "modle": "typo"},
			},
		},
	}
	if _, err := DefaultRegistry().BuildListenFactory("deepgram", cfg, ""); err == nil {
		t.Fatalf("expected error for unknown setting key")
	}
}

func TestProviderRegistryUnknownProvider(t *testing.T) {
	r := DefaultRegistry()
	if _, err := r.BuildListenFactory("nope", Config{}, ""); err == nil {
		t.Fatalf("expected error for unknown listen provider")
	}
	if _, err := r.BuildSpeakFactory("nope", Config{}); err == nil {
		t.Fatalf("expected error for unknown speak provider")
	}
	if orc, err := r.BuildOracle("", Config{}); err != nil || orc != nil {
		t.Fatalf("expected nil oracle for empty provider, got %v, %v", orc, err)
	}
}
