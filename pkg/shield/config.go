package shield

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/callshield/callshield/pkg/catalog"
)

type Config struct {
	Environment   string                    `mapstructure:"environment"`
	LogLevel      string                    `mapstructure:"log_level"`
	LogFormat     string                    `mapstructure:"log_format"`
	Call          CallConfig                `mapstructure:"call"`
	Factors       map[string]FactorOverride `mapstructure:"factors"`
	Vendors       VendorsConfig             `mapstructure:"vendors"`
	Oracle        VendorConfig              `mapstructure:"oracle"`
	Transports    TransportsConfig          `mapstructure:"transports"`
	History       HistoryConfig             `mapstructure:"history"`
	Observability ObservabilityConfig       `mapstructure:"observability"`
	Privacy       PrivacyConfig             `mapstructure:"privacy"`
}

// CallConfig shapes the per-call behavior of the screening engine.
type CallConfig struct {
	MaxDurationS    int    `mapstructure:"max_duration_s"`
	Role            string `mapstructure:"role"`
	OracleTimeoutMS int    `mapstructure:"oracle_timeout_ms"`
}

// MaxDuration returns the configured call ceiling as a duration.
func (c CallConfig) MaxDuration() time.Duration {
	return time.Duration(c.MaxDurationS) * time.Second
}

// OracleTimeout returns the per-request oracle deadline.
func (c CallConfig) OracleTimeout() time.Duration {
	return time.Duration(c.OracleTimeoutMS) * time.Millisecond
}

// FactorOverride tunes one scam factor from configuration. Empty fields keep
// the built-in value.
type FactorOverride struct {
	Keywords []string `mapstructure:"keywords"`
	Weight   float64  `mapstructure:"weight"`
}

type VendorConfig struct {
	Provider string         `mapstructure:"provider"`
	Settings map[string]any `mapstructure:"settings"`
}

type VendorsConfig struct {
	Listen VendorConfig `mapstructure:"listen"`
	Speak  VendorConfig `mapstructure:"speak"`
}

type TransportsConfig struct {
	Provider string         `mapstructure:"provider"`
	Settings map[string]any `mapstructure:"settings"`
}

type HistoryConfig struct {
	Backend       string   `mapstructure:"backend"`
	Path          string   `mapstructure:"path"`
	BlocklistPath string   `mapstructure:"blocklist_path"`
	Blocked       []string `mapstructure:"blocked"`
}

type ObservabilityConfig struct {
	ArtifactsDir  string `mapstructure:"artifacts_dir"`
	MetricsFile   string `mapstructure:"metrics_file"`
	RetentionDays int    `mapstructure:"retention_days"`
}

type PrivacyConfig struct {
	RedactPII bool `mapstructure:"redact_pii"`
}

func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("call.max_duration_s", 300)
	v.SetDefault("call.role", "scammer")
	v.SetDefault("call.oracle_timeout_ms", 5000)
	v.SetDefault("history.backend", "memory")
	v.SetDefault("observability.artifacts_dir", "")
	v.SetDefault("observability.metrics_file", "")
	v.SetDefault("observability.retention_days", 0)
	v.SetDefault("privacy.redact_pii", true)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}

	expandEnvStrings(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Transports.Provider) == "" {
		return fmt.Errorf("transports.provider is required")
	}
	if strings.TrimSpace(c.Vendors.Listen.Provider) == "" {
		return fmt.Errorf("vendors.listen.provider is required")
	}
	if strings.TrimSpace(c.Vendors.Speak.Provider) == "" {
		return fmt.Errorf("vendors.speak.provider is required")
	}
	switch strings.ToLower(strings.TrimSpace(c.Call.Role)) {
	case "", "scammer", "victim":
	default:
		return fmt.Errorf("call.role must be scammer or victim, got %q", c.Call.Role)
	}
	if c.Call.MaxDurationS <= 0 {
		return fmt.Errorf("call.max_duration_s must be positive")
	}
	switch strings.ToLower(strings.TrimSpace(c.History.Backend)) {
	case "", "memory":
	case "file":
		if strings.TrimSpace(c.History.Path) == "" {
			return fmt.Errorf("history.path is required for the file backend")
		}
	default:
		return fmt.Errorf("history.backend must be memory or file, got %q", c.History.Backend)
	}
	for id, ov := range c.Factors {
		if ov.Weight < 0 || ov.Weight > 1 {
			return fmt.Errorf("factors.%s.weight must be in [0,1]", id)
		}
	}
	return nil
}

// Catalog builds the scam-factor catalog with configuration overrides
// applied. Unknown factor ids are ignored.
func (c *Config) Catalog() *catalog.Catalog {
	if len(c.Factors) == 0 {
		return catalog.Default()
	}
	overrides := make(map[catalog.FactorID]catalog.Override, len(c.Factors))
	for id, ov := range c.Factors {
		overrides[catalog.FactorID(id)] = catalog.Override{
			Keywords: ov.Keywords,
			Weight:   ov.Weight,
		}
	}
	return catalog.Default().WithOverrides(overrides)
}

func expandEnvStrings(cfg *Config) {
	expandValue(reflect.ValueOf(cfg))
	cfg.Vendors.Listen.Settings = expandSettings(cfg.Vendors.Listen.Settings)
	cfg.Vendors.Speak.Settings = expandSettings(cfg.Vendors.Speak.Settings)
	cfg.Oracle.Settings = expandSettings(cfg.Oracle.Settings)
	cfg.Transports.Settings = expandSettings(cfg.Transports.Settings)
}

func expandSettings(settings map[string]any) map[string]any {
	if settings == nil {
		return nil
	}
	for k, v := range settings {
		settings[k] = expandAny(v)
	}
	return settings
}

func expandAny(v any) any {
	switch val := v.(type) {
	case string:
		return os.ExpandEnv(val)
	case []any:
		for i := range val {
			val[i] = expandAny(val[i])
		}
		return val
	case map[string]any:
		for k, v := range val {
			val[k] = expandAny(v)
		}
		return val
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, v := range val {
			ks, ok := k.(string)
			if !ok {
				continue
			}
			out[ks] = expandAny(v)
		}
		return out
	default:
		return v
	}
}

func expandValue(v reflect.Value) {
	if !v.IsValid() {
		return
	}
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return
		}
		expandValue(v.Elem())
		return
	}
	switch v.Kind() {
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			expandValue(v.Field(i))
		}
	case reflect.String:
		if v.CanSet() {
			v.SetString(os.ExpandEnv(v.String()))
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			expandValue(v.Index(i))
		}
	case reflect.Map:
		if v.Type().Key().Kind() == reflect.String && v.Type().Elem().Kind() == reflect.String {
			for _, key := range v.MapKeys() {
				val := v.MapIndex(key)
				expanded := os.ExpandEnv(val.String())
				v.SetMapIndex(key, reflect.ValueOf(expanded))
			}
		}
	}
}
