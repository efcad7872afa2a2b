// Package config provides the configuration schema, loader, and provider
// registry for the Parla practice engine.
package config

import "time"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for Parla.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Practice  PracticeConfig  `yaml:"practice"`
}

// ServerConfig holds the observability endpoint and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address for the health and metrics endpoints
	// (e.g., ":8080"). When empty no HTTP server is started; the practice
	// CLI works without one.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// ProvidersConfig declares which provider implementation to use for each
// pipeline stage. Each entry selects a named provider registered in the
// [Registry]; the fallback lists configure automatic failover order.
type ProvidersConfig struct {
	LLM          ProviderEntry   `yaml:"llm"`
	LLMFallbacks []ProviderEntry `yaml:"llm_fallbacks"`

	TTS          ProviderEntry   `yaml:"tts"`
	TTSFallbacks []ProviderEntry `yaml:"tts_fallbacks"`

	STT          ProviderEntry   `yaml:"stt"`
	STTFallbacks []ProviderEntry `yaml:"stt_fallbacks"`
}

// ProviderEntry is the common configuration block shared by all provider
// types. The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "openai",
	// "coqui", "whisper").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g.,
	// "gpt-4o-mini", "tts-1", "whisper-1").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by
	// the standard fields above.
	Options map[string]any `yaml:"options"`
}

// PracticeConfig holds the tunables of the practice cycle. Zero values fall
// back to the defaults set by [PracticeConfig.ApplyDefaults].
type PracticeConfig struct {
	// Threshold is the similarity score an attempt must exceed to pass.
	// Default 0.8.
	Threshold float64 `yaml:"threshold"`

	// BatchSize is the number of sentences generated per scenario.
	// Default 4.
	BatchSize int `yaml:"batch_size"`

	// CaptureTimeout is the maximum wait for speech to start. Default 10s.
	CaptureTimeout time.Duration `yaml:"capture_timeout"`

	// PhraseLimit caps the length of one spoken attempt. Default 10s.
	PhraseLimit time.Duration `yaml:"phrase_limit"`

	// Calibration is the ambient-noise measurement window. Default 1s.
	Calibration time.Duration `yaml:"calibration"`

	// SilenceWindow is the trailing silence that ends an utterance.
	// Default 700ms.
	SilenceWindow time.Duration `yaml:"silence_window"`

	// LanguageName is the human-readable target language injected into
	// generation prompts (e.g., "German"). Default "German".
	LanguageName string `yaml:"language_name"`

	// Locale is the BCP-47 tag passed to speech backends (e.g., "de-DE").
	// Default "de-DE".
	Locale string `yaml:"locale"`

	// Temperature is the LLM sampling temperature for sentence generation.
	// Default 0.7.
	Temperature float64 `yaml:"temperature"`

	// Scenarios lists the topical contexts offered to the learner.
	// Default: Hospital, Restaurant, Airport.
	Scenarios []string `yaml:"scenarios"`
}

// ApplyDefaults fills unset practice fields with their defaults.
func (p *PracticeConfig) ApplyDefaults() {
	if p.Threshold == 0 {
		p.Threshold = 0.8
	}
	if p.BatchSize == 0 {
		p.BatchSize = 4
	}
	if p.CaptureTimeout == 0 {
		p.CaptureTimeout = 10 * time.Second
	}
	if p.PhraseLimit == 0 {
		p.PhraseLimit = 10 * time.Second
	}
	if p.Calibration == 0 {
		p.Calibration = time.Second
	}
	if p.SilenceWindow == 0 {
		p.SilenceWindow = 700 * time.Millisecond
	}
	if p.LanguageName == "" {
		p.LanguageName = "German"
	}
	if p.Locale == "" {
		p.Locale = "de-DE"
	}
	if p.Temperature == 0 {
		p.Temperature = 0.7
	}
	if len(p.Scenarios) == 0 {
		p.Scenarios = []string{"Hospital", "Restaurant", "Airport"}
	}
}
