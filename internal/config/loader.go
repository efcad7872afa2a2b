package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm": {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"tts": {"coqui", "openai"},
	"stt": {"whisper", "whisper-native", "openai"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and
// [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies practice defaults and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.Practice.ApplyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)
	for _, e := range cfg.Providers.LLMFallbacks {
		validateProviderName("llm", e.Name)
	}
	for _, e := range cfg.Providers.TTSFallbacks {
		validateProviderName("tts", e.Name)
	}
	for _, e := range cfg.Providers.STTFallbacks {
		validateProviderName("stt", e.Name)
	}

	// Fallback entries without a name are almost certainly mistakes.
	for i, e := range cfg.Providers.LLMFallbacks {
		if e.Name == "" {
			errs = append(errs, fmt.Errorf("providers.llm_fallbacks[%d].name is required", i))
		}
	}
	for i, e := range cfg.Providers.TTSFallbacks {
		if e.Name == "" {
			errs = append(errs, fmt.Errorf("providers.tts_fallbacks[%d].name is required", i))
		}
	}
	for i, e := range cfg.Providers.STTFallbacks {
		if e.Name == "" {
			errs = append(errs, fmt.Errorf("providers.stt_fallbacks[%d].name is required", i))
		}
	}

	// Provider availability warnings
	if cfg.Providers.LLM.Name == "" {
		slog.Warn("no LLM provider configured; sentence generation will always fall back to placeholders")
	}
	if cfg.Providers.TTS.Name == "" {
		slog.Warn("no TTS provider configured; sentences cannot be spoken aloud")
	}
	if cfg.Providers.STT.Name == "" {
		slog.Warn("no STT provider configured; attempts cannot be recognised")
	}

	// Practice
	p := cfg.Practice
	if p.Threshold <= 0 || p.Threshold >= 1 {
		errs = append(errs, fmt.Errorf("practice.threshold %.2f is out of range (0, 1)", p.Threshold))
	}
	if p.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("practice.batch_size %d must be at least 1", p.BatchSize))
	}
	if p.CaptureTimeout < 0 || p.PhraseLimit < 0 || p.Calibration < 0 || p.SilenceWindow < 0 {
		errs = append(errs, errors.New("practice durations must not be negative"))
	}
	if p.Temperature < 0 || p.Temperature > 2 {
		errs = append(errs, fmt.Errorf("practice.temperature %.2f is out of range [0, 2]", p.Temperature))
	}

	// Scenario duplicate detection
	scenariosSeen := make(map[string]int, len(p.Scenarios))
	for i, sc := range p.Scenarios {
		if sc == "" {
			errs = append(errs, fmt.Errorf("practice.scenarios[%d] is empty", i))
			continue
		}
		if prev, ok := scenariosSeen[sc]; ok {
			errs = append(errs, fmt.Errorf("practice.scenarios[%d] %q is a duplicate of practice.scenarios[%d]", i, sc, prev))
		}
		scenariosSeen[sc] = i
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
