package config_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/voxlingua/parla/internal/config"
)

func TestLoadFromReader_Defaults(t *testing.T) {
	t.Parallel()
	yaml := `
providers:
  llm:
    name: openai
    api_key: sk-test
  tts:
    name: coqui
    base_url: http://localhost:5002
  stt:
    name: whisper
    base_url: http://localhost:8178
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	p := cfg.Practice
	if p.Threshold != 0.8 {
		t.Errorf("threshold = %v, want 0.8", p.Threshold)
	}
	if p.BatchSize != 4 {
		t.Errorf("batch_size = %d, want 4", p.BatchSize)
	}
	if p.CaptureTimeout != 10*time.Second {
		t.Errorf("capture_timeout = %v, want 10s", p.CaptureTimeout)
	}
	if p.PhraseLimit != 10*time.Second {
		t.Errorf("phrase_limit = %v, want 10s", p.PhraseLimit)
	}
	if p.Calibration != time.Second {
		t.Errorf("calibration = %v, want 1s", p.Calibration)
	}
	if p.SilenceWindow != 700*time.Millisecond {
		t.Errorf("silence_window = %v, want 700ms", p.SilenceWindow)
	}
	if p.LanguageName != "German" || p.Locale != "de-DE" {
		t.Errorf("language = %q/%q, want German/de-DE", p.LanguageName, p.Locale)
	}
	if p.Temperature != 0.7 {
		t.Errorf("temperature = %v, want 0.7", p.Temperature)
	}
	if len(p.Scenarios) != 3 || p.Scenarios[0] != "Hospital" {
		t.Errorf("scenarios = %v, want default Hospital/Restaurant/Airport", p.Scenarios)
	}
}

func TestLoadFromReader_Overrides(t *testing.T) {
	t.Parallel()
	yaml := `
providers:
  llm:
    name: ollama
    base_url: http://localhost:11434
    model: llama3
practice:
  threshold: 0.7
  batch_size: 6
  capture_timeout: 15s
  language_name: Italian
  locale: it-IT
  scenarios: [Market, Train Station]
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	p := cfg.Practice
	if p.Threshold != 0.7 || p.BatchSize != 6 || p.CaptureTimeout != 15*time.Second {
		t.Errorf("overrides not applied: %+v", p)
	}
	if p.LanguageName != "Italian" || p.Locale != "it-IT" {
		t.Errorf("language overrides not applied: %q/%q", p.LanguageName, p.Locale)
	}
	if len(p.Scenarios) != 2 {
		t.Errorf("scenarios = %v, want 2 entries", p.Scenarios)
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	t.Parallel()
	yaml := `
practise:
  threshold: 0.7
`
	if _, err := config.LoadFromReader(strings.NewReader(yaml)); err == nil {
		t.Fatal("expected error for unknown top-level field, got nil")
	}
}

func TestValidate_ThresholdRange(t *testing.T) {
	t.Parallel()
	yaml := `
practice:
  threshold: 1.5
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for threshold out of range, got nil")
	}
	if !strings.Contains(err.Error(), "threshold") {
		t.Errorf("error should mention threshold, got: %v", err)
	}
}

func TestValidate_DuplicateScenarios(t *testing.T) {
	t.Parallel()
	yaml := `
practice:
  scenarios: [Hospital, Hospital]
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for duplicate scenarios, got nil")
	}
	if !strings.Contains(err.Error(), "duplicate") {
		t.Errorf("error should mention duplicate, got: %v", err)
	}
}

func TestValidate_FallbackNameRequired(t *testing.T) {
	t.Parallel()
	yaml := `
providers:
  llm:
    name: openai
  llm_fallbacks:
    - model: llama3
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for fallback entry without name, got nil")
	}
	if !strings.Contains(err.Error(), "llm_fallbacks[0].name") {
		t.Errorf("error should name the offending entry, got: %v", err)
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: loud
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid log level, got nil")
	}
	if !strings.Contains(err.Error(), "log_level") {
		t.Errorf("error should mention log_level, got: %v", err)
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: loud
practice:
  threshold: 2.0
  scenarios: ["", Hospital]
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected joined validation errors, got nil")
	}
	for _, frag := range []string{"log_level", "threshold", "scenarios[0]"} {
		if !strings.Contains(err.Error(), frag) {
			t.Errorf("joined error missing %q: %v", frag, err)
		}
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := config.Load("/does/not/exist.yaml")
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
	if !strings.Contains(err.Error(), "open") {
		t.Errorf("error should mention open, got: %v", err)
	}
}

func TestRegistry_CreateUnregistered(t *testing.T) {
	t.Parallel()
	r := config.NewRegistry()
	if _, err := r.CreateLLM(config.ProviderEntry{Name: "nope"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Fatalf("CreateLLM = %v, want ErrProviderNotRegistered", err)
	}
	if _, err := r.CreateTTS(config.ProviderEntry{Name: "nope"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Fatalf("CreateTTS = %v, want ErrProviderNotRegistered", err)
	}
	if _, err := r.CreateSTT(config.ProviderEntry{Name: "nope"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Fatalf("CreateSTT = %v, want ErrProviderNotRegistered", err)
	}
}
