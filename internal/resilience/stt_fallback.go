package resilience

import (
	"context"
	"errors"

	"github.com/voxlingua/parla/pkg/provider/stt"
)

// STTFallback implements [stt.Provider] with automatic failover across multiple
// STT backends. Each backend has its own circuit breaker.
//
// [stt.ErrNoSpeech] is an expected recognition outcome, not a backend failure:
// it does not count against the circuit breaker and does not trigger failover
// to the next provider.
type STTFallback struct {
	group *FallbackGroup[stt.Provider]
}

// Compile-time interface assertion.
var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback creates an [STTFallback] with primary as the preferred backend.
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig) *STTFallback {
	return &STTFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional STT provider as a fallback.
func (f *STTFallback) AddFallback(name string, provider stt.Provider) {
	f.group.AddFallback(name, provider)
}

// Transcribe runs recognition against the first healthy provider. If the
// primary fails, subsequent fallbacks are tried.
func (f *STTFallback) Transcribe(ctx context.Context, samples []float32, language string) (string, error) {
	type outcome struct {
		text     string
		noSpeech bool
	}
	res, err := ExecuteWithResult(f.group, func(p stt.Provider) (outcome, error) {
		text, err := p.Transcribe(ctx, samples, language)
		if errors.Is(err, stt.ErrNoSpeech) {
			return outcome{noSpeech: true}, nil
		}
		if err != nil {
			return outcome{}, err
		}
		return outcome{text: text}, nil
	})
	if err != nil {
		return "", err
	}
	if res.noSpeech {
		return "", stt.ErrNoSpeech
	}
	return res.text, nil
}
