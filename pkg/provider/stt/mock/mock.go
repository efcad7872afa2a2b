// Package mock provides a test double for the stt.Provider interface.
//
// Use Provider to feed controlled transcripts to code under test and inspect
// which samples and languages were delivered.
//
//	p := &mock.Provider{Transcript: "hallo welt"}
//	text, err := p.Transcribe(ctx, samples, "de")
package mock

import (
	"context"
	"sync"

	"github.com/voxlingua/parla/pkg/provider/stt"
)

// Compile-time interface assertion.
var _ stt.Provider = (*Provider)(nil)

// TranscribeCall records a single invocation of Provider.Transcribe.
type TranscribeCall struct {
	// Ctx is the context passed to Transcribe.
	Ctx context.Context
	// Samples is the audio passed to Transcribe.
	Samples []float32
	// Language is the language tag passed to Transcribe.
	Language string
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Transcript is the text returned by Transcribe when TranscribeFunc is nil.
	Transcript string

	// TranscribeErr, if non-nil, is returned as the error from Transcribe.
	TranscribeErr error

	// TranscribeFunc, if non-nil, overrides the default behaviour entirely.
	TranscribeFunc func(ctx context.Context, samples []float32, language string) (string, error)

	// TranscribeCalls records every call to Transcribe.
	TranscribeCalls []TranscribeCall
}

// Transcribe records the call and returns Transcript, TranscribeErr (or
// delegates to TranscribeFunc when set).
func (p *Provider) Transcribe(ctx context.Context, samples []float32, language string) (string, error) {
	p.mu.Lock()
	p.TranscribeCalls = append(p.TranscribeCalls, TranscribeCall{Ctx: ctx, Samples: samples, Language: language})
	fn := p.TranscribeFunc
	text, err := p.Transcript, p.TranscribeErr
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, samples, language)
	}
	if err != nil {
		return "", err
	}
	return text, nil
}

// Calls returns a snapshot of all recorded Transcribe calls.
func (p *Provider) Calls() []TranscribeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]TranscribeCall, len(p.TranscribeCalls))
	copy(out, p.TranscribeCalls)
	return out
}
