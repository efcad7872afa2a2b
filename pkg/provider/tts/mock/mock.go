// Package mock provides a test double for the tts.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/voxlingua/parla/pkg/provider/tts"
)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	// Text is the text passed to Synthesize.
	Text string
	// Language is the language code passed to Synthesize.
	Language string
}

// Provider is a mock implementation of tts.Provider.
// Zero values cause Synthesize to return an empty clip and nil error.
type Provider struct {
	mu sync.Mutex

	// Clip is returned by Synthesize when Err is nil.
	Clip tts.Clip

	// Err, if non-nil, is returned as the error from Synthesize.
	Err error

	// SynthesizeFunc, if non-nil, overrides the canned response entirely.
	SynthesizeFunc func(ctx context.Context, text, language string) (tts.Clip, error)

	// SynthesizeCalls records every invocation in order.
	SynthesizeCalls []SynthesizeCall
}

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, text, language string) (tts.Clip, error) {
	p.mu.Lock()
	p.SynthesizeCalls = append(p.SynthesizeCalls, SynthesizeCall{Text: text, Language: language})
	fn := p.SynthesizeFunc
	clip := p.Clip
	err := p.Err
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, text, language)
	}
	if err != nil {
		return tts.Clip{}, err
	}
	return clip, nil
}

// Calls returns a snapshot of all recorded Synthesize invocations.
func (p *Provider) Calls() []SynthesizeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]SynthesizeCall, len(p.SynthesizeCalls))
	copy(out, p.SynthesizeCalls)
	return out
}
