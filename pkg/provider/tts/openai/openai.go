// Package openai provides a TTS provider backed by the OpenAI audio API
// (POST /v1/audio/speech). It implements the tts.Provider interface.
//
// The OpenAI speech endpoint infers pronunciation from the input text itself;
// the language argument of Synthesize is accepted for interface compatibility
// but not transmitted.
package openai

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/voxlingua/parla/pkg/provider/tts"
)

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)

const (
	defaultModel = "tts-1"
	defaultVoice = "alloy"
)

// Option is a functional option for Provider.
type Option func(*Provider)

// WithModel sets the speech model (e.g., "tts-1", "tts-1-hd").
// Defaults to "tts-1".
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithVoice sets the voice name (e.g., "alloy", "nova", "onyx").
// Defaults to "alloy".
func WithVoice(voice string) Option {
	return func(p *Provider) {
		p.voice = voice
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.timeout = d
	}
}

// Provider implements tts.Provider using the OpenAI audio API.
// It is safe for concurrent use.
type Provider struct {
	client  oai.Client
	model   string
	voice   string
	timeout time.Duration
}

// New constructs a new OpenAI TTS Provider.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}

	p := &Provider{
		model: defaultModel,
		voice: defaultVoice,
	}
	for _, o := range opts {
		o(p)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if p.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: p.timeout,
		}))
	}

	p.client = oai.NewClient(reqOpts...)
	return p, nil
}

// Synthesize implements tts.Provider. It requests WAV output so the response
// carries its own sample-rate metadata.
func (p *Provider) Synthesize(ctx context.Context, text string, _ string) (tts.Clip, error) {
	if text == "" {
		return tts.Clip{}, fmt.Errorf("openai: text must not be empty")
	}

	res, err := p.client.Audio.Speech.New(ctx, oai.AudioSpeechNewParams{
		Model:          oai.SpeechModel(p.model),
		Input:          text,
		Voice:          oai.AudioSpeechNewParamsVoice(p.voice),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatWAV,
	})
	if err != nil {
		return tts.Clip{}, fmt.Errorf("openai: speech request: %w", err)
	}
	defer res.Body.Close()

	wav, err := io.ReadAll(res.Body)
	if err != nil {
		return tts.Clip{}, fmt.Errorf("openai: read WAV response: %w", err)
	}

	clip, err := tts.DecodeWAV(wav)
	if err != nil {
		return tts.Clip{}, fmt.Errorf("openai: %w", err)
	}
	return clip, nil
}
