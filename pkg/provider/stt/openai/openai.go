// Package openai provides an STT provider backed by the OpenAI audio API
// (POST /v1/audio/transcriptions with the whisper-1 model). It implements
// the stt.Provider interface.
package openai

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/voxlingua/parla/pkg/provider/stt"
)

// Compile-time interface assertion.
var _ stt.Provider = (*Provider)(nil)

const defaultModel = oai.AudioModelWhisper1

// Option is a functional option for Provider.
type Option func(*Provider)

// WithModel sets the transcription model. Defaults to "whisper-1".
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.timeout = d
	}
}

// Provider implements stt.Provider using the OpenAI transcription API.
// It is safe for concurrent use.
type Provider struct {
	client  oai.Client
	model   string
	timeout time.Duration
}

// New constructs a new OpenAI STT Provider.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}

	p := &Provider{
		model: defaultModel,
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

// Transcribe implements stt.Provider. It encodes samples as a WAV file and
// uploads it to the transcription endpoint.
func (p *Provider) Transcribe(ctx context.Context, samples []float32, language string) (string, error) {
	wav := stt.EncodeWAV(samples)

	params := oai.AudioTranscriptionNewParams{
		File:  oai.File(bytes.NewReader(wav), "attempt.wav", "audio/wav"),
		Model: oai.AudioModel(p.model),
	}
	if lang := stt.PrimaryLanguage(language); lang != "" {
		params.Language = param.NewOpt(lang)
	}

	res, err := p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai: transcription request: %w", err)
	}

	text := strings.TrimSpace(res.Text)
	if text == "" {
		return "", stt.ErrNoSpeech
	}
	return text, nil
}
