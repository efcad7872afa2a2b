package practice

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/voxlingua/parla/pkg/provider/llm"
)

// sentinelText is the placeholder carried by sentences that could not be
// generated. Callers must check Sentence.Generated, not this text.
const sentinelText = "Error generating sentence"

// DefaultBatchSize is the number of sentences requested per scenario.
const DefaultBatchSize = 4

// Sentence is one practice sentence in the target language. Generated is
// true when the text came from the generation backend and false for
// sentinel placeholders produced on generation failure.
type Sentence struct {
	Text      string
	Generated bool
}

// Batch is an ordered set of sentences for one scenario. Order is
// presentation order.
type Batch []Sentence

// Texts returns the generated sentence texts, skipping sentinels.
func (b Batch) Texts() []string {
	out := make([]string, 0, len(b))
	for _, s := range b {
		if s.Generated {
			out = append(out, s.Text)
		}
	}
	return out
}

// Failed reports whether the batch contains no generated sentences at all.
func (b Batch) Failed() bool {
	for _, s := range b {
		if s.Generated {
			return false
		}
	}
	return true
}

// SourceOption is a functional option for Source.
type SourceOption func(*Source)

// WithLanguageName sets the human-readable target language used in the
// generation prompt (e.g., "German", "Italian"). Defaults to "German".
func WithLanguageName(name string) SourceOption {
	return func(s *Source) { s.languageName = name }
}

// WithTemperature sets the sampling temperature for generation requests.
// Defaults to 0.7.
func WithTemperature(t float64) SourceOption {
	return func(s *Source) { s.temperature = t }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) SourceOption {
	return func(s *Source) { s.log = log }
}

// Source generates practice sentences through an LLM provider. Generation
// is fail-soft: backend failures degrade to sentinel batches instead of
// errors, so a practice session survives a flaky network and "retry" is
// just another Generate call.
type Source struct {
	provider     llm.Provider
	languageName string
	temperature  float64
	log          *slog.Logger
}

// NewSource creates a sentence Source backed by the given provider,
// typically a resilience fallback group.
func NewSource(provider llm.Provider, opts ...SourceOption) *Source {
	s := &Source{
		provider:     provider,
		languageName: "German",
		temperature:  0.7,
		log:          slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Generate requests count distinct beginner sentences for the scenario. The
// returned batch always has exactly count elements: real sentences first in
// backend order, padded with sentinels when the backend produced fewer
// usable lines, and all sentinels when the request failed outright.
func (s *Source) Generate(ctx context.Context, scenario string, count int) Batch {
	if count <= 0 {
		count = DefaultBatchSize
	}

	prompt := fmt.Sprintf(
		"Generate %d different simple %s sentences related to '%s' for beginners. "+
			"Ensure variety in vocabulary and structure.",
		count, s.languageName, scenario,
	)

	resp, err := s.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: fmt.Sprintf("Provide only %s sentences.", s.languageName),
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: prompt},
		},
		Temperature: s.temperature,
	})
	if err != nil {
		s.log.Error("sentence generation failed", "scenario", scenario, "error", err)
		return sentinelBatch(count)
	}

	lines := parseSentences(resp.Content, count)
	if len(lines) < count {
		s.log.Warn("backend returned fewer sentences than requested",
			"scenario", scenario,
			"requested", count,
			"usable", len(lines),
		)
	}

	batch := make(Batch, 0, count)
	for _, line := range lines {
		batch = append(batch, Sentence{Text: line, Generated: true})
	}
	for len(batch) < count {
		batch = append(batch, Sentence{Text: sentinelText})
	}
	return batch
}

// sentinelBatch returns a batch of count sentinel sentences.
func sentinelBatch(count int) Batch {
	batch := make(Batch, count)
	for i := range batch {
		batch[i] = Sentence{Text: sentinelText}
	}
	return batch
}

// parseSentences splits a plain-text completion into at most count usable
// sentences. Blank lines are dropped before truncation and leading list
// markers ("1.", "2)", "-", "*") are stripped, since chat models tend to
// number their output even when asked not to.
func parseSentences(content string, count int) []string {
	var out []string
	for _, line := range strings.Split(content, "\n") {
		line = trimListMarker(strings.TrimSpace(line))
		if line == "" {
			continue
		}
		out = append(out, line)
		if len(out) == count {
			break
		}
	}
	return out
}

func trimListMarker(line string) string {
	if line == "" {
		return line
	}
	switch line[0] {
	case '-', '*':
		return strings.TrimSpace(line[1:])
	}

	i := 0
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	if i > 0 && i < len(line) && (line[i] == '.' || line[i] == ')') {
		return strings.TrimSpace(line[i+1:])
	}
	return line
}
