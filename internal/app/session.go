// Package app wires the practice subsystems into one learner session.
//
// A Session owns the sentence source, the playback and capture services and
// the attempt machine for one learner. main.go builds the providers via the
// config registry (wrapped in resilience fallback groups) and hands them in;
// tests inject mocks through the same struct.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/voxlingua/parla/internal/audiodev"
	"github.com/voxlingua/parla/internal/capture"
	"github.com/voxlingua/parla/internal/config"
	"github.com/voxlingua/parla/internal/observe"
	"github.com/voxlingua/parla/internal/playback"
	"github.com/voxlingua/parla/internal/practice"
	"github.com/voxlingua/parla/pkg/provider/llm"
	"github.com/voxlingua/parla/pkg/provider/stt"
	"github.com/voxlingua/parla/pkg/provider/tts"
)

var tracer = observe.Tracer("github.com/voxlingua/parla/internal/app")

// ErrNoBatch is returned by Speak and Attempt before any scenario has been
// selected.
var ErrNoBatch = errors.New("app: no sentence batch loaded; select a scenario first")

// ErrIndexOutOfRange is returned when a sentence index does not exist in the
// current batch.
var ErrIndexOutOfRange = errors.New("app: sentence index out of range")

// Providers holds one interface value per provider slot. Populated by
// main.go via the config registry, typically wrapped in resilience fallback
// groups.
type Providers struct {
	LLM llm.Provider
	TTS tts.Provider
	STT stt.Provider
}

// AudioDevice is the slice of [audiodev.Device] a Session needs. Tests
// substitute fakes.
type AudioDevice interface {
	audiodev.Player
	audiodev.MicOpener
	Gate() *audiodev.Gate
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*Session)

// WithLogger sets the session logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(s *Session) { s.log = log }
}

// WithMetrics sets the metrics instance. Defaults to observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// Session is one learner's practice session. It holds the current scenario
// and its sentence batch; everything else is stateless between operations.
// Safe for concurrent use.
type Session struct {
	cfg     *config.Config
	log     *slog.Logger
	metrics *observe.Metrics

	source   *practice.Source
	playback *playback.Service
	machine  *practice.Machine

	mu       sync.Mutex
	scenario string
	batch    practice.Batch
	cached   int
}

// New wires a Session from configured providers and the shared audio device.
func New(cfg *config.Config, providers *Providers, device AudioDevice, opts ...Option) (*Session, error) {
	if providers == nil || providers.LLM == nil || providers.TTS == nil || providers.STT == nil {
		return nil, errors.New("app: llm, tts and stt providers are all required")
	}
	if device == nil {
		return nil, errors.New("app: audio device is required")
	}

	s := &Session{
		cfg:     cfg,
		log:     slog.Default(),
		metrics: observe.DefaultMetrics(),
	}
	for _, o := range opts {
		o(s)
	}

	p := cfg.Practice
	s.source = practice.NewSource(providers.LLM,
		practice.WithLanguageName(p.LanguageName),
		practice.WithTemperature(p.Temperature),
		practice.WithLogger(s.log),
	)
	s.playback = playback.NewService(device, device.Gate(), providers.TTS, s.log)

	capturer := capture.NewService(device, device.Gate(), providers.STT, capture.Options{
		Timeout:       p.CaptureTimeout,
		PhraseLimit:   p.PhraseLimit,
		Calibration:   p.Calibration,
		SilenceWindow: p.SilenceWindow,
		Language:      p.Locale,
	}, s.log)
	s.machine = practice.NewMachine(capturer, p.Threshold, s.log)

	return s, nil
}

// Scenarios returns the configured scenario labels.
func (s *Session) Scenarios() []string {
	return s.cfg.Practice.Scenarios
}

// Scenario returns the currently selected scenario, or "" before the first
// SelectScenario call.
func (s *Session) Scenario() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scenario
}

// Batch returns a copy of the current sentence batch.
func (s *Session) Batch() practice.Batch {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(practice.Batch, len(s.batch))
	copy(out, s.batch)
	return out
}

// SelectScenario generates a fresh sentence batch for the scenario and
// replaces the previous one. The old playback cache is dropped and clips for
// the new sentences are pre-synthesised; synthesis problems are logged, not
// returned, since playback retries per sentence anyway.
func (s *Session) SelectScenario(ctx context.Context, scenario string) (practice.Batch, error) {
	if scenario == "" {
		return nil, errors.New("app: scenario must not be empty")
	}
	ctx, span := tracer.Start(ctx, "session.select_scenario")
	defer span.End()

	start := time.Now()
	batch := s.source.Generate(ctx, scenario, s.cfg.Practice.BatchSize)
	s.metrics.GenerationDuration.Record(ctx, time.Since(start).Seconds())

	status := "ok"
	if batch.Failed() {
		status = "failed"
	}
	s.metrics.RecordSentenceBatch(ctx, scenario, status)
	s.log.Info("sentence batch generated",
		"scenario", scenario,
		"sentences", len(batch.Texts()),
		"status", status,
	)

	s.mu.Lock()
	s.scenario = scenario
	s.batch = batch
	s.mu.Unlock()

	s.playback.ClearCache()
	s.mu.Lock()
	dropped := s.cached
	s.cached = 0
	s.mu.Unlock()
	if dropped > 0 {
		s.metrics.CachedClips.Add(ctx, int64(-dropped))
	}

	if texts := batch.Texts(); len(texts) > 0 {
		warmStart := time.Now()
		if err := s.playback.Warm(ctx, texts, s.speechLanguage()); err != nil {
			s.log.Warn("clip pre-synthesis failed; playback will retry on demand", "error", err)
		} else {
			s.metrics.SynthesisDuration.Record(ctx, time.Since(warmStart).Seconds())
			s.metrics.CachedClips.Add(ctx, int64(len(texts)))
			s.mu.Lock()
			s.cached = len(texts)
			s.mu.Unlock()
		}
	}

	return s.Batch(), nil
}

// Speak plays the sentence at index through the speakers, blocking until the
// audio finishes. Returns audiodev.ErrDeviceBusy while a capture or another
// playback holds the device.
func (s *Session) Speak(ctx context.Context, index int) error {
	sentence, err := s.sentenceAt(index)
	if err != nil {
		return err
	}
	if !sentence.Generated {
		return practice.ErrSentinelSentence
	}
	ctx, span := tracer.Start(ctx, "session.speak")
	defer span.End()
	return s.playback.Say(ctx, sentence.Text, s.speechLanguage())
}

// Attempt starts one pronunciation attempt against the sentence at index.
// The returned channel delivers exactly one FeedbackEvent and is then
// closed. A second Attempt while one is live fails with
// practice.ErrAttemptInProgress.
func (s *Session) Attempt(ctx context.Context, index int) (<-chan practice.FeedbackEvent, error) {
	sentence, err := s.sentenceAt(index)
	if err != nil {
		return nil, err
	}

	events, err := s.machine.Start(ctx, sentence)
	if err != nil {
		return nil, err
	}

	s.metrics.ActiveAttempts.Add(ctx, 1)
	start := time.Now()

	out := make(chan practice.FeedbackEvent, 1)
	go func() {
		defer close(out)
		defer s.metrics.ActiveAttempts.Add(context.WithoutCancel(ctx), -1)
		for ev := range events {
			s.metrics.CaptureDuration.Record(ctx, time.Since(start).Seconds())
			s.metrics.RecordAttempt(ctx, ev.Outcome.String())
			out <- ev
		}
	}()
	return out, nil
}

func (s *Session) sentenceAt(index int) (practice.Sentence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.batch) == 0 {
		return practice.Sentence{}, ErrNoBatch
	}
	if index < 0 || index >= len(s.batch) {
		return practice.Sentence{}, fmt.Errorf("%w: %d (batch has %d sentences)", ErrIndexOutOfRange, index, len(s.batch))
	}
	return s.batch[index], nil
}

// speechLanguage reduces the configured locale to the bare language tag the
// speech backends expect ("de-DE" becomes "de").
func (s *Session) speechLanguage() string {
	locale := s.cfg.Practice.Locale
	if i := strings.IndexAny(locale, "-_"); i > 0 {
		return locale[:i]
	}
	return locale
}
