// Package playback speaks target sentences through the default audio output.
// Synthesised clips are cached in memory so a sentence can be replayed
// without a second round-trip to the TTS backend; the cache is dropped
// whenever a new sentence batch replaces the old one.
package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/voxlingua/parla/internal/audiodev"
	"github.com/voxlingua/parla/pkg/provider/tts"
)

// ErrSynthesisFailed marks failures in the text-to-speech request. The
// audio hardware was never touched.
var ErrSynthesisFailed = errors.New("playback: synthesis failed")

// ErrPlaybackFailed marks failures while writing audio to the output device.
var ErrPlaybackFailed = errors.New("playback: output failed")

// Gate is the slice of audiodev.Gate the playback service needs.
type Gate interface {
	TryAcquire() error
	Release()
}

// warmConcurrency caps parallel TTS requests during cache warm-up.
const warmConcurrency = 2

// Service synthesises and plays sentences.
type Service struct {
	player audiodev.Player
	gate   Gate
	voice  tts.Provider
	log    *slog.Logger

	mu    sync.Mutex
	cache map[string]tts.Clip
}

// NewService creates a playback Service. voice is typically a resilience
// fallback group over one or more TTS providers.
func NewService(player audiodev.Player, gate Gate, voice tts.Provider, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		player: player,
		gate:   gate,
		voice:  voice,
		log:    log,
		cache:  make(map[string]tts.Clip),
	}
}

// Say synthesises text (or reuses a cached clip) and plays it to completion.
// It returns audiodev.ErrDeviceBusy when the hardware is held by another
// operation, and errors wrapping ErrSynthesisFailed or ErrPlaybackFailed
// otherwise.
func (s *Service) Say(ctx context.Context, text, language string) error {
	clip, err := s.clipFor(ctx, text, language)
	if err != nil {
		return err
	}

	if err := s.gate.TryAcquire(); err != nil {
		return err
	}
	defer s.gate.Release()

	s.log.Debug("playing clip",
		"chars", len(text),
		"duration", clip.Duration(),
	)
	if err := s.player.Play(ctx, clip.PCM, clip.SampleRate, clip.Channels); err != nil {
		return fmt.Errorf("%w: %w", ErrPlaybackFailed, err)
	}
	return nil
}

// Warm pre-synthesises clips for the given texts so later Say calls start
// instantly. Requests run concurrently; the first failure cancels the rest
// and is returned wrapped in ErrSynthesisFailed.
func (s *Service) Warm(ctx context.Context, texts []string, language string) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(warmConcurrency)

	for _, text := range texts {
		if text == "" || s.cached(text, language) {
			continue
		}
		g.Go(func() error {
			clip, err := s.voice.Synthesize(ctx, text, language)
			if err != nil {
				return fmt.Errorf("%w: %w", ErrSynthesisFailed, err)
			}
			s.store(text, language, clip)
			return nil
		})
	}
	return g.Wait()
}

// ClearCache drops all cached clips, releasing their audio buffers.
func (s *Service) ClearCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[string]tts.Clip)
}

func (s *Service) clipFor(ctx context.Context, text, language string) (tts.Clip, error) {
	key := cacheKey(text, language)
	s.mu.Lock()
	clip, ok := s.cache[key]
	s.mu.Unlock()
	if ok {
		return clip, nil
	}

	clip, err := s.voice.Synthesize(ctx, text, language)
	if err != nil {
		return tts.Clip{}, fmt.Errorf("%w: %w", ErrSynthesisFailed, err)
	}
	s.store(text, language, clip)
	return clip, nil
}

func (s *Service) cached(text, language string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.cache[cacheKey(text, language)]
	return ok
}

func (s *Service) store(text, language string, clip tts.Clip) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[cacheKey(text, language)] = clip
}

func cacheKey(text, language string) string {
	return language + "\x00" + text
}
