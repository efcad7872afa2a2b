// Package capture records one learner utterance from the microphone and
// turns it into text. A capture is a single-shot operation: calibrate
// against ambient noise, wait for speech to start, record until the speaker
// falls silent or the phrase limit is reached, then transcribe the buffered
// audio in one batch.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/voxlingua/parla/internal/audiodev"
	"github.com/voxlingua/parla/pkg/provider/stt"
)

// Kind classifies the outcome of a capture.
type Kind int

const (
	// Recognized means speech was captured and transcribed.
	Recognized Kind = iota
	// NoSpeech means audio was captured but the recognizer could not make
	// out any words.
	NoSpeech
	// Timeout means no speech started within the onset window.
	Timeout
	// ServiceUnavailable means the recognizer or the microphone failed.
	ServiceUnavailable
	// DeviceBusy means the audio hardware was held by another operation.
	DeviceBusy
	// Canceled means the caller's context was cancelled mid-capture.
	Canceled
)

// String returns a short label for logging.
func (k Kind) String() string {
	switch k {
	case Recognized:
		return "recognized"
	case NoSpeech:
		return "no_speech"
	case Timeout:
		return "timeout"
	case ServiceUnavailable:
		return "service_unavailable"
	case DeviceBusy:
		return "device_busy"
	case Canceled:
		return "canceled"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Result is the outcome of one capture.
type Result struct {
	Kind       Kind
	Transcript string
	// Err carries the underlying failure for ServiceUnavailable, DeviceBusy
	// and Canceled results.
	Err error
}

// Gate is the slice of audiodev.Gate the capture service needs.
type Gate interface {
	TryAcquire() error
	Release()
}

const (
	// onsetFactor scales the measured ambient RMS into the speech-onset
	// threshold.
	onsetFactor = 1.5
	// minThreshold is the floor for the onset threshold so a dead-silent
	// room does not trigger on quantisation noise.
	minThreshold = 0.01
	// minSamples pads very short utterances with silence. Whisper models
	// reject audio shorter than about 100 ms; 200 ms leaves headroom.
	minSamples = audiodev.CaptureSampleRate / 5
)

// Options configures the timing of a capture.
type Options struct {
	// Timeout is the maximum wait for speech to start. Defaults to 10 s.
	Timeout time.Duration
	// PhraseLimit caps the utterance length once speech has started.
	// Defaults to 10 s.
	PhraseLimit time.Duration
	// Calibration is the ambient-noise measurement window. Defaults to 1 s.
	Calibration time.Duration
	// SilenceWindow is the trailing silence that ends the utterance.
	// Defaults to 700 ms.
	SilenceWindow time.Duration
	// Language is the BCP-47 tag passed to the recognizer, e.g. "de-DE".
	Language string
}

func (o *Options) applyDefaults() {
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	if o.PhraseLimit <= 0 {
		o.PhraseLimit = 10 * time.Second
	}
	if o.Calibration <= 0 {
		o.Calibration = time.Second
	}
	if o.SilenceWindow <= 0 {
		o.SilenceWindow = 700 * time.Millisecond
	}
}

// Service captures utterances from a microphone and transcribes them.
type Service struct {
	mic        audiodev.MicOpener
	gate       Gate
	recognizer stt.Provider
	opts       Options
	log        *slog.Logger
}

// NewService creates a capture Service. recognizer is typically a resilience
// fallback group over one or more STT providers.
func NewService(mic audiodev.MicOpener, gate Gate, recognizer stt.Provider, opts Options, log *slog.Logger) *Service {
	opts.applyDefaults()
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		mic:        mic,
		gate:       gate,
		recognizer: recognizer,
		opts:       opts,
		log:        log,
	}
}

// Listen performs one capture and classifies its outcome. It never returns
// an error; failures are reported through Result.Kind and Result.Err.
func (s *Service) Listen(ctx context.Context) Result {
	if err := s.gate.TryAcquire(); err != nil {
		return Result{Kind: DeviceBusy, Err: err}
	}
	defer s.gate.Release()

	mic, err := s.mic.OpenMic()
	if err != nil {
		return Result{Kind: ServiceUnavailable, Err: fmt.Errorf("open microphone: %w", err)}
	}
	defer mic.Close()

	threshold, err := s.calibrate(ctx, mic)
	if err != nil {
		return s.classifyStreamError(err)
	}
	s.log.Debug("ambient calibration complete", "threshold", threshold)

	samples, res := s.record(ctx, mic, threshold)
	if res != nil {
		return *res
	}

	if len(samples) < minSamples {
		samples = append(samples, make([]float32, minSamples-len(samples))...)
	}

	text, err := s.recognizer.Transcribe(ctx, samples, s.opts.Language)
	switch {
	case errors.Is(err, stt.ErrNoSpeech):
		return Result{Kind: NoSpeech}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return Result{Kind: Canceled, Err: err}
	case err != nil:
		return Result{Kind: ServiceUnavailable, Err: fmt.Errorf("transcribe: %w", err)}
	}
	return Result{Kind: Recognized, Transcript: text}
}

// calibrate measures the ambient RMS over the calibration window and derives
// the speech-onset threshold from it.
func (s *Service) calibrate(ctx context.Context, mic audiodev.MicStream) (float32, error) {
	var (
		sum      float64
		chunks   int
		listened time.Duration
	)
	for listened < s.opts.Calibration {
		chunk, err := mic.Read(ctx)
		if err != nil {
			return 0, err
		}
		sum += float64(rms(chunk))
		chunks++
		listened += chunkDuration(chunk)
	}

	ambient := float32(0)
	if chunks > 0 {
		ambient = float32(sum / float64(chunks))
	}
	threshold := ambient * onsetFactor
	if threshold < minThreshold {
		threshold = minThreshold
	}
	return threshold, nil
}

// record waits for speech onset, then buffers audio until the trailing
// silence window elapses or the phrase limit is hit. A non-nil Result means
// the capture ended without usable audio.
func (s *Service) record(ctx context.Context, mic audiodev.MicStream, threshold float32) ([]float32, *Result) {
	onsetDeadline := time.Now().Add(s.opts.Timeout)
	var samples []float32

	// Wait for the learner to start speaking.
	for {
		if time.Now().After(onsetDeadline) {
			return nil, &Result{Kind: Timeout}
		}
		chunk, err := mic.Read(ctx)
		if err != nil {
			res := s.classifyStreamError(err)
			return nil, &res
		}
		if rms(chunk) > threshold {
			samples = append(samples, chunk...)
			break
		}
	}

	var (
		recorded = chunkDuration(samples)
		silence  time.Duration
	)
	for recorded < s.opts.PhraseLimit {
		chunk, err := mic.Read(ctx)
		if err != nil {
			res := s.classifyStreamError(err)
			return nil, &res
		}
		samples = append(samples, chunk...)
		recorded += chunkDuration(chunk)

		if rms(chunk) > threshold {
			silence = 0
		} else {
			silence += chunkDuration(chunk)
			if silence >= s.opts.SilenceWindow {
				break
			}
		}
	}
	return samples, nil
}

func (s *Service) classifyStreamError(err error) Result {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Result{Kind: Canceled, Err: err}
	}
	return Result{Kind: ServiceUnavailable, Err: fmt.Errorf("read microphone: %w", err)}
}

// rms returns the root mean square amplitude of the chunk.
func rms(samples []float32) float32 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, v := range samples {
		sum += float64(v) * float64(v)
	}
	return float32(math.Sqrt(sum / float64(len(samples))))
}

func chunkDuration(samples []float32) time.Duration {
	return time.Duration(len(samples)) * time.Second / audiodev.CaptureSampleRate
}
