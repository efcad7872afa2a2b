package practice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/voxlingua/parla/internal/capture"
)

// ErrAttemptInProgress is returned by Start while a previous attempt is
// still in Listening or Processing.
var ErrAttemptInProgress = errors.New("practice: an attempt is already in progress")

// ErrSentinelSentence is returned by Start when the target is a
// failed-generation placeholder rather than a real sentence.
var ErrSentinelSentence = errors.New("practice: target sentence was not generated")

// State is the phase of the attempt machine.
type State int32

const (
	StateIdle State = iota
	StateListening
	StateProcessing
	StateDone
)

// String returns a short label for logging.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateProcessing:
		return "processing"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Outcome is the terminal classification of one attempt.
type Outcome int

const (
	// OutcomePass means the transcript cleared the similarity threshold.
	OutcomePass Outcome = iota
	// OutcomeFail means the transcript was recognised but too dissimilar.
	OutcomeFail
	// OutcomeCouldNotUnderstand means audio was captured but no words were
	// recognised in it.
	OutcomeCouldNotUnderstand
	// OutcomeServiceError means the recognition backend or microphone
	// failed.
	OutcomeServiceError
	// OutcomeTimedOut means the learner did not start speaking in time.
	OutcomeTimedOut
	// OutcomeDeviceBusy means the audio hardware was held by playback.
	OutcomeDeviceBusy
	// OutcomeCanceled means the caller abandoned the attempt mid-capture.
	OutcomeCanceled
)

// String returns a short label for logging and metrics.
func (o Outcome) String() string {
	switch o {
	case OutcomePass:
		return "pass"
	case OutcomeFail:
		return "fail"
	case OutcomeCouldNotUnderstand:
		return "could_not_understand"
	case OutcomeServiceError:
		return "service_error"
	case OutcomeTimedOut:
		return "timed_out"
	case OutcomeDeviceBusy:
		return "device_busy"
	case OutcomeCanceled:
		return "canceled"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// FeedbackEvent is the sole output of an attempt. It is delivered exactly
// once and the machine keeps no record of it afterwards.
type FeedbackEvent struct {
	// Target is the sentence the learner was asked to pronounce.
	Target string
	// Outcome classifies how the attempt ended.
	Outcome Outcome
	// Message is learner-facing feedback text specific to the outcome.
	Message string
	// Transcript is what the recognizer heard. Empty unless the outcome is
	// Pass or Fail.
	Transcript string
	// Score is the similarity ratio in [0, 1]. Only meaningful for Pass and
	// Fail outcomes.
	Score float64
}

// Capturer records one utterance and classifies the result. Implemented by
// capture.Service.
type Capturer interface {
	Listen(ctx context.Context) capture.Result
}

// Machine drives one learner attempt at a time through capture and scoring.
// Attempts are independent: no retry counts, no backoff, no state carried
// from one attempt to the next. A Machine is safe for concurrent use; a
// Start while another attempt is live is rejected, not queued.
type Machine struct {
	capturer  Capturer
	threshold float64
	log       *slog.Logger

	state atomic.Int32
}

// NewMachine creates an attempt Machine. threshold is the pass threshold
// for the similarity score; values outside (0, 1) fall back to
// DefaultPassThreshold.
func NewMachine(capturer Capturer, threshold float64, log *slog.Logger) *Machine {
	if threshold <= 0 || threshold >= 1 {
		threshold = DefaultPassThreshold
	}
	if log == nil {
		log = slog.Default()
	}
	return &Machine{
		capturer:  capturer,
		threshold: threshold,
		log:       log,
	}
}

// State returns the current phase of the machine.
func (m *Machine) State() State {
	return State(m.state.Load())
}

// Start begins one attempt against target. It returns a channel that
// delivers exactly one FeedbackEvent and is then closed. Start fails with
// ErrAttemptInProgress while a previous attempt is live, and with
// ErrSentinelSentence when target is a generation placeholder.
func (m *Machine) Start(ctx context.Context, target Sentence) (<-chan FeedbackEvent, error) {
	if !target.Generated {
		return nil, ErrSentinelSentence
	}
	if !m.state.CompareAndSwap(int32(StateIdle), int32(StateListening)) {
		return nil, ErrAttemptInProgress
	}

	events := make(chan FeedbackEvent, 1)
	go m.run(ctx, target.Text, events)
	return events, nil
}

func (m *Machine) run(ctx context.Context, target string, events chan<- FeedbackEvent) {
	res := m.capturer.Listen(ctx)

	var ev FeedbackEvent
	ev.Target = target

	switch res.Kind {
	case capture.Recognized:
		m.state.Store(int32(StateProcessing))
		ev = m.judge(target, res.Transcript)

	case capture.NoSpeech:
		ev.Outcome = OutcomeCouldNotUnderstand
		ev.Message = "Could not understand speech. Try again."

	case capture.Timeout:
		ev.Outcome = OutcomeTimedOut
		ev.Message = "Recording timed out. Speak within the limit."

	case capture.DeviceBusy:
		ev.Outcome = OutcomeDeviceBusy
		ev.Message = "The audio device is busy. Wait for playback to finish."

	case capture.Canceled:
		ev.Outcome = OutcomeCanceled
		ev.Message = "Attempt canceled."

	default:
		ev.Outcome = OutcomeServiceError
		ev.Message = "Speech service error. Check your internet."
		if res.Err != nil {
			m.log.Error("capture failed", "error", res.Err)
		}
	}

	m.state.Store(int32(StateDone))
	m.log.Info("attempt finished",
		"outcome", ev.Outcome,
		"score", ev.Score,
	)

	events <- ev
	close(events)
	m.state.Store(int32(StateIdle))
}

// judge scores a recognised transcript against the target and builds the
// pass or fail feedback.
func (m *Machine) judge(target, transcript string) FeedbackEvent {
	score := Score(transcript, target)
	ev := FeedbackEvent{
		Target:     target,
		Transcript: transcript,
		Score:      score,
	}
	if Passes(score, m.threshold) {
		ev.Outcome = OutcomePass
		ev.Message = fmt.Sprintf("Good pronunciation!\nYou said: %s", transcript)
		return ev
	}

	ev.Outcome = OutcomeFail
	ev.Message = fmt.Sprintf("Try again!\nExpected: %s\nYou said: %s", target, transcript)
	if NearMiss(transcript, target) {
		ev.Message += "\nThat was close."
	}
	return ev
}
