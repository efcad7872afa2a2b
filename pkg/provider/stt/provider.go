// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a transcription service (e.g., a whisper.cpp server,
// the native whisper.cpp bindings, or the OpenAI audio API) and exposes a
// uniform batch interface: a complete utterance in, a transcript out. The
// capture service records one bounded phrase at a time, so batch
// transcription is sufficient and keeps every backend interchangeable.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"
)

// ErrNoSpeech is returned by Transcribe when the backend processed the audio
// successfully but recognised no words in it. Callers treat this as an
// expected outcome, not a service failure.
var ErrNoSpeech = errors.New("stt: no speech recognised")

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe converts one utterance to text. samples is mono PCM float32
	// in [-1, 1] at 16 kHz; language is a BCP-47 tag (e.g., "de", "de-DE" —
	// implementations may truncate to the primary subtag).
	//
	// Returns [ErrNoSpeech] when the audio contains no recognisable speech.
	// Any other non-nil error indicates the recognition service itself
	// failed (unreachable, auth, malformed response). Implementations must
	// respect ctx cancellation.
	Transcribe(ctx context.Context, samples []float32, language string) (string, error)
}
