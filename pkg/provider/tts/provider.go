// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g., a local Coqui server
// or the OpenAI audio API) and presents a uniform batch interface: one call
// per sentence, returning decoded PCM ready for the playback device. Practice
// sentences are short, so batch synthesis keeps providers simple and lets the
// playback service cache whole utterances.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// Clip is a fully synthesised utterance as raw PCM.
type Clip struct {
	// PCM is 16-bit signed little-endian audio data.
	PCM []byte

	// SampleRate in Hz (e.g., 16000, 22050, 24000).
	SampleRate int

	// Channels: 1 for mono, 2 for stereo.
	Channels int
}

// Duration returns the playing time of the clip in seconds.
func (c Clip) Duration() float64 {
	if c.SampleRate <= 0 || c.Channels <= 0 {
		return 0
	}
	samples := len(c.PCM) / 2 / c.Channels
	return float64(samples) / float64(c.SampleRate)
}

// Provider is the abstraction over any TTS backend.
//
// Implementations must be safe for concurrent use; multiple synthesis
// requests may run in parallel (e.g., warming a whole sentence batch).
type Provider interface {
	// Synthesize converts text to speech in the given BCP-47 language
	// (e.g., "de", "en") and returns the decoded audio clip.
	//
	// Returns an error if the backend cannot be reached, rejects the request,
	// or returns audio that cannot be decoded. Implementations must respect
	// ctx cancellation.
	Synthesize(ctx context.Context, text string, language string) (Clip, error)
}
