// Package audiodev owns the process-wide PortAudio handle and serializes
// access to the speaker and microphone. PortAudio must be initialised and
// terminated exactly once per process, so a single Device is created at
// startup and shared by the playback and capture services.
package audiodev

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
)

const (
	// CaptureSampleRate is the microphone sample rate in Hz. Whisper models
	// expect 16 kHz mono input.
	CaptureSampleRate = 16000
	// framesPerBuffer is the PortAudio buffer size in frames.
	framesPerBuffer = 1024
)

// Player plays raw PCM audio through the default output device, blocking
// until the clip finishes or the context is cancelled.
type Player interface {
	Play(ctx context.Context, pcm []byte, sampleRate, channels int) error
}

// MicOpener opens a stream of microphone sample chunks.
type MicOpener interface {
	OpenMic() (MicStream, error)
}

// MicStream delivers successive chunks of mono float32 samples in [-1, 1]
// at CaptureSampleRate. Read blocks until a chunk is available or the
// context is cancelled. Close releases the underlying hardware stream.
type MicStream interface {
	Read(ctx context.Context) ([]float32, error)
	Close() error
}

// Device wraps the PortAudio library lifecycle. All playback and capture in
// the process goes through one Device; its Gate enforces that only one
// operation touches the hardware at a time.
type Device struct {
	gate *Gate

	mu     sync.Mutex
	closed bool
}

// Compile-time interface assertions.
var (
	_ Player    = (*Device)(nil)
	_ MicOpener = (*Device)(nil)
)

// Open initialises PortAudio and returns the process Device. The caller must
// call Close before process exit to release the audio backend.
func Open() (*Device, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("audiodev: initialize portaudio: %w", err)
	}
	return &Device{gate: NewGate()}, nil
}

// Gate returns the device access gate shared by playback and capture.
func (d *Device) Gate() *Gate {
	return d.gate
}

// Close terminates PortAudio. It is idempotent.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	if err := portaudio.Terminate(); err != nil {
		return fmt.Errorf("audiodev: terminate portaudio: %w", err)
	}
	return nil
}

// Play writes 16-bit little-endian signed PCM to the default output device
// and blocks until the whole clip has been submitted or ctx is cancelled.
// The caller is expected to hold the Gate.
func (d *Device) Play(ctx context.Context, pcm []byte, sampleRate, channels int) error {
	if sampleRate <= 0 || channels <= 0 {
		return fmt.Errorf("audiodev: invalid format %d Hz / %d channels", sampleRate, channels)
	}
	if len(pcm) == 0 {
		return nil
	}

	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}

	out := make([]int16, framesPerBuffer*channels)
	stream, err := portaudio.OpenDefaultStream(0, channels, float64(sampleRate), framesPerBuffer, out)
	if err != nil {
		return fmt.Errorf("audiodev: open output stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("audiodev: start output stream: %w", err)
	}
	defer stream.Stop()

	for pos := 0; pos < len(samples); pos += len(out) {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := copy(out, samples[pos:])
		for i := n; i < len(out); i++ {
			out[i] = 0
		}
		if err := stream.Write(); err != nil {
			// An output underflow is recoverable; anything else is not.
			if errors.Is(err, portaudio.OutputUnderflowed) {
				continue
			}
			return fmt.Errorf("audiodev: write output stream: %w", err)
		}
	}
	return nil
}

// OpenMic opens the default input device as a mono 16 kHz float32 stream.
// The caller is expected to hold the Gate and must Close the stream when
// capture finishes.
func (d *Device) OpenMic() (MicStream, error) {
	buf := make([]float32, framesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(CaptureSampleRate), framesPerBuffer, buf)
	if err != nil {
		return nil, fmt.Errorf("audiodev: open input stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("audiodev: start input stream: %w", err)
	}
	return &micStream{stream: stream, buf: buf}, nil
}

type micStream struct {
	stream *portaudio.Stream
	buf    []float32

	mu     sync.Mutex
	closed bool
}

// Read blocks until one buffer of samples arrives and returns a copy of it.
func (m *micStream) Read(ctx context.Context) ([]float32, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return nil, errors.New("audiodev: mic stream is closed")
		}
		available, err := m.stream.AvailableToRead()
		m.mu.Unlock()
		if err != nil {
			return nil, fmt.Errorf("audiodev: poll input stream: %w", err)
		}
		if available < len(m.buf) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(10 * time.Millisecond):
			}
			continue
		}

		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return nil, errors.New("audiodev: mic stream is closed")
		}
		err = m.stream.Read()
		if err != nil {
			m.mu.Unlock()
			if errors.Is(err, portaudio.InputOverflowed) {
				continue
			}
			return nil, fmt.Errorf("audiodev: read input stream: %w", err)
		}
		chunk := make([]float32, len(m.buf))
		copy(chunk, m.buf)
		m.mu.Unlock()
		return chunk, nil
	}
}

func (m *micStream) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.stream.Stop()
	return m.stream.Close()
}
