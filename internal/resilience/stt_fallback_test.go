package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/voxlingua/parla/pkg/provider/stt"
	sttmock "github.com/voxlingua/parla/pkg/provider/stt/mock"
)

func TestSTTFallback_Transcribe_PrimarySuccess(t *testing.T) {
	primary := &sttmock.Provider{Transcript: "guten tag"}
	secondary := &sttmock.Provider{Transcript: "fallback"}

	fb := NewSTTFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	text, err := fb.Transcribe(context.Background(), []float32{0.1, 0.2}, "de")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "guten tag" {
		t.Fatalf("text = %q, want 'guten tag'", text)
	}
	if len(primary.TranscribeCalls) != 1 {
		t.Fatalf("primary called %d times, want 1", len(primary.TranscribeCalls))
	}
	if len(secondary.TranscribeCalls) != 0 {
		t.Fatalf("secondary called %d times, want 0", len(secondary.TranscribeCalls))
	}
}

func TestSTTFallback_Transcribe_Failover(t *testing.T) {
	primary := &sttmock.Provider{TranscribeErr: errors.New("primary down")}
	secondary := &sttmock.Provider{Transcript: "guten tag"}

	fb := NewSTTFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	text, err := fb.Transcribe(context.Background(), []float32{0.1}, "de")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "guten tag" {
		t.Fatalf("text = %q, want 'guten tag'", text)
	}
	if len(secondary.TranscribeCalls) != 1 {
		t.Fatalf("secondary called %d times, want 1", len(secondary.TranscribeCalls))
	}
}

func TestSTTFallback_Transcribe_AllFail(t *testing.T) {
	primary := &sttmock.Provider{TranscribeErr: errors.New("primary down")}
	secondary := &sttmock.Provider{TranscribeErr: errors.New("secondary down")}

	fb := NewSTTFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	_, err := fb.Transcribe(context.Background(), []float32{0.1}, "de")
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestSTTFallback_Transcribe_NoSpeechIsNotFailover(t *testing.T) {
	primary := &sttmock.Provider{TranscribeErr: stt.ErrNoSpeech}
	secondary := &sttmock.Provider{Transcript: "should not be used"}

	fb := NewSTTFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1},
	})
	fb.AddFallback("secondary", secondary)

	_, err := fb.Transcribe(context.Background(), []float32{0.1}, "de")
	if !errors.Is(err, stt.ErrNoSpeech) {
		t.Fatalf("err = %v, want ErrNoSpeech", err)
	}
	if len(secondary.TranscribeCalls) != 0 {
		t.Fatal("no-speech outcome triggered failover to secondary")
	}

	// ErrNoSpeech must not trip the breaker either: the primary stays in use.
	if _, err := fb.Transcribe(context.Background(), []float32{0.1}, "de"); !errors.Is(err, stt.ErrNoSpeech) {
		t.Fatalf("second call err = %v, want ErrNoSpeech", err)
	}
	if len(primary.TranscribeCalls) != 2 {
		t.Fatalf("primary called %d times, want 2 (breaker should stay closed)", len(primary.TranscribeCalls))
	}
}
