package app_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/voxlingua/parla/internal/app"
	"github.com/voxlingua/parla/internal/audiodev"
	"github.com/voxlingua/parla/internal/config"
	"github.com/voxlingua/parla/internal/practice"
	"github.com/voxlingua/parla/pkg/provider/llm"
	llmmock "github.com/voxlingua/parla/pkg/provider/llm/mock"
	sttmock "github.com/voxlingua/parla/pkg/provider/stt/mock"
	"github.com/voxlingua/parla/pkg/provider/tts"
	ttsmock "github.com/voxlingua/parla/pkg/provider/tts/mock"
)

// chunkLen is 100 ms of audio at the capture sample rate.
const chunkLen = audiodev.CaptureSampleRate / 10

func chunk(amp float32) []float32 {
	c := make([]float32, chunkLen)
	for i := range c {
		c[i] = amp
	}
	return c
}

// fakeStream replays a scripted utterance and then fills with silence so the
// capture loop terminates via the silence window.
type fakeStream struct {
	chunks [][]float32
	idx    int
}

func (s *fakeStream) Read(ctx context.Context) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.idx < len(s.chunks) {
		c := s.chunks[s.idx]
		s.idx++
		return c, nil
	}
	return chunk(0), nil
}

func (s *fakeStream) Close() error { return nil }

// fakeDevice implements app.AudioDevice in memory: it records played PCM and
// hands out a scripted microphone.
type fakeDevice struct {
	gate *audiodev.Gate

	mu     sync.Mutex
	played [][]byte
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{gate: audiodev.NewGate()}
}

func (d *fakeDevice) Play(ctx context.Context, pcm []byte, sampleRate, channels int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.played = append(d.played, pcm)
	return nil
}

func (d *fakeDevice) OpenMic() (audiodev.MicStream, error) {
	return &fakeStream{chunks: [][]float32{
		chunk(0),
		chunk(0.5), chunk(0.5), chunk(0.5),
		chunk(0), chunk(0),
	}}, nil
}

func (d *fakeDevice) Gate() *audiodev.Gate { return d.gate }

func (d *fakeDevice) playCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.played)
}

func testConfig() *config.Config {
	cfg := &config.Config{
		Server: config.ServerConfig{LogLevel: config.LogInfo},
		Practice: config.PracticeConfig{
			CaptureTimeout: time.Second,
			PhraseLimit:    time.Second,
			Calibration:    100 * time.Millisecond,
			SilenceWindow:  200 * time.Millisecond,
		},
	}
	cfg.Practice.ApplyDefaults()
	return cfg
}

func testProviders() *app.Providers {
	return &app.Providers{
		LLM: &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{
			Content: "Wo ist die Apotheke?\nIch habe Kopfschmerzen.\nBitte rufen Sie einen Arzt.\nMir ist schlecht.",
		}},
		TTS: &ttsmock.Provider{Clip: tts.Clip{PCM: []byte{1, 2, 3, 4}, SampleRate: 22050, Channels: 1}},
		STT: &sttmock.Provider{Transcript: "Wo ist die Apotheke?"},
	}
}

func newTestSession(t *testing.T, providers *app.Providers, device app.AudioDevice) *app.Session {
	t.Helper()
	s, err := app.New(testConfig(), providers, device)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	return s
}

func TestNew_RequiresProviders(t *testing.T) {
	t.Parallel()

	providers := testProviders()
	providers.STT = nil
	if _, err := app.New(testConfig(), providers, newFakeDevice()); err == nil {
		t.Error("New() with nil STT provider did not fail")
	}
	if _, err := app.New(testConfig(), testProviders(), nil); err == nil {
		t.Error("New() with nil device did not fail")
	}
}

func TestSelectScenario_GeneratesAndWarmsClips(t *testing.T) {
	t.Parallel()

	providers := testProviders()
	voice := providers.TTS.(*ttsmock.Provider)
	session := newTestSession(t, providers, newFakeDevice())

	batch, err := session.SelectScenario(context.Background(), "Hospital")
	if err != nil {
		t.Fatalf("SelectScenario() returned error: %v", err)
	}
	if len(batch) != 4 {
		t.Fatalf("batch has %d sentences, want 4", len(batch))
	}
	if got := batch[0].Text; got != "Wo ist die Apotheke?" {
		t.Errorf("batch[0].Text = %q", got)
	}
	if got := session.Scenario(); got != "Hospital" {
		t.Errorf("Scenario() = %q, want Hospital", got)
	}

	calls := voice.Calls()
	if len(calls) != 4 {
		t.Fatalf("Synthesize called %d times during warm-up, want 4", len(calls))
	}
	if calls[0].Language != "de" {
		t.Errorf("warm-up language = %q, want de", calls[0].Language)
	}
}

func TestSelectScenario_ReplacesBatch(t *testing.T) {
	t.Parallel()

	providers := testProviders()
	backend := providers.LLM.(*llmmock.Provider)
	session := newTestSession(t, providers, newFakeDevice())

	if _, err := session.SelectScenario(context.Background(), "Hospital"); err != nil {
		t.Fatalf("SelectScenario(Hospital): %v", err)
	}
	backend.CompleteResponse = &llm.CompletionResponse{
		Content: "Einen Tisch für zwei, bitte.\nDie Rechnung, bitte.\nWas empfehlen Sie?\nIch bin allergisch gegen Nüsse.",
	}
	batch, err := session.SelectScenario(context.Background(), "Restaurant")
	if err != nil {
		t.Fatalf("SelectScenario(Restaurant): %v", err)
	}
	if got := batch[0].Text; !strings.Contains(got, "Tisch") {
		t.Errorf("batch[0].Text = %q, want a Restaurant sentence", got)
	}
	if got := session.Scenario(); got != "Restaurant" {
		t.Errorf("Scenario() = %q, want Restaurant", got)
	}
}

func TestSelectScenario_FailedGeneration(t *testing.T) {
	t.Parallel()

	providers := testProviders()
	providers.LLM = &llmmock.Provider{CompleteErr: errors.New("backend down")}
	voice := providers.TTS.(*ttsmock.Provider)
	session := newTestSession(t, providers, newFakeDevice())

	batch, err := session.SelectScenario(context.Background(), "Airport")
	if err != nil {
		t.Fatalf("SelectScenario() returned error: %v", err)
	}
	if !batch.Failed() {
		t.Error("Failed() = false for a sentinel batch")
	}
	if got := len(voice.Calls()); got != 0 {
		t.Errorf("Synthesize called %d times for a failed batch, want 0", got)
	}
}

func TestSpeak_PlaysCachedClip(t *testing.T) {
	t.Parallel()

	providers := testProviders()
	voice := providers.TTS.(*ttsmock.Provider)
	device := newFakeDevice()
	session := newTestSession(t, providers, device)

	if _, err := session.SelectScenario(context.Background(), "Hospital"); err != nil {
		t.Fatalf("SelectScenario(): %v", err)
	}
	if err := session.Speak(context.Background(), 1); err != nil {
		t.Fatalf("Speak() returned error: %v", err)
	}
	if got := device.playCount(); got != 1 {
		t.Errorf("Play called %d times, want 1", got)
	}
	// Warm-up already synthesised all four clips; Speak must hit the cache.
	if got := len(voice.Calls()); got != 4 {
		t.Errorf("Synthesize called %d times, want 4", got)
	}
	if err := device.gate.TryAcquire(); err != nil {
		t.Fatalf("gate not released after playback: %v", err)
	}
	device.gate.Release()
}

func TestSpeak_WithoutBatch(t *testing.T) {
	t.Parallel()

	session := newTestSession(t, testProviders(), newFakeDevice())
	if err := session.Speak(context.Background(), 0); !errors.Is(err, app.ErrNoBatch) {
		t.Errorf("Speak() error = %v, want ErrNoBatch", err)
	}
}

func TestSpeak_IndexOutOfRange(t *testing.T) {
	t.Parallel()

	session := newTestSession(t, testProviders(), newFakeDevice())
	if _, err := session.SelectScenario(context.Background(), "Hospital"); err != nil {
		t.Fatalf("SelectScenario(): %v", err)
	}
	if err := session.Speak(context.Background(), 4); !errors.Is(err, app.ErrIndexOutOfRange) {
		t.Errorf("Speak(4) error = %v, want ErrIndexOutOfRange", err)
	}
	if err := session.Speak(context.Background(), -1); !errors.Is(err, app.ErrIndexOutOfRange) {
		t.Errorf("Speak(-1) error = %v, want ErrIndexOutOfRange", err)
	}
}

func TestSpeak_SentinelRejected(t *testing.T) {
	t.Parallel()

	providers := testProviders()
	providers.LLM = &llmmock.Provider{CompleteErr: errors.New("backend down")}
	session := newTestSession(t, providers, newFakeDevice())

	if _, err := session.SelectScenario(context.Background(), "Hospital"); err != nil {
		t.Fatalf("SelectScenario(): %v", err)
	}
	if err := session.Speak(context.Background(), 0); !errors.Is(err, practice.ErrSentinelSentence) {
		t.Errorf("Speak() error = %v, want ErrSentinelSentence", err)
	}
}

func TestAttempt_DeliversOneFeedbackEvent(t *testing.T) {
	t.Parallel()

	providers := testProviders()
	session := newTestSession(t, providers, newFakeDevice())

	if _, err := session.SelectScenario(context.Background(), "Hospital"); err != nil {
		t.Fatalf("SelectScenario(): %v", err)
	}
	events, err := session.Attempt(context.Background(), 0)
	if err != nil {
		t.Fatalf("Attempt() returned error: %v", err)
	}

	select {
	case ev := <-events:
		if ev.Outcome != practice.OutcomePass {
			t.Errorf("Outcome = %v, want Pass (message: %q)", ev.Outcome, ev.Message)
		}
		if ev.Transcript != "Wo ist die Apotheke?" {
			t.Errorf("Transcript = %q", ev.Transcript)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no feedback event within 5s")
	}

	select {
	case _, ok := <-events:
		if ok {
			t.Error("received a second feedback event")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("event channel not closed within 5s")
	}
}

func TestAttempt_WithoutBatch(t *testing.T) {
	t.Parallel()

	session := newTestSession(t, testProviders(), newFakeDevice())
	if _, err := session.Attempt(context.Background(), 0); !errors.Is(err, app.ErrNoBatch) {
		t.Errorf("Attempt() error = %v, want ErrNoBatch", err)
	}
}
