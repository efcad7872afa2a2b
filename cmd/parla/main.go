// Command parla is an interactive spoken-language practice session: it
// generates target-language sentences for a scenario, speaks them aloud and
// scores the learner's pronunciation attempts against them.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voxlingua/parla/internal/app"
	"github.com/voxlingua/parla/internal/audiodev"
	"github.com/voxlingua/parla/internal/config"
	"github.com/voxlingua/parla/internal/health"
	"github.com/voxlingua/parla/internal/notify"
	"github.com/voxlingua/parla/internal/observe"
	"github.com/voxlingua/parla/internal/practice"
	"github.com/voxlingua/parla/internal/resilience"
	"github.com/voxlingua/parla/pkg/provider/llm"
	"github.com/voxlingua/parla/pkg/provider/llm/anyllm"
	oaillm "github.com/voxlingua/parla/pkg/provider/llm/openai"
	"github.com/voxlingua/parla/pkg/provider/stt"
	oaistt "github.com/voxlingua/parla/pkg/provider/stt/openai"
	"github.com/voxlingua/parla/pkg/provider/stt/whisper"
	"github.com/voxlingua/parla/pkg/provider/stt/whisperhttp"
	"github.com/voxlingua/parla/pkg/provider/tts"
	"github.com/voxlingua/parla/pkg/provider/tts/coqui"
	oaitts "github.com/voxlingua/parla/pkg/provider/tts/openai"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	notifications := flag.Bool("notify", true, "show desktop notifications for attempt feedback")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "parla: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "parla: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("parla starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "parla"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Audio device ──────────────────────────────────────────────────────────
	device, err := audiodev.Open()
	if err != nil {
		slog.Error("failed to open audio device", "err", err)
		return 1
	}
	defer func() {
		if err := device.Close(); err != nil {
			slog.Warn("audio device close error", "err", err)
		}
	}()

	// ── Health and metrics endpoints (optional) ───────────────────────────────
	if cfg.Server.ListenAddr != "" {
		srv := newHTTPServer(cfg, providers)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("http server error", "err", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				slog.Warn("http server shutdown error", "err", err)
			}
		}()
		slog.Info("serving health and metrics", "addr", cfg.Server.ListenAddr)
	}

	// ── Session ───────────────────────────────────────────────────────────────
	printStartupSummary(cfg)

	session, err := app.New(cfg, providers, device)
	if err != nil {
		slog.Error("failed to initialise session", "err", err)
		return 1
	}

	notifier := notify.New(*notifications)
	if err := practiceLoop(ctx, session, notifier); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("session error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// anyLLMProviders are the LLM backends reached through the any-llm client.
// "openai" is handled separately by the native SDK provider.
var anyLLMProviders = []string{
	"anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
}

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the appropriate
// provider from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────

	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oaillm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaillm.WithBaseURL(entry.BaseURL))
		}
		return oaillm.New(entry.APIKey, entry.Model, opts...)
	})

	for _, providerName := range anyLLMProviders {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("coqui", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []coqui.Option
		if mode := optString(entry.Options, "api_mode"); mode != "" {
			opts = append(opts, coqui.WithAPIMode(coqui.APIMode(mode)))
		}
		if speaker := optString(entry.Options, "speaker"); speaker != "" {
			opts = append(opts, coqui.WithSpeaker(speaker))
		}
		return coqui.New(entry.BaseURL, opts...)
	})

	reg.RegisterTTS("openai", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []oaitts.Option
		if entry.Model != "" {
			opts = append(opts, oaitts.WithModel(entry.Model))
		}
		if voice := optString(entry.Options, "voice"); voice != "" {
			opts = append(opts, oaitts.WithVoice(voice))
		}
		return oaitts.New(entry.APIKey, opts...)
	})

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisperhttp.Option
		if entry.Model != "" {
			opts = append(opts, whisperhttp.WithModel(entry.Model))
		}
		return whisperhttp.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Provider, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = optString(entry.Options, "model_path")
		}
		var opts []whisper.Option
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(modelPath, opts...)
	})

	reg.RegisterSTT("openai", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []oaistt.Option
		if entry.Model != "" {
			opts = append(opts, oaistt.WithModel(entry.Model))
		}
		return oaistt.New(entry.APIKey, opts...)
	})
}

// buildProviders instantiates the providers named in cfg, wraps each pipeline
// stage in a resilience fallback group and returns them ready for [app.New].
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	fbCfg := resilience.FallbackConfig{}

	llmPrimary, err := reg.CreateLLM(cfg.Providers.LLM)
	if err != nil {
		return nil, fmt.Errorf("create llm provider %q: %w", cfg.Providers.LLM.Name, err)
	}
	llmGroup := resilience.NewLLMFallback(llmPrimary, cfg.Providers.LLM.Name, fbCfg)
	for _, entry := range cfg.Providers.LLMFallbacks {
		p, err := reg.CreateLLM(entry)
		if err != nil {
			return nil, fmt.Errorf("create llm fallback %q: %w", entry.Name, err)
		}
		llmGroup.AddFallback(entry.Name, p)
	}
	slog.Info("provider created", "kind", "llm", "name", cfg.Providers.LLM.Name,
		"fallbacks", len(cfg.Providers.LLMFallbacks))

	ttsPrimary, err := reg.CreateTTS(cfg.Providers.TTS)
	if err != nil {
		return nil, fmt.Errorf("create tts provider %q: %w", cfg.Providers.TTS.Name, err)
	}
	ttsGroup := resilience.NewTTSFallback(ttsPrimary, cfg.Providers.TTS.Name, fbCfg)
	for _, entry := range cfg.Providers.TTSFallbacks {
		p, err := reg.CreateTTS(entry)
		if err != nil {
			return nil, fmt.Errorf("create tts fallback %q: %w", entry.Name, err)
		}
		ttsGroup.AddFallback(entry.Name, p)
	}
	slog.Info("provider created", "kind", "tts", "name", cfg.Providers.TTS.Name,
		"fallbacks", len(cfg.Providers.TTSFallbacks))

	sttPrimary, err := reg.CreateSTT(cfg.Providers.STT)
	if err != nil {
		return nil, fmt.Errorf("create stt provider %q: %w", cfg.Providers.STT.Name, err)
	}
	sttGroup := resilience.NewSTTFallback(sttPrimary, cfg.Providers.STT.Name, fbCfg)
	for _, entry := range cfg.Providers.STTFallbacks {
		p, err := reg.CreateSTT(entry)
		if err != nil {
			return nil, fmt.Errorf("create stt fallback %q: %w", entry.Name, err)
		}
		sttGroup.AddFallback(entry.Name, p)
	}
	slog.Info("provider created", "kind", "stt", "name", cfg.Providers.STT.Name,
		"fallbacks", len(cfg.Providers.STTFallbacks))

	return &app.Providers{LLM: llmGroup, TTS: ttsGroup, STT: sttGroup}, nil
}

// ── HTTP endpoints ────────────────────────────────────────────────────────────

func newHTTPServer(cfg *config.Config, providers *app.Providers) *http.Server {
	checkers := []health.Checker{
		{Name: "llm", Check: configured("llm", providers.LLM != nil)},
		{Name: "tts", Check: configured("tts", providers.TTS != nil)},
		{Name: "stt", Check: configured("stt", providers.STT != nil)},
	}
	mux := http.NewServeMux()
	health.New(checkers...).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	return &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func configured(kind string, ok bool) func(context.Context) error {
	return func(context.Context) error {
		if !ok {
			return fmt.Errorf("%s provider not configured", kind)
		}
		return nil
	}
}

// ── Interactive loop ──────────────────────────────────────────────────────────

// practiceLoop reads commands from stdin until EOF, "quit" or context
// cancellation.
func practiceLoop(ctx context.Context, session *app.Session, notifier *notify.Notifier) error {
	printScenarios(session.Scenarios())
	fmt.Println(`Commands: scenario <n> · play <n> · say <n> · list · quit`)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		cmd, args := fields[0], fields[1:]

		switch cmd {
		case "quit", "exit", "q":
			return nil
		case "scenario", "s":
			handleScenario(ctx, session, args)
		case "list", "l":
			printBatch(session.Batch())
		case "play", "p":
			handlePlay(ctx, session, args)
		case "say", "try", "t":
			handleSay(ctx, session, notifier, args)
		case "help", "h", "?":
			printScenarios(session.Scenarios())
			fmt.Println(`Commands: scenario <n> · play <n> · say <n> · list · quit`)
		default:
			fmt.Printf("unknown command %q (try: help)\n", cmd)
		}
	}
}

func handleScenario(ctx context.Context, session *app.Session, args []string) {
	if len(args) == 0 {
		fmt.Println("usage: scenario <number or name>")
		return
	}
	name := strings.Join(args, " ")
	if n, err := strconv.Atoi(name); err == nil {
		scenarios := session.Scenarios()
		if n < 1 || n > len(scenarios) {
			fmt.Printf("scenario number out of range (1-%d)\n", len(scenarios))
			return
		}
		name = scenarios[n-1]
	}

	fmt.Printf("Generating sentences for %q...\n", name)
	batch, err := session.SelectScenario(ctx, name)
	if err != nil {
		fmt.Printf("generation failed: %v\n", err)
		return
	}
	if batch.Failed() {
		fmt.Println("The sentence service is unavailable. Try again in a moment.")
		return
	}
	printBatch(batch)
}

func handlePlay(ctx context.Context, session *app.Session, args []string) {
	index, ok := parseIndex(args)
	if !ok {
		fmt.Println("usage: play <sentence number>")
		return
	}
	if err := session.Speak(ctx, index); err != nil {
		switch {
		case errors.Is(err, audiodev.ErrDeviceBusy):
			fmt.Println("The audio device is busy. Wait for the current sound to finish.")
		case errors.Is(err, app.ErrNoBatch):
			fmt.Println("Pick a scenario first.")
		default:
			fmt.Printf("playback failed: %v\n", err)
		}
	}
}

func handleSay(ctx context.Context, session *app.Session, notifier *notify.Notifier, args []string) {
	index, ok := parseIndex(args)
	if !ok {
		fmt.Println("usage: say <sentence number>")
		return
	}

	events, err := session.Attempt(ctx, index)
	if err != nil {
		switch {
		case errors.Is(err, practice.ErrAttemptInProgress):
			fmt.Println("An attempt is already running.")
		case errors.Is(err, practice.ErrSentinelSentence):
			fmt.Println("That sentence failed to generate; pick another one.")
		case errors.Is(err, app.ErrNoBatch):
			fmt.Println("Pick a scenario first.")
		default:
			fmt.Printf("could not start attempt: %v\n", err)
		}
		return
	}

	target, _ := batchSentence(session, index)
	notifier.Listening(target)
	fmt.Println("Listening... speak now.")

	select {
	case ev, ok := <-events:
		if !ok {
			return
		}
		fmt.Println(ev.Message)
		notifier.Feedback(ev)
	case <-ctx.Done():
		fmt.Println("Attempt interrupted.")
	}
}

func batchSentence(session *app.Session, index int) (string, bool) {
	batch := session.Batch()
	if index < 0 || index >= len(batch) {
		return "", false
	}
	return batch[index].Text, true
}

func parseIndex(args []string) (int, bool) {
	if len(args) != 1 {
		return 0, false
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 {
		return 0, false
	}
	// Sentences are numbered from 1 in the CLI.
	return n - 1, true
}

func printScenarios(scenarios []string) {
	fmt.Println("Scenarios:")
	for i, s := range scenarios {
		fmt.Printf("  %d. %s\n", i+1, s)
	}
}

func printBatch(batch practice.Batch) {
	if len(batch) == 0 {
		fmt.Println("No sentences yet. Pick a scenario first.")
		return
	}
	for i, s := range batch {
		if !s.Generated {
			fmt.Printf("  %d. (unavailable)\n", i+1)
			continue
		}
		fmt.Printf("  %d. %s\n", i+1, s.Text)
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║          Parla — startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	printProvider("TTS", cfg.Providers.TTS.Name, cfg.Providers.TTS.Model)
	printProvider("STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	fmt.Printf("║  Language        : %-19s ║\n", cfg.Practice.LanguageName)
	fmt.Printf("║  Scenarios       : %-19d ║\n", len(cfg.Practice.Scenarios))
	fmt.Printf("║  Pass threshold  : %-19.2f ║\n", cfg.Practice.Threshold)
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}
