// Command recapd is the main entry point for the recapd conversation
// intelligence server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/lschiller/recapd/internal/attention"
	"github.com/lschiller/recapd/internal/config"
	"github.com/lschiller/recapd/internal/health"
	"github.com/lschiller/recapd/internal/observe"
	"github.com/lschiller/recapd/internal/pipeline"
	"github.com/lschiller/recapd/internal/record"
	"github.com/lschiller/recapd/internal/record/postgres"
	"github.com/lschiller/recapd/internal/retrieval"
	"github.com/lschiller/recapd/internal/server"
	"github.com/lschiller/recapd/pkg/provider/embeddings"
	ollamaembed "github.com/lschiller/recapd/pkg/provider/embeddings/ollama"
	oaembed "github.com/lschiller/recapd/pkg/provider/embeddings/openai"
	"github.com/lschiller/recapd/pkg/provider/llm"
	"github.com/lschiller/recapd/pkg/provider/llm/anyllm"
	"github.com/lschiller/recapd/pkg/provider/stt"
	oastt "github.com/lschiller/recapd/pkg/provider/stt/openai"
	"github.com/lschiller/recapd/pkg/provider/stt/whisper"
)

// version is set via -ldflags at release build time.
var version = "dev"

// defaultEmbeddingDimensions is used when the config does not set
// storage.embedding_dimensions.
const defaultEmbeddingDimensions = 1536

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Logger ────────────────────────────────────────────────────────────────
	// The level is a LevelVar so the config watcher can adjust it at runtime.
	var logLevel slog.LevelVar
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &logLevel}))
	slog.SetDefault(logger)

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "recapd: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "recapd: %v\n", err)
		}
		return 1
	}
	logLevel.Set(slogLevel(cfg.Server.LogLevel))

	slog.Info("recapd starting",
		"version", version,
		"config", *configPath,
		"listen_addr", listenAddr(cfg),
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "recapd",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Store ─────────────────────────────────────────────────────────────────
	store, databaseCheck, err := openStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to open store", "err", err)
		return 1
	}
	defer store.Close()

	// ── Pipeline ──────────────────────────────────────────────────────────────
	prompts := pipeline.NewPromptCatalog(cfg.Pipeline.PromptTemplates)

	var queueOpts []pipeline.Option
	if cfg.Pipeline.Concurrency > 0 {
		queueOpts = append(queueOpts, pipeline.WithConcurrency(cfg.Pipeline.Concurrency))
	}
	queue := pipeline.NewQueue(store, providers.STT, providers.LLM, providers.Embeddings, prompts, queueOpts...)

	if err := queue.Resume(ctx); err != nil {
		slog.Error("failed to resume interrupted recordings", "err", err)
		return 1
	}

	// ── Retrieval engine ──────────────────────────────────────────────────────
	var engine *retrieval.Engine
	if providers.llmConfigured && providers.embeddingsConfigured {
		var engineOpts []retrieval.Option
		if cfg.Retrieval.TopK > 0 {
			engineOpts = append(engineOpts, retrieval.WithTopK(cfg.Retrieval.TopK))
		}
		if cfg.Retrieval.SimilarityThreshold > 0 {
			engineOpts = append(engineOpts, retrieval.WithThreshold(cfg.Retrieval.SimilarityThreshold))
		}
		if cfg.Retrieval.MaxContextTokens > 0 {
			engineOpts = append(engineOpts, retrieval.WithMaxContextTokens(cfg.Retrieval.MaxContextTokens))
		}
		engine = retrieval.New(store, providers.LLM, providers.Embeddings, engineOpts...)
	} else {
		slog.Warn("question answering disabled; configure providers.llm and providers.embeddings to enable it")
	}

	// ── HTTP server ───────────────────────────────────────────────────────────
	checkers := []health.Checker{
		{Name: "database", Check: databaseCheck},
	}
	healthHandler := health.New(checkers, health.WithInFlight(func() int {
		return len(queue.InFlight())
	}))

	att := attention.New(store, queue, logger)
	api := server.New(store, queue, att, engine,
		server.WithLogger(logger),
		server.WithHealth(healthHandler),
	)

	httpServer := &http.Server{
		Addr:              listenAddr(cfg),
		Handler:           api.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		d := config.Diff(old, new)
		if d.LogLevelChanged {
			logLevel.Set(slogLevel(d.NewLogLevel))
			slog.Info("log level changed", "level", d.NewLogLevel)
		}
		if d.TemplatesChanged {
			prompts.Reload(new.Pipeline.PromptTemplates)
			slog.Info("prompt templates reloaded", "changes", len(d.TemplateChanges))
		}
		if d.RetrievalChanged {
			slog.Warn("retrieval settings changed; restart recapd to apply them")
		}
	})
	if err != nil {
		slog.Error("failed to start config watcher", "err", err)
		return 1
	}
	defer watcher.Stop()

	printStartupSummary(cfg)

	errCh := make(chan error, 1)
	go func() {
		if cfg.Server.TLS != nil {
			errCh <- httpServer.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
		} else {
			errCh <- httpServer.ListenAndServe()
		}
	}()

	slog.Info("server ready — press Ctrl+C to shut down")

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "err", err)
			return 1
		}
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown error", "err", err)
	}
	if err := queue.Shutdown(shutdownCtx); err != nil {
		slog.Warn("pipeline shutdown error", "err", err)
	}
	if err := otelShutdown(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	slog.Info("goodbye")
	return 0
}

// ── Store wiring ──────────────────────────────────────────────────────────────

// openStore opens the configured store and returns it together with the
// readiness check probing it.
func openStore(ctx context.Context, cfg *config.Config) (record.Store, func(context.Context) error, error) {
	if cfg.Storage.PostgresDSN == "" {
		slog.Warn("running on the in-memory store; recordings are lost on restart")
		ok := func(context.Context) error { return nil }
		return record.NewMemStore(), ok, nil
	}

	dims := cfg.Storage.EmbeddingDimensions
	if dims <= 0 {
		dims = defaultEmbeddingDimensions
	}
	store, err := postgres.NewStore(ctx, cfg.Storage.PostgresDSN, dims)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	slog.Info("postgres store ready", "embedding_dimensions", dims)
	return store, store.Ping, nil
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// builtProviders holds one provider per pipeline concern. Slots without a
// configured implementation carry a stand-in that fails permanently, so an
// accidentally unconfigured deployment surfaces clear errors in the
// attention list instead of panicking.
type builtProviders struct {
	STT        stt.Provider
	LLM        llm.Provider
	Embeddings embeddings.Provider

	sttConfigured        bool
	llmConfigured        bool
	embeddingsConfigured bool
}

// registerBuiltinProviders wires all built-in provider factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────
	// The cloud providers share the same pattern: optional APIKey + BaseURL.
	for _, providerName := range []string{
		"openai", "anthropic", "gemini",
		"deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
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

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("openai", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []oastt.Option
		if entry.BaseURL != "" {
			opts = append(opts, oastt.WithBaseURL(entry.BaseURL))
		}
		return oastt.New(entry.APIKey, entry.Model, opts...)
	})

	// ── Embeddings ────────────────────────────────────────────────────────────

	reg.RegisterEmbeddings("openai", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		var opts []oaembed.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaembed.WithBaseURL(entry.BaseURL))
		}
		return oaembed.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterEmbeddings("ollama", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		var opts []ollamaembed.Option
		if dims := optInt(entry.Options, "dimensions"); dims > 0 {
			opts = append(opts, ollamaembed.WithDimensions(dims))
		}
		return ollamaembed.New(entry.BaseURL, entry.Model, opts...)
	})
}

// buildProviders instantiates all providers named in cfg using the registry.
func buildProviders(cfg *config.Config, reg *config.Registry) (*builtProviders, error) {
	ps := &builtProviders{
		STT:        unconfiguredSTT{},
		LLM:        unconfiguredLLM{},
		Embeddings: unconfiguredEmbeddings{},
	}

	if name := cfg.Providers.STT.Name; name != "" {
		p, err := reg.CreateSTT(cfg.Providers.STT)
		if err != nil {
			return nil, fmt.Errorf("create stt provider %q: %w", name, err)
		}
		ps.STT = observe.InstrumentSTT(p, name, observe.DefaultMetrics())
		ps.sttConfigured = true
		slog.Info("provider created", "kind", "stt", "name", name, "model", p.ModelID())
	}

	if name := cfg.Providers.LLM.Name; name != "" {
		p, err := reg.CreateLLM(cfg.Providers.LLM)
		if err != nil {
			return nil, fmt.Errorf("create llm provider %q: %w", name, err)
		}
		ps.LLM = observe.InstrumentLLM(p, name, observe.DefaultMetrics())
		ps.llmConfigured = true
		slog.Info("provider created", "kind", "llm", "name", name, "model", cfg.Providers.LLM.Model)
	}

	if name := cfg.Providers.Embeddings.Name; name != "" {
		p, err := reg.CreateEmbeddings(cfg.Providers.Embeddings)
		if err != nil {
			return nil, fmt.Errorf("create embeddings provider %q: %w", name, err)
		}
		ps.Embeddings = observe.InstrumentEmbeddings(p, name, observe.DefaultMetrics())
		ps.embeddingsConfigured = true
		slog.Info("provider created", "kind", "embeddings", "name", name, "model", cfg.Providers.Embeddings.Model)
	}

	return ps, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║          recapd — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	printProvider("LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	printProvider("Embeddings", cfg.Providers.Embeddings.Name, cfg.Providers.Embeddings.Model)
	storage := "in-memory"
	if cfg.Storage.PostgresDSN != "" {
		storage = "postgres"
	}
	fmt.Printf("║  Storage         : %-19s ║\n", storage)
	fmt.Printf("║  Listen addr     : %-19s ║\n", listenAddr(cfg))
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

// ── Helpers ───────────────────────────────────────────────────────────────────

func listenAddr(cfg *config.Config) string {
	if cfg.Server.ListenAddr != "" {
		return cfg.Server.ListenAddr
	}
	return ":8080"
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

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

// optInt extracts an integer value from a provider Options map[string]any.
// YAML decodes whole numbers as int; a float is truncated.
func optInt(opts map[string]any, key string) int {
	if opts == nil {
		return 0
	}
	switch v := opts[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}
