// Package main implements the medmanual answer API server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"

	"github.com/MedManualAI/medmanual-mvp/engine/answer"
	"github.com/MedManualAI/medmanual-mvp/engine/catalog"
	"github.com/MedManualAI/medmanual-mvp/engine/fetch"
	"github.com/MedManualAI/medmanual-mvp/engine/images"
	"github.com/MedManualAI/medmanual-mvp/engine/index"
	"github.com/MedManualAI/medmanual-mvp/engine/pdfdoc"
	"github.com/MedManualAI/medmanual-mvp/pkg/fn"
	"github.com/MedManualAI/medmanual-mvp/pkg/llm"
	"github.com/MedManualAI/medmanual-mvp/pkg/metrics"
	"github.com/MedManualAI/medmanual-mvp/pkg/resilience"
)

// Config holds all environment-based configuration.
type Config struct {
	Port         string
	BaseURL      string
	APIKey       string
	EmbedModel   string
	ChatModel    string
	MaxTokens    int
	EmbedRate    float64
	CatalogPath  string
	IndexDir     string
	ImagesDir    string
	IndexBackend string // "disk" or "qdrant"
	QdrantURL    string
	NATSURL      string // empty runs warm requests in-process
	CORSOrigin   string
}

func loadConfig() Config {
	return Config{
		Port:         envOr("PORT", "8080"),
		BaseURL:      envOr("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		APIKey:       os.Getenv("OPENAI_API_KEY"),
		EmbedModel:   envOr("EMBED_MODEL", "text-embedding-3-small"),
		ChatModel:    envOr("CHAT_MODEL", "gpt-4o-mini"),
		MaxTokens:    envInt("CHAT_MAX_TOKENS", 1024),
		EmbedRate:    envFloat("EMBED_RATE", 10),
		CatalogPath:  os.Getenv("CATALOG_PATH"),
		IndexDir:     envOr("INDEX_DIR", "vector_indexes"),
		ImagesDir:    envOr("IMAGES_DIR", "manual_images"),
		IndexBackend: envOr("INDEX_BACKEND", "disk"),
		QdrantURL:    envOr("QDRANT_URL", "localhost:6334"),
		NATSURL:      os.Getenv("NATS_URL"),
		CORSOrigin:   envOr("CORS_ORIGIN", "*"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := loadConfig()

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return err
	}

	llmCfg := llm.Config{BaseURL: cfg.BaseURL, APIKey: cfg.APIKey}
	embed := llm.NewEmbedClient(llmCfg, cfg.EmbedModel, cfg.EmbedRate, 2)
	chat := llm.NewChatClient(llm.Config{BaseURL: cfg.BaseURL, APIKey: cfg.APIKey, Timeout: 90 * time.Second}, cfg.ChatModel, cfg.MaxTokens)

	var backend index.Backend
	switch cfg.IndexBackend {
	case "qdrant":
		qb, err := index.NewQdrantBackend(cfg.QdrantURL)
		if err != nil {
			return err
		}
		defer qb.Close()
		backend = qb
	case "disk":
		backend = index.NewDiskBackend(cfg.IndexDir)
	default:
		return fmt.Errorf("unknown INDEX_BACKEND %q", cfg.IndexBackend)
	}

	store := index.NewStore(pdfdoc.NewReader(), embed, backend, index.Options{}, logger)
	extractor := images.New(cfg.ImagesDir, images.Options{}, logger)
	fetcher := fetch.New(fetch.Options{}, logger)

	breaker := resilience.NewBreaker(resilience.DefaultBreakerOpts)
	gen := &guardedGenerator{breaker: breaker, inner: chat}

	svc := answer.New(cat, fetcher, store, embed, gen, extractor, answer.Options{}, logger)

	// Warm requests go to the indexer worker over NATS when configured, and
	// run in-process otherwise.
	var warm warmFunc
	if cfg.NATSURL != "" {
		nc, err := nats.Connect(cfg.NATSURL, nats.Name("medmanual-api"))
		if err != nil {
			return fmt.Errorf("nats connect: %w", err)
		}
		defer nc.Close()
		warm = natsWarm(nc)
		logger.Info("warm requests via nats", "url", cfg.NATSURL)
	} else {
		warm = inlineWarm(svc, logger)
	}

	reg := metrics.New()
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      newHandler(svc, cat, warm, cfg.ImagesDir, cfg.CORSOrigin, reg, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute, // first question on a large manual builds the index
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

// guardedGenerator runs chat completions through a circuit breaker so a
// struggling provider sheds load fast instead of queueing requests.
type guardedGenerator struct {
	breaker *resilience.Breaker
	inner   answer.Generator
}

func (g *guardedGenerator) Complete(ctx context.Context, prompt string) (string, error) {
	return resilience.CallResult(g.breaker, ctx, func(ctx context.Context) fn.Result[string] {
		return fn.FromPair(g.inner.Complete(ctx, prompt))
	}).Unwrap()
}
