// Package main implements the indexer worker. It warms manual caches (PDF
// download, vector index, extracted images) ahead of user questions, either
// for the whole catalog via -all or continuously from NATS warm requests.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"

	"github.com/MedManualAI/medmanual-mvp/engine/answer"
	"github.com/MedManualAI/medmanual-mvp/engine/catalog"
	"github.com/MedManualAI/medmanual-mvp/engine/domain"
	"github.com/MedManualAI/medmanual-mvp/engine/fetch"
	"github.com/MedManualAI/medmanual-mvp/engine/images"
	"github.com/MedManualAI/medmanual-mvp/engine/index"
	"github.com/MedManualAI/medmanual-mvp/engine/pdfdoc"
	"github.com/MedManualAI/medmanual-mvp/pkg/fn"
	"github.com/MedManualAI/medmanual-mvp/pkg/llm"
	"github.com/MedManualAI/medmanual-mvp/pkg/metrics"
	"github.com/MedManualAI/medmanual-mvp/pkg/natsutil"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	_ = godotenv.Load()

	all := flag.Bool("all", false, "warm every manual in the catalog and exit")
	workers := flag.Int("workers", 2, "concurrent manuals when warming the catalog")
	metricsPort := flag.String("metrics-port", envOr("METRICS_PORT", "9091"), "port for /metrics")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(*all, *workers, *metricsPort, logger); err != nil {
		logger.Error("indexer exited with error", "err", err)
		os.Exit(1)
	}
}

func run(all bool, workers int, metricsPort string, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cat, err := catalog.Load(os.Getenv("CATALOG_PATH"))
	if err != nil {
		return err
	}

	llmCfg := llm.Config{
		BaseURL: envOr("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		APIKey:  os.Getenv("OPENAI_API_KEY"),
	}
	embed := llm.NewEmbedClient(llmCfg, envOr("EMBED_MODEL", "text-embedding-3-small"), 10, 2)

	var backend index.Backend
	if envOr("INDEX_BACKEND", "disk") == "qdrant" {
		qb, err := index.NewQdrantBackend(envOr("QDRANT_URL", "localhost:6334"))
		if err != nil {
			return err
		}
		defer qb.Close()
		backend = qb
	} else {
		backend = index.NewDiskBackend(envOr("INDEX_DIR", "vector_indexes"))
	}

	store := index.NewStore(pdfdoc.NewReader(), embed, backend, index.Options{}, logger)
	extractor := images.New(envOr("IMAGES_DIR", "manual_images"), images.Options{}, logger)
	fetcher := fetch.New(fetch.Options{}, logger)

	// The generator is never called on the warm path.
	svc := answer.New(cat, fetcher, store, embed, nil, extractor, answer.Options{}, logger)

	reg := metrics.New()
	warmed := reg.Counter("medmanual_warmed_total", "Manuals warmed")
	failed := reg.Counter("medmanual_warm_failures_total", "Manual warm failures")
	warmOne := func(ctx context.Context, ref domain.ManualReference) {
		start := time.Now()
		if err := svc.Warm(ctx, ref); err != nil {
			failed.Inc()
			logger.Error("warm failed", "manufacturer", ref.Manufacturer, "model", ref.Model, "err", err)
			return
		}
		warmed.Inc()
		logger.Info("warm done", "model", ref.Model, "took", time.Since(start))
	}

	if all {
		refs := cat.References()
		logger.Info("warming catalog", "manuals", len(refs), "workers", workers)
		fn.ParMap(refs, workers, func(ref domain.ManualReference) struct{} {
			warmOne(ctx, ref)
			return struct{}{}
		})
		return nil
	}

	nc, err := nats.Connect(envOr("NATS_URL", nats.DefaultURL), nats.Name("medmanual-indexer"))
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}
	defer nc.Close()

	sub, err := natsutil.Subscribe(nc, natsutil.SubjectWarmManual, func(msgCtx context.Context, ref domain.ManualReference) {
		warmCtx, cancel := context.WithTimeout(msgCtx, 30*time.Minute)
		defer cancel()
		warmOne(warmCtx, ref)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", natsutil.SubjectWarmManual, err)
	}
	defer sub.Unsubscribe()

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", reg.Handler())
	srv := &http.Server{Addr: ":" + metricsPort, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server", "err", err)
		}
	}()

	logger.Info("indexer listening", "subject", natsutil.SubjectWarmManual)
	<-ctx.Done()

	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}
