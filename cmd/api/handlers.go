package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/MedManualAI/medmanual-mvp/engine/answer"
	"github.com/MedManualAI/medmanual-mvp/engine/domain"
	"github.com/MedManualAI/medmanual-mvp/pkg/metrics"
	"github.com/MedManualAI/medmanual-mvp/pkg/mid"
	"github.com/MedManualAI/medmanual-mvp/pkg/natsutil"
)

// asker is the slice of answer.Service the handlers need.
type asker interface {
	Ask(ctx context.Context, req answer.AskRequest) domain.AnswerResult
}

// deviceCatalog is the slice of catalog.Catalog the handlers need.
type deviceCatalog interface {
	Manufacturers() []string
	Models(manufacturer string) []string
	Resolve(manufacturer, model string) (domain.ManualReference, bool)
	References() []domain.ManualReference
}

// warmFunc schedules cache warming for one manual. It must return quickly;
// the actual work happens elsewhere.
type warmFunc func(ctx context.Context, ref domain.ManualReference) error

// natsWarm hands warm requests to the indexer worker.
func natsWarm(nc *nats.Conn) warmFunc {
	return func(ctx context.Context, ref domain.ManualReference) error {
		return natsutil.Publish(ctx, nc, natsutil.SubjectWarmManual, ref)
	}
}

// inlineWarm runs warming in-process, detached from the request.
func inlineWarm(svc *answer.Service, logger *slog.Logger) warmFunc {
	return func(_ context.Context, ref domain.ManualReference) error {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
			defer cancel()
			if err := svc.Warm(ctx, ref); err != nil {
				logger.Error("warm failed", "model", ref.Model, "err", err)
			}
		}()
		return nil
	}
}

func newHandler(svc asker, cat deviceCatalog, warm warmFunc, imagesDir, corsOrigin string, reg *metrics.Registry, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", handleHealth)
	mux.HandleFunc("GET /api/devices", handleDevices(cat))
	mux.HandleFunc("POST /api/ask", handleAsk(svc, reg, logger))
	mux.HandleFunc("POST /api/warm", handleWarm(cat, warm, logger))
	mux.Handle("GET /metrics", reg.Handler())
	mux.Handle("GET /manual_images/", http.StripPrefix("/manual_images/", http.FileServer(http.Dir(imagesDir))))

	return mid.Chain(mux,
		mid.Recover(logger),
		mid.Logger(logger),
		mid.OTel("medmanual-api"),
		mid.CORS(corsOrigin),
		mid.MaxBytes(1<<20),
	)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func handleDevices(cat deviceCatalog) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		out := make(map[string][]string)
		for _, mfr := range cat.Manufacturers() {
			out[mfr] = cat.Models(mfr)
		}
		writeJSON(w, http.StatusOK, map[string]any{"manufacturers": out})
	}
}

// AskRequest is the JSON body for POST /api/ask.
type AskRequest struct {
	Manufacturer string                    `json:"manufacturer"`
	Model        string                    `json:"model"`
	Question     string                    `json:"question"`
	History      []domain.ConversationTurn `json:"history,omitempty"`
}

func handleAsk(svc asker, reg *metrics.Registry, logger *slog.Logger) http.HandlerFunc {
	questions := reg.Counter("medmanual_questions_total", "Questions received")
	latency := reg.Histogram("medmanual_answer_seconds", "Time to produce an answer", nil)

	return func(w http.ResponseWriter, r *http.Request) {
		var req AskRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		if req.Model == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "model is required"})
			return
		}

		questions.Inc()
		start := time.Now()
		res := svc.Ask(r.Context(), answer.AskRequest{
			Manufacturer: req.Manufacturer,
			Model:        req.Model,
			Question:     req.Question,
			History:      req.History,
		})
		latency.Since(start)

		if res.Failed() {
			reg.Counter(metrics.WithLabels("medmanual_answers_failed_total", "kind", string(res.ErrorKind)),
				"Failed answers by kind").Inc()
			logger.Warn("answer failed", "kind", res.ErrorKind, "model", req.Model)
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// WarmRequest is the JSON body for POST /api/warm. All warms every manual in
// the catalog; otherwise manufacturer/model select one.
type WarmRequest struct {
	Manufacturer string `json:"manufacturer,omitempty"`
	Model        string `json:"model,omitempty"`
	All          bool   `json:"all,omitempty"`
}

func handleWarm(cat deviceCatalog, warm warmFunc, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req WarmRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}

		var refs []domain.ManualReference
		switch {
		case req.All:
			refs = cat.References()
		case req.Model != "":
			ref, ok := cat.Resolve(req.Manufacturer, req.Model)
			if !ok {
				writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown device"})
				return
			}
			refs = []domain.ManualReference{ref}
		default:
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "model or all is required"})
			return
		}

		scheduled := 0
		for _, ref := range refs {
			if err := warm(r.Context(), ref); err != nil {
				logger.Error("warm schedule failed", "model", ref.Model, "err", err)
				continue
			}
			scheduled++
		}
		writeJSON(w, http.StatusAccepted, map[string]int{"scheduled": scheduled})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
