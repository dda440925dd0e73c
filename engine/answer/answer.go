// Package answer orchestrates the retrieval-answer pipeline. It accepts a
// device identifier, a question, and optional conversation history, resolves
// and indexes the device manual, retrieves the best-matching passages, builds
// a grounded prompt, calls the text-generation model, and assembles a
// structured result with sources, confidence, and manual figures.
package answer

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/MedManualAI/medmanual-mvp/engine/domain"
	"github.com/MedManualAI/medmanual-mvp/engine/index"
	"github.com/MedManualAI/medmanual-mvp/pkg/fn"
)

const (
	// DefaultTopK passages ground each answer.
	DefaultTopK = 3
	// MaxSourceChars bounds the display text of one source in the response
	// payload. The full chunk text still feeds generation.
	MaxSourceChars = 500
	// MaxImages caps figures attached to one answer.
	MaxImages = 5
)

// Resolver maps a device to its manual reference.
type Resolver interface {
	Resolve(manufacturer, model string) (domain.ManualReference, bool)
}

// Fetcher makes a manual's bytes available locally.
type Fetcher interface {
	Ensure(ctx context.Context, ref domain.ManualReference) (string, error)
}

// IndexStore resolves a manual path to a searchable index.
type IndexStore interface {
	GetOrBuild(ctx context.Context, pdfPath string) (index.Index, error)
}

// Generator produces a completion for an assembled prompt.
type Generator interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// ImageSource returns cached manual figures for a set of page labels.
// Failures never propagate; an empty slice is always a valid outcome.
type ImageSource interface {
	ForPages(ctx context.Context, pdfPath string, pages []string) []domain.ImageRecord
}

// ImageWarmer is implemented by image sources that can pre-extract a whole
// document.
type ImageWarmer interface {
	Warm(ctx context.Context, pdfPath string) error
}

// Options configures the pipeline.
type Options struct {
	TopK      int
	MaxImages int
}

// Service is the retrieval-answer pipeline. All collaborators are injected at
// construction; the Service itself holds no hidden state and is safe for
// concurrent use.
type Service struct {
	catalog Resolver
	fetch   Fetcher
	indexes IndexStore
	embed   index.Embedder
	gen     Generator
	images  ImageSource
	opts    Options
	logger  *slog.Logger
}

// New creates a Service. images may be nil when figure lookup is disabled.
func New(catalog Resolver, fetch Fetcher, indexes IndexStore, embed index.Embedder, gen Generator, images ImageSource, opts Options, logger *slog.Logger) *Service {
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if opts.MaxImages <= 0 {
		opts.MaxImages = MaxImages
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		catalog: catalog,
		fetch:   fetch,
		indexes: indexes,
		embed:   embed,
		gen:     gen,
		images:  images,
		opts:    opts,
		logger:  logger,
	}
}

// AskRequest is one question about one device.
type AskRequest struct {
	Manufacturer string
	Model        string
	Question     string
	History      []domain.ConversationTurn
}

// Ask runs the full pipeline. It never returns a Go error: every failure is
// folded into the result as an ErrorKind plus a human-readable explanation,
// so the serving layer can always render something.
func (s *Service) Ask(ctx context.Context, req AskRequest) domain.AnswerResult {
	if err := domain.ValidateQuestion(req.Question); err != nil {
		return failure(err)
	}
	if err := domain.ValidateHistory(req.History); err != nil {
		return failure(err)
	}

	ref, ok := s.catalog.Resolve(req.Manufacturer, req.Model)
	if !ok {
		s.logger.Info("no manual for device", "manufacturer", req.Manufacturer, "model", req.Model)
		return domain.AnswerResult{
			Error:     fmt.Sprintf("No manual found for %s %s. Chat is not available for this device.", req.Manufacturer, req.Model),
			ErrorKind: domain.ErrorKindManualNotFound,
			Sources:   []domain.RetrievedPassage{},
			Images:    []domain.ImageRecord{},
		}
	}

	path, err := s.fetch.Ensure(ctx, ref)
	if err != nil {
		return failure(err)
	}

	return s.answerFrom(ctx, path, req.Question, req.History)
}

// Warm fetches, indexes, and image-extracts one manual ahead of questions.
// Unlike Ask it returns the error: warm callers want to know what failed.
func (s *Service) Warm(ctx context.Context, ref domain.ManualReference) error {
	path, err := s.fetch.Ensure(ctx, ref)
	if err != nil {
		return err
	}
	if _, err := s.indexes.GetOrBuild(ctx, path); err != nil {
		return err
	}
	if w, ok := s.images.(ImageWarmer); ok {
		if err := w.Warm(ctx, path); err != nil {
			return err
		}
	}
	s.logger.Info("manual warmed", "manufacturer", ref.Manufacturer, "model", ref.Model, "path", path)
	return nil
}

// answerFrom answers a question against one already-local manual.
func (s *Service) answerFrom(ctx context.Context, pdfPath, question string, history []domain.ConversationTurn) domain.AnswerResult {
	idx, err := s.indexes.GetOrBuild(ctx, pdfPath)
	if err != nil {
		return failure(err)
	}

	// Retrieval always embeds the current question alone. Mixing history into
	// the query vector lets a topic shift in a follow-up poison retrieval.
	qvec, err := s.embed.Embed(ctx, question)
	if err != nil {
		return failure(fmt.Errorf("answer: embed question: %v: %w", err, domain.ErrGenerationFailed))
	}

	passages, err := idx.Search(ctx, qvec, s.opts.TopK)
	if err != nil {
		return failure(fmt.Errorf("answer: search: %v: %w", err, domain.ErrGenerationFailed))
	}

	prompt := buildPrompt(passages, history, question)
	text, err := s.gen.Complete(ctx, prompt)
	if err != nil {
		return failure(fmt.Errorf("answer: generate: %v: %w", err, domain.ErrGenerationFailed))
	}

	sources := make([]domain.RetrievedPassage, len(passages))
	var total float64
	for i, p := range passages {
		total += p.Score
		sources[i] = domain.RetrievedPassage{
			Text:      truncate(p.Text, MaxSourceChars),
			Score:     round3(p.Score),
			PageLabel: p.PageLabel,
		}
	}
	confidence := 0.0
	if len(passages) > 0 {
		confidence = round3(total / float64(len(passages)))
	}

	s.logger.Info("answer generated",
		"path", pdfPath, "sources", len(sources), "confidence", confidence)

	return domain.AnswerResult{
		Answer:     text,
		Sources:    sources,
		Confidence: confidence,
		Images:     s.collectImages(ctx, pdfPath, sources),
	}
}

// collectImages gathers figures from the pages the sources cite. This step
// must never fail the answer: any extraction problem yields an empty list.
func (s *Service) collectImages(ctx context.Context, pdfPath string, sources []domain.RetrievedPassage) []domain.ImageRecord {
	if s.images == nil {
		return []domain.ImageRecord{}
	}
	pages := fn.Unique(fn.FilterMap(sources, func(p domain.RetrievedPassage) (string, bool) {
		return p.PageLabel, p.PageLabel != ""
	}))
	if len(pages) == 0 {
		return []domain.ImageRecord{}
	}

	records := s.images.ForPages(ctx, pdfPath, pages)
	if len(records) > s.opts.MaxImages {
		records = records[:s.opts.MaxImages]
	}
	if records == nil {
		records = []domain.ImageRecord{}
	}
	return records
}

// failure folds an error into a structured no-answer result.
func failure(err error) domain.AnswerResult {
	return domain.AnswerResult{
		Error:     fmt.Sprintf("Error processing question: %v", err),
		ErrorKind: domain.KindOf(err),
		Sources:   []domain.RetrievedPassage{},
		Images:    []domain.ImageRecord{},
	}
}

// truncate cuts display text at max characters, marking the cut with an
// ellipsis.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
