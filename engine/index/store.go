// Package index builds and persists a semantic index over one manual's text,
// or loads a previously built one. Indexes are keyed by the manual's base
// filename plus a content hash, so two different documents never alias and a
// changed source PDF can never be served from a stale index.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"golang.org/x/sync/singleflight"

	"github.com/MedManualAI/medmanual-mvp/engine/domain"
	"github.com/MedManualAI/medmanual-mvp/engine/pdfdoc"
	"github.com/MedManualAI/medmanual-mvp/pkg/fn"
)

// Embedder turns text into a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Index answers similarity queries over one manual.
type Index interface {
	// Search returns the topK closest chunks for a query vector, scores in
	// [0,1], best first.
	Search(ctx context.Context, vector []float32, topK int) ([]domain.RetrievedPassage, error)
}

// Backend persists and loads indexes by cache key.
type Backend interface {
	// Open loads a persisted index. ok is false when none exists; a present
	// but unreadable index is an error (domain.ErrIndexLoadFailed).
	Open(ctx context.Context, key string) (idx Index, ok bool, err error)
	// Save persists chunks with their vectors and returns the live index.
	Save(ctx context.Context, key string, sourceHash string, chunks []pdfdoc.Chunk, vectors [][]float32) (Index, error)
}

// Options configures index building.
type Options struct {
	ChunkSize int // target tokens per chunk
	Overlap   int // overlapping tokens between chunks
	Workers   int // concurrent embedding calls
}

// Store resolves a manual path to a searchable index, building on first use.
type Store struct {
	reader  pdfdoc.Reader
	embed   Embedder
	backend Backend
	opts    Options
	logger  *slog.Logger
	group   singleflight.Group
}

// NewStore creates a Store.
func NewStore(reader pdfdoc.Reader, embed Embedder, backend Backend, opts Options, logger *slog.Logger) *Store {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = pdfdoc.DefaultChunkSize
	}
	if opts.Overlap < 0 {
		opts.Overlap = pdfdoc.DefaultOverlap
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{reader: reader, embed: embed, backend: backend, opts: opts, logger: logger}
}

// GetOrBuild returns the index for a manual, loading the persisted form when
// present and building it otherwise. Concurrent calls for the same manual are
// collapsed into one build.
func (s *Store) GetOrBuild(ctx context.Context, pdfPath string) (Index, error) {
	key, err := pdfdoc.DocKey(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("index: key for %s: %v: %w", pdfPath, err, domain.ErrIndexLoadFailed)
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		idx, ok, err := s.backend.Open(ctx, key)
		if err != nil {
			return nil, err
		}
		if ok {
			s.logger.Info("loaded persisted index", "key", key)
			return idx, nil
		}
		return s.build(ctx, key, pdfPath)
	})
	if err != nil {
		return nil, err
	}
	return v.(Index), nil
}

// build parses, chunks, embeds, and persists one manual. Blocking; cost is
// proportional to document size and embedding latency.
func (s *Store) build(ctx context.Context, key, pdfPath string) (Index, error) {
	s.logger.Info("building index", "key", key, "path", pdfPath)

	pages, err := s.reader.ReadPages(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("index: parse: %v: %w", err, domain.ErrIndexBuildFailed)
	}

	chunks := pdfdoc.ChunkPages(pages, s.opts.ChunkSize, s.opts.Overlap)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("index: %s produced no chunks: %w", pdfPath, domain.ErrIndexBuildFailed)
	}

	retry := fn.RetryOpts{MaxAttempts: 2, InitialWait: fn.DefaultRetry.InitialWait, MaxWait: fn.DefaultRetry.MaxWait, Jitter: true}
	results := fn.ParMapResult(chunks, s.opts.Workers, func(c pdfdoc.Chunk) fn.Result[[]float32] {
		return fn.Retry(ctx, retry, func(ctx context.Context) fn.Result[[]float32] {
			return fn.FromPair(s.embed.Embed(ctx, c.Text))
		})
	})
	vectors, err := fn.Collect(results).Unwrap()
	if err != nil {
		return nil, fmt.Errorf("index: embed chunks: %v: %w", err, domain.ErrIndexBuildFailed)
	}
	for i := range vectors {
		vectors[i] = normalizeL2(vectors[i])
	}

	hash, err := pdfdoc.FileHash(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("index: hash: %v: %w", err, domain.ErrIndexBuildFailed)
	}

	idx, err := s.backend.Save(ctx, key, hash, chunks, vectors)
	if err != nil {
		return nil, fmt.Errorf("index: persist: %v: %w", err, domain.ErrIndexBuildFailed)
	}
	s.logger.Info("index built", "key", key, "chunks", len(chunks))
	return idx, nil
}

// normalizeL2 scales v to unit length so cosine similarity reduces to a dot
// product at query time.
func normalizeL2(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	n := math.Sqrt(sum)
	if n == 0 {
		return v
	}
	inv := float32(1.0 / n)
	out := make([]float32, len(v))
	for i := range v {
		out[i] = v[i] * inv
	}
	return out
}
