// Package images extracts and caches embedded raster images from manual PDFs,
// keyed by page, for display alongside answers.
package images

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"golang.org/x/sync/singleflight"

	"github.com/MedManualAI/medmanual-mvp/engine/domain"
	"github.com/MedManualAI/medmanual-mvp/engine/pdfdoc"
)

const (
	// DefaultMinWidth and DefaultMinHeight filter decorative noise: icons,
	// bullets, logos.
	DefaultMinWidth  = 100
	DefaultMinHeight = 100

	indexFile = "index.json"
)

// imageInfo is one entry in the persisted page index.
type imageInfo struct {
	Filename string `json:"filename"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

// pageIndex maps page label → surviving images, the persisted index.json shape.
type pageIndex map[string][]imageInfo

// Options configures an Extractor.
type Options struct {
	MinWidth  int
	MinHeight int
	URLPrefix string // public path prefix for served images, e.g. "/manual_images"
}

// Extractor extracts images once per document and serves per-page lookups
// from the persisted index afterwards.
type Extractor struct {
	root   string
	opts   Options
	logger *slog.Logger
	group  singleflight.Group
}

// New creates an Extractor writing caches under root.
func New(root string, opts Options, logger *slog.Logger) *Extractor {
	if opts.MinWidth <= 0 {
		opts.MinWidth = DefaultMinWidth
	}
	if opts.MinHeight <= 0 {
		opts.MinHeight = DefaultMinHeight
	}
	if opts.URLPrefix == "" {
		opts.URLPrefix = "/manual_images"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{root: root, opts: opts, logger: logger}
}

// ForPages returns cached images for the requested page labels, in input page
// order. Extraction failures never propagate: on any error the result is
// simply empty. Pages with no surviving images contribute nothing.
func (e *Extractor) ForPages(ctx context.Context, pdfPath string, pages []string) []domain.ImageRecord {
	if len(pages) == 0 {
		return nil
	}

	key, idx, err := e.indexFor(ctx, pdfPath)
	if err != nil {
		e.logger.Warn("image extraction failed", "path", pdfPath, "err", err)
		return nil
	}

	var out []domain.ImageRecord
	for _, page := range pages {
		for _, info := range idx[page] {
			out = append(out, domain.ImageRecord{
				URL:       e.opts.URLPrefix + "/" + key + "/" + info.Filename,
				Filename:  info.Filename,
				Width:     info.Width,
				Height:    info.Height,
				PageLabel: page,
			})
		}
	}
	return out
}

// Warm runs the one-time extraction pass ahead of the first question so the
// first answer does not pay for it.
func (e *Extractor) Warm(ctx context.Context, pdfPath string) error {
	_, _, err := e.indexFor(ctx, pdfPath)
	return err
}

// indexFor loads the persisted page index, running the one-time extraction
// pass when none exists. Concurrent first calls collapse into one pass.
func (e *Extractor) indexFor(ctx context.Context, pdfPath string) (string, pageIndex, error) {
	key, err := pdfdoc.DocKey(pdfPath)
	if err != nil {
		return "", nil, err
	}

	type keyed struct {
		idx pageIndex
	}
	v, err, _ := e.group.Do(key, func() (any, error) {
		dir := filepath.Join(e.root, key)
		if idx, err := loadIndex(dir); err == nil {
			return keyed{idx}, nil
		}
		idx, err := e.extractAll(ctx, pdfPath, dir)
		if err != nil {
			return nil, err
		}
		return keyed{idx}, nil
	})
	if err != nil {
		return "", nil, err
	}
	return key, v.(keyed).idx, nil
}

// extractAll performs the full-document pass: pdfcpu dumps every embedded
// image into a staging directory, then each candidate is measured, filtered
// against the minimum size, and renamed to its deterministic cache name.
// Per-image failures skip that image and continue.
func (e *Extractor) extractAll(ctx context.Context, pdfPath, dir string) (pageIndex, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	staging := dir + ".staging"
	_ = os.RemoveAll(staging)
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return nil, fmt.Errorf("images: mkdir staging: %w", err)
	}
	defer os.RemoveAll(staging)

	if err := api.ExtractImagesFile(pdfPath, staging, nil, nil); err != nil {
		return nil, fmt.Errorf("images: extract %s: %w", pdfPath, err)
	}

	tmp := dir + ".tmp"
	_ = os.RemoveAll(tmp)
	if err := os.MkdirAll(tmp, 0o755); err != nil {
		return nil, fmt.Errorf("images: mkdir cache: %w", err)
	}

	base := strings.TrimSuffix(filepath.Base(pdfPath), filepath.Ext(pdfPath))
	idx, err := e.collect(staging, base, tmp)
	if err != nil {
		_ = os.RemoveAll(tmp)
		return nil, err
	}

	if err := saveIndex(tmp, idx); err != nil {
		_ = os.RemoveAll(tmp)
		return nil, err
	}
	_ = os.RemoveAll(dir)
	if err := os.Rename(tmp, dir); err != nil {
		_ = os.RemoveAll(tmp)
		return nil, fmt.Errorf("images: swap cache: %w", err)
	}

	e.logger.Info("images extracted", "path", pdfPath, "pages", len(idx))
	return idx, nil
}

// collect filters staged candidates against the minimum size and moves the
// survivors into the cache directory under their deterministic names.
func (e *Extractor) collect(staging, base, dest string) (pageIndex, error) {
	entries, err := os.ReadDir(staging)
	if err != nil {
		return nil, fmt.Errorf("images: read staging: %w", err)
	}

	idx := make(pageIndex)
	perPage := make(map[string]int)

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		page, ext, ok := parseExtractName(base, entry.Name())
		if !ok {
			continue
		}

		src := filepath.Join(staging, entry.Name())
		w, h, err := measure(src)
		if err != nil {
			e.logger.Warn("skipping unreadable image", "file", entry.Name(), "err", err)
			continue
		}
		if w < e.opts.MinWidth || h < e.opts.MinHeight {
			continue
		}

		name := fmt.Sprintf("page_%s_img_%d.%s", page, perPage[page], ext)
		perPage[page]++
		if err := os.Rename(src, filepath.Join(dest, name)); err != nil {
			e.logger.Warn("skipping image", "file", entry.Name(), "err", err)
			continue
		}
		idx[page] = append(idx[page], imageInfo{Filename: name, Width: w, Height: h})
	}
	return idx, nil
}

// parseExtractName decodes pdfcpu staging names, <base>_<page>_<name>.<ext>,
// into the page label and extension. The page label is the 1-indexed page
// number with any zero padding dropped.
func parseExtractName(base, name string) (page, ext string, ok bool) {
	rest, found := strings.CutPrefix(name, base+"_")
	if !found {
		return "", "", false
	}
	digits, tail, found := strings.Cut(rest, "_")
	if !found {
		return "", "", false
	}
	n, err := strconv.Atoi(digits)
	if err != nil || n <= 0 {
		return "", "", false
	}
	ext = strings.TrimPrefix(filepath.Ext(tail), ".")
	if ext == "" {
		return "", "", false
	}
	return strconv.Itoa(n), strings.ToLower(ext), true
}

// measure decodes just the image header for its dimensions.
func measure(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}

func saveIndex(dir string, idx pageIndex) error {
	b, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, indexFile), b, 0o644); err != nil {
		return fmt.Errorf("images: write index: %w", err)
	}
	return nil
}

func loadIndex(dir string) (pageIndex, error) {
	b, err := os.ReadFile(filepath.Join(dir, indexFile))
	if err != nil {
		return nil, err
	}
	var idx pageIndex
	if err := json.Unmarshal(b, &idx); err != nil {
		return nil, err
	}
	return idx, nil
}
