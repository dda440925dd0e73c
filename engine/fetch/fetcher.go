// Package fetch ensures a manual's bytes are available locally, downloading
// from the remote source on first use.
package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/MedManualAI/medmanual-mvp/engine/domain"
)

// DefaultTimeout bounds one manual download end to end.
const DefaultTimeout = 60 * time.Second

// Fetcher resolves manual references to local files.
type Fetcher struct {
	client    *http.Client
	userAgent string
	logger    *slog.Logger
}

// Options configures a Fetcher.
type Options struct {
	Timeout   time.Duration
	UserAgent string
}

// New creates a Fetcher. The HTTP client is traced via otelhttp.
func New(opts Options, logger *slog.Logger) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "medmanual-fetcher/1.0"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		userAgent: opts.UserAgent,
		logger:    logger,
	}
}

// Ensure returns the local path for a manual, downloading it if absent.
// An existing file is a pure cache hit; no re-download, no revalidation.
// Returns domain.ErrManualNotFound when there is nothing to fetch and
// domain.ErrFetchFailed (wrapping the cause) when a download fails.
func (f *Fetcher) Ensure(ctx context.Context, ref domain.ManualReference) (string, error) {
	if !ref.Indexable() {
		return "", fmt.Errorf("fetch: %s %s has no local path: %w", ref.Manufacturer, ref.Model, domain.ErrManualNotFound)
	}

	if _, err := os.Stat(ref.LocalPath); err == nil {
		return ref.LocalPath, nil
	}

	if ref.RemoteURL == "" {
		return "", fmt.Errorf("fetch: %s missing and no remote source: %w", ref.LocalPath, domain.ErrManualNotFound)
	}

	f.logger.Info("downloading manual", "url", ref.RemoteURL, "dest", ref.LocalPath)
	if err := f.download(ctx, ref.RemoteURL, ref.LocalPath); err != nil {
		return "", fmt.Errorf("fetch: %s: %v: %w", ref.RemoteURL, err, domain.ErrFetchFailed)
	}
	return ref.LocalPath, nil
}

// download streams the remote document to localPath via a .part file that is
// renamed into place only after the PDF magic check passes.
func (f *Fetcher) download(ctx context.Context, url, localPath string) error {
	if dir := filepath.Dir(localPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("http status %d", resp.StatusCode)
	}

	partPath := localPath + ".part"
	out, err := os.OpenFile(partPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open file: %w", err)
	}

	n, err := io.Copy(out, resp.Body)
	closeErr := out.Close()
	if err != nil {
		os.Remove(partPath)
		return fmt.Errorf("write file: %w", err)
	}
	if closeErr != nil {
		os.Remove(partPath)
		return fmt.Errorf("close file: %w", closeErr)
	}

	if err := verifyPDF(partPath); err != nil {
		os.Remove(partPath)
		return err
	}

	if err := os.Rename(partPath, localPath); err != nil {
		os.Remove(partPath)
		return fmt.Errorf("rename: %w", err)
	}

	f.logger.Info("manual downloaded", "dest", localPath, "bytes", n)
	return nil
}

// verifyPDF checks that the file starts with %PDF.
func verifyPDF(path string) error {
	fh, err := os.Open(path)
	if err != nil {
		return err
	}
	defer fh.Close()

	header := make([]byte, 5)
	n, err := fh.Read(header)
	if err != nil || n < 4 {
		return fmt.Errorf("cannot read PDF header")
	}
	if string(header[:4]) != "%PDF" {
		return fmt.Errorf("not a valid PDF file")
	}
	return nil
}
