package index

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/MedManualAI/medmanual-mvp/engine/domain"
	"github.com/MedManualAI/medmanual-mvp/engine/pdfdoc"
)

// --- fakes ---

type fakeReader struct {
	pages []pdfdoc.Page
	err   error
	calls atomic.Int64
}

func (f *fakeReader) ReadPages(string) ([]pdfdoc.Page, error) {
	f.calls.Add(1)
	return f.pages, f.err
}

// fakeEmbedder maps known texts to fixed vectors; unknown texts get a default.
type fakeEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float32
	calls   int
	err     error
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return []float32{0.1, 0.1, 0.1}, nil
}

func (f *fakeEmbedder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func writePDFStub(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func testStore(t *testing.T, reader pdfdoc.Reader, embed Embedder) *Store {
	t.Helper()
	backend := NewDiskBackend(filepath.Join(t.TempDir(), "vector_indexes"))
	return NewStore(reader, embed, backend, Options{ChunkSize: 8, Overlap: 0, Workers: 2}, nil)
}

// --- tests ---

func TestGetOrBuild_BuildsOnceThenLoads(t *testing.T) {
	reader := &fakeReader{pages: []pdfdoc.Page{
		{Label: "1", Text: "Prime the line. Open the clamp."},
		{Label: "2", Text: "Silence the alarm."},
	}}
	embed := &fakeEmbedder{}
	s := testStore(t, reader, embed)
	pdf := writePDFStub(t, t.TempDir(), "pump.pdf", "%PDF-stub")

	if _, err := s.GetOrBuild(context.Background(), pdf); err != nil {
		t.Fatalf("first build: %v", err)
	}
	built := embed.callCount()
	if built == 0 {
		t.Fatal("expected embedding calls during build")
	}

	if _, err := s.GetOrBuild(context.Background(), pdf); err != nil {
		t.Fatalf("second call: %v", err)
	}
	if embed.callCount() != built {
		t.Errorf("second call re-embedded: %d calls, want %d", embed.callCount(), built)
	}
	if got := reader.calls.Load(); got != 1 {
		t.Errorf("document parsed %d times, want 1", got)
	}
}

func TestGetOrBuild_SearchOrdering(t *testing.T) {
	reader := &fakeReader{pages: []pdfdoc.Page{
		{Label: "3", Text: "Priming instructions here."},
		{Label: "7", Text: "Cleaning instructions here."},
	}}
	embed := &fakeEmbedder{vectors: map[string][]float32{
		"Priming instructions here.":  {1, 0, 0},
		"Cleaning instructions here.": {0, 1, 0},
	}}
	s := testStore(t, reader, embed)
	pdf := writePDFStub(t, t.TempDir(), "pump.pdf", "%PDF-stub")

	idx, err := s.GetOrBuild(context.Background(), pdf)
	if err != nil {
		t.Fatal(err)
	}

	// Query close to the priming vector.
	hits, err := idx.Search(context.Background(), []float32{0.9, 0.1, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 {
		t.Fatalf("got %d hits, want 2", len(hits))
	}
	if hits[0].PageLabel != "3" {
		t.Errorf("best hit page %q, want 3", hits[0].PageLabel)
	}
	if hits[0].Score <= hits[1].Score {
		t.Errorf("hits not ordered: %v then %v", hits[0].Score, hits[1].Score)
	}
	for _, h := range hits {
		if h.Score < 0 || h.Score > 1 {
			t.Errorf("score %v out of [0,1]", h.Score)
		}
	}
}

func TestGetOrBuild_ChangedFileGetsNewKey(t *testing.T) {
	dir := t.TempDir()
	a := writePDFStub(t, dir, "manual.pdf", "%PDF-v1")
	keyA, err := pdfdoc.DocKey(a)
	if err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(a, []byte("%PDF-v2 changed"), 0o644); err != nil {
		t.Fatal(err)
	}
	keyB, err := pdfdoc.DocKey(a)
	if err != nil {
		t.Fatal(err)
	}
	if keyA == keyB {
		t.Error("cache key must change when content changes")
	}
}

func TestDocKey_SameNameDifferentContentNoCollision(t *testing.T) {
	d1, d2 := t.TempDir(), t.TempDir()
	a := writePDFStub(t, d1, "manual.pdf", "%PDF-alpha")
	b := writePDFStub(t, d2, "manual.pdf", "%PDF-beta")

	ka, err := pdfdoc.DocKey(a)
	if err != nil {
		t.Fatal(err)
	}
	kb, err := pdfdoc.DocKey(b)
	if err != nil {
		t.Fatal(err)
	}
	if ka == kb {
		t.Error("same filename with different bytes must not share a key")
	}
}

func TestGetOrBuild_ConcurrentBuildsCollapse(t *testing.T) {
	reader := &fakeReader{pages: []pdfdoc.Page{{Label: "1", Text: "One sentence."}}}
	embed := &fakeEmbedder{}
	s := testStore(t, reader, embed)
	pdf := writePDFStub(t, t.TempDir(), "pump.pdf", "%PDF-stub")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.GetOrBuild(context.Background(), pdf); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	if got := reader.calls.Load(); got != 1 {
		t.Errorf("document parsed %d times under concurrency, want 1", got)
	}
}

func TestGetOrBuild_EmbedFailureIsBuildFailure(t *testing.T) {
	reader := &fakeReader{pages: []pdfdoc.Page{{Label: "1", Text: "One sentence."}}}
	embed := &fakeEmbedder{err: errors.New("provider down")}
	s := testStore(t, reader, embed)
	pdf := writePDFStub(t, t.TempDir(), "pump.pdf", "%PDF-stub")

	_, err := s.GetOrBuild(context.Background(), pdf)
	if !errors.Is(err, domain.ErrIndexBuildFailed) {
		t.Fatalf("got %v, want ErrIndexBuildFailed", err)
	}
}

func TestGetOrBuild_ParseFailureIsBuildFailure(t *testing.T) {
	reader := &fakeReader{err: errors.New("garbled xref")}
	s := testStore(t, reader, &fakeEmbedder{})
	pdf := writePDFStub(t, t.TempDir(), "pump.pdf", "%PDF-stub")

	_, err := s.GetOrBuild(context.Background(), pdf)
	if !errors.Is(err, domain.ErrIndexBuildFailed) {
		t.Fatalf("got %v, want ErrIndexBuildFailed", err)
	}
}
