package index

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/MedManualAI/medmanual-mvp/engine/domain"
	"github.com/MedManualAI/medmanual-mvp/engine/pdfdoc"
)

const (
	manifestFile = "manifest.json"
	chunksFile   = "chunks.jsonl"
	vectorsFile  = "vectors.f32"
)

// manifest describes one persisted index directory.
type manifest struct {
	Version    int    `json:"version"`
	CreatedAt  string `json:"created_at"`
	SourceHash string `json:"source_hash"`
	Dim        int    `json:"dim"`
	Count      int    `json:"count"`
	ChunkFile  string `json:"chunk_file"`
	VectorFile string `json:"vector_file"`
}

// DiskBackend persists indexes under <root>/<key>/ as a manifest, a JSONL
// chunk store, and a flat little-endian float32 vector file.
type DiskBackend struct {
	root string
}

// NewDiskBackend creates a disk backend rooted at dir.
func NewDiskBackend(dir string) *DiskBackend {
	return &DiskBackend{root: dir}
}

// Open loads a persisted index if the directory exists. A present but
// corrupt or inconsistent index surfaces as domain.ErrIndexLoadFailed.
func (b *DiskBackend) Open(_ context.Context, key string) (Index, bool, error) {
	dir := filepath.Join(b.root, key)
	if _, err := os.Stat(filepath.Join(dir, manifestFile)); err != nil {
		return nil, false, nil
	}

	idx, err := loadDir(dir)
	if err != nil {
		return nil, false, fmt.Errorf("index: load %s: %v: %w", dir, err, domain.ErrIndexLoadFailed)
	}
	return idx, true, nil
}

// Save writes the index to a temp directory and atomically swaps it in.
func (b *DiskBackend) Save(_ context.Context, key, sourceHash string, chunks []pdfdoc.Chunk, vectors [][]float32) (Index, error) {
	if len(chunks) == 0 || len(chunks) != len(vectors) {
		return nil, fmt.Errorf("index: save %s: %d chunks, %d vectors", key, len(chunks), len(vectors))
	}
	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("index: save %s: vector %d has dim %d, want %d", key, i, len(v), dim)
		}
	}

	dir := filepath.Join(b.root, key)
	tmp := dir + ".tmp"
	_ = os.RemoveAll(tmp)
	if err := os.MkdirAll(tmp, 0o755); err != nil {
		return nil, fmt.Errorf("index: mkdir %s: %w", tmp, err)
	}

	m := manifest{
		Version:    1,
		CreatedAt:  time.Now().UTC().Format(time.RFC3339),
		SourceHash: sourceHash,
		Dim:        dim,
		Count:      len(chunks),
		ChunkFile:  chunksFile,
		VectorFile: vectorsFile,
	}
	if err := writeDir(tmp, m, chunks, vectors); err != nil {
		_ = os.RemoveAll(tmp)
		return nil, err
	}

	_ = os.RemoveAll(dir)
	if err := os.Rename(tmp, dir); err != nil {
		_ = os.RemoveAll(tmp)
		return nil, fmt.Errorf("index: swap %s: %w", dir, err)
	}

	return &diskIndex{chunks: chunks, vectors: vectors, dim: dim}, nil
}

func writeDir(dir string, m manifest, chunks []pdfdoc.Chunk, vectors [][]float32) error {
	mb, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, manifestFile), mb, 0o644); err != nil {
		return fmt.Errorf("index: write manifest: %w", err)
	}

	cf, err := os.Create(filepath.Join(dir, m.ChunkFile))
	if err != nil {
		return fmt.Errorf("index: create chunk store: %w", err)
	}
	bw := bufio.NewWriter(cf)
	for _, c := range chunks {
		line, err := json.Marshal(c)
		if err != nil {
			cf.Close()
			return err
		}
		bw.Write(line)
		bw.WriteByte('\n')
	}
	if err := bw.Flush(); err != nil {
		cf.Close()
		return err
	}
	if err := cf.Close(); err != nil {
		return err
	}

	vf, err := os.Create(filepath.Join(dir, m.VectorFile))
	if err != nil {
		return fmt.Errorf("index: create vector store: %w", err)
	}
	vw := bufio.NewWriter(vf)
	for _, vec := range vectors {
		if err := binary.Write(vw, binary.LittleEndian, vec); err != nil {
			vf.Close()
			return err
		}
	}
	if err := vw.Flush(); err != nil {
		vf.Close()
		return err
	}
	return vf.Close()
}

func loadDir(dir string) (*diskIndex, error) {
	mb, err := os.ReadFile(filepath.Join(dir, manifestFile))
	if err != nil {
		return nil, err
	}
	var m manifest
	if err := json.Unmarshal(mb, &m); err != nil {
		return nil, fmt.Errorf("manifest: %w", err)
	}
	if m.Dim <= 0 || m.Count <= 0 {
		return nil, fmt.Errorf("manifest: invalid dim=%d count=%d", m.Dim, m.Count)
	}

	cf, err := os.Open(filepath.Join(dir, m.ChunkFile))
	if err != nil {
		return nil, err
	}
	defer cf.Close()

	chunks := make([]pdfdoc.Chunk, 0, m.Count)
	sc := bufio.NewScanner(cf)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		var c pdfdoc.Chunk
		if err := json.Unmarshal(sc.Bytes(), &c); err != nil {
			return nil, fmt.Errorf("chunk store: %w", err)
		}
		chunks = append(chunks, c)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(chunks) != m.Count {
		return nil, fmt.Errorf("chunk store: %d entries, manifest says %d", len(chunks), m.Count)
	}

	raw, err := os.ReadFile(filepath.Join(dir, m.VectorFile))
	if err != nil {
		return nil, err
	}
	want := m.Count * m.Dim * 4
	if len(raw) != want {
		return nil, fmt.Errorf("vector store: %d bytes, want %d", len(raw), want)
	}
	vectors := make([][]float32, m.Count)
	for i := 0; i < m.Count; i++ {
		vec := make([]float32, m.Dim)
		for j := 0; j < m.Dim; j++ {
			off := (i*m.Dim + j) * 4
			vec[j] = math.Float32frombits(binary.LittleEndian.Uint32(raw[off : off+4]))
		}
		vectors[i] = vec
	}

	return &diskIndex{chunks: chunks, vectors: vectors, dim: m.Dim}, nil
}

// diskIndex is a fully in-memory index backed by the persisted files.
type diskIndex struct {
	chunks  []pdfdoc.Chunk
	vectors [][]float32
	dim     int
}

// Search scores every chunk against the query vector. Stored vectors are
// unit-length, so the score is a clamped dot product.
func (d *diskIndex) Search(_ context.Context, vector []float32, topK int) ([]domain.RetrievedPassage, error) {
	if len(vector) != d.dim {
		return nil, fmt.Errorf("index: query dim %d, index dim %d", len(vector), d.dim)
	}
	if topK <= 0 {
		return nil, nil
	}

	q := normalizeL2(vector)
	type scored struct {
		i     int
		score float64
	}
	hits := make([]scored, len(d.vectors))
	for i, v := range d.vectors {
		var dot float64
		for j := range v {
			dot += float64(v[j]) * float64(q[j])
		}
		if dot < 0 {
			dot = 0
		} else if dot > 1 {
			dot = 1
		}
		hits[i] = scored{i: i, score: dot}
	}
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].score > hits[b].score })

	if topK > len(hits) {
		topK = len(hits)
	}
	out := make([]domain.RetrievedPassage, topK)
	for i := 0; i < topK; i++ {
		c := d.chunks[hits[i].i]
		out[i] = domain.RetrievedPassage{
			Text:      c.Text,
			Score:     hits[i].score,
			PageLabel: c.PageLabel,
		}
	}
	return out, nil
}
