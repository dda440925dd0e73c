package pdfdoc

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDocKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Fabius GS User-Manual (v2).pdf")
	if err := os.WriteFile(path, []byte("%PDF-stub"), 0o644); err != nil {
		t.Fatal(err)
	}

	key, err := DocKey(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(key, "fabius_gs_user-manual_v2-") {
		t.Errorf("key %q lacks sanitized base prefix", key)
	}
	hash := strings.TrimPrefix(key, "fabius_gs_user-manual_v2-")
	if len(hash) != 12 {
		t.Errorf("key hash suffix %q, want 12 hex digits", hash)
	}

	// Stable across calls on unchanged content.
	again, err := DocKey(path)
	if err != nil {
		t.Fatal(err)
	}
	if again != key {
		t.Errorf("key not stable: %q then %q", key, again)
	}
}

func TestDocKey_MissingFile(t *testing.T) {
	if _, err := DocKey(filepath.Join(t.TempDir(), "nope.pdf")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
