package pdfdoc

import (
	"strings"
	"testing"
)

func TestSplitSentences(t *testing.T) {
	text := "Prime the line before use. Check for air bubbles!\nIs the clamp open? Confirm"
	got := splitSentences(text)
	want := []string{
		"Prime the line before use.",
		"Check for air bubbles!",
		"Is the clamp open?",
		"Confirm",
	}
	if len(got) != len(want) {
		t.Fatalf("got %d sentences %v, want %d", len(got), got, len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sentence %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSplitSentences_AbbreviationNotSplit(t *testing.T) {
	// A period followed by a non-space rune is not a sentence end.
	got := splitSentences("Set rate to 2.5 mL/h.")
	if len(got) != 1 {
		t.Fatalf("got %v, want a single sentence", got)
	}
}

func TestChunkPages_NeverSpansPages(t *testing.T) {
	pages := []Page{
		{Label: "1", Text: "Alpha one. Alpha two."},
		{Label: "2", Text: "Beta one. Beta two."},
	}
	chunks := ChunkPages(pages, 3, 0)
	if len(chunks) < 2 {
		t.Fatalf("expected at least one chunk per page, got %d", len(chunks))
	}
	for _, c := range chunks {
		if strings.Contains(c.Text, "Alpha") && strings.Contains(c.Text, "Beta") {
			t.Errorf("chunk mixes pages: %q", c.Text)
		}
		if c.PageLabel != "1" && c.PageLabel != "2" {
			t.Errorf("unexpected page label %q", c.PageLabel)
		}
	}
}

func TestChunkPages_SequentialIndexes(t *testing.T) {
	pages := []Page{
		{Label: "1", Text: strings.Repeat("Sentence with several words in it. ", 20)},
		{Label: "2", Text: "Short page."},
	}
	chunks := ChunkPages(pages, 20, 5)
	for i, c := range chunks {
		if c.Index != i {
			t.Fatalf("chunk %d has index %d", i, c.Index)
		}
	}
}

func TestGroupSentences_OverlapProgress(t *testing.T) {
	// Overlap larger than chunk size must still terminate.
	sentences := []string{"one two three", "four five six", "seven eight nine"}
	got := groupSentences(sentences, 3, 100)
	if len(got) == 0 {
		t.Fatal("no chunks produced")
	}
	if len(got) > len(sentences) {
		t.Fatalf("runaway chunking: %d chunks from %d sentences", len(got), len(sentences))
	}
}

func TestGroupSentences_Empty(t *testing.T) {
	if got := groupSentences(nil, 10, 2); got != nil {
		t.Errorf("expected nil, got %v", got)
	}
}
