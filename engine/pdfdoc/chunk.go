package pdfdoc

import (
	"strings"
	"unicode"
)

const (
	// DefaultChunkSize is the target number of tokens per chunk.
	DefaultChunkSize = 512
	// DefaultOverlap is the number of overlapping tokens between chunks.
	DefaultOverlap = 50
)

// Chunk is a contiguous span of one page's text, the retrieval unit.
type Chunk struct {
	Text      string `json:"text"`
	PageLabel string `json:"page"`
	Index     int    `json:"index"`
}

// ChunkPages splits each page into sentence-grouped chunks. Chunks never span
// pages so every chunk keeps an unambiguous page label. Index numbers chunks
// across the whole document.
func ChunkPages(pages []Page, chunkSize, overlap int) []Chunk {
	var chunks []Chunk
	for _, pg := range pages {
		sentences := splitSentences(pg.Text)
		for _, text := range groupSentences(sentences, chunkSize, overlap) {
			chunks = append(chunks, Chunk{
				Text:      text,
				PageLabel: pg.Label,
				Index:     len(chunks),
			})
		}
	}
	return chunks
}

// splitSentences splits text into sentences using punctuation and newlines.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	for i, r := range text {
		current.WriteRune(r)
		if r == '.' || r == '!' || r == '?' || r == '\n' {
			if r == '\n' || i == len(text)-1 || (i+1 < len(text) && unicode.IsSpace(rune(text[i+1]))) {
				s := strings.TrimSpace(current.String())
				if s != "" {
					sentences = append(sentences, s)
				}
				current.Reset()
			}
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

// groupSentences packs sentences into ~chunkSize-token groups with overlap.
// Token count is approximated as word count.
func groupSentences(sentences []string, chunkSize, overlap int) []string {
	if len(sentences) == 0 {
		return nil
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}

	var out []string
	start := 0
	for start < len(sentences) {
		var buf strings.Builder
		tokens := 0
		end := start

		for end < len(sentences) {
			words := wordCount(sentences[end])
			if tokens+words > chunkSize && tokens > 0 {
				break
			}
			if buf.Len() > 0 {
				buf.WriteRune(' ')
			}
			buf.WriteString(sentences[end])
			tokens += words
			end++
		}

		out = append(out, buf.String())

		// Back up by the overlap amount, guaranteeing forward progress.
		overlapTokens := 0
		newStart := end
		for newStart > start && overlapTokens < overlap {
			newStart--
			overlapTokens += wordCount(sentences[newStart])
		}
		if newStart == start {
			start = end
		} else {
			start = newStart
		}
	}
	return out
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}
