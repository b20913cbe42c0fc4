package chunker

import (
	"strings"
	"unicode"
)

// FixedChunker cuts a sliding rune window of opts.Size, stepping by
// Size-Overlap. A window end is pulled back to the last whitespace in its
// second half so words are not split.
type FixedChunker struct{}

func NewFixedChunker() *FixedChunker {
	return &FixedChunker{}
}

func (c *FixedChunker) Name() string {
	return "fixed"
}

func (c *FixedChunker) Chunk(text string, opts Options) []string {
	opts = opts.normalized()
	return splitRunes(strings.TrimSpace(text), opts)
}

func splitRunes(text string, opts Options) []string {
	runes := []rune(text)
	total := len(runes)
	if total == 0 {
		return nil
	}
	if total <= opts.Size {
		return []string{text}
	}

	var chunks []string
	for start := 0; start < total; {
		end := start + opts.Size
		if end > total {
			end = total
		}
		if end < total {
			if cut := lastSpace(runes, start+opts.Size/2, end); cut > start {
				end = cut
			}
		}

		if piece := strings.TrimSpace(string(runes[start:end])); piece != "" {
			chunks = append(chunks, piece)
		}
		if end == total {
			break
		}

		next := end - opts.Overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}

// lastSpace returns the index just past the last whitespace rune in
// runes[lo:hi], or -1.
func lastSpace(runes []rune, lo, hi int) int {
	for i := hi - 1; i >= lo; i-- {
		if unicode.IsSpace(runes[i]) {
			return i + 1
		}
	}
	return -1
}
