package chunker

import (
	"regexp"
	"strings"
)

var paragraphBreak = regexp.MustCompile(`\n[ \t]*\n`)

// ParagraphChunker packs whole paragraphs. Paragraphs larger than the size
// limit fall back to sentence packing.
type ParagraphChunker struct{}

func NewParagraphChunker() *ParagraphChunker {
	return &ParagraphChunker{}
}

func (c *ParagraphChunker) Name() string {
	return "paragraph"
}

func (c *ParagraphChunker) Chunk(text string, opts Options) []string {
	opts = opts.normalized()

	var units []string
	for _, p := range paragraphBreak.Split(strings.ReplaceAll(text, "\r\n", "\n"), -1) {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if runeLen(p) > opts.Size {
			units = append(units, pack(sentenceUnits(p, opts), " ", opts)...)
			continue
		}
		units = append(units, p)
	}
	return pack(units, "\n\n", opts)
}
