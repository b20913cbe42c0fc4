package chunker

import (
	"regexp"
	"strings"
)

var sentencePattern = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)

// SentenceChunker packs whole sentences up to the size limit and carries
// trailing sentences into the next chunk as overlap.
type SentenceChunker struct{}

func NewSentenceChunker() *SentenceChunker {
	return &SentenceChunker{}
}

func (c *SentenceChunker) Name() string {
	return "sentence"
}

func (c *SentenceChunker) Chunk(text string, opts Options) []string {
	opts = opts.normalized()
	return pack(sentenceUnits(text, opts), " ", opts)
}

// sentenceUnits splits text into sentences; sentences longer than the size
// limit are cut with the fixed window.
func sentenceUnits(text string, opts Options) []string {
	var units []string
	for _, s := range SplitSentences(text) {
		if runeLen(s) > opts.Size {
			units = append(units, splitRunes(s, Options{Size: opts.Size})...)
			continue
		}
		units = append(units, s)
	}
	return units
}

// SplitSentences returns the trimmed sentences of text, including a trailing
// fragment without terminal punctuation.
func SplitSentences(text string) []string {
	var sentences []string
	last := 0
	for _, loc := range sentencePattern.FindAllStringIndex(text, -1) {
		if s := collapseSpace(text[loc[0]:loc[1]]); s != "" {
			sentences = append(sentences, s)
		}
		last = loc[1]
	}
	if rest := collapseSpace(text[last:]); rest != "" {
		sentences = append(sentences, rest)
	}
	return sentences
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
