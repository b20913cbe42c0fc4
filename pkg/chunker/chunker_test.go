package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"

	"docrag-be/pkg/apperror"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	reg := DefaultRegistry()
	assert.Equal(t, []string{"fixed", "paragraph", "sentence"}, reg.Names())

	_, err := reg.Get("semantic")
	assert.ErrorIs(t, err, apperror.ErrUnknownAlgorithm)
}

func TestFixedChunker_WindowWithOverlap(t *testing.T) {
	chunks := NewFixedChunker().Chunk("abcdefghij", Options{Size: 4, Overlap: 1})
	assert.Equal(t, []string{"abcd", "defg", "ghij"}, chunks)
}

func TestFixedChunker_PrefersWordBoundary(t *testing.T) {
	chunks := NewFixedChunker().Chunk("alpha beta gamma delta", Options{Size: 12})
	require.NotEmpty(t, chunks)
	assert.Equal(t, "alpha beta", chunks[0])
	for _, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 12)
	}
}

func TestFixedChunker_ShortAndEmpty(t *testing.T) {
	c := NewFixedChunker()
	assert.Equal(t, []string{"short"}, c.Chunk("  short \n", Options{Size: 100, Overlap: 20}))
	assert.Empty(t, c.Chunk("   ", Options{Size: 100}))
}

func TestFixedChunker_OverlapNotLessThanSizeStillTerminates(t *testing.T) {
	chunks := NewFixedChunker().Chunk(strings.Repeat("x", 50), Options{Size: 10, Overlap: 10})
	assert.Len(t, chunks, 5)
}

func TestSplitSentences_KeepsTrailingFragment(t *testing.T) {
	got := SplitSentences("One here.  Two\nthere! Is it three? trailing words")
	assert.Equal(t, []string{"One here.", "Two there!", "Is it three?", "trailing words"}, got)
}

func TestSentenceChunker_PacksWithSentenceOverlap(t *testing.T) {
	text := "Aaaa aaaa. Bbbb bbbb. Cccc cccc. Dddd dddd."

	chunks := NewSentenceChunker().Chunk(text, Options{Size: 21, Overlap: 10})
	assert.Equal(t, []string{
		"Aaaa aaaa. Bbbb bbbb.",
		"Bbbb bbbb. Cccc cccc.",
		"Cccc cccc. Dddd dddd.",
	}, chunks)
}

func TestSentenceChunker_LongSentenceIsCut(t *testing.T) {
	long := strings.Repeat("word ", 60) + "end."

	chunks := NewSentenceChunker().Chunk(long, Options{Size: 50, Overlap: 0})
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 50)
	}
}

func TestParagraphChunker_TwoParagraphsFitOneChunk(t *testing.T) {
	text := "First paragraph about Go.\n\nSecond paragraph about retrieval."

	chunks := NewParagraphChunker().Chunk(text, Options{Size: 1000, Overlap: 200})
	assert.Equal(t, []string{text}, chunks)
}

func TestParagraphChunker_SplitsAtParagraphs(t *testing.T) {
	p1 := strings.Repeat("a", 30)
	p2 := strings.Repeat("b", 30)
	p3 := strings.Repeat("c", 30)

	chunks := NewParagraphChunker().Chunk(p1+"\n\n"+p2+"\n \n"+p3, Options{Size: 64, Overlap: 0})
	assert.Equal(t, []string{p1 + "\n\n" + p2, p3}, chunks)
}

func TestParagraphChunker_OversizedParagraphFallsBack(t *testing.T) {
	big := strings.Repeat("Sentence number x. ", 20)

	chunks := NewParagraphChunker().Chunk("Intro.\n\n"+big, Options{Size: 60, Overlap: 0})
	require.Greater(t, len(chunks), 2)
	for _, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 60)
	}
}
