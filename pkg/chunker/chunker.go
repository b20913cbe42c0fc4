package chunker

import (
	"sort"
	"strings"
	"unicode/utf8"

	"docrag-be/pkg/apperror"
)

// Options sizes chunks in runes.
type Options struct {
	Size    int
	Overlap int
}

func (o Options) normalized() Options {
	if o.Size <= 0 {
		o.Size = 1000
	}
	if o.Overlap < 0 || o.Overlap >= o.Size {
		o.Overlap = 0
	}
	return o
}

// Chunker splits extracted document text into ordered segments.
type Chunker interface {
	Name() string
	Chunk(text string, opts Options) []string
}

type Registry struct {
	chunkers map[string]Chunker
}

func NewRegistry() *Registry {
	return &Registry{chunkers: make(map[string]Chunker)}
}

func (r *Registry) Register(c Chunker) {
	r.chunkers[c.Name()] = c
}

func (r *Registry) Get(name string) (Chunker, error) {
	c, ok := r.chunkers[name]
	if !ok {
		return nil, apperror.WithMessage(apperror.ErrUnknownAlgorithm, "unknown chunk algorithm %q", name)
	}
	return c, nil
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.chunkers))
	for name := range r.chunkers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func DefaultRegistry() *Registry {
	reg := NewRegistry()
	reg.Register(NewFixedChunker())
	reg.Register(NewSentenceChunker())
	reg.Register(NewParagraphChunker())
	return reg
}

// pack greedily joins units with sep until the next unit would exceed
// opts.Size. A new chunk starts with the trailing units of the previous one
// whose joined length fits in opts.Overlap. Every unit must fit in opts.Size.
func pack(units []string, sep string, opts Options) []string {
	var chunks []string
	var cur []string

	for _, unit := range units {
		if len(cur) > 0 && joinedLen(cur, sep)+runeLen(sep)+runeLen(unit) > opts.Size {
			chunks = append(chunks, strings.Join(cur, sep))
			cur = tailWithin(cur, sep, opts.Overlap)
			if len(cur) > 0 && joinedLen(cur, sep)+runeLen(sep)+runeLen(unit) > opts.Size {
				cur = nil
			}
		}
		cur = append(cur, unit)
	}
	if len(cur) > 0 {
		chunks = append(chunks, strings.Join(cur, sep))
	}
	return chunks
}

// tailWithin returns the longest proper suffix of units that fits in budget.
func tailWithin(units []string, sep string, budget int) []string {
	if budget <= 0 {
		return nil
	}
	start := len(units)
	for start > 1 && joinedLen(units[start-1:], sep) <= budget {
		start--
	}
	if start == len(units) {
		return nil
	}
	tail := make([]string, len(units)-start)
	copy(tail, units[start:])
	return tail
}

func joinedLen(units []string, sep string) int {
	if len(units) == 0 {
		return 0
	}
	n := runeLen(sep) * (len(units) - 1)
	for _, u := range units {
		n += runeLen(u)
	}
	return n
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
