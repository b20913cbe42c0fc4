package parser

import (
	"context"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"docrag-be/pkg/apperror"
)

// TxtParser handles plain text files.
type TxtParser struct{}

func NewTxtParser() *TxtParser {
	return &TxtParser{}
}

func (p *TxtParser) FileType() FileType {
	return FileTypeTXT
}

func (p *TxtParser) Parse(ctx context.Context, r io.Reader) (*Document, error) {
	text, err := readText(r)
	if err != nil {
		return nil, err
	}
	return &Document{Text: text, Title: extractTitle(text)}, nil
}

// MarkdownParser keeps markdown source as-is; headings and lists chunk well
// without rendering.
type MarkdownParser struct{}

func NewMarkdownParser() *MarkdownParser {
	return &MarkdownParser{}
}

func (p *MarkdownParser) FileType() FileType {
	return FileTypeMD
}

func (p *MarkdownParser) Parse(ctx context.Context, r io.Reader) (*Document, error) {
	text, err := readText(r)
	if err != nil {
		return nil, err
	}
	text = stripFrontMatter(text)
	return &Document{Text: text, Title: extractTitle(text)}, nil
}

func readText(r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read text: %w", err)
	}
	if !utf8.Valid(data) {
		return "", apperror.WithMessage(apperror.ErrCorruptContent, "text is not valid UTF-8")
	}
	return normalizeNewlines(string(data)), nil
}

// stripFrontMatter drops a leading YAML front matter block.
func stripFrontMatter(text string) string {
	if !strings.HasPrefix(text, "---\n") {
		return text
	}
	end := strings.Index(text[4:], "\n---")
	if end < 0 {
		return text
	}
	rest := text[4+end+4:]
	return strings.TrimLeft(rest, "\n")
}
