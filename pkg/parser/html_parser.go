package parser

import (
	"context"
	"fmt"
	"io"
	"strings"

	"docrag-be/pkg/apperror"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
)

// HTMLParser converts the page body to markdown so that paragraph and
// heading structure survives for the chunker.
type HTMLParser struct {
	converter *md.Converter
}

func NewHTMLParser() *HTMLParser {
	return &HTMLParser{converter: md.NewConverter("", true, nil)}
}

func (p *HTMLParser) FileType() FileType {
	return FileTypeHTML
}

func (p *HTMLParser) Parse(ctx context.Context, r io.Reader) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, apperror.Wrap(apperror.ErrCorruptContent, err)
	}
	doc.Find("script, style, noscript, template, iframe").Remove()

	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		title = strings.TrimSpace(doc.Find("h1").First().Text())
	}

	body := doc.Find("body")
	if body.Length() == 0 {
		body = doc.Selection
	}
	html, err := body.Html()
	if err != nil {
		return nil, apperror.Wrap(apperror.ErrCorruptContent, err)
	}

	markdown, err := p.converter.ConvertString(html)
	if err != nil {
		return nil, fmt.Errorf("failed to convert html to markdown: %w", err)
	}

	return &Document{Text: CollapseBlankLines(markdown), Title: title}, nil
}

// CollapseBlankLines trims every line and keeps at most one blank line
// between paragraphs.
func CollapseBlankLines(s string) string {
	lines := strings.Split(normalizeNewlines(s), "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, trimmed)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
