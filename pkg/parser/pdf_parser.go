package parser

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"docrag-be/pkg/apperror"

	"github.com/ledongthuc/pdf"
)

// PDFParser extracts the plain text layer of a PDF. Scanned documents
// without a text layer yield ErrNoTextContent from the registry.
type PDFParser struct{}

func NewPDFParser() *PDFParser {
	return &PDFParser{}
}

func (p *PDFParser) FileType() FileType {
	return FileTypePDF
}

func (p *PDFParser) Parse(ctx context.Context, r io.Reader) (doc *Document, err error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read pdf: %w", err)
	}
	if len(data) == 0 {
		return nil, apperror.ErrEmptyFile
	}

	// the pdf reader panics on some malformed cross-reference tables
	defer func() {
		if rec := recover(); rec != nil {
			doc = nil
			err = apperror.WithMessage(apperror.ErrCorruptContent, "malformed pdf: %v", rec)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, apperror.Wrap(apperror.ErrCorruptContent, err)
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return nil, apperror.Wrap(apperror.ErrCorruptContent, err)
	}
	out, err := io.ReadAll(plain)
	if err != nil {
		return nil, apperror.Wrap(apperror.ErrCorruptContent, err)
	}

	text := normalizeNewlines(string(out))
	return &Document{Text: text, Title: extractTitle(text)}, nil
}
