package parser

import (
	"context"
	"io"
	"path/filepath"
	"strings"

	"docrag-be/pkg/apperror"

	"github.com/gabriel-vasile/mimetype"
)

// FileType identifies the parser that handles a document.
type FileType string

const (
	FileTypePDF     FileType = "pdf"
	FileTypeMD      FileType = "md"
	FileTypeHTML    FileType = "html"
	FileTypeTXT     FileType = "txt"
	FileTypeUnknown FileType = "unknown"
)

func (ft FileType) String() string {
	return string(ft)
}

// Document is the plain text extracted from an upload.
type Document struct {
	Text  string
	Title string
}

// Parser extracts text from a single file format.
type Parser interface {
	Parse(ctx context.Context, r io.Reader) (*Document, error)
	FileType() FileType
}

// Registry holds one parser per file type.
type Registry struct {
	parsers map[FileType]Parser
}

func NewRegistry() *Registry {
	return &Registry{parsers: make(map[FileType]Parser)}
}

func (r *Registry) Register(p Parser) {
	r.parsers[p.FileType()] = p
}

func (r *Registry) Get(ft FileType) (Parser, error) {
	p, ok := r.parsers[ft]
	if !ok {
		return nil, apperror.WithMessage(apperror.ErrUnsupportedType, "no parser registered for %q", ft)
	}
	return p, nil
}

// Parse runs the parser registered for ft and rejects results without text.
func (r *Registry) Parse(ctx context.Context, ft FileType, rd io.Reader) (*Document, error) {
	p, err := r.Get(ft)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	doc, err := p.Parse(ctx, rd)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(doc.Text) == "" {
		return nil, apperror.ErrNoTextContent
	}
	return doc, nil
}

// DefaultRegistry registers every built-in parser.
func DefaultRegistry() *Registry {
	reg := NewRegistry()
	reg.Register(NewTxtParser())
	reg.Register(NewMarkdownParser())
	reg.Register(NewHTMLParser())
	reg.Register(NewPDFParser())
	return reg
}

// FileTypeFromExt maps a filename extension to a FileType.
func FileTypeFromExt(filename string) FileType {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), ".")) {
	case "pdf":
		return FileTypePDF
	case "md", "markdown":
		return FileTypeMD
	case "html", "htm":
		return FileTypeHTML
	case "txt", "text":
		return FileTypeTXT
	default:
		return FileTypeUnknown
	}
}

// Detect sniffs the content of an upload and reconciles it with the
// filename extension. It returns the file type and the detected MIME type.
//
// Content decides binary formats: a ".pdf" upload that is not a PDF is
// corrupt, and anything that is neither PDF nor text is unsupported.
func Detect(filename string, content []byte) (FileType, string, error) {
	if len(content) == 0 {
		return FileTypeUnknown, "", apperror.ErrEmptyFile
	}

	mtype := mimetype.Detect(content)
	ext := FileTypeFromExt(filename)

	switch {
	case mtype.Is("application/pdf"):
		return FileTypePDF, "application/pdf", nil
	case ext == FileTypePDF:
		return FileTypeUnknown, mtype.String(), apperror.WithMessage(apperror.ErrCorruptContent, "%s is not a valid PDF", filename)
	case mtype.Is("text/html"):
		return FileTypeHTML, "text/html", nil
	case isText(mtype):
		switch ext {
		case FileTypeMD:
			return FileTypeMD, "text/markdown", nil
		case FileTypeHTML:
			return FileTypeHTML, "text/html", nil
		default:
			return FileTypeTXT, "text/plain", nil
		}
	default:
		return FileTypeUnknown, mtype.String(), apperror.WithMessage(apperror.ErrUnsupportedType, "unsupported content type %s", mtype.String())
	}
}

func isText(m *mimetype.MIME) bool {
	for cur := m; cur != nil; cur = cur.Parent() {
		if cur.Is("text/plain") {
			return true
		}
	}
	return false
}

// extractTitle takes the first short non-empty line, without heading markers.
func extractTitle(content string) string {
	for _, line := range strings.Split(strings.TrimSpace(content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		line = strings.TrimSpace(strings.TrimLeft(line, "#"))
		if line != "" && len([]rune(line)) < 100 {
			return line
		}
		break
	}
	return ""
}

// normalizeNewlines converts CRLF/CR line endings and strips a UTF-8 BOM.
func normalizeNewlines(s string) string {
	s = strings.TrimPrefix(s, "\uFEFF")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

// FileTypeFromMIME maps the MIME type recorded at upload back to a FileType.
func FileTypeFromMIME(mime string) FileType {
	switch strings.ToLower(strings.TrimSpace(strings.Split(mime, ";")[0])) {
	case "application/pdf":
		return FileTypePDF
	case "text/markdown":
		return FileTypeMD
	case "text/html":
		return FileTypeHTML
	case "text/plain":
		return FileTypeTXT
	default:
		return FileTypeUnknown
	}
}
