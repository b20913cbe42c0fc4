// Package enhance fetches supplementary context from outside a workspace
// when retrieval finds nothing relevant.
package enhance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"docrag-be/internal/entity"
	"docrag-be/internal/pkg/logger"
	"docrag-be/pkg/apperror"
	"docrag-be/pkg/parser"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
)

const (
	SourceExternal = "external"

	maxPageBytes = int64(5 * 1024 * 1024)
	userAgent    = "docrag-be/1.0 (context enhancement)"
)

// WikipediaFetcher looks the query up on Wikipedia and returns the lead
// sections of the best matching article as a single passage.
type WikipediaFetcher struct {
	baseURL   string
	maxChars  int
	client    *http.Client
	converter *md.Converter
	log       logger.ILogger
}

func NewWikipediaFetcher(baseURL string, maxChars int, timeout time.Duration, log logger.ILogger) *WikipediaFetcher {
	if maxChars <= 0 {
		maxChars = 4000
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &WikipediaFetcher{
		baseURL:   strings.TrimRight(baseURL, "/"),
		maxChars:  maxChars,
		client:    &http.Client{Timeout: timeout},
		converter: md.NewConverter("", true, nil),
		log:       log,
	}
}

type searchResponse struct {
	Query struct {
		Search []struct {
			Title string `json:"title"`
		} `json:"search"`
	} `json:"query"`
}

// Lookup returns an empty result when no article matches.
func (f *WikipediaFetcher) Lookup(ctx context.Context, query string) (*entity.RetrievalResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperror.ErrEmptyQuery
	}
	result := &entity.RetrievalResult{Query: query, Source: SourceExternal, Passages: []entity.RetrievedPassage{}}

	title, err := f.search(ctx, query)
	if err != nil {
		return nil, err
	}
	if title == "" {
		f.log.Info("Enhance", "No article found", map[string]interface{}{"query": query})
		return result, nil
	}

	text, err := f.article(ctx, title)
	if err != nil {
		return nil, err
	}
	if text == "" {
		return result, nil
	}

	result.Passages = append(result.Passages, entity.RetrievedPassage{
		DocumentName: title,
		Content:      text,
		Score:        1,
	})
	f.log.Info("Enhance", "Fetched external context", map[string]interface{}{
		"query": query,
		"title": title,
		"chars": len([]rune(text)),
	})
	return result, nil
}

func (f *WikipediaFetcher) search(ctx context.Context, query string) (string, error) {
	params := url.Values{}
	params.Set("action", "query")
	params.Set("list", "search")
	params.Set("srsearch", query)
	params.Set("srlimit", "1")
	params.Set("format", "json")

	body, err := f.get(ctx, f.baseURL+"/w/api.php?"+params.Encode())
	if err != nil {
		return "", err
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", apperror.Wrap(apperror.ErrExternalUnavailable, fmt.Errorf("decode search response: %w", err))
	}
	if len(resp.Query.Search) == 0 {
		return "", nil
	}
	return resp.Query.Search[0].Title, nil
}

// article converts the article body to markdown, keeping only the lead
// paragraphs up to maxChars.
func (f *WikipediaFetcher) article(ctx context.Context, title string) (string, error) {
	page := f.baseURL + "/wiki/" + url.PathEscape(strings.ReplaceAll(title, " ", "_"))
	body, err := f.get(ctx, page)
	if err != nil {
		return "", err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return "", apperror.Wrap(apperror.ErrExternalUnavailable, err)
	}
	content := doc.Find("#mw-content-text")
	if content.Length() == 0 {
		content = doc.Find("body")
	}
	content.Find("script, style, table, sup.reference, .mw-editsection, .navbox, .infobox").Remove()

	var sb strings.Builder
	content.Find("p").EachWithBreak(func(_ int, p *goquery.Selection) bool {
		html, err := goquery.OuterHtml(p)
		if err != nil {
			return true
		}
		markdown, err := f.converter.ConvertString(html)
		if err != nil || strings.TrimSpace(markdown) == "" {
			return true
		}
		sb.WriteString(markdown)
		sb.WriteString("\n\n")
		return len([]rune(sb.String())) < f.maxChars
	})

	return truncateRunes(parser.CollapseBlankLines(sb.String()), f.maxChars), nil
}

func (f *WikipediaFetcher) get(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, apperror.Wrap(apperror.ErrExternalUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, apperror.Wrap(apperror.ErrExternalUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apperror.Wrap(apperror.ErrExternalUnavailable, fmt.Errorf("status %d from %s", resp.StatusCode, target))
	}
	return body, nil
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n])) + "…"
}
