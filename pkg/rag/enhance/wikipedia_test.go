package enhance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"docrag-be/internal/pkg/logger"
	"docrag-be/pkg/apperror"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const parisPage = `<html><body>
<div id="mw-content-text">
<table class="infobox"><tr><td>Population 2,102,650</td></tr></table>
<p><b>Paris</b> is the capital and largest city of France.<sup class="reference">[1]</sup></p>
<p>The city is a major railway, highway and air-transport hub.</p>
<script>var x = 1;</script>
</div>
</body></html>`

func wikiServer(t *testing.T, search string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/w/api.php", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "query", r.URL.Query().Get("action"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(search))
	})
	mux.HandleFunc("/wiki/Paris", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(parisPage))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestWikipediaFetcher_Lookup(t *testing.T) {
	srv := wikiServer(t, `{"query":{"search":[{"title":"Paris"}]}}`)
	f := NewWikipediaFetcher(srv.URL, 4000, time.Second, logger.NewNopLogger())

	res, err := f.Lookup(context.Background(), "What is the capital of France?")
	require.NoError(t, err)

	assert.Equal(t, SourceExternal, res.Source)
	require.Len(t, res.Passages, 1)
	p := res.Passages[0]
	assert.Equal(t, "Paris", p.DocumentName)
	assert.Contains(t, p.Content, "capital and largest city of France")
	assert.Contains(t, p.Content, "air-transport hub")
	assert.NotContains(t, p.Content, "Population")
	assert.NotContains(t, p.Content, "[1]")
	assert.NotContains(t, p.Content, "var x")
}

func TestWikipediaFetcher_Truncates(t *testing.T) {
	srv := wikiServer(t, `{"query":{"search":[{"title":"Paris"}]}}`)
	f := NewWikipediaFetcher(srv.URL, 20, time.Second, logger.NewNopLogger())

	res, err := f.Lookup(context.Background(), "paris")
	require.NoError(t, err)
	require.Len(t, res.Passages, 1)
	assert.LessOrEqual(t, len([]rune(res.Passages[0].Content)), 21)
	assert.True(t, strings.HasSuffix(res.Passages[0].Content, "…"))
}

func TestWikipediaFetcher_NoMatchIsEmpty(t *testing.T) {
	srv := wikiServer(t, `{"query":{"search":[]}}`)
	f := NewWikipediaFetcher(srv.URL, 4000, time.Second, logger.NewNopLogger())

	res, err := f.Lookup(context.Background(), "zzzz")
	require.NoError(t, err)
	assert.True(t, res.IsEmpty())
	assert.NotNil(t, res.Passages)
}

func TestWikipediaFetcher_BackendErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)
	f := NewWikipediaFetcher(srv.URL, 4000, time.Second, logger.NewNopLogger())

	_, err := f.Lookup(context.Background(), "paris")
	require.ErrorIs(t, err, apperror.ErrExternalUnavailable)
	assert.True(t, apperror.IsRetryable(err))

	_, err = f.Lookup(context.Background(), "  ")
	assert.ErrorIs(t, err, apperror.ErrEmptyQuery)
}
