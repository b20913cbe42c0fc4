package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"docrag-be/pkg/apperror"
	"docrag-be/pkg/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func streamServer(t *testing.T, tokens []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ollamaChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream)
		assert.Equal(t, "llama3", req.Model)

		for _, tok := range tokens {
			fmt.Fprintf(w, `{"model":"llama3","message":{"role":"assistant","content":%q},"done":false}`+"\n", tok)
		}
		fmt.Fprint(w, `{"model":"llama3","message":{"role":"assistant","content":""},"done":true}`+"\n")
	}))
}

func TestOllamaProvider_Stream(t *testing.T) {
	srv := streamServer(t, []string{"Hel", "lo", "!"})
	defer srv.Close()

	p := NewOllamaProvider(srv.URL, "llama3", nil)

	var got []string
	full, err := p.Stream(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "hi"}}, func(tok string) error {
		got = append(got, tok)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Hel", "lo", "!"}, got)
	assert.Equal(t, "Hello!", full)
}

func TestOllamaProvider_StreamStopsWhenHandlerFails(t *testing.T) {
	srv := streamServer(t, []string{"a", "b", "c"})
	defer srv.Close()

	stop := errors.New("stop")
	p := NewOllamaProvider(srv.URL, "llama3", nil)

	full, err := p.Stream(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "hi"}}, func(tok string) error {
		if tok == "b" {
			return stop
		}
		return nil
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, "ab", full)
}

func TestOllamaProvider_ChatServerErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewOllamaProvider(srv.URL, "llama3", nil).Generate(context.Background(), "hi")
	assert.ErrorIs(t, err, apperror.ErrGenerationFailed)
	assert.True(t, apperror.IsRetryable(err))
}

func TestOllamaProvider_Chat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ollamaChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.False(t, req.Stream)
		assert.Equal(t, llm.RoleAssistant, req.Messages[1].Role)
		fmt.Fprint(w, `{"model":"llama3","message":{"role":"assistant","content":"answer"},"done":true}`)
	}))
	defer srv.Close()

	out, err := NewOllamaProvider(srv.URL, "llama3", nil).Chat(context.Background(), []llm.Message{
		{Role: llm.RoleUser, Content: "q"},
		{Role: "model", Content: "earlier"},
		{Role: llm.RoleUser, Content: "q2"},
	})
	require.NoError(t, err)
	assert.Equal(t, "answer", out)
}
