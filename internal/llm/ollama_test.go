package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

type abortFlag struct{ v atomic.Bool }

func (a *abortFlag) Aborted() bool { return a.v.Load() }

func TestOllamaGenerateStreamsChunks(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/generate", r.URL.Path)
		w.Header().Set("Content-Type", "application/x-ndjson")
		fmt.Fprintln(w, `{"model":"llama3.2","response":"Hel","done":false}`)
		fmt.Fprintln(w, `{"model":"llama3.2","response":"lo","done":false}`)
		fmt.Fprintln(w, `{"model":"llama3.2","response":"!","done":true,"prompt_eval_count":12,"eval_count":7}`)
	}))
	defer srv.Close()

	var seen []string
	c := NewOllamaClient(srv.URL, "llama3.2")
	resp, err := c.Generate(context.Background(), GenerateRequest{
		Prompt:  "hi",
		OnChunk: func(acc string) { seen = append(seen, acc) },
	})
	require.NoError(t, err)
	require.Equal(t, "Hello!", resp.Content)
	require.Equal(t, "llama3.2", resp.Model)
	require.Equal(t, 12, resp.Usage.PromptTokens)
	require.Equal(t, 7, resp.Usage.CompletionTokens)
	require.Equal(t, 19, resp.Usage.TotalTokens)
	require.Equal(t, []string{"Hel", "Hello", "Hello!"}, seen)
}

func TestOllamaGenerateHonoursAbortMidStream(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		for i := 0; i < 50; i++ {
			fmt.Fprintln(w, `{"response":"word ","done":false}`)
			flusher.Flush()
		}
		fmt.Fprintln(w, `{"response":"","done":true}`)
	}))
	defer srv.Close()

	flag := &abortFlag{}
	c := NewOllamaClient(srv.URL, "llama3.2")
	_, err := c.Generate(context.Background(), GenerateRequest{
		Prompt: "hi",
		Abort:  flag,
		OnChunk: func(acc string) {
			if len(acc) > 20 {
				flag.v.Store(true)
			}
		},
	})
	require.ErrorIs(t, err, ErrAborted)
}

func TestOllamaGenerateEstimatesMissingUsage(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"response":"one two three four","done":true}`)
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, "llama3.2")
	resp, err := c.Generate(context.Background(), GenerateRequest{Prompt: "count words"})
	require.NoError(t, err)
	require.Greater(t, resp.Usage.PromptTokens, 0)
	require.Greater(t, resp.Usage.CompletionTokens, 0)
	require.Equal(t, resp.Usage.PromptTokens+resp.Usage.CompletionTokens, resp.Usage.TotalTokens)
}

func TestOllamaGenerateMapsServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, "missing")
	_, err := c.Generate(context.Background(), GenerateRequest{Prompt: "hi"})
	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, "ollama", perr.Provider)
	require.Equal(t, http.StatusNotFound, perr.Status)
}

func TestOllamaUnreachableIsUnavailable(t *testing.T) {
	t.Parallel()

	// port 1 refuses connections
	c := NewOllamaClient("http://127.0.0.1:1", "llama3.2")
	_, err := c.Generate(context.Background(), GenerateRequest{Prompt: "hi"})
	require.ErrorIs(t, err, ErrUnavailable)
	require.ErrorIs(t, c.CheckAvailability(context.Background()), ErrUnavailable)
}

func TestOllamaModels(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/tags", r.URL.Path)
		fmt.Fprintln(w, `{"models":[{"name":"llama3.2"},{"name":"qwen2.5-coder"}]}`)
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, "llama3.2")
	names, err := c.Models(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"llama3.2", "qwen2.5-coder"}, names)
	require.NoError(t, c.CheckAvailability(context.Background()))
}
