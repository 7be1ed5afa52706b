package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLMStudioGenerate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var req lmStudioChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "qwen2.5-7b-instruct", req.Model)
		assert.Equal(t, 512, req.MaxTokens)
		assert.False(t, req.Stream)
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "user", req.Messages[0].Role)

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintln(w, `{
			"choices": [{"message": {"role": "assistant", "content": "Sure thing"}, "finish_reason": "stop"}],
			"usage": {"completion_tokens": 8}
		}`)
	}))
	defer server.Close()

	a := NewLMStudio(server.URL, 10*time.Second)
	got, err := a.Generate(context.Background(), GenerateRequest{
		Prompt:      "help me",
		ModelHandle: "qwen2.5-7b-instruct",
		MaxTokens:   512,
	})

	require.NoError(t, err)
	assert.True(t, got.Success)
	assert.Equal(t, "Sure thing", got.Text)
	assert.Equal(t, 8, got.TokensGenerated)
	assert.Equal(t, "qwen2.5-7b-instruct", got.Model)
}

func TestLMStudioGenerateEstimatesTokensWithoutUsage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"choices": [{"message": {"role": "assistant", "content": "twelve chars"}}]}`)
	}))
	defer server.Close()

	a := NewLMStudio(server.URL, 10*time.Second)
	got, err := a.Generate(context.Background(), GenerateRequest{Prompt: "hi", ModelHandle: "m"})

	require.NoError(t, err)
	assert.Equal(t, len("twelve chars")/4, got.TokensGenerated)
}

func TestLMStudioGenerateServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusBadRequest)
	}))
	defer server.Close()

	a := NewLMStudio(server.URL, 10*time.Second)
	got, err := a.Generate(context.Background(), GenerateRequest{Prompt: "hi", ModelHandle: "m"})

	require.Error(t, err)
	require.NotNil(t, got)
	assert.False(t, got.Success)
	assert.Contains(t, got.Error, "status 400")
	assert.Equal(t, "m", got.Model)
}

func TestLMStudioGenerateAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"error": {"message": "context length exceeded", "type": "invalid_request_error"}}`)
	}))
	defer server.Close()

	a := NewLMStudio(server.URL, 10*time.Second)
	_, err := a.Generate(context.Background(), GenerateRequest{Prompt: "hi", ModelHandle: "m"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "context length exceeded")
}

func TestLMStudioGenerateNoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"choices": []}`)
	}))
	defer server.Close()

	a := NewLMStudio(server.URL, 10*time.Second)
	got, err := a.Generate(context.Background(), GenerateRequest{Prompt: "hi", ModelHandle: "m"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no choices")
	assert.False(t, got.Success)
}

func TestLMStudioGenerateStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req lmStudioChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream)
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))

		flusher := w.(http.Flusher)
		for _, text := range []string{"To ", "be ", "continued"} {
			fmt.Fprintf(w, "data: {\"choices\": [{\"delta\": {\"content\": %q}}]}\n\n", text)
			flusher.Flush()
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	a := NewLMStudio(server.URL, 10*time.Second)
	chunks, err := a.GenerateStream(context.Background(), GenerateRequest{Prompt: "hi", ModelHandle: "m"})
	require.NoError(t, err)

	var got string
	for chunk := range chunks {
		require.NoError(t, chunk.Err)
		got += chunk.Text
	}
	assert.Equal(t, "To be continued", got)
}

func TestLMStudioGenerateStreamAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		fmt.Fprint(w, "data: {\"choices\": [{\"delta\": {\"content\": \"a bit\"}}]}\n\n")
		flusher.Flush()
		fmt.Fprint(w, "data: {\"error\": {\"message\": \"stream interrupted\"}}\n\n")
	}))
	defer server.Close()

	a := NewLMStudio(server.URL, 10*time.Second)
	chunks, err := a.GenerateStream(context.Background(), GenerateRequest{Prompt: "hi", ModelHandle: "m"})
	require.NoError(t, err)

	var texts []string
	var streamErr error
	for chunk := range chunks {
		if chunk.Err != nil {
			streamErr = chunk.Err
			continue
		}
		texts = append(texts, chunk.Text)
	}

	assert.Equal(t, []string{"a bit"}, texts)
	require.Error(t, streamErr)
	assert.Contains(t, streamErr.Error(), "stream interrupted")
}

func TestLMStudioGenerateStreamImmediateFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no model loaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	a := NewLMStudio(server.URL, 10*time.Second)
	chunks, err := a.GenerateStream(context.Background(), GenerateRequest{Prompt: "hi", ModelHandle: "m"})

	require.Error(t, err)
	assert.Nil(t, chunks)
	assert.Contains(t, err.Error(), "status 503")
}

func TestLMStudioListModels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/models", r.URL.Path)
		fmt.Fprintln(w, `{"data": [{"id": "qwen2.5-7b-instruct"}, {"id": "phi-4"}]}`)
	}))
	defer server.Close()

	a := NewLMStudio(server.URL, 10*time.Second)
	got, err := a.ListModels(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"qwen2.5-7b-instruct", "phi-4"}, got)
}

func TestLMStudioAvailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"data": []}`)
	}))
	defer server.Close()

	a := NewLMStudio(server.URL, 10*time.Second)
	assert.True(t, a.Available(context.Background()))

	server.Close()
	assert.False(t, a.Available(context.Background()))
}

func TestLMStudioName(t *testing.T) {
	assert.Equal(t, "lmstudio", NewLMStudio("http://localhost:1234", time.Second).Name())
}
