package backend

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ckindle-42/portal/pkg/models"
)

const (
	// streamTimeout bounds an entire streaming response. Long, since a
	// slow local model can legitimately stream for minutes.
	streamTimeout = 5 * time.Minute

	// probeTimeout bounds liveness probes and model listings.
	probeTimeout = 3 * time.Second
)

// Ollama wire types (native /api/chat protocol).

type ollamaChatRequest struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  *ollamaOptions `json:"options,omitempty"`
}

type ollamaOptions struct {
	NumPredict  int     `json:"num_predict,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

type ollamaChatResponse struct {
	Message   ollamaMessage `json:"message"`
	Done      bool          `json:"done"`
	EvalCount int           `json:"eval_count"`
	Error     string        `json:"error,omitempty"`
}

type ollamaMessage struct {
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	ToolCalls []wireToolCall `json:"tool_calls,omitempty"`
}

type ollamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// OllamaAdapter talks to an Ollama server over its native HTTP API
// using raw net/http. Safe for concurrent use.
type OllamaAdapter struct {
	baseURL      string
	httpClient   *http.Client
	streamClient *http.Client
	probeClient  *http.Client
}

// NewOllama creates an adapter for the Ollama server at baseURL.
// timeout bounds blocking generation calls.
func NewOllama(baseURL string, timeout time.Duration) *OllamaAdapter {
	return &OllamaAdapter{
		baseURL:      strings.TrimRight(baseURL, "/"),
		httpClient:   &http.Client{Timeout: timeout},
		streamClient: &http.Client{Timeout: streamTimeout},
		probeClient:  &http.Client{Timeout: probeTimeout},
	}
}

// Name implements Adapter.
func (a *OllamaAdapter) Name() string { return "ollama" }

// Generate implements Adapter using POST /api/chat with stream off.
func (a *OllamaAdapter) Generate(ctx context.Context, req GenerateRequest) (*models.GenerationResult, error) {
	start := time.Now()
	fail := func(err error) (*models.GenerationResult, error) {
		return &models.GenerationResult{
			Model:   req.ModelHandle,
			Elapsed: time.Since(start),
			Error:   err.Error(),
		}, err
	}

	body, err := json.Marshal(ollamaChatRequest{
		Model:    req.ModelHandle,
		Messages: buildChat(req),
		Stream:   false,
		Options:  buildOllamaOptions(req),
	})
	if err != nil {
		return fail(fmt.Errorf("ollama: marshaling request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return fail(fmt.Errorf("ollama: creating request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return fail(fmt.Errorf("ollama: request failed: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fail(fmt.Errorf("ollama: reading response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return fail(fmt.Errorf("ollama: status %d: %s", resp.StatusCode, truncateForLog(respBody)))
	}

	var chat ollamaChatResponse
	if err := json.Unmarshal(respBody, &chat); err != nil {
		return fail(fmt.Errorf("ollama: parsing response: %w", err))
	}
	if chat.Error != "" {
		return fail(fmt.Errorf("ollama: api error: %s", chat.Error))
	}

	tokens := chat.EvalCount
	if tokens == 0 {
		tokens = estimateTokens(chat.Message.Content)
	}

	return &models.GenerationResult{
		Text:            chat.Message.Content,
		TokensGenerated: tokens,
		Elapsed:         time.Since(start),
		Model:           req.ModelHandle,
		Success:         true,
		ToolCalls:       normalizeToolCalls(chat.Message.ToolCalls),
	}, nil
}

// GenerateStream implements Adapter. Ollama streams newline-delimited
// JSON objects; each carries a content fragment until done is true.
func (a *OllamaAdapter) GenerateStream(ctx context.Context, req GenerateRequest) (<-chan StreamChunk, error) {
	body, err := json.Marshal(ollamaChatRequest{
		Model:    req.ModelHandle,
		Messages: buildChat(req),
		Stream:   true,
		Options:  buildOllamaOptions(req),
	})
	if err != nil {
		return nil, fmt.Errorf("ollama: marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ollama: creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.streamClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama: request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("ollama: status %d: %s", resp.StatusCode, truncateForLog(respBody))
	}

	out := make(chan StreamChunk)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			var chunk ollamaChatResponse
			if err := json.Unmarshal(line, &chunk); err != nil {
				emit(ctx, out, StreamChunk{Err: fmt.Errorf("ollama: parsing stream chunk: %w", err)})
				return
			}
			if chunk.Error != "" {
				emit(ctx, out, StreamChunk{Err: fmt.Errorf("ollama: api error: %s", chunk.Error)})
				return
			}
			if chunk.Message.Content != "" {
				if !emit(ctx, out, StreamChunk{Text: chunk.Message.Content}) {
					return
				}
			}
			if chunk.Done {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			emit(ctx, out, StreamChunk{Err: fmt.Errorf("ollama: reading stream: %w", err)})
		}
	}()
	return out, nil
}

// Available implements Adapter using the tags endpoint as the probe.
func (a *OllamaAdapter) Available(ctx context.Context) bool {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := a.probeClient.Do(httpReq)
	if err != nil {
		slog.Debug("Ollama availability probe failed", "error", err)
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

// ListModels implements Adapter using GET /api/tags.
func (a *OllamaAdapter) ListModels(ctx context.Context) ([]string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("ollama: creating request: %w", err)
	}
	resp, err := a.probeClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama: listing models: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ollama: reading model listing: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama: status %d: %s", resp.StatusCode, truncateForLog(respBody))
	}

	var tags ollamaTagsResponse
	if err := json.Unmarshal(respBody, &tags); err != nil {
		return nil, fmt.Errorf("ollama: parsing model listing: %w", err)
	}

	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// Close implements Adapter by dropping idle keep-alive connections.
func (a *OllamaAdapter) Close() error {
	a.httpClient.CloseIdleConnections()
	a.streamClient.CloseIdleConnections()
	a.probeClient.CloseIdleConnections()
	return nil
}

func buildOllamaOptions(req GenerateRequest) *ollamaOptions {
	if req.MaxTokens == 0 && req.Temperature == 0 {
		return nil
	}
	return &ollamaOptions{
		NumPredict:  req.MaxTokens,
		Temperature: req.Temperature,
	}
}

// emit sends a chunk unless the consumer has gone away.
func emit(ctx context.Context, out chan<- StreamChunk, chunk StreamChunk) bool {
	select {
	case out <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

// estimateTokens roughly approximates a token count when the backend
// does not report one (4 chars per token heuristic).
func estimateTokens(text string) int {
	return len(text) / 4
}

// truncateForLog keeps error payloads readable in logs and error text.
func truncateForLog(body []byte) string {
	const max = 300
	s := strings.TrimSpace(string(body))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
