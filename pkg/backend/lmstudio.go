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

// LM Studio wire types (OpenAI-compatible /v1 protocol).

type lmStudioChatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

type lmStudioChatResponse struct {
	Choices []lmStudioChoice `json:"choices"`
	Usage   *lmStudioUsage   `json:"usage,omitempty"`
	Error   *lmStudioError   `json:"error,omitempty"`
}

type lmStudioChoice struct {
	Message      lmStudioMessage `json:"message"`
	Delta        lmStudioMessage `json:"delta"`
	FinishReason string          `json:"finish_reason"`
}

type lmStudioMessage struct {
	Role      string         `json:"role,omitempty"`
	Content   string         `json:"content,omitempty"`
	ToolCalls []wireToolCall `json:"tool_calls,omitempty"`
}

type lmStudioUsage struct {
	CompletionTokens int `json:"completion_tokens"`
}

type lmStudioError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

type lmStudioModelsResponse struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

// LMStudioAdapter talks to an LM Studio server over its
// OpenAI-compatible HTTP API using raw net/http. Safe for concurrent
// use.
type LMStudioAdapter struct {
	baseURL      string
	httpClient   *http.Client
	streamClient *http.Client
	probeClient  *http.Client
}

// NewLMStudio creates an adapter for the LM Studio server at baseURL.
// timeout bounds blocking generation calls.
func NewLMStudio(baseURL string, timeout time.Duration) *LMStudioAdapter {
	return &LMStudioAdapter{
		baseURL:      strings.TrimRight(baseURL, "/"),
		httpClient:   &http.Client{Timeout: timeout},
		streamClient: &http.Client{Timeout: streamTimeout},
		probeClient:  &http.Client{Timeout: probeTimeout},
	}
}

// Name implements Adapter.
func (a *LMStudioAdapter) Name() string { return "lmstudio" }

// Generate implements Adapter using POST /v1/chat/completions.
func (a *LMStudioAdapter) Generate(ctx context.Context, req GenerateRequest) (*models.GenerationResult, error) {
	start := time.Now()
	fail := func(err error) (*models.GenerationResult, error) {
		return &models.GenerationResult{
			Model:   req.ModelHandle,
			Elapsed: time.Since(start),
			Error:   err.Error(),
		}, err
	}

	body, err := json.Marshal(lmStudioChatRequest{
		Model:       req.ModelHandle,
		Messages:    buildChat(req),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return fail(fmt.Errorf("lmstudio: marshaling request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return fail(fmt.Errorf("lmstudio: creating request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return fail(fmt.Errorf("lmstudio: request failed: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fail(fmt.Errorf("lmstudio: reading response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return fail(fmt.Errorf("lmstudio: status %d: %s", resp.StatusCode, truncateForLog(respBody)))
	}

	var chat lmStudioChatResponse
	if err := json.Unmarshal(respBody, &chat); err != nil {
		return fail(fmt.Errorf("lmstudio: parsing response: %w", err))
	}
	if chat.Error != nil {
		return fail(fmt.Errorf("lmstudio: api error: %s", chat.Error.Message))
	}
	if len(chat.Choices) == 0 {
		return fail(fmt.Errorf("lmstudio: response has no choices"))
	}

	text := chat.Choices[0].Message.Content
	tokens := 0
	if chat.Usage != nil {
		tokens = chat.Usage.CompletionTokens
	}
	if tokens == 0 {
		tokens = estimateTokens(text)
	}

	return &models.GenerationResult{
		Text:            text,
		TokensGenerated: tokens,
		Elapsed:         time.Since(start),
		Model:           req.ModelHandle,
		Success:         true,
		ToolCalls:       normalizeToolCalls(chat.Choices[0].Message.ToolCalls),
	}, nil
}

// GenerateStream implements Adapter. The OpenAI-compatible stream is
// server-sent events: `data: {json}` lines carrying delta fragments,
// terminated by `data: [DONE]`.
func (a *LMStudioAdapter) GenerateStream(ctx context.Context, req GenerateRequest) (<-chan StreamChunk, error) {
	body, err := json.Marshal(lmStudioChatRequest{
		Model:       req.ModelHandle,
		Messages:    buildChat(req),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stream:      true,
	})
	if err != nil {
		return nil, fmt.Errorf("lmstudio: marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("lmstudio: creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := a.streamClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("lmstudio: request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("lmstudio: status %d: %s", resp.StatusCode, truncateForLog(respBody))
	}

	out := make(chan StreamChunk)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || !strings.HasPrefix(line, "data: ") {
				continue
			}
			payload := strings.TrimPrefix(line, "data: ")
			if payload == "[DONE]" {
				return
			}
			var chunk lmStudioChatResponse
			if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
				emit(ctx, out, StreamChunk{Err: fmt.Errorf("lmstudio: parsing stream chunk: %w", err)})
				return
			}
			if chunk.Error != nil {
				emit(ctx, out, StreamChunk{Err: fmt.Errorf("lmstudio: api error: %s", chunk.Error.Message)})
				return
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			if text := chunk.Choices[0].Delta.Content; text != "" {
				if !emit(ctx, out, StreamChunk{Text: text}) {
					return
				}
			}
		}
		if err := scanner.Err(); err != nil {
			emit(ctx, out, StreamChunk{Err: fmt.Errorf("lmstudio: reading stream: %w", err)})
		}
	}()
	return out, nil
}

// Available implements Adapter using the models endpoint as the probe.
func (a *LMStudioAdapter) Available(ctx context.Context) bool {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/v1/models", nil)
	if err != nil {
		return false
	}
	resp, err := a.probeClient.Do(httpReq)
	if err != nil {
		slog.Debug("LM Studio availability probe failed", "error", err)
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

// ListModels implements Adapter using GET /v1/models.
func (a *LMStudioAdapter) ListModels(ctx context.Context) ([]string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/v1/models", nil)
	if err != nil {
		return nil, fmt.Errorf("lmstudio: creating request: %w", err)
	}
	resp, err := a.probeClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("lmstudio: listing models: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("lmstudio: reading model listing: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("lmstudio: status %d: %s", resp.StatusCode, truncateForLog(respBody))
	}

	var listing lmStudioModelsResponse
	if err := json.Unmarshal(respBody, &listing); err != nil {
		return nil, fmt.Errorf("lmstudio: parsing model listing: %w", err)
	}

	names := make([]string, 0, len(listing.Data))
	for _, m := range listing.Data {
		names = append(names, m.ID)
	}
	return names, nil
}

// Close implements Adapter by dropping idle keep-alive connections.
func (a *LMStudioAdapter) Close() error {
	a.httpClient.CloseIdleConnections()
	a.streamClient.CloseIdleConnections()
	a.probeClient.CloseIdleConnections()
	return nil
}
