package agent

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ckindle-42/portal/pkg/bus"
	"github.com/ckindle-42/portal/pkg/config"
	"github.com/ckindle-42/portal/pkg/engine"
	"github.com/ckindle-42/portal/pkg/errs"
	"github.com/ckindle-42/portal/pkg/models"
	"github.com/ckindle-42/portal/pkg/tools"
)

// memStore is an in-memory ContextStore capturing call order.
type memStore struct {
	mu       sync.Mutex
	messages map[string][]models.Message
	addErr   error
}

func newMemStore() *memStore {
	return &memStore{messages: make(map[string][]models.Message)}
}

func (s *memStore) Add(_ context.Context, chatID string, role models.Role, content, iface string, metadata map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.addErr != nil {
		return s.addErr
	}
	s.messages[chatID] = append(s.messages[chatID], models.Message{
		Role: role, Content: content, Interface: iface, Metadata: metadata,
		Timestamp: time.Now().UTC(),
	})
	return nil
}

func (s *memStore) History(_ context.Context, chatID string, limit int, _ bool) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.messages[chatID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]models.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (s *memStore) roles(chatID string) []models.Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Role
	for _, m := range s.messages[chatID] {
		out = append(out, m.Role)
	}
	return out
}

// fakeExecutor scripts the engine outcome and records the request.
type fakeExecutor struct {
	result *models.ExecutionResult
	err    error
	last   *engine.Request
}

func (f *fakeExecutor) Execute(_ context.Context, req *engine.Request) (*models.ExecutionResult, error) {
	f.last = req
	return f.result, f.err
}

// fakePrompts returns a fixed system prompt.
type fakePrompts struct{ prompt string }

func (f *fakePrompts) BuildSystemPrompt(_, _ string) string { return f.prompt }

// eventRecorder collects events of one type.
type eventRecorder struct {
	mu     sync.Mutex
	events []models.Event
}

func (r *eventRecorder) handler() bus.Handler {
	return func(ev models.Event) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.events = append(r.events, ev)
	}
}

func (r *eventRecorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func newTestAgent(exec *fakeExecutor) (*Agent, *memStore, *bus.Bus) {
	store := newMemStore()
	b := bus.New(config.DefaultEventsConfig())
	a := New(config.DefaultAgentConfig(), store, exec, b, &fakePrompts{prompt: "You are Portal."}, tools.NewRegistry(), nil)
	return a, store, b
}

func TestProcessSuccess(t *testing.T) {
	exec := &fakeExecutor{result: &models.ExecutionResult{
		Success: true, Response: "hello!", ModelUsed: "m_small",
		TokensGenerated: 3, ToolCalls: []models.ToolCall{},
	}}
	a, store, b := newTestAgent(exec)

	completed := &eventRecorder{}
	b.Subscribe(models.EventProcessingCompleted, completed.handler())

	result, err := a.Process(context.Background(), &Request{
		ChatID: "web_1", Message: "hi", Interface: "web",
	})

	require.NoError(t, err)
	assert.Equal(t, "hello!", result.Response)
	assert.Equal(t, "m_small", result.ModelUsed)
	assert.Len(t, result.TraceID, 8)

	// Both sides of the exchange are durably recorded, user first.
	assert.Equal(t, []models.Role{models.RoleUser, models.RoleAssistant}, store.roles("web_1"))
	assert.Equal(t, 1, completed.len())
}

func TestProcessPersistsUserMessageBeforeExecution(t *testing.T) {
	exec := &fakeExecutor{err: errors.New("engine blew up")}
	a, store, _ := newTestAgent(exec)

	_, err := a.Process(context.Background(), &Request{
		ChatID: "web_1", Message: "hi", Interface: "web",
	})

	require.Error(t, err)
	// The user message survived the engine failure.
	assert.Equal(t, []models.Role{models.RoleUser}, store.roles("web_1"))
}

func TestProcessPassesHistoryAndPrompt(t *testing.T) {
	exec := &fakeExecutor{result: &models.ExecutionResult{
		Success: true, Response: "again", ModelUsed: "m_small",
	}}
	a, store, _ := newTestAgent(exec)
	ctx := context.Background()

	require.NoError(t, store.Add(ctx, "web_1", models.RoleUser, "first", "web", nil))
	require.NoError(t, store.Add(ctx, "web_1", models.RoleAssistant, "first answer", "web", nil))

	_, err := a.Process(ctx, &Request{ChatID: "web_1", Message: "second", Interface: "web"})

	require.NoError(t, err)
	require.NotNil(t, exec.last)
	assert.Equal(t, "You are Portal.", exec.last.SystemPrompt)
	// Two history entries plus the current user message.
	require.Len(t, exec.last.Messages, 3)
	assert.Equal(t, "second", exec.last.Messages[2].Content)
}

func TestProcessToolNamesAppendedToPrompt(t *testing.T) {
	exec := &fakeExecutor{result: &models.ExecutionResult{
		Success: true, Response: "ok", ModelUsed: "m_small",
	}}
	store := newMemStore()
	reg := tools.NewRegistry()
	reg.Register(&stubTool{name: "convert_pdf"})
	a := New(config.DefaultAgentConfig(), store, exec, nil, &fakePrompts{prompt: "base"}, reg, nil)

	_, err := a.Process(context.Background(), &Request{ChatID: "c", Message: "hi", Interface: "web"})

	require.NoError(t, err)
	assert.Contains(t, exec.last.SystemPrompt, "Available tools: convert_pdf")
}

func TestProcessUnsuccessfulResultBecomesTypedError(t *testing.T) {
	exec := &fakeExecutor{result: &models.ExecutionResult{
		Success: false, ModelUsed: "none",
		Error: "All models failed. Last error: boom",
	}}
	a, _, b := newTestAgent(exec)

	failed := &eventRecorder{}
	b.Subscribe(models.EventProcessingFailed, failed.handler())

	_, err := a.Process(context.Background(), &Request{ChatID: "c", Message: "hi", Interface: "web"})

	require.Error(t, err)
	assert.Equal(t, errs.CodeProcessing, errs.CodeOf(err))
	assert.Equal(t, 1, failed.len())
}

func TestProcessWrapsUntypedErrors(t *testing.T) {
	exec := &fakeExecutor{err: errors.New("socket melted")}
	a, _, _ := newTestAgent(exec)

	_, err := a.Process(context.Background(), &Request{ChatID: "c", Message: "hi", Interface: "web"})

	require.Error(t, err)
	typed := errs.AsError(err)
	require.NotNil(t, typed)
	assert.Equal(t, errs.CodeProcessing, typed.Code)
	assert.Equal(t, "socket melted", typed.Details["cause"])
}

func TestProcessPreservesTypedErrors(t *testing.T) {
	exec := &fakeExecutor{err: errs.Validation("bad input")}
	a, _, _ := newTestAgent(exec)

	_, err := a.Process(context.Background(), &Request{ChatID: "c", Message: "hi", Interface: "web"})

	assert.Equal(t, errs.CodeValidation, errs.CodeOf(err))
}

func TestStats(t *testing.T) {
	exec := &fakeExecutor{result: &models.ExecutionResult{
		Success: true, Response: "ok", ModelUsed: "m_small",
	}}
	a, _, _ := newTestAgent(exec)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := a.Process(ctx, &Request{ChatID: "c", Message: "hi", Interface: "web"})
		require.NoError(t, err)
	}
	exec.result = &models.ExecutionResult{Success: false, ModelUsed: "none", Error: "nope"}
	_, _ = a.Process(ctx, &Request{ChatID: "c", Message: "hi", Interface: "telegram"})

	stats := a.Stats()

	assert.Equal(t, int64(3), stats.MessagesProcessed)
	assert.Equal(t, int64(1), stats.ErrorCount)
	assert.Equal(t, int64(3), stats.PerInterface["web"])
	assert.Zero(t, stats.PerInterface["telegram"], "failed requests are not counted per interface")
}

// stubTool satisfies tools.Tool for prompt and executor tests.
type stubTool struct {
	name     string
	confirm  bool
	execErr  error
	panicMsg string
}

func (s *stubTool) Name() string               { return s.name }
func (s *stubTool) Category() string           { return "test" }
func (s *stubTool) RequiresConfirmation() bool { return s.confirm }
func (s *stubTool) Execute(context.Context, map[string]any) (any, error) {
	if s.panicMsg != "" {
		panic(s.panicMsg)
	}
	if s.execErr != nil {
		return nil, s.execErr
	}
	return "done", nil
}

func TestExecuteToolSuccess(t *testing.T) {
	a, _, _ := newTestAgent(&fakeExecutor{})
	a.tools.Register(&stubTool{name: "convert_pdf"})

	result, err := a.ExecuteTool(context.Background(), "convert_pdf", nil, "c", "u1")

	require.NoError(t, err)
	assert.Equal(t, "done", result)
	assert.Equal(t, int64(1), a.Stats().ToolsExecuted)
}

func TestExecuteToolUnknown(t *testing.T) {
	a, _, _ := newTestAgent(&fakeExecutor{})

	_, err := a.ExecuteTool(context.Background(), "missing", nil, "c", "u1")

	assert.Equal(t, errs.CodeToolExecution, errs.CodeOf(err))
}

func TestExecuteToolFailureWrapped(t *testing.T) {
	a, _, _ := newTestAgent(&fakeExecutor{})
	a.tools.Register(&stubTool{name: "flaky", execErr: errors.New("disk full")})

	_, err := a.ExecuteTool(context.Background(), "flaky", nil, "c", "u1")

	require.Error(t, err)
	assert.Equal(t, errs.CodeToolExecution, errs.CodeOf(err))
	assert.Contains(t, err.Error(), "flaky")
}

func TestExecuteToolPanicContained(t *testing.T) {
	a, _, _ := newTestAgent(&fakeExecutor{})
	a.tools.Register(&stubTool{name: "bomb", panicMsg: "kaboom"})

	_, err := a.ExecuteTool(context.Background(), "bomb", nil, "c", "u1")

	require.Error(t, err)
	assert.Equal(t, errs.CodeToolExecution, errs.CodeOf(err))
	assert.Contains(t, err.Error(), "kaboom")
}

func TestExecuteToolConfirmationDenied(t *testing.T) {
	b := bus.New(config.DefaultEventsConfig())
	gate := tools.NewConfirmationGate(b, 50*time.Millisecond)
	reg := tools.NewRegistry()
	reg.Register(&stubTool{name: "git_push", confirm: true})
	a := New(config.DefaultAgentConfig(), newMemStore(), &fakeExecutor{}, b, nil, reg, gate)

	// Nobody resolves the confirmation, so it times out (== denial).
	_, err := a.ExecuteTool(context.Background(), "git_push", nil, "c", "u1")

	require.Error(t, err)
	assert.Equal(t, errs.CodeToolExecution, errs.CodeOf(err))
	assert.Contains(t, err.Error(), "timed out")
}
