package orchestrator

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moneywise-vn/advisor/runtime/advisor/config"
	"github.com/moneywise-vn/advisor/runtime/advisor/memory"
	"github.com/moneywise-vn/advisor/runtime/advisor/model"
	"github.com/moneywise-vn/advisor/runtime/advisor/stream"
	"github.com/moneywise-vn/advisor/runtime/advisor/tools"
)

// fakeStreamer replays scripted chunks.
type fakeStreamer struct {
	chunks []model.Chunk
	pos    int
}

func (s *fakeStreamer) Recv() (model.Chunk, error) {
	if s.pos >= len(s.chunks) {
		return model.Chunk{}, io.EOF
	}
	c := s.chunks[s.pos]
	s.pos++
	return c, nil
}

func (s *fakeStreamer) Close() error             { return nil }
func (s *fakeStreamer) Metadata() map[string]any { return nil }

// fakeClient serves one scripted stream and records the request it saw.
type fakeClient struct {
	mu      sync.Mutex
	chunks  []model.Chunk
	openErr error
	lastReq *model.Request
}

func (c *fakeClient) Stream(ctx context.Context, req *model.Request) (model.Streamer, error) {
	c.mu.Lock()
	c.lastReq = req
	c.mu.Unlock()
	if c.openErr != nil {
		return nil, c.openErr
	}
	return &fakeStreamer{chunks: c.chunks}, nil
}

func (c *fakeClient) Complete(ctx context.Context, req *model.Request) (*model.Response, error) {
	return nil, model.ErrStreamingUnsupported
}

func (c *fakeClient) request() *model.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastReq
}

// recordingStore captures persisted facts.
type recordingStore struct {
	mu       sync.Mutex
	context  string
	fetchErr error
	saved    []memory.Fact
}

func (s *recordingStore) FetchContext(ctx context.Context, userID string) (string, error) {
	return s.context, s.fetchErr
}

func (s *recordingStore) Persist(ctx context.Context, userID string, facts []memory.Fact) error {
	s.mu.Lock()
	s.saved = append(s.saved, facts...)
	s.mu.Unlock()
	return nil
}

func (s *recordingStore) persisted() []memory.Fact {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]memory.Fact(nil), s.saved...)
}

func newOrchestrator(t *testing.T, client model.Client, store memory.Store) *Orchestrator {
	t.Helper()
	o, err := New(Options{
		Resolver: config.Default(),
		Registry: tools.DefaultRegistry(),
		Client:   client,
		Memory:   store,
	})
	require.NoError(t, err)
	return o
}

func drain(t *testing.T, events <-chan stream.Event) []stream.Event {
	t.Helper()
	var out []stream.Event
	for ev := range events {
		out = append(out, ev)
	}
	return out
}

func TestRunVietnameseBudgetTurn(t *testing.T) {
	client := &fakeClient{chunks: []model.Chunk{
		{Type: model.ChunkTypeText, Text: "Để tôi tạo "},
		{Type: model.ChunkTypeText, Text: "ngân sách cho bạn"},
		{Type: model.ChunkTypeToolCallDelta, ToolCallDelta: &model.ToolCallDelta{
			ID:    "call_1",
			Name:  "create_budget",
			Delta: `{"component_id": "budget_tool_1700000000000", "title": "Tạo ngân sách ăn uống",`,
		}},
		{Type: model.ChunkTypeToolCallDelta, ToolCallDelta: &model.ToolCallDelta{
			ID:    "call_1",
			Delta: ` "context": {"amount": 5000000}}`,
		}},
		{Type: model.ChunkTypeToolCallDone, ToolCallDone: &model.ToolCallDone{ID: "call_1", Name: "create_budget"}},
		{Type: model.ChunkTypeStop, StopReason: "tool_calls"},
	}}
	store := &recordingStore{}
	o := newOrchestrator(t, client, store)

	events := drain(t, o.Run(context.Background(), Request{
		Message: "tạo ngân sách ăn uống 5 triệu",
		UserID:  "user_1",
		Profile: map[string]any{"financial_stage": "START_SAVING", "budget_style": "DETAIL_TRACKER"},
		Stage:   config.StageStartSaving,
		Style:   config.StyleDetailTracker,
	}))

	require.NotEmpty(t, events)
	assert.Equal(t, stream.EventResponseCreated, events[0].Type)
	assert.NotEmpty(t, events[0].ResponseID)
	assert.Equal(t, stream.EventCompleted, events[len(events)-1].Type)

	var textDone, callDone *stream.Event
	for i := range events {
		switch events[i].Type {
		case stream.EventTextDone:
			textDone = &events[i]
		case stream.EventCallArgsDone:
			callDone = &events[i]
		}
	}
	require.NotNil(t, textDone)
	assert.Equal(t, "Để tôi tạo ngân sách cho bạn", textDone.Content)

	require.NotNil(t, callDone)
	require.NotNil(t, callDone.Action)
	assert.Equal(t, "create_budget", callDone.Action.Type)
	require.NotNil(t, callDone.Action.Payload.ComponentID)
	assert.Equal(t, "budget_tool_1700000000000", *callDone.Action.Payload.ComponentID)
	require.NotNil(t, callDone.Action.Payload.Title)
	assert.Equal(t, "Tạo ngân sách ăn uống", *callDone.Action.Payload.Title)
	assert.Equal(t, float64(5000000), callDone.Action.Payload.Context["amount"])

	// The tool list advertised to the provider matches the START_SAVING cell.
	req := client.request()
	require.NotNil(t, req)
	names := make([]string, 0, len(req.Tools))
	for _, def := range req.Tools {
		names = append(names, def.Name)
	}
	assert.Contains(t, names, "create_budget")
	assert.Contains(t, names, "suggest_savings_plan")

	// Turn facts were persisted for the user.
	facts := store.persisted()
	require.Len(t, facts, 2)
	assert.Equal(t, "tạo ngân sách ăn uống 5 triệu", facts[0].Content)
	assert.Equal(t, "Để tôi tạo ngân sách cho bạn", facts[1].Content)
}

func TestRunConfigurationMissing(t *testing.T) {
	// A resolver with a single cell leaves every other pair unresolvable.
	resolver, err := config.BuildResolver(map[config.Key]config.Entry{
		{Stage: config.StageStartSaving, Style: config.StyleDetailTracker}: {
			Prompt: func(config.PromptContext) string { return "x" },
			Tools:  config.ToolAccess{Chat: []tools.Ident{tools.IdentRecordExpense}},
		},
	})
	require.NoError(t, err)

	// New validates the full cross-product at bootstrap, so a partial table
	// is rejected outright.
	_, err = New(Options{
		Resolver: resolver,
		Registry: tools.DefaultRegistry(),
		Client:   &fakeClient{},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrConfigurationMissing)
}

func TestRunUnresolvableStageEmitsSingleError(t *testing.T) {
	client := &fakeClient{}
	o := newOrchestrator(t, client, nil)

	// The request layer normally validates stage/style, but a raw value that
	// slips through must fail with one error event and no provider call.
	events := drain(t, o.Run(context.Background(), Request{
		Message: "xin chào",
		Stage:   config.FinancialStage("RETIRE_EARLY"),
		Style:   config.StyleDetailTracker,
	}))

	require.Len(t, events, 1)
	assert.Equal(t, stream.EventError, events[0].Type)
	assert.Equal(t, "configuration missing for stage/style", events[0].Error)
	assert.Nil(t, client.request(), "provider must not be called")
}

func TestRunProviderOpenFailure(t *testing.T) {
	client := &fakeClient{openErr: errors.New("dial tcp: refused")}
	o := newOrchestrator(t, client, nil)

	events := drain(t, o.Run(context.Background(), Request{
		Message: "xin chào",
		Stage:   config.StageStartSaving,
		Style:   config.StyleDetailTracker,
	}))

	require.Len(t, events, 1)
	assert.Equal(t, stream.EventError, events[0].Type)
	assert.Equal(t, "provider stream failed to open", events[0].Error)
}

func TestRunMemoryFetchFailureDegrades(t *testing.T) {
	client := &fakeClient{chunks: []model.Chunk{
		{Type: model.ChunkTypeText, Text: "chào bạn"},
		{Type: model.ChunkTypeStop, StopReason: "stop"},
	}}
	store := &recordingStore{fetchErr: errors.New("redis down")}
	o := newOrchestrator(t, client, store)

	events := drain(t, o.Run(context.Background(), Request{
		Message: "xin chào",
		UserID:  "user_1",
		Stage:   config.StageStartSaving,
		Style:   config.StyleDetailTracker,
	}))

	// The turn completes without user context.
	assert.Equal(t, stream.EventCompleted, events[len(events)-1].Type)
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Options{Registry: tools.DefaultRegistry(), Client: &fakeClient{}})
	assert.Error(t, err)

	_, err = New(Options{Resolver: config.Default(), Client: &fakeClient{}})
	assert.Error(t, err)

	_, err = New(Options{Resolver: config.Default(), Registry: tools.DefaultRegistry()})
	assert.Error(t, err)
}

func TestTruncateHistory(t *testing.T) {
	long := make([]model.Message, 30)
	for i := range long {
		long[i] = model.Message{Role: model.RoleUser, Content: string(rune('a' + i%26))}
	}
	got := truncateHistory(long, MaxHistoryMessages)
	require.Len(t, got, MaxHistoryMessages)
	assert.Equal(t, long[10], got[0], "oldest messages are dropped")

	short := long[:5]
	assert.Equal(t, short, truncateHistory(short, MaxHistoryMessages))
}

func TestStageStyleFromProfile(t *testing.T) {
	stage, style, err := StageStyleFromProfile(map[string]any{
		"financial_stage": "start_saving",
		"budget_style":    "GOAL_PLANNER",
	})
	require.NoError(t, err)
	assert.Equal(t, config.StageStartSaving, stage)
	assert.Equal(t, config.StyleGoalPlanner, style)

	_, _, err = StageStyleFromProfile(map[string]any{"financial_stage": "YOLO"})
	assert.Error(t, err)

	_, _, err = StageStyleFromProfile(nil)
	assert.Error(t, err)
}

func TestProfileJSON(t *testing.T) {
	assert.Equal(t, "{}", ProfileJSON(nil))
	assert.Equal(t, "{}", ProfileJSON(map[string]any{"bad": func() {}}))
	assert.JSONEq(t, `{"a":1}`, ProfileJSON(map[string]any{"a": 1}))
}
