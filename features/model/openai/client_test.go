package openai

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"
	"github.com/openai/openai-go/responses"

	"github.com/moneywise-vn/advisor/runtime/advisor/model"
)

type stubResponsesClient struct {
	lastParams responses.ResponseNewParams
	resp       *responses.Response
	err        error
}

func (s *stubResponsesClient) New(_ context.Context, body responses.ResponseNewParams, _ ...option.RequestOption) (*responses.Response, error) {
	s.lastParams = body
	return s.resp, s.err
}

func (s *stubResponsesClient) NewStreaming(_ context.Context, body responses.ResponseNewParams, _ ...option.RequestOption) *ssestream.Stream[responses.ResponseStreamEventUnion] {
	s.lastParams = body
	return ssestream.NewStream[responses.ResponseStreamEventUnion](&testDecoder{}, nil)
}

func TestNewValidatesOptions(t *testing.T) {
	if _, err := New(nil, Options{DefaultModel: "gpt-4o-mini"}); err == nil {
		t.Fatal("expected error for nil client")
	}
	if _, err := New(&stubResponsesClient{}, Options{}); err == nil {
		t.Fatal("expected error for missing default model")
	}
}

func TestPrepareRequestFoldsSystemIntoInstructions(t *testing.T) {
	stub := &stubResponsesClient{resp: &responses.Response{}}
	cl, err := New(stub, Options{DefaultModel: "gpt-4o-mini", MaxTokens: 512})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	req := &model.Request{
		System: "Bạn là trợ lý tài chính.",
		Messages: []model.Message{
			{Role: model.RoleSystem, Content: "extra system"},
			{Role: model.RoleUser, Content: "tạo ngân sách"},
			{Role: model.RoleAssistant, Content: "đang xử lý"},
		},
	}
	if _, err := cl.Complete(context.Background(), req); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	params := stub.lastParams
	if got := string(params.Model); got != "gpt-4o-mini" {
		t.Errorf("model = %q", got)
	}
	if !params.Instructions.Valid() {
		t.Fatal("instructions not set")
	}
	instructions := params.Instructions.Value
	if instructions != "Bạn là trợ lý tài chính.\n\nextra system" {
		t.Errorf("instructions = %q", instructions)
	}
	if len(params.Input.OfInputItemList) != 2 {
		t.Fatalf("input items = %d, want 2", len(params.Input.OfInputItemList))
	}
}

func TestPrepareRequestRequiresMessages(t *testing.T) {
	cl, err := New(&stubResponsesClient{}, Options{DefaultModel: "gpt-4o-mini", MaxTokens: 512})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := cl.Complete(context.Background(), &model.Request{}); err == nil {
		t.Fatal("expected error for empty messages")
	}
}

func TestEncodeToolsPreservesSchema(t *testing.T) {
	defs := []*model.ToolDefinition{
		{
			Name:        "create_budget",
			Description: "Create a monthly budget.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"title": map[string]any{"type": "string"},
				},
				"required": []string{"title"},
			},
		},
	}
	tools, aliasToCanon, err := encodeTools(defs)
	if err != nil {
		t.Fatalf("encodeTools: %v", err)
	}
	if len(tools) != 1 {
		t.Fatalf("tools = %d, want 1", len(tools))
	}
	fn := tools[0].OfFunction
	if fn == nil {
		t.Fatal("expected OfFunction variant")
	}
	if fn.Name != "create_budget" {
		t.Errorf("name = %q", fn.Name)
	}
	required, ok := fn.Parameters["required"].([]string)
	if !ok || len(required) != 1 || required[0] != "title" {
		t.Errorf("required = %v", fn.Parameters["required"])
	}
	if aliasToCanon["create_budget"] != "create_budget" {
		t.Errorf("alias map = %v", aliasToCanon)
	}
}

func TestEncodeToolsSanitizesAndRejectsCollisions(t *testing.T) {
	tools, aliasToCanon, err := encodeTools([]*model.ToolDefinition{
		{Name: "budget.create", Description: "x"},
	})
	if err != nil {
		t.Fatalf("encodeTools: %v", err)
	}
	if tools[0].OfFunction.Name != "budget_create" {
		t.Errorf("sanitized = %q", tools[0].OfFunction.Name)
	}
	if aliasToCanon["budget_create"] != "budget.create" {
		t.Errorf("alias map = %v", aliasToCanon)
	}

	_, _, err = encodeTools([]*model.ToolDefinition{
		{Name: "a.b", Description: "x"},
		{Name: "a_b", Description: "y"},
	})
	if err == nil {
		t.Fatal("expected collision error")
	}
}

func TestTranslateResponseMapsFunctionCalls(t *testing.T) {
	var rsp responses.Response
	raw := `{
  "status": "completed",
  "usage": {"input_tokens": 5, "output_tokens": 7, "total_tokens": 12},
  "output": [
    {
      "type": "function_call",
      "id": "item_1",
      "call_id": "call_1",
      "name": "create_budget",
      "arguments": "{\"title\": \"x\"}"
    }
  ]
}`
	if err := json.Unmarshal([]byte(raw), &rsp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}

	out := translateResponse(&rsp, map[string]string{"create_budget": "create_budget"})
	if len(out.ToolCalls) != 1 {
		t.Fatalf("tool calls = %d, want 1", len(out.ToolCalls))
	}
	tc := out.ToolCalls[0]
	if tc.ID != "call_1" || tc.Name != "create_budget" {
		t.Errorf("tool call = %+v", tc)
	}
	if tc.RawArgs != `{"title": "x"}` {
		t.Errorf("raw args = %q", tc.RawArgs)
	}
	if out.StopReason != "tool_calls" {
		t.Errorf("stop reason = %q, want tool_calls upgrade", out.StopReason)
	}
	if out.Usage.TotalTokens != 12 {
		t.Errorf("total tokens = %d", out.Usage.TotalTokens)
	}
}

func TestMapStatus(t *testing.T) {
	cases := map[string]string{
		"":           "stop",
		"completed":  "stop",
		"incomplete": "length",
		"failed":     "failed",
	}
	for in, want := range cases {
		if got := mapStatus(in); got != want {
			t.Errorf("mapStatus(%q) = %q, want %q", in, got, want)
		}
	}
}
