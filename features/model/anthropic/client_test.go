package anthropic

import (
	"context"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/moneywise-vn/advisor/runtime/advisor/model"
)

type stubMessagesClient struct {
	lastParams sdk.MessageNewParams
	resp       *sdk.Message
	err        error
}

func (s *stubMessagesClient) New(_ context.Context, body sdk.MessageNewParams, _ ...option.RequestOption) (*sdk.Message, error) {
	s.lastParams = body
	return s.resp, s.err
}

func (s *stubMessagesClient) NewStreaming(_ context.Context, body sdk.MessageNewParams, _ ...option.RequestOption) *ssestream.Stream[sdk.MessageStreamEventUnion] {
	s.lastParams = body
	return ssestream.NewStream[sdk.MessageStreamEventUnion](&testDecoder{}, nil)
}

func TestNewValidatesOptions(t *testing.T) {
	if _, err := New(nil, Options{DefaultModel: "claude-sonnet-4-5"}); err == nil {
		t.Fatal("expected error for nil client")
	}
	if _, err := New(&stubMessagesClient{}, Options{}); err == nil {
		t.Fatal("expected error for missing default model")
	}
}

func TestPrepareRequestEncodesMessagesAndSystem(t *testing.T) {
	stub := &stubMessagesClient{resp: &sdk.Message{}}
	cl, err := New(stub, Options{DefaultModel: "claude-sonnet-4-5", MaxTokens: 1024, Temperature: 0.3})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	req := &model.Request{
		System: "Bạn là trợ lý tài chính.",
		Messages: []model.Message{
			{Role: model.RoleUser, Content: "tạo ngân sách"},
			{Role: model.RoleSystem, Content: "extra system"},
			{Role: model.RoleAssistant, Content: "đang xử lý"},
		},
	}
	if _, err := cl.Complete(context.Background(), req); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	params := stub.lastParams
	if got := string(params.Model); got != "claude-sonnet-4-5" {
		t.Errorf("model = %q", got)
	}
	if params.MaxTokens != 1024 {
		t.Errorf("max tokens = %d", params.MaxTokens)
	}
	if len(params.System) != 2 {
		t.Fatalf("system blocks = %d, want 2", len(params.System))
	}
	if params.System[0].Text != "Bạn là trợ lý tài chính." {
		t.Errorf("system[0] = %q", params.System[0].Text)
	}
	if len(params.Messages) != 2 {
		t.Fatalf("messages = %d, want 2 (system folded out)", len(params.Messages))
	}
}

func TestPrepareRequestRequiresMaxTokens(t *testing.T) {
	cl, err := New(&stubMessagesClient{}, Options{DefaultModel: "claude-sonnet-4-5"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = cl.Complete(context.Background(), &model.Request{
		Messages: []model.Message{{Role: model.RoleUser, Content: "hi"}},
	})
	if err == nil {
		t.Fatal("expected error when no max_tokens configured")
	}
}

func TestEncodeToolsSanitizesNames(t *testing.T) {
	defs := []*model.ToolDefinition{
		{
			Name:        "budget.create",
			Description: "Create a budget.",
			InputSchema: map[string]any{"type": "object"},
		},
	}
	toolList, nameMap, err := encodeTools(defs)
	if err != nil {
		t.Fatalf("encodeTools: %v", err)
	}
	if len(toolList) != 1 {
		t.Fatalf("tools = %d, want 1", len(toolList))
	}
	if toolList[0].OfTool == nil {
		t.Fatal("expected OfTool variant")
	}
	if got := toolList[0].OfTool.Name; got != "budget_create" {
		t.Errorf("sanitized name = %q", got)
	}
	if nameMap["budget_create"] != "budget.create" {
		t.Errorf("name map = %v", nameMap)
	}
}

func TestEncodeToolsRejectsCollisions(t *testing.T) {
	defs := []*model.ToolDefinition{
		{Name: "a.b", Description: "one"},
		{Name: "a_b", Description: "two"},
	}
	if _, _, err := encodeTools(defs); err == nil {
		t.Fatal("expected collision error")
	}
}

func TestEncodeToolsRequiresDescription(t *testing.T) {
	defs := []*model.ToolDefinition{{Name: "create_budget"}}
	if _, _, err := encodeTools(defs); err == nil {
		t.Fatal("expected missing description error")
	}
}

func TestTranslateResponseMapsToolUse(t *testing.T) {
	var msg sdk.Message
	mustUnmarshalJSON(t, `{
  "content": [
    { "type": "text", "text": "Để tôi tạo ngân sách. " },
    { "type": "tool_use", "id": "toolu_1", "name": "create_budget", "input": {"title": "x"} }
  ],
  "stop_reason": "tool_use",
  "usage": { "input_tokens": 12, "output_tokens": 34 }
}`, &msg)

	resp, err := translateResponse(&msg, map[string]string{"create_budget": "create_budget"})
	if err != nil {
		t.Fatalf("translateResponse: %v", err)
	}
	if resp.Content != "Để tôi tạo ngân sách. " {
		t.Errorf("content = %q", resp.Content)
	}
	if len(resp.ToolCalls) != 1 {
		t.Fatalf("tool calls = %d, want 1", len(resp.ToolCalls))
	}
	tc := resp.ToolCalls[0]
	if tc.ID != "toolu_1" || tc.Name != "create_budget" {
		t.Errorf("tool call = %+v", tc)
	}
	if tc.RawArgs != `{"title": "x"}` {
		t.Errorf("raw args = %q", tc.RawArgs)
	}
	if resp.Usage.TotalTokens != 46 {
		t.Errorf("total tokens = %d", resp.Usage.TotalTokens)
	}
	if resp.StopReason != "tool_use" {
		t.Errorf("stop reason = %q", resp.StopReason)
	}
}
