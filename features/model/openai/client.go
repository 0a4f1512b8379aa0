// Package openai provides a model.Client implementation backed by the OpenAI
// Responses API. Streaming events are translated into the generic chunk
// stream; tool-call argument fragments pass through verbatim keyed by call
// id, leaving assembly to the runtime translator.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"
	"github.com/openai/openai-go/responses"
	"github.com/openai/openai-go/shared"

	"github.com/moneywise-vn/advisor/runtime/advisor/model"
)

type (
	// ResponsesClient captures the subset of the OpenAI SDK used by the
	// adapter. Satisfied by *responses.ResponseService so tests can pass a
	// stub.
	ResponsesClient interface {
		New(ctx context.Context, body responses.ResponseNewParams, opts ...option.RequestOption) (*responses.Response, error)
		NewStreaming(ctx context.Context, body responses.ResponseNewParams, opts ...option.RequestOption) *ssestream.Stream[responses.ResponseStreamEventUnion]
	}

	// Options configures the adapter.
	Options struct {
		// DefaultModel is used when model.Request.Model is empty.
		DefaultModel string

		// MaxTokens caps completions when a request does not set MaxTokens.
		MaxTokens int

		// Temperature is used when a request does not set Temperature.
		Temperature float64
	}

	// Client implements model.Client on top of the Responses API.
	Client struct {
		rsp          ResponsesClient
		defaultModel string
		maxTok       int
		temp         float64
	}
)

// New builds an OpenAI-backed model client.
func New(rsp ResponsesClient, opts Options) (*Client, error) {
	if rsp == nil {
		return nil, errors.New("openai client is required")
	}
	if opts.DefaultModel == "" {
		return nil, errors.New("default model identifier is required")
	}
	return &Client{
		rsp:          rsp,
		defaultModel: opts.DefaultModel,
		maxTok:       opts.MaxTokens,
		temp:         opts.Temperature,
	}, nil
}

// NewFromAPIKey constructs a client using the default OpenAI HTTP client.
func NewFromAPIKey(apiKey, defaultModel string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("api key is required")
	}
	oc := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&oc.Responses, Options{DefaultModel: defaultModel, MaxTokens: 4096})
}

// Complete issues a non-streaming Responses request.
func (c *Client) Complete(ctx context.Context, req *model.Request) (*model.Response, error) {
	params, aliasToCanon, err := c.prepareRequest(req)
	if err != nil {
		return nil, err
	}
	rsp, err := c.rsp.New(ctx, *params)
	if err != nil {
		if isRateLimited(err) {
			return nil, fmt.Errorf("%w: %w", model.ErrRateLimited, err)
		}
		return nil, fmt.Errorf("openai responses.new: %w", err)
	}
	return translateResponse(rsp, aliasToCanon), nil
}

// Stream invokes the streaming Responses API and adapts incremental events
// into model.Chunks.
func (c *Client) Stream(ctx context.Context, req *model.Request) (model.Streamer, error) {
	params, aliasToCanon, err := c.prepareRequest(req)
	if err != nil {
		return nil, err
	}
	stream := c.rsp.NewStreaming(ctx, *params)
	if err := stream.Err(); err != nil {
		if isRateLimited(err) {
			return nil, fmt.Errorf("%w: %w", model.ErrRateLimited, err)
		}
		return nil, fmt.Errorf("openai responses.new stream: %w", err)
	}
	return newStreamer(ctx, stream, aliasToCanon), nil
}

func (c *Client) prepareRequest(req *model.Request) (*responses.ResponseNewParams, map[string]string, error) {
	if len(req.Messages) == 0 {
		return nil, nil, errors.New("openai: messages are required")
	}
	modelID := req.Model
	if modelID == "" {
		modelID = c.defaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTok
	}
	if maxTokens <= 0 {
		return nil, nil, errors.New("openai: max_tokens must be positive")
	}

	params := responses.ResponseNewParams{
		Model:           shared.ResponsesModel(modelID),
		MaxOutputTokens: sdk.Int(int64(maxTokens)),
	}
	if t := req.Temperature; t > 0 {
		params.Temperature = sdk.Float(t)
	} else if c.temp > 0 {
		params.Temperature = sdk.Float(c.temp)
	}

	instructions := req.System
	items := make(responses.ResponseInputParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Content == "" {
			continue
		}
		switch m.Role {
		case model.RoleSystem:
			// System content travels via Instructions; fold stray system
			// messages in as well.
			if instructions == "" {
				instructions = m.Content
			} else {
				instructions += "\n\n" + m.Content
			}
		case model.RoleUser:
			items = append(items, responses.ResponseInputItemParamOfMessage(m.Content, responses.EasyInputMessageRoleUser))
		case model.RoleAssistant:
			items = append(items, responses.ResponseInputItemParamOfMessage(m.Content, responses.EasyInputMessageRoleAssistant))
		default:
			return nil, nil, fmt.Errorf("openai: unsupported message role %q", m.Role)
		}
	}
	if len(items) == 0 {
		return nil, nil, errors.New("openai: at least one user/assistant message is required")
	}
	params.Input = responses.ResponseNewParamsInputUnion{OfInputItemList: items}
	if instructions != "" {
		params.Instructions = sdk.String(instructions)
	}

	tools, aliasToCanon, err := encodeTools(req.Tools)
	if err != nil {
		return nil, nil, err
	}
	if len(tools) > 0 {
		params.Tools = tools
	}
	return &params, aliasToCanon, nil
}

func encodeTools(defs []*model.ToolDefinition) ([]responses.ToolUnionParam, map[string]string, error) {
	if len(defs) == 0 {
		return nil, nil, nil
	}
	out := make([]responses.ToolUnionParam, 0, len(defs))
	aliasToCanon := make(map[string]string, len(defs))
	for _, def := range defs {
		if def == nil || def.Name == "" {
			continue
		}
		if def.Description == "" {
			return nil, nil, fmt.Errorf("openai: tool %q is missing description", def.Name)
		}
		alias := sanitizeToolName(def.Name)
		if prev, ok := aliasToCanon[alias]; ok && prev != def.Name {
			return nil, nil, fmt.Errorf("openai: tool name %q sanitizes to %q which collides with %q", def.Name, alias, prev)
		}
		aliasToCanon[alias] = def.Name
		schema := def.InputSchema
		if schema == nil {
			schema = map[string]any{"type": "object"}
		}
		tool := responses.ToolParamOfFunction(alias, schema, false)
		if tool.OfFunction != nil {
			tool.OfFunction.Description = sdk.String(def.Description)
		}
		out = append(out, tool)
	}
	return out, aliasToCanon, nil
}

func isRateLimited(err error) bool {
	var apierr *sdk.Error
	return errors.As(err, &apierr) && apierr.StatusCode == http.StatusTooManyRequests
}

// sanitizeToolName maps a canonical identifier onto the character set the
// provider accepts for function names.
func sanitizeToolName(in string) string {
	out := make([]rune, 0, len(in))
	for _, r := range in {
		if (r >= 'a' && r <= 'z') ||
			(r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') ||
			r == '_' || r == '-' {
			out = append(out, r)
		} else {
			out = append(out, '_')
		}
	}
	return string(out)
}

func translateResponse(rsp *responses.Response, aliasToCanon map[string]string) *model.Response {
	if rsp == nil {
		return &model.Response{}
	}
	out := &model.Response{
		Content:    rsp.OutputText(),
		StopReason: mapStatus(string(rsp.Status)),
		Usage: model.TokenUsage{
			InputTokens:  int(rsp.Usage.InputTokens),
			OutputTokens: int(rsp.Usage.OutputTokens),
			TotalTokens:  int(rsp.Usage.TotalTokens),
		},
	}
	for _, item := range rsp.Output {
		if item.Type != "function_call" {
			continue
		}
		name := item.Name
		if canonical, ok := aliasToCanon[name]; ok {
			name = canonical
		}
		out.ToolCalls = append(out.ToolCalls, model.ToolCall{
			ID:      item.CallID,
			Name:    name,
			RawArgs: item.Arguments,
		})
	}
	if len(out.ToolCalls) > 0 && out.StopReason == "stop" {
		out.StopReason = "tool_calls"
	}
	return out
}

func mapStatus(status string) string {
	switch strings.TrimSpace(status) {
	case "", "completed":
		return "stop"
	case "incomplete":
		return "length"
	default:
		return status
	}
}
