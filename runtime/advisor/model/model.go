// Package model defines the provider-agnostic contracts between the advisor
// runtime and LLM providers: the Client/Streamer interfaces, the request and
// response shapes, and the Chunk union emitted by streaming adapters.
//
// Adapters pass tool-call argument fragments through verbatim, keyed by the
// provider call id. Assembly and repair of the fragments happen downstream in
// the stream translator, never in the adapter.
package model

import (
	"context"
	"errors"
)

type (
	// Client is implemented by provider adapters (OpenAI, Anthropic).
	Client interface {
		// Stream starts a streaming completion. The returned Streamer yields
		// Chunks until io.EOF.
		Stream(ctx context.Context, req *Request) (Streamer, error)

		// Complete issues a non-streaming completion.
		Complete(ctx context.Context, req *Request) (*Response, error)
	}

	// Streamer yields normalized chunks from a provider stream. Recv returns
	// io.EOF when the stream finished cleanly. Close releases provider
	// resources and unblocks any pending Recv.
	Streamer interface {
		Recv() (Chunk, error)
		Close() error
		Metadata() map[string]any
	}

	// Request is a provider-agnostic completion request.
	Request struct {
		// Model identifies the provider model. Empty selects the adapter's
		// configured default.
		Model string

		// System is the assembled system prompt.
		System string

		// Messages is the conversation so far, oldest first.
		Messages []Message

		// Tools advertises the tool definitions the model may call.
		Tools []*ToolDefinition

		// Temperature overrides the adapter default when positive.
		Temperature float64

		// MaxTokens caps the completion length when positive.
		MaxTokens int
	}

	// Message is a single conversation turn.
	Message struct {
		Role    Role   `json:"role"`
		Content string `json:"content"`
	}

	// ToolDefinition is the provider-facing rendering of a registered tool.
	// InputSchema holds a JSON-schema object document.
	ToolDefinition struct {
		Name        string
		Description string
		InputSchema map[string]any
	}

	// Response is a non-streaming completion result.
	Response struct {
		Content    string
		ToolCalls  []ToolCall
		Usage      TokenUsage
		StopReason string
	}

	// ToolCall is a completed tool invocation from a non-streaming response.
	ToolCall struct {
		ID      string
		Name    string
		RawArgs string
	}

	// Chunk is the tagged union adapters emit. Type selects which field is
	// populated.
	Chunk struct {
		Type ChunkType

		// Text holds a content delta for ChunkTypeText.
		Text string

		// ToolCallDelta holds an argument fragment for ChunkTypeToolCallDelta.
		ToolCallDelta *ToolCallDelta

		// ToolCallDone marks a call's fragments complete for
		// ChunkTypeToolCallDone.
		ToolCallDone *ToolCallDone

		// UsageDelta carries token accounting for ChunkTypeUsage.
		UsageDelta *TokenUsage

		// StopReason is set for ChunkTypeStop when the provider reported one.
		StopReason string
	}

	// ToolCallDelta is one argument fragment of an in-flight tool call.
	ToolCallDelta struct {
		// ID is the provider call id the fragment belongs to.
		ID string

		// Name is the tool name. Set on the first fragment at the latest.
		Name string

		// Delta is the raw argument fragment, unparsed.
		Delta string
	}

	// ToolCallDone signals that no more fragments will arrive for a call.
	ToolCallDone struct {
		ID   string
		Name string

		// Raw is the provider's own view of the full argument string when it
		// reports one (OpenAI arguments.done). Empty otherwise.
		Raw string
	}

	// TokenUsage carries token accounting reported by the provider.
	TokenUsage struct {
		InputTokens  int
		OutputTokens int
		TotalTokens  int
	}
)

// ChunkType discriminates Chunk variants.
type ChunkType string

const (
	ChunkTypeText          ChunkType = "text"
	ChunkTypeToolCallDelta ChunkType = "tool_call_delta"
	ChunkTypeToolCallDone  ChunkType = "tool_call_done"
	ChunkTypeUsage         ChunkType = "usage"
	ChunkTypeStop          ChunkType = "stop"
)

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether the role is one of the known values.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

var (
	// ErrStreamingUnsupported is returned by Stream on clients that only
	// implement Complete.
	ErrStreamingUnsupported = errors.New("model: streaming not supported")

	// ErrRateLimited wraps provider rate-limit failures so middleware can
	// detect them with errors.Is.
	ErrRateLimited = errors.New("model: rate limited")
)
