// Package stream turns the provider-agnostic chunk stream into the
// normalized event sequence the UI consumes. The translator owns all
// per-call accumulation state for a turn; events carry the wire taxonomy
// (response_created through response_completed plus the error variants) as
// flat JSON objects.
package stream

import (
	"time"
)

// EventType discriminates normalized events on the wire.
type EventType string

const (
	// EventResponseCreated opens a turn and carries the response id.
	EventResponseCreated EventType = "response_created"
	// EventTextStreaming carries one text delta.
	EventTextStreaming EventType = "response_output_text_streaming"
	// EventTextDone carries the full assembled text once no more text will
	// change.
	EventTextDone EventType = "response_output_text_done"
	// EventCallArgsStreaming is a progress ping for an in-flight tool call.
	EventCallArgsStreaming EventType = "response_function_call_arguments_streaming"
	// EventCallArgsDone carries the normalized action of a finalized call.
	EventCallArgsDone EventType = "response_function_call_arguments_done"
	// EventCallError reports a single failed call. Never terminal.
	EventCallError EventType = "response_function_call_error"
	// EventCompleted is the success terminal event.
	EventCompleted EventType = "response_completed"
	// EventError is the failure terminal event.
	EventError EventType = "error"
)

type (
	// Event is one normalized wire event. Fields are populated per type;
	// unused fields are omitted from the encoding.
	Event struct {
		Type         EventType `json:"type"`
		ResponseID   string    `json:"response_id,omitempty"`
		Content      string    `json:"content,omitempty"`
		Action       *Action   `json:"action,omitempty"`
		Error        string    `json:"error,omitempty"`
		CallID       string    `json:"callId,omitempty"`
		CallName     string    `json:"callName,omitempty"`
		FinishReason string    `json:"finish_reason,omitempty"`
		Timestamp    time.Time `json:"timestamp"`
	}

	// Action is the consumer-facing result of a finalized tool call.
	Action struct {
		Type    string  `json:"type"`
		Payload Payload `json:"payload"`
	}

	// Payload is the flat action payload. Missing fields are null rather
	// than absent so consumers can destructure unconditionally; Context is
	// always an object, possibly empty.
	Payload struct {
		ComponentID *string        `json:"componentId"`
		ToolID      *string        `json:"toolId"`
		Title       *string        `json:"title"`
		Context     map[string]any `json:"context"`
	}
)

// Terminal reports whether the event ends the turn. Exactly one terminal
// event is emitted per turn.
func (e Event) Terminal() bool {
	return e.Type == EventCompleted || e.Type == EventError
}

// NewAction shapes parsed tool arguments into the flat consumer payload.
// Only the known high-value fields are lifted; everything else the tool
// needs travels inside Context.
func NewAction(toolName string, parsed map[string]any) *Action {
	a := &Action{
		Type: toolName,
		Payload: Payload{
			ComponentID: optString(parsed, "component_id"),
			ToolID:      optString(parsed, "tool_id"),
			Title:       optString(parsed, "title"),
			Context:     map[string]any{},
		},
	}
	if c, ok := parsed["context"].(map[string]any); ok && c != nil {
		a.Payload.Context = c
	}
	return a
}

func optString(m map[string]any, key string) *string {
	if v, ok := m[key].(string); ok {
		return &v
	}
	return nil
}
