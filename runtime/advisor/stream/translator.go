package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/moneywise-vn/advisor/runtime/advisor/args"
	"github.com/moneywise-vn/advisor/runtime/advisor/model"
	"github.com/moneywise-vn/advisor/runtime/advisor/telemetry"
	"github.com/moneywise-vn/advisor/runtime/advisor/tools"
)

type (
	// Translator drives one turn: it drains a model.Streamer, maintains the
	// per-call accumulation state and emits normalized events in the
	// guaranteed order. A Translator is stateless across turns and safe to
	// share; all turn state lives on the stack of Run.
	Translator struct {
		registry *tools.Registry
		parser   *args.Parser
		log      telemetry.Logger
		metrics  telemetry.Metrics
		now      func() time.Time
	}

	// Summary aggregates what a finished turn produced.
	Summary struct {
		Text         string
		FinishReason string
		Usage        model.TokenUsage
		CallsDone    int
		CallsErrored int
	}

	// callStatus tracks one call through new -> accumulating -> done or
	// errored. Terminal states are sticky so a call finalizes exactly once.
	callStatus int

	pendingCall struct {
		id        string
		name      string
		fragments []string
		status    callStatus
	}

	// turn is the per-turn accumulation state, exclusively owned by one
	// Run invocation.
	turn struct {
		text    strings.Builder
		calls   map[string]*pendingCall
		order   []string
		pending []Event
		finish  string
		usage   model.TokenUsage
		summary Summary
	}
)

const (
	statusNew callStatus = iota
	statusAccumulating
	statusDone
	statusErrored
)

// NewTranslator builds a translator over the given registry and parser.
// Nil telemetry sinks default to no-ops.
func NewTranslator(registry *tools.Registry, parser *args.Parser, log telemetry.Logger, metrics telemetry.Metrics) *Translator {
	if log == nil {
		log = telemetry.NewNoopLogger()
	}
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	return &Translator{
		registry: registry,
		parser:   parser,
		log:      log,
		metrics:  metrics,
		now:      time.Now,
	}
}

// Run consumes src until EOF or failure, forwarding normalized events to
// emit. Text deltas stream immediately; finalized call outcomes are queued
// and flushed after the text-done event so consumers know no more text will
// change before acting on tool results. Exactly one terminal event is
// emitted unless ctx is canceled or emit fails, in which case the turn state
// is discarded without finalizing partial calls.
func (t *Translator) Run(ctx context.Context, responseID string, src model.Streamer, emit func(Event) error) (*Summary, error) {
	st := &turn{calls: make(map[string]*pendingCall)}

	if err := emit(Event{
		Type:       EventResponseCreated,
		ResponseID: responseID,
		Timestamp:  t.now(),
	}); err != nil {
		return nil, err
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		chunk, err := src.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			t.metrics.IncCounter(telemetry.MetricTurnsFailed, 1)
			emitErr := emit(Event{
				Type:      EventError,
				Error:     "provider stream failed",
				Timestamp: t.now(),
			})
			if emitErr != nil {
				return nil, emitErr
			}
			return nil, fmt.Errorf("stream: provider: %w", err)
		}
		if err := t.handle(ctx, st, chunk, emit); err != nil {
			return nil, err
		}
	}

	return t.finish(ctx, st, emit)
}

func (t *Translator) handle(ctx context.Context, st *turn, chunk model.Chunk, emit func(Event) error) error {
	switch chunk.Type {
	case model.ChunkTypeText:
		if chunk.Text == "" {
			return nil
		}
		st.text.WriteString(chunk.Text)
		return emit(Event{
			Type:      EventTextStreaming,
			Content:   chunk.Text,
			Timestamp: t.now(),
		})

	case model.ChunkTypeToolCallDelta:
		delta := chunk.ToolCallDelta
		if delta == nil || delta.ID == "" {
			return nil
		}
		pc := st.call(delta.ID, delta.Name)
		if delta.Delta != "" {
			// Fragments append in wire order, never sorted or merged.
			pc.fragments = append(pc.fragments, delta.Delta)
			if pc.status == statusNew {
				pc.status = statusAccumulating
			}
		}
		return emit(Event{
			Type:      EventCallArgsStreaming,
			Timestamp: t.now(),
		})

	case model.ChunkTypeToolCallDone:
		done := chunk.ToolCallDone
		if done == nil || done.ID == "" {
			return nil
		}
		pc := st.call(done.ID, done.Name)
		t.finalize(ctx, st, pc, done.Raw)
		return nil

	case model.ChunkTypeUsage:
		if u := chunk.UsageDelta; u != nil {
			st.usage.InputTokens += u.InputTokens
			st.usage.OutputTokens += u.OutputTokens
			st.usage.TotalTokens += u.TotalTokens
		}
		return nil

	case model.ChunkTypeStop:
		if chunk.StopReason != "" {
			st.finish = chunk.StopReason
		}
		return nil
	}
	return nil
}

// finish flushes the ordered tail of the turn: text done, then every queued
// call outcome, then the single completed event.
func (t *Translator) finish(ctx context.Context, st *turn, emit func(Event) error) (*Summary, error) {
	if full := st.text.String(); full != "" {
		if err := emit(Event{
			Type:      EventTextDone,
			Content:   full,
			Timestamp: t.now(),
		}); err != nil {
			return nil, err
		}
	}

	// Turn finished while calls were still accumulating: the stream end is
	// their completion marker.
	for _, id := range st.order {
		t.finalize(ctx, st, st.calls[id], "")
	}

	for _, ev := range st.pending {
		if err := emit(ev); err != nil {
			return nil, err
		}
	}

	reason := st.finish
	if reason == "" {
		reason = "stop"
	}
	if err := emit(Event{
		Type:         EventCompleted,
		FinishReason: reason,
		Timestamp:    t.now(),
	}); err != nil {
		return nil, err
	}

	st.summary.Text = st.text.String()
	st.summary.FinishReason = reason
	st.summary.Usage = st.usage
	t.metrics.IncCounter(telemetry.MetricStreamTokensOutput, float64(st.usage.OutputTokens))
	return &st.summary, nil
}

// finalize moves a call to its terminal status and queues exactly one
// outcome event. Calls already done or errored are left alone. Failures here
// are contained to the call: they queue a call-error event and never
// propagate.
func (t *Translator) finalize(ctx context.Context, st *turn, pc *pendingCall, rawOverride string) {
	if pc == nil || pc.status == statusDone || pc.status == statusErrored {
		return
	}

	raw := rawOverride
	if raw == "" {
		raw = strings.Join(pc.fragments, "")
	}
	parsed := t.parser.Parse(ctx, pc.id, raw)

	fail := func(msg string) {
		pc.status = statusErrored
		st.summary.CallsErrored++
		t.metrics.IncCounter(telemetry.MetricCallsErrored, 1, "tool", pc.name)
		t.log.Warn(ctx, "tool call failed", "call_id", pc.id, "tool", pc.name, "reason", msg)
		st.pending = append(st.pending, Event{
			Type:      EventCallError,
			Error:     msg,
			CallID:    pc.id,
			CallName:  pc.name,
			Timestamp: t.now(),
		})
	}

	if pc.name == "" {
		fail("tool call missing name")
		return
	}
	spec, ok := t.registry.Describe(tools.Ident(pc.name))
	if !ok {
		fail(fmt.Sprintf("unknown tool %q", pc.name))
		return
	}
	if err := t.registry.ValidateArgs(spec.Name, parsed); err != nil {
		fail(err.Error())
		return
	}

	pc.status = statusDone
	st.summary.CallsDone++
	t.metrics.IncCounter(telemetry.MetricCallsFinalized, 1, "tool", pc.name)
	st.pending = append(st.pending, Event{
		Type:      EventCallArgsDone,
		Action:    NewAction(pc.name, parsed),
		Timestamp: t.now(),
	})
}

// call returns the pending call for id, creating it on first sight. The
// name sticks from the first chunk that carries one.
func (st *turn) call(id, name string) *pendingCall {
	pc, ok := st.calls[id]
	if !ok {
		pc = &pendingCall{id: id, status: statusNew}
		st.calls[id] = pc
		st.order = append(st.order, id)
	}
	if pc.name == "" && name != "" {
		pc.name = name
	}
	return pc
}
