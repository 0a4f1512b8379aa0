// Package orchestrator coordinates one advisory turn: configuration
// resolution, history truncation, prompt assembly, the provider stream and
// its translation into normalized events. The orchestrator itself has no
// side effects beyond memory persistence; acting on tool payloads is the
// consumer's job.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/moneywise-vn/advisor/runtime/advisor/args"
	"github.com/moneywise-vn/advisor/runtime/advisor/config"
	"github.com/moneywise-vn/advisor/runtime/advisor/memory"
	"github.com/moneywise-vn/advisor/runtime/advisor/model"
	"github.com/moneywise-vn/advisor/runtime/advisor/stream"
	"github.com/moneywise-vn/advisor/runtime/advisor/telemetry"
	"github.com/moneywise-vn/advisor/runtime/advisor/tools"
)

// MaxHistoryMessages bounds how much conversation history enters the
// prompt. Older messages are dropped, newest kept.
const MaxHistoryMessages = 20

type (
	// Request is one inbound chat turn.
	Request struct {
		// Message is the new user message.
		Message string

		// History is the prior conversation, oldest first. Truncated to
		// MaxHistoryMessages before prompt assembly.
		History []model.Message

		// UserID keys memory fetch and persistence.
		UserID string

		// Profile is the raw user profile forwarded by the API layer.
		Profile map[string]any

		// Stage and Style select the configuration cell.
		Stage config.FinancialStage
		Style config.BudgetStyle
	}

	// Options configures an Orchestrator.
	Options struct {
		Resolver *config.Resolver
		Registry *tools.Registry
		Client   model.Client

		// Memory is optional; nil disables context fetch and persistence.
		Memory memory.Store

		// Model overrides the adapter's default model when set.
		Model string

		// MaxTokens caps completions when positive.
		MaxTokens int

		Logger  telemetry.Logger
		Metrics telemetry.Metrics
		Tracer  telemetry.Tracer
	}

	// Orchestrator runs turns. Safe for concurrent use; all turn state is
	// request-scoped.
	Orchestrator struct {
		resolver   *config.Resolver
		registry   *tools.Registry
		client     model.Client
		store      memory.Store
		translator *stream.Translator
		modelID    string
		maxTokens  int
		log        telemetry.Logger
		metrics    telemetry.Metrics
		tracer     telemetry.Tracer
		now        func() time.Time
	}
)

// New builds an orchestrator and validates the full configuration
// cross-product so missing cells fail here, at bootstrap.
func New(opts Options) (*Orchestrator, error) {
	if opts.Resolver == nil {
		return nil, errors.New("orchestrator: resolver is required")
	}
	if opts.Registry == nil {
		return nil, errors.New("orchestrator: tool registry is required")
	}
	if opts.Client == nil {
		return nil, errors.New("orchestrator: model client is required")
	}
	if err := opts.Resolver.Validate(); err != nil {
		return nil, err
	}
	store := opts.Memory
	if store == nil {
		store = memory.NoopStore{}
	}
	log := opts.Logger
	if log == nil {
		log = telemetry.NewNoopLogger()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = telemetry.NewNoopTracer()
	}
	parser := args.NewParser(log, metrics)
	return &Orchestrator{
		resolver:   opts.Resolver,
		registry:   opts.Registry,
		client:     opts.Client,
		store:      store,
		translator: stream.NewTranslator(opts.Registry, parser, log, metrics),
		modelID:    opts.Model,
		maxTokens:  opts.MaxTokens,
		log:        log,
		metrics:    metrics,
		tracer:     tracer,
		now:        time.Now,
	}, nil
}

// Run starts one turn and returns its event channel. The channel closes
// after the terminal event, or without one when ctx is canceled first.
func (o *Orchestrator) Run(ctx context.Context, req Request) <-chan stream.Event {
	events := make(chan stream.Event, 16)
	go func() {
		defer close(events)
		o.run(ctx, req, events)
	}()
	return events
}

func (o *Orchestrator) run(ctx context.Context, req Request, events chan<- stream.Event) {
	started := o.now()
	o.metrics.IncCounter(telemetry.MetricTurnsStarted, 1, "stage", req.Stage.String())
	ctx, span := o.tracer.Start(ctx, "advisor.turn")
	defer span.End()

	emit := func(ev stream.Event) error {
		select {
		case events <- ev:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	abort := func(msg string, err error) {
		o.metrics.IncCounter(telemetry.MetricTurnsFailed, 1, "stage", req.Stage.String())
		o.log.Error(ctx, msg, "error", err, "user_id", req.UserID)
		span.RecordError(err)
		_ = emit(stream.Event{Type: stream.EventError, Error: msg, Timestamp: o.now()})
	}

	entry, err := o.resolver.Resolve(req.Stage, req.Style)
	if err != nil {
		abort("configuration missing for stage/style", err)
		return
	}

	userCtx := o.fetchContext(ctx, req.UserID)
	system := assemblePrompt(entry, req, userCtx, o.registry, o.now())
	history := truncateHistory(req.History, MaxHistoryMessages)

	messages := make([]model.Message, 0, len(history)+1)
	messages = append(messages, history...)
	messages = append(messages, model.Message{Role: model.RoleUser, Content: req.Message})

	src, err := o.client.Stream(ctx, &model.Request{
		Model:     o.modelID,
		System:    system,
		Messages:  messages,
		Tools:     o.registry.Definitions(entry.Tools.All()),
		MaxTokens: o.maxTokens,
	})
	if err != nil {
		abort("provider stream failed to open", err)
		return
	}
	defer func() {
		if cerr := src.Close(); cerr != nil {
			o.log.Debug(ctx, "provider stream close", "error", cerr)
		}
	}()

	responseID := uuid.NewString()
	summary, err := o.translator.Run(ctx, responseID, src, emit)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			// Consumer went away. Pending call state is discarded, nothing
			// is finalized or persisted.
			o.log.Info(ctx, "turn canceled", "user_id", req.UserID, "response_id", responseID)
			return
		}
		o.metrics.IncCounter(telemetry.MetricTurnsFailed, 1, "stage", req.Stage.String())
		o.log.Error(ctx, "turn failed", "error", err, "response_id", responseID)
		span.RecordError(err)
		return
	}

	o.metrics.IncCounter(telemetry.MetricTurnsCompleted, 1, "stage", req.Stage.String())
	o.metrics.RecordTimer(telemetry.MetricTurnDuration, o.now().Sub(started), "stage", req.Stage.String())
	o.persist(ctx, req, summary)
}

func (o *Orchestrator) fetchContext(ctx context.Context, userID string) string {
	if userID == "" {
		return ""
	}
	userCtx, err := o.store.FetchContext(ctx, userID)
	if err != nil {
		// Memory is best effort; the turn proceeds without context.
		o.log.Warn(ctx, "memory fetch failed", "error", err, "user_id", userID)
		return ""
	}
	return userCtx
}

func (o *Orchestrator) persist(ctx context.Context, req Request, summary *stream.Summary) {
	if req.UserID == "" || summary == nil {
		return
	}
	now := o.now()
	facts := []memory.Fact{
		{Role: string(model.RoleUser), Content: req.Message, CreatedAt: now},
	}
	if summary.Text != "" {
		facts = append(facts, memory.Fact{Role: string(model.RoleAssistant), Content: summary.Text, CreatedAt: now})
	}
	if err := o.store.Persist(ctx, req.UserID, facts); err != nil {
		o.log.Warn(ctx, "memory persist failed", "error", err, "user_id", req.UserID)
	}
}

// truncateHistory keeps the most recent n messages.
func truncateHistory(history []model.Message, n int) []model.Message {
	if len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}

// ProfileJSON serializes a user profile for prompt inclusion. Unmarshalable
// profiles degrade to an empty object.
func ProfileJSON(profile map[string]any) string {
	if len(profile) == 0 {
		return "{}"
	}
	data, err := json.Marshal(profile)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// StageStyleFromProfile extracts and validates the stage/style pair from a
// raw profile map.
func StageStyleFromProfile(profile map[string]any) (config.FinancialStage, config.BudgetStyle, error) {
	rawStage, _ := profile["financial_stage"].(string)
	rawStyle, _ := profile["budget_style"].(string)
	stage, err := config.ParseStage(rawStage)
	if err != nil {
		return "", "", fmt.Errorf("orchestrator: %w", err)
	}
	style, err := config.ParseStyle(rawStyle)
	if err != nil {
		return "", "", fmt.Errorf("orchestrator: %w", err)
	}
	return stage, style, nil
}
