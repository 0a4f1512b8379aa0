package openai

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/openai/openai-go/packages/ssestream"
	"github.com/openai/openai-go/responses"

	"github.com/moneywise-vn/advisor/runtime/advisor/model"
)

// openaiStreamer adapts an OpenAI Responses streaming stream to the
// model.Streamer interface.
type openaiStreamer struct {
	ctx    context.Context
	cancel context.CancelFunc
	stream *ssestream.Stream[responses.ResponseStreamEventUnion]

	chunks chan model.Chunk

	errMu    sync.Mutex
	errSet   bool
	finalErr error

	metaMu   sync.RWMutex
	metadata map[string]any

	aliasToCanon map[string]string
}

func newStreamer(ctx context.Context, stream *ssestream.Stream[responses.ResponseStreamEventUnion], aliasToCanon map[string]string) model.Streamer {
	cctx, cancel := context.WithCancel(ctx)
	s := &openaiStreamer{
		ctx:          cctx,
		cancel:       cancel,
		stream:       stream,
		chunks:       make(chan model.Chunk, 32),
		aliasToCanon: aliasToCanon,
	}
	go s.run()
	return s
}

func (s *openaiStreamer) Recv() (model.Chunk, error) {
	select {
	case chunk, ok := <-s.chunks:
		if ok {
			return chunk, nil
		}
		if err := s.err(); err != nil {
			return model.Chunk{}, err
		}
		return model.Chunk{}, io.EOF
	case <-s.ctx.Done():
		err := s.ctx.Err()
		if err == nil {
			err = context.Canceled
		}
		s.setErr(err)
		return model.Chunk{}, err
	}
}

func (s *openaiStreamer) Close() error {
	s.cancel()
	if s.stream == nil {
		return nil
	}
	return s.stream.Close()
}

func (s *openaiStreamer) Metadata() map[string]any {
	s.metaMu.RLock()
	defer s.metaMu.RUnlock()
	if len(s.metadata) == 0 {
		return nil
	}
	out := make(map[string]any, len(s.metadata))
	for k, v := range s.metadata {
		out[k] = v
	}
	return out
}

func (s *openaiStreamer) run() {
	defer close(s.chunks)
	defer func() {
		if s.stream != nil {
			_ = s.stream.Close()
		}
	}()

	processor := newChunkProcessor(s.emitChunk, s.recordUsage, s.aliasToCanon)

	for {
		select {
		case <-s.ctx.Done():
			s.setErr(s.ctx.Err())
			return
		default:
		}
		if !s.stream.Next() {
			if err := s.stream.Err(); err != nil {
				s.setErr(err)
			} else if err := s.ctx.Err(); err != nil {
				s.setErr(err)
			} else {
				s.setErr(nil)
			}
			return
		}
		if err := processor.Handle(s.stream.Current()); err != nil {
			s.setErr(err)
			return
		}
	}
}

func (s *openaiStreamer) emitChunk(chunk model.Chunk) error {
	select {
	case <-s.ctx.Done():
		return s.ctx.Err()
	case s.chunks <- chunk:
		return nil
	}
}

func (s *openaiStreamer) recordUsage(usage model.TokenUsage) {
	s.metaMu.Lock()
	if s.metadata == nil {
		s.metadata = make(map[string]any)
	}
	s.metadata["usage"] = usage
	s.metaMu.Unlock()
}

func (s *openaiStreamer) setErr(err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.errSet {
		return
	}
	s.errSet = true
	s.finalErr = err
}

func (s *openaiStreamer) err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.finalErr
}

// chunkProcessor converts Responses streaming events into model.Chunks.
// Function-call items are keyed by item id on the wire; the processor maps
// them to the provider call id so downstream accumulation stays per call.
type chunkProcessor struct {
	emit        func(model.Chunk) error
	recordUsage func(model.TokenUsage)

	aliasToCanon map[string]string
	calls        map[string]*callIdentity
}

// callIdentity tracks the id and name of one in-flight function call.
type callIdentity struct {
	callID string
	name   string
	done   bool
}

func newChunkProcessor(emit func(model.Chunk) error, recordUsage func(model.TokenUsage), aliasToCanon map[string]string) *chunkProcessor {
	return &chunkProcessor{
		emit:         emit,
		recordUsage:  recordUsage,
		aliasToCanon: aliasToCanon,
		calls:        make(map[string]*callIdentity),
	}
}

func (p *chunkProcessor) Handle(event responses.ResponseStreamEventUnion) error {
	switch event.Type {
	case "response.output_text.delta":
		delta := event.Delta.OfString
		if delta == "" {
			return nil
		}
		return p.emit(model.Chunk{Type: model.ChunkTypeText, Text: delta})

	case "response.output_item.added":
		item := event.Item
		if item.Type != "function_call" {
			return nil
		}
		ci := p.identity(item.ID)
		if cid := strings.TrimSpace(item.CallID); cid != "" {
			ci.callID = cid
		}
		if name := p.canonicalName(item.Name); name != "" {
			ci.name = name
		}
		if ci.callID == "" {
			return errors.New("openai stream: function call item missing call id")
		}
		if raw := strings.TrimSpace(item.Arguments); raw != "" {
			return p.emit(model.Chunk{
				Type: model.ChunkTypeToolCallDelta,
				ToolCallDelta: &model.ToolCallDelta{
					ID:    ci.callID,
					Name:  ci.name,
					Delta: raw,
				},
			})
		}
		return nil

	case "response.function_call_arguments.delta":
		ci := p.identity(event.ItemID)
		delta := event.Delta.OfString
		if delta == "" || ci.callID == "" {
			return nil
		}
		return p.emit(model.Chunk{
			Type: model.ChunkTypeToolCallDelta,
			ToolCallDelta: &model.ToolCallDelta{
				ID:    ci.callID,
				Name:  ci.name,
				Delta: delta,
			},
		})

	case "response.function_call_arguments.done":
		ci := p.identity(event.ItemID)
		if ci.callID == "" || ci.done {
			return nil
		}
		ci.done = true
		return p.emit(model.Chunk{
			Type: model.ChunkTypeToolCallDone,
			ToolCallDone: &model.ToolCallDone{
				ID:   ci.callID,
				Name: ci.name,
				Raw:  strings.TrimSpace(event.Arguments),
			},
		})

	case "response.output_item.done":
		item := event.Item
		if item.Type != "function_call" {
			return nil
		}
		ci := p.identity(item.ID)
		if cid := strings.TrimSpace(item.CallID); cid != "" {
			ci.callID = cid
		}
		if name := p.canonicalName(item.Name); name != "" {
			ci.name = name
		}
		if ci.callID == "" || ci.done {
			return nil
		}
		ci.done = true
		return p.emit(model.Chunk{
			Type: model.ChunkTypeToolCallDone,
			ToolCallDone: &model.ToolCallDone{
				ID:   ci.callID,
				Name: ci.name,
				Raw:  strings.TrimSpace(item.Arguments),
			},
		})

	case "response.completed":
		usage := model.TokenUsage{
			InputTokens:  int(event.Response.Usage.InputTokens),
			OutputTokens: int(event.Response.Usage.OutputTokens),
			TotalTokens:  int(event.Response.Usage.TotalTokens),
		}
		if p.recordUsage != nil {
			p.recordUsage(usage)
		}
		if err := p.emit(model.Chunk{Type: model.ChunkTypeUsage, UsageDelta: &usage}); err != nil {
			return err
		}
		return p.emit(model.Chunk{
			Type:       model.ChunkTypeStop,
			StopReason: mapStatus(string(event.Response.Status)),
		})
	}
	return nil
}

func (p *chunkProcessor) identity(itemID string) *callIdentity {
	itemID = strings.TrimSpace(itemID)
	if ci, ok := p.calls[itemID]; ok {
		return ci
	}
	ci := &callIdentity{callID: itemID}
	p.calls[itemID] = ci
	return ci
}

func (p *chunkProcessor) canonicalName(name string) string {
	name = strings.TrimSpace(name)
	if canonical, ok := p.aliasToCanon[name]; ok {
		return canonical
	}
	return name
}
