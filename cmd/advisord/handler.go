package main

import (
	"encoding/json"
	"net/http"
	"strings"

	"goa.design/clue/log"

	historymongo "github.com/moneywise-vn/advisor/features/history/mongo"
	"github.com/moneywise-vn/advisor/runtime/advisor/model"
	"github.com/moneywise-vn/advisor/runtime/advisor/orchestrator"
	"github.com/moneywise-vn/advisor/runtime/advisor/stream"
)

type (
	// chatRequest is the JSON body accepted by POST /api/chat.
	chatRequest struct {
		Message string         `json:"message"`
		History []chatMessage  `json:"conversationHistory"`
		UserID  string         `json:"user_id"`
		Profile map[string]any `json:"userProfile"`
	}

	chatMessage struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}

	chatHandler struct {
		orch    *orchestrator.Orchestrator
		history *historymongo.Store
	}
)

func newChatHandler(orch *orchestrator.Orchestrator, history *historymongo.Store) http.Handler {
	return &chatHandler{orch: orch, history: history}
}

func (h *chatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body chatRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(body.Message) == "" {
		http.Error(w, "message is required", http.StatusBadRequest)
		return
	}
	stage, style, err := orchestrator.StageStyleFromProfile(body.Profile)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	history := make([]model.Message, 0, len(body.History))
	for _, m := range body.History {
		role := model.Role(m.Role)
		if !role.Valid() || m.Content == "" {
			continue
		}
		history = append(history, model.Message{Role: role, Content: m.Content})
	}
	// When the client sends no history, reload the most recent turns from
	// the store so follow-up questions keep their context.
	if len(history) == 0 && h.history != nil && body.UserID != "" {
		stored, err := h.history.Recent(ctx, body.UserID, orchestrator.MaxHistoryMessages)
		if err != nil {
			log.Errorf(ctx, err, "failed to load conversation history")
		} else {
			history = stored
		}
	}

	w.Header().Set("Content-Type", "application/x-ndjson; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	enc := stream.NewEncoder(w)

	var assistantText strings.Builder
	events := h.orch.Run(ctx, orchestrator.Request{
		Message: body.Message,
		History: history,
		UserID:  body.UserID,
		Profile: body.Profile,
		Stage:   stage,
		Style:   style,
	})
	for ev := range events {
		if ev.Type == stream.EventTextStreaming {
			assistantText.WriteString(ev.Content)
		}
		if err := enc.Encode(ev); err != nil {
			log.Errorf(ctx, err, "failed to write event")
			return
		}
	}
	if err := enc.Done(); err != nil {
		log.Errorf(ctx, err, "failed to write done sentinel")
		return
	}

	if h.history != nil && body.UserID != "" {
		turn := []model.Message{{Role: model.RoleUser, Content: body.Message}}
		if assistantText.Len() > 0 {
			turn = append(turn, model.Message{Role: model.RoleAssistant, Content: assistantText.String()})
		}
		if err := h.history.Append(ctx, body.UserID, turn); err != nil {
			log.Errorf(ctx, err, "failed to persist conversation history")
		}
	}
}
