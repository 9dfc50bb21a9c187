package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/lumeochat/messenger-go/internal/errors"
	"github.com/lumeochat/messenger-go/internal/middleware"
	"github.com/lumeochat/messenger-go/internal/service"
)

type ConversationHandler struct {
	convService    *service.ConversationService
	messageService *service.MessageService
}

func NewConversationHandler(convService *service.ConversationService, messageService *service.MessageService) *ConversationHandler {
	return &ConversationHandler{convService: convService, messageService: messageService}
}

func (h *ConversationHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.List)
	r.Post("/direct", h.CreateDirect)
	r.Post("/group", h.CreateGroup)
	r.Get("/{conversationID}", h.Get)
	r.Get("/{conversationID}/messages", h.Messages)
	r.Post("/{conversationID}/messages", h.SendMessage)
	r.Post("/{conversationID}/read", h.MarkRead)

	return r
}

// GET /conversations
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())

	convs, err := h.convService.ListForUser(r.Context(), user.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"conversations": convs})
}

// POST /conversations/direct
// Find-or-create: posting the same participant twice returns the same
// conversation both times.
func (h *ConversationHandler) CreateDirect(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())

	var req struct {
		ParticipantID string `json:"participantId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.InvalidArgument("body", "malformed JSON"))
		return
	}

	conv, err := h.convService.CreateDirect(r.Context(), user.ID, req.ParticipantID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

// POST /conversations/group
func (h *ConversationHandler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())

	var req struct {
		GroupName      string   `json:"groupName"`
		ParticipantIDs []string `json:"participantIds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.InvalidArgument("body", "malformed JSON"))
		return
	}

	conv, err := h.convService.CreateGroup(r.Context(), user.ID, req.GroupName, req.ParticipantIDs)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, conv)
}

// GET /conversations/{conversationID}
func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	conversationID := chi.URLParam(r, "conversationID")

	conv, err := h.convService.GetForUser(r.Context(), conversationID, user.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

// GET /conversations/{conversationID}/messages?limit=&offset=
func (h *ConversationHandler) Messages(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	conversationID := chi.URLParam(r, "conversationID")
	page := ParsePagination(r)

	msgs, total, err := h.messageService.History(r.Context(), user.ID, conversationID, page.Limit, page.Offset)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"messages": msgs,
		"total":    total,
		"limit":    page.Limit,
		"offset":   page.Offset,
	})
}

// POST /conversations/{conversationID}/messages
// REST fallback for clients without a live connection. Delivery follows
// the same pipeline as the websocket path.
func (h *ConversationHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	conversationID := chi.URLParam(r, "conversationID")

	var req struct {
		Content string `json:"content"`
		Type    string `json:"type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.InvalidArgument("body", "malformed JSON"))
		return
	}

	msg, err := h.messageService.Send(r.Context(), user.ID, service.SendParams{
		ConversationID: conversationID,
		Content:        req.Content,
		Type:           messageType(req.Type),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, msg)
}

// POST /conversations/{conversationID}/read
func (h *ConversationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	conversationID := chi.URLParam(r, "conversationID")

	marked, err := h.messageService.MarkRead(r.Context(), user.ID, conversationID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int64{"marked": marked})
}
