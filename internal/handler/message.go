package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lumeochat/messenger-go/internal/middleware"
	"github.com/lumeochat/messenger-go/internal/model"
	"github.com/lumeochat/messenger-go/internal/service"
)

type MessageHandler struct {
	messageService *service.MessageService
}

func NewMessageHandler(messageService *service.MessageService) *MessageHandler {
	return &MessageHandler{messageService: messageService}
}

func (h *MessageHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Delete("/{messageID}", h.Delete)

	return r
}

// DELETE /messages/{messageID}
// Tombstones the message; repeating the call is a no-op.
func (h *MessageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	messageID := chi.URLParam(r, "messageID")

	if err := h.messageService.Delete(r.Context(), user.ID, messageID); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func messageType(s string) model.MessageType {
	switch model.MessageType(s) {
	case model.MessageTypeImage, model.MessageTypeFile, model.MessageTypeSystem:
		return model.MessageType(s)
	default:
		return model.MessageTypeText
	}
}
