package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mentorlink/internal/middleware"
	"github.com/mentorlink/internal/model"
	"github.com/mentorlink/internal/repository"
	"github.com/mentorlink/internal/service"
)

type MessageHandler struct {
	svc *service.MessageService
}

func NewMessageHandler(svc *service.MessageService) *MessageHandler {
	return &MessageHandler{svc: svc}
}

type sendRequest struct {
	ConversationType string             `json:"conversation_type"`
	ConversationID   string             `json:"conversation_id"`
	Content          string             `json:"content"`
	Attachments      []model.Attachment `json:"attachments,omitempty"`
}

// Send accepts a message write. A guard rejection is returned verbatim with
// its own status so clients can show retry hints.
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	m, rej, err := h.svc.Send(r.Context(), service.SendInput{
		ConversationType: model.ConversationType(req.ConversationType),
		ConversationID:   req.ConversationID,
		SenderID:         userID,
		SenderRole:       middleware.GetRole(r.Context()),
		Content:          req.Content,
		Attachments:      req.Attachments,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if rej != nil {
		if rej.RetryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(rej.RetryAfter))
		}
		writeJSON(w, rej.Status, rej)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// History returns a conversation page, oldest message first.
func (h *MessageHandler) History(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	convType := model.ConversationType(chi.URLParam(r, "conversationType"))
	convID := chi.URLParam(r, "conversationId")

	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", 50)

	messages, total, err := h.svc.History(r.Context(), convType, convID, userID, page, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if messages == nil {
		messages = []model.Message{}
	}
	w.Header().Set("X-Total-Count", strconv.Itoa(total))
	writeJSON(w, http.StatusOK, messages)
}

func (h *MessageHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	messageID := chi.URLParam(r, "messageId")

	if err := h.svc.MarkRead(r.Context(), messageID, userID); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *MessageHandler) Pin(w http.ResponseWriter, r *http.Request) {
	h.setPinned(w, r, true)
}

func (h *MessageHandler) Unpin(w http.ResponseWriter, r *http.Request) {
	h.setPinned(w, r, false)
}

func (h *MessageHandler) setPinned(w http.ResponseWriter, r *http.Request, pinned bool) {
	userID := middleware.GetUserID(r.Context())
	messageID := chi.URLParam(r, "messageId")

	if err := h.svc.SetPinned(r.Context(), messageID, userID, pinned); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrNotParticipant):
		writeError(w, http.StatusForbidden, "not a participant of this conversation")
	case errors.Is(err, service.ErrInvalidConversation):
		writeError(w, http.StatusBadRequest, "invalid conversation")
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
