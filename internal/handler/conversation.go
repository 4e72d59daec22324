package handler

import (
	"net/http"

	"github.com/mentorlink/internal/middleware"
	"github.com/mentorlink/internal/service"
)

type ConversationHandler struct {
	svc *service.MessageService
}

func NewConversationHandler(svc *service.MessageService) *ConversationHandler {
	return &ConversationHandler{svc: svc}
}

// List returns every conversation the caller can address: their groups and
// the direct threads derived from the mentor/mentee assignment.
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	conversations, err := h.svc.Directory(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conversations)
}
