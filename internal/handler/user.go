package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mentorlink/internal/middleware"
	"github.com/mentorlink/internal/model"
	"github.com/mentorlink/internal/repository"
)

type UserHandler struct {
	users *repository.UserRepository
}

func NewUserHandler(users *repository.UserRepository) *UserHandler {
	return &UserHandler{users: users}
}

func (h *UserHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	user, err := h.users.GetByID(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// SetDisabled disables or re-enables an account. Admin only. Disabled users
// fail token validation on their next request and cannot reconnect.
func (h *UserHandler) SetDisabled(w http.ResponseWriter, r *http.Request) {
	if middleware.GetRole(r.Context()) != model.RoleAdmin {
		writeError(w, http.StatusForbidden, "admin only")
		return
	}
	targetID := chi.URLParam(r, "id")

	var req struct {
		Disabled bool `json:"disabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if err := h.users.SetDisabled(r.Context(), targetID, req.Disabled); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetMentees lists the caller's mentees. Mentor only.
func (h *UserHandler) GetMentees(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	mentees, err := h.users.GetMentees(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	publics := make([]model.UserPublic, 0, len(mentees))
	for i := range mentees {
		publics = append(publics, mentees[i].ToPublic())
	}
	writeJSON(w, http.StatusOK, publics)
}
