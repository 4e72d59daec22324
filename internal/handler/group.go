package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mentorlink/internal/middleware"
	"github.com/mentorlink/internal/model"
	"github.com/mentorlink/internal/repository"
)

type GroupHandler struct {
	groups *repository.GroupRepository
}

func NewGroupHandler(groups *repository.GroupRepository) *GroupHandler {
	return &GroupHandler{groups: groups}
}

type groupDetail struct {
	model.Group
	MemberIDs []string `json:"member_ids"`
}

// Get returns a group with its member list. Members only.
func (h *GroupHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	groupID := chi.URLParam(r, "id")

	isMember, err := h.groups.IsMember(r.Context(), groupID, userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if !isMember {
		writeError(w, http.StatusForbidden, "not a member")
		return
	}

	group, err := h.groups.GetByID(r.Context(), groupID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	memberIDs, err := h.groups.GetMemberIDs(r.Context(), groupID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, groupDetail{Group: *group, MemberIDs: memberIDs})
}
