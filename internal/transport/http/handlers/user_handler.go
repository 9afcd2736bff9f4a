package handlers

import (
	"net/http"

	"github.com/vedran77/textswap/internal/service"
	"github.com/vedran77/textswap/internal/transport/http/middleware"
	"github.com/vedran77/textswap/pkg/logger"
)

type UserHandler struct {
	users *service.UserService
	log   *logger.Logger
}

func NewUserHandler(users *service.UserService, log *logger.Logger) *UserHandler {
	return &UserHandler{users: users, log: log}
}

func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.Get(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeServiceError(w, h.log, "get profile", err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var input service.UpdateProfileInput
	if !decodeJSON(w, r, &input) {
		return
	}

	user, err := h.users.UpsertProfile(r.Context(), middleware.GetUserID(r.Context()), input)
	if err != nil {
		writeServiceError(w, h.log, "update profile", err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}
