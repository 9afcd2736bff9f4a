package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vedran77/textswap/internal/service"
	"github.com/vedran77/textswap/internal/transport/http/middleware"
	"github.com/vedran77/textswap/pkg/logger"
)

type ConversationHandler struct {
	directory *service.DirectoryService
	messages  *service.MessageService
	log       *logger.Logger
}

func NewConversationHandler(directory *service.DirectoryService, messages *service.MessageService, log *logger.Logger) *ConversationHandler {
	return &ConversationHandler{directory: directory, messages: messages, log: log}
}

func (h *ConversationHandler) GetOrCreate(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var input struct {
		UserID string  `json:"user_id"`
		PostID *string `json:"post_id"`
	}
	if !decodeJSON(w, r, &input) {
		return
	}
	if input.UserID == "" {
		writeError(w, http.StatusBadRequest, "MISSING_USER_ID", "user_id is required")
		return
	}

	conv, err := h.directory.GetOrCreate(r.Context(), userID, input.UserID, input.PostID)
	if err != nil {
		writeServiceError(w, h.log, "get or create conversation", err)
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	resp, err := h.directory.ListForUser(r.Context(), userID)
	if err != nil {
		writeServiceError(w, h.log, "list conversations", err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	conv, err := h.directory.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.log, "get conversation", err)
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

func (h *ConversationHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var input struct {
		Text string `json:"text"`
	}
	if !decodeJSON(w, r, &input) {
		return
	}

	msg, err := h.messages.Send(r.Context(), userID, chi.URLParam(r, "id"), input.Text)
	if err != nil {
		writeServiceError(w, h.log, "send message", err)
		return
	}

	writeJSON(w, http.StatusCreated, msg)
}

func (h *ConversationHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	resp, err := h.messages.List(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.log, "list messages", err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *ConversationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	marked, err := h.messages.MarkRead(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.log, "mark read", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"marked": marked})
}

func (h *ConversationHandler) Unread(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	resp, err := h.messages.ListUnread(r.Context(), userID)
	if err != nil {
		writeServiceError(w, h.log, "list unread", err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}
