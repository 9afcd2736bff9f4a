package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vedran77/textswap/internal/service"
	"github.com/vedran77/textswap/internal/transport/http/middleware"
	"github.com/vedran77/textswap/pkg/logger"
)

type ReviewHandler struct {
	ratings *service.RatingService
	log     *logger.Logger
}

func NewReviewHandler(ratings *service.RatingService, log *logger.Logger) *ReviewHandler {
	return &ReviewHandler{ratings: ratings, log: log}
}

func (h *ReviewHandler) Submit(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var input service.SubmitReviewInput
	if !decodeJSON(w, r, &input) {
		return
	}

	review, err := h.ratings.Submit(r.Context(), userID, input)
	if err != nil {
		writeServiceError(w, h.log, "submit review", err)
		return
	}

	writeJSON(w, http.StatusCreated, review)
}

func (h *ReviewHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var input service.UpdateReviewInput
	if !decodeJSON(w, r, &input) {
		return
	}

	review, err := h.ratings.Update(r.Context(), userID, chi.URLParam(r, "id"), input)
	if err != nil {
		writeServiceError(w, h.log, "update review", err)
		return
	}

	writeJSON(w, http.StatusOK, review)
}

func (h *ReviewHandler) MarkHelpful(w http.ResponseWriter, r *http.Request) {
	review, err := h.ratings.MarkHelpful(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.log, "mark review helpful", err)
		return
	}

	writeJSON(w, http.StatusOK, review)
}

func (h *ReviewHandler) Report(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Reason string `json:"reason"`
	}
	if !decodeJSON(w, r, &input) {
		return
	}

	review, err := h.ratings.Report(r.Context(), chi.URLParam(r, "id"), input.Reason)
	if err != nil {
		writeServiceError(w, h.log, "report review", err)
		return
	}

	writeJSON(w, http.StatusOK, review)
}

func (h *ReviewHandler) Eligibility(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	query := r.URL.Query()

	eligibility, err := h.ratings.CanReview(r.Context(), userID, query.Get("user_id"), query.Get("exchange_id"))
	if err != nil {
		writeServiceError(w, h.log, "check review eligibility", err)
		return
	}

	writeJSON(w, http.StatusOK, eligibility)
}

func (h *ReviewHandler) ListForUser(w http.ResponseWriter, r *http.Request) {
	resp, err := h.ratings.ListForUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.log, "list user reviews", err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *ReviewHandler) ListForBook(w http.ResponseWriter, r *http.Request) {
	resp, err := h.ratings.ListForBook(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.log, "list book reviews", err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *ReviewHandler) Summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.ratings.Summary(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.log, "get rating summary", err)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}
