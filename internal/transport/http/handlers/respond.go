package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/vedran77/textswap/internal/domain"
	"github.com/vedran77/textswap/internal/service"
	"github.com/vedran77/textswap/pkg/logger"
)

const maxBodyBytes = 64 << 10

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}

func writeValidationErrors(w http.ResponseWriter, fields map[string]string) {
	writeJSON(w, http.StatusBadRequest, map[string]any{
		"error": map[string]any{
			"code":   "VALIDATION_ERROR",
			"fields": fields,
		},
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return false
	}
	return true
}

// writeServiceError maps the service error taxonomy onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, log *logger.Logger, op string, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.Is(err, service.ErrAlreadyReviewed):
		writeError(w, http.StatusBadRequest, "ALREADY_REVIEWED", "You have already reviewed this user")
	case errors.As(err, &verr):
		writeValidationErrors(w, verr.Fields)
	case errors.Is(err, service.ErrNotParticipant):
		writeError(w, http.StatusForbidden, "FORBIDDEN", "You do not have access to this conversation")
	case errors.Is(err, service.ErrNotReviewAuthor):
		writeError(w, http.StatusForbidden, "FORBIDDEN", "Only the reviewer can edit this review")
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, "CONFLICT", "The resource was modified concurrently, please retry")
	case errors.Is(err, domain.ErrTransport):
		log.Warn(op+" failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "Storage is temporarily unavailable")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		log.Info(op+" interrupted", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "The request was interrupted")
	default:
		log.Error(op+" failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
	}
}
