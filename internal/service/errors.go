package service

import (
	"errors"
	"fmt"

	"github.com/vedran77/textswap/internal/domain"
	"github.com/vedran77/textswap/pkg/validator"
)

var (
	ErrNotParticipant  = errors.New("you are not a participant of this conversation")
	ErrNotReviewAuthor = errors.New("only the reviewer can edit this review")
	ErrAlreadyReviewed = fmt.Errorf("you have already reviewed this user: %w", domain.ErrValidation)
)

func validationError(errs validator.ValidationErrors) error {
	if !errs.HasErrors() {
		return nil
	}
	return domain.NewValidationError(errs)
}
