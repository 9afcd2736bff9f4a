package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/vedran77/textswap/internal/domain"
	"github.com/vedran77/textswap/internal/repository"
	"github.com/vedran77/textswap/pkg/validator"
)

type UserService struct {
	userRepo repository.UserRepository
}

func NewUserService(userRepo repository.UserRepository) *UserService {
	return &UserService{userRepo: userRepo}
}

type UpdateProfileInput struct {
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
}

// UpsertProfile creates or refreshes the profile of an authenticated user.
func (s *UserService) UpsertProfile(ctx context.Context, userID string, in UpdateProfileInput) (*domain.User, error) {
	if err := validationError(validator.ValidateProfile(userID, in.DisplayName)); err != nil {
		return nil, err
	}

	user := &domain.User{
		ID:          userID,
		DisplayName: strings.TrimSpace(in.DisplayName),
		Email:       strings.TrimSpace(in.Email),
	}
	if err := s.userRepo.Upsert(ctx, user); err != nil {
		return nil, fmt.Errorf("saving profile: %w", err)
	}
	return user, nil
}

func (s *UserService) Get(ctx context.Context, userID string) (*domain.User, error) {
	return s.userRepo.GetByID(ctx, userID)
}

// DisplayName returns the user's display name, or the placeholder for
// users without a profile.
func (s *UserService) DisplayName(ctx context.Context, userID string) string {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil || user.DisplayName == "" {
		return domain.UnknownUserName
	}
	return user.DisplayName
}
