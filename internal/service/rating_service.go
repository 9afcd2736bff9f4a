package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/vedran77/textswap/internal/domain"
	"github.com/vedran77/textswap/internal/repository"
	"github.com/vedran77/textswap/pkg/logger"
	"github.com/vedran77/textswap/pkg/metrics"
	"github.com/vedran77/textswap/pkg/tracing"
	"github.com/vedran77/textswap/pkg/validator"
)

// ReviewPageSize caps the review lists shown on profiles and books.
const ReviewPageSize = 20

type RatingService struct {
	reviewRepo  repository.ReviewRepository
	userRepo    repository.UserRepository
	maxAttempts int
	newBackOff  func() backoff.BackOff
	now         func() time.Time
	log         *logger.Logger
}

func NewRatingService(
	reviewRepo repository.ReviewRepository,
	userRepo repository.UserRepository,
	maxAttempts int,
	log *logger.Logger,
) *RatingService {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &RatingService{
		reviewRepo:  reviewRepo,
		userRepo:    userRepo,
		maxAttempts: maxAttempts,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 10 * time.Millisecond
			b.MaxInterval = 250 * time.Millisecond
			return b
		},
		now: time.Now,
		log: log.Named("ratings"),
	}
}

type SubmitReviewInput struct {
	ReviewedUserID string  `json:"reviewed_user_id"`
	BookID         *string `json:"book_id,omitempty"`
	ExchangeID     *string `json:"exchange_id,omitempty"`
	Rating         int     `json:"rating"`
	Comment        string  `json:"comment"`
}

type UpdateReviewInput struct {
	Rating  int     `json:"rating"`
	Comment *string `json:"comment,omitempty"`
}

type ReviewListResponse struct {
	Reviews []domain.Review `json:"reviews"`
}

// Submit stores a review and folds its rating into the reviewed user's
// summary in one transaction.
func (s *RatingService) Submit(ctx context.Context, reviewerID string, in SubmitReviewInput) (*domain.Review, error) {
	if err := validationError(validator.ValidateReview(reviewerID, in.ReviewedUserID, in.Rating, in.Comment)); err != nil {
		return nil, err
	}

	ctx, span := tracing.Tracer().Start(ctx, "RatingService.Submit")
	defer span.End()
	span.SetAttributes(attribute.String("reviewed_user_id", in.ReviewedUserID))

	now := s.now().UTC()
	review := &domain.Review{
		ID:             uuid.NewString(),
		ReviewerID:     reviewerID,
		ReviewedUserID: in.ReviewedUserID,
		BookID:         in.BookID,
		ExchangeID:     in.ExchangeID,
		Rating:         in.Rating,
		Comment:        in.Comment,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err := s.transact(ctx, "submit", func(tx repository.RatingTx) error {
		summary, err := tx.GetSummary(ctx, in.ReviewedUserID)
		if err != nil {
			return err
		}
		reviewed, err := tx.HasReviewed(ctx, reviewerID, in.ReviewedUserID)
		if err != nil {
			return err
		}
		if reviewed {
			return ErrAlreadyReviewed
		}

		summary.AddRating(in.Rating)
		if err := tx.PutSummary(ctx, summary); err != nil {
			return err
		}
		return tx.CreateReview(ctx, review)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	s.log.Info("review submitted",
		zap.String("review_id", review.ID),
		zap.String("reviewed_user_id", review.ReviewedUserID),
		zap.Int("rating", review.Rating))
	return review, nil
}

// Update changes a review's rating and optionally its comment. The summary
// is adjusted in the same transaction when the rating moves.
func (s *RatingService) Update(ctx context.Context, reviewerID, reviewID string, in UpdateReviewInput) (*domain.Review, error) {
	if err := validationError(validator.ValidateReviewUpdate(reviewID, in.Rating, in.Comment)); err != nil {
		return nil, err
	}

	ctx, span := tracing.Tracer().Start(ctx, "RatingService.Update")
	defer span.End()
	span.SetAttributes(attribute.String("review_id", reviewID))

	var updated *domain.Review
	err := s.transact(ctx, "update", func(tx repository.RatingTx) error {
		review, err := tx.GetReview(ctx, reviewID)
		if err != nil {
			return err
		}
		if review.ReviewerID != reviewerID {
			return ErrNotReviewAuthor
		}

		if review.Rating != in.Rating {
			summary, err := tx.GetSummary(ctx, review.ReviewedUserID)
			if err != nil {
				return err
			}
			summary.ReplaceRating(review.Rating, in.Rating)
			if err := tx.PutSummary(ctx, summary); err != nil {
				return err
			}
		}

		review.Rating = in.Rating
		if in.Comment != nil {
			review.Comment = *in.Comment
		}
		review.UpdatedAt = s.now().UTC()
		if err := tx.UpdateReview(ctx, review); err != nil {
			return err
		}
		updated = review
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return updated, nil
}

// transact runs fn in a rating transaction, retrying only on conflicts.
func (s *RatingService) transact(ctx context.Context, op string, fn func(tx repository.RatingTx) error) error {
	attempt := 0
	operation := func() error {
		attempt++
		if attempt > 1 {
			metrics.RatingConflictRetries.Inc()
		}
		err := s.reviewRepo.RunInTx(ctx, fn)
		if err != nil && !errors.Is(err, domain.ErrConflict) {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(s.newBackOff(), uint64(s.maxAttempts-1)), ctx)
	err := backoff.Retry(operation, policy)
	switch {
	case err == nil:
		metrics.RatingTransactions.WithLabelValues(op, "committed").Inc()
		return nil
	case errors.Is(err, domain.ErrConflict):
		metrics.RatingTransactions.WithLabelValues(op, "conflict").Inc()
		s.log.Warn("rating transaction gave up", zap.String("op", op), zap.Int("attempts", attempt), zap.Error(err))
		return fmt.Errorf("rating %s failed after %d attempts: %w", op, attempt, err)
	default:
		metrics.RatingTransactions.WithLabelValues(op, "failed").Inc()
		return err
	}
}

// MarkHelpful bumps the review's helpful counter.
func (s *RatingService) MarkHelpful(ctx context.Context, reviewID string) (*domain.Review, error) {
	return s.reviewRepo.IncrementHelpful(ctx, reviewID)
}

// Report flags a review for moderation. The rating summary is untouched.
func (s *RatingService) Report(ctx context.Context, reviewID, reason string) (*domain.Review, error) {
	if err := validationError(validator.ValidateReport(reviewID, reason)); err != nil {
		return nil, err
	}
	review, err := s.reviewRepo.Report(ctx, reviewID, reason, s.now().UTC())
	if err != nil {
		return nil, err
	}
	s.log.Info("review reported", zap.String("review_id", reviewID))
	return review, nil
}

// CanReview applies the one-review-per-user policy. exchangeID is accepted
// for the caller's bookkeeping but does not open a second review.
func (s *RatingService) CanReview(ctx context.Context, reviewerID, reviewedUserID, exchangeID string) (*domain.ReviewEligibility, error) {
	if reviewedUserID == "" {
		return nil, domain.InvalidField("user_id", "This field is required")
	}
	if reviewerID == reviewedUserID {
		return &domain.ReviewEligibility{CanReview: false, Reason: "You cannot review yourself"}, nil
	}
	if _, err := s.userRepo.GetByID(ctx, reviewedUserID); err != nil {
		return nil, err
	}

	reviewed, err := s.reviewRepo.HasReviewed(ctx, reviewerID, reviewedUserID)
	if err != nil {
		return nil, err
	}
	if reviewed {
		return &domain.ReviewEligibility{CanReview: false, Reason: "You have already reviewed this user"}, nil
	}
	return &domain.ReviewEligibility{CanReview: true}, nil
}

// Summary returns the running (average, count) for a user.
func (s *RatingService) Summary(ctx context.Context, userID string) (*domain.UserRatingSummary, error) {
	return s.reviewRepo.GetSummary(ctx, userID)
}

func (s *RatingService) ListForUser(ctx context.Context, userID string) (*ReviewListResponse, error) {
	reviews, err := s.reviewRepo.ListByReviewedUser(ctx, userID, ReviewPageSize)
	if err != nil {
		return nil, err
	}
	return &ReviewListResponse{Reviews: withReviewerNames(reviews)}, nil
}

func (s *RatingService) ListForBook(ctx context.Context, bookID string) (*ReviewListResponse, error) {
	reviews, err := s.reviewRepo.ListByBook(ctx, bookID, ReviewPageSize)
	if err != nil {
		return nil, err
	}
	return &ReviewListResponse{Reviews: withReviewerNames(reviews)}, nil
}

func withReviewerNames(reviews []domain.Review) []domain.Review {
	if reviews == nil {
		return []domain.Review{}
	}
	for i := range reviews {
		if reviews[i].ReviewerName == "" {
			reviews[i].ReviewerName = domain.UnknownUserName
		}
	}
	return reviews
}
