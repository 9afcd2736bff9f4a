package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/vedran77/textswap/internal/domain"
	"github.com/vedran77/textswap/internal/repository"
	"github.com/vedran77/textswap/pkg/logger"
)

func ptr[T any](v T) *T { return &v }

func TestSubmitFiveThenThree(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addUser(t, "seller", "Seller")

	_, err := f.ratings.Submit(ctx, "buyer-1", SubmitReviewInput{ReviewedUserID: "seller", Rating: 5})
	require.NoError(t, err)
	_, err = f.ratings.Submit(ctx, "buyer-2", SubmitReviewInput{ReviewedUserID: "seller", Rating: 3})
	require.NoError(t, err)

	summary, err := f.ratings.Summary(ctx, "seller")
	require.NoError(t, err)
	assert.InDelta(t, 4.0, summary.AverageRating, 1e-9)
	assert.Equal(t, 2, summary.ReviewCount)
}

func TestUpdateRecomputesAverage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addUser(t, "seller", "Seller")

	_, err := f.ratings.Submit(ctx, "buyer-1", SubmitReviewInput{ReviewedUserID: "seller", Rating: 5})
	require.NoError(t, err)
	three, err := f.ratings.Submit(ctx, "buyer-2", SubmitReviewInput{ReviewedUserID: "seller", Rating: 3})
	require.NoError(t, err)

	updated, err := f.ratings.Update(ctx, "buyer-2", three.ID, UpdateReviewInput{Rating: 5, Comment: ptr("changed my mind")})
	require.NoError(t, err)
	assert.Equal(t, 5, updated.Rating)
	assert.Equal(t, "changed my mind", updated.Comment)

	summary, err := f.ratings.Summary(ctx, "seller")
	require.NoError(t, err)
	assert.InDelta(t, 5.0, summary.AverageRating, 1e-9)
	assert.Equal(t, 2, summary.ReviewCount)

	// Same rating leaves the summary alone but keeps the comment edit.
	_, err = f.ratings.Update(ctx, "buyer-2", three.ID, UpdateReviewInput{Rating: 5, Comment: ptr("again")})
	require.NoError(t, err)
	same, err := f.ratings.Summary(ctx, "seller")
	require.NoError(t, err)
	assert.Equal(t, summary.Version, same.Version)
}

func TestConcurrentSubmitsMatchMean(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addUser(t, "seller", "Seller")

	ratings := []int{5, 1, 4, 4, 2, 3, 5, 5, 1, 2, 3, 4, 5, 2, 1, 3}
	var g errgroup.Group
	for i, r := range ratings {
		g.Go(func() error {
			_, err := f.ratings.Submit(ctx, fmt.Sprintf("buyer-%d", i), SubmitReviewInput{ReviewedUserID: "seller", Rating: r})
			return err
		})
	}
	require.NoError(t, g.Wait())

	sum := 0
	for _, r := range ratings {
		sum += r
	}
	summary, err := f.ratings.Summary(ctx, "seller")
	require.NoError(t, err)
	assert.Equal(t, len(ratings), summary.ReviewCount)
	assert.InDelta(t, float64(sum)/float64(len(ratings)), summary.AverageRating, 1e-9)
}

func TestSubmitRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addUser(t, "seller", "Seller")

	cases := map[string]struct {
		reviewer string
		in       SubmitReviewInput
		want     error
	}{
		"rating too low":  {"buyer", SubmitReviewInput{ReviewedUserID: "seller", Rating: 0}, domain.ErrValidation},
		"rating too high": {"buyer", SubmitReviewInput{ReviewedUserID: "seller", Rating: 6}, domain.ErrValidation},
		"no target":       {"buyer", SubmitReviewInput{Rating: 4}, domain.ErrValidation},
		"self review":     {"seller", SubmitReviewInput{ReviewedUserID: "seller", Rating: 4}, domain.ErrValidation},
		"unknown user":    {"buyer", SubmitReviewInput{ReviewedUserID: "ghost", Rating: 4}, domain.ErrNotFound},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.ratings.Submit(ctx, tc.reviewer, tc.in)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	summary, err := f.ratings.Summary(ctx, "seller")
	require.NoError(t, err)
	assert.Zero(t, summary.ReviewCount)
}

func TestSecondReviewOfSameUserRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addUser(t, "seller", "Seller")

	_, err := f.ratings.Submit(ctx, "buyer", SubmitReviewInput{ReviewedUserID: "seller", ExchangeID: ptr("ex-1"), Rating: 4})
	require.NoError(t, err)
	_, err = f.ratings.Submit(ctx, "buyer", SubmitReviewInput{ReviewedUserID: "seller", ExchangeID: ptr("ex-2"), Rating: 1})
	assert.ErrorIs(t, err, ErrAlreadyReviewed)

	elig, err := f.ratings.CanReview(ctx, "buyer", "seller", "ex-3")
	require.NoError(t, err)
	assert.False(t, elig.CanReview)

	summary, err := f.ratings.Summary(ctx, "seller")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.ReviewCount)
	assert.InDelta(t, 4.0, summary.AverageRating, 1e-9)
}

func TestCanReview(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addUser(t, "seller", "Seller")

	elig, err := f.ratings.CanReview(ctx, "buyer", "seller", "ex-1")
	require.NoError(t, err)
	assert.True(t, elig.CanReview)

	elig, err = f.ratings.CanReview(ctx, "seller", "seller", "ex-1")
	require.NoError(t, err)
	assert.False(t, elig.CanReview)
	assert.Equal(t, "You cannot review yourself", elig.Reason)

	_, err = f.ratings.CanReview(ctx, "buyer", "ghost", "")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpdateRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addUser(t, "seller", "Seller")
	review, err := f.ratings.Submit(ctx, "buyer", SubmitReviewInput{ReviewedUserID: "seller", Rating: 3})
	require.NoError(t, err)

	_, err = f.ratings.Update(ctx, "buyer", review.ID, UpdateReviewInput{Rating: 9})
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = f.ratings.Update(ctx, "buyer", "missing", UpdateReviewInput{Rating: 4})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.ratings.Update(ctx, "intruder", review.ID, UpdateReviewInput{Rating: 1})
	assert.ErrorIs(t, err, ErrNotReviewAuthor)

	summary, err := f.ratings.Summary(ctx, "seller")
	require.NoError(t, err)
	assert.InDelta(t, 3.0, summary.AverageRating, 1e-9)
}

func TestHelpfulAndReport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addUser(t, "seller", "Seller")
	f.addUser(t, "buyer", "Buyer Name")
	review, err := f.ratings.Submit(ctx, "buyer", SubmitReviewInput{ReviewedUserID: "seller", BookID: ptr("book-1"), Rating: 2})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err = f.ratings.MarkHelpful(ctx, review.ID)
		require.NoError(t, err)
	}
	_, err = f.ratings.MarkHelpful(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.ratings.Report(ctx, review.ID, " ")
	assert.ErrorIs(t, err, domain.ErrValidation)
	reported, err := f.ratings.Report(ctx, review.ID, "spam")
	require.NoError(t, err)
	assert.True(t, reported.Reported)
	require.NotNil(t, reported.ReportReason)
	assert.Equal(t, "spam", *reported.ReportReason)
	assert.NotNil(t, reported.ReportedAt)
	assert.Equal(t, 3, reported.Helpful)

	summary, err := f.ratings.Summary(ctx, "seller")
	require.NoError(t, err)
	assert.InDelta(t, 2.0, summary.AverageRating, 1e-9)

	byBook, err := f.ratings.ListForBook(ctx, "book-1")
	require.NoError(t, err)
	require.Len(t, byBook.Reviews, 1)
	assert.Equal(t, "Buyer Name", byBook.Reviews[0].ReviewerName)

	byUser, err := f.ratings.ListForUser(ctx, "seller")
	require.NoError(t, err)
	require.Len(t, byUser.Reviews, 1)

	empty, err := f.ratings.ListForBook(ctx, "book-2")
	require.NoError(t, err)
	assert.NotNil(t, empty.Reviews)
	assert.Empty(t, empty.Reviews)
}

// conflictingReviews fails the first n transactions with a conflict.
type conflictingReviews struct {
	repository.ReviewRepository
	failures int32
	calls    atomic.Int32
}

func (c *conflictingReviews) RunInTx(ctx context.Context, fn func(tx repository.RatingTx) error) error {
	if c.calls.Add(1) <= c.failures {
		return fmt.Errorf("serialization failure: %w", domain.ErrConflict)
	}
	return c.ReviewRepository.RunInTx(ctx, fn)
}

func TestSubmitRetriesConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addUser(t, "seller", "Seller")

	repo := &conflictingReviews{ReviewRepository: f.store.Reviews(), failures: 2}
	svc := NewRatingService(repo, f.store.Users(), 3, logger.NewNop())
	svc.newBackOff = fastBackOff

	_, err := svc.Submit(ctx, "buyer", SubmitReviewInput{ReviewedUserID: "seller", Rating: 5})
	require.NoError(t, err)
	assert.EqualValues(t, 3, repo.calls.Load())

	summary, err := svc.Summary(ctx, "seller")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.ReviewCount)
}

func TestSubmitGivesUpAfterMaxAttempts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addUser(t, "seller", "Seller")

	repo := &conflictingReviews{ReviewRepository: f.store.Reviews(), failures: 100}
	svc := NewRatingService(repo, f.store.Users(), 3, logger.NewNop())
	svc.newBackOff = fastBackOff

	_, err := svc.Submit(ctx, "buyer", SubmitReviewInput{ReviewedUserID: "seller", Rating: 5})
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.EqualValues(t, 3, repo.calls.Load())

	summary, err := svc.Summary(ctx, "seller")
	require.NoError(t, err)
	assert.Zero(t, summary.ReviewCount)
}

func TestNonConflictErrorsAreNotRetried(t *testing.T) {
	f := newFixture(t)
	repo := &conflictingReviews{ReviewRepository: f.store.Reviews()}
	svc := NewRatingService(repo, f.store.Users(), 3, logger.NewNop())
	svc.newBackOff = fastBackOff

	_, err := svc.Submit(context.Background(), "buyer", SubmitReviewInput{ReviewedUserID: "ghost", Rating: 5})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.EqualValues(t, 1, repo.calls.Load())
}
