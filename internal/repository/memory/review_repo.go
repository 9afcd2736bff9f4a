package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/vedran77/textswap/internal/domain"
	"github.com/vedran77/textswap/internal/repository"
)

type ReviewRepo struct {
	s *Store
}

func (r *ReviewRepo) RunInTx(ctx context.Context, fn func(tx repository.RatingTx) error) error {
	r.s.txMu.Lock()
	defer r.s.txMu.Unlock()

	if err := checkCtx(ctx, "rating transaction"); err != nil {
		return err
	}

	tx := &ratingTx{
		s:         r.s,
		summaries: make(map[string]*domain.UserRatingSummary),
		updated:   make(map[string]*domain.Review),
	}
	if err := fn(tx); err != nil {
		return err
	}
	return tx.commit()
}

func (r *ReviewRepo) GetByID(ctx context.Context, id string) (*domain.Review, error) {
	if err := checkCtx(ctx, "getting review"); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.s.reviewLocked(id)
}

func (r *ReviewRepo) GetSummary(ctx context.Context, userID string) (*domain.UserRatingSummary, error) {
	if err := checkCtx(ctx, "getting rating summary"); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.s.summaryLocked(userID)
}

func (r *ReviewRepo) HasReviewed(ctx context.Context, reviewerID, reviewedUserID string) (bool, error) {
	if err := checkCtx(ctx, "checking existing review"); err != nil {
		return false, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.s.hasReviewedLocked(reviewerID, reviewedUserID), nil
}

func (r *ReviewRepo) ListByReviewedUser(ctx context.Context, userID string, limit int) ([]domain.Review, error) {
	return r.list(ctx, limit, func(rv *domain.Review) bool { return rv.ReviewedUserID == userID })
}

func (r *ReviewRepo) ListByBook(ctx context.Context, bookID string, limit int) ([]domain.Review, error) {
	return r.list(ctx, limit, func(rv *domain.Review) bool { return rv.BookID != nil && *rv.BookID == bookID })
}

func (r *ReviewRepo) list(ctx context.Context, limit int, match func(*domain.Review) bool) ([]domain.Review, error) {
	if err := checkCtx(ctx, "listing reviews"); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []domain.Review
	for _, id := range r.s.reviewOrder {
		rv := r.s.reviews[id]
		if !match(rv) {
			continue
		}
		cp := *rv
		cp.ReviewerName = domain.UnknownUserName
		if u, ok := r.s.users[rv.ReviewerID]; ok && u.DisplayName != "" {
			cp.ReviewerName = u.DisplayName
		}
		out = append(out, cp)
	}
	// Newest first; insertion order breaks ties.
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *ReviewRepo) IncrementHelpful(ctx context.Context, id string) (*domain.Review, error) {
	return r.mutate(ctx, id, func(rv *domain.Review) { rv.Helpful++ })
}

func (r *ReviewRepo) Report(ctx context.Context, id, reason string, at time.Time) (*domain.Review, error) {
	return r.mutate(ctx, id, func(rv *domain.Review) {
		rv.Reported = true
		rv.ReportReason = &reason
		rv.ReportedAt = &at
	})
}

func (r *ReviewRepo) mutate(ctx context.Context, id string, fn func(*domain.Review)) (*domain.Review, error) {
	if err := checkCtx(ctx, "updating review"); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	rv, ok := r.s.reviews[id]
	if !ok {
		return nil, domain.NotFound("review", id)
	}
	fn(rv)
	out := *rv
	return &out, nil
}

func (s *Store) reviewLocked(id string) (*domain.Review, error) {
	rv, ok := s.reviews[id]
	if !ok {
		return nil, domain.NotFound("review", id)
	}
	out := *rv
	return &out, nil
}

func (s *Store) summaryLocked(userID string) (*domain.UserRatingSummary, error) {
	sum, ok := s.summaries[userID]
	if !ok {
		return nil, domain.NotFound("user", userID)
	}
	out := *sum
	return &out, nil
}

func (s *Store) hasReviewedLocked(reviewerID, reviewedUserID string) bool {
	for _, rv := range s.reviews {
		if rv.ReviewerID == reviewerID && rv.ReviewedUserID == reviewedUserID {
			return true
		}
	}
	return false
}

// ratingTx buffers writes until commit. Reads see the buffered state first.
type ratingTx struct {
	s         *Store
	summaries map[string]*domain.UserRatingSummary
	created   []*domain.Review
	updated   map[string]*domain.Review
}

func (tx *ratingTx) GetSummary(ctx context.Context, userID string) (*domain.UserRatingSummary, error) {
	if sum, ok := tx.summaries[userID]; ok {
		out := *sum
		return &out, nil
	}
	tx.s.mu.RLock()
	defer tx.s.mu.RUnlock()
	return tx.s.summaryLocked(userID)
}

func (tx *ratingTx) PutSummary(ctx context.Context, sum *domain.UserRatingSummary) error {
	base, ok := tx.summaries[sum.UserID]
	if !ok {
		tx.s.mu.RLock()
		stored, err := tx.s.summaryLocked(sum.UserID)
		tx.s.mu.RUnlock()
		if err != nil {
			return err
		}
		base = stored
	}
	if base.Version != sum.Version {
		return fmt.Errorf("rating summary %q at version %d, have %d: %w",
			sum.UserID, base.Version, sum.Version, domain.ErrConflict)
	}
	sum.Version++
	buffered := *sum
	tx.summaries[sum.UserID] = &buffered
	return nil
}

func (tx *ratingTx) GetReview(ctx context.Context, id string) (*domain.Review, error) {
	if rv, ok := tx.updated[id]; ok {
		out := *rv
		return &out, nil
	}
	for _, rv := range tx.created {
		if rv.ID == id {
			out := *rv
			return &out, nil
		}
	}
	tx.s.mu.RLock()
	defer tx.s.mu.RUnlock()
	return tx.s.reviewLocked(id)
}

func (tx *ratingTx) HasReviewed(ctx context.Context, reviewerID, reviewedUserID string) (bool, error) {
	for _, rv := range tx.created {
		if rv.ReviewerID == reviewerID && rv.ReviewedUserID == reviewedUserID {
			return true, nil
		}
	}
	tx.s.mu.RLock()
	defer tx.s.mu.RUnlock()
	return tx.s.hasReviewedLocked(reviewerID, reviewedUserID), nil
}

func (tx *ratingTx) CreateReview(ctx context.Context, rv *domain.Review) error {
	cp := *rv
	tx.created = append(tx.created, &cp)
	return nil
}

func (tx *ratingTx) UpdateReview(ctx context.Context, rv *domain.Review) error {
	cp := *rv
	tx.updated[rv.ID] = &cp
	return nil
}

func (tx *ratingTx) commit() error {
	tx.s.mu.Lock()
	defer tx.s.mu.Unlock()

	for _, rv := range tx.created {
		if _, exists := tx.s.reviews[rv.ID]; exists {
			return fmt.Errorf("review %q already exists: %w", rv.ID, domain.ErrConflict)
		}
	}
	for _, rv := range tx.created {
		tx.s.reviews[rv.ID] = rv
		tx.s.reviewOrder = append(tx.s.reviewOrder, rv.ID)
	}
	for id, rv := range tx.updated {
		// Helpful and report fields are owned by their own mutations.
		if stored, ok := tx.s.reviews[id]; ok {
			stored.Rating = rv.Rating
			stored.Comment = rv.Comment
			stored.UpdatedAt = rv.UpdatedAt
		}
	}
	for id, sum := range tx.summaries {
		tx.s.summaries[id] = sum
	}
	return nil
}
