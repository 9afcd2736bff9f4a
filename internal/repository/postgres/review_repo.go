package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vedran77/textswap/internal/domain"
	"github.com/vedran77/textswap/internal/repository"
)

const reviewColumns = `r.id, r.reviewer_id, r.reviewed_user_id, r.book_id, r.exchange_id, r.rating, r.comment,
	r.helpful, r.reported, r.report_reason, r.reported_at, r.created_at, r.updated_at`

type ReviewRepo struct {
	pool *pgxpool.Pool
}

func NewReviewRepo(pool *pgxpool.Pool) *ReviewRepo {
	return &ReviewRepo{pool: pool}
}

// queryer is satisfied by both the pool and a transaction.
type queryer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *ReviewRepo) RunInTx(ctx context.Context, fn func(tx repository.RatingTx) error) error {
	err := pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(&ratingTx{tx: tx})
	})
	return translate("rating transaction", "review", "", err)
}

func (r *ReviewRepo) GetByID(ctx context.Context, id string) (*domain.Review, error) {
	return getReview(ctx, r.pool, id, false)
}

func (r *ReviewRepo) GetSummary(ctx context.Context, userID string) (*domain.UserRatingSummary, error) {
	return getSummary(ctx, r.pool, userID, false)
}

func (r *ReviewRepo) HasReviewed(ctx context.Context, reviewerID, reviewedUserID string) (bool, error) {
	return hasReviewed(ctx, r.pool, reviewerID, reviewedUserID)
}

func (r *ReviewRepo) ListByReviewedUser(ctx context.Context, userID string, limit int) ([]domain.Review, error) {
	return r.list(ctx, "r.reviewed_user_id = $1", userID, limit)
}

func (r *ReviewRepo) ListByBook(ctx context.Context, bookID string, limit int) ([]domain.Review, error) {
	return r.list(ctx, "r.book_id = $1", bookID, limit)
}

func (r *ReviewRepo) list(ctx context.Context, where, arg string, limit int) ([]domain.Review, error) {
	query := fmt.Sprintf(`
		SELECT %s, COALESCE(NULLIF(u.display_name, ''), $2)
		FROM reviews r
		LEFT JOIN users u ON u.id = r.reviewer_id
		WHERE %s
		ORDER BY r.created_at DESC
		LIMIT %d`, reviewColumns, where, limit)

	rows, err := r.pool.Query(ctx, query, arg, domain.UnknownUserName)
	if err != nil {
		return nil, translate("listing reviews", "review", arg, err)
	}
	defer rows.Close()

	var reviews []domain.Review
	for rows.Next() {
		var rv domain.Review
		if err := rows.Scan(append(reviewDest(&rv), &rv.ReviewerName)...); err != nil {
			return nil, translate("scanning review", "review", arg, err)
		}
		reviews = append(reviews, rv)
	}
	return reviews, translate("listing reviews", "review", arg, rows.Err())
}

func (r *ReviewRepo) IncrementHelpful(ctx context.Context, id string) (*domain.Review, error) {
	query := `UPDATE reviews r SET helpful = helpful + 1 WHERE r.id = $1 RETURNING ` + reviewColumns

	var rv domain.Review
	if err := r.pool.QueryRow(ctx, query, id).Scan(reviewDest(&rv)...); err != nil {
		return nil, translate("marking review helpful", "review", id, err)
	}
	return &rv, nil
}

func (r *ReviewRepo) Report(ctx context.Context, id, reason string, at time.Time) (*domain.Review, error) {
	query := `
		UPDATE reviews r SET reported = true, report_reason = $2, reported_at = $3
		WHERE r.id = $1 RETURNING ` + reviewColumns

	var rv domain.Review
	if err := r.pool.QueryRow(ctx, query, id, reason, at).Scan(reviewDest(&rv)...); err != nil {
		return nil, translate("reporting review", "review", id, err)
	}
	return &rv, nil
}

type ratingTx struct {
	tx pgx.Tx
}

// GetSummary locks the user row; concurrent rating transactions for the
// same user queue behind it.
func (t *ratingTx) GetSummary(ctx context.Context, userID string) (*domain.UserRatingSummary, error) {
	return getSummary(ctx, t.tx, userID, true)
}

func (t *ratingTx) PutSummary(ctx context.Context, s *domain.UserRatingSummary) error {
	query := `
		UPDATE users
		SET average_rating = $2, review_count = $3, rating_version = rating_version + 1, updated_at = now()
		WHERE id = $1 AND rating_version = $4`

	tag, err := t.tx.Exec(ctx, query, s.UserID, s.AverageRating, s.ReviewCount, s.Version)
	if err != nil {
		return translate("writing rating summary", "user", s.UserID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("rating summary %q changed underneath: %w", s.UserID, domain.ErrConflict)
	}
	s.Version++
	return nil
}

func (t *ratingTx) GetReview(ctx context.Context, id string) (*domain.Review, error) {
	return getReview(ctx, t.tx, id, true)
}

func (t *ratingTx) HasReviewed(ctx context.Context, reviewerID, reviewedUserID string) (bool, error) {
	return hasReviewed(ctx, t.tx, reviewerID, reviewedUserID)
}

func (t *ratingTx) CreateReview(ctx context.Context, rv *domain.Review) error {
	query := `
		INSERT INTO reviews (id, reviewer_id, reviewed_user_id, book_id, exchange_id, rating, comment, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := t.tx.Exec(ctx, query,
		rv.ID, rv.ReviewerID, rv.ReviewedUserID, rv.BookID, rv.ExchangeID,
		rv.Rating, rv.Comment, rv.CreatedAt, rv.UpdatedAt,
	)
	return translate("creating review", "review", rv.ID, err)
}

func (t *ratingTx) UpdateReview(ctx context.Context, rv *domain.Review) error {
	query := `UPDATE reviews SET rating = $2, comment = $3, updated_at = $4 WHERE id = $1`

	tag, err := t.tx.Exec(ctx, query, rv.ID, rv.Rating, rv.Comment, rv.UpdatedAt)
	if err != nil {
		return translate("updating review", "review", rv.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFound("review", rv.ID)
	}
	return nil
}

func getSummary(ctx context.Context, q queryer, userID string, forUpdate bool) (*domain.UserRatingSummary, error) {
	query := `SELECT id, average_rating, review_count, rating_version FROM users WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var s domain.UserRatingSummary
	if err := q.QueryRow(ctx, query, userID).Scan(&s.UserID, &s.AverageRating, &s.ReviewCount, &s.Version); err != nil {
		return nil, translate("getting rating summary", "user", userID, err)
	}
	return &s, nil
}

func getReview(ctx context.Context, q queryer, id string, forUpdate bool) (*domain.Review, error) {
	query := `SELECT ` + reviewColumns + ` FROM reviews r WHERE r.id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var rv domain.Review
	if err := q.QueryRow(ctx, query, id).Scan(reviewDest(&rv)...); err != nil {
		return nil, translate("getting review", "review", id, err)
	}
	return &rv, nil
}

func hasReviewed(ctx context.Context, q queryer, reviewerID, reviewedUserID string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM reviews WHERE reviewer_id = $1 AND reviewed_user_id = $2)`

	var exists bool
	if err := q.QueryRow(ctx, query, reviewerID, reviewedUserID).Scan(&exists); err != nil {
		return false, translate("checking existing review", "review", reviewerID, err)
	}
	return exists, nil
}

func reviewDest(rv *domain.Review) []any {
	return []any{
		&rv.ID, &rv.ReviewerID, &rv.ReviewedUserID, &rv.BookID, &rv.ExchangeID, &rv.Rating, &rv.Comment,
		&rv.Helpful, &rv.Reported, &rv.ReportReason, &rv.ReportedAt, &rv.CreatedAt, &rv.UpdatedAt,
	}
}
