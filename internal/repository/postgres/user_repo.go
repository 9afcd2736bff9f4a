package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vedran77/textswap/internal/domain"
)

type UserRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

func (r *UserRepo) Upsert(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (id, display_name, email, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
		ON CONFLICT (id) DO UPDATE
			SET display_name = EXCLUDED.display_name,
				email = EXCLUDED.email,
				updated_at = now()
		RETURNING created_at, updated_at`

	err := r.pool.QueryRow(ctx, query, user.ID, user.DisplayName, user.Email).
		Scan(&user.CreatedAt, &user.UpdatedAt)
	return translate("upserting user", "user", user.ID, err)
}

func (r *UserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	query := `SELECT id, display_name, email, created_at, updated_at FROM users WHERE id = $1`

	var u domain.User
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&u.ID, &u.DisplayName, &u.Email, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, translate("getting user", "user", id, err)
	}
	return &u, nil
}
