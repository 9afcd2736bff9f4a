package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/vedran77/textswap/internal/domain"
	"github.com/vedran77/textswap/internal/repository"
)

var (
	_ repository.UserRepository         = (*UserRepo)(nil)
	_ repository.MessageRepository      = (*MessageRepo)(nil)
	_ repository.ConversationRepository = (*ConversationRepo)(nil)
	_ repository.ReviewRepository       = (*ReviewRepo)(nil)
	_ repository.RatingTx               = (*ratingTx)(nil)
)

func TestTranslate(t *testing.T) {
	cases := []struct {
		name string
		in   error
		want error
	}{
		{"no rows", pgx.ErrNoRows, domain.ErrNotFound},
		{"serialization", &pgconn.PgError{Code: sqlStateSerializationFailure}, domain.ErrConflict},
		{"deadlock", &pgconn.PgError{Code: sqlStateDeadlockDetected}, domain.ErrConflict},
		{"unique", &pgconn.PgError{Code: sqlStateUniqueViolation}, domain.ErrConflict},
		{"dial", errors.New("dial tcp 127.0.0.1:5432: connect: connection refused"), domain.ErrTransport},
		{"domain passthrough", domain.InvalidField("rating", "bad"), domain.ErrValidation},
		{"canceled", fmt.Errorf("wrapped: %w", context.Canceled), context.Canceled},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, translate("op", "thing", "id", tc.in), tc.want)
		})
	}
}

func TestTranslateOtherPgErrorIsNotTransport(t *testing.T) {
	err := translate("op", "thing", "id", &pgconn.PgError{Code: "23514"})
	assert.Error(t, err)
	assert.False(t, errors.Is(err, domain.ErrTransport))
	assert.Nil(t, translate("op", "thing", "id", nil))
}
