package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/vedran77/textswap/internal/domain"
)

const (
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
	sqlStateUniqueViolation      = "23505"
)

// translate maps a driver error onto the domain taxonomy. Errors that are
// already domain errors pass through untouched.
func translate(op, kind, id string, err error) error {
	if err == nil {
		return nil
	}
	for _, sentinel := range []error{domain.ErrValidation, domain.ErrNotFound, domain.ErrConflict, domain.ErrTransport} {
		if errors.Is(err, sentinel) {
			return err
		}
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.NotFound(kind, id)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case sqlStateSerializationFailure, sqlStateDeadlockDetected, sqlStateUniqueViolation:
			return fmt.Errorf("%s: %w: %w", op, domain.ErrConflict, err)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	// Anything else never reached the server: dial, TLS, broken pipe.
	return domain.Transport(op, err)
}
