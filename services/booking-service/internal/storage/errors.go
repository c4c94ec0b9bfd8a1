package storage

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound = errors.New("storage: not found")
	// ErrConflict means the write would overlap an active appointment of the same provider and date.
	ErrConflict = errors.New("storage: overlapping active appointment")
	// ErrCompleted means the write would delete, move or cancel a completed appointment.
	ErrCompleted = errors.New("storage: appointment is completed")
)

const (
	// pgExclusionViolation is raised by the appointments_no_overlap constraint.
	pgExclusionViolation  = "23P01"
	pgForeignKeyViolation = "23503"
)

func IsConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgExclusionViolation
}

// IsMissingReference reports a write that points at a row that does not exist.
func IsMissingReference(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// translate maps driver errors onto the package sentinels.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case IsConflict(err):
		return ErrConflict
	case IsNotFound(err):
		return ErrNotFound
	}
	return err
}
