package dberrors

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Bluerat1/uniclaim-server/internal/pkg/apperrors"
)

// IsDuplicateConstraintError checks if the error is a PostgreSQL unique violation error
// for a specific constraint.
func IsDuplicateConstraintError(err error, constraintName string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == constraintName
}

// IsPermissionError checks for the insufficient_privilege error class.
func IsPermissionError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "42501"
}

// IsQuotaError checks for the insufficient-resources error class (53xxx),
// which covers disk-full, too-many-connections and configured limits.
func IsQuotaError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && len(pgErr.Code) == 5 && pgErr.Code[:2] == "53"
}

// Translate maps a driver error onto the application sentinel it
// corresponds to, so callers and the retry layer can dispatch with
// errors.Is without importing pgconn.
func Translate(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case IsPermissionError(err):
		return apperrors.NewCustomError(apperrors.ErrPermissionDenied, err.Error())
	case IsQuotaError(err):
		return apperrors.NewCustomError(apperrors.ErrQuotaExceeded, err.Error())
	}
	return err
}
