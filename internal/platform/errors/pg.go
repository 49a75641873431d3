package errors

import (
	"context"
	stderrs "errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATE classes the snapshot, lease and ledger stores care about
var pgCodes = map[string]ErrorCode{
	"23505": ErrorCodeConflict,        // unique_violation: another writer holds the run
	"23502": ErrorCodeValidation,      // not_null_violation
	"23514": ErrorCodeValidation,      // check_violation
	"22001": ErrorCodeInvalidArgument, // string_data_right_truncation
	"22P02": ErrorCodeInvalidArgument, // invalid_text_representation
	"25006": ErrorCodeUnavailable,     // read_only_sql_transaction
	"57P03": ErrorCodeUnavailable,     // cannot_connect_now
}

// contention SQLSTATEs worth retrying the whole transaction for
var pgContention = map[string]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"55P03": true, // lock_not_available
}

// FromPostgres wraps a database error with a code mapped from its SQLSTATE. nil stays nil
func FromPostgres(err error, msg string) error {
	if err == nil {
		return nil
	}
	code := ErrorCodeDB
	var pgErr *pgconn.PgError
	if stderrs.As(err, &pgErr) {
		if c, ok := pgCodes[pgErr.Code]; ok {
			code = c
		}
	}
	return Wrap(err, code, msg)
}

// IsRetryable reports whether a database error is transient contention.
// Cancellations are never retried
func IsRetryable(err error) bool {
	if err == nil || stderrs.Is(err, context.Canceled) || stderrs.Is(err, context.DeadlineExceeded) {
		return false
	}
	var pgErr *pgconn.PgError
	if stderrs.As(err, &pgErr) {
		return pgContention[pgErr.Code]
	}
	s := strings.ToLower(err.Error())
	for _, frag := range []string{
		"commit unexpectedly resulted in rollback",
		"deadlock detected",
		"could not serialize access",
		"canceling statement due to lock timeout",
	} {
		if strings.Contains(s, frag) {
			return true
		}
	}
	return false
}
