package errors

import (
	"context"
	stderrs "errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func pg(code string) *pgconn.PgError { return &pgconn.PgError{Code: code} }

func TestFromPostgres(t *testing.T) {
	if FromPostgres(nil, "x") != nil {
		t.Fatalf("nil should pass through")
	}
	cases := []struct {
		err  error
		want ErrorCode
	}{
		{pg("23505"), ErrorCodeConflict},
		{pg("23502"), ErrorCodeValidation},
		{pg("22P02"), ErrorCodeInvalidArgument},
		{pg("57P03"), ErrorCodeUnavailable},
		{pg("40001"), ErrorCodeDB},
		{fmt.Errorf("exec: %w", pg("23514")), ErrorCodeValidation},
		{stderrs.New("conn closed"), ErrorCodeDB},
	}
	for _, c := range cases {
		err := FromPostgres(c.err, "save snapshot")
		if got := CodeOf(err); got != c.want {
			t.Fatalf("FromPostgres(%v) code = %v, want %v", c.err, got, c.want)
		}
		if !stderrs.Is(err, c.err) {
			t.Fatalf("cause lost for %v", c.err)
		}
	}
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{pg("40001"), true},
		{pg("40P01"), true},
		{pg("55P03"), true},
		{FromPostgres(pg("40001"), "save"), true},
		{pg("23505"), false},
		{stderrs.New("ERROR: deadlock detected"), true},
		{stderrs.New("nope"), false},
		{fmt.Errorf("x: %w", context.Canceled), false},
		{nil, false},
	}
	for i, c := range cases {
		if got := IsRetryable(c.err); got != c.want {
			t.Fatalf("case %d: IsRetryable(%v) = %v, want %v", i, c.err, got, c.want)
		}
	}
	if !Retryable(pg("40P01")) {
		t.Fatalf("Retryable should include db contention")
	}
}
