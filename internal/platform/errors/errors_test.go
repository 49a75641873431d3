package errors

import (
	stderrs "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatusCode(t *testing.T) {
	cases := []struct {
		code ErrorCode
		want int
	}{
		{ErrorCodeNotFound, http.StatusNotFound},
		{ErrorCodeInvalidArgument, http.StatusUnprocessableEntity},
		{ErrorCodeInvalidState, http.StatusConflict},
		{ErrorCodeValidation, http.StatusBadRequest},
		{ErrorCodeJSON, http.StatusBadRequest},
		{ErrorCodeUnauthorized, http.StatusUnauthorized},
		{ErrorCodeCircuitOpen, http.StatusServiceUnavailable},
		{ErrorCodeTimeout, http.StatusGatewayTimeout},
		{ErrorCodeContractStore, http.StatusFailedDependency},
		{ErrorCodeDB, http.StatusInternalServerError},
		{ErrorCode(9999), http.StatusInternalServerError},
	}
	for _, c := range cases {
		if got := HTTPStatusCode(c.code); got != c.want {
			t.Fatalf("HTTPStatusCode(%v) = %d, want %d", c.code, got, c.want)
		}
	}
}

func TestCodeString(t *testing.T) {
	cases := map[ErrorCode]string{
		ErrorCodeTooManyRequests: "rate_limited",
		ErrorCodeUnauthorized:    "auth",
		ErrorCodeJSON:            "parse",
		ErrorCodeDB:              "db",
		ErrorCode(9999):          "unknown",
	}
	for code, want := range cases {
		if got := code.String(); got != want {
			t.Fatalf("%d.String() = %q, want %q", code, got, want)
		}
	}
}

func TestError_Render(t *testing.T) {
	var nilErr *Error
	if nilErr.Error() != "<nil>" {
		t.Fatalf("nil render = %q", nilErr.Error())
	}
	cause := stderrs.New("connection reset")
	err := WithOp(Wrapf(cause, ErrorCodeNetwork, "fetch order %s", "ORD-1"), "tms.GetOrder")
	if got := err.Error(); got != "tms.GetOrder: fetch order ORD-1: connection reset" {
		t.Fatalf("render = %q", got)
	}
	if !stderrs.Is(err, cause) {
		t.Fatalf("cause should unwrap")
	}
	e, ok := As(fmt.Errorf("outer: %w", err))
	if !ok || e.Op() != "tms.GetOrder" || e.Code() != ErrorCodeNetwork {
		t.Fatalf("As through fmt wrap = %+v, %v", e, ok)
	}
}

func TestWithField_CopiesAndIgnoresForeign(t *testing.T) {
	base := Validationf("ids is required")
	tagged := WithField(base, "ids")
	if e, _ := As(base); e.Field() != "" {
		t.Fatalf("WithField mutated the original")
	}
	if e, _ := As(tagged); e.Field() != "ids" {
		t.Fatalf("field = %q", e.Field())
	}
	plain := stderrs.New("x")
	if WithField(plain, "f") != plain || WithOp(plain, "op") != plain {
		t.Fatalf("foreign errors should pass through")
	}
}

func TestCodeOfAndIsCode(t *testing.T) {
	cases := []struct {
		err  error
		want ErrorCode
	}{
		{NotFoundf("run %s", "r1"), ErrorCodeNotFound},
		{InvalidArgf("x"), ErrorCodeInvalidArgument},
		{JSONErrf("x"), ErrorCodeJSON},
		{PanicErrf("x"), ErrorCodePanic},
		{Unauthorizedf("x"), ErrorCodeUnauthorized},
		{Conflictf("x"), ErrorCodeConflict},
		{InvalidStatef("x"), ErrorCodeInvalidState},
		{Contractf("x"), ErrorCodeContractStore},
		{Wrap(stderrs.New("x"), ErrorCodeDB, "save"), ErrorCodeDB},
		{stderrs.New("plain"), ErrorCodeUnknown},
		{nil, ErrorCodeUnknown},
	}
	for i, c := range cases {
		if got := CodeOf(c.err); got != c.want {
			t.Fatalf("case %d: CodeOf = %v, want %v", i, got, c.want)
		}
		if !IsCode(c.err, c.want) {
			t.Fatalf("case %d: IsCode false", i)
		}
	}
	if HTTPStatus(NotFoundf("x")) != http.StatusNotFound {
		t.Fatalf("HTTPStatus should follow the code")
	}
}

func TestWireFrom(t *testing.T) {
	if (WireFrom(nil) != Wire{}) {
		t.Fatalf("nil should give the zero wire")
	}
	w := WireFrom(WithField(Validationf("bad id"), "ids[0]"))
	if w.Code != ErrorCodeValidation || w.Kind != "validation" || w.Message != "bad id" || w.Field != "ids[0]" {
		t.Fatalf("wire = %+v", w)
	}
	w = WireFrom(stderrs.New("boom"))
	if w.Code != ErrorCodeUnknown || w.Kind != "unknown" || w.Message != "boom" {
		t.Fatalf("foreign wire = %+v", w)
	}
}

func TestRetryable(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{New(ErrorCodeNetwork, "reset"), true},
		{New(ErrorCodeTimeout, "slow"), true},
		{New(ErrorCodeTooManyRequests, "429"), true},
		{New(ErrorCodeUnauthorized, "401"), false},
		{New(ErrorCodeCircuitOpen, "open"), false},
		{New(ErrorCodeConflict, "409"), false},
		{stderrs.New("plain"), false},
		{nil, false},
	}
	for i, c := range cases {
		if got := Retryable(c.err); got != c.want {
			t.Fatalf("case %d: Retryable(%v) = %v, want %v", i, c.err, got, c.want)
		}
	}
}
