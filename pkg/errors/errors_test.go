package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		publicMsg string
		retryable bool
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, publicMsg: "validation failed", detailsOK: true},
		{code: CodeUnauthorized, status: http.StatusUnauthorized, publicMsg: "authentication required"},
		{code: CodeSignature, status: http.StatusUnauthorized, publicMsg: "signature verification failed"},
		{code: CodeForbidden, status: http.StatusForbidden, publicMsg: "access denied"},
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "resource not found"},
		{code: CodeConflict, status: http.StatusConflict, publicMsg: "conflict detected"},
		{code: CodeStateConflict, status: http.StatusUnprocessableEntity, publicMsg: "state transition disallowed", detailsOK: true},
		{code: CodeInternal, status: http.StatusInternalServerError, publicMsg: "internal server error", retryable: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, publicMsg: "dependency unavailable", retryable: true, detailsOK: true},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.PublicMessage != tt.publicMsg {
			t.Fatalf("code %s expected public message %q got %q", tt.code, tt.publicMsg, meta.PublicMessage)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.DetailsAllowed != tt.detailsOK {
			t.Fatalf("code %s expected details allowed %v got %v", tt.code, tt.detailsOK, meta.DetailsAllowed)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
}

func TestErrorConstructors(t *testing.T) {
	base := New(CodeValidation, "missing foo")
	if base.Code() != CodeValidation {
		t.Fatalf("expected validation code, got %s", base.Code())
	}
	if base.Message() != "missing foo" {
		t.Fatalf("unexpected message %q", base.Message())
	}
	if base.Details() != nil {
		t.Fatalf("details should be nil by default")
	}

	detail := map[string]any{"field": "foo"}
	base.WithDetails(detail)
	if base.Details() == nil {
		t.Fatalf("details should be preserved")
	}

	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeConflict, cause, "ctx")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
	if wrapped.Code() != CodeConflict {
		t.Fatalf("unexpected code %s", wrapped.Code())
	}
}

func TestAsReturnsTypedError(t *testing.T) {
	err := New(CodeForbidden, "no entry")
	if got := As(err); got == nil || got.Code() != CodeForbidden {
		t.Fatalf("As failed to return typed error")
	}
	if As(nil) != nil {
		t.Fatalf("As(nil) should return nil")
	}
}

func TestIsCodeFollowsWrappedChain(t *testing.T) {
	inner := New(CodeNotFound, "order missing")
	wrapped := fmt.Errorf("load: %w", inner)
	if !IsCode(wrapped, CodeNotFound) {
		t.Fatalf("expected wrapped not found to match")
	}
	if IsCode(wrapped, CodeConflict) {
		t.Fatalf("unexpected match for conflict")
	}
	if IsCode(nil, CodeNotFound) {
		t.Fatalf("nil error should never match")
	}
}

func TestDumpCollectsChain(t *testing.T) {
	err := fmt.Errorf("outer: %w", Wrap(CodeDependency, stdErrors.New("dial tcp"), "gateway down"))
	d := Dump(err)
	if d.Code != CodeDependency {
		t.Fatalf("expected dependency code, got %s", d.Code)
	}
	if len(d.Chain) != 3 {
		t.Fatalf("expected 3 chain entries, got %d: %v", len(d.Chain), d.Chain)
	}
	if d.PGCode != "" {
		t.Fatalf("unexpected pg code %q", d.PGCode)
	}
}

func TestDumpReadsDriverErrors(t *testing.T) {
	pg := Dump(Wrap(CodeConflict, &pgconn.PgError{Code: "23505", ConstraintName: "payment_orders_order_id_key"}, "insert order"))
	if pg.PGCode != "23505" || pg.PGConstraint != "payment_orders_order_id_key" {
		t.Fatalf("pg fields not captured: %+v", pg)
	}
	if _, ok := pg.Fields()["pg_constraint"]; !ok {
		t.Fatalf("expected pg_constraint in fields")
	}

	lite := Dump(fmt.Errorf("insert: %w", sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique}))
	if lite.SQLiteExtended != int(sqlite3.ErrConstraintUnique) {
		t.Fatalf("sqlite extended code not captured: %+v", lite)
	}
	if _, ok := lite.Fields()["pg_code"]; ok {
		t.Fatalf("empty pg fields should be omitted")
	}
}

func TestErrorStringIncludesCause(t *testing.T) {
	if got := New(CodeNotFound, "order missing").Error(); got != "NOT_FOUND: order missing" {
		t.Fatalf("unexpected message %q", got)
	}
	got := Wrap(CodeDependency, stdErrors.New("i/o timeout"), "cashfree get_order_status unavailable").Error()
	if got != "DEPENDENCY_ERROR: cashfree get_order_status unavailable: i/o timeout" {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestIsCodeSeesInnerCodes(t *testing.T) {
	err := Wrap(CodeInternal, fmt.Errorf("reconcile: %w", New(CodeStateConflict, "terminal")), "apply webhook")
	if !IsCode(err, CodeInternal) || !IsCode(err, CodeStateConflict) {
		t.Fatalf("expected both codes to match along the chain")
	}
	if IsCode(err, CodeNotFound) {
		t.Fatalf("unexpected not found match")
	}
}
