package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		retryable bool
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, detailsOK: true},
		{code: CodeUnauthorized, status: http.StatusUnauthorized},
		{code: CodeNotFound, status: http.StatusNotFound},
		{code: CodeStateConflict, status: http.StatusUnprocessableEntity, detailsOK: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, retryable: true, detailsOK: true},
		{code: CodeGatewayUnavailable, status: http.StatusServiceUnavailable, retryable: true},
		{code: CodeGatewayRequest, status: http.StatusBadGateway, retryable: true, detailsOK: true},
		{code: CodePaymentCancelled, status: http.StatusConflict, retryable: true},
		{code: CodeFinalization, status: http.StatusInternalServerError, detailsOK: true},
		{code: CodeStatusCheck, status: http.StatusAccepted, retryable: true},
		{code: CodeInsufficientStock, status: http.StatusConflict, detailsOK: true},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			meta := MetadataFor(tt.code)
			assert.Equal(t, tt.status, meta.HTTPStatus)
			assert.Equal(t, tt.retryable, meta.Retryable)
			assert.Equal(t, tt.detailsOK, meta.DetailsAllowed)
			assert.NotEmpty(t, meta.PublicMessage)
		})
	}
}

func TestFinalizationMessageIsUserFacing(t *testing.T) {
	assert.Equal(t, "payment succeeded but order processing failed", MetadataFor(CodeFinalization).PublicMessage)
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	assert.Equal(t, http.StatusInternalServerError, meta.HTTPStatus)
}

func TestErrorConstructors(t *testing.T) {
	base := New(CodeValidation, "cart is empty")
	assert.Equal(t, CodeValidation, base.Code())
	assert.Equal(t, "cart is empty", base.Message())
	assert.Nil(t, base.Details())
	assert.Equal(t, "VALIDATION_ERROR: cart is empty", base.Error())

	base.WithDetails(map[string]any{"field": "items"})
	assert.NotNil(t, base.Details())

	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeGatewayRequest, cause, "create payment session")
	assert.True(t, stdErrors.Is(wrapped, cause))
	assert.Equal(t, CodeGatewayRequest, wrapped.Code())
}

func TestAsAndIsCode(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(CodeInsufficientStock, "slot A1"))
	typed := As(err)
	require.NotNil(t, typed)
	assert.Equal(t, CodeInsufficientStock, typed.Code())
	assert.True(t, IsCode(err, CodeInsufficientStock))
	assert.False(t, IsCode(err, CodeNotFound))
	assert.False(t, IsCode(stdErrors.New("plain"), CodeInternal))
	assert.Nil(t, As(nil))
}

func TestDumpIncludesPostgresDetails(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23514", ConstraintName: "machine_inventory_quantity_check", TableName: "machine_inventory"}
	err := Wrap(CodeDependency, pgErr, "decrement slot")

	dump := Dump(err)
	assert.Equal(t, CodeDependency, dump.Code)
	assert.Equal(t, "23514", dump.PGCode)
	assert.Equal(t, "machine_inventory_quantity_check", dump.PGConstraint)
	assert.Len(t, dump.Chain, 2)
	assert.Equal(t, ErrorDump{}, Dump(nil))
}

func TestDumpIncludesSQLiteCode(t *testing.T) {
	err := fmt.Errorf("insert order: %w", sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique})

	dump := Dump(err)
	assert.Equal(t, "sqlite", dump.Driver)
	assert.Equal(t, "19/2067", dump.DBCode)

	fields := dump.Fields()
	assert.Equal(t, "sqlite", fields["db_driver"])
	assert.NotContains(t, fields, "pg_table")
}

func TestDumpCarriesStepAndRetryable(t *testing.T) {
	err := New(CodeDependency, "reserve stock").WithDetails(map[string]any{"step": "hold"})
	dump := Dump(err)
	assert.True(t, dump.Retryable)
	assert.Equal(t, "hold", dump.Fields()["step"])
}
