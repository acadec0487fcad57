package errors

import (
	stdErrors "errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"
)

func TestLogFieldsPgx(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23514", Message: "check violation", TableName: "credit_lots", ConstraintName: "credit_lots_available_bounds"}
	err := Wrap(CodeTransactionFailure, fmt.Errorf("decrement: %w", pgErr), "decrement lot")

	fields := LogFields(err)
	require.Equal(t, CodeTransactionFailure, fields["error_code"])
	require.Equal(t, "23514", fields["pg_code"])
	require.Equal(t, "credit_lots_available_bounds", fields["pg_constraint"])
	require.NotContains(t, fields, "pg_column")
	require.Len(t, fields["error_chain"], 3)
}

func TestLogFieldsPq(t *testing.T) {
	fields := LogFields(&pq.Error{Code: "23505", Constraint: "ux_payment_transfers_tx_hash"})
	require.Equal(t, "23505", fields["pg_code"])
	require.Equal(t, "ux_payment_transfers_tx_hash", fields["pg_constraint"])
	require.NotContains(t, fields, "error_chain")
}

func TestLogFieldsPlain(t *testing.T) {
	require.Nil(t, LogFields(nil))
	fields := LogFields(stdErrors.New("boom"))
	require.Empty(t, fields)
}
