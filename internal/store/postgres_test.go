package store

import (
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/punchamoorthee/bankcore/internal/money"
)

func TestRetryable(t *testing.T) {
	tests := []struct {
		err   error
		code  string
		retry bool
	}{
		{&pgconn.PgError{Code: codeSerializationFailure}, codeSerializationFailure, true},
		{fmt.Errorf("commit: %w", &pgconn.PgError{Code: codeDeadlockDetected}), codeDeadlockDetected, true},
		{&pgconn.PgError{Code: codeUniqueViolation}, "", false},
		{fmt.Errorf("plain"), "", false},
		{nil, "", false},
	}
	for _, tt := range tests {
		code, retry := retryable(tt.err)
		assert.Equal(t, tt.code, code)
		assert.Equal(t, tt.retry, retry)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	pgErr, ok := isUniqueViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505", ConstraintName: "accounts_iban_key"}))
	require.True(t, ok)
	assert.Equal(t, "accounts_iban_key", pgErr.ConstraintName)

	_, ok = isUniqueViolation(&pgconn.PgError{Code: "23503"})
	assert.False(t, ok)
}

func TestForUpdate(t *testing.T) {
	assert.Equal(t, " FOR UPDATE", forUpdate(true))
	assert.Empty(t, forUpdate(false))
}

func TestSchemaEmbedded(t *testing.T) {
	for _, table := range []string{"accounts", "transactions", "credits", "investment_orders", "holding_locks", "idempotency_keys", "bank_settings"} {
		assert.Contains(t, schema, "CREATE TABLE IF NOT EXISTS "+table)
	}
}

func TestFeeEncoding(t *testing.T) {
	fee := money.MustNew("2.5", money.EUR)
	assert.Equal(t, "2.50 EUR", formatFee(fee))

	parsed, err := parseFee(formatFee(fee))
	require.NoError(t, err)
	assert.True(t, parsed.Equal(fee))

	_, err = parseFee("2.50")
	assert.Error(t, err)
	_, err = parseFee("2.50 euros")
	assert.ErrorIs(t, err, money.ErrInvalidCurrency)
}

func TestRateText(t *testing.T) {
	assert.Nil(t, rateText(nil))
	r := decimal.RequireFromString("3.65")
	assert.Equal(t, "3.65", *rateText(&r))

	back, err := parseRate(rateText(&r))
	require.NoError(t, err)
	assert.True(t, back.Equal(r))

	none, err := parseRate(nil)
	require.NoError(t, err)
	assert.Nil(t, none)
}
