package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/punchamoorthee/bankcore/internal/money"
)

const testIBAN = "FR1420041010050500013M02606"

func eur(s string) money.Money { return money.MustNew(s, money.EUR) }

func rate(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func newAccount(t *testing.T, typ AccountType, r *decimal.Decimal) *Account {
	t.Helper()
	a, err := NewAccount(NewAccountParams{
		UserID:       uuid.New(),
		IBAN:         testIBAN,
		Name:         "Main",
		Type:         typ,
		Currency:     money.EUR,
		InterestRate: r,
	})
	require.NoError(t, err)
	return a
}

func fundedAccount(t *testing.T, typ AccountType, balance string) *Account {
	t.Helper()
	a := newAccount(t, typ, nil)
	if balance != "0" {
		require.NoError(t, a.Credit(eur(balance)))
	}
	return a
}

func freezeClock(t *testing.T, at time.Time) {
	t.Helper()
	prev := now
	now = func() time.Time { return at }
	t.Cleanup(func() { now = prev })
}
