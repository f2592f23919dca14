package service_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/punchamoorthee/bankcore/internal/domain"
	"github.com/punchamoorthee/bankcore/internal/money"
)

func TestUpdateSettings(t *testing.T) {
	f := newFixture(t)

	current, err := f.svc.CurrentSettings(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, "3.65", current.SavingsRate.String())
	assert.Equal(t, "1.00 EUR", current.InvestmentFee.String())

	rate := dec("4")
	updated, err := f.svc.UpdateSettings(f.ctx, &rate, nil)
	require.NoError(t, err)
	assert.True(t, updated.SavingsRate.Equal(rate))
	assert.Equal(t, "1.00 EUR", updated.InvestmentFee.String())

	fee := money.MustNew("2.5", money.EUR)
	updated, err = f.svc.UpdateSettings(f.ctx, nil, &fee)
	require.NoError(t, err)
	assert.Equal(t, "2.50 EUR", updated.InvestmentFee.String())
	assert.True(t, updated.SavingsRate.Equal(rate))

	negative := dec("-1")
	_, err = f.svc.UpdateSettings(f.ctx, &negative, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}
