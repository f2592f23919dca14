package service_test

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/punchamoorthee/bankcore/internal/domain"
	"github.com/punchamoorthee/bankcore/internal/money"
	"github.com/punchamoorthee/bankcore/internal/service"
)

func TestDepositAndWithdraw(t *testing.T) {
	f := newFixture(t)
	acc := f.open(f.client.ID, domain.AccountChecking, money.EUR)

	dep, err := f.svc.DepositMoney(f.ctx, service.CashRequest{
		UserID:      f.client.ID,
		AccountID:   acc.ID(),
		Amount:      dec("120.505"),
		Description: "salary",
	})
	require.NoError(t, err)
	require.True(t, dep.Success, dep.Reason())
	assert.Equal(t, "120.51", f.balance(acc.ID()))
	assert.Equal(t, domain.TxDeposit, dep.Data.Type())
	assert.Nil(t, dep.Data.FromAccountID())

	wd, err := f.svc.WithdrawMoney(f.ctx, service.CashRequest{
		UserID:    f.client.ID,
		AccountID: acc.ID(),
		Amount:    dec("20.51"),
	})
	require.NoError(t, err)
	require.True(t, wd.Success, wd.Reason())
	assert.Equal(t, "100.00", f.balance(acc.ID()))
	assert.Nil(t, wd.Data.ToAccountID())

	history := f.history(acc.ID())
	assert.Equal(t, 1, countByType(history, domain.TxDeposit, domain.TxCompleted))
	assert.Equal(t, 1, countByType(history, domain.TxWithdrawal, domain.TxCompleted))
}

func TestWithdrawMoney_InsufficientBalanceRecordsFailure(t *testing.T) {
	f := newFixture(t)
	acc := f.openFunded(f.client.ID, domain.AccountChecking, "10")

	res, err := f.svc.WithdrawMoney(f.ctx, service.CashRequest{
		UserID:    f.client.ID,
		AccountID: acc.ID(),
		Amount:    dec("10.01"),
	})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.True(t, res.Is(domain.ErrInsufficientBalance))

	require.NotNil(t, res.Data)
	assert.Equal(t, domain.TxFailed, res.Data.Status())
	assert.Contains(t, res.Data.FailureReason(), "insufficient balance")

	stored, err := f.svc.GetTransaction(f.ctx, f.client.ID, res.Data.ID())
	require.NoError(t, err)
	assert.Equal(t, domain.TxFailed, stored.Status())
	assert.Equal(t, "10.00", f.balance(acc.ID()))
}

func TestCash_Rejections(t *testing.T) {
	f := newFixture(t)
	acc := f.openFunded(f.client.ID, domain.AccountChecking, "10")
	stranger := f.newUser(domain.RoleClient)

	res, err := f.svc.DepositMoney(f.ctx, service.CashRequest{UserID: stranger.ID, AccountID: acc.ID(), Amount: dec("5")})
	require.NoError(t, err)
	assert.ErrorIs(t, res.Err, domain.ErrNotAccountOwner)

	res, err = f.svc.DepositMoney(f.ctx, service.CashRequest{AccountID: acc.ID(), Amount: dec("-5")})
	require.NoError(t, err)
	assert.ErrorIs(t, res.Err, domain.ErrInvalidAmount)

	res, err = f.svc.DepositMoney(f.ctx, service.CashRequest{AccountID: acc.ID(), Amount: dec("5"), Currency: money.USD})
	require.NoError(t, err)
	assert.ErrorIs(t, res.Err, money.ErrCurrencyMismatch)
	assert.Equal(t, domain.TxFailed, res.Data.Status())

	assert.Equal(t, "10.00", f.balance(acc.ID()))
}

func TestWithdrawMoney_ConcurrentOnlyOneSucceeds(t *testing.T) {
	f := newFixture(t)
	acc := f.openFunded(f.client.ID, domain.AccountChecking, "100")

	const workers = 10
	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.svc.WithdrawMoney(f.ctx, service.CashRequest{AccountID: acc.ID(), Amount: dec("100")})
			assert.NoError(t, err)
			if res.Success {
				succeeded.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), succeeded.Load())
	assert.Equal(t, "0.00", f.balance(acc.ID()))

	history := f.history(acc.ID())
	assert.Equal(t, 1, countByType(history, domain.TxWithdrawal, domain.TxCompleted))
	assert.Equal(t, workers-1, countByType(history, domain.TxWithdrawal, domain.TxFailed))
}
