package store

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/punchamoorthee/bankcore/internal/domain"
	"github.com/punchamoorthee/bankcore/internal/money"
	"github.com/punchamoorthee/bankcore/internal/service"
)

func newTestMemory() *Memory {
	return NewMemory(decimal.RequireFromString("2.5"), money.MustNew("1.50", money.EUR))
}

func openAccount(t *testing.T, userID uuid.UUID, typ domain.AccountType) *domain.Account {
	t.Helper()
	iban, err := domain.GenerateIBAN("FR", "30004")
	require.NoError(t, err)
	acc, err := domain.NewAccount(domain.NewAccountParams{
		UserID:   userID,
		IBAN:     iban,
		Name:     "Main",
		Type:     typ,
		Currency: money.EUR,
	})
	require.NoError(t, err)
	return acc
}

func TestMemory_SaveAndFind(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory()
	repos := m.Repositories()

	acc := openAccount(t, uuid.New(), domain.AccountChecking)
	require.NoError(t, repos.Accounts.Save(ctx, acc))

	got, err := repos.Accounts.FindByID(ctx, acc.ID())
	require.NoError(t, err)
	assert.Equal(t, acc.Snapshot(), got.Snapshot())

	byIBAN, err := repos.Accounts.FindByIBAN(ctx, acc.IBAN())
	require.NoError(t, err)
	assert.Equal(t, acc.ID(), byIBAN.ID())

	exists, err := repos.Accounts.IBANExists(ctx, acc.IBAN())
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = repos.Accounts.FindByID(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestMemory_ReadsAreIndependentCopies(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory()
	repos := m.Repositories()

	acc := openAccount(t, uuid.New(), domain.AccountChecking)
	require.NoError(t, repos.Accounts.Save(ctx, acc))

	loaded, err := repos.Accounts.FindByID(ctx, acc.ID())
	require.NoError(t, err)
	require.NoError(t, loaded.Credit(money.MustNew("10", money.EUR)))

	again, err := repos.Accounts.FindByID(ctx, acc.ID())
	require.NoError(t, err)
	assert.True(t, again.Balance().IsZero())
}

func TestMemory_DuplicateIBAN(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory()
	repos := m.Repositories()

	first := openAccount(t, uuid.New(), domain.AccountChecking)
	require.NoError(t, repos.Accounts.Save(ctx, first))

	clash, err := domain.NewAccount(domain.NewAccountParams{
		UserID:   uuid.New(),
		IBAN:     first.IBAN(),
		Name:     "Other",
		Type:     domain.AccountChecking,
		Currency: money.EUR,
	})
	require.NoError(t, err)
	assert.ErrorIs(t, repos.Accounts.Save(ctx, clash), ErrDuplicateIBAN)
}

func TestMemory_FindByUserIDFiltersType(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory()
	repos := m.Repositories()
	user := uuid.New()

	require.NoError(t, repos.Accounts.Save(ctx, openAccount(t, user, domain.AccountChecking)))
	require.NoError(t, repos.Accounts.Save(ctx, openAccount(t, user, domain.AccountSavings)))
	require.NoError(t, repos.Accounts.Save(ctx, openAccount(t, uuid.New(), domain.AccountSavings)))

	all, err := repos.Accounts.FindByUserID(ctx, user, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	savings := domain.AccountSavings
	only, err := repos.Accounts.FindByUserID(ctx, user, &savings)
	require.NoError(t, err)
	require.Len(t, only, 1)
	assert.Equal(t, domain.AccountSavings, only[0].Type())

	everySavings, err := repos.Accounts.FindAllSavingsAccounts(ctx)
	require.NoError(t, err)
	assert.Len(t, everySavings, 2)
}

func TestMemory_WithinTxCommits(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory()
	acc := openAccount(t, uuid.New(), domain.AccountChecking)

	err := m.WithinTx(ctx, func(ctx context.Context, r service.Repositories) error {
		require.NoError(t, r.Accounts.Save(ctx, acc))

		// visible inside the unit of work
		_, err := r.Accounts.FindByID(ctx, acc.ID())
		require.NoError(t, err)

		// not yet visible outside
		_, err = m.Repositories().Accounts.FindByID(ctx, acc.ID())
		require.ErrorIs(t, err, domain.ErrAccountNotFound)
		return nil
	})
	require.NoError(t, err)

	_, err = m.Repositories().Accounts.FindByID(ctx, acc.ID())
	assert.NoError(t, err)
}

func TestMemory_WithinTxDiscardsOnError(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory()
	repos := m.Repositories()

	acc := openAccount(t, uuid.New(), domain.AccountChecking)
	require.NoError(t, acc.Credit(money.MustNew("100", money.EUR)))
	require.NoError(t, repos.Accounts.Save(ctx, acc))

	boom := errors.New("boom")
	err := m.WithinTx(ctx, func(ctx context.Context, r service.Repositories) error {
		locked, err := r.Accounts.FindByID(ctx, acc.ID())
		require.NoError(t, err)
		require.NoError(t, locked.Debit(money.MustNew("40", money.EUR)))
		require.NoError(t, r.Accounts.Save(ctx, locked))

		tx, err := domain.NewTransaction(domain.NewTransactionParams{
			Type:          domain.TxWithdrawal,
			FromAccountID: &[]uuid.UUID{acc.ID()}[0],
			Amount:        money.MustNew("40", money.EUR),
		})
		require.NoError(t, err)
		require.NoError(t, r.Transactions.Save(ctx, tx))
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := repos.Accounts.FindByID(ctx, acc.ID())
	require.NoError(t, err)
	assert.Equal(t, "100.00", got.Balance().Amount().StringFixed(2))

	history, err := repos.Transactions.FindByAccountID(ctx, acc.ID())
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestMemory_StagedDelete(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory()
	acc := openAccount(t, uuid.New(), domain.AccountChecking)
	require.NoError(t, m.Repositories().Accounts.Save(ctx, acc))

	err := m.WithinTx(ctx, func(ctx context.Context, r service.Repositories) error {
		require.NoError(t, r.Accounts.Delete(ctx, acc.ID()))
		_, err := r.Accounts.FindByID(ctx, acc.ID())
		require.ErrorIs(t, err, domain.ErrAccountNotFound)
		list, err := r.Accounts.FindByUserID(ctx, acc.UserID(), nil)
		require.NoError(t, err)
		require.Empty(t, list)
		return nil
	})
	require.NoError(t, err)

	_, err = m.Repositories().Accounts.FindByID(ctx, acc.ID())
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
	assert.ErrorIs(t, m.Repositories().Accounts.Delete(ctx, acc.ID()), domain.ErrAccountNotFound)
}

func TestMemory_TransactionQueries(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory()
	repos := m.Repositories()
	user := uuid.New()

	a := openAccount(t, user, domain.AccountChecking)
	b := openAccount(t, uuid.New(), domain.AccountChecking)
	require.NoError(t, repos.Accounts.Save(ctx, a))
	require.NoError(t, repos.Accounts.Save(ctx, b))

	aID, bID := a.ID(), b.ID()
	transfer, err := domain.NewTransaction(domain.NewTransactionParams{
		Type:          domain.TxTransfer,
		FromAccountID: &bID,
		ToAccountID:   &aID,
		Amount:        money.MustNew("5", money.EUR),
	})
	require.NoError(t, err)
	deposit, err := domain.NewTransaction(domain.NewTransactionParams{
		Type:        domain.TxDeposit,
		ToAccountID: &bID,
		Amount:      money.MustNew("5", money.EUR),
	})
	require.NoError(t, err)
	require.NoError(t, deposit.Complete())
	require.NoError(t, repos.Transactions.Save(ctx, transfer))
	require.NoError(t, repos.Transactions.Save(ctx, deposit))

	forA, err := repos.Transactions.FindByAccountID(ctx, aID)
	require.NoError(t, err)
	assert.Len(t, forA, 1)

	forUser, err := repos.Transactions.FindByUserID(ctx, user)
	require.NoError(t, err)
	require.Len(t, forUser, 1)
	assert.Equal(t, transfer.ID(), forUser[0].ID())

	pending, err := repos.Transactions.FindByStatus(ctx, domain.TxPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, transfer.ID(), pending[0].ID())

	require.NoError(t, repos.Transactions.Delete(ctx, transfer.ID()))
	_, err = repos.Transactions.FindByID(ctx, transfer.ID())
	assert.ErrorIs(t, err, domain.ErrTransactionNotFound)
}

func TestMemory_NetHoldings(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory()
	repos := m.Repositories()
	user, account, stock := uuid.New(), uuid.New(), uuid.New()

	place := func(side domain.OrderSide, qty int64, execute bool) {
		o, err := domain.NewInvestmentOrder(domain.NewOrderParams{
			UserID:        user,
			AccountID:     account,
			StockID:       stock,
			Side:          side,
			Quantity:      qty,
			PricePerShare: money.MustNew("10", money.EUR),
			Fees:          money.MustNew("1", money.EUR),
		})
		require.NoError(t, err)
		if execute {
			require.NoError(t, o.Execute())
		}
		require.NoError(t, repos.Orders.Save(ctx, o))
	}
	place(domain.OrderBuy, 10, true)
	place(domain.OrderBuy, 5, true)
	place(domain.OrderSell, 4, true)
	place(domain.OrderSell, 100, false)

	held, err := repos.Orders.CountNetHoldingsByStockID(ctx, user, stock)
	require.NoError(t, err)
	assert.Equal(t, int64(11), held)
	assert.NoError(t, repos.Orders.LockHoldings(ctx, user, stock))

	other, err := repos.Orders.CountNetHoldingsByStockID(ctx, user, uuid.New())
	require.NoError(t, err)
	assert.Zero(t, other)

	executed, err := repos.Orders.FindExecutedOrdersByUserID(ctx, user)
	require.NoError(t, err)
	assert.Len(t, executed, 3)
}

func TestMemory_CreditQueries(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory()
	repos := m.Repositories()
	user := uuid.New()

	credit, _, err := domain.NewCredit(domain.NewCreditParams{
		UserID:    user,
		AccountID: uuid.New(),
		AdvisorID: uuid.New(),
		Terms: domain.CreditTerms{
			Principal:          money.MustNew("1200", money.EUR),
			AnnualInterestRate: decimal.RequireFromString("0.12"),
			InsuranceRate:      decimal.Zero,
			DurationMonths:     12,
		},
	})
	require.NoError(t, err)
	require.NoError(t, repos.Credits.Save(ctx, credit))

	active, err := repos.Credits.FindActiveCredits(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, credit.Snapshot(), active[0].Snapshot())

	mine, err := repos.Credits.FindByUserID(ctx, user)
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	require.NoError(t, credit.MarkDefaulted())
	require.NoError(t, repos.Credits.Save(ctx, credit))
	active, err = repos.Credits.FindActiveCredits(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestMemory_ReferenceData(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory()

	user := domain.User{ID: uuid.New(), Email: "a@example.com", FullName: "Ada", Role: domain.RoleAdvisor}
	stock := domain.Stock{ID: uuid.New(), Symbol: "ACME", Name: "Acme", Price: money.MustNew("12.5", money.EUR), Tradeable: true}
	m.AddUser(user)
	m.AddStock(stock)

	gotUser, err := m.Repositories().Users.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, user, *gotUser)

	gotStock, err := m.Repositories().Stocks.FindByID(ctx, stock.ID)
	require.NoError(t, err)
	assert.Equal(t, stock, *gotStock)

	_, err = m.Repositories().Users.FindByID(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
	_, err = m.Repositories().Stocks.FindByID(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrStockNotFound)
}

func TestMemory_Settings(t *testing.T) {
	ctx := context.Background()
	settings := newTestMemory().Repositories().Settings

	rate, err := settings.GetSavingsRate(ctx)
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.RequireFromString("2.5")))

	fee, err := settings.GetInvestmentFee(ctx)
	require.NoError(t, err)
	assert.True(t, fee.Equal(money.MustNew("1.50", money.EUR)))

	require.NoError(t, settings.SetSavingsRate(ctx, decimal.RequireFromString("3.65")))
	require.NoError(t, settings.SetInvestmentFee(ctx, money.MustNew("0.99", money.USD)))

	rate, err = settings.GetSavingsRate(ctx)
	require.NoError(t, err)
	assert.Equal(t, "3.65", rate.String())

	fee, err = settings.GetInvestmentFee(ctx)
	require.NoError(t, err)
	assert.Equal(t, "0.99 USD", fee.String())

	assert.ErrorIs(t, settings.SetSavingsRate(ctx, decimal.RequireFromString("-1")), domain.ErrInvalidAmount)
}
