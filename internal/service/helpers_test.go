package service_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/punchamoorthee/bankcore/internal/domain"
	"github.com/punchamoorthee/bankcore/internal/money"
	"github.com/punchamoorthee/bankcore/internal/service"
	"github.com/punchamoorthee/bankcore/internal/store"
)

type fixture struct {
	t       *testing.T
	ctx     context.Context
	mem     *store.Memory
	svc     *service.LedgerService
	client  domain.User
	advisor domain.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := store.NewMemory(decimal.RequireFromString("3.65"), money.MustNew("1.00", money.EUR))
	f := &fixture{
		t:       t,
		ctx:     context.Background(),
		mem:     mem,
		svc:     service.NewLedgerService(mem, slog.New(slog.NewTextHandler(io.Discard, nil))),
		client:  domain.User{ID: uuid.New(), Email: "client@example.com", FullName: "Client", Role: domain.RoleClient},
		advisor: domain.User{ID: uuid.New(), Email: "advisor@example.com", FullName: "Advisor", Role: domain.RoleAdvisor},
	}
	mem.AddUser(f.client)
	mem.AddUser(f.advisor)
	return f
}

func (f *fixture) newUser(role domain.Role) domain.User {
	u := domain.User{ID: uuid.New(), Email: uuid.NewString() + "@example.com", FullName: "User", Role: role}
	f.mem.AddUser(u)
	return u
}

func (f *fixture) open(owner uuid.UUID, typ domain.AccountType, currency money.Currency) *domain.Account {
	f.t.Helper()
	res, err := f.svc.OpenAccount(f.ctx, service.OpenAccountRequest{
		UserID:   owner,
		Name:     "Account " + string(typ),
		Type:     typ,
		Currency: currency,
	})
	require.NoError(f.t, err)
	require.True(f.t, res.Success, res.Reason())
	return res.Data
}

func (f *fixture) openFunded(owner uuid.UUID, typ domain.AccountType, amount string) *domain.Account {
	f.t.Helper()
	acc := f.open(owner, typ, money.EUR)
	f.deposit(acc, amount)
	return acc
}

func (f *fixture) deposit(acc *domain.Account, amount string) {
	f.t.Helper()
	res, err := f.svc.DepositMoney(f.ctx, service.CashRequest{
		UserID:    acc.UserID(),
		AccountID: acc.ID(),
		Amount:    decimal.RequireFromString(amount),
	})
	require.NoError(f.t, err)
	require.True(f.t, res.Success, res.Reason())
}

func (f *fixture) reload(id uuid.UUID) *domain.Account {
	f.t.Helper()
	acc, err := f.mem.Repositories().Accounts.FindByID(f.ctx, id)
	require.NoError(f.t, err)
	return acc
}

// balance returns the stored balance as "123.45".
func (f *fixture) balance(id uuid.UUID) string {
	f.t.Helper()
	return f.reload(id).Balance().Amount().StringFixed(2)
}

func (f *fixture) history(id uuid.UUID) []*domain.Transaction {
	f.t.Helper()
	txs, err := f.mem.Repositories().Transactions.FindByAccountID(f.ctx, id)
	require.NoError(f.t, err)
	return txs
}

func countByType(txs []*domain.Transaction, typ domain.TransactionType, status domain.TransactionStatus) int {
	n := 0
	for _, tx := range txs {
		if tx.Type() == typ && tx.Status() == status {
			n++
		}
	}
	return n
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }
