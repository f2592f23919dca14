package store

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/punchamoorthee/bankcore/internal/domain"
	"github.com/punchamoorthee/bankcore/internal/money"
	"github.com/punchamoorthee/bankcore/internal/service"
)

// Memory keeps every entity as a snapshot and rebuilds it on read, so callers never
// share instances with the store.
//
// Units of work run one at a time under a commit mutex. Their writes are staged and
// applied to the committed rows only when fn returns nil.
type Memory struct {
	mu     sync.RWMutex
	commit sync.Mutex

	accounts     table[uuid.UUID, domain.AccountSnapshot]
	transactions table[uuid.UUID, domain.TransactionSnapshot]
	credits      table[uuid.UUID, domain.CreditSnapshot]
	orders       table[uuid.UUID, domain.OrderSnapshot]
	stocks       table[uuid.UUID, domain.Stock]
	users        table[uuid.UUID, domain.User]
	settings     table[string, string]
}

var _ service.UnitOfWork = (*Memory)(nil)

func NewMemory(savingsRate decimal.Decimal, investmentFee money.Money) *Memory {
	m := &Memory{
		accounts:     table[uuid.UUID, domain.AccountSnapshot]{},
		transactions: table[uuid.UUID, domain.TransactionSnapshot]{},
		credits:      table[uuid.UUID, domain.CreditSnapshot]{},
		orders:       table[uuid.UUID, domain.OrderSnapshot]{},
		stocks:       table[uuid.UUID, domain.Stock]{},
		users:        table[uuid.UUID, domain.User]{},
		settings:     table[string, string]{},
	}
	m.settings[settingSavingsRate] = savingsRate.String()
	m.settings[settingInvestmentFee] = formatFee(investmentFee)
	return m
}

// AddUser registers a user; users are owned by an external directory.
func (m *Memory) AddUser(u domain.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
}

// AddStock registers or reprices a stock.
func (m *Memory) AddStock(s domain.Stock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stocks[s.ID] = s
}

func (m *Memory) Repositories() service.Repositories {
	return m.repositories(nil)
}

func (m *Memory) WithinTx(ctx context.Context, fn func(ctx context.Context, repos service.Repositories) error) error {
	m.commit.Lock()
	defer m.commit.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	s := newStaging()
	if err := fn(ctx, m.repositories(s)); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	s.accounts.applyTo(m.accounts)
	s.transactions.applyTo(m.transactions)
	s.credits.applyTo(m.credits)
	s.orders.applyTo(m.orders)
	s.settings.applyTo(m.settings)
	return nil
}

// repositories binds views to s; a nil s writes straight to the committed rows.
func (m *Memory) repositories(s *staging) service.Repositories {
	if s == nil {
		s = &staging{}
	}
	accounts := view[uuid.UUID, domain.AccountSnapshot]{mu: &m.mu, base: m.accounts, staged: s.accounts}
	return service.Repositories{
		Accounts: &memAccounts{rows: accounts},
		Transactions: &memTransactions{
			rows:     view[uuid.UUID, domain.TransactionSnapshot]{mu: &m.mu, base: m.transactions, staged: s.transactions},
			accounts: accounts,
		},
		Credits:  &memCredits{rows: view[uuid.UUID, domain.CreditSnapshot]{mu: &m.mu, base: m.credits, staged: s.credits}},
		Orders:   &memOrders{rows: view[uuid.UUID, domain.OrderSnapshot]{mu: &m.mu, base: m.orders, staged: s.orders}},
		Stocks:   &memStocks{rows: view[uuid.UUID, domain.Stock]{mu: &m.mu, base: m.stocks}},
		Users:    &memUsers{rows: view[uuid.UUID, domain.User]{mu: &m.mu, base: m.users}},
		Settings: &memSettings{rows: view[string, string]{mu: &m.mu, base: m.settings, staged: s.settings}},
	}
}

type staging struct {
	accounts     *changes[uuid.UUID, domain.AccountSnapshot]
	transactions *changes[uuid.UUID, domain.TransactionSnapshot]
	credits      *changes[uuid.UUID, domain.CreditSnapshot]
	orders       *changes[uuid.UUID, domain.OrderSnapshot]
	settings     *changes[string, string]
}

func newStaging() *staging {
	return &staging{
		accounts:     newChanges[uuid.UUID, domain.AccountSnapshot](),
		transactions: newChanges[uuid.UUID, domain.TransactionSnapshot](),
		credits:      newChanges[uuid.UUID, domain.CreditSnapshot](),
		orders:       newChanges[uuid.UUID, domain.OrderSnapshot](),
		settings:     newChanges[string, string](),
	}
}

type table[K comparable, S any] map[K]S

// changes is the write set of one unit of work.
type changes[K comparable, S any] struct {
	put map[K]S
	del map[K]struct{}
}

func newChanges[K comparable, S any]() *changes[K, S] {
	return &changes[K, S]{put: map[K]S{}, del: map[K]struct{}{}}
}

func (c *changes[K, S]) applyTo(t table[K, S]) {
	for k := range c.del {
		delete(t, k)
	}
	for k, v := range c.put {
		t[k] = v
	}
}

// view reads through the staged write set, when there is one, to the committed rows.
type view[K comparable, S any] struct {
	mu     *sync.RWMutex
	base   table[K, S]
	staged *changes[K, S]
}

func (v view[K, S]) get(k K) (S, bool) {
	if v.staged != nil {
		if s, ok := v.staged.put[k]; ok {
			return s, true
		}
		if _, gone := v.staged.del[k]; gone {
			var zero S
			return zero, false
		}
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	s, ok := v.base[k]
	return s, ok
}

func (v view[K, S]) all() []S {
	v.mu.RLock()
	out := make([]S, 0, len(v.base))
	for k, s := range v.base {
		if v.staged != nil {
			if _, gone := v.staged.del[k]; gone {
				continue
			}
			if _, shadowed := v.staged.put[k]; shadowed {
				continue
			}
		}
		out = append(out, s)
	}
	v.mu.RUnlock()
	if v.staged != nil {
		for _, s := range v.staged.put {
			out = append(out, s)
		}
	}
	return out
}

func (v view[K, S]) put(k K, s S) {
	if v.staged != nil {
		delete(v.staged.del, k)
		v.staged.put[k] = s
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.base[k] = s
}

func (v view[K, S]) remove(k K) {
	if v.staged != nil {
		delete(v.staged.put, k)
		v.staged.del[k] = struct{}{}
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.base, k)
}

func restoreAll[S, E any](rows []S, keep func(S) bool, restore func(S) (E, error)) ([]E, error) {
	out := make([]E, 0, len(rows))
	for _, r := range rows {
		if keep != nil && !keep(r) {
			continue
		}
		e, err := restore(r)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

type memAccounts struct {
	rows view[uuid.UUID, domain.AccountSnapshot]
}

func (r *memAccounts) FindByID(_ context.Context, id uuid.UUID) (*domain.Account, error) {
	s, ok := r.rows.get(id)
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return domain.RestoreAccount(s)
}

func (r *memAccounts) FindByIBAN(_ context.Context, iban string) (*domain.Account, error) {
	iban = domain.NormalizeIBAN(iban)
	for _, s := range r.rows.all() {
		if s.IBAN == iban {
			return domain.RestoreAccount(s)
		}
	}
	return nil, domain.ErrAccountNotFound
}

func (r *memAccounts) FindByUserID(_ context.Context, userID uuid.UUID, accountType *domain.AccountType) ([]*domain.Account, error) {
	rows := r.rows.all()
	sortAccounts(rows)
	return restoreAll(rows, func(s domain.AccountSnapshot) bool {
		return s.UserID == userID && (accountType == nil || s.Type == *accountType)
	}, domain.RestoreAccount)
}

func (r *memAccounts) FindAllSavingsAccounts(_ context.Context) ([]*domain.Account, error) {
	rows := r.rows.all()
	sortAccounts(rows)
	return restoreAll(rows, func(s domain.AccountSnapshot) bool {
		return s.Type == domain.AccountSavings
	}, domain.RestoreAccount)
}

func (r *memAccounts) Save(_ context.Context, a *domain.Account) error {
	s := a.Snapshot()
	for _, other := range r.rows.all() {
		if other.IBAN == s.IBAN && other.ID != s.ID {
			return fmt.Errorf("%w: %s", ErrDuplicateIBAN, s.IBAN)
		}
	}
	r.rows.put(s.ID, s)
	return nil
}

func (r *memAccounts) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := r.rows.get(id); !ok {
		return domain.ErrAccountNotFound
	}
	r.rows.remove(id)
	return nil
}

func (r *memAccounts) IBANExists(_ context.Context, iban string) (bool, error) {
	iban = domain.NormalizeIBAN(iban)
	for _, s := range r.rows.all() {
		if s.IBAN == iban {
			return true, nil
		}
	}
	return false, nil
}

func sortAccounts(rows []domain.AccountSnapshot) {
	slices.SortFunc(rows, func(a, b domain.AccountSnapshot) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return slices.Compare(a.ID[:], b.ID[:])
	})
}

type memTransactions struct {
	rows     view[uuid.UUID, domain.TransactionSnapshot]
	accounts view[uuid.UUID, domain.AccountSnapshot]
}

func (r *memTransactions) Save(_ context.Context, tx *domain.Transaction) error {
	s := tx.Snapshot()
	r.rows.put(s.ID, s)
	return nil
}

func (r *memTransactions) FindByID(_ context.Context, id uuid.UUID) (*domain.Transaction, error) {
	s, ok := r.rows.get(id)
	if !ok {
		return nil, domain.ErrTransactionNotFound
	}
	return domain.RestoreTransaction(s)
}

func (r *memTransactions) FindByAccountID(_ context.Context, accountID uuid.UUID) ([]*domain.Transaction, error) {
	return r.find(func(s domain.TransactionSnapshot) bool {
		return touches(s, func(id uuid.UUID) bool { return id == accountID })
	})
}

func (r *memTransactions) FindByUserID(_ context.Context, userID uuid.UUID) ([]*domain.Transaction, error) {
	owned := map[uuid.UUID]bool{}
	for _, a := range r.accounts.all() {
		if a.UserID == userID {
			owned[a.ID] = true
		}
	}
	return r.find(func(s domain.TransactionSnapshot) bool {
		return touches(s, func(id uuid.UUID) bool { return owned[id] })
	})
}

func (r *memTransactions) FindByStatus(_ context.Context, status domain.TransactionStatus) ([]*domain.Transaction, error) {
	return r.find(func(s domain.TransactionSnapshot) bool { return s.Status == status })
}

func (r *memTransactions) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := r.rows.get(id); !ok {
		return domain.ErrTransactionNotFound
	}
	r.rows.remove(id)
	return nil
}

// find returns matching transactions newest first.
func (r *memTransactions) find(keep func(domain.TransactionSnapshot) bool) ([]*domain.Transaction, error) {
	rows := r.rows.all()
	slices.SortFunc(rows, func(a, b domain.TransactionSnapshot) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return slices.Compare(a.ID[:], b.ID[:])
	})
	return restoreAll(rows, keep, domain.RestoreTransaction)
}

func touches(s domain.TransactionSnapshot, match func(uuid.UUID) bool) bool {
	return (s.FromAccountID != nil && match(*s.FromAccountID)) || (s.ToAccountID != nil && match(*s.ToAccountID))
}

type memCredits struct {
	rows view[uuid.UUID, domain.CreditSnapshot]
}

func (r *memCredits) Save(_ context.Context, c *domain.Credit) error {
	s := c.Snapshot()
	r.rows.put(s.ID, s)
	return nil
}

func (r *memCredits) FindByID(_ context.Context, id uuid.UUID) (*domain.Credit, error) {
	s, ok := r.rows.get(id)
	if !ok {
		return nil, domain.ErrCreditNotFound
	}
	return domain.RestoreCredit(s)
}

func (r *memCredits) FindByUserID(_ context.Context, userID uuid.UUID) ([]*domain.Credit, error) {
	return r.find(func(s domain.CreditSnapshot) bool { return s.UserID == userID })
}

func (r *memCredits) FindActiveCredits(_ context.Context) ([]*domain.Credit, error) {
	return r.find(func(s domain.CreditSnapshot) bool { return s.Status == domain.CreditActive })
}

func (r *memCredits) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := r.rows.get(id); !ok {
		return domain.ErrCreditNotFound
	}
	r.rows.remove(id)
	return nil
}

func (r *memCredits) find(keep func(domain.CreditSnapshot) bool) ([]*domain.Credit, error) {
	rows := r.rows.all()
	slices.SortFunc(rows, func(a, b domain.CreditSnapshot) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return slices.Compare(a.ID[:], b.ID[:])
	})
	return restoreAll(rows, keep, domain.RestoreCredit)
}

type memOrders struct {
	rows view[uuid.UUID, domain.OrderSnapshot]
}

func (r *memOrders) Save(_ context.Context, o *domain.InvestmentOrder) error {
	s := o.Snapshot()
	r.rows.put(s.ID, s)
	return nil
}

func (r *memOrders) FindByID(_ context.Context, id uuid.UUID) (*domain.InvestmentOrder, error) {
	s, ok := r.rows.get(id)
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return domain.RestoreInvestmentOrder(s)
}

func (r *memOrders) FindExecutedOrdersByUserID(_ context.Context, userID uuid.UUID) ([]*domain.InvestmentOrder, error) {
	rows := r.rows.all()
	slices.SortFunc(rows, func(a, b domain.OrderSnapshot) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return slices.Compare(a.ID[:], b.ID[:])
	})
	return restoreAll(rows, func(s domain.OrderSnapshot) bool {
		return s.UserID == userID && s.Status == domain.OrderExecuted
	}, domain.RestoreInvestmentOrder)
}

func (r *memOrders) CountNetHoldingsByStockID(ctx context.Context, userID, stockID uuid.UUID) (int64, error) {
	orders, err := r.FindExecutedOrdersByUserID(ctx, userID)
	if err != nil {
		return 0, err
	}
	return domain.NetHoldings(orders, stockID), nil
}

// LockHoldings is a no-op: units of work already run one at a time.
func (r *memOrders) LockHoldings(context.Context, uuid.UUID, uuid.UUID) error {
	return nil
}

type memStocks struct {
	rows view[uuid.UUID, domain.Stock]
}

func (r *memStocks) FindByID(_ context.Context, id uuid.UUID) (*domain.Stock, error) {
	s, ok := r.rows.get(id)
	if !ok {
		return nil, domain.ErrStockNotFound
	}
	return &s, nil
}

type memUsers struct {
	rows view[uuid.UUID, domain.User]
}

func (r *memUsers) FindByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	u, ok := r.rows.get(id)
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return &u, nil
}

type memSettings struct {
	rows view[string, string]
}

func (r *memSettings) GetSavingsRate(_ context.Context) (decimal.Decimal, error) {
	v, ok := r.rows.get(settingSavingsRate)
	if !ok {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(v)
}

func (r *memSettings) GetInvestmentFee(_ context.Context) (money.Money, error) {
	v, ok := r.rows.get(settingInvestmentFee)
	if !ok {
		return money.Money{}, fmt.Errorf("setting %s not configured", settingInvestmentFee)
	}
	return parseFee(v)
}

func (r *memSettings) SetSavingsRate(_ context.Context, ratePercent decimal.Decimal) error {
	if ratePercent.IsNegative() {
		return domain.ErrInvalidAmount
	}
	r.rows.put(settingSavingsRate, ratePercent.String())
	return nil
}

func (r *memSettings) SetInvestmentFee(_ context.Context, fee money.Money) error {
	if fee.IsNegative() {
		return domain.ErrInvalidAmount
	}
	r.rows.put(settingInvestmentFee, formatFee(fee))
	return nil
}
