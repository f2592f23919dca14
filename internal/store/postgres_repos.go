package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/punchamoorthee/bankcore/internal/domain"
	"github.com/punchamoorthee/bankcore/internal/money"
)

// Amounts are stored as BIGINT cents next to a currency column; rates as NUMERIC,
// moved through text so no precision is lost on either side.

type rowScanner interface {
	Scan(dest ...any) error
}

func toMoney(cents int64, currency string) (money.Money, error) {
	c, err := money.ParseCurrency(currency)
	if err != nil {
		return money.Money{}, err
	}
	return money.FromCents(cents, c)
}

func rateText(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

func parseRate(s *string) (*decimal.Decimal, error) {
	if s == nil {
		return nil, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return nil, fmt.Errorf("parse rate %q: %w", *s, err)
	}
	return &d, nil
}

// collect scans every row with scan and closes rows.
func collect[T any](rows pgx.Rows, scan func(rowScanner) (T, error)) ([]T, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (T, error) {
		return scan(row)
	})
}

// Accounts

const accountColumns = `id, user_id, iban, name, type, balance_cents, currency, interest_rate::text,
	is_active, last_interest_on, created_at, updated_at`

type pgAccounts struct {
	db   querier
	lock bool
}

func scanAccount(row rowScanner) (*domain.Account, error) {
	var (
		s        domain.AccountSnapshot
		kind     string
		cents    int64
		currency string
		rate     *string
	)
	err := row.Scan(&s.ID, &s.UserID, &s.IBAN, &s.Name, &kind, &cents, &currency, &rate,
		&s.IsActive, &s.LastInterestOn, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	s.Type = domain.AccountType(kind)
	if s.Balance, err = toMoney(cents, currency); err != nil {
		return nil, err
	}
	if s.InterestRate, err = parseRate(rate); err != nil {
		return nil, err
	}
	return domain.RestoreAccount(s)
}

func (r *pgAccounts) one(ctx context.Context, where string, arg any) (*domain.Account, error) {
	acc, err := scanAccount(r.db.QueryRow(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE "+where+forUpdate(r.lock), arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}
	return acc, nil
}

func (r *pgAccounts) FindByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	return r.one(ctx, "id = $1", id)
}

func (r *pgAccounts) FindByIBAN(ctx context.Context, iban string) (*domain.Account, error) {
	return r.one(ctx, "iban = $1", domain.NormalizeIBAN(iban))
}

func (r *pgAccounts) FindByUserID(ctx context.Context, userID uuid.UUID, accountType *domain.AccountType) ([]*domain.Account, error) {
	var kind *string
	if accountType != nil {
		k := string(*accountType)
		kind = &k
	}
	rows, err := r.db.Query(ctx,
		"SELECT "+accountColumns+` FROM accounts
		WHERE user_id = $1 AND ($2::text IS NULL OR type = $2)
		ORDER BY created_at, id`, userID, kind)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return collect(rows, scanAccount)
}

func (r *pgAccounts) FindAllSavingsAccounts(ctx context.Context) ([]*domain.Account, error) {
	rows, err := r.db.Query(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE type = 'savings' ORDER BY created_at, id")
	if err != nil {
		return nil, fmt.Errorf("list savings accounts: %w", err)
	}
	return collect(rows, scanAccount)
}

func (r *pgAccounts) Save(ctx context.Context, a *domain.Account) error {
	s := a.Snapshot()
	_, err := r.db.Exec(ctx, `
		INSERT INTO accounts (id, user_id, iban, name, type, balance_cents, currency, interest_rate,
			is_active, last_interest_on, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::text::numeric, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			balance_cents = EXCLUDED.balance_cents,
			interest_rate = EXCLUDED.interest_rate,
			is_active = EXCLUDED.is_active,
			last_interest_on = EXCLUDED.last_interest_on,
			updated_at = EXCLUDED.updated_at`,
		s.ID, s.UserID, s.IBAN, s.Name, string(s.Type), s.Balance.Cents(), string(s.Balance.Currency()),
		rateText(s.InterestRate), s.IsActive, s.LastInterestOn, s.CreatedAt, s.UpdatedAt,
	)
	if pgErr, ok := isUniqueViolation(err); ok && pgErr.ConstraintName == "accounts_iban_key" {
		return fmt.Errorf("%w: %s", ErrDuplicateIBAN, s.IBAN)
	}
	if err != nil {
		return fmt.Errorf("upsert account: %w", err)
	}
	return nil
}

func (r *pgAccounts) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, "DELETE FROM accounts WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

func (r *pgAccounts) IBANExists(ctx context.Context, iban string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM accounts WHERE iban = $1)",
		domain.NormalizeIBAN(iban)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check iban: %w", err)
	}
	return exists, nil
}

// Transactions

const transactionColumns = `id, from_account_id, to_account_id, amount_cents, currency, type, status,
	description, failure_reason, created_at, updated_at`

type pgTransactions struct {
	db   querier
	lock bool
}

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var (
		s        domain.TransactionSnapshot
		cents    int64
		currency string
		kind     string
		status   string
	)
	err := row.Scan(&s.ID, &s.FromAccountID, &s.ToAccountID, &cents, &currency, &kind, &status,
		&s.Description, &s.FailureReason, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	s.Type = domain.TransactionType(kind)
	s.Status = domain.TransactionStatus(status)
	if s.Amount, err = toMoney(cents, currency); err != nil {
		return nil, err
	}
	return domain.RestoreTransaction(s)
}

func (r *pgTransactions) Save(ctx context.Context, tx *domain.Transaction) error {
	s := tx.Snapshot()
	_, err := r.db.Exec(ctx, `
		INSERT INTO transactions (id, from_account_id, to_account_id, amount_cents, currency, type, status,
			description, failure_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			failure_reason = EXCLUDED.failure_reason,
			updated_at = EXCLUDED.updated_at`,
		s.ID, s.FromAccountID, s.ToAccountID, s.Amount.Cents(), string(s.Amount.Currency()),
		string(s.Type), string(s.Status), s.Description, s.FailureReason, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert transaction: %w", err)
	}
	return nil
}

func (r *pgTransactions) FindByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	tx, err := scanTransaction(r.db.QueryRow(ctx,
		"SELECT "+transactionColumns+" FROM transactions WHERE id = $1"+forUpdate(r.lock), id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load transaction: %w", err)
	}
	return tx, nil
}

func (r *pgTransactions) list(ctx context.Context, where string, args ...any) ([]*domain.Transaction, error) {
	rows, err := r.db.Query(ctx,
		"SELECT "+transactionColumns+" FROM transactions WHERE "+where+" ORDER BY created_at DESC, id", args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return collect(rows, scanTransaction)
}

func (r *pgTransactions) FindByAccountID(ctx context.Context, accountID uuid.UUID) ([]*domain.Transaction, error) {
	return r.list(ctx, "from_account_id = $1 OR to_account_id = $1", accountID)
}

func (r *pgTransactions) FindByUserID(ctx context.Context, userID uuid.UUID) ([]*domain.Transaction, error) {
	return r.list(ctx, `from_account_id IN (SELECT id FROM accounts WHERE user_id = $1)
		OR to_account_id IN (SELECT id FROM accounts WHERE user_id = $1)`, userID)
}

func (r *pgTransactions) FindByStatus(ctx context.Context, status domain.TransactionStatus) ([]*domain.Transaction, error) {
	return r.list(ctx, "status = $1", string(status))
}

func (r *pgTransactions) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, "DELETE FROM transactions WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTransactionNotFound
	}
	return nil
}

// Credits

const creditColumns = `id, user_id, account_id, advisor_id, principal_cents, currency,
	annual_interest_rate::text, insurance_rate::text, duration_months, monthly_payment_cents,
	remaining_balance_cents, status, payments_made, last_payment_on, created_at, updated_at`

type pgCredits struct {
	db   querier
	lock bool
}

func scanCredit(row rowScanner) (*domain.Credit, error) {
	var (
		s                                     domain.CreditSnapshot
		principal, monthly, remaining         int64
		currency, annualRate, insRate, status string
	)
	err := row.Scan(&s.ID, &s.UserID, &s.AccountID, &s.AdvisorID, &principal, &currency,
		&annualRate, &insRate, &s.DurationMonths, &monthly, &remaining, &status,
		&s.PaymentsMade, &s.LastPaymentOn, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	s.Status = domain.CreditStatus(status)
	if s.PrincipalAmount, err = toMoney(principal, currency); err != nil {
		return nil, err
	}
	if s.MonthlyPayment, err = toMoney(monthly, currency); err != nil {
		return nil, err
	}
	if s.RemainingBalance, err = toMoney(remaining, currency); err != nil {
		return nil, err
	}
	if s.AnnualInterestRate, err = decimal.NewFromString(annualRate); err != nil {
		return nil, fmt.Errorf("parse annual rate: %w", err)
	}
	if s.InsuranceRate, err = decimal.NewFromString(insRate); err != nil {
		return nil, fmt.Errorf("parse insurance rate: %w", err)
	}
	return domain.RestoreCredit(s)
}

func (r *pgCredits) Save(ctx context.Context, c *domain.Credit) error {
	s := c.Snapshot()
	_, err := r.db.Exec(ctx, `
		INSERT INTO credits (id, user_id, account_id, advisor_id, principal_cents, currency,
			annual_interest_rate, insurance_rate, duration_months, monthly_payment_cents,
			remaining_balance_cents, status, payments_made, last_payment_on, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::text::numeric, $8::text::numeric, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (id) DO UPDATE SET
			remaining_balance_cents = EXCLUDED.remaining_balance_cents,
			status = EXCLUDED.status,
			payments_made = EXCLUDED.payments_made,
			last_payment_on = EXCLUDED.last_payment_on,
			updated_at = EXCLUDED.updated_at`,
		s.ID, s.UserID, s.AccountID, s.AdvisorID, s.PrincipalAmount.Cents(), string(s.PrincipalAmount.Currency()),
		s.AnnualInterestRate.String(), s.InsuranceRate.String(), s.DurationMonths, s.MonthlyPayment.Cents(),
		s.RemainingBalance.Cents(), string(s.Status), s.PaymentsMade, s.LastPaymentOn, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert credit: %w", err)
	}
	return nil
}

func (r *pgCredits) FindByID(ctx context.Context, id uuid.UUID) (*domain.Credit, error) {
	c, err := scanCredit(r.db.QueryRow(ctx,
		"SELECT "+creditColumns+" FROM credits WHERE id = $1"+forUpdate(r.lock), id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrCreditNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load credit: %w", err)
	}
	return c, nil
}

func (r *pgCredits) list(ctx context.Context, where string, args ...any) ([]*domain.Credit, error) {
	rows, err := r.db.Query(ctx,
		"SELECT "+creditColumns+" FROM credits WHERE "+where+" ORDER BY created_at, id", args...)
	if err != nil {
		return nil, fmt.Errorf("list credits: %w", err)
	}
	return collect(rows, scanCredit)
}

func (r *pgCredits) FindByUserID(ctx context.Context, userID uuid.UUID) ([]*domain.Credit, error) {
	return r.list(ctx, "user_id = $1", userID)
}

func (r *pgCredits) FindActiveCredits(ctx context.Context) ([]*domain.Credit, error) {
	return r.list(ctx, "status = 'active'")
}

func (r *pgCredits) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, "DELETE FROM credits WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete credit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrCreditNotFound
	}
	return nil
}

// Investment orders

const orderColumns = `id, user_id, account_id, stock_id, transaction_id, order_type, quantity,
	price_per_share_cents, total_amount_cents, fees_cents, currency, status, executed_at,
	created_at, updated_at`

type pgOrders struct {
	db   querier
	lock bool
}

func scanOrder(row rowScanner) (*domain.InvestmentOrder, error) {
	var (
		s                  domain.OrderSnapshot
		txID               *uuid.UUID
		price, total, fees int64
		side, currency, st string
	)
	err := row.Scan(&s.ID, &s.UserID, &s.AccountID, &s.StockID, &txID, &side, &s.Quantity,
		&price, &total, &fees, &currency, &st, &s.ExecutedAt, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if txID != nil {
		s.TransactionID = *txID
	}
	s.Side = domain.OrderSide(side)
	s.Status = domain.OrderStatus(st)
	if s.PricePerShare, err = toMoney(price, currency); err != nil {
		return nil, err
	}
	if s.TotalAmount, err = toMoney(total, currency); err != nil {
		return nil, err
	}
	if s.Fees, err = toMoney(fees, currency); err != nil {
		return nil, err
	}
	return domain.RestoreInvestmentOrder(s)
}

func (r *pgOrders) Save(ctx context.Context, o *domain.InvestmentOrder) error {
	s := o.Snapshot()
	var txID *uuid.UUID
	if s.TransactionID != uuid.Nil {
		txID = &s.TransactionID
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO investment_orders (id, user_id, account_id, stock_id, transaction_id, order_type, quantity,
			price_per_share_cents, total_amount_cents, fees_cents, currency, status, executed_at,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			executed_at = EXCLUDED.executed_at,
			updated_at = EXCLUDED.updated_at`,
		s.ID, s.UserID, s.AccountID, s.StockID, txID, string(s.Side), s.Quantity,
		s.PricePerShare.Cents(), s.TotalAmount.Cents(), s.Fees.Cents(), string(s.TotalAmount.Currency()),
		string(s.Status), s.ExecutedAt, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert investment order: %w", err)
	}
	return nil
}

func (r *pgOrders) FindByID(ctx context.Context, id uuid.UUID) (*domain.InvestmentOrder, error) {
	o, err := scanOrder(r.db.QueryRow(ctx,
		"SELECT "+orderColumns+" FROM investment_orders WHERE id = $1"+forUpdate(r.lock), id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load investment order: %w", err)
	}
	return o, nil
}

func (r *pgOrders) FindExecutedOrdersByUserID(ctx context.Context, userID uuid.UUID) ([]*domain.InvestmentOrder, error) {
	rows, err := r.db.Query(ctx,
		"SELECT "+orderColumns+` FROM investment_orders
		WHERE user_id = $1 AND status = 'executed' ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list executed orders: %w", err)
	}
	return collect(rows, scanOrder)
}

func (r *pgOrders) CountNetHoldingsByStockID(ctx context.Context, userID, stockID uuid.UUID) (int64, error) {
	var held int64
	err := r.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(CASE WHEN order_type = 'buy' THEN quantity ELSE -quantity END), 0)::bigint
		FROM investment_orders
		WHERE user_id = $1 AND stock_id = $2 AND status = 'executed'`,
		userID, stockID,
	).Scan(&held)
	if err != nil {
		return 0, fmt.Errorf("count holdings: %w", err)
	}
	return held, nil
}

// LockHoldings upserts the (user, stock) guard row. A second unit of work blocks on the
// row until the first commits and then fails with 40001, so WithinTx retries it on a
// snapshot that includes the first one's executed orders.
func (r *pgOrders) LockHoldings(ctx context.Context, userID, stockID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO holding_locks (user_id, stock_id, touched_at)
		VALUES ($1, $2, now())
		ON CONFLICT (user_id, stock_id) DO UPDATE SET touched_at = EXCLUDED.touched_at`,
		userID, stockID,
	)
	if err != nil {
		return fmt.Errorf("lock holdings: %w", err)
	}
	return nil
}

// Reference data

type pgStocks struct {
	db querier
}

func (r *pgStocks) FindByID(ctx context.Context, id uuid.UUID) (*domain.Stock, error) {
	var (
		s        domain.Stock
		cents    int64
		currency string
	)
	err := r.db.QueryRow(ctx,
		"SELECT id, symbol, name, price_cents, currency, tradeable FROM stocks WHERE id = $1", id,
	).Scan(&s.ID, &s.Symbol, &s.Name, &cents, &currency, &s.Tradeable)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrStockNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load stock: %w", err)
	}
	if s.Price, err = toMoney(cents, currency); err != nil {
		return nil, err
	}
	return &s, nil
}

type pgUsers struct {
	db querier
}

func (r *pgUsers) FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	var (
		u    domain.User
		role string
	)
	err := r.db.QueryRow(ctx, "SELECT id, email, full_name, role FROM users WHERE id = $1", id).
		Scan(&u.ID, &u.Email, &u.FullName, &role)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	u.Role = domain.Role(role)
	return &u, nil
}

type pgSettings struct {
	db querier
}

func (r *pgSettings) get(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := r.db.QueryRow(ctx, "SELECT value FROM bank_settings WHERE key = $1", key).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("load setting %s: %w", key, err)
	}
	return v, true, nil
}

func (r *pgSettings) set(ctx context.Context, key, value string) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO bank_settings (key, value, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		key, value)
	if err != nil {
		return fmt.Errorf("store setting %s: %w", key, err)
	}
	return nil
}

func (r *pgSettings) GetSavingsRate(ctx context.Context) (decimal.Decimal, error) {
	v, ok, err := r.get(ctx, settingSavingsRate)
	if err != nil || !ok {
		return decimal.Zero, err
	}
	return decimal.NewFromString(v)
}

func (r *pgSettings) GetInvestmentFee(ctx context.Context) (money.Money, error) {
	v, ok, err := r.get(ctx, settingInvestmentFee)
	if err != nil {
		return money.Money{}, err
	}
	if !ok {
		return money.Money{}, fmt.Errorf("setting %s not configured", settingInvestmentFee)
	}
	return parseFee(v)
}

func (r *pgSettings) SetSavingsRate(ctx context.Context, ratePercent decimal.Decimal) error {
	if ratePercent.IsNegative() {
		return domain.ErrInvalidAmount
	}
	return r.set(ctx, settingSavingsRate, ratePercent.String())
}

func (r *pgSettings) SetInvestmentFee(ctx context.Context, fee money.Money) error {
	if fee.IsNegative() {
		return domain.ErrInvalidAmount
	}
	return r.set(ctx, settingInvestmentFee, formatFee(fee))
}
