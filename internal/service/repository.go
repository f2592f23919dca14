package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/punchamoorthee/bankcore/internal/domain"
	"github.com/punchamoorthee/bankcore/internal/money"
)

// AccountRepository persists accounts. Inside a unit of work FindByID locks the row
// until commit.
type AccountRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	FindByIBAN(ctx context.Context, iban string) (*domain.Account, error)
	FindByUserID(ctx context.Context, userID uuid.UUID, accountType *domain.AccountType) ([]*domain.Account, error)
	FindAllSavingsAccounts(ctx context.Context) ([]*domain.Account, error)
	Save(ctx context.Context, account *domain.Account) error
	Delete(ctx context.Context, id uuid.UUID) error
	IBANExists(ctx context.Context, iban string) (bool, error)
}

// TransactionRepository persists transactions; Save is an upsert by id.
type TransactionRepository interface {
	Save(ctx context.Context, tx *domain.Transaction) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
	FindByAccountID(ctx context.Context, accountID uuid.UUID) ([]*domain.Transaction, error)
	FindByUserID(ctx context.Context, userID uuid.UUID) ([]*domain.Transaction, error)
	FindByStatus(ctx context.Context, status domain.TransactionStatus) ([]*domain.Transaction, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type CreditRepository interface {
	Save(ctx context.Context, credit *domain.Credit) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Credit, error)
	FindByUserID(ctx context.Context, userID uuid.UUID) ([]*domain.Credit, error)
	FindActiveCredits(ctx context.Context) ([]*domain.Credit, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type InvestmentOrderRepository interface {
	Save(ctx context.Context, order *domain.InvestmentOrder) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.InvestmentOrder, error)
	FindExecutedOrdersByUserID(ctx context.Context, userID uuid.UUID) ([]*domain.InvestmentOrder, error)
	CountNetHoldingsByStockID(ctx context.Context, userID, stockID uuid.UUID) (int64, error)
	// LockHoldings serializes units of work that read and change one user's position in
	// a stock. It must run before CountNetHoldingsByStockID inside the same unit of work.
	LockHoldings(ctx context.Context, userID, stockID uuid.UUID) error
}

type StockRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Stock, error)
}

type UserRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

// BankSettingsRepository exposes bank-wide values. The ledger only reads them; the
// setters exist for administration.
type BankSettingsRepository interface {
	GetSavingsRate(ctx context.Context) (decimal.Decimal, error)
	GetInvestmentFee(ctx context.Context) (money.Money, error)
	SetSavingsRate(ctx context.Context, ratePercent decimal.Decimal) error
	SetInvestmentFee(ctx context.Context, fee money.Money) error
}

// Repositories bundles every repository bound to one connection or transaction.
type Repositories struct {
	Accounts     AccountRepository
	Transactions TransactionRepository
	Credits      CreditRepository
	Orders       InvestmentOrderRepository
	Stocks       StockRepository
	Users        UserRepository
	Settings     BankSettingsRepository
}

// UnitOfWork is the atomic-commit primitive. fn may run more than once when the store
// retries a serialization conflict, so it must load everything it mutates.
type UnitOfWork interface {
	Repositories() Repositories
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}
