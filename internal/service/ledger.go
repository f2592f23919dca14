package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/punchamoorthee/bankcore/internal/domain"
	"github.com/punchamoorthee/bankcore/internal/money"
)

// LedgerService composes account, transaction, credit and order mutations into atomic
// financial operations.
type LedgerService struct {
	uow         UnitOfWork
	logger      *slog.Logger
	nowFn       func() time.Time
	ibanCountry string
	bankCode    string
}

type Option func(*LedgerService)

// WithClock overrides the time source used for batch dates.
func WithClock(fn func() time.Time) Option {
	return func(s *LedgerService) { s.nowFn = fn }
}

// WithIBANPrefix sets the country and bank code of generated IBANs.
func WithIBANPrefix(country, bankCode string) Option {
	return func(s *LedgerService) {
		s.ibanCountry = country
		s.bankCode = bankCode
	}
}

func NewLedgerService(uow UnitOfWork, logger *slog.Logger, opts ...Option) *LedgerService {
	if logger == nil {
		logger = slog.Default()
	}
	s := &LedgerService{
		uow:         uow,
		logger:      logger,
		nowFn:       func() time.Time { return time.Now().UTC() },
		ibanCountry: "FR",
		bankCode:    "30004",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Settings are the bank-wide values orchestrators receive from their caller.
type Settings struct {
	SavingsRate   decimal.Decimal
	InvestmentFee money.Money
}

// LoadSettings reads the current settings for a caller about to invoke an orchestrator.
func LoadSettings(ctx context.Context, repo BankSettingsRepository) (Settings, error) {
	rate, err := repo.GetSavingsRate(ctx)
	if err != nil {
		return Settings{}, fmt.Errorf("load savings rate: %w", err)
	}
	fee, err := repo.GetInvestmentFee(ctx)
	if err != nil {
		return Settings{}, fmt.Errorf("load investment fee: %w", err)
	}
	return Settings{SavingsRate: rate, InvestmentFee: fee}, nil
}

// lockOrder returns ids in ascending byte order so paired row locks are always taken
// in the same sequence.
func lockOrder(a, b uuid.UUID) (uuid.UUID, uuid.UUID) {
	if bytes.Compare(a[:], b[:]) > 0 {
		return b, a
	}
	return a, b
}

func idRef(id uuid.UUID) *uuid.UUID { return &id }

// transition applies a status change to a copy of tx so a retried unit of work starts
// again from the persisted state.
func transition(tx *domain.Transaction, apply func(*domain.Transaction) error) (*domain.Transaction, error) {
	next, err := domain.RestoreTransaction(tx.Snapshot())
	if err != nil {
		return nil, err
	}
	if err := apply(next); err != nil {
		return nil, err
	}
	return next, nil
}

func complete(tx *domain.Transaction) (*domain.Transaction, error) {
	return transition(tx, (*domain.Transaction).Complete)
}

// failTransaction persists tx as failed so rejected attempts stay auditable.
func (s *LedgerService) failTransaction(ctx context.Context, tx *domain.Transaction, cause error) (*domain.Transaction, error) {
	failed, err := transition(tx, func(t *domain.Transaction) error { return t.Fail(cause.Error()) })
	if err != nil {
		return nil, err
	}
	if err := s.uow.Repositories().Transactions.Save(ctx, failed); err != nil {
		return nil, fmt.Errorf("save failed transaction %s: %w", tx.ID(), err)
	}
	return failed, nil
}

// findAccount loads an account and checks ownership when userID is set.
func findAccount(ctx context.Context, repo AccountRepository, id, userID uuid.UUID) (*domain.Account, error) {
	acc, err := repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if userID != uuid.Nil && acc.UserID() != userID {
		return nil, domain.ErrNotAccountOwner
	}
	return acc, nil
}

// amountIn builds a positive amount, defaulting the currency to the account's.
func amountIn(value decimal.Decimal, currency money.Currency, acc *domain.Account) (money.Money, error) {
	if currency == "" {
		currency = acc.Currency()
	}
	m, err := money.New(value, currency)
	if err != nil {
		return money.Money{}, err
	}
	if !m.IsPositive() {
		return money.Money{}, domain.ErrInvalidAmount
	}
	return m, nil
}

// errNothingDue aborts a batch unit of work that turned out to have no effect.
var errNothingDue = errors.New("nothing due")
