package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/punchamoorthee/bankcore/internal/domain"
	"github.com/punchamoorthee/bankcore/internal/money"
)

const maxIBANAttempts = 5

var errIBANExhausted = errors.New("could not generate a unique iban")

type OpenAccountRequest struct {
	UserID       uuid.UUID
	Name         string
	Type         domain.AccountType
	Currency     money.Currency
	InterestRate *decimal.Decimal // savings only, percent per year
}

// OpenAccount creates an empty active account under a freshly generated IBAN.
func (s *LedgerService) OpenAccount(ctx context.Context, req OpenAccountRequest) (Result[*domain.Account], error) {
	const op = "open_account"
	start := time.Now()
	repos := s.uow.Repositories()

	fail := func(err error) (Result[*domain.Account], error) {
		if !domain.IsBusinessError(err) {
			observe(op, start, outcomeError)
			return Result[*domain.Account]{}, err
		}
		observe(op, start, outcomeRejected)
		s.logger.Warn("open account rejected", "user_id", req.UserID, "reason", err)
		return rejected[*domain.Account](err), nil
	}

	if _, err := repos.Users.FindByID(ctx, req.UserID); err != nil {
		return fail(err)
	}

	var iban string
	for attempt := 0; attempt < maxIBANAttempts && iban == ""; attempt++ {
		candidate, err := domain.GenerateIBAN(s.ibanCountry, s.bankCode)
		if err != nil {
			return fail(fmt.Errorf("generate iban: %w", err))
		}
		taken, err := repos.Accounts.IBANExists(ctx, candidate)
		if err != nil {
			return fail(fmt.Errorf("check iban: %w", err))
		}
		if !taken {
			iban = candidate
		}
	}
	if iban == "" {
		return fail(errIBANExhausted)
	}

	acc, err := domain.NewAccount(domain.NewAccountParams{
		UserID:       req.UserID,
		IBAN:         iban,
		Name:         req.Name,
		Type:         req.Type,
		Currency:     req.Currency,
		InterestRate: req.InterestRate,
	})
	if err != nil {
		return fail(err)
	}
	if err := repos.Accounts.Save(ctx, acc); err != nil {
		return fail(fmt.Errorf("save account: %w", err))
	}

	observe(op, start, outcomeSuccess)
	s.logger.Info("account opened", "account_id", acc.ID(), "user_id", req.UserID, "type", acc.Type())
	return succeeded(acc), nil
}

// CloseAccount deactivates and removes an empty account. Its transactions stay on
// record.
func (s *LedgerService) CloseAccount(ctx context.Context, userID, accountID uuid.UUID) (Result[*domain.Account], error) {
	const op = "close_account"
	start := time.Now()

	var closed *domain.Account
	err := s.uow.WithinTx(ctx, func(ctx context.Context, r Repositories) error {
		acc, err := findAccount(ctx, r.Accounts, accountID, userID)
		if err != nil {
			return err
		}
		if err := acc.Deactivate(); err != nil {
			return err
		}
		if err := acc.EnsureDeletable(); err != nil {
			return err
		}
		if err := r.Accounts.Delete(ctx, accountID); err != nil {
			return fmt.Errorf("delete account: %w", err)
		}
		closed = acc
		return nil
	})
	if err != nil {
		if !domain.IsBusinessError(err) {
			observe(op, start, outcomeError)
			return Result[*domain.Account]{}, err
		}
		observe(op, start, outcomeRejected)
		s.logger.Warn("close account rejected", "account_id", accountID, "reason", err)
		return rejected[*domain.Account](err), nil
	}

	observe(op, start, outcomeSuccess)
	s.logger.Info("account closed", "account_id", accountID)
	return succeeded(closed), nil
}

// GetAccount returns an account of userID; uuid.Nil skips the ownership check.
func (s *LedgerService) GetAccount(ctx context.Context, userID, accountID uuid.UUID) (*domain.Account, error) {
	return findAccount(ctx, s.uow.Repositories().Accounts, accountID, userID)
}

func (s *LedgerService) ListAccounts(ctx context.Context, userID uuid.UUID, accountType *domain.AccountType) ([]*domain.Account, error) {
	return s.uow.Repositories().Accounts.FindByUserID(ctx, userID, accountType)
}

// AccountHistory lists every transaction touching the account, newest first.
func (s *LedgerService) AccountHistory(ctx context.Context, userID, accountID uuid.UUID) ([]*domain.Transaction, error) {
	repos := s.uow.Repositories()
	if _, err := findAccount(ctx, repos.Accounts, accountID, userID); err != nil {
		return nil, err
	}
	return repos.Transactions.FindByAccountID(ctx, accountID)
}

// GetTransaction returns a transaction if one of its accounts belongs to userID.
func (s *LedgerService) GetTransaction(ctx context.Context, userID, txID uuid.UUID) (*domain.Transaction, error) {
	repos := s.uow.Repositories()
	tx, err := repos.Transactions.FindByID(ctx, txID)
	if err != nil {
		return nil, err
	}
	if userID == uuid.Nil {
		return tx, nil
	}
	for _, ref := range []*uuid.UUID{tx.FromAccountID(), tx.ToAccountID()} {
		if ref == nil {
			continue
		}
		acc, err := repos.Accounts.FindByID(ctx, *ref)
		if errors.Is(err, domain.ErrAccountNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if acc.UserID() == userID {
			return tx, nil
		}
	}
	return nil, domain.ErrTransactionNotFound
}

// ListPendingTransactions feeds reconciliation: anything still pending was interrupted
// between its two commits.
func (s *LedgerService) ListPendingTransactions(ctx context.Context) ([]*domain.Transaction, error) {
	return s.uow.Repositories().Transactions.FindByStatus(ctx, domain.TxPending)
}

func (s *LedgerService) GetCredit(ctx context.Context, userID, creditID uuid.UUID) (*domain.Credit, error) {
	c, err := s.uow.Repositories().Credits.FindByID(ctx, creditID)
	if err != nil {
		return nil, err
	}
	if userID != uuid.Nil && c.UserID() != userID {
		return nil, domain.ErrCreditNotFound
	}
	return c, nil
}

func (s *LedgerService) ListCredits(ctx context.Context, userID uuid.UUID) ([]*domain.Credit, error) {
	return s.uow.Repositories().Credits.FindByUserID(ctx, userID)
}

// Holdings is the net quantity of stockID held by userID across executed orders.
func (s *LedgerService) Holdings(ctx context.Context, userID, stockID uuid.UUID) (int64, error) {
	return s.uow.Repositories().Orders.CountNetHoldingsByStockID(ctx, userID, stockID)
}
