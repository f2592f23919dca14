package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/punchamoorthee/bankcore/internal/domain"
	"github.com/punchamoorthee/bankcore/internal/money"
)

// CashRequest describes a deposit into or a withdrawal from one account.
type CashRequest struct {
	UserID      uuid.UUID
	AccountID   uuid.UUID
	Amount      decimal.Decimal
	Currency    money.Currency // defaults to the account currency
	Description string
}

// DepositMoney credits an account from outside the bank.
func (s *LedgerService) DepositMoney(ctx context.Context, req CashRequest) (Result[*domain.Transaction], error) {
	return s.moveCash(ctx, "deposit", domain.TxDeposit, req, func(acc *domain.Account, amount money.Money) error {
		return acc.Credit(amount)
	})
}

// WithdrawMoney debits an account towards outside the bank.
func (s *LedgerService) WithdrawMoney(ctx context.Context, req CashRequest) (Result[*domain.Transaction], error) {
	return s.moveCash(ctx, "withdraw", domain.TxWithdrawal, req, func(acc *domain.Account, amount money.Money) error {
		if !acc.IsActive() {
			return domain.ErrAccountInactive
		}
		if !acc.HasEnoughBalance(amount) {
			return domain.ErrInsufficientBalance
		}
		return acc.Debit(amount)
	})
}

// moveCash records a pending single-sided transaction, then applies mutate to the
// locked account. A rule violation at that point leaves the transaction failed.
func (s *LedgerService) moveCash(
	ctx context.Context,
	op string,
	txType domain.TransactionType,
	req CashRequest,
	mutate func(*domain.Account, money.Money) error,
) (Result[*domain.Transaction], error) {
	start := time.Now()
	repos := s.uow.Repositories()

	acc, err := findAccount(ctx, repos.Accounts, req.AccountID, req.UserID)
	if err != nil {
		return s.cashFailure(op, start, req, err)
	}
	amount, err := amountIn(req.Amount, req.Currency, acc)
	if err != nil {
		return s.cashFailure(op, start, req, err)
	}

	params := domain.NewTransactionParams{Type: txType, Amount: amount, Description: req.Description}
	if txType == domain.TxDeposit {
		params.ToAccountID = idRef(req.AccountID)
	} else {
		params.FromAccountID = idRef(req.AccountID)
	}
	tx, err := domain.NewTransaction(params)
	if err != nil {
		return s.cashFailure(op, start, req, err)
	}
	if err := repos.Transactions.Save(ctx, tx); err != nil {
		observe(op, start, outcomeError)
		return Result[*domain.Transaction]{}, fmt.Errorf("save pending %s: %w", txType, err)
	}

	var done *domain.Transaction
	err = s.uow.WithinTx(ctx, func(ctx context.Context, r Repositories) error {
		locked, err := r.Accounts.FindByID(ctx, req.AccountID)
		if err != nil {
			return err
		}
		if err := mutate(locked, amount); err != nil {
			return err
		}
		completed, err := complete(tx)
		if err != nil {
			return err
		}
		if err := r.Accounts.Save(ctx, locked); err != nil {
			return fmt.Errorf("save account: %w", err)
		}
		if err := r.Transactions.Save(ctx, completed); err != nil {
			return fmt.Errorf("save completed %s: %w", txType, err)
		}
		done = completed
		return nil
	})
	if err != nil {
		if !domain.IsBusinessError(err) {
			observe(op, start, outcomeError)
			s.logger.Error(op+" left pending", "transaction_id", tx.ID(), "error", err)
			return Result[*domain.Transaction]{}, err
		}
		failed, ferr := s.failTransaction(ctx, tx, err)
		if ferr != nil {
			observe(op, start, outcomeError)
			return Result[*domain.Transaction]{}, ferr
		}
		observe(op, start, outcomeRejected)
		s.logger.Warn(op+" rejected", "transaction_id", tx.ID(), "account_id", req.AccountID, "reason", err)
		return rejectedWith(failed, err), nil
	}

	observe(op, start, outcomeSuccess)
	s.logger.Info(op+" completed", "transaction_id", done.ID(), "account_id", req.AccountID, "amount", amount.String())
	return succeeded(done), nil
}

func (s *LedgerService) cashFailure(op string, start time.Time, req CashRequest, err error) (Result[*domain.Transaction], error) {
	if !domain.IsBusinessError(err) {
		observe(op, start, outcomeError)
		return Result[*domain.Transaction]{}, err
	}
	observe(op, start, outcomeRejected)
	s.logger.Warn(op+" rejected", "account_id", req.AccountID, "reason", err)
	return rejected[*domain.Transaction](err), nil
}
