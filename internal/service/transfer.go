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

type TransferRequest struct {
	UserID               uuid.UUID // when set, the source account must belong to this user
	SourceAccountID      uuid.UUID
	DestinationAccountID uuid.UUID
	Amount               decimal.Decimal
	Currency             money.Currency
	Description          string
}

// TransferMoney moves funds between two accounts of the bank.
//
// The pending transfer is committed on its own before any balance changes, so a crash
// between the two commits leaves a pending record for reconciliation. Both balances and
// the completed transfer are then written in one unit of work, with the account rows
// locked in id order.
func (s *LedgerService) TransferMoney(ctx context.Context, req TransferRequest) (Result[*domain.Transaction], error) {
	const op = "transfer"
	start := time.Now()

	// 1. Input validation
	if req.SourceAccountID == req.DestinationAccountID {
		observe(op, start, outcomeRejected)
		return rejected[*domain.Transaction](domain.ErrSameAccount), nil
	}

	// 2. Fail fast on the current account state
	repos := s.uow.Repositories()
	src, err := findAccount(ctx, repos.Accounts, req.SourceAccountID, req.UserID)
	if err != nil {
		return s.transferFailure(op, start, req, err)
	}
	dst, err := repos.Accounts.FindByID(ctx, req.DestinationAccountID)
	if err != nil {
		return s.transferFailure(op, start, req, err)
	}
	amount, err := amountIn(req.Amount, req.Currency, src)
	if err != nil {
		return s.transferFailure(op, start, req, err)
	}
	if err := checkTransfer(src, dst, amount); err != nil {
		return s.transferFailure(op, start, req, err)
	}

	tx, err := domain.NewTransaction(domain.NewTransactionParams{
		Type:          domain.TxTransfer,
		FromAccountID: idRef(req.SourceAccountID),
		ToAccountID:   idRef(req.DestinationAccountID),
		Amount:        amount,
		Description:   req.Description,
	})
	if err != nil {
		return s.transferFailure(op, start, req, err)
	}

	// 3. Record intent
	if err := repos.Transactions.Save(ctx, tx); err != nil {
		observe(op, start, outcomeError)
		return Result[*domain.Transaction]{}, fmt.Errorf("save pending transfer: %w", err)
	}

	// 4. Paired debit/credit under lock
	var done *domain.Transaction
	err = s.uow.WithinTx(ctx, func(ctx context.Context, r Repositories) error {
		firstID, secondID := lockOrder(req.SourceAccountID, req.DestinationAccountID)
		first, err := r.Accounts.FindByID(ctx, firstID)
		if err != nil {
			return err
		}
		second, err := r.Accounts.FindByID(ctx, secondID)
		if err != nil {
			return err
		}
		from, to := first, second
		if firstID != req.SourceAccountID {
			from, to = second, first
		}

		if err := checkTransfer(from, to, amount); err != nil {
			return err
		}
		if err := from.Debit(amount); err != nil {
			return err
		}
		if err := to.Credit(amount); err != nil {
			return err
		}

		completed, err := complete(tx)
		if err != nil {
			return err
		}
		if err := r.Accounts.Save(ctx, from); err != nil {
			return fmt.Errorf("save source account: %w", err)
		}
		if err := r.Accounts.Save(ctx, to); err != nil {
			return fmt.Errorf("save destination account: %w", err)
		}
		if err := r.Transactions.Save(ctx, completed); err != nil {
			return fmt.Errorf("save completed transfer: %w", err)
		}
		done = completed
		return nil
	})
	if err != nil {
		if !domain.IsBusinessError(err) {
			observe(op, start, outcomeError)
			s.logger.Error("transfer left pending", "transaction_id", tx.ID(), "error", err)
			return Result[*domain.Transaction]{}, err
		}
		failed, ferr := s.failTransaction(ctx, tx, err)
		if ferr != nil {
			observe(op, start, outcomeError)
			return Result[*domain.Transaction]{}, ferr
		}
		observe(op, start, outcomeRejected)
		s.logger.Warn("transfer rejected", "transaction_id", tx.ID(), "reason", err)
		return rejectedWith(failed, err), nil
	}

	observe(op, start, outcomeSuccess)
	s.logger.Info("transfer completed",
		"transaction_id", done.ID(),
		"from_account_id", req.SourceAccountID,
		"to_account_id", req.DestinationAccountID,
		"amount", amount.String(),
	)
	return succeeded(done), nil
}

func checkTransfer(from, to *domain.Account, amount money.Money) error {
	if !from.IsActive() || !to.IsActive() {
		return domain.ErrAccountInactive
	}
	if from.Currency() != to.Currency() || amount.Currency() != from.Currency() {
		return fmt.Errorf("%w: %s from %s to %s", money.ErrCurrencyMismatch, amount.Currency(), from.Currency(), to.Currency())
	}
	if !from.HasEnoughBalance(amount) {
		return domain.ErrInsufficientBalance
	}
	return nil
}

// transferFailure handles errors raised before the pending record exists.
func (s *LedgerService) transferFailure(op string, start time.Time, req TransferRequest, err error) (Result[*domain.Transaction], error) {
	if !domain.IsBusinessError(err) {
		observe(op, start, outcomeError)
		return Result[*domain.Transaction]{}, err
	}
	observe(op, start, outcomeRejected)
	s.logger.Warn("transfer rejected",
		"from_account_id", req.SourceAccountID,
		"to_account_id", req.DestinationAccountID,
		"reason", err,
	)
	return rejected[*domain.Transaction](err), nil
}
