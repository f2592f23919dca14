package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/punchamoorthee/bankcore/internal/domain"
)

// InterestPolicy is the bank-wide savings rate (percent per year) and the accrual date.
type InterestPolicy struct {
	RatePercent decimal.Decimal
	On          time.Time
}

// ApplyDailyInterest credits one day of interest to every active savings account. Each
// account is settled in its own unit of work; one failure never stops the batch.
//
// An account with its own positive rate earns that rate; the others earn the policy rate.
func (s *LedgerService) ApplyDailyInterest(ctx context.Context, policy InterestPolicy) (BatchResult, error) {
	const batch = "interest"
	on := policy.On
	if on.IsZero() {
		on = s.nowFn()
	}

	accounts, err := s.uow.Repositories().Accounts.FindAllSavingsAccounts(ctx)
	if err != nil {
		return BatchResult{}, fmt.Errorf("list savings accounts: %w", err)
	}

	var res BatchResult
	for _, acc := range accounts {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if !acc.IsActive() {
			res.Skipped++
			continue
		}

		err := s.uow.WithinTx(ctx, func(ctx context.Context, r Repositories) error {
			locked, err := r.Accounts.FindByID(ctx, acc.ID())
			if err != nil {
				return err
			}
			rate := policy.RatePercent
			if own := locked.InterestRate(); own != nil && own.IsPositive() {
				rate = *own
			}
			interest, err := locked.AccrueInterest(rate, on)
			if err != nil {
				return err
			}
			if interest.IsZero() {
				return errNothingDue
			}

			tx, err := domain.NewTransaction(domain.NewTransactionParams{
				Type:        domain.TxInterest,
				ToAccountID: idRef(locked.ID()),
				Amount:      interest,
				Description: "Daily interest " + on.Format(time.DateOnly),
			})
			if err != nil {
				return err
			}
			if err := tx.Complete(); err != nil {
				return err
			}
			if err := r.Accounts.Save(ctx, locked); err != nil {
				return fmt.Errorf("save account: %w", err)
			}
			if err := r.Transactions.Save(ctx, tx); err != nil {
				return fmt.Errorf("save interest transaction: %w", err)
			}
			return nil
		})
		switch {
		case err == nil:
			res.Processed++
		case errors.Is(err, errNothingDue),
			errors.Is(err, domain.ErrInterestAlreadyDue),
			errors.Is(err, domain.ErrAccountInactive):
			res.Skipped++
		default:
			res.fail(acc.ID(), err)
			s.logger.Warn("interest accrual failed", "account_id", acc.ID(), "error", err)
		}
	}

	observeBatch(batch, res)
	s.logger.Info("interest batch finished",
		"date", on.Format(time.DateOnly),
		"processed", res.Processed,
		"skipped", res.Skipped,
		"failed", res.Failed,
	)
	return res, nil
}
