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

type GrantCreditRequest struct {
	UserID             uuid.UUID
	AccountID          uuid.UUID
	AdvisorID          uuid.UUID
	Principal          decimal.Decimal
	AnnualInterestRate decimal.Decimal // fraction, 0.05 = 5%
	InsuranceRate      decimal.Decimal
	DurationMonths     int
}

// GrantedCredit is the credit together with its cost breakdown and the deposit that
// paid out the principal.
type GrantedCredit struct {
	Credit      *domain.Credit      `json:"credit"`
	Cost        domain.CreditCost   `json:"cost"`
	Transaction *domain.Transaction `json:"transaction"`
}

// GrantCredit creates a credit and pays the principal into the borrower's account in
// one unit of work.
func (s *LedgerService) GrantCredit(ctx context.Context, req GrantCreditRequest) (Result[GrantedCredit], error) {
	const op = "grant_credit"
	start := time.Now()
	repos := s.uow.Repositories()

	fail := func(err error) (Result[GrantedCredit], error) {
		if !domain.IsBusinessError(err) {
			observe(op, start, outcomeError)
			return Result[GrantedCredit]{}, err
		}
		observe(op, start, outcomeRejected)
		s.logger.Warn("credit rejected", "user_id", req.UserID, "advisor_id", req.AdvisorID, "reason", err)
		return rejected[GrantedCredit](err), nil
	}

	advisor, err := repos.Users.FindByID(ctx, req.AdvisorID)
	if err != nil {
		return fail(err)
	}
	if !advisor.CanGrantCredit() || advisor.ID == req.UserID {
		return fail(domain.ErrAdvisorNotAuthorized)
	}
	if _, err := repos.Users.FindByID(ctx, req.UserID); err != nil {
		return fail(err)
	}
	acc, err := findAccount(ctx, repos.Accounts, req.AccountID, req.UserID)
	if err != nil {
		return fail(err)
	}
	if !acc.IsActive() {
		return fail(domain.ErrAccountInactive)
	}
	principal, err := money.New(req.Principal, acc.Currency())
	if err != nil {
		return fail(err)
	}
	terms := domain.CreditTerms{
		Principal:          principal,
		AnnualInterestRate: req.AnnualInterestRate,
		InsuranceRate:      req.InsuranceRate,
		DurationMonths:     req.DurationMonths,
	}
	if err := terms.Validate(); err != nil {
		return fail(err)
	}

	var granted GrantedCredit
	err = s.uow.WithinTx(ctx, func(ctx context.Context, r Repositories) error {
		locked, err := r.Accounts.FindByID(ctx, req.AccountID)
		if err != nil {
			return err
		}
		credit, cost, err := domain.NewCredit(domain.NewCreditParams{
			UserID:    req.UserID,
			AccountID: req.AccountID,
			AdvisorID: req.AdvisorID,
			Terms:     terms,
		})
		if err != nil {
			return err
		}
		if err := locked.Credit(principal); err != nil {
			return err
		}
		tx, err := domain.NewTransaction(domain.NewTransactionParams{
			Type:        domain.TxDeposit,
			ToAccountID: idRef(req.AccountID),
			Amount:      principal,
			Description: "Credit disbursement " + credit.ID().String(),
		})
		if err != nil {
			return err
		}
		if err := tx.Complete(); err != nil {
			return err
		}
		if err := r.Credits.Save(ctx, credit); err != nil {
			return fmt.Errorf("save credit: %w", err)
		}
		if err := r.Accounts.Save(ctx, locked); err != nil {
			return fmt.Errorf("save account: %w", err)
		}
		if err := r.Transactions.Save(ctx, tx); err != nil {
			return fmt.Errorf("save disbursement: %w", err)
		}
		granted = GrantedCredit{Credit: credit, Cost: cost, Transaction: tx}
		return nil
	})
	if err != nil {
		if !domain.IsBusinessError(err) {
			s.logger.Error("grant credit failed", "account_id", req.AccountID, "error", err)
		}
		return fail(err)
	}

	observe(op, start, outcomeSuccess)
	s.logger.Info("credit granted",
		"credit_id", granted.Credit.ID(),
		"account_id", req.AccountID,
		"advisor_id", req.AdvisorID,
		"principal", principal.String(),
		"monthly_payment", granted.Cost.MonthlyPayment.String(),
	)
	return succeeded(granted), nil
}

// ProcessMonthlyPayments debits the instalment of every active credit not yet paid in
// the calendar month of asOf. Each credit settles in its own unit of work.
func (s *LedgerService) ProcessMonthlyPayments(ctx context.Context, asOf time.Time) (BatchResult, error) {
	const batch = "payments"
	if asOf.IsZero() {
		asOf = s.nowFn()
	}

	credits, err := s.uow.Repositories().Credits.FindActiveCredits(ctx)
	if err != nil {
		return BatchResult{}, fmt.Errorf("list active credits: %w", err)
	}

	var res BatchResult
	for _, c := range credits {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if !c.DueFor(asOf) {
			res.Skipped++
			continue
		}

		err := s.uow.WithinTx(ctx, func(ctx context.Context, r Repositories) error {
			credit, err := r.Credits.FindByID(ctx, c.ID())
			if err != nil {
				return err
			}
			if !credit.DueFor(asOf) {
				return errNothingDue
			}
			acc, err := r.Accounts.FindByID(ctx, credit.AccountID())
			if err != nil {
				return err
			}
			next, err := credit.NextInstalment()
			if err != nil {
				return err
			}
			if !acc.HasEnoughBalance(next.Amount) {
				return fmt.Errorf("%w: instalment %s, balance %s", domain.ErrInsufficientBalance, next.Amount, acc.Balance())
			}

			inst, err := credit.RecordPayment(asOf)
			if err != nil {
				return err
			}
			if err := acc.Debit(inst.Amount); err != nil {
				return err
			}
			tx, err := domain.NewTransaction(domain.NewTransactionParams{
				Type:          domain.TxWithdrawal,
				FromAccountID: idRef(acc.ID()),
				Amount:        inst.Amount,
				Description:   fmt.Sprintf("Credit %s instalment %d/%d", credit.ID(), credit.PaymentsMade(), credit.DurationMonths()),
			})
			if err != nil {
				return err
			}
			if err := tx.Complete(); err != nil {
				return err
			}
			if err := r.Credits.Save(ctx, credit); err != nil {
				return fmt.Errorf("save credit: %w", err)
			}
			if err := r.Accounts.Save(ctx, acc); err != nil {
				return fmt.Errorf("save account: %w", err)
			}
			if err := r.Transactions.Save(ctx, tx); err != nil {
				return fmt.Errorf("save instalment: %w", err)
			}
			return nil
		})
		switch {
		case err == nil:
			res.Processed++
		case errors.Is(err, errNothingDue):
			res.Skipped++
		default:
			res.fail(c.ID(), err)
			s.logger.Warn("monthly payment failed", "credit_id", c.ID(), "account_id", c.AccountID(), "error", err)
		}
	}

	observeBatch(batch, res)
	s.logger.Info("payments batch finished",
		"month", asOf.Format("2006-01"),
		"processed", res.Processed,
		"skipped", res.Skipped,
		"failed", res.Failed,
	)
	return res, nil
}
