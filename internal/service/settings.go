package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/punchamoorthee/bankcore/internal/domain"
	"github.com/punchamoorthee/bankcore/internal/money"
)

func (s *LedgerService) CurrentSettings(ctx context.Context) (Settings, error) {
	return LoadSettings(ctx, s.uow.Repositories().Settings)
}

// UpdateSettings changes the savings rate and/or the investment fee atomically. Nil
// values are left as they are.
func (s *LedgerService) UpdateSettings(ctx context.Context, savingsRate *decimal.Decimal, fee *money.Money) (Settings, error) {
	if savingsRate != nil && savingsRate.IsNegative() {
		return Settings{}, fmt.Errorf("%w: savings rate must not be negative", domain.ErrInvalidAmount)
	}
	if fee != nil && fee.IsNegative() {
		return Settings{}, fmt.Errorf("%w: investment fee must not be negative", domain.ErrInvalidAmount)
	}

	var updated Settings
	err := s.uow.WithinTx(ctx, func(ctx context.Context, r Repositories) error {
		if savingsRate != nil {
			if err := r.Settings.SetSavingsRate(ctx, *savingsRate); err != nil {
				return fmt.Errorf("set savings rate: %w", err)
			}
		}
		if fee != nil {
			if err := r.Settings.SetInvestmentFee(ctx, *fee); err != nil {
				return fmt.Errorf("set investment fee: %w", err)
			}
		}
		var err error
		updated, err = LoadSettings(ctx, r.Settings)
		return err
	})
	if err != nil {
		return Settings{}, err
	}
	s.logger.Info("bank settings updated", "savings_rate", updated.SavingsRate, "investment_fee", updated.InvestmentFee)
	return updated, nil
}

func (s *LedgerService) GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return s.uow.Repositories().Users.FindByID(ctx, id)
}
