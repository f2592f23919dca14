package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/punchamoorthee/bankcore/internal/domain"
	"github.com/punchamoorthee/bankcore/internal/money"
)

type PlaceOrderRequest struct {
	UserID    uuid.UUID
	AccountID uuid.UUID
	StockID   uuid.UUID
	Side      domain.OrderSide
	Quantity  int64
}

// PlaceInvestmentOrder fills a buy or sell at the current stock price. The bank is the
// counterparty, so an accepted order executes straight away.
//
// Step one reserves funds for a buy and records the pending order and transaction.
// Step two executes the order, pays out sale proceeds and completes the transaction.
// A rejection in step one persists nothing; a rejection in step two cancels the order
// and refunds any reservation.
func (s *LedgerService) PlaceInvestmentOrder(ctx context.Context, req PlaceOrderRequest, fee money.Money) (Result[*domain.InvestmentOrder], error) {
	op := "order_" + string(req.Side)
	start := time.Now()

	if req.Side != domain.OrderBuy && req.Side != domain.OrderSell {
		observe(op, start, outcomeRejected)
		return rejected[*domain.InvestmentOrder](fmt.Errorf("%w: unknown side %q", domain.ErrInvalidOrder, req.Side)), nil
	}
	if req.Quantity <= 0 {
		observe(op, start, outcomeRejected)
		return rejected[*domain.InvestmentOrder](fmt.Errorf("%w: quantity must be positive", domain.ErrInvalidOrder)), nil
	}

	// 1. Reserve
	var order *domain.InvestmentOrder
	err := s.uow.WithinTx(ctx, func(ctx context.Context, r Repositories) error {
		acc, err := findAccount(ctx, r.Accounts, req.AccountID, req.UserID)
		if err != nil {
			return err
		}
		if !acc.IsActive() {
			return domain.ErrAccountInactive
		}
		if acc.Type() != domain.AccountInvestment {
			return domain.ErrWrongAccountType
		}
		stock, err := r.Stocks.FindByID(ctx, req.StockID)
		if err != nil {
			return err
		}
		if !stock.Tradeable {
			return domain.ErrStockNotTradeable
		}
		total, err := domain.OrderTotal(req.Side, req.Quantity, stock.Price, fee)
		if err != nil {
			return err
		}
		if total.Currency() != acc.Currency() {
			return fmt.Errorf("%w: order in %s, account in %s", money.ErrCurrencyMismatch, total.Currency(), acc.Currency())
		}

		params := domain.NewTransactionParams{Amount: total}
		switch req.Side {
		case domain.OrderBuy:
			if !acc.HasEnoughBalance(total) {
				return domain.ErrInsufficientBalance
			}
			if err := acc.Debit(total); err != nil {
				return err
			}
			if err := r.Accounts.Save(ctx, acc); err != nil {
				return fmt.Errorf("save account: %w", err)
			}
			params.Type = domain.TxInvestmentBuy
			params.FromAccountID = idRef(acc.ID())
			params.Description = fmt.Sprintf("Buy %d %s", req.Quantity, stock.Symbol)
		case domain.OrderSell:
			if err := r.Orders.LockHoldings(ctx, req.UserID, req.StockID); err != nil {
				return fmt.Errorf("lock holdings: %w", err)
			}
			held, err := r.Orders.CountNetHoldingsByStockID(ctx, req.UserID, req.StockID)
			if err != nil {
				return fmt.Errorf("count holdings: %w", err)
			}
			if held < req.Quantity {
				return fmt.Errorf("%w: holding %d, selling %d", domain.ErrInsufficientHoldings, held, req.Quantity)
			}
			params.Type = domain.TxInvestmentSell
			params.ToAccountID = idRef(acc.ID())
			params.Description = fmt.Sprintf("Sell %d %s", req.Quantity, stock.Symbol)
		}

		tx, err := domain.NewTransaction(params)
		if err != nil {
			return err
		}
		o, err := domain.NewInvestmentOrder(domain.NewOrderParams{
			UserID:        req.UserID,
			AccountID:     req.AccountID,
			StockID:       req.StockID,
			TransactionID: tx.ID(),
			Side:          req.Side,
			Quantity:      req.Quantity,
			PricePerShare: stock.Price,
			Fees:          fee,
		})
		if err != nil {
			return err
		}
		if err := r.Transactions.Save(ctx, tx); err != nil {
			return fmt.Errorf("save pending order transaction: %w", err)
		}
		if err := r.Orders.Save(ctx, o); err != nil {
			return fmt.Errorf("save pending order: %w", err)
		}
		order = o
		return nil
	})
	if err != nil {
		if !domain.IsBusinessError(err) {
			observe(op, start, outcomeError)
			return Result[*domain.InvestmentOrder]{}, err
		}
		observe(op, start, outcomeRejected)
		s.logger.Warn("order rejected", "account_id", req.AccountID, "stock_id", req.StockID, "side", req.Side, "reason", err)
		return rejected[*domain.InvestmentOrder](err), nil
	}

	// 2. Execute
	var executed *domain.InvestmentOrder
	err = s.uow.WithinTx(ctx, func(ctx context.Context, r Repositories) error {
		o, err := r.Orders.FindByID(ctx, order.ID())
		if err != nil {
			return err
		}
		acc, err := r.Accounts.FindByID(ctx, o.AccountID())
		if err != nil {
			return err
		}
		tx, err := r.Transactions.FindByID(ctx, o.TransactionID())
		if err != nil {
			return err
		}
		if o.Side() == domain.OrderSell {
			if err := r.Orders.LockHoldings(ctx, o.UserID(), o.StockID()); err != nil {
				return fmt.Errorf("lock holdings: %w", err)
			}
			held, err := r.Orders.CountNetHoldingsByStockID(ctx, o.UserID(), o.StockID())
			if err != nil {
				return fmt.Errorf("count holdings: %w", err)
			}
			if held < o.Quantity() {
				return fmt.Errorf("%w: holding %d, selling %d", domain.ErrInsufficientHoldings, held, o.Quantity())
			}
			if err := acc.Credit(o.TotalAmount()); err != nil {
				return err
			}
			if err := r.Accounts.Save(ctx, acc); err != nil {
				return fmt.Errorf("save account: %w", err)
			}
		}
		if err := o.Execute(); err != nil {
			return err
		}
		if err := tx.Complete(); err != nil {
			return err
		}
		if err := r.Orders.Save(ctx, o); err != nil {
			return fmt.Errorf("save executed order: %w", err)
		}
		if err := r.Transactions.Save(ctx, tx); err != nil {
			return fmt.Errorf("save order transaction: %w", err)
		}
		executed = o
		return nil
	})
	if err != nil {
		if !domain.IsBusinessError(err) {
			observe(op, start, outcomeError)
			s.logger.Error("order left pending", "order_id", order.ID(), "error", err)
			return Result[*domain.InvestmentOrder]{}, err
		}
		var cancelled *domain.InvestmentOrder
		cerr := s.uow.WithinTx(ctx, func(ctx context.Context, r Repositories) error {
			o, err := r.Orders.FindByID(ctx, order.ID())
			if err != nil {
				return err
			}
			if err := cancelOrder(ctx, r, o); err != nil {
				return err
			}
			cancelled = o
			return nil
		})
		if cerr != nil {
			observe(op, start, outcomeError)
			s.logger.Error("order left pending after failed execution", "order_id", order.ID(), "error", cerr)
			return Result[*domain.InvestmentOrder]{}, fmt.Errorf("cancel order %s after %v: %w", order.ID(), err, cerr)
		}
		observe(op, start, outcomeRejected)
		s.logger.Warn("order cancelled at execution", "order_id", order.ID(), "reason", err)
		return rejectedWith(cancelled, err), nil
	}

	observe(op, start, outcomeSuccess)
	s.logger.Info("order executed",
		"order_id", executed.ID(),
		"account_id", executed.AccountID(),
		"stock_id", executed.StockID(),
		"side", executed.Side(),
		"quantity", executed.Quantity(),
		"total", executed.TotalAmount().String(),
	)
	return succeeded(executed), nil
}

// CancelInvestmentOrder cancels a pending order of userID, refunding a buy reservation.
func (s *LedgerService) CancelInvestmentOrder(ctx context.Context, userID, orderID uuid.UUID) (Result[*domain.InvestmentOrder], error) {
	const op = "order_cancel"
	start := time.Now()

	var cancelled *domain.InvestmentOrder
	err := s.uow.WithinTx(ctx, func(ctx context.Context, r Repositories) error {
		o, err := r.Orders.FindByID(ctx, orderID)
		if err != nil {
			return err
		}
		if o.UserID() != userID {
			return domain.ErrNotOrderOwner
		}
		if err := cancelOrder(ctx, r, o); err != nil {
			return err
		}
		cancelled = o
		return nil
	})
	if err != nil {
		if !domain.IsBusinessError(err) {
			observe(op, start, outcomeError)
			return Result[*domain.InvestmentOrder]{}, err
		}
		observe(op, start, outcomeRejected)
		s.logger.Warn("order cancel rejected", "order_id", orderID, "reason", err)
		return rejected[*domain.InvestmentOrder](err), nil
	}

	observe(op, start, outcomeSuccess)
	s.logger.Info("order cancelled", "order_id", orderID, "side", cancelled.Side())
	return succeeded(cancelled), nil
}

// cancelOrder moves o and its transaction to cancelled and refunds a buy.
func cancelOrder(ctx context.Context, r Repositories, o *domain.InvestmentOrder) error {
	if err := o.Cancel(); err != nil {
		return err
	}
	if o.Side() == domain.OrderBuy {
		acc, err := r.Accounts.FindByID(ctx, o.AccountID())
		if err != nil {
			return err
		}
		if err := acc.Credit(o.TotalAmount()); err != nil {
			return err
		}
		if err := r.Accounts.Save(ctx, acc); err != nil {
			return fmt.Errorf("save account: %w", err)
		}
	}
	if o.TransactionID() != uuid.Nil {
		tx, err := r.Transactions.FindByID(ctx, o.TransactionID())
		if err != nil {
			return err
		}
		if !tx.IsTerminal() {
			if err := tx.Cancel(); err != nil {
				return err
			}
			if err := r.Transactions.Save(ctx, tx); err != nil {
				return fmt.Errorf("save cancelled transaction: %w", err)
			}
		}
	}
	if err := r.Orders.Save(ctx, o); err != nil {
		return fmt.Errorf("save cancelled order: %w", err)
	}
	return nil
}
