package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/punchamoorthee/bankcore/internal/money"
)

type OrderSide string

const (
	OrderBuy  OrderSide = "buy"
	OrderSell OrderSide = "sell"
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderExecuted  OrderStatus = "executed"
	OrderCancelled OrderStatus = "cancelled"
)

// InvestmentOrder is a buy or sell against a priced stock. Fills are immediate against
// the bank acting as market maker; there is no resting book.
type InvestmentOrder struct {
	id            uuid.UUID
	userID        uuid.UUID
	accountID     uuid.UUID
	stockID       uuid.UUID
	transactionID uuid.UUID
	side          OrderSide
	quantity      int64
	pricePerShare money.Money
	totalAmount   money.Money
	fees          money.Money
	status        OrderStatus
	executedAt    *time.Time
	createdAt     time.Time
	updatedAt     time.Time
}

type NewOrderParams struct {
	UserID        uuid.UUID
	AccountID     uuid.UUID
	StockID       uuid.UUID
	TransactionID uuid.UUID
	Side          OrderSide
	Quantity      int64
	PricePerShare money.Money
	Fees          money.Money
}

// OrderTotal is price × quantity plus fees for a buy, minus fees for a sell.
func OrderTotal(side OrderSide, quantity int64, price, fees money.Money) (money.Money, error) {
	if quantity <= 0 {
		return money.Money{}, fmt.Errorf("%w: quantity must be positive", ErrInvalidOrder)
	}
	if !price.IsPositive() {
		return money.Money{}, fmt.Errorf("%w: price must be positive", ErrInvalidOrder)
	}
	if fees.IsNegative() {
		return money.Money{}, fmt.Errorf("%w: fees must not be negative", ErrInvalidOrder)
	}
	gross := price.MulInt(quantity)
	switch side {
	case OrderBuy:
		return gross.Add(fees)
	case OrderSell:
		net, err := gross.Sub(fees)
		if err != nil {
			return money.Money{}, err
		}
		if !net.IsPositive() {
			return money.Money{}, ErrFeeExceedsProceeds
		}
		return net, nil
	default:
		return money.Money{}, fmt.Errorf("%w: unknown side %q", ErrInvalidOrder, side)
	}
}

// NewInvestmentOrder builds a pending order with its total derived from price and fees.
func NewInvestmentOrder(p NewOrderParams) (*InvestmentOrder, error) {
	if p.UserID == uuid.Nil || p.AccountID == uuid.Nil || p.StockID == uuid.Nil {
		return nil, fmt.Errorf("%w: user, account and stock are required", ErrInvalidOrder)
	}
	total, err := OrderTotal(p.Side, p.Quantity, p.PricePerShare, p.Fees)
	if err != nil {
		return nil, err
	}
	ts := now()
	return &InvestmentOrder{
		id:            uuid.New(),
		userID:        p.UserID,
		accountID:     p.AccountID,
		stockID:       p.StockID,
		transactionID: p.TransactionID,
		side:          p.Side,
		quantity:      p.Quantity,
		pricePerShare: p.PricePerShare,
		totalAmount:   total,
		fees:          p.Fees,
		status:        OrderPending,
		createdAt:     ts,
		updatedAt:     ts,
	}, nil
}

type OrderSnapshot struct {
	ID            uuid.UUID   `json:"id"`
	UserID        uuid.UUID   `json:"user_id"`
	AccountID     uuid.UUID   `json:"account_id"`
	StockID       uuid.UUID   `json:"stock_id"`
	TransactionID uuid.UUID   `json:"transaction_id"`
	Side          OrderSide   `json:"order_type"`
	Quantity      int64       `json:"quantity"`
	PricePerShare money.Money `json:"price_per_share"`
	TotalAmount   money.Money `json:"total_amount"`
	Fees          money.Money `json:"fees"`
	Status        OrderStatus `json:"status"`
	ExecutedAt    *time.Time  `json:"executed_at,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// RestoreInvestmentOrder reconstitutes a stored order and checks the total again.
func RestoreInvestmentOrder(s OrderSnapshot) (*InvestmentOrder, error) {
	if s.ID == uuid.Nil {
		return nil, fmt.Errorf("%w: missing id", ErrInvalidOrder)
	}
	total, err := OrderTotal(s.Side, s.Quantity, s.PricePerShare, s.Fees)
	if err != nil {
		return nil, err
	}
	if !total.Equal(s.TotalAmount) {
		return nil, fmt.Errorf("%w: total %s does not match %s", ErrInvalidOrder, s.TotalAmount, total)
	}
	switch s.Status {
	case OrderPending, OrderExecuted, OrderCancelled:
	default:
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidOrder, s.Status)
	}
	return &InvestmentOrder{
		id:            s.ID,
		userID:        s.UserID,
		accountID:     s.AccountID,
		stockID:       s.StockID,
		transactionID: s.TransactionID,
		side:          s.Side,
		quantity:      s.Quantity,
		pricePerShare: s.PricePerShare,
		totalAmount:   s.TotalAmount,
		fees:          s.Fees,
		status:        s.Status,
		executedAt:    s.ExecutedAt,
		createdAt:     s.CreatedAt,
		updatedAt:     s.UpdatedAt,
	}, nil
}

func (o *InvestmentOrder) ID() uuid.UUID              { return o.id }
func (o *InvestmentOrder) UserID() uuid.UUID          { return o.userID }
func (o *InvestmentOrder) AccountID() uuid.UUID       { return o.accountID }
func (o *InvestmentOrder) StockID() uuid.UUID         { return o.stockID }
func (o *InvestmentOrder) TransactionID() uuid.UUID   { return o.transactionID }
func (o *InvestmentOrder) Side() OrderSide            { return o.side }
func (o *InvestmentOrder) Quantity() int64            { return o.quantity }
func (o *InvestmentOrder) PricePerShare() money.Money { return o.pricePerShare }
func (o *InvestmentOrder) TotalAmount() money.Money   { return o.totalAmount }
func (o *InvestmentOrder) Fees() money.Money          { return o.fees }
func (o *InvestmentOrder) Status() OrderStatus        { return o.status }
func (o *InvestmentOrder) ExecutedAt() *time.Time     { return o.executedAt }

func (o *InvestmentOrder) Snapshot() OrderSnapshot {
	return OrderSnapshot{
		ID:            o.id,
		UserID:        o.userID,
		AccountID:     o.accountID,
		StockID:       o.stockID,
		TransactionID: o.transactionID,
		Side:          o.side,
		Quantity:      o.quantity,
		PricePerShare: o.pricePerShare,
		TotalAmount:   o.totalAmount,
		Fees:          o.fees,
		Status:        o.status,
		ExecutedAt:    o.executedAt,
		CreatedAt:     o.createdAt,
		UpdatedAt:     o.updatedAt,
	}
}

func (o *InvestmentOrder) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.Snapshot())
}

func (o *InvestmentOrder) Execute() error {
	if o.status != OrderPending {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidOrderState, o.status, OrderExecuted)
	}
	ts := now()
	o.status = OrderExecuted
	o.executedAt = &ts
	o.updatedAt = ts
	return nil
}

func (o *InvestmentOrder) Cancel() error {
	if o.status != OrderPending {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidOrderState, o.status, OrderCancelled)
	}
	o.status = OrderCancelled
	o.updatedAt = now()
	return nil
}

// NetHoldings sums executed buys minus executed sells of stockID.
func NetHoldings(orders []*InvestmentOrder, stockID uuid.UUID) int64 {
	var held int64
	for _, o := range orders {
		if o.stockID != stockID || o.status != OrderExecuted {
			continue
		}
		switch o.side {
		case OrderBuy:
			held += o.quantity
		case OrderSell:
			held -= o.quantity
		}
	}
	return held
}
