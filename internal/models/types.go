package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/punchamoorthee/bankcore/internal/domain"
	"github.com/punchamoorthee/bankcore/internal/money"
)

// Amounts travel as decimal strings ("12.34"); a bare JSON number is accepted on input.

type CreateAccountRequest struct {
	Name         string             `json:"name"`
	Type         domain.AccountType `json:"type"`
	Currency     money.Currency     `json:"currency"`
	InterestRate *decimal.Decimal   `json:"interest_rate,omitempty"`
}

// TransferRequest is the payload from the client.
type TransferRequest struct {
	FromAccountID uuid.UUID       `json:"from_account_id"`
	ToAccountID   uuid.UUID       `json:"to_account_id"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      money.Currency  `json:"currency,omitempty"`
	Description   string          `json:"description,omitempty"`
}

// CashRequest is a deposit or a withdrawal on one account.
type CashRequest struct {
	AccountID   uuid.UUID       `json:"account_id"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    money.Currency  `json:"currency,omitempty"`
	Description string          `json:"description,omitempty"`
}

// GrantCreditRequest is sent by the advisor; BorrowerID owns AccountID.
type GrantCreditRequest struct {
	BorrowerID         uuid.UUID       `json:"borrower_id"`
	AccountID          uuid.UUID       `json:"account_id"`
	Principal          decimal.Decimal `json:"principal"`
	AnnualInterestRate decimal.Decimal `json:"annual_interest_rate"`
	InsuranceRate      decimal.Decimal `json:"insurance_rate"`
	DurationMonths     int             `json:"duration_months"`
}

type PlaceOrderRequest struct {
	AccountID uuid.UUID        `json:"account_id"`
	StockID   uuid.UUID        `json:"stock_id"`
	Side      domain.OrderSide `json:"side"`
	Quantity  int64            `json:"quantity"`
}

// BatchRequest triggers a batch for Date (YYYY-MM-DD, default today). RatePercent
// overrides the stored savings rate of the interest batch.
type BatchRequest struct {
	Date        string           `json:"date,omitempty"`
	RatePercent *decimal.Decimal `json:"rate_percent,omitempty"`
}

type SettingsRequest struct {
	SavingsRate   *decimal.Decimal `json:"savings_rate,omitempty"`
	InvestmentFee *money.Money     `json:"investment_fee,omitempty"`
}

type SettingsResponse struct {
	SavingsRate   decimal.Decimal `json:"savings_rate"`
	InvestmentFee money.Money     `json:"investment_fee"`
}

type HoldingsResponse struct {
	StockID  uuid.UUID `json:"stock_id"`
	Quantity int64     `json:"quantity"`
}

// ErrorResponse carries the failure reason and, when one was recorded, the failed
// transaction or cancelled order.
type ErrorResponse struct {
	Error       string                  `json:"error"`
	Transaction *domain.Transaction     `json:"transaction,omitempty"`
	Order       *domain.InvestmentOrder `json:"order,omitempty"`
}
