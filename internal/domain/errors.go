package domain

import (
	"errors"

	"github.com/punchamoorthee/bankcore/internal/money"
)

var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrCreditNotFound      = errors.New("credit not found")
	ErrOrderNotFound       = errors.New("investment order not found")
	ErrStockNotFound       = errors.New("stock not found")
	ErrUserNotFound        = errors.New("user not found")
)

var (
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrInvalidAccount      = errors.New("invalid account")
	ErrInvalidIBAN         = errors.New("invalid iban")
	ErrAccountInactive     = errors.New("account inactive")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrNonZeroBalance      = errors.New("account balance is not zero")
	ErrWrongAccountType    = errors.New("operation not allowed for this account type")
	ErrInterestNotAllowed  = errors.New("interest rate only allowed on savings accounts")
	ErrInterestAlreadyDue  = errors.New("interest already applied for this date")
	ErrSameAccount         = errors.New("source and destination accounts are the same")
	ErrNotAccountOwner     = errors.New("account does not belong to user")
	ErrNotOrderOwner       = errors.New("order does not belong to user")

	ErrInvalidTransactionShape = errors.New("invalid transaction shape")
	ErrInvalidTransactionState = errors.New("invalid transaction state")

	ErrInvalidCredit         = errors.New("invalid credit terms")
	ErrCreditNotActive       = errors.New("credit not active")
	ErrPaymentAlreadyApplied = errors.New("monthly payment already applied")
	ErrAdvisorNotAuthorized  = errors.New("advisor not authorized to grant credit")

	ErrInvalidOrder         = errors.New("invalid investment order")
	ErrInvalidOrderState    = errors.New("invalid investment order state")
	ErrFeeExceedsProceeds   = errors.New("fees exceed sale proceeds")
	ErrInsufficientHoldings = errors.New("insufficient holdings")
	ErrStockNotTradeable    = errors.New("stock not tradeable")
)

var businessErrors = []error{
	ErrAccountNotFound, ErrTransactionNotFound, ErrCreditNotFound, ErrOrderNotFound,
	ErrStockNotFound, ErrUserNotFound,
	ErrInvalidAmount, ErrInvalidAccount, ErrInvalidIBAN, ErrAccountInactive,
	ErrInsufficientBalance, ErrNonZeroBalance, ErrWrongAccountType, ErrInterestNotAllowed,
	ErrInterestAlreadyDue, ErrSameAccount, ErrNotAccountOwner, ErrNotOrderOwner,
	ErrInvalidTransactionShape, ErrInvalidTransactionState,
	ErrInvalidCredit, ErrCreditNotActive, ErrPaymentAlreadyApplied, ErrAdvisorNotAuthorized,
	ErrInvalidOrder, ErrInvalidOrderState, ErrFeeExceedsProceeds, ErrInsufficientHoldings,
	ErrStockNotTradeable,
	money.ErrCurrencyMismatch, money.ErrInvalidCurrency, money.ErrInvalidAmount, money.ErrDivisionByZero,
}

// IsBusinessError reports whether err is an expected rule violation rather than an
// infrastructure fault.
func IsBusinessError(err error) bool {
	if err == nil {
		return false
	}
	for _, target := range businessErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
