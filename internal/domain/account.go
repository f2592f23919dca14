package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/punchamoorthee/bankcore/internal/money"
)

// AccountType classifies what an account may be used for.
type AccountType string

const (
	AccountChecking   AccountType = "checking"
	AccountSavings    AccountType = "savings"
	AccountInvestment AccountType = "investment"
)

func (t AccountType) Valid() bool {
	switch t {
	case AccountChecking, AccountSavings, AccountInvestment:
		return true
	}
	return false
}

const maxAccountNameLen = 100

var (
	daysPerYear = decimal.NewFromInt(365)
	hundred     = decimal.NewFromInt(100)
	// Daily interest below one cent is not credited.
	minInterest = decimal.New(1, -money.MinorUnits)
)

// Account holds a balance. The balance only moves through Credit and Debit, which
// enforce the active flag and the non-negative floor.
type Account struct {
	id             uuid.UUID
	userID         uuid.UUID
	iban           string
	name           string
	accountType    AccountType
	balance        money.Money
	interestRate   *decimal.Decimal
	active         bool
	lastInterestOn *time.Time
	createdAt      time.Time
	updatedAt      time.Time
}

// NewAccountParams describes an account to open.
type NewAccountParams struct {
	UserID       uuid.UUID
	IBAN         string
	Name         string
	Type         AccountType
	Currency     money.Currency
	InterestRate *decimal.Decimal // percent, savings only
}

// NewAccount opens an active account with a zero balance.
func NewAccount(p NewAccountParams) (*Account, error) {
	if _, err := money.ParseCurrency(string(p.Currency)); err != nil {
		return nil, err
	}
	ts := now()
	a := &Account{
		id:           uuid.New(),
		userID:       p.UserID,
		iban:         NormalizeIBAN(p.IBAN),
		name:         strings.TrimSpace(p.Name),
		accountType:  p.Type,
		balance:      money.Zero(p.Currency),
		interestRate: p.InterestRate,
		active:       true,
		createdAt:    ts,
		updatedAt:    ts,
	}
	if err := a.validate(); err != nil {
		return nil, err
	}
	return a, nil
}

// AccountSnapshot is the persisted and serialized form of an Account.
type AccountSnapshot struct {
	ID             uuid.UUID        `json:"id"`
	UserID         uuid.UUID        `json:"user_id"`
	IBAN           string           `json:"iban"`
	Name           string           `json:"name"`
	Type           AccountType      `json:"type"`
	Balance        money.Money      `json:"balance"`
	InterestRate   *decimal.Decimal `json:"interest_rate,omitempty"`
	IsActive       bool             `json:"is_active"`
	LastInterestOn *time.Time       `json:"last_interest_on,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// RestoreAccount reconstitutes an account from storage. Identifier and timestamps are
// kept as stored; business invariants are checked again.
func RestoreAccount(s AccountSnapshot) (*Account, error) {
	a := &Account{
		id:             s.ID,
		userID:         s.UserID,
		iban:           s.IBAN,
		name:           s.Name,
		accountType:    s.Type,
		balance:        s.Balance,
		interestRate:   s.InterestRate,
		active:         s.IsActive,
		lastInterestOn: s.LastInterestOn,
		createdAt:      s.CreatedAt,
		updatedAt:      s.UpdatedAt,
	}
	if s.ID == uuid.Nil {
		return nil, fmt.Errorf("%w: missing id", ErrInvalidAccount)
	}
	if err := a.validate(); err != nil {
		return nil, err
	}
	if s.Balance.IsNegative() {
		return nil, fmt.Errorf("%w: negative balance %s", ErrInvalidAccount, s.Balance)
	}
	return a, nil
}

func (a *Account) validate() error {
	if a.userID == uuid.Nil {
		return fmt.Errorf("%w: missing user", ErrInvalidAccount)
	}
	if !a.accountType.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidAccount, a.accountType)
	}
	if a.name == "" || len(a.name) > maxAccountNameLen {
		return fmt.Errorf("%w: name must be 1-%d characters", ErrInvalidAccount, maxAccountNameLen)
	}
	if err := ValidateIBAN(a.iban); err != nil {
		return err
	}
	return validateInterestRate(a.accountType, a.interestRate)
}

func validateInterestRate(t AccountType, rate *decimal.Decimal) error {
	if rate == nil {
		return nil
	}
	if t != AccountSavings {
		return ErrInterestNotAllowed
	}
	if rate.IsNegative() || rate.GreaterThan(hundred) {
		return fmt.Errorf("%w: interest rate %s out of range", ErrInvalidAccount, rate)
	}
	return nil
}

func (a *Account) ID() uuid.UUID                  { return a.id }
func (a *Account) UserID() uuid.UUID              { return a.userID }
func (a *Account) IBAN() string                   { return a.iban }
func (a *Account) Name() string                   { return a.name }
func (a *Account) Type() AccountType              { return a.accountType }
func (a *Account) Balance() money.Money           { return a.balance }
func (a *Account) Currency() money.Currency       { return a.balance.Currency() }
func (a *Account) InterestRate() *decimal.Decimal { return a.interestRate }
func (a *Account) IsActive() bool                 { return a.active }
func (a *Account) LastInterestOn() *time.Time     { return a.lastInterestOn }
func (a *Account) CreatedAt() time.Time           { return a.createdAt }
func (a *Account) UpdatedAt() time.Time           { return a.updatedAt }

// Snapshot copies the account state for persistence.
func (a *Account) Snapshot() AccountSnapshot {
	return AccountSnapshot{
		ID:             a.id,
		UserID:         a.userID,
		IBAN:           a.iban,
		Name:           a.name,
		Type:           a.accountType,
		Balance:        a.balance,
		InterestRate:   a.interestRate,
		IsActive:       a.active,
		LastInterestOn: a.lastInterestOn,
		CreatedAt:      a.createdAt,
		UpdatedAt:      a.updatedAt,
	}
}

func (a *Account) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.Snapshot())
}

// Credit adds amount to the balance.
func (a *Account) Credit(amount money.Money) error {
	if !a.active {
		return ErrAccountInactive
	}
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	next, err := a.balance.Add(amount)
	if err != nil {
		return err
	}
	a.balance = next
	a.touch()
	return nil
}

// Debit removes amount from the balance; it never lets the balance go below zero.
func (a *Account) Debit(amount money.Money) error {
	if !a.active {
		return ErrAccountInactive
	}
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	next, err := a.balance.Sub(amount)
	if err != nil {
		return err
	}
	if next.IsNegative() {
		return fmt.Errorf("%w: balance %s, requested %s", ErrInsufficientBalance, a.balance, amount)
	}
	a.balance = next
	a.touch()
	return nil
}

// HasEnoughBalance reports whether a debit of amount would succeed on balance alone.
func (a *Account) HasEnoughBalance(amount money.Money) bool {
	c, err := a.balance.Cmp(amount)
	return err == nil && c >= 0
}

// DailyInterest computes balance × ratePercent / 100 / 365 without rounding.
func (a *Account) DailyInterest(ratePercent decimal.Decimal) decimal.Decimal {
	return a.balance.Amount().Mul(ratePercent).Div(hundred).Div(daysPerYear)
}

// AccrueInterest credits one day of interest at ratePercent for the given date. It
// returns the credited amount; a zero amount means nothing was due.
func (a *Account) AccrueInterest(ratePercent decimal.Decimal, on time.Time) (money.Money, error) {
	if a.accountType != AccountSavings {
		return money.Money{}, ErrWrongAccountType
	}
	if !a.active {
		return money.Money{}, ErrAccountInactive
	}
	if a.lastInterestOn != nil && sameDay(*a.lastInterestOn, on) {
		return money.Money{}, ErrInterestAlreadyDue
	}
	zero := money.Zero(a.Currency())
	if !ratePercent.IsPositive() {
		return zero, nil
	}
	raw := a.DailyInterest(ratePercent)
	if raw.LessThan(minInterest) {
		return zero, nil
	}
	interest, err := money.New(raw, a.Currency())
	if err != nil {
		return money.Money{}, err
	}
	if err := a.Credit(interest); err != nil {
		return money.Money{}, err
	}
	day := truncateDay(on)
	a.lastInterestOn = &day
	return interest, nil
}

// ApplyInterest accrues one day of interest at the account's own rate.
func (a *Account) ApplyInterest(on time.Time) (money.Money, error) {
	if a.interestRate == nil {
		if a.accountType != AccountSavings {
			return money.Money{}, ErrWrongAccountType
		}
		return money.Zero(a.Currency()), nil
	}
	return a.AccrueInterest(*a.interestRate, on)
}

// SetInterestRate changes the savings rate; nil clears it.
func (a *Account) SetInterestRate(rate *decimal.Decimal) error {
	if !a.active {
		return ErrAccountInactive
	}
	if err := validateInterestRate(a.accountType, rate); err != nil {
		return err
	}
	a.interestRate = rate
	a.touch()
	return nil
}

func (a *Account) Rename(name string) error {
	if !a.active {
		return ErrAccountInactive
	}
	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxAccountNameLen {
		return fmt.Errorf("%w: name must be 1-%d characters", ErrInvalidAccount, maxAccountNameLen)
	}
	a.name = name
	a.touch()
	return nil
}

// Deactivate freezes the account. Only an empty account can be deactivated.
func (a *Account) Deactivate() error {
	if !a.balance.IsZero() {
		return ErrNonZeroBalance
	}
	a.active = false
	a.touch()
	return nil
}

func (a *Account) Activate() {
	a.active = true
	a.touch()
}

// EnsureDeletable fails unless the balance is zero.
func (a *Account) EnsureDeletable() error {
	if !a.balance.IsZero() {
		return ErrNonZeroBalance
	}
	return nil
}

func (a *Account) touch() {
	a.updatedAt = now()
}
