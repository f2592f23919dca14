package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/punchamoorthee/bankcore/internal/money"
)

type CreditStatus string

const (
	CreditActive    CreditStatus = "active"
	CreditPaidOff   CreditStatus = "paid_off"
	CreditDefaulted CreditStatus = "defaulted"
)

const MaxCreditDurationMonths = 600

var (
	monthsPerYear = decimal.NewFromInt(12)
	one           = decimal.NewFromInt(1)
)

// CreditTerms are the inputs to the amortization formula.
type CreditTerms struct {
	Principal          money.Money
	AnnualInterestRate decimal.Decimal // fraction, 0.05 = 5%
	InsuranceRate      decimal.Decimal // fraction of principal over the whole duration
	DurationMonths     int
}

func (t CreditTerms) Validate() error {
	if !t.Principal.IsPositive() {
		return fmt.Errorf("%w: principal must be positive", ErrInvalidCredit)
	}
	if t.AnnualInterestRate.IsNegative() || t.AnnualInterestRate.GreaterThan(one) {
		return fmt.Errorf("%w: annual interest rate must be within [0,1]", ErrInvalidCredit)
	}
	if t.InsuranceRate.IsNegative() || t.InsuranceRate.GreaterThan(one) {
		return fmt.Errorf("%w: insurance rate must be within [0,1]", ErrInvalidCredit)
	}
	if t.DurationMonths <= 0 || t.DurationMonths > MaxCreditDurationMonths {
		return fmt.Errorf("%w: duration must be 1-%d months", ErrInvalidCredit, MaxCreditDurationMonths)
	}
	return nil
}

// CreditCost is the breakdown returned when a credit is granted.
type CreditCost struct {
	MonthlyPayment   money.Money `json:"monthly_payment"`
	MonthlyInsurance money.Money `json:"monthly_insurance"`
	TotalInterest    money.Money `json:"total_interest"`
	TotalInsurance   money.Money `json:"total_insurance"`
	TotalCost        money.Money `json:"total_cost"`
}

// ComputeCreditCost applies M = C·t / (1 − (1+t)^−n) with t the monthly rate, or
// M = C/n when the rate is zero. Insurance is C × insuranceRate spread evenly over n.
func ComputeCreditCost(t CreditTerms) (CreditCost, error) {
	if err := t.Validate(); err != nil {
		return CreditCost{}, err
	}
	n := decimal.NewFromInt(int64(t.DurationMonths))
	c := t.Principal.Amount()

	var amortized decimal.Decimal
	if t.AnnualInterestRate.IsZero() {
		amortized = c.Div(n)
	} else {
		rate := t.AnnualInterestRate.Div(monthsPerYear)
		// (1+t)^n by repeated multiplication; equivalent to the (1+t)^-n form.
		growth := one
		step := one.Add(rate)
		for i := 0; i < t.DurationMonths; i++ {
			growth = growth.Mul(step).Round(24)
		}
		amortized = c.Mul(rate).Mul(growth).Div(growth.Sub(one))
	}

	cur := t.Principal.Currency()
	base, err := money.New(amortized, cur)
	if err != nil {
		return CreditCost{}, err
	}
	// Interest only shrinks as the balance falls, so a first instalment that repays
	// principal guarantees the credit amortizes to zero.
	firstInterest := t.Principal.Mul(t.AnnualInterestRate.Div(monthsPerYear))
	if cmp, _ := base.Cmp(firstInterest); cmp <= 0 {
		return CreditCost{}, fmt.Errorf("%w: monthly payment %s repays no principal", ErrInvalidCredit, base)
	}
	totalInsurance := t.Principal.Mul(t.InsuranceRate)
	monthlyInsurance, err := totalInsurance.Div(n)
	if err != nil {
		return CreditCost{}, err
	}
	// Insurance is collected as whole cents each month.
	totalInsurance = monthlyInsurance.MulInt(int64(t.DurationMonths))

	monthly, _ := base.Add(monthlyInsurance)
	totalInterest, _ := base.MulInt(int64(t.DurationMonths)).Sub(t.Principal)
	if totalInterest.IsNegative() {
		totalInterest = money.Zero(cur)
	}
	totalCost, _ := totalInterest.Add(totalInsurance)

	return CreditCost{
		MonthlyPayment:   monthly,
		MonthlyInsurance: monthlyInsurance,
		TotalInterest:    totalInterest,
		TotalInsurance:   totalInsurance,
		TotalCost:        totalCost,
	}, nil
}

// Credit is an amortizing loan. remainingBalance falls by the principal share of each
// monthly payment until it reaches zero.
type Credit struct {
	id                 uuid.UUID
	userID             uuid.UUID
	accountID          uuid.UUID
	advisorID          uuid.UUID
	principal          money.Money
	annualInterestRate decimal.Decimal
	insuranceRate      decimal.Decimal
	durationMonths     int
	monthlyPayment     money.Money
	monthlyInsurance   money.Money
	remainingBalance   money.Money
	status             CreditStatus
	paymentsMade       int
	lastPaymentOn      *time.Time
	createdAt          time.Time
	updatedAt          time.Time
}

type NewCreditParams struct {
	UserID    uuid.UUID
	AccountID uuid.UUID
	AdvisorID uuid.UUID
	Terms     CreditTerms
}

// NewCredit grants a credit with remainingBalance equal to the principal.
func NewCredit(p NewCreditParams) (*Credit, CreditCost, error) {
	if p.UserID == uuid.Nil || p.AccountID == uuid.Nil || p.AdvisorID == uuid.Nil {
		return nil, CreditCost{}, fmt.Errorf("%w: user, account and advisor are required", ErrInvalidCredit)
	}
	cost, err := ComputeCreditCost(p.Terms)
	if err != nil {
		return nil, CreditCost{}, err
	}
	ts := now()
	return &Credit{
		id:                 uuid.New(),
		userID:             p.UserID,
		accountID:          p.AccountID,
		advisorID:          p.AdvisorID,
		principal:          p.Terms.Principal,
		annualInterestRate: p.Terms.AnnualInterestRate,
		insuranceRate:      p.Terms.InsuranceRate,
		durationMonths:     p.Terms.DurationMonths,
		monthlyPayment:     cost.MonthlyPayment,
		monthlyInsurance:   cost.MonthlyInsurance,
		remainingBalance:   p.Terms.Principal,
		status:             CreditActive,
		createdAt:          ts,
		updatedAt:          ts,
	}, cost, nil
}

type CreditSnapshot struct {
	ID                 uuid.UUID       `json:"id"`
	UserID             uuid.UUID       `json:"user_id"`
	AccountID          uuid.UUID       `json:"account_id"`
	AdvisorID          uuid.UUID       `json:"advisor_id"`
	PrincipalAmount    money.Money     `json:"principal_amount"`
	AnnualInterestRate decimal.Decimal `json:"annual_interest_rate"`
	InsuranceRate      decimal.Decimal `json:"insurance_rate"`
	DurationMonths     int             `json:"duration_months"`
	MonthlyPayment     money.Money     `json:"monthly_payment"`
	RemainingBalance   money.Money     `json:"remaining_balance"`
	Status             CreditStatus    `json:"status"`
	PaymentsMade       int             `json:"payments_made"`
	LastPaymentOn      *time.Time      `json:"last_payment_on,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// RestoreCredit reconstitutes a stored credit; the monthly insurance share is derived
// again from the terms.
func RestoreCredit(s CreditSnapshot) (*Credit, error) {
	if s.ID == uuid.Nil {
		return nil, fmt.Errorf("%w: missing id", ErrInvalidCredit)
	}
	terms := CreditTerms{
		Principal:          s.PrincipalAmount,
		AnnualInterestRate: s.AnnualInterestRate,
		InsuranceRate:      s.InsuranceRate,
		DurationMonths:     s.DurationMonths,
	}
	cost, err := ComputeCreditCost(terms)
	if err != nil {
		return nil, err
	}
	switch s.Status {
	case CreditActive, CreditPaidOff, CreditDefaulted:
	default:
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidCredit, s.Status)
	}
	if s.RemainingBalance.IsNegative() {
		return nil, fmt.Errorf("%w: negative remaining balance", ErrInvalidCredit)
	}
	if c, err := s.RemainingBalance.Cmp(s.PrincipalAmount); err != nil || c > 0 {
		return nil, fmt.Errorf("%w: remaining balance exceeds principal", ErrInvalidCredit)
	}
	return &Credit{
		id:                 s.ID,
		userID:             s.UserID,
		accountID:          s.AccountID,
		advisorID:          s.AdvisorID,
		principal:          s.PrincipalAmount,
		annualInterestRate: s.AnnualInterestRate,
		insuranceRate:      s.InsuranceRate,
		durationMonths:     s.DurationMonths,
		monthlyPayment:     s.MonthlyPayment,
		monthlyInsurance:   cost.MonthlyInsurance,
		remainingBalance:   s.RemainingBalance,
		status:             s.Status,
		paymentsMade:       s.PaymentsMade,
		lastPaymentOn:      s.LastPaymentOn,
		createdAt:          s.CreatedAt,
		updatedAt:          s.UpdatedAt,
	}, nil
}

func (c *Credit) ID() uuid.UUID                       { return c.id }
func (c *Credit) UserID() uuid.UUID                   { return c.userID }
func (c *Credit) AccountID() uuid.UUID                { return c.accountID }
func (c *Credit) AdvisorID() uuid.UUID                { return c.advisorID }
func (c *Credit) Principal() money.Money              { return c.principal }
func (c *Credit) AnnualInterestRate() decimal.Decimal { return c.annualInterestRate }
func (c *Credit) InsuranceRate() decimal.Decimal      { return c.insuranceRate }
func (c *Credit) DurationMonths() int                 { return c.durationMonths }
func (c *Credit) MonthlyPayment() money.Money         { return c.monthlyPayment }
func (c *Credit) RemainingBalance() money.Money       { return c.remainingBalance }
func (c *Credit) Status() CreditStatus                { return c.status }
func (c *Credit) PaymentsMade() int                   { return c.paymentsMade }
func (c *Credit) LastPaymentOn() *time.Time           { return c.lastPaymentOn }

func (c *Credit) Snapshot() CreditSnapshot {
	return CreditSnapshot{
		ID:                 c.id,
		UserID:             c.userID,
		AccountID:          c.accountID,
		AdvisorID:          c.advisorID,
		PrincipalAmount:    c.principal,
		AnnualInterestRate: c.annualInterestRate,
		InsuranceRate:      c.insuranceRate,
		DurationMonths:     c.durationMonths,
		MonthlyPayment:     c.monthlyPayment,
		RemainingBalance:   c.remainingBalance,
		Status:             c.status,
		PaymentsMade:       c.paymentsMade,
		LastPaymentOn:      c.lastPaymentOn,
		CreatedAt:          c.createdAt,
		UpdatedAt:          c.updatedAt,
	}
}

func (c *Credit) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Snapshot())
}

// Instalment splits one monthly payment.
type Instalment struct {
	Amount         money.Money `json:"amount"`
	Interest       money.Money `json:"interest"`
	Insurance      money.Money `json:"insurance"`
	Principal      money.Money `json:"principal"`
	RemainingAfter money.Money `json:"remaining_after"`
}

// NextInstalment computes the payment due now without changing the credit. Interest
// is charged on the current remaining balance; the last instalment is capped at what
// is still owed.
func (c *Credit) NextInstalment() (Instalment, error) {
	if c.status != CreditActive {
		return Instalment{}, ErrCreditNotActive
	}
	interest := c.remainingBalance.Mul(c.annualInterestRate.Div(monthsPerYear))
	amount := c.monthlyPayment

	principal, err := amount.Sub(interest)
	if err != nil {
		return Instalment{}, err
	}
	principal, _ = principal.Sub(c.monthlyInsurance)
	if principal.IsNegative() {
		principal = money.Zero(amount.Currency())
	}
	if cmp, _ := principal.Cmp(c.remainingBalance); cmp >= 0 {
		principal = c.remainingBalance
		amount, _ = principal.Add(interest)
		amount, _ = amount.Add(c.monthlyInsurance)
	}
	remaining, _ := c.remainingBalance.Sub(principal)
	return Instalment{
		Amount:         amount,
		Interest:       interest,
		Insurance:      c.monthlyInsurance,
		Principal:      principal,
		RemainingAfter: remaining,
	}, nil
}

// RecordPayment applies the next instalment for the month containing on.
func (c *Credit) RecordPayment(on time.Time) (Instalment, error) {
	if c.lastPaymentOn != nil && sameMonth(*c.lastPaymentOn, on) {
		return Instalment{}, ErrPaymentAlreadyApplied
	}
	inst, err := c.NextInstalment()
	if err != nil {
		return Instalment{}, err
	}
	c.remainingBalance = inst.RemainingAfter
	c.paymentsMade++
	day := truncateDay(on)
	c.lastPaymentOn = &day
	if c.remainingBalance.IsZero() {
		c.status = CreditPaidOff
	}
	c.updatedAt = now()
	return inst, nil
}

// DueFor reports whether no payment has been recorded yet for the month containing on.
func (c *Credit) DueFor(on time.Time) bool {
	return c.status == CreditActive && (c.lastPaymentOn == nil || !sameMonth(*c.lastPaymentOn, on))
}

// MarkDefaulted is driven by collection policy outside the ledger.
func (c *Credit) MarkDefaulted() error {
	if c.status != CreditActive {
		return ErrCreditNotActive
	}
	c.status = CreditDefaulted
	c.updatedAt = now()
	return nil
}
