package domain

import (
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/punchamoorthee/bankcore/internal/money"
)

type TransactionType string

const (
	TxDeposit          TransactionType = "deposit"
	TxWithdrawal       TransactionType = "withdrawal"
	TxTransfer         TransactionType = "transfer"
	TxTransferExternal TransactionType = "transfer_external"
	TxInterest         TransactionType = "interest"
	TxInvestmentBuy    TransactionType = "investment_buy"
	TxInvestmentSell   TransactionType = "investment_sell"
)

type TransactionStatus string

const (
	TxPending   TransactionStatus = "pending"
	TxCompleted TransactionStatus = "completed"
	TxFailed    TransactionStatus = "failed"
	TxCancelled TransactionStatus = "cancelled"
)

const MaxDescriptionLen = 500

// side describes which account references a transaction type carries.
type side struct{ from, to bool }

var transactionShapes = map[TransactionType]side{
	TxDeposit:          {to: true},
	TxWithdrawal:       {from: true},
	TxTransfer:         {from: true, to: true},
	TxTransferExternal: {from: true},
	TxInterest:         {to: true},
	TxInvestmentBuy:    {from: true},
	TxInvestmentSell:   {to: true},
}

// Transaction records one monetary movement. Its amount never changes after
// construction; only the status moves, and only out of pending.
type Transaction struct {
	id            uuid.UUID
	fromAccountID *uuid.UUID
	toAccountID   *uuid.UUID
	amount        money.Money
	txType        TransactionType
	status        TransactionStatus
	description   string
	failureReason string
	createdAt     time.Time
	updatedAt     time.Time
}

type NewTransactionParams struct {
	Type          TransactionType
	FromAccountID *uuid.UUID
	ToAccountID   *uuid.UUID
	Amount        money.Money
	Description   string
}

// NewTransaction validates the shape for the type and returns a pending transaction.
func NewTransaction(p NewTransactionParams) (*Transaction, error) {
	ts := now()
	t := &Transaction{
		id:            uuid.New(),
		fromAccountID: p.FromAccountID,
		toAccountID:   p.ToAccountID,
		amount:        p.Amount,
		txType:        p.Type,
		status:        TxPending,
		description:   p.Description,
		createdAt:     ts,
		updatedAt:     ts,
	}
	if err := t.validate(); err != nil {
		return nil, err
	}
	return t, nil
}

type TransactionSnapshot struct {
	ID            uuid.UUID         `json:"id"`
	FromAccountID *uuid.UUID        `json:"from_account_id,omitempty"`
	ToAccountID   *uuid.UUID        `json:"to_account_id,omitempty"`
	Amount        money.Money       `json:"amount"`
	Type          TransactionType   `json:"type"`
	Status        TransactionStatus `json:"status"`
	Description   string            `json:"description,omitempty"`
	FailureReason string            `json:"failure_reason,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// RestoreTransaction reconstitutes a stored transaction.
func RestoreTransaction(s TransactionSnapshot) (*Transaction, error) {
	if s.ID == uuid.Nil {
		return nil, fmt.Errorf("%w: missing id", ErrInvalidTransactionShape)
	}
	switch s.Status {
	case TxPending, TxCompleted, TxFailed, TxCancelled:
	default:
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidTransactionShape, s.Status)
	}
	t := &Transaction{
		id:            s.ID,
		fromAccountID: s.FromAccountID,
		toAccountID:   s.ToAccountID,
		amount:        s.Amount,
		txType:        s.Type,
		status:        s.Status,
		description:   s.Description,
		failureReason: s.FailureReason,
		createdAt:     s.CreatedAt,
		updatedAt:     s.UpdatedAt,
	}
	if err := t.validate(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Transaction) validate() error {
	shape, ok := transactionShapes[t.txType]
	if !ok {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidTransactionShape, t.txType)
	}
	if hasRef(t.fromAccountID) != shape.from {
		return fmt.Errorf("%w: %s source account reference", ErrInvalidTransactionShape, t.txType)
	}
	if hasRef(t.toAccountID) != shape.to {
		return fmt.Errorf("%w: %s destination account reference", ErrInvalidTransactionShape, t.txType)
	}
	if shape.from && shape.to && *t.fromAccountID == *t.toAccountID {
		return fmt.Errorf("%w: %w", ErrInvalidTransactionShape, ErrSameAccount)
	}
	if !t.amount.IsPositive() {
		return fmt.Errorf("%w: %w", ErrInvalidTransactionShape, ErrInvalidAmount)
	}
	if utf8.RuneCountInString(t.description) > MaxDescriptionLen {
		return fmt.Errorf("%w: description longer than %d characters", ErrInvalidTransactionShape, MaxDescriptionLen)
	}
	return nil
}

func hasRef(id *uuid.UUID) bool {
	return id != nil && *id != uuid.Nil
}

func (t *Transaction) ID() uuid.UUID             { return t.id }
func (t *Transaction) FromAccountID() *uuid.UUID { return t.fromAccountID }
func (t *Transaction) ToAccountID() *uuid.UUID   { return t.toAccountID }
func (t *Transaction) Amount() money.Money       { return t.amount }
func (t *Transaction) Type() TransactionType     { return t.txType }
func (t *Transaction) Status() TransactionStatus { return t.status }
func (t *Transaction) Description() string       { return t.description }
func (t *Transaction) FailureReason() string     { return t.failureReason }
func (t *Transaction) CreatedAt() time.Time      { return t.createdAt }
func (t *Transaction) UpdatedAt() time.Time      { return t.updatedAt }

// IsTerminal reports whether the transaction left pending.
func (t *Transaction) IsTerminal() bool { return t.status != TxPending }

func (t *Transaction) Snapshot() TransactionSnapshot {
	return TransactionSnapshot{
		ID:            t.id,
		FromAccountID: t.fromAccountID,
		ToAccountID:   t.toAccountID,
		Amount:        t.amount,
		Type:          t.txType,
		Status:        t.status,
		Description:   t.description,
		FailureReason: t.failureReason,
		CreatedAt:     t.createdAt,
		UpdatedAt:     t.updatedAt,
	}
}

func (t *Transaction) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Snapshot())
}

func (t *Transaction) Complete() error { return t.transition(TxCompleted, "") }
func (t *Transaction) Approve() error  { return t.transition(TxCompleted, "") }
func (t *Transaction) Cancel() error   { return t.transition(TxCancelled, "") }

func (t *Transaction) Fail(reason string) error   { return t.transition(TxFailed, reason) }
func (t *Transaction) Reject(reason string) error { return t.transition(TxFailed, reason) }

func (t *Transaction) transition(to TransactionStatus, reason string) error {
	if t.status != TxPending {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransactionState, t.status, to)
	}
	t.status = to
	t.failureReason = reason
	t.updatedAt = now()
	return nil
}
