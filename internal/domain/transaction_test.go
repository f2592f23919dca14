package domain

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ref(id uuid.UUID) *uuid.UUID { return &id }

func TestNewTransaction_Shapes(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	tests := []struct {
		name    string
		params  NewTransactionParams
		wantErr bool
	}{
		{"transfer", NewTransactionParams{Type: TxTransfer, FromAccountID: ref(a), ToAccountID: ref(b), Amount: eur("1")}, false},
		{"transfer missing to", NewTransactionParams{Type: TxTransfer, FromAccountID: ref(a), Amount: eur("1")}, true},
		{"transfer same account", NewTransactionParams{Type: TxTransfer, FromAccountID: ref(a), ToAccountID: ref(a), Amount: eur("1")}, true},
		{"deposit", NewTransactionParams{Type: TxDeposit, ToAccountID: ref(a), Amount: eur("1")}, false},
		{"deposit with source", NewTransactionParams{Type: TxDeposit, FromAccountID: ref(b), ToAccountID: ref(a), Amount: eur("1")}, true},
		{"withdrawal", NewTransactionParams{Type: TxWithdrawal, FromAccountID: ref(a), Amount: eur("1")}, false},
		{"withdrawal with destination", NewTransactionParams{Type: TxWithdrawal, ToAccountID: ref(a), Amount: eur("1")}, true},
		{"external transfer", NewTransactionParams{Type: TxTransferExternal, FromAccountID: ref(a), Amount: eur("1")}, false},
		{"interest", NewTransactionParams{Type: TxInterest, ToAccountID: ref(a), Amount: eur("0.01")}, false},
		{"buy", NewTransactionParams{Type: TxInvestmentBuy, FromAccountID: ref(a), Amount: eur("1")}, false},
		{"sell", NewTransactionParams{Type: TxInvestmentSell, ToAccountID: ref(a), Amount: eur("1")}, false},
		{"nil uuid counts as missing", NewTransactionParams{Type: TxDeposit, ToAccountID: ref(uuid.Nil), Amount: eur("1")}, true},
		{"zero amount", NewTransactionParams{Type: TxDeposit, ToAccountID: ref(a), Amount: eur("0")}, true},
		{"negative amount", NewTransactionParams{Type: TxDeposit, ToAccountID: ref(a), Amount: eur("-3")}, true},
		{"unknown type", NewTransactionParams{Type: "refund", ToAccountID: ref(a), Amount: eur("1")}, true},
		{"description at limit", NewTransactionParams{Type: TxDeposit, ToAccountID: ref(a), Amount: eur("1"), Description: strings.Repeat("é", MaxDescriptionLen)}, false},
		{"description too long", NewTransactionParams{Type: TxDeposit, ToAccountID: ref(a), Amount: eur("1"), Description: strings.Repeat("x", MaxDescriptionLen+1)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx, err := NewTransaction(tt.params)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidTransactionShape)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, TxPending, tx.Status())
		})
	}
}

func TestTransaction_StateMachine(t *testing.T) {
	transitions := map[string]func(*Transaction) error{
		"complete": (*Transaction).Complete,
		"approve":  (*Transaction).Approve,
		"cancel":   (*Transaction).Cancel,
		"fail":     func(tx *Transaction) error { return tx.Fail("boom") },
		"reject":   func(tx *Transaction) error { return tx.Reject("no") },
	}
	want := map[string]TransactionStatus{
		"complete": TxCompleted,
		"approve":  TxCompleted,
		"cancel":   TxCancelled,
		"fail":     TxFailed,
		"reject":   TxFailed,
	}

	for first, do := range transitions {
		t.Run(first, func(t *testing.T) {
			tx, err := NewTransaction(NewTransactionParams{Type: TxDeposit, ToAccountID: ref(uuid.New()), Amount: eur("5")})
			require.NoError(t, err)
			require.NoError(t, do(tx))
			assert.Equal(t, want[first], tx.Status())
			assert.True(t, tx.IsTerminal())

			for second, again := range transitions {
				assert.ErrorIs(t, again(tx), ErrInvalidTransactionState, "%s after %s", second, first)
			}
			assert.Equal(t, want[first], tx.Status())
			assert.Equal(t, "5.00 EUR", tx.Amount().String())
		})
	}
}

func TestTransaction_FailureReason(t *testing.T) {
	tx, err := NewTransaction(NewTransactionParams{Type: TxWithdrawal, FromAccountID: ref(uuid.New()), Amount: eur("5")})
	require.NoError(t, err)
	require.NoError(t, tx.Fail("insufficient balance"))
	assert.Equal(t, "insufficient balance", tx.FailureReason())

	restored, err := RestoreTransaction(tx.Snapshot())
	require.NoError(t, err)
	assert.Equal(t, TxFailed, restored.Status())
	assert.Equal(t, "insufficient balance", restored.FailureReason())
}

func TestRestoreTransaction_Validates(t *testing.T) {
	tx, err := NewTransaction(NewTransactionParams{Type: TxDeposit, ToAccountID: ref(uuid.New()), Amount: eur("5")})
	require.NoError(t, err)

	snap := tx.Snapshot()
	snap.Status = "lost"
	_, err = RestoreTransaction(snap)
	assert.ErrorIs(t, err, ErrInvalidTransactionShape)

	snap = tx.Snapshot()
	snap.FromAccountID = ref(uuid.New())
	_, err = RestoreTransaction(snap)
	assert.ErrorIs(t, err, ErrInvalidTransactionShape)
}
