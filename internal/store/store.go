// Package store persists ledger entities. Postgres is the production backend; Memory
// backs tests and the single-process development mode.
package store

import (
	"errors"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/punchamoorthee/bankcore/internal/money"
)

var (
	ErrDuplicateIBAN = errors.New("iban already in use")

	ErrIdempotencyInProgress = errors.New("request in progress")
	ErrIdempotencyMismatch   = errors.New("key reuse with mismatched payload")
)

var txRetries = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ledger_store_tx_retries_total",
	Help: "Units of work retried after a serialization failure or deadlock",
}, []string{"code"})

const (
	settingSavingsRate   = "savings_rate"
	settingInvestmentFee = "investment_fee"
)

// Settings are stored as text; a fee is "<amount> <currency>", e.g. "2.50 EUR".
func formatFee(fee money.Money) string {
	return fee.Amount().StringFixed(2) + " " + string(fee.Currency())
}

func parseFee(v string) (money.Money, error) {
	amount, code, ok := strings.Cut(strings.TrimSpace(v), " ")
	if !ok {
		return money.Money{}, fmt.Errorf("malformed fee setting %q", v)
	}
	currency, err := money.ParseCurrency(code)
	if err != nil {
		return money.Money{}, err
	}
	return money.FromString(amount, currency)
}
