package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/punchamoorthee/bankcore/internal/api"
	"github.com/punchamoorthee/bankcore/internal/domain"
	"github.com/punchamoorthee/bankcore/internal/money"
	"github.com/punchamoorthee/bankcore/internal/service"
	"github.com/punchamoorthee/bankcore/internal/store"
)

type testServer struct {
	t       *testing.T
	mem     *store.Memory
	router  http.Handler
	client  domain.User
	advisor domain.User
	admin   domain.User
}

func newServer(t *testing.T, keys api.IdempotencyStore, health api.HealthProbe) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mem := store.NewMemory(decimal.RequireFromString("3.65"), money.MustNew("1.00", money.EUR))
	if keys == nil {
		keys = store.NewMemoryIdempotency()
	}
	s := &testServer{
		t:       t,
		mem:     mem,
		client:  domain.User{ID: uuid.New(), Email: "c@example.com", FullName: "Client", Role: domain.RoleClient},
		advisor: domain.User{ID: uuid.New(), Email: "a@example.com", FullName: "Advisor", Role: domain.RoleAdvisor},
		admin:   domain.User{ID: uuid.New(), Email: "root@example.com", FullName: "Admin", Role: domain.RoleAdmin},
	}
	for _, u := range []domain.User{s.client, s.advisor, s.admin} {
		mem.AddUser(u)
	}
	ledger := service.NewLedgerService(mem, logger)
	s.router = api.NewHandler(ledger, keys, health, logger).Router()
	return s
}

func (s *testServer) do(method, path string, user uuid.UUID, key string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(s.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if user != uuid.Nil {
		req.Header.Set("X-User-ID", user.String())
	}
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (s *testServer) openAccount(typ domain.AccountType) domain.AccountSnapshot {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/api/v1/accounts", s.client.ID, "", map[string]any{
		"name": "Main", "type": typ, "currency": "EUR",
	})
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[domain.AccountSnapshot](s.t, rec)
}

func (s *testServer) deposit(acc uuid.UUID, amount string) {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/api/v1/deposits", s.client.ID, uuid.NewString(), map[string]any{
		"account_id": acc, "amount": amount,
	})
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
}

func (s *testServer) balance(acc uuid.UUID) string {
	s.t.Helper()
	rec := s.do(http.MethodGet, "/api/v1/accounts/"+acc.String(), s.client.ID, "", nil)
	require.Equal(s.t, http.StatusOK, rec.Code)
	return decodeBody[domain.AccountSnapshot](s.t, rec).Balance.Amount().StringFixed(2)
}

func TestHealthCheck(t *testing.T) {
	s := newServer(t, nil, nil)
	rec := s.do(http.MethodGet, "/health", uuid.Nil, "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	down := newServer(t, nil, func(context.Context) error { return errors.New("connection refused") })
	rec = down.do(http.MethodGet, "/health", uuid.Nil, "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "degraded")
}

func TestRequiresUserHeader(t *testing.T) {
	s := newServer(t, nil, nil)
	rec := s.do(http.MethodGet, "/api/v1/accounts", uuid.Nil, "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDeposit_IdempotentReplay(t *testing.T) {
	s := newServer(t, nil, nil)
	acc := s.openAccount(domain.AccountChecking)
	body := map[string]any{"account_id": acc.ID, "amount": "50.00"}

	first := s.do(http.MethodPost, "/api/v1/deposits", s.client.ID, "key-1", body)
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	tx := decodeBody[domain.TransactionSnapshot](t, first)
	assert.Equal(t, domain.TxCompleted, tx.Status)

	replay := s.do(http.MethodPost, "/api/v1/deposits", s.client.ID, "key-1", body)
	assert.Equal(t, http.StatusCreated, replay.Code)
	assert.Equal(t, "true", replay.Header().Get("Idempotent-Replayed"))
	assert.JSONEq(t, first.Body.String(), replay.Body.String())

	mismatch := s.do(http.MethodPost, "/api/v1/deposits", s.client.ID, "key-1", map[string]any{"account_id": acc.ID, "amount": "60.00"})
	assert.Equal(t, http.StatusUnprocessableEntity, mismatch.Code)

	missing := s.do(http.MethodPost, "/api/v1/deposits", s.client.ID, "", body)
	assert.Equal(t, http.StatusBadRequest, missing.Code)

	assert.Equal(t, "50.00", s.balance(acc.ID))
}

// busyKeys reports every key as still running.
type busyKeys struct{}

func (busyKeys) Reserve(context.Context, string, string) (*store.IdempotencyRecord, error) {
	return nil, store.ErrIdempotencyInProgress
}
func (busyKeys) Complete(context.Context, string, int, []byte) error { return nil }
func (busyKeys) Release(context.Context, string) error { return nil }

func TestIdempotency_InProgressIsConflict(t *testing.T) {
	s := newServer(t, busyKeys{}, nil)
	rec := s.do(http.MethodPost, "/api/v1/withdrawals", s.client.ID, "key-1", map[string]any{
		"account_id": uuid.New(), "amount": "1",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestTransfer(t *testing.T) {
	s := newServer(t, nil, nil)
	from := s.openAccount(domain.AccountChecking)
	to := s.openAccount(domain.AccountSavings)
	s.deposit(from.ID, "100")

	rec := s.do(http.MethodPost, "/api/v1/transfers", s.client.ID, "t-1", map[string]any{
		"from_account_id": from.ID, "to_account_id": to.ID, "amount": "40.25",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "59.75", s.balance(from.ID))
	assert.Equal(t, "40.25", s.balance(to.ID))

	rec = s.do(http.MethodPost, "/api/v1/transfers", s.client.ID, "t-2", map[string]any{
		"from_account_id": from.ID, "to_account_id": to.ID, "amount": "1000",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.JSONEq(t, `{"error":"insufficient balance"}`, rec.Body.String())

	rec = s.do(http.MethodPost, "/api/v1/transfers", s.client.ID, "t-3", `{"amount":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodGet, "/api/v1/accounts/"+from.ID.String()+"/transactions", s.client.ID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]domain.TransactionSnapshot](t, rec), 2)
}

func TestWithdrawal_RejectionCarriesFailedTransaction(t *testing.T) {
	s := newServer(t, nil, nil)
	acc := s.openAccount(domain.AccountChecking)
	s.deposit(acc.ID, "10")

	rec := s.do(http.MethodPost, "/api/v1/withdrawals", s.client.ID, "w-1", map[string]any{
		"account_id": acc.ID, "amount": "10.01",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	failed := decodeBody[struct {
		Error       string                     `json:"error"`
		Transaction domain.TransactionSnapshot `json:"transaction"`
	}](t, rec)
	assert.Contains(t, failed.Error, "insufficient balance")
	assert.Equal(t, domain.TxFailed, failed.Transaction.Status)

	rec = s.do(http.MethodGet, "/api/v1/transactions/"+failed.Transaction.ID.String(), s.client.ID, "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestForeignAccountIsNotFound(t *testing.T) {
	s := newServer(t, nil, nil)
	acc := s.openAccount(domain.AccountChecking)

	rec := s.do(http.MethodGet, "/api/v1/accounts/"+acc.ID.String(), s.advisor.ID, "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodGet, "/api/v1/accounts/not-a-uuid", s.client.ID, "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCloseAccount(t *testing.T) {
	s := newServer(t, nil, nil)
	acc := s.openAccount(domain.AccountChecking)
	s.deposit(acc.ID, "1")

	rec := s.do(http.MethodDelete, "/api/v1/accounts/"+acc.ID.String(), s.client.ID, "", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	empty := s.openAccount(domain.AccountChecking)
	rec = s.do(http.MethodDelete, "/api/v1/accounts/"+empty.ID.String(), s.client.ID, "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(http.MethodGet, "/api/v1/accounts?type=checking", s.client.ID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]domain.AccountSnapshot](t, rec), 1)
}

func TestGrantCredit(t *testing.T) {
	s := newServer(t, nil, nil)
	acc := s.openAccount(domain.AccountChecking)
	body := map[string]any{
		"borrower_id":          s.client.ID,
		"account_id":           acc.ID,
		"principal":            "12000",
		"annual_interest_rate": "0.12",
		"insurance_rate":       "0",
		"duration_months":      12,
	}

	rec := s.do(http.MethodPost, "/api/v1/credits", s.client.ID, "c-1", body)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodPost, "/api/v1/credits", s.advisor.ID, "c-2", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"1066.19"`)
	assert.Equal(t, "12000.00", s.balance(acc.ID))

	rec = s.do(http.MethodGet, "/api/v1/credits", s.client.ID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]json.RawMessage](t, rec), 1)
}

func TestInvestmentOrders(t *testing.T) {
	s := newServer(t, nil, nil)
	acc := s.openAccount(domain.AccountInvestment)
	s.deposit(acc.ID, "100")
	stock := domain.Stock{ID: uuid.New(), Symbol: "ACME", Name: "Acme", Price: money.MustNew("10", money.EUR), Tradeable: true}
	s.mem.AddStock(stock)

	rec := s.do(http.MethodPost, "/api/v1/investments/orders", s.client.ID, "o-1", map[string]any{
		"account_id": acc.ID, "stock_id": stock.ID, "side": "buy", "quantity": 4,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "59.00", s.balance(acc.ID))

	order := decodeBody[domain.OrderSnapshot](t, rec)
	rec = s.do(http.MethodPost, "/api/v1/investments/orders/"+order.ID.String()+"/cancel", s.client.ID, "o-2", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(http.MethodGet, "/api/v1/investments/holdings/"+stock.ID.String(), s.client.ID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"stock_id":"`+stock.ID.String()+`","quantity":4}`, rec.Body.String())
}

func TestBatchesRequireAdmin(t *testing.T) {
	s := newServer(t, nil, nil)
	acc := s.openAccount(domain.AccountSavings)
	s.deposit(acc.ID, "10000")

	rec := s.do(http.MethodPost, "/api/v1/batch/interest", s.client.ID, "", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodPost, "/api/v1/batch/interest", s.admin.ID, "", map[string]any{"date": "2026-03-01"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decodeBody[service.BatchResult](t, rec)
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, "10001.00", s.balance(acc.ID))

	rec = s.do(http.MethodPost, "/api/v1/batch/payments", s.admin.ID, "", map[string]any{"date": "03/01/2026"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/api/v1/batch/payments", s.admin.ID, "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSettings(t *testing.T) {
	s := newServer(t, nil, nil)

	rec := s.do(http.MethodPut, "/api/v1/settings", s.client.ID, "", map[string]any{"savings_rate": "4"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodPut, "/api/v1/settings", s.admin.ID, "", map[string]any{
		"investment_fee": map[string]string{"amount": "2.5", "currency": "EUR"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(http.MethodGet, "/api/v1/settings", s.client.ID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"savings_rate":"3.65","investment_fee":{"amount":"2.50","currency":"EUR"}}`, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	s := newServer(t, nil, nil)
	s.do(http.MethodGet, "/health", uuid.Nil, "", nil)

	rec := s.do(http.MethodGet, "/metrics", uuid.Nil, "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ledger_http_requests_total")
}
