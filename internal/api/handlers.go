package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/punchamoorthee/bankcore/internal/domain"
	"github.com/punchamoorthee/bankcore/internal/models"
	"github.com/punchamoorthee/bankcore/internal/service"
)

const dateLayout = "2006-01-02"

var malformed = models.ErrorResponse{Error: "Malformed JSON body"}

func decode(body []byte, dst any) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// Accounts

func (h *Handler) CreateAccountHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Stream read error")
		return
	}
	var req models.CreateAccountRequest
	if err := decode(body, &req); err != nil {
		respondWithJSON(w, http.StatusBadRequest, malformed)
		return
	}

	res, err := h.ledger.OpenAccount(r.Context(), service.OpenAccountRequest{
		UserID:       userID,
		Name:         req.Name,
		Type:         req.Type,
		Currency:     req.Currency,
		InterestRate: req.InterestRate,
	})
	if err != nil {
		h.serverError(w, "open account", err)
		return
	}
	if !res.Success {
		respondWithError(w, statusFor(res.Err), res.Reason())
		return
	}
	w.Header().Set("Location", "/api/v1/accounts/"+res.Data.ID().String())
	respondWithJSON(w, http.StatusCreated, res.Data)
}

func (h *Handler) ListAccountsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	var filter *domain.AccountType
	if v := r.URL.Query().Get("type"); v != "" {
		t := domain.AccountType(v)
		if !t.Valid() {
			respondWithError(w, http.StatusBadRequest, "Unknown account type")
			return
		}
		filter = &t
	}
	accounts, err := h.ledger.ListAccounts(r.Context(), userID, filter)
	if err != nil {
		h.serverError(w, "list accounts", err)
		return
	}
	respondWithJSON(w, http.StatusOK, orEmpty(accounts))
}

func (h *Handler) GetAccountHandler(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.userAndPath(w, r, "id")
	if !ok {
		return
	}
	acc, err := h.ledger.GetAccount(r.Context(), userID, id)
	if err != nil {
		h.serverError(w, "get account", err)
		return
	}
	respondWithJSON(w, http.StatusOK, acc)
}

func (h *Handler) CloseAccountHandler(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.userAndPath(w, r, "id")
	if !ok {
		return
	}
	res, err := h.ledger.CloseAccount(r.Context(), userID, id)
	if err != nil {
		h.serverError(w, "close account", err)
		return
	}
	if !res.Success {
		respondWithError(w, statusFor(res.Err), res.Reason())
		return
	}
	respondWithJSON(w, http.StatusOK, res.Data)
}

func (h *Handler) AccountHistoryHandler(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.userAndPath(w, r, "id")
	if !ok {
		return
	}
	txs, err := h.ledger.AccountHistory(r.Context(), userID, id)
	if err != nil {
		h.serverError(w, "account history", err)
		return
	}
	respondWithJSON(w, http.StatusOK, orEmpty(txs))
}

// Money movements

func (h *Handler) transfer(r *http.Request, userID uuid.UUID, body []byte) (int, any) {
	var req models.TransferRequest
	if err := decode(body, &req); err != nil {
		return http.StatusBadRequest, malformed
	}
	res, err := h.ledger.TransferMoney(r.Context(), service.TransferRequest{
		UserID:               userID,
		SourceAccountID:      req.FromAccountID,
		DestinationAccountID: req.ToAccountID,
		Amount:               req.Amount,
		Currency:             req.Currency,
		Description:          req.Description,
	})
	return h.txOutcome("transfer", res, err)
}

func (h *Handler) deposit(r *http.Request, userID uuid.UUID, body []byte) (int, any) {
	req, ok := cashRequest(userID, body)
	if !ok {
		return http.StatusBadRequest, malformed
	}
	res, err := h.ledger.DepositMoney(r.Context(), req)
	return h.txOutcome("deposit", res, err)
}

func (h *Handler) withdraw(r *http.Request, userID uuid.UUID, body []byte) (int, any) {
	req, ok := cashRequest(userID, body)
	if !ok {
		return http.StatusBadRequest, malformed
	}
	res, err := h.ledger.WithdrawMoney(r.Context(), req)
	return h.txOutcome("withdraw", res, err)
}

func cashRequest(userID uuid.UUID, body []byte) (service.CashRequest, bool) {
	var req models.CashRequest
	if err := decode(body, &req); err != nil {
		return service.CashRequest{}, false
	}
	return service.CashRequest{
		UserID:      userID,
		AccountID:   req.AccountID,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Description: req.Description,
	}, true
}

// txOutcome renders a money movement; a rejected movement carries its failed
// transaction when one was recorded.
func (h *Handler) txOutcome(op string, res service.Result[*domain.Transaction], err error) (int, any) {
	if err != nil {
		return h.failure(op, err)
	}
	if !res.Success {
		return statusFor(res.Err), models.ErrorResponse{Error: res.Reason(), Transaction: res.Data}
	}
	return http.StatusCreated, res.Data
}

func (h *Handler) GetTransactionHandler(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.userAndPath(w, r, "id")
	if !ok {
		return
	}
	tx, err := h.ledger.GetTransaction(r.Context(), userID, id)
	if err != nil {
		h.serverError(w, "get transaction", err)
		return
	}
	respondWithJSON(w, http.StatusOK, tx)
}

// PendingTransactionsHandler lists transactions interrupted between their two commits.
func (h *Handler) PendingTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	txs, err := h.ledger.ListPendingTransactions(r.Context())
	if err != nil {
		h.serverError(w, "list pending transactions", err)
		return
	}
	respondWithJSON(w, http.StatusOK, orEmpty(txs))
}

// Credits

func (h *Handler) grantCredit(r *http.Request, advisorID uuid.UUID, body []byte) (int, any) {
	var req models.GrantCreditRequest
	if err := decode(body, &req); err != nil {
		return http.StatusBadRequest, malformed
	}
	res, err := h.ledger.GrantCredit(r.Context(), service.GrantCreditRequest{
		UserID:             req.BorrowerID,
		AccountID:          req.AccountID,
		AdvisorID:          advisorID,
		Principal:          req.Principal,
		AnnualInterestRate: req.AnnualInterestRate,
		InsuranceRate:      req.InsuranceRate,
		DurationMonths:     req.DurationMonths,
	})
	if err != nil {
		return h.failure("grant credit", err)
	}
	if !res.Success {
		return statusFor(res.Err), models.ErrorResponse{Error: res.Reason()}
	}
	return http.StatusCreated, res.Data
}

func (h *Handler) ListCreditsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	credits, err := h.ledger.ListCredits(r.Context(), userID)
	if err != nil {
		h.serverError(w, "list credits", err)
		return
	}
	respondWithJSON(w, http.StatusOK, orEmpty(credits))
}

func (h *Handler) GetCreditHandler(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.userAndPath(w, r, "id")
	if !ok {
		return
	}
	credit, err := h.ledger.GetCredit(r.Context(), userID, id)
	if err != nil {
		h.serverError(w, "get credit", err)
		return
	}
	respondWithJSON(w, http.StatusOK, credit)
}

// Investments

func (h *Handler) placeOrder(r *http.Request, userID uuid.UUID, body []byte) (int, any) {
	var req models.PlaceOrderRequest
	if err := decode(body, &req); err != nil {
		return http.StatusBadRequest, malformed
	}
	settings, err := h.ledger.CurrentSettings(r.Context())
	if err != nil {
		return h.failure("load settings", err)
	}
	res, err := h.ledger.PlaceInvestmentOrder(r.Context(), service.PlaceOrderRequest{
		UserID:    userID,
		AccountID: req.AccountID,
		StockID:   req.StockID,
		Side:      req.Side,
		Quantity:  req.Quantity,
	}, settings.InvestmentFee)
	return h.orderOutcome("place order", http.StatusCreated, res, err)
}

func (h *Handler) cancelOrder(r *http.Request, userID uuid.UUID, _ []byte) (int, any) {
	id, err := pathID(r, "id")
	if err != nil {
		return http.StatusBadRequest, models.ErrorResponse{Error: "Invalid id"}
	}
	res, err := h.ledger.CancelInvestmentOrder(r.Context(), userID, id)
	return h.orderOutcome("cancel order", http.StatusOK, res, err)
}

func (h *Handler) orderOutcome(op string, ok int, res service.Result[*domain.InvestmentOrder], err error) (int, any) {
	if err != nil {
		return h.failure(op, err)
	}
	if !res.Success {
		return statusFor(res.Err), models.ErrorResponse{Error: res.Reason(), Order: res.Data}
	}
	return ok, res.Data
}

func (h *Handler) HoldingsHandler(w http.ResponseWriter, r *http.Request) {
	userID, stockID, ok := h.userAndPath(w, r, "stockId")
	if !ok {
		return
	}
	qty, err := h.ledger.Holdings(r.Context(), userID, stockID)
	if err != nil {
		h.serverError(w, "holdings", err)
		return
	}
	respondWithJSON(w, http.StatusOK, models.HoldingsResponse{StockID: stockID, Quantity: qty})
}

// Batches and settings

func (h *Handler) InterestBatchHandler(w http.ResponseWriter, r *http.Request) {
	req, on, ok := h.batchRequest(w, r)
	if !ok {
		return
	}
	rate := req.RatePercent
	if rate == nil {
		settings, err := h.ledger.CurrentSettings(r.Context())
		if err != nil {
			h.serverError(w, "load settings", err)
			return
		}
		rate = &settings.SavingsRate
	}
	res, err := h.ledger.ApplyDailyInterest(r.Context(), service.InterestPolicy{RatePercent: *rate, On: on})
	if err != nil {
		h.serverError(w, "interest batch", err)
		return
	}
	respondWithJSON(w, http.StatusOK, res)
}

func (h *Handler) PaymentsBatchHandler(w http.ResponseWriter, r *http.Request) {
	_, on, ok := h.batchRequest(w, r)
	if !ok {
		return
	}
	res, err := h.ledger.ProcessMonthlyPayments(r.Context(), on)
	if err != nil {
		h.serverError(w, "payments batch", err)
		return
	}
	respondWithJSON(w, http.StatusOK, res)
}

// batchRequest admits admins only and resolves the batch date, today when omitted.
func (h *Handler) batchRequest(w http.ResponseWriter, r *http.Request) (models.BatchRequest, time.Time, bool) {
	var req models.BatchRequest
	if !h.requireAdmin(w, r) {
		return req, time.Time{}, false
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Stream read error")
		return req, time.Time{}, false
	}
	if len(bytes.TrimSpace(body)) > 0 {
		if err := decode(body, &req); err != nil {
			respondWithJSON(w, http.StatusBadRequest, malformed)
			return req, time.Time{}, false
		}
	}
	on := h.nowFn()
	if req.Date != "" {
		on, err = time.Parse(dateLayout, req.Date)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return req, time.Time{}, false
		}
	}
	return req, on, true
}

func (h *Handler) GetSettingsHandler(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireUser(w, r); !ok {
		return
	}
	settings, err := h.ledger.CurrentSettings(r.Context())
	if err != nil {
		h.serverError(w, "load settings", err)
		return
	}
	respondWithJSON(w, http.StatusOK, models.SettingsResponse(settings))
}

func (h *Handler) UpdateSettingsHandler(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Stream read error")
		return
	}
	var req models.SettingsRequest
	if err := decode(body, &req); err != nil {
		respondWithJSON(w, http.StatusBadRequest, malformed)
		return
	}
	settings, err := h.ledger.UpdateSettings(r.Context(), req.SavingsRate, req.InvestmentFee)
	if err != nil {
		h.serverError(w, "update settings", err)
		return
	}
	respondWithJSON(w, http.StatusOK, models.SettingsResponse(settings))
}

func (h *Handler) userAndPath(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, uuid.UUID, bool) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	id, err := pathID(r, name)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid id")
		return uuid.Nil, uuid.Nil, false
	}
	return userID, id, true
}

func orEmpty[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
