package api

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/punchamoorthee/bankcore/internal/domain"
	"github.com/punchamoorthee/bankcore/internal/models"
	"github.com/punchamoorthee/bankcore/internal/service"
	"github.com/punchamoorthee/bankcore/internal/store"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "endpoint"})

	idempotentReplays = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_http_idempotent_replays_total",
		Help: "Responses served from a stored idempotency record",
	})
)

const (
	headerUserID         = "X-User-ID"
	headerIdempotencyKey = "Idempotency-Key"
	headerReplayed       = "Idempotent-Replayed"
)

// IdempotencyStore remembers the outcome of money-moving requests by client key.
type IdempotencyStore interface {
	Reserve(ctx context.Context, key, requestHash string) (*store.IdempotencyRecord, error)
	Complete(ctx context.Context, key string, status int, body []byte) error
	Release(ctx context.Context, key string) error
}

// HealthProbe reports whether the backing store is reachable.
type HealthProbe func(ctx context.Context) error

type Handler struct {
	ledger *service.LedgerService
	keys   IdempotencyStore
	health HealthProbe
	logger *slog.Logger
	nowFn  func() time.Time
}

func NewHandler(ledger *service.LedgerService, keys IdempotencyStore, health HealthProbe, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		ledger: ledger,
		keys:   keys,
		health: health,
		logger: logger,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

// Router wires every route under /api/v1 plus /health and /metrics.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(h.instrument)
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", h.HealthCheckHandler).Methods(http.MethodGet)

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/accounts", h.CreateAccountHandler).Methods(http.MethodPost)
	v1.HandleFunc("/accounts", h.ListAccountsHandler).Methods(http.MethodGet)
	v1.HandleFunc("/accounts/{id}", h.GetAccountHandler).Methods(http.MethodGet)
	v1.HandleFunc("/accounts/{id}", h.CloseAccountHandler).Methods(http.MethodDelete)
	v1.HandleFunc("/accounts/{id}/transactions", h.AccountHistoryHandler).Methods(http.MethodGet)

	v1.HandleFunc("/transfers", h.idempotent(h.transfer)).Methods(http.MethodPost)
	v1.HandleFunc("/deposits", h.idempotent(h.deposit)).Methods(http.MethodPost)
	v1.HandleFunc("/withdrawals", h.idempotent(h.withdraw)).Methods(http.MethodPost)
	v1.HandleFunc("/transactions/pending", h.PendingTransactionsHandler).Methods(http.MethodGet)
	v1.HandleFunc("/transactions/{id}", h.GetTransactionHandler).Methods(http.MethodGet)

	v1.HandleFunc("/credits", h.idempotent(h.grantCredit)).Methods(http.MethodPost)
	v1.HandleFunc("/credits", h.ListCreditsHandler).Methods(http.MethodGet)
	v1.HandleFunc("/credits/{id}", h.GetCreditHandler).Methods(http.MethodGet)

	v1.HandleFunc("/investments/orders", h.idempotent(h.placeOrder)).Methods(http.MethodPost)
	v1.HandleFunc("/investments/orders/{id}/cancel", h.idempotent(h.cancelOrder)).Methods(http.MethodPost)
	v1.HandleFunc("/investments/holdings/{stockId}", h.HoldingsHandler).Methods(http.MethodGet)

	v1.HandleFunc("/batch/interest", h.InterestBatchHandler).Methods(http.MethodPost)
	v1.HandleFunc("/batch/payments", h.PaymentsBatchHandler).Methods(http.MethodPost)
	v1.HandleFunc("/settings", h.GetSettingsHandler).Methods(http.MethodGet)
	v1.HandleFunc("/settings", h.UpdateSettingsHandler).Methods(http.MethodPut)
	return r
}

func (h *Handler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.health(ctx); err != nil {
			h.logger.Error("health probe failed", "error", err)
			respondWithJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()})
			return
		}
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// instrument records request metrics by route template and logs each request.
func (h *Handler) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		endpoint := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				endpoint = tpl
			}
		}
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		httpRequestsTotal.WithLabelValues(r.Method, endpoint, strconv.Itoa(rec.status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, endpoint).Observe(time.Since(start).Seconds())
		h.logger.Debug("request completed",
			"method", r.Method,
			"endpoint", endpoint,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// endpointFunc handles an idempotent POST and returns the status and payload to send.
type endpointFunc func(r *http.Request, userID uuid.UUID, body []byte) (int, any)

// idempotent requires an Idempotency-Key. The first request with a key runs and its
// response is stored; a retry with the same body replays it, a different body is 422
// and a retry while the first is still running is 409. Server errors release the key
// so the client may try again.
func (h *Handler) idempotent(fn endpointFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := h.requireUser(w, r)
		if !ok {
			return
		}
		key := r.Header.Get(headerIdempotencyKey)
		if key == "" {
			respondWithError(w, http.StatusBadRequest, "Missing Idempotency-Key header")
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			respondWithError(w, http.StatusInternalServerError, "Stream read error")
			return
		}
		r.Body = io.NopCloser(bytes.NewBuffer(body))
		reqHash := requestHash(r, userID, body)

		existing, err := h.keys.Reserve(r.Context(), key, reqHash)
		switch {
		case errors.Is(err, store.ErrIdempotencyInProgress):
			respondWithError(w, http.StatusConflict, "Request processing in progress")
			return
		case errors.Is(err, store.ErrIdempotencyMismatch):
			respondWithError(w, http.StatusUnprocessableEntity, "Key reuse with mismatched payload")
			return
		case err != nil:
			h.logger.Error("idempotency reserve failed", "key", key, "error", err)
			respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
			return
		}
		if existing != nil {
			idempotentReplays.Inc()
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set(headerReplayed, "true")
			w.WriteHeader(existing.ResponseStatus)
			_, _ = w.Write(existing.ResponseBody)
			return
		}

		status, payload := fn(r, userID, body)
		encoded, err := json.Marshal(payload)
		if err != nil {
			h.logger.Error("encode response failed", "error", err)
			status, encoded = http.StatusInternalServerError, []byte(`{"error":"Internal Server Error"}`)
		}

		// the outcome is stored even if the client is gone
		ctx := context.WithoutCancel(r.Context())
		if status >= http.StatusInternalServerError {
			if err := h.keys.Release(ctx, key); err != nil {
				h.logger.Warn("idempotency release failed", "key", key, "error", err)
			}
		} else if err := h.keys.Complete(ctx, key, status, encoded); err != nil {
			h.logger.Error("idempotency complete failed", "key", key, "error", err)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write(append(encoded, '\n'))
	}
}

// requestHash binds a key to the caller, the route and the exact body.
func requestHash(r *http.Request, userID uuid.UUID, body []byte) string {
	sum := sha256.New()
	sum.Write([]byte(r.Method + " " + r.URL.Path + " " + userID.String() + "\n"))
	sum.Write(body)
	return hex.EncodeToString(sum.Sum(nil))
}

// requireUser reads the already authenticated caller from X-User-ID.
func (h *Handler) requireUser(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.Header.Get(headerUserID))
	if err != nil || id == uuid.Nil {
		respondWithError(w, http.StatusUnauthorized, "Missing or invalid X-User-ID header")
		return uuid.Nil, false
	}
	return id, true
}

// requireAdmin lets only admin users through to bank-wide operations.
func (h *Handler) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	id, ok := h.requireUser(w, r)
	if !ok {
		return false
	}
	user, err := h.ledger.GetUser(r.Context(), id)
	if err != nil && !errors.Is(err, domain.ErrUserNotFound) {
		h.serverError(w, "load user", err)
		return false
	}
	if err != nil || user.Role != domain.RoleAdmin {
		respondWithError(w, http.StatusForbidden, "Admin role required")
		return false
	}
	return true
}

func pathID(r *http.Request, name string) (uuid.UUID, error) {
	return uuid.Parse(mux.Vars(r)[name])
}

// statusFor maps a business failure to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrAccountNotFound),
		errors.Is(err, domain.ErrTransactionNotFound),
		errors.Is(err, domain.ErrCreditNotFound),
		errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, domain.ErrStockNotFound),
		errors.Is(err, domain.ErrUserNotFound),
		errors.Is(err, domain.ErrNotAccountOwner),
		errors.Is(err, domain.ErrNotOrderOwner):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAdvisorNotAuthorized):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrAccountInactive),
		errors.Is(err, domain.ErrNonZeroBalance),
		errors.Is(err, domain.ErrInvalidTransactionState),
		errors.Is(err, domain.ErrInvalidOrderState),
		errors.Is(err, domain.ErrCreditNotActive),
		errors.Is(err, domain.ErrPaymentAlreadyApplied),
		errors.Is(err, domain.ErrInterestAlreadyDue),
		errors.Is(err, store.ErrDuplicateIBAN):
		return http.StatusConflict
	default:
		return http.StatusUnprocessableEntity
	}
}

// failure renders an error returned by a query: business failures keep their status,
// anything else is logged and hidden behind a 500.
func (h *Handler) failure(op string, err error) (int, models.ErrorResponse) {
	if domain.IsBusinessError(err) || errors.Is(err, store.ErrDuplicateIBAN) {
		return statusFor(err), models.ErrorResponse{Error: err.Error()}
	}
	h.logger.Error(op+" failed", "error", err)
	return http.StatusInternalServerError, models.ErrorResponse{Error: "Internal Server Error"}
}

func (h *Handler) serverError(w http.ResponseWriter, op string, err error) {
	status, body := h.failure(op, err)
	respondWithJSON(w, status, body)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, models.ErrorResponse{Error: message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}
