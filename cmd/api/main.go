package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/punchamoorthee/bankcore/internal/api"
	"github.com/punchamoorthee/bankcore/internal/config"
	"github.com/punchamoorthee/bankcore/internal/domain"
	"github.com/punchamoorthee/bankcore/internal/logging"
	"github.com/punchamoorthee/bankcore/internal/money"
	"github.com/punchamoorthee/bankcore/internal/service"
	"github.com/punchamoorthee/bankcore/internal/store"
)

// backend is the storage a server runs on.
type backend struct {
	uow    service.UnitOfWork
	keys   api.IdempotencyStore
	health api.HealthProbe
	close  func()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Logging)

	ctx := context.Background()
	b, err := openBackend(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open store", "driver", cfg.StoreDriver, "error", err)
		os.Exit(1)
	}
	defer b.close()

	ledger := service.NewLedgerService(b.uow, logger)
	handler := api.NewHandler(ledger, b.keys, b.health, logger)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "port", cfg.Port, "env", cfg.Env, "store", cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			logger.Error("server stopped unexpectedly", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}

func openBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*backend, error) {
	if cfg.StoreDriver == config.DriverMemory {
		mem := store.NewMemory(cfg.Bank.SavingsRate, cfg.Bank.InvestmentFee)
		seedDemo(mem, cfg.Bank.BaseCurrency, logger)
		return &backend{uow: mem, keys: store.NewMemoryIdempotency(), close: func() {}}, nil
	}

	pg, err := store.NewPostgres(ctx, cfg.DBSource, logger)
	if err != nil {
		return nil, err
	}
	if err := pg.Migrate(ctx); err != nil {
		pg.Close()
		return nil, err
	}
	if err := pg.SeedSettings(ctx, cfg.Bank.SavingsRate, cfg.Bank.InvestmentFee); err != nil {
		pg.Close()
		return nil, err
	}
	return &backend{uow: pg, keys: pg, health: pg.Ping, close: pg.Close}, nil
}

// seedDemo gives a memory-backed server users and a stock to work with.
func seedDemo(mem *store.Memory, currency money.Currency, logger *slog.Logger) {
	users := []domain.User{
		{ID: uuid.New(), Email: "admin@bank.local", FullName: "Bank Admin", Role: domain.RoleAdmin},
		{ID: uuid.New(), Email: "advisor@bank.local", FullName: "Credit Advisor", Role: domain.RoleAdvisor},
		{ID: uuid.New(), Email: "client@bank.local", FullName: "Demo Client", Role: domain.RoleClient},
	}
	for _, u := range users {
		mem.AddUser(u)
		logger.Info("demo user", "user_id", u.ID, "role", u.Role)
	}
	stock := domain.Stock{ID: uuid.New(), Symbol: "BANK", Name: "Bank Index", Price: money.MustNew("25.00", currency), Tradeable: true}
	mem.AddStock(stock)
	logger.Info("demo stock", "stock_id", stock.ID, "symbol", stock.Symbol, "price", stock.Price.String())
}
