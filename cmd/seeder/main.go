package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/punchamoorthee/bankcore/internal/config"
	"github.com/punchamoorthee/bankcore/internal/domain"
	"github.com/punchamoorthee/bankcore/internal/logging"
	"github.com/punchamoorthee/bankcore/internal/money"
	"github.com/punchamoorthee/bankcore/internal/store"
)

// ManifestEntry tells the benchmark which user owns which seeded account.
type ManifestEntry struct {
	UserID    uuid.UUID `json:"user_id"`
	AccountID uuid.UUID `json:"account_id"`
}

func main() {
	var (
		totalUsers     = flag.Int("users", 1000, "Number of clients, each with one checking account")
		initialBalance = flag.String("balance", "100.00", "Opening balance of every account")
		manifestPath   = flag.String("manifest", "accounts.json", "Where to write the user/account manifest")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Logging)
	if cfg.StoreDriver != config.DriverPostgres {
		logger.Error("seeder needs STORE_DRIVER=postgres")
		os.Exit(1)
	}

	if err := run(context.Background(), cfg, logger, *totalUsers, *initialBalance, *manifestPath); err != nil {
		logger.Error("seeding failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, totalUsers int, balance, manifestPath string) error {
	pg, err := store.NewPostgres(ctx, cfg.DBSource, logger)
	if err != nil {
		return err
	}
	defer pg.Close()

	logger.Info("seeding database", "users", totalUsers)
	if err := pg.Migrate(ctx); err != nil {
		return err
	}
	if err := pg.SeedSettings(ctx, cfg.Bank.SavingsRate, cfg.Bank.InvestmentFee); err != nil {
		return err
	}

	var count int
	if err := pg.Pool().QueryRow(ctx, "SELECT COUNT(*) FROM accounts").Scan(&count); err != nil {
		return fmt.Errorf("count accounts: %w", err)
	}
	if count >= totalUsers {
		logger.Info("database already seeded, skipping", "accounts", count)
		return nil
	}

	opening, err := money.FromString(balance, cfg.Bank.BaseCurrency)
	if err != nil {
		return err
	}
	data, err := generate(totalUsers, opening)
	if err != nil {
		return err
	}

	// Bulk insert using CopyFrom, parents first
	tables := []struct {
		name    string
		columns []string
		rows    [][]any
	}{
		{"users", []string{"id", "email", "full_name", "role"}, data.users},
		{"stocks", []string{"id", "symbol", "name", "price_cents", "currency", "tradeable"}, data.stocks},
		{"accounts", []string{"id", "user_id", "iban", "name", "type", "balance_cents", "currency", "is_active", "created_at", "updated_at"}, data.accounts},
		{"transactions", []string{"id", "to_account_id", "amount_cents", "currency", "type", "status", "description", "created_at", "updated_at"}, data.transactions},
	}
	for _, t := range tables {
		n, err := pg.Pool().CopyFrom(ctx, pgx.Identifier{t.name}, t.columns, pgx.CopyFromRows(t.rows))
		if err != nil {
			return fmt.Errorf("bulk insert %s: %w", t.name, err)
		}
		logger.Info("seeded", "table", t.name, "rows", n)
	}

	return writeManifest(manifestPath, data.manifest)
}

type seedData struct {
	users        [][]any
	stocks       [][]any
	accounts     [][]any
	transactions [][]any
	manifest     []ManifestEntry
}

// generate builds every row through the domain constructors so seeded data obeys the
// same invariants as live data. Each opening balance is backed by a deposit.
func generate(totalUsers int, opening money.Money) (*seedData, error) {
	d := &seedData{}
	staff := []domain.User{
		{ID: uuid.New(), Email: "admin@bank.local", FullName: "Bank Admin", Role: domain.RoleAdmin},
		{ID: uuid.New(), Email: "advisor@bank.local", FullName: "Credit Advisor", Role: domain.RoleAdvisor},
	}
	for _, u := range staff {
		d.users = append(d.users, []any{u.ID, u.Email, u.FullName, string(u.Role)})
	}

	for i, sym := range []string{"ACME", "GLBX", "INIT"} {
		price := money.MustNew(fmt.Sprintf("%d.50", 10*(i+1)), opening.Currency())
		d.stocks = append(d.stocks, []any{uuid.New(), sym, sym + " Corp", price.Cents(), string(price.Currency()), true})
	}

	seen := make(map[string]bool, totalUsers)
	for i := 0; i < totalUsers; i++ {
		user := domain.User{ID: uuid.New(), Email: fmt.Sprintf("client%05d@bank.local", i), FullName: fmt.Sprintf("Client %d", i), Role: domain.RoleClient}
		d.users = append(d.users, []any{user.ID, user.Email, user.FullName, string(user.Role)})

		iban, err := uniqueIBAN(seen)
		if err != nil {
			return nil, err
		}
		acc, err := domain.NewAccount(domain.NewAccountParams{
			UserID:   user.ID,
			IBAN:     iban,
			Name:     "Checking",
			Type:     domain.AccountChecking,
			Currency: opening.Currency(),
		})
		if err != nil {
			return nil, err
		}
		accID := acc.ID()
		tx, err := domain.NewTransaction(domain.NewTransactionParams{
			Type:        domain.TxDeposit,
			ToAccountID: &accID,
			Amount:      opening,
			Description: "Opening balance",
		})
		if err != nil {
			return nil, err
		}
		if err := acc.Credit(opening); err != nil {
			return nil, err
		}
		if err := tx.Complete(); err != nil {
			return nil, err
		}

		a := acc.Snapshot()
		d.accounts = append(d.accounts, []any{a.ID, a.UserID, a.IBAN, a.Name, string(a.Type), a.Balance.Cents(), string(a.Balance.Currency()), a.IsActive, a.CreatedAt, a.UpdatedAt})
		s := tx.Snapshot()
		d.transactions = append(d.transactions, []any{s.ID, *s.ToAccountID, s.Amount.Cents(), string(s.Amount.Currency()), string(s.Type), string(s.Status), s.Description, s.CreatedAt, s.UpdatedAt})
		d.manifest = append(d.manifest, ManifestEntry{UserID: user.ID, AccountID: acc.ID()})
	}
	return d, nil
}

func uniqueIBAN(seen map[string]bool) (string, error) {
	for {
		iban, err := domain.GenerateIBAN("FR", "30004")
		if err != nil {
			return "", err
		}
		if !seen[iban] {
			seen[iban] = true
			return iban, nil
		}
	}
}

func writeManifest(path string, entries []ManifestEntry) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create manifest: %w", err)
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(entries); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}
