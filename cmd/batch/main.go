package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/punchamoorthee/bankcore/internal/config"
	"github.com/punchamoorthee/bankcore/internal/logging"
	"github.com/punchamoorthee/bankcore/internal/service"
	"github.com/punchamoorthee/bankcore/internal/store"
)

const (
	jobInterest = "interest"
	jobPayments = "payments"
)

// batch runs one scheduled job and exits; cron or a k8s CronJob triggers it.
func main() {
	var (
		job  = flag.String("job", "", "Job to run: interest | payments")
		date = flag.String("date", "", "Business date YYYY-MM-DD (default today, UTC)")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Logging)

	on := time.Now().UTC()
	if *date != "" {
		on, err = time.Parse("2006-01-02", *date)
		if err != nil {
			logger.Error("invalid -date", "value", *date, "error", err)
			os.Exit(2)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res, err := run(ctx, cfg, logger, *job, on)
	if err != nil {
		logger.Error("batch aborted", "job", *job, "error", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(res)
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, job string, on time.Time) (service.BatchResult, error) {
	if job != jobInterest && job != jobPayments {
		return service.BatchResult{}, fmt.Errorf("unknown job %q: want %s or %s", job, jobInterest, jobPayments)
	}
	if cfg.StoreDriver != config.DriverPostgres {
		return service.BatchResult{}, fmt.Errorf("batch jobs need STORE_DRIVER=%s", config.DriverPostgres)
	}

	pg, err := store.NewPostgres(ctx, cfg.DBSource, logger)
	if err != nil {
		return service.BatchResult{}, err
	}
	defer pg.Close()

	ledger := service.NewLedgerService(pg, logger)
	logger.Info("batch starting", "job", job, "date", on.Format("2006-01-02"))

	if job == jobPayments {
		return ledger.ProcessMonthlyPayments(ctx, on)
	}
	settings, err := ledger.CurrentSettings(ctx)
	if err != nil {
		return service.BatchResult{}, err
	}
	return ledger.ApplyDailyInterest(ctx, service.InterestPolicy{RatePercent: settings.SavingsRate, On: on})
}
