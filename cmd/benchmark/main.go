package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Config holds the benchmark settings
var (
	targetURL    string
	concurrency  int
	duration     time.Duration
	workload     string
	operation    string
	manifestPath string
	amount       string
)

// Metrics
var (
	totalRequests uint64
	success201    uint64 // Created
	replays       uint64 // Idempotent replays
	fail409       uint64 // Conflicts (in-flight keys)
	fail422       uint64 // Business rejections, e.g. insufficient balance
	failOther     uint64
)

type account struct {
	UserID    uuid.UUID `json:"user_id"`
	AccountID uuid.UUID `json:"account_id"`
}

func init() {
	flag.StringVar(&targetURL, "url", "http://localhost:8080", "API Base URL")
	flag.IntVar(&concurrency, "workers", 10, "Number of concurrent workers")
	flag.DurationVar(&duration, "duration", 30*time.Second, "Test duration")
	flag.StringVar(&workload, "workload", "uniform", "Workload type: uniform | hotspot")
	flag.StringVar(&operation, "op", "transfer", "Operation: transfer | withdraw")
	flag.StringVar(&manifestPath, "manifest", "accounts.json", "Account manifest written by the seeder")
	flag.StringVar(&amount, "amount", "1.00", "Amount moved per request")
}

func main() {
	flag.Parse()
	accounts, err := loadManifest(manifestPath)
	if err != nil {
		log.Fatalf("Unable to load manifest: %v", err)
	}
	if len(accounts) < 2 {
		log.Fatalf("Manifest needs at least 2 accounts, has %d", len(accounts))
	}
	log.Printf("Starting Benchmark: %s %s | Workers: %d | Duration: %s | Accounts: %d", workload, operation, concurrency, duration, len(accounts))

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(concurrency)

	for i := 0; i < concurrency; i++ {
		go worker(&wg, start, accounts)
	}

	wg.Wait()
	printResults(time.Since(start))
}

func loadManifest(path string) ([]account, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var accounts []account
	if err := json.Unmarshal(raw, &accounts); err != nil {
		return nil, err
	}
	return accounts, nil
}

func worker(wg *sync.WaitGroup, start time.Time, accounts []account) {
	defer wg.Done()
	client := &http.Client{Timeout: 5 * time.Second}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	for time.Since(start) < duration {
		from, to := pickAccounts(rng, accounts)

		path, payload := "/api/v1/transfers", map[string]any{
			"from_account_id": from.AccountID,
			"to_account_id":   to.AccountID,
			"amount":          amount,
		}
		if operation == "withdraw" {
			path, payload = "/api/v1/withdrawals", map[string]any{
				"account_id": from.AccountID,
				"amount":     amount,
			}
		}
		body, _ := json.Marshal(payload)

		req, _ := http.NewRequest(http.MethodPost, targetURL+path, bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-User-ID", from.UserID.String())
		req.Header.Set("Idempotency-Key", uuid.NewString())

		resp, err := client.Do(req)
		if err != nil {
			atomic.AddUint64(&failOther, 1)
			continue
		}

		atomic.AddUint64(&totalRequests, 1)
		switch {
		case resp.Header.Get("Idempotent-Replayed") == "true":
			atomic.AddUint64(&replays, 1)
		case resp.StatusCode == http.StatusCreated:
			atomic.AddUint64(&success201, 1)
		case resp.StatusCode == http.StatusConflict:
			atomic.AddUint64(&fail409, 1)
		case resp.StatusCode == http.StatusUnprocessableEntity:
			atomic.AddUint64(&fail422, 1)
		default:
			atomic.AddUint64(&failOther, 1)
		}
		resp.Body.Close()
	}
}

func pickAccounts(rng *rand.Rand, accounts []account) (account, account) {
	if workload == "hotspot" {
		// Hotspot: 90% of traffic goes to the first two accounts
		if rng.Float32() < 0.90 {
			if rng.Float32() < 0.5 {
				return accounts[0], accounts[1]
			}
			return accounts[1], accounts[0]
		}
	}

	a := rng.Intn(len(accounts))
	b := rng.Intn(len(accounts))
	for a == b {
		b = rng.Intn(len(accounts))
	}
	return accounts[a], accounts[b]
}

func printResults(d time.Duration) {
	total := atomic.LoadUint64(&totalRequests)
	s201 := atomic.LoadUint64(&success201)
	rep := atomic.LoadUint64(&replays)
	f409 := atomic.LoadUint64(&fail409)
	f422 := atomic.LoadUint64(&fail422)
	fErr := atomic.LoadUint64(&failOther)

	tps := float64(total) / d.Seconds()
	var rejectRate float64
	if total > 0 {
		rejectRate = float64(f409+f422) / float64(total) * 100
	}

	results := map[string]any{
		"workload":        workload,
		"operation":       operation,
		"duration_sec":    d.Seconds(),
		"total_requests":  total,
		"throughput_tps":  tps,
		"success_created": s201,
		"success_replay":  rep,
		"conflicts":       f409,
		"rejections":      f422,
		"reject_rate_pct": rejectRate,
		"errors":          fErr,
	}

	// Print JSON for the python plotter to consume
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(results)

	filename := fmt.Sprintf("results_%s_%s.json", workload, operation)
	file, err := os.Create(filename)
	if err != nil {
		log.Printf("Unable to save results: %v", err)
		return
	}
	defer file.Close()
	json.NewEncoder(file).Encode(results)
}
