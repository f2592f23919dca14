package service

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeSuccess  = "success"
	outcomeRejected = "rejected"
	outcomeError    = "error"
)

var (
	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_operations_total",
		Help: "Ledger operations, labeled by outcome",
	}, []string{"operation", "outcome"})

	operationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_operation_duration_seconds",
		Help:    "Latency of ledger operations including storage round trips",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 5},
	}, []string{"operation"})

	batchItemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_batch_items_total",
		Help: "Entities visited by batch jobs, labeled by outcome",
	}, []string{"batch", "outcome"})
)

func observe(op string, start time.Time, outcome string) {
	operationsTotal.WithLabelValues(op, outcome).Inc()
	operationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func observeBatch(batch string, res BatchResult) {
	batchItemsTotal.WithLabelValues(batch, "processed").Add(float64(res.Processed))
	batchItemsTotal.WithLabelValues(batch, "skipped").Add(float64(res.Skipped))
	batchItemsTotal.WithLabelValues(batch, "failed").Add(float64(res.Failed))
}
