package main

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/punchamoorthee/bankcore/internal/config"
)

func TestRun_RejectsBeforeConnecting(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	now := time.Now()

	_, err := run(context.Background(), &config.Config{StoreDriver: config.DriverPostgres}, logger, "reconcile", now)
	assert.ErrorContains(t, err, "unknown job")

	_, err = run(context.Background(), &config.Config{StoreDriver: config.DriverMemory}, logger, jobInterest, now)
	assert.ErrorContains(t, err, "STORE_DRIVER=postgres")
}
