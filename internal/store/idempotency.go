package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
)

// IdempotencyRecord is the stored outcome of a money-moving request.
type IdempotencyRecord struct {
	Key            string
	RequestHash    string
	Completed      bool
	ResponseStatus int
	ResponseBody   json.RawMessage
}

// Reserve claims key for a request with the given body hash. A completed key with the
// same hash returns its record for replay; a key still in progress returns
// ErrIdempotencyInProgress and a different hash returns ErrIdempotencyMismatch. A nil
// record means the caller now owns the key.
func (p *Postgres) Reserve(ctx context.Context, key, requestHash string) (*IdempotencyRecord, error) {
	var (
		rec    IdempotencyRecord
		status string
		code   *int32
	)
	err := p.db.QueryRow(ctx,
		"SELECT key, request_hash, status, response_status, response_body FROM idempotency_keys WHERE key = $1",
		key,
	).Scan(&rec.Key, &rec.RequestHash, &status, &code, &rec.ResponseBody)
	switch {
	case err == nil:
		if rec.RequestHash != requestHash {
			return nil, ErrIdempotencyMismatch
		}
		if status != "completed" || code == nil {
			return nil, ErrIdempotencyInProgress
		}
		rec.Completed = true
		rec.ResponseStatus = int(*code)
		return &rec, nil
	case !errors.Is(err, pgx.ErrNoRows):
		return nil, fmt.Errorf("idempotency query failed: %w", err)
	}

	_, err = p.db.Exec(ctx,
		"INSERT INTO idempotency_keys (key, request_hash, status) VALUES ($1, $2, 'in_progress')",
		key, requestHash,
	)
	if _, dup := isUniqueViolation(err); dup {
		return nil, ErrIdempotencyInProgress
	}
	if err != nil {
		return nil, fmt.Errorf("key reservation failed: %w", err)
	}
	return nil, nil
}

// Complete stores the response a reserved key replays from now on.
func (p *Postgres) Complete(ctx context.Context, key string, status int, body []byte) error {
	_, err := p.db.Exec(ctx,
		"UPDATE idempotency_keys SET status = 'completed', response_status = $1, response_body = $2 WHERE key = $3",
		status, body, key,
	)
	if err != nil {
		return fmt.Errorf("idempotency update failed: %w", err)
	}
	return nil
}

// Release drops an in-progress reservation so the client may retry.
func (p *Postgres) Release(ctx context.Context, key string) error {
	_, err := p.db.Exec(ctx, "DELETE FROM idempotency_keys WHERE key = $1 AND status = 'in_progress'", key)
	if err != nil {
		return fmt.Errorf("idempotency release failed: %w", err)
	}
	return nil
}

// MemoryIdempotency keeps keys for the lifetime of the process.
type MemoryIdempotency struct {
	mu   sync.Mutex
	keys map[string]*IdempotencyRecord
}

func NewMemoryIdempotency() *MemoryIdempotency {
	return &MemoryIdempotency{keys: map[string]*IdempotencyRecord{}}
}

func (m *MemoryIdempotency) Reserve(_ context.Context, key, requestHash string) (*IdempotencyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.keys[key]
	if !ok {
		m.keys[key] = &IdempotencyRecord{Key: key, RequestHash: requestHash}
		return nil, nil
	}
	if rec.RequestHash != requestHash {
		return nil, ErrIdempotencyMismatch
	}
	if !rec.Completed {
		return nil, ErrIdempotencyInProgress
	}
	replay := *rec
	return &replay, nil
}

func (m *MemoryIdempotency) Complete(_ context.Context, key string, status int, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.keys[key]
	if !ok {
		return fmt.Errorf("idempotency key %q not reserved", key)
	}
	rec.Completed = true
	rec.ResponseStatus = status
	rec.ResponseBody = append(json.RawMessage(nil), body...)
	return nil
}

func (m *MemoryIdempotency) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec, ok := m.keys[key]; ok && !rec.Completed {
		delete(m.keys, key)
	}
	return nil
}
