package idempotency_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cschwartz85032/loanserve-sub010/internal/domain"
	"github.com/cschwartz85032/loanserve-sub010/internal/idempotency"
)

// fakeStore is an in-memory Store for exercising Wrapper without Postgres.
type fakeStore struct {
	mu      sync.Mutex
	records map[string]*domain.IdempotencyRecord
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string]*domain.IdempotencyRecord)}
}

func (s *fakeStore) key(handler, key string) string { return handler + "/" + key }

func (s *fakeStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (s *fakeStore) Lookup(ctx context.Context, handler, key string) (*domain.IdempotencyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[s.key(handler, key)]
	if !ok {
		return nil, idempotency.ErrNotFound
	}

	return rec, nil
}

func (s *fakeStore) Begin(ctx context.Context, handler, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := s.key(handler, key)
	if _, exists := s.records[k]; exists {
		return assertAlreadyExistsErr
	}

	s.records[k] = &domain.IdempotencyRecord{
		HandlerName: handler, Key: key, ResultState: idempotency.StateInFlight, CreatedAt: time.Now(),
	}

	return nil
}

func (s *fakeStore) Complete(ctx context.Context, handler, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[s.key(handler, key)].ResultState = idempotency.StateDone

	return nil
}

var assertAlreadyExistsErr = &alreadyExistsErr{}

type alreadyExistsErr struct{}

func (*alreadyExistsErr) Error() string { return "record already exists" }

func TestWrapper_runsFnExactlyOnce(t *testing.T) {
	store := newFakeStore()
	w := idempotency.NewWrapper(store)

	calls := 0
	fn := func(ctx context.Context) error { calls++; return nil }

	require.NoError(t, w.Wrap(context.Background(), "handler-a", "key-1", fn))
	require.NoError(t, w.Wrap(context.Background(), "handler-a", "key-1", fn))

	assert.Equal(t, 1, calls)
}

func TestWrapper_distinctKeysRunIndependently(t *testing.T) {
	store := newFakeStore()
	w := idempotency.NewWrapper(store)

	calls := 0
	fn := func(ctx context.Context) error { calls++; return nil }

	require.NoError(t, w.Wrap(context.Background(), "handler-a", "key-1", fn))
	require.NoError(t, w.Wrap(context.Background(), "handler-a", "key-2", fn))

	assert.Equal(t, 2, calls)
}

func TestWrapper_inFlightRecordForcesRedelivery(t *testing.T) {
	store := newFakeStore()
	require.NoError(t, store.Begin(context.Background(), "handler-a", "key-1"))

	w := idempotency.NewWrapper(store)

	err := w.Wrap(context.Background(), "handler-a", "key-1", func(ctx context.Context) error {
		t.Fatal("fn must not run while a record is in flight")
		return nil
	})

	require.Error(t, err)
}

func TestWrapper_fnErrorLeavesNoDoneRecord(t *testing.T) {
	store := newFakeStore()
	w := idempotency.NewWrapper(store)

	boom := &alreadyExistsErr{}

	err := w.Wrap(context.Background(), "handler-a", "key-1", func(ctx context.Context) error {
		return boom
	})

	require.Error(t, err)

	rec, lookupErr := store.Lookup(context.Background(), "handler-a", "key-1")
	require.NoError(t, lookupErr)
	assert.Equal(t, idempotency.StateInFlight, rec.ResultState)
}
