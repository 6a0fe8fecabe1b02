package kafka

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// ---------------------------------------------------------------------------
// MemoryIdempotencyStore tests
// ---------------------------------------------------------------------------

func TestMemoryIdempotencyStore_AddAndContains(t *testing.T) {
	store := NewMemoryIdempotencyStore(1 * time.Minute)
	ctx := context.Background()

	if err := store.Add(ctx, "evt-1"); err != nil {
		t.Fatalf("Add() returned error: %v", err)
	}

	got, err := store.Contains(ctx, "evt-1")
	if err != nil {
		t.Fatalf("Contains() returned error: %v", err)
	}
	if !got {
		t.Error("Contains(evt-1) = false, want true after Add")
	}
}

func TestMemoryIdempotencyStore_ContainsUnknown(t *testing.T) {
	store := NewMemoryIdempotencyStore(1 * time.Minute)

	got, err := store.Contains(context.Background(), "unknown-id")
	if err != nil {
		t.Fatalf("Contains() returned error: %v", err)
	}
	if got {
		t.Error("Contains(unknown-id) = true, want false for unknown ID")
	}
}

func TestMemoryIdempotencyStore_Expiry(t *testing.T) {
	store := NewMemoryIdempotencyStore(10 * time.Millisecond)
	ctx := context.Background()

	if err := store.Add(ctx, "evt-expire"); err != nil {
		t.Fatalf("Add() returned error: %v", err)
	}

	got, err := store.Contains(ctx, "evt-expire")
	if err != nil {
		t.Fatalf("Contains() returned error: %v", err)
	}
	if !got {
		t.Error("Contains(evt-expire) = false immediately after Add, want true")
	}

	time.Sleep(20 * time.Millisecond)

	got, err = store.Contains(ctx, "evt-expire")
	if err != nil {
		t.Fatalf("Contains() returned error: %v", err)
	}
	if got {
		t.Error("Contains(evt-expire) = true after TTL expiry, want false")
	}
}

func TestMemoryIdempotencyStore_Len(t *testing.T) {
	store := NewMemoryIdempotencyStore(1 * time.Minute)
	ctx := context.Background()

	if store.Len() != 0 {
		t.Errorf("Len() = %d for new store, want 0", store.Len())
	}

	_ = store.Add(ctx, "a")
	_ = store.Add(ctx, "b")
	_ = store.Add(ctx, "a")

	if store.Len() != 2 {
		t.Errorf("Len() = %d after adds a, b, a, want 2", store.Len())
	}
}

func TestMemoryIdempotencyStore_ConcurrentAccess(t *testing.T) {
	store := NewMemoryIdempotencyStore(1 * time.Minute)
	ctx := context.Background()

	const goroutines = 50
	var wg sync.WaitGroup
	wg.Add(goroutines)

	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			_ = store.Add(ctx, "evt-concurrent")
			_, _ = store.Contains(ctx, "evt-concurrent")
		}()
	}

	wg.Wait()

	if store.Len() != 1 {
		t.Errorf("Len() = %d after concurrent adds of same key, want 1", store.Len())
	}
}

// ---------------------------------------------------------------------------
// IdempotentHandler tests
// ---------------------------------------------------------------------------

// testEvent constructs an Event directly rather than through NewEvent, which
// generates a fresh uuid per call.
func testEvent(eventID string) *Event {
	return &Event{
		EventID:     eventID,
		Type:        "product.created",
		AggregateID: "agg-123",
	}
}

// failingStore simulates an unreachable idempotency backend.
type failingStore struct{}

func (failingStore) Contains(context.Context, string) (bool, error) {
	return false, errors.New("store unreachable")
}
func (failingStore) Add(context.Context, string) error {
	return errors.New("store unreachable")
}

func TestIdempotentHandler_FirstCall_ProcessesMessage(t *testing.T) {
	store := NewMemoryIdempotencyStore(1 * time.Minute)

	var callCount int32
	inner := func(ctx context.Context, event *Event) error {
		atomic.AddInt32(&callCount, 1)
		return nil
	}

	handler := IdempotentHandler(store, inner, testLogger())

	if err := handler(context.Background(), testEvent("evt-first")); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}

	if n := atomic.LoadInt32(&callCount); n != 1 {
		t.Errorf("inner handler called %d times, want 1", n)
	}
}

func TestIdempotentHandler_DuplicateCall_SkipsAndCounts(t *testing.T) {
	store := NewMemoryIdempotencyStore(1 * time.Minute)

	var callCount int32
	inner := func(ctx context.Context, event *Event) error {
		atomic.AddInt32(&callCount, 1)
		return nil
	}

	handler := IdempotentHandler(store, inner, testLogger())
	event := testEvent("evt-dup")

	before := testutil.ToFloat64(ConsumerMessagesDuplicate.WithLabelValues(event.Type))

	if err := handler(context.Background(), event); err != nil {
		t.Fatalf("first call returned error: %v", err)
	}
	if err := handler(context.Background(), event); err != nil {
		t.Fatalf("second call returned error: %v", err)
	}

	if n := atomic.LoadInt32(&callCount); n != 1 {
		t.Errorf("inner handler called %d times, want 1 (second call should be skipped)", n)
	}

	after := testutil.ToFloat64(ConsumerMessagesDuplicate.WithLabelValues(event.Type))
	if after-before != 1 {
		t.Errorf("duplicate counter increased by %v, want 1", after-before)
	}
}

func TestIdempotentHandler_EmptyEventID_PassesThrough(t *testing.T) {
	store := NewMemoryIdempotencyStore(1 * time.Minute)

	var callCount int32
	inner := func(ctx context.Context, event *Event) error {
		atomic.AddInt32(&callCount, 1)
		return nil
	}

	handler := IdempotentHandler(store, inner, testLogger())

	event := testEvent("")
	for i := 0; i < 3; i++ {
		if err := handler(context.Background(), event); err != nil {
			t.Fatalf("call %d returned error: %v", i+1, err)
		}
	}

	if n := atomic.LoadInt32(&callCount); n != 3 {
		t.Errorf("inner handler called %d times, want 3 (empty EventID should always pass through)", n)
	}
}

func TestIdempotentHandler_HandlerError_DoesNotMarkProcessed(t *testing.T) {
	store := NewMemoryIdempotencyStore(1 * time.Minute)

	handlerErr := errors.New("processing failed")
	var callCount int32
	inner := func(ctx context.Context, event *Event) error {
		atomic.AddInt32(&callCount, 1)
		return handlerErr
	}

	handler := IdempotentHandler(store, inner, testLogger())
	event := testEvent("evt-err")

	if err := handler(context.Background(), event); !errors.Is(err, handlerErr) {
		t.Fatalf("first call error = %v, want %v", err, handlerErr)
	}

	// The failed event was not recorded, so a redelivery must be processed.
	if err := handler(context.Background(), event); !errors.Is(err, handlerErr) {
		t.Fatalf("second call error = %v, want %v", err, handlerErr)
	}

	if n := atomic.LoadInt32(&callCount); n != 2 {
		t.Errorf("inner handler called %d times, want 2 (failed event must be retried)", n)
	}
}

func TestIdempotentHandler_StoreFailure_ProcessesAnyway(t *testing.T) {
	var callCount int32
	inner := func(ctx context.Context, event *Event) error {
		atomic.AddInt32(&callCount, 1)
		return nil
	}

	handler := IdempotentHandler(failingStore{}, inner, testLogger())

	// A broken store must degrade to at-least-once, never drop messages.
	if err := handler(context.Background(), testEvent("evt-degraded")); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}

	if n := atomic.LoadInt32(&callCount); n != 1 {
		t.Errorf("inner handler called %d times, want 1", n)
	}
}
