package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/foodies/internal/domain"
	"github.com/vladislavdragonenkov/foodies/internal/storage/memory"
)

func newRecord(item string) domain.OrderRecord {
	return domain.NewPendingRecord(domain.OrderPayload{"item": item}, "ref-"+item, time.Now())
}

func TestOrderBackend_AddList(t *testing.T) {
	ctx := context.Background()
	backend := memory.NewOrderBackend()

	first, err := backend.Add(ctx, newRecord("pizza"))
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}
	second, err := backend.Add(ctx, newRecord("soup"))
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if first != 1 || second != 2 {
		t.Fatalf("expected ids 1 and 2, got %d and %d", first, second)
	}

	records, err := backend.List(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(records) != 2 || records[0].ID != 1 || records[1].ID != 2 {
		t.Fatalf("unexpected records: %+v", records)
	}

	records[0].Payload["item"] = "mutated"
	again, _ := backend.List(ctx)
	if again[0].Payload["item"] != "pizza" {
		t.Fatal("list must return copies")
	}
}

func TestOrderBackend_MarkSynced(t *testing.T) {
	ctx := context.Background()
	backend := memory.NewOrderBackend()

	id, _ := backend.Add(ctx, newRecord("pizza"))
	if err := backend.MarkSynced(ctx, id); err != nil {
		t.Fatalf("mark synced failed: %v", err)
	}
	pending, _ := backend.ListByStatus(ctx, domain.OrderStatusPending)
	if len(pending) != 0 {
		t.Fatalf("expected no pending records, got %d", len(pending))
	}
	synced, _ := backend.ListByStatus(ctx, domain.OrderStatusSynced)
	if len(synced) != 1 || !synced[0].Synced {
		t.Fatalf("unexpected synced records: %+v", synced)
	}

	if err := backend.MarkSynced(ctx, 42); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
	if _, err := backend.ListByStatus(ctx, domain.OrderStatus("archived")); !errors.Is(err, domain.ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestOrderBackend_FailOnKeepsState(t *testing.T) {
	ctx := context.Background()
	backend := memory.NewOrderBackend()

	_, _ = backend.Add(ctx, newRecord("pizza"))
	backend.FailOn("clear", errors.New("aborted"))

	if err := backend.Clear(ctx); !errors.Is(err, domain.ErrWrite) {
		t.Fatalf("expected ErrWrite, got %v", err)
	}
	records, _ := backend.List(ctx)
	if len(records) != 1 {
		t.Fatalf("aborted clear must keep records, got %d", len(records))
	}

	backend.FailOn("clear", nil)
	if err := backend.Clear(ctx); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	id, _ := backend.Add(ctx, newRecord("soup"))
	if id != 2 {
		t.Fatalf("ids must not be reused after clear, got %d", id)
	}
}

func TestOrderBackend_ClosedRejectsOperations(t *testing.T) {
	ctx := context.Background()
	backend := memory.NewOrderBackend()
	_ = backend.Close()

	if _, err := backend.Add(ctx, newRecord("pizza")); !errors.Is(err, domain.ErrWrite) {
		t.Fatalf("expected ErrWrite after close, got %v", err)
	}
	if _, err := backend.List(ctx); !errors.Is(err, domain.ErrRead) {
		t.Fatalf("expected ErrRead after close, got %v", err)
	}
}
