package orderstore

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/foodies/internal/domain"
	"github.com/vladislavdragonenkov/foodies/internal/storage/memory"
	"github.com/vladislavdragonenkov/foodies/internal/storage/sqlite"
)

func memoryStore(t *testing.T) (*Store, *memory.OrderBackend) {
	t.Helper()

	backend := memory.NewOrderBackend()
	store := New(func(context.Context) (domain.OrderBackend, error) { return backend, nil })
	t.Cleanup(func() { _ = store.Close() })
	return store, backend
}

func TestAddEntryAssignsSequentialIDs(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, _ := memoryStore(t)

	first, err := store.AddEntry(ctx, domain.OrderPayload{"item": "burger", "qty": 2})
	require.NoError(t, err)
	second, err := store.AddEntry(ctx, domain.OrderPayload{"item": "burger", "qty": 2})
	require.NoError(t, err)
	require.Equal(t, int64(1), first)
	require.Equal(t, int64(2), second)

	records, err := store.ListEntries(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	for i, record := range records {
		require.Equal(t, int64(i+1), record.ID)
		require.Equal(t, domain.OrderStatusPending, record.Status)
		require.False(t, record.Synced)
		require.Equal(t, "burger", record.Payload["item"])
		require.NotEmpty(t, record.ClientRef)
		require.NotZero(t, record.Timestamp)
	}
}

func TestListEntriesIsSnapshot(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, _ := memoryStore(t)

	_, err := store.AddEntry(ctx, domain.OrderPayload{"item": "pizza"})
	require.NoError(t, err)

	snapshot, err := store.ListEntries(ctx)
	require.NoError(t, err)

	_, err = store.AddEntry(ctx, domain.OrderPayload{"item": "soup"})
	require.NoError(t, err)
	require.NoError(t, store.MarkSynced(ctx, 1))

	require.Len(t, snapshot, 1)
	require.Equal(t, domain.OrderStatusPending, snapshot[0].Status)
}

func TestClearAllIsAtomic(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, backend := memoryStore(t)

	for _, item := range []string{"pizza", "soup", "cake"} {
		_, err := store.AddEntry(ctx, domain.OrderPayload{"item": item})
		require.NoError(t, err)
	}

	backend.FailOn("clear", errors.New("transaction aborted"))
	err := store.ClearAll(ctx)
	require.ErrorIs(t, err, domain.ErrWrite)

	records, err := store.ListEntries(ctx)
	require.NoError(t, err)
	require.Len(t, records, 3)

	backend.FailOn("clear", nil)
	require.NoError(t, store.ClearAll(ctx))
	records, err = store.ListEntries(ctx)
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestAddEntryWriteErrorLeavesNoRecord(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, backend := memoryStore(t)
	backend.FailOn("add", errors.New("quota exceeded"))

	_, err := store.AddEntry(ctx, domain.OrderPayload{"item": "pizza"})
	require.ErrorIs(t, err, domain.ErrWrite)

	records, err := store.ListEntries(ctx)
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestOpenIsSharedByConcurrentCallers(t *testing.T) {
	t.Parallel()

	var opened atomic.Int32
	release := make(chan struct{})
	backend := memory.NewOrderBackend()
	store := New(func(context.Context) (domain.OrderBackend, error) {
		opened.Add(1)
		<-release
		return backend, nil
	})

	const callers = 8
	results := make([]domain.OrderBackend, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b, err := store.Open(context.Background())
			if err == nil {
				results[i] = b
			}
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	require.Equal(t, int32(1), opened.Load())
	for _, b := range results {
		require.Same(t, backend, b)
	}
}

func TestOpenSurvivesCancellationOfFirstCaller(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	release := make(chan struct{})
	backend := memory.NewOrderBackend()
	store := New(func(ctx context.Context) (domain.OrderBackend, error) {
		close(started)
		<-release
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return backend, nil
	})

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := store.Open(firstCtx)
		firstErr <- err
	}()
	<-started

	type result struct {
		backend domain.OrderBackend
		err     error
	}
	second := make(chan result, 1)
	go func() {
		b, err := store.Open(context.Background())
		second <- result{backend: b, err: err}
	}()

	cancelFirst()
	select {
	case err := <-firstErr:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled caller must stop waiting")
	}

	close(release)
	got := <-second
	require.NoError(t, got.err)
	require.Same(t, backend, got.backend)
}

func TestOpenFailureReportsStoreUnavailableAndRetries(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	var attempts atomic.Int32
	backend := memory.NewOrderBackend()
	store := New(func(context.Context) (domain.OrderBackend, error) {
		if attempts.Add(1) == 1 {
			return nil, errors.New("persistent storage denied")
		}
		return backend, nil
	})

	_, err := store.AddEntry(ctx, domain.OrderPayload{"item": "pizza"})
	require.ErrorIs(t, err, domain.ErrStoreUnavailable)

	_, err = store.ListEntries(ctx)
	require.NoError(t, err)
	require.Equal(t, int32(2), attempts.Load())
}

func TestStoreOverSQLite(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "orders.db")
	store := New(func(ctx context.Context) (domain.OrderBackend, error) {
		db, err := sqlite.Open(ctx, path)
		if err != nil {
			return nil, err
		}
		return sqlite.NewOrderBackend(db), nil
	}, WithClock(func() time.Time { return time.UnixMilli(1_700_000_000_000) }))
	defer store.Close()

	id, err := store.AddEntry(ctx, domain.OrderPayload{"item": "burger", "qty": 2})
	require.NoError(t, err)
	require.Equal(t, int64(1), id)

	pending, err := store.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, int64(1_700_000_000_000), pending[0].Timestamp)
	require.EqualValues(t, 2, pending[0].Payload["qty"])
}
