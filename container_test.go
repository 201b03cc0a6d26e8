package vaultstate

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
)

// memStore is an in-package Storage fake that counts backend reads.
type memStore struct {
	mu      sync.Mutex
	records map[string]json.RawMessage
	reads   map[string]int
	updates *Subject[StorageUpdate]
}

func newMemStore() *memStore {
	return &memStore{
		records: map[string]json.RawMessage{},
		reads:   map[string]int{},
		updates: NewSubject[StorageUpdate](),
	}
}

func (m *memStore) Get(_ context.Context, key string) (json.RawMessage, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads[key]++
	raw, ok := m.records[key]
	return raw, ok, nil
}

func (m *memStore) Save(_ context.Context, key string, value json.RawMessage) error {
	m.mu.Lock()
	if value == nil {
		delete(m.records, key)
	} else {
		m.records[key] = value
	}
	m.mu.Unlock()
	m.updates.Next(StorageUpdate{Key: key, Removed: value == nil})
	return nil
}

func (m *memStore) Has(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.records[key]
	return ok, nil
}

func (m *memStore) Updates() Observable[StorageUpdate] { return m.updates }

func (m *memStore) readCount(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads[key]
}

// seed writes directly, bypassing the update stream, to model pre-existing
// state on disk.
func (m *memStore) seed(key string, raw string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[key] = json.RawMessage(raw)
}

func newTestProvider(disk, memory *memStore, activeUser string) (*Provider, *StaticAccountService) {
	accounts := NewStaticAccountService(activeUser)
	return NewProvider(disk, memory, accounts), accounts
}

func TestProviderMemoizesContainers(t *testing.T) {
	disk := newMemStore()
	provider, _ := newTestProvider(disk, newMemStore(), "u1")

	def := NewStateDefinition("memoization", StorageDisk)
	key := MustKey(def, "value", JSONDeserializer[int]())

	if Global(provider, key) != Global(provider, key) {
		t.Fatalf("expected the same global container for identical arguments")
	}
	if User(provider, "u1", key) != User(provider, "u1", key) {
		t.Fatalf("expected the same user container for identical arguments")
	}
	if User(provider, "u1", key) == User(provider, "u2", key) {
		t.Fatalf("expected distinct containers per user")
	}
	if Active(provider, key) != Active(provider, key) {
		t.Fatalf("expected the same active container for identical arguments")
	}
}

func TestContainerReadsBackendOnce(t *testing.T) {
	disk := newMemStore()
	provider, _ := newTestProvider(disk, newMemStore(), "")

	def := NewStateDefinition("singleread", StorageDisk)
	key := MustKey(def, "value", JSONDeserializer[int]())
	disk.seed(key.StorageKey(), `41`)

	container := Global(provider, key)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		got, err := container.Get(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != 41 {
			t.Fatalf("expected 41, got %d", got)
		}
	}

	sub := container.State().Subscribe()
	defer sub.Unsubscribe()
	if got := recv(t, sub); got != 41 {
		t.Fatalf("expected replay 41, got %d", got)
	}

	if got := disk.readCount(key.StorageKey()); got != 1 {
		t.Fatalf("expected one backend read, got %d", got)
	}
}

func TestContainerUpdateSerializes(t *testing.T) {
	disk := newMemStore()
	provider, _ := newTestProvider(disk, newMemStore(), "")

	def := NewStateDefinition("serialized", StorageDisk)
	key := MustKey(def, "counter", JSONDeserializer[int]())
	container := Global(provider, key)

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := container.Update(ctx, func(current int) (int, error) {
				return current + 1, nil
			})
			if err != nil {
				t.Errorf("update failed: %v", err)
			}
		}()
	}
	wg.Wait()

	got, err := container.Get(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 2 {
		t.Fatalf("expected both updates to observe each other, got %d", got)
	}
}

func TestContainerUpdateErrorLeavesStateUntouched(t *testing.T) {
	disk := newMemStore()
	provider, _ := newTestProvider(disk, newMemStore(), "")

	def := NewStateDefinition("updatefail", StorageDisk)
	key := MustKey(def, "value", JSONDeserializer[int]())
	disk.seed(key.StorageKey(), `10`)
	container := Global(provider, key)

	boom := errors.New("boom")
	ctx := context.Background()
	if _, err := container.Update(ctx, func(int) (int, error) { return 0, boom }); !errors.Is(err, boom) {
		t.Fatalf("expected update error, got %v", err)
	}
	got, err := container.Get(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 10 {
		t.Fatalf("expected 10 after failed update, got %d", got)
	}
}

func TestContainerReemitsExternalWrites(t *testing.T) {
	disk := newMemStore()
	provider, _ := newTestProvider(disk, newMemStore(), "")

	def := NewStateDefinition("external", StorageDisk)
	key := MustKey(def, "value", JSONDeserializer[string]())
	container := Global(provider, key)

	sub := container.State().Subscribe()
	defer sub.Unsubscribe()
	if got := recv(t, sub); got != "" {
		t.Fatalf("expected zero value before any write, got %q", got)
	}

	// Another execution context writes the same key through the backend.
	if err := disk.Save(context.Background(), key.StorageKey(), json.RawMessage(`"elsewhere"`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := recv(t, sub); got != "elsewhere" {
		t.Fatalf("expected re-emission of external write, got %q", got)
	}
}

func TestContainerDeserializeErrorPoisonsKey(t *testing.T) {
	disk := newMemStore()
	provider, _ := newTestProvider(disk, newMemStore(), "")

	def := NewStateDefinition("poison", StorageDisk)
	key := MustKey(def, "value", JSONDeserializer[int]())
	disk.seed(key.StorageKey(), `{not json`)
	container := Global(provider, key)

	ctx := context.Background()
	if _, err := container.Get(ctx); err == nil {
		t.Fatalf("expected deserialize error")
	}
	if _, err := container.Update(ctx, func(v int) (int, error) { return v, nil }); err == nil {
		t.Fatalf("expected poisoned key to fail updates")
	}
}

func TestProviderSeparatesLocationsSharingName(t *testing.T) {
	disk := newMemStore()
	memory := newMemStore()
	provider, _ := newTestProvider(disk, memory, "")

	diskKey := MustKey(NewStateDefinition("shared", StorageDisk), "value", JSONDeserializer[int]())
	memKey := MustKey(NewStateDefinition("shared", StorageMemory), "value", JSONDeserializer[string]())

	ctx := context.Background()
	if _, err := Global(provider, diskKey).Update(ctx, func(int) (int, error) { return 7, nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := Global(provider, memKey).Update(ctx, func(string) (string, error) { return "volatile", nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if ok, _ := memory.Has(ctx, memKey.StorageKey()); !ok {
		t.Fatalf("memory-scoped write missing from the memory backend")
	}
	if ok, _ := disk.Has(ctx, memKey.StorageKey()); ok {
		t.Fatalf("memory-scoped write landed in the disk backend")
	}
	if got, err := Global(provider, diskKey).Get(ctx); err != nil || got != 7 {
		t.Fatalf("disk-scoped value = %d, %v", got, err)
	}

	if _, err := User(provider, "u1", diskKey).Update(ctx, func(int) (int, error) { return 1, nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got, err := User(provider, "u1", memKey).Get(ctx); err != nil || got != "" {
		t.Fatalf("memory-scoped user value = %q, %v", got, err)
	}
}

func TestContainerRefreshReadsBackend(t *testing.T) {
	disk := newMemStore()
	provider, _ := newTestProvider(disk, newMemStore(), "")

	def := NewStateDefinition("refresh", StorageDisk)
	key := MustKey(def, "value", JSONDeserializer[string]())
	disk.seed(key.StorageKey(), `"before"`)
	container := Global(provider, key)

	ctx := context.Background()
	if got, err := container.Get(ctx); err != nil || got != "before" {
		t.Fatalf("Get = %q, %v", got, err)
	}

	sub := container.State().Subscribe()
	defer sub.Unsubscribe()
	if got := recv(t, sub); got != "before" {
		t.Fatalf("expected replay %q, got %q", "before", got)
	}

	// The backend changes without a notification, as another process would.
	disk.seed(key.StorageKey(), `"after"`)
	if got, err := container.Get(ctx); err != nil || got != "before" {
		t.Fatalf("expected cached value before refresh, got %q, %v", got, err)
	}

	got, err := container.Refresh(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "after" {
		t.Fatalf("Refresh = %q, want %q", got, "after")
	}
	if got := recv(t, sub); got != "after" {
		t.Fatalf("expected refreshed emission, got %q", got)
	}

	// An unchanged backend refresh returns the cached value without emitting.
	if got, err := container.Refresh(ctx); err != nil || got != "after" {
		t.Fatalf("Refresh = %q, %v", got, err)
	}
	expectNone(t, sub)
}

func TestMemoryLocationRoutesToMemoryBackend(t *testing.T) {
	disk := newMemStore()
	memory := newMemStore()
	provider, _ := newTestProvider(disk, memory, "")

	def := NewStateDefinition("routing", StorageMemory)
	key := MustKey(def, "value", JSONDeserializer[int]())

	ctx := context.Background()
	if _, err := Global(provider, key).Update(ctx, func(int) (int, error) { return 9, nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok, _ := memory.Has(ctx, key.StorageKey()); !ok {
		t.Fatalf("expected value in the memory backend")
	}
	if ok, _ := disk.Has(ctx, key.StorageKey()); ok {
		t.Fatalf("value leaked to the disk backend")
	}
}
