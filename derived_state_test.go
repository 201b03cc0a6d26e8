package vaultstate

import (
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func testDerivation[TFrom, TTo any](t *testing.T, name string, derive DeriveFn[TFrom, TTo], cleanupDelay time.Duration) DeriveDefinition[TFrom, TTo] {
	t.Helper()
	def, err := NewDeriveDefinition(
		NewStateDefinition(name, StorageMemory),
		name,
		derive,
		JSONDeserializer[TTo](),
		cleanupDelay,
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return def
}

func TestDeriveDefinitionValidation(t *testing.T) {
	def := NewStateDefinition("derivevalid", StorageMemory)
	derive := func(s string, _ DeriveDependencies) (int, error) { return len(s), nil }

	if _, err := NewDeriveDefinition(def, "", derive, JSONDeserializer[int](), 0); err == nil {
		t.Fatalf("expected error for empty name")
	}
	if _, err := NewDeriveDefinition[string, int](def, "lengths", nil, JSONDeserializer[int](), 0); err == nil {
		t.Fatalf("expected error for missing derive func")
	}
	if _, err := NewDeriveDefinition(def, "lengths", derive, nil, 0); err == nil {
		t.Fatalf("expected error for missing deserializer")
	}

	built, err := NewDeriveDefinition(def, "lengths", derive, JSONDeserializer[int](), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got, want := built.CacheKey(), "derived_derivevalid_lengths"; got != want {
		t.Fatalf("CacheKey = %q, want %q", got, want)
	}
	if built.cleanupDelay() != DefaultCleanupDelay {
		t.Fatalf("expected default cleanup delay for zero value")
	}
	built.CleanupDelay = -time.Second
	if built.cleanupDelay() != 0 {
		t.Fatalf("expected negative delay clamped to zero")
	}
}

func TestDerivedStateLazyAndShared(t *testing.T) {
	parent := NewSubject[string]()
	var computes atomic.Int64
	def := testDerivation(t, "lazyshared", func(s string, _ DeriveDependencies) (string, error) {
		computes.Add(1)
		return strings.ToUpper(s), nil
	}, time.Minute)

	provider, _ := newTestProvider(newMemStore(), newMemStore(), "")
	derived := Derived(provider, parent, def, nil)

	parent.Next("early")
	if computes.Load() != 0 {
		t.Fatalf("derivation ran before any subscriber attached")
	}

	first := derived.State().Subscribe()
	defer first.Unsubscribe()
	if got := recv(t, first); got != "EARLY" {
		t.Fatalf("expected EARLY, got %q", got)
	}

	second := derived.State().Subscribe()
	defer second.Unsubscribe()
	if got := recv(t, second); got != "EARLY" {
		t.Fatalf("expected cached replay EARLY, got %q", got)
	}
	if got := computes.Load(); got != 1 {
		t.Fatalf("expected one shared computation, got %d", got)
	}
}

func TestDerivedStateLatestInputWins(t *testing.T) {
	parent := NewSubject[string]()
	release := make(chan struct{})
	def := testDerivation(t, "latestwins", func(s string, _ DeriveDependencies) (string, error) {
		if s == "slow" {
			<-release
		}
		return strings.ToUpper(s), nil
	}, time.Minute)

	provider, _ := newTestProvider(newMemStore(), newMemStore(), "")
	derived := Derived(provider, parent, def, nil)
	sub := derived.State().Subscribe()
	defer sub.Unsubscribe()

	parent.Next("slow")
	// The slow derivation is still pending when a newer input supersedes it.
	time.Sleep(20 * time.Millisecond)
	parent.Next("fast")
	if got := recv(t, sub); got != "FAST" {
		t.Fatalf("expected FAST, got %q", got)
	}

	// The late-resolving result for the stale input must be discarded.
	close(release)
	expectNone(t, sub)
	if got, _ := derived.subject.Latest(); got != "FAST" {
		t.Fatalf("stale result overwrote the cache: %q", got)
	}
}

func TestDerivedStateCleanupGracePeriod(t *testing.T) {
	parent := NewSubject[int]()
	parent.Next(3)
	var computes atomic.Int64
	def := testDerivation(t, "grace", func(v int, _ DeriveDependencies) (int, error) {
		computes.Add(1)
		return v * v, nil
	}, 250*time.Millisecond)

	provider, _ := newTestProvider(newMemStore(), newMemStore(), "")
	derived := Derived(provider, parent, def, nil)

	sub := derived.State().Subscribe()
	if got := recv(t, sub); got != 9 {
		t.Fatalf("expected 9, got %d", got)
	}
	sub.Unsubscribe()

	// Resubscribing inside the grace period replays the cache, no recompute.
	again := derived.State().Subscribe()
	if got := recv(t, again); got != 9 {
		t.Fatalf("expected cached 9, got %d", got)
	}
	if got := computes.Load(); got != 1 {
		t.Fatalf("expected cache reuse inside grace period, got %d computations", got)
	}
	again.Unsubscribe()

	// After the grace period the chain tears down; the next subscriber
	// triggers a fresh computation from the parent's replayed value.
	time.Sleep(400 * time.Millisecond)
	fresh := derived.State().Subscribe()
	defer fresh.Unsubscribe()
	if got := recv(t, fresh); got != 9 {
		t.Fatalf("expected recomputed 9, got %d", got)
	}
	if got := computes.Load(); got != 2 {
		t.Fatalf("expected recomputation after cleanup, got %d", got)
	}
}
