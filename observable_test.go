package vaultstate

import (
	"context"
	"testing"
	"time"
)

func recv[T any](t *testing.T, sub *Subscription[T]) T {
	t.Helper()
	select {
	case value := <-sub.Values():
		return value
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for emission")
		panic("unreachable")
	}
}

func expectNone[T any](t *testing.T, sub *Subscription[T]) {
	t.Helper()
	select {
	case value := <-sub.Values():
		t.Fatalf("unexpected emission %v", value)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubjectReplaysLatestToNewSubscribers(t *testing.T) {
	s := NewSubject[int]()
	s.Next(1)
	s.Next(2)

	sub := s.Subscribe()
	defer sub.Unsubscribe()

	if got := recv(t, sub); got != 2 {
		t.Fatalf("expected replay of latest value 2, got %d", got)
	}
}

func TestSubjectConflatesForSlowConsumer(t *testing.T) {
	s := NewSubject[int]()
	sub := s.Subscribe()
	defer sub.Unsubscribe()

	for i := 1; i <= 5; i++ {
		s.Next(i)
	}

	if got := recv(t, sub); got != 5 {
		t.Fatalf("expected conflation to latest value 5, got %d", got)
	}
	expectNone(t, sub)
}

func TestSubjectForgetClearsReplay(t *testing.T) {
	s := NewSubject[string]()
	s.Next("before")
	s.Forget()

	sub := s.Subscribe()
	defer sub.Unsubscribe()
	expectNone(t, sub)

	s.Next("after")
	if got := recv(t, sub); got != "after" {
		t.Fatalf("expected %q, got %q", "after", got)
	}
}

func TestSubjectActivateIdleHooks(t *testing.T) {
	var activations, idles int
	s := NewSubject(
		OnActivate[int](func() { activations++ }),
		OnIdle[int](func() { idles++ }),
	)

	first := s.Subscribe()
	second := s.Subscribe()
	if activations != 1 {
		t.Fatalf("expected one activation, got %d", activations)
	}

	first.Unsubscribe()
	if idles != 0 {
		t.Fatalf("idle hook fired with a subscriber still attached")
	}
	second.Unsubscribe()
	if idles != 1 {
		t.Fatalf("expected one idle callback, got %d", idles)
	}

	s.Subscribe().Unsubscribe()
	if activations != 2 || idles != 2 {
		t.Fatalf("expected hooks to fire again on reactivation, got %d/%d", activations, idles)
	}
}

func TestSubscriptionUnsubscribeClosesChannel(t *testing.T) {
	s := NewSubject[int]()
	sub := s.Subscribe()
	sub.Unsubscribe()
	sub.Unsubscribe()

	if _, ok := <-sub.Values(); ok {
		t.Fatalf("expected closed channel after unsubscribe")
	}
	if got := s.Len(); got != 0 {
		t.Fatalf("expected no subscribers, got %d", got)
	}
}

func TestFirstValue(t *testing.T) {
	s := NewSubject[int]()
	s.Next(7)

	got, err := FirstValue(context.Background(), s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 7 {
		t.Fatalf("expected 7, got %d", got)
	}

	empty := NewSubject[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := FirstValue(ctx, empty); err == nil {
		t.Fatalf("expected context error waiting on empty subject")
	}
}

func TestMapTransformsEmissions(t *testing.T) {
	s := NewSubject[int]()
	doubled := Map(s, func(v int) int { return v * 2 })

	s.Next(3)
	sub := doubled.Subscribe()
	defer sub.Unsubscribe()

	if got := recv(t, sub); got != 6 {
		t.Fatalf("expected mapped replay 6, got %d", got)
	}

	s.Next(5)
	if got := recv(t, sub); got != 10 {
		t.Fatalf("expected mapped emission 10, got %d", got)
	}
}
