package vaultstate

import (
	"context"
	"sync"
)

// ActiveUserState is the container view for whichever user is currently
// active. Switching accounts transparently re-targets the container: the same
// observable re-emits the new user's value and consumers never resubscribe.
type ActiveUserState[T any] struct {
	key      KeyDefinition[T]
	accounts AccountService
	resolve  func(userID string) *UserState[T]

	subject *Subject[T]

	mu       sync.Mutex
	activeID string
	gen      int
	inner    *Subscription[T]
}

func newActiveUserState[T any](key KeyDefinition[T], accounts AccountService, resolve func(string) *UserState[T]) *ActiveUserState[T] {
	s := &ActiveUserState[T]{
		key:      key,
		accounts: accounts,
		resolve:  resolve,
		subject:  NewSubject[T](),
	}
	go s.followActiveUser()
	return s
}

// State returns the observable for the active user's value. After an account
// switch the next emission belongs to the new user (the zero value when that
// user has nothing stored); values cached for the previous user are never
// replayed.
func (s *ActiveUserState[T]) State() Observable[T] { return s.subject }

// Get returns the active user's current value.
func (s *ActiveUserState[T]) Get(ctx context.Context) (T, error) {
	target, err := s.target(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	return target.Get(ctx)
}

// Refresh forces the active user's container to re-read its backend. See
// the container Refresh method.
func (s *ActiveUserState[T]) Refresh(ctx context.Context) (T, error) {
	target, err := s.target(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	return target.Refresh(ctx)
}

// Update applies fn to whichever user is active at call time. It fails with
// ErrNoActiveUser when no account is active.
func (s *ActiveUserState[T]) Update(ctx context.Context, fn UpdateFn[T]) (T, error) {
	target, err := s.target(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	return target.Update(ctx, fn)
}

func (s *ActiveUserState[T]) target(ctx context.Context) (*UserState[T], error) {
	userID, err := FirstValue(ctx, s.accounts.ActiveUserID())
	if err != nil {
		return nil, err
	}
	if userID == "" {
		return nil, ErrNoActiveUser
	}
	return s.resolve(userID), nil
}

func (s *ActiveUserState[T]) followActiveUser() {
	active := s.accounts.ActiveUserID().Subscribe()
	for userID := range active.Values() {
		s.retarget(userID)
	}
}

func (s *ActiveUserState[T]) retarget(userID string) {
	s.mu.Lock()
	if userID == s.activeID && s.inner != nil {
		s.mu.Unlock()
		return
	}
	s.gen++
	gen := s.gen
	if s.inner != nil {
		s.inner.Unsubscribe()
		s.inner = nil
	}
	s.activeID = userID
	// Drop the previous user's replay value so no subscriber can observe it
	// under the new account.
	s.subject.Forget()
	if userID == "" {
		s.mu.Unlock()
		return
	}
	inner := s.resolve(userID).State().Subscribe()
	s.inner = inner
	s.mu.Unlock()

	go s.forward(gen, inner)
}

func (s *ActiveUserState[T]) forward(gen int, inner *Subscription[T]) {
	for value := range inner.Values() {
		s.mu.Lock()
		if gen != s.gen {
			s.mu.Unlock()
			return
		}
		s.subject.Next(value)
		s.mu.Unlock()
	}
}
