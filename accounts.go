package vaultstate

// AccountService is the session collaborator. ActiveUserID emits the id of
// the active account (empty string when none); Unlocked emits the active
// account's unlock state. Both are hot and replay their latest value.
type AccountService interface {
	ActiveUserID() Observable[string]
	Unlocked() Observable[bool]
}

// StaticAccountService is a minimal AccountService backed by subjects,
// suitable for tests and single-account processes.
type StaticAccountService struct {
	active   *Subject[string]
	unlocked *Subject[bool]
}

// NewStaticAccountService builds an account service with the given initial
// active user (empty for none) in the unlocked state.
func NewStaticAccountService(activeUserID string) *StaticAccountService {
	s := &StaticAccountService{
		active:   NewSubject[string](),
		unlocked: NewSubject[bool](),
	}
	s.active.Next(activeUserID)
	s.unlocked.Next(true)
	return s
}

// ActiveUserID implements AccountService.
func (s *StaticAccountService) ActiveUserID() Observable[string] { return s.active }

// Unlocked implements AccountService.
func (s *StaticAccountService) Unlocked() Observable[bool] { return s.unlocked }

// SwitchUser changes the active account.
func (s *StaticAccountService) SwitchUser(userID string) { s.active.Next(userID) }

// SetUnlocked changes the active account's unlock state.
func (s *StaticAccountService) SetUnlocked(unlocked bool) { s.unlocked.Next(unlocked) }
