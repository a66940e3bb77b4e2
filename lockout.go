package auth

import (
	"context"
	"time"
)

const (
	// MaxFailedLoginAttempts is the failure count that locks an account
	MaxFailedLoginAttempts = 5
	// LockoutDuration is how long a lock lasts once set
	LockoutDuration = 30 * time.Minute
)

// LockoutState is derived from lock_until, it is never stored
type LockoutState string

const (
	LockoutUnlocked LockoutState = "unlocked"
	LockoutLocked   LockoutState = "locked"
)

// LockoutStateMachine gates password checks behind the failed login lock.
//
// Expiry is lazy: a lock ends when lock_until passes, there is no sweeper.
// The unlocked event for an expired lock is emitted by the write that
// clears lock_until, not by reads.
// Counter updates go through LockoutStore conditional writes, so two
// concurrent logins can never both bypass or double count a lock.
type LockoutStateMachine interface {
	CurrentState(account *Account) LockoutState
	Check(ctx context.Context, account *Account) error
	RecordFailure(ctx context.Context, account *Account) error
	RecordSuccess(ctx context.Context, account *Account) error
	Unlock(ctx context.Context, actor ActorRef, account *Account) error
}

// LockoutOption customizes state machine construction.
type LockoutOption func(*lockoutStateMachine)

// WithLockoutClock injects a custom clock (useful for tests).
func WithLockoutClock(clock func() time.Time) LockoutOption {
	return func(sm *lockoutStateMachine) {
		if clock != nil {
			sm.now = clock
		}
	}
}

// WithLockoutActivitySink sets the ActivitySink used to publish lock events.
func WithLockoutActivitySink(sink ActivitySink) LockoutOption {
	return func(sm *lockoutStateMachine) {
		sm.activitySink = normalizeActivitySink(sink)
	}
}

// WithLockoutLogger overrides the logger used for sink failures.
func WithLockoutLogger(logger Logger) LockoutOption {
	return func(sm *lockoutStateMachine) {
		if logger != nil {
			sm.logger = logger
		}
	}
}

// NewLockoutStateMachine returns the default implementation backed by store.
func NewLockoutStateMachine(store LockoutStore, opts ...LockoutOption) LockoutStateMachine {
	sm := &lockoutStateMachine{
		store: store,
		transitions: map[LockoutState]map[LockoutState]struct{}{
			LockoutUnlocked: {
				LockoutLocked: {},
			},
			LockoutLocked: {
				LockoutUnlocked: {},
			},
		},
		threshold:    MaxFailedLoginAttempts,
		duration:     LockoutDuration,
		now:          time.Now,
		activitySink: noopActivitySink{},
		logger:       defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(sm)
		}
	}

	return sm
}

type lockoutStateMachine struct {
	store        LockoutStore
	transitions  map[LockoutState]map[LockoutState]struct{}
	threshold    int
	duration     time.Duration
	now          func() time.Time
	activitySink ActivitySink
	logger       Logger
}

func (sm *lockoutStateMachine) CurrentState(account *Account) LockoutState {
	if account.IsLocked(sm.now()) {
		return LockoutLocked
	}
	return LockoutUnlocked
}

// Check rejects attempts against a locked account before any hash work
func (sm *lockoutStateMachine) Check(ctx context.Context, account *Account) error {
	if account == nil {
		return WithMetadata(ErrInvalidTransition, map[string]any{"reason": "account is nil"})
	}

	if sm.CurrentState(account) == LockoutLocked {
		return WithMetadata(ErrAccountLocked, map[string]any{
			"account_id": account.ID.String(),
			"lock_until": account.LockUntil.UTC(),
		})
	}

	return nil
}

// RecordFailure counts a bad password. It returns ErrInvalidCredentials, or
// ErrAccountLocked when another request locked the account first.
func (sm *lockoutStateMachine) RecordFailure(ctx context.Context, account *Account) error {
	if account == nil {
		return WithMetadata(ErrInvalidTransition, map[string]any{"reason": "account is nil"})
	}

	now := sm.now()
	expired := account.LockUntil
	attempts, err := sm.store.RecordFailedLogin(ctx, account.ID, sm.threshold, now.Add(sm.duration), now)
	if err != nil {
		return err
	}

	account.FailedLoginAttempts = attempts.Failed
	account.LockUntil = attempts.LockUntil
	sm.reportExpiredLock(ctx, account, expired)

	if attempts.LockUntil != nil && attempts.LockUntil.After(now) {
		sm.recordTransition(ctx, ActorRef{Type: "system"}, account, LockoutUnlocked, LockoutLocked, map[string]any{
			"failed_login_attempts": attempts.Failed,
			"lock_until":            attempts.LockUntil.UTC(),
		})
	}

	return ErrInvalidCredentials
}

// RecordSuccess clears the counters after a matching password
func (sm *lockoutStateMachine) RecordSuccess(ctx context.Context, account *Account) error {
	if account == nil {
		return WithMetadata(ErrInvalidTransition, map[string]any{"reason": "account is nil"})
	}

	if account.FailedLoginAttempts == 0 && account.LockUntil == nil {
		return nil
	}

	expired := account.LockUntil
	if err := sm.store.ResetLoginAttempts(ctx, account.ID, sm.now()); err != nil {
		return err
	}

	account.FailedLoginAttempts = 0
	account.LockUntil = nil
	sm.reportExpiredLock(ctx, account, expired)
	return nil
}

// Unlock forces the account back to unlocked with a zero counter
func (sm *lockoutStateMachine) Unlock(ctx context.Context, actor ActorRef, account *Account) error {
	if account == nil {
		return WithMetadata(ErrInvalidTransition, map[string]any{"reason": "account is nil"})
	}

	from := sm.CurrentState(account)
	if err := sm.store.Unlock(ctx, account.ID, sm.now()); err != nil {
		return err
	}

	account.FailedLoginAttempts = 0
	account.LockUntil = nil

	if from == LockoutLocked {
		sm.recordTransition(ctx, actor, account, from, LockoutUnlocked, map[string]any{
			"reason": "manual",
		})
	}
	return nil
}

// reportExpiredLock runs after a write that replaced a lapsed lock_until.
// The write only succeeds once the lock has expired, so a non nil previous
// value is always a finished lock.
func (sm *lockoutStateMachine) reportExpiredLock(ctx context.Context, account *Account, previous *time.Time) {
	if previous == nil {
		return
	}
	sm.recordTransition(ctx, ActorRef{Type: "system"}, account, LockoutLocked, LockoutUnlocked, map[string]any{
		"reason":     "expired",
		"lock_until": previous.UTC(),
	})
}

func (sm *lockoutStateMachine) canTransition(from, to LockoutState) bool {
	if allowed, ok := sm.transitions[from]; ok {
		_, exists := allowed[to]
		return exists
	}
	return false
}

func (sm *lockoutStateMachine) recordTransition(ctx context.Context, actor ActorRef, account *Account, from, to LockoutState, meta map[string]any) {
	if !sm.canTransition(from, to) {
		sm.logger.Error("lockout transition %s -> %s rejected for %s", from, to, account.ID)
		return
	}

	eventType := ActivityEventAccountUnlocked
	if to == LockoutLocked {
		eventType = ActivityEventAccountLocked
	}

	RecordActivity(ctx, sm.activitySink, sm.logger, sm.now, ActivityEvent{
		EventType: eventType,
		Actor:     actor,
		AccountID: account.ID.String(),
		FromState: from,
		ToState:   to,
		Metadata:  meta,
	})
}

// IsLockoutError reports whether err came from an active lock
func IsLockoutError(err error) bool {
	return Matches(err, ErrAccountLocked)
}
