package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AccountAdmin groups the account management operations that sit behind
// role checks: unlocking, listing employers and employer activation.
type AccountAdmin struct {
	accounts     Accounts
	lockout      LockoutStateMachine
	logger       Logger
	activitySink ActivitySink
	now          func() time.Time
}

func NewAccountAdmin(accounts Accounts, lockout LockoutStateMachine) *AccountAdmin {
	return &AccountAdmin{
		accounts:     accounts,
		lockout:      lockout,
		logger:       defLogger{},
		activitySink: noopActivitySink{},
		now:          time.Now,
	}
}

func (a *AccountAdmin) WithLogger(logger Logger) *AccountAdmin {
	if logger != nil {
		a.logger = logger
	}
	return a
}

func (a *AccountAdmin) WithActivitySink(sink ActivitySink) *AccountAdmin {
	a.activitySink = normalizeActivitySink(sink)
	return a
}

func (a *AccountAdmin) WithClock(clock func() time.Time) *AccountAdmin {
	if clock != nil {
		a.now = clock
	}
	return a
}

// Unlock clears the lock on targetID. The actor must be the target or an Admin.
func (a *AccountAdmin) Unlock(ctx context.Context, actor *Account, targetID string) (*Account, error) {
	if err := AuthorizeSelfOrAdmin(actor, targetID); err != nil {
		return nil, err
	}
	return a.unlock(ctx, actor, targetID)
}

// AdminUnlock clears the lock on any account, Admin only
func (a *AccountAdmin) AdminUnlock(ctx context.Context, actor *Account, targetID string) (*Account, error) {
	if err := Authorize(actor, RoleAdmin); err != nil {
		return nil, err
	}
	return a.unlock(ctx, actor, targetID)
}

func (a *AccountAdmin) unlock(ctx context.Context, actor *Account, targetID string) (*Account, error) {
	target, err := a.find(ctx, targetID)
	if err != nil {
		return nil, err
	}

	if err := a.lockout.Unlock(ctx, ActorFromAccount(actor), target); err != nil {
		return nil, err
	}

	a.logger.Info("account %s unlocked by %s", target.ID, actor.ID)
	return target, nil
}

// ListEmployers returns every Employer account, Admin only
func (a *AccountAdmin) ListEmployers(ctx context.Context, actor *Account) ([]*Account, error) {
	if err := Authorize(actor, RoleAdmin); err != nil {
		return nil, err
	}

	employers, err := a.accounts.ListByRole(ctx, RoleEmployer)
	if err != nil {
		return nil, err
	}

	RecordActivity(ctx, a.activitySink, a.logger, a.now, ActivityEvent{
		EventType: ActivityEventEmployersListed,
		Actor:     ActorFromAccount(actor),
		AccountID: actor.ID.String(),
		Metadata: map[string]any{
			"count": len(employers),
		},
	})

	return employers, nil
}

// SetEmployerActivation flips is_active on an Employer account, Admin only.
// Targets that are not employers are reported as not found.
func (a *AccountAdmin) SetEmployerActivation(ctx context.Context, actor *Account, targetID string, active bool) (*Account, error) {
	if err := Authorize(actor, RoleAdmin); err != nil {
		return nil, err
	}

	target, err := a.find(ctx, targetID)
	if err != nil {
		return nil, err
	}

	if target.Role != RoleEmployer {
		return nil, WithMetadata(ErrAccountNotFound, map[string]any{
			"id":   targetID,
			"role": target.Role,
		})
	}

	previous := target.IsActive
	updated, err := a.accounts.SetActive(ctx, target.ID, active)
	if err != nil {
		return nil, err
	}

	RecordActivity(ctx, a.activitySink, a.logger, a.now, ActivityEvent{
		EventType:  ActivityEventActivationChanged,
		Actor:      ActorFromAccount(actor),
		AccountID:  updated.ID.String(),
		ObjectType: "account",
		ObjectID:   updated.ID.String(),
		Metadata: map[string]any{
			"from": previous,
			"to":   updated.IsActive,
		},
	})

	return updated, nil
}

func (a *AccountAdmin) find(ctx context.Context, targetID string) (*Account, error) {
	id, err := uuid.Parse(targetID)
	if err != nil {
		return nil, WithMetadata(ErrAccountNotFound, map[string]any{"id": targetID})
	}
	return a.accounts.GetByID(ctx, id)
}
