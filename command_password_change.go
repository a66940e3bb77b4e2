package auth

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

type ChangePasswordMessage struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func (e ChangePasswordMessage) Type() string { return "account.password.change" }

func (e ChangePasswordMessage) Validate() error {
	err := validation.ValidateStruct(&e,
		validation.Field(&e.CurrentPassword, validation.Required),
		validation.Field(&e.NewPassword, validation.Required),
	)
	return validationError(err)
}

// ChangePasswordHandler replaces an account password. The new hash and the
// lockout reset are written by one statement.
type ChangePasswordHandler struct {
	repo         RepositoryManager
	hasher       PasswordHasher
	logger       Logger
	activitySink ActivitySink
	now          func() time.Time
}

func NewChangePasswordHandler(repo RepositoryManager, hasher PasswordHasher) *ChangePasswordHandler {
	return &ChangePasswordHandler{
		repo:         repo,
		hasher:       hasher,
		logger:       defLogger{},
		activitySink: noopActivitySink{},
		now:          time.Now,
	}
}

func (h *ChangePasswordHandler) WithLogger(logger Logger) *ChangePasswordHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *ChangePasswordHandler) WithActivitySink(sink ActivitySink) *ChangePasswordHandler {
	h.activitySink = normalizeActivitySink(sink)
	return h
}

func (h *ChangePasswordHandler) Execute(ctx context.Context, actor *Account, msg ChangePasswordMessage) error {
	if actor == nil {
		return ErrUnauthorized
	}

	if err := msg.Validate(); err != nil {
		return err
	}

	if err := ValidatePasswordLength(msg.NewPassword); err != nil {
		return err
	}

	hash, err := h.hasher.Hash(msg.NewPassword)
	if err != nil {
		return err
	}

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		current, err := h.repo.Accounts().GetByIDTx(ctx, tx, actor.ID)
		if err != nil {
			return err
		}

		// a wrong current password is not a login attempt and leaves the counter alone
		if !h.hasher.Verify(msg.CurrentPassword, current.PasswordHash) {
			return ErrInvalidCredentials
		}

		return h.repo.Accounts().UpdatePasswordTx(ctx, tx, actor.ID, hash)
	})
	if err != nil {
		if rich, ok := AsError(err); ok {
			return rich
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "password change transaction failed")
	}

	actor.FailedLoginAttempts = 0
	actor.LockUntil = nil

	RecordActivity(ctx, h.activitySink, h.logger, h.now, ActivityEvent{
		EventType: ActivityEventPasswordChanged,
		Actor:     ActorFromAccount(actor),
		AccountID: actor.ID.String(),
	})

	return nil
}
