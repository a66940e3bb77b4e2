package auth

import (
	"context"
	"sync"

	goerrors "github.com/goliatone/go-errors"
)

// AccountLookup is a store we can use to retrieve accounts by email
type AccountLookup interface {
	GetByEmail(ctx context.Context, email string) (*Account, error)
}

// IdentityProvider verifies login credentials
type IdentityProvider interface {
	VerifyIdentity(ctx context.Context, email, password string) (*Account, error)
}

// AccountProvider runs the credential checks of a login: lookup, lockout
// gate, password and activation. The role a client submits is not compared,
// the session always carries the stored role.
type AccountProvider struct {
	store   AccountLookup
	hasher  PasswordHasher
	lockout LockoutStateMachine
	logger  Logger

	dummyOnce sync.Once
	dummyHash string
}

// NewAccountProvider will create a new AccountProvider
func NewAccountProvider(store AccountLookup, hasher PasswordHasher, lockout LockoutStateMachine) *AccountProvider {
	return &AccountProvider{
		store:   store,
		hasher:  hasher,
		lockout: lockout,
		logger:  defLogger{},
	}
}

func (p *AccountProvider) WithLogger(l Logger) *AccountProvider {
	if l != nil {
		p.logger = l
	}
	return p
}

// VerifyIdentity will find the account, gate on the lockout state and
// compare the password.
func (p *AccountProvider) VerifyIdentity(ctx context.Context, email, password string) (*Account, error) {
	account, err := p.store.GetByEmail(ctx, email)
	if err != nil {
		if Matches(err, ErrAccountNotFound) {
			// keep response time close to the known email path
			p.hasher.Verify(password, p.timingHash())
			return nil, ErrInvalidCredentials
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve account during verification")
	}

	if err := p.lockout.Check(ctx, account); err != nil {
		return nil, err
	}

	if !p.hasher.Verify(password, account.PasswordHash) {
		return nil, p.lockout.RecordFailure(ctx, account)
	}

	if err := p.lockout.RecordSuccess(ctx, account); err != nil {
		return nil, err
	}

	if !account.IsActive {
		return nil, WithMetadata(ErrAccountInactive, map[string]any{
			"account_id": account.ID.String(),
		})
	}

	return account, nil
}

func (p *AccountProvider) timingHash() string {
	p.dummyOnce.Do(func() {
		h, err := p.hasher.Hash("timing-equalizer-0")
		if err != nil {
			p.logger.Error("failed to build timing hash: %v", err)
		}
		p.dummyHash = h
	})
	return p.dummyHash
}

var _ IdentityProvider = (*AccountProvider)(nil)
