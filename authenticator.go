package auth

import (
	"context"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
)

// LoginPayload holds the login form
type LoginPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// Validate checks every field is present. Shape errors beyond that are
// reported as bad credentials, never as validation failures.
func (p LoginPayload) Validate() error {
	err := validation.ValidateStruct(&p,
		validation.Field(&p.Email, validation.Required),
		validation.Field(&p.Password, validation.Required),
		validation.Field(&p.Role, validation.Required),
	)
	if err != nil {
		return WithSource(ErrValidation, err)
	}
	return nil
}

// Session is an issued token and the account it belongs to
type Session struct {
	Account   *Account
	Token     string
	ExpiresAt time.Time
}

// Auther orchestrates registration, login and logout
type Auther struct {
	provider     IdentityProvider
	registrar    AccountRegistrar
	tokenService TokenService
	logger       Logger
	activitySink ActivitySink
	now          func() time.Time
}

// AccountRegistrar creates new accounts
type AccountRegistrar interface {
	Execute(ctx context.Context, event RegisterAccountMessage) (*Account, error)
}

// NewAuthenticator returns a new Authenticator
func NewAuthenticator(provider IdentityProvider, registrar AccountRegistrar, tokens TokenService) *Auther {
	return &Auther{
		provider:     provider,
		registrar:    registrar,
		tokenService: tokens,
		logger:       defLogger{},
		activitySink: noopActivitySink{},
		now:          time.Now,
	}
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// WithActivitySink configures an ActivitySink for emitting auth events.
func (s *Auther) WithActivitySink(sink ActivitySink) *Auther {
	s.activitySink = normalizeActivitySink(sink)
	return s
}

func (s *Auther) WithClock(clock func() time.Time) *Auther {
	if clock != nil {
		s.now = clock
	}
	return s
}

// TokenService returns the TokenService instance used by this Authenticator
func (s *Auther) TokenService() TokenService {
	return s.tokenService
}

// Register creates the account and opens a session for it
func (s *Auther) Register(ctx context.Context, msg RegisterAccountMessage) (*Session, error) {
	account, err := s.registrar.Execute(ctx, msg)
	if err != nil {
		s.logger.Info("Register rejected: %v", err)
		return nil, err
	}

	return s.issue(account)
}

func (s *Auther) Login(ctx context.Context, payload LoginPayload) (*Session, error) {
	payload.Email = NormalizeEmail(payload.Email)
	payload.Role = strings.TrimSpace(payload.Role)

	if err := payload.Validate(); err != nil {
		return nil, err
	}

	account, err := s.provider.VerifyIdentity(ctx, payload.Email, payload.Password)
	if err != nil {
		s.logger.Info("Login verify identity error: %v", err)
		actor := ActorRef{Type: "unknown"}
		accountID := ""
		if meta, ok := AsError(err); ok {
			if id, ok := meta.Metadata["account_id"].(string); ok {
				actor = ActorRef{ID: id, Type: "user"}
				accountID = id
			}
		}
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, actor, accountID, map[string]any{
			"email":  payload.Email,
			"error":  errorCode(err),
			"locked": IsLockoutError(err),
		})
		return nil, err
	}

	session, err := s.issue(account)
	if err != nil {
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, ActorFromAccount(account), account.ID.String(), map[string]any{
			"email": payload.Email,
			"error": errorCode(err),
		})
		return nil, err
	}

	s.emitAuthEvent(ctx, ActivityEventLoginSuccess, ActorFromAccount(account), account.ID.String(), map[string]any{
		"role": account.Role,
	})

	return session, nil
}

// Logout only records the event, the caller clears the cookie
func (s *Auther) Logout(ctx context.Context, account *Account) {
	if account == nil {
		return
	}
	s.emitAuthEvent(ctx, ActivityEventLogout, ActorFromAccount(account), account.ID.String(), nil)
}

func (s *Auther) issue(account *Account) (*Session, error) {
	token, expiresAt, err := s.tokenService.Issue(account.ID.String(), account.Role)
	if err != nil {
		s.logger.Error("failed to issue session token: %v", err)
		return nil, err
	}

	return &Session{
		Account:   account,
		Token:     token,
		ExpiresAt: expiresAt,
	}, nil
}

func (s *Auther) emitAuthEvent(ctx context.Context, eventType ActivityEventType, actor ActorRef, accountID string, metadata map[string]any) {
	if metadata == nil {
		metadata = map[string]any{}
	}

	RecordActivity(ctx, s.activitySink, s.logger, s.now, ActivityEvent{
		EventType: eventType,
		Actor:     actor,
		AccountID: accountID,
		Metadata:  metadata,
	})
}

func errorCode(err error) string {
	if rich, ok := AsError(err); ok && rich.TextCode != "" {
		return rich.TextCode
	}
	return TextCodeInternal
}
