package auth

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/hirelane/jobboard-auth/middleware/jwtware"
)

// RouteAuthenticator is the auth gateway for fiber routes. It resolves the
// session cookie to an account and manages the cookie itself.
type RouteAuthenticator struct {
	tokens       TokenService
	accounts     AccountFinder
	cfg          Config
	Logger       Logger
	ErrorHandler func(c *fiber.Ctx, err error) error
	now          func() time.Time
}

func NewHTTPAuthenticator(tokens TokenService, accounts AccountFinder, cfg Config) *RouteAuthenticator {
	a := &RouteAuthenticator{
		tokens:   tokens,
		accounts: accounts,
		cfg:      cfg,
		Logger:   defLogger{},
		now:      time.Now,
	}

	a.ErrorHandler = a.defaultErrHandler
	return a
}

func (a *RouteAuthenticator) WithLogger(logger Logger) *RouteAuthenticator {
	if logger != nil {
		a.Logger = logger
	}
	return a
}

// WithClock overrides the clock used for cookie expiry
func (a *RouteAuthenticator) WithClock(clock func() time.Time) *RouteAuthenticator {
	if clock != nil {
		a.now = clock
	}
	return a
}

func (a *RouteAuthenticator) CookieName() string {
	if name := a.cfg.GetCookieName(); name != "" {
		return name
	}
	return "token"
}

// Authenticate resolves a raw session token to its account
func (a *RouteAuthenticator) Authenticate(ctx context.Context, raw string) (*Account, AuthClaims, error) {
	if raw == "" {
		return nil, nil, ErrUnauthorized
	}

	claims, err := a.tokens.Verify(raw)
	if err != nil {
		return nil, nil, ErrInvalidToken
	}

	id, err := uuid.Parse(claims.AccountID())
	if err != nil {
		a.Logger.Debug("token subject is not an account id: %q", claims.AccountID())
		return nil, nil, ErrInvalidToken
	}

	account, err := a.accounts.GetByID(ctx, id)
	if err != nil {
		if Matches(err, ErrAccountNotFound) {
			return nil, nil, ErrUnauthorized
		}
		return nil, nil, err
	}

	return account, claims, nil
}

// ProtectedRoute rejects requests without a valid session
func (a *RouteAuthenticator) ProtectedRoute() fiber.Handler {
	return jwtware.New(jwtware.Config{
		Sources:      a.sources(),
		Validator:    a.validate,
		ErrorHandler: a.ErrorHandler,
	})
}

// OptionalRoute attaches the account when a valid session is present and
// lets anonymous requests through otherwise
func (a *RouteAuthenticator) OptionalRoute() fiber.Handler {
	return jwtware.New(jwtware.Config{
		Sources:      a.sources(),
		Validator:    a.validate,
		ErrorHandler: a.ErrorHandler,
		Optional:     true,
	})
}

// RequireRole must run after ProtectedRoute. It panics on a role name that
// does not exist so a typo fails at route setup.
func RequireRole(roles ...string) fiber.Handler {
	for _, role := range roles {
		if !IsValidRole(role) {
			panic("auth: unknown role " + role)
		}
	}

	return func(c *fiber.Ctx) error {
		account, ok := CurrentAccount(c)
		if !ok {
			return ErrUnauthorized
		}
		if err := Authorize(account, roles...); err != nil {
			return err
		}
		return c.Next()
	}
}

// SetSessionCookie writes the session token cookie
func (a *RouteAuthenticator) SetSessionCookie(c *fiber.Ctx, token string, expires time.Time) {
	c.Cookie(&fiber.Cookie{
		Name:     a.CookieName(),
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HTTPOnly: true,
		Secure:   a.cfg.GetSecureCookie(),
		SameSite: fiber.CookieSameSiteStrictMode,
	})
}

// ClearSessionCookie overwrites the session cookie with an expired one.
// The token itself stays valid until exp, there is no revocation list.
func (a *RouteAuthenticator) ClearSessionCookie(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     a.CookieName(),
		Value:    "",
		Path:     "/",
		Expires:  a.now().Add(-time.Hour * (24 * 365)),
		MaxAge:   -1,
		HTTPOnly: true,
		Secure:   a.cfg.GetSecureCookie(),
		SameSite: fiber.CookieSameSiteStrictMode,
	})
}

func (a *RouteAuthenticator) validate(c *fiber.Ctx, raw string) error {
	account, claims, err := a.Authenticate(c.UserContext(), raw)
	if err != nil {
		return err
	}
	setCurrent(c, account, claims)
	return nil
}

// sources checks the session cookie first, then a Bearer header for API clients
func (a *RouteAuthenticator) sources() []jwtware.Source {
	return []jwtware.Source{
		jwtware.FromCookie(a.CookieName()),
		jwtware.FromHeader(fiber.HeaderAuthorization, "Bearer"),
	}
}

func (a *RouteAuthenticator) defaultErrHandler(c *fiber.Ctx, err error) error {
	if errors.Is(err, jwtware.ErrTokenMissing) {
		err = ErrUnauthorized
	}

	if rich, ok := AsError(err); ok {
		a.Logger.Info(
			"auth gateway rejected %s %s: %s (%s)",
			c.Method(), c.Path(), rich.Message, rich.TextCode,
		)
		return rich
	}

	return err
}
