package auth

import (
	"context"

	"github.com/gofiber/fiber/v2"
)

var accountCtxKey = &contextKey{"account"}
var claimsCtxKey = &contextKey{"claims"}

const (
	// LocalsAccountKey is the fiber locals key holding the *Account
	LocalsAccountKey = "auth.account"
	// LocalsClaimsKey is the fiber locals key holding the AuthClaims
	LocalsClaimsKey = "auth.claims"
)

type contextKey struct {
	name string
}

// WithContext sets the Account in the given context
func WithContext(r context.Context, account *Account) context.Context {
	return context.WithValue(r, accountCtxKey, account)
}

// FromContext finds the account from the context.
func FromContext(ctx context.Context) (*Account, bool) {
	raw, ok := ctx.Value(accountCtxKey).(*Account)
	return raw, ok && raw != nil
}

// WithClaimsContext sets the AuthClaims in the given context
func WithClaimsContext(r context.Context, claims AuthClaims) context.Context {
	return context.WithValue(r, claimsCtxKey, claims)
}

// GetClaims extracts the AuthClaims from the standard context
func GetClaims(ctx context.Context) (AuthClaims, bool) {
	raw, ok := ctx.Value(claimsCtxKey).(AuthClaims)
	return raw, ok
}

// CurrentAccount returns the account the gateway attached to c
func CurrentAccount(c *fiber.Ctx) (*Account, bool) {
	raw, ok := c.Locals(LocalsAccountKey).(*Account)
	return raw, ok && raw != nil
}

// CurrentClaims returns the claims the gateway attached to c
func CurrentClaims(c *fiber.Ctx) (AuthClaims, bool) {
	raw, ok := c.Locals(LocalsClaimsKey).(AuthClaims)
	return raw, ok
}

func setCurrent(c *fiber.Ctx, account *Account, claims AuthClaims) {
	c.Locals(LocalsAccountKey, account)
	c.Locals(LocalsClaimsKey, claims)

	ctx := WithContext(c.UserContext(), account)
	ctx = WithClaimsContext(ctx, claims)
	c.SetUserContext(ctx)
}
