// Package jwtware finds the session token on a request and hands it to a
// validator. It knows nothing about JWT contents; verification and account
// lookup belong to the validator.
package jwtware

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
)

var ErrTokenMissing = errors.New("missing or malformed session token")

// Source reads a raw token from one place in the request. It returns ""
// when the token is not there.
type Source func(c *fiber.Ctx) string

// TokenHandler validates the raw token and attaches whatever it resolves
// to the request. Returning an error aborts the request.
type TokenHandler func(c *fiber.Ctx, raw string) error

type Config struct {
	Filter         func(*fiber.Ctx) bool
	SuccessHandler fiber.Handler
	ErrorHandler   func(c *fiber.Ctx, err error) error
	// Sources are tried in order, the first non empty token wins.
	// Defaults to the Authorization header with AuthScheme.
	Sources    []Source
	AuthScheme string
	// Validator is required
	Validator TokenHandler
	// Optional lets requests without a usable token through untouched
	Optional bool
}

func New(config ...Config) fiber.Handler {
	cfg := configDefault(config...)

	return func(c *fiber.Ctx) error {
		if cfg.Filter != nil && cfg.Filter(c) {
			return c.Next()
		}

		raw := Extract(c, cfg.Sources...)
		if raw == "" {
			if cfg.Optional {
				return c.Next()
			}
			return cfg.ErrorHandler(c, ErrTokenMissing)
		}

		if err := cfg.Validator(c, raw); err != nil {
			if cfg.Optional {
				return c.Next()
			}
			return cfg.ErrorHandler(c, err)
		}

		return cfg.SuccessHandler(c)
	}
}

// Extract returns the first token found in sources
func Extract(c *fiber.Ctx, sources ...Source) string {
	for _, source := range sources {
		if raw := source(c); raw != "" {
			return raw
		}
	}
	return ""
}

func configDefault(config ...Config) (cfg Config) {
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.Validator == nil {
		panic("jwtware: Validator is required")
	}

	if cfg.SuccessHandler == nil {
		cfg.SuccessHandler = func(c *fiber.Ctx) error {
			return c.Next()
		}
	}

	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = func(c *fiber.Ctx, err error) error {
			if errors.Is(err, ErrTokenMissing) {
				return c.Status(fiber.StatusBadRequest).SendString(ErrTokenMissing.Error())
			}
			return c.Status(fiber.StatusUnauthorized).SendString("invalid or expired session")
		}
	}

	if cfg.AuthScheme == "" {
		cfg.AuthScheme = "Bearer"
	}

	if len(cfg.Sources) == 0 {
		cfg.Sources = []Source{FromHeader(fiber.HeaderAuthorization, cfg.AuthScheme)}
	}

	return cfg
}

// ParseLookup turns "cookie:token,header:Authorization" into sources.
// Unknown or malformed entries are skipped. Tokens are never read from the
// query string, URLs end up in access logs.
func ParseLookup(lookup, authScheme string) []Source {
	var sources []Source

	for _, part := range strings.Split(lookup, ",") {
		kind, name, ok := strings.Cut(strings.TrimSpace(part), ":")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}

		switch strings.TrimSpace(kind) {
		case "cookie":
			sources = append(sources, FromCookie(name))
		case "header":
			sources = append(sources, FromHeader(name, authScheme))
		}
	}

	return sources
}

// FromCookie reads the named cookie
func FromCookie(name string) Source {
	return func(c *fiber.Ctx) string {
		return strings.TrimSpace(c.Cookies(name))
	}
}

// FromHeader reads "<scheme> <token>" from the named header. The scheme
// is matched case insensitively.
func FromHeader(name, scheme string) Source {
	scheme = strings.TrimSpace(scheme)
	return func(c *fiber.Ctx) string {
		value := c.Get(name)
		l := len(scheme)
		if l == 0 || len(value) <= l+1 || value[l] != ' ' {
			return ""
		}
		if !strings.EqualFold(value[:l], scheme) {
			return ""
		}
		return strings.TrimSpace(value[l+1:])
	}
}
