package auth

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeValidation         = "VALIDATION_ERROR"
	TextCodePasswordLength     = "INVALID_PASSWORD_LENGTH"
	TextCodeDuplicateEmail     = "DUPLICATE_EMAIL"
	TextCodeUnauthorized       = "UNAUTHORIZED"
	TextCodeInvalidToken       = "INVALID_TOKEN"
	TextCodeInvalidCreds       = goerrors.TextCodeInvalidCredentials
	TextCodeForbidden          = "FORBIDDEN"
	TextCodeAccountLocked      = goerrors.TextCodeAccountLocked
	TextCodeAccountInactive    = "ACCOUNT_INACTIVE"
	TextCodeAccountNotFound    = "ACCOUNT_NOT_FOUND"
	TextCodeInternal           = "INTERNAL_ERROR"
	TextCodeInvalidTransition  = "INVALID_LOCKOUT_TRANSITION"
	TextCodeInvalidStatusValue = "INVALID_STATUS_VALUE"
)

// Sentinels are shared. Decorate a Clone, go-errors setters mutate the
// receiver.
var (
	// ErrValidation is the generic missing or malformed input error
	ErrValidation = goerrors.New("Please fill in all required fields!", goerrors.CategoryValidation).
			WithCode(goerrors.CodeBadRequest).
			WithTextCode(TextCodeValidation)

	// ErrPasswordLength is returned before hashing a secret outside 8..32
	// characters or over the 72 byte bcrypt limit
	ErrPasswordLength = goerrors.New("Password must be between 8 and 32 characters!", goerrors.CategoryValidation).
				WithCode(goerrors.CodeBadRequest).
				WithTextCode(TextCodePasswordLength)

	ErrDuplicateEmail = goerrors.New("Email already registered!", goerrors.CategoryConflict).
				WithCode(goerrors.CodeConflict).
				WithTextCode(TextCodeDuplicateEmail)

	// ErrUnauthorized is returned when a request carries no session token or
	// the token's account no longer exists
	ErrUnauthorized = goerrors.New("User not authorized", goerrors.CategoryAuth).
			WithCode(goerrors.CodeUnauthorized).
			WithTextCode(TextCodeUnauthorized)

	// ErrInvalidToken covers bad signatures, malformed tokens and expiry alike
	ErrInvalidToken = goerrors.New("User not authorized", goerrors.CategoryAuth).
			WithCode(goerrors.CodeUnauthorized).
			WithTextCode(TextCodeInvalidToken)

	// ErrInvalidCredentials never tells whether the email or the password was wrong
	ErrInvalidCredentials = goerrors.New("Invalid Email or Password.", goerrors.CategoryAuth).
				WithCode(goerrors.CodeUnauthorized).
				WithTextCode(TextCodeInvalidCreds)

	ErrForbidden = goerrors.New("Unauthorized access.", goerrors.CategoryAuthz).
			WithCode(goerrors.CodeForbidden).
			WithTextCode(TextCodeForbidden)

	ErrAccountLocked = goerrors.New("Account locked due to multiple failed attempts. Try again later.", goerrors.CategoryAuthz).
				WithCode(goerrors.CodeForbidden).
				WithTextCode(TextCodeAccountLocked)

	ErrAccountInactive = goerrors.New("Validation by admin remaining", goerrors.CategoryAuthz).
				WithCode(goerrors.CodeForbidden).
				WithTextCode(TextCodeAccountInactive)

	ErrAccountNotFound = goerrors.New("User not found.", goerrors.CategoryNotFound).
				WithCode(goerrors.CodeNotFound).
				WithTextCode(TextCodeAccountNotFound)

	ErrInvalidStatusValue = goerrors.New("Invalid status value. It must be a boolean.", goerrors.CategoryValidation).
				WithCode(goerrors.CodeBadRequest).
				WithTextCode(TextCodeInvalidStatusValue)

	ErrInvalidTransition = goerrors.New("invalid lockout transition", goerrors.CategoryInternal).
				WithCode(goerrors.CodeInternal).
				WithTextCode(TextCodeInvalidTransition)

	ErrInternal = goerrors.New("internal server error", goerrors.CategoryInternal).
			WithCode(goerrors.CodeInternal).
			WithTextCode(TextCodeInternal)
)

// Matches reports whether err is, or wraps, an error carrying target's
// text code. Clones of a sentinel match the sentinel.
func Matches(err error, target *goerrors.Error) bool {
	if err == nil || target == nil {
		return false
	}
	rich, ok := AsError(err)
	if !ok {
		return false
	}
	if target.TextCode == "" {
		return rich == target
	}
	return rich.TextCode == target.TextCode
}

// WithSource returns a copy of base that wraps err
func WithSource(base *goerrors.Error, err error) *goerrors.Error {
	out := base.Clone()
	out.Source = err
	return out
}

// WithMetadata returns a copy of base carrying meta
func WithMetadata(base *goerrors.Error, meta map[string]any) *goerrors.Error {
	return base.Clone().WithMetadata(meta)
}

// AsError extracts the rich error from err.
func AsError(err error) (*goerrors.Error, bool) {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return rich, true
	}
	return nil, false
}

// HTTPStatus resolves the response status for err. Wrapped errors without
// an explicit code fall back to their category.
func HTTPStatus(err error) int {
	rich, ok := AsError(err)
	if !ok {
		return http.StatusInternalServerError
	}
	if rich.Code != 0 {
		return rich.Code
	}
	return codeForCategory(rich.Category)
}

func codeForCategory(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryValidation, goerrors.CategoryBadInput:
		return goerrors.CodeBadRequest
	case goerrors.CategoryConflict:
		return goerrors.CodeConflict
	case goerrors.CategoryAuth:
		return goerrors.CodeUnauthorized
	case goerrors.CategoryAuthz:
		return goerrors.CodeForbidden
	case goerrors.CategoryNotFound:
		return goerrors.CodeNotFound
	case goerrors.CategoryRateLimit:
		return goerrors.CodeTooManyRequests
	default:
		return goerrors.CodeInternal
	}
}
