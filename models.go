package auth

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// AccountRole is the account's role
type AccountRole = string

const (
	// RoleJobSeeker browses and applies to jobs
	RoleJobSeeker AccountRole = "Job Seeker"
	// RoleEmployer posts jobs once an admin activates the account
	RoleEmployer AccountRole = "Employer"
	// RoleAdmin is bootstrapped from configuration, never self registered
	RoleAdmin AccountRole = "Admin"
)

// Account is the domain view of a credential store record. Email and
// phone are plaintext here, they only exist sealed in accountRecord.
type Account struct {
	ID                  uuid.UUID   `json:"id"`
	Name                string      `json:"name"`
	Email               string      `json:"email"`
	Phone               string      `json:"phone"`
	Role                AccountRole `json:"role"`
	IsActive            bool        `json:"isActive"`
	PasswordHash        string      `json:"-"`
	FailedLoginAttempts int         `json:"failedLoginAttempts"`
	LockUntil           *time.Time  `json:"lockUntil,omitempty"`
	CreatedAt           time.Time   `json:"createdAt"`
	UpdatedAt           time.Time   `json:"updatedAt"`
}

// IsLocked reports whether lock_until is still in the future at now
func (a *Account) IsLocked(now time.Time) bool {
	if a == nil || a.LockUntil == nil {
		return false
	}
	return a.LockUntil.After(now)
}

// HasRole checks the account role against roles
func (a *Account) HasRole(roles ...string) bool {
	if a == nil {
		return false
	}
	for _, role := range roles {
		if a.Role == role {
			return true
		}
	}
	return false
}

// accountRecord is the persisted row. lock_until is unix millis so the
// conditional lockout updates compare integers on every dialect.
type accountRecord struct {
	bun.BaseModel       `bun:"table:accounts,alias:acc"`
	ID                  uuid.UUID `bun:"id,pk,type:uuid"`
	Name                string    `bun:"name,notnull"`
	EmailCipher         string    `bun:"email_cipher,notnull"`
	EmailIndex          string    `bun:"email_index,notnull,unique"`
	PhoneCipher         string    `bun:"phone_cipher,notnull"`
	Role                string    `bun:"role,notnull"`
	IsActive            bool      `bun:"is_active,notnull"`
	PasswordHash        string    `bun:"password_hash,notnull"`
	FailedLoginAttempts int       `bun:"failed_login_attempts,notnull"`
	LockUntil           *int64    `bun:"lock_until"`
	CreatedAt           time.Time `bun:"created_at,notnull"`
	UpdatedAt           time.Time `bun:"updated_at,notnull"`
}

func toUnixMillis(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	ms := t.UnixMilli()
	return &ms
}

func fromUnixMillis(ms *int64) *time.Time {
	if ms == nil {
		return nil
	}
	t := time.UnixMilli(*ms).UTC()
	return &t
}
