package auth

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/hirelane/jobboard-auth/fieldcrypt"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"
)

// RecordFailedLoginSQL bumps the counter and sets the lock in one statement.
// Rows whose lock is still active are left untouched and return nothing.
var RecordFailedLoginSQL = `UPDATE "accounts"
SET
	"failed_login_attempts" = "failed_login_attempts" + 1,
	"lock_until" = CASE WHEN "failed_login_attempts" + 1 >= ? THEN ? ELSE NULL END,
	"updated_at" = ?
WHERE
	"id" = ?
AND ("lock_until" IS NULL OR "lock_until" <= ?)
RETURNING "failed_login_attempts", "lock_until";`

// ResetLoginAttemptsSQL clears the counter unless a lock is active
var ResetLoginAttemptsSQL = `UPDATE "accounts"
SET
	"failed_login_attempts" = 0,
	"lock_until" = NULL,
	"updated_at" = ?
WHERE
	"id" = ?
AND ("lock_until" IS NULL OR "lock_until" <= ?);`

var UnlockAccountSQL = `UPDATE "accounts"
SET
	"failed_login_attempts" = 0,
	"lock_until" = NULL,
	"updated_at" = ?
WHERE
	"id" = ?;`

// UpdatePasswordSQL swaps the hash and resets lockout fields together
var UpdatePasswordSQL = `UPDATE "accounts"
SET
	"password_hash" = ?,
	"failed_login_attempts" = 0,
	"lock_until" = NULL,
	"updated_at" = ?
WHERE
	"id" = ?;`

var ListAccountsByRoleSQL = `SELECT * FROM "accounts" AS "acc"
WHERE
	"acc"."role" = ?
ORDER BY "acc"."created_at" ASC;`

// LoginAttempts is the lockout state after a recorded failure
type LoginAttempts struct {
	Failed    int
	LockUntil *time.Time
}

// Accounts is the credential store
type Accounts interface {
	Create(ctx context.Context, account *Account) (*Account, error)
	CreateTx(ctx context.Context, tx bun.IDB, account *Account) (*Account, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Account, error)
	GetByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Account, error)
	GetByEmail(ctx context.Context, email string) (*Account, error)
	GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*Account, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	EmailExistsTx(ctx context.Context, tx bun.IDB, email string) (bool, error)
	GetOrCreate(ctx context.Context, account *Account) (*Account, error)
	GetOrCreateTx(ctx context.Context, tx bun.IDB, account *Account) (*Account, error)
	ListByRole(ctx context.Context, role string) ([]*Account, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) (*Account, error)
	SetActiveTx(ctx context.Context, tx bun.IDB, id uuid.UUID, active bool) (*Account, error)
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	UpdatePasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error

	LockoutStore
}

// LockoutStore holds the atomic counter updates the lockout machine needs
type LockoutStore interface {
	RecordFailedLogin(ctx context.Context, id uuid.UUID, threshold int, lockUntil, now time.Time) (LoginAttempts, error)
	ResetLoginAttempts(ctx context.Context, id uuid.UUID, now time.Time) error
	Unlock(ctx context.Context, id uuid.UUID, now time.Time) error
}

type accounts struct {
	repository.Repository[*accountRecord]
	db     *bun.DB
	cipher *fieldcrypt.Cipher
	now    func() time.Time
}

var _ Accounts = (*accounts)(nil)

type AccountsOption func(*accounts)

// WithAccountsClock overrides the clock used for created_at/updated_at
func WithAccountsClock(clock func() time.Time) AccountsOption {
	return func(a *accounts) {
		if clock != nil {
			a.now = clock
		}
	}
}

func NewAccountsRepository(db *bun.DB, cipher *fieldcrypt.Cipher, opts ...AccountsOption) Accounts {
	records := repository.NewRepository[*accountRecord](db, repository.ModelHandlers[*accountRecord]{
		NewRecord: func() *accountRecord { return &accountRecord{} },
		GetID: func(r *accountRecord) uuid.UUID {
			if r == nil {
				return uuid.Nil
			}
			return r.ID
		},
		SetID: func(r *accountRecord, id uuid.UUID) {
			if r != nil {
				r.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email_index"
		},
	})

	repo := &accounts{
		Repository: records,
		db:         db,
		cipher:     cipher,
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(repo)
		}
	}
	return repo
}

// NormalizeEmail trims and lowercases an address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (a *accounts) Create(ctx context.Context, account *Account) (*Account, error) {
	return a.CreateTx(ctx, a.db, account)
}

func (a *accounts) CreateTx(ctx context.Context, tx bun.IDB, account *Account) (*Account, error) {
	if account == nil {
		return nil, WithMetadata(ErrValidation, map[string]any{"reason": "account is nil"})
	}

	if !IsValidRole(account.Role) {
		return nil, WithMetadata(ErrValidation, map[string]any{"role": account.Role})
	}

	a.prepareAccountDefaults(account)

	record, err := a.seal(account)
	if err != nil {
		return nil, err
	}

	if _, err := a.Repository.CreateTx(ctx, tx, record); err != nil {
		if isUniqueViolation(err) {
			return nil, WithSource(ErrDuplicateEmail, err)
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create account")
	}

	return account, nil
}

func (a *accounts) GetByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	record, err := a.Repository.GetByID(ctx, id.String())
	if err != nil {
		return nil, a.lookupError(err, map[string]any{"id": id.String()})
	}
	return a.open(record)
}

func (a *accounts) GetByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Account, error) {
	record := &accountRecord{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, a.lookupError(err, map[string]any{"id": id.String()})
	}
	return a.open(record)
}

func (a *accounts) GetByEmail(ctx context.Context, email string) (*Account, error) {
	return a.GetByEmailTx(ctx, a.db, email)
}

func (a *accounts) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*Account, error) {
	record, err := a.Repository.GetByIdentifierTx(ctx, tx, a.cipher.Index(NormalizeEmail(email)))
	if err != nil {
		return nil, a.lookupError(err, nil)
	}
	return a.open(record)
}

func (a *accounts) EmailExists(ctx context.Context, email string) (bool, error) {
	return a.EmailExistsTx(ctx, a.db, email)
}

func (a *accounts) EmailExistsTx(ctx context.Context, tx bun.IDB, email string) (bool, error) {
	exists, err := tx.NewSelect().
		Model((*accountRecord)(nil)).
		Where("?TableAlias.email_index = ?", a.cipher.Index(NormalizeEmail(email))).
		Exists(ctx)
	if err != nil {
		return false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check email")
	}
	return exists, nil
}

func (a *accounts) GetOrCreate(ctx context.Context, account *Account) (*Account, error) {
	return a.GetOrCreateTx(ctx, a.db, account)
}

func (a *accounts) GetOrCreateTx(ctx context.Context, tx bun.IDB, account *Account) (*Account, error) {
	existing, err := a.GetByEmailTx(ctx, tx, account.Email)
	if err == nil {
		return existing, nil
	}

	if !Matches(err, ErrAccountNotFound) {
		return nil, err
	}

	return a.CreateTx(ctx, tx, account)
}

func (a *accounts) ListByRole(ctx context.Context, role string) ([]*Account, error) {
	records, err := a.Repository.RawTx(ctx, a.db, ListAccountsByRoleSQL, role)
	if err != nil && !repository.IsRecordNotFound(err) && !errors.Is(err, sql.ErrNoRows) {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to list accounts")
	}

	out := make([]*Account, 0, len(records))
	for _, record := range records {
		account, err := a.open(record)
		if err != nil {
			return nil, err
		}
		out = append(out, account)
	}
	return out, nil
}

func (a *accounts) SetActive(ctx context.Context, id uuid.UUID, active bool) (*Account, error) {
	return a.SetActiveTx(ctx, a.db, id, active)
}

func (a *accounts) SetActiveTx(ctx context.Context, tx bun.IDB, id uuid.UUID, active bool) (*Account, error) {
	res, err := tx.NewUpdate().
		Model((*accountRecord)(nil)).
		Set("is_active = ?", active).
		Set("updated_at = ?", a.now().UTC()).
		Where("id = ?", id.String()).
		Exec(ctx)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update account status")
	}

	if err := expectAffected(res, id); err != nil {
		return nil, err
	}

	return a.GetByIDTx(ctx, tx, id)
}

func (a *accounts) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	return a.UpdatePasswordTx(ctx, a.db, id, passwordHash)
}

func (a *accounts) UpdatePasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error {
	res, err := tx.NewRaw(UpdatePasswordSQL, passwordHash, a.now().UTC(), id.String()).Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update password")
	}
	return expectAffected(res, id)
}

func (a *accounts) RecordFailedLogin(ctx context.Context, id uuid.UUID, threshold int, lockUntil, now time.Time) (LoginAttempts, error) {
	var failed int
	var until sql.NullInt64

	err := a.db.NewRaw(
		RecordFailedLoginSQL,
		threshold,
		lockUntil.UnixMilli(),
		now.UTC(),
		id.String(),
		now.UnixMilli(),
	).Scan(ctx, &failed, &until)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return LoginAttempts{}, ErrAccountLocked
		}
		return LoginAttempts{}, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to track login attempt")
	}

	out := LoginAttempts{Failed: failed}
	if until.Valid {
		out.LockUntil = fromUnixMillis(&until.Int64)
	}
	return out, nil
}

func (a *accounts) ResetLoginAttempts(ctx context.Context, id uuid.UUID, now time.Time) error {
	res, err := a.db.NewRaw(ResetLoginAttemptsSQL, now.UTC(), id.String(), now.UnixMilli()).Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to reset login attempts")
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrAccountLocked
	}
	return nil
}

func (a *accounts) Unlock(ctx context.Context, id uuid.UUID, now time.Time) error {
	res, err := a.db.NewRaw(UnlockAccountSQL, now.UTC(), id.String()).Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to unlock account")
	}
	return expectAffected(res, id)
}

func (a *accounts) prepareAccountDefaults(account *Account) {
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}

	account.Name = strings.TrimSpace(account.Name)
	account.Email = NormalizeEmail(account.Email)
	account.Phone = strings.TrimSpace(account.Phone)

	now := a.now().UTC()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = now
}

func (a *accounts) seal(account *Account) (*accountRecord, error) {
	email, err := a.cipher.Seal(account.Email)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encrypt email")
	}

	phone, err := a.cipher.Seal(account.Phone)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encrypt phone")
	}

	return &accountRecord{
		ID:                  account.ID,
		Name:                account.Name,
		EmailCipher:         email,
		EmailIndex:          a.cipher.Index(account.Email),
		PhoneCipher:         phone,
		Role:                account.Role,
		IsActive:            account.IsActive,
		PasswordHash:        account.PasswordHash,
		FailedLoginAttempts: account.FailedLoginAttempts,
		LockUntil:           toUnixMillis(account.LockUntil),
		CreatedAt:           account.CreatedAt,
		UpdatedAt:           account.UpdatedAt,
	}, nil
}

func (a *accounts) open(record *accountRecord) (*Account, error) {
	email, err := a.cipher.Open(record.EmailCipher)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to decrypt email")
	}

	phone, err := a.cipher.Open(record.PhoneCipher)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to decrypt phone")
	}

	return &Account{
		ID:                  record.ID,
		Name:                record.Name,
		Email:               email,
		Phone:               phone,
		Role:                record.Role,
		IsActive:            record.IsActive,
		PasswordHash:        record.PasswordHash,
		FailedLoginAttempts: record.FailedLoginAttempts,
		LockUntil:           fromUnixMillis(record.LockUntil),
		CreatedAt:           record.CreatedAt.UTC(),
		UpdatedAt:           record.UpdatedAt.UTC(),
	}, nil
}

func (a *accounts) lookupError(err error, meta map[string]any) error {
	if repository.IsRecordNotFound(err) || errors.Is(err, sql.ErrNoRows) {
		if meta == nil {
			return ErrAccountNotFound
		}
		return WithMetadata(ErrAccountNotFound, meta)
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve account")
}

func expectAffected(res sql.Result, id uuid.UUID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read affected rows")
	}
	if n == 0 {
		return WithMetadata(ErrAccountNotFound, map[string]any{"id": id.String()})
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	if goerrors.IsCategory(err, goerrors.CategoryConflict) {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
