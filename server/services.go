package server

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	auth "github.com/hirelane/jobboard-auth"
	"github.com/hirelane/jobboard-auth/config"
	"github.com/hirelane/jobboard-auth/fieldcrypt"
	"github.com/hirelane/jobboard-auth/jobs"
	"github.com/hirelane/jobboard-auth/logging"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// Services is the wired object graph behind the HTTP routes
type Services struct {
	Repo      auth.RepositoryManager
	Hasher    auth.PasswordHasher
	Tokens    *auth.TokenServiceImpl
	Lockout   auth.LockoutStateMachine
	Auther    *auth.Auther
	Gateway   *auth.RouteAuthenticator
	Admin     *auth.AccountAdmin
	Passwords *auth.ChangePasswordHandler
	Jobs      *jobs.Service
}

// NewServices wires every service from cfg. A nil clock means time.Now.
func NewServices(cfg *config.Config, db *bun.DB, logger *zap.Logger, sink auth.ActivitySink, clock func() time.Time) (*Services, error) {
	if clock == nil {
		clock = time.Now
	}

	cipher, err := fieldcrypt.New(cfg.Auth.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("server: field cipher: %w", err)
	}

	authLog := logging.NewAuthLogger(logger, "auth")

	repo := auth.NewRepositoryManager(db, cipher, auth.WithAccountsClock(clock))
	repo.MustValidate()

	hasher := auth.NewPasswordHasher(cfg.GetPasswordHashCost())

	tokens := auth.NewTokenServiceFromConfig(cfg,
		auth.WithTokenClock(clock),
		auth.WithTokenLogger(authLog),
	)

	lockout := auth.NewLockoutStateMachine(repo.Accounts(),
		auth.WithLockoutClock(clock),
		auth.WithLockoutActivitySink(sink),
		auth.WithLockoutLogger(authLog),
	)

	provider := auth.NewAccountProvider(repo.Accounts(), hasher, lockout).
		WithLogger(authLog)

	registrar := auth.NewRegisterAccountHandler(repo, hasher).
		WithLogger(authLog).
		WithActivitySink(sink)

	auther := auth.NewAuthenticator(provider, registrar, tokens).
		WithLogger(authLog).
		WithActivitySink(sink).
		WithClock(clock)

	gateway := auth.NewHTTPAuthenticator(tokens, repo.Accounts(), cfg).
		WithLogger(authLog).
		WithClock(clock)

	admin := auth.NewAccountAdmin(repo.Accounts(), lockout).
		WithLogger(authLog).
		WithActivitySink(sink).
		WithClock(clock)

	passwords := auth.NewChangePasswordHandler(repo, hasher).
		WithLogger(authLog).
		WithActivitySink(sink)

	jobService := jobs.NewService(jobs.NewRepository(db),
		jobs.WithLogger(logging.NewAuthLogger(logger, "jobs")),
		jobs.WithActivitySink(sink),
		jobs.WithClock(clock),
	)

	return &Services{
		Repo:      repo,
		Hasher:    hasher,
		Tokens:    tokens,
		Lockout:   lockout,
		Auther:    auther,
		Gateway:   gateway,
		Admin:     admin,
		Passwords: passwords,
		Jobs:      jobService,
	}, nil
}

// Mount registers /api/v1/user and /api/v1/job
func Mount(app *fiber.App, s *Services) {
	api := app.Group("/api/v1")

	auth.RegisterAuthRoutes(api.Group("/user"),
		auth.WithAuther(s.Auther),
		auth.WithGateway(s.Gateway),
		auth.WithAccountAdmin(s.Admin),
		auth.WithPasswordHandler(s.Passwords),
	)

	jobs.RegisterRoutes(api.Group("/job"), s.Jobs, s.Gateway)
}

// EnsureAdmin creates the configured admin account unless the email is
// already registered. Admins cannot self register so this is the only
// way one comes into existence.
func EnsureAdmin(ctx context.Context, s *Services, admin config.Admin) (*auth.Account, error) {
	if admin.Email == "" {
		return nil, nil
	}

	hash, err := s.Hasher.Hash(admin.Password)
	if err != nil {
		return nil, fmt.Errorf("server: admin password: %w", err)
	}

	account, err := s.Repo.Accounts().GetOrCreate(ctx, &auth.Account{
		Name:         admin.Name,
		Email:        admin.Email,
		Phone:        admin.Phone,
		Role:         auth.RoleAdmin,
		IsActive:     true,
		PasswordHash: hash,
	})
	if err != nil {
		return nil, fmt.Errorf("server: seed admin: %w", err)
	}

	if account.Role != auth.RoleAdmin {
		return nil, fmt.Errorf("server: seed admin: %s is registered as %s", account.Email, account.Role)
	}

	return account, nil
}
