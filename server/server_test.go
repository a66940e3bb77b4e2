package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	auth "github.com/hirelane/jobboard-auth"
	"github.com/hirelane/jobboard-auth/activitylog"
	"github.com/hirelane/jobboard-auth/config"
	"github.com/hirelane/jobboard-auth/persistence"
	"github.com/hirelane/jobboard-auth/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/crypto/bcrypt"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) PingContext(ctx context.Context) error { return f(ctx) }

func noEnv(string) (string, bool) { return "", false }

func testConfig(t *testing.T, overrides map[string]any) *config.Config {
	t.Helper()

	values := map[string]any{
		"env":                 config.EnvTest,
		"auth.signing_key":    "server-test-signing-key-0123456789abcdef",
		"auth.encryption_key": "server-test-encryption-key-0123456789ab",
		"auth.hash_cost":      bcrypt.MinCost,
	}
	for k, v := range overrides {
		values[k] = v
	}

	cfg, err := config.Load(config.WithLookupEnv(noEnv), config.WithOverrides(values))
	require.NoError(t, err)
	return cfg
}

func testDB(t *testing.T) *bun.DB {
	t.Helper()

	db, err := persistence.OpenAndMigrate(context.Background(), persistence.Options{
		DSN: "file:" + uuid.NewString() + "?mode=memory&cache=shared",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func send(t *testing.T, app *fiber.App, method, path string, body any, token string) (*http.Response, map[string]any) {
	t.Helper()

	var raw []byte
	if body != nil {
		var err error
		raw, err = json.Marshal(body)
		require.NoError(t, err)
	}

	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	out := map[string]any{}
	if len(data) > 0 {
		require.NoError(t, json.Unmarshal(data, &out), string(data))
	}
	return resp, out
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name   string
		db     server.Pinger
		status int
		state  string
	}{
		{"up", pingFunc(func(context.Context) error { return nil }), http.StatusOK, "ok"},
		{"down", pingFunc(func(context.Context) error { return errors.New("gone") }), http.StatusServiceUnavailable, "unavailable"},
		{"no database", nil, http.StatusServiceUnavailable, "unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := server.New(server.Options{AppName: "test"}, zap.NewNop(), tt.db)

			resp, body := send(t, app, http.MethodGet, "/healthz", nil, "")
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.state, body["status"])
			assert.Equal(t, tt.status == http.StatusOK, body["success"])
		})
	}
}

func TestErrorHandler(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	app := server.New(server.Options{AppName: "test"}, zap.New(core), nil)

	app.Get("/boom", func(c *fiber.Ctx) error {
		return errors.New("disk on fire")
	})
	app.Get("/forbidden", func(c *fiber.Ctx) error {
		return auth.ErrForbidden
	})
	app.Get("/panic", func(c *fiber.Ctx) error {
		panic("unexpected")
	})

	t.Run("internal errors hide their cause", func(t *testing.T) {
		resp, body := send(t, app, http.MethodGet, "/boom", nil, "")
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		assert.Equal(t, "internal server error", body["message"])
		assert.NotContains(t, body["message"], "disk")

		failed := logs.FilterMessage("request failed").All()
		require.Len(t, failed, 1)
		assert.Equal(t, "/boom", failed[0].ContextMap()["path"])
		assert.Equal(t, "disk on fire", failed[0].ContextMap()["error"])
	})

	t.Run("client errors keep their message", func(t *testing.T) {
		resp, body := send(t, app, http.MethodGet, "/forbidden", nil, "")
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		assert.Equal(t, auth.TextCodeForbidden, body["code"])
		assert.Equal(t, 1, logs.FilterMessage("request rejected").Len())
	})

	t.Run("panics are recovered", func(t *testing.T) {
		resp, _ := send(t, app, http.MethodGet, "/panic", nil, "")
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	})

	t.Run("unknown route", func(t *testing.T) {
		resp, body := send(t, app, http.MethodGet, "/nowhere", nil, "")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "NOT_FOUND", body["code"])
	})

	t.Run("every request is logged with its status", func(t *testing.T) {
		var statuses []int64
		for _, entry := range logs.FilterMessage("http request").All() {
			statuses = append(statuses, entry.ContextMap()["status"].(int64))
		}
		assert.Contains(t, statuses, int64(http.StatusInternalServerError))
		assert.Contains(t, statuses, int64(http.StatusForbidden))
		assert.Contains(t, statuses, int64(http.StatusNotFound))
	})
}

func TestEnsureAdmin(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, nil)
	db := testDB(t)

	services, err := server.NewServices(cfg, db, zap.NewNop(), nil, nil)
	require.NoError(t, err)

	t.Run("no email", func(t *testing.T) {
		account, err := server.EnsureAdmin(ctx, services, config.Admin{})
		assert.NoError(t, err)
		assert.Nil(t, account)
	})

	admin := config.Admin{Name: "Root", Email: "root@example.com", Phone: "5550000000", Password: "supersecret"}

	t.Run("creates once", func(t *testing.T) {
		first, err := server.EnsureAdmin(ctx, services, admin)
		require.NoError(t, err)
		assert.Equal(t, auth.RoleAdmin, first.Role)
		assert.True(t, first.IsActive)

		second, err := server.EnsureAdmin(ctx, services, admin)
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
	})

	t.Run("email taken by another role", func(t *testing.T) {
		_, err := services.Repo.Accounts().Create(ctx, &auth.Account{
			Name:         "Jane",
			Email:        "jane@example.com",
			Phone:        "5551234567",
			Role:         auth.RoleJobSeeker,
			IsActive:     true,
			PasswordHash: "unused",
		})
		require.NoError(t, err)

		_, err = server.EnsureAdmin(ctx, services, config.Admin{
			Name: "Jane", Email: "jane@example.com", Phone: "5551234567", Password: "supersecret",
		})
		assert.ErrorContains(t, err, "registered as Job Seeker")
	})
}

func TestNewServicesRejectsShortEncryptionKey(t *testing.T) {
	cfg := testConfig(t, nil)
	cfg.Auth.EncryptionKey = "short"

	_, err := server.NewServices(cfg, testDB(t), zap.NewNop(), nil, nil)
	assert.Error(t, err)
}

func TestEmployerJourney(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, nil)
	db := testDB(t)
	logs := activitylog.NewSQLSink(db)

	services, err := server.NewServices(cfg, db, zap.NewNop(), activitylog.NewFanout(logs), nil)
	require.NoError(t, err)

	_, err = server.EnsureAdmin(ctx, services, config.Admin{
		Name: "Root", Email: "root@example.com", Phone: "5550000000", Password: "supersecret",
	})
	require.NoError(t, err)

	app := server.New(server.OptionsFromConfig(cfg), zap.NewNop(), db)
	server.Mount(app, services)

	resp, body := send(t, app, http.MethodPost, "/api/v1/user/register", fiber.Map{
		"name":     "Acme Hiring",
		"email":    "hiring@acme.com",
		"phone":    "5551234567",
		"password": "password123",
		"role":     auth.RoleEmployer,
	}, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	employerID := body["user"].(map[string]any)["id"].(string)
	assert.Equal(t, false, body["user"].(map[string]any)["isActive"])

	login := func(email, password, role string) string {
		resp, body := send(t, app, http.MethodPost, "/api/v1/user/login", fiber.Map{
			"email": email, "password": password, "role": role,
		}, "")
		require.Equal(t, http.StatusOK, resp.StatusCode, body)
		return body["token"].(string)
	}

	resp, _ = send(t, app, http.MethodPost, "/api/v1/user/login", fiber.Map{
		"email": "hiring@acme.com", "password": "password123", "role": auth.RoleEmployer,
	}, "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode, "inactive employers cannot sign in")

	adminToken := login("root@example.com", "supersecret", auth.RoleAdmin)

	resp, body = send(t, app, http.MethodGet, "/api/v1/user/employers", nil, adminToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["employers"], 1)

	resp, _ = send(t, app, http.MethodPatch, "/api/v1/user/employer/"+employerID, fiber.Map{"is_active": true}, adminToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	employerToken := login("hiring@acme.com", "password123", auth.RoleEmployer)

	post := fiber.Map{
		"title":       "Platform Engineer",
		"description": "Keep the job board fast and the deploys boring.",
		"category":    "Engineering",
		"country":     "Germany",
		"city":        "Berlin",
		"location":    "Alexanderplatz 1",
		"fixedSalary": 80000,
	}
	resp, body = send(t, app, http.MethodPost, "/api/v1/job/post", post, employerToken)
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	jobID := body["job"].(map[string]any)["id"].(string)

	resp, body = send(t, app, http.MethodGet, "/api/v1/job/", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["jobs"], 1)

	entries, err := logs.List(ctx, activitylog.Query{Verb: "job.posted"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, employerID, entries[0].ActorID)
	assert.Equal(t, "job", entries[0].ObjectType)
	assert.Equal(t, jobID, entries[0].ObjectID)

	entries, err = logs.List(ctx, activitylog.Query{Verb: string(auth.ActivityEventActivationChanged)})
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	resp, _ = send(t, app, http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestLockoutThroughTheAPI(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	cfg := testConfig(t, nil)
	db := testDB(t)
	logs := activitylog.NewSQLSink(db)

	services, err := server.NewServices(cfg, db, zap.NewNop(), logs, clock)
	require.NoError(t, err)

	app := server.New(server.OptionsFromConfig(cfg), zap.NewNop(), db)
	server.Mount(app, services)

	resp, _ := send(t, app, http.MethodPost, "/api/v1/user/register", fiber.Map{
		"name":     "Sam Seeker",
		"email":    "sam@example.com",
		"phone":    "5551234567",
		"password": "password123",
		"role":     auth.RoleJobSeeker,
	}, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	attempt := func(password string) (*http.Response, map[string]any) {
		return send(t, app, http.MethodPost, "/api/v1/user/login", fiber.Map{
			"email": "sam@example.com", "password": password, "role": auth.RoleJobSeeker,
		}, "")
	}

	for i := 0; i < auth.MaxFailedLoginAttempts; i++ {
		resp, _ := attempt("wrong-password")
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}

	resp, body := attempt("password123")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, auth.TextCodeAccountLocked, body["code"])

	entries, err := logs.List(context.Background(), activitylog.Query{Verb: string(auth.ActivityEventAccountLocked)})
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	now = now.Add(auth.LockoutDuration + time.Second)

	resp, _ = attempt("password123")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = attempt("password123")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	entries, err = logs.List(context.Background(), activitylog.Query{Verb: string(auth.ActivityEventAccountUnlocked)})
	require.NoError(t, err)
	assert.Len(t, entries, 1, "expiry is reported once, by the reset")
}
