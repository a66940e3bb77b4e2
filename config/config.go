// Package config loads the immutable process configuration. Sources are
// layered: built in defaults, an optional YAML file, an optional .env file
// and finally the process environment.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTest        = "test"
)

type Config struct {
	Env         string      `koanf:"env"`
	HTTP        HTTP        `koanf:"http"`
	Auth        Auth        `koanf:"auth"`
	Database    Database    `koanf:"database"`
	Redis       Redis       `koanf:"redis"`
	Log         Log         `koanf:"log"`
	Admin       Admin       `koanf:"admin"`
	Diagnostics Diagnostics `koanf:"diagnostics"`
}

type HTTP struct {
	Addr            string        `koanf:"addr"`
	BodyLimit       int           `koanf:"body_limit"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	CORSOrigins     string        `koanf:"cors_origins"`
}

type Auth struct {
	SigningKey    string        `koanf:"signing_key"`
	EncryptionKey string        `koanf:"encryption_key"`
	Issuer        string        `koanf:"issuer"`
	Audience      []string      `koanf:"audience"`
	TokenTTL      time.Duration `koanf:"token_ttl"`
	CookieName    string        `koanf:"cookie_name"`
	HashCost      int           `koanf:"hash_cost"`
}

type Database struct {
	DSN             string        `koanf:"dsn"`
	Debug           bool          `koanf:"debug"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
}

// Redis is optional, an empty Addr disables the Redis activity sink
type Redis struct {
	Addr          string `koanf:"addr"`
	ActivityKey   string `koanf:"activity_key"`
	ActivityLimit int    `koanf:"activity_limit"`
}

type Log struct {
	Level        string        `koanf:"level"`
	File         string        `koanf:"file"`
	MaxAge       time.Duration `koanf:"max_age"`
	RotationTime time.Duration `koanf:"rotation_time"`
}

// Admin seeds the bootstrap admin account. An empty Email skips seeding.
type Admin struct {
	Name     string `koanf:"name"`
	Email    string `koanf:"email"`
	Phone    string `koanf:"phone"`
	Password string `koanf:"password"`
}

type Diagnostics struct {
	GopsAddr string `koanf:"gops_addr"`
}

func defaults() map[string]any {
	return map[string]any{
		"env":                        EnvDevelopment,
		"http.addr":                  ":4000",
		"http.body_limit":            1 << 20,
		"http.read_timeout":          "15s",
		"http.write_timeout":         "15s",
		"http.shutdown_timeout":      "10s",
		"http.cors_origins":          "*",
		"auth.issuer":                "jobboard",
		"auth.audience":              []string{"jobboard"},
		"auth.token_ttl":             "168h",
		"auth.cookie_name":           "token",
		"auth.hash_cost":             10,
		"database.dsn":               "file:jobboard.db?cache=shared",
		"database.max_open_conns":    10,
		"database.max_idle_conns":    5,
		"database.conn_max_lifetime": "30m",
		"redis.activity_key":         "jobboard:activity",
		"redis.activity_limit":       1000,
		"log.level":                  "info",
		"log.max_age":                "168h",
		"log.rotation_time":          "24h",
		"admin.name":                 "Administrator",
	}
}

// envKeys maps environment variables to config keys. The unprefixed names
// are kept for existing deployments.
var envKeys = map[string]string{
	"JOBBOARD_ENV":                   "env",
	"JOBBOARD_HTTP_ADDR":             "http.addr",
	"JOBBOARD_HTTP_BODY_LIMIT":       "http.body_limit",
	"JOBBOARD_HTTP_CORS_ORIGINS":     "http.cors_origins",
	"JOBBOARD_HTTP_SHUTDOWN_TIMEOUT": "http.shutdown_timeout",
	"JOBBOARD_AUTH_SIGNING_KEY":      "auth.signing_key",
	"JOBBOARD_AUTH_ENCRYPTION_KEY":   "auth.encryption_key",
	"JOBBOARD_AUTH_ISSUER":           "auth.issuer",
	"JOBBOARD_AUTH_AUDIENCE":         "auth.audience",
	"JOBBOARD_AUTH_TOKEN_TTL":        "auth.token_ttl",
	"JOBBOARD_AUTH_COOKIE_NAME":      "auth.cookie_name",
	"JOBBOARD_AUTH_HASH_COST":        "auth.hash_cost",
	"JOBBOARD_DATABASE_DSN":          "database.dsn",
	"JOBBOARD_DATABASE_DEBUG":        "database.debug",
	"JOBBOARD_REDIS_ADDR":            "redis.addr",
	"JOBBOARD_REDIS_ACTIVITY_KEY":    "redis.activity_key",
	"JOBBOARD_LOG_LEVEL":             "log.level",
	"JOBBOARD_LOG_FILE":              "log.file",
	"JOBBOARD_ADMIN_NAME":            "admin.name",
	"JOBBOARD_ADMIN_EMAIL":           "admin.email",
	"JOBBOARD_ADMIN_PHONE":           "admin.phone",
	"JOBBOARD_ADMIN_PASSWORD":        "admin.password",
	"JOBBOARD_DIAGNOSTICS_GOPS_ADDR": "diagnostics.gops_addr",
	"JWT_SECRET":                     "auth.signing_key",
	"ENCRYPTION_KEY":                 "auth.encryption_key",
	"PORT":                           "http.addr",
}

type loader struct {
	file      string
	envFile   string
	lookupEnv func(string) (string, bool)
	overrides map[string]any
}

type Option func(*loader)

// WithFile loads a YAML file on top of the defaults
func WithFile(path string) Option {
	return func(l *loader) {
		l.file = path
	}
}

// WithEnvFile reads a .env file. Real environment variables win over it.
func WithEnvFile(path string) Option {
	return func(l *loader) {
		l.envFile = path
	}
}

// WithLookupEnv replaces os.LookupEnv
func WithLookupEnv(fn func(string) (string, bool)) Option {
	return func(l *loader) {
		if fn != nil {
			l.lookupEnv = fn
		}
	}
}

// WithOverrides applies dotted keys last, e.g. {"auth.token_ttl": "1h"}
func WithOverrides(values map[string]any) Option {
	return func(l *loader) {
		l.overrides = values
	}
}

// Load builds and validates the configuration
func Load(opts ...Option) (*Config, error) {
	l := &loader{lookupEnv: os.LookupEnv}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}

	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("config: defaults: %w", err)
	}

	if l.file != "" {
		if err := k.Load(file.Provider(l.file), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: load %s: %w", l.file, err)
		}
	}

	env, err := l.environment()
	if err != nil {
		return nil, err
	}
	if err := k.Load(confmap.Provider(env, "."), nil); err != nil {
		return nil, fmt.Errorf("config: environment: %w", err)
	}

	if len(l.overrides) > 0 {
		if err := k.Load(confmap.Provider(l.overrides, "."), nil); err != nil {
			return nil, fmt.Errorf("config: overrides: %w", err)
		}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}

	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

func (l *loader) environment() (map[string]any, error) {
	dotenv := map[string]string{}
	if l.envFile != "" {
		values, err := godotenv.Read(l.envFile)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: read %s: %w", l.envFile, err)
		}
		if values != nil {
			dotenv = values
		}
	}

	out := map[string]any{}
	// unprefixed names first so JOBBOARD_* wins when both are set
	for _, prefixed := range []bool{false, true} {
		for name, key := range envKeys {
			if strings.HasPrefix(name, "JOBBOARD_") != prefixed {
				continue
			}
			value, ok := l.lookupEnv(name)
			if !ok {
				value, ok = dotenv[name]
			}
			if !ok || value == "" {
				continue
			}
			if name == "PORT" && !strings.Contains(value, ":") {
				value = ":" + value
			}
			if key == "auth.audience" {
				out[key] = strings.Split(value, ",")
				continue
			}
			out[key] = value
		}
	}
	return out, nil
}

func (c *Config) normalize() {
	c.Env = strings.ToLower(strings.TrimSpace(c.Env))
	c.Auth.CookieName = strings.TrimSpace(c.Auth.CookieName)

	audience := c.Auth.Audience[:0]
	for _, a := range c.Auth.Audience {
		if a = strings.TrimSpace(a); a != "" {
			audience = append(audience, a)
		}
	}
	c.Auth.Audience = audience
}

// Validate checks the secrets and limits the services depend on
func (c Config) Validate() error {
	if err := validation.ValidateStruct(&c,
		validation.Field(&c.Env, validation.Required, validation.In(EnvDevelopment, EnvProduction, EnvTest)),
	); err != nil {
		return err
	}

	if err := validation.ValidateStruct(&c.Auth,
		validation.Field(&c.Auth.SigningKey, validation.Required, validation.Length(32, 0)),
		validation.Field(&c.Auth.EncryptionKey, validation.Required, validation.Length(32, 0)),
		validation.Field(&c.Auth.TokenTTL, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.Auth.CookieName, validation.Required),
		validation.Field(&c.Auth.Issuer, validation.Required),
	); err != nil {
		return fmt.Errorf("auth: %w", err)
	}

	if err := validation.ValidateStruct(&c.Database,
		validation.Field(&c.Database.DSN, validation.Required),
	); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := validation.ValidateStruct(&c.HTTP,
		validation.Field(&c.HTTP.Addr, validation.Required),
	); err != nil {
		return fmt.Errorf("http: %w", err)
	}

	if c.Admin.Email != "" {
		if err := validation.ValidateStruct(&c.Admin,
			validation.Field(&c.Admin.Password, validation.Required),
			validation.Field(&c.Admin.Phone, validation.Required),
		); err != nil {
			return fmt.Errorf("admin: %w", err)
		}
	}

	return nil
}

func (c Config) IsDevelopment() bool {
	return c.Env == EnvDevelopment
}

func (c Config) GetSigningKey() string {
	return c.Auth.SigningKey
}

func (c Config) GetTokenExpiration() time.Duration {
	return c.Auth.TokenTTL
}

func (c Config) GetIssuer() string {
	return c.Auth.Issuer
}

func (c Config) GetAudience() []string {
	return c.Auth.Audience
}

func (c Config) GetCookieName() string {
	return c.Auth.CookieName
}

// GetSecureCookie is off only in development, where the API is served over http
func (c Config) GetSecureCookie() bool {
	return !c.IsDevelopment()
}

func (c Config) GetPasswordHashCost() int {
	return c.Auth.HashCost
}
