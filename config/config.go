// Package config loads the identity service's configuration from the
// environment, following the same load-once-parse-into-struct idiom the
// rest of the corpus uses for env-driven config.
package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the complete set of environment-driven settings for the
// service. Field groups mirror spec.md §6.
type Config struct {
	Port       int    `env:"PORT" envDefault:"8080"`
	APIVersion string `env:"API_VERSION" envDefault:"v1"`

	DatabaseDSN string `env:"DATABASE_DSN,required"`

	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// AccessTokenSecret and JWTAccessSecret are two accepted env var
	// names for the same setting; AccessSecret() resolves them.
	AccessTokenSecret string `env:"ACCESS_TOKEN_SECRET"`
	JWTAccessSecret   string `env:"JWT_ACCESS_SECRET"`
	RefreshSecret     string `env:"REFRESH_TOKEN_SECRET,required"`

	AccessTokenTTL  time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"15m"`
	RefreshTokenTTL time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"168h"`

	Issuer   string `env:"TOKEN_ISSUER" envDefault:"the auth service"`
	Audience string `env:"TOKEN_AUDIENCE" envDefault:"the consuming API"`

	GoogleClientID     string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURL  string `env:"GOOGLE_REDIRECT_URL"`

	GitHubClientID     string `env:"GITHUB_CLIENT_ID"`
	GitHubClientSecret string `env:"GITHUB_CLIENT_SECRET"`
	GitHubRedirectURL  string `env:"GITHUB_REDIRECT_URL"`

	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUsername string `env:"SMTP_USERNAME"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	FromAddress  string `env:"MAIL_FROM" envDefault:"no-reply@example.com"`
	FromName     string `env:"MAIL_FROM_NAME" envDefault:"Auth Service"`

	FrontendBaseURL string `env:"FRONTEND_BASE_URL" envDefault:"http://localhost:3000"`

	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:","`

	RateLimitWindow time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`
	RateLimitMax    int           `env:"RATE_LIMIT_MAX" envDefault:"60"`

	BcryptCost int `env:"BCRYPT_COST" envDefault:"12"`

	LockoutMaxAttempts   int           `env:"LOCKOUT_MAX_ATTEMPTS" envDefault:"5"`
	LockoutDuration      time.Duration `env:"LOCKOUT_DURATION" envDefault:"30m"`
	LockoutCounterWindow time.Duration `env:"LOCKOUT_COUNTER_WINDOW" envDefault:"1h"`

	PasswordResetTTL      time.Duration `env:"PASSWORD_RESET_TTL" envDefault:"1h"`
	EmailVerificationTTL  time.Duration `env:"EMAIL_VERIFICATION_TTL" envDefault:"24h"`

	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"1h"`
}

var loadOnce sync.Once

// Load reads .env (if present) once per process and parses environment
// variables into a new Config.
func Load() (*Config, error) {
	loadOnce.Do(func() {
		_ = godotenv.Load()
	})

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parsing environment: %w", err)
	}
	if cfg.AccessSecret() == "" {
		return nil, fmt.Errorf("config: one of ACCESS_TOKEN_SECRET or JWT_ACCESS_SECRET is required")
	}
	return cfg, nil
}

// AccessSecret resolves the two accepted env var names for the
// access-token signing secret, per spec.md §6: "Two environment-variable
// names for the access-token secret MUST be accepted and treated as
// equivalent for backward compatibility."
func (c *Config) AccessSecret() string {
	if strings.TrimSpace(c.AccessTokenSecret) != "" {
		return c.AccessTokenSecret
	}
	return c.JWTAccessSecret
}
