// Package auth wires the identity-and-session service's engines together.
// Constructor-injected services (spec.md §9's "wiring happens once at
// process start") replace the teacher's fluent Builder with a simpler
// all-at-once constructor, since this service has no permission registry
// or role manager to assemble incrementally.
package auth

import (
	"context"
	"fmt"

	"github.com/codezest-academy/codezest-auth/cache"
	"github.com/codezest-academy/codezest-auth/config"
	"github.com/codezest-academy/codezest-auth/credential"
	"github.com/codezest-academy/codezest-auth/csrf"
	"github.com/codezest-academy/codezest-auth/events"
	"github.com/codezest-academy/codezest-auth/logging"
	"github.com/codezest-academy/codezest-auth/mailer"
	"github.com/codezest-academy/codezest-auth/oauth"
	"github.com/codezest-academy/codezest-auth/password"
	"github.com/codezest-academy/codezest-auth/session"
	"github.com/codezest-academy/codezest-auth/store"
	"github.com/codezest-academy/codezest-auth/sweeper"
	"github.com/codezest-academy/codezest-auth/token"
	"github.com/codezest-academy/codezest-auth/usercache"
	"go.uber.org/zap"
)

// Service bundles every engine a caller needs, wired per spec.md §2's
// control-flow graph: request handlers call into Credential, Session, or
// OAuth, which in turn share Tokens, the two stores, CSRF, and Events.
type Service struct {
	Config     *config.Config
	Log        *zap.Logger
	Store      store.Store
	Cache      *cache.Cache
	Tokens     *token.Service
	Events     *events.Emitter
	Sessions   *session.Engine
	Credential *credential.Engine
	OAuth      *oauth.Engine
	CSRF       *csrf.Engine
	Users      *usercache.Reader
	Mailer     mailer.Mailer
	Sweeper    *sweeper.Sweeper
}

// Option customizes New before it builds the durable/ephemeral
// connections, mirroring the teacher's WithX fluent options but kept to
// the seams a caller actually needs to override for tests.
type Option func(*options)

type options struct {
	sink   events.Sink
	mailer mailer.Mailer
}

// WithEventSink overrides the default NoOpSink, e.g. to capture events in
// tests or pipe them to a JSONWriterSink in production.
func WithEventSink(sink events.Sink) Option {
	return func(o *options) { o.sink = sink }
}

// WithMailer overrides the default SMTP-backed mailer, e.g. with
// mailer.NoOpMailer{} in tests or when mail delivery is disabled.
func WithMailer(m mailer.Mailer) Option {
	return func(o *options) { o.mailer = m }
}

// New builds every engine from cfg and opts. The caller owns the returned
// Service's lifetime: call Close when done and, separately, start
// Sweeper.Run in its own goroutine if background sweeping is desired.
func New(cfg *config.Config, log *zap.Logger, opts ...Option) (*Service, error) {
	o := &options{sink: events.NoOpSink{}}
	for _, opt := range opts {
		opt(o)
	}

	pg, err := store.Connect(store.Config{DSN: cfg.DatabaseDSN})
	if err != nil {
		return nil, fmt.Errorf("auth: connecting to durable store: %w", err)
	}

	c := cache.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err := c.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("auth: connecting to ephemeral store: %w", err)
	}

	tokens, err := token.NewService(cfg.AccessSecret(), cfg.RefreshSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL, cfg.Issuer, cfg.Audience)
	if err != nil {
		return nil, fmt.Errorf("auth: building token service: %w", err)
	}

	emitter := events.NewEmitter(o.sink)
	userCache := usercache.New(c, pg, log)
	hasher := password.New(cfg.BcryptCost)
	sessions := session.New(pg, c, tokens, emitter, log)

	m := o.mailer
	if m == nil {
		m = mailer.NewSMTPMailer(mailer.Config{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.FromAddress,
			FromName: cfg.FromName,
		})
	}

	credCfg := credential.Config{
		LockoutMaxAttempts:   cfg.LockoutMaxAttempts,
		LockoutDuration:      cfg.LockoutDuration,
		LockoutCounterWindow: cfg.LockoutCounterWindow,
		PasswordResetTTL:     cfg.PasswordResetTTL,
		EmailVerificationTTL: cfg.EmailVerificationTTL,
		FrontendBaseURL:      cfg.FrontendBaseURL,
	}
	cred := credential.New(credCfg, pg, c, hasher, sessions, m, emitter, userCache, log)

	providers := map[oauth.ProviderName]oauth.Provider{}
	if cfg.GoogleClientID != "" {
		providers[oauth.Google] = oauth.NewGoogleProvider(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL)
	}
	if cfg.GitHubClientID != "" {
		providers[oauth.GitHub] = oauth.NewGitHubProvider(cfg.GitHubClientID, cfg.GitHubClientSecret, cfg.GitHubRedirectURL)
	}
	oauthEngine := oauth.New(providers, pg, c, sessions, emitter, userCache, log)

	csrfEngine := csrf.New(c)
	sw := sweeper.New(pg, cfg.SweepInterval, log)

	return &Service{
		Config:     cfg,
		Log:        log,
		Store:      pg,
		Cache:      c,
		Tokens:     tokens,
		Events:     emitter,
		Sessions:   sessions,
		Credential: cred,
		OAuth:      oauthEngine,
		CSRF:       csrfEngine,
		Users:      userCache,
		Mailer:     m,
		Sweeper:    sw,
	}, nil
}

// Close releases the durable and ephemeral store connections.
func (s *Service) Close() error {
	if err := s.Cache.Close(); err != nil {
		return err
	}
	if pg, ok := s.Store.(*store.Postgres); ok {
		return pg.Close()
	}
	return nil
}

// Bootstrap is the convenience entrypoint a process's main package calls:
// load config from the environment, build the logger, build the Service,
// and run the durable-store migration. It does not start the sweeper or
// any HTTP surface — those are the caller's concern (spec.md §1's
// explicit Non-goals).
func Bootstrap(ctx context.Context) (*Service, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("auth: loading config: %w", err)
	}

	log, err := logging.Init(logging.ConfigFromEnv())
	if err != nil {
		return nil, fmt.Errorf("auth: initializing logger: %w", err)
	}

	svc, err := New(cfg, log)
	if err != nil {
		return nil, err
	}

	if pg, ok := svc.Store.(*store.Postgres); ok {
		if err := pg.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("auth: running migrations: %w", err)
		}
	}

	return svc, nil
}
