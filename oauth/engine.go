package oauth

import (
	"context"
	"strings"
	"time"

	"github.com/codezest-academy/codezest-auth/apperr"
	"github.com/codezest-academy/codezest-auth/cache"
	"github.com/codezest-academy/codezest-auth/events"
	"github.com/codezest-academy/codezest-auth/session"
	"github.com/codezest-academy/codezest-auth/store"
	"github.com/codezest-academy/codezest-auth/token"
	"github.com/codezest-academy/codezest-auth/usercache"
	"go.uber.org/zap"
)

// StateTTL is the oauth:state:{nonce} lifetime from spec.md §3.
const StateTTL = 10 * time.Minute

type stateRecord struct {
	Provider  ProviderName `json:"provider"`
	Timestamp time.Time    `json:"timestamp"`
}

// Engine implements spec.md §4.4.
type Engine struct {
	providers map[ProviderName]Provider
	store     store.Store
	cache     *cache.Cache
	sessions  *session.Engine
	emitter   *events.Emitter
	userCache *usercache.Reader
	log       *zap.Logger

	// newOAuthUserEmailVerified resolves spec.md §9 open question 1: see
	// DESIGN.md for the rationale (true — new OAuth users arrive with a
	// provider-verified email).
	newOAuthUserEmailVerified bool
}

func New(providers map[ProviderName]Provider, s store.Store, c *cache.Cache, sessions *session.Engine, emitter *events.Emitter, userCache *usercache.Reader, log *zap.Logger) *Engine {
	return &Engine{
		providers:                 providers,
		store:                     s,
		cache:                     c,
		sessions:                  sessions,
		emitter:                   emitter,
		userCache:                 userCache,
		log:                       log,
		newOAuthUserEmailVerified: true,
	}
}

func (e *Engine) invalidateUserCache(ctx context.Context, userID string) {
	if e.userCache != nil {
		e.userCache.Invalidate(ctx, userID)
	}
}

// AuthorizationURL implements spec.md §4.4 "authorizationURL".
func (e *Engine) AuthorizationURL(ctx context.Context, providerName ProviderName) (string, error) {
	p, ok := e.providers[providerName]
	if !ok {
		return "", apperr.NotFound("unknown OAuth provider")
	}

	nonce, err := token.RandomToken()
	if err != nil {
		return "", apperr.Internal("oauth: generating state nonce", err)
	}
	if err := e.cache.SetJSON(ctx, cache.OAuthStateKey(nonce), stateRecord{Provider: providerName, Timestamp: time.Now()}, StateTTL); err != nil {
		return "", apperr.Internal("oauth: storing state", err)
	}

	return p.AuthorizationURL(nonce), nil
}

// CallbackResult is returned by Callback.
type CallbackResult struct {
	User      *store.User
	Pair      token.TokenPair
	IsNewUser bool
}

// Callback implements spec.md §4.4 "callback".
func (e *Engine) Callback(ctx context.Context, providerName ProviderName, code, state, ip, ua string) (*CallbackResult, error) {
	var rec stateRecord
	if err := e.cache.GetJSON(ctx, cache.OAuthStateKey(state), &rec); err != nil {
		e.emitter.Emit(ctx, events.Event{Type: events.OAuthLoginFailed, Provider: string(providerName)})
		return nil, apperr.Unauthorized("invalid or expired OAuth state parameter")
	}
	if rec.Provider != providerName {
		e.emitter.Emit(ctx, events.Event{Type: events.OAuthLoginFailed, Provider: string(providerName)})
		return nil, apperr.Unauthorized("invalid or expired OAuth state parameter")
	}
	// Single-use: delete immediately, before the exchange, so a replay
	// mid-exchange cannot also succeed.
	_ = e.cache.Delete(ctx, cache.OAuthStateKey(state))

	p, ok := e.providers[providerName]
	if !ok {
		return nil, apperr.NotFound("unknown OAuth provider")
	}
	profile, err := p.Exchange(ctx, code)
	if err != nil {
		e.log.Warn("oauth: exchange failed", zap.Error(err))
		e.emitter.Emit(ctx, events.Event{Type: events.OAuthLoginFailed, Provider: string(providerName)})
		return nil, apperr.Unauthorized("OAuth provider exchange failed")
	}

	storeProvider := store.Provider(providerName)
	isNewUser := false

	u, err := e.store.GetUserByEmail(ctx, profile.Email)
	if err == store.ErrNotFound {
		isNewUser = true
		u, err = e.createOAuthUser(ctx, storeProvider, profile)
		if err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, apperr.Internal("oauth: looking up user", err)
	}

	if !isNewUser {
		_, linkErr := e.store.GetOAuthAccountByProvider(ctx, storeProvider, profile.ProviderID)
		if linkErr == store.ErrNotFound {
			if !u.EmailVerified {
				return nil, apperr.BadRequest("verify your email before linking a new sign-in provider")
			}
			if err := e.linkAccount(ctx, u.ID, storeProvider, profile); err != nil {
				return nil, err
			}
			e.invalidateUserCache(ctx, u.ID)
		} else if linkErr != nil {
			return nil, apperr.Internal("oauth: looking up linked account", linkErr)
		}
	}

	pair, _, err := e.sessions.IssueOnAuth(ctx, u.ID, u.Email, string(u.Role), ip, ua, string(providerName))
	if err != nil {
		return nil, err
	}

	e.emitter.Emit(ctx, events.Event{Type: events.OAuthLoginSuccess, UserID: u.ID, Email: u.Email, Provider: string(providerName)})
	return &CallbackResult{User: u, Pair: pair, IsNewUser: isNewUser}, nil
}

func (e *Engine) createOAuthUser(ctx context.Context, provider store.Provider, profile *ProfileInfo) (*store.User, error) {
	first, last := splitName(profile.Name)
	u := &store.User{
		Email:         profile.Email,
		FirstName:     first,
		LastName:      last,
		Role:          store.RoleUser,
		EmailVerified: e.newOAuthUserEmailVerified,
		IsActive:      true,
	}
	if err := e.store.CreateUser(ctx, u); err != nil {
		if err == store.ErrConflict {
			return nil, apperr.Conflict("email already registered")
		}
		return nil, apperr.Internal("oauth: creating user", err)
	}

	if err := e.linkAccount(ctx, u.ID, provider, profile); err != nil {
		return nil, err
	}
	return u, nil
}

func (e *Engine) linkAccount(ctx context.Context, userID string, provider store.Provider, profile *ProfileInfo) error {
	var accessTok, refreshTok *string
	if profile.ProviderAccessToken != "" {
		accessTok = &profile.ProviderAccessToken
	}
	if profile.ProviderRefreshTok != "" {
		refreshTok = &profile.ProviderRefreshTok
	}
	err := e.store.CreateOAuthAccount(ctx, &store.OAuthAccount{
		UserID:              userID,
		Provider:            provider,
		ProviderID:          profile.ProviderID,
		ProviderAccessToken: accessTok,
		ProviderRefreshTok:  refreshTok,
	})
	if err == store.ErrConflict {
		return apperr.Conflict("OAuth account already linked")
	}
	if err != nil {
		return apperr.Internal("oauth: linking account", err)
	}
	return nil
}

func splitName(name string) (first, last string) {
	parts := strings.Fields(name)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		// Single-token names duplicate into last (spec.md §4.4 step 5).
		return parts[0], parts[0]
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}

// GetLinkedProviders implements spec.md §4.4 "getLinkedProviders".
func (e *Engine) GetLinkedProviders(ctx context.Context, userID string) ([]store.OAuthAccount, error) {
	accounts, err := e.store.ListOAuthAccountsByUser(ctx, userID)
	if err != nil {
		return nil, apperr.Internal("oauth: listing linked providers", err)
	}
	return accounts, nil
}

// UnlinkProvider implements spec.md §4.4 "unlinkProvider". Refuses to
// remove the last remaining authentication method — the resolution of
// spec.md §9 open question 2, documented in DESIGN.md.
func (e *Engine) UnlinkProvider(ctx context.Context, userID string, provider store.Provider) error {
	u, err := e.store.GetUserByID(ctx, userID)
	if err != nil {
		return apperr.NotFound("user not found")
	}

	accounts, err := e.store.ListOAuthAccountsByUser(ctx, userID)
	if err != nil {
		return apperr.Internal("oauth: listing linked providers", err)
	}
	if u.PasswordHash == nil && len(accounts) <= 1 {
		return apperr.BadRequest("cannot unlink the only remaining authentication method")
	}

	if err := e.store.DeleteOAuthAccount(ctx, userID, provider); err != nil {
		if err == store.ErrNotFound {
			return apperr.NotFound("OAuth account not linked")
		}
		return apperr.Internal("oauth: unlinking account", err)
	}
	e.invalidateUserCache(ctx, userID)
	return nil
}
