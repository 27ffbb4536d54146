package store

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store fake used across engine tests, following
// the corpus's preference for testing services against interfaces rather
// than a live database.
type MemoryStore struct {
	mu            sync.Mutex
	users         map[string]User
	usersByEmail  map[string]string // email -> id
	sessions      map[string]Session
	oauthAccounts map[string]OAuthAccount // provider|providerID -> account
	profiles      map[string]UserProfile
	verifications map[string]EmailVerification
	resets        map[string]PasswordReset
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:         make(map[string]User),
		usersByEmail:  make(map[string]string),
		sessions:      make(map[string]Session),
		oauthAccounts: make(map[string]OAuthAccount),
		profiles:      make(map[string]UserProfile),
		verifications: make(map[string]EmailVerification),
		resets:        make(map[string]PasswordReset),
	}
}

func (m *MemoryStore) CreateUser(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.ID == "" {
		u.ID = newID()
	}
	if _, exists := m.usersByEmail[u.Email]; exists {
		return ErrConflict
	}
	u.CreatedAt, u.UpdatedAt = time.Now(), time.Now()
	m.users[u.ID] = *u
	m.usersByEmail[u.Email] = u.ID
	return nil
}

func (m *MemoryStore) GetUserByID(_ context.Context, id string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (m *MemoryStore) GetUserByEmail(_ context.Context, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.usersByEmail[email]
	if !ok {
		return nil, ErrNotFound
	}
	u := m.users[id]
	return &u, nil
}

func (m *MemoryStore) UpdateUserPassword(_ context.Context, userID, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash = &passwordHash
	u.UpdatedAt = time.Now()
	m.users[userID] = u
	return nil
}

func (m *MemoryStore) SetEmailVerified(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.EmailVerified = true
	u.UpdatedAt = time.Now()
	m.users[userID] = u
	return nil
}

func (m *MemoryStore) DeleteUser(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	delete(m.usersByEmail, u.Email)
	delete(m.users, userID)
	for id, s := range m.sessions {
		if s.UserID == userID {
			delete(m.sessions, id)
		}
	}
	for k, a := range m.oauthAccounts {
		if a.UserID == userID {
			delete(m.oauthAccounts, k)
		}
	}
	delete(m.profiles, userID)
	return nil
}

func (m *MemoryStore) CreateSession(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == "" {
		s.ID = newID()
	}
	for _, existing := range m.sessions {
		if existing.Token == s.Token {
			return ErrConflict
		}
	}
	s.CreatedAt = time.Now()
	m.sessions[s.ID] = *s
	return nil
}

func (m *MemoryStore) GetSessionByToken(_ context.Context, token string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.Token == token {
			return &s, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) ListSessionsByUser(_ context.Context, userID string) ([]Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Session
	for _, s := range m.sessions {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *MemoryStore) DeleteSession(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[sessionID]; !ok {
		return ErrNotFound
	}
	delete(m.sessions, sessionID)
	return nil
}

func (m *MemoryStore) DeleteSessionByToken(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		if s.Token == token {
			delete(m.sessions, id)
			return nil
		}
	}
	return nil
}

func (m *MemoryStore) DeleteAllSessionsForUser(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		if s.UserID == userID {
			delete(m.sessions, id)
		}
	}
	return nil
}

func (m *MemoryStore) DeleteOtherSessions(_ context.Context, userID, keepSessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		if s.UserID == userID && id != keepSessionID {
			delete(m.sessions, id)
		}
	}
	return nil
}

func (m *MemoryStore) DeleteExpiredSessions(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, s := range m.sessions {
		if s.ExpiresAt.Before(before) {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

func oauthKey(provider Provider, providerID string) string { return string(provider) + "|" + providerID }

func (m *MemoryStore) CreateOAuthAccount(_ context.Context, a *OAuthAccount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == "" {
		a.ID = newID()
	}
	key := oauthKey(a.Provider, a.ProviderID)
	if _, exists := m.oauthAccounts[key]; exists {
		return ErrConflict
	}
	a.CreatedAt = time.Now()
	m.oauthAccounts[key] = *a
	return nil
}

func (m *MemoryStore) GetOAuthAccountByProvider(_ context.Context, provider Provider, providerID string) (*OAuthAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.oauthAccounts[oauthKey(provider, providerID)]
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (m *MemoryStore) ListOAuthAccountsByUser(_ context.Context, userID string) ([]OAuthAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []OAuthAccount
	for _, a := range m.oauthAccounts {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *MemoryStore) DeleteOAuthAccount(_ context.Context, userID string, provider Provider) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, a := range m.oauthAccounts {
		if a.UserID == userID && a.Provider == provider {
			delete(m.oauthAccounts, key)
			return nil
		}
	}
	return ErrNotFound
}

func (m *MemoryStore) GetUserProfile(_ context.Context, userID string) (*UserProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (m *MemoryStore) UpsertUserProfile(_ context.Context, p *UserProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == "" {
		p.ID = newID()
	}
	m.profiles[p.UserID] = *p
	return nil
}

func (m *MemoryStore) CreateEmailVerification(_ context.Context, v *EmailVerification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v.ID == "" {
		v.ID = newID()
	}
	v.CreatedAt = time.Now()
	m.verifications[v.Token] = *v
	return nil
}

func (m *MemoryStore) GetEmailVerificationByToken(_ context.Context, token string) (*EmailVerification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.verifications[token]
	if !ok {
		return nil, ErrNotFound
	}
	return &v, nil
}

func (m *MemoryStore) MarkEmailVerificationVerified(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for token, v := range m.verifications {
		if v.ID == id {
			now := time.Now()
			v.Verified = true
			v.VerifiedAt = &now
			m.verifications[token] = v
			return nil
		}
	}
	return ErrNotFound
}

func (m *MemoryStore) CreatePasswordReset(_ context.Context, r *PasswordReset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == "" {
		r.ID = newID()
	}
	r.CreatedAt = time.Now()
	m.resets[r.Token] = *r
	return nil
}

func (m *MemoryStore) GetPasswordResetByToken(_ context.Context, token string) (*PasswordReset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.resets[token]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (m *MemoryStore) MarkPasswordResetUsed(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for token, r := range m.resets {
		if r.ID == id {
			now := time.Now()
			r.Used = true
			r.UsedAt = &now
			m.resets[token] = r
			return nil
		}
	}
	return ErrNotFound
}

func (m *MemoryStore) DeleteExpiredPasswordResets(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for token, r := range m.resets {
		if r.ExpiresAt.Before(before) {
			delete(m.resets, token)
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) Ping(_ context.Context) error { return nil }

// DebugVerificationTokensForUser returns every email-verification token
// created for userID. Exported for test use only (there is no production
// need to list verification rows by user); not part of the Store
// interface.
func (m *MemoryStore) DebugVerificationTokensForUser(_ context.Context, userID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for token, v := range m.verifications {
		if v.UserID == userID {
			out = append(out, token)
		}
	}
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
