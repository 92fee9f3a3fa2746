package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/bumper/internal/account"
)

// maxIssueAttempts bounds retries when a freshly generated token collides
// with a stored one.
const maxIssueAttempts = 3

// Logger defines the logging interface used by the Manager.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Observer receives session lifecycle counts. Metrics implement it.
type Observer interface {
	TokenIssued()
	TokensRevoked(reason string, n int)
}

type noopObserver struct{}

func (noopObserver) TokenIssued()               {}
func (noopObserver) TokensRevoked(string, int) {}

// Manager issues, validates and revokes access tokens and auth codes.
//
// All public methods are thread-safe.
type Manager struct {
	tokens TokenRepository
	ttl    time.Duration

	// mu serialises every mutation so that auth code minting and sweeps
	// never interleave with issuance.
	mu sync.Mutex

	now      func() time.Time
	newValue func() string
	logger   Logger
	observer Observer
}

// NewManager creates a session manager backed by tokens.
func NewManager(tokens TokenRepository, ttl time.Duration) *Manager {
	return &Manager{
		tokens:   tokens,
		ttl:      ttl,
		now:      time.Now,
		newValue: newOpaqueValue,
		logger:   noopLogger{},
		observer: noopObserver{},
	}
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// SetObserver sets the observer notified of issuance and revocation.
func (m *Manager) SetObserver(o Observer) {
	m.observer = o
}

// TTL returns the configured token lifetime.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// IssueToken creates a new access token for accountID.
// The returned Token is the only place the raw value is ever available.
func (m *Manager) IssueToken(ctx context.Context, accountID string) (*Token, error) {
	accountID = account.NormalizeUID(accountID)

	m.mu.Lock()
	defer m.mu.Unlock()

	for attempt := 0; attempt < maxIssueAttempts; attempt++ {
		now := m.now().UTC()
		value := m.newValue()
		token := &Token{
			Hash:      HashToken(value),
			Value:     value,
			AccountID: accountID,
			IssuedAt:  now,
			ExpiresAt: now.Add(m.ttl),
		}

		err := m.tokens.Create(ctx, token)
		if errors.Is(err, ErrTokenExists) {
			m.logger.Warn("token value collision, regenerating", "account_id", accountID)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("issuing token: %w", err)
		}

		m.observer.TokenIssued()
		m.logger.Debug("token issued", "account_id", accountID, "expires_at", token.ExpiresAt)
		return token, nil
	}
	return nil, fmt.Errorf("issuing token: %w after %d attempts", ErrTokenExists, maxIssueAttempts)
}

// ValidateToken returns nil if value is a live token owned by accountID.
// accountID may carry the "fuid_" prefix. Any other outcome is ErrTokenInvalid
// or a repository error.
func (m *Manager) ValidateToken(ctx context.Context, accountID, value string) error {
	_, err := m.lookup(ctx, accountID, value)
	return err
}

func (m *Manager) lookup(ctx context.Context, accountID, value string) (*Token, error) {
	if value == "" {
		return nil, ErrTokenInvalid
	}
	token, err := m.tokens.GetByHash(ctx, HashToken(value))
	if err != nil {
		return nil, err
	}
	if token.AccountID != account.NormalizeUID(accountID) || token.Expired(m.now()) {
		return nil, ErrTokenInvalid
	}
	return token, nil
}

// RevokeToken deletes value if accountID owns it. Unknown tokens are ignored.
func (m *Manager) RevokeToken(ctx context.Context, accountID, value string) error {
	if value == "" {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	deleted, err := m.tokens.Delete(ctx, account.NormalizeUID(accountID), HashToken(value))
	if err != nil {
		return fmt.Errorf("revoking token: %w", err)
	}
	if deleted {
		m.observer.TokensRevoked("logout", 1)
	}
	return nil
}

// IssueOrGetAuthCode returns the auth code attached to the token, minting
// one on first use. Repeated calls for the same token return the same code.
func (m *Manager) IssueOrGetAuthCode(ctx context.Context, accountID, country, value string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	token, err := m.lookup(ctx, accountID, value)
	if err != nil {
		return "", err
	}
	if token.AuthCode != "" {
		return token.AuthCode, nil
	}

	code := newAuthCode(country)
	stored, err := m.tokens.SetAuthCode(ctx, token.Hash, code)
	if err != nil {
		return "", fmt.Errorf("minting auth code: %w", err)
	}
	if stored {
		return code, nil
	}

	// The token gained a code or vanished between the read and the write.
	token, err = m.tokens.GetByHash(ctx, token.Hash)
	if err != nil {
		return "", err
	}
	if token.AuthCode == "" {
		return "", ErrTokenInvalid
	}
	return token.AuthCode, nil
}

// CheckAuthCode returns nil if code was minted for a live token owned by uid.
// uid may carry the "fuid_" prefix.
func (m *Manager) CheckAuthCode(ctx context.Context, uid, code string) error {
	if code == "" {
		return ErrAuthCodeInvalid
	}
	token, err := m.tokens.GetByAuthCode(ctx, code)
	if err != nil {
		return err
	}
	if token.AccountID != account.NormalizeUID(uid) || token.Expired(m.now()) {
		return ErrAuthCodeInvalid
	}
	return nil
}

// RevokeExpiredTokens deletes every expired token across all accounts.
// It is safe to call concurrently with issuance and validation.
func (m *Manager) RevokeExpiredTokens(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, err := m.tokens.DeleteExpired(ctx, m.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		m.observer.TokensRevoked("expired", int(n))
		m.logger.Debug("expired tokens revoked", "count", n)
	}
	return n, nil
}

// RevokeExpiredTokensFor deletes one account's expired tokens. Login calls
// it before issuing a new token.
func (m *Manager) RevokeExpiredTokensFor(ctx context.Context, accountID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, err := m.tokens.DeleteExpiredForAccount(ctx, account.NormalizeUID(accountID), m.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		m.observer.TokensRevoked("expired", int(n))
	}
	return n, nil
}

// ActiveTokens returns the number of stored tokens, live or awaiting sweep.
func (m *Manager) ActiveTokens(ctx context.Context) (int, error) {
	return m.tokens.Count(ctx)
}
