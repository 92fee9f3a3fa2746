package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// TokenRepository defines the interface for access token persistence.
type TokenRepository interface {
	// Create inserts a token. Returns ErrTokenExists if the hash is taken.
	Create(ctx context.Context, token *Token) error

	// GetByHash returns ErrTokenInvalid if no token has the hash.
	GetByHash(ctx context.Context, tokenHash string) (*Token, error)

	// GetByAuthCode returns ErrAuthCodeInvalid if no token carries the code.
	GetByAuthCode(ctx context.Context, code string) (*Token, error)

	// SetAuthCode stores code on the token unless it already has one.
	// It reports whether the code was stored.
	SetAuthCode(ctx context.Context, tokenHash, code string) (bool, error)

	// Delete removes a token owned by accountID and reports whether a row
	// was removed. Deleting a missing token is not an error.
	Delete(ctx context.Context, accountID, tokenHash string) (bool, error)

	// DeleteExpired removes every token expiring at or before now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)

	// DeleteExpiredForAccount is DeleteExpired limited to one account.
	DeleteExpiredForAccount(ctx context.Context, accountID string, now time.Time) (int64, error)

	// Count returns the number of stored tokens.
	Count(ctx context.Context) (int, error)
}

// SQLiteTokenRepository implements TokenRepository using SQLite.
type SQLiteTokenRepository struct {
	db *sql.DB
}

// NewTokenRepository creates a new SQLite-backed token repository.
func NewTokenRepository(db *sql.DB) *SQLiteTokenRepository {
	return &SQLiteTokenRepository{db: db}
}

const tokenColumns = "token_hash, account_id, auth_code, issued_at, expires_at"

// Create inserts a new token.
func (r *SQLiteTokenRepository) Create(ctx context.Context, token *Token) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO tokens (`+tokenColumns+`) VALUES (?, ?, ?, ?, ?)`,
		token.Hash, token.AccountID, nullString(token.AuthCode),
		token.IssuedAt.UnixMilli(), token.ExpiresAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("creating token: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 { //nolint:errcheck // always succeeds on SQLite
		return ErrTokenExists
	}
	return nil
}

// GetByHash retrieves a token by its SHA-256 hash.
func (r *SQLiteTokenRepository) GetByHash(ctx context.Context, tokenHash string) (*Token, error) {
	t, err := scanToken(r.db.QueryRowContext(ctx,
		`SELECT `+tokenColumns+` FROM tokens WHERE token_hash = ?`, tokenHash))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTokenInvalid
		}
		return nil, fmt.Errorf("getting token: %w", err)
	}
	return t, nil
}

// GetByAuthCode retrieves the token an auth code was minted for.
func (r *SQLiteTokenRepository) GetByAuthCode(ctx context.Context, code string) (*Token, error) {
	t, err := scanToken(r.db.QueryRowContext(ctx,
		`SELECT `+tokenColumns+` FROM tokens WHERE auth_code = ?`, code))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAuthCodeInvalid
		}
		return nil, fmt.Errorf("getting token by auth code: %w", err)
	}
	return t, nil
}

// SetAuthCode stores code if the token has none yet.
func (r *SQLiteTokenRepository) SetAuthCode(ctx context.Context, tokenHash, code string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		"UPDATE tokens SET auth_code = ? WHERE token_hash = ? AND auth_code IS NULL",
		code, tokenHash,
	)
	if err != nil {
		return false, fmt.Errorf("setting auth code: %w", err)
	}
	n, _ := res.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	return n == 1, nil
}

// Delete removes a single token.
func (r *SQLiteTokenRepository) Delete(ctx context.Context, accountID, tokenHash string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM tokens WHERE token_hash = ? AND account_id = ?", tokenHash, accountID)
	if err != nil {
		return false, fmt.Errorf("deleting token: %w", err)
	}
	n, _ := res.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	return n == 1, nil
}

// DeleteExpired removes tokens that have expired.
func (r *SQLiteTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM tokens WHERE expires_at <= ?", now.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("deleting expired tokens: %w", err)
	}
	count, _ := res.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	return count, nil
}

// DeleteExpiredForAccount removes one account's expired tokens.
func (r *SQLiteTokenRepository) DeleteExpiredForAccount(ctx context.Context, accountID string, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM tokens WHERE account_id = ? AND expires_at <= ?", accountID, now.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("deleting expired tokens for account: %w", err)
	}
	count, _ := res.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	return count, nil
}

// Count returns the number of stored tokens.
func (r *SQLiteTokenRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tokens").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting tokens: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanToken(row scanner) (*Token, error) {
	var t Token
	var authCode sql.NullString
	var issuedAt, expiresAt int64

	if err := row.Scan(&t.Hash, &t.AccountID, &authCode, &issuedAt, &expiresAt); err != nil {
		return nil, err
	}
	t.AuthCode = authCode.String
	t.IssuedAt = time.UnixMilli(issuedAt).UTC()
	t.ExpiresAt = time.UnixMilli(expiresAt).UTC()
	return &t, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
