package auth

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/bumper/internal/account"
	"github.com/nerrad567/bumper/internal/infrastructure/database"
	_ "github.com/nerrad567/bumper/migrations"
)

// setupTestDB opens a migrated in-memory database with the given accounts.
func setupTestDB(t *testing.T, accountIDs ...string) *sql.DB {
	t.Helper()
	ctx := context.Background()

	db, err := database.OpenMemory(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	accounts := account.NewSQLiteRepository(db.DB)
	for _, id := range accountIDs {
		_, err := accounts.Create(ctx, id)
		require.NoError(t, err)
	}
	return db.DB
}

func testToken(value, accountID string, issued time.Time, ttl time.Duration) *Token {
	return &Token{
		Hash:      HashToken(value),
		Value:     value,
		AccountID: accountID,
		IssuedAt:  issued,
		ExpiresAt: issued.Add(ttl),
	}
}

func TestTokenRepository_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	repo := NewTokenRepository(setupTestDB(t, "alice"))
	now := time.Now().UTC().Truncate(time.Millisecond)

	tok := testToken("value-1", "alice", now, time.Hour)
	require.NoError(t, repo.Create(ctx, tok))

	got, err := repo.GetByHash(ctx, HashToken("value-1"))
	require.NoError(t, err)
	assert.Equal(t, "alice", got.AccountID)
	assert.Empty(t, got.Value, "raw value is never stored")
	assert.Empty(t, got.AuthCode)
	assert.True(t, got.IssuedAt.Equal(now))
	assert.True(t, got.ExpiresAt.Equal(now.Add(time.Hour)))

	err = repo.Create(ctx, testToken("value-1", "alice", now, time.Hour))
	assert.ErrorIs(t, err, ErrTokenExists)

	_, err = repo.GetByHash(ctx, HashToken("missing"))
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestTokenRepository_SetAuthCodeOnce(t *testing.T) {
	ctx := context.Background()
	repo := NewTokenRepository(setupTestDB(t, "alice"))
	tok := testToken("value-1", "alice", time.Now(), time.Hour)
	require.NoError(t, repo.Create(ctx, tok))

	stored, err := repo.SetAuthCode(ctx, tok.Hash, "us_first")
	require.NoError(t, err)
	assert.True(t, stored)

	stored, err = repo.SetAuthCode(ctx, tok.Hash, "us_second")
	require.NoError(t, err)
	assert.False(t, stored, "an existing code is never replaced")

	got, err := repo.GetByAuthCode(ctx, "us_first")
	require.NoError(t, err)
	assert.Equal(t, tok.Hash, got.Hash)

	_, err = repo.GetByAuthCode(ctx, "us_second")
	assert.ErrorIs(t, err, ErrAuthCodeInvalid)
}

func TestTokenRepository_DeleteScopedToOwner(t *testing.T) {
	ctx := context.Background()
	repo := NewTokenRepository(setupTestDB(t, "alice", "bob"))
	tok := testToken("value-1", "alice", time.Now(), time.Hour)
	require.NoError(t, repo.Create(ctx, tok))

	deleted, err := repo.Delete(ctx, "bob", tok.Hash)
	require.NoError(t, err)
	assert.False(t, deleted)
	_, err = repo.GetByHash(ctx, tok.Hash)
	require.NoError(t, err, "another account cannot delete the token")

	deleted, err = repo.Delete(ctx, "alice", tok.Hash)
	require.NoError(t, err)
	assert.True(t, deleted)
	_, err = repo.GetByHash(ctx, tok.Hash)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	deleted, err = repo.Delete(ctx, "alice", tok.Hash)
	require.NoError(t, err, "deleting twice is not an error")
	assert.False(t, deleted)
}

func TestTokenRepository_DeleteExpired(t *testing.T) {
	ctx := context.Background()
	repo := NewTokenRepository(setupTestDB(t, "alice", "bob"))
	now := time.Now().UTC()

	tests := []struct {
		value   string
		account string
		issued  time.Time
		ttl     time.Duration
	}{
		{"alice-old", "alice", now.Add(-2 * time.Hour), time.Hour},
		{"alice-live", "alice", now, time.Hour},
		{"bob-old", "bob", now.Add(-2 * time.Hour), time.Hour},
		{"bob-live", "bob", now, time.Hour},
	}
	for _, tt := range tests {
		require.NoError(t, repo.Create(ctx, testToken(tt.value, tt.account, tt.issued, tt.ttl)))
	}

	n, err := repo.DeleteExpiredForAccount(ctx, "alice", now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = repo.GetByHash(ctx, HashToken("bob-old"))
	require.NoError(t, err, "other accounts are untouched")

	n, err = repo.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	_, err = repo.GetByHash(ctx, HashToken("alice-live"))
	require.NoError(t, err, "live tokens survive the sweep")
}

func TestTokenRepository_CascadeOnAccountDelete(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t, "alice")
	repo := NewTokenRepository(db)
	require.NoError(t, repo.Create(ctx, testToken("value-1", "alice", time.Now(), time.Hour)))

	_, err := db.ExecContext(ctx, "DELETE FROM accounts WHERE id = ?", "alice")
	require.NoError(t, err)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}
