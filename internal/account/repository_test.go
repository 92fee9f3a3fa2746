package account

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/bumper/internal/infrastructure/database"
	_ "github.com/nerrad567/bumper/migrations"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.OpenMemory(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	return db.DB
}

func TestSQLiteRepository_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteRepository(setupTestDB(t))

	created, err := repo.Create(ctx, "tmpuser")
	require.NoError(t, err)
	assert.Equal(t, "tmpuser", created.ID)

	got, err := repo.GetByID(ctx, "tmpuser")
	require.NoError(t, err)
	assert.Equal(t, "tmpuser", got.ID)
	assert.False(t, got.AllBots)
	assert.Empty(t, got.DeviceIDs)
	assert.Empty(t, got.BotIDs)

	_, err = repo.Create(ctx, "tmpuser")
	assert.ErrorIs(t, err, ErrAccountExists)

	_, err = repo.Create(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidID)

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestSQLiteRepository_AddDevice(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteRepository(setupTestDB(t))

	_, err := repo.Create(ctx, "alice")
	require.NoError(t, err)
	_, err = repo.Create(ctx, "bob")
	require.NoError(t, err)

	require.NoError(t, repo.AddDevice(ctx, "alice", "dev1"))
	require.NoError(t, repo.AddDevice(ctx, "alice", "dev1"), "rebinding to the owner is a no-op")

	got, err := repo.GetByDeviceID(ctx, "dev1")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.ID)
	assert.Equal(t, []string{"dev1"}, got.DeviceIDs)
	assert.True(t, got.HasDevice("dev1"))

	err = repo.AddDevice(ctx, "bob", "dev1")
	assert.ErrorIs(t, err, ErrDeviceBound)

	err = repo.AddDevice(ctx, "nobody", "dev2")
	assert.ErrorIs(t, err, ErrAccountNotFound)

	_, err = repo.GetByDeviceID(ctx, "dev2")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestSQLiteRepository_BotVisibility(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteRepository(setupTestDB(t))

	_, err := repo.Create(ctx, "alice")
	require.NoError(t, err)

	require.NoError(t, repo.AddBot(ctx, "alice", "bot-b"))
	require.NoError(t, repo.AddBot(ctx, "alice", "bot-a"))
	require.NoError(t, repo.AddBot(ctx, "alice", "bot-a"))

	got, err := repo.GetByID(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"bot-a", "bot-b"}, got.BotIDs)
	assert.True(t, got.CanSee("bot-a"))
	assert.False(t, got.CanSee("bot-c"))

	require.NoError(t, repo.RemoveBot(ctx, "bot-a"))
	got, err = repo.GetByID(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"bot-b"}, got.BotIDs)

	require.NoError(t, repo.SetAllBots(ctx, "alice", true))
	got, err = repo.GetByID(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, got.AllBots)
	assert.True(t, got.CanSee("bot-c"))

	assert.ErrorIs(t, repo.SetAllBots(ctx, "nobody", true), ErrAccountNotFound)
	assert.ErrorIs(t, repo.AddBot(ctx, "nobody", "bot-a"), ErrAccountNotFound)
}

func TestSummarize(t *testing.T) {
	a := &Account{ID: "tmpuser"}
	s := a.Summarize("tok", "us")

	assert.Equal(t, Summary{
		AccessToken: "tok",
		Country:     "us",
		Email:       "null@null.com",
		UID:         "fuid_tmpuser",
		Username:    "fusername_tmpuser",
	}, s)
}

func TestNormalizeUID(t *testing.T) {
	assert.Equal(t, "tmpuser", NormalizeUID("fuid_tmpuser"))
	assert.Equal(t, "tmpuser", NormalizeUID("tmpuser"))
	assert.Equal(t, "fuid_tmpuser", PublicUID("fuid_tmpuser"))
	assert.Equal(t, "fuid_tmpuser", PublicUID("tmpuser"))
}
