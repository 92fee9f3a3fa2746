package device

import (
	"context"
	"database/sql"
	"testing"
	"time"

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

func TestSQLiteRepository_UpsertAndGet(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteRepository(setupTestDB(t))

	bot := &Bot{DID: "E0000001", Class: "ls1ok3", Company: CompanyBus, Name: "E0000001", Resource: "abcd"}
	require.NoError(t, repo.Upsert(ctx, bot))

	got, err := repo.GetByDID(ctx, "E0000001")
	require.NoError(t, err)
	assert.Equal(t, "ls1ok3", got.Class)
	assert.Equal(t, CompanyBus, got.Company)
	assert.False(t, got.BusConnected)
	assert.Nil(t, got.LastSeen)
	assert.False(t, got.CreatedAt.IsZero())

	_, err = repo.GetByDID(ctx, "missing")
	assert.ErrorIs(t, err, ErrBotNotFound)

	assert.ErrorIs(t, repo.Upsert(ctx, &Bot{}), ErrInvalidDID)
}

func TestSQLiteRepository_UpsertKeepsNick(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteRepository(setupTestDB(t))

	require.NoError(t, repo.Upsert(ctx, &Bot{DID: "bot1", Nick: "Kitchen"}))
	require.NoError(t, repo.Upsert(ctx, &Bot{DID: "bot1", Class: "ls1ok3"}))

	got, err := repo.GetByDID(ctx, "bot1")
	require.NoError(t, err)
	assert.Equal(t, "Kitchen", got.Nick, "empty nick does not clear stored one")
	assert.Equal(t, "ls1ok3", got.Class)
}

func TestSQLiteRepository_Mutations(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteRepository(setupTestDB(t))
	require.NoError(t, repo.Upsert(ctx, &Bot{DID: "bot1"}))

	seen := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		apply func(did string) error
		check func(t *testing.T, b *Bot)
	}{
		{
			name:  "set nick",
			apply: func(did string) error { return repo.SetNick(ctx, did, "Hall") },
			check: func(t *testing.T, b *Bot) { assert.Equal(t, "Hall", b.Nick) },
		},
		{
			name:  "bus connected",
			apply: func(did string) error { return repo.SetBusConnected(ctx, did, true, seen) },
			check: func(t *testing.T, b *Bot) {
				assert.True(t, b.BusConnected)
				require.NotNil(t, b.LastSeen)
				assert.True(t, b.LastSeen.Equal(seen))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, tt.apply("bot1"))
			got, err := repo.GetByDID(ctx, "bot1")
			require.NoError(t, err)
			tt.check(t, got)

			assert.ErrorIs(t, tt.apply("missing"), ErrBotNotFound)
		})
	}
}

func TestSQLiteRepository_ListAndDelete(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteRepository(setupTestDB(t))

	for _, did := range []string{"c", "a", "b"} {
		require.NoError(t, repo.Upsert(ctx, &Bot{DID: did}))
	}

	bots, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, bots, 3)
	assert.Equal(t, "a", bots[0].DID)
	assert.Equal(t, "c", bots[2].DID)

	require.NoError(t, repo.Delete(ctx, "b"))
	assert.ErrorIs(t, repo.Delete(ctx, "b"), ErrBotNotFound)

	bots, err = repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, bots, 2)
}
