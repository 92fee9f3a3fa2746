package device

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/bumper/internal/account"
)

func newTestRegistry(t *testing.T, opts Options) (*Registry, *account.SQLiteRepository) {
	t.Helper()
	db := setupTestDB(t)
	accounts := account.NewSQLiteRepository(db)
	reg := NewRegistry(NewSQLiteRepository(db), accounts, opts)
	require.NoError(t, reg.RefreshCache(context.Background()))
	return reg, accounts
}

func TestRegistry_ResolveAccount_Permissive(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry(t, Options{Permissive: true, DefaultAccount: "tmpuser"})

	acct, err := reg.ResolveAccount(ctx, "dev1")
	require.NoError(t, err)
	assert.Equal(t, "tmpuser", acct.ID)
	assert.True(t, acct.HasDevice("dev1"))

	again, err := reg.ResolveAccount(ctx, "dev1")
	require.NoError(t, err)
	assert.Equal(t, acct.ID, again.ID)

	other, err := reg.ResolveAccount(ctx, "dev2")
	require.NoError(t, err)
	assert.Equal(t, "tmpuser", other.ID, "every device shares the default account")
	assert.ElementsMatch(t, []string{"dev1", "dev2"}, other.DeviceIDs)

	_, err = reg.ResolveAccount(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidDeviceID)
}

func TestRegistry_ResolveAccount_PerDevice(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry(t, Options{Permissive: true})

	a, err := reg.ResolveAccount(ctx, "dev1")
	require.NoError(t, err)
	b, err := reg.ResolveAccount(ctx, "dev2")
	require.NoError(t, err)

	assert.Equal(t, "dev1", a.ID)
	assert.Equal(t, "dev2", b.ID)
}

func TestRegistry_ResolveAccount_Strict(t *testing.T) {
	ctx := context.Background()
	reg, accounts := newTestRegistry(t, Options{})

	_, err := reg.ResolveAccount(ctx, "dev1")
	assert.ErrorIs(t, err, account.ErrNotActivated)
	assert.ErrorIs(t, err, account.ErrAccountNotFound)

	_, err = accounts.Create(ctx, "alice")
	require.NoError(t, err)
	require.NoError(t, accounts.AddDevice(ctx, "alice", "dev1"))

	acct, err := reg.ResolveAccount(ctx, "dev1")
	require.NoError(t, err)
	assert.Equal(t, "alice", acct.ID)
}

func TestRegistry_ResolveAccount_Concurrent(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry(t, Options{Permissive: true})

	const workers = 16
	ids := make([]string, workers)
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			acct, err := reg.ResolveAccount(ctx, "dev1")
			assert.NoError(t, err)
			if acct != nil {
				ids[i] = acct.ID
			}
		}()
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, "dev1", id)
	}
}

func TestRegistry_Visibility(t *testing.T) {
	ctx := context.Background()
	reg, accounts := newTestRegistry(t, Options{Permissive: true, DefaultAccount: "tmpuser"})

	for _, did := range []string{"bot1", "bot2"} {
		_, err := reg.RegisterBot(ctx, Bot{DID: did, Company: CompanyBus})
		require.NoError(t, err)
	}

	_, err := accounts.Create(ctx, "strict")
	require.NoError(t, err)
	strict, err := accounts.GetByID(ctx, "strict")
	require.NoError(t, err)

	bots, err := reg.VisibleBots(ctx, strict)
	require.NoError(t, err)
	assert.Empty(t, bots)

	require.NoError(t, reg.AssignBot(ctx, "strict", "bot2"))
	assert.ErrorIs(t, reg.AssignBot(ctx, "strict", "missing"), ErrBotNotFound)

	strict, err = accounts.GetByID(ctx, "strict")
	require.NoError(t, err)
	bots, err = reg.VisibleBots(ctx, strict)
	require.NoError(t, err)
	require.Len(t, bots, 1)
	assert.Equal(t, "bot2", bots[0].DID)

	acct, err := reg.ResolveAccount(ctx, "dev1")
	require.NoError(t, err)
	require.NoError(t, reg.AttachAllKnownBots(ctx, acct))

	// Bots registered after attaching are visible too.
	_, err = reg.RegisterBot(ctx, Bot{DID: "bot3"})
	require.NoError(t, err)

	acct, err = reg.ResolveAccount(ctx, "dev1")
	require.NoError(t, err)
	bots, err = reg.VisibleBots(ctx, acct)
	require.NoError(t, err)
	assert.Len(t, bots, 3)
}

func TestRegistry_RegisterBot_PreservesNickAndFlags(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry(t, Options{})

	created, err := reg.RegisterBot(ctx, Bot{DID: "bot1", Class: "ls1ok3", Company: CompanyBus, Resource: "r1"})
	require.NoError(t, err)
	assert.True(t, created)

	require.NoError(t, reg.RenameBot(ctx, "bot1", "Kitchen"))
	_, err = reg.SetBusConnected(ctx, "bot1", true)
	require.NoError(t, err)

	created, err = reg.RegisterBot(ctx, Bot{DID: "bot1", Resource: "r2"})
	require.NoError(t, err)
	assert.False(t, created)

	got, err := reg.GetBot(ctx, "bot1")
	require.NoError(t, err)
	assert.Equal(t, "Kitchen", got.Nick)
	assert.Equal(t, "ls1ok3", got.Class)
	assert.Equal(t, "r2", got.Resource)
	assert.True(t, got.BusReachable())
}

func TestRegistry_AddRenameRemove(t *testing.T) {
	ctx := context.Background()
	reg, accounts := newTestRegistry(t, Options{})

	require.NoError(t, reg.AddBot(ctx, "bot1", "Hall"))
	require.NoError(t, reg.AddBot(ctx, "bot1", "Landing"), "adding an existing bot renames it")

	got, err := reg.GetBot(ctx, "bot1")
	require.NoError(t, err)
	assert.Equal(t, "Landing", got.Nick)

	assert.ErrorIs(t, reg.RenameBot(ctx, "missing", "x"), ErrBotNotFound)

	_, err = accounts.Create(ctx, "alice")
	require.NoError(t, err)
	require.NoError(t, reg.AssignBot(ctx, "alice", "bot1"))

	require.NoError(t, reg.RemoveBot(ctx, "bot1"))
	_, err = reg.GetBot(ctx, "bot1")
	assert.ErrorIs(t, err, ErrBotNotFound)
	assert.ErrorIs(t, reg.RemoveBot(ctx, "bot1"), ErrBotNotFound)

	alice, err := accounts.GetByID(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, alice.BotIDs)
}

func TestRegistry_SetBusConnected(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry(t, Options{})
	_, err := reg.RegisterBot(ctx, Bot{DID: "bot1", Company: CompanyBus})
	require.NoError(t, err)

	changed, err := reg.SetBusConnected(ctx, "bot1", true)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = reg.SetBusConnected(ctx, "bot1", true)
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = reg.SetBusConnected(ctx, "missing", true)
	assert.ErrorIs(t, err, ErrBotNotFound)

	stats := reg.GetStats()
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.BusConnected)
}

func TestRegistry_SilentBusBots(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry(t, Options{})

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	now := base
	reg.now = func() time.Time { return now }

	for i := range 3 {
		_, err := reg.RegisterBot(ctx, Bot{DID: fmt.Sprintf("bot%d", i), Company: CompanyBus})
		require.NoError(t, err)
	}
	_, err := reg.SetBusConnected(ctx, "bot0", true)
	require.NoError(t, err)

	now = base.Add(10 * time.Minute)
	_, err = reg.SetBusConnected(ctx, "bot1", true)
	require.NoError(t, err)

	silent := reg.SilentBusBots(5 * time.Minute)
	require.Len(t, silent, 1)
	assert.Equal(t, "bot0", silent[0].DID)
}

func TestRegistry_RefreshCache(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	require.NoError(t, repo.Upsert(ctx, &Bot{DID: "bot1", Nick: "Hall"}))

	reg := NewRegistry(repo, account.NewSQLiteRepository(db), Options{})
	require.NoError(t, reg.RefreshCache(ctx))

	bots, err := reg.ListBots(ctx)
	require.NoError(t, err)
	require.Len(t, bots, 1)
	assert.Equal(t, "Hall", bots[0].Nick)
}
