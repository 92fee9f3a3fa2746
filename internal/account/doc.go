// Package account stores the logical accounts that companion apps log in to.
//
// An account owns a set of device identifiers (one per app install) and,
// in strict deployments, an explicit set of bot ids. Permissive deployments
// flag the account with AllBots instead, which makes every known bot visible
// without copying associations into the account.
//
// Device identifiers are unique across accounts: once a device id is bound,
// it always resolves to the same account.
//
// Usage:
//
//	repo := account.NewSQLiteRepository(db.DB)
//	acct, err := repo.GetByDeviceID(ctx, devID)
//	if errors.Is(err, account.ErrAccountNotFound) {
//	    // strict mode: device not activated
//	}
package account
