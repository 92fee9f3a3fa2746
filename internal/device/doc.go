// Package device provides the bot registry for Bumper.
//
// The registry is the catalogue of every robot the server has seen, whether
// it announced itself on the message bus or was added by the companion app.
// It also resolves the device identifiers presented by the app to accounts,
// auto-provisioning them when the server runs in permissive mode.
//
// # Architecture
//
//	┌───────────────────────────────────────────────────────────────┐
//	│                          Bot Registry                          │
//	│                                                                │
//	│  ┌──────────────────┐    ┌──────────────────┐                 │
//	│  │     Registry     │    │    Repository    │                 │
//	│  │   (registry.go)  │───▶│  (repository.go) │                 │
//	│  │                  │    │                  │                 │
//	│  │ • Account lookup │    │ • SQLite queries │                 │
//	│  │ • Bot cache      │    │ • Upserts        │                 │
//	│  │ • Visibility     │    └──────────────────┘                 │
//	│  └──────────────────┘                                          │
//	│           │                                                    │
//	└───────────│────────────────────────────────────────────────────┘
//	            ▼
//	┌──────────────────────┐   ┌──────────────────────┐
//	│  account.Repository  │   │   SQLite Database    │
//	│  (device → account)  │   │ (bots, accounts ...) │
//	└──────────────────────┘   └──────────────────────┘
//
// # Visibility
//
// In strict mode an account sees only bots explicitly assigned to it. In
// permissive mode every resolved account carries the AllBots capability and
// sees every known bot; no per-account copy of the catalogue is made.
//
// # Usage
//
//	registry := device.NewRegistry(
//	    device.NewSQLiteRepository(db),
//	    account.NewSQLiteRepository(db),
//	    device.Options{Permissive: true, DefaultAccount: "tmpuser"},
//	)
//	registry.SetLogger(log)
//	if err := registry.RefreshCache(ctx); err != nil {
//	    return err
//	}
//
//	acct, err := registry.ResolveAccount(ctx, deviceID)
//	bots, err := registry.VisibleBots(ctx, acct)
//
// # Thread Safety
//
// The Registry is safe for concurrent use. Bot reads are served from a cache
// guarded by a read-write mutex; account resolution is serialised so that a
// device id can never be bound twice.
package device
