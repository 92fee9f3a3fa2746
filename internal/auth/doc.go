// Package auth implements the session manager behind the companion app's
// login flow.
//
// # Tokens
//
// An access token is an opaque 32-character hex string issued per login.
// Only its SHA-256 hash is stored. Tokens expire after a configured TTL;
// expired tokens fail validation at once and are deleted by the periodic
// sweep (RevokeExpiredTokens) or on the owning account's next login.
//
// # Auth codes
//
// An auth code ("<country>_<hex>") is minted lazily for a token by
// getAuthCode and stored alongside it. Asking again for the same token
// returns the same code. Devices and the app later present the code with
// the account uid to loginByItToken; uids are accepted with or without the
// "fuid_" prefix.
//
// # Concurrency
//
// Mutations (issue, revoke, auth code minting, sweeps) are serialised by
// the Manager; reads go straight to the repository. The SQLite store uses a
// single connection, so every statement also observes a consistent snapshot.
package auth
