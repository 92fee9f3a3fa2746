package account

import (
	"slices"
	"strings"
	"time"
)

// Prefixes the companion app uses when presenting account ids.
const (
	uidPrefix      = "fuid_"
	usernamePrefix = "fusername_"

	// placeholderEmail is reported for every account; there is no real mailbox.
	placeholderEmail = "null@null.com"
)

// Account is a logical login identity.
type Account struct {
	ID        string    `json:"id"`
	DeviceIDs []string  `json:"device_ids"`
	BotIDs    []string  `json:"bot_ids"`
	AllBots   bool      `json:"all_bots"`
	CreatedAt time.Time `json:"created_at"`
}

// HasDevice reports whether deviceID is bound to the account.
func (a *Account) HasDevice(deviceID string) bool {
	return slices.Contains(a.DeviceIDs, deviceID)
}

// CanSee reports whether the bot with the given did is visible to the account.
func (a *Account) CanSee(did string) bool {
	return a.AllBots || slices.Contains(a.BotIDs, did)
}

// Summary is the account block returned by login and checkLogin.
type Summary struct {
	AccessToken string `json:"accessToken"`
	Country     string `json:"country"`
	Email       string `json:"email"`
	UID         string `json:"uid"`
	Username    string `json:"username"`
}

// Summarize builds the login response block for the account.
func (a *Account) Summarize(accessToken, country string) Summary {
	return Summary{
		AccessToken: accessToken,
		Country:     country,
		Email:       placeholderEmail,
		UID:         PublicUID(a.ID),
		Username:    usernamePrefix + a.ID,
	}
}

// PublicUID returns the uid form the app expects ("fuid_<id>").
func PublicUID(id string) string {
	return uidPrefix + NormalizeUID(id)
}

// NormalizeUID strips the "fuid_" prefix so both forms resolve to the same id.
func NormalizeUID(uid string) string {
	return strings.TrimPrefix(uid, uidPrefix)
}
