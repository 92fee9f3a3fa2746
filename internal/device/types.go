package device

import "time"

// CompanyBus is the company reported by bots that speak the message bus.
// Only these bots can be reached by the command relay.
const CompanyBus = "eco-ng"

// Bot is a physical robot known to the server.
// JSON field names match what the companion app reads from GetDeviceList.
type Bot struct {
	DID      string `json:"did"`
	Class    string `json:"class"`
	Company  string `json:"company"`
	Name     string `json:"name"`
	Nick     string `json:"nick"`
	Resource string `json:"resource"`

	BusConnected      bool `json:"mqtt_connection"`
	PresenceConnected bool `json:"xmpp_connection"`

	LastSeen  *time.Time `json:"-"`
	CreatedAt time.Time  `json:"-"`
	UpdatedAt time.Time  `json:"-"`
}

// BusReachable reports whether a command can currently be relayed to the bot.
func (b *Bot) BusReachable() bool {
	return b.Company == CompanyBus && b.BusConnected
}

// Copy returns a copy that shares no pointers with b.
func (b *Bot) Copy() *Bot {
	if b == nil {
		return nil
	}
	cpy := *b
	if b.LastSeen != nil {
		t := *b.LastSeen
		cpy.LastSeen = &t
	}
	return &cpy
}

// Stats holds registry counts for the status endpoint and metrics.
type Stats struct {
	Total             int `json:"total"`
	BusConnected      int `json:"bus_connected"`
	PresenceConnected int `json:"presence_connected"`
}
