package relay

import (
	"context"
	"time"

	"github.com/nerrad567/bumper/internal/device"
)

// Payload types carried on the bus.
const (
	PayloadJSON = "j"
	PayloadXML  = "x"
)

// Command is a single request for a bot.
type Command struct {
	ToID        string
	ToType      string
	ToRes       string
	CmdName     string
	PayloadType string

	// Payload is published verbatim: a JSON document for PayloadJSON or
	// an XML fragment for PayloadXML.
	Payload []byte
}

// Result is the outcome of a relay. CorrelationID is set whenever one was
// generated, including on failure.
type Result struct {
	CorrelationID string
	Reply         []byte
}

// Bus publishes commands to bots.
type Bus interface {
	Publish(ctx context.Context, cmd Command, correlationID string) error
}

// BotLookup resolves a did to its registry record.
type BotLookup interface {
	GetBot(ctx context.Context, did string) (*device.Bot, error)
}

// Outcome values reported to observers.
const (
	OutcomeOK          = "ok"
	OutcomeUnreachable = "unreachable"
	OutcomeTimeout     = "timeout"
	OutcomeError       = "error"
)

// Completion describes a finished relay.
type Completion struct {
	DID           string        `json:"did"`
	CmdName       string        `json:"cmd_name"`
	CorrelationID string        `json:"correlation_id,omitempty"`
	Outcome       string        `json:"outcome"`
	Latency       time.Duration `json:"latency_ns"`
}

// Observer is notified after every relay attempt. It must not block.
type Observer interface {
	RelayCompleted(c Completion)
}

// Observers fans a completion out to several observers.
type Observers []Observer

// RelayCompleted implements Observer.
func (o Observers) RelayCompleted(c Completion) {
	for _, obs := range o {
		obs.RelayCompleted(c)
	}
}

type noopObserver struct{}

func (noopObserver) RelayCompleted(Completion) {}
