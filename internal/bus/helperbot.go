package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/bumper/internal/device"
	"github.com/nerrad567/bumper/internal/infrastructure/mqtt"
	"github.com/nerrad567/bumper/internal/relay"
)

// Event channels broadcast by the helper bot.
const (
	EventBotConnected    = "bot.connected"
	EventBotDisconnected = "bot.disconnected"
)

// Helper is the server's identity on the bus.
var Helper = mqtt.Endpoint{ID: "helperbot", Type: "bumper", Resource: "helperbot"}

// Transport is the subset of the MQTT client the helper bot uses.
type Transport interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	HasSubscription(topic string) bool
	SubscriptionCount() int
	IsConnected() bool
}

// ErrNotSubscribed is returned by HealthCheck when a helper bot topic is
// no longer tracked by the transport.
var ErrNotSubscribed = errors.New("bus: helper bot not subscribed")

// Registry is the subset of the bot registry the helper bot updates.
type Registry interface {
	RegisterBot(ctx context.Context, bot device.Bot) (bool, error)
	SetBusConnected(ctx context.Context, did string, connected bool) (bool, error)
	SilentBusBots(threshold time.Duration) []device.Bot
}

// ReplySink receives correlated replies. The relay implements it.
type ReplySink interface {
	Deliver(id string, reply []byte) bool
}

// Broadcaster publishes events to interested listeners.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// Logger defines the logging interface used by the helper bot.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type noopBroadcaster struct{}

func (noopBroadcaster) Broadcast(string, any) {}

// BotEvent is the payload of bot connection events.
type BotEvent struct {
	DID     string `json:"did"`
	Class   string `json:"class,omitempty"`
	Company string `json:"company,omitempty"`
}

// HelperBot bridges the relay and the registry to the bus.
type HelperBot struct {
	transport Transport
	registry  Registry
	qos       byte

	sink   ReplySink
	events Broadcaster
	logger Logger
}

// New creates a helper bot. SetReplySink must be called before Start.
func New(transport Transport, registry Registry, qos byte) *HelperBot {
	return &HelperBot{
		transport: transport,
		registry:  registry,
		qos:       qos,
		events:    noopBroadcaster{},
		logger:    noopLogger{},
	}
}

// SetReplySink sets where correlated replies are delivered.
func (h *HelperBot) SetReplySink(sink ReplySink) {
	h.sink = sink
}

// SetBroadcaster sets the event broadcaster.
func (h *HelperBot) SetBroadcaster(b Broadcaster) {
	h.events = b
}

// SetLogger sets the logger for the helper bot.
func (h *HelperBot) SetLogger(logger Logger) {
	h.logger = logger
}

// topics returns the helper bot's subscriptions.
func topics() []string {
	return []string{mqtt.Topics{}.P2PResponsesTo(Helper), mqtt.Topics{}.AllAttributes()}
}

// Start subscribes to replies and attribute reports.
func (h *HelperBot) Start(_ context.Context) error {
	if h.sink == nil {
		return errors.New("bus: reply sink not set")
	}
	if err := h.transport.Subscribe(mqtt.Topics{}.P2PResponsesTo(Helper), h.qos, h.handleReply); err != nil {
		return fmt.Errorf("subscribing to replies: %w", err)
	}
	if err := h.transport.Subscribe(mqtt.Topics{}.AllAttributes(), h.qos, h.handleAttribute); err != nil {
		return fmt.Errorf("subscribing to attributes: %w", err)
	}
	h.logger.Info("helper bot subscribed", "replies", mqtt.Topics{}.P2PResponsesTo(Helper))
	return nil
}

// Stop drops the helper bot's subscriptions so no handler runs after
// shutdown begins. The connection itself is left to its owner.
func (h *HelperBot) Stop() error {
	var errs []error
	for _, topic := range topics() {
		if !h.transport.HasSubscription(topic) {
			continue
		}
		if err := h.transport.Unsubscribe(topic); err != nil {
			errs = append(errs, fmt.Errorf("unsubscribing %s: %w", topic, err))
		}
	}
	return errors.Join(errs...)
}

// HealthCheck verifies the bus is connected and both subscriptions are live.
func (h *HelperBot) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("helper bot health check: %w", err)
	}
	if !h.transport.IsConnected() {
		return mqtt.ErrNotConnected
	}
	for _, topic := range topics() {
		if !h.transport.HasSubscription(topic) {
			return fmt.Errorf("%w: %s", ErrNotSubscribed, topic)
		}
	}
	return nil
}

// Connected reports whether the bus connection is up.
func (h *HelperBot) Connected() bool {
	return h.transport.IsConnected()
}

// Subscriptions returns the number of topics the transport tracks.
func (h *HelperBot) Subscriptions() int {
	return h.transport.SubscriptionCount()
}

// Publish sends a relay command to its target bot. It implements relay.Bus.
func (h *HelperBot) Publish(_ context.Context, cmd relay.Command, correlationID string) error {
	payloadType := cmd.PayloadType
	if payloadType == "" {
		payloadType = relay.PayloadJSON
	}
	to := mqtt.Endpoint{ID: cmd.ToID, Type: cmd.ToType, Resource: cmd.ToRes}
	topic := mqtt.Topics{}.P2PRequest(cmd.CmdName, Helper, to, correlationID, payloadType)

	return h.transport.Publish(topic, cmd.Payload, h.qos, false)
}

// reply is the body handed back to the app for a relayed command.
type reply struct {
	ID          string `json:"id"`
	PayloadType string `json:"payloadType"`
	Resp        any    `json:"resp"`
	Ret         string `json:"ret"`
}

func (h *HelperBot) handleReply(topic string, payload []byte) error {
	t, err := mqtt.ParseP2P(topic)
	if err != nil {
		return err
	}
	if t.Direction != mqtt.DirectionResponse {
		return nil
	}

	body, err := wrapReply(t.RequestID, t.PayloadType, payload)
	if err != nil {
		return fmt.Errorf("wrapping reply from %s: %w", t.From.ID, err)
	}
	if !h.sink.Deliver(t.RequestID, body) {
		h.logger.Debug("reply without waiting request", "did", t.From.ID, "id", t.RequestID)
	}
	return nil
}

// wrapReply builds the relay reply body. JSON payloads are embedded as
// objects when they parse, otherwise as strings.
func wrapReply(id, payloadType string, payload []byte) ([]byte, error) {
	var resp any = string(payload)
	if payloadType == relay.PayloadJSON && json.Valid(payload) {
		resp = json.RawMessage(payload)
	}
	return json.Marshal(reply{ID: id, PayloadType: payloadType, Resp: resp, Ret: "ok"})
}

func (h *HelperBot) handleAttribute(topic string, _ []byte) error {
	t, err := mqtt.ParseAttribute(topic)
	if err != nil {
		return err
	}

	ctx := context.Background()
	bot := device.Bot{
		DID:      t.DID,
		Class:    t.Class,
		Company:  device.CompanyBus,
		Name:     t.DID,
		Resource: t.Resource,
	}
	if _, err := h.registry.RegisterBot(ctx, bot); err != nil {
		return fmt.Errorf("registering bot %s: %w", t.DID, err)
	}

	changed, err := h.registry.SetBusConnected(ctx, t.DID, true)
	if err != nil {
		return fmt.Errorf("marking bot %s connected: %w", t.DID, err)
	}
	if changed {
		h.logger.Info("bot connected", "did", t.DID, "class", t.Class)
		h.events.Broadcast(EventBotConnected, BotEvent{DID: t.DID, Class: t.Class, Company: device.CompanyBus})
	}
	return nil
}

// PruneSilent marks bots that sent nothing within threshold as
// disconnected and returns how many were pruned.
func (h *HelperBot) PruneSilent(ctx context.Context, threshold time.Duration) (int, error) {
	var errs []error
	pruned := 0
	for _, bot := range h.registry.SilentBusBots(threshold) {
		changed, err := h.registry.SetBusConnected(ctx, bot.DID, false)
		if err != nil {
			errs = append(errs, fmt.Errorf("pruning %s: %w", bot.DID, err))
			continue
		}
		if changed {
			pruned++
			h.logger.Info("bot went silent", "did", bot.DID)
			h.events.Broadcast(EventBotDisconnected, BotEvent{DID: bot.DID, Class: bot.Class, Company: bot.Company})
		}
	}
	return pruned, errors.Join(errs...)
}
