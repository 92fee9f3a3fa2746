package mqtt

import (
	"crypto/tls"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/bumper/internal/infrastructure/config"
)

// testConfig returns a valid MQTT configuration for unit tests.
// Nothing here dials the broker; see integration_test.go for that.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "bumper-test",
			TLS:      false,
		},
		QoS:       1,
		KeepAlive: 30,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// =============================================================================
// Option Tests
// =============================================================================

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Username = "helper"
	cfg.Auth.Password = "secret"

	opts, err := buildClientOptions(cfg)
	if err != nil {
		t.Fatalf("buildClientOptions() error = %v", err)
	}

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://127.0.0.1:1883" {
		t.Errorf("Servers = %v, want tcp://127.0.0.1:1883", opts.Servers)
	}
	if opts.ClientID != "bumper-test" {
		t.Errorf("ClientID = %q, want bumper-test", opts.ClientID)
	}
	if opts.Username != "helper" || opts.Password != "secret" {
		t.Errorf("credentials = %q/%q, want helper/secret", opts.Username, opts.Password)
	}
	if opts.KeepAlive != 30 {
		t.Errorf("KeepAlive = %d, want 30", opts.KeepAlive)
	}
	if !opts.AutoReconnect {
		t.Error("AutoReconnect = false, want true")
	}
}

func TestBuildClientOptions_DefaultKeepAlive(t *testing.T) {
	cfg := testConfig()
	cfg.KeepAlive = 0

	opts, err := buildClientOptions(cfg)
	if err != nil {
		t.Fatalf("buildClientOptions() error = %v", err)
	}
	if opts.KeepAlive != int64(defaultKeepAlive/time.Second) {
		t.Errorf("KeepAlive = %d, want %d", opts.KeepAlive, int64(defaultKeepAlive/time.Second))
	}
}

func TestBuildClientOptions_TLS(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.TLS = true
	cfg.Broker.Port = 8883
	cfg.Broker.Insecure = true

	opts, err := buildClientOptions(cfg)
	if err != nil {
		t.Fatalf("buildClientOptions() error = %v", err)
	}
	if opts.Servers[0].Scheme != "ssl" {
		t.Errorf("scheme = %q, want ssl", opts.Servers[0].Scheme)
	}
	if opts.TLSConfig == nil || !opts.TLSConfig.InsecureSkipVerify {
		t.Error("TLSConfig.InsecureSkipVerify = false, want true")
	}
	if opts.TLSConfig.MinVersion != tls.VersionTLS12 {
		t.Errorf("MinVersion = %x, want TLS 1.2", opts.TLSConfig.MinVersion)
	}
}

func TestBuildTLSConfig_CAFile(t *testing.T) {
	dir := t.TempDir()

	missing := config.MQTTBrokerConfig{CAFile: filepath.Join(dir, "missing.pem")}
	if _, err := buildTLSConfig(missing); !errors.Is(err, ErrTLSConfig) {
		t.Errorf("missing CA error = %v, want ErrTLSConfig", err)
	}

	garbage := filepath.Join(dir, "garbage.pem")
	if err := os.WriteFile(garbage, []byte("not a certificate"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := buildTLSConfig(config.MQTTBrokerConfig{CAFile: garbage}); !errors.Is(err, ErrTLSConfig) {
		t.Errorf("garbage CA error = %v, want ErrTLSConfig", err)
	}
}

func TestStatusPayloads(t *testing.T) {
	online := buildOnlinePayload("bumper-test")
	if !strings.Contains(online, `"status":"online"`) || !strings.Contains(online, `"client_id":"bumper-test"`) {
		t.Errorf("online payload = %s", online)
	}

	offline := buildOfflinePayload("bumper-test")
	if !strings.Contains(offline, `"reason":"graceful_shutdown"`) {
		t.Errorf("offline payload = %s", offline)
	}
}

// =============================================================================
// Disconnected Client Tests
// =============================================================================

func TestCloseNil(t *testing.T) {
	client := &Client{}
	if err := client.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v", err)
	}
}

func TestIsConnected_InitialState(t *testing.T) {
	client := &Client{}
	if client.IsConnected() {
		t.Error("IsConnected() should be false for uninitialised client")
	}
}

func TestPublishValidation(t *testing.T) {
	client := &Client{subscriptions: make(map[string]subscription)}

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		want    error
	}{
		{"empty topic", "", nil, 1, ErrInvalidTopic},
		{"invalid qos", "iot/p2p/x", nil, 3, ErrInvalidQoS},
		{"oversized", "iot/p2p/x", make([]byte, maxPayloadSize+1), 1, ErrPublishFailed},
		{"disconnected", "iot/p2p/x", []byte("{}"), 1, ErrNotConnected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := client.Publish(tt.topic, tt.payload, tt.qos, false)
			if !errors.Is(err, tt.want) {
				t.Errorf("Publish() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSubscribeValidation(t *testing.T) {
	client := &Client{subscriptions: make(map[string]subscription)}
	handler := func(string, []byte) error { return nil }

	tests := []struct {
		name    string
		topic   string
		qos     byte
		handler MessageHandler
		want    error
	}{
		{"empty topic", "", 1, handler, ErrInvalidTopic},
		{"invalid qos", "iot/atr/+/+/+/+/+", 3, handler, ErrInvalidQoS},
		{"nil handler", "iot/atr/+/+/+/+/+", 1, nil, ErrSubscribeFailed},
		{"disconnected", "iot/atr/+/+/+/+/+", 1, handler, ErrNotConnected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := client.Subscribe(tt.topic, tt.qos, tt.handler)
			if !errors.Is(err, tt.want) {
				t.Errorf("Subscribe() error = %v, want %v", err, tt.want)
			}
		})
	}

	if client.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0", client.SubscriptionCount())
	}
}

func TestHealthCheckDisconnected(t *testing.T) {
	client := &Client{}
	if err := client.HealthCheck(t.Context()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

// =============================================================================
// Handler Wrapping Tests
// =============================================================================

type fakeMessage struct {
	pahomqtt.Message
	topic   string
	payload []byte
}

func (m fakeMessage) Topic() string   { return m.topic }
func (m fakeMessage) Payload() []byte { return m.payload }

type recordingLogger struct {
	mu     sync.Mutex
	errors []string
	warns  []string
}

func (l *recordingLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}

func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

func TestWrapHandler(t *testing.T) {
	logger := &recordingLogger{}
	client := &Client{}
	client.SetLogger(logger)

	msg := fakeMessage{topic: "iot/atr/onBattery/E1/ls1ok3/r1/j", payload: []byte("{}")}

	var got string
	client.wrapHandler(func(topic string, _ []byte) error {
		got = topic
		return nil
	})(nil, msg)
	if got != msg.topic {
		t.Errorf("handler topic = %q, want %q", got, msg.topic)
	}

	client.wrapHandler(func(string, []byte) error { return errors.New("bad payload") })(nil, msg)
	if len(logger.warns) != 1 {
		t.Errorf("warns = %v, want one entry", logger.warns)
	}

	client.wrapHandler(func(string, []byte) error { panic("boom") })(nil, msg)
	if len(logger.errors) != 1 {
		t.Errorf("errors = %v, want one recovered panic", logger.errors)
	}
}

// =============================================================================
// Topic Tests
// =============================================================================

var (
	testHelper = Endpoint{ID: "helperbot", Type: "bumper", Resource: "helperbot"}
	testBot    = Endpoint{ID: "E0001", Type: "ls1ok3", Resource: "r1"}
)

func TestTopicBuilders(t *testing.T) {
	tests := []struct {
		name     string
		got      string
		expected string
	}{
		{
			name:     "P2PRequest",
			got:      Topics{}.P2PRequest("getBattery", testHelper, testBot, "abcdef", "j"),
			expected: "iot/p2p/getBattery/helperbot/bumper/helperbot/E0001/ls1ok3/r1/q/abcdef/j",
		},
		{
			name:     "P2PResponse",
			got:      Topics{}.P2PResponse("getBattery", testBot, testHelper, "abcdef", "j"),
			expected: "iot/p2p/getBattery/E0001/ls1ok3/r1/helperbot/bumper/helperbot/p/abcdef/j",
		},
		{
			name:     "P2PResponsesTo",
			got:      Topics{}.P2PResponsesTo(testHelper),
			expected: "iot/p2p/+/+/+/+/helperbot/bumper/helperbot/p/+/+",
		},
		{
			name:     "AllAttributes",
			got:      Topics{}.AllAttributes(),
			expected: "iot/atr/+/+/+/+/+",
		},
		{
			name:     "ServerStatus",
			got:      Topics{}.ServerStatus(),
			expected: "bumper/status",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("got %q, want %q", tt.got, tt.expected)
			}
		})
	}
}

func TestParseP2P(t *testing.T) {
	topic := Topics{}.P2PResponse("getBattery", testBot, testHelper, "abcdef", "x")

	parsed, err := ParseP2P(topic)
	if err != nil {
		t.Fatalf("ParseP2P() error = %v", err)
	}
	if parsed.Command != "getBattery" || parsed.RequestID != "abcdef" || parsed.PayloadType != "x" {
		t.Errorf("ParseP2P() = %+v", parsed)
	}
	if parsed.From != testBot || parsed.To != testHelper {
		t.Errorf("endpoints = %+v -> %+v", parsed.From, parsed.To)
	}
	if parsed.Direction != DirectionResponse {
		t.Errorf("Direction = %q, want %q", parsed.Direction, DirectionResponse)
	}

	for _, bad := range []string{"", "iot/p2p/short", "iot/atr/a/b/c/d/e/f/g/h/i/j"} {
		if _, err := ParseP2P(bad); !errors.Is(err, ErrUnexpectedTopic) {
			t.Errorf("ParseP2P(%q) error = %v, want ErrUnexpectedTopic", bad, err)
		}
	}
}

func TestParseAttribute(t *testing.T) {
	parsed, err := ParseAttribute("iot/atr/onBattery/E0001/ls1ok3/r1/j")
	if err != nil {
		t.Fatalf("ParseAttribute() error = %v", err)
	}
	want := AttributeTopic{Event: "onBattery", DID: "E0001", Class: "ls1ok3", Resource: "r1", PayloadType: "j"}
	if parsed != want {
		t.Errorf("ParseAttribute() = %+v, want %+v", parsed, want)
	}

	if _, err := ParseAttribute("iot/p2p/a/b/c/d/e"); !errors.Is(err, ErrUnexpectedTopic) {
		t.Errorf("ParseAttribute() error = %v, want ErrUnexpectedTopic", err)
	}
}
