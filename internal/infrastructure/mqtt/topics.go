package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes of the robot message bus.
//
// Point-to-point topics carry requests and responses between two
// endpoints; attribute topics carry unsolicited reports from robots.
const (
	// TopicPrefixP2P is the base for request/response traffic.
	TopicPrefixP2P = "iot/p2p"

	// TopicPrefixAttr is the base for robot attribute reports.
	TopicPrefixAttr = "iot/atr"

	// TopicServerStatus carries the server's retained online/offline status.
	TopicServerStatus = "bumper/status"
)

// Direction markers in p2p topics.
const (
	DirectionRequest  = "q"
	DirectionResponse = "p"
)

// Number of segments in well-formed topics.
const (
	p2pSegments  = 12
	attrSegments = 7
)

// Endpoint identifies one side of a p2p exchange.
type Endpoint struct {
	ID       string
	Type     string
	Resource string
}

func (e Endpoint) path() string {
	return e.ID + "/" + e.Type + "/" + e.Resource
}

// Topics provides builders for bus topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	t := topics.P2PRequest("getBattery", helper, bot, "abcdef", "j")
//	// Returns: "iot/p2p/getBattery/helperbot/bumper/helperbot/E0001/ls1ok3/r1/q/abcdef/j"
type Topics struct{}

// P2PRequest returns the topic for a request from one endpoint to another.
//
// Example: iot/p2p/getBattery/helperbot/bumper/helperbot/E0001/ls1ok3/r1/q/abcdef/j
func (Topics) P2PRequest(cmd string, from, to Endpoint, requestID, payloadType string) string {
	return fmt.Sprintf("%s/%s/%s/%s/%s/%s/%s",
		TopicPrefixP2P, cmd, from.path(), to.path(), DirectionRequest, requestID, payloadType)
}

// P2PResponse returns the topic a response from one endpoint to another is
// published on.
//
// Example: iot/p2p/getBattery/E0001/ls1ok3/r1/helperbot/bumper/helperbot/p/abcdef/j
func (Topics) P2PResponse(cmd string, from, to Endpoint, requestID, payloadType string) string {
	return fmt.Sprintf("%s/%s/%s/%s/%s/%s/%s",
		TopicPrefixP2P, cmd, from.path(), to.path(), DirectionResponse, requestID, payloadType)
}

// P2PResponsesTo returns a pattern matching every response addressed to an endpoint.
//
// Pattern: iot/p2p/+/+/+/+/helperbot/bumper/helperbot/p/+/+
func (Topics) P2PResponsesTo(to Endpoint) string {
	return fmt.Sprintf("%s/+/+/+/+/%s/%s/+/+", TopicPrefixP2P, to.path(), DirectionResponse)
}

// AllAttributes returns a pattern matching every attribute report.
//
// Pattern: iot/atr/+/+/+/+/+
func (Topics) AllAttributes() string {
	return TopicPrefixAttr + "/+/+/+/+/+"
}

// ServerStatus returns the server status topic.
func (Topics) ServerStatus() string {
	return TopicServerStatus
}

// P2PTopic is a parsed p2p topic.
type P2PTopic struct {
	Command     string
	From        Endpoint
	To          Endpoint
	Direction   string
	RequestID   string
	PayloadType string
}

// ParseP2P splits a p2p topic into its parts.
func ParseP2P(topic string) (P2PTopic, error) {
	parts := strings.Split(topic, "/")
	if len(parts) != p2pSegments || parts[0]+"/"+parts[1] != TopicPrefixP2P {
		return P2PTopic{}, fmt.Errorf("%w: %q is not a p2p topic", ErrUnexpectedTopic, topic)
	}
	return P2PTopic{
		Command:     parts[2],
		From:        Endpoint{ID: parts[3], Type: parts[4], Resource: parts[5]},
		To:          Endpoint{ID: parts[6], Type: parts[7], Resource: parts[8]},
		Direction:   parts[9],
		RequestID:   parts[10],
		PayloadType: parts[11],
	}, nil
}

// AttributeTopic is a parsed attribute report topic.
type AttributeTopic struct {
	Event       string
	DID         string
	Class       string
	Resource    string
	PayloadType string
}

// ParseAttribute splits an attribute topic into its parts.
func ParseAttribute(topic string) (AttributeTopic, error) {
	parts := strings.Split(topic, "/")
	if len(parts) != attrSegments || parts[0]+"/"+parts[1] != TopicPrefixAttr {
		return AttributeTopic{}, fmt.Errorf("%w: %q is not an attribute topic", ErrUnexpectedTopic, topic)
	}
	return AttributeTopic{
		Event:       parts[2],
		DID:         parts[3],
		Class:       parts[4],
		Resource:    parts[5],
		PayloadType: parts[6],
	}, nil
}
