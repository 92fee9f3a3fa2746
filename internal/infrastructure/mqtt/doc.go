// Package mqtt provides MQTT client connectivity for Bumper.
//
// This package manages:
//   - Connection to the broker robots talk to, with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Builders and parsers for the robot topic scheme
//
// # Topic Scheme
//
// Current-generation robots use two topic families:
//
//	iot/p2p/{cmd}/{fromId}/{fromType}/{fromRes}/{toId}/{toType}/{toRes}/{q|p}/{requestId}/{j|x}
//	iot/atr/{event}/{did}/{class}/{resource}/{j|x}
//
// p2p topics carry a request (q) and its response (p) between two
// endpoints. atr topics carry attribute reports a robot publishes on its own.
//
// # Security Considerations
//
//   - Robots connect with TLS; the local broker usually presents a
//     self-signed certificate, so cfg.Broker.Insecure or cfg.Broker.CAFile
//     is needed to verify it
//   - Message payloads are not encrypted beyond TLS transport
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllAttributes(), 1,
//	    func(topic string, payload []byte) error {
//	        attr, err := mqtt.ParseAttribute(topic)
//	        ...
//	    })
package mqtt
