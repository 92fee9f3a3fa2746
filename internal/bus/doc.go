// Package bus implements the helper bot: the server's own endpoint on the
// robot message bus.
//
// The helper bot publishes relay commands as p2p requests addressed to a
// robot, turns the robot's p2p responses back into relay replies, and
// watches attribute reports to learn which robots are online.
//
// Replies are handed to the relay wrapped as
//
//	{"id":"<correlation id>","payloadType":"j","resp":<payload>,"ret":"ok"}
//
// with JSON payloads embedded as objects and XML payloads as strings.
package bus
