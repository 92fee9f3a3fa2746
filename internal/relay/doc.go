// Package relay turns an app request into a round trip over the message bus.
//
// The app calls devmanager.do and expects the robot's answer in the HTTP
// response. Robots only talk over the bus, so the relay publishes the
// command with a fresh correlation id, parks the request on a one-shot
// reply slot, and wakes it when the bus delivers a reply carrying the same
// id or when the deadline passes.
//
//	HTTP handler ──Relay()──▶ pending[id] ──Publish()──▶ bus ──▶ robot
//	     ▲                        │                               │
//	     └──────── reply ◀── Deliver(id) ◀── bus callback ◀───────┘
//
// A bot that is unknown, not on the bus family, or currently disconnected
// is rejected before anything is published, so the caller never waits for
// a reply that cannot come.
//
// On timeout the pending entry is removed before Relay returns; a reply
// arriving later finds no entry and is dropped by Deliver.
package relay
