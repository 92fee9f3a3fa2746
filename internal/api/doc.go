// Package api implements the HTTP surface of Bumper.
//
// This package provides:
//   - The app's private session routes (login, checkLogin, logout, getAuthCode)
//     and the informational stubs it polls
//   - The multiplexed user.do RPC endpoint and lookup.do service discovery
//   - devmanager.do, which relays a command to a bot over the bus and
//     returns the bot's reply
//   - A websocket event stream, a status endpoint and Prometheus metrics
//   - Middleware (request ID, logging, recovery, body size limit)
//
// # Listeners
//
// Every configured listener (typically TLS on 443 and plaintext on 8007)
// serves the same router. All listeners are bound before any is served;
// a bind failure is returned from Start and is fatal to the process.
//
// # Envelopes
//
// App routes answer HTTP 200 with {code, data, msg, time}. Handlers return
// (payload, error) and a single wrapper maps the error to its code:
//
//	auth.ErrTokenInvalid      -> 0004
//	account.ErrNotActivated   -> 1003
//	relay / validation / misc -> 0001
//	handler panic             -> 9000
//
// The codes are a contract with existing apps and robots.
//
// # Concurrency
//
// net/http serves each request on its own goroutine, so a devmanager.do
// request waiting for a bot's reply never blocks other requests.
package api
