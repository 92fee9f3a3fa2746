package relay

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

// correlationIDLength matches the id length robots echo back.
const correlationIDLength = 6

const correlationAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// Logger defines the logging interface used by the Relay.
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

// pendingCommand is one outstanding request. reply has capacity one and is
// written only by whoever removes the entry from the table, so it is
// written at most once.
type pendingCommand struct {
	targetDID string
	reply     chan []byte
	createdAt time.Time
}

// Relay correlates bus replies with waiting requests.
//
// All public methods are thread-safe.
type Relay struct {
	bots       BotLookup
	bus        Bus
	deadline   time.Duration
	maxPending int

	mu      sync.Mutex
	pending map[string]*pendingCommand

	newID    func() string
	logger   Logger
	observer Observer
}

// New creates a relay. deadline is the default reply wait; maxPending
// bounds the pending table (zero means unbounded).
func New(bots BotLookup, bus Bus, deadline time.Duration, maxPending int) *Relay {
	return &Relay{
		bots:       bots,
		bus:        bus,
		deadline:   deadline,
		maxPending: maxPending,
		pending:    make(map[string]*pendingCommand),
		newID:      newCorrelationID,
		logger:     noopLogger{},
		observer:   noopObserver{},
	}
}

// SetLogger sets the logger for the relay.
func (r *Relay) SetLogger(logger Logger) {
	r.logger = logger
}

// SetObserver sets the observer notified after each relay.
func (r *Relay) SetObserver(o Observer) {
	r.observer = o
}

// Deadline returns the default reply wait.
func (r *Relay) Deadline() time.Duration {
	return r.deadline
}

// Relay sends cmd to its target bot and waits for the reply.
//
// It returns ErrUnreachable immediately when the bot is unknown or not
// bus-connected, ErrTimeout once deadline elapses without a reply, or the
// context error if ctx ends first. A deadline of zero uses the default.
func (r *Relay) Relay(ctx context.Context, cmd Command, deadline time.Duration) (Result, error) {
	if cmd.ToID == "" {
		return Result{}, ErrInvalidCommand
	}
	if deadline <= 0 {
		deadline = r.deadline
	}

	start := time.Now()
	res, err := r.relay(ctx, cmd, deadline)

	outcome := OutcomeOK
	switch {
	case errors.Is(err, ErrUnreachable):
		outcome = OutcomeUnreachable
	case errors.Is(err, ErrTimeout):
		outcome = OutcomeTimeout
	case err != nil:
		outcome = OutcomeError
	}
	r.observer.RelayCompleted(Completion{
		DID:           cmd.ToID,
		CmdName:       cmd.CmdName,
		CorrelationID: res.CorrelationID,
		Outcome:       outcome,
		Latency:       time.Since(start),
	})
	return res, err
}

func (r *Relay) relay(ctx context.Context, cmd Command, deadline time.Duration) (Result, error) {
	bot, err := r.bots.GetBot(ctx, cmd.ToID)
	if err != nil {
		return Result{CorrelationID: r.newID()}, fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	if !bot.BusReachable() {
		return Result{CorrelationID: r.newID()}, ErrUnreachable
	}

	id, slot, err := r.register(cmd.ToID)
	if err != nil {
		return Result{}, err
	}
	res := Result{CorrelationID: id}

	if err := r.bus.Publish(ctx, cmd, id); err != nil {
		r.remove(id)
		return res, fmt.Errorf("publishing command: %w", err)
	}
	r.logger.Debug("command published", "did", cmd.ToID, "cmd", cmd.CmdName, "id", id)

	timer := time.NewTimer(deadline)
	defer timer.Stop()

	select {
	case reply := <-slot:
		res.Reply = reply
		return res, nil
	case <-timer.C:
		if r.remove(id) {
			r.logger.Warn("command timed out", "did", cmd.ToID, "cmd", cmd.CmdName, "id", id)
			return res, ErrTimeout
		}
	case <-ctx.Done():
		if r.remove(id) {
			return res, ctx.Err()
		}
	}

	// Deliver removed the entry first, so the reply is already in the slot.
	res.Reply = <-slot
	return res, nil
}

// Deliver hands a bus reply to the request waiting on id. It reports
// whether a request was waiting; unmatched replies are dropped.
func (r *Relay) Deliver(id string, reply []byte) bool {
	r.mu.Lock()
	p, ok := r.pending[id]
	if ok {
		delete(r.pending, id)
	}
	r.mu.Unlock()

	if !ok {
		r.logger.Debug("dropping unmatched reply", "id", id)
		return false
	}
	p.reply <- reply
	return true
}

// Pending returns the number of outstanding commands.
func (r *Relay) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// register adds a pending entry under an unused correlation id.
func (r *Relay) register(did string) (string, chan []byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.maxPending > 0 && len(r.pending) >= r.maxPending {
		return "", nil, ErrTooManyPending
	}

	id := r.newID()
	for _, taken := r.pending[id]; taken; _, taken = r.pending[id] {
		id = r.newID()
	}

	slot := make(chan []byte, 1)
	r.pending[id] = &pendingCommand{targetDID: did, reply: slot, createdAt: time.Now()}
	return id, slot, nil
}

// remove deletes id and reports whether it was still pending.
func (r *Relay) remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.pending[id]
	delete(r.pending, id)
	return ok
}

// newCorrelationID returns six random ASCII letters.
func newCorrelationID() string {
	id, err := correlationIDFrom(rand.Reader)
	if err != nil {
		panic(fmt.Sprintf("relay: crypto/rand failed: %v", err))
	}
	return id
}

// correlationIDFrom draws letters from src. Bytes at or above the largest
// multiple of the alphabet size are discarded so every letter is equally
// likely.
func correlationIDFrom(src io.Reader) (string, error) {
	limit := 256 - 256%len(correlationAlphabet)
	id := make([]byte, 0, correlationIDLength)
	buf := make([]byte, correlationIDLength)
	for len(id) < correlationIDLength {
		if _, err := io.ReadFull(src, buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			id = append(id, correlationAlphabet[int(b)%len(correlationAlphabet)])
			if len(id) == correlationIDLength {
				break
			}
		}
	}
	return string(id), nil
}

// PendingInfo describes one outstanding command.
type PendingInfo struct {
	CorrelationID string        `json:"correlation_id"`
	DID           string        `json:"did"`
	Age           time.Duration `json:"age_ns"`
}

// Snapshot lists outstanding commands.
func (r *Relay) Snapshot() []PendingInfo {
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]PendingInfo, 0, len(r.pending))
	for id, p := range r.pending {
		out = append(out, PendingInfo{CorrelationID: id, DID: p.targetDID, Age: now.Sub(p.createdAt)})
	}
	return out
}
