package device

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nerrad567/bumper/internal/account"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options selects the account resolution policy.
type Options struct {
	// Permissive auto-provisions accounts for unknown device ids and grants
	// them visibility of every bot.
	Permissive bool

	// DefaultAccount is the account every device id resolves to in
	// permissive mode. Empty means one account per device id.
	DefaultAccount string
}

// Registry provides bot management with caching and thread safety, and
// resolves app device identifiers to accounts.
//
// The cache is populated on startup via RefreshCache() and kept in sync
// by write-through mutations.
//
// All public methods are thread-safe.
type Registry struct {
	repo     Repository
	accounts account.Repository
	opts     Options

	cache   map[string]*Bot // Cached bots by did
	cacheMu sync.RWMutex    // Protects cache

	writeMu   sync.Mutex // Serialises bot read-modify-write cycles
	resolveMu sync.Mutex // Serialises account provisioning

	now    func() time.Time
	logger Logger
}

// NewRegistry creates a new bot registry.
func NewRegistry(repo Repository, accounts account.Repository, opts Options) *Registry {
	return &Registry{
		repo:     repo,
		accounts: accounts,
		opts:     opts,
		cache:    make(map[string]*Bot),
		now:      time.Now,
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Permissive reports whether the registry auto-provisions accounts.
func (r *Registry) Permissive() bool {
	return r.opts.Permissive
}

// RefreshCache reloads all bots from the repository into the cache.
// This should be called on application startup.
func (r *Registry) RefreshCache(ctx context.Context) error {
	bots, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading bots: %w", err)
	}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	r.cache = make(map[string]*Bot, len(bots))
	for i := range bots {
		r.cache[bots[i].DID] = bots[i].Copy()
	}

	r.logger.Info("bot cache refreshed", "count", len(bots))
	return nil
}

// ResolveAccount maps an app device identifier to its account.
//
// In strict mode the binding must already exist; an unknown device yields
// an error matching both account.ErrNotActivated and account.ErrAccountNotFound.
// In permissive mode the account is created and the device bound on first
// contact.
func (r *Registry) ResolveAccount(ctx context.Context, deviceID string) (*account.Account, error) {
	if deviceID == "" {
		return nil, ErrInvalidDeviceID
	}

	acct, err := r.accounts.GetByDeviceID(ctx, deviceID)
	if err == nil {
		return acct, nil
	}
	if !errors.Is(err, account.ErrAccountNotFound) {
		return nil, fmt.Errorf("resolving device %s: %w", deviceID, err)
	}
	if !r.opts.Permissive {
		return nil, fmt.Errorf("%w: %w", account.ErrNotActivated, err)
	}

	r.resolveMu.Lock()
	defer r.resolveMu.Unlock()

	// Another request may have provisioned it while we waited.
	if acct, err := r.accounts.GetByDeviceID(ctx, deviceID); err == nil {
		return acct, nil
	}

	id := r.opts.DefaultAccount
	if id == "" {
		id = deviceID
	}
	if _, err := r.accounts.Create(ctx, id); err != nil && !errors.Is(err, account.ErrAccountExists) {
		return nil, fmt.Errorf("provisioning account: %w", err)
	}
	if err := r.accounts.AddDevice(ctx, id, deviceID); err != nil {
		return nil, fmt.Errorf("binding device: %w", err)
	}

	r.logger.Info("device bound to account", "device_id", deviceID, "account_id", id)
	return r.accounts.GetByID(ctx, id)
}

// Account returns the account with the given id.
func (r *Registry) Account(ctx context.Context, id string) (*account.Account, error) {
	return r.accounts.GetByID(ctx, id)
}

// AttachAllKnownBots grants the account visibility of every bot, present
// and future.
func (r *Registry) AttachAllKnownBots(ctx context.Context, acct *account.Account) error {
	if acct.AllBots {
		return nil
	}
	if err := r.accounts.SetAllBots(ctx, acct.ID, true); err != nil {
		return err
	}
	acct.AllBots = true
	return nil
}

// AssignBot grants an account explicit visibility of one bot.
func (r *Registry) AssignBot(ctx context.Context, accountID, did string) error {
	if _, err := r.GetBot(ctx, did); err != nil {
		return err
	}
	return r.accounts.AddBot(ctx, accountID, did)
}

// VisibleBots returns the bots the account may see, ordered by did.
func (r *Registry) VisibleBots(ctx context.Context, acct *account.Account) ([]Bot, error) {
	bots, err := r.ListBots(ctx)
	if err != nil {
		return nil, err
	}
	if acct.AllBots {
		return bots, nil
	}

	visible := make([]Bot, 0, len(acct.BotIDs))
	for i := range bots {
		if acct.CanSee(bots[i].DID) {
			visible = append(visible, bots[i])
		}
	}
	return visible, nil
}

// GetBot retrieves a bot by did.
// Returns ErrBotNotFound if the bot does not exist.
// The returned bot is a copy; callers can safely modify it.
func (r *Registry) GetBot(ctx context.Context, did string) (*Bot, error) {
	r.cacheMu.RLock()
	cached, ok := r.cache[did]
	r.cacheMu.RUnlock()

	if ok {
		return cached.Copy(), nil
	}

	// Fall back to repository (might be a bot written by another process)
	bot, err := r.repo.GetByDID(ctx, did)
	if err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	r.cache[did] = bot.Copy()
	r.cacheMu.Unlock()

	return bot, nil
}

// ListBots returns every cached bot ordered by did.
func (r *Registry) ListBots(_ context.Context) ([]Bot, error) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	bots := make([]Bot, 0, len(r.cache))
	for _, b := range r.cache {
		bots = append(bots, *b.Copy())
	}
	sort.Slice(bots, func(i, j int) bool { return bots[i].DID < bots[j].DID })
	return bots, nil
}

// RegisterBot records a bot that announced itself. Identity fields that are
// empty in bot keep their stored value; nick and connection flags are never
// changed. It reports whether the bot was new.
func (r *Registry) RegisterBot(ctx context.Context, bot Bot) (bool, error) {
	if bot.DID == "" {
		return false, ErrInvalidDID
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	existing, err := r.GetBot(ctx, bot.DID)
	created := errors.Is(err, ErrBotNotFound)
	if err != nil && !created {
		return false, err
	}

	merged := bot
	merged.Nick = ""
	merged.BusConnected = false
	merged.PresenceConnected = false
	if existing != nil {
		merged = *existing
		merged.Class = firstNonEmpty(bot.Class, existing.Class)
		merged.Company = firstNonEmpty(bot.Company, existing.Company)
		merged.Name = firstNonEmpty(bot.Name, existing.Name)
		merged.Resource = firstNonEmpty(bot.Resource, existing.Resource)
	}

	if err := r.repo.Upsert(ctx, &merged); err != nil {
		return false, err
	}
	r.store(&merged)

	if created {
		r.logger.Info("bot registered", "did", merged.DID, "class", merged.Class, "company", merged.Company)
	}
	return created, nil
}

// AddBot creates a bot with the given nickname, or renames it if it exists.
func (r *Registry) AddBot(ctx context.Context, did, nick string) error {
	if did == "" {
		return ErrInvalidDID
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	existing, err := r.GetBot(ctx, did)
	switch {
	case err == nil:
		return r.setNickLocked(ctx, existing, nick)
	case !errors.Is(err, ErrBotNotFound):
		return err
	}

	bot := &Bot{DID: did, Nick: nick}
	if err := r.repo.Upsert(ctx, bot); err != nil {
		return err
	}
	r.store(bot)

	r.logger.Info("bot added", "did", did, "nick", nick)
	return nil
}

// RenameBot sets the nickname of an existing bot.
// Returns ErrBotNotFound if the bot does not exist.
func (r *Registry) RenameBot(ctx context.Context, did, nick string) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	existing, err := r.GetBot(ctx, did)
	if err != nil {
		return err
	}
	return r.setNickLocked(ctx, existing, nick)
}

func (r *Registry) setNickLocked(ctx context.Context, bot *Bot, nick string) error {
	if err := r.repo.SetNick(ctx, bot.DID, nick); err != nil {
		return err
	}
	bot.Nick = nick
	bot.UpdatedAt = r.now().UTC()
	r.store(bot)

	r.logger.Info("bot renamed", "did", bot.DID, "nick", nick)
	return nil
}

// RemoveBot deletes a bot and drops it from every account.
func (r *Registry) RemoveBot(ctx context.Context, did string) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	if err := r.repo.Delete(ctx, did); err != nil {
		return err
	}

	r.cacheMu.Lock()
	delete(r.cache, did)
	r.cacheMu.Unlock()

	if err := r.accounts.RemoveBot(ctx, did); err != nil {
		return fmt.Errorf("removing bot from accounts: %w", err)
	}

	r.logger.Info("bot removed", "did", did)
	return nil
}

// SetBusConnected updates a bot's bus flag. It reports whether the flag
// changed, so callers can emit connect and disconnect events once.
func (r *Registry) SetBusConnected(ctx context.Context, did string, connected bool) (bool, error) {
	return r.setFlag(ctx, did, connected, r.repo.SetBusConnected, func(b *Bot) *bool { return &b.BusConnected })
}

type flagWriter func(ctx context.Context, did string, connected bool, at time.Time) error

func (r *Registry) setFlag(ctx context.Context, did string, connected bool, write flagWriter, field func(*Bot) *bool) (bool, error) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	bot, err := r.GetBot(ctx, did)
	if err != nil {
		return false, err
	}

	now := r.now().UTC()
	if err := write(ctx, did, connected, now); err != nil {
		return false, err
	}

	flag := field(bot)
	changed := *flag != connected
	*flag = connected
	bot.LastSeen = &now
	bot.UpdatedAt = now
	r.store(bot)

	if changed {
		r.logger.Debug("bot connection changed", "did", did, "connected", connected)
	}
	return changed, nil
}

// SilentBusBots returns bus-connected bots not seen within threshold.
func (r *Registry) SilentBusBots(threshold time.Duration) []Bot {
	cutoff := r.now().Add(-threshold)

	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	var silent []Bot
	for _, b := range r.cache {
		if b.BusConnected && (b.LastSeen == nil || b.LastSeen.Before(cutoff)) {
			silent = append(silent, *b.Copy())
		}
	}
	return silent
}

// GetStats returns current registry statistics.
func (r *Registry) GetStats() Stats {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	stats := Stats{Total: len(r.cache)}
	for _, b := range r.cache {
		if b.BusConnected {
			stats.BusConnected++
		}
		if b.PresenceConnected {
			stats.PresenceConnected++
		}
	}
	return stats
}

// store replaces the cached copy of bot.
func (r *Registry) store(bot *Bot) {
	r.cacheMu.Lock()
	r.cache[bot.DID] = bot.Copy()
	r.cacheMu.Unlock()
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
