package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Repository defines the interface for bot persistence operations.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// GetByDID retrieves a bot by its did.
	// Returns ErrBotNotFound if the bot does not exist.
	GetByDID(ctx context.Context, did string) (*Bot, error)

	// List retrieves all bots ordered by did.
	List(ctx context.Context) ([]Bot, error)

	// Upsert inserts the bot or replaces every field except Nick and
	// CreatedAt on an existing row. An empty Nick never clears a stored one.
	Upsert(ctx context.Context, bot *Bot) error

	// SetNick sets the nickname of an existing bot.
	// Returns ErrBotNotFound if the bot does not exist.
	SetNick(ctx context.Context, did, nick string) error

	// SetBusConnected updates the bus flag and last-seen time.
	SetBusConnected(ctx context.Context, did string, connected bool, at time.Time) error

	// Delete removes a bot.
	// Returns ErrBotNotFound if the bot does not exist.
	Delete(ctx context.Context, did string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const botColumns = `did, class, company, name, nick, resource, bus_connected,
	presence_connected, last_seen, created_at, updated_at`

// GetByDID retrieves a bot by did.
func (r *SQLiteRepository) GetByDID(ctx context.Context, did string) (*Bot, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+botColumns+` FROM bots WHERE did = ?`, did)
	bot, err := scanBot(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBotNotFound
		}
		return nil, fmt.Errorf("querying bot by did: %w", err)
	}
	return bot, nil
}

// List retrieves all bots.
func (r *SQLiteRepository) List(ctx context.Context) ([]Bot, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+botColumns+` FROM bots ORDER BY did`)
	if err != nil {
		return nil, fmt.Errorf("querying bots: %w", err)
	}
	defer rows.Close()

	bots := []Bot{}
	for rows.Next() {
		bot, err := scanBot(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning bot: %w", err)
		}
		bots = append(bots, *bot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating bots: %w", err)
	}
	return bots, nil
}

// Upsert inserts or updates a bot.
func (r *SQLiteRepository) Upsert(ctx context.Context, bot *Bot) error {
	if bot.DID == "" {
		return ErrInvalidDID
	}
	now := time.Now().UTC()
	if bot.CreatedAt.IsZero() {
		bot.CreatedAt = now
	}
	bot.UpdatedAt = now

	query := `
		INSERT INTO bots (` + botColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(did) DO UPDATE SET
			class = excluded.class,
			company = excluded.company,
			name = excluded.name,
			nick = CASE WHEN excluded.nick = '' THEN bots.nick ELSE excluded.nick END,
			resource = excluded.resource,
			bus_connected = excluded.bus_connected,
			presence_connected = excluded.presence_connected,
			last_seen = COALESCE(excluded.last_seen, bots.last_seen),
			updated_at = excluded.updated_at`

	_, err := r.db.ExecContext(ctx, query,
		bot.DID, bot.Class, bot.Company, bot.Name, bot.Nick, bot.Resource,
		boolToInt(bot.BusConnected), boolToInt(bot.PresenceConnected),
		formatTimePtr(bot.LastSeen),
		bot.CreatedAt.Format(time.RFC3339), bot.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upserting bot: %w", err)
	}
	return nil
}

// SetNick updates a bot's nickname.
func (r *SQLiteRepository) SetNick(ctx context.Context, did, nick string) error {
	return r.execOne(ctx, "setting bot nick",
		"UPDATE bots SET nick = ?, updated_at = ? WHERE did = ?",
		nick, time.Now().UTC().Format(time.RFC3339), did)
}

// SetBusConnected updates the bus connection flag.
func (r *SQLiteRepository) SetBusConnected(ctx context.Context, did string, connected bool, at time.Time) error {
	ts := at.UTC().Format(time.RFC3339)
	return r.execOne(ctx, "setting bot bus state",
		"UPDATE bots SET bus_connected = ?, last_seen = ?, updated_at = ? WHERE did = ?",
		boolToInt(connected), ts, ts, did)
}

// Delete removes a bot by did.
func (r *SQLiteRepository) Delete(ctx context.Context, did string) error {
	return r.execOne(ctx, "deleting bot", "DELETE FROM bots WHERE did = ?", did)
}

// execOne runs a statement that must touch exactly one bot row.
func (r *SQLiteRepository) execOne(ctx context.Context, op, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: checking rows affected: %w", op, err)
	}
	if rows == 0 {
		return ErrBotNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBot(row scanner) (*Bot, error) {
	var b Bot
	var bus, presence int
	var lastSeen sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&b.DID, &b.Class, &b.Company, &b.Name, &b.Nick, &b.Resource,
		&bus, &presence, &lastSeen, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	b.BusConnected = bus != 0
	b.PresenceConnected = presence != 0
	if lastSeen.Valid {
		if t, err := time.Parse(time.RFC3339, lastSeen.String); err == nil {
			b.LastSeen = &t
		}
	}
	b.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	b.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // format is controlled
	return &b, nil
}

func formatTimePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
