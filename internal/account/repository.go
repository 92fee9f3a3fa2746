package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/bumper/internal/infrastructure/database"
)

// Repository defines the persistence operations for accounts.
// Implementations must be safe for concurrent use.
type Repository interface {
	// GetByID returns ErrAccountNotFound if the account does not exist.
	GetByID(ctx context.Context, id string) (*Account, error)

	// GetByDeviceID returns the account a device id is bound to, or
	// ErrAccountNotFound.
	GetByDeviceID(ctx context.Context, deviceID string) (*Account, error)

	// Create inserts an empty account. Returns ErrAccountExists on conflict.
	Create(ctx context.Context, id string) (*Account, error)

	// AddDevice binds a device id to an account. Binding a device to the
	// account that already owns it is a no-op; binding it to another
	// account returns ErrDeviceBound.
	AddDevice(ctx context.Context, accountID, deviceID string) error

	// AddBot grants explicit visibility of a bot. Idempotent.
	AddBot(ctx context.Context, accountID, did string) error

	// RemoveBot drops a bot from every account that lists it.
	RemoveBot(ctx context.Context, did string) error

	// SetAllBots toggles the every-bot visibility capability.
	SetAllBots(ctx context.Context, accountID string, all bool) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// GetByID retrieves an account by id.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Account, error) {
	var a Account
	var allBots int
	var createdAt string

	err := r.db.QueryRowContext(ctx,
		"SELECT id, all_bots, created_at FROM accounts WHERE id = ?", id,
	).Scan(&a.ID, &allBots, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("querying account: %w", err)
	}
	a.AllBots = allBots != 0
	a.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled

	if err := r.loadRelations(ctx, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// GetByDeviceID retrieves the account a device id is bound to.
func (r *SQLiteRepository) GetByDeviceID(ctx context.Context, deviceID string) (*Account, error) {
	var accountID string
	err := r.db.QueryRowContext(ctx,
		"SELECT account_id FROM account_devices WHERE device_id = ?", deviceID,
	).Scan(&accountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("querying device binding: %w", err)
	}
	return r.GetByID(ctx, accountID)
}

// Create inserts a new account with no devices or bots.
func (r *SQLiteRepository) Create(ctx context.Context, id string) (*Account, error) {
	if id == "" {
		return nil, ErrInvalidID
	}

	now := time.Now().UTC().Truncate(time.Second)
	res, err := r.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO accounts (id, all_bots, created_at) VALUES (?, 0, ?)",
		id, now.Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting account: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 { //nolint:errcheck // sqlite3 always reports rows affected
		return nil, ErrAccountExists
	}

	return &Account{ID: id, CreatedAt: now}, nil
}

// AddDevice binds deviceID to accountID inside one transaction so the
// ownership check and the insert cannot interleave with another binding.
func (r *SQLiteRepository) AddDevice(ctx context.Context, accountID, deviceID string) error {
	if accountID == "" || deviceID == "" {
		return ErrInvalidID
	}

	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM accounts WHERE id = ?", accountID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("checking account: %w", err)
		}
		if exists == 0 {
			return ErrAccountNotFound
		}

		var owner string
		err := tx.QueryRowContext(ctx,
			"SELECT account_id FROM account_devices WHERE device_id = ?", deviceID,
		).Scan(&owner)
		switch {
		case err == nil && owner == accountID:
			return nil
		case err == nil:
			return fmt.Errorf("%w: %s", ErrDeviceBound, deviceID)
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("checking device binding: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO account_devices (device_id, account_id, created_at) VALUES (?, ?, ?)",
			deviceID, accountID, time.Now().UTC().Format(time.RFC3339),
		); err != nil {
			return fmt.Errorf("binding device: %w", err)
		}
		return nil
	})
}

// AddBot grants explicit visibility of did to accountID.
func (r *SQLiteRepository) AddBot(ctx context.Context, accountID, did string) error {
	if accountID == "" || did == "" {
		return ErrInvalidID
	}
	if _, err := r.GetByID(ctx, accountID); err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO account_bots (account_id, did) VALUES (?, ?)",
		accountID, did,
	); err != nil {
		return fmt.Errorf("adding bot to account: %w", err)
	}
	return nil
}

// RemoveBot removes did from every account.
func (r *SQLiteRepository) RemoveBot(ctx context.Context, did string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM account_bots WHERE did = ?", did); err != nil {
		return fmt.Errorf("removing bot from accounts: %w", err)
	}
	return nil
}

// SetAllBots sets the every-bot visibility flag.
func (r *SQLiteRepository) SetAllBots(ctx context.Context, accountID string, all bool) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE accounts SET all_bots = ? WHERE id = ?", boolToInt(all), accountID,
	)
	if err != nil {
		return fmt.Errorf("updating account visibility: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 { //nolint:errcheck // sqlite3 always reports rows affected
		return ErrAccountNotFound
	}
	return nil
}

func (r *SQLiteRepository) loadRelations(ctx context.Context, a *Account) error {
	devices, err := r.queryStrings(ctx,
		"SELECT device_id FROM account_devices WHERE account_id = ? ORDER BY created_at, device_id", a.ID)
	if err != nil {
		return fmt.Errorf("loading account devices: %w", err)
	}
	bots, err := r.queryStrings(ctx,
		"SELECT did FROM account_bots WHERE account_id = ? ORDER BY did", a.ID)
	if err != nil {
		return fmt.Errorf("loading account bots: %w", err)
	}
	a.DeviceIDs = devices
	a.BotIDs = bots
	return nil
}

func (r *SQLiteRepository) queryStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
