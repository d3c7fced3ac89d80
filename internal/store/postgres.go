package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/koalychatbot/koaly-telegram-bot/internal/config"
	"github.com/koalychatbot/koaly-telegram-bot/internal/types"
)

// DBTX is the minimal interface shared by *pgxpool.Pool and pgx.Tx.
// The store accepts this so the same code works inside or outside a
// transaction, and so tests can substitute a mock.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// OpenPostgres creates a pgx connection pool with the configured tuning.
func OpenPostgres(ctx context.Context, cfg config.StoreConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL.Unmask())
	if err != nil {
		return nil, err
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)
	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.ConnConfig.ConnectTimeout = cfg.AcquireTimeout

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// PostgresStore implements UserStore on a users table. The conversation
// window is held in a JSONB column so the whole record commits in one
// statement.
type PostgresStore struct {
	db   DBTX
	pool *pgxpool.Pool // nil when constructed over a transaction or mock
}

// NewPostgresStore creates a PostgresStore backed by the given pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: pool, pool: pool}
}

// NewPostgresStoreWithDB creates a PostgresStore over an arbitrary DBTX.
// Used by tests and transactional callers.
func NewPostgresStoreWithDB(db DBTX) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the users table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id               TEXT PRIMARY KEY,
			premium          BOOLEAN NOT NULL DEFAULT FALSE,
			history          JSONB   NOT NULL DEFAULT '[]',
			last_active_date TEXT    NOT NULL DEFAULT '',
			message_count    INT     NOT NULL DEFAULT 0
		)`)
	if err != nil {
		return errStore("create users table", err)
	}
	return nil
}

// userColumns is the standard column list for user queries. Kept as a single
// constant so SELECT and scan order cannot drift apart.
const userColumns = `id, premium, history, last_active_date, message_count`

// scanUser scans a single user row. The history JSONB column arrives as raw
// bytes and is decoded into the typed window.
func scanUser(row pgx.Row) (*types.UserRecord, error) {
	var u types.UserRecord
	var history []byte
	if err := row.Scan(&u.ID, &u.Premium, &history, &u.LastActiveDate, &u.MessageCount); err != nil {
		return nil, err
	}
	if len(history) > 0 {
		if err := json.Unmarshal(history, &u.History); err != nil {
			return nil, err
		}
	}
	return &u, nil
}

// Get retrieves the record for the given id.
func (s *PostgresStore) Get(ctx context.Context, id string) (*types.UserRecord, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id)

	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errNotFound(id)
		}
		return nil, errStore("get user", err)
	}
	return u, nil
}

// Create inserts a fresh record.
func (s *PostgresStore) Create(ctx context.Context, rec *types.UserRecord) error {
	history, err := marshalHistory(rec.History)
	if err != nil {
		return errStore("encode history", err)
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO users (id, premium, history, last_active_date, message_count)
		 VALUES ($1, $2, $3, $4, $5)`,
		rec.ID, rec.Premium, history, rec.LastActiveDate, rec.MessageCount)
	if err != nil {
		return errStore("create user", err)
	}
	return nil
}

// Save persists the full record in a single UPDATE.
func (s *PostgresStore) Save(ctx context.Context, rec *types.UserRecord) error {
	history, err := marshalHistory(rec.History)
	if err != nil {
		return errStore("encode history", err)
	}
	tag, err := s.db.Exec(ctx,
		`UPDATE users
		 SET premium = $2, history = $3, last_active_date = $4, message_count = $5
		 WHERE id = $1`,
		rec.ID, rec.Premium, history, rec.LastActiveDate, rec.MessageCount)
	if err != nil {
		return errStore("save user", err)
	}
	if tag.RowsAffected() == 0 {
		return errNotFound(rec.ID)
	}
	return nil
}

// ActivatePremium flips the user to premium, creating the record if needed.
// The upsert touches only the premium column on conflict, so a concurrent
// quota commit for the same user can never be overwritten by an activation.
func (s *PostgresStore) ActivatePremium(ctx context.Context, id string) (*types.UserRecord, error) {
	row := s.db.QueryRow(ctx,
		`INSERT INTO users (id, premium) VALUES ($1, TRUE)
		 ON CONFLICT (id) DO UPDATE SET premium = TRUE
		 RETURNING `+userColumns, id)

	u, err := scanUser(row)
	if err != nil {
		return nil, errStore("activate premium", err)
	}
	return u, nil
}

// Ping reports database reachability.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if s.pool != nil {
		return s.pool.Ping(ctx)
	}
	_, err := s.db.Exec(ctx, `SELECT 1`)
	return err
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// marshalHistory encodes the conversation window for the JSONB column.
// An empty window is stored as an empty array, never NULL.
func marshalHistory(history []types.ChatMessage) ([]byte, error) {
	if history == nil {
		history = []types.ChatMessage{}
	}
	return json.Marshal(history)
}

var _ UserStore = (*PostgresStore)(nil)
