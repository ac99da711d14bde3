// ./internal/state/db.go
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/config"
	"github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("record not found")
	// ErrSchemaMissing means the cache tables have not been created yet.
	ErrSchemaMissing = errors.New("database schema missing: run EnsureSchema")
)

// undefinedTable is the Postgres SQLSTATE for a missing relation.
const undefinedTable = "42P01"

// DBConfig holds database connection parameters.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string // "disable", "require", "verify-full", etc.
}

// DBConfigFromEnv returns the connection parameters loaded by config.LoadConfig.
func DBConfigFromEnv() DBConfig {
	return DBConfig{
		Host:     config.DBHost,
		Port:     config.DBPort,
		User:     config.DBUser,
		Password: config.DBPassword,
		DBName:   config.DBName,
		SSLMode:  config.DBSSLMode,
	}
}

// DSN renders the config as a postgres URL with the password escaped.
func (c DBConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   "/" + c.DBName,
	}
	q := url.Values{}
	q.Set("sslmode", c.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// Store owns the connection pool of the cache database.
type Store struct {
	db *sql.DB
}

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, cfg DBConfig) (*Store, error) {
	return OpenDSN(ctx, cfg.DSN())
}

// OpenDSN connects using a postgres connection string.
func OpenDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	store := &Store{db: db}
	if err := store.Ping(ctx); err != nil {
		db.Close()
		return nil, err
	}

	log.Info().Msg("Successfully connected to the PostgreSQL database!")
	return store, nil
}

// Close closes the connection pool.
func (s *Store) Close() {
	if s == nil || s.db == nil {
		return
	}
	log.Info().Msg("Closing database connection...")
	if err := s.db.Close(); err != nil {
		log.Error().Err(err).Msg("Error closing database connection")
	}
}

// Ping checks that the database answers within five seconds.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("database connection is nil")
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

const schemaSQL = `
	CREATE TABLE IF NOT EXISTS live_coin_watch_coins (
		id SERIAL PRIMARY KEY,
		code VARCHAR(32) NOT NULL UNIQUE,
		name TEXT NOT NULL,
		rate DOUBLE PRECISION NOT NULL,
		volume DOUBLE PRECISION NOT NULL DEFAULT 0,
		cap DOUBLE PRECISION NOT NULL DEFAULT 0,
		delta_hour DOUBLE PRECISION NOT NULL DEFAULT 0,
		delta_day DOUBLE PRECISION NOT NULL DEFAULT 0,
		delta_week DOUBLE PRECISION NOT NULL DEFAULT 0,
		delta_month DOUBLE PRECISION NOT NULL DEFAULT 0,
		delta_quarter DOUBLE PRECISION NOT NULL DEFAULT 0,
		delta_year DOUBLE PRECISION NOT NULL DEFAULT 0,
		total_supply DOUBLE PRECISION NOT NULL DEFAULT 0,
		circulating_supply DOUBLE PRECISION NOT NULL DEFAULT 0,
		max_supply DOUBLE PRECISION NOT NULL DEFAULT 0,
		last_updated TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_live_coin_watch_coins_cap ON live_coin_watch_coins(cap DESC);

	CREATE TABLE IF NOT EXISTS price_history_data (
		id SERIAL PRIMARY KEY,
		token_code VARCHAR(32) NOT NULL,
		contract_address VARCHAR(42),
		timeframe VARCHAR(4) NOT NULL,
		timestamp BIGINT NOT NULL,
		price DOUBLE PRECISION NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		CONSTRAINT uq_price_history_point UNIQUE (token_code, timeframe, timestamp)
	);
	CREATE INDEX IF NOT EXISTS idx_price_history_token ON price_history_data(token_code, timeframe, timestamp);
	CREATE INDEX IF NOT EXISTS idx_price_history_contract ON price_history_data(contract_address, timeframe);

	CREATE TABLE IF NOT EXISTS action_receipts (
		receipt_id SERIAL PRIMARY KEY,
		action_timestamp TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		action_type VARCHAR(50) NOT NULL,
		pool_id BIGINT NOT NULL,
		account VARCHAR(42) NOT NULL,
		amount NUMERIC(78, 0),
		tx_hash VARCHAR(66),
		success BOOLEAN NOT NULL,
		message TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_action_receipts_timestamp ON action_receipts(action_timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_action_receipts_account ON action_receipts(account);
	CREATE INDEX IF NOT EXISTS idx_action_receipts_pool_id ON action_receipts(pool_id);
`

// EnsureSchema applies the DDL of the cache tables. It is safe to run repeatedly.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema DDL: %w", err)
	}
	log.Info().Msg("Database schema ensured.")
	return nil
}

// DropSchema removes every table EnsureSchema creates.
func (s *Store) DropSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		DROP TABLE IF EXISTS live_coin_watch_coins CASCADE;
		DROP TABLE IF EXISTS price_history_data CASCADE;
		DROP TABLE IF EXISTS action_receipts CASCADE;
	`)
	if err != nil {
		return fmt.Errorf("failed to drop tables: %w", err)
	}
	log.Warn().Msg("Dropped all cache tables")
	return nil
}

// mapError turns driver errors callers can act on into package sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == undefinedTable {
		return fmt.Errorf("%w: %s", ErrSchemaMissing, pqErr.Message)
	}
	return err
}
