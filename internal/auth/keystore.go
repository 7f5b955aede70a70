// Package auth implements the bearer-token pipeline of spec §4.5: token
// parsing, the static base-model key shortcut, a SHA-256-keyed lookup
// against a durable key store, and a process-local TTL cache in front of
// that store.
package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/mattn/go-sqlite3"

	"github.com/aiserve/inference-gateway/internal/config"
	"github.com/aiserve/inference-gateway/internal/resilience"
)

// KeyRecord is one row of the `api-keys` collection described in §6.
type KeyRecord struct {
	KeyHash   string
	IsActive  bool
	ExpiresAt *time.Time
	ModelName string
	UserID    string
	Type      string
}

// ErrNotFound is returned by Store.Lookup when no record matches the hash.
var ErrNotFound = errors.New("auth: no key record for hash")

// Store is the durable API-key lookup surface.
type Store interface {
	Lookup(ctx context.Context, keyHash string) (*KeyRecord, error)
}

// NewStore builds the Store backend selected by cfg.Database.Type,
// mirroring the gateway's own postgres/sqlite split for local dev vs.
// production deployments.
func NewStore(cfg config.DatabaseConfig) (Store, error) {
	switch cfg.Type {
	case "sqlite":
		return newSQLiteStore(cfg)
	case "postgres":
		return newPostgresStore(cfg)
	default:
		return nil, fmt.Errorf("unsupported DB_TYPE: %s", cfg.Type)
	}
}

type postgresStore struct {
	pool    *pgxpool.Pool
	breaker *resilience.CircuitBreaker
}

func newPostgresStore(cfg config.DatabaseConfig) (Store, error) {
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName, cfg.SSLMode)

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)
	poolCfg.MinConns = int32(cfg.MinConns)

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres pool: %w", err)
	}
	return &postgresStore{pool: pool, breaker: resilience.NewCircuitBreaker(resilience.DefaultSettings)}, nil
}

func (s *postgresStore) Lookup(ctx context.Context, keyHash string) (*KeyRecord, error) {
	queryCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	// A missing key is a normal outcome, not an infra failure, so it must
	// not count against the breaker: returned as a nil result rather than
	// a non-nil error from the wrapped function.
	result, err := s.breaker.ExecuteContext(queryCtx, "auth-keystore", func() (interface{}, error) {
		const query = `
			SELECT key_hash, is_active, expires_at, model_name, user_id, type
			FROM api_keys
			WHERE key_hash = $1
		`
		var rec KeyRecord
		err := s.pool.QueryRow(queryCtx, query, keyHash).
			Scan(&rec.KeyHash, &rec.IsActive, &rec.ExpiresAt, &rec.ModelName, &rec.UserID, &rec.Type)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return (*KeyRecord)(nil), nil
			}
			return nil, fmt.Errorf("failed to query api key: %w", err)
		}
		return &rec, nil
	})
	if err != nil {
		if errors.Is(err, resilience.ErrCircuitOpen) {
			return nil, fmt.Errorf("auth keystore circuit open: %w", err)
		}
		return nil, err
	}
	rec, _ := result.(*KeyRecord)
	if rec == nil {
		return nil, ErrNotFound
	}
	return rec, nil
}

type sqliteStore struct {
	db *sql.DB
}

func newSQLiteStore(cfg config.DatabaseConfig) (Store, error) {
	db, err := sql.Open("sqlite3", cfg.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}
	if _, err := db.Exec(createAPIKeysTable); err != nil {
		return nil, fmt.Errorf("failed to migrate api_keys table: %w", err)
	}
	return &sqliteStore{db: db}, nil
}

const createAPIKeysTable = `
CREATE TABLE IF NOT EXISTS api_keys (
	key_hash   TEXT PRIMARY KEY,
	is_active  INTEGER NOT NULL DEFAULT 1,
	expires_at DATETIME,
	model_name TEXT NOT NULL,
	user_id    TEXT NOT NULL,
	type       TEXT NOT NULL
)`

func (s *sqliteStore) Lookup(ctx context.Context, keyHash string) (*KeyRecord, error) {
	const query = `
		SELECT key_hash, is_active, expires_at, model_name, user_id, type
		FROM api_keys WHERE key_hash = ?
	`
	var rec KeyRecord
	var isActive int
	var expiresAt sql.NullTime
	err := s.db.QueryRowContext(ctx, query, keyHash).
		Scan(&rec.KeyHash, &isActive, &expiresAt, &rec.ModelName, &rec.UserID, &rec.Type)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query api key: %w", err)
	}
	rec.IsActive = isActive != 0
	if expiresAt.Valid {
		rec.ExpiresAt = &expiresAt.Time
	}
	return &rec, nil
}
