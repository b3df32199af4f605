// Package auth keeps the cache of API keys allowed to call the service and
// the per-key request budget loaded from Postgres.
package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"imgpack/internal/config"
	"imgpack/internal/infra/logging"
)

var (
	// ErrInvalidAPIKey signals that the provided API key is not known.
	ErrInvalidAPIKey = errors.New("invalid api key")
	// ErrStoreNotReady signals that no key list has been loaded yet, typically
	// while the database is still starting.
	ErrStoreNotReady = errors.New("api key store not ready")
)

const (
	schemaDDL = `CREATE TABLE IF NOT EXISTS api_keys (
		api_key TEXT PRIMARY KEY,
		rate_limit INTEGER NOT NULL DEFAULT 60,
		revoked BOOLEAN NOT NULL DEFAULT false,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		comment TEXT
	);`
	selectKeys = `SELECT api_key, rate_limit FROM api_keys WHERE NOT revoked;`
)

// Store is a read-mostly cache of API keys. The zero value is an empty,
// not-ready store; use NewStore to attach Postgres.
type Store struct {
	mu    sync.RWMutex
	cache map[string]int

	cfg config.PostgresConfig
	db  *sql.DB
}

// NewStore prepares a store backed by the given database settings. No
// connection is made until Load.
func NewStore(cfg config.PostgresConfig) *Store {
	return &Store{cfg: cfg}
}

// DSN builds a pgx connection URL. A host that already is a postgres URL is
// returned unchanged.
func DSN(cfg config.PostgresConfig) (string, error) {
	if strings.HasPrefix(cfg.Host, "postgres://") || strings.HasPrefix(cfg.Host, "postgresql://") {
		return cfg.Host, nil
	}
	switch {
	case cfg.Host == "":
		return "", fmt.Errorf("postgres host is empty")
	case cfg.Database == "":
		return "", fmt.Errorf("postgres database is empty")
	case cfg.User == "":
		return "", fmt.Errorf("postgres user is empty")
	}

	port := cfg.Port
	if port == 0 {
		port = 5432
	}
	host := cfg.Host
	if h, p, err := net.SplitHostPort(host); err == nil {
		host = net.JoinHostPort(h, p)
	} else {
		host = net.JoinHostPort(strings.Trim(host, "[]"), strconv.Itoa(port))
	}

	u := &url.URL{Scheme: "postgres", Host: host, Path: "/" + cfg.Database}
	if cfg.Password != "" {
		u.User = url.UserPassword(cfg.User, cfg.Password)
	} else {
		u.User = url.User(cfg.User)
	}
	if cfg.SSLMode != "" {
		q := url.Values{}
		q.Set("sslmode", cfg.SSLMode)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (s *Store) open(ctx context.Context) (*sql.DB, error) {
	if s.db != nil {
		return s.db, nil
	}
	dsn, err := DSN(s.cfg)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Small control-plane table.
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(pingCtx, schemaDDL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure api_keys table: %w", err)
	}
	s.db = db
	return db, nil
}

// Load replaces the cache with the non-revoked keys from Postgres.
func (s *Store) Load(ctx context.Context) error {
	db, err := s.open(ctx)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := db.QueryContext(ctx, selectKeys)
	if err != nil {
		return err
	}
	defer rows.Close()

	cache := make(map[string]int)
	for rows.Next() {
		var key string
		var limit int
		if err := rows.Scan(&key, &limit); err != nil {
			return err
		}
		cache[key] = limit
	}
	if err := rows.Err(); err != nil {
		return err
	}

	s.replace(cache)
	logging.Debug("API keys loaded", "count", len(cache))
	return nil
}

// LoadMap replaces the cache with a copy of m.
func (s *Store) LoadMap(m map[string]int) {
	cache := make(map[string]int, len(m))
	for k, v := range m {
		cache[k] = v
	}
	s.replace(cache)
}

func (s *Store) replace(cache map[string]int) {
	s.mu.Lock()
	s.cache = cache
	s.mu.Unlock()
}

// Ready reports whether a key list was loaded at least once.
func (s *Store) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cache != nil
}

// Validate checks key against the cache.
func (s *Store) Validate(key string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cache == nil {
		return ErrStoreNotReady
	}
	if _, ok := s.cache[key]; !ok {
		return ErrInvalidAPIKey
	}
	return nil
}

// RateLimit returns the per-interval budget of key, or 0 when the key is
// unknown or unlimited.
func (s *Store) RateLimit(key string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cache[key]
}

// Refresh reloads the keys every interval until ctx is done.
func (s *Store) Refresh(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := s.Load(ctx); err != nil {
				logging.Error("Failed to reload API keys", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
