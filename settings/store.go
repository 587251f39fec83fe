// Package settings provides the persisted key-value store backing
// runtime-mutable gateway configuration. Reads walk in-memory values,
// then the database, then environment-variable defaults. Writes go to the
// database when one is attached so that out-of-process changes (an operator
// flipping a flag) are seen on the next read; the in-memory map only backs
// database-less stores.
package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/rs/zerolog"
)

// envDefaults maps setting keys to the environment variables consulted when
// neither an override nor a database row exists.
var envDefaults = map[string]string{
	KeyRouterEnabled:       "GATEWAY_ROUTER_ENABLED",
	KeyRouterImpl:          "GATEWAY_ROUTER_IMPL",
	KeyRouterUpThreshold:   "GATEWAY_ROUTER_UP_THRESHOLD",
	KeyRouterDownThreshold: "GATEWAY_ROUTER_DOWN_THRESHOLD",
	KeyRouterLatencyBudget: "GATEWAY_ROUTER_LATENCY_BUDGET_MS",
	KeyFallbackDisabled:    "GATEWAY_FALLBACK_DISABLED",
}

// Well-known setting keys.
const (
	KeyRouterEnabled       = "router.enabled"
	KeyRouterImpl          = "router.impl"
	KeyRouterUpThreshold   = "router.threshold_up"
	KeyRouterDownThreshold = "router.threshold_down"
	KeyRouterLatencyBudget = "router.latency_budget_ms"
	KeyFallbackDisabled    = "gateway.fallback_disabled"
)

// Store is the persisted settings store. A nil db is allowed (memory-only
// store), which tests and one-shot invocations use.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger

	mu        sync.RWMutex
	overrides map[string]string
}

// NewStore creates a settings store backed by db. The settings table must
// already exist (see migrations).
func NewStore(db *sql.DB, logger zerolog.Logger) *Store {
	return &Store{
		db:        db,
		logger:    logger.With().Str("component", "settings").Logger(),
		overrides: make(map[string]string),
	}
}

// NewMemoryStore creates a store with no database; values live only in
// memory and env defaults.
func NewMemoryStore(logger zerolog.Logger) *Store {
	return NewStore(nil, logger)
}

// Get returns the raw value for key, walking override -> database -> env.
func (s *Store) Get(ctx context.Context, key string) (string, bool) {
	s.mu.RLock()
	if v, ok := s.overrides[key]; ok {
		s.mu.RUnlock()
		return v, true
	}
	s.mu.RUnlock()

	if s.db != nil {
		query, args, err := sq.Select("value").
			From("settings").
			Where(sq.Eq{"key": key}).
			ToSql()
		if err == nil {
			var value string
			err = s.db.QueryRowContext(ctx, query, args...).Scan(&value)
			switch {
			case err == nil:
				return value, true
			case errors.Is(err, sql.ErrNoRows):
				// fall through to env default
			default:
				s.logger.Warn().Err(err).Str("key", key).Msg("Settings read failed, using defaults")
			}
		}
	}

	if envVar, ok := envDefaults[key]; ok {
		if v := os.Getenv(envVar); v != "" {
			return v, true
		}
	}
	return "", false
}

// Set persists a value. With a database attached the row is authoritative
// and nothing is cached, so per-call polling observes external changes.
func (s *Store) Set(ctx context.Context, key, value string) error {
	if s.db != nil {
		query, args, err := sq.Insert("settings").
			Columns("key", "value", "updated_at").
			Values(key, value, time.Now().Unix()).
			ToSql()
		if err != nil {
			return fmt.Errorf("build query: %w", err)
		}
		// SQLite upsert; squirrel has no native ON CONFLICT support.
		query += " ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at"
		if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("persist setting %s: %w", key, err)
		}
		return nil
	}

	s.mu.Lock()
	s.overrides[key] = value
	s.mu.Unlock()
	return nil
}

// Delete removes a key from both the database and the override map, so
// reads fall back to env defaults. Clearing the fallback-disabled flag is
// how an operator re-enables a provider after credit exhaustion.
func (s *Store) Delete(ctx context.Context, key string) error {
	if s.db != nil {
		query, args, err := sq.Delete("settings").
			Where(sq.Eq{"key": key}).
			ToSql()
		if err != nil {
			return fmt.Errorf("build query: %w", err)
		}
		if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("delete setting %s: %w", key, err)
		}
		return nil
	}

	s.mu.Lock()
	delete(s.overrides, key)
	s.mu.Unlock()
	return nil
}

// GetBool returns key as a bool, or def when unset/unparseable.
func (s *Store) GetBool(ctx context.Context, key string, def bool) bool {
	raw, ok := s.Get(ctx, key)
	if !ok {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}

// GetFloat returns key as a float64, or def when unset/unparseable.
func (s *Store) GetFloat(ctx context.Context, key string, def float64) float64 {
	raw, ok := s.Get(ctx, key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return def
	}
	return f
}

// GetInt returns key as an int, or def when unset/unparseable.
func (s *Store) GetInt(ctx context.Context, key string, def int) int {
	raw, ok := s.Get(ctx, key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return def
	}
	return n
}

// GetString returns key as a string, or def when unset.
func (s *Store) GetString(ctx context.Context, key, def string) string {
	raw, ok := s.Get(ctx, key)
	if !ok {
		return def
	}
	return raw
}

// GetDurationMS interprets key as integer milliseconds, or def when unset.
func (s *Store) GetDurationMS(ctx context.Context, key string, def time.Duration) time.Duration {
	raw, ok := s.Get(ctx, key)
	if !ok {
		return def
	}
	ms, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || ms < 0 {
		return def
	}
	return time.Duration(ms) * time.Millisecond
}
