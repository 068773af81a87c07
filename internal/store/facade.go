package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/paddockdata/gridbase/internal/cache"
	"github.com/paddockdata/gridbase/internal/config"
	"github.com/paddockdata/gridbase/internal/monitoring"
	"github.com/paddockdata/gridbase/internal/tabular"
)

// TTLPolicy sets the cache lifetime per entity kind. Race and session
// results are effectively immutable once a session ends and can live long;
// predictions are regenerated often and expire fast.
type TTLPolicy struct {
	Default     time.Duration
	Results     time.Duration
	Predictions time.Duration
}

// Store is the single data-access entry point: reads go cache-first and fall
// back to the engine, writes go to the engine and invalidate the cache only
// after the transaction commits. Cache trouble is never surfaced to callers.
type Store struct {
	engine Engine
	cache  cache.Cache
	ttl    TTLPolicy
}

// New wires a Store over an already-opened engine and cache.
func New(engine Engine, c cache.Cache, ttl TTLPolicy) *Store {
	if c == nil {
		c = cache.Nop{}
	}
	return &Store{engine: engine, cache: c, ttl: ttl}
}

// Open builds the configured engine, brings its schema up to date and
// attaches the configured cache. A cache that cannot be reached still
// yields a working Store; a database that cannot be opened does not.
func Open(ctx context.Context, cfg *config.Config) (*Store, error) {
	var (
		engine Engine
		err    error
	)
	switch cfg.Engine {
	case "postgres":
		engine, err = OpenPostgres(ctx, cfg.PostgresDSN)
	default:
		engine, err = OpenSQLite(cfg.SQLitePath)
	}
	if err != nil {
		return nil, err
	}
	if err := engine.InitializeSchema(ctx); err != nil {
		engine.Close()
		return nil, err
	}
	if err := engine.ApplyMigrations(ctx); err != nil {
		engine.Close()
		return nil, err
	}

	var c cache.Cache = cache.Nop{}
	if cfg.CacheEnabled {
		rc, err := cache.NewRedis(cfg.RedisURL, cfg.CacheTimeout)
		if err != nil {
			monitoring.Logf("cache disabled: %v", err)
		} else {
			c = rc
		}
	}

	return New(engine, c, TTLPolicy{
		Default:     cfg.DefaultTTL,
		Results:     cfg.ResultsTTL,
		Predictions: cfg.PredictionsTTL,
	}), nil
}

// Engine exposes the underlying persistence engine, mainly for the admin
// surface and the migration tool.
func (s *Store) Engine() Engine { return s.engine }

// Close releases the engine and the cache connection.
func (s *Store) Close() error {
	s.cache.Close()
	return s.engine.Close()
}

// cached runs a read query through the cache-aside path: a decodable cached
// payload short-circuits the engine entirely; anything else falls through to
// the engine and repopulates the cache best-effort.
func (s *Store) cached(ctx context.Context, key string, ttl time.Duration, query string, args ...interface{}) (*tabular.ResultSet, error) {
	if payload, ok := s.cache.Get(ctx, key); ok {
		rs, err := tabular.Decode(payload)
		if err == nil {
			return rs, nil
		}
		// Undecodable payload, likely written by an incompatible build.
		monitoring.Logf("cache: dropping corrupt payload for %s: %v", key, err)
		s.cache.Delete(ctx, key)
	}

	rs, err := s.engine.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if payload, err := rs.Encode(); err == nil {
		s.cache.Set(ctx, key, payload, ttl)
	}
	return rs, nil
}

// ReadQuery runs an arbitrary read-only query through the cache-aside path.
// The cache key is derived from the statement and its arguments, so repeats
// of the same ad-hoc query within the default TTL hit the cache.
func (s *Store) ReadQuery(ctx context.Context, query string, args ...interface{}) (*tabular.ResultSet, error) {
	if !readOnly(query) {
		return nil, fmt.Errorf("read query must be a SELECT statement")
	}
	return s.cached(ctx, adhocKey(query, args), s.ttl.Default, query, args...)
}

func readOnly(query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	return strings.HasPrefix(q, "select") || strings.HasPrefix(q, "with")
}

func adhocKey(query string, args []interface{}) string {
	h := sha256.New()
	fmt.Fprint(h, query)
	for _, a := range args {
		fmt.Fprintf(h, "|%v", a)
	}
	return cache.Key("adhoc", hex.EncodeToString(h.Sum(nil))[:16])
}

// Invalidate deletes every cached payload matching the pattern and returns
// the number removed.
func (s *Store) Invalidate(ctx context.Context, pattern string) int {
	return s.cache.DeletePattern(ctx, pattern)
}

// CacheStats reports cache health and hit counters.
func (s *Store) CacheStats(ctx context.Context) cache.Stats {
	return s.cache.Stats(ctx)
}

// FlushCache empties the cache. The database is untouched.
func (s *Store) FlushCache(ctx context.Context) error {
	return s.cache.Flush(ctx)
}

// invalidateRace drops every cached read scoped to one race. Results,
// sessions, laps, stints and predictions all key under the race id, so a
// write to any of them clears only that race's entries and leaves every
// other race cached.
func (s *Store) invalidateRace(ctx context.Context, raceID int64) {
	s.cache.DeletePattern(ctx, cache.Key("race", raceID)+":*")
}
