// Package cache wraps a Redis server as a best-effort key/value cache for
// query results. Every operation is bounded by a short timeout and a failed
// operation flips the cache to unavailable; while unavailable all operations
// are immediate no-ops that read as misses, so callers degrade to the
// persistence engine instead of blocking. A background probe with backoff
// restores availability.
package cache

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/paddockdata/gridbase/internal/monitoring"
)

// Cache is the key/value surface the data-access layer consumes. Both the
// Redis-backed implementation and the no-op stand-in satisfy it.
type Cache interface {
	// Get returns the cached payload for key. The second return is false on
	// a miss, a transport failure, or when the cache is unavailable; those
	// three are indistinguishable to callers by contract.
	Get(ctx context.Context, key string) ([]byte, bool)
	// Set stores payload under key with the given TTL. Best effort: failures
	// are logged, never returned.
	Set(ctx context.Context, key string, payload []byte, ttl time.Duration)
	// Delete removes specific keys.
	Delete(ctx context.Context, keys ...string)
	// DeletePattern removes every key matching a glob pattern and reports
	// how many were removed.
	DeletePattern(ctx context.Context, pattern string) int
	// Stats reports hit/miss counters and server-side usage.
	Stats(ctx context.Context) Stats
	// Flush drops every key in the cache database.
	Flush(ctx context.Context) error
	Close() error
}

// Stats is a point-in-time view of cache effectiveness.
type Stats struct {
	Connected      bool   `json:"connected"`
	Hits           uint64 `json:"hits"`
	Misses         uint64 `json:"misses"`
	KeyspaceHits   int64  `json:"keyspace_hits"`
	KeyspaceMisses int64  `json:"keyspace_misses"`
	UsedMemory     string `json:"used_memory"`
}

// State is the availability of the cache connection.
type State int32

const (
	StateUnknown State = iota
	StateProbing
	StateAvailable
	StateUnavailable
)

func (s State) String() string {
	switch s {
	case StateProbing:
		return "probing"
	case StateAvailable:
		return "available"
	case StateUnavailable:
		return "unavailable"
	}
	return "unknown"
}

const (
	initialProbeBackoff = time.Second
	maxProbeBackoff     = 30 * time.Second
)

// Redis is the Redis-backed Cache implementation.
type Redis struct {
	client    *redis.Client
	opTimeout time.Duration

	mu         sync.Mutex
	state      State
	backoff    time.Duration
	probeTimer *time.Timer
	closed     bool

	hits   uint64
	misses uint64
}

// NewRedis connects to the Redis server at url (redis://...). Connection
// failure is not fatal: the cache starts unavailable and probes in the
// background, per the graceful-degradation contract.
func NewRedis(url string, opTimeout time.Duration) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	if opTimeout <= 0 {
		opTimeout = 250 * time.Millisecond
	}
	opts.DialTimeout = opTimeout
	opts.ReadTimeout = opTimeout
	opts.WriteTimeout = opTimeout
	// The state machine owns retries; the client must fail fast.
	opts.MaxRetries = -1

	c := &Redis{
		client:    redis.NewClient(opts),
		opTimeout: opTimeout,
		state:     StateUnknown,
		backoff:   initialProbeBackoff,
	}

	c.mu.Lock()
	c.state = StateProbing
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if err := c.client.Ping(ctx).Err(); err != nil {
		monitoring.Logf("cache: redis unreachable at startup, continuing without it: %v", err)
		c.markUnavailable()
	} else {
		c.markAvailable()
		monitoring.Logf("cache: connected to redis at %s", opts.Addr)
	}
	return c, nil
}

// StateNow reports the current availability state.
func (c *Redis) StateNow() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Redis) available() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateAvailable
}

func (c *Redis) markAvailable() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateAvailable {
		monitoring.Logf("cache: state %s -> available", c.state)
	}
	c.state = StateAvailable
	c.backoff = initialProbeBackoff
}

// markUnavailable flips the cache off the hot path and arms the re-probe
// timer. Safe to call repeatedly; only the first call after a healthy period
// schedules a probe.
func (c *Redis) markUnavailable() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.state == StateUnavailable {
		return
	}
	monitoring.Logf("cache: state %s -> unavailable, probing in %s", c.state, c.backoff)
	c.state = StateUnavailable
	c.scheduleProbeLocked()
}

func (c *Redis) scheduleProbeLocked() {
	if c.probeTimer != nil {
		c.probeTimer.Stop()
	}
	c.probeTimer = time.AfterFunc(c.backoff, c.probe)
}

func (c *Redis) probe() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.state = StateProbing
	timeout := c.opTimeout
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := c.client.Ping(ctx).Err(); err != nil {
		c.mu.Lock()
		c.state = StateUnavailable
		c.backoff *= 2
		if c.backoff > maxProbeBackoff {
			c.backoff = maxProbeBackoff
		}
		if !c.closed {
			c.scheduleProbeLocked()
		}
		c.mu.Unlock()
		return
	}
	c.markAvailable()
}

// fail records an operation failure and returns so callers can treat it as a
// miss. Context cancellation from the caller is not a transport failure and
// must not flip availability; only the op-timeout deadline and real transport
// errors do.
func (c *Redis) fail(op string, err error) {
	cacheErrors.Inc()
	monitoring.Logf("cache: %s failed: %v", op, err)
	if errors.Is(err, context.Canceled) {
		return
	}
	c.markUnavailable()
}

func (c *Redis) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.opTimeout)
}

// Get implements Cache.
func (c *Redis) Get(ctx context.Context, key string) ([]byte, bool) {
	if !c.available() {
		c.miss()
		return nil, false
	}
	ctx, cancel := c.opCtx(ctx)
	defer cancel()

	val, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		c.miss()
		return nil, false
	}
	if err != nil {
		c.fail("get", err)
		c.miss()
		return nil, false
	}
	c.hit()
	return val, true
}

// Set implements Cache.
func (c *Redis) Set(ctx context.Context, key string, payload []byte, ttl time.Duration) {
	if !c.available() {
		return
	}
	ctx, cancel := c.opCtx(ctx)
	defer cancel()

	if err := c.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		c.fail("set", err)
	}
}

// Delete implements Cache.
func (c *Redis) Delete(ctx context.Context, keys ...string) {
	if len(keys) == 0 || !c.available() {
		return
	}
	ctx, cancel := c.opCtx(ctx)
	defer cancel()

	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.fail("delete", err)
		return
	}
	cacheInvalidations.Add(float64(len(keys)))
}

// DeletePattern implements Cache. It walks the keyspace with SCAN rather
// than KEYS so a large cache does not block the server.
func (c *Redis) DeletePattern(ctx context.Context, pattern string) int {
	if !c.available() {
		return 0
	}
	// Pattern deletes run off the read hot path; allow a few scan rounds.
	ctx, cancel := context.WithTimeout(ctx, 4*c.opTimeout)
	defer cancel()

	var deleted int
	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
	batch := make([]string, 0, 100)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == cap(batch) {
			n, err := c.client.Del(ctx, batch...).Result()
			if err != nil {
				c.fail("delete pattern", err)
				return deleted
			}
			deleted += int(n)
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		c.fail("scan", err)
		return deleted
	}
	if len(batch) > 0 {
		n, err := c.client.Del(ctx, batch...).Result()
		if err != nil {
			c.fail("delete pattern", err)
			return deleted
		}
		deleted += int(n)
	}
	cacheInvalidations.Add(float64(deleted))
	return deleted
}

// Stats implements Cache. Server-side counters come from INFO; local
// hit/miss counters are kept even while the server is unreachable.
func (c *Redis) Stats(ctx context.Context) Stats {
	c.mu.Lock()
	stats := Stats{
		Connected: c.state == StateAvailable,
		Hits:      c.hits,
		Misses:    c.misses,
	}
	c.mu.Unlock()

	if !stats.Connected {
		return stats
	}
	ctx, cancel := c.opCtx(ctx)
	defer cancel()

	if info, err := c.client.Info(ctx, "stats").Result(); err == nil {
		stats.KeyspaceHits = infoInt(info, "keyspace_hits")
		stats.KeyspaceMisses = infoInt(info, "keyspace_misses")
	}
	if info, err := c.client.Info(ctx, "memory").Result(); err == nil {
		stats.UsedMemory = infoField(info, "used_memory_human")
	}
	return stats
}

// Flush implements Cache.
func (c *Redis) Flush(ctx context.Context) error {
	if !c.available() {
		return nil
	}
	ctx, cancel := c.opCtx(ctx)
	defer cancel()

	if err := c.client.FlushDB(ctx).Err(); err != nil {
		c.fail("flush", err)
		return err
	}
	monitoring.Logf("cache: flushed")
	return nil
}

// Close stops the probe timer and closes the client.
func (c *Redis) Close() error {
	c.mu.Lock()
	c.closed = true
	if c.probeTimer != nil {
		c.probeTimer.Stop()
	}
	c.mu.Unlock()
	return c.client.Close()
}

func (c *Redis) hit() {
	cacheHits.Inc()
	c.mu.Lock()
	c.hits++
	c.mu.Unlock()
}

func (c *Redis) miss() {
	cacheMisses.Inc()
	c.mu.Lock()
	c.misses++
	c.mu.Unlock()
}

// infoField pulls a single "name:value" field out of a redis INFO blob.
func infoField(info, name string) string {
	for _, line := range strings.Split(info, "\n") {
		line = strings.TrimRight(line, "\r")
		if v, ok := strings.CutPrefix(line, name+":"); ok {
			return v
		}
	}
	return ""
}

func infoInt(info, name string) int64 {
	n, _ := strconv.ParseInt(infoField(info, name), 10, 64)
	return n
}
