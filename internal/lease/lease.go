package lease

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	goredis "github.com/redis/go-redis/v9"
)

// DefaultTTL bounds how long a held lease blocks duplicate invocations
const DefaultTTL = 10 * time.Minute

// DefaultKeyPrefix is prepended to every lease key
const DefaultKeyPrefix = "qo_"

// ErrInvalidTTL is returned when a guard is configured without a positive TTL
var ErrInvalidTTL = errors.New("lease ttl must be positive")

// Store is a shared lock store with expiring keys
type Store interface {
	// Acquire sets key only if it does not exist. It reports whether the caller now holds it.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// RedisStore keeps leases in Redis with SET NX PX
type RedisStore struct {
	client goredis.UniversalClient
}

// NewRedisStore creates a Store backed by a Redis client
func NewRedisStore(client goredis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, key, strconv.FormatInt(time.Now().UnixNano(), 10), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lease %s: %w", key, err)
	}
	return ok, nil
}

func (s *RedisStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to release lease %s: %w", key, err)
	}
	return nil
}

// Config holds guard settings
type Config struct {
	TTL       time.Duration
	KeyPrefix string
}

// Guard ensures at most one concurrent execution per key. A duplicate
// invocation is skipped without error.
type Guard struct {
	store  Store
	ttl    time.Duration
	prefix string
	logger *slog.Logger
}

// NewGuard creates a guard over store
func NewGuard(store Store, cfg Config, logger *slog.Logger) (*Guard, error) {
	if cfg.TTL == 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.TTL < 0 {
		return nil, ErrInvalidTTL
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultKeyPrefix
	}

	return &Guard{
		store:  store,
		ttl:    cfg.TTL,
		prefix: cfg.KeyPrefix,
		logger: logger,
	}, nil
}

// Key derives the lease key for a task invocation from its name and arguments
func (g *Guard) Key(taskName string, args []json.RawMessage) string {
	h := xxhash.New()
	for _, a := range args {
		_, _ = h.Write(a)
		_, _ = h.Write([]byte{0})
	}
	return fmt.Sprintf("%s%s_%016x", g.prefix, taskName, h.Sum64())
}

// Do runs fn while holding the lease for key. It returns false without calling
// fn when the lease is already held. The lease is released when fn fails so a
// redelivery can retry, and held until expiry when fn succeeds.
func (g *Guard) Do(ctx context.Context, key string, fn func(context.Context) error) (bool, error) {
	acquired, err := g.store.Acquire(ctx, key, g.ttl)
	if err != nil {
		return false, err
	}
	if !acquired {
		g.logger.Info("Lease held by another invocation, skipping",
			slog.String("key", key),
		)
		return false, nil
	}

	if err := fn(ctx); err != nil {
		// release on a fresh context so a canceled ctx does not strand the lease
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if relErr := g.store.Release(releaseCtx, key); relErr != nil {
			g.logger.Error("Failed to release lease",
				slog.String("key", key),
				slog.Any("error", relErr),
			)
		}
		return true, err
	}

	return true, nil
}

// TTL returns the configured lease lifetime
func (g *Guard) TTL() time.Duration {
	return g.ttl
}
