package runlock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spigell/cv-matcher/internal/logger"
)

const (
	DefaultKey = "cv-matcher:pipeline"
	DefaultTTL = 30 * time.Minute
)

// ErrLocked is returned when another process holds the lock.
var ErrLocked = errors.New("pipeline is already running")

const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`

// Release gives a lock back.
type Release func(ctx context.Context) error

// Locker guards against concurrent pipeline runs.
type Locker interface {
	Acquire(ctx context.Context) (Release, error)
}

type client interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

type Config struct {
	Address  string
	Password string
	Key      string
	TTL      time.Duration
}

// Redis is a single-instance lock kept under one key.
type Redis struct {
	client client
	key    string
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedis connects to the redis server at cfg.Address.
func NewRedis(cfg Config, log *zap.Logger) (*Redis, *redis.Client, error) {
	if cfg.Address == "" {
		return nil, nil, errors.New("redis address is required")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
	})

	return newRedis(rdb, cfg, log), rdb, nil
}

func newRedis(c client, cfg Config, log *zap.Logger) *Redis {
	if cfg.Key == "" {
		cfg.Key = DefaultKey
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	return &Redis{client: c, key: cfg.Key, ttl: cfg.TTL, logger: logger.OrNop(log)}
}

// Acquire takes the lock or returns ErrLocked. The lock expires after the
// configured TTL even if it is never released.
func (r *Redis) Acquire(ctx context.Context) (Release, error) {
	token := uuid.NewString()

	ok, err := r.client.SetNX(ctx, r.key, token, r.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", r.key, err)
	}
	if !ok {
		return nil, ErrLocked
	}

	r.logger.Debug("lock acquired", zap.String("key", r.key), zap.Duration("ttl", r.ttl))

	return func(ctx context.Context) error {
		released, err := r.client.Eval(ctx, releaseScript, []string{r.key}, token).Int64()
		if err != nil {
			return fmt.Errorf("release lock %s: %w", r.key, err)
		}
		if released == 0 {
			r.logger.Warn("lock expired before release", zap.String("key", r.key))
		}
		return nil
	}, nil
}

// Noop always grants the lock.
type Noop struct{}

func (Noop) Acquire(context.Context) (Release, error) {
	return func(context.Context) error { return nil }, nil
}
