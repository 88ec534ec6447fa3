package archive

import (
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"realtalk/internal/ports"
)

// StoreType selects the archive driver.
type StoreType string

const (
	StoreTypeNone   StoreType = "none"
	StoreTypeMemory StoreType = "memory"
	StoreTypeRedis  StoreType = "redis"
)

const defaultTTL = 24 * time.Hour

var (
	ErrInvalidStoreType = errors.New("invalid archive store type")
	ErrInvalidConfig    = errors.New("invalid archive configuration")
	ErrClosed           = errors.New("archive is closed")
)

// Option configures an archive store.
type Option func(*storeConfig)

type storeConfig struct {
	redisClient *redis.Client
	redisTTL    time.Duration
	logger      *zap.SugaredLogger
}

// WithRedisClient sets the client used by the redis driver.
func WithRedisClient(client *redis.Client) Option {
	return func(c *storeConfig) {
		c.redisClient = client
	}
}

// WithRedisTTL sets how long an archived session survives after its last write.
func WithRedisTTL(ttl time.Duration) Option {
	return func(c *storeConfig) {
		c.redisTTL = ttl
	}
}

func WithLogger(logger *zap.SugaredLogger) Option {
	return func(c *storeConfig) {
		c.logger = logger
	}
}

// NewStore returns the archive for storeType. StoreTypeNone yields a nil
// archive, which the session controller treats as disabled.
func NewStore(storeType StoreType, opts ...Option) (ports.TranscriptArchive, error) {
	cfg := &storeConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop().Sugar()
	}

	switch storeType {
	case StoreTypeNone, "":
		return nil, nil
	case StoreTypeMemory:
		return NewMemoryStore(), nil
	case StoreTypeRedis:
		if cfg.redisClient == nil {
			return nil, ErrInvalidConfig
		}
		return NewRedisStore(cfg.redisClient, cfg.redisTTL, cfg.logger), nil
	default:
		return nil, ErrInvalidStoreType
	}
}
