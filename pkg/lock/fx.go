package lock

import (
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/smallbiznis/paycore/internal/config"
)

// NewLocker picks the redis-backed locker when redis is configured and the
// in-process one otherwise. Single-instance deployments and tests run fine
// without redis; multi-instance deployments need it for the locks to mean
// anything.
func NewLocker(cfg config.Config, log *zap.Logger) Locker {
	if cfg.RedisAddr == "" {
		log.Named("lock").Info("redis not configured, using in-process locks")
		return NewMemoryLocker()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	return NewRedisLocker(client)
}

var Module = fx.Module("lock",
	fx.Provide(NewLocker),
)
