package worker

import (
	"context"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/salonbook/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("worker",
	fx.Provide(ProvideConfig),
	fx.Provide(NewRedisClient),
	fx.Provide(ProvideLocker),
	fx.Provide(New),
	fx.Invoke(Register),
)

// NewRedisClient returns nil when no redis address is configured; jobs then
// run without a distributed lock.
func NewRedisClient(lc fx.Lifecycle, cfg config.Config) *redis.Client {
	if !cfg.Redis.Enabled() {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     strings.TrimSpace(cfg.Redis.Addr),
		Password: strings.TrimSpace(cfg.Redis.Password),
		DB:       cfg.Redis.DB,
	})
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client
}

func ProvideLocker(client *redis.Client) JobLocker {
	if client == nil {
		return nil
	}
	return NewRedisLocker(client)
}

func Register(lc fx.Lifecycle, cfg Config, w *Worker, log *zap.Logger) {
	if !cfg.Enabled {
		log.Info("worker disabled")
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			return w.Start()
		},
		OnStop: func(ctx context.Context) error {
			return w.Stop(ctx)
		},
	})
}
