package config

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

func InitRedisServer(ctx context.Context, settings Settings) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     settings.RedisAddress,
		Password: settings.RedisPassword,
		DB:       0,
	})

	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", settings.RedisAddress, err)
	}

	return client, nil
}

// AsynqRedisOpt returns the connection options asynq uses for its own Redis pool.
func AsynqRedisOpt(settings Settings) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     settings.RedisAddress,
		Password: settings.RedisPassword,
		DB:       0,
	}
}
