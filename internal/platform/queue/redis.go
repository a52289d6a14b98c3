package queue

import (
	"context"
	"fmt"
	"time"

	"guideboard/internal/platform/config"

	"github.com/redis/go-redis/v9"
)

var RDB *redis.Client

// ConnectRedis opens the shared client from config.AppConfig and pings it.
func ConnectRedis(ctx context.Context) error {
	client := redis.NewClient(&redis.Options{
		Addr:     config.AppConfig.RedisAddr,
		Password: config.AppConfig.RedisPassword,
		DB:       config.AppConfig.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return fmt.Errorf("queue.ConnectRedis: %w", err)
	}
	RDB = client
	return nil
}

func CloseRedis() {
	if RDB != nil {
		RDB.Close()
		RDB = nil
	}
}
