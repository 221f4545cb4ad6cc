package database

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/noelpapali/Conversational-AI-Chatbot/internal/config"
	"github.com/noelpapali/Conversational-AI-Chatbot/pkg/log"
)

// NewRedis connects to Redis and pings it.
func NewRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connect redis %s: %w", cfg.Addr, err)
	}
	log.Info("[Database] Redis connected")
	return rdb, nil
}
