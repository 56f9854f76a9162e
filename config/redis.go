package config

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var RedisClient *redis.Client

// InitRedis connects the stats cache and the billing event stream.
func InitRedis(s Settings) error {
	opt, err := redisOptions(s.RedisAddr)
	if err != nil {
		return err
	}
	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return err
	}

	RedisClient = client
	return nil
}

// redisOptions accepts a bare host:port or a redis:// (rediss://) URL.
func redisOptions(addr string) (*redis.Options, error) {
	switch {
	case addr == "":
		return nil, errors.New("REDIS_ADDR (or REDIS_URI/REDIS_URL) environment variable is not set")
	case strings.HasPrefix(addr, "redis://"), strings.HasPrefix(addr, "rediss://"):
		return redis.ParseURL(addr)
	default:
		return &redis.Options{Addr: addr}, nil
	}
}
