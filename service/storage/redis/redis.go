// Package redis opens the go-redis client behind the presence mirror.
package redis

import (
	"context"
	"time"

	"PNotepad/tools/errs"

	"github.com/redis/go-redis/v9"
)

// Config 用于初始化 Redis
type Config struct {
	Addr        string
	Password    string
	DB          int
	PoolSize    int
	PingTimeout time.Duration
}

// NewClient dials and pings one client.
func NewClient(c Config) (*redis.Client, error) {
	if c.PingTimeout <= 0 {
		c.PingTimeout = 3 * time.Second
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     c.Addr,
		Password: c.Password,
		DB:       c.DB,
		PoolSize: c.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), c.PingTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errs.WrapMsg(err, "redis ping", "addr", c.Addr)
	}
	return rdb, nil
}
