// Package pg opens the pgx pool used by the postgres workspace repository.
package pg

import (
	"context"
	"time"

	"PNotepad/tools/errs"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Config struct {
	URL         string
	MaxConns    int32
	PingTimeout time.Duration
}

func NewPool(ctx context.Context, c Config) (*pgxpool.Pool, error) {
	pc, err := pgxpool.ParseConfig(c.URL)
	if err != nil {
		return nil, errs.ErrBadRequest.WrapCause(err, false, "parse postgres url")
	}
	if c.MaxConns > 0 {
		pc.MaxConns = c.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, errs.WrapMsg(err, "open postgres pool")
	}
	if c.PingTimeout <= 0 {
		c.PingTimeout = 5 * time.Second
	}
	pctx, cancel := context.WithTimeout(ctx, c.PingTimeout)
	defer cancel()
	if err := pool.Ping(pctx); err != nil {
		pool.Close()
		return nil, errs.WrapMsg(err, "ping postgres")
	}
	return pool, nil
}
