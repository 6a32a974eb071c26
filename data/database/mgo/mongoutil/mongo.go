// Package mongoutil connects the mongo workspace repository.
package mongoutil

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"PNotepad/logger"
	"PNotepad/tools/errs"

	"github.com/cenkalti/backoff/v4"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const (
	defaultDatabase       = "notepad"
	defaultMaxPoolSize    = 100
	defaultMaxRetry       = 3
	defaultConnectTimeout = 10 * time.Second
)

// Config represents the MongoDB configuration. Uri wins over Address.
type Config struct {
	Uri            string
	Address        []string
	Database       string
	Username       string
	Password       string
	AuthSource     string
	MaxPoolSize    int
	MaxRetry       int
	ConnectTimeout time.Duration
}

// ValidateAndSetDefaults fills defaults and builds Uri from Address when no
// Uri is given.
func (c *Config) ValidateAndSetDefaults() error {
	if c.Uri == "" && len(c.Address) == 0 {
		return errs.ErrBadRequest.WrapMsg("mongo uri or address is required")
	}
	if c.Database == "" {
		c.Database = defaultDatabase
	}
	if c.MaxPoolSize <= 0 {
		c.MaxPoolSize = defaultMaxPoolSize
	}
	if c.MaxRetry <= 0 {
		c.MaxRetry = defaultMaxRetry
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = defaultConnectTimeout
	}
	if c.Uri == "" {
		c.Uri = buildMongoURI(c)
	}
	return nil
}

// buildMongoURI renders Address as a connection string. authSource defaults
// to the database.
func buildMongoURI(c *Config) string {
	u := url.URL{
		Scheme: "mongodb",
		Host:   strings.Join(c.Address, ","),
		Path:   "/" + c.Database,
	}
	if c.Username != "" {
		u.User = url.UserPassword(c.Username, c.Password)
	}
	authSource := c.AuthSource
	if authSource == "" {
		authSource = c.Database
	}
	u.RawQuery = fmt.Sprintf("authSource=%s&maxPoolSize=%d", url.QueryEscape(authSource), c.MaxPoolSize)
	return u.String()
}

// 将 Config 应用到 ClientOptions
func applyConfigToOptions(cfg *Config) *options.ClientOptions {
	// 优先使用完整 URI（可含参数 ?authSource=admin 等）
	opts := options.Client().ApplyURI(cfg.Uri)
	opts.SetMaxPoolSize(uint64(cfg.MaxPoolSize))
	opts.SetRetryWrites(true)
	opts.SetServerSelectionTimeout(cfg.ConnectTimeout)
	opts.SetAppName("PNotepad")
	return opts
}

type Client struct {
	cli *mongo.Client
	db  *mongo.Database
}

func (c *Client) GetDB() *mongo.Database { return c.db }

func (c *Client) Close(ctx context.Context) error {
	return c.cli.Disconnect(ctx)
}

// NewMongoDB connects and pings, retrying transient failures with backoff.
// Authentication failures are not retried.
func NewMongoDB(ctx context.Context, config *Config) (*Client, error) {
	if err := config.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	opts := applyConfigToOptions(config)
	log := logger.Named("mongo")

	var cli *mongo.Client
	attempt := 0
	operation := func() error {
		attempt++
		c, err := connectMongo(ctx, opts, config.ConnectTimeout)
		if err == nil {
			cli = c
			return nil
		}
		if !shouldRetry(ctx, err) {
			return backoff.Permanent(err)
		}
		log.Warn("mongo connect failed, will retry", zap.Int("attempt", attempt), zap.Error(err))
		return err
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(config.MaxRetry-1)), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, errs.WrapMsg(err, "connect mongo", "database", config.Database)
	}
	return &Client{cli: cli, db: cli.Database(config.Database)}, nil
}

func connectMongo(ctx context.Context, opts *options.ClientOptions, timeout time.Duration) (*mongo.Client, error) {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	cli, err := mongo.Connect(cctx, opts)
	if err != nil {
		return nil, err
	}
	if err := cli.Ping(cctx, nil); err != nil {
		_ = cli.Disconnect(ctx)
		return nil, err
	}
	return cli, nil
}

// shouldRetry reports whether a connect error is worth another attempt.
// 13 = Unauthorized, 18 = AuthenticationFailed
func shouldRetry(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.Code != 13 && cmdErr.Code != 18
	}
	return true
}
