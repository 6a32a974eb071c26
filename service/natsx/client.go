package natsx

import (
	"context"
	"strings"
	"time"

	"PNotepad/tools/errs"

	"github.com/nats-io/nats.go"
)

// NatsxMode 工作模式
type NatsxMode int

const (
	Core      NatsxMode = iota // 无持久化
	JetStream                  // JS 发布，服务端按 Nats-Msg-Id 去重
)

// NatsxConfig 客户端配置
type NatsxConfig struct {
	Servers         []string
	Name            string
	User            string
	Password        string
	Mode            NatsxMode
	ReconnectWait   time.Duration
	Timeout         time.Duration
	PublishAsyncMax int
}

// NatsxClient 统一客户端
type NatsxClient struct {
	cfg NatsxConfig
	nc  *nats.Conn
	js  nats.JetStreamContext
}

// NewNatsxClient 连接 NATS
func NewNatsxClient(cfg NatsxConfig) (*NatsxClient, error) {
	if len(cfg.Servers) == 0 {
		return nil, errs.ErrBadRequest.WrapMsg("nats servers missing")
	}
	if cfg.ReconnectWait == 0 {
		cfg.ReconnectWait = 500 * time.Millisecond
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 3 * time.Second
	}
	if cfg.PublishAsyncMax == 0 {
		cfg.PublishAsyncMax = 4096
	}
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.ReconnectJitter(100*time.Millisecond, 500*time.Millisecond),
		nats.Timeout(cfg.Timeout),
	}
	if cfg.User != "" {
		opts = append(opts, nats.UserInfo(cfg.User, cfg.Password))
	}
	nc, err := nats.Connect(strings.Join(cfg.Servers, ","), opts...)
	if err != nil {
		return nil, errs.WrapMsg(err, "nats connect", "servers", cfg.Servers)
	}
	c := &NatsxClient{cfg: cfg, nc: nc}
	if cfg.Mode == JetStream {
		js, err := nc.JetStream(nats.PublishAsyncMaxPending(cfg.PublishAsyncMax))
		if err != nil {
			nc.Close()
			return nil, errs.WrapMsg(err, "init jetstream")
		}
		c.js = js
	}
	return c, nil
}

// PublishMsg sends msg with the configured mode. JetStream waits for the ack.
func (c *NatsxClient) PublishMsg(ctx context.Context, msg *nats.Msg) error {
	if c.js != nil {
		if _, err := c.js.PublishMsg(msg, nats.Context(ctx)); err != nil {
			return errs.WrapMsg(err, "jetstream publish", "subject", msg.Subject)
		}
		return nil
	}
	if err := c.nc.PublishMsg(msg); err != nil {
		return errs.WrapMsg(err, "publish", "subject", msg.Subject)
	}
	return nil
}

// Close 优雅关闭
func (c *NatsxClient) Close() error {
	if c.nc == nil {
		return nil
	}
	return c.nc.Drain()
}
