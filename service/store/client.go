// Package store is the client side of the Workspace Store persistence boundary:
//
//	GET  /workspaces/{id}       -> {"workspace": Snapshot}
//	POST /workspaces/{id}/save  {"content": "..."}
//	POST /workspaces/{id}/live  {"live": true}
//
// 401/403 are fatal for the call, 5xx and timeouts are retried with backoff,
// 404 maps to errs.ErrNotFound.
package store

import (
	"context"
	"errors"
	"net/http"
	"time"

	"PNotepad/logger"
	"PNotepad/tools/errs"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Snapshot is the Workspace Store's durable record of a workspace.
type Snapshot struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Owner     string    `json:"owner"`
	Content   string    `json:"content"`
	Live      bool      `json:"live"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type SnapshotReply struct {
	Workspace Snapshot `json:"workspace"`
}

type SaveRequest struct {
	Content string `json:"content"`
}

type LiveRequest struct {
	Live bool `json:"live"`
}

type Config struct {
	BaseURL      string
	Token        string
	Timeout      time.Duration // per attempt
	MaxRetries   int
	RetryInitial time.Duration
}

type Client struct {
	http *resty.Client
	conf Config
	log  *zap.Logger
}

func NewClient(conf Config) *Client {
	if conf.Timeout <= 0 {
		conf.Timeout = 5 * time.Second
	}
	if conf.MaxRetries < 0 {
		conf.MaxRetries = 0
	}
	if conf.RetryInitial <= 0 {
		conf.RetryInitial = 100 * time.Millisecond
	}
	hc := resty.New().
		SetBaseURL(conf.BaseURL).
		SetTimeout(conf.Timeout).
		SetHeader("Accept", "application/json")
	if conf.Token != "" {
		hc.SetAuthToken(conf.Token)
	}
	return &Client{http: hc, conf: conf, log: logger.Named("store")}
}

func (c *Client) Get(ctx context.Context, id string) (*Snapshot, error) {
	var out SnapshotReply
	err := c.do(ctx, "get", id, func(ctx context.Context) (*resty.Response, error) {
		return c.http.R().
			SetContext(ctx).
			SetPathParam("id", id).
			SetResult(&out).
			Get("/workspaces/{id}")
	})
	if err != nil {
		return nil, err
	}
	if out.Workspace.ID == "" {
		out.Workspace.ID = id
	}
	return &out.Workspace, nil
}

func (c *Client) SaveContent(ctx context.Context, id, content string) error {
	return c.do(ctx, "save", id, func(ctx context.Context) (*resty.Response, error) {
		return c.http.R().
			SetContext(ctx).
			SetPathParam("id", id).
			SetBody(SaveRequest{Content: content}).
			Post("/workspaces/{id}/save")
	})
}

func (c *Client) SetLive(ctx context.Context, id string, live bool) error {
	return c.do(ctx, "live", id, func(ctx context.Context) (*resty.Response, error) {
		return c.http.R().
			SetContext(ctx).
			SetPathParam("id", id).
			SetBody(LiveRequest{Live: live}).
			Post("/workspaces/{id}/live")
	})
}

func (c *Client) do(ctx context.Context, op, id string, call func(context.Context) (*resty.Response, error)) error {
	var lastErr error
	attempt := 0
	operation := func() error {
		attempt++
		resp, err := call(ctx)
		lastErr = classify(op, id, resp, err)
		if lastErr == nil {
			return nil
		}
		if !errs.IsRetryable(lastErr) {
			return backoff.Permanent(lastErr)
		}
		c.log.Warn("store call failed, will retry",
			zap.String("op", op), zap.String("workspace", id),
			zap.Int("attempt", attempt), zap.Error(lastErr))
		return lastErr
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.conf.RetryInitial
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.conf.MaxRetries)), ctx)

	err := backoff.Retry(operation, policy)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		if lastErr != nil {
			return lastErr
		}
		return errs.ErrStore.WrapCause(err, true, op, "workspace", id)
	}
	return err
}

func classify(op, id string, resp *resty.Response, err error) error {
	if err != nil {
		return errs.ErrStore.WrapCause(err, true, op, "workspace", id)
	}
	code := resp.StatusCode()
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound:
		return errs.ErrNotFound.WrapMsg(op, "workspace", id)
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return errs.ErrStore.WrapCause(nil, false, op, "workspace", id, "status", code)
	case code >= 500 || code == http.StatusTooManyRequests || code == http.StatusRequestTimeout:
		return errs.ErrStore.WrapCause(nil, true, op, "workspace", id, "status", code)
	default:
		return errs.ErrStore.WrapCause(nil, false, op, "workspace", id, "status", code)
	}
}
