package main

import (
	"context"
	"net/http"
	"time"

	"PNotepad/global"
	"PNotepad/logger"
	mid "PNotepad/middleware"
	midsec "PNotepad/middleware/security"
	"PNotepad/service/account"
	"PNotepad/service/collab"
	"PNotepad/service/collab/handlers"
	"PNotepad/service/events"
	"PNotepad/service/kafka"
	"PNotepad/service/natsx"
	"PNotepad/service/storage"
	redisx "PNotepad/service/storage/redis"
	"PNotepad/service/store"
	"PNotepad/tools/ids"
	"PNotepad/tools/safe"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// storeTokenTTL bounds the service token minted when store.token is empty.
const storeTokenTTL = 30 * 24 * time.Hour

type gatewayNode struct {
	srv    *collab.Server
	bus    *events.Bus
	engine *gin.Engine
	stop   context.CancelFunc
	closer []func() error
}

func newGatewayNode(ctx context.Context, cfg global.AppConfig, verifier *account.JWTVerifier) (*gatewayNode, error) {
	n := &gatewayNode{}
	bgCtx, cancel := context.WithCancel(context.Background())
	n.stop = cancel

	var (
		sinks    []events.Sink
		presence *storage.Presence
	)

	// NATS 事件推送
	if len(cfg.Nats.Servers) > 0 {
		mode := natsx.Core
		if cfg.Nats.JetStream {
			mode = natsx.JetStream
		}
		nc, err := natsx.NewNatsxClient(natsx.NatsxConfig{
			Servers:  cfg.Nats.Servers,
			Name:     cfg.Nats.Name,
			User:     cfg.Nats.User,
			Password: cfg.Nats.Password,
			Mode:     mode,
		})
		if err != nil {
			n.release()
			return nil, err
		}
		n.closer = append(n.closer, nc.Close)
		sinks = append(sinks, natsx.NewFeed(nc, cfg.Nats.SubjectPrefix))
	}

	// Kafka 编辑日志
	if len(cfg.Kafka.Brokers) > 0 {
		prod, err := kafka.NewSyncProducer(kafka.JournalConfig{
			Brokers:     cfg.Kafka.Brokers,
			Topic:       cfg.Kafka.Topic,
			ClientID:    cfg.NodeId,
			Compression: cfg.Kafka.Compression,
		})
		if err != nil {
			n.release()
			return nil, err
		}
		j := kafka.NewJournal(prod, cfg.Kafka.Topic)
		n.closer = append(n.closer, j.Close)
		sinks = append(sinks, j)
	}

	// Redis presence
	if cfg.Redis.Addr != "" {
		rdb, err := redisx.NewClient(redisx.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			n.release()
			return nil, err
		}
		n.closer = append(n.closer, rdb.Close)
		presence = storage.NewPresence(rdb, cfg.NodeId, cfg.Redis.PresenceTTL)
		sinks = append(sinks, presence)
	}

	n.bus = events.NewBus(events.Config{
		Queue:   cfg.Events.Queue,
		Workers: cfg.Events.Workers,
		NodeID:  cfg.NodeId,
	}, sinks...)

	storeToken := cfg.Store.Token
	if storeToken == "" {
		tok, err := verifier.Issue(cfg.NodeId, storeTokenTTL)
		if err != nil {
			n.release()
			return nil, err
		}
		storeToken = tok
	}
	st := store.NewClient(store.Config{
		BaseURL:    cfg.Store.BaseURL,
		Token:      storeToken,
		Timeout:    cfg.Store.Timeout,
		MaxRetries: cfg.Store.MaxRetries,
	})

	n.srv = collab.NewServer(collab.ServerConf{
		NodeID: cfg.NodeId,
		Gateway: collab.GatewayConf{
			HeartbeatTimeout: cfg.Session.HeartbeatTimeout,
			SendQueue:        cfg.Session.SendQueue,
		},
		WriteWait:       cfg.Session.WriteWait,
		MaxMessageBytes: cfg.Session.MaxMessageBytes,
		AllowedOrigins:  cfg.Session.AllowedOrigins,
	}, verifier, st, ids.NewGenerator(nodeSeed(cfg.NodeId)), n.bus)
	n.srv.Disp().Register(handlers.All()...)

	if presence != nil {
		n.srv.WithPresence(presence)
		safe.Go("presence-refresh", func() {
			presence.Run(bgCtx, 0, n.srv.PresenceEntries)
		})
	}
	n.srv.Start()

	// 路由
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(mid.Recovery(), mid.AccessLog())
	mid.Manager().Add(mid.Origin("/ws", cfg.Session.AllowedOrigins))
	r.Use(mid.Manager().Use())
	n.srv.Routes(r, midsec.DefaultOptions(verifier))
	n.engine = r

	logger.Info("sync gateway ready",
		zap.String("node_id", cfg.NodeId),
		zap.String("store", cfg.Store.BaseURL),
		zap.Int("sinks", len(sinks)))
	return n, nil
}

func (n *gatewayNode) Name() string          { return "notepad.SyncGateway" }
func (n *gatewayNode) Handler() http.Handler { return n.engine }

// Shutdown closes every connection (which closes every room and clears the
// live flags), then drains the event bus and closes the sinks.
func (n *gatewayNode) Shutdown(ctx context.Context) error {
	err := n.srv.Shutdown(ctx)
	n.stop()
	n.bus.Close()
	n.release()
	return err
}

func (n *gatewayNode) release() {
	if n.stop != nil {
		n.stop()
	}
	for i := len(n.closer) - 1; i >= 0; i-- {
		if err := n.closer[i](); err != nil {
			logger.Warn("close sink", zap.Error(err))
		}
	}
	n.closer = nil
}

// nodeSeed derives the id generator node from the configured node id so that
// gateways sharing a presence store hand out distinct session ids.
func nodeSeed(nodeID string) int64 {
	var h uint32 = 2166136261
	for i := 0; i < len(nodeID); i++ {
		h ^= uint32(nodeID[i])
		h *= 16777619
	}
	return int64(h % 1024)
}
