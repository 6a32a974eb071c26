package main

import (
	"context"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"PNotepad/global"
	"PNotepad/logger"
	"PNotepad/service/account"
	"PNotepad/tools"
	"PNotepad/tools/safe"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// node is one runnable role of the binary.
type node interface {
	Name() string
	Handler() http.Handler
	// Shutdown releases everything after the http server stopped.
	Shutdown(ctx context.Context) error
}

func main() {
	cfgPath := flag.String("config", tools.GetEnv("PNOTEPAD_CONFIG", ""), "path to the yaml config")
	flag.Parse()

	cfg, err := global.Load(*cfgPath)
	if err != nil {
		logger.Error("load config failed", zap.Error(err))
		os.Exit(1)
	}
	logger.Init(cfg.Log.Level, cfg.Log.JSON)
	defer logger.Sync()
	global.Global = cfg

	verifier := account.NewJWTVerifier([]byte(cfg.Auth.Secret), cfg.Auth.Alg)

	// 1) 按节点类型装配
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 日志级别热更新
	if *cfgPath != "" {
		safe.Go("config-watch", func() {
			err := global.Watch(ctx, *cfgPath, func(c global.AppConfig) {
				if c.Log.Level != cfg.Log.Level {
					logger.SetLevel(c.Log.Level)
					logger.Info("log level changed", zap.String("level", logger.Level()))
				}
			})
			if err != nil {
				logger.Warn("config watch disabled", zap.Error(err))
			}
		})
	}

	var n node
	switch cfg.NodeType {
	case global.NodeTypeWorkspaceStore:
		n, err = newStoreNode(ctx, cfg, verifier)
	default:
		n, err = newGatewayNode(ctx, cfg, verifier)
	}
	if err != nil {
		logger.Error("init node failed", zap.String("node_type", cfg.NodeType), zap.Error(err))
		os.Exit(1)
	}

	// 2) gRPC health
	healthServer := health.NewServer()
	var gs *grpc.Server
	if cfg.GrpcAddr != "" {
		lis, err := net.Listen("tcp", cfg.GrpcAddr)
		if err != nil {
			logger.Error("grpc listen failed", zap.String("addr", cfg.GrpcAddr), zap.Error(err))
			os.Exit(1)
		}
		gs = grpc.NewServer()
		healthpb.RegisterHealthServer(gs, healthServer)
		healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
		healthServer.SetServingStatus(n.Name(), healthpb.HealthCheckResponse_SERVING)
		go func() {
			logger.Info("[gRPC] health listening", zap.String("addr", cfg.GrpcAddr))
			if err := gs.Serve(lis); err != nil {
				logger.Error("grpc server stopped", zap.Error(err))
			}
		}()
	}

	// 3) HTTP + WebSocket
	hs := &http.Server{
		Addr:              cfg.HttpAddr,
		Handler:           n.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("[HTTP] listening", zap.String("addr", cfg.HttpAddr), zap.String("node", n.Name()), zap.String("node_id", cfg.NodeId))
		if err := hs.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down", zap.String("node", n.Name()))

	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	healthServer.SetServingStatus(n.Name(), healthpb.HealthCheckResponse_NOT_SERVING)

	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	// websocket connections are hijacked, http.Server.Shutdown does not wait for them
	if err := hs.Shutdown(sctx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if err := n.Shutdown(sctx); err != nil {
		logger.Warn("node shutdown", zap.Error(err))
	}
	if gs != nil {
		gs.GracefulStop()
	}
	logger.Info("bye")
}
