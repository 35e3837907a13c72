package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/rl1809/shelfsync/internal/adapter/recordstore"
	"github.com/rl1809/shelfsync/internal/adapter/storage"
	"github.com/rl1809/shelfsync/internal/adapter/transport"
	"github.com/rl1809/shelfsync/internal/bridge"
	"github.com/rl1809/shelfsync/internal/config"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stderr, nil)).With("component", "bridge")

	cfg, err := config.LoadBridge()
	if err != nil {
		log.Error("config load failed", "error", err)
		os.Exit(1)
	}
	if len(cfg.ScanTargets) == 0 {
		log.Error("no scan targets configured, set SHELFSYNC_SCAN_TARGETS")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Error("redis ping failed", "error", err)
		os.Exit(1)
	}
	defer rdb.Close()
	log.Info("connected to redis")

	conn, err := grpc.NewClient(cfg.ServerAddr,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Error("record store client failed", "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	store := recordstore.NewGRPCClient(conn)
	cache := storage.NewRedisAdapter(rdb)
	discoverer := &transport.TCPDiscoverer{
		Candidates:     cfg.ScanTargets,
		IdentityPrefix: cfg.IdentityPrefix,
		ProbeTimeout:   3 * time.Second,
	}
	dialer := &transport.TCPDialer{Timeout: cfg.DialTimeout, MTU: cfg.LinkMTU}

	sup := bridge.NewSupervisor(discoverer, dialer, store, cache, bridge.Config{
		ScanInterval:       cfg.ScanInterval,
		ConfigPollInterval: cfg.PollInterval,
		RestartBackoff:     cfg.RestartBackoff,
	}, log)

	log.Info("bridge started", "targets", len(cfg.ScanTargets))
	if err := sup.Run(ctx); err != nil && ctx.Err() == nil {
		log.Error("supervisor exited", "error", err)
		os.Exit(1)
	}
	log.Info("bridge stopped")
}
