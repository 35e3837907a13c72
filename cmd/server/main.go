package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"google.golang.org/grpc"

	"github.com/rl1809/shelfsync/internal/adapter/handler"
	"github.com/rl1809/shelfsync/internal/adapter/rpc"
	"github.com/rl1809/shelfsync/internal/adapter/storage"
	"github.com/rl1809/shelfsync/internal/config"
	"github.com/rl1809/shelfsync/internal/core/service"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stderr, nil)).With("component", "server")

	cfg, err := config.LoadServer()
	if err != nil {
		log.Error("config load failed", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Error("mysql open failed", "error", err)
		os.Exit(1)
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		log.Error("mysql ping failed", "error", err)
		os.Exit(1)
	}
	log.Info("connected to mysql")

	repo := storage.NewMySQLAdapter(db)
	allocator := service.NewAllocator(repo)
	inventory := service.NewInventoryService(repo, allocator, log)

	grpcServer := grpc.NewServer()
	rpc.RegisterRecordStoreServer(grpcServer, handler.NewGRPCHandler(inventory))

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Error("grpc listen failed", "error", err)
		os.Exit(1)
	}
	go func() {
		log.Info("grpc server listening", "addr", cfg.GRPCAddr)
		if err := grpcServer.Serve(lis); err != nil {
			log.Error("grpc server error", "error", err)
		}
	}()

	httpHandler := handler.NewHTTPHandler(inventory)
	mux := http.NewServeMux()
	mux.HandleFunc("/health", httpHandler.HealthCheck)
	mux.HandleFunc("/api/devices/reposition", httpHandler.Reposition)

	httpServer := &http.Server{Addr: cfg.HTTPAddr, Handler: mux}
	go func() {
		log.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			log.Error("http server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
	grpcServer.GracefulStop()
	db.Close()
	log.Info("stopped")
}
