// The endpoint binary runs one device agent over TCP. It doubles as a load
// simulator: with -tap-interval set it keeps making random local edits the
// way a person tapping the screen would.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"math/rand"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rl1809/shelfsync/internal/adapter/transport"
	"github.com/rl1809/shelfsync/internal/config"
	"github.com/rl1809/shelfsync/internal/endpoint"
)

func main() {
	tapInterval := flag.Duration("tap-interval", 0, "simulate a random local edit this often (0 = off)")
	flag.Parse()

	log := slog.New(slog.NewJSONHandler(os.Stderr, nil)).With("component", "endpoint")

	cfg, err := config.LoadEndpoint()
	if err != nil {
		log.Error("config load failed", "error", err)
		os.Exit(1)
	}
	if cfg.MAC == "" {
		cfg.MAC = cfg.ListenAddr
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := endpoint.NewStore(cfg.InventoryFile)
	agent := endpoint.NewAgent(endpoint.Config{
		Identity:            cfg.Identity,
		MAC:                 cfg.MAC,
		Debounce:            cfg.Debounce,
		ConfigCheckInterval: cfg.CheckInterval,
		InactivityTimeout:   cfg.InactivityTimeout,
	}, store, log)

	if *tapInterval > 0 {
		go simulateTaps(ctx, agent, *tapInterval)
	}

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		log.Error("listen failed", "error", err)
		os.Exit(1)
	}
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	log.Info("endpoint listening", "addr", cfg.ListenAddr, "identity", cfg.Identity)

	for {
		c, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				log.Info("endpoint stopped")
				return
			}
			log.Error("accept failed", "error", err)
			continue
		}
		err = agent.RunConn(ctx, transport.NewConn(c, cfg.LinkMTU))
		switch {
		case errors.Is(err, endpoint.ErrInactive):
			log.Info("inactivity timeout, endpoint stopping")
			return
		case err != nil && ctx.Err() == nil:
			log.Warn("connection ended", "error", err)
		}
	}
}

// simulateTaps makes random +-1 edits against whatever slots the agent
// currently has.
func simulateTaps(ctx context.Context, agent *endpoint.Agent, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			slots := agent.Slots()
			if len(slots) == 0 {
				continue
			}
			slot := slots[rand.Intn(len(slots))]
			delta := 1
			if rand.Intn(2) == 0 {
				delta = -1
			}
			agent.Tap(slot.Label, delta)
		}
	}
}
