package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rl1809/shelfsync/internal/port"
)

// Config carries the supervisor's timing knobs.
type Config struct {
	ScanInterval       time.Duration
	ConfigPollInterval time.Duration
	RestartBackoff     time.Duration
}

// Supervisor discovers endpoints and runs one independent session per
// endpoint. A session ending, for any reason, only frees its address for
// the next scan to reattempt.
type Supervisor struct {
	disc   port.Discoverer
	dialer port.Dialer
	store  port.RecordStore
	cache  port.FingerprintCache
	cfg    Config
	log    *slog.Logger

	mu     sync.Mutex
	active map[string]struct{}
	wg     sync.WaitGroup
}

func NewSupervisor(disc port.Discoverer, dialer port.Dialer, store port.RecordStore, cache port.FingerprintCache, cfg Config, log *slog.Logger) *Supervisor {
	return &Supervisor{
		disc:   disc,
		dialer: dialer,
		store:  store,
		cache:  cache,
		cfg:    cfg,
		log:    log,
		active: make(map[string]struct{}),
	}
}

// Run blocks until ctx is cancelled. An unexpected scan-loop failure is
// logged and the loop restarts after a fixed backoff; individual sessions
// need no backoff because the scan period already paces reattempts.
func (s *Supervisor) Run(ctx context.Context) error {
	defer s.wg.Wait()

	for {
		err := s.scanLoop(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.log.Error("scan loop failed, restarting", "error", err, "backoff", s.cfg.RestartBackoff)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.cfg.RestartBackoff):
		}
	}
}

func (s *Supervisor) scanLoop(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scan loop panic: %v", r)
		}
	}()

	ticker := time.NewTicker(s.cfg.ScanInterval)
	defer ticker.Stop()

	for {
		endpoints, scanErr := s.disc.Scan(ctx)
		if scanErr != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.log.Error("scan failed", "error", scanErr)
		}
		for _, ep := range endpoints {
			s.spawn(ctx, ep)
		}
		if n := s.activeCount(); n > 0 {
			s.log.Info("active sessions", "count", n)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// spawn starts a session for a newly seen address. Addresses with a live
// session are skipped; the done callback frees the address again.
func (s *Supervisor) spawn(ctx context.Context, ep port.DiscoveredEndpoint) {
	s.mu.Lock()
	if _, ok := s.active[ep.Addr]; ok {
		s.mu.Unlock()
		return
	}
	s.active[ep.Addr] = struct{}{}
	s.mu.Unlock()

	s.log.Info("endpoint found", "addr", ep.Addr, "identity", ep.Identity)
	sess := NewSession(ep.Addr, s.dialer, s.store, s.cache, s.cfg.ConfigPollInterval, s.log)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.release(ep.Addr)
		defer func() {
			// A panicking session must not take the bridge down.
			if r := recover(); r != nil {
				s.log.Error("session panic", "addr", ep.Addr, "panic", r)
			}
		}()

		if err := sess.Run(ctx); err != nil && ctx.Err() == nil {
			s.log.Warn("session ended", "addr", ep.Addr, "error", err)
		}
	}()
}

func (s *Supervisor) release(addr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, addr)
}

func (s *Supervisor) activeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}
