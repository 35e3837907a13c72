// Package bridge runs the central side of the device link: one session per
// connected endpoint, supervised by a scan loop that discovers endpoints
// and keeps sessions isolated from each other.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/shelfsync/internal/core/domain"
	"github.com/rl1809/shelfsync/internal/core/service"
	"github.com/rl1809/shelfsync/internal/port"
	"github.com/rl1809/shelfsync/internal/wire"
)

const (
	registerTimeout = 10 * time.Second

	// minSendGap rate-limits writes to one endpoint.
	minSendGap = 50 * time.Millisecond

	// updateSettleDelay gives the endpoint time to process an ack before
	// a config push follows it.
	updateSettleDelay = 200 * time.Millisecond

	inboundQueueSize = 16
)

var errRegisterTimeout = errors.New("no registration greeting from endpoint")

// Session is one conversation with one endpoint. It registers the endpoint
// with the record store, relays its inventory updates, and pushes config
// only when the fingerprint changed since the last push.
type Session struct {
	id     string
	addr   string
	dialer port.Dialer
	store  port.RecordStore
	cache  port.FingerprintCache
	poll   time.Duration
	log    *slog.Logger

	mac      string
	writer   *wire.ChunkedWriter
	lastSend time.Time
}

func NewSession(addr string, dialer port.Dialer, store port.RecordStore, cache port.FingerprintCache, poll time.Duration, log *slog.Logger) *Session {
	id := uuid.NewString()
	return &Session{
		id:     id,
		addr:   addr,
		dialer: dialer,
		store:  store,
		cache:  cache,
		poll:   poll,
		log:    log.With("session", id[:8], "dev", shortAddr(addr)),
	}
}

// Run drives the session until the connection drops or ctx is cancelled.
// All timers and in-flight work die with the returned error.
func (s *Session) Run(ctx context.Context) error {
	conn, err := s.dialer.Dial(ctx, s.addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		// Unblock pending reads the instant the context ends.
		<-ctx.Done()
		conn.Close()
	}()

	s.writer = wire.NewChunkedWriter(conn, wire.NegotiatedChunkSize(conn.MTU()))
	s.log.Info("connected")

	inbound := make(chan any, inboundQueueSize)
	readErr := make(chan error, 1)
	go s.readLoop(ctx, conn, inbound, readErr)

	if err := s.register(ctx, inbound, readErr); err != nil {
		return err
	}

	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			return err
		case msg := <-inbound:
			s.dispatch(ctx, msg)
		case <-ticker.C:
			s.syncConfig(ctx)
		}
	}
}

// register waits for the endpoint's greeting, announces it to the record
// store, and pushes the initial full inventory.
func (s *Session) register(ctx context.Context, inbound <-chan any, readErr <-chan error) error {
	timer := time.NewTimer(registerTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			return err
		case <-timer.C:
			return errRegisterTimeout
		case msg := <-inbound:
			reg, ok := msg.(domain.Register)
			if !ok {
				// Frames before the greeting are out of order; drop them.
				s.log.Warn("message before registration dropped", "type", fmt.Sprintf("%T", msg))
				continue
			}
			s.mac = reg.MAC
			if s.mac == "" {
				s.mac = s.addr
			}
			s.log = s.log.With("mac", s.mac)

			slots, err := s.store.Register(ctx, s.mac)
			if err != nil {
				return fmt.Errorf("register with record store: %w", err)
			}
			if err := s.send(ctx, domain.NewConfigUpdate(slots)); err != nil {
				return err
			}
			fp := service.Fingerprint(slots)
			if err := s.cache.SetFingerprint(ctx, s.mac, fp); err != nil {
				s.log.Warn("fingerprint cache write failed", "error", err)
			}
			if err := s.cache.MarkSeen(ctx, s.mac); err != nil {
				s.log.Warn("presence update failed", "error", err)
			}
			s.log.Info("registered", "slots", len(slots))
			return nil
		}
	}
}

func (s *Session) dispatch(ctx context.Context, msg any) {
	switch m := msg.(type) {
	case domain.InventoryUpdate:
		s.handleUpdate(ctx, m)
	case domain.CheckConfig:
		if err := s.send(ctx, domain.NewAck(true)); err != nil {
			s.log.Error("ack send failed", "error", err)
			return
		}
		s.syncConfig(ctx)
	case domain.Register:
		// Duplicate greeting after registration; nothing to do.
	default:
		s.log.Warn("unexpected message dropped", "type", fmt.Sprintf("%T", msg))
	}
}

func (s *Session) handleUpdate(ctx context.Context, upd domain.InventoryUpdate) {
	res, err := s.store.Update(ctx, s.mac, upd)
	if err != nil {
		s.log.Error("update forward failed", "label", upd.Label, "error", err)
		s.sendAckError(ctx, "Conn Error")
		return
	}
	if !res.Ack {
		s.log.Warn("update rejected", "label", upd.Label, "reason", res.Error)
		s.sendAckError(ctx, res.Error)
		return
	}

	ack := domain.NewAck(true)
	ack.CorrectedLabel = res.CorrectedLabel
	if err := s.send(ctx, ack); err != nil {
		s.log.Error("ack send failed", "error", err)
		return
	}
	s.log.Info("update applied", "label", upd.Label, "count", upd.Count)

	if err := s.cache.MarkSeen(ctx, s.mac); err != nil {
		s.log.Warn("presence update failed", "error", err)
	}

	// The endpoint just got an ack; give it a beat before any config push.
	select {
	case <-ctx.Done():
		return
	case <-time.After(updateSettleDelay):
	}
	s.syncConfig(ctx)
}

// syncConfig pushes the endpoint's inventory only when its fingerprint
// differs from the last one pushed. Unchanged config costs zero frames.
func (s *Session) syncConfig(ctx context.Context) {
	slots, err := s.store.Inventory(ctx, s.mac)
	if err != nil {
		s.log.Error("config check failed", "error", err)
		return
	}
	fp := service.Fingerprint(slots)

	last, err := s.cache.GetFingerprint(ctx, s.mac)
	if err != nil {
		s.log.Warn("fingerprint cache read failed", "error", err)
	}
	if fp == last {
		return
	}

	if err := s.send(ctx, domain.NewConfigUpdate(slots)); err != nil {
		s.log.Error("config push failed", "error", err)
		return
	}
	if err := s.cache.SetFingerprint(ctx, s.mac, fp); err != nil {
		s.log.Warn("fingerprint cache write failed", "error", err)
	}
	s.log.Info("config pushed", "fingerprint", fp[:8], "slots", len(slots))
}

func (s *Session) sendAckError(ctx context.Context, reason string) {
	ack := domain.NewAck(false)
	ack.Error = reason
	if err := s.send(ctx, ack); err != nil {
		s.log.Error("ack send failed", "error", err)
	}
}

// send writes one frame, spacing sends at least minSendGap apart.
func (s *Session) send(ctx context.Context, msg any) error {
	if gap := time.Since(s.lastSend); gap < minSendGap {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(minSendGap - gap):
		}
	}
	err := s.writer.Send(ctx, msg)
	s.lastSend = time.Now()
	return err
}

// readLoop feeds decoded messages into inbound. Malformed frames and
// unknown ops are dropped; only transport errors end the loop.
func (s *Session) readLoop(ctx context.Context, conn port.Conn, inbound chan<- any, readErr chan<- error) {
	decoder := wire.NewDecoder()
	buf := make([]byte, 512)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			readErr <- fmt.Errorf("transport read: %w", err)
			return
		}
		msgs, err := decoder.Feed(buf[:n])
		if err != nil {
			s.log.Warn("frame buffer reset", "error", err)
		}
		for _, raw := range msgs {
			msg, err := domain.DecodeMessage(raw)
			if err != nil {
				s.log.Warn("frame dropped", "error", err)
				continue
			}
			select {
			case inbound <- msg:
			case <-ctx.Done():
				return
			}
		}
	}
}

func shortAddr(addr string) string {
	if len(addr) <= 5 {
		return addr
	}
	return addr[len(addr)-5:]
}
