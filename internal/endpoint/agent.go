package endpoint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rl1809/shelfsync/internal/core/domain"
	"github.com/rl1809/shelfsync/internal/port"
	"github.com/rl1809/shelfsync/internal/wire"
)

// State enumerates the session state machine. Transitions happen only on
// the tick loop, never inside transport callbacks.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateRegistering
	StateIdle
	StateAwaitingAck
	StateApplyingConfig
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateRegistering:
		return "registering"
	case StateIdle:
		return "idle"
	case StateAwaitingAck:
		return "awaiting_ack"
	case StateApplyingConfig:
		return "applying_config"
	default:
		return "unknown"
	}
}

// Config carries the agent's identity and timing knobs.
type Config struct {
	Identity string
	MAC      string

	TickInterval        time.Duration
	AckTimeout          time.Duration
	Debounce            time.Duration
	ConfigCheckInterval time.Duration

	// InactivityTimeout stops the agent after this long without local
	// activity; zero disables it.
	InactivityTimeout time.Duration

	// Battery reports the telemetry level sent with updates.
	Battery func() int
}

func (c *Config) applyDefaults() {
	if c.TickInterval == 0 {
		c.TickInterval = 20 * time.Millisecond
	}
	if c.AckTimeout == 0 {
		c.AckTimeout = 5 * time.Second
	}
	if c.Debounce == 0 {
		c.Debounce = 10 * time.Second
	}
	if c.ConfigCheckInterval == 0 {
		c.ConfigCheckInterval = 10 * time.Second
	}
	if c.Battery == nil {
		c.Battery = func() int { return 100 }
	}
}

var ErrInactive = errors.New("inactivity timeout")

// awaitingAck tracks the single outstanding request/response exchange.
type awaitingAck struct {
	Label    string
	Count    int
	IsCheck  bool
	Deadline time.Time
}

// Agent is the endpoint's cooperative loop: local edits apply immediately
// and debounce into the pending queue; the queue flushes one entry at a
// time through an ack wait; config pushes replace the inventory wholesale
// and are deferred while unflushed edits exist.
type Agent struct {
	cfg   Config
	store *Store
	queue *PendingQueue
	log   *slog.Logger

	mu           sync.Mutex
	state        State
	writer       *wire.ChunkedWriter
	awaiting     *awaitingAck
	deferred     []domain.SlotConfig
	hasDeferred  bool
	lastCheck    time.Time
	lastActivity time.Time
}

func NewAgent(cfg Config, store *Store, log *slog.Logger) *Agent {
	cfg.applyDefaults()
	return &Agent{
		cfg:          cfg,
		store:        store,
		queue:        NewPendingQueue(cfg.Debounce),
		log:          log.With("identity", cfg.Identity),
		state:        StateDisconnected,
		lastActivity: time.Now(),
	}
}

// Tap applies one local edit: the count changes on screen immediately and
// the transmission debounces.
func (a *Agent) Tap(label string, delta int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	count, ok := a.store.Adjust(label, delta)
	if !ok {
		return
	}
	slot, _ := a.store.Get(label)
	now := time.Now()
	a.queue.Put(label, slot.Name, count, now)
	a.lastActivity = now
}

// State returns the current session state.
func (a *Agent) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Slots returns the local inventory view.
func (a *Agent) Slots() []domain.SlotConfig {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.store.All()
}

// RunConn drives one connection until it drops, ctx ends, or the
// inactivity timeout fires. PendingEdits survive across connections; the
// ack wait and any deferred config do not.
func (a *Agent) RunConn(ctx context.Context, conn port.Conn) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer conn.Close()
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	a.mu.Lock()
	a.state = StateConnecting
	a.writer = wire.NewChunkedWriter(conn, wire.NegotiatedChunkSize(conn.MTU()))
	a.awaiting = nil
	a.hasDeferred = false
	// Registration delivers a full config, so the periodic check starts
	// one interval from now.
	a.lastCheck = time.Now()
	a.mu.Unlock()

	inbound := make(chan any, 32)
	readErr := make(chan error, 1)
	go a.readLoop(ctx, conn, inbound, readErr)

	// Greet with our identity; the counterpart answers with a full
	// inventory replace.
	if err := a.send(ctx, domain.NewRegister(a.cfg.Identity, a.cfg.MAC)); err != nil {
		a.setState(StateDisconnected)
		return err
	}
	a.setState(StateRegistering)
	a.log.Info("greeted", "state", StateRegistering)

	ticker := time.NewTicker(a.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.setState(StateDisconnected)
			return ctx.Err()
		case err := <-readErr:
			a.setState(StateDisconnected)
			return err
		case <-ticker.C:
			if err := a.tick(ctx, inbound); err != nil {
				a.setState(StateDisconnected)
				return err
			}
		}
	}
}

// tick drains the inbound queue, then advances timers and the pending
// queue. Everything here is bounded work; no blocking I/O beyond the
// paced frame writes.
func (a *Agent) tick(ctx context.Context, inbound <-chan any) error {
	a.mu.Lock()
	defer a.mu.Unlock()

drain:
	for {
		select {
		case msg := <-inbound:
			a.handleMessage(msg)
		default:
			break drain
		}
	}

	now := time.Now()

	if a.awaiting != nil && now.After(a.awaiting.Deadline) {
		aw := a.awaiting
		a.awaiting = nil
		a.state = StateIdle
		if !aw.IsCheck {
			// No retry at this layer: the optimistic local value stays
			// on display and the next config sync reconciles it.
			a.log.Warn("ack timeout, edit dropped", "label", aw.Label, "count", aw.Count)
			a.queue.Drop(aw.Label)
		} else {
			a.log.Warn("config check unanswered")
		}
	}

	if a.state == StateIdle {
		if e := a.queue.Due(now); e != nil {
			a.transmit(ctx, e, now)
		}
	}

	if a.state == StateIdle && a.queue.Len() == 0 {
		if a.hasDeferred {
			a.applyConfig(a.deferred)
			a.deferred = nil
			a.hasDeferred = false
		} else if now.Sub(a.lastCheck) > a.cfg.ConfigCheckInterval {
			a.lastCheck = now
			if err := a.sendLocked(ctx, domain.NewCheckConfig()); err != nil {
				a.log.Warn("config check send failed", "error", err)
			} else {
				a.awaiting = &awaitingAck{IsCheck: true, Deadline: now.Add(a.cfg.AckTimeout)}
				a.state = StateAwaitingAck
			}
		}
	}

	if a.cfg.InactivityTimeout > 0 && now.Sub(a.lastActivity) > a.cfg.InactivityTimeout {
		return ErrInactive
	}
	return nil
}

func (a *Agent) handleMessage(msg any) {
	switch m := msg.(type) {
	case domain.Ack:
		a.handleAck(m)
	case domain.ConfigUpdate:
		registering := a.state == StateRegistering
		if a.queue.Len() > 0 {
			// Applying now would overwrite unflushed local edits.
			a.deferred = m.Data
			a.hasDeferred = true
			a.log.Info("config deferred, pending edits exist", "pending", a.queue.Len())
		} else {
			a.applyConfig(m.Data)
		}
		if registering {
			a.state = StateIdle
			a.log.Info("registered", "slots", a.store.Len())
		}
	case domain.Register:
		// Only we greet on this link.
	default:
		a.log.Warn("unexpected message dropped", "type", fmt.Sprintf("%T", msg))
	}
}

func (a *Agent) handleAck(m domain.Ack) {
	if a.state != StateAwaitingAck || a.awaiting == nil {
		return
	}
	aw := a.awaiting
	a.awaiting = nil
	a.state = StateIdle

	if aw.IsCheck {
		return
	}
	if !m.Ack {
		a.log.Warn("update rejected, edit dropped", "label", aw.Label, "reason", m.Error)
		a.queue.Drop(aw.Label)
		return
	}

	label := aw.Label
	if m.CorrectedLabel != "" && m.CorrectedLabel != label {
		a.log.Info("label corrected", "old", label, "new", m.CorrectedLabel)
		a.store.Relabel(label, m.CorrectedLabel)
		a.queue.Relabel(label, m.CorrectedLabel)
		label = m.CorrectedLabel
	}
	a.queue.Resolve(label, aw.Count)
	if err := a.store.Persist(); err != nil {
		a.log.Warn("persist failed", "error", err)
	}
	a.log.Info("update confirmed", "label", label, "count", aw.Count)
}

// transmit flushes one pending edit and opens the ack wait.
func (a *Agent) transmit(ctx context.Context, e *PendingEdit, now time.Time) {
	upd := domain.InventoryUpdate{
		Op:        domain.OpInventoryUpdate,
		Label:     e.Label,
		Name:      e.Name,
		Count:     e.Count,
		Battery:   a.cfg.Battery(),
		Timestamp: now.UTC().Format("2006-01-02T15:04:05Z"),
	}
	if err := a.sendLocked(ctx, upd); err != nil {
		a.log.Warn("flush failed, edit dropped", "label", e.Label, "error", err)
		a.queue.Drop(e.Label)
		return
	}
	a.awaiting = &awaitingAck{
		Label:    e.Label,
		Count:    e.Count,
		Deadline: now.Add(a.cfg.AckTimeout),
	}
	a.state = StateAwaitingAck
}

// applyConfig replaces the local inventory wholesale. Repeated application
// of the same push is idempotent.
func (a *Agent) applyConfig(data []domain.SlotConfig) {
	prev := a.state
	a.state = StateApplyingConfig
	a.store.Replace(data)
	if err := a.store.Persist(); err != nil {
		a.log.Warn("persist failed", "error", err)
	}
	a.lastActivity = time.Now()
	if prev == StateRegistering {
		a.state = prev
	} else {
		a.state = StateIdle
	}
	a.log.Info("config applied", "slots", len(data))
}

func (a *Agent) setState(s State) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
}

func (a *Agent) send(ctx context.Context, msg any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sendLocked(ctx, msg)
}

func (a *Agent) sendLocked(ctx context.Context, msg any) error {
	return a.writer.Send(ctx, msg)
}

func (a *Agent) readLoop(ctx context.Context, conn port.Conn, inbound chan<- any, readErr chan<- error) {
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
			a.log.Warn("frame buffer reset", "error", err)
		}
		for _, raw := range msgs {
			msg, err := domain.DecodeMessage(raw)
			if err != nil {
				a.log.Warn("frame dropped", "error", err)
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
