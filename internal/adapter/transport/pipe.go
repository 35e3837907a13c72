package transport

import (
	"context"
	"errors"
	"net"
	"sync"

	"github.com/rl1809/shelfsync/internal/port"
)

// NewPipe returns two ends of an in-memory framed link. Each Write surfaces
// as one Read on the peer, so chunk boundaries survive exactly as a real
// small-packet transport would deliver them.
func NewPipe(mtu int) (port.Conn, port.Conn) {
	a, b := net.Pipe()
	return NewConn(a, mtu), NewConn(b, mtu)
}

// PipeDialer hands out pre-wired pipe ends by address. Tests register the
// endpoint side and let the bridge dial the other.
type PipeDialer struct {
	mu    sync.Mutex
	conns map[string]port.Conn
}

func NewPipeDialer() *PipeDialer {
	return &PipeDialer{conns: make(map[string]port.Conn)}
}

// Register stores the bridge-side end for an address and returns it.
func (d *PipeDialer) Register(addr string, c port.Conn) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.conns[addr] = c
}

func (d *PipeDialer) Dial(ctx context.Context, addr string) (port.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.conns[addr]
	if !ok {
		return nil, errors.New("no endpoint at " + addr)
	}
	delete(d.conns, addr)
	return c, nil
}

// StaticDiscoverer reports a fixed endpoint set on every scan.
type StaticDiscoverer struct {
	Endpoints []port.DiscoveredEndpoint
}

func (s *StaticDiscoverer) Scan(ctx context.Context) ([]port.DiscoveredEndpoint, error) {
	return s.Endpoints, nil
}
