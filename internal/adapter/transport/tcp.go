// Package transport provides the framed links the bridge and endpoints
// talk over. TCP stands in for the constrained wireless UART link; the
// frame codec on top keeps the same chunked, paced semantics either way.
package transport

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/rl1809/shelfsync/internal/core/domain"
	"github.com/rl1809/shelfsync/internal/port"
	"github.com/rl1809/shelfsync/internal/wire"
)

type conn struct {
	net.Conn
	mtu int
}

func (c *conn) MTU() int           { return c.mtu }
func (c *conn) RemoteAddr() string { return c.Conn.RemoteAddr().String() }

// NewConn wraps an accepted or dialed net.Conn as a transport conn. mtu 0
// means the link capability is unknown and the conservative fallback chunk
// size applies.
func NewConn(c net.Conn, mtu int) port.Conn {
	return &conn{Conn: c, mtu: mtu}
}

// TCPDialer opens framed links to endpoint addresses.
type TCPDialer struct {
	Timeout time.Duration
	MTU     int
}

func (d *TCPDialer) Dial(ctx context.Context, addr string) (port.Conn, error) {
	nd := net.Dialer{Timeout: d.Timeout}
	c, err := nd.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return NewConn(c, d.MTU), nil
}

// TCPDiscoverer probes a fixed candidate address list and keeps the
// endpoints whose greeting identity matches the known name prefix. It is
// the wired-network analog of a radio scan.
type TCPDiscoverer struct {
	Candidates     []string
	IdentityPrefix string
	ProbeTimeout   time.Duration
}

func (d *TCPDiscoverer) Scan(ctx context.Context) ([]port.DiscoveredEndpoint, error) {
	var (
		mu    sync.Mutex
		found []port.DiscoveredEndpoint
		wg    sync.WaitGroup
	)
	for _, addr := range d.Candidates {
		wg.Add(1)
		go func(addr string) {
			defer wg.Done()
			ep, ok := d.probe(ctx, addr)
			if !ok {
				return
			}
			mu.Lock()
			found = append(found, ep)
			mu.Unlock()
		}(addr)
	}
	wg.Wait()
	return found, ctx.Err()
}

// probe dials one candidate and reads its greeting frame. The probe
// connection is closed afterwards; the session re-dials.
func (d *TCPDiscoverer) probe(ctx context.Context, addr string) (port.DiscoveredEndpoint, bool) {
	dialCtx, cancel := context.WithTimeout(ctx, d.ProbeTimeout)
	defer cancel()

	nd := net.Dialer{}
	c, err := nd.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return port.DiscoveredEndpoint{}, false
	}
	defer c.Close()
	c.SetReadDeadline(time.Now().Add(d.ProbeTimeout))

	decoder := wire.NewDecoder()
	buf := make([]byte, 512)
	for {
		n, err := c.Read(buf)
		if err != nil {
			return port.DiscoveredEndpoint{}, false
		}
		msgs, err := decoder.Feed(buf[:n])
		if err != nil {
			return port.DiscoveredEndpoint{}, false
		}
		for _, raw := range msgs {
			msg, err := domain.DecodeMessage(raw)
			if err != nil {
				continue
			}
			reg, ok := msg.(domain.Register)
			if !ok {
				continue
			}
			if !strings.HasPrefix(reg.Identity, d.IdentityPrefix) {
				return port.DiscoveredEndpoint{}, false
			}
			return port.DiscoveredEndpoint{
				Addr:     addr,
				Identity: reg.Identity,
				MAC:      reg.MAC,
			}, true
		}
	}
}
