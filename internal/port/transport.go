package port

import (
	"context"
	"io"
)

// Conn is one framed link to an endpoint. Reads deliver arbitrary
// fragments; framing is the wire package's job.
type Conn interface {
	io.ReadWriteCloser

	// MTU reports the transport's payload capability, or 0 if unknown.
	MTU() int

	RemoteAddr() string
}

type Dialer interface {
	Dial(ctx context.Context, addr string) (Conn, error)
}

// DiscoveredEndpoint is one reachable endpoint seen during a scan.
type DiscoveredEndpoint struct {
	Addr     string
	Identity string
	MAC      string
}

// Discoverer finds reachable endpoints whose identity matches the known
// device name pattern.
type Discoverer interface {
	Scan(ctx context.Context) ([]DiscoveredEndpoint, error)
}
