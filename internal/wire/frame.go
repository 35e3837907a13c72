// Package wire implements the newline-delimited frame codec used on the
// device link. Messages are JSON records terminated by a single '\n' and
// split into small chunks for a transport that only moves a few dozen bytes
// per write.
package wire

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"
)

const (
	// Delimiter terminates every serialized message.
	Delimiter = '\n'

	// FallbackChunkSize is used when the transport reports no MTU.
	FallbackChunkSize = 20

	// MinChunkSize and MaxChunkSize bound the negotiated chunk size.
	MinChunkSize = 20
	MaxChunkSize = 180

	// InterChunkDelay paces consecutive chunk writes so a slow peer's
	// flow control is never overrun.
	InterChunkDelay = 20 * time.Millisecond

	// MaxBufferSize caps the reassembly buffer. A peer that streams this
	// much without a delimiter is malformed or stalled.
	MaxBufferSize = 4096

	// attHeaderSize is subtracted from the transport MTU to get the
	// usable payload per write.
	attHeaderSize = 3
)

var ErrFrameOverflow = errors.New("frame buffer overflow")

// NegotiatedChunkSize derives the chunk size from a transport MTU, clamped
// to [MinChunkSize, MaxChunkSize]. A non-positive MTU yields the fallback.
func NegotiatedChunkSize(mtu int) int {
	if mtu <= 0 {
		return FallbackChunkSize
	}
	size := mtu - attHeaderSize
	if size < MinChunkSize {
		return MinChunkSize
	}
	if size > MaxChunkSize {
		return MaxChunkSize
	}
	return size
}

// Encode serializes msg and appends the frame delimiter.
func Encode(msg any) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return append(data, Delimiter), nil
}

// Chunks splits data into pieces of at most max bytes, preserving order.
func Chunks(data []byte, max int) [][]byte {
	if max <= 0 {
		max = FallbackChunkSize
	}
	chunks := make([][]byte, 0, (len(data)+max-1)/max)
	for len(data) > max {
		chunks = append(chunks, data[:max])
		data = data[max:]
	}
	if len(data) > 0 {
		chunks = append(chunks, data)
	}
	return chunks
}

// Decoder reassembles frames from arbitrarily fragmented input.
type Decoder struct {
	buf bytes.Buffer
	cap int
}

func NewDecoder() *Decoder {
	return &Decoder{cap: MaxBufferSize}
}

// Feed appends one received fragment and returns every complete message
// payload it closed off, delimiters stripped. Empty frames are skipped. If
// the buffer exceeds the cap without a delimiter the buffered bytes are
// discarded and ErrFrameOverflow is returned; the decoder stays usable.
func (d *Decoder) Feed(fragment []byte) ([][]byte, error) {
	d.buf.Write(fragment)

	var msgs [][]byte
	for {
		data := d.buf.Bytes()
		idx := bytes.IndexByte(data, Delimiter)
		if idx < 0 {
			break
		}
		payload := bytes.TrimSpace(data[:idx])
		if len(payload) > 0 {
			msg := make([]byte, len(payload))
			copy(msg, payload)
			msgs = append(msgs, msg)
		}
		d.buf.Next(idx + 1)
	}

	if d.buf.Len() > d.cap {
		d.buf.Reset()
		return msgs, ErrFrameOverflow
	}
	return msgs, nil
}

// ChunkedWriter sends encoded frames over w in paced chunks.
type ChunkedWriter struct {
	w         io.Writer
	chunkSize int
	delay     time.Duration
}

func NewChunkedWriter(w io.Writer, chunkSize int) *ChunkedWriter {
	if chunkSize <= 0 {
		chunkSize = FallbackChunkSize
	}
	return &ChunkedWriter{w: w, chunkSize: chunkSize, delay: InterChunkDelay}
}

// Send encodes msg and writes it chunk by chunk with the inter-chunk delay.
// The context cancels the remaining chunks mid-frame; the peer's decoder
// recovers at the next delimiter.
func (cw *ChunkedWriter) Send(ctx context.Context, msg any) error {
	data, err := Encode(msg)
	if err != nil {
		return err
	}
	for i, chunk := range Chunks(data, cw.chunkSize) {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(cw.delay):
			}
		}
		if _, err := cw.w.Write(chunk); err != nil {
			return fmt.Errorf("write chunk: %w", err)
		}
	}
	return nil
}
