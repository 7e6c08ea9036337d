package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
)

// ErrConnectionClosed is returned by ReadFrame (and surfaced through
// Endpoint.Recv) when the peer closes the connection, including a
// premature EOF mid-frame (spec.md §4.1: "a premature EOF returns
// 'connection closed' to the caller").
var ErrConnectionClosed = errors.New("wire: connection closed")

// ReadFrame consumes exactly one length-prefixed SessionMessage from r:
// a 4-byte big-endian length, followed by that many bytes of body. Partial
// reads are looped until satisfied; any error (including io.EOF) before the
// frame is fully read is reported as ErrConnectionClosed.
func ReadFrame(r io.Reader) (*Message, error) {
	var lenbuf [4]byte
	if _, err := io.ReadFull(r, lenbuf[:]); err != nil {
		return nil, ErrConnectionClosed
	}
	n := binary.BigEndian.Uint32(lenbuf[:])

	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, ErrConnectionClosed
	}

	m, err := Unmarshal(body)
	if err != nil {
		return nil, fmt.Errorf("wire: decode frame: %w", err)
	}
	return m, nil
}

// WriteFrame serializes m once and writes length-prefix+body as a single
// Write call, so concurrent writers never interleave a partial frame.
func WriteFrame(w io.Writer, m *Message) error {
	body := Marshal(m)

	buf := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(buf[:4], uint32(len(body)))
	copy(buf[4:], body)

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("wire: write frame: %w", err)
	}
	return nil
}

// Endpoint is the single capability a peer or the orchestrator needs to
// exchange SessionMessages with something on the other end of a connection,
// whether that connection is a length-prefixed socket or a raw in-process
// channel (spec.md §9, "duck-typed routing on conn"). Send must serialize
// writes to the same Endpoint (spec.md §4.1); Recv may only be cancelled by
// closing the Endpoint.
type Endpoint interface {
	Send(m *Message) error
	Recv() (*Message, error)
	Close() error
}

// NetEndpoint implements Endpoint over a length-prefixed byte stream
// (spec.md §6.1, default TCP).
type NetEndpoint struct {
	rw       io.ReadWriteCloser
	sendLock sync.Mutex
}

// NewNetEndpoint wraps rw (typically a net.Conn) as a framed Endpoint.
func NewNetEndpoint(rw io.ReadWriteCloser) *NetEndpoint {
	return &NetEndpoint{rw: rw}
}

func (e *NetEndpoint) Send(m *Message) error {
	e.sendLock.Lock()
	defer e.sendLock.Unlock()
	return WriteFrame(e.rw, m)
}

func (e *NetEndpoint) Recv() (*Message, error) {
	return ReadFrame(e.rw)
}

func (e *NetEndpoint) Close() error {
	return e.rw.Close()
}

// ChanEndpoint implements Endpoint over an in-process bidirectional
// channel pair: no length prefix, exactly one Message per send/recv
// (spec.md §4.1, "in-process variant").
type ChanEndpoint struct {
	out      chan<- *Message
	in       <-chan *Message
	closeOne sync.Once
	closed   chan struct{}
}

// NewChanPair returns two ChanEndpoints bridging a driver and its connector
// in-process: messages sent on one arrive via Recv on the other.
func NewChanPair(buf int) (a, b *ChanEndpoint) {
	ab := make(chan *Message, buf)
	ba := make(chan *Message, buf)
	a = &ChanEndpoint{out: ab, in: ba, closed: make(chan struct{})}
	b = &ChanEndpoint{out: ba, in: ab, closed: make(chan struct{})}
	return a, b
}

func (e *ChanEndpoint) Send(m *Message) error {
	select {
	case e.out <- m:
		return nil
	case <-e.closed:
		return ErrConnectionClosed
	}
}

func (e *ChanEndpoint) Recv() (*Message, error) {
	select {
	case m, ok := <-e.in:
		if !ok {
			return nil, ErrConnectionClosed
		}
		return m, nil
	case <-e.closed:
		return nil, ErrConnectionClosed
	}
}

func (e *ChanEndpoint) Close() error {
	e.closeOne.Do(func() { close(e.closed) })
	return nil
}
