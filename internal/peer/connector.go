// Package peer implements the two kinds of process that dial the
// orchestrator: measurement clients and interface clients. Both share the
// same connection lifecycle (resolve, connect with bounded retries, send
// INIT, dispatch loop) and differ only in their reconnect policy and the
// calls they know how to handle locally (spec.md §4.3, grounded on
// original_source/clientconnector.py and ifaceconnector.py).
package peer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/allisontodd/shout/internal/wire"
)

// ErrNotConnected is returned by Connector.Send when no connection is
// currently established.
var ErrNotConnected = errors.New("peer: not connected")

// ErrTooManyConnTries is returned when a Connector exhausts its retry budget
// without establishing a connection (clientconnector.py: "Too many
// connection attempts! Exiting.").
var ErrTooManyConnTries = errors.New("peer: too many connection attempts")

// Handler processes one inbound message from the orchestrator and returns
// zero or more messages to send back. It is the business-logic seam: a
// measurement client's Handler runs RPCs against a radio.Driver, an
// interface client's Handler hands RESULTs to the command sequencer.
type Handler interface {
	// Handle processes msg, sending any reply itself through send. A
	// returned error is logged by the dispatch loop, which keeps running.
	Handle(ctx context.Context, msg *wire.Message, send func(*wire.Message) error) error

	// Init is called once INIT completes, with the session id the
	// orchestrator assigned (or re-confirmed on reconnect).
	Init(sid int32)
}

// Policy controls a Connector's reconnection behavior.
type Policy struct {
	Host         string
	Port         int
	PeerType     wire.PeerType
	ClientName   string
	MaxConnTries int
	ConnSleep    time.Duration
}

// Connector owns the TCP connection to the orchestrator: dialing, the INIT
// handshake, and the read/dispatch loop. Reconnection behavior is uniform;
// callers differentiate measurement vs. interface clients purely through
// Policy.MaxConnTries/ConnSleep (180 tries/5s vs. 1 try/0s, per spec.md).
type Connector struct {
	policy  Policy
	handler Handler
	log     zerolog.Logger

	sid int32

	mu sync.Mutex
	ep wire.Endpoint
}

// Send transmits m over whatever connection is currently live, stamping
// the current session id. It is safe to call concurrently with Run's
// dispatch loop; this is how a driver built on top of a Handler (e.g.
// package sequencer) originates its own CALLs rather than only replying to
// inbound ones.
func (c *Connector) Send(m *wire.Message) error {
	c.mu.Lock()
	ep := c.ep
	sid := c.sid
	c.mu.Unlock()

	if ep == nil {
		return ErrNotConnected
	}
	m.Sid = sid
	return ep.Send(m)
}

func (c *Connector) setEndpoint(ep wire.Endpoint) {
	c.mu.Lock()
	c.ep = ep
	c.mu.Unlock()
}

// NewConnector builds a Connector bound to handler.
func NewConnector(policy Policy, handler Handler, log zerolog.Logger) *Connector {
	return &Connector{policy: policy, handler: handler, log: log}
}

// Run dials, performs INIT, and services the connection until ctx is
// cancelled or (for measurement clients, whose policy allows multiple
// tries) the connection drops and is successfully re-established. It
// returns ErrTooManyConnTries if the retry budget is exhausted, or the last
// dispatch-loop error otherwise.
func (c *Connector) Run(ctx context.Context) error {
	for {
		ep, err := c.connect(ctx)
		if err != nil {
			return err
		}
		c.setEndpoint(ep)

		err = c.dispatchLoop(ctx, ep)
		ep.Close()
		c.setEndpoint(nil)

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if c.policy.MaxConnTries <= 1 {
			// Interface clients fail fast: no reconnect attempt.
			return err
		}
		c.log.Warn().Err(err).Msg("connection to orchestrator lost, reconnecting")
	}
}

func (c *Connector) connect(ctx context.Context) (wire.Endpoint, error) {
	addr := fmt.Sprintf("%s:%d", c.policy.Host, c.policy.Port)

	var lastErr error
	tries := 0
	for {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		conn, err := (&net.Dialer{}).DialContext(ctx, "tcp", addr)
		if err == nil {
			ep := wire.NewNetEndpoint(conn)
			if initErr := c.sendInit(ep); initErr != nil {
				ep.Close()
				return nil, initErr
			}
			return ep, nil
		}

		lastErr = err
		tries++
		if tries >= c.policy.MaxConnTries {
			c.log.Error().Err(lastErr).Int("tries", tries).Msg("too many connection attempts")
			return nil, ErrTooManyConnTries
		}
		c.log.Warn().Err(err).Str("addr", addr).Msg("failed to connect to orchestrator")

		select {
		case <-time.After(c.policy.ConnSleep):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (c *Connector) sendInit(ep wire.Endpoint) error {
	init := &wire.Message{
		Type:     wire.TypeInit,
		PeerType: c.policy.PeerType,
		Sid:      c.sid,
	}
	name := c.policy.ClientName
	if name == "" {
		name, _ = os.Hostname()
	}
	if name != "" {
		init.Clients = []string{name}
		init.SetAttr("clientname", name)
	}
	if err := ep.Send(init); err != nil {
		return fmt.Errorf("peer: send INIT: %w", err)
	}

	reply, err := ep.Recv()
	if err != nil {
		return fmt.Errorf("peer: recv INIT reply: %w", err)
	}
	if reply.Type != wire.TypeInit {
		return fmt.Errorf("peer: expected INIT reply, got %s", reply.Type)
	}
	c.sid = reply.Sid
	c.handler.Init(c.sid)
	return nil
}

func (c *Connector) dispatchLoop(ctx context.Context, ep wire.Endpoint) error {
	go func() {
		<-ctx.Done()
		ep.Close()
	}()

	send := c.Send

	for {
		msg, err := ep.Recv()
		if err != nil {
			return err
		}
		if msg.Type == wire.TypeClose {
			return nil
		}
		if err := c.handler.Handle(ctx, msg, send); err != nil {
			c.log.Warn().Err(err).Str("type", msg.Type.String()).Msg("handler error")
		}
	}
}
