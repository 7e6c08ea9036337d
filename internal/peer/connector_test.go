package peer

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/allisontodd/shout/internal/wire"
)

// echoOrchestrator is a minimal stand-in for the real orchestrator: it
// assigns a fixed sid at INIT and answers every CALL with a copy of it typed
// as RESULT, enough to exercise Connector's handshake and dispatch loop in
// isolation.
func echoOrchestrator(t *testing.T, ln net.Listener, sid int32) {
	t.Helper()
	conn, err := ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()

	init, err := wire.ReadFrame(conn)
	require.NoError(t, err)
	require.Equal(t, wire.TypeInit, init.Type)

	reply := init.Clone()
	reply.Sid = sid
	require.NoError(t, wire.WriteFrame(conn, reply))

	for {
		msg, err := wire.ReadFrame(conn)
		if err != nil {
			return
		}
		if msg.Type == wire.TypeCall {
			result := msg.Clone()
			result.Type = wire.TypeResult
			wire.WriteFrame(conn, result)
		}
	}
}

type recordingHandler struct {
	initSid int32
	calls   chan *wire.Message
}

func (h *recordingHandler) Init(sid int32) { h.initSid = sid }
func (h *recordingHandler) Handle(ctx context.Context, msg *wire.Message, send func(*wire.Message) error) error {
	h.calls <- msg
	return nil
}

func TestConnectorCompletesHandshakeAndReceivesMessages(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go echoOrchestrator(t, ln, 4242)

	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	handler := &recordingHandler{calls: make(chan *wire.Message, 4)}
	c := NewConnector(Policy{
		Host:         host,
		Port:         port,
		PeerType:     wire.PeerMeasClient,
		ClientName:   "radioA",
		MaxConnTries: 1,
		ConnSleep:    0,
	}, handler, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	// Send reports ErrNotConnected until Run has dialed and finished INIT.
	require.Eventually(t, func() bool { return c.Send(&wire.Message{Type: wire.TypeCall, UUID: 1}) == nil }, time.Second, 10*time.Millisecond)

	select {
	case <-handler.calls:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for echoed RESULT")
	}

	require.Equal(t, int32(4242), handler.initSid)
	cancel()
	<-done
}

