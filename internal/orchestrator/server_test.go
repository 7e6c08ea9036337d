package orchestrator

import (
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/allisontodd/shout/internal/config"
	"github.com/allisontodd/shout/internal/wire"
)

// testClient is a minimal synchronous peer used to drive the orchestrator
// from the test goroutine: dial, INIT, then Send/Recv at will.
type testClient struct {
	t    *testing.T
	conn net.Conn
	sid  int32
}

func dialAndInit(t *testing.T, addr string, peerType wire.PeerType, name string) *testClient {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)

	init := &wire.Message{Type: wire.TypeInit, PeerType: peerType, Clients: []string{name}}
	require.NoError(t, wire.WriteFrame(conn, init))

	reply, err := wire.ReadFrame(conn)
	require.NoError(t, err)
	require.Equal(t, wire.TypeInit, reply.Type)
	require.NotZero(t, reply.Sid)

	return &testClient{t: t, conn: conn, sid: reply.Sid}
}

func (c *testClient) send(m *wire.Message) {
	c.t.Helper()
	require.NoError(c.t, wire.WriteFrame(c.conn, m))
}

func (c *testClient) recv() *wire.Message {
	c.t.Helper()
	m, err := wire.ReadFrame(c.conn)
	require.NoError(c.t, err)
	return m
}

func startTestServer(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	cfg := config.OrchestratorConfig{CallMapTTL: time.Minute}
	srv := New(cfg, zerolog.Nop(), nil)
	go srv.Serve(ln)

	return ln.Addr().String()
}

// TestSidsAreUniquePerConnection covers P2: every registered connection
// receives a distinct, non-zero session id.
func TestSidsAreUniquePerConnection(t *testing.T) {
	addr := startTestServer(t)

	a := dialAndInit(t, addr, wire.PeerMeasClient, "radioA")
	b := dialAndInit(t, addr, wire.PeerMeasClient, "radioB")
	c := dialAndInit(t, addr, wire.PeerIfaceClient, "iface0")

	require.NotZero(t, a.sid)
	require.NotZero(t, b.sid)
	require.NotZero(t, c.sid)
	require.NotEqual(t, a.sid, b.sid)
	require.NotEqual(t, a.sid, c.sid)
	require.NotEqual(t, b.sid, c.sid)
}

// TestGetClientsReportsRegistrationOrder covers P3 and seed scenario 1:
// getclients must list measurement clients in the order they joined.
func TestGetClientsReportsRegistrationOrder(t *testing.T) {
	addr := startTestServer(t)

	dialAndInit(t, addr, wire.PeerMeasClient, "radioA")
	dialAndInit(t, addr, wire.PeerMeasClient, "radioB")
	iface := dialAndInit(t, addr, wire.PeerIfaceClient, "iface0")

	iface.send(&wire.Message{Type: wire.TypeCall, UUID: 1, Attributes: []wire.Attr{{Key: "funcname", Val: "getclients"}}})
	reply := iface.recv()

	require.Equal(t, wire.TypeResult, reply.Type)
	require.Equal(t, []string{"radioA", "radioB"}, reply.Clients)
}

// TestCallFansOutToAll covers P3/seed scenario 2: a CALL naming "all" is
// delivered to every registered measurement client.
func TestCallFansOutToAll(t *testing.T) {
	addr := startTestServer(t)

	a := dialAndInit(t, addr, wire.PeerMeasClient, "radioA")
	b := dialAndInit(t, addr, wire.PeerMeasClient, "radioB")
	iface := dialAndInit(t, addr, wire.PeerIfaceClient, "iface0")

	iface.send(&wire.Message{
		Type:    wire.TypeCall,
		UUID:    42,
		Clients: []string{"all"},
		Attributes: []wire.Attr{
			{Key: "funcname", Val: "echo"},
		},
	})

	got := a.recv()
	require.Equal(t, int32(42), got.UUID)
	got = b.recv()
	require.Equal(t, int32(42), got.UUID)
}

// TestCallResultRoundTripCorrelatesByUUID covers P4/seed scenario 3: a
// RESULT is routed back to the interface client that issued the matching
// CALL, identified solely by uuid.
func TestCallResultRoundTripCorrelatesByUUID(t *testing.T) {
	addr := startTestServer(t)

	radio := dialAndInit(t, addr, wire.PeerMeasClient, "radioA")
	iface := dialAndInit(t, addr, wire.PeerIfaceClient, "iface0")

	iface.send(&wire.Message{
		Type:       wire.TypeCall,
		UUID:       7,
		Clients:    []string{"radioA"},
		Attributes: []wire.Attr{{Key: "funcname", Val: "echo"}},
	})
	call := radio.recv()
	require.Equal(t, int32(7), call.UUID)

	radio.send(&wire.Message{Type: wire.TypeResult, UUID: 7, Attributes: []wire.Attr{{Key: "ok", Val: "true"}}})
	result := iface.recv()
	require.Equal(t, int32(7), result.UUID)
	val, ok := result.Attr("ok")
	require.True(t, ok)
	require.Equal(t, "true", val)
}

// TestRoutingMissIsDroppedNotFatal covers seed scenario 5: a CALL naming an
// unregistered client is dropped (no panic, no crash, connection stays up).
func TestRoutingMissIsDroppedNotFatal(t *testing.T) {
	addr := startTestServer(t)

	iface := dialAndInit(t, addr, wire.PeerIfaceClient, "iface0")
	iface.send(&wire.Message{
		Type:       wire.TypeCall,
		UUID:       99,
		Clients:    []string{"no-such-radio"},
		Attributes: []wire.Attr{{Key: "funcname", Val: "echo"}},
	})

	// The connection should still be usable afterwards.
	iface.send(&wire.Message{Type: wire.TypeCall, UUID: 100, Attributes: []wire.Attr{{Key: "funcname", Val: "getclients"}}})
	reply := iface.recv()
	require.Equal(t, wire.TypeResult, reply.Type)
}

// TestReconnectReusesSidWhenPriorHolderGone covers SPEC_FULL.md §6.2: a
// client that reconnects offering a sid not currently held by anyone else
// is allowed to keep it.
func TestReconnectReusesSidWhenPriorHolderGone(t *testing.T) {
	addr := startTestServer(t)

	a := dialAndInit(t, addr, wire.PeerMeasClient, "radioA")
	oldSid := a.sid
	a.conn.Close()

	time.Sleep(20 * time.Millisecond)

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	require.NoError(t, wire.WriteFrame(conn, &wire.Message{
		Type: wire.TypeInit, PeerType: wire.PeerMeasClient, Sid: oldSid, Clients: []string{"radioA"},
	}))
	reply, err := wire.ReadFrame(conn)
	require.NoError(t, err)
	require.Equal(t, oldSid, reply.Sid)
}
