package orchestrator

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/allisontodd/shout/internal/config"
	"github.com/allisontodd/shout/internal/metrics"
	"github.com/allisontodd/shout/internal/wire"
)

// connState is a connection's position in the NEW -> REGISTERED -> CLOSED
// state machine (spec.md §4.2).
type connState int

const (
	stateNew connState = iota
	stateRegistered
	stateClosed
)

// Server is the orchestrator: it accepts peer connections, admits them by
// source IP, assigns session ids, and routes CALL/RESULT traffic between
// measurement and interface clients (spec.md §4, grounded on
// Happy-Ferret-go-ezipc's switchboard/Caller structure).
type Server struct {
	cfg     config.OrchestratorConfig
	log     zerolog.Logger
	metrics *metrics.Orchestrator

	registry *Registry
	calls    *CallMap
}

// New constructs a Server. m may be nil if metrics are disabled.
func New(cfg config.OrchestratorConfig, log zerolog.Logger, m *metrics.Orchestrator) *Server {
	return &Server{
		cfg:      cfg,
		log:      log,
		metrics:  m,
		registry: NewRegistry(),
		calls:    NewCallMap(),
	}
}

// Serve accepts connections on ln until it is closed or the connection loop
// returns an unrecoverable error.
func (s *Server) Serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return fmt.Errorf("orchestrator: accept: %w", err)
		}
		go s.handleConn(conn)
	}
}

func (s *Server) admit(conn net.Conn) bool {
	if len(s.cfg.AllowedCIDRs) == 0 {
		return true
	}
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return false
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	for _, n := range s.cfg.AllowedCIDRs {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

func (s *Server) handleConn(conn net.Conn) {
	if !s.admit(conn) {
		s.log.Warn().Str("remote", conn.RemoteAddr().String()).Msg("rejecting connection from disallowed source")
		conn.Close()
		return
	}

	host, portStr, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		conn.Close()
		return
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		conn.Close()
		return
	}

	ep := wire.NewNetEndpoint(conn)
	state := stateNew
	var entry *PeerEntry

	log := s.log.With().Str("remote", conn.RemoteAddr().String()).Logger()

	defer func() {
		if entry != nil {
			s.registry.Unregister(host, port)
			if s.metrics != nil {
				s.metrics.RegisteredPeers.WithLabelValues(entry.Type.String()).Dec()
			}
			log.Info().Int32("sid", entry.Sid).Msg("peer disconnected")
		}
		ep.Close()
	}()

	for {
		msg, err := ep.Recv()
		if err != nil {
			if !errors.Is(err, wire.ErrConnectionClosed) {
				log.Warn().Err(err).Msg("recv error")
			}
			return
		}

		switch msg.Type {
		case wire.TypeInit:
			if state == stateRegistered {
				log.Warn().Msg("duplicate INIT on already-registered connection")
				continue
			}
			entry, err = s.handleInit(host, port, ep, msg)
			if err != nil {
				log.Warn().Err(err).Msg("rejecting INIT")
				return
			}
			state = stateRegistered
			log.Info().Int32("sid", entry.Sid).Str("name", entry.Name).Str("peer_type", entry.Type.String()).Msg("peer registered")

		case wire.TypeCall:
			if state != stateRegistered {
				log.Warn().Msg("CALL before INIT")
				continue
			}
			entry.Touch(time.Now())
			s.handleCall(entry, msg, log)

		case wire.TypeResult:
			if state != stateRegistered {
				log.Warn().Msg("RESULT before INIT")
				continue
			}
			entry.Touch(time.Now())
			s.handleResult(msg, log)

		case wire.TypeHB:
			if entry != nil {
				entry.Touch(time.Now())
			}

		case wire.TypeClose:
			return

		default:
			log.Warn().Str("type", msg.Type.String()).Msg("unhandled message type")
		}
	}
}

// handleInit assigns a session id (or adopts a reconnecting client's prior
// sid, per SPEC_FULL.md §6.2) and registers the peer.
func (s *Server) handleInit(host string, port int, ep wire.Endpoint, msg *wire.Message) (*PeerEntry, error) {
	sid := msg.Sid
	if sid != 0 && s.registry.SidInUse(sid, host, port) {
		return nil, fmt.Errorf("sid %d is held by another live peer", sid)
	}
	if sid == 0 {
		sid = s.newSid()
	}

	var name string
	if len(msg.Clients) > 0 {
		name = msg.Clients[0]
	}

	entry := &PeerEntry{
		Host:     host,
		Port:     port,
		Sid:      sid,
		Name:     name,
		Type:     msg.PeerType,
		Endpoint: ep,
	}
	entry.Touch(time.Now())
	s.registry.Register(entry)

	if s.metrics != nil {
		s.metrics.RegisteredPeers.WithLabelValues(entry.Type.String()).Inc()
	}

	reply := msg.Clone()
	reply.Sid = sid
	reply.PeerType = wire.PeerOrch
	return entry, ep.Send(reply)
}

// newSid returns a session id not currently held by any live peer.
func (s *Server) newSid() int32 {
	for {
		sid := int32(rand.Uint32() >> 1)
		if sid == 0 {
			continue
		}
		if _, ok := s.registry.LookupSid(sid); !ok {
			return sid
		}
	}
}

// builtinGetClients is the orchestrator's one locally-handled RPC
// (spec.md §4.2): it returns the names of all registered measurement
// clients without routing anything.
const builtinGetClients = "getclients"

func (s *Server) handleCall(entry *PeerEntry, msg *wire.Message, log zerolog.Logger) {
	fn, _ := msg.Attr("funcname")
	if fn == builtinGetClients {
		reply := msg.Clone()
		reply.Type = wire.TypeResult
		reply.PeerType = wire.PeerOrch
		reply.Clients = s.registry.MeasurementClientNames()
		if err := entry.Endpoint.Send(reply); err != nil {
			log.Warn().Err(err).Msg("failed to reply to getclients")
		}
		if s.metrics != nil {
			s.metrics.CallsRouted.WithLabelValues(metrics.OutcomeBuiltin).Inc()
		}
		return
	}

	targets := s.resolveTargets(msg.Clients, log)
	if len(targets) == 0 {
		log.Warn().Strs("clients", msg.Clients).Msg("CALL names no registered client")
		if s.metrics != nil {
			s.metrics.CallsRouted.WithLabelValues(metrics.OutcomeDroppedNoCli).Inc()
		}
		return
	}

	s.calls.Insert(msg.UUID, entry.Sid, time.Now())

	// Fan-out targets are independent connections; send to all of them
	// concurrently so one slow peer doesn't delay delivery to the rest.
	var g errgroup.Group
	for _, t := range targets {
		t := t
		out := msg.Clone()
		out.Clients = nil
		g.Go(func() error {
			if err := t.Endpoint.Send(out); err != nil {
				return fmt.Errorf("target sid %d: %w", t.Sid, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Warn().Err(err).Msg("failed to route CALL to one or more targets")
	}
	if s.metrics != nil {
		s.metrics.CallsRouted.WithLabelValues(metrics.OutcomeFannedOut).Inc()
	}
}

// resolveTargets expands a CALL's Clients list into concrete peer entries.
// Per SPEC_FULL.md §6.4, "all" is only a fan-out sentinel in position 0; if
// it appears elsewhere in the list it is looked up as a literal client name
// (and will simply fail to resolve, since no client is named "all"). Names
// after a leading "all" are not looked up.
func (s *Server) resolveTargets(clients []string, log zerolog.Logger) []*PeerEntry {
	if len(clients) > 0 && clients[0] == "all" {
		return s.registry.MeasurementClients()
	}

	var out []*PeerEntry
	for _, name := range clients {
		e, ok := s.registry.LookupName(name)
		if !ok {
			log.Warn().Str("client", name).Msg("routing miss: no such client")
			continue
		}
		out = append(out, e)
	}
	return out
}

func (s *Server) handleResult(msg *wire.Message, log zerolog.Logger) {
	sid, ok := s.calls.Take(msg.UUID)
	if !ok {
		log.Warn().Int32("uuid", msg.UUID).Msg("correlation miss: RESULT for unknown/expired call")
		if s.metrics != nil {
			s.metrics.ResultsRouted.WithLabelValues(metrics.OutcomeDroppedNoUUID).Inc()
		}
		return
	}

	origin, ok := s.registry.LookupSid(sid)
	if !ok {
		log.Warn().Int32("sid", sid).Msg("RESULT's originating client disconnected before delivery")
		if s.metrics != nil {
			s.metrics.ResultsRouted.WithLabelValues(metrics.OutcomeDroppedGone).Inc()
		}
		return
	}

	if err := origin.Endpoint.Send(msg); err != nil {
		log.Warn().Err(err).Int32("sid", sid).Msg("failed to deliver RESULT")
		return
	}
	if s.metrics != nil {
		s.metrics.ResultsRouted.WithLabelValues(metrics.OutcomeDelivered).Inc()
	}
}

// CallMapLen exposes the outstanding call count for metrics polling.
func (s *Server) CallMapLen() float64 { return float64(s.calls.Len()) }

// SweepCallMap drops call-map entries untouched for longer than the
// configured TTL. Callers run this on a ticker; it is the only path that
// removes call-map entries.
func (s *Server) SweepCallMap() int {
	return s.calls.Sweep(s.cfg.CallMapTTL, time.Now())
}
