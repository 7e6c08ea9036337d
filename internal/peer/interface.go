package peer

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/allisontodd/shout/internal/rpc"
	"github.com/allisontodd/shout/internal/wire"
)

// InterfaceClient implements Handler for an interface client: RESULTs
// destined for a running command script are handed to Results; status and
// quit are this connector's own local calls and are never routed through
// the orchestrator as a CALL (original_source ifaceconnector.py's CALLS
// table answers them without a socket round trip), so they are exposed as
// Ready/RequestQuit for a driver (package sequencer) to call directly.
type InterfaceClient struct {
	log     zerolog.Logger
	sid     int32
	results chan *wire.Message
}

// NewInterfaceClient builds an InterfaceClient. Results delivers every
// RESULT the orchestrator routes back to this client, for the sequencer to
// consume.
func NewInterfaceClient(log zerolog.Logger) *InterfaceClient {
	return &InterfaceClient{
		log:     log,
		results: make(chan *wire.Message, 64),
	}
}

func (i *InterfaceClient) Init(sid int32) {
	i.sid = sid
	i.log.Info().Int32("sid", sid).Msg("connected to orchestrator")
}

// Results returns the channel the sequencer should read RESULT messages
// from.
func (i *InterfaceClient) Results() <-chan *wire.Message { return i.results }

// Ready reports whether INIT has completed (original_source
// ifaceconnector.py's status call: RES_READY iff self.sid is set).
func (i *InterfaceClient) Ready() bool { return i.sid != 0 }

// RequestQuit logs the clean-shutdown request; CLOSE and process exit are
// driven by the sequencer itself (package sequencer's quit command), this
// just confirms the connector observed it.
func (i *InterfaceClient) RequestQuit() {
	i.log.Info().Msg("quit requested")
}

func (i *InterfaceClient) Handle(ctx context.Context, msg *wire.Message, send func(*wire.Message) error) error {
	switch msg.Type {
	case wire.TypeResult:
		select {
		case i.results <- msg:
		default:
			i.log.Warn().Msg("result channel full, dropping RESULT")
		}
		return nil

	case wire.TypeCall:
		// Nothing in this protocol originates a CALL toward an interface
		// client: status/quit are this connector's own local commands
		// (see Ready/RequestQuit), handled by the sequencer without ever
		// reaching the socket.
		funcName, _ := rpc.FuncName(msg)
		i.log.Warn().Str("func", funcName).Msg("unexpected CALL received by interface client")
		return nil

	default:
		return nil
	}
}
