// Package sequencer executes a command.Script against an
// already-registered interface client: it is the driver side of the
// measure_paths protocol (baseline pass then active pass) plus the other
// CMD_DISPATCH entries an interface driver knows about (grounded on
// original_source/measiface.py's MeasurementsInterface).
package sequencer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"

	"github.com/allisontodd/shout/internal/command"
	"github.com/allisontodd/shout/internal/rpc"
	"github.com/allisontodd/shout/internal/sigproc"
	"github.com/allisontodd/shout/internal/store"
	"github.com/allisontodd/shout/internal/wire"
)

// defaultTxToff is the gap an active-pass transmitter starts ahead of its
// receivers, so the signal is already on air when RX starts sampling
// (original_source measiface.py's TX_TOFF).
const defaultTxToff = 0.5

// defaultToff is the rendezvous lead time applied when a command doesn't
// specify its own (original_source measiface.py's cmd_measpaths default
// toff=2).
const defaultToff = 2.0

// Local readiness results, matching ifaceconnector.py's RES_READY/RES_NOTREADY.
const (
	resultReady    = "ready"
	resultNotReady = "notready"
)

// errQuit unwinds Run cleanly once a local quit command has been handled.
var errQuit = errors.New("sequencer: quit requested")

// Sender delivers a message toward the orchestrator; Connector.dispatchLoop's
// send closure satisfies it.
type Sender func(*wire.Message) error

// Driver runs a command.Script against a live interface-client connection.
type Driver struct {
	send    Sender
	results <-chan *wire.Message
	store   store.Store
	log     zerolog.Logger

	// ready reports whether the interface connector has completed its INIT
	// handshake; requestQuit is notified when a quit command runs. Both are
	// satisfied by peer.InterfaceClient.
	ready       func() bool
	requestQuit func()

	startTime float64
	lastRun   []*wire.Message
}

// NewDriver builds a sequencer Driver. results should be the channel a
// peer.InterfaceClient delivers inbound RESULT messages on; ready and
// requestQuit back the local "status"/"quit" commands
// (peer.InterfaceClient.Ready/RequestQuit).
func NewDriver(send Sender, results <-chan *wire.Message, st store.Store, ready func() bool, requestQuit func(), log zerolog.Logger) *Driver {
	return &Driver{send: send, results: results, store: st, ready: ready, requestQuit: requestQuit, log: log}
}

// Run executes every command in script in order, stopping early (without
// error) if a "quit" command is reached.
func (d *Driver) Run(ctx context.Context, script command.Script) error {
	for i, c := range script {
		if c.Sync {
			if c.Toff > 0 {
				d.startTime = float64(time.Now().Unix()) + c.Toff
			} else if d.startTime == 0 {
				d.startTime = float64(time.Now().Unix()) + 2
			}
			c.StartTime = d.startTime
		} else {
			d.startTime = 0
		}

		if err := d.runOne(ctx, c); err != nil {
			if errors.Is(err, errQuit) {
				return nil
			}
			return fmt.Errorf("sequencer: command %d (%s): %w", i, c.Cmd, err)
		}
	}
	return nil
}

func (d *Driver) runOne(ctx context.Context, c command.Command) error {
	switch c.Cmd {
	case command.CmdPause:
		return d.pause(ctx, c)
	case command.CmdWaitResults:
		return d.waitResults(ctx, c)
	case command.CmdPlotPSD:
		return d.plotPSD(c, sigproc.HammingPSD)
	case command.CmdPrintResults:
		return d.printResults(c)
	case command.CmdMeasurePaths:
		return d.measurePaths(ctx, c)
	case rpc.CallStatus:
		return d.status()
	case rpc.CallQuit:
		return d.quit()
	default:
		return d.rpcCall(c)
	}
}

// status and quit are the interface connector's own local calls
// (original_source ifaceconnector.py's CALLS table): spec.md §4.3 requires
// they be handled locally rather than routed through the orchestrator, so
// the sequencer intercepts them here before a script entry ever reaches
// rpcCall.
func (d *Driver) status() error {
	result := resultNotReady
	if d.ready != nil && d.ready() {
		result = resultReady
	}
	d.log.Info().Str("status", result).Msg("status")
	return nil
}

// quit performs the clean-shutdown sequence ifaceconnector.py's CALL_QUIT
// triggers: send CLOSE to the orchestrator so it can unregister this
// connection immediately, notify requestQuit, and return errQuit so Run
// stops; shutting the connector down is left to Run's caller.
func (d *Driver) quit() error {
	if err := d.send(&wire.Message{Type: wire.TypeClose}); err != nil {
		d.log.Warn().Err(err).Msg("failed to send CLOSE on quit")
	}
	if d.requestQuit != nil {
		d.requestQuit()
	}
	return errQuit
}

func (d *Driver) pause(ctx context.Context, c command.Command) error {
	select {
	case <-time.After(time.Duration(c.Duration) * time.Second):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Driver) rpcCall(c command.Command) error {
	call, err := rpc.Lookup(c.Cmd)
	if err != nil {
		return err
	}
	msg := call.Encode(int32(rand.Uint32()>>1), c.ClientList, c.Args)
	msg.PeerType = wire.PeerIfaceClient
	return d.send(msg)
}

// waitResults collects one RESULT per client named in client_list until
// every one has reported or timeout elapses. It does not expand "all": an
// empty client_list returns at once, and ["all"] waits for a client literally
// named "all" until the timeout.
func (d *Driver) waitResults(ctx context.Context, c command.Command) error {
	pending := make(map[string]bool, len(c.ClientList))
	for _, name := range c.ClientList {
		pending[name] = true
	}

	d.lastRun = nil
	deadline := time.NewTimer(time.Duration(c.Timeout * float64(time.Second)))
	defer deadline.Stop()

	for len(pending) > 0 {
		select {
		case res := <-d.results:
			name, _ := res.Attr("clientname")
			if pending[name] {
				delete(pending, name)
				d.lastRun = append(d.lastRun, res)
			}
		case <-deadline.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (d *Driver) plotPSD(c command.Command, psd sigproc.PSDFunc) error {
	wanted := clientSet(c.ClientList)
	for _, res := range d.lastRun {
		name, _ := res.Attr("clientname")
		if len(res.Samples) == 0 || (len(wanted) > 0 && !wanted[name]) {
			continue
		}
		_ = psd(res.Samples)
		d.log.Info().Str("client", name).Int("nsamples", len(res.Samples)).Msg("computed PSD")
	}
	return nil
}

func (d *Driver) printResults(c command.Command) error {
	wanted := clientSet(c.ClientList)
	for _, res := range d.lastRun {
		name, _ := res.Attr("clientname")
		if len(wanted) > 0 && !wanted[name] {
			continue
		}
		d.log.Info().Str("client", name).Interface("measurements", res.Measurements).Msg("result")
	}
	return nil
}

func clientSet(names []string) map[string]bool {
	if len(names) == 0 || (len(names) == 1 && names[0] == "all") {
		return nil
	}
	out := make(map[string]bool, len(names))
	for _, n := range names {
		out[n] = true
	}
	return out
}

// measurePaths runs the two-pass path-measurement protocol: for every
// transmitting client, first a no-carrier baseline across every other
// client, then a synchronized active pass with the transmitter actually
// transmitting, storing both rows for each (tx, rx) pair in d.store
// (original_source measiface.py's cmd_measpaths).
func (d *Driver) measurePaths(ctx context.Context, c command.Command) error {
	runTS := time.Now().Unix()
	clients := c.ClientList
	if len(clients) == 0 || clients[0] == "all" {
		return fmt.Errorf("sequencer: measure_paths requires an already-resolved client_list")
	}

	toff := c.Toff
	if toff <= 0 {
		toff = defaultToff
	}

	for _, tx := range clients {
		rxClients := without(clients, tx)

		rxArgs := rpc.Args{
			"tune_freq": fmt.Sprintf("%g", c.Freq),
			"rate":      fmt.Sprintf("%g", c.Rate),
			"gain":      fmt.Sprintf("%g", c.RxGain),
			"freq_step": fmt.Sprintf("%g", c.FreqStep),
			"time_step": fmt.Sprintf("%g", c.TimeStep),
		}
		startTS := time.Now().Unix()

		// Baseline pass: RX only, transmitter silent, no shared start_time.
		rxMsg := rpc.Registry[rpc.CallSeqMeasure].Encode(int32(rand.Uint32()>>1), rxClients, rxArgs)
		if err := d.send(rxMsg); err != nil {
			return err
		}
		if err := d.waitResults(ctx, command.Command{ClientList: rxClients, Timeout: c.Timeout}); err != nil {
			return err
		}
		for _, res := range d.lastRun {
			rx, _ := res.Attr("clientname")
			key := store.PathKey{RunTS: runTS, TX: tx, RX: rx, StartTS: startTS}
			if err := d.store.PutBaseline(key, res.Measurements); err != nil {
				return err
			}
		}

		// Active pass: synchronized start so TX and RX run concurrently,
		// TX leading by defaultTxToff (original_source measiface.py:218,
		// rxcmd.start_time = ceil(time.time()) + toff).
		active := math.Ceil(float64(time.Now().UnixNano())/1e9) + toff
		rxArgs["start_time"] = fmt.Sprintf("%g", active)
		txArgs := rpc.Args{
			"tune_freq":  fmt.Sprintf("%g", c.Freq),
			"rate":       fmt.Sprintf("%g", c.Rate),
			"gain":       fmt.Sprintf("%g", c.TxGain),
			"freq_step":  fmt.Sprintf("%g", c.FreqStep),
			"time_step":  fmt.Sprintf("%g", c.TimeStep),
			"start_time": fmt.Sprintf("%g", active-defaultTxToff),
		}
		txMsg := rpc.Registry[rpc.CallSeqTransmit].Encode(int32(rand.Uint32()>>1), []string{tx}, txArgs)
		rxMsg = rpc.Registry[rpc.CallSeqMeasure].Encode(int32(rand.Uint32()>>1), rxClients, rxArgs)
		if err := d.send(txMsg); err != nil {
			return err
		}
		if err := d.send(rxMsg); err != nil {
			return err
		}
		if err := d.waitResults(ctx, command.Command{ClientList: append(append([]string{}, rxClients...), tx), Timeout: c.Timeout}); err != nil {
			return err
		}
		for _, res := range d.lastRun {
			rx, _ := res.Attr("clientname")
			if rx == tx || len(res.Measurements) == 0 {
				continue
			}
			key := store.PathKey{RunTS: runTS, TX: tx, RX: rx, StartTS: startTS}
			if err := d.store.PutActive(key, res.Measurements); err != nil {
				return err
			}
		}
	}
	return nil
}

func without(all []string, skip string) []string {
	out := make([]string, 0, len(all))
	for _, c := range all {
		if c != skip {
			out = append(out, c)
		}
	}
	return out
}
