// Package rpc defines the set of named calls a measurement client or
// interface client will perform for a peer, and the attribute-bag
// encoding/decoding used to carry their arguments over a wire.Message
// (grounded on original_source/rpccalls.py's RPCCall/RPCCALLS table).
package rpc

import (
	"fmt"
	"strconv"

	"github.com/allisontodd/shout/internal/wire"
)

// Args is a named-argument bag decoded from, or to be encoded into, a
// message's Attributes. Each RPC call's handler casts the bag's values via
// the typed accessors below rather than consuming wire.Attr pairs directly.
type Args map[string]string

func (a Args) Float(key string, def float64) float64 {
	if v, ok := a[key]; ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func (a Args) Int(key string, def int) int {
	if v, ok := a[key]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func (a Args) Bool(key string, def bool) bool {
	if v, ok := a[key]; ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func (a Args) String(key, def string) string {
	if v, ok := a[key]; ok {
		return v
	}
	return def
}

// ArgSpec describes one named argument a Call accepts: its default, carried
// as a string the way the wire format stores every attribute value.
type ArgSpec struct {
	Name    string
	Default string
}

// Call is one entry in the Registry: a function name plus the arguments it
// accepts. It only describes shape; CALLS in meascli.py's sense (the actual
// handler dispatch) lives in the peer package, which is the thing that
// actually owns a radio.Driver and a store.Store.
type Call struct {
	Name string
	Args []ArgSpec
}

// Encode builds a CALL message invoking c with the given overrides, filling
// any argument not present in overrides with its default.
func (c Call) Encode(uuid int32, clients []string, overrides Args) *wire.Message {
	m := &wire.Message{
		Type:    wire.TypeCall,
		UUID:    uuid,
		Clients: append([]string(nil), clients...),
	}
	m.SetAttr("funcname", c.Name)
	for _, spec := range c.Args {
		val := spec.Default
		if v, ok := overrides[spec.Name]; ok {
			val = v
		}
		m.SetAttr(spec.Name, val)
	}
	return m
}

// Decode extracts this call's arguments out of msg's attribute bag, applying
// defaults for anything absent.
func (c Call) Decode(msg *wire.Message) Args {
	out := make(Args, len(c.Args))
	for _, spec := range c.Args {
		out[spec.Name] = spec.Default
	}
	for _, a := range msg.Attributes {
		out[a.Key] = a.Val
	}
	return out
}

// Built-in call names (spec.md §4.4, §6.3; original_source rpccalls.py,
// measiface.py, meascon.py, serverconnector.py).
const (
	CallEcho         = "echo"
	CallGetClients   = "getclients"
	CallStatus       = "status"
	CallQuit         = "quit"
	CallTxSine       = "txsine"
	CallRxSamples    = "rxsamples"
	CallMeasurePower = "measure_power"
	CallSeqMeasure   = "seq_measure"
	CallSeqTransmit  = "seq_transmit"
	CallSeqRxSamples = "seq_rxsamples"
)

// Registry is the fixed table of calls known to the system, keyed by name.
var Registry = map[string]Call{
	CallEcho: {Name: CallEcho},

	CallTxSine: {Name: CallTxSine, Args: []ArgSpec{
		{Name: "duration", Default: "0"},
		{Name: "tune_freq", Default: "0"},
		{Name: "gain", Default: "30.0"},
		{Name: "rate", Default: "1e6"},
		{Name: "wfreq", Default: "1e5"},
		{Name: "wampl", Default: "0.3"},
	}},

	CallRxSamples: {Name: CallRxSamples, Args: []ArgSpec{
		{Name: "nsamps", Default: "256"},
		{Name: "tune_freq", Default: "0"},
		{Name: "gain", Default: "30.0"},
		{Name: "rate", Default: "1e6"},
	}},

	CallMeasurePower: {Name: CallMeasurePower, Args: []ArgSpec{
		{Name: "tune_freq", Default: "0"},
		{Name: "gain", Default: "30.0"},
		{Name: "rate", Default: "1e6"},
		{Name: "wfreq", Default: "1e4"},
		{Name: "nsamps", Default: "4096"},
	}},

	// The seq_* calls back the measure_paths sequencer's remote step loop
	// (spec.md §4.4); freq_step/time_step/start_time drive the schedule,
	// the rest mirror their single-shot counterparts.
	CallSeqMeasure: {Name: CallSeqMeasure, Args: []ArgSpec{
		{Name: "tune_freq", Default: "0"},
		{Name: "gain", Default: "30.0"},
		{Name: "rate", Default: "1e6"},
		{Name: "nsamps", Default: "4096"},
		{Name: "freq_step", Default: "1e4"},
		{Name: "time_step", Default: "1.0"},
		{Name: "start_time", Default: "0"},
	}},

	CallSeqTransmit: {Name: CallSeqTransmit, Args: []ArgSpec{
		{Name: "tune_freq", Default: "0"},
		{Name: "gain", Default: "30.0"},
		{Name: "rate", Default: "1e6"},
		{Name: "wampl", Default: "0.3"},
		{Name: "freq_step", Default: "1e4"},
		{Name: "time_step", Default: "1.0"},
		{Name: "start_time", Default: "0"},
	}},

	CallSeqRxSamples: {Name: CallSeqRxSamples, Args: []ArgSpec{
		{Name: "nsamps", Default: "256"},
		{Name: "tune_freq", Default: "0"},
		{Name: "gain", Default: "30.0"},
		{Name: "rate", Default: "1e6"},
		{Name: "freq_step", Default: "1e4"},
		{Name: "time_step", Default: "1.0"},
		{Name: "start_time", Default: "0"},
	}},

	// status/quit are interface-connector-local calls and getclients is
	// answered by the orchestrator itself (original_source
	// measiface.py/ifaceconnector.py/serverconnector.py); they carry no
	// arguments of their own.
	CallStatus:     {Name: CallStatus},
	CallGetClients: {Name: CallGetClients},
	CallQuit:       {Name: CallQuit},
}

// Lookup returns the named call, or an error if it is not in the registry
// (original_source meascli.py's "Unknown function called" path).
func Lookup(name string) (Call, error) {
	c, ok := Registry[name]
	if !ok {
		return Call{}, fmt.Errorf("rpc: unknown function %q", name)
	}
	return c, nil
}

// FuncName extracts the invoked call's name from msg's attribute bag.
func FuncName(msg *wire.Message) (string, bool) {
	return msg.Attr("funcname")
}
