package sequencer

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/allisontodd/shout/internal/command"
	"github.com/allisontodd/shout/internal/rpc"
	"github.com/allisontodd/shout/internal/store"
	"github.com/allisontodd/shout/internal/store/memstore"
	"github.com/allisontodd/shout/internal/wire"
)

// TestMeasurePathsPersistsBaselineAndActive covers the measure_paths
// baseline-then-active protocol end to end against a fake pair of
// measurement clients driven directly (no real network).
func TestMeasurePathsPersistsBaselineAndActive(t *testing.T) {
	sent := make(chan *wire.Message, 16)
	results := make(chan *wire.Message, 16)
	st := memstore.New()

	d := NewDriver(func(m *wire.Message) error {
		sent <- m
		return nil
	}, results, st, nil, nil, zerolog.Nop())

	go func() {
		for msg := range sent {
			funcName, _ := msg.Attr("funcname")
			for _, client := range msg.Clients {
				reply := &wire.Message{Type: wire.TypeResult, UUID: msg.UUID}
				reply.SetAttr("funcname", funcName)
				reply.SetAttr("clientname", client)
				reply.Measurements = []float64{1.0, 2.0}
				results <- reply
			}
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	before := time.Now().Unix()
	cmd := command.Command{
		Cmd:        command.CmdMeasurePaths,
		ClientList: []string{"radioA", "radioB"},
		Timeout:    1,
		TxGain:     20,
		RxGain:     30,
		FreqStep:   1e4,
		TimeStep:   1.0,
	}

	require.NoError(t, d.measurePaths(ctx, cmd))
	after := time.Now().Unix()

	var keys []store.PathKey
	for ts := before; ts <= after; ts++ {
		found, err := st.ListRun(ts)
		require.NoError(t, err)
		keys = append(keys, found...)
	}
	require.NotEmpty(t, keys)

	for _, key := range keys {
		sample, ok, err := st.Get(key)
		require.NoError(t, err)
		require.True(t, ok)
		require.NotEmpty(t, sample.Baseline)
		require.NotEmpty(t, sample.Active)
	}
}

// TestMeasurePathsForwardsFreqAndRate covers the maintainer-flagged gap:
// freq/rate must reach both the baseline and active-pass RPC args, not just
// gain/freq_step/time_step.
func TestMeasurePathsForwardsFreqAndRate(t *testing.T) {
	sent := make(chan *wire.Message, 16)
	results := make(chan *wire.Message, 16)
	st := memstore.New()

	var sawTuneFreq, sawRate []float64
	d := NewDriver(func(m *wire.Message) error {
		funcName, _ := m.Attr("funcname")
		args := rpc.Registry[funcName].Decode(m)
		sawTuneFreq = append(sawTuneFreq, args.Float("tune_freq", -1))
		sawRate = append(sawRate, args.Float("rate", -1))
		sent <- m
		return nil
	}, results, st, nil, nil, zerolog.Nop())

	go func() {
		for msg := range sent {
			funcName, _ := msg.Attr("funcname")
			for _, client := range msg.Clients {
				reply := &wire.Message{Type: wire.TypeResult, UUID: msg.UUID}
				reply.SetAttr("funcname", funcName)
				reply.SetAttr("clientname", client)
				reply.Measurements = []float64{1.0}
				results <- reply
			}
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	cmd := command.Command{
		Cmd:        command.CmdMeasurePaths,
		ClientList: []string{"radioA", "radioB"},
		Timeout:    1,
		Freq:       915e6,
		Rate:       2e6,
		TxGain:     20,
		RxGain:     30,
		FreqStep:   1e4,
		TimeStep:   1.0,
	}

	require.NoError(t, d.measurePaths(ctx, cmd))

	require.NotEmpty(t, sawTuneFreq)
	for _, v := range sawTuneFreq {
		require.InDelta(t, 915e6, v, 1)
	}
	for _, v := range sawRate {
		require.InDelta(t, 2e6, v, 1)
	}
}

// TestMeasurePathsActiveStartUsesToffAndCeil covers the maintainer-flagged
// timing gap: the active pass must honor the command's own toff (default
// 2s) and a ceil'd current time, not a fixed 1.5s offset.
func TestMeasurePathsActiveStartUsesToffAndCeil(t *testing.T) {
	sent := make(chan *wire.Message, 16)
	results := make(chan *wire.Message, 16)
	st := memstore.New()

	var txStart, rxStart float64
	d := NewDriver(func(m *wire.Message) error {
		funcName, _ := m.Attr("funcname")
		args := rpc.Registry[funcName].Decode(m)
		if when := args.Float("start_time", -1); when >= 0 {
			if funcName == rpc.CallSeqTransmit {
				txStart = when
			} else if funcName == rpc.CallSeqMeasure {
				rxStart = when
			}
		}
		sent <- m
		return nil
	}, results, st, nil, nil, zerolog.Nop())

	go func() {
		for msg := range sent {
			funcName, _ := msg.Attr("funcname")
			for _, client := range msg.Clients {
				reply := &wire.Message{Type: wire.TypeResult, UUID: msg.UUID}
				reply.SetAttr("funcname", funcName)
				reply.SetAttr("clientname", client)
				reply.Measurements = []float64{1.0}
				results <- reply
			}
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	before := math.Ceil(float64(time.Now().Unix()))
	const toff = 5.0
	cmd := command.Command{
		Cmd:        command.CmdMeasurePaths,
		ClientList: []string{"radioA", "radioB"},
		Timeout:    1,
		Toff:       toff,
		FreqStep:   1e4,
		TimeStep:   1.0,
	}
	require.NoError(t, d.measurePaths(ctx, cmd))

	require.GreaterOrEqual(t, rxStart, before+toff)
	require.InDelta(t, rxStart-defaultTxToff, txStart, 0.001)
}

// TestRunOneInterceptsStatusAndQuitLocally covers the maintainer-flagged
// gap: "status"/"quit" script entries must never be routed as RPC CALLs.
func TestRunOneInterceptsStatusAndQuitLocally(t *testing.T) {
	var sent []*wire.Message
	var quitCalled bool
	d := NewDriver(func(m *wire.Message) error {
		sent = append(sent, m)
		return nil
	}, nil, nil, func() bool { return true }, func() { quitCalled = true }, zerolog.Nop())

	require.NoError(t, d.runOne(context.Background(), command.Command{Cmd: rpc.CallStatus}))
	require.Empty(t, sent)

	err := d.runOne(context.Background(), command.Command{Cmd: rpc.CallQuit})
	require.ErrorIs(t, err, errQuit)
	require.True(t, quitCalled)
	require.Len(t, sent, 1)
	require.Equal(t, wire.TypeClose, sent[0].Type)
}
