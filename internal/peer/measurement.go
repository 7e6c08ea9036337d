package peer

import (
	"context"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/allisontodd/shout/internal/radio"
	"github.com/allisontodd/shout/internal/rpc"
	"github.com/allisontodd/shout/internal/sigproc"
	"github.com/allisontodd/shout/internal/wire"
)

// xmitSendCount is how many buffer-widths are transmitted per scheduling
// tick in the continuous-carrier loop (original_source meascli.py's
// SEND_SAMPS_COUNT).
const xmitSendCount = 10

// MeasurementClient implements Handler for a measurement client: it runs
// each inbound CALL against a radio.Driver and replies with a RESULT
// carrying whatever the call produced (original_source meascli.py's CALLS
// table).
type MeasurementClient struct {
	driver radio.Driver
	name   string
	log    zerolog.Logger
	sid    int32
}

// NewMeasurementClient builds a MeasurementClient. If name is empty, the
// local hostname is used, matching clientconnector.py's handle_result
// stamping socket.gethostname().
func NewMeasurementClient(driver radio.Driver, name string, log zerolog.Logger) *MeasurementClient {
	if name == "" {
		if h, err := os.Hostname(); err == nil {
			name = h
		}
	}
	return &MeasurementClient{driver: driver, name: name, log: log}
}

func (m *MeasurementClient) Init(sid int32) {
	m.sid = sid
	m.log.Info().Int32("sid", sid).Msg("connected to orchestrator")
}

func (m *MeasurementClient) Handle(ctx context.Context, msg *wire.Message, send func(*wire.Message) error) error {
	if msg.Type != wire.TypeCall {
		return nil
	}

	funcName, ok := rpc.FuncName(msg)
	if !ok {
		return fmt.Errorf("measurement client: CALL with no funcname")
	}
	call, err := rpc.Lookup(funcName)
	if err != nil {
		m.log.Error().Str("func", funcName).Msg("unknown function called")
		return err
	}
	args := call.Decode(msg)

	reply := &wire.Message{Type: wire.TypeResult, UUID: msg.UUID}
	reply.SetAttr("funcname", funcName)
	reply.SetAttr("clientname", m.name)

	if err := m.dispatch(ctx, funcName, args, reply); err != nil {
		m.log.Error().Err(err).Str("func", funcName).Msg("call failed")
		reply.SetAttr("error", err.Error())
	}

	return send(reply)
}

func (m *MeasurementClient) dispatch(ctx context.Context, funcName string, args rpc.Args, reply *wire.Message) error {
	switch funcName {
	case rpc.CallEcho:
		reply.SetAttr("type", "reply")
		return nil
	case rpc.CallTxSine:
		return m.txSine(args, reply)
	case rpc.CallRxSamples:
		return m.rxSamples(args, reply)
	case rpc.CallMeasurePower:
		return m.measurePower(args, reply)
	case rpc.CallSeqMeasure:
		return m.runSequence(ctx, args, reply, m.measurePower)
	case rpc.CallSeqTransmit:
		return m.runSequence(ctx, args, reply, m.txSine)
	case rpc.CallSeqRxSamples:
		return m.runSequence(ctx, args, reply, m.rxSamples)
	default:
		return fmt.Errorf("measurement client: unhandled function %q", funcName)
	}
}

func (m *MeasurementClient) txSine(args rpc.Args, reply *wire.Message) error {
	freq, gain, rate := args.Float("tune_freq", 0), args.Float("gain", 30.0), args.Float("rate", 1e6)
	wfreq, wampl := args.Float("wfreq", 1e5), args.Float("wampl", 0.3)
	duration := args.Int("duration", 0)

	if err := m.driver.Tune(freq, gain, rate); err != nil {
		return fmt.Errorf("tune: %w", err)
	}

	tone := make([]wire.Sample, toneBufferLen(rate, wfreq))
	fillSine(tone, wampl, wfreq, rate)

	deadline := time.Now().Add(time.Duration(duration) * time.Second)
	for time.Now().Before(deadline) {
		for i := 0; i < xmitSendCount; i++ {
			if err := m.driver.SendSamples(tone); err != nil {
				return fmt.Errorf("send samples: %w", err)
			}
		}
	}

	reply.SetAttr("result", "done")
	return nil
}

func (m *MeasurementClient) rxSamples(args rpc.Args, reply *wire.Message) error {
	freq, gain, rate := args.Float("tune_freq", 0), args.Float("gain", 30.0), args.Float("rate", 1e6)
	nsamps := args.Int("nsamps", 256)

	if err := m.driver.Tune(freq, gain, rate); err != nil {
		return fmt.Errorf("tune: %w", err)
	}
	samples, err := m.driver.RecvSamples(nsamps)
	if err != nil {
		return fmt.Errorf("recv samples: %w", err)
	}

	reply.Samples = samples
	reply.SetAttr("rate", fmt.Sprintf("%g", rate))
	return nil
}

func (m *MeasurementClient) measurePower(args rpc.Args, reply *wire.Message) error {
	freq, gain, rate := args.Float("tune_freq", 0), args.Float("gain", 30.0), args.Float("rate", 1e6)
	nsamps := args.Int("nsamps", 4096)

	if err := m.driver.Tune(freq, gain, rate); err != nil {
		return fmt.Errorf("tune: %w", err)
	}
	samples, err := m.driver.RecvSamples(nsamps)
	if err != nil {
		return fmt.Errorf("recv samples: %w", err)
	}

	reply.Measurements = append(reply.Measurements, sigproc.AvgPowerDB(samples))
	return nil
}

// seqStep is a single-shot RPC handler (txSine, rxSamples, or
// measurePower) suitable for driving from runSequence.
type seqStep func(args rpc.Args, reply *wire.Message) error

// runSequence executes step repeatedly at freq_step/time_step intervals
// starting at start_time (or immediately, if unset), implementing the
// remote half of the measure_paths sequencer contract (spec.md §4.4,
// original_source meascli.py's _do_seq). Every step writes into the same
// reply, which is sent once per CALL: measurePower appends one averaged
// power per step to Measurements, while rxSamples replaces Samples, so only
// the last step's sample block is returned.
func (m *MeasurementClient) runSequence(ctx context.Context, args rpc.Args, reply *wire.Message, step seqStep) error {
	freqStep := args.Float("freq_step", 1e4)
	timeStep := args.Float("time_step", 1.0)
	rate := args.Float("rate", 1e6)
	startTime := args.Float("start_time", 0)
	if startTime == 0 {
		startTime = float64(time.Now().Unix())
	}

	steps := int(rate / freqStep / 2)
	if steps < 1 {
		steps = 1
	}

	for i := 1; i < steps; i++ {
		wfreq := float64(i) * freqStep
		stepArgs := make(rpc.Args, len(args))
		for k, v := range args {
			stepArgs[k] = v
		}
		stepArgs["wfreq"] = fmt.Sprintf("%g", wfreq)

		sleepUntil := startTime + float64(i)*timeStep
		if d := time.Until(time.Unix(0, int64(sleepUntil*1e9))); d > 0 {
			select {
			case <-time.After(d):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if err := step(stepArgs, reply); err != nil {
			return fmt.Errorf("sequence step %d: %w", i, err)
		}
	}
	return nil
}

func toneBufferLen(rate, wfreq float64) int {
	const xmitSampsMin = 100000
	if wfreq <= 0 {
		return xmitSampsMin
	}
	n := int(rate / wfreq)
	if n <= 0 {
		n = 1
	}
	mult := (xmitSampsMin + n - 1) / n
	if mult < 1 {
		mult = 1
	}
	return n * mult
}

func fillSine(buf []wire.Sample, wampl, wfreq, rate float64) {
	for i := range buf {
		theta := 2 * math.Pi * wfreq * float64(i) / rate
		buf[i] = wire.Sample{R: wampl * math.Cos(theta), J: wampl * math.Sin(theta)}
	}
}
