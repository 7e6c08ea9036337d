package peer

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/allisontodd/shout/internal/radio"
	"github.com/allisontodd/shout/internal/rpc"
	"github.com/allisontodd/shout/internal/wire"
)

func TestMeasurementClientEcho(t *testing.T) {
	mc := NewMeasurementClient(radio.NewFakeDriver(), "radioA", zerolog.Nop())
	mc.Init(7)

	call := rpc.Registry[rpc.CallEcho].Encode(1, nil, nil)
	var got *wire.Message
	err := mc.Handle(context.Background(), call, func(m *wire.Message) error {
		got = m
		return nil
	})
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, wire.TypeResult, got.Type)

	val, ok := got.Attr("clientname")
	require.True(t, ok)
	require.Equal(t, "radioA", val)
}

func TestMeasurementClientRxSamples(t *testing.T) {
	mc := NewMeasurementClient(radio.NewFakeDriver(), "radioA", zerolog.Nop())
	mc.Init(7)

	call := rpc.Registry[rpc.CallRxSamples].Encode(2, nil, rpc.Args{"nsamps": "128"})
	var got *wire.Message
	err := mc.Handle(context.Background(), call, func(m *wire.Message) error {
		got = m
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got.Samples, 128)
}

func TestMeasurementClientUnknownFunctionErrors(t *testing.T) {
	mc := NewMeasurementClient(radio.NewFakeDriver(), "radioA", zerolog.Nop())
	mc.Init(7)

	call := &wire.Message{Type: wire.TypeCall, UUID: 3}
	call.SetAttr("funcname", "not_a_real_call")

	err := mc.Handle(context.Background(), call, func(m *wire.Message) error { return nil })
	require.Error(t, err)
}
