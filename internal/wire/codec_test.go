package wire_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/allisontodd/shout/internal/wire"
)

func sampleMessage() *wire.Message {
	return &wire.Message{
		Sid:       12345,
		UUID:      987654321,
		Type:      wire.TypeCall,
		PeerType:  wire.PeerIfaceClient,
		StartTime: 1713999999.5,
		Clients:   []string{"all", "radioA"},
		Samples: []wire.Sample{
			{R: 0.5, J: -0.25},
			{R: 1, J: 0},
		},
		Measurements: []float64{1.1, 2.2, 3.3},
		Attributes: []wire.Attr{
			{Key: "funcname", Val: "seq_measure"},
			{Key: "rate", Val: "1000000"},
		},
	}
}

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	in := sampleMessage()
	out, err := wire.Unmarshal(wire.Marshal(in))
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestMarshalUnmarshalEmptyMessage(t *testing.T) {
	in := &wire.Message{}
	out, err := wire.Unmarshal(wire.Marshal(in))
	require.NoError(t, err)
	require.Equal(t, in.Type, out.Type)
	require.Empty(t, out.Clients)
	require.Empty(t, out.Attributes)
}

// TestFramingRecoversSequence is property P1: for any sequence of
// SessionMessages serialized and concatenated, a reader recovers the
// original sequence byte-for-byte, including messages larger than one
// read-buffer.
func TestFramingRecoversSequence(t *testing.T) {
	msgs := []*wire.Message{
		sampleMessage(),
		{Type: wire.TypeHB},
		{Type: wire.TypeResult, Measurements: make([]float64, 5000)}, // larger than a typical read buffer
		{Type: wire.TypeClose},
	}

	var buf bytes.Buffer
	for _, m := range msgs {
		require.NoError(t, wire.WriteFrame(&buf, m))
	}

	r := &slowReader{r: bytes.NewReader(buf.Bytes()), chunk: 3}
	for i, want := range msgs {
		got, err := wire.ReadFrame(r)
		require.NoErrorf(t, err, "message %d", i)
		require.Equalf(t, want, got, "message %d", i)
	}

	_, err := wire.ReadFrame(r)
	require.ErrorIs(t, err, wire.ErrConnectionClosed)
}

func TestReadFramePrematureEOF(t *testing.T) {
	full := wire.Marshal(sampleMessage())
	var buf bytes.Buffer
	// length prefix claims more bytes than are actually present.
	lenPrefix := make([]byte, 4)
	lenPrefix[3] = byte(len(full) + 10)
	buf.Write(lenPrefix)
	buf.Write(full)

	_, err := wire.ReadFrame(&buf)
	require.ErrorIs(t, err, wire.ErrConnectionClosed)
}

// slowReader returns at most chunk bytes per Read call, to exercise the
// "loop until fully satisfied" read contract.
type slowReader struct {
	r     io.Reader
	chunk int
}

func (s *slowReader) Read(p []byte) (int, error) {
	if len(p) > s.chunk {
		p = p[:s.chunk]
	}
	return s.r.Read(p)
}
