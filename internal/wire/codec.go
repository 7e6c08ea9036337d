package wire

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers, matching the field ordering of the protobuf schema the
// original prototype's measurements_pb2 module generated from.
const (
	fieldSid          protowire.Number = 1
	fieldUUID         protowire.Number = 2
	fieldType         protowire.Number = 3
	fieldPeerType     protowire.Number = 4
	fieldStartTime    protowire.Number = 5
	fieldClients      protowire.Number = 6
	fieldSamples      protowire.Number = 7
	fieldMeasurements protowire.Number = 8
	fieldAttributes   protowire.Number = 9
)

const (
	sampleFieldR protowire.Number = 1
	sampleFieldJ protowire.Number = 2
)

const (
	attrFieldKey protowire.Number = 1
	attrFieldVal protowire.Number = 2
)

// Marshal encodes m using a tagged binary format equivalent to the
// SessionMessage protobuf schema (spec.md §4.1): each field is written with
// its protobuf field number and wire type, in field-number order.
func Marshal(m *Message) []byte {
	var b []byte

	if m.Sid != 0 {
		b = protowire.AppendTag(b, fieldSid, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(uint32(m.Sid)))
	}
	if m.UUID != 0 {
		b = protowire.AppendTag(b, fieldUUID, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(uint32(m.UUID)))
	}
	if m.Type != TypeUnknown {
		b = protowire.AppendTag(b, fieldType, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(m.Type))
	}
	if m.PeerType != PeerUnknown {
		b = protowire.AppendTag(b, fieldPeerType, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(m.PeerType))
	}
	if m.StartTime != 0 {
		b = protowire.AppendTag(b, fieldStartTime, protowire.Fixed64Type)
		b = protowire.AppendFixed64(b, math.Float64bits(m.StartTime))
	}
	for _, c := range m.Clients {
		b = protowire.AppendTag(b, fieldClients, protowire.BytesType)
		b = protowire.AppendString(b, c)
	}
	for _, s := range m.Samples {
		b = protowire.AppendTag(b, fieldSamples, protowire.BytesType)
		b = protowire.AppendBytes(b, marshalSample(s))
	}
	if len(m.Measurements) > 0 {
		b = protowire.AppendTag(b, fieldMeasurements, protowire.BytesType)
		b = protowire.AppendBytes(b, marshalPackedDoubles(m.Measurements))
	}
	for _, a := range m.Attributes {
		b = protowire.AppendTag(b, fieldAttributes, protowire.BytesType)
		b = protowire.AppendBytes(b, marshalAttr(a))
	}
	return b
}

func marshalSample(s Sample) []byte {
	var b []byte
	b = protowire.AppendTag(b, sampleFieldR, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, math.Float64bits(s.R))
	b = protowire.AppendTag(b, sampleFieldJ, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, math.Float64bits(s.J))
	return b
}

func marshalAttr(a Attr) []byte {
	var b []byte
	b = protowire.AppendTag(b, attrFieldKey, protowire.BytesType)
	b = protowire.AppendString(b, a.Key)
	b = protowire.AppendTag(b, attrFieldVal, protowire.BytesType)
	b = protowire.AppendString(b, a.Val)
	return b
}

func marshalPackedDoubles(vs []float64) []byte {
	var b []byte
	for _, v := range vs {
		b = protowire.AppendFixed64(b, math.Float64bits(v))
	}
	return b
}

// Unmarshal decodes b into a Message. It returns an error on truncated or
// malformed input; unknown field numbers are skipped for forward
// compatibility.
func Unmarshal(b []byte) (*Message, error) {
	m := &Message{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("wire: consume tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch num {
		case fieldSid:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("wire: sid: %w", protowire.ParseError(n))
			}
			m.Sid = int32(uint32(v))
			b = b[n:]
		case fieldUUID:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("wire: uuid: %w", protowire.ParseError(n))
			}
			m.UUID = int32(uint32(v))
			b = b[n:]
		case fieldType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("wire: type: %w", protowire.ParseError(n))
			}
			m.Type = Type(v)
			b = b[n:]
		case fieldPeerType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("wire: peertype: %w", protowire.ParseError(n))
			}
			m.PeerType = PeerType(v)
			b = b[n:]
		case fieldStartTime:
			v, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return nil, fmt.Errorf("wire: start_time: %w", protowire.ParseError(n))
			}
			m.StartTime = math.Float64frombits(v)
			b = b[n:]
		case fieldClients:
			if typ != protowire.BytesType {
				return nil, fmt.Errorf("wire: clients: unexpected wire type %v", typ)
			}
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return nil, fmt.Errorf("wire: clients: %w", protowire.ParseError(n))
			}
			m.Clients = append(m.Clients, v)
			b = b[n:]
		case fieldSamples:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("wire: samples: %w", protowire.ParseError(n))
			}
			s, err := unmarshalSample(v)
			if err != nil {
				return nil, fmt.Errorf("wire: samples: %w", err)
			}
			m.Samples = append(m.Samples, s)
			b = b[n:]
		case fieldMeasurements:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("wire: measurements: %w", protowire.ParseError(n))
			}
			vals, err := unmarshalPackedDoubles(v)
			if err != nil {
				return nil, fmt.Errorf("wire: measurements: %w", err)
			}
			m.Measurements = append(m.Measurements, vals...)
			b = b[n:]
		case fieldAttributes:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("wire: attributes: %w", protowire.ParseError(n))
			}
			a, err := unmarshalAttr(v)
			if err != nil {
				return nil, fmt.Errorf("wire: attributes: %w", err)
			}
			m.Attributes = append(m.Attributes, a)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("wire: skip field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return m, nil
}

func unmarshalSample(b []byte) (Sample, error) {
	var s Sample
	for len(b) > 0 {
		num, _, n := protowire.ConsumeTag(b)
		if n < 0 {
			return s, fmt.Errorf("consume tag: %w", protowire.ParseError(n))
		}
		b = b[n:]
		switch num {
		case sampleFieldR:
			v, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return s, fmt.Errorf("r: %w", protowire.ParseError(n))
			}
			s.R = math.Float64frombits(v)
			b = b[n:]
		case sampleFieldJ:
			v, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return s, fmt.Errorf("j: %w", protowire.ParseError(n))
			}
			s.J = math.Float64frombits(v)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, protowire.Fixed64Type, b)
			if n < 0 {
				return s, fmt.Errorf("skip field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return s, nil
}

func unmarshalAttr(b []byte) (Attr, error) {
	var a Attr
	for len(b) > 0 {
		num, _, n := protowire.ConsumeTag(b)
		if n < 0 {
			return a, fmt.Errorf("consume tag: %w", protowire.ParseError(n))
		}
		b = b[n:]
		switch num {
		case attrFieldKey:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return a, fmt.Errorf("key: %w", protowire.ParseError(n))
			}
			a.Key = v
			b = b[n:]
		case attrFieldVal:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return a, fmt.Errorf("val: %w", protowire.ParseError(n))
			}
			a.Val = v
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, protowire.BytesType, b)
			if n < 0 {
				return a, fmt.Errorf("skip field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return a, nil
}

func unmarshalPackedDoubles(b []byte) ([]float64, error) {
	if len(b)%8 != 0 {
		return nil, fmt.Errorf("packed double field length %d not a multiple of 8", len(b))
	}
	out := make([]float64, 0, len(b)/8)
	for len(b) > 0 {
		v, n := protowire.ConsumeFixed64(b)
		if n < 0 {
			return nil, fmt.Errorf("%w", protowire.ParseError(n))
		}
		out = append(out, math.Float64frombits(v))
		b = b[n:]
	}
	return out, nil
}
