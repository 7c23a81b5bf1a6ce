package models

import (
	"fmt"
	"math"

	"github.com/fxamacker/cbor/v2"
	"github.com/goccy/go-json"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/anypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// TypedValue pairs a message with the type URL it is known by.
//
// Every value that crosses the client boundary (command messages, entity ids,
// filter operands) is a TypedValue, so the receiving side never has to guess.
type TypedValue struct {
	Message proto.Message
	Type    TypeURL
}

func String(v string) TypedValue {
	return TypedValue{Message: wrapperspb.String(v), Type: StringType}
}

func Bool(v bool) TypedValue {
	return TypedValue{Message: wrapperspb.Bool(v), Type: BoolType}
}

// Int32 floors v before narrowing it. Values outside the int32 range
// saturate and NaN becomes zero.
func Int32(v float64) TypedValue {
	return TypedValue{Message: wrapperspb.Int32(int32(floorIn(v, math.MinInt32, math.MaxInt32))), Type: Int32Type}
}

// UInt32 narrows v like Int32, to the uint32 range.
func UInt32(v float64) TypedValue {
	return TypedValue{Message: wrapperspb.UInt32(uint32(floorIn(v, 0, math.MaxUint32))), Type: UInt32Type}
}

func floorIn(v, lo, hi float64) float64 {
	switch f := math.Floor(v); {
	case math.IsNaN(f):
		return 0
	case f < lo:
		return lo
	case f > hi:
		return hi
	default:
		return f
	}
}

func Int64(v int64) TypedValue {
	return TypedValue{Message: wrapperspb.Int64(v), Type: Int64Type}
}

func UInt64(v uint64) TypedValue {
	return TypedValue{Message: wrapperspb.UInt64(v), Type: UInt64Type}
}

func Float(v float32) TypedValue {
	return TypedValue{Message: wrapperspb.Float(v), Type: FloatType}
}

func Double(v float64) TypedValue {
	return TypedValue{Message: wrapperspb.Double(v), Type: DoubleType}
}

// Pack serializes the message into an Any carrying the value's own type URL.
func (v TypedValue) Pack() (*anypb.Any, error) {
	if err := v.Type.Validate(); err != nil {
		return nil, err
	}
	if v.Message == nil {
		return nil, fmt.Errorf("cannot pack %s: nil message", v.Type)
	}

	bytes, err := proto.Marshal(v.Message)
	if err != nil {
		return nil, fmt.Errorf("cannot pack %s: %w", v.Type, err)
	}
	return &anypb.Any{TypeUrl: string(v.Type), Value: bytes}, nil
}

// Unpack decodes the bytes of packed into dst.
// The type URL of packed is not checked against dst.
func Unpack(packed *anypb.Any, dst proto.Message) error {
	return proto.Unmarshal(packed.GetValue(), dst)
}

// Equal reports whether both values carry the same type URL and equal messages.
func (v TypedValue) Equal(other TypedValue) bool {
	return v.Type == other.Type && proto.Equal(v.Message, other.Message)
}

// wireAny is the representation of a TypedValue inside request envelopes.
type wireAny struct {
	TypeURL string `json:"typeUrl" cbor:"typeUrl"`
	Value   []byte `json:"value" cbor:"value"`
}

func (v TypedValue) wire() (wireAny, error) {
	packed, err := v.Pack()
	if err != nil {
		return wireAny{}, err
	}
	return wireAny{TypeURL: packed.GetTypeUrl(), Value: packed.GetValue()}, nil
}

func (v TypedValue) MarshalJSON() ([]byte, error) {
	w, err := v.wire()
	if err != nil {
		return nil, err
	}
	return json.Marshal(w)
}

func (v TypedValue) MarshalCBOR() ([]byte, error) {
	w, err := v.wire()
	if err != nil {
		return nil, err
	}
	return cbor.Marshal(w)
}
