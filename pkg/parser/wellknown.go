package parser

import (
	"fmt"
	"strings"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/anypb"
	"google.golang.org/protobuf/types/known/durationpb"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/fieldmaskpb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/timestamppb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/spineio/spineweb.go/pkg/constants"
	"github.com/spineio/spineweb.go/pkg/models"
)

// wellKnown parsers read the proto3 JSON representation of a well-known type.
// Inside an Any, such a representation sits under the "value" key.
type wellKnown struct {
	parse func(raw any) (proto.Message, error)
}

func (w wellKnown) Parse(raw any) (proto.Message, error) {
	return w.parse(raw)
}

func wellKnownParsers(r *Registry) map[models.TypeURL]Parser {
	return map[models.TypeURL]Parser{
		models.BoolType:      protoJSONValue(&wrapperspb.BoolValue{}),
		models.BytesType:     protoJSONValue(&wrapperspb.BytesValue{}),
		models.DoubleType:    protoJSONValue(&wrapperspb.DoubleValue{}),
		models.FloatType:     protoJSONValue(&wrapperspb.FloatValue{}),
		models.Int32Type:     protoJSONValue(&wrapperspb.Int32Value{}),
		models.Int64Type:     protoJSONValue(&wrapperspb.Int64Value{}),
		models.StringType:    protoJSONValue(&wrapperspb.StringValue{}),
		models.UInt32Type:    protoJSONValue(&wrapperspb.UInt32Value{}),
		models.UInt64Type:    protoJSONValue(&wrapperspb.UInt64Value{}),
		models.TimestampType: protoJSONValue(&timestamppb.Timestamp{}),
		models.DurationType:  protoJSONValue(&durationpb.Duration{}),
		models.FieldMaskType: wellKnown{parseFieldMask},
		models.EmptyType:     wellKnown{parseEmpty},
		models.ValueType:     wellKnown{parseValue},
		models.ListValueType: wellKnown{parseListValue},
		models.StructType:    wellKnown{parseStruct},
		models.AnyType:       wellKnown{(&anyParser{registry: r}).Parse},
	}
}

func unexpected(raw any, want string) error {
	return fmt.Errorf("%w: want %s, got %T", constants.ErrUnexpectedInput, want, raw)
}

// protoJSONValue reads the scalar form of a wrapper, Timestamp or Duration by
// handing raw back to protojson, which checks ranges and formats.
func protoJSONValue(prototype proto.Message) wellKnown {
	return wellKnown{func(raw any) (proto.Message, error) {
		if raw == nil {
			return nil, unexpected(raw, "JSON scalar")
		}
		return unmarshalProtoJSON(raw, prototype)
	}}
}

// parseFieldMask splits on commas only; paths are not converted from
// lowerCamelCase.
func parseFieldMask(raw any) (proto.Message, error) {
	s, ok := raw.(string)
	if !ok {
		return nil, unexpected(raw, "comma separated paths")
	}
	if s == "" {
		return &fieldmaskpb.FieldMask{}, nil
	}
	return &fieldmaskpb.FieldMask{Paths: strings.Split(s, ",")}, nil
}

func parseEmpty(any) (proto.Message, error) {
	return &emptypb.Empty{}, nil
}

func parseValue(raw any) (proto.Message, error) {
	v, err := structpb.NewValue(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", constants.ErrUnexpectedInput, err)
	}
	return v, nil
}

func parseListValue(raw any) (proto.Message, error) {
	list, ok := raw.([]any)
	if !ok {
		return nil, unexpected(raw, "array")
	}
	v, err := structpb.NewList(list)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", constants.ErrUnexpectedInput, err)
	}
	return v, nil
}

func parseStruct(raw any) (proto.Message, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, unexpected(raw, "object")
	}
	v, err := structpb.NewStruct(obj)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", constants.ErrUnexpectedInput, err)
	}
	return v, nil
}

// TypeKey is the reserved key naming the packed type of an Any.
const TypeKey = "@type"

// anyParser resolves the packed type from the payload itself, converts the
// payload with that type's parser and packs the result.
type anyParser struct {
	registry *Registry
}

func (p *anyParser) Parse(raw any) (proto.Message, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, unexpected(raw, "object")
	}
	typeURL, ok := obj[TypeKey].(string)
	if !ok {
		return nil, fmt.Errorf("%w: missing %q", constants.ErrUnexpectedInput, TypeKey)
	}

	inner, err := p.registry.ParserFor(models.TypeURL(typeURL))
	if err != nil {
		return nil, err
	}

	var payload any = withoutTypeKey(obj)
	if _, isWellKnown := inner.(wellKnown); isWellKnown {
		payload = obj["value"]
	}

	msg, err := inner.Parse(payload)
	if err != nil {
		return nil, err
	}

	bytes, err := proto.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return &anypb.Any{TypeUrl: typeURL, Value: bytes}, nil
}

func withoutTypeKey(obj map[string]any) map[string]any {
	out := make(map[string]any, len(obj))
	for k, v := range obj {
		if k != TypeKey {
			out[k] = v
		}
	}
	return out
}
