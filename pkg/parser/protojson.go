package parser

import (
	"fmt"

	"github.com/goccy/go-json"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	"github.com/spineio/spineweb.go/pkg/constants"
)

var unmarshalOptions = protojson.UnmarshalOptions{DiscardUnknown: true}

// ProtoJSONParser parses raw objects into new instances of prototype's message
// type using the proto3 JSON mapping. The reserved "@type" key is ignored.
func ProtoJSONParser(prototype proto.Message) Parser {
	return ParserFunc(func(raw any) (proto.Message, error) {
		obj, ok := raw.(map[string]any)
		if !ok {
			return nil, unexpected(raw, "object")
		}

		return unmarshalProtoJSON(withoutTypeKey(obj), prototype)
	})
}

// unmarshalProtoJSON re-encodes raw and decodes it into a new instance of
// prototype's message type.
func unmarshalProtoJSON(raw any, prototype proto.Message) (proto.Message, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", constants.ErrUnexpectedInput, err)
	}

	msg := prototype.ProtoReflect().New().Interface()
	if err := unmarshalOptions.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("%w: %v", constants.ErrUnexpectedInput, err)
	}
	return msg, nil
}
