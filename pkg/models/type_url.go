package models

import (
	"fmt"
	"strings"

	"github.com/spineio/spineweb.go/pkg/constants"
)

// TypeURL identifies a message type on the wire and in the parser registry.
// It has the form `<prefix>/<name>`, e.g. `type.googleapis.com/google.protobuf.StringValue`.
type TypeURL string

const (
	GoogleAPIsPrefix = "type.googleapis.com"
	SpinePrefix      = "type.spine.io"
)

// Well-known types
const (
	StringType    TypeURL = GoogleAPIsPrefix + "/google.protobuf.StringValue"
	BytesType     TypeURL = GoogleAPIsPrefix + "/google.protobuf.BytesValue"
	BoolType      TypeURL = GoogleAPIsPrefix + "/google.protobuf.BoolValue"
	Int32Type     TypeURL = GoogleAPIsPrefix + "/google.protobuf.Int32Value"
	UInt32Type    TypeURL = GoogleAPIsPrefix + "/google.protobuf.UInt32Value"
	Int64Type     TypeURL = GoogleAPIsPrefix + "/google.protobuf.Int64Value"
	UInt64Type    TypeURL = GoogleAPIsPrefix + "/google.protobuf.UInt64Value"
	FloatType     TypeURL = GoogleAPIsPrefix + "/google.protobuf.FloatValue"
	DoubleType    TypeURL = GoogleAPIsPrefix + "/google.protobuf.DoubleValue"
	TimestampType TypeURL = GoogleAPIsPrefix + "/google.protobuf.Timestamp"
	DurationType  TypeURL = GoogleAPIsPrefix + "/google.protobuf.Duration"
	FieldMaskType TypeURL = GoogleAPIsPrefix + "/google.protobuf.FieldMask"
	EmptyType     TypeURL = GoogleAPIsPrefix + "/google.protobuf.Empty"
	ValueType     TypeURL = GoogleAPIsPrefix + "/google.protobuf.Value"
	ListValueType TypeURL = GoogleAPIsPrefix + "/google.protobuf.ListValue"
	StructType    TypeURL = GoogleAPIsPrefix + "/google.protobuf.Struct"
	AnyType       TypeURL = GoogleAPIsPrefix + "/google.protobuf.Any"
)

// Prefix returns the part before the first `/`.
func (t TypeURL) Prefix() string {
	prefix, _, _ := strings.Cut(string(t), "/")
	return prefix
}

// Name returns the part after the first `/`.
func (t TypeURL) Name() string {
	_, name, _ := strings.Cut(string(t), "/")
	return name
}

func (t TypeURL) String() string {
	return string(t)
}

// Validate checks that t has a non-empty prefix and name.
func (t TypeURL) Validate() error {
	prefix, name, ok := strings.Cut(string(t), "/")
	if !ok || prefix == "" || name == "" || strings.Contains(name, "/") {
		return fmt.Errorf("%w: %q", constants.ErrInvalidTypeURL, string(t))
	}
	return nil
}
