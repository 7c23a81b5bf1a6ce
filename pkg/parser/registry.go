// Package parser converts raw push-store values (decoded JSON) into typed
// protobuf messages, dispatching on the type URL of the expected message.
//
// A process-wide registry, returned by [Default], is populated with parsers for
// the protobuf well-known types during package initialization. Applications
// register parsers for their own message types with [Register], usually via
// [ProtoJSONParser].
package parser

import (
	"fmt"
	"reflect"
	"sync"

	"google.golang.org/protobuf/proto"

	"github.com/spineio/spineweb.go/pkg/constants"
	"github.com/spineio/spineweb.go/pkg/models"
)

// Parser converts a raw value into a message.
//
// The raw value is what a JSON decoder produces: map[string]any, []any,
// string, float64, bool or nil.
type Parser interface {
	Parse(raw any) (proto.Message, error)
}

// ParserFunc adapts a function to the Parser interface.
type ParserFunc func(raw any) (proto.Message, error)

func (f ParserFunc) Parse(raw any) (proto.Message, error) {
	return f(raw)
}

// Registry maps type URLs to parsers.
// Registration is first-write-wins.
type Registry struct {
	mu      sync.RWMutex
	parsers map[models.TypeURL]Parser
}

var defaultRegistry = NewRegistry()

// Default returns the process-wide registry.
func Default() *Registry {
	return defaultRegistry
}

// NewRegistry returns a registry holding only the well-known parsers.
func NewRegistry() *Registry {
	r := &Registry{parsers: make(map[models.TypeURL]Parser)}
	for typeURL, p := range wellKnownParsers(r) {
		r.parsers[typeURL] = p
	}
	return r
}

// Register adds p for typeURL unless a parser for typeURL is already registered,
// in which case the call does nothing.
func (r *Registry) Register(p Parser, typeURL models.TypeURL) error {
	if nilOrTypedNil(p) {
		return fmt.Errorf("%w: nil parser for %s", constants.ErrInvalidParser, typeURL)
	}
	if err := typeURL.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.parsers[typeURL]; !exists {
		r.parsers[typeURL] = p
	}
	return nil
}

// ParserFor returns the parser registered for typeURL.
func (r *Registry) ParserFor(typeURL models.TypeURL) (Parser, error) {
	r.mu.RLock()
	p, ok := r.parsers[typeURL]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", constants.ErrParserNotFound, typeURL)
	}
	return p, nil
}

// Convert parses raw with the parser registered for typeURL.
func (r *Registry) Convert(typeURL models.TypeURL, raw any) (proto.Message, error) {
	p, err := r.ParserFor(typeURL)
	if err != nil {
		return nil, err
	}

	msg, err := p.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("cannot convert value to %s: %w", typeURL, err)
	}
	return msg, nil
}

// Register adds p to the default registry.
func Register(p Parser, typeURL models.TypeURL) error {
	return defaultRegistry.Register(p, typeURL)
}

// ParserFor looks typeURL up in the default registry.
func ParserFor(typeURL models.TypeURL) (Parser, error) {
	return defaultRegistry.ParserFor(typeURL)
}

func nilOrTypedNil(val any) bool {
	if val == nil {
		return true
	}

	v := reflect.ValueOf(val)
	switch v.Kind() {
	case reflect.Chan, reflect.Func, reflect.Map, reflect.Pointer,
		reflect.UnsafePointer, reflect.Interface, reflect.Slice:
		return v.IsNil()
	}
	return false
}
