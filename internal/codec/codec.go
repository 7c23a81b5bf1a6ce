// Package codec encodes request envelopes for the HTTP endpoint.
package codec

// Marshaler encodes request envelopes. Responses are always JSON.
type Marshaler interface {
	Marshal(v any) ([]byte, error)
	// ContentType is the media type of the encoded bytes.
	ContentType() string
}

// ByName returns the codec registered under name: "json" (default) or "cbor".
func ByName(name string) Marshaler {
	switch name {
	case "cbor":
		return CBOR{}
	default:
		return JSON{}
	}
}
