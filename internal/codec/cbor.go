package codec

import "github.com/fxamacker/cbor/v2"

var encMode = mustEncMode()

func mustEncMode() cbor.EncMode {
	em, err := cbor.EncOptions{
		Time:    cbor.TimeRFC3339,
		TimeTag: cbor.EncTagRequired,
	}.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}

// CBOR encodes with fxamacker/cbor.
type CBOR struct{}

func (CBOR) Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

func (CBOR) ContentType() string {
	return "application/cbor"
}
