package codec

import "github.com/goccy/go-json"

// JSON encodes with goccy/go-json.
type JSON struct{}

func (JSON) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (JSON) ContentType() string {
	return "application/json"
}
