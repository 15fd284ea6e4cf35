package xjson

import (
	"io"

	gojson "github.com/goccy/go-json"
)

// Single import site for JSON so callers never pick an encoder themselves.

type RawMessage = gojson.RawMessage

func Marshal(v interface{}) ([]byte, error) {
	return gojson.Marshal(v)
}

func Unmarshal(data []byte, v interface{}) error {
	return gojson.Unmarshal(data, v)
}

func NewEncoder(w io.Writer) *gojson.Encoder {
	return gojson.NewEncoder(w)
}

func NewDecoder(r io.Reader) *gojson.Decoder {
	return gojson.NewDecoder(r)
}

// Normalize round-trips v through JSON so that stored and in-memory values
// share the same shape (maps of interface{}, float64 numbers).
func Normalize(v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	data, err := gojson.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out interface{}
	if err := gojson.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
