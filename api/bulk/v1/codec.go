// Package bulkv1 is the wire contract of the bulk administration API. Messages are plain
// Go structs carried over connect with a JSON codec.
package bulkv1

import (
	"bytes"
	"encoding/json"
	"fmt"

	"connectrpc.com/connect"
)

// CodecName replaces connect's protobuf JSON codec for these messages.
const CodecName = "json"

// Codec marshals the API messages as JSON.
type Codec struct{}

var _ connect.Codec = Codec{}

func (Codec) Name() string { return CodecName }

func (Codec) Marshal(msg any) ([]byte, error) {
	return json.Marshal(msg)
}

// Unmarshal rejects unknown fields so client and server drift is caught early.
func (Codec) Unmarshal(data []byte, msg any) error {
	if len(data) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(msg); err != nil {
		return fmt.Errorf("unmarshal %T: %w", msg, err)
	}
	return nil
}

// WithCodec is the connect option both handlers and clients must use.
func WithCodec() connect.Option {
	return connect.WithCodec(Codec{})
}
