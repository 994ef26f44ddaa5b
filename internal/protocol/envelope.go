// Package protocol defines the envelope exchanged with the realtime backend
// and the typed payloads carried in its data field.
package protocol

import (
	"encoding/json"
	"errors"

	"github.com/bytedance/sonic"
	werrors "github.com/yanun0323/errors"
)

var (
	ErrMalformedFrame = errors.New("protocol: malformed frame")
	ErrMissingType    = errors.New("protocol: missing envelope type")
)

var api = sonic.ConfigStd

// Envelope is the unit of wire communication in both directions.
// Data holds the raw JSON object and is never mutated after decoding.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Decode parses a raw frame into an Envelope.
func Decode(raw []byte) (Envelope, error) {
	var env Envelope
	if err := api.Unmarshal(raw, &env); err != nil {
		return Envelope{}, werrors.Wrap(ErrMalformedFrame, err.Error())
	}
	if env.Type == "" {
		return Envelope{}, ErrMissingType
	}
	return env, nil
}

// Encode builds the wire form of an envelope with the given data.
// A nil data encodes as an empty object.
func Encode(msgType string, data any) ([]byte, error) {
	if msgType == "" {
		return nil, ErrMissingType
	}
	raw, err := Marshal(data)
	if err != nil {
		return nil, werrors.Wrap(err, "encode "+msgType)
	}
	return api.Marshal(Envelope{Type: msgType, Data: raw})
}

// New builds an Envelope value, marshaling data.
func New(msgType string, data any) (Envelope, error) {
	if msgType == "" {
		return Envelope{}, ErrMissingType
	}
	raw, err := Marshal(data)
	if err != nil {
		return Envelope{}, werrors.Wrap(err, "encode "+msgType)
	}
	return Envelope{Type: msgType, Data: raw}, nil
}

// Marshal encodes data into a JSON object, mapping nil to {}.
func Marshal(data any) (json.RawMessage, error) {
	switch v := data.(type) {
	case nil:
		return json.RawMessage("{}"), nil
	case json.RawMessage:
		if len(v) == 0 {
			return json.RawMessage("{}"), nil
		}
		return v, nil
	}
	raw, err := api.Marshal(data)
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// Bind decodes the envelope data into v. Missing data leaves v untouched.
func (e Envelope) Bind(v any) error {
	if len(e.Data) == 0 || string(e.Data) == "null" {
		return nil
	}
	if err := api.Unmarshal(e.Data, v); err != nil {
		return werrors.Wrap(err, "bind "+e.Type)
	}
	return nil
}
