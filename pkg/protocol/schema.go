package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

var ErrMalformed = errors.New("malformed client message")

const clientSchema = `{
  "type": "object",
  "required": ["type"],
  "properties": {
    "type": {"enum": ["apply_color", "sync"]}
  },
  "allOf": [
    {
      "if": {"properties": {"type": {"const": "apply_color"}}},
      "then": {
        "required": ["data"],
        "properties": {
          "data": {
            "type": "object",
            "required": ["x", "y", "color"],
            "properties": {
              "x": {"type": "integer"},
              "y": {"type": "integer"},
              "color": {"type": "string", "maxLength": 32}
            }
          }
        }
      }
    }
  ]
}`

var clientMessageSchema = jsonschema.MustCompileString("client.schema.json", clientSchema)

// ClientMessage is a validated actor→server frame.
type ClientMessage struct {
	Type  string
	Apply ApplyColor
}

// DecodeClient validates raw against the client schema and decodes it. Any failure wraps
// ErrMalformed.
func DecodeClient(raw []byte) (ClientMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return ClientMessage{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := clientMessageSchema.Validate(doc); err != nil {
		return ClientMessage{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return ClientMessage{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	msg := ClientMessage{Type: env.Type}
	if env.Type == TypeApplyColor {
		if err := json.Unmarshal(env.Data, &msg.Apply); err != nil {
			return ClientMessage{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	}
	return msg, nil
}
