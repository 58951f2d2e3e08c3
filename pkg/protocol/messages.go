// Package protocol defines the websocket events exchanged between actors and the server.
//
// Every frame is a JSON object {"type": <event>, "data": <payload>}.
//
// Client -> Server
//
//	apply_color: {x, y, color}  request a placement
//	sync:        {}             ask for a fresh grid_update + placement_count
//
// Server -> Client
//
//	cooldown:        {seconds}     reply to every apply_color that passed validation
//	grid_update:     {grid, seq}   full grid, on connect and after every accepted placement
//	placement_count: {count}       on connect and after every accepted placement
//	error:           {code, message}
package protocol

import (
	"encoding/json"
	"fmt"
)

const (
	TypeApplyColor     = "apply_color"
	TypeSync           = "sync"
	TypeCooldown       = "cooldown"
	TypeGridUpdate     = "grid_update"
	TypePlacementCount = "placement_count"
	TypeError          = "error"
)

const (
	CodeStoreUnavailable = "store_unavailable"
	CodeForbidden        = "forbidden"
)

type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type ApplyColor struct {
	X     int    `json:"x"`
	Y     int    `json:"y"`
	Color string `json:"color"`
}

type Cooldown struct {
	Seconds int `json:"seconds"`
}

type GridUpdate struct {
	Grid [][]string `json:"grid"`
	Seq  int64      `json:"seq"`
}

type PlacementCount struct {
	Count int64 `json:"count"`
}

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Encode wraps payload in an envelope of the given type.
func Encode(typ string, payload any) ([]byte, error) {
	env := Envelope{Type: typ}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("protocol: encode %s: %w", typ, err)
		}
		env.Data = data
	}
	return json.Marshal(env)
}

// MustEncode is for payloads that cannot fail to marshal.
func MustEncode(typ string, payload any) []byte {
	b, err := Encode(typ, payload)
	if err != nil {
		panic(err)
	}
	return b
}

// DecodeEnvelope parses a server frame. Client frames go through DecodeClient, which
// also validates them.
func DecodeEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("protocol: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("protocol: missing type")
	}
	return env, nil
}
