package ws

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/hanyusok/docplus-dev/internal/domain"
)

const (
	ProtocolJSON    = "json"
	ProtocolMsgpack = "msgpack"
)

// Codec converts frames for one negotiated sub-protocol.
type Codec interface {
	Name() string
	// FrameType is websocket.TextMessage or websocket.BinaryMessage.
	FrameType() int
	Encode(v any) ([]byte, error)
	Decode(data []byte) (Envelope, error)
}

func codecFor(protocol string) Codec {
	if protocol == ProtocolMsgpack {
		return msgpackCodec{}
	}
	return jsonCodec{}
}

type jsonCodec struct{}

func (jsonCodec) Name() string   { return ProtocolJSON }
func (jsonCodec) FrameType() int { return websocket.TextMessage }

func (jsonCodec) Encode(v any) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", domain.ErrInvalidMessage, err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("%w: missing type", domain.ErrInvalidMessage)
	}
	return env, nil
}

// msgpackCodec carries the same document shape as JSON. Outbound values go
// through their json tags first so that raw SDP/ICE payloads stay maps rather
// than binary blobs.
type msgpackCodec struct{}

func (msgpackCodec) Name() string   { return ProtocolMsgpack }
func (msgpackCodec) FrameType() int { return websocket.BinaryMessage }

func (msgpackCodec) Encode(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.UseCompactInts(true)
	if err := enc.Encode(normalizeNumbers(doc)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (msgpackCodec) Decode(data []byte) (Envelope, error) {
	var frame struct {
		Type    string `msgpack:"type"`
		Payload any    `msgpack:"payload"`
	}
	if err := msgpack.Unmarshal(data, &frame); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", domain.ErrInvalidMessage, err)
	}
	if frame.Type == "" {
		return Envelope{}, fmt.Errorf("%w: missing type", domain.ErrInvalidMessage)
	}
	env := Envelope{Type: frame.Type}
	if frame.Payload != nil {
		p, err := json.Marshal(stringKeys(frame.Payload))
		if err != nil {
			return Envelope{}, fmt.Errorf("%w: %v", domain.ErrInvalidMessage, err)
		}
		env.Payload = p
	}
	return env, nil
}

func normalizeNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	case map[string]any:
		for k, e := range t {
			t[k] = normalizeNumbers(e)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = normalizeNumbers(e)
		}
		return t
	default:
		return v
	}
}

// stringKeys rewrites maps with interface keys, which encoding/json rejects.
func stringKeys(v any) any {
	switch t := v.(type) {
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[fmt.Sprint(k)] = stringKeys(e)
		}
		return out
	case map[string]any:
		for k, e := range t {
			t[k] = stringKeys(e)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = stringKeys(e)
		}
		return t
	default:
		return v
	}
}
