package broadcast

import (
	"encoding/json"
	"fmt"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"
)

// Codec encodes events on the wire.
type Codec interface {
	Name() string
	// MessageType is the WebSocket frame type used for encoded events.
	MessageType() int
	Marshal(ev *Event) ([]byte, error)
	Unmarshal(data []byte, ev *Event) error
}

var (
	// JSON sends events as text frames.
	JSON Codec = jsonCodec{}
	// MsgPack sends events as binary frames.
	MsgPack Codec = msgpackCodec{}
)

// CodecByName returns the codec registered under name. An empty name
// selects JSON.
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSON, nil
	case "msgpack":
		return MsgPack, nil
	default:
		return nil, fmt.Errorf("broadcast: unknown codec %q", name)
	}
}

type jsonCodec struct{}

func (jsonCodec) Name() string                           { return "json" }
func (jsonCodec) MessageType() int                       { return websocket.TextMessage }
func (jsonCodec) Marshal(ev *Event) ([]byte, error)      { return json.Marshal(ev) }
func (jsonCodec) Unmarshal(data []byte, ev *Event) error { return json.Unmarshal(data, ev) }

type msgpackCodec struct{}

func (msgpackCodec) Name() string                           { return "msgpack" }
func (msgpackCodec) MessageType() int                       { return websocket.BinaryMessage }
func (msgpackCodec) Marshal(ev *Event) ([]byte, error)      { return msgpack.Marshal(ev) }
func (msgpackCodec) Unmarshal(data []byte, ev *Event) error { return msgpack.Unmarshal(data, ev) }
