package streaming

import (
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Message types.
const (
	TypeFrame            = "frame"
	TypeResult           = "result"
	TypeNavigationUpdate = "navigation_update"
	TypeStatus           = "status"
	TypeError            = "error"
)

// Codec names.
const (
	CodecJSON    = "json"
	CodecMsgpack = "msgpack"
)

// Frame is the outgoing frame message. Timestamp is in Unix milliseconds.
type Frame struct {
	Type      string `json:"type" msgpack:"type"`
	Data      []byte `json:"data" msgpack:"data"`
	Timestamp int64  `json:"timestamp" msgpack:"timestamp"`
}

// Message is a decoded incoming message.
type Message struct {
	Type string

	// Message is the text of status and error messages.
	Message string

	// Payload holds the result body: the "payload" object when present,
	// otherwise every top-level field.
	Payload map[string]any

	// Raw is the message as JSON.
	Raw json.RawMessage
}

// Codec encodes frames and decodes incoming messages.
type Codec interface {
	Name() string
	// Binary reports whether encoded frames are binary messages.
	Binary() bool
	EncodeFrame(f *Frame) ([]byte, error)
	Decode(data []byte) (*Message, error)
}

// NewCodec returns the codec registered under name. The empty name selects JSON.
func NewCodec(name string) (Codec, error) {
	switch name {
	case "", CodecJSON:
		return JSONCodec{}, nil
	case CodecMsgpack:
		return MsgpackCodec{}, nil
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}

// JSONCodec encodes text messages. Frame data is base64 encoded.
type JSONCodec struct{}

// Name implements Codec.
func (JSONCodec) Name() string { return CodecJSON }

// Binary implements Codec.
func (JSONCodec) Binary() bool { return false }

// EncodeFrame implements Codec.
func (JSONCodec) EncodeFrame(f *Frame) ([]byte, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal frame: %w", err)
	}
	return data, nil
}

// Decode implements Codec.
func (JSONCodec) Decode(data []byte) (*Message, error) {
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message: %w", err)
	}
	msg := messageFromFields(fields)
	msg.Raw = append(json.RawMessage(nil), data...)
	return msg, nil
}

// MsgpackCodec encodes binary messages with MessagePack.
type MsgpackCodec struct{}

// Name implements Codec.
func (MsgpackCodec) Name() string { return CodecMsgpack }

// Binary implements Codec.
func (MsgpackCodec) Binary() bool { return true }

// EncodeFrame implements Codec.
func (MsgpackCodec) EncodeFrame(f *Frame) ([]byte, error) {
	data, err := msgpack.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal frame: %w", err)
	}
	return data, nil
}

// Decode implements Codec.
func (MsgpackCodec) Decode(data []byte) (*Message, error) {
	var fields map[string]any
	if err := msgpack.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message: %w", err)
	}
	msg := messageFromFields(fields)
	raw, err := json.Marshal(fields)
	if err == nil {
		msg.Raw = raw
	}
	return msg, nil
}

func messageFromFields(fields map[string]any) *Message {
	msg := &Message{}
	msg.Type, _ = fields["type"].(string)
	msg.Message, _ = fields["message"].(string)
	if payload, ok := fields["payload"].(map[string]any); ok {
		msg.Payload = payload
	} else {
		msg.Payload = fields
	}
	return msg
}
