package protocol

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-msgpack/v2/codec"
)

// ErrBadMessage is returned by Decode for a frame that is not a valid message.
// The frame boundary is intact, so the connection can keep reading.
var ErrBadMessage = errors.New("malformed message")

var msgpackHandle = func() *codec.MsgpackHandle {
	h := &codec.MsgpackHandle{}
	h.WriteExt = true // str8 and bin types, so payloads travel as raw bytes
	return h
}()

func Encode(m Message) ([]byte, error) {
	var out []byte
	if err := codec.NewEncoderBytes(&out, msgpackHandle).Encode(&m); err != nil {
		return nil, fmt.Errorf("encode %s message: %w", m.Type, err)
	}
	return out, nil
}

func Decode(data []byte) (Message, error) {
	var m Message
	if err := codec.NewDecoderBytes(data, msgpackHandle).Decode(&m); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrBadMessage, err)
	}
	return m, nil
}
