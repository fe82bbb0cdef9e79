// Package codec converts between the wire shapes of imagery: CBOR binary
// websocket messages carrying raw image bytes, and the data URIs the
// browser portals exchange.
package codec

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

var ErrEmptyEvent = errors.New("binary message has no event")

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// BinaryMessage is a frame or snapshot sent as a binary websocket message.
// Image holds the encoded picture itself rather than a base64 data URI.
type BinaryMessage struct {
	Event     string `cbor:"event"`
	Room      string `cbor:"room,omitempty"`
	ChildID   string `cbor:"kid_id,omitempty"`
	Image     []byte `cbor:"image"`
	Timestamp int64  `cbor:"timestamp,omitempty"`
}

func DecodeBinary(data []byte) (BinaryMessage, error) {
	var msg BinaryMessage
	if err := decMode.Unmarshal(data, &msg); err != nil {
		return BinaryMessage{}, fmt.Errorf("decode binary message: %w", err)
	}
	if msg.Event == "" {
		return BinaryMessage{}, ErrEmptyEvent
	}
	return msg, nil
}

func EncodeBinary(msg BinaryMessage) ([]byte, error) {
	if msg.Event == "" {
		return nil, ErrEmptyEvent
	}
	data, err := encMode.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode binary message: %w", err)
	}
	return data, nil
}
