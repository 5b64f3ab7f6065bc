package protocol

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// MaxFrameSize bounds the body length accepted by ReadFrame. Requests and
// responses are small; anything larger is malformed or hostile.
const MaxFrameSize = 1 << 20

// ErrFrameTooLarge is returned when a frame's length prefix exceeds
// MaxFrameSize.
var ErrFrameTooLarge = errors.New("frame exceeds maximum size")

// UnmarshalMessage deserializes a message from JSON bytes.
func UnmarshalMessage[T any](data []byte) (*T, error) {
	var msg T
	err := json.Unmarshal(data, &msg)
	return &msg, err
}

// SerializeMessage serializes a message to JSON bytes.
func SerializeMessage[T any](msg *T) ([]byte, error) {
	return json.Marshal(msg)
}

// WriteFrame writes msg as one length-prefixed frame: a 4-byte big-endian
// body length followed by the JSON body.
func WriteFrame[T any](w io.Writer, msg *T) error {
	body, err := SerializeMessage(msg)
	if err != nil {
		return fmt.Errorf("serializing frame body: %w", err)
	}
	if len(body) > MaxFrameSize {
		return ErrFrameTooLarge
	}

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(body)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("writing frame length: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("writing frame body: %w", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed frame and decodes its JSON body.
// Truncated or malformed frames fail with an error; the caller bounds the
// read with a deadline on the underlying connection.
func ReadFrame[T any](r io.Reader) (*T, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, fmt.Errorf("reading frame length: %w", err)
	}

	bodyLen := binary.BigEndian.Uint32(lenBuf[:])
	if bodyLen > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}

	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("reading frame body: %w", err)
	}

	msg, err := UnmarshalMessage[T](body)
	if err != nil {
		return nil, fmt.Errorf("decoding frame body: %w", err)
	}
	return msg, nil
}
