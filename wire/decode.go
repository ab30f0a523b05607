package wire

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

type head struct {
	Op Op `json:"op"`
}

// DecodeHead extracts the op discriminator from a raw frame.
//
// A frame that is not valid UTF-8, not valid JSON, or has no op is a protocol
// error, reported as ErrProtocol.
func DecodeHead(data []byte) (Op, error) {
	if !utf8.Valid(data) {
		return "", ErrProtocol("message is not valid UTF-8 text")
	}
	var h head
	if err := json.Unmarshal(data, &h); err != nil {
		return "", ErrProtocol(fmt.Sprintf("malformed message: %s", err))
	}
	if h.Op == "" {
		return "", ErrProtocol("message carries no op")
	}
	return h.Op, nil
}

// Decode unmarshals a frame into the envelope type matching its op.
// The op is expected to be known already (from DecodeHead); a payload that
// does not fit the envelope shape is a protocol error.
func Decode(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return ErrProtocol(fmt.Sprintf("malformed %T payload: %s", v, err))
	}
	return nil
}
