package bridge

import (
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/klauspost/compress/s2"

	"github.com/GriffinCanCode/Transit/internal/wire"
)

// Control frame types carried as JSON text messages.
const (
	msgHello    = "hello"
	msgPing     = "ping"
	msgPong     = "pong"
	msgLink     = "link"
	msgLinked   = "linked"
	msgUnlink   = "unlink"
	msgUnlinked = "unlinked"
	msgDeath    = "death"
	msgError    = "error"
)

// controlMsg is the JSON side channel next to the binary transaction
// stream.
type controlMsg struct {
	Type        string `json:"type"`
	Session     string `json:"session,omitempty"`
	UID         uint32 `json:"uid,omitempty"`
	PID         uint32 `json:"pid,omitempty"`
	Compression bool   `json:"compression,omitempty"`
	Handle      uint32 `json:"handle,omitempty"`
	Watch       string `json:"watch,omitempty"`
	Message     string `json:"message,omitempty"`
}

func parseControl(frame []byte) (controlMsg, error) {
	var msg controlMsg
	if err := sonic.Unmarshal(frame, &msg); err != nil {
		return controlMsg{}, fmt.Errorf("bridge: bad control frame: %w", err)
	}
	return msg, nil
}

// codec frames transactions for the wire, optionally s2-compressed.
type codec struct {
	compress bool
}

func (c codec) encode(txn *wire.Transaction) []byte {
	raw := txn.Encode()
	if !c.compress {
		return raw
	}
	return s2.Encode(nil, raw)
}

func (c codec) decode(frame []byte) (*wire.Transaction, error) {
	raw := frame
	if c.compress {
		var err error
		raw, err = s2.Decode(nil, frame)
		if err != nil {
			return nil, fmt.Errorf("bridge: decompress frame: %w", err)
		}
	}
	return wire.Decode(raw)
}
