package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Flags describes how a transaction is delivered.
type Flags uint32

const (
	// FlagOneway marks a fire-and-forget transaction with no paired reply.
	FlagOneway Flags = 1 << iota
	// FlagReplyExpected marks a synchronous transaction; the caller blocks
	// until the paired reply arrives or the peer dies.
	FlagReplyExpected
)

// Oneway reports whether the transaction expects no reply.
func (f Flags) Oneway() bool { return f&FlagOneway != 0 }

// ReplyExpected reports whether a paired reply must be produced.
func (f Flags) ReplyExpected() bool { return f&FlagReplyExpected != 0 }

// Status is the outcome carried by a reply record.
type Status uint32

const (
	StatusOK Status = iota
	StatusException
	StatusDeadTarget
	StatusTooLarge
	StatusUnknownMethod
)

// String returns the label used in logs and metrics.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusException:
		return "exception"
	case StatusDeadTarget:
		return "dead_target"
	case StatusTooLarge:
		return "too_large"
	case StatusUnknownMethod:
		return "unknown_method"
	default:
		return fmt.Sprintf("status(%d)", uint32(s))
	}
}

// Transaction is one request or reply unit.
//
// SenderUID and SenderPID are stamped by the router at delivery time;
// whatever the caller put there is overwritten and cannot be forged.
type Transaction struct {
	Target    uint32 // destination handle, sender-local before routing
	Code      uint32 // method code dispatched by the stub
	Flags     Flags
	SenderUID uint32
	SenderPID uint32
	Status    Status // meaningful on replies only
	Payload   []byte
	Handles   []uint32 // embedded capabilities, rewritten per process
	Trace     string   // ULID trace id, stamped when empty
}

const (
	encodeVersion = 1
	// fixed header: version, target, code, flags, uid, pid, status,
	// payload len, handle count, trace len
	headerSize = 1 + 9*4
)

var (
	// ErrTruncated indicates a frame too short for its declared contents.
	ErrTruncated = errors.New("wire: truncated transaction")
	// ErrBadVersion indicates an unknown encoding version byte.
	ErrBadVersion = errors.New("wire: unknown encoding version")
)

// EncodedSize returns the length of the framed form of t.
func (t *Transaction) EncodedSize() int {
	return headerSize + len(t.Payload) + 4*len(t.Handles) + len(t.Trace)
}

// Encode flattens the record into a framed binary form.
func (t *Transaction) Encode() []byte {
	buf := make([]byte, 0, t.EncodedSize())
	buf = append(buf, encodeVersion)
	for _, v := range []uint32{
		t.Target, t.Code, uint32(t.Flags), t.SenderUID, t.SenderPID,
		uint32(t.Status), uint32(len(t.Payload)), uint32(len(t.Handles)),
		uint32(len(t.Trace)),
	} {
		buf = binary.BigEndian.AppendUint32(buf, v)
	}
	buf = append(buf, t.Payload...)
	for _, h := range t.Handles {
		buf = binary.BigEndian.AppendUint32(buf, h)
	}
	buf = append(buf, t.Trace...)
	return buf
}

// Decode parses a framed record produced by Encode.
func Decode(buf []byte) (*Transaction, error) {
	if len(buf) < headerSize {
		return nil, ErrTruncated
	}
	if buf[0] != encodeVersion {
		return nil, fmt.Errorf("%w: %d", ErrBadVersion, buf[0])
	}
	var fields [9]uint32
	for i := range fields {
		fields[i] = binary.BigEndian.Uint32(buf[1+4*i:])
	}
	t := &Transaction{
		Target:    fields[0],
		Code:      fields[1],
		Flags:     Flags(fields[2]),
		SenderUID: fields[3],
		SenderPID: fields[4],
		Status:    Status(fields[5]),
	}
	payloadLen := int(fields[6])
	handleCount := int(fields[7])
	traceLen := int(fields[8])

	rest := buf[headerSize:]
	need := payloadLen + 4*handleCount + traceLen
	if len(rest) < need {
		return nil, ErrTruncated
	}
	if payloadLen > 0 {
		t.Payload = append([]byte(nil), rest[:payloadLen]...)
	}
	rest = rest[payloadLen:]
	if handleCount > 0 {
		t.Handles = make([]uint32, handleCount)
		for i := range t.Handles {
			t.Handles[i] = binary.BigEndian.Uint32(rest[4*i:])
		}
	}
	rest = rest[4*handleCount:]
	if traceLen > 0 {
		t.Trace = string(rest[:traceLen])
	}
	return t, nil
}
