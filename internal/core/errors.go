package core

import (
	"errors"
	"fmt"

	"github.com/GriffinCanCode/Transit/internal/wire"
)

var (
	// ErrPeerDead indicates the target process or channel is gone. Every
	// pending and future synchronous call on the handle gets this.
	ErrPeerDead = errors.New("transit: peer dead")
	// ErrTransactionTooLarge indicates a payload exceeding the per-process
	// buffer bound. The transaction was never partially sent.
	ErrTransactionTooLarge = errors.New("transit: transaction too large")
	// ErrUnknownMethod indicates the stub rejected an unrecognized code.
	ErrUnknownMethod = errors.New("transit: unknown method")
	// ErrPermissionDenied is raised by implementation-level policy through
	// the identity hook, never by the transport itself.
	ErrPermissionDenied = errors.New("transit: permission denied")
	// ErrNotFound distinguishes a missing registry name from a usable
	// handle.
	ErrNotFound = errors.New("transit: not found")
	// ErrClosed indicates the caller's own channel has been closed.
	ErrClosed = errors.New("transit: channel closed")
	// ErrBadHandle indicates a handle value with no table entry.
	ErrBadHandle = errors.New("transit: bad handle")
)

// ExceptionKind classifies a remote exception so proxies can map it back
// onto the sentinel errors above.
type ExceptionKind uint32

const (
	ExceptionGeneric ExceptionKind = iota
	ExceptionPermission
	ExceptionNotFound
)

// RemoteError is a failure raised by the remote implementation and carried
// back in an exception reply.
type RemoteError struct {
	Kind    ExceptionKind
	Message string
}

// Error implements the error interface.
func (e *RemoteError) Error() string {
	return fmt.Sprintf("transit: remote exception: %s", e.Message)
}

// Unwrap maps classified exceptions onto the matching sentinel so callers
// can use errors.Is.
func (e *RemoteError) Unwrap() error {
	switch e.Kind {
	case ExceptionPermission:
		return ErrPermissionDenied
	case ExceptionNotFound:
		return ErrNotFound
	default:
		return nil
	}
}

// EncodeException resets out and fills it with a classified exception for
// a StatusException reply.
func EncodeException(out *wire.Writer, kind ExceptionKind, msg string) {
	out.Reset()
	out.WriteUint32(uint32(kind))
	out.WriteString(msg)
}

// ExceptionFromError classifies err and writes it into out, returning
// StatusException. Stubs use it on any handler error.
func ExceptionFromError(out *wire.Writer, err error) wire.Status {
	kind := ExceptionGeneric
	switch {
	case errors.Is(err, ErrPermissionDenied):
		kind = ExceptionPermission
	case errors.Is(err, ErrNotFound):
		kind = ExceptionNotFound
	}
	EncodeException(out, kind, err.Error())
	return wire.StatusException
}

// ReplyFromError converts a failed Transact into the status and payload a
// relay sends back to a remote caller, mirroring what the router itself
// would have produced.
func ReplyFromError(err error) (wire.Status, []byte) {
	switch {
	case errors.Is(err, ErrPeerDead), errors.Is(err, ErrClosed):
		return wire.StatusDeadTarget, nil
	case errors.Is(err, ErrTransactionTooLarge):
		return wire.StatusTooLarge, nil
	case errors.Is(err, ErrUnknownMethod):
		return wire.StatusUnknownMethod, nil
	}
	out := wire.NewWriter()
	var remote *RemoteError
	if errors.As(err, &remote) {
		EncodeException(out, remote.Kind, remote.Message)
	} else {
		ExceptionFromError(out, err)
	}
	return wire.StatusException, append([]byte(nil), out.Payload()...)
}

func decodeException(payload []byte) error {
	r := wire.NewReader(payload, nil)
	kind, err := r.ReadUint32()
	if err != nil {
		return &RemoteError{Kind: ExceptionGeneric, Message: "malformed exception reply"}
	}
	msg, err := r.ReadString()
	if err != nil {
		msg = "malformed exception reply"
	}
	return &RemoteError{Kind: ExceptionKind(kind), Message: msg}
}
