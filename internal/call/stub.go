package call

import (
	"context"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/Transit/internal/core"
	"github.com/GriffinCanCode/Transit/internal/identity"
	"github.com/GriffinCanCode/Transit/internal/logging"
	"github.com/GriffinCanCode/Transit/internal/wire"
)

// HandlerFunc implements one method of an interface. Returning an error
// produces an exception reply, classified via the core sentinels.
type HandlerFunc func(ctx context.Context, in *wire.Reader, out *wire.Writer) error

// Stub dispatches incoming transactions by method code. Register every
// method before exposing the stub through Channel.Register; the method
// table is read-only afterwards.
type Stub struct {
	name    string
	log     *logging.Logger
	methods map[uint32]HandlerFunc
}

// NewStub creates an empty stub for the named interface.
func NewStub(name string, log *logging.Logger) *Stub {
	if log == nil {
		log = logging.NewNop()
	}
	return &Stub{
		name:    name,
		log:     log.Named(name),
		methods: make(map[uint32]HandlerFunc),
	}
}

// Handle registers a method handler under a code.
func (s *Stub) Handle(code uint32, fn HandlerFunc) *Stub {
	s.methods[code] = fn
	return s
}

// OnTransact implements core.Dispatcher. Unknown codes are rejected, never
// silently ignored.
func (s *Stub) OnTransact(ctx context.Context, code uint32, in *wire.Reader, out *wire.Writer) wire.Status {
	fn, ok := s.methods[code]
	if !ok {
		s.log.Warn("rejected unknown method code",
			zap.Uint32("code", code),
			zap.String("caller", identity.Calling(ctx).String()),
		)
		return wire.StatusUnknownMethod
	}
	if err := fn(ctx, in, out); err != nil {
		s.log.Debug("method returned error",
			zap.Uint32("code", code),
			zap.Error(err),
		)
		return core.ExceptionFromError(out, err)
	}
	return wire.StatusOK
}
