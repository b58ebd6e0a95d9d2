package core

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/Transit/internal/identity"
	"github.com/GriffinCanCode/Transit/internal/wire"
)

// drainNode serializes dispatch for one node's backlog. Only one worker
// drains a given node at a time, which is the ordering guarantee for
// one-way calls.
func (r *Router) drainNode(target *process, nodeID uint64) {
	for {
		env := target.dequeueOneway(nodeID)
		if env == nil {
			return
		}
		r.dispatch(target, env)
	}
}

// dispatch invokes the stub for one transaction on the current worker
// thread. The call is not handed off further.
func (r *Router) dispatch(target *process, env *envelope) {
	txn := env.txn
	defer target.releaseBuffer(len(txn.Payload))

	out := wire.NewWriter()
	var status wire.Status

	n := r.nodes.Get(env.nodeID)
	switch {
	case n == nil || n.Dead() || n.OwnerPID() != target.pid:
		// The node died between send and pickup. The recipient never saw
		// the embedded capabilities, so the acquire is rolled back.
		rollbackAdopted(target, env.adopted)
		env.adopted = nil
		status = wire.StatusDeadTarget
	default:
		d, ok := n.Target.(Dispatcher)
		if !ok {
			EncodeException(out, ExceptionGeneric, "node has no dispatcher")
			status = wire.StatusException
			break
		}
		state := r.callStateFor(txn)
		ctx := identity.WithState(context.Background(), state)
		in := wire.NewReader(txn.Payload, txn.Handles)
		status = r.safeTransact(d, ctx, txn.Code, in, out)
	}

	r.metrics.RecordTransaction(status.String(), len(txn.Payload), status != wire.StatusOK)

	if txn.Flags.Oneway() || !txn.Flags.ReplyExpected() {
		return
	}
	r.completeCall(target, env, out, status)
}

// safeTransact runs the stub, converting a panic into an exception reply
// so one broken implementation cannot take a dispatch worker down.
func (r *Router) safeTransact(d Dispatcher, ctx context.Context, code uint32, in *wire.Reader, out *wire.Writer) (status wire.Status) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("stub panicked during dispatch",
				zap.Uint32("code", code),
				zap.Any("panic", rec),
			)
			EncodeException(out, ExceptionGeneric, fmt.Sprintf("stub panic: %v", rec))
			status = wire.StatusException
		}
	}()
	if code == PingCode {
		out.Reset()
		return wire.StatusOK
	}
	return d.OnTransact(ctx, code, in, out)
}

// completeCall routes the reply back to the parked caller, adopting any
// handles the stub embedded into the source process first.
func (r *Router) completeCall(target *process, env *envelope, out *wire.Writer, status wire.Status) {
	src := r.proc(env.srcPID)
	if src == nil {
		return
	}
	call := src.takePending(env.replyID)
	if call == nil {
		// Caller already unblocked (its channel closed); nothing to do.
		return
	}

	reply := &wire.Transaction{
		Code:      env.txn.Code,
		Status:    status,
		SenderUID: target.uid,
		SenderPID: target.pid,
		Payload:   append([]byte(nil), out.Payload()...),
		Trace:     env.txn.Trace,
	}

	if status == wire.StatusOK && len(out.Handles()) > 0 {
		adopted := make([]Handle, 0, len(out.Handles()))
		ok := true
		for _, th := range out.Handles() {
			nodeID, err := target.resolve(Handle(th))
			if err != nil {
				ok = false
				break
			}
			n := r.nodes.Get(nodeID)
			if n == nil {
				ok = false
				break
			}
			sh, err := src.adopt(n)
			if err != nil {
				ok = false
				break
			}
			adopted = append(adopted, sh)
		}
		if !ok {
			rollbackAdopted(src, adopted)
			exc := wire.NewWriter()
			EncodeException(exc, ExceptionGeneric, "reply handle no longer valid")
			reply.Status = wire.StatusException
			reply.Payload = append([]byte(nil), exc.Payload()...)
		} else {
			reply.Handles = handlesToU32(adopted)
		}
	}

	call.done <- reply
}
