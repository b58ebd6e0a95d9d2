package core

import (
	"fmt"

	"github.com/GriffinCanCode/Transit/internal/object"
	"github.com/GriffinCanCode/Transit/internal/wire"
)

// Channel is one process's connection to the router. All methods are safe
// for concurrent use by the process's threads.
type Channel struct {
	p *process
}

// PID returns the router-assigned process id.
func (c *Channel) PID() uint32 { return c.p.pid }

// UID returns the verified credential the channel was opened with.
func (c *Channel) UID() uint32 { return c.p.uid }

// Register exposes a local implementation and returns its handle.
// Registering the same dispatcher again returns the existing handle, even
// under concurrent registration.
func (c *Channel) Register(d Dispatcher) (Handle, error) {
	p := c.p
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, ErrClosed
	}
	if nodeID, ok := p.localNodes[d]; ok {
		return p.byNode[nodeID], nil
	}

	n := p.r.nodes.Attach(p.pid, d)
	p.r.metrics.NodesActive.Inc()
	return p.bindLocked(n, d), nil
}

// Release drops this process's reference on a handle. The last release of
// the last handle lets the node die.
func (c *Channel) Release(h Handle) error {
	if h == RegistryHandle {
		return ErrBadHandle
	}
	return c.p.release(h)
}

// Transact sends one transaction. Synchronous calls block until the paired
// reply arrives or the peer dies; one-way calls return once the payload is
// handed off, and are silently dropped if the target is already dead.
func (c *Channel) Transact(h Handle, code uint32, data *wire.Writer, flags wire.Flags) (*wire.Reader, error) {
	p := c.p
	if data == nil {
		data = wire.NewWriter()
	}
	if !flags.Oneway() {
		flags |= wire.FlagReplyExpected
	}

	nodeID, err := p.resolve(h)
	if err != nil {
		return nil, err
	}

	payload := data.Payload()
	if len(payload) > p.r.bufSize {
		p.r.metrics.RecordTransaction(wire.StatusTooLarge.String(), len(payload), true)
		return nil, ErrTransactionTooLarge
	}

	n := p.r.nodes.Get(nodeID)
	if n == nil || n.Dead() {
		return c.deadTarget(flags, len(payload))
	}
	target := p.r.proc(n.OwnerPID())
	if target == nil || target.isClosed() {
		return c.deadTarget(flags, len(payload))
	}

	// Embedded capabilities: acquire in the destination before anything
	// is handed to a dispatch worker. A failure here releases whatever
	// was already acquired; the transaction has no partial effect.
	adopted := make([]Handle, 0, len(data.Handles()))
	for _, sh := range data.Handles() {
		srcNodeID, rerr := p.resolve(Handle(sh))
		if rerr != nil {
			rollbackAdopted(target, adopted)
			return nil, fmt.Errorf("embedded handle %d: %w", sh, rerr)
		}
		en := p.r.nodes.Get(srcNodeID)
		if en == nil {
			rollbackAdopted(target, adopted)
			return nil, fmt.Errorf("embedded handle %d: %w", sh, ErrPeerDead)
		}
		th, aerr := target.adopt(en)
		if aerr != nil {
			rollbackAdopted(target, adopted)
			return nil, fmt.Errorf("embedded handle %d: %w", sh, aerr)
		}
		adopted = append(adopted, th)
	}

	txn := &wire.Transaction{
		Target: uint32(h),
		Code:   code,
		Flags:  flags,
		// The single copy: payload bytes written once into a buffer owned
		// by the destination. Sender and receiver never share the slice.
		Payload: append([]byte(nil), payload...),
		Handles: handlesToU32(adopted),
	}
	p.r.stampIdentity(p, txn)

	if err := target.acquireBuffer(len(txn.Payload)); err != nil {
		rollbackAdopted(target, adopted)
		if flags.Oneway() && err == ErrPeerDead {
			p.r.metrics.RecordOnewayDropped()
			return nil, nil
		}
		return nil, err
	}

	env := &envelope{txn: txn, nodeID: nodeID, srcPID: p.pid, adopted: adopted}

	if flags.Oneway() {
		if target.enqueueOneway(env) {
			if serr := target.pool.Submit(func() { p.r.drainNode(target, nodeID) }); serr != nil {
				target.releaseBuffer(len(txn.Payload))
				rollbackAdopted(target, adopted)
				p.r.metrics.RecordOnewayDropped()
				return nil, nil
			}
		}
		return nil, nil
	}

	replyID, call, err := p.registerPending(target.pid)
	if err != nil {
		target.releaseBuffer(len(txn.Payload))
		rollbackAdopted(target, adopted)
		return nil, err
	}
	env.replyID = replyID

	// A sync call behind backlogged one-ways folds into the node's serial
	// queue so the stub still sees this thread's sends in order.
	if !target.enqueueIfDraining(env) {
		if serr := target.pool.Submit(func() { p.r.dispatch(target, env) }); serr != nil {
			p.takePending(replyID)
			target.releaseBuffer(len(txn.Payload))
			rollbackAdopted(target, adopted)
			return nil, ErrPeerDead
		}
	}
	return c.wait(call)
}

// Ping round-trips the runtime-answered liveness code.
func (c *Channel) Ping(h Handle) error {
	_, err := c.Transact(h, PingCode, nil, wire.FlagReplyExpected)
	return err
}

// Close detaches the process: every node it hosts dies, watchers fire, and
// peers blocked on it fail with ErrPeerDead.
func (c *Channel) Close() error {
	c.p.r.closeProcess(c.p)
	return nil
}

func (c *Channel) deadTarget(flags wire.Flags, payloadLen int) (*wire.Reader, error) {
	if flags.Oneway() {
		// The owner died but notification may not have fired yet: the
		// call is silently dropped, by contract.
		c.p.r.metrics.RecordOnewayDropped()
		return nil, nil
	}
	c.p.r.metrics.RecordTransaction(wire.StatusDeadTarget.String(), payloadLen, true)
	return nil, ErrPeerDead
}

// wait parks the calling thread until the reply lands. While parked, the
// thread services its own process's incoming transactions, which is what
// lets a reentrant call chain (A calls B, B calls back into A) proceed on
// the thread that is already waiting.
func (c *Channel) wait(call *pendingCall) (*wire.Reader, error) {
	p := c.p
	for {
		select {
		case rep := <-call.done:
			if rep == nil {
				return nil, ErrClosed
			}
			return OpenReply(rep)
		case task := <-p.pool.Tasks():
			task()
		case <-p.quit:
			return nil, ErrClosed
		}
	}
}

// OpenReply converts a reply transaction into the caller-facing result,
// mapping failure statuses onto the sentinel errors.
func OpenReply(rep *wire.Transaction) (*wire.Reader, error) {
	switch rep.Status {
	case wire.StatusOK:
		return wire.NewReader(rep.Payload, rep.Handles), nil
	case wire.StatusDeadTarget:
		return nil, ErrPeerDead
	case wire.StatusTooLarge:
		return nil, ErrTransactionTooLarge
	case wire.StatusUnknownMethod:
		return nil, ErrUnknownMethod
	case wire.StatusException:
		return nil, decodeException(rep.Payload)
	default:
		return nil, fmt.Errorf("transit: unexpected reply status %s", rep.Status)
	}
}

// DeathRecipient observes the death of a node reached through a handle.
type DeathRecipient interface {
	Died(h Handle)
}

// DeathRecipientFunc adapts a function to DeathRecipient.
type DeathRecipientFunc func(h Handle)

// Died calls f.
func (f DeathRecipientFunc) Died(h Handle) { f(h) }

// DeathLink is a live death registration; pass it to UnlinkToDeath to
// cancel before it fires.
type DeathLink struct {
	p    *process
	h    Handle
	node *object.Node
	reg  *object.DeathRegistration
}

func (l *DeathLink) unlink() bool { return l.node.UnlinkDeath(l.reg) }

// LinkToDeath registers interest in the death of the node behind h. The
// recipient fires exactly once, asynchronously, when the node dies; it
// never fires after a successful UnlinkToDeath. Linking to an already-dead
// node fails with ErrPeerDead.
func (c *Channel) LinkToDeath(h Handle, rec DeathRecipient) (*DeathLink, error) {
	p := c.p
	nodeID, err := p.resolve(h)
	if err != nil {
		return nil, err
	}
	n := p.r.nodes.Get(nodeID)
	if n == nil {
		return nil, ErrPeerDead
	}

	link := &DeathLink{p: p, h: h, node: n}
	reg, err := n.LinkDeath(object.DeathRecipientFunc(func(uint64) {
		p.removeLink(link)
		rec.Died(h)
	}), p.pid)
	if err != nil {
		return nil, ErrPeerDead
	}
	link.reg = reg
	p.addLink(link)
	return link, nil
}

// UnlinkToDeath cancels a registration. It reports false when the link
// already fired (or was already unlinked); true guarantees the recipient
// will never be invoked.
func (c *Channel) UnlinkToDeath(link *DeathLink) bool {
	if link == nil {
		return false
	}
	c.p.removeLink(link)
	return link.unlink()
}

func rollbackAdopted(target *process, adopted []Handle) {
	for _, h := range adopted {
		_ = target.release(h)
	}
}

func handlesToU32(hs []Handle) []uint32 {
	if len(hs) == 0 {
		return nil
	}
	out := make([]uint32, len(hs))
	for i, h := range hs {
		out[i] = uint32(h)
	}
	return out
}
