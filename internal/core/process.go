package core

import (
	"sync"

	"github.com/GriffinCanCode/Transit/internal/object"
	"github.com/GriffinCanCode/Transit/internal/pool"
	"github.com/GriffinCanCode/Transit/internal/wire"
)

// envelope is the in-router form of a transaction in flight: the record
// plus the routing state that never crosses the API boundary.
type envelope struct {
	txn     *wire.Transaction
	nodeID  uint64
	srcPID  uint32
	replyID uint64
	adopted []Handle // destination-local handles acquired before dispatch
}

type handleRef struct {
	nodeID uint64
	refs   int
}

type pendingCall struct {
	done      chan *wire.Transaction
	targetPID uint32
}

// onewayQueue serializes one-way dispatch per node so a stub observes
// calls from one sender thread in send order.
type onewayQueue struct {
	backlog  []*envelope
	draining bool
}

type process struct {
	r    *Router
	pid  uint32
	uid  uint32
	pool *pool.Pool
	quit chan struct{}

	mu         sync.Mutex
	closed     bool
	handles    map[Handle]*handleRef
	byNode     map[uint64]Handle
	nextHandle Handle
	localNodes map[Dispatcher]uint64
	links      map[*DeathLink]struct{}
	pending    map[uint64]*pendingCall
	nextCall   uint64
	oneway     map[uint64]*onewayQueue

	bufMu   sync.Mutex
	bufCond *sync.Cond
	bufUsed int
}

func newProcess(r *Router, pid, uid uint32) *process {
	p := &process{
		r:          r,
		pid:        pid,
		uid:        uid,
		pool:       pool.New(r.poolCfg, r.log),
		quit:       make(chan struct{}),
		handles:    make(map[Handle]*handleRef),
		byNode:     make(map[uint64]Handle),
		nextHandle: 1, // 0 is the registry
		localNodes: make(map[Dispatcher]uint64),
		links:      make(map[*DeathLink]struct{}),
		pending:    make(map[uint64]*pendingCall),
		oneway:     make(map[uint64]*onewayQueue),
	}
	p.bufCond = sync.NewCond(&p.bufMu)
	return p
}

// resolve maps a handle to its node id. RegistryHandle resolves in every
// process without a table entry.
func (p *process) resolve(h Handle) (uint64, error) {
	if h == RegistryHandle {
		if mgr := p.r.contextManager(); mgr != 0 {
			return mgr, nil
		}
		return 0, ErrBadHandle
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, ErrClosed
	}
	ref, ok := p.handles[h]
	if !ok {
		return 0, ErrBadHandle
	}
	return ref.nodeID, nil
}

// adopt gives this process a handle on nodeID, raising the node's strong
// count first. Adopting the same node twice yields the same handle.
func (p *process) adopt(n *object.Node) (Handle, error) {
	if err := n.IncStrong(); err != nil {
		return 0, ErrPeerDead
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		if died, regs := n.DecStrong(); died {
			p.r.nodeDied(n, regs)
		}
		return 0, ErrClosed
	}
	defer p.mu.Unlock()
	if h, ok := p.byNode[n.ID()]; ok {
		p.handles[h].refs++
		return h, nil
	}
	h := p.nextHandle
	p.nextHandle++
	p.handles[h] = &handleRef{nodeID: n.ID(), refs: 1}
	p.byNode[n.ID()] = h
	return h, nil
}

// bindLocked records a handle for a node this process itself registered.
// The node's initial strong count already represents this reference.
// Caller holds p.mu, keeping the dedup check and the binding atomic.
func (p *process) bindLocked(n *object.Node, d Dispatcher) Handle {
	h := p.nextHandle
	p.nextHandle++
	p.handles[h] = &handleRef{nodeID: n.ID(), refs: 1}
	p.byNode[n.ID()] = h
	p.localNodes[d] = n.ID()
	return h
}

// release drops one reference on a handle, freeing the table entry when
// the last reference goes.
func (p *process) release(h Handle) error {
	p.mu.Lock()
	ref, ok := p.handles[h]
	if !ok {
		p.mu.Unlock()
		return ErrBadHandle
	}
	ref.refs--
	last := ref.refs == 0
	if last {
		delete(p.handles, h)
		delete(p.byNode, ref.nodeID)
	}
	p.mu.Unlock()

	n := p.r.nodes.Get(ref.nodeID)
	if n == nil {
		return nil
	}
	if died, regs := n.DecStrong(); died {
		p.r.nodeDied(n, regs)
	}
	return nil
}

// acquireBuffer blocks until n bytes fit in the receive buffer. A payload
// larger than the whole buffer can never fit and fails immediately.
func (p *process) acquireBuffer(n int) error {
	if n > p.r.bufSize {
		return ErrTransactionTooLarge
	}
	p.bufMu.Lock()
	defer p.bufMu.Unlock()
	for p.bufUsed+n > p.r.bufSize {
		if p.isClosed() {
			return ErrPeerDead
		}
		p.bufCond.Wait()
	}
	if p.isClosed() {
		return ErrPeerDead
	}
	p.bufUsed += n
	return nil
}

func (p *process) releaseBuffer(n int) {
	p.bufMu.Lock()
	p.bufUsed -= n
	p.bufMu.Unlock()
	p.bufCond.Broadcast()
}

func (p *process) isClosed() bool {
	select {
	case <-p.quit:
		return true
	default:
		return false
	}
}

// registerPending parks a synchronous call until its paired reply.
func (p *process) registerPending(targetPID uint32) (uint64, *pendingCall, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, nil, ErrClosed
	}
	p.nextCall++
	call := &pendingCall{
		done:      make(chan *wire.Transaction, 1),
		targetPID: targetPID,
	}
	p.pending[p.nextCall] = call
	p.r.metrics.PendingCalls.Inc()
	return p.nextCall, call, nil
}

func (p *process) takePending(replyID uint64) *pendingCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	call, ok := p.pending[replyID]
	if !ok {
		return nil
	}
	delete(p.pending, replyID)
	p.r.metrics.PendingCalls.Dec()
	return call
}

// failPendingTo converts every call parked on a now-dead target into an
// immediate DEAD_TARGET reply.
func (p *process) failPendingTo(deadPID uint32) {
	p.mu.Lock()
	var failed []*pendingCall
	for replyID, call := range p.pending {
		if call.targetPID == deadPID {
			delete(p.pending, replyID)
			p.r.metrics.PendingCalls.Dec()
			failed = append(failed, call)
		}
	}
	p.mu.Unlock()
	for _, call := range failed {
		call.done <- &wire.Transaction{Status: wire.StatusDeadTarget}
	}
}

// enqueueOneway appends env to the node's serial queue and reports whether
// a drain needs to be scheduled.
func (p *process) enqueueOneway(env *envelope) (startDrain bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	q, ok := p.oneway[env.nodeID]
	if !ok {
		q = &onewayQueue{}
		p.oneway[env.nodeID] = q
	}
	q.backlog = append(q.backlog, env)
	if !q.draining {
		q.draining = true
		return true
	}
	return false
}

// enqueueIfDraining folds a synchronous transaction into the node's serial
// queue when one-way calls are still backlogged, preserving the sender's
// per-thread send order across the mix.
func (p *process) enqueueIfDraining(env *envelope) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	q, ok := p.oneway[env.nodeID]
	if !ok || !q.draining {
		return false
	}
	q.backlog = append(q.backlog, env)
	return true
}

// dequeueOneway pops the next serialized transaction for nodeID, clearing
// the draining mark when the backlog is empty.
func (p *process) dequeueOneway(nodeID uint64) *envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	q, ok := p.oneway[nodeID]
	if !ok {
		return nil
	}
	if len(q.backlog) == 0 {
		q.draining = false
		delete(p.oneway, nodeID)
		return nil
	}
	env := q.backlog[0]
	q.backlog = q.backlog[1:]
	return env
}

func (p *process) addLink(link *DeathLink) {
	p.mu.Lock()
	if !p.closed {
		p.links[link] = struct{}{}
	}
	p.mu.Unlock()
}

func (p *process) removeLink(link *DeathLink) {
	p.mu.Lock()
	delete(p.links, link)
	p.mu.Unlock()
}

// shutdown marks the process closed and returns the strong references it
// still held, keyed by node id, for the router to release.
func (p *process) shutdown() map[uint64]int {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true

	held := make(map[uint64]int, len(p.handles))
	for _, ref := range p.handles {
		held[ref.nodeID] += ref.refs
	}
	p.handles = make(map[Handle]*handleRef)
	p.byNode = make(map[uint64]Handle)

	var waiting []*pendingCall
	for _, call := range p.pending {
		waiting = append(waiting, call)
		p.r.metrics.PendingCalls.Dec()
	}
	p.pending = make(map[uint64]*pendingCall)

	links := make([]*DeathLink, 0, len(p.links))
	for link := range p.links {
		links = append(links, link)
	}
	p.links = make(map[*DeathLink]struct{})
	p.mu.Unlock()

	close(p.quit)
	p.bufCond.Broadcast()

	// Local callers still parked unblock with ErrClosed via p.quit; the
	// nil reply covers the race where they already left the select.
	for _, call := range waiting {
		call.done <- nil
	}

	// Watchers registered by this process must not fire after its death.
	for _, link := range links {
		link.unlink()
	}
	return held
}
