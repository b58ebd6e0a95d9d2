package core

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/Transit/internal/identity"
	"github.com/GriffinCanCode/Transit/internal/logging"
	"github.com/GriffinCanCode/Transit/internal/monitoring"
	"github.com/GriffinCanCode/Transit/internal/object"
	"github.com/GriffinCanCode/Transit/internal/pool"
	"github.com/GriffinCanCode/Transit/internal/shared/id"
	"github.com/GriffinCanCode/Transit/internal/wire"
)

// Handle is a process-local capability referring to a node. Handle values
// are never globally comparable; the same node has unrelated values in
// different processes.
type Handle uint32

// RegistryHandle is the reserved, universally known handle of the service
// registry; every channel can transact on it without a prior lookup.
const RegistryHandle Handle = 0

// PingCode is answered by the runtime on every node without reaching the
// stub.
const PingCode uint32 = 0xFFFFFFFE

// Dispatcher is the stub side of an object: it consumes an incoming
// transaction's payload and fills the reply.
type Dispatcher interface {
	OnTransact(ctx context.Context, code uint32, in *wire.Reader, out *wire.Writer) wire.Status
}

// Options configures a Router.
type Options struct {
	Logger     *logging.Logger
	Metrics    *monitoring.Metrics
	BufferSize int         // per-process receive buffer, default 1 MiB
	Pool       pool.Config // per-process dispatch pool shape
}

// Router mediates every channel in the system.
type Router struct {
	log     *logging.Logger
	metrics *monitoring.Metrics
	bufSize int
	poolCfg pool.Config

	nodes *object.Table

	mu      sync.RWMutex
	procs   map[uint32]*process
	nextPID uint32

	ctxMu  sync.RWMutex
	ctxMgr uint64 // node id of the service registry
}

// NewRouter creates a router with no processes attached.
func NewRouter(opts Options) *Router {
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = monitoring.NewMetrics()
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = 1 << 20
	}
	return &Router{
		log:     opts.Logger.Named("router"),
		metrics: opts.Metrics,
		bufSize: opts.BufferSize,
		poolCfg: opts.Pool.Normalize(),
		nodes:   object.NewTable(),
		procs:   make(map[uint32]*process),
	}
}

// Metrics returns the router's metrics collector.
func (r *Router) Metrics() *monitoring.Metrics { return r.metrics }

// BufferSize returns the per-process receive buffer bound.
func (r *Router) BufferSize() int { return r.bufSize }

// Open attaches a new process to the router and returns its channel. The
// uid is the process's verified credential; it is stamped on every
// transaction the channel sends.
func (r *Router) Open(uid uint32) (*Channel, error) {
	r.mu.Lock()
	r.nextPID++
	p := newProcess(r, r.nextPID, uid)
	r.procs[p.pid] = p
	r.mu.Unlock()

	p.pool.OnResize(func(delta int) {
		r.metrics.PoolWorkers.Add(float64(delta))
	})
	r.metrics.ProcessesActive.Inc()
	r.log.Debug("process attached",
		zap.Uint32("pid", p.pid),
		zap.Uint32("uid", uid),
	)
	return &Channel{p: p}, nil
}

// SetContextManager marks the node behind h (a handle on ch) as the
// service registry reachable at RegistryHandle from every process.
func (r *Router) SetContextManager(ch *Channel, h Handle) error {
	nodeID, err := ch.p.resolve(h)
	if err != nil {
		return fmt.Errorf("context manager: %w", err)
	}
	r.ctxMu.Lock()
	r.ctxMgr = nodeID
	r.ctxMu.Unlock()
	return nil
}

func (r *Router) contextManager() uint64 {
	r.ctxMu.RLock()
	defer r.ctxMu.RUnlock()
	return r.ctxMgr
}

func (r *Router) proc(pid uint32) *process {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.procs[pid]
}

// closeProcess tears one process down: fails its pending calls, fails
// everyone else's pending calls targeting it, kills its nodes and fires
// their death registrations asynchronously, and releases the references it
// held on remote nodes.
func (r *Router) closeProcess(p *process) {
	r.mu.Lock()
	if _, ok := r.procs[p.pid]; !ok {
		r.mu.Unlock()
		return
	}
	delete(r.procs, p.pid)
	others := make([]*process, 0, len(r.procs))
	for _, q := range r.procs {
		others = append(others, q)
	}
	r.mu.Unlock()

	heldRefs := p.shutdown()

	// Callers in other processes blocked on this process observe death,
	// not a hang.
	for _, q := range others {
		q.failPendingTo(p.pid)
	}

	// Kill owned nodes and fire watchers without blocking this cleanup.
	for _, n := range r.nodes.OwnedBy(p.pid) {
		r.killNode(n)
	}

	// Drop the references this process held on everyone else's nodes.
	for nodeID, refs := range heldRefs {
		n := r.nodes.Get(nodeID)
		if n == nil {
			continue
		}
		for i := 0; i < refs; i++ {
			if died, regs := n.DecStrong(); died {
				r.nodeDied(n, regs)
			}
		}
	}

	p.pool.Close()
	r.metrics.ProcessesActive.Dec()
	r.log.Info("process detached", zap.Uint32("pid", p.pid))
}

// killNode marks a node dead because its owner terminated.
func (r *Router) killNode(n *object.Node) {
	regs := n.Kill()
	r.nodeDied(n, regs)
}

// nodeDied removes a dead node and fires its registrations asynchronously,
// in no particular order.
func (r *Router) nodeDied(n *object.Node, regs []*object.DeathRegistration) {
	r.nodes.Remove(n.ID())
	r.metrics.NodesActive.Dec()
	if len(regs) == 0 {
		return
	}
	go func() {
		for _, reg := range regs {
			reg.Fire()
			r.metrics.RecordDeathNotification()
		}
	}()
}

// stampIdentity fills the transaction's sender fields from the verified
// process record. Whatever the caller put there is discarded.
func (r *Router) stampIdentity(p *process, txn *wire.Transaction) {
	txn.SenderUID = p.uid
	txn.SenderPID = p.pid
	if txn.Trace == "" {
		txn.Trace = id.NewTraceID()
	}
}

func (r *Router) callStateFor(txn *wire.Transaction) *identity.CallState {
	return identity.NewCallState(
		identity.Identity{UID: txn.SenderUID, PID: txn.SenderPID},
		txn.Trace,
	)
}
