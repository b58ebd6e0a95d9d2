package object

import (
	"errors"
	"sync"
)

// ErrDeadNode indicates an operation on a node that has already died.
var ErrDeadNode = errors.New("object: node is dead")

// DeathRecipient receives the asynchronous death notification for a node.
type DeathRecipient interface {
	NodeDied(nodeID uint64)
}

// DeathRecipientFunc adapts a function to the DeathRecipient interface.
type DeathRecipientFunc func(nodeID uint64)

// NodeDied calls f.
func (f DeathRecipientFunc) NodeDied(nodeID uint64) { f(nodeID) }

// DeathRegistration is one (watcher, node) link. It fires at most once and
// never fires after Unlink succeeds.
type DeathRegistration struct {
	node       *Node
	recipient  DeathRecipient
	watcherPID uint32
	fired      bool // guarded by node.mu
}

// WatcherPID returns the process that registered the link.
func (d *DeathRegistration) WatcherPID() uint32 { return d.watcherPID }

// Node is the canonical identity of one exposed object.
type Node struct {
	id       uint64
	ownerPID uint32

	// Target is the dispatch target the owning process registered. The
	// transport asserts it to its dispatcher type; this package never
	// invokes it.
	Target any

	mu        sync.Mutex
	strong    int
	weak      int
	dead      bool
	destroyed bool
	deaths    []*DeathRegistration
}

// ID returns the arena id of the node.
func (n *Node) ID() uint64 { return n.id }

// OwnerPID returns the process hosting the implementation.
func (n *Node) OwnerPID() uint32 { return n.ownerPID }

// IncStrong acquires a strong reference. It fails once the node is dead so
// a capability can never be re-acquired during teardown.
func (n *Node) IncStrong() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.dead {
		return ErrDeadNode
	}
	n.strong++
	return nil
}

// DecStrong releases a strong reference. When the count reaches zero the
// node dies; the returned registrations (nil otherwise) must be fired by
// the caller, asynchronously, exactly once each.
func (n *Node) DecStrong() (died bool, regs []*DeathRegistration) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.strong > 0 {
		n.strong--
	}
	if n.strong == 0 && !n.dead {
		return true, n.killLocked()
	}
	return false, nil
}

// IncWeak acquires a weak reference. Weak references do not keep the node
// alive; they only keep its identity observable.
func (n *Node) IncWeak() {
	n.mu.Lock()
	n.weak++
	n.mu.Unlock()
}

// DecWeak releases a weak reference.
func (n *Node) DecWeak() {
	n.mu.Lock()
	if n.weak > 0 {
		n.weak--
	}
	n.mu.Unlock()
}

// Counts returns the current strong and weak counts.
func (n *Node) Counts() (strong, weak int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.strong, n.weak
}

// Dead reports whether the node has died.
func (n *Node) Dead() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.dead
}

// Kill marks the node dead regardless of reference counts (owner process
// terminated). Registrations not yet fired are returned for asynchronous
// delivery; calling Kill again returns nil.
func (n *Node) Kill() []*DeathRegistration {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.dead {
		return nil
	}
	return n.killLocked()
}

func (n *Node) killLocked() []*DeathRegistration {
	n.dead = true
	n.destroyed = true
	regs := make([]*DeathRegistration, 0, len(n.deaths))
	for _, reg := range n.deaths {
		if !reg.fired {
			reg.fired = true
			regs = append(regs, reg)
		}
	}
	n.deaths = nil
	return regs
}

// LinkDeath registers a death recipient. Linking to a node that is already
// dead fails so the watcher can fall back to immediate handling.
func (n *Node) LinkDeath(recipient DeathRecipient, watcherPID uint32) (*DeathRegistration, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.dead {
		return nil, ErrDeadNode
	}
	reg := &DeathRegistration{node: n, recipient: recipient, watcherPID: watcherPID}
	n.deaths = append(n.deaths, reg)
	return reg, nil
}

// UnlinkDeath cancels a registration. It reports false if the registration
// already fired (or was already unlinked); a false return guarantees the
// recipient has been or will be invoked.
func (n *Node) UnlinkDeath(reg *DeathRegistration) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i, r := range n.deaths {
		if r == reg {
			n.deaths = append(n.deaths[:i], n.deaths[i+1:]...)
			return true
		}
	}
	return false
}

// DeathLinkCount returns the number of pending registrations.
func (n *Node) DeathLinkCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.deaths)
}

// Fire delivers the notification to the recipient. The exactly-once
// guarantee is established by Kill/DecStrong, which hand out each
// registration at most once.
func (d *DeathRegistration) Fire() {
	d.recipient.NodeDied(d.node.id)
}

// Recipient returns the registered recipient.
func (d *DeathRegistration) Recipient() DeathRecipient { return d.recipient }

// NodeID returns the watched node's id.
func (d *DeathRegistration) NodeID() uint64 { return d.node.id }
