package object

import "sync"

// Table is the arena of live nodes, indexed by integer id. Node ids are
// never reused; the table lock guards only the map, every node carries its
// own lock so unrelated process pairs never serialize on each other.
type Table struct {
	mu     sync.RWMutex
	nodes  map[uint64]*Node
	nextID uint64
}

// NewTable returns an empty node arena.
func NewTable() *Table {
	return &Table{nodes: make(map[uint64]*Node)}
}

// Attach creates a node for an implementation hosted by ownerPID. The node
// starts with one strong reference: the owner's own.
func (t *Table) Attach(ownerPID uint32, target any) *Node {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	n := &Node{id: t.nextID, ownerPID: ownerPID, Target: target, strong: 1}
	t.nodes[n.id] = n
	return n
}

// Get returns the node for id, or nil if it was removed.
func (t *Table) Get(id uint64) *Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.nodes[id]
}

// Remove drops a dead node from the arena.
func (t *Table) Remove(id uint64) {
	t.mu.Lock()
	delete(t.nodes, id)
	t.mu.Unlock()
}

// OwnedBy returns every live node hosted by pid.
func (t *Table) OwnedBy(pid uint32) []*Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var owned []*Node
	for _, n := range t.nodes {
		if n.ownerPID == pid {
			owned = append(owned, n)
		}
	}
	return owned
}

// Len returns the number of live nodes.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.nodes)
}
