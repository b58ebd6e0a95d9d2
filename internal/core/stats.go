package core

import "sort"

// Stats is a point-in-time view of the router for the debug surface.
type Stats struct {
	Processes int           `json:"processes"`
	Nodes     int           `json:"nodes"`
	Detail    []ProcessInfo `json:"detail"`
}

// ProcessInfo describes one attached process.
type ProcessInfo struct {
	PID         uint32 `json:"pid"`
	UID         uint32 `json:"uid"`
	Handles     int    `json:"handles"`
	Pending     int    `json:"pending"`
	PoolWorkers int    `json:"pool_workers"`
	PoolIdle    int    `json:"pool_idle"`
	BufferUsed  int    `json:"buffer_used"`
}

// Stats snapshots the router.
func (r *Router) Stats() Stats {
	r.mu.RLock()
	procs := make([]*process, 0, len(r.procs))
	for _, p := range r.procs {
		procs = append(procs, p)
	}
	r.mu.RUnlock()

	s := Stats{
		Processes: len(procs),
		Nodes:     r.nodes.Len(),
	}
	for _, p := range procs {
		p.mu.Lock()
		info := ProcessInfo{
			PID:     p.pid,
			UID:     p.uid,
			Handles: len(p.handles),
			Pending: len(p.pending),
		}
		p.mu.Unlock()
		info.PoolWorkers = p.pool.Size()
		info.PoolIdle = p.pool.Idle()
		p.bufMu.Lock()
		info.BufferUsed = p.bufUsed
		p.bufMu.Unlock()
		s.Detail = append(s.Detail, info)
	}
	sort.Slice(s.Detail, func(i, j int) bool { return s.Detail[i].PID < s.Detail[j].PID })
	return s
}
