// Package pool implements the per-process dispatch worker pool.
//
// Workers block on the process's transaction queue and invoke the stub
// synchronously on the receiving worker; nothing is handed off further.
// The pool grows up to a configured maximum while no worker is idle and
// shrinks back to its floor after sustained idleness. When every worker is
// busy and the queue is full, Submit blocks; pool exhaustion is visible
// to the sender as backpressure, never as a silent drop.
//
// The queue is also exposed read-only so a thread parked on a synchronous
// reply can service its own process's incoming transactions inline; that is
// what keeps reentrant call chains (A calls B calls back into A) from
// deadlocking the pool.
package pool
