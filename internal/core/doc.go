// Package core implements the transport: the router that mediates
// per-process channels, owns the node and handle tables, and moves
// transaction payloads between address spaces with a single copy.
//
// A process opens a Channel against the Router, registers local objects to
// obtain handles, and transacts on handles it acquired from the service
// registry (reserved handle 0) or as payload of another call. All
// reference-count mutation happens inside the router, atomically with
// delivery: an embedded handle's strong count is raised in the destination
// before the transaction reaches a dispatch worker, so a node can never be
// freed between send and receive.
//
// Locking is per-process and per-node. The router-level lock guards only
// the process map; unrelated process pairs never serialize on each other.
package core
