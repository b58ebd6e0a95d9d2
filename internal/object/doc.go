// Package object tracks the server-side identity of every exposed object.
//
// A Node is created when a process registers an implementation and lives as
// long as its strong count is nonzero. Reference counts are mutated only by
// the router, atomically with transaction delivery, so no in-flight
// transaction can observe a node between "freed" and "delivered".
//
// Death registrations attach to a node and fire exactly once when the node
// dies, whether from its strong count reaching zero or from its owning
// process terminating. An unlinked registration never fires.
package object
