// Package registry is the root of service discovery: a name-to-handle map
// exposed as an ordinary node, reachable from every process at the
// reserved handle. Bootstrap needs no prior lookup, and the registry
// itself is called through the same proxy/stub runtime it bootstraps.
//
// Publish overwrites. Lookup of an unpublished name fails with a
// distinguishable not-found error, never a usable handle. Entries drop
// automatically when the published node dies; nothing expires on its own.
package registry
