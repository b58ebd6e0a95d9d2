// Package call is the proxy/stub runtime on top of the raw channel API.
//
// A Stub maps method codes to handlers, deserializes each incoming
// transaction, and fails closed on codes it does not know. A Proxy wraps a
// handle and serializes calls into transactions, blocking on synchronous
// methods for the paired reply. Interface authors write one proxy type and
// one stub wiring per interface, the way the registry client and manager
// in internal/registry do.
package call
