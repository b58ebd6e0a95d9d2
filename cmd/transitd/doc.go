// Command transitd runs the capability transport daemon: the router, the
// service registry, the debug HTTP surface, and the websocket bridge for
// remote peers.
package main
