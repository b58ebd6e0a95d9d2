// Package server assembles the daemon: router, registry, policy, debug
// surface, and websocket bridge, wired from one configuration.
package server
