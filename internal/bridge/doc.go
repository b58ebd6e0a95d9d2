// Package bridge attaches remote peers over websocket. An attached peer
// gets an ordinary channel on the router: transactions travel as
// s2-compressed binary frames, death notifications and liveness as small
// JSON control frames. The peer's credential is assigned server-side; a
// remote cannot pick its own uid.
package bridge
