// Package wire defines the transaction record and the typed payload codec.
//
// A transaction is the single unit carried by the transport: a request or a
// reply. Payloads are flat byte buffers written and read with the parcel
// Writer/Reader; object capabilities travel out-of-band in the record's
// handle table, with the payload holding only indices into that table. The
// router rewrites the handle table per process, so payload bytes are never
// touched after the sender flattens them.
//
// Encode/Decode provide a framed binary form of the record for transports
// that cross a real process boundary (the websocket bridge). In-machine
// delivery hands the record over directly and never re-encodes it.
package wire
