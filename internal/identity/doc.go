// Package identity carries the verified sender credentials of a dispatch.
//
// The router stamps every transaction with the true sending process's uid
// and pid; callers cannot forge them. During dispatch the stub side reads
// the calling identity from the call state in the context, and may
// temporarily assume its own identity for nested calls (clear-and-restore),
// so downstream authorization sees the delegate rather than the original
// caller. Restore is required on every exit path, including errors.
package identity
