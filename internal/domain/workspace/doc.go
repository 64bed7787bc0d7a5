// Package workspace provides the cooperative lock serializing structural
// session operations against the shared session context.
//
// The lock is FIFO-fair and bounded: a waiter that queues past the
// configured timeout gets an error instead of a silently force-released
// lock, so a stuck holder surfaces as a visible failure.
package workspace
