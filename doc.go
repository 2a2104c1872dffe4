// Package stowage defines the contract for a per-user hierarchical document
// store with optimistic-concurrency versioning and token-scoped sessions.
//
// A Store exposes documents under "/"-separated paths. Directories are
// synthetic: they come into existence when a document is written beneath
// them and vanish when their last child is deleted. Every node carries a
// modified instant in Unix milliseconds; a directory's instant is always the
// maximum over its children's. Writes and deletes accept an optional version
// (a previously observed modified instant) and are applied only if it still
// matches, which is the whole of the concurrency protocol — there are no
// long-lived transactions.
//
// Two interchangeable backends implement the Store interface: fsstore keeps
// the tree on a local filesystem, redisstore keeps it in Redis shared by
// many processes. They are independent implementations of one interface,
// not variants of a common base.
package stowage
