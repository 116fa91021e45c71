// Package forest materializes flat, parent-referencing node records into
// nested trees and guards the structural invariants of the forest on write.
//
// # Components
//
//   - [NodeStore] - durable storage of node records (see the store packages)
//   - [Validator] - label policy and parent existence checks
//   - [Build] - turns a flat node set into an ordered forest of [View]s
//   - [Service] - the write path (validate, then create) and the read path
//     (bulk fetch, then build)
//
// # Ordering
//
// Roots, and the children of every node, are ordered by ascending id. Ids are
// assigned by the store at creation time, so this is creation order.
//
// # Errors
//
// Every error returned by [Service] matches exactly one sentinel:
//
//   - [ErrInvalidLabel] - label empty, blank, or too long
//   - [ErrParentNotFound] - referenced parent does not exist
//   - [ErrNodeNotFound] - clone target does not exist
//   - [ErrCorruptTree] - cycle, dangling parent or duplicate id in storage
//   - [ErrStoreUnavailable] - storage I/O failure
package forest
