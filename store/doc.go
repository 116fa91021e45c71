// Package store provides a DynamoDB-backed forest.NodeStore.
//
// Nodes live in a single table keyed by a numeric id. Ids come from an atomic
// counter item in a second table, so they are monotonic and never reused: an
// id whose create fails is simply skipped.
//
// # Atomic parent validation
//
// Create writes the node with one TransactWriteItems call that carries a
// ConditionCheck on the parent. The transaction commits only if the parent
// exists at commit time, so a node can never point at a missing parent and is
// never visible half-written.
//
// # Reads
//
// FetchAll is a strongly consistent Scan, optionally split into parallel
// segments:
//
//	cfg := store.DefaultConfig()
//	cfg.ScanSegments = 4
//
// # Tables
//
// [CreateTables] provisions both tables with on-demand billing:
//
//   - nodes: hash key "id" (N); attributes label, parent_id, created_at
//   - counters: hash key "name" (S); attribute value (N)
package store
