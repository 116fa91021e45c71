package forest

import (
	"context"
	"time"
)

// Node is a single stored record of the forest.
type Node struct {
	ID        int64     `json:"id"`
	Label     string    `json:"label"`
	ParentID  *int64    `json:"parentId"`
	CreatedAt time.Time `json:"createdAt"`
}

// IsRoot reports whether the node has no parent.
func (n Node) IsRoot() bool {
	return n.ParentID == nil
}

// View is the materialized, read-only form of a node and its descendants.
type View struct {
	ID       int64   `json:"id"`
	Label    string  `json:"label"`
	Children []*View `json:"children"`
}

// NodeStore persists node records.
//
// Implementations must be safe for concurrent use. Create must check the
// parent and insert the node atomically, and a node must be visible to
// FetchAll and Exists as soon as Create returns.
type NodeStore interface {
	// Create assigns a fresh id and persists the node.
	// Returns an error matching ErrParentNotFound if parentID does not resolve.
	Create(ctx context.Context, label string, parentID *int64) (Node, error)

	// FetchAll returns every node in a single bulk read, ordered by id.
	FetchAll(ctx context.Context) ([]Node, error)

	// Exists reports whether a node with the given id exists.
	Exists(ctx context.Context, id int64) (bool, error)
}

// ExistenceChecker is the part of a NodeStore the Validator needs.
type ExistenceChecker interface {
	Exists(ctx context.Context, id int64) (bool, error)
}

// Int64 returns a pointer to v. Handy for optional parent ids.
func Int64(v int64) *int64 {
	return &v
}
