// Package memory provides an in-process forest.NodeStore.
//
// It keeps every record in a slice guarded by a mutex and is meant for
// development and tests. Records are lost when the process exits.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/jacentio/grove/forest"
)

// Store is a mutex-guarded in-memory node store.
type Store struct {
	mu     sync.RWMutex
	nodes  []forest.Node
	index  map[int64]int
	nextID int64
	now    func() time.Time
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		index:  make(map[int64]int),
		nextID: 1,
		now:    time.Now,
	}
}

// Create checks the parent and appends the node in one critical section.
func (s *Store) Create(ctx context.Context, label string, parentID *int64) (forest.Node, error) {
	if err := ctx.Err(); err != nil {
		return forest.Node{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if parentID != nil {
		if _, ok := s.index[*parentID]; !ok {
			return forest.Node{}, &forest.ParentNotFoundError{ParentID: *parentID}
		}
		parentID = forest.Int64(*parentID)
	}

	node := forest.Node{
		ID:        s.nextID,
		Label:     label,
		ParentID:  parentID,
		CreatedAt: s.now().UTC(),
	}
	s.nextID++
	s.index[node.ID] = len(s.nodes)
	s.nodes = append(s.nodes, node)
	return node, nil
}

// FetchAll returns a copy of every node, ordered by id.
func (s *Store) FetchAll(ctx context.Context) ([]forest.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	// Appends happen in id order, so the slice is already sorted.
	nodes := slices.Clone(s.nodes)
	for i := range nodes {
		if p := nodes[i].ParentID; p != nil {
			nodes[i].ParentID = forest.Int64(*p)
		}
	}
	return nodes, nil
}

// Exists reports whether id has been created.
func (s *Store) Exists(ctx context.Context, id int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.index[id]
	return ok, nil
}

// Len returns the number of stored nodes.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}
