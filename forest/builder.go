package forest

import (
	"cmp"
	"slices"
)

// Build materializes a flat node set into an ordered forest.
//
// Roots and sibling groups are ordered by ascending id regardless of input
// order. The input slice is not modified. An empty input yields an empty,
// non-nil forest.
//
// Build returns a *CorruptTreeError when ids repeat, when a parent id does
// not resolve, or when parent references form a cycle.
func Build(nodes []Node) ([]*View, error) {
	sorted := slices.Clone(nodes)
	slices.SortFunc(sorted, func(a, b Node) int { return cmp.Compare(a.ID, b.ID) })

	// Pass 1: index nodes and group children under their parent.
	byID := make(map[int64]*Node, len(sorted))
	children := make(map[int64][]int64)
	var roots []int64

	for i := range sorted {
		n := &sorted[i]
		if _, dup := byID[n.ID]; dup {
			return nil, &CorruptTreeError{NodeID: n.ID, Reason: "duplicate id"}
		}
		byID[n.ID] = n
		if n.ParentID == nil {
			roots = append(roots, n.ID)
			continue
		}
		children[*n.ParentID] = append(children[*n.ParentID], n.ID)
	}

	for i := range sorted {
		n := &sorted[i]
		if n.ParentID == nil {
			continue
		}
		if _, ok := byID[*n.ParentID]; !ok {
			return nil, &CorruptTreeError{NodeID: n.ID, Reason: "dangling parent reference"}
		}
	}

	// Pass 2: assemble each root with an explicit stack.
	forest := make([]*View, 0, len(roots))
	placed := make(map[int64]bool, len(sorted))
	onPath := make(map[int64]bool)

	type frame struct {
		view *View
		next int
	}

	for _, rootID := range roots {
		root := newView(byID[rootID], len(children[rootID]))
		forest = append(forest, root)
		placed[rootID] = true
		onPath[rootID] = true

		stack := []frame{{view: root}}
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			kids := children[top.view.ID]
			if top.next == len(kids) {
				delete(onPath, top.view.ID)
				stack = stack[:len(stack)-1]
				continue
			}

			childID := kids[top.next]
			top.next++

			if onPath[childID] {
				return nil, &CorruptTreeError{NodeID: childID, Reason: "node is its own ancestor"}
			}
			if placed[childID] {
				return nil, &CorruptTreeError{NodeID: childID, Reason: "node reached more than once"}
			}

			child := newView(byID[childID], len(children[childID]))
			top.view.Children = append(top.view.Children, child)
			placed[childID] = true
			onPath[childID] = true
			stack = append(stack, frame{view: child})
		}
	}

	// Whatever was not reached from a root hangs off a parent cycle.
	if len(placed) != len(sorted) {
		for i := range sorted {
			if !placed[sorted[i].ID] {
				return nil, &CorruptTreeError{NodeID: sorted[i].ID, Reason: "node is its own ancestor"}
			}
		}
	}

	return forest, nil
}

func newView(n *Node, childCap int) *View {
	return &View{
		ID:       n.ID,
		Label:    n.Label,
		Children: make([]*View, 0, childCap),
	}
}

// Walk visits every view depth-first in pre-order, passing its depth
// (0 for roots). Returning false from fn skips the view's children.
func Walk(forest []*View, fn func(depth int, v *View) bool) {
	type item struct {
		view  *View
		depth int
	}

	stack := make([]item, 0, len(forest))
	for i := len(forest) - 1; i >= 0; i-- {
		stack = append(stack, item{view: forest[i]})
	}

	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !fn(it.depth, it.view) {
			continue
		}
		for i := len(it.view.Children) - 1; i >= 0; i-- {
			stack = append(stack, item{view: it.view.Children[i], depth: it.depth + 1})
		}
	}
}

// Count returns the number of views in the forest.
func Count(forest []*View) int {
	n := 0
	Walk(forest, func(int, *View) bool {
		n++
		return true
	})
	return n
}

// Find returns the view with the given id, or nil.
func Find(forest []*View, id int64) *View {
	var found *View
	Walk(forest, func(_ int, v *View) bool {
		if found != nil {
			return false
		}
		if v.ID == id {
			found = v
			return false
		}
		return true
	})
	return found
}
