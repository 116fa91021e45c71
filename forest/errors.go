package forest

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrInvalidLabel is matched by label policy failures.
	ErrInvalidLabel = errors.New("grove: invalid label")

	// ErrParentNotFound is matched when a referenced parent does not exist.
	ErrParentNotFound = errors.New("grove: parent node does not exist")

	// ErrNodeNotFound is matched when a referenced node (other than a parent) does not exist.
	ErrNodeNotFound = errors.New("grove: node does not exist")

	// ErrCorruptTree is matched when stored records violate the forest invariants.
	ErrCorruptTree = errors.New("grove: corrupt tree")

	// ErrStoreUnavailable is matched by storage I/O failures.
	ErrStoreUnavailable = errors.New("grove: store unavailable")
)

// InvalidLabelError describes why a label was rejected.
type InvalidLabelError struct {
	Label  string
	Reason string
}

func (e *InvalidLabelError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalidLabel, e.Reason)
}

// Is reports whether target is ErrInvalidLabel.
func (e *InvalidLabelError) Is(target error) bool { return target == ErrInvalidLabel }

// ParentNotFoundError names the parent id that did not resolve.
type ParentNotFoundError struct {
	ParentID int64
}

func (e *ParentNotFoundError) Error() string {
	return fmt.Sprintf("%s: id %d", ErrParentNotFound, e.ParentID)
}

// Is reports whether target is ErrParentNotFound.
func (e *ParentNotFoundError) Is(target error) bool { return target == ErrParentNotFound }

// NodeNotFoundError names the node id that did not resolve.
type NodeNotFoundError struct {
	ID int64
}

func (e *NodeNotFoundError) Error() string {
	return fmt.Sprintf("%s: id %d", ErrNodeNotFound, e.ID)
}

// Is reports whether target is ErrNodeNotFound.
func (e *NodeNotFoundError) Is(target error) bool { return target == ErrNodeNotFound }

// CorruptTreeError reports an integrity violation found in stored records.
// It is never caused by caller input.
type CorruptTreeError struct {
	NodeID int64
	Reason string
}

func (e *CorruptTreeError) Error() string {
	return fmt.Sprintf("%s: node %d: %s", ErrCorruptTree, e.NodeID, e.Reason)
}

// Is reports whether target is ErrCorruptTree.
func (e *CorruptTreeError) Is(target error) bool { return target == ErrCorruptTree }

// StoreUnavailableError wraps an underlying storage failure.
type StoreUnavailableError struct {
	Op  string
	Err error
}

func (e *StoreUnavailableError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", ErrStoreUnavailable, e.Op)
	}
	return fmt.Sprintf("%s: %s: %v", ErrStoreUnavailable, e.Op, e.Err)
}

// Is reports whether target is ErrStoreUnavailable.
func (e *StoreUnavailableError) Is(target error) bool { return target == ErrStoreUnavailable }

// Unwrap returns the underlying storage error.
func (e *StoreUnavailableError) Unwrap() error { return e.Err }

// Unavailable wraps err as a StoreUnavailableError for op.
// Errors that already carry one of the package kinds are returned unchanged.
func Unavailable(op string, err error) error {
	if err == nil || IsKnown(err) {
		return err
	}
	return &StoreUnavailableError{Op: op, Err: err}
}

// IsKnown reports whether err matches one of the package sentinels.
func IsKnown(err error) bool {
	return errors.Is(err, ErrInvalidLabel) ||
		errors.Is(err, ErrParentNotFound) ||
		errors.Is(err, ErrNodeNotFound) ||
		errors.Is(err, ErrCorruptTree) ||
		errors.Is(err, ErrStoreUnavailable)
}

// IsCancelled reports whether err stems from the caller's context being
// cancelled or running past its deadline.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
