package store

import (
	"errors"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/grove/forest"
)

// mapCreateTransactionError maps DynamoDB transaction errors for Create.
// parentCheckIndex is the index of the parent check item (-1 if none).
// nodePutIndex is the index of the node put item.
func mapCreateTransactionError(err error, parentCheckIndex, nodePutIndex int, id int64, parentID *int64) error {
	if err == nil {
		return nil
	}

	var txErr *types.TransactionCanceledException
	if errors.As(err, &txErr) {
		for i, reason := range txErr.CancellationReasons {
			if reason.Code == nil || *reason.Code != "ConditionalCheckFailed" {
				continue
			}
			if i == parentCheckIndex && parentID != nil {
				return &forest.ParentNotFoundError{ParentID: *parentID}
			}
			if i == nodePutIndex {
				// The counter handed out an id that is already taken.
				return &forest.CorruptTreeError{NodeID: id, Reason: "allocated id already in use"}
			}
		}
	}

	return forest.Unavailable("create", err)
}

// isTransactionConflict reports whether a transaction was cancelled only
// because another transaction touched the same items.
func isTransactionConflict(err error) bool {
	var txErr *types.TransactionCanceledException
	if !errors.As(err, &txErr) {
		return false
	}
	conflict := false
	for _, reason := range txErr.CancellationReasons {
		if reason.Code == nil {
			continue
		}
		switch *reason.Code {
		case "TransactionConflict":
			conflict = true
		case "None", "":
		default:
			return false
		}
	}
	return conflict
}
