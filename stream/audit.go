// Package stream provides DynamoDB Streams handlers that audit the node table.
package stream

import (
	"context"
	"fmt"
	"strconv"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"github.com/jacentio/grove/forest"
	"github.com/jacentio/grove/store"
)

// Violation describes an inserted node that breaks a forest invariant.
type Violation struct {
	EventID  string
	NodeID   int64
	ParentID int64
	Reason   string
}

// Handler checks newly inserted nodes against the forest invariants.
type Handler struct {
	exists forest.ExistenceChecker
	logger *zap.Logger
}

// NewHandler creates a new stream handler.
func NewHandler(exists forest.ExistenceChecker, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		exists: exists,
		logger: logger,
	}
}

// HandleNodeInserts audits INSERT records from the node table stream.
// This function is designed to be used as an AWS Lambda handler.
func (h *Handler) HandleNodeInserts(ctx context.Context, event events.DynamoDBEvent) error {
	_, err := h.Audit(ctx, event)
	return err
}

// Audit returns every violation found in event. Violations are logged, not
// returned as errors; an error means a parent lookup failed and the batch
// should be retried.
func (h *Handler) Audit(ctx context.Context, event events.DynamoDBEvent) ([]Violation, error) {
	var found []Violation
	for _, record := range event.Records {
		v, err := h.processRecord(ctx, record)
		if err != nil {
			h.logger.Error("failed to process record",
				zap.String("eventID", record.EventID),
				zap.Error(err),
			)
			return found, err // Will retry, eventually DLQ
		}
		if v != nil {
			h.logger.Error("integrity violation",
				zap.String("eventID", v.EventID),
				zap.Int64("nodeId", v.NodeID),
				zap.Int64("parentId", v.ParentID),
				zap.String("reason", v.Reason),
			)
			found = append(found, *v)
		}
	}
	return found, nil
}

// processRecord audits a single stream record.
func (h *Handler) processRecord(ctx context.Context, record events.DynamoDBEventRecord) (*Violation, error) {
	// Nodes are never updated or deleted through grove, so only inserts matter
	if record.EventName != string(events.DynamoDBOperationTypeInsert) {
		return nil, nil
	}

	image := record.Change.NewImage
	node, err := store.DecodeNode(convertImage(image))
	if err != nil {
		return &Violation{
			EventID: record.EventID,
			NodeID:  getNumberAttr(image, "id"),
			Reason:  err.Error(),
		}, nil
	}
	if node.IsRoot() {
		return nil, nil
	}

	parentID := *node.ParentID
	violation := func(reason string) *Violation {
		return &Violation{EventID: record.EventID, NodeID: node.ID, ParentID: parentID, Reason: reason}
	}

	// Ids are allocated after the parent check, so a parent is always older
	if parentID >= node.ID {
		return violation("parent id not lower than node id"), nil
	}

	ok, err := h.exists.Exists(ctx, parentID)
	if err != nil {
		return nil, fmt.Errorf("check parent %d of node %d: %w", parentID, node.ID, err)
	}
	if !ok {
		return violation("dangling parent reference"), nil
	}

	h.logger.Debug("node verified",
		zap.Int64("nodeId", node.ID),
		zap.Int64("parentId", parentID),
	)
	return nil, nil
}

// getNumberAttr extracts a number attribute from a DynamoDB stream image.
func getNumberAttr(image map[string]events.DynamoDBAttributeValue, key string) int64 {
	if v, ok := image[key]; ok {
		if v.DataType() == events.DataTypeNumber {
			n, _ := strconv.ParseInt(v.Number(), 10, 64)
			return n
		}
	}
	return 0
}

// convertImage converts a DynamoDB stream image to SDK attribute values.
// Attribute types the node layout never uses are dropped.
func convertImage(image map[string]events.DynamoDBAttributeValue) map[string]types.AttributeValue {
	result := make(map[string]types.AttributeValue, len(image))
	for k, v := range image {
		switch v.DataType() {
		case events.DataTypeString:
			result[k] = &types.AttributeValueMemberS{Value: v.String()}
		case events.DataTypeNumber:
			result[k] = &types.AttributeValueMemberN{Value: v.Number()}
		case events.DataTypeBinary:
			result[k] = &types.AttributeValueMemberB{Value: v.Binary()}
		case events.DataTypeNull:
			result[k] = &types.AttributeValueMemberNULL{Value: true}
		}
	}
	return result
}
