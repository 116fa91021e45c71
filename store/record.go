package store

import (
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/grove/forest"
)

// nodeIDCounter is the counter item that allocates node ids.
const nodeIDCounter = "node_id"

// nodeRecord is the persisted layout of a node.
type nodeRecord struct {
	ID        int64     `dynamodbav:"id"`
	Label     string    `dynamodbav:"label"`
	ParentID  *int64    `dynamodbav:"parent_id,omitempty"`
	CreatedAt time.Time `dynamodbav:"created_at"`
}

func (r nodeRecord) node() forest.Node {
	return forest.Node{
		ID:        r.ID,
		Label:     r.Label,
		ParentID:  r.ParentID,
		CreatedAt: r.CreatedAt,
	}
}

// nodeKey returns the primary key of a node item.
func nodeKey(id int64) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"id": &types.AttributeValueMemberN{Value: strconv.FormatInt(id, 10)},
	}
}

// counterKey returns the primary key of a counter item.
func counterKey(name string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"name": &types.AttributeValueMemberS{Value: name},
	}
}

// DecodeNode converts a node table item, such as a stream image, into a Node.
func DecodeNode(item map[string]types.AttributeValue) (forest.Node, error) {
	var rec nodeRecord
	if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
		return forest.Node{}, fmt.Errorf("decode node: %w", err)
	}
	if rec.ID < 1 {
		return forest.Node{}, fmt.Errorf("decode node: missing or invalid id %d", rec.ID)
	}
	return rec.node(), nil
}
