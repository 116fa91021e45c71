package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// fakeDynamo is an in-memory stand-in for the DynamoDB operations Store uses.
// It models a single node table and a single counter table.
type fakeDynamo struct {
	mu       sync.Mutex
	nodes    map[int64]map[string]types.AttributeValue
	counters map[string]int64

	// pageSize limits Scan pages when > 0.
	pageSize int

	// txErrs are returned, in order, by the next TransactWriteItems calls.
	txErrs  []error
	scanErr error

	txCalls    int
	scanInputs []dynamodb.ScanInput
	getInputs  []dynamodb.GetItemInput
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{
		nodes:    make(map[int64]map[string]types.AttributeValue),
		counters: make(map[string]int64),
	}
}

func keyID(key map[string]types.AttributeValue) int64 {
	n, ok := key["id"].(*types.AttributeValueMemberN)
	if !ok {
		panic("fake: missing numeric id")
	}
	id, err := strconv.ParseInt(n.Value, 10, 64)
	if err != nil {
		panic(err)
	}
	return id
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getInputs = append(f.getInputs, *in)

	item, ok := f.nodes[keyID(in.Key)]
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}
	return &dynamodb.GetItemOutput{Item: item}, nil
}

func (f *fakeDynamo) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	name := in.Key["name"].(*types.AttributeValueMemberS).Value
	f.counters[name]++
	return &dynamodb.UpdateItemOutput{
		Attributes: map[string]types.AttributeValue{
			"value": &types.AttributeValueMemberN{Value: strconv.FormatInt(f.counters[name], 10)},
		},
	}, nil
}

func (f *fakeDynamo) TransactWriteItems(_ context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txCalls++

	if len(f.txErrs) > 0 {
		err := f.txErrs[0]
		f.txErrs = f.txErrs[1:]
		return nil, err
	}

	reasons := make([]types.CancellationReason, len(in.TransactItems))
	failed := false
	for i, item := range in.TransactItems {
		reasons[i] = types.CancellationReason{Code: aws.String("None")}
		switch {
		case item.ConditionCheck != nil:
			if _, ok := f.nodes[keyID(item.ConditionCheck.Key)]; !ok {
				reasons[i].Code = aws.String("ConditionalCheckFailed")
				failed = true
			}
		case item.Put != nil:
			if _, ok := f.nodes[keyID(item.Put.Item)]; ok {
				reasons[i].Code = aws.String("ConditionalCheckFailed")
				failed = true
			}
		default:
			return nil, errors.New("fake: unsupported transact item")
		}
	}
	if failed {
		return nil, &types.TransactionCanceledException{
			Message:             aws.String("Transaction cancelled"),
			CancellationReasons: reasons,
		}
	}

	for _, item := range in.TransactItems {
		if item.Put != nil {
			f.nodes[keyID(item.Put.Item)] = item.Put.Item
		}
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

func (f *fakeDynamo) Scan(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scanInputs = append(f.scanInputs, *in)

	if f.scanErr != nil {
		return nil, f.scanErr
	}

	var ids []int64
	for id := range f.nodes {
		if in.TotalSegments != nil && id%int64(*in.TotalSegments) != int64(*in.Segment) {
			continue
		}
		if in.ExclusiveStartKey != nil && id <= keyID(in.ExclusiveStartKey) {
			continue
		}
		ids = append(ids, id)
	}
	slices.Sort(ids)
	// Return pages in descending order inside each page so callers cannot
	// rely on scan order.
	out := &dynamodb.ScanOutput{}
	if f.pageSize > 0 && len(ids) > f.pageSize {
		ids = ids[:f.pageSize]
		out.LastEvaluatedKey = nodeKey(ids[len(ids)-1])
	}
	for i := len(ids) - 1; i >= 0; i-- {
		out.Items = append(out.Items, f.nodes[ids[i]])
	}
	out.Count = int32(len(out.Items))
	return out, nil
}

// put stores a raw node item, bypassing transactions.
func (f *fakeDynamo) put(id int64, label string, parent *int64) {
	item := map[string]types.AttributeValue{
		"id":         &types.AttributeValueMemberN{Value: strconv.FormatInt(id, 10)},
		"label":      &types.AttributeValueMemberS{Value: label},
		"created_at": &types.AttributeValueMemberS{Value: "2024-01-02T03:04:05Z"},
	}
	if parent != nil {
		item["parent_id"] = &types.AttributeValueMemberN{Value: fmt.Sprint(*parent)}
	}
	f.mu.Lock()
	f.nodes[id] = item
	f.mu.Unlock()
}

func conflictErr() error {
	return &types.TransactionCanceledException{
		Message: aws.String("Transaction cancelled"),
		CancellationReasons: []types.CancellationReason{
			{Code: aws.String("None")},
			{Code: aws.String("TransactionConflict")},
		},
	}
}
