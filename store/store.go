package store

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"golang.org/x/sync/errgroup"

	"github.com/jacentio/grove/forest"
)

// API is the subset of *dynamodb.Client used by Store.
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// Store provides DynamoDB operations for forest nodes.
type Store struct {
	client API
	config Config
	now    func() time.Time
}

// New creates a new Store instance.
func New(client API, config Config) *Store {
	config.validate()
	return &Store{
		client: client,
		config: config,
		now:    time.Now,
	}
}

// Config returns the effective configuration.
func (s *Store) Config() Config {
	return s.config
}

// Create allocates an id and writes the node, checking the parent in the same transaction.
func (s *Store) Create(ctx context.Context, label string, parentID *int64) (forest.Node, error) {
	id, err := s.nextID(ctx)
	if err != nil {
		return forest.Node{}, forest.Unavailable("allocate id", err)
	}

	rec := nodeRecord{
		ID:        id,
		Label:     label,
		ParentID:  parentID,
		CreatedAt: s.now().UTC(),
	}
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return forest.Node{}, fmt.Errorf("marshal node: %w", err)
	}

	items := []types.TransactWriteItem{}

	// Track item indices for error mapping
	parentCheckIndex := -1
	nodePutIndex := -1

	// 1. Parent must exist when the transaction commits
	if parentID != nil {
		cond, err := expression.NewBuilder().
			WithCondition(expression.AttributeExists(expression.Name("id"))).
			Build()
		if err != nil {
			return forest.Node{}, fmt.Errorf("build parent condition: %w", err)
		}
		parentCheckIndex = len(items)
		items = append(items, types.TransactWriteItem{
			ConditionCheck: &types.ConditionCheck{
				TableName:                 aws.String(s.config.NodesTable),
				Key:                       nodeKey(*parentID),
				ConditionExpression:       cond.Condition(),
				ExpressionAttributeNames:  cond.Names(),
				ExpressionAttributeValues: cond.Values(),
			},
		})
	}

	// 2. The node itself, never overwriting an existing id
	cond, err := expression.NewBuilder().
		WithCondition(expression.AttributeNotExists(expression.Name("id"))).
		Build()
	if err != nil {
		return forest.Node{}, fmt.Errorf("build put condition: %w", err)
	}
	nodePutIndex = len(items)
	items = append(items, types.TransactWriteItem{
		Put: &types.Put{
			TableName:                 aws.String(s.config.NodesTable),
			Item:                      item,
			ConditionExpression:       cond.Condition(),
			ExpressionAttributeNames:  cond.Names(),
			ExpressionAttributeValues: cond.Values(),
		},
	})

	// 3. Execute, retrying only transactions that were cancelled by a conflict
	input := &dynamodb.TransactWriteItemsInput{TransactItems: items}
	for attempt := 0; ; attempt++ {
		_, err = s.client.TransactWriteItems(ctx, input)
		if err == nil || !isTransactionConflict(err) || attempt >= s.config.ConflictRetries {
			break
		}
		if werr := sleepCtx(ctx, conflictBackoff(attempt)); werr != nil {
			return forest.Node{}, forest.Unavailable("create", werr)
		}
	}

	if err := mapCreateTransactionError(err, parentCheckIndex, nodePutIndex, id, parentID); err != nil {
		return forest.Node{}, err
	}
	return rec.node(), nil
}

// FetchAll scans the node table with strongly consistent reads and returns
// every node ordered by id.
func (s *Store) FetchAll(ctx context.Context) ([]forest.Node, error) {
	segments := s.config.ScanSegments

	// Fast path for a single segment (default)
	if segments == 1 {
		recs, err := s.scanSegment(ctx, 0, 1)
		if err != nil {
			return nil, forest.Unavailable("scan", err)
		}
		return sortedNodes(recs), nil
	}

	// Multi-segment fan-out
	results := make([][]nodeRecord, segments)
	g, gctx := errgroup.WithContext(ctx)
	for seg := 0; seg < segments; seg++ {
		seg := seg
		g.Go(func() error {
			recs, err := s.scanSegment(gctx, int32(seg), int32(segments))
			if err != nil {
				return fmt.Errorf("segment %d: %w", seg, err)
			}
			results[seg] = recs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, forest.Unavailable("scan", err)
	}

	var all []nodeRecord
	for _, recs := range results {
		all = append(all, recs...)
	}
	return sortedNodes(all), nil
}

// Exists reports whether a node exists, using a strongly consistent read.
func (s *Store) Exists(ctx context.Context, id int64) (bool, error) {
	proj, err := expression.NewBuilder().
		WithProjection(expression.NamesList(expression.Name("id"))).
		Build()
	if err != nil {
		return false, fmt.Errorf("build projection: %w", err)
	}

	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:                aws.String(s.config.NodesTable),
		Key:                      nodeKey(id),
		ConsistentRead:           aws.Bool(true),
		ProjectionExpression:     proj.Projection(),
		ExpressionAttributeNames: proj.Names(),
	})
	if err != nil {
		return false, forest.Unavailable("exists", err)
	}
	return result.Item != nil, nil
}

// nextID atomically increments the node id counter and returns the new value.
func (s *Store) nextID(ctx context.Context) (int64, error) {
	upd, err := expression.NewBuilder().
		WithUpdate(expression.Add(expression.Name("value"), expression.Value(1))).
		Build()
	if err != nil {
		return 0, fmt.Errorf("build counter update: %w", err)
	}

	result, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.config.CounterTable),
		Key:                       counterKey(nodeIDCounter),
		UpdateExpression:          upd.Update(),
		ExpressionAttributeNames:  upd.Names(),
		ExpressionAttributeValues: upd.Values(),
		ReturnValues:              types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return 0, err
	}

	var counter struct {
		Value int64 `dynamodbav:"value"`
	}
	if err := attributevalue.UnmarshalMap(result.Attributes, &counter); err != nil {
		return 0, fmt.Errorf("unmarshal counter: %w", err)
	}
	if counter.Value < 1 {
		return 0, fmt.Errorf("counter returned invalid id %d", counter.Value)
	}
	return counter.Value, nil
}

// scanSegment reads one Scan segment to completion.
func (s *Store) scanSegment(ctx context.Context, segment, total int32) ([]nodeRecord, error) {
	input := &dynamodb.ScanInput{
		TableName:      aws.String(s.config.NodesTable),
		ConsistentRead: aws.Bool(true),
	}
	if total > 1 {
		input.Segment = aws.Int32(segment)
		input.TotalSegments = aws.Int32(total)
	}

	var recs []nodeRecord
	paginator := dynamodb.NewScanPaginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		var pageRecs []nodeRecord
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &pageRecs); err != nil {
			return nil, fmt.Errorf("unmarshal nodes: %w", err)
		}
		recs = append(recs, pageRecs...)
	}
	return recs, nil
}

func sortedNodes(recs []nodeRecord) []forest.Node {
	nodes := make([]forest.Node, 0, len(recs))
	for _, r := range recs {
		nodes = append(nodes, r.node())
	}
	slices.SortFunc(nodes, func(a, b forest.Node) int { return cmp.Compare(a.ID, b.ID) })
	return nodes
}

// conflictBackoff returns the wait before retry attempt+1.
func conflictBackoff(attempt int) time.Duration {
	return time.Duration(attempt+1) * 25 * time.Millisecond
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
