package stream

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type existsFunc func(ctx context.Context, id int64) (bool, error)

func (f existsFunc) Exists(ctx context.Context, id int64) (bool, error) { return f(ctx, id) }

func onlyIDs(ids ...int64) existsFunc {
	return func(_ context.Context, id int64) (bool, error) {
		for _, known := range ids {
			if known == id {
				return true, nil
			}
		}
		return false, nil
	}
}

func insert(eventID string, id int64, parent *int64) events.DynamoDBEventRecord {
	image := map[string]events.DynamoDBAttributeValue{
		"id":         events.NewNumberAttribute(strconv.FormatInt(id, 10)),
		"label":      events.NewStringAttribute("node"),
		"created_at": events.NewStringAttribute("2024-01-02T03:04:05Z"),
	}
	if parent != nil {
		image["parent_id"] = events.NewNumberAttribute(strconv.FormatInt(*parent, 10))
	}
	return events.DynamoDBEventRecord{
		EventID:   eventID,
		EventName: "INSERT",
		Change:    events.DynamoDBStreamRecord{NewImage: image},
	}
}

func ptr(v int64) *int64 { return &v }

func TestNewHandler(t *testing.T) {
	h := NewHandler(onlyIDs(), nil)
	if h == nil || h.logger == nil {
		t.Fatal("expected handler with a default logger")
	}
}

func TestHandleNodeInserts_EmptyEvent(t *testing.T) {
	h := NewHandler(onlyIDs(), nil)
	if err := h.HandleNodeInserts(context.Background(), events.DynamoDBEvent{}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAudit_ValidInserts(t *testing.T) {
	h := NewHandler(onlyIDs(1, 2), nil)
	event := events.DynamoDBEvent{Records: []events.DynamoDBEventRecord{
		insert("e1", 1, nil),
		insert("e2", 2, ptr(1)),
		insert("e3", 3, ptr(2)),
	}}

	found, err := h.Audit(context.Background(), event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(found) != 0 {
		t.Errorf("expected no violations, got %+v", found)
	}
}

func TestAudit_Violations(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	h := NewHandler(onlyIDs(1), zap.New(core))

	event := events.DynamoDBEvent{Records: []events.DynamoDBEventRecord{
		insert("dangling", 4, ptr(3)),
		insert("self", 5, ptr(5)),
		insert("forward", 6, ptr(9)),
		{EventID: "garbled", EventName: "INSERT", Change: events.DynamoDBStreamRecord{
			NewImage: map[string]events.DynamoDBAttributeValue{"label": events.NewStringAttribute("x")},
		}},
	}}

	found, err := h.Audit(context.Background(), event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []struct {
		eventID string
		reason  string
	}{
		{"dangling", "dangling parent reference"},
		{"self", "parent id not lower than node id"},
		{"forward", "parent id not lower than node id"},
		{"garbled", ""},
	}
	if len(found) != len(want) {
		t.Fatalf("expected %d violations, got %+v", len(want), found)
	}
	for i, w := range want {
		if found[i].EventID != w.eventID {
			t.Errorf("violation %d: event %q, want %q", i, found[i].EventID, w.eventID)
		}
		if w.reason != "" && found[i].Reason != w.reason {
			t.Errorf("violation %d: reason %q, want %q", i, found[i].Reason, w.reason)
		}
	}
	if n := logs.FilterMessage("integrity violation").Len(); n != 4 {
		t.Errorf("expected 4 logged violations, got %d", n)
	}
}

func TestAudit_SkipsOtherEvents(t *testing.T) {
	calls := 0
	h := NewHandler(existsFunc(func(context.Context, int64) (bool, error) {
		calls++
		return false, nil
	}), nil)

	modify := insert("m", 4, ptr(3))
	modify.EventName = "MODIFY"
	remove := insert("r", 4, ptr(3))
	remove.EventName = "REMOVE"

	found, err := h.Audit(context.Background(), events.DynamoDBEvent{
		Records: []events.DynamoDBEventRecord{modify, remove},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(found) != 0 || calls != 0 {
		t.Errorf("expected MODIFY and REMOVE to be ignored, got %d violations and %d lookups", len(found), calls)
	}
}

func TestHandleNodeInserts_LookupFailureRetries(t *testing.T) {
	boom := errors.New("throttled")
	h := NewHandler(existsFunc(func(context.Context, int64) (bool, error) {
		return false, boom
	}), nil)

	err := h.HandleNodeInserts(context.Background(), events.DynamoDBEvent{
		Records: []events.DynamoDBEventRecord{insert("e1", 2, ptr(1))},
	})
	if !errors.Is(err, boom) {
		t.Errorf("expected lookup error to be returned, got %v", err)
	}
}
