package stream

import (
	"math"
	"strconv"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// --- getNumberAttr Tests ---

func TestGetNumberAttr(t *testing.T) {
	tests := []struct {
		name  string
		image map[string]events.DynamoDBAttributeValue
		want  int64
	}{
		{"valid", map[string]events.DynamoDBAttributeValue{"id": events.NewNumberAttribute("42")}, 42},
		{"zero", map[string]events.DynamoDBAttributeValue{"id": events.NewNumberAttribute("0")}, 0},
		{"negative", map[string]events.DynamoDBAttributeValue{"id": events.NewNumberAttribute("-7")}, -7},
		{"max int64", map[string]events.DynamoDBAttributeValue{"id": events.NewNumberAttribute(strconv.FormatInt(math.MaxInt64, 10))}, math.MaxInt64},
		{"missing key", map[string]events.DynamoDBAttributeValue{"other": events.NewNumberAttribute("1")}, 0},
		{"string attribute", map[string]events.DynamoDBAttributeValue{"id": events.NewStringAttribute("42")}, 0},
		{"decimal", map[string]events.DynamoDBAttributeValue{"id": events.NewNumberAttribute("1.5")}, 0},
		{"empty image", map[string]events.DynamoDBAttributeValue{}, 0},
		{"nil image", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := getNumberAttr(tt.image, "id"); got != tt.want {
				t.Errorf("getNumberAttr() = %d, want %d", got, tt.want)
			}
		})
	}
}

// --- convertImage Tests ---

func TestConvertImage(t *testing.T) {
	image := map[string]events.DynamoDBAttributeValue{
		"id":         events.NewNumberAttribute("5"),
		"label":      events.NewStringAttribute("日本語テスト"),
		"created_at": events.NewStringAttribute("2024-01-02T03:04:05Z"),
		"blob":       events.NewBinaryAttribute([]byte{1, 2}),
		"parent_id":  events.NewNullAttribute(),
		"tags":       events.NewStringSetAttribute([]string{"x"}),
	}

	result := convertImage(image)

	if len(result) != 5 {
		t.Fatalf("expected 5 attributes, got %d", len(result))
	}
	if n, ok := result["id"].(*types.AttributeValueMemberN); !ok || n.Value != "5" {
		t.Errorf("id = %#v", result["id"])
	}
	if s, ok := result["label"].(*types.AttributeValueMemberS); !ok || s.Value != "日本語テスト" {
		t.Errorf("label = %#v", result["label"])
	}
	if b, ok := result["blob"].(*types.AttributeValueMemberB); !ok || len(b.Value) != 2 {
		t.Errorf("blob = %#v", result["blob"])
	}
	if _, ok := result["parent_id"].(*types.AttributeValueMemberNULL); !ok {
		t.Errorf("parent_id = %#v", result["parent_id"])
	}
	if _, ok := result["tags"]; ok {
		t.Error("expected string set to be dropped")
	}
}

func TestConvertImage_Nil(t *testing.T) {
	result := convertImage(nil)
	if result == nil || len(result) != 0 {
		t.Errorf("expected empty non-nil map, got %#v", result)
	}
}
