package kv

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	attrKey   = "pk"
	attrValue = "value"
	attrTTL   = "ttl"
)

// dynamodbAPI is the subset of the DynamoDB client used by Dynamo.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// Dynamo stores entries in a DynamoDB table keyed by "pk" with TTL enabled on
// the numeric "ttl" attribute. DynamoDB deletes expired items lazily, so reads
// also check the expiry themselves.
type Dynamo struct {
	api       dynamodbAPI
	tableName string
	now       func() time.Time
}

func NewDynamo(api dynamodbAPI, tableName string) (*Dynamo, error) {
	if api == nil {
		return nil, errors.New("kv: dynamodb api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("kv: dynamodb table name must not be empty")
	}
	return &Dynamo{api: api, tableName: tableName, now: time.Now}, nil
}

func (d *Dynamo) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := d.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(d.tableName),
		Key:            map[string]types.AttributeValue{attrKey: &types.AttributeValueMemberS{Value: key}},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("kv: dynamodb get: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return nil, ErrNotFound
	}

	expires, err := ttlAttr(out.Item)
	if err != nil {
		return nil, fmt.Errorf("kv: dynamodb get: %w", err)
	}
	if expires <= d.now().Unix() {
		return nil, ErrNotFound
	}

	value, ok := out.Item[attrValue].(*types.AttributeValueMemberB)
	if !ok {
		return nil, fmt.Errorf("kv: dynamodb get: attribute %q is not binary", attrValue)
	}
	return value.Value, nil
}

func (d *Dynamo) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	expires := d.now().Add(ttl).Unix()
	_, err := d.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.tableName),
		Item: map[string]types.AttributeValue{
			attrKey:   &types.AttributeValueMemberS{Value: key},
			attrValue: &types.AttributeValueMemberB{Value: value},
			attrTTL:   &types.AttributeValueMemberN{Value: strconv.FormatInt(expires, 10)},
		},
	})
	if err != nil {
		return fmt.Errorf("kv: dynamodb set: %w", err)
	}
	return nil
}

func (d *Dynamo) Delete(ctx context.Context, key string) error {
	_, err := d.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(d.tableName),
		Key:       map[string]types.AttributeValue{attrKey: &types.AttributeValueMemberS{Value: key}},
	})
	if err != nil {
		return fmt.Errorf("kv: dynamodb delete: %w", err)
	}
	return nil
}

// Scan pages through the table filtering on key prefix and expiry.
func (d *Dynamo) Scan(ctx context.Context, prefix string) ([]Entry, error) {
	in := &dynamodb.ScanInput{
		TableName:        aws.String(d.tableName),
		FilterExpression: aws.String("begins_with(#pk, :prefix) AND #ttl > :now"),
		ExpressionAttributeNames: map[string]string{
			"#pk":  attrKey,
			"#ttl": attrTTL,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":prefix": &types.AttributeValueMemberS{Value: prefix},
			":now":    &types.AttributeValueMemberN{Value: strconv.FormatInt(d.now().Unix(), 10)},
		},
	}

	var out []Entry
	for {
		page, err := d.api.Scan(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("kv: dynamodb scan: %w", err)
		}
		for _, item := range page.Items {
			key, ok := item[attrKey].(*types.AttributeValueMemberS)
			if !ok {
				continue
			}
			value, ok := item[attrValue].(*types.AttributeValueMemberB)
			if !ok {
				continue
			}
			out = append(out, Entry{Key: key.Value, Value: value.Value})
		}
		if len(page.LastEvaluatedKey) == 0 {
			break
		}
		in.ExclusiveStartKey = page.LastEvaluatedKey
	}
	return out, nil
}

func (d *Dynamo) Ping(ctx context.Context) error {
	_, err := d.api.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(d.tableName)})
	if err != nil {
		return fmt.Errorf("kv: dynamodb ping: %w", err)
	}
	return nil
}

func ttlAttr(item map[string]types.AttributeValue) (int64, error) {
	v, ok := item[attrTTL]
	if !ok {
		return 0, fmt.Errorf("missing attribute %q", attrTTL)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("attribute %q is not a number", attrTTL)
	}
	parsed, err := strconv.ParseInt(n.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse attribute %q: %w", attrTTL, err)
	}
	return parsed, nil
}
