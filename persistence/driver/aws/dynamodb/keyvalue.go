package dynamodb

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/dogmatiq/batchlog/persistence/driver/aws/internal/awsx"
	"github.com/dogmatiq/batchlog/persistence/kv"
)

// KeyValueStore is an implementation of [kv.Store] that persists keyspaces in
// a DynamoDB table.
//
// The table must have a composite primary key consisting of a "Keyspace"
// partition key (string) and a "Key" sort key (binary).
type KeyValueStore struct {
	// Client is the DynamoDB client to use.
	Client *dynamodb.Client

	// Table is the table name used for storage of key/value pairs.
	Table string

	// DecorateGetItem is an optional function that is called before each
	// DynamoDB "GetItem" request.
	//
	// It may modify the API input in-place. It returns options that will be
	// applied to the request.
	DecorateGetItem func(*dynamodb.GetItemInput) []func(*dynamodb.Options)

	// DecorateQuery is an optional function that is called before each
	// DynamoDB "Query" request.
	//
	// It may modify the API input in-place. It returns options that will be
	// applied to the request.
	DecorateQuery func(*dynamodb.QueryInput) []func(*dynamodb.Options)

	// DecoratePutItem is an optional function that is called before each
	// DynamoDB "PutItem" request.
	//
	// It may modify the API input in-place. It returns options that will be
	// applied to the request.
	DecoratePutItem func(*dynamodb.PutItemInput) []func(*dynamodb.Options)

	// DecorateDeleteItem is an optional function that is called before each
	// DynamoDB "DeleteItem" request.
	//
	// It may modify the API input in-place. It returns options that will be
	// applied to the request.
	DecorateDeleteItem func(*dynamodb.DeleteItemInput) []func(*dynamodb.Options)
}

const (
	kvKeyspaceAttr = "Keyspace"
	kvKeyAttr      = "Key"
	kvValueAttr    = "Value"
)

// Open returns the keyspace with the given name.
func (s *KeyValueStore) Open(ctx context.Context, name string) (kv.Keyspace, error) {
	return &keyspaceHandle{
		store: s,
		name:  &types.AttributeValueMemberS{Value: name},
	}, ctx.Err()
}

type keyspaceHandle struct {
	store *KeyValueStore
	name  *types.AttributeValueMemberS
}

func (h *keyspaceHandle) Get(ctx context.Context, k []byte) ([]byte, error) {
	out, err := awsx.Do(
		ctx,
		h.store.Client.GetItem,
		h.store.DecorateGetItem,
		&dynamodb.GetItemInput{
			TableName: aws.String(h.store.Table),
			Key: map[string]types.AttributeValue{
				kvKeyspaceAttr: h.name,
				kvKeyAttr:      &types.AttributeValueMemberB{Value: k},
			},
			ProjectionExpression: aws.String(`#V`),
			ExpressionAttributeNames: map[string]string{
				"#V": kvValueAttr,
			},
		},
	)
	if err != nil || out.Item == nil {
		return nil, err
	}

	v, err := getAttr[*types.AttributeValueMemberB](out.Item, kvValueAttr)
	if err != nil {
		return nil, err
	}

	return v.Value, nil
}

func (h *keyspaceHandle) Has(ctx context.Context, k []byte) (bool, error) {
	out, err := awsx.Do(
		ctx,
		h.store.Client.GetItem,
		h.store.DecorateGetItem,
		&dynamodb.GetItemInput{
			TableName: aws.String(h.store.Table),
			Key: map[string]types.AttributeValue{
				kvKeyspaceAttr: h.name,
				kvKeyAttr:      &types.AttributeValueMemberB{Value: k},
			},
			// Request an unknown attribute to avoid fetching unnecessary data.
			ProjectionExpression: aws.String(`NonExistent`),
		},
	)
	if err != nil {
		return false, err
	}

	return out.Item != nil, nil
}

func (h *keyspaceHandle) Set(ctx context.Context, k, v []byte) error {
	if len(v) == 0 {
		_, err := awsx.Do(
			ctx,
			h.store.Client.DeleteItem,
			h.store.DecorateDeleteItem,
			&dynamodb.DeleteItemInput{
				TableName: aws.String(h.store.Table),
				Key: map[string]types.AttributeValue{
					kvKeyspaceAttr: h.name,
					kvKeyAttr:      &types.AttributeValueMemberB{Value: k},
				},
			},
		)
		return err
	}

	_, err := awsx.Do(
		ctx,
		h.store.Client.PutItem,
		h.store.DecoratePutItem,
		&dynamodb.PutItemInput{
			TableName: aws.String(h.store.Table),
			Item: map[string]types.AttributeValue{
				kvKeyspaceAttr: h.name,
				kvKeyAttr:      &types.AttributeValueMemberB{Value: k},
				kvValueAttr:    &types.AttributeValueMemberB{Value: v},
			},
		},
	)
	return err
}

func (h *keyspaceHandle) Range(ctx context.Context, fn kv.RangeFunc) error {
	in := dynamodb.QueryInput{
		TableName:              aws.String(h.store.Table),
		KeyConditionExpression: aws.String(`#S = :S`),
		ProjectionExpression:   aws.String(`#K, #V`),
		ExpressionAttributeNames: map[string]string{
			"#S": kvKeyspaceAttr,
			"#K": kvKeyAttr,
			"#V": kvValueAttr,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":S": h.name,
		},
	}

	for {
		out, err := awsx.Do(
			ctx,
			h.store.Client.Query,
			h.store.DecorateQuery,
			&in,
		)
		if err != nil {
			return err
		}

		for _, item := range out.Items {
			k, err := getAttr[*types.AttributeValueMemberB](item, kvKeyAttr)
			if err != nil {
				return err
			}

			v, err := getAttr[*types.AttributeValueMemberB](item, kvValueAttr)
			if err != nil {
				return err
			}

			ok, err := fn(ctx, k.Value, v.Value)
			if !ok || err != nil {
				return err
			}
		}

		if out.LastEvaluatedKey == nil {
			return nil
		}

		in.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

func (h *keyspaceHandle) Close() error {
	return nil
}
