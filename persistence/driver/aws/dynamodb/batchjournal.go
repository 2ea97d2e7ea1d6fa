// Package dynamodb provides implementations of the persistence contracts that
// store data in AWS DynamoDB tables.
package dynamodb

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/dogmatiq/batchlog/persistence/batchjournal"
	"github.com/dogmatiq/batchlog/persistence/driver/aws/internal/awsx"
	"github.com/google/uuid"
)

// JournalStore is an implementation of [batchjournal.Store] that persists
// journal entries in a DynamoDB table.
//
// The table must have a composite primary key consisting of a "Journal"
// partition key (string) and an "ID" sort key (binary).
type JournalStore struct {
	// Client is the DynamoDB client to use.
	Client *dynamodb.Client

	// Table is the table name used for storage of journal entries.
	Table string

	// DecorateQuery is an optional function that is called before each
	// DynamoDB "Query" request.
	//
	// It may modify the API input in-place. It returns options that will be
	// applied to the request.
	DecorateQuery func(*dynamodb.QueryInput) []func(*dynamodb.Options)

	// DecorateBatchWriteItem is an optional function that is called before
	// each DynamoDB "BatchWriteItem" request.
	//
	// It may modify the API input in-place. It returns options that will be
	// applied to the request.
	DecorateBatchWriteItem func(*dynamodb.BatchWriteItemInput) []func(*dynamodb.Options)

	// DecorateDeleteItem is an optional function that is called before each
	// DynamoDB "DeleteItem" request.
	//
	// It may modify the API input in-place. It returns options that will be
	// applied to the request.
	DecorateDeleteItem func(*dynamodb.DeleteItemInput) []func(*dynamodb.Options)
}

const (
	journalAttr   = "Journal"
	idAttr        = "ID"
	writtenAtAttr = "WrittenAt"
	payloadAttr   = "Payload"

	// maxBatchWriteSize is the maximum number of put requests allowed in a
	// single DynamoDB "BatchWriteItem" request.
	maxBatchWriteSize = 25
)

// Open returns the journal with the given name.
func (s *JournalStore) Open(ctx context.Context, name string) (batchjournal.Journal, error) {
	return &journalHandle{
		store: s,
		name:  &types.AttributeValueMemberS{Value: name},
	}, ctx.Err()
}

type journalHandle struct {
	store *JournalStore
	name  *types.AttributeValueMemberS

	m      sync.Mutex
	staged []batchjournal.Entry
}

// Append stages e in memory until the next call to Flush.
func (h *journalHandle) Append(ctx context.Context, e batchjournal.Entry) error {
	h.m.Lock()
	h.staged = append(h.staged, e)
	h.m.Unlock()

	return ctx.Err()
}

// Flush writes all staged entries to the table.
func (h *journalHandle) Flush(ctx context.Context) error {
	h.m.Lock()
	staged := h.staged
	h.m.Unlock()

	for begin := 0; begin < len(staged); begin += maxBatchWriteSize {
		end := min(begin+maxBatchWriteSize, len(staged))

		if err := h.write(ctx, staged[begin:end]); err != nil {
			return err
		}
	}

	h.m.Lock()
	h.staged = h.staged[len(staged):]
	h.m.Unlock()

	return nil
}

// write puts a single page of staged entries, retrying any writes that
// DynamoDB reports as unprocessed.
func (h *journalHandle) write(ctx context.Context, entries []batchjournal.Entry) error {
	requests := make([]types.WriteRequest, len(entries))

	for i, e := range entries {
		id := e.ID
		requests[i] = types.WriteRequest{
			PutRequest: &types.PutRequest{
				Item: map[string]types.AttributeValue{
					journalAttr:   h.name,
					idAttr:        &types.AttributeValueMemberB{Value: id[:]},
					writtenAtAttr: &types.AttributeValueMemberN{Value: strconv.FormatInt(e.WrittenAt, 10)},
					payloadAttr:   &types.AttributeValueMemberB{Value: e.Payload},
				},
			},
		}
	}

	for len(requests) != 0 {
		out, err := awsx.Do(
			ctx,
			h.store.Client.BatchWriteItem,
			h.store.DecorateBatchWriteItem,
			&dynamodb.BatchWriteItemInput{
				RequestItems: map[string][]types.WriteRequest{
					h.store.Table: requests,
				},
			},
		)
		if err != nil {
			return unavailable(err)
		}

		requests = out.UnprocessedItems[h.store.Table]
	}

	return nil
}

func (h *journalHandle) Range(ctx context.Context, fn batchjournal.RangeFunc) error {
	in := dynamodb.QueryInput{
		TableName:              aws.String(h.store.Table),
		KeyConditionExpression: aws.String(`#J = :J`),
		ProjectionExpression:   aws.String(`#I, #W, #P`),
		ExpressionAttributeNames: map[string]string{
			"#J": journalAttr,
			"#I": idAttr,
			"#W": writtenAtAttr,
			"#P": payloadAttr,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":J": h.name,
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
			return unavailable(err)
		}

		for _, item := range out.Items {
			e, err := entryFromItem(item)
			if err != nil {
				return err
			}

			ok, err := fn(ctx, e)
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

func (h *journalHandle) Delete(ctx context.Context, id uuid.UUID) error {
	h.m.Lock()
	for i, e := range h.staged {
		if e.ID == id {
			h.staged = append(h.staged[:i], h.staged[i+1:]...)
			break
		}
	}
	h.m.Unlock()

	_, err := awsx.Do(
		ctx,
		h.store.Client.DeleteItem,
		h.store.DecorateDeleteItem,
		&dynamodb.DeleteItemInput{
			TableName: aws.String(h.store.Table),
			Key: map[string]types.AttributeValue{
				journalAttr: h.name,
				idAttr:      &types.AttributeValueMemberB{Value: id[:]},
			},
		},
	)
	if err != nil {
		return unavailable(err)
	}

	return nil
}

func (h *journalHandle) Count(ctx context.Context) (uint64, error) {
	in := dynamodb.QueryInput{
		TableName:              aws.String(h.store.Table),
		KeyConditionExpression: aws.String(`#J = :J`),
		ExpressionAttributeNames: map[string]string{
			"#J": journalAttr,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":J": h.name,
		},
		Select: types.SelectCount,
	}

	var n uint64

	for {
		out, err := awsx.Do(
			ctx,
			h.store.Client.Query,
			h.store.DecorateQuery,
			&in,
		)
		if err != nil {
			return 0, unavailable(err)
		}

		n += uint64(out.Count)

		if out.LastEvaluatedKey == nil {
			break
		}

		in.ExclusiveStartKey = out.LastEvaluatedKey
	}

	h.m.Lock()
	n += uint64(len(h.staged))
	h.m.Unlock()

	return n, nil
}

func (h *journalHandle) Close() error {
	return nil
}

func entryFromItem(item map[string]types.AttributeValue) (batchjournal.Entry, error) {
	var e batchjournal.Entry

	idA, err := getAttr[*types.AttributeValueMemberB](item, idAttr)
	if err != nil {
		return e, err
	}

	id, err := uuid.FromBytes(idA.Value)
	if err != nil {
		return e, err
	}

	writtenAtA, err := getAttr[*types.AttributeValueMemberN](item, writtenAtAttr)
	if err != nil {
		return e, err
	}

	writtenAt, err := strconv.ParseInt(writtenAtA.Value, 10, 64)
	if err != nil {
		return e, err
	}

	payloadA, err := getAttr[*types.AttributeValueMemberB](item, payloadAttr)
	if err != nil {
		return e, err
	}

	e.ID = id
	e.WrittenAt = writtenAt
	e.Payload = payloadA.Value

	return e, nil
}

// unavailable reports err as a store-level availability failure.
func unavailable(err error) error {
	return fmt.Errorf("%w: %w", batchjournal.ErrUnavailable, err)
}
