package repository

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// dynamoMock is a small in-memory stand-in for the DynamoDB calls the store
// makes. Items are keyed by their "id" or, for categories, "value" attribute.
type dynamoMock struct {
	mu            sync.Mutex
	tables        map[string]map[string]map[string]types.AttributeValue
	transactCalls int
	failTransact  error
	scanPageSize  int
}

func newDynamoMock() *dynamoMock {
	return &dynamoMock{tables: map[string]map[string]map[string]types.AttributeValue{}, scanPageSize: 2}
}

func itemKey(item map[string]types.AttributeValue) string {
	for _, attr := range []string{"id", "value"} {
		if v, ok := item[attr].(*types.AttributeValueMemberS); ok {
			return v.Value
		}
	}
	return ""
}

func (m *dynamoMock) table(name string) map[string]map[string]types.AttributeValue {
	t, ok := m.tables[name]
	if !ok {
		t = map[string]map[string]types.AttributeValue{}
		m.tables[name] = t
	}
	return t
}

func (m *dynamoMock) GetItem(ctx context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &dynamodb.GetItemOutput{Item: m.table(*in.TableName)[itemKey(in.Key)]}, nil
}

func (m *dynamoMock) PutItem(ctx context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.table(*in.TableName)
	k := itemKey(in.Item)
	if k == "" {
		return nil, errors.New("missing key")
	}
	if in.ConditionExpression != nil {
		if _, exists := t[k]; exists {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}
	t[k] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (m *dynamoMock) DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.table(*in.TableName)
	k := itemKey(in.Key)
	if _, ok := t[k]; !ok && in.ConditionExpression != nil {
		return nil, &types.ConditionalCheckFailedException{}
	}
	delete(t, k)
	return &dynamodb.DeleteItemOutput{}, nil
}

// Scan returns items in key order, scanPageSize at a time.
func (m *dynamoMock) Scan(ctx context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.table(*in.TableName)
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	start := 0
	if in.ExclusiveStartKey != nil {
		after := itemKey(in.ExclusiveStartKey)
		start = sort.SearchStrings(keys, after) + 1
	}
	out := &dynamodb.ScanOutput{}
	for i := start; i < len(keys) && len(out.Items) < m.scanPageSize; i++ {
		out.Items = append(out.Items, t[keys[i]])
		if len(out.Items) == m.scanPageSize && i+1 < len(keys) {
			out.LastEvaluatedKey = map[string]types.AttributeValue{"id": &types.AttributeValueMemberS{Value: keys[i]}}
		}
	}
	return out, nil
}

func (m *dynamoMock) TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transactCalls++
	if m.failTransact != nil {
		return nil, m.failTransact
	}
	for _, it := range in.TransactItems {
		if p := it.Put; p != nil && p.ConditionExpression != nil {
			if _, exists := m.table(*p.TableName)[itemKey(p.Item)]; exists {
				return nil, &types.TransactionCanceledException{}
			}
		}
	}
	for _, it := range in.TransactItems {
		if p := it.Put; p != nil {
			m.table(*p.TableName)[itemKey(p.Item)] = p.Item
		}
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

func (m *dynamoMock) BatchWriteItem(ctx context.Context, in *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for table, reqs := range in.RequestItems {
		if len(reqs) > 25 {
			return nil, errors.New("too many items")
		}
		for _, r := range reqs {
			if r.DeleteRequest != nil {
				delete(m.table(table), itemKey(r.DeleteRequest.Key))
			}
		}
	}
	return &dynamodb.BatchWriteItemOutput{}, nil
}
