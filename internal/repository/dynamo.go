package repository

import (
	"context"
	"errors"
	"fmt"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	walldropaws "github.com/dharsanguruparan/WallDrop/internal/aws"
	"github.com/dharsanguruparan/WallDrop/internal/catalog"
	"github.com/dharsanguruparan/WallDrop/internal/model"
)

// MaxTransactItems is DynamoDB's TransactWriteItems limit.
const MaxTransactItems = 100

const batchWriteLimit = 25

// Dynamo stores wallpapers in one table keyed by id and categories in a
// second table keyed by value.
type Dynamo struct {
	client          walldropaws.DynamoDBAPI
	table           string
	categoriesTable string
}

// NewDynamo constructs a DynamoDB backed store.
func NewDynamo(client walldropaws.DynamoDBAPI, table, categoriesTable string) *Dynamo {
	return &Dynamo{client: client, table: table, categoriesTable: categoriesTable}
}

type categoryItem struct {
	Value string `dynamodbav:"value"`
	Label string `dynamodbav:"label"`
}

func idKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{"id": &types.AttributeValueMemberS{Value: id}}
}

// NewID implements catalog.Store.
func (d *Dynamo) NewID() string {
	return uuid.NewString()
}

// CommitBatch writes docs with a single TransactWriteItems call.
func (d *Dynamo) CommitBatch(ctx context.Context, docs []model.CatalogDocument) error {
	if len(docs) == 0 {
		return nil
	}
	if len(docs) > MaxTransactItems {
		return fmt.Errorf("batch of %d exceeds %d items", len(docs), MaxTransactItems)
	}
	items := make([]types.TransactWriteItem, 0, len(docs))
	for _, doc := range docs {
		av, err := attributevalue.MarshalMap(doc)
		if err != nil {
			return fmt.Errorf("marshal wallpaper %s: %w", doc.ID, err)
		}
		items = append(items, types.TransactWriteItem{Put: &types.Put{
			TableName:           sdkaws.String(d.table),
			Item:                av,
			ConditionExpression: sdkaws.String("attribute_not_exists(id)"),
		}})
	}
	_, err := d.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
	if err != nil {
		var tce *types.TransactionCanceledException
		if errors.As(err, &tce) {
			return fmt.Errorf("publication batch canceled: %w", err)
		}
		return fmt.Errorf("transact write: %w", err)
	}
	return nil
}

// Get implements catalog.Store.
func (d *Dynamo) Get(ctx context.Context, id string) (model.CatalogDocument, error) {
	out, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{TableName: sdkaws.String(d.table), Key: idKey(id)})
	if err != nil {
		return model.CatalogDocument{}, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return model.CatalogDocument{}, catalog.ErrNotFound
	}
	return unmarshalDoc(out.Item)
}

// Put implements catalog.Store.
func (d *Dynamo) Put(ctx context.Context, doc model.CatalogDocument) error {
	av, err := attributevalue.MarshalMap(doc)
	if err != nil {
		return fmt.Errorf("marshal wallpaper: %w", err)
	}
	if _, err := d.client.PutItem(ctx, &dynamodb.PutItemInput{TableName: sdkaws.String(d.table), Item: av}); err != nil {
		return fmt.Errorf("put item: %w", err)
	}
	return nil
}

// Delete implements catalog.Store.
func (d *Dynamo) Delete(ctx context.Context, id string) error {
	_, err := d.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           sdkaws.String(d.table),
		Key:                 idKey(id),
		ConditionExpression: sdkaws.String("attribute_exists(id)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return catalog.ErrNotFound
		}
		return fmt.Errorf("delete item: %w", err)
	}
	return nil
}

// DeleteAll removes every wallpaper in chunks of 25.
func (d *Dynamo) DeleteAll(ctx context.Context) (int, error) {
	items, err := d.scan(ctx, d.table, "id")
	if err != nil {
		return 0, err
	}
	deleted := 0
	for start := 0; start < len(items); start += batchWriteLimit {
		end := start + batchWriteLimit
		if end > len(items) {
			end = len(items)
		}
		reqs := make([]types.WriteRequest, 0, end-start)
		for _, it := range items[start:end] {
			reqs = append(reqs, types.WriteRequest{DeleteRequest: &types.DeleteRequest{Key: map[string]types.AttributeValue{"id": it["id"]}}})
		}
		pending := map[string][]types.WriteRequest{d.table: reqs}
		for attempt := 0; len(pending) > 0; attempt++ {
			if attempt == 5 {
				return deleted, fmt.Errorf("delete wallpapers: unprocessed items after %d attempts", attempt)
			}
			out, err := d.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: pending})
			if err != nil {
				return deleted, fmt.Errorf("batch delete: %w", err)
			}
			pending = out.UnprocessedItems
		}
		deleted += end - start
	}
	return deleted, nil
}

// List scans the table and pages in memory; the catalog is small enough
// that a scan is cheaper than maintaining search indexes.
func (d *Dynamo) List(ctx context.Context, q catalog.Query) (catalog.Page, error) {
	items, err := d.scan(ctx, d.table, "")
	if err != nil {
		return catalog.Page{}, err
	}
	docs := make([]model.CatalogDocument, 0, len(items))
	for _, it := range items {
		doc, err := unmarshalDoc(it)
		if err != nil {
			return catalog.Page{}, err
		}
		docs = append(docs, doc)
	}
	return catalog.Paginate(docs, q), nil
}

// ImageURLs implements catalog.Store.
func (d *Dynamo) ImageURLs(ctx context.Context) (map[string]bool, error) {
	items, err := d.scan(ctx, d.table, "image_url")
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(items))
	for _, it := range items {
		if v, ok := it["image_url"].(*types.AttributeValueMemberS); ok {
			out[v.Value] = true
		}
	}
	return out, nil
}

// ListCategories implements categories.Store.
func (d *Dynamo) ListCategories(ctx context.Context) ([]model.CategoryOption, error) {
	items, err := d.scan(ctx, d.categoriesTable, "")
	if err != nil {
		return nil, err
	}
	out := make([]model.CategoryOption, 0, len(items))
	for _, it := range items {
		var c categoryItem
		if err := attributevalue.UnmarshalMap(it, &c); err != nil {
			return nil, fmt.Errorf("unmarshal category: %w", err)
		}
		out = append(out, model.CategoryOption{Label: c.Label, Value: c.Value})
	}
	return out, nil
}

// AddCategory performs a conditional put; losing the race is not an error.
func (d *Dynamo) AddCategory(ctx context.Context, opt model.CategoryOption) (bool, error) {
	av, err := attributevalue.MarshalMap(categoryItem{Value: opt.Value, Label: opt.Label})
	if err != nil {
		return false, fmt.Errorf("marshal category: %w", err)
	}
	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           sdkaws.String(d.categoriesTable),
		Item:                av,
		ConditionExpression: sdkaws.String("attribute_not_exists(#v)"),
		ExpressionAttributeNames: map[string]string{
			"#v": "value",
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return false, nil
		}
		return false, fmt.Errorf("put category: %w", err)
	}
	return true, nil
}

func (d *Dynamo) scan(ctx context.Context, table, projection string) ([]map[string]types.AttributeValue, error) {
	var (
		out   []map[string]types.AttributeValue
		start map[string]types.AttributeValue
	)
	for {
		in := &dynamodb.ScanInput{TableName: sdkaws.String(table), ExclusiveStartKey: start}
		if projection != "" {
			in.ProjectionExpression = sdkaws.String(projection)
		}
		page, err := d.client.Scan(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		out = append(out, page.Items...)
		if len(page.LastEvaluatedKey) == 0 {
			return out, nil
		}
		start = page.LastEvaluatedKey
	}
}

func unmarshalDoc(item map[string]types.AttributeValue) (model.CatalogDocument, error) {
	var doc model.CatalogDocument
	if err := attributevalue.UnmarshalMap(item, &doc); err != nil {
		return doc, fmt.Errorf("unmarshal wallpaper: %w", err)
	}
	if doc.Tags == nil {
		doc.Tags = []string{}
	}
	return doc, nil
}
