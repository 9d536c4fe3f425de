package orders

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/go-scoped-orderflow/internal/aws"
	"github.com/imrishuroy/go-scoped-orderflow/internal/idempotency"
)

// DefaultCountryIndex is the GSI (country HASH, created_at RANGE) used for scoped listing.
const DefaultCountryIndex = "country-created_at-index"

var (
	// ErrStatusMismatch is returned by UpdateStatus when the stored status was
	// not one of the expected source statuses.
	ErrStatusMismatch = errors.New("status mismatch/conditional failed")
	// ErrDuplicate is returned when a create collides with an existing order
	// id or idempotency key.
	ErrDuplicate = errors.New("order or idempotency key already exists")
)

// Store encapsulates operations on the orders table.
type Store struct {
	client           aws.DynamoDBAPI
	tableName        string
	countryIndex     string
	idempotencyTable string
	nowFunc          func() time.Time
}

// NewStore creates a new orders Store.
func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{
		client:       client,
		tableName:    tableName,
		countryIndex: DefaultCountryIndex,
		nowFunc:      time.Now,
	}
}

// WithCountryIndex overrides the GSI name used by ListByCountry.
func (s *Store) WithCountryIndex(name string) *Store {
	if name != "" {
		s.countryIndex = name
	}
	return s
}

// WithIdempotencyTable sets the table written by CreateWithIdempotency.
func (s *Store) WithIdempotencyTable(name string) *Store {
	s.idempotencyTable = name
	return s
}

// Create persists a new order. It fails with ErrDuplicate if the id is taken.
func (s *Store) Create(ctx context.Context, o Order) error {
	item, err := s.marshal(o)
	if err != nil {
		return err
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(order_id)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrDuplicate
		}
		return fmt.Errorf("put item: %w", err)
	}
	return nil
}

// CreateWithIdempotency atomically creates:
//   - idempotency record in the idempotency table (with ConditionExpression attribute_not_exists(idempotency_key))
//   - order record in the orders table (with attribute_not_exists(order_id))
//
// A transaction cancelled by a failed condition means the key was already
// used; ErrDuplicate is returned and the caller should read the existing
// record. Any other cancellation is returned wrapped.
func (s *Store) CreateWithIdempotency(ctx context.Context, rec idempotency.IdempotencyRecord, o Order) error {
	if s.idempotencyTable == "" {
		return errors.New("idempotency table not configured")
	}
	idempMap, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("marshal idempotency item: %w", err)
	}
	orderMap, err := s.marshal(o)
	if err != nil {
		return err
	}

	transactItems := []types.TransactWriteItem{
		{
			Put: &types.Put{
				TableName:           &s.idempotencyTable,
				Item:                idempMap,
				ConditionExpression: awsString("attribute_not_exists(idempotency_key)"),
			},
		},
		{
			Put: &types.Put{
				TableName:           &s.tableName,
				Item:                orderMap,
				ConditionExpression: awsString("attribute_not_exists(order_id)"),
			},
		},
	}

	_, err = s.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{TransactItems: transactItems})
	if err != nil {
		var tce *types.TransactionCanceledException
		if errors.As(err, &tce) && conditionFailed(tce.CancellationReasons) {
			return ErrDuplicate
		}
		return fmt.Errorf("transact write: %w", err)
	}
	return nil
}

// conditionFailed reports whether a transaction was cancelled by a failed
// condition check. Conflicts, throttling and validation errors cancel it too,
// but write nothing and say nothing about existing items.
func conditionFailed(reasons []types.CancellationReason) bool {
	for _, r := range reasons {
		if r.Code != nil && *r.Code == "ConditionalCheckFailed" {
			return true
		}
	}
	return false
}

// Get fetches an order by order_id. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, orderID string) (*Order, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tableName,
		Key:            orderKey(orderID),
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	return unmarshalOrder(out.Item)
}

// ListAll returns every order, newest first.
func (s *Store) ListAll(ctx context.Context) ([]Order, error) {
	var (
		result []Order
		start  map[string]types.AttributeValue
	)
	for {
		out, err := s.client.Scan(ctx, &dyn.ScanInput{
			TableName:         &s.tableName,
			ExclusiveStartKey: start,
		})
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		if result, err = appendOrders(result, out.Items); err != nil {
			return nil, err
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		start = out.LastEvaluatedKey
	}
	sortNewestFirst(result)
	return result, nil
}

// ListByCountry returns the orders of one country, newest first.
func (s *Store) ListByCountry(ctx context.Context, country string) ([]Order, error) {
	var (
		result []Order
		start  map[string]types.AttributeValue
	)
	for {
		out, err := s.client.Query(ctx, &dyn.QueryInput{
			TableName:                 &s.tableName,
			IndexName:                 &s.countryIndex,
			KeyConditionExpression:    awsString("country = :c"),
			ExpressionAttributeValues: map[string]types.AttributeValue{":c": &types.AttributeValueMemberS{Value: country}},
			ScanIndexForward:          awsBool(false),
			ExclusiveStartKey:         start,
		})
		if err != nil {
			return nil, fmt.Errorf("query: %w", err)
		}
		if result, err = appendOrders(result, out.Items); err != nil {
			return nil, err
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		start = out.LastEvaluatedKey
	}
	sortNewestFirst(result)
	return result, nil
}

// UpdateStatus conditionally moves the order to newStatus when its stored
// status is one of from. The check and the write are one conditional
// UpdateItem, so concurrent transitions on the same order cannot both win.
// Returns the updated order, or ErrStatusMismatch if the condition failed.
func (s *Store) UpdateStatus(ctx context.Context, orderID string, from []Status, newStatus Status) (*Order, error) {
	if len(from) == 0 {
		return nil, fmt.Errorf("no source status for %q", newStatus)
	}
	now := s.nowFunc()
	values := map[string]types.AttributeValue{
		":new": &types.AttributeValueMemberS{Value: string(newStatus)},
		":ua":  &types.AttributeValueMemberS{Value: now.UTC().Format(time.RFC3339Nano)},
	}
	placeholders := make([]string, 0, len(from))
	for i, st := range from {
		ph := fmt.Sprintf(":from%d", i)
		placeholders = append(placeholders, ph)
		values[ph] = &types.AttributeValueMemberS{Value: string(st)}
	}

	out, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                 &s.tableName,
		Key:                       orderKey(orderID),
		UpdateExpression:          awsString("SET #s = :new, updated_at = :ua"),
		ConditionExpression:       awsString(fmt.Sprintf("attribute_exists(order_id) AND #s IN (%s)", strings.Join(placeholders, ", "))),
		ExpressionAttributeNames:  map[string]string{"#s": "status"},
		ExpressionAttributeValues: values,
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		// detect conditional check failing
		var sc *types.ConditionalCheckFailedException
		if errors.As(err, &sc) {
			return nil, ErrStatusMismatch
		}
		return nil, fmt.Errorf("update item: %w", err)
	}
	return unmarshalOrder(out.Attributes)
}

func (s *Store) marshal(o Order) (map[string]types.AttributeValue, error) {
	now := s.nowFunc()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	if o.UpdatedAt.IsZero() {
		o.UpdatedAt = o.CreatedAt
	}
	item, err := attributevalue.MarshalMap(toRecord(o))
	if err != nil {
		return nil, fmt.Errorf("marshal order item: %w", err)
	}
	return item, nil
}

func unmarshalOrder(item map[string]types.AttributeValue) (*Order, error) {
	var rec orderRecord
	if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	o, err := rec.toOrder()
	if err != nil {
		return nil, fmt.Errorf("decode order %s: %w", rec.OrderID, err)
	}
	return &o, nil
}

func appendOrders(dst []Order, items []map[string]types.AttributeValue) ([]Order, error) {
	for _, it := range items {
		o, err := unmarshalOrder(it)
		if err != nil {
			return nil, err
		}
		dst = append(dst, *o)
	}
	return dst, nil
}

func sortNewestFirst(list []Order) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
}

func orderKey(orderID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"order_id": &types.AttributeValueMemberS{Value: orderID},
	}
}

func awsString(s string) *string { return &s }

func awsBool(b bool) *bool { return &b }
