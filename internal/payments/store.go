package payments

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/go-scoped-orderflow/internal/aws"
)

var (
	ErrNotFound  = errors.New("payment method not found")
	ErrDuplicate = errors.New("payment method already exists")
)

// Store encapsulates operations on the payment methods table.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
}

func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{client: client, tableName: tableName}
}

// Put stores a new method; ErrDuplicate if the id is taken.
func (s *Store) Put(ctx context.Context, m PaymentMethod) error {
	return s.put(ctx, m, "attribute_not_exists(payment_method_id)", ErrDuplicate)
}

// Replace overwrites an existing method; ErrNotFound if it is absent.
func (s *Store) Replace(ctx context.Context, m PaymentMethod) error {
	return s.put(ctx, m, "attribute_exists(payment_method_id)", ErrNotFound)
}

func (s *Store) put(ctx context.Context, m PaymentMethod, cond string, condErr error) error {
	item, err := attributevalue.MarshalMap(m)
	if err != nil {
		return fmt.Errorf("marshal payment method: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: &cond,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return condErr
		}
		return fmt.Errorf("put item: %w", err)
	}
	return nil
}

// Get returns (nil, nil) when the method does not exist.
func (s *Store) Get(ctx context.Context, id string) (*PaymentMethod, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key:       methodKey(id),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var m PaymentMethod
	if err := attributevalue.UnmarshalMap(out.Item, &m); err != nil {
		return nil, fmt.Errorf("unmarshal payment method: %w", err)
	}
	return &m, nil
}

// ListAll returns every method, oldest first.
func (s *Store) ListAll(ctx context.Context) ([]PaymentMethod, error) {
	return s.scan(ctx, nil, nil)
}

// ListByScope returns global methods plus those scoped to country, oldest
// first. A blank country yields only global methods.
func (s *Store) ListByScope(ctx context.Context, country string) ([]PaymentMethod, error) {
	values := map[string]types.AttributeValue{
		":global": &types.AttributeValueMemberS{Value: ScopeGlobal},
	}
	filter := "scope_country = :global"
	if scope := ScopeFor(country); scope != ScopeGlobal {
		values[":country"] = &types.AttributeValueMemberS{Value: scope}
		filter = "scope_country IN (:global, :country)"
	}
	return s.scan(ctx, &filter, values)
}

// Delete removes a method; ErrNotFound if it is absent.
func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.client.DeleteItem(ctx, &dyn.DeleteItemInput{
		TableName:           &s.tableName,
		Key:                 methodKey(id),
		ConditionExpression: awsString("attribute_exists(payment_method_id)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrNotFound
		}
		return fmt.Errorf("delete item: %w", err)
	}
	return nil
}

func (s *Store) scan(ctx context.Context, filter *string, values map[string]types.AttributeValue) ([]PaymentMethod, error) {
	var (
		result []PaymentMethod
		start  map[string]types.AttributeValue
	)
	for {
		out, err := s.client.Scan(ctx, &dyn.ScanInput{
			TableName:                 &s.tableName,
			FilterExpression:          filter,
			ExpressionAttributeValues: values,
			ExclusiveStartKey:         start,
		})
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		var page []PaymentMethod
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, fmt.Errorf("unmarshal payment methods: %w", err)
		}
		result = append(result, page...)
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		start = out.LastEvaluatedKey
	}
	sort.SliceStable(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func methodKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"payment_method_id": &types.AttributeValueMemberS{Value: id},
	}
}

func awsString(s string) *string { return &s }
