// Package dynamotest provides an in-memory DynamoDB stand-in for tests.
// It evaluates only the small expression grammar issued by the stores in
// this repository: SET assignments, attribute_exists/attribute_not_exists,
// equality and IN comparisons joined with AND.
package dynamotest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type item = map[string]types.AttributeValue

// keyAttrs are the partition key names of the tables used in this repository,
// most specific first: idempotency records also carry an order_id.
var keyAttrs = []string{"idempotency_key", "payment_method_id", "order_id"}

// Fake is a concurrency-safe in-memory DynamoDB.
type Fake struct {
	mu     sync.Mutex
	tables map[string]map[string]item
	fail   map[string]error

	// PageSize limits Scan/Query pages when > 0 so pagination loops are exercised.
	PageSize int
	// Calls counts invocations per operation name.
	Calls map[string]int
}

func New() *Fake {
	return &Fake{
		tables: map[string]map[string]item{},
		fail:   map[string]error{},
		Calls:  map[string]int{},
	}
}

// FailNext makes the next call to op ("PutItem", "UpdateItem", ...) return err.
func (f *Fake) FailNext(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[op] = err
}

// Item returns a copy of the stored item, or nil.
func (f *Fake) Item(table, key string) map[string]types.AttributeValue {
	f.mu.Lock()
	defer f.mu.Unlock()
	it, ok := f.table(table)[key]
	if !ok {
		return nil
	}
	return clone(it)
}

// Len returns the number of items in table.
func (f *Fake) Len(table string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.table(table))
}

func (f *Fake) PutItem(ctx context.Context, in *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("PutItem"); err != nil {
		return nil, err
	}
	tbl := f.table(*in.TableName)
	pk, err := primaryKey(in.Item)
	if err != nil {
		return nil, err
	}
	ok, err := evalCondition(in.ConditionExpression, tbl[pk], in.ExpressionAttributeNames, in.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &types.ConditionalCheckFailedException{}
	}
	tbl[pk] = clone(in.Item)
	return &dyn.PutItemOutput{}, nil
}

func (f *Fake) GetItem(ctx context.Context, in *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("GetItem"); err != nil {
		return nil, err
	}
	pk, err := primaryKey(in.Key)
	if err != nil {
		return nil, err
	}
	it, ok := f.table(*in.TableName)[pk]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: clone(it)}, nil
}

func (f *Fake) UpdateItem(ctx context.Context, in *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("UpdateItem"); err != nil {
		return nil, err
	}
	tbl := f.table(*in.TableName)
	pk, err := primaryKey(in.Key)
	if err != nil {
		return nil, err
	}
	current := tbl[pk]
	ok, err := evalCondition(in.ConditionExpression, current, in.ExpressionAttributeNames, in.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &types.ConditionalCheckFailedException{}
	}

	next := clone(current)
	if next == nil {
		next = clone(in.Key)
	}
	if in.UpdateExpression != nil {
		expr := strings.TrimSpace(*in.UpdateExpression)
		if !strings.HasPrefix(expr, "SET ") {
			return nil, fmt.Errorf("dynamotest: unsupported update expression %q", expr)
		}
		for _, assign := range strings.Split(strings.TrimPrefix(expr, "SET "), ",") {
			parts := strings.SplitN(assign, "=", 2)
			if len(parts) != 2 {
				return nil, fmt.Errorf("dynamotest: bad assignment %q", assign)
			}
			name := resolveName(strings.TrimSpace(parts[0]), in.ExpressionAttributeNames)
			v, ok := in.ExpressionAttributeValues[strings.TrimSpace(parts[1])]
			if !ok {
				return nil, fmt.Errorf("dynamotest: missing value for %q", parts[1])
			}
			next[name] = v
		}
	}
	tbl[pk] = next

	out := &dyn.UpdateItemOutput{}
	if in.ReturnValues == types.ReturnValueAllNew || in.ReturnValues == types.ReturnValueUpdatedNew {
		out.Attributes = clone(next)
	}
	return out, nil
}

func (f *Fake) DeleteItem(ctx context.Context, in *dyn.DeleteItemInput, optFns ...func(*dyn.Options)) (*dyn.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("DeleteItem"); err != nil {
		return nil, err
	}
	tbl := f.table(*in.TableName)
	pk, err := primaryKey(in.Key)
	if err != nil {
		return nil, err
	}
	ok, err := evalCondition(in.ConditionExpression, tbl[pk], in.ExpressionAttributeNames, in.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &types.ConditionalCheckFailedException{}
	}
	delete(tbl, pk)
	return &dyn.DeleteItemOutput{}, nil
}

func (f *Fake) Scan(ctx context.Context, in *dyn.ScanInput, optFns ...func(*dyn.Options)) (*dyn.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("Scan"); err != nil {
		return nil, err
	}
	page, last, err := f.page(*in.TableName, in.ExclusiveStartKey, in.FilterExpression, in.ExpressionAttributeNames, in.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}
	return &dyn.ScanOutput{Items: page, Count: int32(len(page)), LastEvaluatedKey: last}, nil
}

func (f *Fake) Query(ctx context.Context, in *dyn.QueryInput, optFns ...func(*dyn.Options)) (*dyn.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("Query"); err != nil {
		return nil, err
	}
	if in.KeyConditionExpression == nil {
		return nil, errors.New("dynamotest: query without key condition")
	}
	page, last, err := f.page(*in.TableName, in.ExclusiveStartKey, in.KeyConditionExpression, in.ExpressionAttributeNames, in.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}
	return &dyn.QueryOutput{Items: page, Count: int32(len(page)), LastEvaluatedKey: last}, nil
}

func (f *Fake) TransactWriteItems(ctx context.Context, in *dyn.TransactWriteItemsInput, optFns ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("TransactWriteItems"); err != nil {
		return nil, err
	}
	// First pass: verify condition expressions, one reason per item as DynamoDB reports them
	reasons := make([]types.CancellationReason, len(in.TransactItems))
	cancelled := false
	for i, it := range in.TransactItems {
		p := it.Put
		if p == nil {
			return nil, errors.New("dynamotest: only Put is supported in transactions")
		}
		pk, err := primaryKey(p.Item)
		if err != nil {
			return nil, err
		}
		ok, err := evalCondition(p.ConditionExpression, f.table(*p.TableName)[pk], p.ExpressionAttributeNames, p.ExpressionAttributeValues)
		if err != nil {
			return nil, err
		}
		code := "None"
		if !ok {
			code = "ConditionalCheckFailed"
			cancelled = true
		}
		reasons[i] = types.CancellationReason{Code: &code}
	}
	if cancelled {
		return nil, &types.TransactionCanceledException{CancellationReasons: reasons}
	}
	// Second pass: apply all puts
	for _, it := range in.TransactItems {
		pk, _ := primaryKey(it.Put.Item)
		f.table(*it.Put.TableName)[pk] = clone(it.Put.Item)
	}
	return &dyn.TransactWriteItemsOutput{}, nil
}

func (f *Fake) enter(op string) error {
	f.Calls[op]++
	if err, ok := f.fail[op]; ok {
		delete(f.fail, op)
		return err
	}
	return nil
}

func (f *Fake) table(name string) map[string]item {
	t, ok := f.tables[name]
	if !ok {
		t = map[string]item{}
		f.tables[name] = t
	}
	return t
}

// page returns matching items in key order starting after start.
func (f *Fake) page(table string, start item, cond *string, names map[string]string, values map[string]types.AttributeValue) ([]item, item, error) {
	tbl := f.table(table)
	keys := make([]string, 0, len(tbl))
	for k := range tbl {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	if start != nil {
		after, err := primaryKey(start)
		if err != nil {
			return nil, nil, err
		}
		i := sort.SearchStrings(keys, after)
		if i < len(keys) && keys[i] == after {
			i++
		}
		keys = keys[i:]
	}

	var out []item
	for i, k := range keys {
		if f.PageSize > 0 && len(out) == f.PageSize {
			last := keys[i-1]
			return out, keyOf(tbl[last], last), nil
		}
		ok, err := evalCondition(cond, tbl[k], names, values)
		if err != nil {
			return nil, nil, err
		}
		if ok {
			out = append(out, clone(tbl[k]))
		}
	}
	return out, nil, nil
}

func keyOf(it item, pk string) item {
	for _, name := range keyAttrs {
		if _, ok := it[name]; ok {
			return item{name: &types.AttributeValueMemberS{Value: pk}}
		}
	}
	return nil
}

func primaryKey(it item) (string, error) {
	for _, name := range keyAttrs {
		if v, ok := it[name].(*types.AttributeValueMemberS); ok {
			return v.Value, nil
		}
	}
	return "", errors.New("dynamotest: no primary key attribute")
}

// evalCondition evaluates clauses joined by AND against current (nil when absent).
func evalCondition(expr *string, current item, names map[string]string, values map[string]types.AttributeValue) (bool, error) {
	if expr == nil || strings.TrimSpace(*expr) == "" {
		return true, nil
	}
	for _, clause := range strings.Split(*expr, " AND ") {
		ok, err := evalClause(strings.TrimSpace(clause), current, names, values)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func evalClause(clause string, current item, names map[string]string, values map[string]types.AttributeValue) (bool, error) {
	switch {
	case strings.HasPrefix(clause, "attribute_not_exists(") && strings.HasSuffix(clause, ")"):
		name := resolveName(clause[len("attribute_not_exists("):len(clause)-1], names)
		_, ok := current[name]
		return !ok, nil
	case strings.HasPrefix(clause, "attribute_exists(") && strings.HasSuffix(clause, ")"):
		name := resolveName(clause[len("attribute_exists("):len(clause)-1], names)
		_, ok := current[name]
		return ok, nil
	case strings.Contains(clause, " IN (") && strings.HasSuffix(clause, ")"):
		i := strings.Index(clause, " IN (")
		name := resolveName(strings.TrimSpace(clause[:i]), names)
		got, ok := stringAttr(current, name)
		if !ok {
			return false, nil
		}
		for _, ph := range strings.Split(clause[i+len(" IN ("):len(clause)-1], ",") {
			want, ok := values[strings.TrimSpace(ph)].(*types.AttributeValueMemberS)
			if !ok {
				return false, fmt.Errorf("dynamotest: missing value %q", ph)
			}
			if want.Value == got {
				return true, nil
			}
		}
		return false, nil
	case strings.Contains(clause, " = "):
		parts := strings.SplitN(clause, " = ", 2)
		name := resolveName(strings.TrimSpace(parts[0]), names)
		want, ok := values[strings.TrimSpace(parts[1])].(*types.AttributeValueMemberS)
		if !ok {
			return false, fmt.Errorf("dynamotest: missing value %q", parts[1])
		}
		got, ok := stringAttr(current, name)
		return ok && got == want.Value, nil
	}
	return false, fmt.Errorf("dynamotest: unsupported condition %q", clause)
}

func stringAttr(it item, name string) (string, bool) {
	v, ok := it[name].(*types.AttributeValueMemberS)
	if !ok {
		return "", false
	}
	return v.Value, true
}

func resolveName(name string, names map[string]string) string {
	if strings.HasPrefix(name, "#") {
		if real, ok := names[name]; ok {
			return real
		}
	}
	return name
}

func clone(it item) item {
	if it == nil {
		return nil
	}
	out := make(item, len(it))
	for k, v := range it {
		out[k] = v
	}
	return out
}
