package orders

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/go-scoped-orderflow/internal/dynamotest"
	"github.com/imrishuroy/go-scoped-orderflow/internal/idempotency"
)

const (
	ordersTable = "orders"
	idempTable  = "idempotency"
)

func newTestOrder(t *testing.T, id, country string, createdAt time.Time) Order {
	t.Helper()
	o, err := New(id, "u-"+id, country, []Line{{Name: "Samosa", Quantity: 4, UnitPrice: price("2.25")}}, createdAt)
	require.NoError(t, err)
	return *o
}

func TestCreateAndGet_RoundTripsMoney(t *testing.T) {
	mock := dynamotest.New()
	store := NewStore(mock, ordersTable)
	ctx := context.Background()

	o := newTestOrder(t, "order-1", "India", time.Now().UTC())
	require.NoError(t, store.Create(ctx, o))

	got, err := store.Get(ctx, "order-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "9", got.Total.String())
	assert.True(t, got.Lines[0].UnitPrice.Equal(price("2.25")))
	assert.Equal(t, StatusDraft, got.Status)
	assert.Equal(t, "India", got.Country)

	// money is stored as decimal strings
	var raw orderRecord
	require.NoError(t, attributevalue.UnmarshalMap(mock.Item(ordersTable, "order-1"), &raw))
	assert.Equal(t, "9", raw.Total)
	assert.Equal(t, "2.25", raw.Lines[0].UnitPrice)
}

func TestCreate_Duplicate(t *testing.T) {
	store := NewStore(dynamotest.New(), ordersTable)
	o := newTestOrder(t, "order-1", "India", time.Now())
	require.NoError(t, store.Create(context.Background(), o))
	assert.ErrorIs(t, store.Create(context.Background(), o), ErrDuplicate)
}

func TestGet_Missing(t *testing.T) {
	store := NewStore(dynamotest.New(), ordersTable)
	got, err := store.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCreateWithIdempotency_SuccessAndReplay(t *testing.T) {
	mock := dynamotest.New()
	store := NewStore(mock, ordersTable).WithIdempotencyTable(idempTable)
	idem := idempotency.NewStore(mock, idempTable, 48*time.Hour)
	ctx := context.Background()

	key := idempotency.OrderKey("u-1", "key-1")
	rec := idem.NewRecord(key, idempotency.StatusDone, "order-1", "u-1")
	require.NoError(t, store.CreateWithIdempotency(ctx, rec, newTestOrder(t, "order-1", "India", time.Now())))

	// verify both tables contain items
	require.NotNil(t, mock.Item(idempTable, key))
	require.NotNil(t, mock.Item(ordersTable, "order-1"))

	rec2 := idem.NewRecord(key, idempotency.StatusDone, "order-2", "u-1")
	err := store.CreateWithIdempotency(ctx, rec2, newTestOrder(t, "order-2", "India", time.Now()))
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.Nil(t, mock.Item(ordersTable, "order-2"), "no partial write on a cancelled transaction")
}

func TestCreateWithIdempotency_OtherCancellationIsNotDuplicate(t *testing.T) {
	mock := dynamotest.New()
	store := NewStore(mock, ordersTable).WithIdempotencyTable(idempTable)
	idem := idempotency.NewStore(mock, idempTable, 48*time.Hour)

	conflict := "TransactionConflict"
	mock.FailNext("TransactWriteItems", &types.TransactionCanceledException{
		CancellationReasons: []types.CancellationReason{{Code: &conflict}},
	})
	rec := idem.NewRecord(idempotency.OrderKey("u-1", "key-1"), idempotency.StatusInProgress, "order-1", "u-1")
	err := store.CreateWithIdempotency(context.Background(), rec, newTestOrder(t, "order-1", "India", time.Now()))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrDuplicate)

	var tce *types.TransactionCanceledException
	assert.ErrorAs(t, err, &tce)
}

func TestCreateWithIdempotency_RequiresTable(t *testing.T) {
	store := NewStore(dynamotest.New(), ordersTable)
	err := store.CreateWithIdempotency(context.Background(), idempotency.IdempotencyRecord{IdempotencyKey: "k"}, newTestOrder(t, "o", "India", time.Now()))
	assert.Error(t, err)
}

func TestUpdateStatus_Condition_SuccessAndFail(t *testing.T) {
	mock := dynamotest.New()
	store := NewStore(mock, ordersTable)
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, newTestOrder(t, "order-10", "India", time.Now())))

	// success: draft -> placed
	got, err := store.UpdateStatus(ctx, "order-10", TransitionSources(StatusPlaced), StatusPlaced)
	require.NoError(t, err)
	assert.Equal(t, StatusPlaced, got.Status)
	assert.Equal(t, "India", got.Country, "status updates never touch country")

	// failure: draft -> placed again (current is placed)
	_, err = store.UpdateStatus(ctx, "order-10", TransitionSources(StatusPlaced), StatusPlaced)
	assert.ErrorIs(t, err, ErrStatusMismatch)

	// placed -> cancelled allowed
	got, err = store.UpdateStatus(ctx, "order-10", TransitionSources(StatusCancelled), StatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)

	// unknown order never matches the condition
	_, err = store.UpdateStatus(ctx, "ghost", TransitionSources(StatusCancelled), StatusCancelled)
	assert.ErrorIs(t, err, ErrStatusMismatch)
}

func TestUpdateStatus_ConcurrentPlaceHasOneWinner(t *testing.T) {
	mock := dynamotest.New()
	store := NewStore(mock, ordersTable)
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, newTestOrder(t, "order-race", "India", time.Now())))

	const n = 16
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		wins     int
		mismatch int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			to := StatusPlaced
			if i%2 == 0 {
				to = StatusCancelled
			}
			_, err := store.UpdateStatus(ctx, "order-race", []Status{StatusDraft}, to)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, ErrStatusMismatch):
				mismatch++
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
	assert.Equal(t, n-1, mismatch)
}

func TestUpdateStatus_RequiresSources(t *testing.T) {
	store := NewStore(dynamotest.New(), ordersTable)
	_, err := store.UpdateStatus(context.Background(), "o", nil, StatusDraft)
	assert.Error(t, err)
}

func TestListAllAndByCountry_NewestFirst(t *testing.T) {
	mock := dynamotest.New()
	mock.PageSize = 2
	store := NewStore(mock, ordersTable)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Create(ctx, newTestOrder(t, "a", "India", base)))
	require.NoError(t, store.Create(ctx, newTestOrder(t, "b", "America", base.Add(time.Minute))))
	require.NoError(t, store.Create(ctx, newTestOrder(t, "c", "India", base.Add(2*time.Minute))))
	require.NoError(t, store.Create(ctx, newTestOrder(t, "d", "India", base.Add(3*time.Minute))))
	require.NoError(t, store.Create(ctx, newTestOrder(t, "e", "America", base.Add(4*time.Minute))))

	all, err := store.ListAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"e", "d", "c", "b", "a"}, ids(all))
	assert.Greater(t, mock.Calls["Scan"], 1, "pagination followed LastEvaluatedKey")

	india, err := store.ListByCountry(ctx, "India")
	require.NoError(t, err)
	assert.Equal(t, []string{"d", "c", "a"}, ids(india))

	none, err := store.ListByCountry(ctx, "Atlantis")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStore_PropagatesClientErrors(t *testing.T) {
	mock := dynamotest.New()
	store := NewStore(mock, ordersTable)
	boom := errors.New("throttled")

	mock.FailNext("GetItem", boom)
	_, err := store.Get(context.Background(), "x")
	assert.ErrorIs(t, err, boom)

	mock.FailNext("Query", boom)
	_, err = store.ListByCountry(context.Background(), "India")
	assert.ErrorIs(t, err, boom)
}

func ids(list []Order) []string {
	out := make([]string, 0, len(list))
	for _, o := range list {
		out = append(out, o.ID)
	}
	return out
}
