package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateIfNotExists_Get_MarkDone_MarkFailed(t *testing.T) {
	mock := newSimpleMock()
	s := NewStore(mock, "idempotency-table", 48*time.Hour)

	ctx := context.Background()
	key := EventKey("evt-1")
	orderID := "order-123"

	created, err := s.CreateIfNotExists(ctx, key, orderID)
	require.NoError(t, err)
	require.True(t, created, "expected created=true")

	// second create should return created=false (exists)
	created2, err := s.CreateIfNotExists(ctx, key, orderID)
	require.NoError(t, err)
	assert.False(t, created2, "expected created=false on duplicate create")

	rec, err := s.Get(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, StatusInProgress, rec.Status)
	assert.Equal(t, orderID, rec.OrderID)
	assert.Greater(t, rec.ExpiresAt, time.Now().Unix())

	require.NoError(t, s.MarkDone(ctx, key, `{"ok":true}`, 201))

	// Read raw item from mock to assert updated fields
	item := mock.table[key]
	require.NotNil(t, item)
	st, ok := item["status"].(*types.AttributeValueMemberS)
	require.True(t, ok)
	assert.Equal(t, StatusDone, st.Value)
	rb, ok := item["response_body"].(*types.AttributeValueMemberS)
	require.True(t, ok)
	assert.Equal(t, `{"ok":true}`, rb.Value)

	// MarkFailed (should overwrite status)
	require.NoError(t, s.MarkFailed(ctx, key, "failed-reason"))
	rec, err = s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, rec.Status)
	assert.Equal(t, "failed-reason", rec.Note)
}

func TestReclaim_OnlyFromFailed(t *testing.T) {
	mock := newSimpleMock()
	s := NewStore(mock, "idempotency-table", time.Hour)
	ctx := context.Background()
	key := EventKey("evt-2")

	_, err := s.CreateIfNotExists(ctx, key, "order-1")
	require.NoError(t, err)

	ok, err := s.Reclaim(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok, "IN_PROGRESS record must not be reclaimed")

	require.NoError(t, s.MarkFailed(ctx, key, "cloudwatch down"))

	ok, err = s.Reclaim(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)

	rec, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, rec.Status)
}

func TestGet_Missing(t *testing.T) {
	s := NewStore(newSimpleMock(), "idempotency-table", time.Hour)
	rec, err := s.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestKeys_AreScoped(t *testing.T) {
	assert.Equal(t, "order#u-1#abc", OrderKey("u-1", "abc"))
	assert.NotEqual(t, OrderKey("u-1", "abc"), OrderKey("u-2", "abc"))
	assert.Equal(t, "event#e-1", EventKey("e-1"))
}
