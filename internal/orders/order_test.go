package orders

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/go-scoped-orderflow/internal/apperr"
)

func price(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestNew_ComputesTotalAndSnapshotsCountry(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	o, err := New("o-1", "u-1", "India", []Line{
		{Name: "Burger", Quantity: 2, UnitPrice: price("9.50")},
		{Name: "Fries", Quantity: 3, UnitPrice: price("0.10")},
	}, now)
	require.NoError(t, err)

	assert.True(t, o.Total.Equal(price("19.30")), "total %s", o.Total)
	assert.Equal(t, "India", o.Country)
	assert.Equal(t, StatusDraft, o.Status)
	assert.Equal(t, now, o.CreatedAt)
	assert.Equal(t, "Burger", o.Lines[0].Name, "lines keep submission order")
	assert.Equal(t, "Fries", o.Lines[1].Name)
}

func TestNew_BurgerTotal(t *testing.T) {
	o, err := New("o-1", "u-1", "America", []Line{{Name: "Burger", Quantity: 2, UnitPrice: price("9.50")}}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "19.00", o.Total.StringFixed(2))
}

func TestOrderJSON_TotalHasTwoFractionDigits(t *testing.T) {
	o, err := New("o-1", "u-1", "India", []Line{{Name: "Burger", Quantity: 2, UnitPrice: price("9.5")}}, time.Now())
	require.NoError(t, err)

	raw, err := json.Marshal(o)
	require.NoError(t, err)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Equal(t, "19.00", body["total"])
	assert.Equal(t, "o-1", body["id"])
	assert.Equal(t, "draft", body["status"])
	assert.Len(t, body["items"], 1)

	var back Order
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.True(t, back.Total.Equal(o.Total))
}

func TestFormatMoney(t *testing.T) {
	assert.Equal(t, "0.00", FormatMoney(decimal.Zero))
	assert.Equal(t, "19.00", FormatMoney(price("19")))
	assert.Equal(t, "2.255", FormatMoney(price("2.255")))
}

func TestNew_RejectsMalformedLines(t *testing.T) {
	cases := map[string][]Line{
		"empty":          nil,
		"zero quantity":  {{Name: "Tea", Quantity: 0, UnitPrice: price("1")}},
		"negative price": {{Name: "Tea", Quantity: 1, UnitPrice: price("-0.01")}},
		"blank name":     {{Name: "  ", Quantity: 1, UnitPrice: price("1")}},
	}
	for name, lines := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := New("o-1", "u-1", "India", lines, time.Now())
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperr.ErrInvalidOrderInput))
		})
	}
}

func TestNew_FreeItemsAllowed(t *testing.T) {
	o, err := New("o-1", "u-1", "India", []Line{{Name: "Water", Quantity: 1, UnitPrice: decimal.Zero}}, time.Now())
	require.NoError(t, err)
	assert.True(t, o.Total.IsZero())
}

func TestTransitions(t *testing.T) {
	newDraft := func() *Order {
		o, err := New("o-1", "u-1", "India", []Line{{Name: "Tea", Quantity: 1, UnitPrice: price("2")}}, time.Now())
		require.NoError(t, err)
		return o
	}

	t.Run("draft to placed", func(t *testing.T) {
		o := newDraft()
		require.NoError(t, o.Place())
		assert.Equal(t, StatusPlaced, o.Status)
	})

	t.Run("place twice", func(t *testing.T) {
		o := newDraft()
		require.NoError(t, o.Place())
		err := o.Place()
		assert.True(t, errors.Is(err, apperr.ErrAlreadyPlaced))
		assert.Equal(t, StatusPlaced, o.Status)
	})

	t.Run("placed can be cancelled", func(t *testing.T) {
		o := newDraft()
		require.NoError(t, o.Place())
		require.NoError(t, o.Cancel())
		assert.Equal(t, StatusCancelled, o.Status)
	})

	t.Run("cancelled is terminal", func(t *testing.T) {
		o := newDraft()
		require.NoError(t, o.Cancel())
		assert.True(t, errors.Is(o.Cancel(), apperr.ErrAlreadyCancelled))
		assert.True(t, errors.Is(o.Place(), apperr.ErrAlreadyCancelled))
		assert.Equal(t, StatusCancelled, o.Status)
	})

	t.Run("nothing returns to draft", func(t *testing.T) {
		assert.Empty(t, TransitionSources(StatusDraft))
		o := newDraft()
		assert.Error(t, o.CanTransition(StatusDraft))
	})
}
