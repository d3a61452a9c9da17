package orderv1

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validOrder() *Order {
	return &Order{
		ID:       "o1",
		UserID:   "alice",
		MarketID: "BTC-USD",
		Side:     SideBuy,
		Price:    decimal.RequireFromString("100"),
		Quantity: decimal.RequireFromString("10"),
	}
}

func TestOrder_Validate(t *testing.T) {
	require.NoError(t, validOrder().Validate())

	o := validOrder()
	o.ID = ""
	assert.ErrorIs(t, o.Validate(), ErrMissingField)

	o = validOrder()
	o.UserID = ""
	assert.ErrorIs(t, o.Validate(), ErrMissingField)

	o = validOrder()
	o.Side = "hold"
	assert.ErrorIs(t, o.Validate(), ErrInvalidSide)

	o = validOrder()
	o.Price = decimal.Zero
	assert.ErrorIs(t, o.Validate(), ErrInvalidPrice)

	o = validOrder()
	o.Quantity = decimal.RequireFromString("-1")
	assert.ErrorIs(t, o.Validate(), ErrInvalidQuantity)
}

func TestOrder_Fill_StatusTransitions(t *testing.T) {
	o := validOrder()
	o.Remaining = o.Quantity
	o.Status = StatusOpen

	now := time.Now()
	o.Fill(decimal.RequireFromString("4"), now)
	assert.Equal(t, StatusPartiallyFilled, o.Status)
	assert.True(t, o.Remaining.Equal(decimal.RequireFromString("6")))

	o.Fill(decimal.RequireFromString("6"), now)
	assert.Equal(t, StatusFilled, o.Status)
	assert.True(t, o.Remaining.IsZero())
	assert.True(t, o.IsFilled())
}

func TestOrder_Fill_FullInOneStep(t *testing.T) {
	o := validOrder()
	o.Remaining = o.Quantity
	o.Status = StatusOpen

	o.Fill(o.Quantity, time.Now())
	assert.Equal(t, StatusFilled, o.Status)
}

func TestOrder_Clone_Independent(t *testing.T) {
	o := validOrder()
	o.Remaining = o.Quantity

	c := o.Clone()
	c.Fill(decimal.RequireFromString("1"), time.Now())

	assert.True(t, o.Remaining.Equal(o.Quantity))
	assert.False(t, c.Remaining.Equal(o.Quantity))
}
