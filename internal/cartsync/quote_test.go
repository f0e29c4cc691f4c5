package cartsync

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuoteMemberExpress(t *testing.T) {
	state := State{
		Identity: Authenticated("user-1"),
		Lines:    []Line{{ProductID: 1, UnitPrice: decimal.RequireFromString("50.00"), Quantity: 2}},
	}

	q := Quote(state, ShippingExpress)

	assert.True(t, q.Items.Equal(decimal.RequireFromString("90.00")), q.Items.String())
	assert.True(t, q.Discount.Equal(decimal.RequireFromString("10.00")))
	assert.True(t, q.Tax.Equal(decimal.RequireFromString("6.30")), q.Tax.String())
	assert.True(t, q.Shipping.Equal(decimal.RequireFromString("9.99")))
	assert.True(t, q.Total.Equal(decimal.RequireFromString("106.29")), q.Total.String())
}

func TestQuoteGuestStandard(t *testing.T) {
	state := State{Lines: []Line{{ProductID: 1, UnitPrice: decimal.RequireFromString("19.99"), Quantity: 1}}}

	q := Quote(state, ShippingStandard)

	assert.True(t, q.Items.Equal(decimal.RequireFromString("19.99")))
	assert.True(t, q.Tax.Equal(decimal.RequireFromString("1.40")), q.Tax.String())
	assert.True(t, q.Shipping.IsZero())
	assert.True(t, q.Total.Equal(decimal.RequireFromString("21.39")), q.Total.String())
}

func TestParseShippingMethod(t *testing.T) {
	method, err := ParseShippingMethod("")
	require.NoError(t, err)
	assert.Equal(t, ShippingStandard, method)

	method, err = ParseShippingMethod(" Express ")
	require.NoError(t, err)
	assert.Equal(t, ShippingExpress, method)

	_, err = ParseShippingMethod("drone")
	assert.Error(t, err)
}
