package store

import (
	"math"
	"testing"

	"github.com/safar/fishmart/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCart(t *testing.T) {
	tests := []struct {
		name    string
		items   []CartItem
		message string
	}{
		{name: "nil", items: nil, message: "Cart items are required"},
		{name: "empty", items: []CartItem{}, message: "Cart items are required"},
		{name: "zero quantity", items: []CartItem{{ProductID: 1, Quantity: 0}}, message: invalidCartItem},
		{name: "negative quantity", items: []CartItem{{ProductID: 1, Quantity: -2}}, message: invalidCartItem},
		{name: "missing product", items: []CartItem{{Quantity: 1}}, message: invalidCartItem},
		{name: "second line bad", items: []CartItem{{ProductID: 1, Quantity: 1}, {ProductID: 2}}, message: invalidCartItem},
		{name: "quantity above int column", items: []CartItem{{ProductID: 1, Quantity: math.MaxInt32 + 1}}, message: "Quantity must not exceed 2147483647"},
		{name: "huge quantity", items: []CartItem{{ProductID: 1, Quantity: math.MaxInt64/2 + 1}}, message: "Quantity must not exceed 2147483647"},
		{name: "largest quantity", items: []CartItem{{ProductID: 1, Quantity: math.MaxInt32}}},
		{name: "valid", items: []CartItem{{ProductID: 1, Quantity: 2}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCart(tt.items)
			if tt.message == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, apperr.InvalidInput, apperr.KindOf(err))
			assert.Equal(t, tt.message, err.Error())
		})
	}
}

func TestDemand(t *testing.T) {
	ids, qty := demand([]CartItem{
		{ProductID: 9, Quantity: 1},
		{ProductID: 3, Quantity: 2},
		{ProductID: 9, Quantity: 4},
	})

	assert.Equal(t, []int64{3, 9}, ids)
	assert.Equal(t, map[int64]int{3: 2, 9: 5}, qty)
}

func TestDemand_SaturatesInsteadOfWrapping(t *testing.T) {
	half := math.MaxInt/2 + 1
	_, qty := demand([]CartItem{
		{ProductID: 1, Quantity: half},
		{ProductID: 1, Quantity: half},
		{ProductID: 2, Quantity: math.MaxInt32},
		{ProductID: 2, Quantity: math.MaxInt32},
	})

	assert.Equal(t, math.MaxInt, qty[1])
	assert.Greater(t, qty[1], math.MaxInt32)
	assert.Equal(t, 2*math.MaxInt32, qty[2])
}
