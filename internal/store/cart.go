package store

import (
	"math"
	"slices"

	"github.com/safar/fishmart/internal/validation"
)

type CartItem struct {
	ProductID int64 `json:"product_id" validate:"gt=0"`
	Quantity  int   `json:"quantity" validate:"gt=0,lte=2147483647"`
}

type cart struct {
	Items []CartItem `json:"cart_items" validate:"required,min=1,dive"`
}

const invalidCartItem = "Each cart item must have a valid product_id and quantity greater than 0"

func (cart) ValidationMessages() map[string]string {
	return map[string]string{
		"required":                 "Cart items are required",
		"cart_items.min":           "Cart items are required",
		"cart_items.product_id.gt": invalidCartItem,
		"cart_items.quantity.gt":   invalidCartItem,
		"cart_items.quantity.lte":  "Quantity must not exceed 2147483647",
	}
}

func ValidateCart(items []CartItem) error {
	return validation.Struct(cart{Items: items})
}

// demand sums quantities per product, since a cart may list the same
// product on several lines. A sum that would overflow saturates at
// math.MaxInt, which no stock level can satisfy. ids comes back sorted so
// locks are always taken in the same order.
func demand(items []CartItem) (ids []int64, qty map[int64]int) {
	qty = make(map[int64]int, len(items))
	for _, it := range items {
		have, seen := qty[it.ProductID]
		if !seen {
			ids = append(ids, it.ProductID)
		}
		if it.Quantity > math.MaxInt-have {
			qty[it.ProductID] = math.MaxInt
			continue
		}
		qty[it.ProductID] = have + it.Quantity
	}
	slices.Sort(ids)
	return ids, qty
}
