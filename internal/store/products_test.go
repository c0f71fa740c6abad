package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/safar/fishmart/internal/apperr"
	"github.com/safar/fishmart/internal/database"
	"github.com/safar/fishmart/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T {
	return &v
}

func TestParseCaughtAt(t *testing.T) {
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		raw     string
		wantErr error
		expiry  time.Time
	}{
		{name: "rfc3339", raw: "2026-05-09T08:30:00Z", expiry: time.Date(2026, 5, 16, 8, 30, 0, 0, time.UTC)},
		{name: "date only", raw: "2026-05-05", expiry: time.Date(2026, 5, 12, 0, 0, 0, 0, time.UTC)},
		{name: "space separated", raw: "2026-05-10 11:00:00", expiry: time.Date(2026, 5, 17, 11, 0, 0, 0, time.UTC)},
		{name: "garbage", raw: "yesterday", wantErr: errCaughtAtFormat},
		{name: "future", raw: "2026-05-11", wantErr: errCaughtAtFuture},
		{name: "expired exactly now", raw: "2026-05-03T12:00:00Z", wantErr: errAlreadyExpired},
		{name: "long expired", raw: "2026-01-01", wantErr: errAlreadyExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, expiry, err := ParseCaughtAt(tt.raw, now)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.True(t, expiry.Equal(tt.expiry), "expiry %s", expiry)
		})
	}
}

func TestValidateNewProduct(t *testing.T) {
	now := time.Now()
	valid := NewProduct{
		Name:        "Tuna",
		Description: "Fresh",
		Category:    "fish",
		Price:       ptr(decimal.RequireFromString("12.50")),
		Stock:       ptr(decimal.NewFromInt(4)),
		CaughtAt:    now.Add(-2 * time.Hour).Format(time.RFC3339),
	}

	tests := []struct {
		name    string
		mutate  func(p *NewProduct)
		message string
	}{
		{name: "valid", mutate: func(p *NewProduct) {}},
		{name: "zero stock allowed", mutate: func(p *NewProduct) { p.Stock = ptr(decimal.Zero) }},
		{name: "missing name", mutate: func(p *NewProduct) { p.Name = "" }, message: "All fields are required"},
		{name: "blank category", mutate: func(p *NewProduct) { p.Category = "  " }, message: "All fields are required"},
		{name: "missing price", mutate: func(p *NewProduct) { p.Price = nil }, message: "All fields are required"},
		{name: "zero price", mutate: func(p *NewProduct) { p.Price = ptr(decimal.Zero) }, message: "Price must be a positive number"},
		{name: "sub-cent price", mutate: func(p *NewProduct) { p.Price = ptr(decimal.RequireFromString("10.005")) }, message: "Price must have at most 2 decimal places"},
		{name: "trailing zeros allowed", mutate: func(p *NewProduct) { p.Price = ptr(decimal.RequireFromString("10.500")) }},
		{name: "price beyond column", mutate: func(p *NewProduct) { p.Price = ptr(decimal.RequireFromString("10000000000")) }, message: "Price exceeds the maximum allowed amount"},
		{name: "largest price", mutate: func(p *NewProduct) { p.Price = ptr(decimal.RequireFromString("9999999999.99")) }},
		{name: "negative stock", mutate: func(p *NewProduct) { p.Stock = ptr(decimal.NewFromInt(-1)) }, message: "Stock must be a non-negative integer"},
		{name: "fractional stock", mutate: func(p *NewProduct) { p.Stock = ptr(decimal.RequireFromString("1.5")) }, message: "Stock must be a non-negative integer"},
		{name: "future catch", mutate: func(p *NewProduct) { p.CaughtAt = now.Add(time.Hour).Format(time.RFC3339) }, message: "Catch date cannot be in the future."},
		{name: "expired catch", mutate: func(p *NewProduct) { p.CaughtAt = now.Add(-8 * 24 * time.Hour).Format(time.RFC3339) }, message: "Cannot add product, this fish has already expired."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid
			tt.mutate(&p)
			f, err := validateNewProduct(p, now)
			if tt.message == "" {
				require.NoError(t, err)
				assert.Equal(t, f.caughtAt.Add(models.ProductShelfLife), f.expiry)
				return
			}
			require.Error(t, err)
			assert.Equal(t, apperr.InvalidInput, apperr.KindOf(err))
			assert.Equal(t, tt.message, err.Error())
		})
	}
}

func TestProductPatchAssignments(t *testing.T) {
	now := time.Now()

	sets, args, err := ProductPatch{
		Name:  ptr(" Mackerel "),
		Stock: ptr(decimal.NewFromInt(0)),
	}.assignments(now)
	require.NoError(t, err)
	assert.Equal(t, []string{"name = $1", "stock = $2"}, sets)
	assert.Equal(t, []any{"Mackerel", 0}, args)

	sets, _, err = ProductPatch{CaughtAt: ptr(now.Add(-time.Hour).Format(time.RFC3339))}.assignments(now)
	require.NoError(t, err)
	assert.Equal(t, []string{"caught_at = $1", "expiry_date = $2"}, sets)

	_, _, err = ProductPatch{}.assignments(now)
	assert.ErrorIs(t, err, errNothingToUpdate)

	_, _, err = ProductPatch{Price: ptr(decimal.NewFromInt(-3))}.assignments(now)
	assert.ErrorIs(t, err, errPriceInvalid)

	_, _, err = ProductPatch{Price: ptr(decimal.RequireFromString("3.999"))}.assignments(now)
	assert.ErrorIs(t, err, errPriceScale)

	_, _, err = ProductPatch{Name: ptr("")}.assignments(now)
	assert.Equal(t, apperr.InvalidInput, apperr.KindOf(err))
}

func TestAddProduct_RoleGate(t *testing.T) {
	s := setupTestStore(t)
	buyer := createUser(t, s, models.RoleBuyer)
	admin := createUser(t, s, models.RoleAdmin)

	price := decimal.RequireFromString("9.99")
	stock := decimal.NewFromInt(3)
	in := NewProduct{
		Name:        "Sardines",
		Description: "Tinned",
		Category:    "fish",
		Price:       &price,
		Stock:       &stock,
		CaughtAt:    time.Now().Add(-time.Hour).Format(time.RFC3339),
	}

	_, err := s.AddProduct(context.Background(), buyer.ID, buyer.Role, in)
	assert.ErrorIs(t, err, errSellerOnly)
	assert.Equal(t, apperr.Forbidden, apperr.KindOf(err))

	product, err := s.AddProduct(context.Background(), admin.ID, admin.Role, in)
	require.NoError(t, err)
	assert.Equal(t, admin.ID, product.OwnerID)
	assert.True(t, product.ExpiryDate.Equal(product.CaughtAt.Add(models.ProductShelfLife)))
}

func TestListAvailableProducts(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	seller := createUser(t, s, models.RoleSeller)

	fresh := createProduct(t, s, seller, "10.00", 5)
	older := createProduct(t, s, seller, "10.00", 5)
	soldOut := createProduct(t, s, seller, "10.00", 0)
	expired := createProduct(t, s, seller, "10.00", 5)

	_, err := s.db.Exec(`UPDATE products SET expiry_date = expiry_date - INTERVAL '2 days' WHERE id = $1`, older.ID)
	require.NoError(t, err)
	_, err = s.db.Exec(`UPDATE products SET expiry_date = NOW() - INTERVAL '1 minute' WHERE id = $1`, expired.ID)
	require.NoError(t, err)

	products, err := s.ListAvailableProducts(ctx)
	require.NoError(t, err)

	var ids []int64
	for _, p := range products {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []int64{fresh.ID, older.ID}, ids)
	assert.NotContains(t, ids, soldOut.ID)
	assert.NotContains(t, ids, expired.ID)
}

func TestUpdateProduct_Ownership(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	owner := createUser(t, s, models.RoleSeller)
	rival := createUser(t, s, models.RoleSeller)
	admin := createUser(t, s, models.RoleAdmin)
	product := createProduct(t, s, owner, "10.00", 5)

	_, err := s.UpdateProduct(ctx, rival.ID, rival.Role, product.ID, ProductPatch{Name: ptr("Stolen")})
	require.Error(t, err)
	assert.True(t, errors.Is(err, database.ErrNotProductOwner))
	assert.Equal(t, "You are not authorized to update this product", err.Error())

	updated, err := s.UpdateProduct(ctx, owner.ID, owner.Role, product.ID, ProductPatch{Name: ptr("Grouper"), Price: ptr(decimal.RequireFromString("11.00"))})
	require.NoError(t, err)
	assert.Equal(t, "Grouper", updated.Name)
	assert.True(t, updated.Price.Equal(decimal.RequireFromString("11.00")))
	assert.Equal(t, product.Version+1, updated.Version)

	updated, err = s.UpdateProduct(ctx, admin.ID, admin.Role, product.ID, ProductPatch{Stock: ptr(decimal.NewFromInt(42))})
	require.NoError(t, err)
	assert.Equal(t, 42, updated.Stock)
	assert.Equal(t, "Grouper", updated.Name)

	_, err = s.UpdateProduct(ctx, admin.ID, admin.Role, product.ID+1000, ProductPatch{Stock: ptr(decimal.NewFromInt(1))})
	assert.ErrorIs(t, err, database.ErrProductNotFound)
}

func TestDeleteProduct_Ownership(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	owner := createUser(t, s, models.RoleSeller)
	rival := createUser(t, s, models.RoleSeller)
	admin := createUser(t, s, models.RoleAdmin)
	mine := createProduct(t, s, owner, "10.00", 5)
	another := createProduct(t, s, owner, "10.00", 5)

	err := s.DeleteProduct(ctx, rival.ID, rival.Role, mine.ID)
	require.Error(t, err)
	assert.Equal(t, "You are not authorized to delete this product", err.Error())

	require.NoError(t, s.DeleteProduct(ctx, owner.ID, owner.Role, mine.ID))
	require.NoError(t, s.DeleteProduct(ctx, admin.ID, admin.Role, another.ID))

	_, err = s.GetProduct(ctx, mine.ID)
	assert.ErrorIs(t, err, database.ErrProductNotFound)
	assert.ErrorIs(t, s.DeleteProduct(ctx, owner.ID, owner.Role, mine.ID), database.ErrProductNotFound)
}

func TestSetProductImage(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	owner := createUser(t, s, models.RoleSeller)
	rival := createUser(t, s, models.RoleSeller)
	admin := createUser(t, s, models.RoleAdmin)
	product := createProduct(t, s, owner, "10.00", 5)

	_, err := s.SetProductImage(ctx, rival.ID, rival.Role, product.ID, "http://cdn.test/rival.png")
	assert.ErrorIs(t, err, database.ErrNotProductOwner)

	updated, err := s.SetProductImage(ctx, owner.ID, owner.Role, product.ID, "http://cdn.test/products/1.png")
	require.NoError(t, err)
	assert.Equal(t, "http://cdn.test/products/1.png", updated.ImageURL)
	assert.Equal(t, product.Version+1, updated.Version)

	_, err = s.SetProductImage(ctx, admin.ID, admin.Role, 9999, "http://cdn.test/none.png")
	assert.ErrorIs(t, err, database.ErrProductNotFound)

	stored, err := s.GetProduct(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, "http://cdn.test/products/1.png", stored.ImageURL)
}
