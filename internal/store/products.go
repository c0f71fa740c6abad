package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/safar/fishmart/internal/apperr"
	"github.com/safar/fishmart/internal/database"
	"github.com/safar/fishmart/internal/models"
	"github.com/safar/fishmart/internal/validation"
	"github.com/shopspring/decimal"
)

const productColumns = `id, owner_id, name, description, category, price, stock,
	caught_at, expiry_date, image_url, created_at, updated_at, version`

var caughtAtLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

var (
	errSellerOnly      = apperr.New(apperr.Forbidden, "Only sellers or admins can add products")
	errPriceInvalid    = apperr.Invalid("Price must be a positive number")
	errPriceScale      = apperr.Invalid("Price must have at most 2 decimal places")
	errPriceTooLarge   = apperr.Invalid("Price exceeds the maximum allowed amount")
	errStockInvalid    = apperr.Invalid("Stock must be a non-negative integer")
	errCaughtAtFormat  = apperr.Invalid("Invalid catch date format")
	errCaughtAtFuture  = apperr.Invalid("Catch date cannot be in the future.")
	errAlreadyExpired  = apperr.Invalid("Cannot add product, this fish has already expired.")
	errNothingToUpdate = apperr.Invalid("No fields to update")
)

type NewProduct struct {
	Name        string           `json:"name" validate:"required"`
	Description string           `json:"description" validate:"required"`
	Category    string           `json:"category" validate:"required"`
	Price       *decimal.Decimal `json:"price" validate:"required"`
	Stock       *decimal.Decimal `json:"stock" validate:"required"`
	CaughtAt    string           `json:"caught_at" validate:"required"`
}

func (NewProduct) ValidationMessages() map[string]string {
	return map[string]string{"required": "All fields are required"}
}

// ProductPatch carries the fields an owner may change. Nil means unchanged.
type ProductPatch struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Category    *string          `json:"category"`
	Price       *decimal.Decimal `json:"price"`
	Stock       *decimal.Decimal `json:"stock"`
	CaughtAt    *string          `json:"caught_at"`
}

type productFields struct {
	name, description, category string
	price                       decimal.Decimal
	stock                       int
	caughtAt, expiry            time.Time
}

func checkPrice(p decimal.Decimal) error {
	switch {
	case !p.IsPositive():
		return errPriceInvalid
	case !p.Equal(p.Truncate(2)):
		return errPriceScale
	case p.GreaterThan(MaxAmount):
		return errPriceTooLarge
	}
	return nil
}

func checkStock(s decimal.Decimal) (int, error) {
	if !s.IsInteger() || s.IsNegative() || !s.LessThanOrEqual(decimal.NewFromInt32(1<<31-1)) {
		return 0, errStockInvalid
	}
	return int(s.IntPart()), nil
}

// ParseCaughtAt parses a catch date and derives its expiry. A catch in the
// future, or one whose shelf life has already run out, is refused.
func ParseCaughtAt(raw string, now time.Time) (caughtAt, expiry time.Time, err error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range caughtAtLayouts {
		if caughtAt, err = time.Parse(layout, raw); err == nil {
			break
		}
	}
	if err != nil {
		return time.Time{}, time.Time{}, errCaughtAtFormat
	}

	if caughtAt.After(now) {
		return time.Time{}, time.Time{}, errCaughtAtFuture
	}

	expiry = caughtAt.Add(models.ProductShelfLife)
	if !expiry.After(now) {
		return time.Time{}, time.Time{}, errAlreadyExpired
	}

	return caughtAt, expiry, nil
}

func validateNewProduct(in NewProduct, now time.Time) (productFields, error) {
	var f productFields
	if err := validation.Struct(in); err != nil {
		return f, err
	}
	if strings.TrimSpace(in.Name) == "" || strings.TrimSpace(in.Description) == "" || strings.TrimSpace(in.Category) == "" {
		return f, apperr.Invalid("All fields are required")
	}

	if err := checkPrice(*in.Price); err != nil {
		return f, err
	}
	stock, err := checkStock(*in.Stock)
	if err != nil {
		return f, err
	}
	caughtAt, expiry, err := ParseCaughtAt(in.CaughtAt, now)
	if err != nil {
		return f, err
	}

	return productFields{
		name:        strings.TrimSpace(in.Name),
		description: strings.TrimSpace(in.Description),
		category:    strings.TrimSpace(in.Category),
		price:       *in.Price,
		stock:       stock,
		caughtAt:    caughtAt,
		expiry:      expiry,
	}, nil
}

// AddProduct lists a new catch owned by ownerID.
func (s *Store) AddProduct(ctx context.Context, ownerID int64, role string, in NewProduct) (*models.Product, error) {
	if role != models.RoleSeller && role != models.RoleAdmin {
		return nil, errSellerOnly
	}

	f, err := validateNewProduct(in, time.Now())
	if err != nil {
		return nil, err
	}

	product, err := scanProduct(s.db.QueryRowContext(ctx,
		`INSERT INTO products (owner_id, name, description, category, price, stock, caught_at, expiry_date, created_at, updated_at, version)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW(), 1)
		 RETURNING `+productColumns,
		ownerID, f.name, f.description, f.category, f.price, f.stock, f.caughtAt, f.expiry))
	if err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}

	return product, nil
}

func (s *Store) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	product, err := scanProduct(s.db.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}

	return product, nil
}

// ListAvailableProducts returns products that are in stock and not yet
// expired, latest expiry first.
func (s *Store) ListAvailableProducts(ctx context.Context) ([]models.Product, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+productColumns+`
		 FROM products
		 WHERE stock > 0 AND expiry_date > NOW()
		 ORDER BY expiry_date DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	products := []models.Product{}
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, *product)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return products, nil
}

// lockOwnedProduct locks the product row and checks the caller may change
// it. verb names the action in the refusal message.
func lockOwnedProduct(ctx context.Context, tx *sql.Tx, productID, callerID int64, role, verb string) error {
	var ownerID int64
	err := tx.QueryRowContext(ctx,
		`SELECT owner_id FROM products WHERE id = $1 FOR UPDATE`,
		productID).Scan(&ownerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return database.ErrProductNotFound
		}
		return fmt.Errorf("lock product: %w", err)
	}

	if !isAdmin(role) && ownerID != callerID {
		return apperr.Wrap(database.ErrNotProductOwner,
			fmt.Sprintf("You are not authorized to %s this product", verb))
	}

	return nil
}

func (p ProductPatch) assignments(now time.Time) ([]string, []any, error) {
	var sets []string
	var args []any
	add := func(column string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	text := func(column string, v *string) error {
		if v == nil {
			return nil
		}
		if strings.TrimSpace(*v) == "" {
			return apperr.Invalid(column + " must not be empty")
		}
		add(column, strings.TrimSpace(*v))
		return nil
	}
	if err := text("name", p.Name); err != nil {
		return nil, nil, err
	}
	if err := text("description", p.Description); err != nil {
		return nil, nil, err
	}
	if err := text("category", p.Category); err != nil {
		return nil, nil, err
	}

	if p.Price != nil {
		if err := checkPrice(*p.Price); err != nil {
			return nil, nil, err
		}
		add("price", *p.Price)
	}
	if p.Stock != nil {
		stock, err := checkStock(*p.Stock)
		if err != nil {
			return nil, nil, err
		}
		add("stock", stock)
	}
	if p.CaughtAt != nil {
		caughtAt, expiry, err := ParseCaughtAt(*p.CaughtAt, now)
		if err != nil {
			return nil, nil, err
		}
		add("caught_at", caughtAt)
		add("expiry_date", expiry)
	}

	if len(sets) == 0 {
		return nil, nil, errNothingToUpdate
	}
	return sets, args, nil
}

// UpdateProduct applies patch if the caller owns the product or is an
// admin. The ownership check and the write share one locked transaction.
func (s *Store) UpdateProduct(ctx context.Context, callerID int64, role string, productID int64, patch ProductPatch) (*models.Product, error) {
	sets, args, err := patch.assignments(time.Now())
	if err != nil {
		return nil, err
	}

	var product *models.Product
	err = database.WithRetry(ctx, s.db, s.txOpts, func(tx *sql.Tx) error {
		if err := lockOwnedProduct(ctx, tx, productID, callerID, role, "update"); err != nil {
			return err
		}

		query := fmt.Sprintf(
			`UPDATE products
			 SET %s, updated_at = NOW(), version = version + 1
			 WHERE id = $%d
			 RETURNING %s`,
			strings.Join(sets, ", "), len(args)+1, productColumns)

		var err error
		product, err = scanProduct(tx.QueryRowContext(ctx, query, append(args, productID)...))
		if err != nil {
			return fmt.Errorf("update product: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return product, nil
}

func (s *Store) DeleteProduct(ctx context.Context, callerID int64, role string, productID int64) error {
	return database.WithRetry(ctx, s.db, s.txOpts, func(tx *sql.Tx) error {
		if err := lockOwnedProduct(ctx, tx, productID, callerID, role, "delete"); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, productID); err != nil {
			return fmt.Errorf("delete product: %w", err)
		}
		return nil
	})
}

// SetProductImage points the product at an image that is already stored.
// The upload happens before this call so the row lock is only held for
// the ownership check and the write.
func (s *Store) SetProductImage(ctx context.Context, callerID int64, role string, productID int64, url string) (*models.Product, error) {
	var product *models.Product
	err := database.WithRetry(ctx, s.db, s.txOpts, func(tx *sql.Tx) error {
		if err := lockOwnedProduct(ctx, tx, productID, callerID, role, "update"); err != nil {
			return err
		}

		var err error
		product, err = scanProduct(tx.QueryRowContext(ctx,
			`UPDATE products
			 SET image_url = $1, updated_at = NOW(), version = version + 1
			 WHERE id = $2
			 RETURNING `+productColumns,
			url, productID))
		if err != nil {
			return fmt.Errorf("set product image: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return product, nil
}

func scanProduct(row rowScanner) (*models.Product, error) {
	product := &models.Product{}
	err := row.Scan(
		&product.ID,
		&product.OwnerID,
		&product.Name,
		&product.Description,
		&product.Category,
		&product.Price,
		&product.Stock,
		&product.CaughtAt,
		&product.ExpiryDate,
		&product.ImageURL,
		&product.CreatedAt,
		&product.UpdatedAt,
		&product.Version,
	)
	if err != nil {
		return nil, err
	}
	return product, nil
}
