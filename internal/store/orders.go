package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/safar/fishmart/internal/apperr"
	"github.com/safar/fishmart/internal/database"
	"github.com/safar/fishmart/internal/models"
	"github.com/shopspring/decimal"
)

const pendingOrderIndex = "orders_one_pending_per_user"

const orderColumns = `id, user_id, subtotal, tax, delivery_fee, total_amount, status,
	created_at, updated_at, confirmed_by, confirmed_at, version`

type lockedProduct struct {
	price decimal.Decimal
	stock int
}

// PlaceOrder checks out a cart for userID. The pending-order check, stock
// check, order and item inserts and stock decrements all share one
// transaction; referenced product rows stay locked until it ends.
func (s *Store) PlaceOrder(ctx context.Context, userID int64, items []CartItem) (*models.Order, error) {
	if err := ValidateCart(items); err != nil {
		return nil, err
	}

	ids, want := demand(items)
	var order *models.Order

	err := database.WithRetry(ctx, s.db, s.txOpts, func(tx *sql.Tx) error {
		var pendingID int64
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM orders WHERE user_id = $1 AND status = $2 LIMIT 1`,
			userID, models.OrderStatusPending).Scan(&pendingID)
		if err == nil {
			return database.ErrPendingOrderExists
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("check pending order: %w", err)
		}

		products, err := lockProducts(ctx, tx, ids)
		if err != nil {
			return err
		}
		if len(products) != len(ids) {
			return database.ErrProductUnavailable
		}

		for _, id := range ids {
			if want[id] > products[id].stock {
				return apperr.Wrap(database.ErrInsufficientStock,
					fmt.Sprintf("Insufficient stock for product ID %d", id))
			}
		}

		lines := make([]PricedLine, len(items))
		for i, it := range items {
			lines[i] = PricedLine{Price: products[it.ProductID].price, Quantity: it.Quantity}
		}
		totals := ComputeTotals(lines)
		if !totals.InRange() {
			return errAmountTooLarge
		}

		order = &models.Order{
			UserID:      userID,
			Subtotal:    totals.Subtotal,
			Tax:         totals.Tax,
			DeliveryFee: totals.DeliveryFee,
			TotalAmount: totals.Total,
			Status:      models.OrderStatusPending,
		}
		err = tx.QueryRowContext(ctx,
			`INSERT INTO orders (user_id, subtotal, tax, delivery_fee, total_amount, status, created_at, updated_at, version)
			 VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW(), 1)
			 RETURNING id, created_at, updated_at, version`,
			userID, order.Subtotal, order.Tax, order.DeliveryFee, order.TotalAmount, order.Status,
		).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt, &order.Version)
		if err != nil {
			if database.IsUniqueViolation(err, pendingOrderIndex) {
				return database.ErrPendingOrderExists
			}
			return fmt.Errorf("create order: %w", err)
		}

		order.Items = make([]models.OrderItem, len(items))
		for i, it := range items {
			item := models.OrderItem{
				OrderID:         order.ID,
				ProductID:       it.ProductID,
				Quantity:        it.Quantity,
				PriceAtPurchase: products[it.ProductID].price,
			}
			err := tx.QueryRowContext(ctx,
				`INSERT INTO order_items (order_id, product_id, quantity, price_at_purchase, created_at)
				 VALUES ($1, $2, $3, $4, NOW())
				 RETURNING id, created_at`,
				item.OrderID, item.ProductID, item.Quantity, item.PriceAtPurchase,
			).Scan(&item.ID, &item.CreatedAt)
			if err != nil {
				return fmt.Errorf("create order item: %w", err)
			}
			order.Items[i] = item
		}

		for _, id := range ids {
			if err := decrementStock(ctx, tx, id, want[id]); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return order, nil
}

func lockProducts(ctx context.Context, tx *sql.Tx, ids []int64) (map[int64]lockedProduct, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT id, price, stock
		 FROM products
		 WHERE id = ANY($1) AND expiry_date > NOW()
		 ORDER BY id
		 FOR UPDATE`,
		pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("lock products: %w", err)
	}
	defer rows.Close()

	products := make(map[int64]lockedProduct, len(ids))
	for rows.Next() {
		var id int64
		var p lockedProduct
		if err := rows.Scan(&id, &p.price, &p.stock); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products[id] = p
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return products, nil
}

func decrementStock(ctx context.Context, tx *sql.Tx, productID int64, quantity int) error {
	result, err := tx.ExecContext(ctx,
		`UPDATE products
		 SET stock = stock - $1,
		     updated_at = NOW(),
		     version = version + 1
		 WHERE id = $2
		   AND stock >= $1`,
		quantity, productID)
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return apperr.Wrap(database.ErrInsufficientStock,
			fmt.Sprintf("Insufficient stock for product ID %d", productID))
	}

	return nil
}

// ConfirmOrder moves a pending order to confirmed once payment clears.
func (s *Store) ConfirmOrder(ctx context.Context, callerID int64, role string, orderID int64) (*models.Order, error) {
	if !isAdmin(role) {
		return nil, database.ErrAdminOnly
	}

	var order *models.Order
	err := database.WithRetry(ctx, s.db, s.txOpts, func(tx *sql.Tx) error {
		var err error
		order, err = lockPendingOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}

		if err := s.payments.Confirm(ctx, order); err != nil {
			return fmt.Errorf("confirm payment: %w", err)
		}

		return decide(ctx, tx, order, models.OrderStatusConfirmed, callerID)
	})
	if err != nil {
		return nil, err
	}

	return order, nil
}

// RejectOrder cancels a pending order and returns its units to stock.
// Lines whose product has since been deleted are skipped.
func (s *Store) RejectOrder(ctx context.Context, callerID int64, role string, orderID int64) (*models.Order, error) {
	if !isAdmin(role) {
		return nil, apperr.Wrap(database.ErrAdminOnly, "Only admins can reject orders")
	}

	var order *models.Order
	err := database.WithRetry(ctx, s.db, s.txOpts, func(tx *sql.Tx) error {
		var err error
		order, err = lockPendingOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE products p
			 SET stock = p.stock + oi.qty,
			     updated_at = NOW(),
			     version = p.version + 1
			 FROM (
			     SELECT product_id, SUM(quantity) AS qty
			     FROM order_items
			     WHERE order_id = $1
			     GROUP BY product_id
			 ) oi
			 WHERE p.id = oi.product_id`,
			orderID)
		if err != nil {
			return fmt.Errorf("restore stock: %w", err)
		}

		return decide(ctx, tx, order, models.OrderStatusRejected, callerID)
	})
	if err != nil {
		return nil, err
	}

	return order, nil
}

func lockPendingOrder(ctx context.Context, tx *sql.Tx, orderID int64) (*models.Order, error) {
	order, err := scanOrder(tx.QueryRowContext(ctx,
		`SELECT `+orderColumns+`
		 FROM orders
		 WHERE id = $1
		 FOR UPDATE`,
		orderID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("lock order: %w", err)
	}

	if order.Status != models.OrderStatusPending {
		return nil, database.ErrOrderNotPending
	}

	return order, nil
}

func decide(ctx context.Context, tx *sql.Tx, order *models.Order, status string, adminID int64) error {
	decided, err := scanOrder(tx.QueryRowContext(ctx,
		`UPDATE orders
		 SET status = $1,
		     confirmed_by = $2,
		     confirmed_at = NOW(),
		     updated_at = NOW(),
		     version = version + 1
		 WHERE id = $3
		 RETURNING `+orderColumns,
		status, adminID, order.ID))
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}

	*order = *decided
	return nil
}

// GetOrder returns an order with its items. Only the owner or an admin
// may read it.
func (s *Store) GetOrder(ctx context.Context, callerID int64, role string, orderID int64) (*models.Order, error) {
	order, err := scanOrder(s.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	if !isAdmin(role) && order.UserID != callerID {
		return nil, database.ErrOrderForbidden
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, order_id, product_id, quantity, price_at_purchase, created_at
		 FROM order_items
		 WHERE order_id = $1
		 ORDER BY id`,
		orderID)
	if err != nil {
		return nil, fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()

	order.Items = []models.OrderItem{}
	for rows.Next() {
		var item models.OrderItem
		err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.Quantity,
			&item.PriceAtPurchase,
			&item.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		order.Items = append(order.Items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return order, nil
}

// ListOrdersCursor pages through orders newest first. Admins see every
// order; anyone else sees only their own.
func (s *Store) ListOrdersCursor(ctx context.Context, callerID int64, role string, cursor string, limit int) (*CursorPage, error) {
	after, err := DecodeCursor(cursor)
	if err != nil {
		return nil, err
	}
	limit = ClampLimit(limit)

	var owner sql.NullInt64
	if !isAdmin(role) {
		owner = sql.NullInt64{Int64: callerID, Valid: true}
	}

	var afterAt sql.NullTime
	var afterID int64
	if after != nil {
		afterAt = sql.NullTime{Time: after.CreatedAt, Valid: true}
		afterID = after.ID
	}

	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE ($1::bigint IS NULL OR user_id = $1)
		  AND ($2::timestamptz IS NULL OR (created_at, id) < ($2, $3))
		ORDER BY created_at DESC, id DESC
		LIMIT $4`

	rows, err := s.db.QueryContext(ctx, query, owner, afterAt, afterID, limit+1)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := []models.Order{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	hasMore := len(orders) > limit
	if hasMore {
		orders = orders[:limit]
	}

	var nextCursor string
	if hasMore && len(orders) > 0 {
		lastOrder := orders[len(orders)-1]
		nextCursor = EncodeCursor(OrderCursor{
			CreatedAt: lastOrder.CreatedAt,
			ID:        lastOrder.ID,
		})
	}

	return &CursorPage{
		Items:      orders,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*models.Order, error) {
	order := &models.Order{}
	var confirmedBy sql.NullInt64
	var confirmedAt sql.NullTime

	err := row.Scan(
		&order.ID,
		&order.UserID,
		&order.Subtotal,
		&order.Tax,
		&order.DeliveryFee,
		&order.TotalAmount,
		&order.Status,
		&order.CreatedAt,
		&order.UpdatedAt,
		&confirmedBy,
		&confirmedAt,
		&order.Version,
	)
	if err != nil {
		return nil, err
	}

	if confirmedBy.Valid {
		order.ConfirmedBy = &confirmedBy.Int64
	}
	if confirmedAt.Valid {
		order.ConfirmedAt = &confirmedAt.Time
	}

	return order, nil
}
